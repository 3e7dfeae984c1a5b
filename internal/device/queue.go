package device

import (
	"context"
	"sync"
)

// CommandKind names the deduplication class of a queued command.
type CommandKind string

const (
	CmdSetVolume  CommandKind = "SetVolume"
	CmdMute       CommandKind = "Mute"
	CmdUnmute     CommandKind = "Unmute"
	CmdToggleMute CommandKind = "ToggleMute"
	CmdPlay       CommandKind = "Play"
	CmdPause      CommandKind = "Pause"
	CmdStop       CommandKind = "Stop"
	CmdSeek       CommandKind = "Seek"
	CmdSetMedia   CommandKind = "SetMedia"
	CmdQueueNext  CommandKind = "QueueNext"
)

// Command is one pending renderer operation.
type Command struct {
	Kind   CommandKind
	Volume int   // user scale 0..100, CmdSetVolume
	Seek   int64 // ticks, CmdSeek
	Media  *MediaData
}

// commandQueue is a FIFO that keeps at most one command per kind. Enqueueing a
// kind already pending drops the stale entry and appends the newcomer at the
// tail, so a burst of volume changes collapses to the latest value in arrival
// order. Two pending ToggleMute commands cancel each other out entirely.
type commandQueue struct {
	mu      sync.Mutex
	entries []Command
	wake    chan struct{}
}

func newCommandQueue() *commandQueue {
	return &commandQueue{wake: make(chan struct{}, 1)}
}

// Enqueue adds a command, collapsing duplicates by kind.
func (q *commandQueue) Enqueue(cmd Command) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for i := range q.entries {
		if q.entries[i].Kind != cmd.Kind {
			continue
		}
		if cmd.Kind == CmdToggleMute {
			// A second toggle before the first dispatched is a no-op pair.
			q.entries = append(q.entries[:i], q.entries[i+1:]...)
			return
		}
		q.entries = append(q.entries[:i], q.entries[i+1:]...)
		break
	}

	q.entries = append(q.entries, cmd)
	q.signal()
}

func (q *commandQueue) signal() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// Pop removes and returns the oldest pending command.
func (q *commandQueue) Pop() (Command, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.entries) == 0 {
		return Command{}, false
	}
	cmd := q.entries[0]
	q.entries = q.entries[1:]
	return cmd, true
}

// Wait blocks until a command is pending or ctx is done.
func (q *commandQueue) Wait(ctx context.Context) error {
	for {
		q.mu.Lock()
		pending := len(q.entries) > 0
		q.mu.Unlock()
		if pending {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-q.wake:
		}
	}
}

// Len reports the number of pending commands.
func (q *commandQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

// Drain discards all pending commands.
func (q *commandQueue) Drain() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.entries = nil
}
