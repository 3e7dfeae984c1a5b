// Package playsession tracks last-known playback state per control session
// and relays lifecycle events to websocket subscribers.
package playsession

import (
	"log"
	"sync"
	"time"

	"github.com/strefethen/dlna-hub-go/internal/playlist"
)

// Event types pushed over the websocket feed.
const (
	EventPlaybackStart    = "PlaybackStart"
	EventPlaybackProgress = "PlaybackProgress"
	EventPlaybackStopped  = "PlaybackStopped"
	EventSessionActivity  = "SessionActivity"
	EventSessionEnded     = "SessionEnded"
)

// Event is one websocket feed message.
type Event struct {
	Type           string `json:"type"`
	SessionID      string `json:"sessionId"`
	ItemID         string `json:"itemId,omitempty"`
	MediaType      string `json:"mediaType,omitempty"`
	PositionTicks  int64  `json:"positionTicks,omitempty"`
	DurationTicks  int64  `json:"durationTicks,omitempty"`
	IsPaused       bool   `json:"isPaused,omitempty"`
	PlaylistIndex  int    `json:"playlistIndex"`
	PlaylistLength int    `json:"playlistLength"`
	Timestamp      int64  `json:"timestamp"`
}

// Capabilities is what a session reports it can do.
type Capabilities struct {
	PlayableMediaTypes   []string `json:"playableMediaTypes"`
	SupportsMediaControl bool     `json:"supportsMediaControl"`
}

// State is the last-known snapshot of one session.
type State struct {
	SessionID    string                `json:"sessionId"`
	DeviceName   string                `json:"deviceName"`
	Capabilities Capabilities          `json:"capabilities"`
	Playing      bool                  `json:"playing"`
	Progress     playlist.ProgressInfo `json:"progress"`
	LastActivity time.Time             `json:"lastActivity"`
}

// Manager keeps session state and implements the playback reporter contract.
type Manager struct {
	mu     sync.Mutex
	states map[string]*State
	hub    *Hub
	logger *log.Logger
	debug  bool
}

// NewManager creates a manager publishing to the given hub. hub may be nil
// for headless use.
func NewManager(hub *Hub, logger *log.Logger, debug bool) *Manager {
	if logger == nil {
		logger = log.Default()
	}
	return &Manager{
		states: make(map[string]*State),
		hub:    hub,
		logger: logger,
		debug:  debug,
	}
}

// RegisterSession creates the state slot for a new session.
func (m *Manager) RegisterSession(sessionID, deviceName string) {
	m.mu.Lock()
	m.states[sessionID] = &State{
		SessionID:    sessionID,
		DeviceName:   deviceName,
		LastActivity: time.Now(),
	}
	m.mu.Unlock()
	m.logger.Printf("SESSION: %s registered (%s)", sessionID, deviceName)
}

// LogSessionActivity stamps the session as recently active.
func (m *Manager) LogSessionActivity(sessionID string) {
	m.mu.Lock()
	if state, ok := m.states[sessionID]; ok {
		state.LastActivity = time.Now()
	}
	m.mu.Unlock()
	m.broadcast(Event{Type: EventSessionActivity, SessionID: sessionID})
}

// ReportCapabilities records what the session can play and control.
func (m *Manager) ReportCapabilities(sessionID string, caps Capabilities) {
	m.mu.Lock()
	if state, ok := m.states[sessionID]; ok {
		state.Capabilities = caps
	}
	m.mu.Unlock()
}

// ReportSessionEnded removes the session and notifies subscribers.
func (m *Manager) ReportSessionEnded(sessionID string) {
	m.mu.Lock()
	_, existed := m.states[sessionID]
	delete(m.states, sessionID)
	m.mu.Unlock()
	if !existed {
		return
	}
	m.logger.Printf("SESSION: %s ended", sessionID)
	m.broadcast(Event{Type: EventSessionEnded, SessionID: sessionID})
}

// OnPlaybackStart implements playlist.Reporter.
func (m *Manager) OnPlaybackStart(info playlist.ProgressInfo) {
	m.update(info, true)
	m.logger.Printf("SESSION: %s playing item %s", info.SessionID, info.ItemID)
	m.broadcast(eventFrom(EventPlaybackStart, info))
}

// OnPlaybackProgress implements playlist.Reporter.
func (m *Manager) OnPlaybackProgress(info playlist.ProgressInfo) {
	m.update(info, true)
	m.broadcast(eventFrom(EventPlaybackProgress, info))
}

// OnPlaybackStopped implements playlist.Reporter.
func (m *Manager) OnPlaybackStopped(info playlist.ProgressInfo) {
	m.update(info, false)
	m.logger.Printf("SESSION: %s stopped item %s at %d ticks",
		info.SessionID, info.ItemID, info.PositionTicks)
	m.broadcast(eventFrom(EventPlaybackStopped, info))
}

// SessionState returns a copy of the session's last-known state.
func (m *Manager) SessionState(sessionID string) (State, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	state, ok := m.states[sessionID]
	if !ok {
		return State{}, false
	}
	return *state, true
}

// States returns a snapshot of every tracked session.
func (m *Manager) States() []State {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]State, 0, len(m.states))
	for _, state := range m.states {
		out = append(out, *state)
	}
	return out
}

func (m *Manager) update(info playlist.ProgressInfo, playing bool) {
	m.mu.Lock()
	state, ok := m.states[info.SessionID]
	if !ok {
		state = &State{SessionID: info.SessionID}
		m.states[info.SessionID] = state
	}
	state.Progress = info
	state.Playing = playing
	state.LastActivity = time.Now()
	m.mu.Unlock()
}

func (m *Manager) broadcast(event Event) {
	if m.hub == nil {
		return
	}
	event.Timestamp = time.Now().UnixMilli()
	m.hub.Broadcast(event)
}

func eventFrom(eventType string, info playlist.ProgressInfo) Event {
	return Event{
		Type:           eventType,
		SessionID:      info.SessionID,
		ItemID:         info.ItemID,
		MediaType:      string(info.MediaType),
		PositionTicks:  info.PositionTicks,
		DurationTicks:  info.DurationTicks,
		IsPaused:       info.IsPaused,
		PlaylistIndex:  info.PlaylistIndex,
		PlaylistLength: info.PlaylistLength,
	}
}
