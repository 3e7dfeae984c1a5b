// Package device drives a single DLNA renderer: a deduplicating command
// queue paced against slow firmware, a polling timer that tracks transport
// state, and reconciliation of GENA events into local playback state.
package device

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"sync"
	"time"

	"github.com/strefethen/dlna-hub-go/internal/upnp"
	"github.com/strefethen/dlna-hub-go/internal/upnp/scpd"
	"github.com/strefethen/dlna-hub-go/internal/upnp/soap"
)

// ErrUnsupported marks an action the renderer does not advertise in its SCPD.
var ErrUnsupported = errors.New("renderer does not support action")

// keepaliveInterval paces polls of a stopped renderer. GENA leases run
// Second-60, so each idle pass can renew before the lease lapses.
const keepaliveInterval = 30 * time.Second

// PlaybackListener receives session transitions. Callbacks fire from session
// goroutines, outside the session lock, so implementations may call back in.
type PlaybackListener interface {
	OnPlaybackStart(media UBase)
	OnPlaybackProgress(media UBase)
	OnPlaybackStopped(media UBase)
	OnMediaChanged(previous, current UBase)
}

// Options tune session timing; zero values take the defaults.
type Options struct {
	QueueInterval time.Duration // pause between dispatched commands, default 1s
	PollInterval  time.Duration // transport poll period, default 30s
	CacheTTL      time.Duration // how long cached device state stays fresh, default 5s
	CallbackURL   string        // NOTIFY ingress URL for this session's subscriptions
	Logger        *log.Logger
	Debug         bool
}

// Session is the per-renderer control engine. All renderer traffic for one
// device funnels through here so commands stay paced and state stays coherent.
type Session struct {
	id     string
	desc   *upnp.DeviceDescription
	client *soap.Client
	logger *log.Logger
	debug  bool

	queueInterval time.Duration
	pollInterval  time.Duration
	cacheTTL      time.Duration
	callbackURL   string

	mu             sync.Mutex
	schemas        map[string]*scpd.ServiceSchema
	volRange       VolumeRange
	state          TransportState
	media          *UBase
	mediaType      MediaType
	playingURL     string
	positionTicks  int64
	durationTicks  int64
	positionOffset time.Duration
	volume         int // device scale
	muted          bool
	muteVol        int // device scale, last audible volume
	lastTransport  time.Time
	lastPosition   time.Time
	lastVolume     time.Time
	lastMute       time.Time
	lastMeta       time.Time
	avtSID         string
	rcSID          string
	lastRenew      time.Time
	pollTimer      *time.Timer
	pollFailures   int
	listener       PlaybackListener
	onUnavailable  func(reason string)
	disposed       bool

	queue  *commandQueue
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewSession builds a session for the described renderer. Call Start before
// enqueueing commands.
func NewSession(id string, desc *upnp.DeviceDescription, client *soap.Client, opts Options) *Session {
	if opts.QueueInterval <= 0 {
		opts.QueueInterval = time.Second
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 30 * time.Second
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = 5 * time.Second
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	return &Session{
		id:            id,
		desc:          desc,
		client:        client,
		logger:        logger,
		debug:         opts.Debug,
		queueInterval: opts.QueueInterval,
		pollInterval:  opts.PollInterval,
		cacheTTL:      opts.CacheTTL,
		callbackURL:   opts.CallbackURL,
		schemas:       make(map[string]*scpd.ServiceSchema),
		volRange:      DefaultVolumeRange,
		queue:         newCommandQueue(),
	}
}

// ID returns the session's event demultiplexing id.
func (s *Session) ID() string { return s.id }

// Description returns the renderer's device description.
func (s *Session) Description() *upnp.DeviceDescription { return s.desc }

// SetListener installs the playback transition listener.
func (s *Session) SetListener(l PlaybackListener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listener = l
}

// SetOnUnavailable installs the callback fired after repeated poll failures.
func (s *Session) SetOnUnavailable(fn func(reason string)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onUnavailable = fn
}

// Start primes device state, subscribes to events, and launches the command
// worker and poll timer.
func (s *Session) Start(ctx context.Context) error {
	if s.desc.AVTransport == nil {
		return fmt.Errorf("%s: no AVTransport service: %w", s.desc.FriendlyName, ErrUnsupported)
	}
	s.ctx, s.cancel = context.WithCancel(ctx)

	s.loadVolumeRange(s.ctx)
	s.primeState(s.ctx)
	s.subscribeAll(s.ctx)

	s.mu.Lock()
	s.pollTimer = time.AfterFunc(s.pollInterval, s.poll)
	s.mu.Unlock()

	s.wg.Add(1)
	go s.run()
	return nil
}

// Dispose tears the session down: the worker stops, the poll timer is parked
// for good, pending commands are dropped, and subscriptions are released
// best-effort.
func (s *Session) Dispose() {
	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return
	}
	s.disposed = true
	timer := s.pollTimer
	avtSID, rcSID := s.avtSID, s.rcSID
	s.avtSID, s.rcSID = "", ""
	s.mu.Unlock()

	if timer != nil {
		timer.Stop()
	}
	s.queue.Drain()
	if s.cancel != nil {
		s.cancel()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if s.desc.AVTransport != nil && avtSID != "" {
		_ = s.client.Unsubscribe(ctx, serviceOf(s.desc.AVTransport), avtSID)
	}
	if s.desc.RenderingControl != nil && rcSID != "" {
		_ = s.client.Unsubscribe(ctx, serviceOf(s.desc.RenderingControl), rcSID)
	}
	s.wg.Wait()
}

// --- command submission ---

// SetVolume queues a volume change on the 0..100 user scale.
func (s *Session) SetVolume(user int) { s.queue.Enqueue(Command{Kind: CmdSetVolume, Volume: user}) }

// Mute queues a mute.
func (s *Session) Mute() { s.queue.Enqueue(Command{Kind: CmdMute}) }

// Unmute queues an unmute.
func (s *Session) Unmute() { s.queue.Enqueue(Command{Kind: CmdUnmute}) }

// ToggleMute queues a mute toggle; two pending toggles cancel out.
func (s *Session) ToggleMute() { s.queue.Enqueue(Command{Kind: CmdToggleMute}) }

// Play queues a transport Play.
func (s *Session) Play() { s.queue.Enqueue(Command{Kind: CmdPlay}) }

// Pause queues a transport Pause.
func (s *Session) Pause() { s.queue.Enqueue(Command{Kind: CmdPause}) }

// Stop queues a transport Stop.
func (s *Session) Stop() { s.queue.Enqueue(Command{Kind: CmdStop}) }

// Seek queues a REL_TIME seek to the given tick offset.
func (s *Session) Seek(ticks int64) { s.queue.Enqueue(Command{Kind: CmdSeek, Seek: ticks}) }

// SetMedia queues a media change.
func (s *Session) SetMedia(media *MediaData) {
	s.queue.Enqueue(Command{Kind: CmdSetMedia, Media: media})
}

// QueueNext queues a SetNextAVTransportURI for gapless handoff.
func (s *Session) QueueNext(media *MediaData) {
	s.queue.Enqueue(Command{Kind: CmdQueueNext, Media: media})
}

// PendingCommands reports how many commands await dispatch.
func (s *Session) PendingCommands() int { return s.queue.Len() }

// --- state accessors ---

// TransportState returns the last known transport state.
func (s *Session) TransportState() TransportState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// CurrentMedia returns a copy of the loaded media identity, or nil.
func (s *Session) CurrentMedia() *UBase {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.media == nil {
		return nil
	}
	copied := *s.media
	return &copied
}

// CurrentMediaType returns the media type of the last queued media change.
func (s *Session) CurrentMediaType() MediaType {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mediaType
}

// Position returns position and duration in ticks, refreshing from the
// renderer when the cached values have gone stale.
func (s *Session) Position(ctx context.Context) (position, duration int64) {
	s.mu.Lock()
	fresh := time.Since(s.lastPosition) < s.cacheTTL
	s.mu.Unlock()
	if !fresh {
		if res, err := s.invoke(ctx, s.desc.AVTransport, "GetPositionInfo", nil, "", ""); err == nil {
			s.applyPositionResult(res)
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.positionTicks, s.durationTicks
}

// VolumeUser returns the volume on the 0..100 user scale, refreshing when
// stale.
func (s *Session) VolumeUser(ctx context.Context) int {
	s.mu.Lock()
	fresh := time.Since(s.lastVolume) < s.cacheTTL
	s.mu.Unlock()
	if !fresh && s.desc.RenderingControl != nil {
		res, err := s.invoke(ctx, s.desc.RenderingControl, "GetVolume",
			map[string]string{"Channel": "Master"}, "Master", "")
		if err == nil {
			if v, perr := strconv.Atoi(res.Get("CurrentVolume")); perr == nil {
				s.mu.Lock()
				s.volume = v
				s.lastVolume = time.Now()
				if v > s.volRange.Min {
					s.muteVol = v
				}
				s.mu.Unlock()
			}
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.volRange.UserValue(s.volume)
}

// ProtocolInfo asks the renderer's ConnectionManager which formats it can
// sink. The comma-separated protocolInfo list seeds generated device
// profiles.
func (s *Session) ProtocolInfo(ctx context.Context) (string, error) {
	res, err := s.invoke(ctx, s.desc.ConnectionManager, "GetProtocolInfo", nil, "", "")
	if err != nil {
		return "", err
	}
	return res.Get("Sink"), nil
}

// IsMuted reports the mute state, refreshing when stale.
func (s *Session) IsMuted(ctx context.Context) bool {
	s.mu.Lock()
	fresh := time.Since(s.lastMute) < s.cacheTTL
	s.mu.Unlock()
	if !fresh && s.desc.RenderingControl != nil {
		res, err := s.invoke(ctx, s.desc.RenderingControl, "GetMute",
			map[string]string{"Channel": "Master"}, "Master", "")
		if err == nil {
			s.mu.Lock()
			s.muted = res.Get("CurrentMute") == "1"
			s.lastMute = time.Now()
			s.mu.Unlock()
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.muted
}

// --- worker ---

func (s *Session) run() {
	defer s.wg.Done()
	for {
		if err := s.queue.Wait(s.ctx); err != nil {
			return
		}
		s.ensureSubscribed()
		if cmd, ok := s.queue.Pop(); ok {
			s.dispatch(cmd)
		}
		select {
		case <-s.ctx.Done():
			return
		case <-time.After(s.queueInterval):
		}
	}
}

func (s *Session) dispatch(cmd Command) {
	switch cmd.Kind {
	case CmdSetVolume:
		s.doSetVolume(cmd.Volume)
	case CmdMute:
		s.doMute()
	case CmdUnmute:
		s.doUnmute()
	case CmdToggleMute:
		s.doToggleMute()
	case CmdPlay:
		s.doPlay()
	case CmdPause:
		s.doPause()
	case CmdStop:
		s.doStop()
	case CmdSeek:
		s.doSeek(cmd.Seek)
	case CmdSetMedia:
		if cmd.Media != nil {
			s.doSetMedia(cmd.Media)
		}
	case CmdQueueNext:
		if cmd.Media != nil {
			s.doQueueNext(cmd.Media)
		}
	}
}

func (s *Session) doSetVolume(user int) {
	s.mu.Lock()
	target := s.volRange.DeviceValue(user)
	current := s.volume
	s.mu.Unlock()
	if target == current {
		return
	}
	if s.desc.RenderingControl == nil {
		return
	}

	_, err := s.invoke(s.ctx, s.desc.RenderingControl, "SetVolume",
		map[string]string{"Channel": "Master", "DesiredVolume": strconv.Itoa(target)}, "Master", "")
	if err != nil {
		s.logger.Printf("DLNA: %s SetVolume failed: %v", s.desc.FriendlyName, err)
		return
	}

	s.mu.Lock()
	s.volume = target
	s.lastVolume = time.Now()
	if target > s.volRange.Min {
		s.muteVol = target
	}
	s.mu.Unlock()
}

func (s *Session) doMute() {
	s.mu.Lock()
	if s.muted {
		s.mu.Unlock()
		return
	}
	if s.volume > s.volRange.Min {
		s.muteVol = s.volume
	}
	s.mu.Unlock()

	if err := s.setMuteAction(true); err != nil {
		if !errors.Is(err, ErrUnsupported) {
			s.logger.Printf("DLNA: %s SetMute failed: %v", s.desc.FriendlyName, err)
			return
		}
		// No SetMute action; drop the volume to the floor instead.
		s.doSetVolume(0)
	}
	s.mu.Lock()
	s.muted = true
	s.lastMute = time.Now()
	s.mu.Unlock()
}

func (s *Session) doUnmute() {
	s.mu.Lock()
	if !s.muted && s.volume > s.volRange.Min {
		s.mu.Unlock()
		return
	}
	restore := s.muteVol
	if restore <= s.volRange.Min {
		restore = s.volRange.DeviceValue(20)
	}
	s.mu.Unlock()

	if err := s.setMuteAction(false); err != nil {
		if !errors.Is(err, ErrUnsupported) {
			s.logger.Printf("DLNA: %s SetMute failed: %v", s.desc.FriendlyName, err)
			return
		}
		s.doSetVolume(s.volRange.UserValue(restore))
	}
	s.mu.Lock()
	s.muted = false
	s.lastMute = time.Now()
	s.mu.Unlock()
}

func (s *Session) doToggleMute() {
	s.mu.Lock()
	muted := s.muted || s.volume <= s.volRange.Min
	s.mu.Unlock()
	if muted {
		s.doUnmute()
	} else {
		s.doMute()
	}
}

func (s *Session) setMuteAction(mute bool) error {
	if s.desc.RenderingControl == nil {
		return ErrUnsupported
	}
	desired := "0"
	if mute {
		desired = "1"
	}
	_, err := s.invoke(s.ctx, s.desc.RenderingControl, "SetMute",
		map[string]string{"Channel": "Master", "DesiredMute": desired}, "Master", "")
	return err
}

func (s *Session) doPlay() {
	s.mu.Lock()
	if s.state.IsPlaying() {
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	_, err := s.invoke(s.ctx, s.desc.AVTransport, "Play",
		map[string]string{"Speed": "1"}, "1", "")
	if err != nil {
		s.logger.Printf("DLNA: %s Play failed: %v", s.desc.FriendlyName, err)
		return
	}
	s.adoptState(StatePlaying)
	s.restartPoll(100 * time.Millisecond)
}

func (s *Session) doPause() {
	s.mu.Lock()
	if s.state.IsPaused() {
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	_, err := s.invoke(s.ctx, s.desc.AVTransport, "Pause", nil, "", "")
	if err != nil {
		s.logger.Printf("DLNA: %s Pause failed: %v", s.desc.FriendlyName, err)
		return
	}
	s.adoptState(StatePausedPlayback)
	s.restartPoll(100 * time.Millisecond)
}

func (s *Session) doStop() {
	s.mu.Lock()
	if s.state.IsStopped() {
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	_, err := s.invoke(s.ctx, s.desc.AVTransport, "Stop", nil, "", "")
	if err != nil {
		s.logger.Printf("DLNA: %s Stop failed: %v", s.desc.FriendlyName, err)
		return
	}
	s.adoptState(StateStopped)
	s.restartPoll(100 * time.Millisecond)
}

// doSeek issues a REL_TIME seek and reports whether it was dispatched.
// Seeks are dropped unless the renderer is playing or paused.
func (s *Session) doSeek(ticks int64) bool {
	s.mu.Lock()
	state := s.state
	s.mu.Unlock()
	if !state.IsPlaying() && !state.IsPaused() {
		return false
	}

	_, err := s.invoke(s.ctx, s.desc.AVTransport, "Seek",
		map[string]string{"Unit": "REL_TIME", "Target": FormatTicks(ticks)}, "REL_TIME", "")
	if err != nil {
		s.logger.Printf("DLNA: %s Seek failed: %v", s.desc.FriendlyName, err)
		return false
	}
	s.mu.Lock()
	s.positionTicks = ticks
	s.lastPosition = time.Now()
	s.mu.Unlock()
	s.restartPoll(100 * time.Millisecond)
	return true
}

// doSetMedia is the media change protocol. A URL that matches the loaded one
// once its start-time parameter is stripped is a seek within the same item:
// renderers that stream directly get a plain Seek, while a rebuilt transcode
// URL stops the old stream first and reloads below, because the new offset is
// baked into the URL. Everything else stops the old stream, loads the new URI
// with its DLNA headers, and starts playback.
func (s *Session) doSetMedia(media *MediaData) {
	s.mu.Lock()
	playingURL := s.playingURL
	state := s.state
	s.mu.Unlock()

	active := state.IsPlaying() || state.IsPaused() || state == StateTransitioning
	switch {
	case active && playingURL != "" && StripStartTime(media.URL) == StripStartTime(playingURL):
		if media.URL != playingURL {
			// Only the start offset changed; the transcode restarts from the
			// new position, so the old stream has to stop first.
			s.stopForMediaChange()
		}
		if media.ResetPlayback || media.PositionTicks > 0 {
			if s.doSeek(media.PositionTicks) {
				return
			}
		} else if media.URL == playingURL {
			return
		}
	case active && playingURL != "":
		s.stopForMediaChange()
	}

	_, err := s.invoke(s.ctx, s.desc.AVTransport, "SetAVTransportURI",
		map[string]string{"CurrentURI": media.URL, "CurrentURIMetaData": media.Metadata},
		"", media.Headers)
	if err != nil {
		s.logger.Printf("DLNA: %s SetAVTransportURI failed: %v", s.desc.FriendlyName, err)
		return
	}

	// Some renderers reject Play when it lands before the URI settles.
	time.Sleep(50 * time.Millisecond)

	_, err = s.invoke(s.ctx, s.desc.AVTransport, "Play",
		map[string]string{"Speed": "1"}, "1", "")
	if err != nil {
		s.logger.Printf("DLNA: %s Play after media change failed: %v", s.desc.FriendlyName, err)
		return
	}

	s.mu.Lock()
	s.playingURL = media.URL
	s.mediaType = media.MediaType
	s.state = StatePlaying
	s.lastTransport = time.Now()
	s.mu.Unlock()
	s.restartPoll(100 * time.Millisecond)
}

// stopForMediaChange halts the current stream and opens the transitioning
// window, during which stale renderer reports of the old state are ignored.
func (s *Session) stopForMediaChange() {
	if _, err := s.invoke(s.ctx, s.desc.AVTransport, "Stop", nil, "", ""); err != nil {
		s.debugf("Stop before media change failed: %v", err)
	}
	s.mu.Lock()
	s.state = StateTransitioning
	s.media = nil
	s.playingURL = ""
	s.mu.Unlock()
}

func (s *Session) doQueueNext(media *MediaData) {
	_, err := s.invoke(s.ctx, s.desc.AVTransport, "SetNextAVTransportURI",
		map[string]string{"NextURI": media.URL, "NextURIMetaData": media.Metadata},
		"", media.Headers)
	if err != nil {
		// Plenty of renderers skip this optional action.
		s.debugf("SetNextAVTransportURI unavailable: %v", err)
	}
}

// --- polling ---

func (s *Session) poll() {
	if s.ctx == nil || s.ctx.Err() != nil {
		return
	}

	res, err := s.invoke(s.ctx, s.desc.AVTransport, "GetTransportInfo", nil, "", "")
	if err != nil {
		if soap.IsNetworkError(err) {
			s.mu.Lock()
			s.pollFailures++
			failures := s.pollFailures
			unavailable := s.onUnavailable
			s.mu.Unlock()
			if failures >= 3 {
				s.logger.Printf("DLNA: %s unreachable after %d polls", s.desc.FriendlyName, failures)
				if unavailable != nil {
					unavailable(fmt.Sprintf("no response after %d polls", failures))
				}
				return
			}
		}
		s.restartPoll(s.pollInterval)
		return
	}

	s.mu.Lock()
	s.pollFailures = 0
	s.mu.Unlock()

	s.ensureSubscribed()

	reported := ParseTransportState(res.Get("CurrentTransportState"))
	if reported == StateError {
		s.restartPoll(s.pollInterval)
		return
	}

	s.mu.Lock()
	// During a media change the renderer briefly reports STOPPED; only a
	// playing or paused report clears the transitioning window.
	if s.state == StateTransitioning && !reported.IsPlaying() && !reported.IsPaused() {
		s.mu.Unlock()
		s.restartPoll(s.pollInterval)
		return
	}
	s.state = reported
	s.lastTransport = time.Now()
	s.mu.Unlock()

	if reported.IsStopped() || reported == StateNoMediaPresent {
		s.updateMediaInfo(nil)
		// Idle cadence: playback resumption arrives by event or command, but
		// the lease behind those events still needs renewing.
		s.restartPoll(s.idleInterval())
		return
	}

	if pres, perr := s.invoke(s.ctx, s.desc.AVTransport, "GetPositionInfo", nil, "", ""); perr == nil {
		s.applyPositionResult(pres)
		media := mediaFromValues(pres.Values)
		if media.IsEmpty() {
			if mres, merr := s.invoke(s.ctx, s.desc.AVTransport, "GetMediaInfo", nil, "", ""); merr == nil {
				media = mediaFromValues(mres.Values)
			}
		}
		if !media.IsEmpty() {
			s.updateMediaInfo(media)
		}
	}
	s.restartPoll(s.pollInterval)
}

func (s *Session) restartPoll(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.disposed || s.pollTimer == nil {
		return
	}
	s.pollTimer.Reset(d)
}

// idleInterval is the poll period while the renderer sits stopped. With an
// event channel the timer only has the lease to maintain; without one polling
// stays the sole signal source.
func (s *Session) idleInterval() time.Duration {
	if s.callbackURL != "" && s.pollInterval > keepaliveInterval {
		return keepaliveInterval
	}
	return s.pollInterval
}

func (s *Session) adoptState(state TransportState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = state
	s.lastTransport = time.Now()
}

// --- media bookkeeping ---

// updateMediaInfo reconciles the renderer-reported media against the cached
// one and emits at most one playback transition. nil means the renderer
// reports nothing loaded.
func (s *Session) updateMediaInfo(next *UBase) {
	s.mu.Lock()
	prev := s.media
	listener := s.listener
	var emit func()
	switch {
	case prev.IsEmpty() && next.IsEmpty():
		// nothing to do
	case prev.IsEmpty():
		s.media = next
		s.playingURL = next.URL
		if listener != nil {
			m := *next
			emit = func() { listener.OnPlaybackStart(m) }
		}
	case next == nil:
		s.media = nil
		s.playingURL = ""
		if listener != nil {
			m := *prev
			emit = func() { listener.OnPlaybackStopped(m) }
		}
	case next.URL == "":
		// Renderers emit empty TrackURI blips mid-stream; not a real change.
	case prev.Same(next):
		s.media = next
		if listener != nil {
			m := *next
			emit = func() { listener.OnPlaybackProgress(m) }
		}
	default:
		s.media = next
		s.playingURL = next.URL
		if listener != nil {
			old, cur := *prev, *next
			emit = func() { listener.OnMediaChanged(old, cur) }
		}
	}
	s.mu.Unlock()
	if emit != nil {
		emit()
	}
}

func (s *Session) applyPositionResult(res soap.Result) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ticks, ok := ParseHHMMSS(res.Get("RelTime")); ok {
		s.positionTicks = ticks + DurationToTicks(res.PositionOffset())
		s.lastPosition = time.Now()
	}
	if ticks, ok := ParseHHMMSS(res.Get("TrackDuration")); ok && ticks > 0 {
		s.durationTicks = ticks
	}
}

func mediaFromValues(values map[string]string) *UBase {
	media := &UBase{ID: values["item.id"]}
	for _, key := range []string{"TrackURI", "CurrentURI", "res"} {
		if v := values[key]; v != "" {
			media.URL = v
			break
		}
	}
	for _, key := range []string{"TrackMetaData", "CurrentURIMetaData"} {
		if v := values[key]; v != "" && v != "NOT_IMPLEMENTED" {
			media.Metadata = v
			break
		}
	}
	if media.URL == "" {
		return nil
	}
	return media
}

// --- device schema and initialization ---

func (s *Session) invoke(ctx context.Context, info *upnp.ServiceInfo, action string, values map[string]string, commandInput, contentFeatures string) (soap.Result, error) {
	if info == nil {
		return soap.Result{}, fmt.Errorf("%s: %w", action, ErrUnsupported)
	}
	schema, err := s.schema(ctx, info)
	if err != nil {
		return soap.Result{}, err
	}
	act := schema.Action(action)
	if act == nil {
		return soap.Result{}, fmt.Errorf("%s: %w", action, ErrUnsupported)
	}
	argsXML := scpd.BuildArguments(schema, act, values, commandInput)
	res, err := s.client.Invoke(ctx, serviceOf(info), action, argsXML, contentFeatures)
	if err != nil {
		return res, err
	}
	s.debugf("%s ok (%s)", action, res.RoundTrip)
	return res, nil
}

func (s *Session) schema(ctx context.Context, info *upnp.ServiceInfo) (*scpd.ServiceSchema, error) {
	s.mu.Lock()
	if cached, ok := s.schemas[info.ServiceType]; ok {
		s.mu.Unlock()
		return cached, nil
	}
	s.mu.Unlock()

	payload, err := s.client.FetchXML(ctx, info.SCPDURL)
	if err != nil {
		return nil, err
	}
	schema, err := scpd.Parse(payload)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.schemas[info.ServiceType] = schema
	s.mu.Unlock()
	return schema, nil
}

func (s *Session) loadVolumeRange(ctx context.Context) {
	if s.desc.RenderingControl == nil {
		return
	}
	schema, err := s.schema(ctx, s.desc.RenderingControl)
	if err != nil {
		s.debugf("RenderingControl SCPD unavailable: %v", err)
		return
	}
	sv := schema.StateVariable("Volume")
	if sv == nil || sv.AllowedRange == nil {
		return
	}
	min, minErr := strconv.Atoi(sv.AllowedRange.Minimum)
	max, maxErr := strconv.Atoi(sv.AllowedRange.Maximum)
	if minErr != nil || maxErr != nil {
		return
	}
	s.mu.Lock()
	s.volRange = NewVolumeRange(min, max)
	s.mu.Unlock()
}

func (s *Session) primeState(ctx context.Context) {
	if res, err := s.invoke(ctx, s.desc.AVTransport, "GetTransportInfo", nil, "", ""); err == nil {
		s.adoptState(ParseTransportState(res.Get("CurrentTransportState")))
	}
	if res, err := s.invoke(ctx, s.desc.AVTransport, "GetPositionInfo", nil, "", ""); err == nil {
		s.applyPositionResult(res)
		if media := mediaFromValues(res.Values); !media.IsEmpty() {
			s.updateMediaInfo(media)
		}
	}
	_ = s.VolumeUser(ctx)
	_ = s.IsMuted(ctx)
}

// ensureSubscribed keeps the event channel alive: services whose SUBSCRIBE
// failed or was forgotten get a fresh subscription, live leases get renewed
// before Second-60 runs out. Runs on every worker iteration and poll pass.
func (s *Session) ensureSubscribed() {
	if s.callbackURL == "" {
		return
	}
	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return
	}
	missing := (s.desc.AVTransport != nil && s.avtSID == "") ||
		(s.desc.RenderingControl != nil && s.rcSID == "")
	s.mu.Unlock()
	if missing {
		s.subscribeAll(s.ctx)
		return
	}
	s.maybeRenew()
}

func (s *Session) subscribeAll(ctx context.Context) {
	if s.callbackURL == "" {
		return
	}
	s.mu.Lock()
	needAVT := s.desc.AVTransport != nil && s.avtSID == ""
	needRC := s.desc.RenderingControl != nil && s.rcSID == ""
	s.mu.Unlock()

	if needAVT {
		sid, _, err := s.client.Subscribe(ctx, serviceOf(s.desc.AVTransport), "", s.callbackURL, nil)
		if err != nil {
			s.debugf("AVTransport subscribe failed: %v", err)
		} else {
			s.mu.Lock()
			s.avtSID = sid
			s.mu.Unlock()
		}
	}
	if needRC {
		sid, _, err := s.client.Subscribe(ctx, serviceOf(s.desc.RenderingControl), "", s.callbackURL, nil)
		if err != nil {
			s.debugf("RenderingControl subscribe failed: %v", err)
		} else {
			s.mu.Lock()
			s.rcSID = sid
			s.mu.Unlock()
		}
	}
}

func serviceOf(info *upnp.ServiceInfo) soap.Service {
	return soap.Service{
		Type:        info.ServiceType,
		ControlURL:  info.ControlURL,
		EventSubURL: info.EventSubURL,
		SCPDURL:     info.SCPDURL,
	}
}

func (s *Session) debugf(format string, args ...any) {
	if s.debug {
		s.logger.Printf("DLNA: %s "+format, append([]any{s.desc.FriendlyName}, args...)...)
	}
}
