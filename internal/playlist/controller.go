package playlist

import (
	"context"
	"fmt"
	"log"
	"math"
	"sync"
	"time"

	"github.com/strefethen/dlna-hub-go/internal/device"
	"github.com/strefethen/dlna-hub-go/internal/profile"
	"github.com/strefethen/dlna-hub-go/internal/stream"
)

// Options tune controller behavior; zero values take defaults.
type Options struct {
	SessionID         string
	PhotoInterval     time.Duration // slideshow transition, default 5s
	MaxResumePct      float64       // played-to-completion tolerance, default 2
	SeekCheckInterval time.Duration // default 500ms
	SeekCheckTimeout  time.Duration // default 15s
	Logger            *log.Logger
	Debug             bool
}

// Controller owns one renderer's playlist and cursor. It is the session's
// sole playback listener and the only mutator of the playlist.
type Controller struct {
	sessionID string
	session   *device.Session
	source    MediaSource
	builder   *stream.Builder
	profile   *profile.DeviceProfile
	logger    *log.Logger
	debug     bool

	photoInterval     time.Duration
	maxResumePct      float64
	seekCheckInterval time.Duration
	seekCheckTimeout  time.Duration

	mu                sync.Mutex
	items             []*Item
	cursor            int
	slideshowActive   bool
	slideshowTimer    *time.Timer
	lastPositionTicks int64
	lastDurationTicks int64
	reporter          Reporter
	disposed          bool
}

// NewController wires a controller over a started device session.
func NewController(session *device.Session, source MediaSource, builder *stream.Builder, prof *profile.DeviceProfile, opts Options) *Controller {
	if opts.PhotoInterval <= 0 {
		opts.PhotoInterval = 5 * time.Second
	}
	if opts.MaxResumePct <= 0 {
		opts.MaxResumePct = 2
	}
	if opts.SeekCheckInterval <= 0 {
		opts.SeekCheckInterval = 500 * time.Millisecond
	}
	if opts.SeekCheckTimeout <= 0 {
		opts.SeekCheckTimeout = 15 * time.Second
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	return &Controller{
		sessionID:         opts.SessionID,
		session:           session,
		source:            source,
		builder:           builder,
		profile:           prof,
		logger:            logger,
		debug:             opts.Debug,
		photoInterval:     opts.PhotoInterval,
		maxResumePct:      opts.MaxResumePct,
		seekCheckInterval: opts.SeekCheckInterval,
		seekCheckTimeout:  opts.SeekCheckTimeout,
		cursor:            -1,
	}
}

// SetReporter installs the host progress reporter.
func (c *Controller) SetReporter(r Reporter) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reporter = r
}

// Dispose disarms the slideshow timer and detaches the controller.
func (c *Controller) Dispose() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.disposed = true
	c.stopSlideshowLocked()
}

// Snapshot reports the playlist state for the control API.
func (c *Controller) Snapshot() (cursor int, itemIDs []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ids := make([]string, 0, len(c.items))
	for _, item := range c.items {
		ids = append(ids, item.Base.ID)
	}
	return c.cursor, ids
}

// HandlePlay processes an inbound play request.
func (c *Controller) HandlePlay(ctx context.Context, req PlayRequest) error {
	items := c.buildItems(ctx, req)

	switch req.Command {
	case PlayNow, PlayShuffle, PlayInstantMix, "":
		if len(items) == 0 {
			return fmt.Errorf("no playable items for %s", c.sessionID)
		}
		if req.Command == PlayShuffle || req.Command == PlayInstantMix {
			shuffle(items)
		}
		start := 0
		if req.Command == PlayNow && req.StartIndex > 0 && req.StartIndex < len(items) {
			start = req.StartIndex
		}
		c.mu.Lock()
		c.items = items
		c.mu.Unlock()
		c.SetPlaylistIndex(ctx, start)

	case PlayLast:
		c.mu.Lock()
		c.items = append(c.items, items...)
		cursor := c.cursor
		c.mu.Unlock()
		if c.session.TransportState().IsPlaying() {
			return nil
		}
		if cursor < 0 {
			c.SetPlaylistIndex(ctx, 0)
		}

	case PlayNext:
		c.mu.Lock()
		if c.cursor < 0 || c.cursor >= len(c.items) {
			c.items = append(c.items, items...)
		} else {
			at := c.cursor + 1
			c.items = append(c.items[:at], append(items, c.items[at:]...)...)
		}
		cursor := c.cursor
		c.mu.Unlock()
		if c.session.TransportState().IsPlaying() {
			return nil
		}
		if cursor < 0 {
			c.SetPlaylistIndex(ctx, 0)
		}

	default:
		return fmt.Errorf("unknown play command %q", req.Command)
	}
	return nil
}

func (c *Controller) buildItems(ctx context.Context, req PlayRequest) []*Item {
	var items []*Item
	for i, id := range req.ItemIDs {
		base, err := c.source.GetItem(ctx, id)
		if err != nil {
			c.logger.Printf("PLAYTO: item %s unavailable: %v", id, err)
			continue
		}
		if c.profile != nil && !c.profile.Supports(base.MediaType) {
			c.debugf("item %s: media type %s unsupported by profile", id, base.MediaType)
			continue
		}
		var start int64
		if i == req.StartIndex {
			start = req.StartPositionTicks
		}
		item := c.createItem(base, req.AudioStreamIndex, req.SubtitleStreamIndex, req.MediaSourceID, start)
		if item == nil {
			continue
		}
		items = append(items, item)
	}
	return items
}

// SetPlaylistIndex moves the cursor and drives the renderer to that entry.
// An out-of-range index clears the playlist and stops playback.
func (c *Controller) SetPlaylistIndex(ctx context.Context, i int) {
	c.mu.Lock()
	if c.disposed {
		c.mu.Unlock()
		return
	}
	if i < 0 || i >= len(c.items) {
		c.items = nil
		c.cursor = -1
		c.stopSlideshowLocked()
		c.mu.Unlock()
		c.session.Stop()
		return
	}
	c.cursor = i
	item := c.items[i]
	var next *Item
	if i+1 < len(c.items) {
		next = c.items[i+1]
	}
	c.mu.Unlock()

	startTicks := int64(0)
	if item.IsDirectStream {
		startTicks = item.StartPositionTicks
	}
	c.session.SetMedia(&device.MediaData{
		URL:           item.StreamURL,
		Headers:       item.ContentFeatures,
		Metadata:      item.Didl,
		MediaType:     item.MediaType,
		ResetPlayback: i > 0,
		PositionTicks: startTicks,
	})
	if next != nil {
		// Pipelines gapless handoff on renderers that honor it.
		c.session.QueueNext(&device.MediaData{
			URL:       next.StreamURL,
			Headers:   next.ContentFeatures,
			Metadata:  next.Didl,
			MediaType: next.MediaType,
		})
	}

	if item.MediaType == device.MediaTypePhoto {
		c.armSlideshow()
	} else {
		c.mu.Lock()
		c.stopSlideshowLocked()
		c.mu.Unlock()
	}

	if item.IsDirectStream && startTicks > 0 {
		go c.seekAfterTransportChange(startTicks)
	}
}

// HandlePlaystate processes a transport intent. seekTicks applies to PsSeek.
func (c *Controller) HandlePlaystate(ctx context.Context, cmd PlaystateCommand, seekTicks int64) error {
	c.mu.Lock()
	slideshow := c.slideshowActive
	cursor := c.cursor
	c.mu.Unlock()

	if slideshow {
		switch cmd {
		case PsStop:
			c.clear(true)
		case PsPause:
			c.mu.Lock()
			if c.slideshowTimer != nil {
				c.slideshowTimer.Stop()
			}
			c.mu.Unlock()
		case PsUnpause, PsPlayPause:
			c.armSlideshow()
		case PsNextTrack:
			c.SetPlaylistIndex(ctx, cursor+1)
		case PsPreviousTrack:
			c.SetPlaylistIndex(ctx, cursor-1)
		}
		return nil
	}

	switch cmd {
	case PsStop:
		c.clear(true)
	case PsPause:
		c.session.Pause()
	case PsUnpause:
		c.session.Play()
	case PsPlayPause:
		if c.session.TransportState().IsPaused() {
			c.session.Play()
		} else {
			c.session.Pause()
		}
	case PsSeek:
		return c.seek(ctx, seekTicks)
	case PsNextTrack:
		c.SetPlaylistIndex(ctx, cursor+1)
	case PsPreviousTrack:
		c.SetPlaylistIndex(ctx, cursor-1)
	default:
		return fmt.Errorf("unknown playstate command %q", cmd)
	}
	return nil
}

// seek jumps within the current item. Direct streams seek on the renderer;
// transcodes encode the offset in the URL, so the item is rebuilt and the
// transport URI replaced.
func (c *Controller) seek(ctx context.Context, ticks int64) error {
	c.mu.Lock()
	var item *Item
	if c.cursor >= 0 && c.cursor < len(c.items) {
		item = c.items[c.cursor]
	}
	c.mu.Unlock()

	if item == nil || item.IsDirectStream {
		c.session.Seek(ticks)
		return nil
	}

	rebuilt := c.createItem(item.Base, item.AudioStreamIndex, item.SubtitleStreamIndex, item.Base.MediaSourceID, ticks)
	if rebuilt == nil {
		return fmt.Errorf("rebuild stream for seek: item %s unroutable", item.Base.ID)
	}
	c.mu.Lock()
	if c.cursor >= 0 && c.cursor < len(c.items) {
		c.items[c.cursor] = rebuilt
	}
	c.mu.Unlock()

	c.session.SetMedia(&device.MediaData{
		URL:           rebuilt.StreamURL,
		Headers:       rebuilt.ContentFeatures,
		Metadata:      rebuilt.Didl,
		MediaType:     rebuilt.MediaType,
		ResetPlayback: true,
	})
	return nil
}

// HandleGeneral processes volume, mute and stream-selection commands.
// value carries the volume level or stream index where applicable.
func (c *Controller) HandleGeneral(ctx context.Context, cmd GeneralCommand, value int) error {
	switch cmd {
	case GcVolumeUp:
		c.session.SetVolume(c.session.VolumeUser(ctx) + 5)
	case GcVolumeDown:
		c.session.SetVolume(c.session.VolumeUser(ctx) - 5)
	case GcMute:
		c.session.Mute()
	case GcUnmute:
		c.session.Unmute()
	case GcToggleMute:
		c.session.ToggleMute()
	case GcSetVolume:
		c.session.SetVolume(value)
	case GcSetAudioStreamIndex:
		return c.changeStreamIndex(ctx, value, true)
	case GcSetSubtitleStreamIndex:
		return c.changeStreamIndex(ctx, value, false)
	default:
		return fmt.Errorf("unknown general command %q", cmd)
	}
	return nil
}

// changeStreamIndex rebuilds the current item with a new audio or subtitle
// stream. The server URL changes, so the transport URI is replaced; direct
// streams then seek back to where they were.
func (c *Controller) changeStreamIndex(ctx context.Context, index int, audio bool) error {
	c.mu.Lock()
	var item *Item
	if c.cursor >= 0 && c.cursor < len(c.items) {
		item = c.items[c.cursor]
	}
	c.mu.Unlock()
	if item == nil {
		return fmt.Errorf("no current item")
	}

	position, _ := c.session.Position(ctx)
	audioIdx, subIdx := item.AudioStreamIndex, item.SubtitleStreamIndex
	if audio {
		audioIdx = index
	} else {
		subIdx = index
	}

	rebuilt := c.createItem(item.Base, audioIdx, subIdx, item.Base.MediaSourceID, position)
	if rebuilt == nil {
		return fmt.Errorf("rebuild stream: item %s unroutable", item.Base.ID)
	}
	c.mu.Lock()
	if c.cursor >= 0 && c.cursor < len(c.items) {
		c.items[c.cursor] = rebuilt
	}
	c.mu.Unlock()

	c.session.SetMedia(&device.MediaData{
		URL:           rebuilt.StreamURL,
		Headers:       rebuilt.ContentFeatures,
		Metadata:      rebuilt.Didl,
		MediaType:     rebuilt.MediaType,
		ResetPlayback: true,
	})
	if rebuilt.IsDirectStream && position > 0 {
		go c.seekAfterTransportChange(position)
	}
	return nil
}

// seekAfterTransportChange waits for the renderer to accept the new URI and
// reach Playing, then seeks. Renderers reject Seek while still loading.
func (c *Controller) seekAfterTransportChange(ticks int64) {
	deadline := time.Now().Add(c.seekCheckTimeout)
	for time.Now().Before(deadline) {
		if c.disposedNow() {
			return
		}
		if c.session.TransportState().IsPlaying() {
			c.session.Seek(ticks)
			return
		}
		time.Sleep(c.seekCheckInterval)
	}
	c.session.Seek(ticks)
}

func (c *Controller) disposedNow() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.disposed
}

// clear empties the playlist. stop also halts the renderer.
func (c *Controller) clear(stop bool) {
	c.mu.Lock()
	c.items = nil
	c.cursor = -1
	c.stopSlideshowLocked()
	c.mu.Unlock()
	if stop {
		c.session.Stop()
	}
}

// --- slideshow ---

func (c *Controller) armSlideshow() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.disposed {
		return
	}
	c.slideshowActive = true
	if c.slideshowTimer == nil {
		c.slideshowTimer = time.AfterFunc(c.photoInterval, c.slideshowFire)
	} else {
		c.slideshowTimer.Reset(c.photoInterval)
	}
}

func (c *Controller) stopSlideshowLocked() {
	c.slideshowActive = false
	if c.slideshowTimer != nil {
		c.slideshowTimer.Stop()
	}
}

func (c *Controller) slideshowFire() {
	c.mu.Lock()
	if !c.slideshowActive || c.disposed {
		c.mu.Unlock()
		return
	}
	cursor := c.cursor
	c.mu.Unlock()
	c.SetPlaylistIndex(context.Background(), cursor+1)
}

// --- playback listener (device.PlaybackListener) ---

// OnPlaybackStart reports a fresh playback to the host.
func (c *Controller) OnPlaybackStart(media device.UBase) {
	c.refreshProgress()
	if r := c.currentReporter(); r != nil {
		r.OnPlaybackStart(c.progressInfo(media))
	}
}

// OnPlaybackProgress reports position updates to the host.
func (c *Controller) OnPlaybackProgress(media device.UBase) {
	c.refreshProgress()
	if r := c.currentReporter(); r != nil {
		r.OnPlaybackProgress(c.progressInfo(media))
	}
}

// OnMediaChanged fires when the renderer switched items on its own, which is
// how a honored SetNextAVTransportURI surfaces. The cursor chases the
// renderer and the following track is queued.
func (c *Controller) OnMediaChanged(previous, current device.UBase) {
	c.mu.Lock()
	matched := -1
	for i, item := range c.items {
		if device.StripStartTime(item.StreamURL) == device.StripStartTime(current.URL) {
			matched = i
			break
		}
	}
	var next *Item
	if matched >= 0 {
		c.cursor = matched
		if matched+1 < len(c.items) {
			next = c.items[matched+1]
		}
	}
	c.mu.Unlock()

	if next != nil {
		c.session.QueueNext(&device.MediaData{
			URL:       next.StreamURL,
			Headers:   next.ContentFeatures,
			Metadata:  next.Didl,
			MediaType: next.MediaType,
		})
	}

	c.refreshProgress()
	if r := c.currentReporter(); r != nil {
		r.OnPlaybackStart(c.progressInfo(current))
	}
}

// OnPlaybackStopped decides between auto-advance and user stop.
func (c *Controller) OnPlaybackStopped(media device.UBase) {
	c.mu.Lock()
	position, duration := c.lastPositionTicks, c.lastDurationTicks
	cursor := c.cursor
	var mediaType device.MediaType
	if cursor >= 0 && cursor < len(c.items) {
		mediaType = c.items[cursor].MediaType
	}
	c.mu.Unlock()

	info := c.progressInfo(media)
	if mediaType == device.MediaTypePhoto {
		// Photos have no resume position worth recording.
		info.PositionTicks = 1
		if r := c.currentReporter(); r != nil {
			r.OnPlaybackStopped(info)
		}
		return
	}

	completed := position == 0
	if !completed && duration > 0 {
		completed = math.Abs(1-float64(position)/float64(duration))*100 <= c.maxResumePct
	}

	if r := c.currentReporter(); r != nil {
		r.OnPlaybackStopped(info)
	}

	if completed {
		c.SetPlaylistIndex(context.Background(), cursor+1)
	} else {
		c.clear(false)
	}
}

func (c *Controller) refreshProgress() {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	position, duration := c.session.Position(ctx)
	c.mu.Lock()
	c.lastPositionTicks = position
	c.lastDurationTicks = duration
	c.mu.Unlock()
}

func (c *Controller) currentReporter() Reporter {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reporter
}

func (c *Controller) progressInfo(media device.UBase) ProgressInfo {
	c.mu.Lock()
	defer c.mu.Unlock()
	itemID := media.ID
	var mediaType device.MediaType
	if c.cursor >= 0 && c.cursor < len(c.items) {
		item := c.items[c.cursor]
		mediaType = item.MediaType
		if itemID == "" {
			itemID = item.Base.ID
		}
	}
	if itemID == "" {
		itemID = stream.GetItemID(media.URL)
	}
	return ProgressInfo{
		SessionID:      c.sessionID,
		ItemID:         itemID,
		MediaType:      mediaType,
		PositionTicks:  c.lastPositionTicks,
		DurationTicks:  c.lastDurationTicks,
		IsPaused:       c.session.TransportState().IsPaused(),
		PlaylistIndex:  c.cursor,
		PlaylistLength: len(c.items),
	}
}

func (c *Controller) debugf(format string, args ...any) {
	if c.debug {
		c.logger.Printf("PLAYTO: "+format, args...)
	}
}
