// Package playlist bridges server-side play requests onto a renderer's
// one-URL-at-a-time transport: it owns the playlist cursor, pipelines the
// next track, rebuilds transcode URLs on seek, and paces photo slideshows.
package playlist

import (
	"context"

	"github.com/strefethen/dlna-hub-go/internal/device"
)

// PlayCommand selects how a play request merges into the playlist.
type PlayCommand string

const (
	PlayNow        PlayCommand = "PlayNow"
	PlayNext       PlayCommand = "PlayNext"
	PlayLast       PlayCommand = "PlayLast"
	PlayInstantMix PlayCommand = "PlayInstantMix"
	PlayShuffle    PlayCommand = "PlayShuffle"
)

// PlaystateCommand is a transport-level intent.
type PlaystateCommand string

const (
	PsStop          PlaystateCommand = "Stop"
	PsPause         PlaystateCommand = "Pause"
	PsUnpause       PlaystateCommand = "Unpause"
	PsPlayPause     PlaystateCommand = "PlayPause"
	PsSeek          PlaystateCommand = "Seek"
	PsNextTrack     PlaystateCommand = "NextTrack"
	PsPreviousTrack PlaystateCommand = "PreviousTrack"
)

// GeneralCommand covers volume, mute and stream-selection intents.
type GeneralCommand string

const (
	GcVolumeUp               GeneralCommand = "VolumeUp"
	GcVolumeDown             GeneralCommand = "VolumeDown"
	GcMute                   GeneralCommand = "Mute"
	GcUnmute                 GeneralCommand = "Unmute"
	GcToggleMute             GeneralCommand = "ToggleMute"
	GcSetVolume              GeneralCommand = "SetVolume"
	GcSetAudioStreamIndex    GeneralCommand = "SetAudioStreamIndex"
	GcSetSubtitleStreamIndex GeneralCommand = "SetSubtitleStreamIndex"
)

// PlayRequest is the inbound "play these items" message.
type PlayRequest struct {
	ItemIDs             []string
	StartIndex          int
	StartPositionTicks  int64
	MediaSourceID       string
	AudioStreamIndex    int // -1 unset
	SubtitleStreamIndex int // -1 unset
	Command             PlayCommand
}

// BaseItem is a library item resolved by the media source.
type BaseItem struct {
	ID            string
	Name          string
	Artist        string
	Album         string
	MediaType     device.MediaType
	Container     string
	MimeType      string
	MediaSourceID string
	RunTimeTicks  int64
}

// MediaSource resolves item ids against the host library.
type MediaSource interface {
	GetItem(ctx context.Context, id string) (*BaseItem, error)
}

// Item is one playable playlist entry with its rendered URL and metadata.
type Item struct {
	Base                *BaseItem
	StreamURL           string
	Didl                string
	ContentFeatures     string
	MediaType           device.MediaType
	StartPositionTicks  int64
	IsDirectStream      bool
	AudioStreamIndex    int
	SubtitleStreamIndex int
}

// ProgressInfo is the playback state snapshot reported to the host.
type ProgressInfo struct {
	SessionID      string
	ItemID         string
	MediaType      device.MediaType
	PositionTicks  int64
	DurationTicks  int64
	IsPaused       bool
	PlaylistIndex  int
	PlaylistLength int
}

// Reporter receives playback lifecycle reports. The host session manager
// implements this.
type Reporter interface {
	OnPlaybackStart(info ProgressInfo)
	OnPlaybackProgress(info ProgressInfo)
	OnPlaybackStopped(info ProgressInfo)
}
