// Package stream builds the media-server URLs a renderer pulls from and
// parses them back into their parameters. Transcoded streams encode their
// start position in the URL, so seeking a transcode means rebuilding it.
package stream

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/strefethen/dlna-hub-go/internal/device"
)

// Info describes one stream to build a URL for.
type Info struct {
	ItemID              string
	MediaType           device.MediaType
	Container           string // file extension for the stream path, e.g. "mp4"
	MediaSourceID       string
	LiveStreamID        string
	IsDirectStream      bool
	AudioStreamIndex    int // -1 when unset
	SubtitleStreamIndex int // -1 when unset
	StartPositionTicks  int64
}

// Builder renders stream URLs against one media server.
type Builder struct {
	serverURL string
	deviceID  string
	apiKey    string
}

// NewBuilder creates a Builder. serverURL has no trailing slash after this.
func NewBuilder(serverURL, deviceID, apiKey string) *Builder {
	return &Builder{
		serverURL: strings.TrimRight(serverURL, "/"),
		deviceID:  deviceID,
		apiKey:    apiKey,
	}
}

// StreamURL renders the pull URL for an audio or video stream. Photos use
// PhotoURL instead. Returns "" when the info cannot be routed.
func (b *Builder) StreamURL(info Info) string {
	if info.ItemID == "" {
		return ""
	}

	var path string
	switch info.MediaType {
	case device.MediaTypeVideo:
		path = "/Videos/" + info.ItemID + "/stream"
	case device.MediaTypeAudio:
		path = "/Audio/" + info.ItemID + "/stream"
	default:
		return ""
	}
	if info.Container != "" {
		path += "." + info.Container
	}

	query := url.Values{}
	if b.deviceID != "" {
		query.Set("DeviceId", b.deviceID)
	}
	if b.apiKey != "" {
		query.Set("api_key", b.apiKey)
	}
	if info.MediaSourceID != "" {
		query.Set("MediaSourceId", info.MediaSourceID)
	}
	if info.LiveStreamID != "" {
		query.Set("LiveStreamId", info.LiveStreamID)
	}
	query.Set("Static", strconv.FormatBool(info.IsDirectStream))
	if info.AudioStreamIndex >= 0 {
		query.Set("AudioStreamIndex", strconv.Itoa(info.AudioStreamIndex))
	}
	if info.SubtitleStreamIndex >= 0 {
		query.Set("SubtitleStreamIndex", strconv.Itoa(info.SubtitleStreamIndex))
	}
	if !info.IsDirectStream {
		// Transcodes restart server-side at the requested offset.
		query.Set("StartTimeTicks", strconv.FormatInt(info.StartPositionTicks, 10))
	}

	return b.serverURL + path + "?" + query.Encode()
}

// PhotoURL renders a direct image URL for a photo item.
func (b *Builder) PhotoURL(itemID string, maxWidth, maxHeight int) string {
	if itemID == "" {
		return ""
	}
	query := url.Values{}
	if b.apiKey != "" {
		query.Set("api_key", b.apiKey)
	}
	if maxWidth > 0 {
		query.Set("MaxWidth", strconv.Itoa(maxWidth))
	}
	if maxHeight > 0 {
		query.Set("MaxHeight", strconv.Itoa(maxHeight))
	}
	u := b.serverURL + "/Items/" + itemID + "/Images/Primary"
	if encoded := query.Encode(); encoded != "" {
		u += "?" + encoded
	}
	return u
}

// Params is what ParseStreamParams recovers from a stream URL.
type Params struct {
	ItemID              string
	MediaSourceID       string
	LiveStreamID        string
	IsDirectStream      bool
	AudioStreamIndex    int // -1 when absent
	SubtitleStreamIndex int // -1 when absent
	StartPositionTicks  int64
}

// GetItemID extracts the item identifier from a server URL. The id follows
// an /Items/, /Videos/ or /Audio/ path segment.
func GetItemID(raw string) string {
	parsed, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	segments := strings.Split(strings.Trim(parsed.Path, "/"), "/")
	for i := 0; i < len(segments)-1; i++ {
		switch strings.ToLower(segments[i]) {
		case "items", "videos", "audio":
			return segments[i+1]
		}
	}
	return ""
}

// ParseStreamParams recovers stream parameters from a URL the builder
// produced. Query keys are matched case-insensitively because renderers
// occasionally mangle case when echoing URLs back.
func ParseStreamParams(raw string) (Params, error) {
	params := Params{AudioStreamIndex: -1, SubtitleStreamIndex: -1}

	parsed, err := url.Parse(raw)
	if err != nil {
		return params, fmt.Errorf("parse stream url: %w", err)
	}
	params.ItemID = GetItemID(raw)

	for key, values := range parsed.Query() {
		if len(values) == 0 {
			continue
		}
		value := values[len(values)-1]
		switch {
		case strings.EqualFold(key, "MediaSourceId"):
			params.MediaSourceID = value
		case strings.EqualFold(key, "LiveStreamId"):
			params.LiveStreamID = value
		case strings.EqualFold(key, "Static"):
			params.IsDirectStream = strings.EqualFold(value, "true")
		case strings.EqualFold(key, "AudioStreamIndex"):
			if n, perr := strconv.Atoi(value); perr == nil {
				params.AudioStreamIndex = n
			}
		case strings.EqualFold(key, "SubtitleStreamIndex"):
			if n, perr := strconv.Atoi(value); perr == nil {
				params.SubtitleStreamIndex = n
			}
		case strings.EqualFold(key, "StartTimeTicks"), strings.EqualFold(key, "StartPositionTicks"):
			if n, perr := strconv.ParseInt(value, 10, 64); perr == nil {
				params.StartPositionTicks = n
			}
		}
	}
	return params, nil
}
