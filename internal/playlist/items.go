package playlist

import (
	"strings"

	"github.com/strefethen/dlna-hub-go/internal/device"
	"github.com/strefethen/dlna-hub-go/internal/didl"
	"github.com/strefethen/dlna-hub-go/internal/profile"
	"github.com/strefethen/dlna-hub-go/internal/stream"
)

// createItem renders one playlist entry for the controller's device profile.
// Returns nil when the item cannot be routed to this renderer; callers drop
// it silently per the play-request contract.
func (c *Controller) createItem(base *BaseItem, audioIdx, subIdx int, mediaSourceID string, startTicks int64) *Item {
	if base == nil {
		return nil
	}

	if base.MediaType == device.MediaTypePhoto {
		url := c.builder.PhotoURL(base.ID, 0, 0)
		if url == "" {
			return nil
		}
		doc := didl.Build(didl.Item{
			ID:        base.ID,
			Title:     base.Name,
			MediaType: base.MediaType,
			URL:       url,
			MimeType:  base.MimeType,
		})
		return &Item{
			Base:                base,
			StreamURL:           url,
			Didl:                c.encodeForProfile(doc),
			MediaType:           base.MediaType,
			IsDirectStream:      true,
			AudioStreamIndex:    -1,
			SubtitleStreamIndex: -1,
		}
	}

	direct := c.canDirectStream(base)
	if mediaSourceID == "" {
		mediaSourceID = base.MediaSourceID
	}

	transcodeStart := startTicks
	if direct {
		// Direct streams seek on the renderer, not in the URL.
		transcodeStart = 0
	}
	url := c.builder.StreamURL(stream.Info{
		ItemID:              base.ID,
		MediaType:           base.MediaType,
		Container:           base.Container,
		MediaSourceID:       mediaSourceID,
		IsDirectStream:      direct,
		AudioStreamIndex:    audioIdx,
		SubtitleStreamIndex: subIdx,
		StartPositionTicks:  transcodeStart,
	})
	if url == "" {
		return nil
	}
	url += "&dlna=true"

	features := featuresFromProfile(c.profile)
	doc := didl.Build(didl.Item{
		ID:            base.ID,
		Title:         base.Name,
		Creator:       base.Artist,
		Album:         base.Album,
		MediaType:     base.MediaType,
		URL:           url,
		MimeType:      base.MimeType,
		Features:      features,
		DurationTicks: base.RunTimeTicks,
	})

	return &Item{
		Base:                base,
		StreamURL:           url,
		Didl:                c.encodeForProfile(doc),
		ContentFeatures:     features,
		MediaType:           base.MediaType,
		StartPositionTicks:  startTicks,
		IsDirectStream:      direct,
		AudioStreamIndex:    audioIdx,
		SubtitleStreamIndex: subIdx,
	}
}

func (c *Controller) encodeForProfile(doc string) string {
	if c.profile != nil && c.profile.RequiresEncoding {
		return didl.Encode(doc)
	}
	return doc
}

var containerMime = map[string]string{
	"mp4":  "video/mp4",
	"mkv":  "video/x-matroska",
	"avi":  "video/x-msvideo",
	"ts":   "video/mp2t",
	"webm": "video/webm",
	"mp3":  "audio/mpeg",
	"flac": "audio/flac",
	"aac":  "audio/aac",
	"ogg":  "audio/ogg",
	"wav":  "audio/wav",
	"m4a":  "audio/mp4",
	"jpg":  "image/jpeg",
	"jpeg": "image/jpeg",
	"png":  "image/png",
}

// canDirectStream reports whether the profile accepts the item's container
// as-is. A profile without protocol info accepts everything directly.
func (c *Controller) canDirectStream(base *BaseItem) bool {
	if c.profile == nil || c.profile.ProtocolInfo == "" {
		return true
	}
	mime := base.MimeType
	if mime == "" {
		mime = containerMime[strings.ToLower(base.Container)]
	}
	if mime == "" {
		return false
	}
	return strings.Contains(strings.ToLower(c.profile.ProtocolInfo), strings.ToLower(mime))
}

// featuresFromProfile extracts the contentFeatures.dlna.org value, the fourth
// field of the profile's protocolInfo.
func featuresFromProfile(p *profile.DeviceProfile) string {
	if p == nil || p.ProtocolInfo == "" {
		return "DLNA.ORG_OP=01"
	}
	parts := strings.SplitN(p.ProtocolInfo, ":", 4)
	if len(parts) == 4 && parts[3] != "" && parts[3] != "*" {
		return parts[3]
	}
	return "DLNA.ORG_OP=01"
}
