package device

import (
	"net/url"
	"regexp"
)

// MediaType classifies what a playlist item renders as.
type MediaType string

const (
	MediaTypeAudio MediaType = "Audio"
	MediaTypeVideo MediaType = "Video"
	MediaTypePhoto MediaType = "Photo"
)

// UBase identifies the media the renderer reports as loaded.
// Equality is on URL; an absent URL means no media.
type UBase struct {
	ID       string
	URL      string
	Metadata string
}

// IsEmpty reports whether the renderer has nothing loaded.
func (u *UBase) IsEmpty() bool {
	return u == nil || u.URL == ""
}

// Same reports whether two media identities refer to the same loaded item.
func (u *UBase) Same(other *UBase) bool {
	if u.IsEmpty() || other.IsEmpty() {
		return u.IsEmpty() && other.IsEmpty()
	}
	if u.ID != "" && other.ID != "" {
		return u.ID == other.ID
	}
	return u.URL == other.URL
}

// MediaData is a media change request handed to the session queue.
type MediaData struct {
	URL           string
	Headers       string // contentFeatures.dlna.org value
	Metadata      string // DIDL-Lite document
	MediaType     MediaType
	ResetPlayback bool
	PositionTicks int64
}

var startTimeTicksRe = regexp.MustCompile(`(?i)StartTimeTicks=\d*`)

// StripStartTime removes the StartTimeTicks query parameter so two transcode
// URLs for the same item at different offsets compare equal.
func StripStartTime(raw string) string {
	if raw == "" {
		return ""
	}
	stripped := startTimeTicksRe.ReplaceAllString(raw, "")
	if parsed, err := url.Parse(stripped); err == nil {
		query := parsed.Query()
		parsed.RawQuery = query.Encode()
		return parsed.String()
	}
	return stripped
}
