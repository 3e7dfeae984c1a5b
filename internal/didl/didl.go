// Package didl renders the DIDL-Lite metadata documents renderers expect
// alongside a transport URI. Most devices only read the class and res
// elements; a few refuse to play without a title.
package didl

import (
	"fmt"
	"html"
	"strings"

	"github.com/strefethen/dlna-hub-go/internal/device"
)

// Item is the metadata for one DIDL-Lite entry.
type Item struct {
	ID            string
	ParentID      string // "-1" when empty
	Title         string
	Creator       string
	Album         string
	MediaType     device.MediaType
	URL           string
	MimeType      string // part of protocolInfo; derived from media type when empty
	Features      string // contentFeatures.dlna.org value, fourth protocolInfo field
	DurationTicks int64
}

// Build renders the DIDL-Lite document for an item.
func Build(item Item) string {
	parentID := item.ParentID
	if parentID == "" {
		parentID = "-1"
	}
	title := item.Title
	if title == "" {
		title = item.ID
	}

	var b strings.Builder
	b.WriteString(`<DIDL-Lite xmlns="urn:schemas-upnp-org:metadata-1-0/DIDL-Lite/"` +
		` xmlns:dc="http://purl.org/dc/elements/1.1/"` +
		` xmlns:upnp="urn:schemas-upnp-org:metadata-1-0/upnp/"` +
		` xmlns:dlna="urn:schemas-dlna-org:metadata-1-0/">`)
	fmt.Fprintf(&b, `<item id="%s" parentID="%s" restricted="1">`,
		escapeAttr(item.ID), escapeAttr(parentID))
	fmt.Fprintf(&b, "<dc:title>%s</dc:title>", escapeText(title))
	if item.Creator != "" {
		fmt.Fprintf(&b, "<dc:creator>%s</dc:creator>", escapeText(item.Creator))
		fmt.Fprintf(&b, "<upnp:artist>%s</upnp:artist>", escapeText(item.Creator))
	}
	if item.Album != "" {
		fmt.Fprintf(&b, "<upnp:album>%s</upnp:album>", escapeText(item.Album))
	}
	fmt.Fprintf(&b, "<upnp:class>%s</upnp:class>", upnpClass(item.MediaType))
	if item.URL != "" {
		b.WriteString(`<res protocolInfo="` + escapeAttr(protocolInfo(item)) + `"`)
		if item.DurationTicks > 0 {
			fmt.Fprintf(&b, ` duration="%s"`, device.FormatTicks(item.DurationTicks))
		}
		b.WriteString(">")
		b.WriteString(escapeText(item.URL))
		b.WriteString("</res>")
	}
	b.WriteString("</item></DIDL-Lite>")
	return b.String()
}

// Encode HTML-encodes a document for profiles that expect the metadata
// argument pre-escaped on the wire.
func Encode(doc string) string {
	return html.EscapeString(doc)
}

func upnpClass(mediaType device.MediaType) string {
	switch mediaType {
	case device.MediaTypeAudio:
		return "object.item.audioItem.musicTrack"
	case device.MediaTypePhoto:
		return "object.item.imageItem.photo"
	default:
		return "object.item.videoItem"
	}
}

func protocolInfo(item Item) string {
	mime := item.MimeType
	if mime == "" {
		switch item.MediaType {
		case device.MediaTypeAudio:
			mime = "audio/mpeg"
		case device.MediaTypePhoto:
			mime = "image/jpeg"
		default:
			mime = "video/mp4"
		}
	}
	features := item.Features
	if features == "" {
		features = "*"
	}
	return "http-get:*:" + mime + ":" + features
}

func escapeText(value string) string {
	replacer := strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")
	return replacer.Replace(value)
}

func escapeAttr(value string) string {
	replacer := strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;", `"`, "&quot;")
	return replacer.Replace(value)
}
