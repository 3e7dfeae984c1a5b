package stream

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/strefethen/dlna-hub-go/internal/device"
)

func TestStreamURLRoundTrip(t *testing.T) {
	b := NewBuilder("http://hub:8096/", "device-1", "key-1")

	t.Run("transcoded video", func(t *testing.T) {
		u := b.StreamURL(Info{
			ItemID:              "d3adbeefcafe4e55a11ce5c0ffee4a11",
			MediaType:           device.MediaTypeVideo,
			Container:           "mp4",
			MediaSourceID:       "src-9",
			IsDirectStream:      false,
			AudioStreamIndex:    1,
			SubtitleStreamIndex: 3,
			StartPositionTicks:  5_000_000_000,
		})
		require.Contains(t, u, "http://hub:8096/Videos/d3adbeefcafe4e55a11ce5c0ffee4a11/stream.mp4?")

		params, err := ParseStreamParams(u)
		require.NoError(t, err)
		require.Equal(t, "d3adbeefcafe4e55a11ce5c0ffee4a11", params.ItemID)
		require.Equal(t, "src-9", params.MediaSourceID)
		require.False(t, params.IsDirectStream)
		require.Equal(t, 1, params.AudioStreamIndex)
		require.Equal(t, 3, params.SubtitleStreamIndex)
		require.Equal(t, int64(5_000_000_000), params.StartPositionTicks)
	})

	t.Run("direct audio", func(t *testing.T) {
		u := b.StreamURL(Info{
			ItemID:              "track-7",
			MediaType:           device.MediaTypeAudio,
			Container:           "mp3",
			MediaSourceID:       "src-7",
			IsDirectStream:      true,
			AudioStreamIndex:    -1,
			SubtitleStreamIndex: -1,
			StartPositionTicks:  12345,
		})
		require.Contains(t, u, "/Audio/track-7/stream.mp3?")
		require.NotContains(t, u, "StartTimeTicks", "direct streams seek on the renderer")

		params, err := ParseStreamParams(u)
		require.NoError(t, err)
		require.True(t, params.IsDirectStream)
		require.Equal(t, -1, params.AudioStreamIndex)
		require.Equal(t, -1, params.SubtitleStreamIndex)
		require.Zero(t, params.StartPositionTicks)
	})

	t.Run("live stream id survives", func(t *testing.T) {
		u := b.StreamURL(Info{
			ItemID:              "live-1",
			MediaType:           device.MediaTypeVideo,
			LiveStreamID:        "ls-22",
			AudioStreamIndex:    -1,
			SubtitleStreamIndex: -1,
		})
		params, err := ParseStreamParams(u)
		require.NoError(t, err)
		require.Equal(t, "ls-22", params.LiveStreamID)
	})
}

func TestGetItemID(t *testing.T) {
	cases := map[string]string{
		"http://hub/Items/abc123?api_key=k":           "abc123",
		"http://hub/Videos/GUID-1/stream.mkv?x=1":     "GUID-1",
		"http://hub/Audio/9f2/stream.mp3":             "9f2",
		"http://hub/items/lower/Images/Primary":       "lower",
		"http://hub/Sessions/7/Playing":               "",
		"http://hub/":                                 "",
		"://bad url":                                  "",
	}
	for raw, want := range cases {
		require.Equal(t, want, GetItemID(raw), "url %s", raw)
	}
}

func TestPhotoURL(t *testing.T) {
	b := NewBuilder("http://hub:8096", "", "key-1")
	u := b.PhotoURL("photo-3", 1920, 1080)
	require.Contains(t, u, "/Items/photo-3/Images/Primary?")
	require.Contains(t, u, "MaxWidth=1920")
	require.Equal(t, "photo-3", GetItemID(u))

	require.Empty(t, b.PhotoURL("", 0, 0))
	require.Empty(t, NewBuilder("http://hub", "", "").StreamURL(Info{
		ItemID: "x", MediaType: device.MediaTypePhoto,
	}))
}
