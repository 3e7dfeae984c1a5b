package device

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseHHMMSS(t *testing.T) {
	t.Run("full form", func(t *testing.T) {
		ticks, ok := ParseHHMMSS("1:02:03")
		require.True(t, ok)
		require.Equal(t, int64(3723)*TicksPerSecond, ticks)
	})

	t.Run("minutes only", func(t *testing.T) {
		ticks, ok := ParseHHMMSS("02:30")
		require.True(t, ok)
		require.Equal(t, int64(150)*TicksPerSecond, ticks)
	})

	t.Run("fractional seconds", func(t *testing.T) {
		ticks, ok := ParseHHMMSS("0:00:01.500")
		require.True(t, ok)
		require.Equal(t, TicksPerSecond+TicksPerSecond/2, ticks)
	})

	t.Run("renderer placeholders", func(t *testing.T) {
		for _, value := range []string{"", "NOT_IMPLEMENTED", "END_OF_MEDIA:BAD"} {
			_, ok := ParseHHMMSS(value)
			require.False(t, ok, "value %q", value)
		}
	})
}

func TestFormatTicks(t *testing.T) {
	require.Equal(t, "01:02:03", FormatTicks(int64(3723)*TicksPerSecond))
	require.Equal(t, "00:00:00", FormatTicks(-5))

	// Formatting truncates sub-second precision; parsing it back lands on
	// the whole second.
	parsed, ok := ParseHHMMSS(FormatTicks(90*TicksPerSecond + 123))
	require.True(t, ok)
	require.Equal(t, 90*TicksPerSecond, parsed)
}
