package device

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// TicksPerSecond converts between 100-nanosecond ticks and seconds.
const TicksPerSecond int64 = 10_000_000

// TicksToDuration converts ticks to a time.Duration.
func TicksToDuration(ticks int64) time.Duration {
	return time.Duration(ticks * 100)
}

// DurationToTicks converts a time.Duration to ticks.
func DurationToTicks(d time.Duration) int64 {
	return int64(d) / 100
}

// FormatTicks renders ticks as hh:mm:ss for REL_TIME seek targets.
func FormatTicks(ticks int64) string {
	if ticks < 0 {
		ticks = 0
	}
	total := ticks / TicksPerSecond
	return fmt.Sprintf("%02d:%02d:%02d", total/3600, (total/60)%60, total%60)
}

// ParseHHMMSS parses renderer time strings ("1:02:03", "02:03", "0:00:01.500")
// into ticks. Returns false for placeholders like NOT_IMPLEMENTED.
func ParseHHMMSS(value string) (int64, bool) {
	value = strings.TrimSpace(value)
	if value == "" || strings.EqualFold(value, "NOT_IMPLEMENTED") {
		return 0, false
	}

	// Fractional seconds, when present, ride on the last segment.
	var fractionTicks int64
	if dot := strings.IndexByte(value, '.'); dot >= 0 {
		fraction, err := strconv.ParseFloat("0"+value[dot:], 64)
		if err != nil {
			return 0, false
		}
		fractionTicks = int64(fraction * float64(TicksPerSecond))
		value = value[:dot]
	}

	parts := strings.Split(value, ":")
	if len(parts) > 3 {
		return 0, false
	}
	var seconds int64
	for _, part := range parts {
		n, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64)
		if err != nil || n < 0 {
			return 0, false
		}
		seconds = seconds*60 + n
	}
	return seconds*TicksPerSecond + fractionTicks, true
}
