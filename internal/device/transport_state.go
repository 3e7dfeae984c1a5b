package device

import "strings"

// TransportState is the renderer-reported AVTransport state.
type TransportState string

const (
	StateUnknown         TransportState = ""
	StateStopped         TransportState = "STOPPED"
	StatePlaying         TransportState = "PLAYING"
	StateTransitioning   TransportState = "TRANSITIONING"
	StatePaused          TransportState = "PAUSED"
	StatePausedPlayback  TransportState = "PAUSED_PLAYBACK"
	StatePausedRecording TransportState = "PAUSED_RECORDING"
	StateRecording       TransportState = "RECORDING"
	StateNoMediaPresent  TransportState = "NO_MEDIA_PRESENT"
	StateError           TransportState = "ERROR"
)

// ParseTransportState normalizes a renderer-reported state string.
// Unrecognized values pass through uppercased so logs show what the
// device actually said.
func ParseTransportState(value string) TransportState {
	return TransportState(strings.ToUpper(strings.TrimSpace(value)))
}

// IsPlaying reports active playback.
func (s TransportState) IsPlaying() bool {
	return s == StatePlaying
}

// IsPaused reports either paused variant.
func (s TransportState) IsPaused() bool {
	return s == StatePaused || s == StatePausedPlayback
}

// IsStopped reports the stopped state.
func (s TransportState) IsStopped() bool {
	return s == StateStopped
}
