package device

import "math"

// VolumeRange maps the 0..100 user scale onto whatever range the renderer
// advertises in its RenderingControl SCPD. Most devices use 0..100, but
// receivers report dB-like ranges and some TVs cap at 30.
type VolumeRange struct {
	Min int
	Max int
}

// DefaultVolumeRange is assumed until the SCPD says otherwise.
var DefaultVolumeRange = VolumeRange{Min: 0, Max: 100}

// NewVolumeRange builds a range, falling back to the default when the
// advertised bounds are unusable.
func NewVolumeRange(min, max int) VolumeRange {
	if max <= min {
		return DefaultVolumeRange
	}
	return VolumeRange{Min: min, Max: max}
}

// Step is one volume increment, a twentieth of the range.
func (r VolumeRange) Step() int {
	step := int(math.Round(float64(r.Max-r.Min) / 20))
	if step < 1 {
		step = 1
	}
	return step
}

// DeviceValue converts a 0..100 user volume to the device scale.
func (r VolumeRange) DeviceValue(user int) int {
	if user < 0 {
		user = 0
	}
	if user > 100 {
		user = 100
	}
	return int(math.Round(float64(r.Max-r.Min)*float64(user)/100)) + r.Min
}

// UserValue converts a device-scale volume back to 0..100.
func (r VolumeRange) UserValue(device int) int {
	if device <= r.Min {
		return 0
	}
	if device >= r.Max {
		return 100
	}
	return int(math.Round(float64(device-r.Min) * 100 / float64(r.Max-r.Min)))
}
