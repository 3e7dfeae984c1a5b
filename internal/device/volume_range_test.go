package device

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestVolumeRange(t *testing.T) {
	t.Run("standard range", func(t *testing.T) {
		r := NewVolumeRange(0, 100)
		require.Equal(t, 5, r.Step())
		require.Equal(t, 50, r.DeviceValue(50))
		require.Equal(t, 50, r.UserValue(50))
	})

	t.Run("narrow tv range", func(t *testing.T) {
		r := NewVolumeRange(0, 30)
		require.Equal(t, 2, r.Step()) // round(30/20)
		require.Equal(t, 15, r.DeviceValue(50))
		require.Equal(t, 100, r.UserValue(30))
		require.Equal(t, 0, r.UserValue(0))
	})

	t.Run("offset receiver range", func(t *testing.T) {
		r := NewVolumeRange(-80, 20)
		require.Equal(t, 5, r.Step())
		require.Equal(t, -80, r.DeviceValue(0))
		require.Equal(t, 20, r.DeviceValue(100))
		require.Equal(t, -30, r.DeviceValue(50))
	})

	t.Run("clamps user input", func(t *testing.T) {
		r := NewVolumeRange(0, 100)
		require.Equal(t, 0, r.DeviceValue(-10))
		require.Equal(t, 100, r.DeviceValue(150))
	})

	t.Run("degenerate bounds fall back", func(t *testing.T) {
		require.Equal(t, DefaultVolumeRange, NewVolumeRange(50, 50))
		require.Equal(t, DefaultVolumeRange, NewVolumeRange(100, 0))
	})
}
