package devicemap_test

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nimsforest/devicemap"
)

func newDevice(name string, visible bool, x, y, z float64) devicemap.Device {
	return devicemap.Device{
		Name:        name,
		Visible:     visible,
		Position:    &devicemap.Position{X: x, Y: y, Z: z},
		Orientation: &devicemap.Orientation{},
	}
}

func TestDevice(t *testing.T) {
	t.Run("well formed device is valid", func(t *testing.T) {
		d := newDevice("d1", true, 1, 2, 0)
		assert.NoError(t, d.Validate())
	})
	t.Run("device without position is malformed", func(t *testing.T) {
		d := devicemap.Device{Name: "d1", Orientation: &devicemap.Orientation{}}
		assert.ErrorIs(t, d.Validate(), devicemap.ErrMalformedDevice)
	})
	t.Run("device without orientation is malformed", func(t *testing.T) {
		d := devicemap.Device{Name: "d1", Position: &devicemap.Position{}}
		assert.ErrorIs(t, d.Validate(), devicemap.ErrMalformedDevice)
	})
	t.Run("device with non-finite coordinates is malformed", func(t *testing.T) {
		for _, v := range []float64{math.NaN(), math.Inf(1), math.Inf(-1)} {
			d := newDevice("d1", true, v, 0, 0)
			assert.ErrorIs(t, d.Validate(), devicemap.ErrMalformedDevice)
			d = newDevice("d1", true, 0, 0, 0)
			d.Orientation.Yaw = v
			assert.ErrorIs(t, d.Validate(), devicemap.ErrMalformedDevice)
		}
	})
	t.Run("clone does not share position", func(t *testing.T) {
		d := newDevice("d1", true, 1, 2, 0)
		c := d.Clone()
		c.Position.X = 99
		assert.Equal(t, 1.0, d.Position.X)
	})
}

func TestDeviceCollection(t *testing.T) {
	t.Run("visible keeps order and drops hidden devices", func(t *testing.T) {
		dc := devicemap.DeviceCollection{
			newDevice("a", true, 0, 0, 0),
			newDevice("b", false, 0, 0, 0),
			newDevice("c", true, 0, 0, 0),
		}
		got := dc.Visible()
		require.Len(t, got, 2)
		assert.Equal(t, "a", got[0].Name)
		assert.Equal(t, "c", got[1].Name)
	})
	t.Run("clone of nil is nil", func(t *testing.T) {
		var dc devicemap.DeviceCollection
		assert.Nil(t, dc.Clone())
	})
	t.Run("duplicate names are kept", func(t *testing.T) {
		dc := devicemap.DeviceCollection{newDevice("a", true, 0, 0, 0), newDevice("a", true, 1, 1, 0)}
		assert.Len(t, dc.Clone(), 2)
	})
}

func TestParseDevices(t *testing.T) {
	t.Run("can parse yaml", func(t *testing.T) {
		data := []byte(`
devices:
  - name: d1
    visible: true
    position: {x: 1, y: 2, z: 0.5}
    orientation: {yaw: 90, pitch: 0, roll: 10}
  - name: d2
    visible: false
`)
		got, err := devicemap.ParseDevices(data)
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, "d1", got[0].Name)
		assert.True(t, got[0].Visible)
		assert.Equal(t, devicemap.Position{X: 1, Y: 2, Z: 0.5}, *got[0].Position)
		assert.Equal(t, devicemap.Orientation{Yaw: 90, Roll: 10}, *got[0].Orientation)
		assert.Nil(t, got[1].Position)
	})
	t.Run("can parse json", func(t *testing.T) {
		data := []byte(`{"devices": [{"name": "d1", "visible": true, "position": {"x": 3, "y": 4, "z": 0}}]}`)
		got, err := devicemap.ParseDevices(data)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, 3.0, got[0].Position.X)
	})
	t.Run("empty document has no devices", func(t *testing.T) {
		got, err := devicemap.ParseDevices([]byte("devices: []"))
		require.NoError(t, err)
		assert.Empty(t, got)
	})
	t.Run("should return error for broken document", func(t *testing.T) {
		_, err := devicemap.ParseDevices([]byte("devices: [name: {"))
		assert.Error(t, err)
	})
}

func TestStateProviders(t *testing.T) {
	t.Run("static provider returns copies", func(t *testing.T) {
		p := devicemap.NewStaticStateProvider(devicemap.DeviceCollection{newDevice("d1", true, 1, 1, 0)})
		got, err := p.GetDevices()
		require.NoError(t, err)
		got[0].Position.X = 42
		again, _ := p.GetDevices()
		assert.Equal(t, 1.0, again[0].Position.X)
	})
	t.Run("file provider reads the file on every call", func(t *testing.T) {
		// given
		path := filepath.Join(t.TempDir(), "devices.yaml")
		require.NoError(t, os.WriteFile(path, []byte("devices:\n  - name: d1\n    visible: true\n"), 0o600))
		p := devicemap.NewFileStateProvider(path)
		// when
		got, err := p.GetDevices()
		// then
		require.NoError(t, err)
		assert.Len(t, got, 1)
		// when
		require.NoError(t, os.WriteFile(path, []byte("devices: []\n"), 0o600))
		got, err = p.GetDevices()
		// then
		require.NoError(t, err)
		assert.Empty(t, got)
	})
	t.Run("file provider reports missing file", func(t *testing.T) {
		p := devicemap.NewFileStateProvider(filepath.Join(t.TempDir(), "missing.yaml"))
		_, err := p.GetDevices()
		assert.ErrorIs(t, err, os.ErrNotExist)
	})
}
