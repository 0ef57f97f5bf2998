package devicemap_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nimsforest/devicemap"
)

type recordingObserver struct {
	name  string
	calls []devicemap.DeviceCollection
	order *[]string
	err   error
	panic bool
}

func (o *recordingObserver) OnNotify(devices devicemap.DeviceCollection) error {
	o.calls = append(o.calls, devices)
	if o.order != nil {
		*o.order = append(*o.order, o.name)
	}
	if o.panic {
		panic("boom")
	}
	return o.err
}

type sliceObserver []int

func (sliceObserver) OnNotify(devicemap.DeviceCollection) error { return nil }

func TestRegistry(t *testing.T) {
	t.Run("new registry is empty", func(t *testing.T) {
		r := devicemap.NewRegistry()
		assert.Empty(t, r.Devices())
		assert.Equal(t, 0, r.ObserverCount())
	})
	t.Run("observer registered twice is notified once", func(t *testing.T) {
		// given
		r := devicemap.NewRegistry()
		o := &recordingObserver{}
		r.RegisterObserver(o)
		r.RegisterObserver(o)
		// when
		r.Update(devicemap.DeviceCollection{newDevice("d1", true, 1, 2, 0)})
		// then
		assert.Equal(t, 1, r.ObserverCount())
		assert.Len(t, o.calls, 1)
	})
	t.Run("removing an unknown observer does nothing", func(t *testing.T) {
		r := devicemap.NewRegistry()
		r.RegisterObserver(&recordingObserver{})
		r.RemoveObserver(&recordingObserver{})
		assert.Equal(t, 1, r.ObserverCount())
	})
	t.Run("removed observer is not notified", func(t *testing.T) {
		r := devicemap.NewRegistry()
		o := &recordingObserver{}
		r.RegisterObserver(o)
		r.RemoveObserver(o)
		r.Update(devicemap.DeviceCollection{})
		assert.Empty(t, o.calls)
		assert.Equal(t, 0, r.ObserverCount())
	})
	t.Run("observer of a non-comparable type is ignored", func(t *testing.T) {
		r := devicemap.NewRegistry()
		assert.NotPanics(t, func() {
			r.RegisterObserver(sliceObserver{1})
			r.RemoveObserver(sliceObserver{1})
		})
		assert.Equal(t, 0, r.ObserverCount())
	})
	t.Run("nil observer is ignored", func(t *testing.T) {
		r := devicemap.NewRegistry()
		r.RegisterObserver(nil)
		assert.Equal(t, 0, r.ObserverCount())
	})
	t.Run("observers are notified in registration order", func(t *testing.T) {
		var order []string
		r := devicemap.NewRegistry()
		for _, n := range []string{"a", "b", "c"} {
			r.RegisterObserver(&recordingObserver{name: n, order: &order})
		}
		r.Update(devicemap.DeviceCollection{})
		assert.Equal(t, []string{"a", "b", "c"}, order)
	})
	t.Run("every observer receives the full collection", func(t *testing.T) {
		r := devicemap.NewRegistry()
		o := &recordingObserver{}
		r.RegisterObserver(o)
		r.Update(devicemap.DeviceCollection{newDevice("a", true, 0, 0, 0)})
		r.Update(devicemap.DeviceCollection{newDevice("b", true, 0, 0, 0), newDevice("c", false, 0, 0, 0)})
		require.Len(t, o.calls, 2)
		assert.Len(t, o.calls[1], 2)
		assert.Equal(t, "b", o.calls[1][0].Name)
	})
	t.Run("failing observers do not stop the fan-out", func(t *testing.T) {
		// given
		var order []string
		r := devicemap.NewRegistry()
		r.RegisterObserver(&recordingObserver{name: "a", order: &order, err: errors.New("failed")})
		r.RegisterObserver(&recordingObserver{name: "b", order: &order, panic: true})
		last := &recordingObserver{name: "c", order: &order}
		r.RegisterObserver(last)
		// when
		r.Update(devicemap.DeviceCollection{newDevice("d1", true, 0, 0, 0)})
		// then
		assert.Equal(t, []string{"a", "b", "c"}, order)
		assert.Len(t, last.calls, 1)
	})
	t.Run("observer can remove itself while notified", func(t *testing.T) {
		r := devicemap.NewRegistry()
		var calls int
		var f devicemap.ObserverFunc
		f = func(devicemap.DeviceCollection) error {
			calls++
			r.RemoveObserver(&f)
			return nil
		}
		r.RegisterObserver(&f)
		r.Update(devicemap.DeviceCollection{})
		r.Update(devicemap.DeviceCollection{})
		assert.Equal(t, 1, calls)
		assert.Equal(t, 0, r.ObserverCount())
	})
	t.Run("stored devices do not alias the caller's collection", func(t *testing.T) {
		r := devicemap.NewRegistry()
		dc := devicemap.DeviceCollection{newDevice("d1", true, 1, 2, 0)}
		r.Update(dc)
		dc[0].Position.X = 9
		got := r.Devices()
		assert.Equal(t, 1.0, got[0].Position.X)
		got[0].Name = "changed"
		assert.Equal(t, "d1", r.Devices()[0].Name)
	})
	t.Run("nil update stores an empty collection", func(t *testing.T) {
		r := devicemap.NewRegistry()
		o := &recordingObserver{}
		r.RegisterObserver(o)
		r.Update(nil)
		require.Len(t, o.calls, 1)
		assert.NotNil(t, o.calls[0])
		assert.Empty(t, o.calls[0])
	})
	t.Run("default registry is shared", func(t *testing.T) {
		assert.Same(t, devicemap.Default(), devicemap.Default())
	})
}
