// Package devicemap renders a top-down or isometric map of simulated devices
// for web browsers, terminals and Smart TVs.
package devicemap

import (
	"errors"
	"fmt"
	"math"
)

// ErrMalformedDevice is returned when a device lacks a position or orientation.
var ErrMalformedDevice = errors.New("malformed device")

// Device represents a single simulated device as reported by the simulation.
type Device struct {
	Name        string       `json:"name" yaml:"name"`
	Visible     bool         `json:"visible" yaml:"visible"`
	Position    *Position    `json:"position,omitempty" yaml:"position,omitempty"`
	Orientation *Orientation `json:"orientation,omitempty" yaml:"orientation,omitempty"`
}

// Position is a location in simulation units.
type Position struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
	Z float64 `json:"z" yaml:"z"`
}

// Orientation holds angles in degrees.
type Orientation struct {
	Yaw   float64 `json:"yaw" yaml:"yaw"`
	Pitch float64 `json:"pitch" yaml:"pitch"`
	Roll  float64 `json:"roll" yaml:"roll"`
}

// Validate reports whether the device carries everything needed to draw it.
func (d Device) Validate() error {
	var missing []string
	if d.Position == nil {
		missing = append(missing, "position")
	}
	if d.Orientation == nil {
		missing = append(missing, "orientation")
	}
	if len(missing) > 0 {
		return fmt.Errorf("device %q: missing %v: %w", d.Name, missing, ErrMalformedDevice)
	}
	for _, v := range []float64{
		d.Position.X, d.Position.Y, d.Position.Z,
		d.Orientation.Yaw, d.Orientation.Pitch, d.Orientation.Roll,
	} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("device %q: non-finite coordinate: %w", d.Name, ErrMalformedDevice)
		}
	}
	return nil
}

// Clone returns a deep copy of the device.
func (d Device) Clone() Device {
	c := d
	if d.Position != nil {
		p := *d.Position
		c.Position = &p
	}
	if d.Orientation != nil {
		o := *d.Orientation
		c.Orientation = &o
	}
	return c
}

// DeviceCollection is an ordered list of devices.
// Order matters: it decides the colour each visible device gets.
// Names are not deduplicated.
type DeviceCollection []Device

// Visible returns the visible devices in their original order.
func (dc DeviceCollection) Visible() DeviceCollection {
	result := make(DeviceCollection, 0, len(dc))
	for _, d := range dc {
		if d.Visible {
			result = append(result, d)
		}
	}
	return result
}

// Clone returns a deep copy of the collection.
func (dc DeviceCollection) Clone() DeviceCollection {
	if dc == nil {
		return nil
	}
	result := make(DeviceCollection, len(dc))
	for i, d := range dc {
		result[i] = d.Clone()
	}
	return result
}
