package devicemap

import (
	"fmt"
	"os"

	"github.com/goccy/go-yaml"
)

// StateProvider provides the current device collection of a simulation.
type StateProvider interface {
	// GetDevices returns the current devices.
	GetDevices() (DeviceCollection, error)
}

// StaticStateProvider wraps a fixed DeviceCollection.
type StaticStateProvider struct {
	devices DeviceCollection
}

// NewStaticStateProvider creates a StateProvider from a fixed DeviceCollection.
func NewStaticStateProvider(devices DeviceCollection) *StaticStateProvider {
	return &StaticStateProvider{devices: devices}
}

// GetDevices implements StateProvider.
func (p *StaticStateProvider) GetDevices() (DeviceCollection, error) {
	return p.devices.Clone(), nil
}

// CallbackStateProvider calls a function to get devices.
type CallbackStateProvider struct {
	fn func() (DeviceCollection, error)
}

// NewCallbackStateProvider creates a StateProvider from a callback function.
func NewCallbackStateProvider(fn func() (DeviceCollection, error)) *CallbackStateProvider {
	return &CallbackStateProvider{fn: fn}
}

// GetDevices implements StateProvider.
func (p *CallbackStateProvider) GetDevices() (DeviceCollection, error) {
	return p.fn()
}

// FileStateProvider reads devices from a YAML or JSON file on every call,
// so edits to the file show up on the next feed tick.
type FileStateProvider struct {
	path string
}

// NewFileStateProvider creates a StateProvider reading from path.
func NewFileStateProvider(path string) *FileStateProvider {
	return &FileStateProvider{path: path}
}

type devicesFile struct {
	Devices DeviceCollection `yaml:"devices"`
}

// GetDevices implements StateProvider.
func (p *FileStateProvider) GetDevices() (DeviceCollection, error) {
	data, err := os.ReadFile(p.path)
	if err != nil {
		return nil, fmt.Errorf("read devices: %w", err)
	}
	return ParseDevices(data)
}

// ParseDevices decodes a devices document.
// The document is YAML or JSON with a top-level "devices" list.
func ParseDevices(data []byte) (DeviceCollection, error) {
	var f devicesFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse devices: %w", err)
	}
	if f.Devices == nil {
		f.Devices = DeviceCollection{}
	}
	return f.Devices, nil
}
