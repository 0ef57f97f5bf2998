package devicemap

import (
	"fmt"
	"math"
	"sync"
	"time"
)

// DemoStateProvider simulates devices circling around the map centre.
// Every third device is hidden for a while so colours move between devices.
type DemoStateProvider struct {
	mu    sync.Mutex
	count int
	start time.Time
	now   func() time.Time
}

// NewDemoStateProvider creates a provider simulating count devices.
func NewDemoStateProvider(count int) *DemoStateProvider {
	return &DemoStateProvider{count: count, start: time.Now(), now: time.Now}
}

// GetDevices implements StateProvider.
func (p *DemoStateProvider) GetDevices() (DeviceCollection, error) {
	p.mu.Lock()
	elapsed := p.now().Sub(p.start).Seconds()
	p.mu.Unlock()
	return DemoDevices(p.count, elapsed), nil
}

// DemoDevices returns the simulated devices after t seconds.
func DemoDevices(count int, t float64) DeviceCollection {
	devices := make(DeviceCollection, count)
	for i := range devices {
		phase := 2 * math.Pi * float64(i) / float64(max(count, 1))
		angle := phase + t/10
		radius := 2 + float64(i%3)
		devices[i] = Device{
			Name:    fmt.Sprintf("device-%d", i+1),
			Visible: i%3 != 2 || int(t/15)%2 == 0,
			Position: &Position{
				X: 5 + radius*math.Cos(angle),
				Y: 5 + radius*math.Sin(angle),
				Z: math.Abs(math.Sin(t/5 + phase)),
			},
			Orientation: &Orientation{
				Yaw:   math.Mod(angle*180/math.Pi+90, 360),
				Pitch: 0,
				Roll:  0,
			},
		}
	}
	return devices
}
