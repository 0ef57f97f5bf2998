package devicemap

import (
	"math"

	sprites "github.com/nimsforest/nimsforestsprites"
)

// SpritesStateAdapter adapts a RenderDescription to the sprites.State interface.
// The map becomes a single land carrying one process per device.
type SpritesStateAdapter struct {
	render *RenderDescription
}

// NewSpritesStateAdapter creates an adapter for sprites rendering.
func NewSpritesStateAdapter(r *RenderDescription) *SpritesStateAdapter {
	return &SpritesStateAdapter{render: r}
}

const mapLandID = "map"

// Lands implements sprites.State.
func (a *SpritesStateAdapter) Lands() []sprites.Land {
	if a.render == nil {
		return nil
	}
	landType := "normal"
	if a.render.Isometric {
		landType = "mana"
	}
	return []sprites.Land{{
		ID:   mapLandID,
		Name: a.render.Background,
		X:    0,
		Y:    0,
		Type: landType,
	}}
}

// Processes implements sprites.State.
// Positions are given in simulation units; progress encodes the yaw as a fraction of a turn.
func (a *SpritesStateAdapter) Processes() []sprites.Process {
	if a.render == nil {
		return nil
	}
	result := make([]sprites.Process, len(a.render.Sprites))
	for i, s := range a.render.Sprites {
		result[i] = sprites.Process{
			ID:       s.Name,
			LandID:   mapLandID,
			Type:     "nim",
			Progress: yawFraction(s.Yaw),
			X:        s.X / Scale,
			Y:        s.Y / Scale,
		}
	}
	return result
}

func yawFraction(yaw float64) float64 {
	f := math.Mod(yaw, 360) / 360
	if f < 0 {
		f++
	}
	return f
}

// Ensure SpritesStateAdapter implements sprites.State
var _ sprites.State = (*SpritesStateAdapter)(nil)
