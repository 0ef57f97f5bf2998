package devicemap

import (
	"encoding/json"
)

// RenderJSON is the JSON representation of a RenderDescription for the web frontend.
type RenderJSON struct {
	Container    ContainerJSON `json:"container"`
	Background   string        `json:"background"`
	PatternIndex int           `json:"pattern_index"`
	Isometric    bool          `json:"isometric"`
	Devices      []SpriteJSON  `json:"devices"`
	Skipped      []string      `json:"skipped,omitempty"`
}

// ContainerJSON is the JSON representation of the map container.
type ContainerJSON struct {
	Transform string  `json:"transform"`
	OffsetY   float64 `json:"offset_y"`
}

// SpriteJSON is the JSON representation of a device sprite.
type SpriteJSON struct {
	Name        string  `json:"name"`
	Color       string  `json:"color"`
	X           float64 `json:"x"`
	Y           float64 `json:"y"`
	Z           float64 `json:"z"`
	Yaw         float64 `json:"yaw"`
	Pitch       float64 `json:"pitch"`
	Roll        float64 `json:"roll"`
	Description string  `json:"description"`
}

// RenderToJSON converts a RenderDescription to RenderJSON for the web frontend.
// A nil description yields the empty flat map.
func RenderToJSON(r *RenderDescription) RenderJSON {
	if r == nil {
		r = Project(nil, ViewState{})
	}
	devices := make([]SpriteJSON, len(r.Sprites))
	for i, s := range r.Sprites {
		devices[i] = SpriteJSON{
			Name:        s.Name,
			Color:       s.Color,
			X:           s.X,
			Y:           s.Y,
			Z:           s.Z,
			Yaw:         s.Yaw,
			Pitch:       s.Pitch,
			Roll:        s.Roll,
			Description: s.Description,
		}
	}
	return RenderJSON{
		Container: ContainerJSON{
			Transform: r.Container.Transform,
			OffsetY:   r.Container.OffsetY,
		},
		Background:   r.Background,
		PatternIndex: r.PatternIndex,
		Isometric:    r.Isometric,
		Devices:      devices,
		Skipped:      r.Skipped,
	}
}

// RenderToJSONBytes converts a RenderDescription to JSON bytes.
func RenderToJSONBytes(r *RenderDescription) ([]byte, error) {
	return json.Marshal(RenderToJSON(r))
}
