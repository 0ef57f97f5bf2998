package devicemap

import (
	"math"
	"slices"

	"github.com/leonelquinteros/gotext"
)

// Scale is the number of screen units per simulation unit.
const Scale = 100

// ContainerOffset is the vertical offset of the map container in isometric mode.
const ContainerOffset = 250

// IsometricTransform is applied to the whole map container in isometric mode.
const IsometricTransform = "perspective(200rem) rotateX(60deg) rotateY(0deg) rotateZ(0deg) scale3d(0.8,0.8,0.8)"

// FlatTransform is the identity transform of the top-down layout.
const FlatTransform = "none"

// Palette is the ordered list of device colours.
var Palette = []string{"red", "orange", "yellow", "green", "blue", "indigo", "purple"}

// Patterns are the background styles selected by the pattern index.
var Patterns = []string{"grid", "airport", "city"}

// PatternCount is the number of background styles.
var PatternCount = len(Patterns)

// ViewState is the presentation state local to one view.
type ViewState struct {
	PatternIndex int
	Isometric    bool
}

// CycledPattern returns the state with the next background pattern selected.
func (s ViewState) CycledPattern() ViewState {
	s.PatternIndex = mod(s.PatternIndex+1, PatternCount)
	return s
}

// ToggledIsometric returns the state with the projection mode flipped.
func (s ViewState) ToggledIsometric() ViewState {
	s.Isometric = !s.Isometric
	return s
}

// Container is the transform applied once to the map drop zone.
type Container struct {
	Transform string
	OffsetY   float64
}

// Sprite is one positioned, coloured and oriented device on the map.
type Sprite struct {
	Name        string
	Color       string
	X, Y, Z     float64
	Yaw         float64
	Pitch       float64
	Roll        float64
	Description string
}

// RenderDescription is what a view hands to its targets.
type RenderDescription struct {
	Container    Container
	Background   string
	PatternIndex int
	Isometric    bool
	Sprites      []Sprite
	// Skipped lists visible devices that could not be drawn.
	Skipped []string
}

// Equal reports whether both descriptions would produce the same output.
func (r *RenderDescription) Equal(other *RenderDescription) bool {
	if r == nil || other == nil {
		return r == other
	}
	return r.Container == other.Container &&
		r.Background == other.Background &&
		r.PatternIndex == other.PatternIndex &&
		r.Isometric == other.Isometric &&
		slices.Equal(r.Sprites, other.Sprites) &&
		slices.Equal(r.Skipped, other.Skipped)
}

// ColorAt returns the palette colour for the i-th drawn device.
func ColorAt(i int) string {
	return Palette[i%len(Palette)]
}

// Project maps devices and the view state to a render description.
// It has no side effects.
//
// Hidden devices are dropped. Visible devices without position or orientation
// are skipped and do not consume a colour.
func Project(devices DeviceCollection, state ViewState) *RenderDescription {
	r := &RenderDescription{
		Container:    containerFor(state.Isometric),
		Background:   Patterns[mod(state.PatternIndex, PatternCount)],
		PatternIndex: mod(state.PatternIndex, PatternCount),
		Isometric:    state.Isometric,
		Sprites:      make([]Sprite, 0, len(devices)),
	}
	for _, d := range devices {
		if !d.Visible {
			continue
		}
		if err := d.Validate(); err != nil {
			r.Skipped = append(r.Skipped, d.Name)
			continue
		}
		s := Sprite{
			Name:  d.Name,
			Color: ColorAt(len(r.Sprites)),
			X:     Scale * d.Position.X,
			Y:     Scale * d.Position.Y,
			Z:     Scale * d.Position.Z,
			Yaw:   d.Orientation.Yaw,
			Pitch: d.Orientation.Pitch,
			Roll:  d.Orientation.Roll,
		}
		s.Description = Describe(s)
		r.Sprites = append(r.Sprites, s)
	}
	return r
}

// Isometric foreshortening of the container transform on a flat surface.
const (
	isoScale = 0.8
	isoDepth = 0.5 // cos(60deg)
)

// ScreenPoint returns where a sprite ends up on a flat surface once the
// container transform is applied. Perspective is ignored.
func ScreenPoint(s Sprite, c Container) (x, y float64) {
	if c.Transform != IsometricTransform {
		return s.X, s.Y + c.OffsetY
	}
	return s.X * isoScale, s.Y*isoScale*isoDepth + c.OffsetY
}

func containerFor(isometric bool) Container {
	if isometric {
		return Container{Transform: IsometricTransform, OffsetY: ContainerOffset}
	}
	return Container{Transform: FlatTransform}
}

// Describe returns the accessible text for a sprite.
func Describe(s Sprite) string {
	return gotext.Get(
		"%s is at x %d, y %d, z %d. Yaw %g degrees, pitch %g degrees, roll %g degrees.",
		s.Name,
		int64(math.Round(s.X)), int64(math.Round(s.Y)), int64(math.Round(s.Z)),
		s.Yaw, s.Pitch, s.Roll,
	)
}

func mod(a, n int) int {
	m := a % n
	if m < 0 {
		m += n
	}
	return m
}
