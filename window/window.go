// Package window shows the device map in a desktop window using Ebiten.
//
// The window is a devicemap.Target. Key presses are turned into trigger
// signals: B cycles the background and I toggles the isometric projection.
package window

import (
	"context"
	"fmt"
	"image/color"
	"log/slog"
	"sync"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/ebitenutil"
	"github.com/hajimehoshi/ebiten/v2/inpututil"
	"github.com/hajimehoshi/ebiten/v2/vector"

	"github.com/nimsforest/devicemap"
)

const (
	defaultWidth  = 1280
	defaultHeight = 800
	spriteSize    = 16
)

var paletteColors = map[string]color.RGBA{
	"red":    {0xff, 0x00, 0x00, 0xff},
	"orange": {0xff, 0xa5, 0x00, 0xff},
	"yellow": {0xff, 0xff, 0x00, 0xff},
	"green":  {0x00, 0x80, 0x00, 0xff},
	"blue":   {0x00, 0x00, 0xff, 0xff},
	"indigo": {0x4b, 0x00, 0x82, 0xff},
	"purple": {0x80, 0x00, 0x80, 0xff},
}

var backgroundColors = map[string]color.RGBA{
	"grid":    {0x16, 0x21, 0x3e, 0xff},
	"airport": {0x2d, 0x31, 0x42, 0xff},
	"city":    {0x24, 0x3b, 0x55, 0xff},
}

// Window draws the latest render description every frame.
type Window struct {
	mu       sync.RWMutex
	last     *devicemap.RenderDescription
	triggers *devicemap.TriggerBus
	width    int
	height   int
	logger   *slog.Logger
}

// Option configures a Window.
type Option func(*Window)

// WithSize sets the logical screen size.
func WithSize(width, height int) Option {
	return func(w *Window) {
		w.width = width
		w.height = height
	}
}

// WithLogger sets the logger for failed triggers.
func WithLogger(l *slog.Logger) Option {
	return func(w *Window) {
		w.logger = l
	}
}

// New creates a window firing key presses into triggers.
func New(triggers *devicemap.TriggerBus, opts ...Option) *Window {
	if triggers == nil {
		triggers = devicemap.DefaultTriggers()
	}
	w := &Window{
		triggers: triggers,
		width:    defaultWidth,
		height:   defaultHeight,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Name implements devicemap.Target.
func (w *Window) Name() string {
	return fmt.Sprintf("Window(%dx%d)", w.width, w.height)
}

// Update implements devicemap.Target. The frame is drawn on the next tick.
func (w *Window) Update(ctx context.Context, r *devicemap.RenderDescription) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.last = r
	return nil
}

// Close implements devicemap.Target.
func (w *Window) Close() error {
	return nil
}

// Run opens the window and blocks until it is closed.
// It must be called from the main goroutine.
func (w *Window) Run() error {
	ebiten.SetWindowSize(w.width, w.height)
	ebiten.SetWindowTitle("devicemap")
	return ebiten.RunGame(&game{w: w})
}

// game adapts a Window to ebiten.Game.
type game struct {
	w *Window
}

func (g *game) Update() error {
	keys := map[ebiten.Key]devicemap.Topic{
		ebiten.KeyB: devicemap.TopicCycleBackground,
		ebiten.KeyI: devicemap.TopicToggleIsometric,
	}
	for k, topic := range keys {
		if !inpututil.IsKeyJustPressed(k) {
			continue
		}
		if err := g.w.triggers.Fire(context.Background(), topic); err != nil {
			g.w.logger.Warn("Failed to fire trigger", "topic", topic, "error", err)
		}
	}
	return nil
}

func (g *game) Draw(screen *ebiten.Image) {
	g.w.mu.RLock()
	r := g.w.last
	g.w.mu.RUnlock()
	if r == nil {
		ebitenutil.DebugPrint(screen, "waiting for devices")
		return
	}

	if bg, ok := backgroundColors[r.Background]; ok {
		screen.Fill(bg)
	}
	for _, s := range r.Sprites {
		x, y := devicemap.ScreenPoint(s, r.Container)
		c, ok := paletteColors[s.Color]
		if !ok {
			c = color.RGBA{0xff, 0xff, 0xff, 0xff}
		}
		vector.DrawFilledRect(screen, float32(x), float32(y), spriteSize, spriteSize, c, false)
		ebitenutil.DebugPrintAt(screen, s.Name, int(x), int(y)+spriteSize)
	}
	mode := "flat"
	if r.Isometric {
		mode = "isometric"
	}
	ebitenutil.DebugPrint(screen, fmt.Sprintf("%s | %s | B: background, I: projection", mode, r.Background))
}

func (g *game) Layout(outsideWidth, outsideHeight int) (int, int) {
	return g.w.width, g.w.height
}
