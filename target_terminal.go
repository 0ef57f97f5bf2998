package devicemap

import (
	"context"
	"fmt"
	"io"
	"math"
	"os"
	"strings"
	"sync"

	"github.com/gookit/color"
	"golang.org/x/term"
)

// Terminal grid geometry in screen units per character cell.
const (
	terminalCellWidth  = Scale / 2
	terminalCellHeight = Scale
	terminalRows       = 20
	defaultColumns     = 80
)

var paletteStyles = map[string]color.Style{
	"red":    {color.FgRed},
	"orange": {color.FgLightRed},
	"yellow": {color.FgYellow},
	"green":  {color.FgGreen},
	"blue":   {color.FgLightBlue},
	"indigo": {color.FgBlue},
	"purple": {color.FgMagenta},
}

var backgroundGlyphs = map[string]string{
	"grid":    "·",
	"airport": "=",
	"city":    "#",
}

// TerminalTarget draws the map as a coloured character grid.
type TerminalTarget struct {
	mu      sync.Mutex
	out     io.Writer
	columns int
	rows    int
	clear   bool
}

// TerminalOption configures a TerminalTarget.
type TerminalOption func(*TerminalTarget)

// WithColumns fixes the grid width instead of asking the terminal.
func WithColumns(n int) TerminalOption {
	return func(t *TerminalTarget) {
		t.columns = n
	}
}

// WithRows sets the grid height.
func WithRows(n int) TerminalOption {
	return func(t *TerminalTarget) {
		t.rows = n
	}
}

// WithClearScreen clears the screen before every frame.
func WithClearScreen(enable bool) TerminalOption {
	return func(t *TerminalTarget) {
		t.clear = enable
	}
}

// NewTerminalTarget creates a target writing frames to out.
func NewTerminalTarget(out io.Writer, opts ...TerminalOption) *TerminalTarget {
	t := &TerminalTarget{out: out, rows: terminalRows}
	for _, opt := range opts {
		opt(t)
	}
	if t.columns == 0 {
		t.columns = terminalColumns(out)
	}
	return t
}

func terminalColumns(out io.Writer) int {
	f, ok := out.(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) {
		return defaultColumns
	}
	w, _, err := term.GetSize(int(f.Fd()))
	if err != nil || w <= 0 {
		return defaultColumns
	}
	return w
}

// Name implements Target.
func (t *TerminalTarget) Name() string {
	return "Terminal"
}

// Update implements Target.
func (t *TerminalTarget) Update(ctx context.Context, r *RenderDescription) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	var b strings.Builder
	if t.clear {
		b.WriteString("\033[H\033[2J")
	}
	b.WriteString(FormatTerminalFrame(r, t.columns, t.rows))
	_, err := io.WriteString(t.out, b.String())
	return err
}

// Close implements Target.
func (t *TerminalTarget) Close() error {
	return nil
}

// CellFor returns the grid cell of a sprite.
// The container offset is left out since the grid has no room above the map.
func CellFor(s Sprite, c Container) (col, row int) {
	c.OffsetY = 0
	x, y := ScreenPoint(s, c)
	return int(math.Round(x / terminalCellWidth)), int(math.Round(y / terminalCellHeight))
}

// FormatTerminalFrame draws r as a grid of columns x rows followed by a legend.
// Each device is drawn as the first letter of its name in its palette colour.
func FormatTerminalFrame(r *RenderDescription, columns, rows int) string {
	if r == nil {
		r = Project(nil, ViewState{})
	}
	glyph, ok := backgroundGlyphs[r.Background]
	if !ok {
		glyph = " "
	}
	grid := make([][]string, rows)
	for i := range grid {
		grid[i] = make([]string, columns)
		for j := range grid[i] {
			grid[i][j] = glyph
		}
	}

	var legend strings.Builder
	for _, s := range r.Sprites {
		style := paletteStyles[s.Color]
		mark := "?"
		if s.Name != "" {
			mark = string([]rune(s.Name)[0])
		}
		col, row := CellFor(s, r.Container)
		if row >= 0 && row < rows && col >= 0 && col < columns {
			grid[row][col] = style.Sprint(mark)
		}
		fmt.Fprintf(&legend, "%s %s\n", style.Sprint(mark), s.Description)
	}

	var b strings.Builder
	mode := "flat"
	if r.Isometric {
		mode = "isometric"
	}
	fmt.Fprintf(&b, "[%s | %s | %d devices]\n", mode, r.Background, len(r.Sprites))
	for _, line := range grid {
		b.WriteString(strings.Join(line, ""))
		b.WriteByte('\n')
	}
	b.WriteString(legend.String())
	return b.String()
}
