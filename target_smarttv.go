package devicemap

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/draw"
	"image/jpeg"
	"log/slog"
	"os/exec"
	"sync"
	"time"

	sprites "github.com/nimsforest/nimsforestsprites"
	smarttv "github.com/nimsforest/nimsforestsmarttv"
)

// ErrNoFrame is returned when the sprite renderer produced no image.
var ErrNoFrame = errors.New("failed to render frame")

// ErrNoTV is returned when discovery finds no Smart TV.
var ErrNoTV = errors.New("no smart tv found")

// SmartTVTarget shows the device map as still images on a Smart TV via DLNA.
// Frames are drawn with nimsforestsprites and sent with nimsforestsmarttv.
type SmartTVTarget struct {
	mu         sync.Mutex
	tv         *smarttv.TV
	renderer   *smarttv.Renderer
	sprites    *sprites.Renderer
	spriteOpts sprites.Options
	jfif       bool
	quality    int
	logger     *slog.Logger
	shown      *RenderDescription
}

// TVOption configures a SmartTVTarget.
type TVOption func(*SmartTVTarget)

// WithJFIF re-encodes frames as JFIF through ffmpeg. Some TVs reject other JPEG flavours.
// Frames are encoded in process when ffmpeg is not installed.
func WithJFIF(enable bool) TVOption {
	return func(t *SmartTVTarget) {
		t.jfif = enable
	}
}

// WithSpriteOptions sets the frame size and renderer options.
func WithSpriteOptions(opts sprites.Options) TVOption {
	return func(t *SmartTVTarget) {
		t.spriteOpts = opts
	}
}

// WithJPEGQuality sets the quality of frames encoded in process.
func WithJPEGQuality(q int) TVOption {
	return func(t *SmartTVTarget) {
		t.quality = q
	}
}

// WithTVLogger sets the logger of the target.
func WithTVLogger(l *slog.Logger) TVOption {
	return func(t *SmartTVTarget) {
		t.logger = l
	}
}

// NewSmartTVTarget creates a target showing frames on tv.
func NewSmartTVTarget(tv *smarttv.TV, opts ...TVOption) (*SmartTVTarget, error) {
	t := &SmartTVTarget{
		tv:      tv,
		jfif:    true,
		quality: 85,
		logger:  slog.Default(),
		spriteOpts: sprites.Options{
			Width:     1920,
			Height:    1080,
			FrameRate: 1,
		},
	}
	for _, opt := range opts {
		opt(t)
	}

	renderer, err := smarttv.NewRenderer()
	if err != nil {
		return nil, fmt.Errorf("create smarttv renderer: %w", err)
	}
	spriteRenderer, err := sprites.New(t.spriteOpts)
	if err != nil {
		renderer.Close()
		return nil, fmt.Errorf("create sprite renderer: %w", err)
	}
	t.renderer = renderer
	t.sprites = spriteRenderer
	return t, nil
}

// DiscoverSmartTVTarget looks for TVs on the local network and targets the first one found.
func DiscoverSmartTVTarget(ctx context.Context, timeout time.Duration, opts ...TVOption) (*SmartTVTarget, error) {
	tv, err := discoverTV(ctx, timeout)
	if err != nil {
		return nil, err
	}
	return NewSmartTVTarget(tv, opts...)
}

func discoverTV(ctx context.Context, timeout time.Duration) (*smarttv.TV, error) {
	tvs, err := smarttv.Discover(ctx, timeout)
	if err != nil {
		return nil, fmt.Errorf("discover: %w", err)
	}
	if len(tvs) == 0 {
		return nil, ErrNoTV
	}
	return &tvs[0], nil
}

// Name implements Target.
func (t *SmartTVTarget) Name() string {
	if t.tv != nil {
		return fmt.Sprintf("SmartTV(%s)", t.tv.Name)
	}
	return "SmartTV"
}

// Update implements Target. A description equal to the one on screen is not sent again.
func (t *SmartTVTarget) Update(ctx context.Context, r *RenderDescription) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if r.Equal(t.shown) {
		return nil
	}
	frame := t.sprites.Render(NewSpritesStateAdapter(r))
	if frame == nil {
		return ErrNoFrame
	}
	data, err := t.encode(ctx, frame)
	if err != nil {
		return fmt.Errorf("encode frame: %w", err)
	}
	if err := t.renderer.DisplayImageJPEG(ctx, t.tv, data); err != nil {
		return fmt.Errorf("display on TV: %w", err)
	}
	t.shown = r
	t.logger.Debug("Frame shown", "tv", t.Name(), "devices", len(r.Sprites), "bytes", len(data))
	return nil
}

func (t *SmartTVTarget) encode(ctx context.Context, frame image.Image) ([]byte, error) {
	if t.jfif {
		data, err := encodeJFIF(ctx, frame)
		if err == nil {
			return data, nil
		}
		if !errors.Is(err, exec.ErrNotFound) {
			return nil, err
		}
		t.logger.Debug("ffmpeg not found, encoding in process")
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, frame, &jpeg.Options{Quality: t.quality}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Close implements Target.
func (t *SmartTVTarget) Close() error {
	if t.sprites != nil {
		t.sprites.Close()
	}
	if t.renderer != nil {
		t.renderer.Close()
	}
	return nil
}

// Stop ends playback on the TV.
func (t *SmartTVTarget) Stop(ctx context.Context) error {
	return t.renderer.Stop(ctx, t.tv)
}

// encodeJFIF pipes raw RGBA pixels through ffmpeg and returns a full range JFIF JPEG.
func encodeJFIF(ctx context.Context, frame image.Image) ([]byte, error) {
	path, err := exec.LookPath("ffmpeg")
	if err != nil {
		return nil, err
	}
	rgba := toRGBA(frame)
	b := rgba.Bounds()
	var out, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, path,
		"-loglevel", "error",
		"-f", "rawvideo", "-pix_fmt", "rgba",
		"-s", fmt.Sprintf("%dx%d", b.Dx(), b.Dy()),
		"-i", "pipe:0",
		"-frames:v", "1",
		"-pix_fmt", "yuvj420p", "-q:v", "2",
		"-f", "mjpeg", "pipe:1",
	)
	cmd.Stdin = bytes.NewReader(rgba.Pix)
	cmd.Stdout = &out
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("ffmpeg: %w: %s", err, bytes.TrimSpace(stderr.Bytes()))
	}
	return out.Bytes(), nil
}

func toRGBA(img image.Image) *image.RGBA {
	if rgba, ok := img.(*image.RGBA); ok && rgba.Stride == 4*rgba.Rect.Dx() && len(rgba.Pix) == rgba.Stride*rgba.Rect.Dy() {
		return rgba
	}
	rgba := image.NewRGBA(image.Rect(0, 0, img.Bounds().Dx(), img.Bounds().Dy()))
	draw.Draw(rgba, rgba.Bounds(), img, img.Bounds().Min, draw.Src)
	return rgba
}
