package devicemap

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	sprites "github.com/nimsforest/nimsforestsprites"
	smarttv "github.com/nimsforest/nimsforestsmarttv"
)

// VideoTarget streams the device map to a Smart TV as a video clip.
// Every changed description renders a new clip from the sprites animation,
// which is served over HTTP and handed to the TV.
type VideoTarget struct {
	mu         sync.Mutex
	tv         *smarttv.TV
	tvRenderer *smarttv.Renderer
	sprites    *sprites.Renderer
	spriteOpts sprites.Options
	fps        int
	duration   time.Duration
	host       string
	port       int
	logger     *slog.Logger
	server     *http.Server
	clip       string
	clips      int
	last       *RenderDescription
	pending    chan *RenderDescription
	cancel     context.CancelFunc
	done       chan struct{}
}

// VideoOption configures a VideoTarget.
type VideoOption func(*VideoTarget)

// WithVideoFPS sets the clip frame rate.
func WithVideoFPS(fps int) VideoOption {
	return func(t *VideoTarget) {
		t.fps = fps
	}
}

// WithVideoDuration sets the clip length.
func WithVideoDuration(d time.Duration) VideoOption {
	return func(t *VideoTarget) {
		t.duration = d
	}
}

// WithVideoSpriteOptions sets the frame size and renderer options.
func WithVideoSpriteOptions(opts sprites.Options) VideoOption {
	return func(t *VideoTarget) {
		t.spriteOpts = opts
	}
}

// WithVideoAddr sets the host announced to the TV and the port clips are served on.
// An empty host is replaced by the address of the outbound interface.
func WithVideoAddr(host string, port int) VideoOption {
	return func(t *VideoTarget) {
		t.host = host
		t.port = port
	}
}

// WithVideoLogger sets the logger of the target.
func WithVideoLogger(l *slog.Logger) VideoOption {
	return func(t *VideoTarget) {
		t.logger = l
	}
}

// NewVideoTarget creates a target that streams clips to tv.
func NewVideoTarget(tv *smarttv.TV, opts ...VideoOption) (*VideoTarget, error) {
	t := &VideoTarget{
		tv:       tv,
		fps:      10,
		duration: 30 * time.Second,
		port:     8889,
		logger:   slog.Default(),
		pending:  make(chan *RenderDescription, 1),
		spriteOpts: sprites.Options{
			Width:     1920,
			Height:    1080,
			FrameRate: 10,
		},
	}
	for _, opt := range opts {
		opt(t)
	}
	if t.host == "" {
		t.host = localIP()
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
	t.tvRenderer = renderer
	t.sprites = spriteRenderer
	return t, nil
}

// DiscoverVideoTarget looks for TVs on the local network and streams to the first one found.
func DiscoverVideoTarget(ctx context.Context, timeout time.Duration, opts ...VideoOption) (*VideoTarget, error) {
	tv, err := discoverTV(ctx, timeout)
	if err != nil {
		return nil, err
	}
	return NewVideoTarget(tv, opts...)
}

// Name implements Target.
func (t *VideoTarget) Name() string {
	if t.tv != nil {
		return fmt.Sprintf("Video(%s)", t.tv.Name)
	}
	return "Video"
}

// Update implements Target. It queues the description and returns at once;
// the clip is rendered in the background. Unchanged descriptions are dropped and
// a description still waiting is replaced by the newer one.
func (t *VideoTarget) Update(ctx context.Context, r *RenderDescription) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if r.Equal(t.last) {
		return nil
	}
	t.last = r
	offerLatest(t.pending, r)
	return nil
}

// Start serves clips and begins rendering queued descriptions until ctx ends or Close is called.
func (t *VideoTarget) Start(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cancel != nil {
		return ErrAlreadyStarted
	}
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", t.port))
	if err != nil {
		return fmt.Errorf("listen for clip requests: %w", err)
	}
	t.server = &http.Server{Handler: t.handler()}
	go func() {
		if err := t.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			t.logger.Error("Clip server stopped", "port", t.port, "error", err)
		}
	}()

	ctx, t.cancel = context.WithCancel(ctx)
	t.done = make(chan struct{})
	go t.run(ctx)
	return nil
}

func (t *VideoTarget) run(ctx context.Context) {
	defer close(t.done)
	for {
		select {
		case <-ctx.Done():
			return
		case r := <-t.pending:
			if err := t.show(ctx, r); err != nil && ctx.Err() == nil {
				t.logger.Warn("Failed to stream clip", "tv", t.Name(), "error", err)
			}
		}
	}
}

// show renders r into a new clip, swaps it in and tells the TV to play it.
func (t *VideoTarget) show(ctx context.Context, r *RenderDescription) error {
	t.mu.Lock()
	t.clips++
	n := t.clips
	t.mu.Unlock()

	path := filepath.Join(os.TempDir(), fmt.Sprintf("devicemap_%d_%d.mp4", os.Getpid(), n))
	if err := t.renderClip(ctx, r, path); err != nil {
		os.Remove(path)
		return err
	}

	t.mu.Lock()
	old := t.clip
	t.clip = path
	t.mu.Unlock()
	if old != "" {
		os.Remove(old)
	}

	url := fmt.Sprintf("http://%s:%d/stream.mp4?clip=%d", t.host, t.port, n)
	if err := t.tvRenderer.StreamVideo(ctx, t.tv, url, "devicemap"); err != nil {
		return fmt.Errorf("stream to TV: %w", err)
	}
	t.logger.Debug("Clip streamed", "tv", t.Name(), "devices", len(r.Sprites), "url", url)
	return nil
}

func (t *VideoTarget) renderClip(ctx context.Context, r *RenderDescription, path string) error {
	cmd := exec.CommandContext(ctx, "ffmpeg", videoEncodeArgs(t.spriteOpts.Width, t.spriteOpts.Height, t.fps, path)...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("create pipe: %w", err)
	}
	cmd.Stderr = io.Discard
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start ffmpeg: %w", err)
	}

	adapter := NewSpritesStateAdapter(r)
	frames := int(t.duration.Seconds() * float64(t.fps))
	werr := writeFrames(ctx, stdin, frames, func() image.Image {
		return t.sprites.Render(adapter)
	})
	stdin.Close()
	if err := cmd.Wait(); err != nil {
		return fmt.Errorf("ffmpeg encode: %w", err)
	}
	return werr
}

// videoEncodeArgs returns the ffmpeg arguments encoding raw RGBA frames from stdin
// into an H.264 baseline MP4 most TVs can play.
func videoEncodeArgs(width, height, fps int, path string) []string {
	return []string{
		"-y", "-loglevel", "error",
		"-f", "rawvideo", "-pix_fmt", "rgba",
		"-s", fmt.Sprintf("%dx%d", width, height),
		"-r", strconv.Itoa(fps),
		"-i", "pipe:0",
		"-c:v", "libx264", "-preset", "ultrafast",
		"-profile:v", "baseline", "-level", "3.0",
		"-pix_fmt", "yuv420p",
		"-movflags", "+faststart",
		path,
	}
}

// writeFrames writes n frames from next to w as raw RGBA pixels.
// Frames the renderer fails to produce are skipped.
func writeFrames(ctx context.Context, w io.Writer, n int, next func() image.Image) error {
	for range n {
		if err := ctx.Err(); err != nil {
			return err
		}
		frame := next()
		if frame == nil {
			continue
		}
		if _, err := w.Write(toRGBA(frame).Pix); err != nil {
			return fmt.Errorf("write frame: %w", err)
		}
	}
	return nil
}

func (t *VideoTarget) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /stream.mp4", func(w http.ResponseWriter, r *http.Request) {
		t.mu.Lock()
		clip := t.clip
		t.mu.Unlock()
		if clip == "" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "video/mp4")
		http.ServeFile(w, r, clip)
	})
	return mux
}

// Close implements Target.
func (t *VideoTarget) Close() error {
	t.mu.Lock()
	cancel, done, server := t.cancel, t.done, t.server
	t.cancel = nil
	t.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
	if server != nil {
		server.Shutdown(context.Background())
	}
	if t.sprites != nil {
		t.sprites.Close()
	}
	if t.tvRenderer != nil {
		t.tvRenderer.Close()
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.clip != "" {
		os.Remove(t.clip)
		t.clip = ""
	}
	return nil
}

// Stop ends playback on the TV.
func (t *VideoTarget) Stop(ctx context.Context) error {
	return t.tvRenderer.Stop(ctx, t.tv)
}

// localIP returns the address of the interface used for outbound traffic.
// Dialing UDP sends no packets.
func localIP() string {
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return "localhost"
	}
	defer conn.Close()
	return conn.LocalAddr().(*net.UDPAddr).IP.String()
}
