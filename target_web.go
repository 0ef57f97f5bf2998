package devicemap

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gorilla/websocket"
	channerics "github.com/niceyeti/channerics/channels"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second
	// Maximum message size allowed from peer.
	maxMessageSize = 8192
	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second
	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10
)

// WebTarget serves the device map via HTTP for web browsers.
// It provides a JSON API at /api/render, pushes renders over /ws
// and fires trigger topics posted to /api/trigger/{topic}.
type WebTarget struct {
	addr     string
	server   *http.Server
	last     *RenderDescription
	updated  time.Time
	mu       sync.RWMutex
	webDir   string // Optional directory with static web assets
	started  bool
	triggers *TriggerBus
	registry *Registry
	logger   *slog.Logger
	upgrader websocket.Upgrader
	clients  map[*webClient]struct{}
	index    *template.Template
}

// webClient is one connected websocket; updates holds at most the latest render.
type webClient struct {
	updates chan *RenderDescription
	done    chan struct{}
}

// WebOption configures a WebTarget.
type WebOption func(*WebTarget)

// WithWebDir sets the directory containing static web assets.
func WithWebDir(dir string) WebOption {
	return func(t *WebTarget) {
		t.webDir = dir
	}
}

// WithTriggers sets the bus that receives posted triggers.
func WithTriggers(b *TriggerBus) WebOption {
	return func(t *WebTarget) {
		t.triggers = b
	}
}

// WithRegistry sets the registry served at /api/devices.
func WithRegistry(r *Registry) WebOption {
	return func(t *WebTarget) {
		t.registry = r
	}
}

// WithWebLogger sets the logger of the target.
func WithWebLogger(l *slog.Logger) WebOption {
	return func(t *WebTarget) {
		t.logger = l
	}
}

// NewWebTarget creates a target that serves the map via HTTP.
// With an empty addr the target does not listen itself; mount Handler instead.
func NewWebTarget(addr string, opts ...WebOption) (*WebTarget, error) {
	target := &WebTarget{
		addr:     addr,
		triggers: DefaultTriggers(),
		registry: Default(),
		logger:   slog.Default(),
		clients:  make(map[*webClient]struct{}),
	}

	for _, opt := range opts {
		opt(target)
	}

	index, err := template.New("index").Funcs(template.FuncMap{
		"containerStyle": containerStyle,
		"spriteStyle":    spriteStyle,
		"ago":            humanize.Time,
	}).Parse(indexTemplate)
	if err != nil {
		return nil, fmt.Errorf("parse index template: %w", err)
	}
	target.index = index
	return target, nil
}

// Name implements Target.
func (t *WebTarget) Name() string {
	return fmt.Sprintf("WebTarget(%s)", t.addr)
}

// Update implements Target.
func (t *WebTarget) Update(ctx context.Context, r *RenderDescription) error {
	t.mu.Lock()
	t.last = r
	t.updated = time.Now()
	wasStarted := t.started
	for c := range t.clients {
		c.push(r)
	}
	t.mu.Unlock()

	// Auto-start server on first update
	if !wasStarted && t.addr != "" {
		return t.start()
	}
	return nil
}

// push replaces any undelivered render with r.
func (c *webClient) push(r *RenderDescription) {
	offerLatest(c.updates, r)
}

// offerLatest puts v into the single slot channel ch, dropping an undelivered value.
func offerLatest[T any](ch chan T, v T) {
	select {
	case ch <- v:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- v:
	default:
	}
}

// Handler returns the HTTP handler for embedding in existing servers.
func (t *WebTarget) Handler() http.Handler {
	mux := http.NewServeMux()

	// API endpoints
	mux.HandleFunc("GET /api/render", t.handleRender)
	mux.HandleFunc("GET /api/devices", t.handleDevices)
	mux.HandleFunc("POST /api/trigger/{topic}", t.handleTrigger)
	mux.HandleFunc("GET /ws", t.handleWebsocket)

	// Health check
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	// Static files
	if t.webDir != "" {
		mux.Handle("/", http.FileServer(http.Dir(t.webDir)))
	} else {
		mux.HandleFunc("/", t.handleIndex)
	}

	return mux
}

func (t *WebTarget) handleRender(w http.ResponseWriter, r *http.Request) {
	t.mu.RLock()
	last := t.last
	t.mu.RUnlock()

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	json.NewEncoder(w).Encode(RenderToJSON(last))
}

func (t *WebTarget) handleDevices(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	devices := DeviceCollection{}
	if t.registry != nil {
		devices = t.registry.Devices()
	}
	json.NewEncoder(w).Encode(devices)
}

func (t *WebTarget) handleTrigger(w http.ResponseWriter, r *http.Request) {
	topic, err := ParseTopic(r.PathValue("topic"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	if err := t.triggers.Fire(r.Context(), topic); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	t.logger.Debug("Trigger fired", "topic", topic, "remote", r.RemoteAddr)
	if to := r.FormValue("redirect"); to == "/" {
		http.Redirect(w, r, to, http.StatusSeeOther)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (t *WebTarget) handleWebsocket(w http.ResponseWriter, r *http.Request) {
	ws, err := t.upgrader.Upgrade(w, r, nil)
	if err != nil {
		t.logger.Warn("Websocket upgrade failed", "error", err)
		return
	}
	defer ws.Close()

	c := &webClient{
		updates: make(chan *RenderDescription, 1),
		done:    make(chan struct{}),
	}
	t.mu.Lock()
	t.clients[c] = struct{}{}
	if t.last != nil {
		c.push(t.last)
	}
	t.mu.Unlock()
	defer func() {
		t.mu.Lock()
		delete(t.clients, c)
		t.mu.Unlock()
	}()

	go readUntilClosed(ws, c.done)

	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()
	var updates <-chan *RenderDescription = c.updates
	var done <-chan struct{} = c.done
	messages := channerics.Convert(done, updates, RenderToJSON)
	for {
		select {
		case <-c.done:
			return
		case msg, ok := <-messages:
			if !ok {
				return
			}
			_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ws.WriteJSON(msg); err != nil {
				t.logger.Debug("Websocket write failed", "error", err)
				return
			}
		case <-ping.C:
			_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readUntilClosed drains the peer so control frames are handled and closes done when it goes away.
func readUntilClosed(ws *websocket.Conn, done chan<- struct{}) {
	defer close(done)
	ws.SetReadLimit(maxMessageSize)
	_ = ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := ws.NextReader(); err != nil {
			return
		}
	}
}

type indexData struct {
	Render  *RenderDescription
	Updated time.Time
	Topics  []Topic
}

func (t *WebTarget) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	t.mu.RLock()
	data := indexData{Render: t.last, Updated: t.updated, Topics: Topics}
	t.mu.RUnlock()
	if data.Render == nil {
		data.Render = Project(nil, ViewState{})
	}

	w.Header().Set("Content-Type", "text/html")
	if err := t.index.Execute(w, data); err != nil {
		t.logger.Error("Failed to render index", "error", err)
	}
}

func containerStyle(c Container) template.CSS {
	return template.CSS(fmt.Sprintf("transform: %s; top: %gpx;", c.Transform, c.OffsetY))
}

func spriteStyle(s Sprite) template.CSS {
	return template.CSS(fmt.Sprintf(
		"left: %gpx; top: %gpx; --posz: %gpx; --yaw: %gdeg; --pitch: %gdeg; --roll: %gdeg;",
		s.X, s.Y, s.Z, s.Yaw, s.Pitch, s.Roll,
	))
}

func (t *WebTarget) start() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.started {
		return nil
	}

	t.server = &http.Server{
		Addr:    t.addr,
		Handler: t.Handler(),
	}

	go func() {
		if err := t.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			t.logger.Error("Web target stopped", "addr", t.addr, "error", err)
		}
	}()

	t.started = true
	return nil
}

// Close implements Target.
func (t *WebTarget) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.server != nil {
		return t.server.Shutdown(context.Background())
	}
	return nil
}

// URL returns the URL where the web target is serving.
func (t *WebTarget) URL() string {
	return "http://localhost" + t.addr
}

const indexTemplate = `<!DOCTYPE html>
<html>
<head>
    <title>devicemap</title>
    <style>
        body { font-family: system-ui; background: #1a1a2e; color: #eee; padding: 2rem; }
        h1 { color: #4ade80; }
        .controls form { display: inline; }
        .map { position: relative; width: 1000px; height: 1000px; transition: transform 0.5s; }
        .map.grid { background: repeating-linear-gradient(0deg, #16213e 0 99px, #334 99px 100px); }
        .map.airport { background: #2d3142; }
        .map.city { background: #243b55; }
        .device { position: absolute; width: 24px; height: 24px; border-radius: 4px;
            transform: translateZ(var(--posz)) rotateZ(var(--yaw)) rotateX(var(--pitch)) rotateY(var(--roll)); }
        .red { background: red; } .orange { background: orange; } .yellow { background: yellow; }
        .green { background: green; } .blue { background: blue; } .indigo { background: indigo; }
        .purple { background: purple; }
    </style>
</head>
<body>
    <h1>devicemap</h1>
    <div class="controls">
        {{range .Topics}}<form method="post" action="/api/trigger/{{.}}"><input type="hidden" name="redirect" value="/"><button>{{.}}</button></form>
        {{end}}
    </div>
    <p class="status">Devices: {{len .Render.Sprites}}{{if not .Updated.IsZero}}, updated {{ago .Updated}}{{end}}</p>
    <div id="map" class="map {{.Render.Background}}" style="{{containerStyle .Render.Container}}">
        {{range .Render.Sprites}}<div class="device {{.Color}}" role="img" data-name="{{.Name}}" aria-label="{{.Description}}" style="{{spriteStyle .}}"></div>
        {{end}}
    </div>
    <script>
        const ws = new WebSocket("ws://" + location.host + "/ws");
        ws.onmessage = function (event) {
            const render = JSON.parse(event.data);
            const map = document.getElementById("map");
            map.className = "map " + render.background;
            map.style.transform = render.container.transform;
            map.style.top = render.container.offset_y + "px";
            map.replaceChildren(...render.devices.map(function (d) {
                const el = document.createElement("div");
                el.className = "device " + d.color;
                el.setAttribute("role", "img");
                el.dataset.name = d.name;
                el.setAttribute("aria-label", d.description);
                el.style.left = d.x + "px";
                el.style.top = d.y + "px";
                el.style.setProperty("--posz", d.z + "px");
                el.style.setProperty("--yaw", d.yaw + "deg");
                el.style.setProperty("--pitch", d.pitch + "deg");
                el.style.setProperty("--roll", d.roll + "deg");
                return el;
            }));
        };
    </script>
</body>
</html>`
