package devicemap_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nimsforest/devicemap"
)

func newTestWebTarget(t *testing.T) (*devicemap.WebTarget, *devicemap.Registry, *devicemap.TriggerBus) {
	t.Helper()
	registry := devicemap.NewRegistry()
	triggers := devicemap.NewTriggerBus()
	target, err := devicemap.NewWebTarget("",
		devicemap.WithRegistry(registry),
		devicemap.WithTriggers(triggers),
	)
	require.NoError(t, err)
	return target, registry, triggers
}

func TestWebTargetAPI(t *testing.T) {
	ctx := context.Background()
	t.Run("render endpoint serves the empty map before the first update", func(t *testing.T) {
		target, _, _ := newTestWebTarget(t)
		req := httptest.NewRequest(http.MethodGet, "/api/render", nil)
		w := httptest.NewRecorder()
		target.Handler().ServeHTTP(w, req)
		require.Equal(t, http.StatusOK, w.Code)
		var got devicemap.RenderJSON
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
		assert.Equal(t, devicemap.FlatTransform, got.Container.Transform)
		assert.Empty(t, got.Devices)
	})
	t.Run("render endpoint serves the last update", func(t *testing.T) {
		target, _, _ := newTestWebTarget(t)
		r := devicemap.Project(devicemap.DeviceCollection{newDevice("d1", true, 1, 2, 0)}, devicemap.ViewState{Isometric: true})
		require.NoError(t, target.Update(ctx, r))
		req := httptest.NewRequest(http.MethodGet, "/api/render", nil)
		w := httptest.NewRecorder()
		target.Handler().ServeHTTP(w, req)
		var got devicemap.RenderJSON
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
		assert.Equal(t, devicemap.IsometricTransform, got.Container.Transform)
		require.Len(t, got.Devices, 1)
		assert.Equal(t, "d1", got.Devices[0].Name)
	})
	t.Run("devices endpoint serves the registry", func(t *testing.T) {
		target, registry, _ := newTestWebTarget(t)
		registry.Update(devicemap.DeviceCollection{newDevice("d1", true, 1, 2, 0), newDevice("d2", false, 0, 0, 0)})
		req := httptest.NewRequest(http.MethodGet, "/api/devices", nil)
		w := httptest.NewRecorder()
		target.Handler().ServeHTTP(w, req)
		var got devicemap.DeviceCollection
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
		assert.Len(t, got, 2)
	})
	t.Run("posted trigger is fired on the bus", func(t *testing.T) {
		target, _, triggers := newTestWebTarget(t)
		var fired int
		require.NoError(t, triggers.Subscribe(devicemap.TopicToggleIsometric, "test", func(context.Context) { fired++ }))
		req := httptest.NewRequest(http.MethodPost, "/api/trigger/toggle-isometric", nil)
		w := httptest.NewRecorder()
		target.Handler().ServeHTTP(w, req)
		assert.Equal(t, http.StatusNoContent, w.Code)
		assert.Equal(t, 1, fired)
	})
	t.Run("posted form is redirected back to the map", func(t *testing.T) {
		target, _, _ := newTestWebTarget(t)
		form := url.Values{"redirect": {"/"}}
		req := httptest.NewRequest(http.MethodPost, "/api/trigger/cycle-background", strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		w := httptest.NewRecorder()
		target.Handler().ServeHTTP(w, req)
		assert.Equal(t, http.StatusSeeOther, w.Code)
		assert.Equal(t, "/", w.Header().Get("Location"))
	})
	t.Run("unknown trigger is not found", func(t *testing.T) {
		target, _, _ := newTestWebTarget(t)
		req := httptest.NewRequest(http.MethodPost, "/api/trigger/zoom", nil)
		w := httptest.NewRecorder()
		target.Handler().ServeHTTP(w, req)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
	t.Run("health", func(t *testing.T) {
		target, _, _ := newTestWebTarget(t)
		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		w := httptest.NewRecorder()
		target.Handler().ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "ok", w.Body.String())
	})
}

func TestWebTargetIndex(t *testing.T) {
	t.Run("should draw one element per device", func(t *testing.T) {
		// given
		target, _, _ := newTestWebTarget(t)
		devices := devicemap.DeviceCollection{
			newDevice("d1", true, 1, 2, 0),
			newDevice("d2", false, 1, 2, 0),
			newDevice("d3", true, 3, 1, 0),
		}
		r := devicemap.Project(devices, devicemap.ViewState{PatternIndex: 1})
		require.NoError(t, target.Update(context.Background(), r))
		// when
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		w := httptest.NewRecorder()
		target.Handler().ServeHTTP(w, req)
		// then
		require.Equal(t, http.StatusOK, w.Code)
		doc, err := goquery.NewDocumentFromReader(w.Body)
		require.NoError(t, err)
		assert.True(t, doc.Find("#map").HasClass("airport"))
		els := doc.Find("#map .device")
		require.Equal(t, 2, els.Length())
		assert.True(t, els.Eq(0).HasClass("red"))
		assert.True(t, els.Eq(1).HasClass("orange"))
		name, _ := els.Eq(1).Attr("data-name")
		assert.Equal(t, "d3", name)
		label, _ := els.Eq(0).Attr("aria-label")
		assert.Equal(t, r.Sprites[0].Description, label)
		style, _ := els.Eq(0).Attr("style")
		assert.Contains(t, style, "left: 100px")
		assert.Equal(t, len(devicemap.Topics), doc.Find(".controls form").Length())
	})
	t.Run("isometric transform is applied to the map container", func(t *testing.T) {
		target, _, _ := newTestWebTarget(t)
		require.NoError(t, target.Update(context.Background(), devicemap.Project(nil, devicemap.ViewState{Isometric: true})))
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		w := httptest.NewRecorder()
		target.Handler().ServeHTTP(w, req)
		doc, err := goquery.NewDocumentFromReader(w.Body)
		require.NoError(t, err)
		style, _ := doc.Find("#map").Attr("style")
		assert.Contains(t, style, devicemap.IsometricTransform)
		assert.Contains(t, style, "top: 250px")
	})
	t.Run("unknown path is not found", func(t *testing.T) {
		target, _, _ := newTestWebTarget(t)
		req := httptest.NewRequest(http.MethodGet, "/missing", nil)
		w := httptest.NewRecorder()
		target.Handler().ServeHTTP(w, req)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestWebTargetWebsocket(t *testing.T) {
	// given
	target, _, _ := newTestWebTarget(t)
	r := devicemap.Project(devicemap.DeviceCollection{newDevice("d1", true, 1, 2, 0)}, devicemap.ViewState{})
	require.NoError(t, target.Update(context.Background(), r))
	srv := httptest.NewServer(target.Handler())
	defer srv.Close()
	// when
	ws, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", nil)
	require.NoError(t, err)
	defer ws.Close()
	// then
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(5*time.Second)))
	var got devicemap.RenderJSON
	require.NoError(t, ws.ReadJSON(&got))
	require.Len(t, got.Devices, 1)
	assert.Equal(t, "d1", got.Devices[0].Name)
}
