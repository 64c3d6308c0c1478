package eventbridge

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/kingrea/pipectx/internal/config"
	"github.com/kingrea/pipectx/internal/menu"
	"github.com/kingrea/pipectx/internal/pipeline"
	"github.com/kingrea/pipectx/internal/session"
)

func TestSettingsFromConfigHonorsEnv(t *testing.T) {
	t.Setenv("PIPECTX_BRIDGE_PORT", "9001")
	t.Setenv("PIPECTX_BRIDGE_HOST", "0.0.0.0")
	t.Setenv("PIPECTX_BRIDGE_ENABLED", "false")
	t.Setenv("PIPECTX_BRIDGE_QUEUE", "8")
	settings, err := SettingsFromConfig(&config.Config{})
	if err != nil {
		t.Fatalf("SettingsFromConfig: %v", err)
	}
	if settings.Port != 9001 {
		t.Fatalf("expected port 9001, got %d", settings.Port)
	}
	if settings.Host != "0.0.0.0" {
		t.Fatalf("expected host override, got %s", settings.Host)
	}
	if settings.Enabled {
		t.Fatalf("expected enabled=false from env override")
	}
	if settings.QueueCapacity != 8 {
		t.Fatalf("expected queue capacity 8, got %d", settings.QueueCapacity)
	}
}

func TestSettingsFromConfigReadsBridgeSection(t *testing.T) {
	enabled := false
	cfg := &config.Config{Project: config.ProjectConfig{Bridge: config.BridgeConfig{Enabled: &enabled, Host: "10.0.0.5", Port: 7000}}}
	settings, err := SettingsFromConfig(cfg)
	if err != nil {
		t.Fatalf("SettingsFromConfig: %v", err)
	}
	if settings.Enabled || settings.Host != "10.0.0.5" || settings.Port != 7000 {
		t.Fatalf("unexpected settings %+v", settings)
	}
	if settings.URL() != "http://10.0.0.5:7000" {
		t.Fatalf("unexpected url %s", settings.URL())
	}
	if settings.QueueCapacity != DefaultQueueCapacity {
		t.Fatalf("expected default queue capacity, got %d", settings.QueueCapacity)
	}
}

func TestSettingsFromConfigRejectsBadPort(t *testing.T) {
	t.Setenv("PIPECTX_BRIDGE_PORT", "not-a-port")
	if _, err := SettingsFromConfig(&config.Config{}); err == nil {
		t.Fatalf("expected error for malformed PIPECTX_BRIDGE_PORT")
	}
}

func TestEventValidate(t *testing.T) {
	evt := Event{Version: EventSchemaVersion, EventID: "abc", Type: TypeSceneLoad, Path: "/proj/shotA/a.scene"}
	if err := evt.Validate(); err != nil {
		t.Fatalf("expected valid event, got %v", err)
	}
	evt.Path = ""
	if err := evt.Validate(); err != nil {
		t.Fatalf("expected unsaved scene load to be valid, got %v", err)
	}
	evt.Version = 99
	if err := evt.Validate(); err == nil {
		t.Fatalf("expected version error")
	}
	bad := Event{Version: EventSchemaVersion, EventID: "abc", Type: "model_response"}
	if err := bad.Validate(); err == nil {
		t.Fatalf("expected unknown type error")
	}
	startup := Event{Version: EventSchemaVersion, EventID: "abc", Type: TypeStartupComplete, Path: "x"}
	if err := startup.Validate(); err == nil {
		t.Fatalf("expected startup with path to be rejected")
	}
}

func newTestSettings(maxBody int64) Settings {
	return Settings{Enabled: true, Host: "127.0.0.1", Port: 0, MaxBodyBytes: maxBody, ReadTimeout: time.Second, WriteTimeout: time.Second, IdleTimeout: time.Second}
}

func TestServerAcceptsEvents(t *testing.T) {
	t.Parallel()
	fixed := time.Unix(1730000000, 0).UTC()
	recorded := make(chan Event, 1)
	counted := make(chan string, 1)
	srv := NewServer(newTestSettings(1024),
		WithClock(func() time.Time { return fixed }),
		WithEventCounter(func(kind string) { counted <- kind }),
		WithProcessor(EventProcessorFunc(func(e Event) error {
			recorded <- e
			return nil
		})))
	client := &http.Client{}
	t.Cleanup(func() {
		client.CloseIdleConnections()
		_ = srv.Shutdown(context.Background())
	})
	if err := srv.Start(context.Background()); err != nil {
		t.Fatalf("start server: %v", err)
	}
	base := srv.BaseURL()
	resp, err := client.Get(base + "/health")
	if err != nil {
		t.Fatalf("health request failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 health, got %d", resp.StatusCode)
	}
	payload := Event{Version: EventSchemaVersion, EventID: "evt-1", Type: " Scene_Load ", Path: "/proj/shotA/a.scene"}
	buf, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal event: %v", err)
	}
	resp, err = client.Post(base+"/events", "application/json", bytes.NewReader(buf))
	if err != nil {
		t.Fatalf("post event: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", resp.StatusCode)
	}
	select {
	case evt := <-recorded:
		if !evt.ServerTime.Equal(fixed) {
			t.Fatalf("expected server time %s, got %s", fixed, evt.ServerTime)
		}
		if evt.Type != TypeSceneLoad {
			t.Fatalf("expected normalized type, got %q", evt.Type)
		}
	default:
		t.Fatalf("event not forwarded to processor")
	}
	select {
	case kind := <-counted:
		if kind != TypeSceneLoad {
			t.Fatalf("expected scene_load to be counted, got %q", kind)
		}
	default:
		t.Fatalf("event was not counted")
	}
}

func TestServerEnforcesPayloadLimit(t *testing.T) {
	t.Parallel()
	srv := NewServer(newTestSettings(64))
	payload := map[string]any{
		"version":  EventSchemaVersion,
		"event_id": "evt",
		"type":     TypeSceneSave,
		"path":     strings.Repeat("a", 512),
	}
	buf, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/events", bytes.NewReader(buf)))
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413, got %d", rec.Code)
	}
}

func TestServerRejectsDisabledStart(t *testing.T) {
	srv := NewServer(Settings{})
	if err := srv.Start(context.Background()); err == nil {
		t.Fatalf("expected disabled server to refuse start")
	}
}

func TestServerExposesMenuAndState(t *testing.T) {
	t.Parallel()
	project := pipeline.ProjectRef{Name: "proj"}
	entity := pipeline.EntityRef{Type: "Shot", ID: "shotA"}
	task := pipeline.TaskRef{ID: 42, Step: "Lgt", Entity: entity}
	c, err := pipeline.NewContext(&project, &entity, &task)
	if err != nil {
		t.Fatalf("context: %v", err)
	}
	snap := session.Snapshot{
		State:     session.StateActive,
		Context:   c,
		SessionID: "s-1",
		Commands:  []session.CommandSpec{{Name: "Publish", App: "tk-multi-publish"}},
	}
	srv := NewServer(newTestSettings(1024),
		WithState(func() session.Snapshot { return snap }),
		WithMenu(func() menu.Menu { return menu.Build("Shotgun", nil, snap) }),
		WithMetrics(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = io.WriteString(w, "pipectx_up 1\n")
		})))
	h := srv.Handler()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/state", nil))
	var state stateResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &state); err != nil {
		t.Fatalf("decode state: %v", err)
	}
	if state.State != "active" || state.Title != "Lgt, Shot shotA" || state.Context.Task.ID != 42 {
		t.Fatalf("unexpected state %+v", state)
	}
	if len(state.Commands) != 1 || state.Commands[0] != "Publish" {
		t.Fatalf("unexpected commands %v", state.Commands)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/menu", nil))
	if !strings.Contains(rec.Body.String(), "Lgt, Shot shotA") {
		t.Fatalf("menu missing context title:\n%s", rec.Body.String())
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/menu?format=json", nil))
	var m menu.Menu
	if err := json.Unmarshal(rec.Body.Bytes(), &m); err != nil {
		t.Fatalf("decode menu: %v", err)
	}
	if m.Title != "Shotgun" {
		t.Fatalf("unexpected menu title %q", m.Title)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if !strings.Contains(rec.Body.String(), "pipectx_up 1") {
		t.Fatalf("metrics handler not mounted")
	}
}
