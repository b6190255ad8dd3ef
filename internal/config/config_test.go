package config

import (
	"bytes"
	stderrors "errors"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/vango-dev/reactor/internal/errors"
	"github.com/vango-dev/reactor/pkg/envelope"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestNewDefaults(t *testing.T) {
	cfg := New()

	if cfg.Server.Address != ":8080" || cfg.Server.WebSocketPath != "/ws" {
		t.Errorf("Server = %+v", cfg.Server)
	}
	if cfg.Session.ReadTimeout.Std() != 60*time.Second {
		t.Errorf("ReadTimeout = %s, want 60s", cfg.Session.ReadTimeout.Std())
	}
	if cfg.Signing.KeyEnv != DefaultKeyEnv || cfg.Signing.Algorithm != "hmac-sha256" {
		t.Errorf("Signing = %+v", cfg.Signing)
	}
	if cfg.Todo.Database != "todo.db" || cfg.Metrics.Path != "/metrics" {
		t.Errorf("defaults = %+v %+v", cfg.Todo, cfg.Metrics)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() = %v", err)
	}
}

func TestLoadYAML(t *testing.T) {
	path := writeConfig(t, "reactor.yaml", `
server:
  address: "127.0.0.1:9000"
  max_sessions: 50
session:
  read_timeout: 2m
  heartbeat_interval: 45s
  update_queue_size: 16
signing:
  key: 0123456789abcdef0123456789abcdef
  algorithm: blake3
metrics:
  enabled: true
log:
  level: debug
  format: json
todo:
  database: /tmp/todos.db
`)
	cfg, err := Load(filepath.Dir(path))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Path() != path {
		t.Errorf("Path() = %q, want %q", cfg.Path(), path)
	}
	if cfg.Server.Address != "127.0.0.1:9000" || cfg.Server.MaxSessions != 50 {
		t.Errorf("Server = %+v", cfg.Server)
	}
	if cfg.Session.ReadTimeout.Std() != 2*time.Minute || cfg.Session.HeartbeatInterval.Std() != 45*time.Second {
		t.Errorf("Session = %+v", cfg.Session)
	}
	// Unset fields keep their defaults.
	if cfg.Session.WriteTimeout.Std() != 10*time.Second {
		t.Errorf("WriteTimeout = %s, want 10s", cfg.Session.WriteTimeout.Std())
	}
	if !cfg.Metrics.Enabled || cfg.Tracing.Enabled {
		t.Errorf("Metrics = %+v Tracing = %+v", cfg.Metrics, cfg.Tracing)
	}

	signer, err := cfg.Signer()
	if err != nil {
		t.Fatalf("Signer() error = %v", err)
	}
	if signer.Algorithm() != envelope.AlgorithmBLAKE3 {
		t.Errorf("Algorithm() = %q, want blake3", signer.Algorithm())
	}

	sc := cfg.ServerConfig()
	if sc.Address != "127.0.0.1:9000" || sc.MaxSessions != 50 {
		t.Errorf("ServerConfig() = %+v", sc)
	}
	if sc.SessionConfig.UpdateQueueSize != 16 || sc.SessionConfig.ReadTimeout != 2*time.Minute {
		t.Errorf("SessionConfig = %+v", sc.SessionConfig)
	}
	if err := sc.ValidateConfig(); err != nil {
		t.Errorf("ValidateConfig() = %v", err)
	}
}

func TestLoadJSON(t *testing.T) {
	path := writeConfig(t, "reactor.json", `{
  "server": {"address": ":7000", "websocket_path": "/live"},
  "session": {"write_timeout": "5s"}
}`)
	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}
	if cfg.Server.Address != ":7000" || cfg.Server.WebSocketPath != "/live" {
		t.Errorf("Server = %+v", cfg.Server)
	}
	if cfg.Session.WriteTimeout.Std() != 5*time.Second {
		t.Errorf("WriteTimeout = %s", cfg.Session.WriteTimeout.Std())
	}
}

func TestLoadMissing(t *testing.T) {
	_, err := Load(t.TempDir())
	if got := errors.Code(err); got != "R100" {
		t.Errorf("Load() code = %q, want R100 (err %v)", got, err)
	}
	_, err = LoadFile(filepath.Join(t.TempDir(), "nope.yaml"))
	if got := errors.Code(err); got != "R100" {
		t.Errorf("LoadFile() code = %q, want R100", got)
	}
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name     string
		content  string
		wantCode string
		wantLine int
	}{
		{"syntax", "server: [unclosed\n", "R101", 0},
		{"bad duration", "session:\n  read_timeout: soon\n", "R104", 2},
		{"negative duration", "server:\n  shutdown_timeout: -5s\n", "R104", 2},
		{"address", "server:\n  address: localhost\n", "R102", 0},
		{"path", "server:\n  websocket_path: ws\n", "R103", 0},
		{"limit", "session:\n  update_queue_size: -1\n", "R105", 0},
		{"algorithm", "signing:\n  algorithm: md5\n", "R106", 0},
		{"heartbeat", "session:\n  read_timeout: 10s\n  heartbeat_interval: 10s\n", "R107", 0},
		{"log level", "log:\n  level: loud\n", "R108", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfig(t, "reactor.yaml", tt.content)
			_, err := LoadFile(path)
			if got := errors.Code(err); got != tt.wantCode {
				t.Fatalf("LoadFile() code = %q, want %q (err %v)", got, tt.wantCode, err)
			}
			var re *errors.ReactorError
			if !stderrors.As(err, &re) || re.Location == nil || re.Location.File != path {
				t.Fatalf("error should point at %s: %+v", path, re)
			}
			if tt.wantLine > 0 && re.Location.Line != tt.wantLine {
				t.Errorf("Location.Line = %d, want %d", re.Location.Line, tt.wantLine)
			}
		})
	}
}

func TestParseEmpty(t *testing.T) {
	cfg, err := Parse([]byte("  \n"))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if cfg.Server.Address != ":8080" {
		t.Errorf("Address = %q", cfg.Server.Address)
	}
}

func TestSigningKeyFromEnv(t *testing.T) {
	cfg := New()
	cfg.Signing.KeyEnv = "REACTOR_TEST_SIGNING_KEY"

	t.Setenv("REACTOR_TEST_SIGNING_KEY", "")
	if _, err := cfg.SigningKey(); errors.Code(err) != "R001" {
		t.Errorf("SigningKey() without key = %v, want R001", err)
	}

	t.Setenv("REACTOR_TEST_SIGNING_KEY", "short")
	if _, err := cfg.SigningKey(); errors.Code(err) != "R002" {
		t.Errorf("SigningKey() with short key = %v, want R002", err)
	}

	key := strings.Repeat("k", MinKeyLength)
	t.Setenv("REACTOR_TEST_SIGNING_KEY", key)
	got, err := cfg.SigningKey()
	if err != nil || string(got) != key {
		t.Errorf("SigningKey() = %q, %v", got, err)
	}

	cfg.Signing.Key = strings.Repeat("f", MinKeyLength)
	if got, _ := cfg.SigningKey(); string(got) != cfg.Signing.Key {
		t.Error("the key in the file wins over the environment")
	}
}

func TestAllowAnyOrigin(t *testing.T) {
	cfg := New()
	r := httptest.NewRequest("GET", "http://example.com/ws", nil)
	r.Header.Set("Origin", "http://other.example")

	if cfg.ServerConfig().CheckOrigin(r) {
		t.Error("default config should reject a foreign origin")
	}
	cfg.Server.AllowAnyOrigin = true
	if !cfg.ServerConfig().CheckOrigin(r) {
		t.Error("allow_any_origin should accept a foreign origin")
	}
}

func TestSaveRoundTrip(t *testing.T) {
	cfg := New()
	cfg.Server.Address = ":9999"
	cfg.Session.ReadTimeout = Duration(90 * time.Second)

	path := filepath.Join(t.TempDir(), "reactor.yaml")
	if err := cfg.SaveTo(path); err != nil {
		t.Fatalf("SaveTo() error = %v", err)
	}
	loaded, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}
	if loaded.Server.Address != ":9999" || loaded.Session.ReadTimeout.Std() != 90*time.Second {
		t.Errorf("loaded = %+v", loaded)
	}
	if !Exists(filepath.Dir(path)) {
		t.Error("Exists() = false after save")
	}
}

func TestLogger(t *testing.T) {
	cfg := New()
	cfg.Log.Format = "json"
	cfg.Log.Level = "warn"

	var buf bytes.Buffer
	logger := cfg.Logger(&buf)
	logger.Info("hidden")
	logger.Warn("shown", "k", "v")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Error("info line should be filtered at warn level")
	}
	if !strings.Contains(out, `"msg":"shown"`) || !strings.Contains(out, `"k":"v"`) {
		t.Errorf("json output = %q", out)
	}
}
