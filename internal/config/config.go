package config

import (
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/vango-dev/reactor/internal/errors"
	"github.com/vango-dev/reactor/pkg/envelope"
	"github.com/vango-dev/reactor/pkg/server"
)

const (
	// ConfigFileName is the preferred configuration file name.
	ConfigFileName = "reactor.yaml"

	// DefaultKeyEnv names the environment variable holding the signing key
	// when the file does not set one.
	DefaultKeyEnv = "REACTOR_SIGNING_KEY"

	// MinKeyLength is the shortest accepted signing key, in bytes.
	MinKeyLength = 32
)

// configFileNames are tried in order by Load.
var configFileNames = []string{ConfigFileName, "reactor.yml", "reactor.json"}

// Config is the complete server configuration.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Session SessionConfig `yaml:"session"`
	Signing SigningConfig `yaml:"signing"`
	Metrics MetricsConfig `yaml:"metrics"`
	Tracing TracingConfig `yaml:"tracing"`
	Log     LogConfig     `yaml:"log"`
	Todo    TodoConfig    `yaml:"todo"`

	path string
}

// ServerConfig contains listener settings.
type ServerConfig struct {
	Address         string   `yaml:"address,omitempty"`
	WebSocketPath   string   `yaml:"websocket_path,omitempty"`
	MaxSessions     int      `yaml:"max_sessions,omitempty"`
	ShutdownTimeout Duration `yaml:"shutdown_timeout,omitempty"`

	// AllowAnyOrigin disables the same-origin check on websocket upgrades.
	AllowAnyOrigin bool `yaml:"allow_any_origin,omitempty"`
}

// SessionConfig contains per-connection settings.
type SessionConfig struct {
	ReadTimeout       Duration `yaml:"read_timeout,omitempty"`
	WriteTimeout      Duration `yaml:"write_timeout,omitempty"`
	HeartbeatInterval Duration `yaml:"heartbeat_interval,omitempty"`
	MaxMessageSize    int64    `yaml:"max_message_size,omitempty"`
	CommandQueueSize  int      `yaml:"command_queue_size,omitempty"`
	UpdateQueueSize   int      `yaml:"update_queue_size,omitempty"`
}

// SigningConfig selects the state envelope key and MAC.
type SigningConfig struct {
	// Key is the secret itself. Prefer KeyEnv outside development.
	Key string `yaml:"key,omitempty"`

	// KeyEnv names the environment variable read when Key is empty.
	KeyEnv string `yaml:"key_env,omitempty"`

	Algorithm string `yaml:"algorithm,omitempty"`
	Salt      string `yaml:"salt,omitempty"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Path      string `yaml:"path,omitempty"`
	Namespace string `yaml:"namespace,omitempty"`
}

// TracingConfig controls the OpenTelemetry middleware.
type TracingConfig struct {
	Enabled    bool   `yaml:"enabled"`
	TracerName string `yaml:"tracer_name,omitempty"`
}

// LogConfig controls the process logger.
type LogConfig struct {
	Level  string `yaml:"level,omitempty"`
	Format string `yaml:"format,omitempty"`
}

// TodoConfig configures the bundled todo application.
type TodoConfig struct {
	Database string `yaml:"database,omitempty"`
	PoolSize int    `yaml:"pool_size,omitempty"`
}

// New returns a Config holding every default.
func New() *Config {
	c := &Config{}
	c.applyDefaults()
	return c
}

func (c *Config) applyDefaults() {
	sd := server.DefaultServerConfig()
	if c.Server.Address == "" {
		c.Server.Address = sd.Address
	}
	if c.Server.WebSocketPath == "" {
		c.Server.WebSocketPath = sd.WebSocketPath
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = Duration(sd.ShutdownTimeout)
	}

	ss := sd.SessionConfig
	if c.Session.ReadTimeout == 0 {
		c.Session.ReadTimeout = Duration(ss.ReadTimeout)
	}
	if c.Session.WriteTimeout == 0 {
		c.Session.WriteTimeout = Duration(ss.WriteTimeout)
	}
	if c.Session.HeartbeatInterval == 0 {
		c.Session.HeartbeatInterval = Duration(ss.HeartbeatInterval)
	}
	if c.Session.MaxMessageSize == 0 {
		c.Session.MaxMessageSize = ss.MaxMessageSize
	}
	if c.Session.CommandQueueSize == 0 {
		c.Session.CommandQueueSize = ss.CommandQueueSize
	}
	if c.Session.UpdateQueueSize == 0 {
		c.Session.UpdateQueueSize = ss.UpdateQueueSize
	}

	if c.Signing.KeyEnv == "" {
		c.Signing.KeyEnv = DefaultKeyEnv
	}
	if c.Signing.Algorithm == "" {
		c.Signing.Algorithm = string(envelope.AlgorithmHMACSHA256)
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}
	if c.Metrics.Namespace == "" {
		c.Metrics.Namespace = "reactor"
	}
	if c.Tracing.TracerName == "" {
		c.Tracing.TracerName = "reactor"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
	if c.Todo.Database == "" {
		c.Todo.Database = "todo.db"
	}
	if c.Todo.PoolSize == 0 {
		c.Todo.PoolSize = 4
	}
}

// Load reads the first config file found in dir.
func Load(dir string) (*Config, error) {
	for _, name := range configFileNames {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err == nil {
			return LoadFile(path)
		}
	}
	return nil, errors.New("R100").
		WithDetailf("No %s found in %s.", strings.Join(configFileNames, ", "), dir)
}

// LoadFile reads, defaults and validates the config at path.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.New("R100").WithDetailf("%s does not exist.", path)
		}
		return nil, errors.New("R101").Wrap(err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, locate(err, path)
	}
	cfg.path = path
	if err := cfg.Validate(); err != nil {
		return nil, locate(err, path)
	}
	return cfg, nil
}

// Parse decodes config data and applies defaults without validating.
func Parse(data []byte) (*Config, error) {
	cfg := &Config{}
	if len(strings.TrimSpace(string(data))) > 0 {
		var doc yaml.Node
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, errors.New("R101").Wrap(err)
		}
		if err := doc.Decode(cfg); err != nil {
			var fe *fieldError
			if stderrors.As(err, &fe) {
				return nil, err
			}
			return nil, errors.New("R101").Wrap(err)
		}
	}
	cfg.applyDefaults()
	return cfg, nil
}

// locate turns a fieldError into a coded error pointing into path.
func locate(err error, path string) error {
	var fe *fieldError
	if stderrors.As(err, &fe) {
		return errors.New(fe.code).WithLocation(path, fe.line, fe.column).Wrap(fe.err)
	}
	var re *errors.ReactorError
	if stderrors.As(err, &re) && re.Location == nil {
		re.Location = &errors.Location{File: path}
	}
	return err
}

// Validate reports the first invalid setting as a coded error.
func (c *Config) Validate() error {
	if _, _, err := net.SplitHostPort(c.Server.Address); err != nil {
		return errors.New("R102").Wrap(err).
			WithSuggestion(fmt.Sprintf("Use %q or %q", ":8080", "127.0.0.1:8080"))
	}
	if !strings.HasPrefix(c.Server.WebSocketPath, "/") {
		return errors.New("R103").WithDetailf("%q does not start with /.", c.Server.WebSocketPath)
	}
	if c.Server.MaxSessions < 0 || c.Session.MaxMessageSize < 0 ||
		c.Session.CommandQueueSize < 0 || c.Session.UpdateQueueSize < 0 || c.Todo.PoolSize < 0 {
		return errors.New("R105")
	}
	if c.Session.HeartbeatInterval > 0 && c.Session.HeartbeatInterval >= c.Session.ReadTimeout {
		return errors.New("R107").WithDetailf("heartbeat_interval %s is not shorter than read_timeout %s.",
			c.Session.HeartbeatInterval.Std(), c.Session.ReadTimeout.Std())
	}
	switch envelope.Algorithm(c.Signing.Algorithm) {
	case envelope.AlgorithmHMACSHA256, envelope.AlgorithmBLAKE3:
	default:
		return errors.New("R106").WithDetailf("%q is not hmac-sha256 or blake3.", c.Signing.Algorithm)
	}
	if _, err := parseLevel(c.Log.Level); err != nil {
		return err
	}
	return nil
}

// Path returns the file the config was loaded from, if any.
func (c *Config) Path() string {
	return c.path
}

// Save writes the config back to the file it was loaded from.
func (c *Config) Save() error {
	if c.path == "" {
		return errors.Newf(errors.CategoryConfig, "no config path set")
	}
	return c.SaveTo(c.path)
}

// SaveTo writes the config as YAML.
func (c *Config) SaveTo(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return errors.New("R101").Wrap(err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.New("R101").Wrap(err)
	}
	c.path = path
	return nil
}

// SigningKey returns the configured key, read from the environment when
// the file does not contain one.
func (c *Config) SigningKey() ([]byte, error) {
	key := c.Signing.Key
	if key == "" {
		key = os.Getenv(c.Signing.KeyEnv)
	}
	if key == "" {
		return nil, errors.New("R001").
			WithSuggestion(fmt.Sprintf("export %s=$(openssl rand -hex 32)", c.Signing.KeyEnv))
	}
	if len(key) < MinKeyLength {
		return nil, errors.New("R002").WithDetailf("The key is %d bytes; at least %d are required.", len(key), MinKeyLength)
	}
	return []byte(key), nil
}

// Signer builds the state envelope signer.
func (c *Config) Signer() (*envelope.Signer, error) {
	key, err := c.SigningKey()
	if err != nil {
		return nil, err
	}
	opts := []envelope.Option{envelope.WithAlgorithm(envelope.Algorithm(c.Signing.Algorithm))}
	if c.Signing.Salt != "" {
		opts = append(opts, envelope.WithSalt(c.Signing.Salt))
	}
	s, err := envelope.NewSigner(key, opts...)
	if err != nil {
		return nil, errors.New("R106").Wrap(err)
	}
	return s, nil
}

// ServerConfig converts the file settings into a server.ServerConfig.
func (c *Config) ServerConfig() *server.ServerConfig {
	sc := server.DefaultServerConfig().
		WithAddress(c.Server.Address).
		WithWebSocketPath(c.Server.WebSocketPath).
		WithMaxSessions(c.Server.MaxSessions).
		WithSessionConfig(&server.SessionConfig{
			ReadTimeout:       c.Session.ReadTimeout.Std(),
			WriteTimeout:      c.Session.WriteTimeout.Std(),
			HeartbeatInterval: c.Session.HeartbeatInterval.Std(),
			MaxMessageSize:    c.Session.MaxMessageSize,
			CommandQueueSize:  c.Session.CommandQueueSize,
			UpdateQueueSize:   c.Session.UpdateQueueSize,
		})
	sc.ShutdownTimeout = c.Server.ShutdownTimeout.Std()
	if c.Server.AllowAnyOrigin {
		sc.CheckOrigin = func(*http.Request) bool { return true }
	}
	return sc
}

// Logger builds the process logger writing to w.
func (c *Config) Logger(w io.Writer) *slog.Logger {
	level, err := parseLevel(c.Log.Level)
	if err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if c.Log.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, errors.New("R108").WithDetailf("%q is not debug, info, warn or error.", s)
	}
	return level, nil
}

// ShutdownTimeout returns the graceful shutdown budget.
func (c *Config) ShutdownTimeout() time.Duration {
	return c.Server.ShutdownTimeout.Std()
}

// Exists reports whether dir contains a config file.
func Exists(dir string) bool {
	for _, name := range configFileNames {
		if _, err := os.Stat(filepath.Join(dir, name)); err == nil {
			return true
		}
	}
	return false
}
