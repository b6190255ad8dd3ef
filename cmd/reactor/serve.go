package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/vango-dev/reactor/internal/config"
	"github.com/vango-dev/reactor/internal/errors"
	"github.com/vango-dev/reactor/internal/todo"
	"github.com/vango-dev/reactor/pkg/component"
	"github.com/vango-dev/reactor/pkg/middleware"
	"github.com/vango-dev/reactor/pkg/render"
	"github.com/vango-dev/reactor/pkg/server"
	"github.com/vango-dev/reactor/pkg/topic"
)

func serveCmd() *cobra.Command {
	var (
		configPath string
		addr       string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the todo application",
		Long: `Run the bundled todo application.

Configuration is read from --config, or from reactor.yaml in the
working directory, or defaults. The signing key comes from the file or
from the environment variable named by signing.key_env.

Examples:
  reactor serve
  reactor serve --addr=:9000
  reactor serve --config=deploy/reactor.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			// JSON logs get JSON errors unless the flag says otherwise.
			if cfg.Log.Format == "json" && !cmd.Flags().Changed("error-format") {
				errors.SetStyle(errors.StyleJSON)
			}
			if addr != "" {
				cfg.Server.Address = addr
				if err := cfg.Validate(); err != nil {
					return err
				}
			}
			return runServe(cmd.Context(), cfg)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to the config file")
	cmd.Flags().StringVarP(&addr, "addr", "a", "", "Address to listen on (overrides the config)")

	return cmd
}

func loadConfig(path string) (*config.Config, error) {
	switch {
	case path != "":
		return config.LoadFile(path)
	case config.Exists("."):
		return config.Load(".")
	default:
		cfg := config.New()
		return cfg, cfg.Validate()
	}
}

// app is a wired, not yet listening, todo server.
type app struct {
	server *server.Server
	topics *topic.Registry
	store  *todo.Store
	logger *slog.Logger
}

func (a *app) Close() error {
	a.topics.Close()
	return a.store.Close()
}

func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, error) {
	signer, err := cfg.Signer()
	if err != nil {
		return nil, err
	}

	topicOpts := []topic.Option{topic.WithLogger(logger)}
	if cfg.Metrics.Enabled {
		middleware.InitMetrics(middleware.WithNamespace(cfg.Metrics.Namespace))
		topicOpts = append(topicOpts, topic.WithObserver(middleware.TopicObserver()))
	}
	topics := topic.NewRegistry(topicOpts...)

	store, err := todo.Open(ctx, todo.StoreConfig{
		Path:      cfg.Todo.Database,
		PoolSize:  cfg.Todo.PoolSize,
		Publisher: topics,
		Logger:    logger,
	})
	if err != nil {
		topics.Close()
		return nil, err
	}

	reg := component.NewRegistry()
	if err := todo.Register(reg, store); err != nil {
		topics.Close()
		store.Close()
		return nil, err
	}
	renderer, err := render.NewTemplateRenderer(render.TemplateConfig{FS: todo.Templates(), Signer: signer})
	if err != nil {
		topics.Close()
		store.Close()
		return nil, errors.New("R005").Wrap(err)
	}
	differ := render.NewTextDiffer()

	sc := cfg.ServerConfig()
	srv := server.New(sc, &server.Runtime{
		Topics:     topics,
		Components: reg,
		Signer:     signer,
		Renderer:   renderer,
		Differ:     differ,
	})

	if cfg.Metrics.Enabled {
		srv.Use(middleware.Prometheus())
		srv.SetHooks(middleware.Hooks())
		srv.Router().Handle(cfg.Metrics.Path, promhttp.Handler())
	}
	if cfg.Tracing.Enabled {
		srv.Use(middleware.OpenTelemetry(middleware.WithTracerName(cfg.Tracing.TracerName)))
	}

	srv.Router().Get("/", todo.Page(todo.PageConfig{
		Registry:      reg,
		Renderer:      renderer,
		Differ:        differ,
		WebSocketPath: sc.WebSocketPath,
		Logger:        logger,
	}))

	return &app{server: srv, topics: topics, store: store, logger: logger}, nil
}

func runServe(ctx context.Context, cfg *config.Config) error {
	if ctx == nil {
		ctx = context.Background()
	}
	logger := cfg.Logger(os.Stderr)
	slog.SetDefault(logger)

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	// Bind early so a taken port is reported as a coded error.
	ln, err := net.Listen("tcp", cfg.Server.Address)
	if err != nil {
		return errors.New("R004").Wrap(err).WithDetailf("Listening on %s failed.", cfg.Server.Address)
	}
	ln.Close()

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	success("Serving todos on http://%s", displayAddr(cfg.Server.Address))
	return a.server.Run(ctx)
}

func displayAddr(addr string) string {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	if host == "" {
		host = "localhost"
	}
	return fmt.Sprintf("%s:%s", host, port)
}
