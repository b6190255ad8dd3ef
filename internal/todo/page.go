package todo

import (
	"bytes"
	"embed"
	"html/template"
	"io/fs"
	"log/slog"
	"net/http"

	"github.com/vango-dev/reactor/pkg/component"
)

//go:embed templates/*.html
var templateFS embed.FS

// Templates returns the component templates, rooted so that names are
// "list.html", "counter.html" and "item.html".
func Templates() fs.FS {
	sub, err := fs.Sub(templateFS, "templates")
	if err != nil {
		panic(err)
	}
	return sub
}

var pageTemplate = template.Must(template.New("page").Parse(`<!doctype html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
</head>
<body data-reactor-url="{{.WebSocketPath}}">
<div class="todoapp">{{.Body}}</div>
{{if .ClientScript}}<script src="{{.ClientScript}}" defer></script>{{end}}
</body>
</html>
`))

// PageConfig configures Page.
type PageConfig struct {
	Registry *component.Registry
	Renderer component.Renderer
	Differ   component.Differ

	// WebSocketPath is advertised to the client script.
	WebSocketPath string

	// ClientScript is the URL of the browser runtime. Omitted if empty.
	ClientScript string

	Title  string
	Logger *slog.Logger
}

// Page serves the first render of the list. The query parameter
// "showing" selects the initial filter. Components created here live
// only for the request; the browser joins them again over the socket
// using the signed state in the markup.
func Page(cfg PageConfig) http.HandlerFunc {
	if cfg.Title == "" {
		cfg.Title = "Todos"
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "todo-page")

	return func(w http.ResponseWriter, r *http.Request) {
		tree := component.NewTree(component.TreeConfig{
			Registry: cfg.Registry,
			Renderer: cfg.Renderer,
			Differ:   cfg.Differ,
			Logger:   logger,
		})
		defer tree.Discard()

		ctx := r.Context()
		args := component.Args{"showing": normalizeShowing(r.URL.Query().Get("showing"))}
		if _, err := tree.GetOrCreate(ctx, ListTag, ListID, args); err != nil {
			logger.Error("mount failed", "error", err)
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		body, err := tree.Render(ctx, ListID)
		if err != nil {
			logger.Error("render failed", "error", err)
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}

		var buf bytes.Buffer
		err = pageTemplate.Execute(&buf, struct {
			Title         string
			WebSocketPath string
			ClientScript  string
			Body          template.HTML
		}{cfg.Title, cfg.WebSocketPath, cfg.ClientScript, template.HTML(body)})
		if err != nil {
			logger.Error("page failed", "error", err)
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write(buf.Bytes())
	}
}
