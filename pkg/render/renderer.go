package render

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	"io/fs"
	"strings"

	"github.com/vango-dev/reactor/pkg/component"
	"github.com/vango-dev/reactor/pkg/envelope"
)

var (
	// ErrNoTemplate is returned when a component's template is not defined.
	ErrNoTemplate = errors.New("render: template not found")

	// ErrNoSigner is returned by NewTemplateRenderer without a signer.
	ErrNoSigner = errors.New("render: signer is required")

	// ErrComponentArgs is returned by the template component function when
	// its key/value arguments are malformed.
	ErrComponentArgs = errors.New("render: component expects key/value pairs")
)

// Templater is implemented by components whose template name differs
// from "<tag>.html".
type Templater interface {
	TemplateName() string
}

// TemplateConfig configures a TemplateRenderer.
type TemplateConfig struct {
	// FS holds the template files.
	FS fs.FS

	// Patterns are the glob patterns parsed from FS. Defaults to "*.html".
	Patterns []string

	// Signer seals the state attribute of every wrapper element.
	Signer *envelope.Signer

	// Funcs are extra template functions.
	Funcs template.FuncMap
}

// TemplateRenderer renders components with html/template.
// It is safe for concurrent use.
type TemplateRenderer struct {
	base   *template.Template
	signer *envelope.Signer
}

// NewTemplateRenderer parses the configured templates.
func NewTemplateRenderer(cfg TemplateConfig) (*TemplateRenderer, error) {
	if cfg.Signer == nil {
		return nil, ErrNoSigner
	}
	if len(cfg.Patterns) == 0 {
		cfg.Patterns = []string{"*.html"}
	}

	funcs := template.FuncMap{
		// Replaced per render with a function bound to the rendering
		// component.
		"component": func(string, string, ...any) (template.HTML, error) {
			return "", errors.New("render: component called outside a render")
		},
	}
	for name, fn := range cfg.Funcs {
		funcs[name] = fn
	}

	base, err := template.New("").Funcs(funcs).ParseFS(cfg.FS, cfg.Patterns...)
	if err != nil {
		return nil, fmt.Errorf("render: parse templates: %w", err)
	}
	return &TemplateRenderer{base: base, signer: cfg.Signer}, nil
}

// Render executes c's template and returns it wrapped in c's element.
// Nested components are created through m.
func (r *TemplateRenderer) Render(ctx context.Context, c component.Component, m component.Mounter) (string, error) {
	_, tag, _ := component.Identity(c)
	name := tag + ".html"
	if t, ok := c.(Templater); ok {
		name = t.TemplateName()
	}

	tmpl, err := r.base.Clone()
	if err != nil {
		return "", err
	}
	tmpl = tmpl.Funcs(template.FuncMap{"component": mountFunc(m)})

	target := tmpl.Lookup(name)
	if target == nil {
		return "", fmt.Errorf("%w: %s", ErrNoTemplate, name)
	}

	var buf bytes.Buffer
	if err := target.Execute(&buf, c); err != nil {
		return "", err
	}
	return r.Wrap(c, buf.String())
}

// Wrap encloses inner in c's custom element, carrying its id and signed
// state.
func (r *TemplateRenderer) Wrap(c component.Component, inner string) (string, error) {
	id, tag, extends := component.Identity(c)
	state, err := r.signer.Encode(c.Serialize())
	if err != nil {
		return "", err
	}

	elem := tag
	var b strings.Builder
	b.Grow(len(inner) + len(state) + 64)
	b.WriteByte('<')
	if extends != "" {
		elem = extends
		b.WriteString(elem)
		b.WriteString(` is="`)
		b.WriteString(escapeAttr(tag))
		b.WriteByte('"')
	} else {
		b.WriteString(elem)
	}
	b.WriteString(` id="`)
	b.WriteString(escapeAttr(id))
	b.WriteString(`" state="`)
	b.WriteString(escapeAttr(state))
	b.WriteString(`">`)
	b.WriteString(inner)
	b.WriteString("</")
	b.WriteString(elem)
	b.WriteByte('>')
	return b.String(), nil
}

func mountFunc(m component.Mounter) func(tag, id string, kv ...any) (template.HTML, error) {
	return func(tag, id string, kv ...any) (template.HTML, error) {
		args, err := pairs(kv)
		if err != nil {
			return "", err
		}
		out, err := m.MountChild(tag, id, args)
		if err != nil {
			return "", err
		}
		// Child output was produced by this renderer and is already escaped.
		return template.HTML(out), nil
	}
}

// pairs turns the variadic template arguments into Args. A single map
// argument is used as is.
func pairs(kv []any) (component.Args, error) {
	if len(kv) == 1 {
		switch v := kv[0].(type) {
		case component.Args:
			return v, nil
		case map[string]any:
			return v, nil
		}
	}
	if len(kv)%2 != 0 {
		return nil, ErrComponentArgs
	}
	args := make(component.Args, len(kv)/2)
	for i := 0; i < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			return nil, fmt.Errorf("%w: key %v is not a string", ErrComponentArgs, kv[i])
		}
		args[key] = kv[i+1]
	}
	return args, nil
}
