package render

import (
	"context"
	"errors"
	"strings"
	"testing"
	"testing/fstest"

	"github.com/vango-dev/reactor/pkg/component"
	"github.com/vango-dev/reactor/pkg/envelope"
)

type card struct {
	component.Base
	Text string
	Kids []string
}

func (c *card) Mount(ctx *component.Context, args component.Args) error {
	c.Text = args.String("text", "")
	return nil
}

func (c *card) Serialize() component.Args {
	return component.Args{"id": c.ID(), "text": c.Text}
}

type badge struct {
	component.Base
}

func (b *badge) TemplateName() string { return "badge.html" }

var testTemplates = fstest.MapFS{
	"x-card.html":       {Data: []byte(`<p>{{.Text}}</p>{{range .Kids}}{{component "x-plain" . "text" "kid"}}{{end}}`)},
	"x-plain.html":      {Data: []byte(`{{.Text}}`)},
	"shared/badge.html": {Data: []byte(`badge:{{.ID}}`)},
}

func newTestSetup(t *testing.T) (*component.Tree, *envelope.Signer) {
	t.Helper()
	signer, err := envelope.NewSigner([]byte("render-test-secret"))
	if err != nil {
		t.Fatal(err)
	}
	r, err := NewTemplateRenderer(TemplateConfig{
		FS:       testTemplates,
		Patterns: []string{"*.html", "shared/*.html"},
		Signer:   signer,
	})
	if err != nil {
		t.Fatalf("NewTemplateRenderer() error = %v", err)
	}

	reg := component.NewRegistry()
	reg.MustRegister(
		component.Define("x-card", "li", func() *card { return &card{} }, nil),
		component.Define("x-plain", "", func() *card { return &card{} }, nil),
		component.Define("x-badge", "", func() *badge { return &badge{} }, nil),
		component.Define("x-broken", "", func() *badge { return &badge{} }, nil),
	)
	tree := component.NewTree(component.TreeConfig{
		Registry: reg,
		Renderer: r,
		Differ:   NewTextDiffer(),
	})
	return tree, signer
}

func renderFull(t *testing.T, tree *component.Tree, id string) string {
	t.Helper()
	artifact, changed, err := tree.RenderDiff(context.Background(), id)
	if err != nil {
		t.Fatalf("RenderDiff(%s) error = %v", id, err)
	}
	if !changed {
		t.Fatalf("RenderDiff(%s) reported no change", id)
	}
	html, err := Apply("", artifact.([]any))
	if err != nil {
		t.Fatal(err)
	}
	return html
}

func attr(html, name string) string {
	start := strings.Index(html, name+`="`)
	if start < 0 {
		return ""
	}
	rest := html[start+len(name)+2:]
	return rest[:strings.IndexByte(rest, '"')]
}

func TestRenderCustomizedBuiltin(t *testing.T) {
	tree, signer := newTestSetup(t)
	if _, err := tree.GetOrCreate(context.Background(), "x-card", "c1", component.Args{"text": "<b>hi</b>"}); err != nil {
		t.Fatal(err)
	}

	html := renderFull(t, tree, "c1")
	if !strings.HasPrefix(html, `<li is="x-card" id="c1" state="`) {
		t.Errorf("wrapper = %q", html)
	}
	if !strings.HasSuffix(html, "</li>") {
		t.Errorf("missing closing tag: %q", html)
	}
	if !strings.Contains(html, "<p>&lt;b&gt;hi&lt;/b&gt;</p>") {
		t.Errorf("text should be escaped: %q", html)
	}

	state, err := signer.Decode(attr(html, "state"))
	if err != nil {
		t.Fatalf("state does not verify: %v", err)
	}
	if state["id"] != "c1" || state["text"] != "<b>hi</b>" {
		t.Errorf("state = %v", state)
	}
}

func TestRenderAutonomousElement(t *testing.T) {
	tree, _ := newTestSetup(t)
	if _, err := tree.GetOrCreate(context.Background(), "x-plain", "p1", component.Args{"text": "plain"}); err != nil {
		t.Fatal(err)
	}
	html := renderFull(t, tree, "p1")
	if !strings.HasPrefix(html, `<x-plain id="p1" state="`) || !strings.HasSuffix(html, "plain</x-plain>") {
		t.Errorf("html = %q", html)
	}
}

func TestRenderNestedComponent(t *testing.T) {
	tree, _ := newTestSetup(t)
	c, err := tree.GetOrCreate(context.Background(), "x-card", "c1", nil)
	if err != nil {
		t.Fatal(err)
	}
	c.(*card).Kids = []string{"k1", "k2"}

	html := renderFull(t, tree, "c1")
	if !strings.Contains(html, `<x-plain id="k1" state="`) || !strings.Contains(html, `kid</x-plain>`) {
		t.Errorf("nested output missing: %q", html)
	}
	if got := tree.Children("c1"); len(got) != 2 {
		t.Errorf("Children(c1) = %v, want 2 children", got)
	}
}

func TestRenderTemplateName(t *testing.T) {
	tree, _ := newTestSetup(t)
	if _, err := tree.GetOrCreate(context.Background(), "x-badge", "b1", nil); err != nil {
		t.Fatal(err)
	}
	html := renderFull(t, tree, "b1")
	if !strings.Contains(html, ">badge:b1</x-badge>") {
		t.Errorf("html = %q", html)
	}
}

func TestRenderErrors(t *testing.T) {
	if _, err := NewTemplateRenderer(TemplateConfig{FS: testTemplates}); !errors.Is(err, ErrNoSigner) {
		t.Errorf("NewTemplateRenderer(no signer) error = %v, want ErrNoSigner", err)
	}

	args, err := pairs([]any{"a", 1, "b"})
	if !errors.Is(err, ErrComponentArgs) || args != nil {
		t.Errorf("pairs(odd) = %v, %v", args, err)
	}
	if _, err := pairs([]any{1, 2}); !errors.Is(err, ErrComponentArgs) {
		t.Errorf("pairs(non-string key) error = %v", err)
	}
	if got, err := pairs([]any{map[string]any{"x": 1}}); err != nil || got["x"] != 1 {
		t.Errorf("pairs(map) = %v, %v", got, err)
	}
}

func TestRenderMissingTemplate(t *testing.T) {
	tree, _ := newTestSetup(t)
	// Without the shared pattern badge.html is never parsed.
	signer, _ := envelope.NewSigner([]byte("k"))
	r, err := NewTemplateRenderer(TemplateConfig{FS: testTemplates, Signer: signer})
	if err != nil {
		t.Fatal(err)
	}
	comp, err := tree.GetOrCreate(context.Background(), "x-broken", "x1", nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := r.Render(context.Background(), comp, nil); !errors.Is(err, ErrNoTemplate) {
		t.Errorf("Render() error = %v, want ErrNoTemplate", err)
	}
}
