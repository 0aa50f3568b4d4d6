package bench

import (
	"embed"
	"fmt"
	"html/template"
	"io"

	"arc-framework/benchd/internal/store"
)

// HTMLTemplate is the id of the built-in html/template fortunes renderer.
const HTMLTemplate = "html"

//go:embed templates/fortunes.html
var templateFS embed.FS

// Renderer renders the fortunes page.
type Renderer interface {
	Render(w io.Writer, fortunes []store.Fortune) error
}

type htmlRenderer struct {
	tmpl *template.Template
}

func (r *htmlRenderer) Render(w io.Writer, fortunes []store.Fortune) error {
	return r.tmpl.Execute(w, fortunes)
}

var builtinRenderers = map[string]func() (Renderer, error){
	HTMLTemplate: func() (Renderer, error) {
		tmpl, err := template.ParseFS(templateFS, "templates/fortunes.html")
		if err != nil {
			return nil, err
		}
		return &htmlRenderer{tmpl: tmpl}, nil
	},
}

// Renderers builds the renderers named in ids.
func Renderers(ids []string) (map[string]Renderer, error) {
	out := make(map[string]Renderer, len(ids))
	for _, id := range ids {
		build, ok := builtinRenderers[id]
		if !ok {
			return nil, fmt.Errorf("unknown template engine %q", id)
		}
		r, err := build()
		if err != nil {
			return nil, fmt.Errorf("loading %s template: %w", id, err)
		}
		out[id] = r
	}
	return out, nil
}
