// Package templates is a html/template backed implementation of the
// template registry port. Templates load from a theme directory and can
// be reloaded when the theme changes on disk.
package templates

import (
	"fmt"
	"html/template"
	"strings"
	"sync"

	"github.com/CoderByBlood/whisper-cms-sub000/internal/core/domain"
	"github.com/CoderByBlood/whisper-cms-sub000/internal/core/ports/driven"
)

// Ensure Registry implements the interface.
var _ driven.TemplateRegistry = (*Registry)(nil)

// funcs are available inside every template. raw splices trusted,
// already-rendered HTML such as the document body.
var funcs = template.FuncMap{
	"raw": func(v any) template.HTML {
		switch s := v.(type) {
		case template.HTML:
			return s
		case string:
			return template.HTML(s)
		default:
			return ""
		}
	},
}

// Registry renders named templates parsed from a theme directory.
type Registry struct {
	mu  sync.RWMutex
	tpl *template.Template
}

// NewRegistry parses every *.html and *.tmpl file under dir. Template
// names are the base file names without extension.
func NewRegistry(dir string) (*Registry, error) {
	r := &Registry{}
	if err := r.Reload(dir); err != nil {
		return nil, err
	}
	return r, nil
}

// NewRegistryFromStrings builds a registry from in-memory template
// sources, keyed by name.
func NewRegistryFromStrings(sources map[string]string) (*Registry, error) {
	root := template.New("").Funcs(funcs)
	for name, src := range sources {
		if _, err := root.New(name).Parse(src); err != nil {
			return nil, fmt.Errorf("parsing template %q: %w", name, err)
		}
	}
	return &Registry{tpl: root}, nil
}

// Reload reparses the template set from dir, replacing the previous set
// atomically. Render calls in flight finish against the old set.
func (r *Registry) Reload(dir string) error {
	tpl, err := template.New("").Funcs(funcs).ParseGlob(dir + "/*.html")
	if err != nil && !strings.Contains(err.Error(), "pattern matches no files") {
		return fmt.Errorf("parsing templates in %s: %w", dir, err)
	}
	if tpl == nil {
		tpl = template.New("").Funcs(funcs)
	}
	more, err := tpl.ParseGlob(dir + "/*.tmpl")
	if err == nil {
		tpl = more
	} else if !strings.Contains(err.Error(), "pattern matches no files") {
		return fmt.Errorf("parsing templates in %s: %w", dir, err)
	}

	// Strip extensions so themes reference "post", not "post.html".
	root := template.New("").Funcs(funcs)
	for _, t := range tpl.Templates() {
		name := t.Name()
		if name == "" {
			continue
		}
		if i := strings.LastIndex(name, "."); i > 0 {
			name = name[:i]
		}
		if _, err := root.AddParseTree(name, t.Tree); err != nil {
			return fmt.Errorf("registering template %q: %w", name, err)
		}
	}

	r.mu.Lock()
	r.tpl = root
	r.mu.Unlock()
	return nil
}

// Render executes the named template against model. An unknown name
// maps to ErrNotFound.
func (r *Registry) Render(name string, model any) (string, error) {
	r.mu.RLock()
	tpl := r.tpl
	r.mu.RUnlock()

	t := tpl.Lookup(name)
	if t == nil {
		return "", fmt.Errorf("%w: template %q", domain.ErrNotFound, name)
	}

	var buf strings.Builder
	if err := t.Execute(&buf, model); err != nil {
		return "", fmt.Errorf("rendering template %q: %w", name, err)
	}
	return buf.String(), nil
}

// Names lists the registered template names, for diagnostics.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var names []string
	for _, t := range r.tpl.Templates() {
		if t.Name() != "" {
			names = append(names, t.Name())
		}
	}
	return names
}
