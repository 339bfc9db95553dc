// Package web is the application router behind the edge proxy. It maps
// request paths to ingested documents, runs the request hooks, applies
// the accumulated recommendations and writes the rendered response.
package web

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"path/filepath"
	"strings"

	"github.com/CoderByBlood/whisper-cms-sub000/internal/core/domain"
	"github.com/CoderByBlood/whisper-cms-sub000/internal/core/ports/driven"
	"github.com/CoderByBlood/whisper-cms-sub000/internal/core/ports/driving"
	"github.com/CoderByBlood/whisper-cms-sub000/internal/logger"
	"github.com/CoderByBlood/whisper-cms-sub000/internal/render"
)

// Hook mutates the request context on behalf of a plugin or the theme.
// Hooks run in registration order; a hook error aborts the request with
// a 500.
type Hook func(ctx context.Context, rc *domain.RequestContext) error

// Router serves ingested content.
type Router struct {
	contentRoot string
	query       driving.ContentQuery
	content     driven.ContentIndex
	renderer    *render.Pipeline
	hooks       []Hook
	assets      map[string]http.Handler
}

// NewRouter builds a router rooted at contentRoot. Hooks run for every
// document request, last one typically being the theme.
func NewRouter(contentRoot string, query driving.ContentQuery, content driven.ContentIndex, renderer *render.Pipeline, hooks ...Hook) *Router {
	return &Router{
		contentRoot: filepath.Clean(contentRoot),
		query:       query,
		content:     content,
		renderer:    renderer,
		hooks:       hooks,
		assets:      map[string]http.Handler{},
	}
}

// MountAssets serves a static directory under prefix, e.g. a theme's
// assets folder.
func (rt *Router) MountAssets(prefix, dir string) {
	prefix = "/" + strings.Trim(prefix, "/") + "/"
	rt.assets[prefix] = http.StripPrefix(prefix, http.FileServer(http.Dir(dir)))
}

func (rt *Router) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	for prefix, h := range rt.assets {
		if strings.HasPrefix(r.URL.Path, prefix) {
			h.ServeHTTP(w, r)
			return
		}
	}
	rt.serveDocument(w, r)
}

func (rt *Router) serveDocument(w http.ResponseWriter, r *http.Request) {
	id, rec, err := rt.resolve(r.Context(), r.URL.Path)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			http.NotFound(w, r)
			return
		}
		logger.Error("resolving document", "path", r.URL.Path, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	rc := rt.buildContext(r, rec)
	rc.ContentBodyStream = &domain.StreamHandle{Kind: domain.StreamCas, Key: id}

	for _, hook := range rt.hooks {
		if err := hook(r.Context(), rc); err != nil {
			if errors.Is(err, domain.ErrInvalidHeader) {
				http.Error(w, "invalid header", http.StatusBadRequest)
				return
			}
			logger.Error("request hook failed", "path", r.URL.Path, "error", err)
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
	}

	if rc.Response.Body.Kind == domain.BodyUnset {
		rt.defaultBody(r.Context(), rc, id, rec)
	}

	body, contentType, err := rt.renderer.Render(rc.Response.Body, rc.Recommendations)
	if err != nil {
		logger.Error("rendering response", "path", r.URL.Path, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	for name, values := range rc.Response.Headers {
		w.Header()[name] = values
	}
	for _, patch := range rc.Recommendations.HeaderPatches {
		patch.Apply(w.Header())
	}
	if w.Header().Get("Content-Type") == "" {
		w.Header().Set("Content-Type", contentType)
	}
	w.WriteHeader(rc.Response.Status)
	w.Write(body)
}

// resolve maps a URL path to a stored document id. Directory paths fall
// back to index.html, extensionless paths to path.html.
func (rt *Router) resolve(ctx context.Context, urlPath string) (string, map[string]any, error) {
	clean := path.Clean("/" + urlPath)

	candidates := []string{clean}
	if strings.HasSuffix(urlPath, "/") || clean == "/" {
		candidates = []string{path.Join(clean, "index.html")}
	} else if path.Ext(clean) == "" {
		candidates = append(candidates, clean+".html", path.Join(clean, "index.html"))
	}

	for _, c := range candidates {
		id := filepath.Join(rt.contentRoot, filepath.FromSlash(c))
		rec, err := rt.query.FindOne(ctx, eqFilter("id", id))
		if err != nil {
			return "", nil, err
		}
		if rec != nil {
			return id, rec, nil
		}
	}
	return "", nil, fmt.Errorf("%w: %s", domain.ErrNotFound, clean)
}

func eqFilter(field string, value any) domain.Filter {
	return domain.Filter{Cond: &domain.Cond{Field: field, Op: domain.OpEq, Value: value}}
}

func (rt *Router) buildContext(r *http.Request, rec map[string]any) *domain.RequestContext {
	params := map[string]string{}
	for name, values := range r.URL.Query() {
		if len(values) > 0 {
			params[name] = values[0]
		}
	}
	return domain.NewRequestContext(r.Method, r.URL.Path).
		Version(r.Proto).
		Headers(r.Header).
		Params(params).
		ContentMeta(rec).
		Build()
}

// defaultBody fills in the response when no hook set one: the document
// template with its metadata and rendered content as the model.
func (rt *Router) defaultBody(ctx context.Context, rc *domain.RequestContext, id string, rec map[string]any) {
	model := map[string]any{"meta": rec}

	if rt.content != nil {
		rd, err := rt.content.Get(ctx, id)
		if err == nil {
			html, rerr := io.ReadAll(rd)
			rd.Close()
			if rerr == nil {
				model["content"] = string(html)
			}
		} else if !errors.Is(err, domain.ErrNotFound) {
			logger.Warn("reading content body", "id", id, "error", err)
		}
	}

	name, _ := rec["template"].(string)
	if name == "" {
		if name, _ = rec["type"].(string); name == "" {
			name = "page"
		}
	}
	rc.Response.SetHtmlTemplate(name, model)
}
