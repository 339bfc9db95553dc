// Package markup renders document bodies to HTML. Markdown goes through
// goldmark with GFM extensions; html and plain are pass-through. Other
// markups render through pluggable hooks so external tools can be wired
// in without touching the pipeline.
package markup

import (
	"bytes"
	"errors"
	"fmt"
	"html"
	"strings"
	"sync"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	gmhtml "github.com/yuin/goldmark/renderer/html"

	"github.com/CoderByBlood/whisper-cms-sub000/internal/core/domain"
)

// Distinct renderer failures keyed by markup kind.
var (
	ErrMarkdown         = errors.New("rendering markdown")
	ErrAsciiDoc         = errors.New("rendering asciidoc")
	ErrReStructuredText = errors.New("rendering restructuredtext")
	ErrOrgMode          = errors.New("rendering orgmode")
)

// Hook renders one markup kind to HTML.
type Hook func(body string) (string, error)

var markdown = goldmark.New(
	goldmark.WithExtensions(
		extension.GFM,
		extension.Footnote,
	),
	goldmark.WithRendererOptions(
		gmhtml.WithUnsafe(),
	),
)

var (
	hookMu sync.RWMutex
	hooks  = map[domain.BodyKind]Hook{}
)

// RegisterHook installs a renderer for asciidoc, restructuredtext or
// orgmode bodies. Later registrations replace earlier ones.
func RegisterHook(kind domain.BodyKind, h Hook) {
	hookMu.Lock()
	defer hookMu.Unlock()
	hooks[kind] = h
}

// Render converts a document body to HTML according to its kind. A
// document without a detected kind falls back to the extension mapping.
func Render(doc *domain.Document) (string, error) {
	kind := doc.BodyKind
	if kind == "" {
		kind = domain.InferBodyKind(doc.Path)
	}
	body := doc.BodyText()

	switch kind {
	case domain.BodyMarkdown:
		var buf bytes.Buffer
		if err := markdown.Convert([]byte(body), &buf); err != nil {
			return "", fmt.Errorf("%w: %v", ErrMarkdown, err)
		}
		return buf.String(), nil

	case domain.BodyHtml:
		return body, nil

	case domain.BodyAsciiDoc:
		return renderHook(kind, body, ErrAsciiDoc)

	case domain.BodyReStructuredText:
		return renderHook(kind, body, ErrReStructuredText)

	case domain.BodyOrgMode:
		return renderHook(kind, body, ErrOrgMode)

	default:
		return body, nil
	}
}

// renderHook dispatches to a registered hook; without one the body is
// served escaped inside a pre block so no markup is lost.
func renderHook(kind domain.BodyKind, body string, kindErr error) (string, error) {
	hookMu.RLock()
	h := hooks[kind]
	hookMu.RUnlock()
	if h == nil {
		var sb strings.Builder
		sb.WriteString("<pre>")
		sb.WriteString(html.EscapeString(body))
		sb.WriteString("</pre>")
		return sb.String(), nil
	}
	out, err := h(body)
	if err != nil {
		return "", fmt.Errorf("%w: %v", kindErr, err)
	}
	return out, nil
}
