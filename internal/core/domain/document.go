package domain

import (
	"path/filepath"
	"strings"
)

// FmKind identifies the front matter format detected in a document.
type FmKind string

// Front matter formats.
const (
	FmYaml FmKind = "yaml"
	FmToml FmKind = "toml"
	FmJson FmKind = "json"
)

// BodyKind identifies the markup language of a document body.
type BodyKind string

// Body markup kinds.
const (
	BodyMarkdown         BodyKind = "markdown"
	BodyAsciiDoc         BodyKind = "asciidoc"
	BodyHtml             BodyKind = "html"
	BodyReStructuredText BodyKind = "restructuredtext"
	BodyOrgMode          BodyKind = "orgmode"
	BodyPlain            BodyKind = "plain"
)

// Document is an authored document moving through the ingestion pipeline.
// It is identified by its absolute path, which is stable within a run.
// The pipeline stages populate the caches; the document owns them.
type Document struct {
	// Path is the absolute source path of the document.
	Path string

	// FmKind is the detected front matter format, empty until the
	// front-matter stage runs or when no front matter exists.
	FmKind FmKind

	// BodyKind is the markup kind, empty until detected.
	BodyKind BodyKind

	// Cache is the full UTF-8 text of the file, if read.
	Cache string

	// CachedBody is the text after front matter, if split.
	CachedBody string
}

// NewDocument creates a document for a source path with empty caches.
func NewDocument(path string) *Document {
	return &Document{Path: path}
}

// BodyText returns the best snapshot to render: the body-only cache when the
// front-matter stage ran, otherwise the full cache.
func (d *Document) BodyText() string {
	if d.CachedBody != "" || d.FmKind != "" {
		return d.CachedBody
	}
	return d.Cache
}

// InferBodyKind maps a file extension to a BodyKind. The mapping is fixed
// and case-insensitive; unknown extensions fall back to plain text.
func InferBodyKind(path string) BodyKind {
	ext := strings.TrimPrefix(filepath.Ext(path), ".")
	switch strings.ToLower(ext) {
	case "md", "markdown", "mkd", "mkdn":
		return BodyMarkdown
	case "adoc", "asciidoc":
		return BodyAsciiDoc
	case "html", "htm", "xhtml":
		return BodyHtml
	case "rst":
		return BodyReStructuredText
	case "org":
		return BodyOrgMode
	default:
		return BodyPlain
	}
}

// ServedPath maps a source path to the path content is served and indexed
// under. Translated kinds are normalised to a .html extension; HTML and
// plain text keep their own.
func ServedPath(path string) string {
	switch InferBodyKind(path) {
	case BodyMarkdown, BodyAsciiDoc, BodyReStructuredText, BodyOrgMode:
		ext := filepath.Ext(path)
		return strings.TrimSuffix(path, ext) + ".html"
	default:
		return path
	}
}

// ServedPath is the path this document is served and indexed under.
func (d *Document) ServedPath() string {
	return ServedPath(d.Path)
}
