package domain

import "github.com/google/uuid"

// RequestContext is the per-request state handed to plugins and the
// theme. Every field that crosses the script boundary serializes to
// JSON; stream handles are deliberately excluded from serialization and
// travel by id instead.
type RequestContext struct {
	// ReqID is a UUID string generated at construction.
	ReqID string `json:"reqId"`

	Method  string              `json:"method"`
	Path    string              `json:"path"`
	Version string              `json:"version"`
	Headers map[string][]string `json:"headers"`
	Params  map[string]string   `json:"params"`

	// ContentMeta is the projected front matter of the matched document.
	ContentMeta map[string]any `json:"contentMeta,omitempty"`

	// ThemeConfig is the active theme's configuration document.
	ThemeConfig any `json:"themeConfig,omitempty"`

	// PluginConfigs maps plugin id to that plugin's configuration.
	PluginConfigs map[string]any `json:"pluginConfigs,omitempty"`

	// ReqBodyStream and ContentBodyStream are opaque handles resolved
	// lazily by the edge layer.
	ReqBodyStream     *StreamHandle `json:"-"`
	ContentBodyStream *StreamHandle `json:"-"`

	Recommendations Recommendations `json:"recommendations"`
	Response        ResponseSpec    `json:"responseSpec"`
}

// RequestContextBuilder assembles a RequestContext field by field.
type RequestContextBuilder struct {
	ctx RequestContext
}

// NewRequestContext starts a builder with a fresh req_id and a default
// response spec.
func NewRequestContext(method, path string) *RequestContextBuilder {
	return &RequestContextBuilder{ctx: RequestContext{
		ReqID:    uuid.NewString(),
		Method:   method,
		Path:     path,
		Version:  "HTTP/1.1",
		Headers:  map[string][]string{},
		Params:   map[string]string{},
		Response: NewResponseSpec(),
	}}
}

// Version sets the HTTP protocol version string.
func (b *RequestContextBuilder) Version(v string) *RequestContextBuilder {
	b.ctx.Version = v
	return b
}

// Headers sets the request headers.
func (b *RequestContextBuilder) Headers(h map[string][]string) *RequestContextBuilder {
	b.ctx.Headers = h
	return b
}

// Params sets the route parameters.
func (b *RequestContextBuilder) Params(p map[string]string) *RequestContextBuilder {
	b.ctx.Params = p
	return b
}

// ContentMeta sets the matched document's projected front matter.
func (b *RequestContextBuilder) ContentMeta(m map[string]any) *RequestContextBuilder {
	b.ctx.ContentMeta = m
	return b
}

// ThemeConfig sets the active theme configuration.
func (b *RequestContextBuilder) ThemeConfig(v any) *RequestContextBuilder {
	b.ctx.ThemeConfig = v
	return b
}

// PluginConfigs sets the per-plugin configuration map.
func (b *RequestContextBuilder) PluginConfigs(m map[string]any) *RequestContextBuilder {
	b.ctx.PluginConfigs = m
	return b
}

// ReqBodyStream attaches the request body stream handle.
func (b *RequestContextBuilder) ReqBodyStream(h StreamHandle) *RequestContextBuilder {
	b.ctx.ReqBodyStream = &h
	return b
}

// ContentBodyStream attaches the content body stream handle.
func (b *RequestContextBuilder) ContentBodyStream(h StreamHandle) *RequestContextBuilder {
	b.ctx.ContentBodyStream = &h
	return b
}

// Build returns the assembled context.
func (b *RequestContextBuilder) Build() *RequestContext {
	ctx := b.ctx
	return &ctx
}
