package domain

import (
	"encoding/json"
	"fmt"
	"net/http"

	jsonpatch "github.com/evanphx/json-patch/v5"
)

// HeaderOp enumerates the header patch operations.
type HeaderOp string

const (
	HeaderSet    HeaderOp = "set"
	HeaderAppend HeaderOp = "append"
	HeaderRemove HeaderOp = "remove"
)

// HeaderPatch is a single proposed header mutation. SourcePlugin records
// the plugin that proposed it, for attribution and deterministic replay
// ordering.
type HeaderPatch struct {
	Op           HeaderOp `json:"op"`
	Name         string   `json:"name"`
	Value        string   `json:"value,omitempty"`
	SourcePlugin string   `json:"sourcePlugin"`
}

// Apply mutates the header map. Invalid names or values are ignored
// silently because the data originates from untrusted plugin code.
func (p HeaderPatch) Apply(h http.Header) {
	if !ValidHeaderName(p.Name) {
		return
	}
	switch p.Op {
	case HeaderSet:
		if ValidHeaderValue(p.Value) {
			h.Set(p.Name, p.Value)
		}
	case HeaderAppend:
		if ValidHeaderValue(p.Value) {
			h.Add(p.Name, p.Value)
		}
	case HeaderRemove:
		h.Del(p.Name)
	}
}

// ModelPatch is an RFC 6902 document applied to the template model before
// rendering.
type ModelPatch struct {
	Doc          json.RawMessage `json:"doc"`
	SourcePlugin string          `json:"sourcePlugin"`
}

// ApplyToModel applies the patch to a JSON-encoded model. A payload that
// is not a syntactically valid patch document is a no-op; a valid patch
// that fails at apply time surfaces the error.
func (p ModelPatch) ApplyToModel(model []byte) ([]byte, error) {
	patch, err := jsonpatch.DecodePatch(p.Doc)
	if err != nil {
		return model, nil
	}
	out, err := patch.Apply(model)
	if err != nil {
		return nil, fmt.Errorf("applying model patch from %q: %w", p.SourcePlugin, err)
	}
	return out, nil
}

// BodyPatchKind enumerates the body patch variants.
type BodyPatchKind string

const (
	BodyPatchRegex     BodyPatchKind = "regex"
	BodyPatchHtmlDom   BodyPatchKind = "htmlDom"
	BodyPatchJsonPatch BodyPatchKind = "jsonPatch"
)

// BodyPatch is a proposed transformation of the response body. Exactly
// the fields for its Kind are set.
type BodyPatch struct {
	Kind BodyPatchKind `json:"kind"`

	// Regex fields.
	Pattern     string `json:"pattern,omitempty"`
	Replacement string `json:"replacement,omitempty"`

	// HtmlDom fields.
	Selector string  `json:"selector,omitempty"`
	Ops      []DomOp `json:"ops,omitempty"`

	// JsonPatch fields.
	Doc json.RawMessage `json:"doc,omitempty"`

	SourcePlugin string `json:"sourcePlugin"`
}

// DomOpKind enumerates the DOM mutations a HtmlDom patch can request.
type DomOpKind string

const (
	DomSetAttr          DomOpKind = "setAttr"
	DomRemoveAttr       DomOpKind = "removeAttr"
	DomAddClass         DomOpKind = "addClass"
	DomRemoveClass      DomOpKind = "removeClass"
	DomSetInnerHtml     DomOpKind = "setInnerHtml"
	DomSetInnerText     DomOpKind = "setInnerText"
	DomAppendHtml       DomOpKind = "appendHtml"
	DomPrependHtml      DomOpKind = "prependHtml"
	DomReplaceWithHtml  DomOpKind = "replaceWithHtml"
	DomReplaceWithText  DomOpKind = "replaceWithText"
	DomInsertBeforeHtml DomOpKind = "insertBeforeHtml"
	DomInsertBeforeText DomOpKind = "insertBeforeText"
	DomInsertAfterHtml  DomOpKind = "insertAfterHtml"
	DomInsertAfterText  DomOpKind = "insertAfterText"
	DomRemove           DomOpKind = "remove"
	DomUnwrap           DomOpKind = "unwrap"
)

// DomOp is one DOM mutation. Name carries the attribute or class name
// where the op needs one; Value carries html or text payloads.
type DomOp struct {
	Kind  DomOpKind `json:"kind"`
	Name  string    `json:"name,omitempty"`
	Value string    `json:"value,omitempty"`
}

// Recommendations collects the patches plugins proposed during a request.
// Each list preserves insertion order; the render stage applies them in
// that order.
type Recommendations struct {
	HeaderPatches []HeaderPatch `json:"headerPatches"`
	ModelPatches  []ModelPatch  `json:"modelPatches"`
	BodyPatches   []BodyPatch   `json:"bodyPatches"`
}

// AddHeaderPatch appends a header patch.
func (r *Recommendations) AddHeaderPatch(p HeaderPatch) {
	r.HeaderPatches = append(r.HeaderPatches, p)
}

// AddModelPatch appends a model patch.
func (r *Recommendations) AddModelPatch(p ModelPatch) {
	r.ModelPatches = append(r.ModelPatches, p)
}

// AddBodyPatch appends a body patch.
func (r *Recommendations) AddBodyPatch(p BodyPatch) {
	r.BodyPatches = append(r.BodyPatches, p)
}

// ValidHeaderName reports whether s is a syntactically valid header
// field name per RFC 9110 token rules.
func ValidHeaderName(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if !isTokenChar(s[i]) {
			return false
		}
	}
	return true
}

// ValidHeaderValue reports whether s is a valid header field value:
// visible ASCII plus space and horizontal tab, no control bytes.
func ValidHeaderValue(s string) bool {
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == '\t' {
			continue
		}
		if c < 0x20 || c == 0x7f {
			return false
		}
	}
	return true
}

func isTokenChar(c byte) bool {
	switch {
	case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		return true
	}
	switch c {
	case '!', '#', '$', '%', '&', '\'', '*', '+', '-', '.', '^', '_', '`', '|', '~':
		return true
	}
	return false
}
