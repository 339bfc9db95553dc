// Package render turns a response body spec and the request's body
// patches into bytes plus a content-type hint. Regex patches run before
// DOM patches on HTML; JSON bodies take JSON Patch then regex over the
// serialized bytes.
package render

import (
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	jsonpatch "github.com/evanphx/json-patch/v5"

	"github.com/CoderByBlood/whisper-cms-sub000/internal/core/domain"
	"github.com/CoderByBlood/whisper-cms-sub000/internal/core/ports/driven"
	"github.com/CoderByBlood/whisper-cms-sub000/internal/logger"
)

// ErrRender marks any failure in the render stage; the edge maps it to
// HTTP 500.
var ErrRender = errors.New("render failed")

const (
	ctPlain = "text/plain; charset=utf-8"
	ctHTML  = "text/html; charset=utf-8"
	ctJSON  = "application/json"
)

// Pipeline renders response bodies. The template registry is only
// required for HtmlTemplate bodies.
type Pipeline struct {
	templates driven.TemplateRegistry
}

// NewPipeline creates a render pipeline. templates may be nil when no
// template bodies are served.
func NewPipeline(templates driven.TemplateRegistry) *Pipeline {
	return &Pipeline{templates: templates}
}

// Render produces the final body bytes and a content-type hint from the
// spec and the ordered recommendations.
func (p *Pipeline) Render(body domain.ResponseBody, recs domain.Recommendations) ([]byte, string, error) {
	switch body.Kind {
	case domain.BodyUnset, domain.BodyNone, "":
		return nil, ctPlain, nil

	case domain.BodyHtmlString:
		out, err := renderHTML(body.Html, recs.BodyPatches)
		if err != nil {
			return nil, "", err
		}
		return out, ctHTML, nil

	case domain.BodyJsonValue:
		out, err := renderJSON(body.Json, recs.BodyPatches)
		if err != nil {
			return nil, "", err
		}
		return out, ctJSON, nil

	case domain.BodyHtmlTemplate:
		if p.templates == nil {
			return nil, "", fmt.Errorf("%w: template %q requested without a registry", ErrRender, body.TemplateName)
		}
		model, err := patchedModel(body.Model, recs.ModelPatches)
		if err != nil {
			return nil, "", err
		}
		rendered, err := p.templates.Render(body.TemplateName, model)
		if err != nil {
			return nil, "", fmt.Errorf("%w: template %q: %v", ErrRender, body.TemplateName, err)
		}
		out, err := renderHTML(rendered, recs.BodyPatches)
		if err != nil {
			return nil, "", err
		}
		return out, ctHTML, nil

	default:
		return nil, "", fmt.Errorf("%w: unknown body kind %q", ErrRender, body.Kind)
	}
}

// patchedModel applies the model patches in order to the template model.
func patchedModel(model any, patches []domain.ModelPatch) (any, error) {
	if len(patches) == 0 {
		return model, nil
	}
	raw, err := json.Marshal(model)
	if err != nil {
		return nil, fmt.Errorf("%w: encoding model: %v", ErrRender, err)
	}
	for _, patch := range patches {
		raw, err = patch.ApplyToModel(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrRender, err)
		}
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("%w: decoding patched model: %v", ErrRender, err)
	}
	return out, nil
}

// renderHTML runs regex patches over the text first, then DOM patches.
func renderHTML(text string, patches []domain.BodyPatch) ([]byte, error) {
	for _, patch := range patches {
		if patch.Kind != domain.BodyPatchRegex {
			continue
		}
		re, err := regexp.Compile(patch.Pattern)
		if err != nil {
			return nil, fmt.Errorf("%w: regex patch from %q: %v", ErrRender, patch.SourcePlugin, err)
		}
		text = re.ReplaceAllString(text, patch.Replacement)
	}

	var domPatches []domain.BodyPatch
	for _, patch := range patches {
		if patch.Kind == domain.BodyPatchHtmlDom {
			domPatches = append(domPatches, patch)
		}
	}
	if len(domPatches) == 0 {
		return []byte(text), nil
	}

	wholeDoc := strings.Contains(strings.ToLower(text), "<html")
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(text))
	if err != nil {
		return nil, fmt.Errorf("%w: parsing html: %v", ErrRender, err)
	}

	for _, patch := range domPatches {
		sel := doc.Find(patch.Selector)
		for _, op := range patch.Ops {
			applyDomOp(sel, op)
		}
	}

	var out string
	if wholeDoc {
		out, err = doc.Html()
	} else {
		out, err = doc.Find("body").Html()
	}
	if err != nil {
		return nil, fmt.Errorf("%w: serializing html: %v", ErrRender, err)
	}
	return []byte(out), nil
}

// applyDomOp maps one DOM mutation onto the selection. Text variants
// escape here so patch payloads can never inject markup.
func applyDomOp(sel *goquery.Selection, op domain.DomOp) {
	switch op.Kind {
	case domain.DomSetAttr:
		sel.SetAttr(op.Name, op.Value)
	case domain.DomRemoveAttr:
		sel.RemoveAttr(op.Name)
	case domain.DomAddClass:
		sel.AddClass(op.Name)
	case domain.DomRemoveClass:
		sel.RemoveClass(op.Name)
	case domain.DomSetInnerHtml:
		sel.SetHtml(op.Value)
	case domain.DomSetInnerText:
		sel.SetHtml(html.EscapeString(op.Value))
	case domain.DomAppendHtml:
		sel.AppendHtml(op.Value)
	case domain.DomPrependHtml:
		sel.PrependHtml(op.Value)
	case domain.DomReplaceWithHtml:
		sel.ReplaceWithHtml(op.Value)
	case domain.DomReplaceWithText:
		sel.ReplaceWithHtml(html.EscapeString(op.Value))
	case domain.DomInsertBeforeHtml:
		sel.BeforeHtml(op.Value)
	case domain.DomInsertBeforeText:
		sel.BeforeHtml(html.EscapeString(op.Value))
	case domain.DomInsertAfterHtml:
		sel.AfterHtml(op.Value)
	case domain.DomInsertAfterText:
		sel.AfterHtml(html.EscapeString(op.Value))
	case domain.DomRemove:
		sel.Remove()
	case domain.DomUnwrap:
		sel.Each(func(_ int, s *goquery.Selection) {
			s.ReplaceWithSelection(s.Contents())
		})
	default:
		logger.Debug("ignoring unknown dom op", "kind", op.Kind)
	}
}

// renderJSON applies JSON Patch body patches, then regex patches over
// the serialized bytes. DOM patches are ignored for JSON bodies.
func renderJSON(value any, patches []domain.BodyPatch) ([]byte, error) {
	raw, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("%w: encoding json body: %v", ErrRender, err)
	}

	for _, patch := range patches {
		if patch.Kind != domain.BodyPatchJsonPatch {
			continue
		}
		decoded, err := jsonpatch.DecodePatch(patch.Doc)
		if err != nil {
			continue
		}
		raw, err = decoded.Apply(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: json patch from %q: %v", ErrRender, patch.SourcePlugin, err)
		}
	}

	for _, patch := range patches {
		if patch.Kind != domain.BodyPatchRegex {
			continue
		}
		re, err := regexp.Compile(patch.Pattern)
		if err != nil {
			return nil, fmt.Errorf("%w: regex patch from %q: %v", ErrRender, patch.SourcePlugin, err)
		}
		raw = re.ReplaceAll(raw, []byte(patch.Replacement))
	}
	return raw, nil
}
