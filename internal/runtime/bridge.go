package runtime

import (
	"encoding/json"
	"fmt"

	"github.com/CoderByBlood/whisper-cms-sub000/internal/core/domain"
	"github.com/CoderByBlood/whisper-cms-sub000/internal/logger"
)

// BuildView projects a request context into the JSON object handed to
// plugin and theme code. Stream handles never cross the bridge.
func BuildView(ctx *domain.RequestContext, config map[string]any) map[string]any {
	headers := map[string]any{}
	for name, values := range ctx.Headers {
		if len(values) > 0 {
			headers[name] = values[0]
		}
	}
	params := map[string]any{}
	for name, value := range ctx.Params {
		params[name] = value
	}

	respHeaders := map[string]any{}
	for name, values := range ctx.Response.Headers {
		if len(values) > 0 {
			respHeaders[name] = values[0]
		}
	}

	if config == nil {
		config = map[string]any{}
	}

	return map[string]any{
		"request": map[string]any{
			"requestId":   ctx.ReqID,
			"path":        ctx.Path,
			"method":      ctx.Method,
			"version":     ctx.Version,
			"headers":     headers,
			"queryParams": params,
		},
		"response": map[string]any{
			"status":  ctx.Response.Status,
			"headers": respHeaders,
			"body":    bodyView(ctx.Response.Body),
		},
		"content": map[string]any{
			"model": ctx.ContentMeta,
			"recommendations": map[string]any{
				"headerPatches": []any{},
				"modelPatches":  []any{},
				"bodyPatches":   []any{},
			},
		},
		"config": config,
	}
}

func bodyView(body domain.ResponseBody) map[string]any {
	view := map[string]any{"kind": string(body.Kind)}
	switch body.Kind {
	case domain.BodyHtmlTemplate:
		view["templateName"] = body.TemplateName
		view["model"] = body.Model
	case domain.BodyHtmlString:
		view["html"] = body.Html
	case domain.BodyJsonValue:
		view["json"] = body.Json
	}
	return view
}

// MergeView folds the script's mutated view back into the context:
// response envelope plus proposed recommendations. Patches without a
// sourcePlugin are rejected.
func MergeView(ctx *domain.RequestContext, view map[string]any) error {
	if resp, ok := view["response"].(map[string]any); ok {
		mergeResponse(ctx, resp)
	}

	content, ok := view["content"].(map[string]any)
	if !ok {
		return nil
	}
	recs, ok := content["recommendations"].(map[string]any)
	if !ok {
		return nil
	}

	if err := mergeHeaderPatches(ctx, recs["headerPatches"]); err != nil {
		return err
	}
	if err := mergeModelPatches(ctx, recs["modelPatches"]); err != nil {
		return err
	}
	return mergeBodyPatches(ctx, recs["bodyPatches"])
}

func mergeResponse(ctx *domain.RequestContext, resp map[string]any) {
	if status, ok := resp["status"].(float64); ok {
		ctx.Response.SetStatus(int(status))
	}
	if headers, ok := resp["headers"].(map[string]any); ok {
		for name, v := range headers {
			value, ok := v.(string)
			if !ok {
				continue
			}
			if err := ctx.Response.SetHeader(name, value); err != nil {
				logger.Debug("dropping invalid header from script", "name", name)
			}
		}
	}
	if body, ok := resp["body"].(map[string]any); ok {
		mergeBody(ctx, body)
	}
}

func mergeBody(ctx *domain.RequestContext, body map[string]any) {
	kind, _ := body["kind"].(string)
	switch domain.ResponseBodyKind(kind) {
	case domain.BodyNone:
		ctx.Response.SetNone()
	case domain.BodyHtmlTemplate:
		name, _ := body["templateName"].(string)
		ctx.Response.SetHtmlTemplate(name, body["model"])
	case domain.BodyHtmlString:
		html, _ := body["html"].(string)
		ctx.Response.SetHtmlString(html)
	case domain.BodyJsonValue:
		ctx.Response.SetJsonValue(body["json"])
	}
}

func mergeHeaderPatches(ctx *domain.RequestContext, raw any) error {
	items, _ := raw.([]any)
	for _, item := range items {
		obj, ok := item.(map[string]any)
		if !ok {
			continue
		}
		source, _ := obj["sourcePlugin"].(string)
		if source == "" {
			return fmt.Errorf("%w: header patch missing sourcePlugin", domain.ErrMissingSource)
		}
		kind, _ := obj["kind"].(string)
		name, _ := obj["name"].(string)
		value, _ := obj["value"].(string)
		ctx.Recommendations.AddHeaderPatch(domain.HeaderPatch{
			Op:           domain.HeaderOp(kind),
			Name:         name,
			Value:        value,
			SourcePlugin: source,
		})
	}
	return nil
}

func mergeModelPatches(ctx *domain.RequestContext, raw any) error {
	items, _ := raw.([]any)
	for _, item := range items {
		obj, ok := item.(map[string]any)
		if !ok {
			continue
		}
		source, _ := obj["sourcePlugin"].(string)
		if source == "" {
			return fmt.Errorf("%w: model patch missing sourcePlugin", domain.ErrMissingSource)
		}
		doc, err := json.Marshal(obj["patch"])
		if err != nil {
			continue
		}
		ctx.Recommendations.AddModelPatch(domain.ModelPatch{
			Doc:          doc,
			SourcePlugin: source,
		})
	}
	return nil
}

// roundTripDomOps is the narrow set of DOM ops accepted back from
// script code; everything else is dropped on the return path.
var roundTripDomOps = map[domain.DomOpKind]struct{}{
	domain.DomSetInnerHtml: {},
	domain.DomPrependHtml:  {},
}

func mergeBodyPatches(ctx *domain.RequestContext, raw any) error {
	items, _ := raw.([]any)
	for _, item := range items {
		obj, ok := item.(map[string]any)
		if !ok {
			continue
		}
		source, _ := obj["sourcePlugin"].(string)
		if source == "" {
			return fmt.Errorf("%w: body patch missing sourcePlugin", domain.ErrMissingSource)
		}
		kind, _ := obj["kind"].(string)

		patch := domain.BodyPatch{
			Kind:         domain.BodyPatchKind(kind),
			SourcePlugin: source,
		}
		switch patch.Kind {
		case domain.BodyPatchRegex:
			patch.Pattern, _ = obj["pattern"].(string)
			patch.Replacement, _ = obj["replacement"].(string)

		case domain.BodyPatchHtmlDom:
			patch.Selector, _ = obj["selector"].(string)
			ops, _ := obj["ops"].([]any)
			for _, o := range ops {
				opObj, ok := o.(map[string]any)
				if !ok {
					continue
				}
				opKind, _ := opObj["kind"].(string)
				op := domain.DomOp{Kind: domain.DomOpKind(opKind)}
				if _, allowed := roundTripDomOps[op.Kind]; !allowed {
					logger.Debug("dropping dom op on return path", "kind", opKind, "plugin", source)
					continue
				}
				op.Value, _ = opObj["value"].(string)
				patch.Ops = append(patch.Ops, op)
			}

		case domain.BodyPatchJsonPatch:
			doc, err := json.Marshal(obj["doc"])
			if err != nil {
				continue
			}
			patch.Doc = doc

		default:
			continue
		}
		ctx.Recommendations.AddBodyPatch(patch)
	}
	return nil
}
