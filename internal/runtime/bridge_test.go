package runtime

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CoderByBlood/whisper-cms-sub000/internal/core/domain"
)

// roundTrip pushes a view through JSON so the merge side sees the same
// loosely typed values a script engine would hand back.
func roundTrip(t *testing.T, view map[string]any) map[string]any {
	t.Helper()
	raw, err := json.Marshal(view)
	require.NoError(t, err)
	var out map[string]any
	require.NoError(t, json.Unmarshal(raw, &out))
	return out
}

func TestBuildViewShape(t *testing.T) {
	ctx := domain.NewRequestContext("GET", "/posts/hello").
		Headers(map[string][]string{"Accept": {"text/html"}}).
		Params(map[string]string{"page": "2"}).
		ContentMeta(map[string]any{"title": "Hello"}).
		Build()

	view := BuildView(ctx, map[string]any{"greeting": "hi"})

	req := view["request"].(map[string]any)
	assert.Equal(t, ctx.ReqID, req["requestId"])
	assert.Equal(t, "/posts/hello", req["path"])
	assert.Equal(t, "GET", req["method"])
	assert.Equal(t, "HTTP/1.1", req["version"])
	assert.Equal(t, "text/html", req["headers"].(map[string]any)["Accept"])
	assert.Equal(t, "2", req["queryParams"].(map[string]any)["page"])

	resp := view["response"].(map[string]any)
	assert.Equal(t, 200, resp["status"])
	assert.Equal(t, "unset", resp["body"].(map[string]any)["kind"])

	content := view["content"].(map[string]any)
	assert.Equal(t, "Hello", content["model"].(map[string]any)["title"])
	recs := content["recommendations"].(map[string]any)
	assert.Empty(t, recs["headerPatches"])
	assert.Empty(t, recs["modelPatches"])
	assert.Empty(t, recs["bodyPatches"])

	assert.Equal(t, "hi", view["config"].(map[string]any)["greeting"])
}

func TestMergeViewResponse(t *testing.T) {
	ctx := domain.NewRequestContext("GET", "/").Build()
	view := roundTrip(t, BuildView(ctx, nil))

	resp := view["response"].(map[string]any)
	resp["status"] = float64(404)
	resp["headers"] = map[string]any{"X-Served-By": "theme"}
	resp["body"] = map[string]any{
		"kind":         "htmlTemplate",
		"templateName": "not_found",
		"model":        map[string]any{"path": "/"},
	}

	require.NoError(t, MergeView(ctx, view))

	assert.Equal(t, 404, ctx.Response.Status)
	assert.Equal(t, "theme", ctx.Response.Headers.Get("X-Served-By"))
	assert.Equal(t, domain.BodyHtmlTemplate, ctx.Response.Body.Kind)
	assert.Equal(t, "not_found", ctx.Response.Body.TemplateName)
}

func TestMergeViewRecommendations(t *testing.T) {
	ctx := domain.NewRequestContext("GET", "/").Build()
	view := roundTrip(t, BuildView(ctx, nil))

	recs := view["content"].(map[string]any)["recommendations"].(map[string]any)
	recs["headerPatches"] = []any{
		map[string]any{"kind": "set", "name": "Cache-Control", "value": "no-store", "sourcePlugin": "p1"},
	}
	recs["modelPatches"] = []any{
		map[string]any{
			"patch":        []any{map[string]any{"op": "add", "path": "/extra", "value": true}},
			"sourcePlugin": "p1",
		},
	}
	recs["bodyPatches"] = []any{
		map[string]any{"kind": "regex", "pattern": "a", "replacement": "b", "sourcePlugin": "p2"},
	}

	require.NoError(t, MergeView(ctx, view))

	require.Len(t, ctx.Recommendations.HeaderPatches, 1)
	assert.Equal(t, domain.HeaderSet, ctx.Recommendations.HeaderPatches[0].Op)

	require.Len(t, ctx.Recommendations.ModelPatches, 1)
	assert.JSONEq(t, `[{"op":"add","path":"/extra","value":true}]`,
		string(ctx.Recommendations.ModelPatches[0].Doc))

	require.Len(t, ctx.Recommendations.BodyPatches, 1)
	assert.Equal(t, domain.BodyPatchRegex, ctx.Recommendations.BodyPatches[0].Kind)
	assert.Equal(t, "p2", ctx.Recommendations.BodyPatches[0].SourcePlugin)
}

func TestMergeViewRejectsAnonymousPatches(t *testing.T) {
	for _, key := range []string{"headerPatches", "modelPatches", "bodyPatches"} {
		ctx := domain.NewRequestContext("GET", "/").Build()
		view := roundTrip(t, BuildView(ctx, nil))
		recs := view["content"].(map[string]any)["recommendations"].(map[string]any)
		recs[key] = []any{map[string]any{"kind": "set", "name": "X-A", "value": "1"}}

		err := MergeView(ctx, view)
		assert.ErrorIs(t, err, domain.ErrMissingSource, key)
	}
}

func TestMergeViewNarrowsDomOps(t *testing.T) {
	ctx := domain.NewRequestContext("GET", "/").Build()
	view := roundTrip(t, BuildView(ctx, nil))

	recs := view["content"].(map[string]any)["recommendations"].(map[string]any)
	recs["bodyPatches"] = []any{
		map[string]any{
			"kind":     "htmlDom",
			"selector": "#main",
			"ops": []any{
				map[string]any{"kind": "setInnerHtml", "value": "<p>in</p>"},
				map[string]any{"kind": "remove"},
				map[string]any{"kind": "prependHtml", "value": "<hr>"},
				map[string]any{"kind": "setAttr", "name": "id", "value": "x"},
			},
			"sourcePlugin": "p1",
		},
	}

	require.NoError(t, MergeView(ctx, view))

	require.Len(t, ctx.Recommendations.BodyPatches, 1)
	ops := ctx.Recommendations.BodyPatches[0].Ops
	require.Len(t, ops, 2)
	assert.Equal(t, domain.DomSetInnerHtml, ops[0].Kind)
	assert.Equal(t, domain.DomPrependHtml, ops[1].Kind)
}

func TestMergeViewDropsInvalidHeader(t *testing.T) {
	ctx := domain.NewRequestContext("GET", "/").Build()
	view := roundTrip(t, BuildView(ctx, nil))

	resp := view["response"].(map[string]any)
	resp["headers"] = map[string]any{"Bad\nName": "x", "X-Ok": "1"}

	require.NoError(t, MergeView(ctx, view))
	assert.Equal(t, "1", ctx.Response.Headers.Get("X-Ok"))
	assert.Empty(t, ctx.Response.Headers.Values("Bad\nName"))
}
