package domain

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHeaderPatchApply(t *testing.T) {
	h := http.Header{}

	HeaderPatch{Op: HeaderSet, Name: "X-Powered-By", Value: "whisper", SourcePlugin: "seo"}.Apply(h)
	HeaderPatch{Op: HeaderAppend, Name: "Vary", Value: "Accept", SourcePlugin: "seo"}.Apply(h)
	HeaderPatch{Op: HeaderAppend, Name: "Vary", Value: "Accept-Encoding", SourcePlugin: "seo"}.Apply(h)

	assert.Equal(t, "whisper", h.Get("X-Powered-By"))
	assert.Equal(t, []string{"Accept", "Accept-Encoding"}, h.Values("Vary"))

	HeaderPatch{Op: HeaderRemove, Name: "X-Powered-By", SourcePlugin: "seo"}.Apply(h)
	assert.Empty(t, h.Get("X-Powered-By"))
}

func TestHeaderPatchIgnoresInvalid(t *testing.T) {
	h := http.Header{}
	h.Set("Keep", "me")

	patches := []HeaderPatch{
		{Op: HeaderSet, Name: "Bad Name", Value: "x"},
		{Op: HeaderSet, Name: "", Value: "x"},
		{Op: HeaderSet, Name: "X-Evil", Value: "a\r\nInjected: yes"},
		{Op: HeaderAppend, Name: "X-Evil", Value: "a\x00b"},
	}
	for _, p := range patches {
		p.Apply(h)
	}

	// the header map stays well formed: nothing invalid landed
	assert.Equal(t, "me", h.Get("Keep"))
	assert.Len(t, h, 1)
}

func TestModelPatchApply(t *testing.T) {
	model := []byte(`{"title":"old","count":1}`)

	p := ModelPatch{
		Doc:          []byte(`[{"op":"replace","path":"/title","value":"new"}]`),
		SourcePlugin: "seo",
	}
	out, err := p.ApplyToModel(model)
	require.NoError(t, err)
	assert.JSONEq(t, `{"title":"new","count":1}`, string(out))
}

func TestModelPatchInvalidShapeIsNoop(t *testing.T) {
	model := []byte(`{"title":"old"}`)

	p := ModelPatch{Doc: []byte(`{"not":"a patch"}`), SourcePlugin: "seo"}
	out, err := p.ApplyToModel(model)
	require.NoError(t, err)
	assert.Equal(t, model, out)
}

func TestModelPatchApplyFailureSurfaces(t *testing.T) {
	model := []byte(`{"title":"old"}`)

	// syntactically valid patch against a missing path fails at apply time
	p := ModelPatch{
		Doc:          []byte(`[{"op":"replace","path":"/missing/deep","value":1}]`),
		SourcePlugin: "seo",
	}
	_, err := p.ApplyToModel(model)
	assert.Error(t, err)
}

func TestRecommendationsPreserveOrder(t *testing.T) {
	var recs Recommendations

	recs.AddBodyPatch(BodyPatch{Kind: BodyPatchRegex, Pattern: "a", Replacement: "b", SourcePlugin: "p1"})
	recs.AddBodyPatch(BodyPatch{Kind: BodyPatchHtmlDom, Selector: "h1", SourcePlugin: "p2"})
	recs.AddHeaderPatch(HeaderPatch{Op: HeaderSet, Name: "X-A", Value: "1", SourcePlugin: "p1"})

	require.Len(t, recs.BodyPatches, 2)
	assert.Equal(t, "p1", recs.BodyPatches[0].SourcePlugin)
	assert.Equal(t, "p2", recs.BodyPatches[1].SourcePlugin)
	assert.Len(t, recs.HeaderPatches, 1)
}
