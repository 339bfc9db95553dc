package render

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CoderByBlood/whisper-cms-sub000/internal/core/domain"
)

type fakeRegistry struct {
	rendered string
	err      error
	gotName  string
	gotModel any
}

func (f *fakeRegistry) Render(name string, model any) (string, error) {
	f.gotName = name
	f.gotModel = model
	return f.rendered, f.err
}

func TestRenderUnsetAndNone(t *testing.T) {
	p := NewPipeline(nil)

	for _, kind := range []domain.ResponseBodyKind{domain.BodyUnset, domain.BodyNone} {
		out, ct, err := p.Render(domain.ResponseBody{Kind: kind}, domain.Recommendations{})
		require.NoError(t, err)
		assert.Empty(t, out)
		assert.Equal(t, "text/plain; charset=utf-8", ct)
	}
}

func TestRenderHtmlStringRegexThenDom(t *testing.T) {
	p := NewPipeline(nil)

	recs := domain.Recommendations{BodyPatches: []domain.BodyPatch{
		// the regex runs first, creating the element the DOM patch targets
		{Kind: domain.BodyPatchRegex, Pattern: `PLACEHOLDER`, Replacement: `<span id="mark">x</span>`, SourcePlugin: "p1"},
		{Kind: domain.BodyPatchHtmlDom, Selector: "#mark", Ops: []domain.DomOp{
			{Kind: domain.DomSetInnerHtml, Value: "<b>done</b>"},
		}, SourcePlugin: "p2"},
	}}

	out, ct, err := p.Render(domain.ResponseBody{
		Kind: domain.BodyHtmlString,
		Html: "<div>PLACEHOLDER</div>",
	}, recs)
	require.NoError(t, err)
	assert.Equal(t, "text/html; charset=utf-8", ct)
	assert.Contains(t, string(out), `<span id="mark"><b>done</b></span>`)
}

func TestRenderDomOps(t *testing.T) {
	p := NewPipeline(nil)

	cases := []struct {
		name string
		html string
		op   domain.DomOp
		want string
	}{
		{"set attr", `<a href="/old">x</a>`, domain.DomOp{Kind: domain.DomSetAttr, Name: "href", Value: "/new"}, `href="/new"`},
		{"add class", `<a class="one">x</a>`, domain.DomOp{Kind: domain.DomAddClass, Name: "two"}, `class="one two"`},
		{"inner text escapes", `<a>x</a>`, domain.DomOp{Kind: domain.DomSetInnerText, Value: "<evil>"}, `&lt;evil&gt;`},
		{"append html", `<a>x</a>`, domain.DomOp{Kind: domain.DomAppendHtml, Value: "<i>y</i>"}, `x<i>y</i>`},
		{"prepend html", `<a>x</a>`, domain.DomOp{Kind: domain.DomPrependHtml, Value: "<i>y</i>"}, `<i>y</i>x`},
		{"replace with text escapes", `<div><a>x</a></div>`, domain.DomOp{Kind: domain.DomReplaceWithText, Value: "<gone>"}, `&lt;gone&gt;`},
		{"insert before text", `<div><a>x</a></div>`, domain.DomOp{Kind: domain.DomInsertBeforeText, Value: "<t>"}, `&lt;t&gt;<a>x</a>`},
		{"insert after html", `<div><a>x</a></div>`, domain.DomOp{Kind: domain.DomInsertAfterHtml, Value: "<i>y</i>"}, `<a>x</a><i>y</i>`},
	}
	for _, tc := range cases {
		recs := domain.Recommendations{BodyPatches: []domain.BodyPatch{
			{Kind: domain.BodyPatchHtmlDom, Selector: "a", Ops: []domain.DomOp{tc.op}},
		}}
		out, _, err := p.Render(domain.ResponseBody{Kind: domain.BodyHtmlString, Html: tc.html}, recs)
		require.NoError(t, err, tc.name)
		assert.Contains(t, string(out), tc.want, tc.name)
	}
}

func TestRenderDomRemoveAndUnwrap(t *testing.T) {
	p := NewPipeline(nil)

	recs := domain.Recommendations{BodyPatches: []domain.BodyPatch{
		{Kind: domain.BodyPatchHtmlDom, Selector: ".ad", Ops: []domain.DomOp{{Kind: domain.DomRemove}}},
		{Kind: domain.BodyPatchHtmlDom, Selector: ".wrap", Ops: []domain.DomOp{{Kind: domain.DomUnwrap}}},
	}}

	html := `<div><p class="ad">buy</p><span class="wrap"><em>kept</em></span></div>`
	out, _, err := p.Render(domain.ResponseBody{Kind: domain.BodyHtmlString, Html: html}, recs)
	require.NoError(t, err)
	assert.NotContains(t, string(out), "buy")
	assert.NotContains(t, string(out), "wrap")
	assert.Contains(t, string(out), "<em>kept</em>")
}

func TestRenderJsonValue(t *testing.T) {
	p := NewPipeline(nil)

	recs := domain.Recommendations{BodyPatches: []domain.BodyPatch{
		{Kind: domain.BodyPatchJsonPatch, Doc: []byte(`[{"op":"replace","path":"/title","value":"patched"}]`), SourcePlugin: "p1"},
		// DOM patches are ignored for JSON bodies
		{Kind: domain.BodyPatchHtmlDom, Selector: "a", Ops: []domain.DomOp{{Kind: domain.DomRemove}}},
		{Kind: domain.BodyPatchRegex, Pattern: `patched`, Replacement: "patched-twice", SourcePlugin: "p2"},
	}}

	out, ct, err := p.Render(domain.ResponseBody{
		Kind: domain.BodyJsonValue,
		Json: map[string]any{"title": "original"},
	}, recs)
	require.NoError(t, err)
	assert.Equal(t, "application/json", ct)
	assert.JSONEq(t, `{"title":"patched-twice"}`, string(out))
}

func TestRenderHtmlTemplate(t *testing.T) {
	reg := &fakeRegistry{rendered: "<h1>from template</h1>"}
	p := NewPipeline(reg)

	recs := domain.Recommendations{ModelPatches: []domain.ModelPatch{
		{Doc: []byte(`[{"op":"replace","path":"/title","value":"patched"}]`), SourcePlugin: "seo"},
	}}

	out, ct, err := p.Render(domain.ResponseBody{
		Kind:         domain.BodyHtmlTemplate,
		TemplateName: "single",
		Model:        map[string]any{"title": "original"},
	}, recs)
	require.NoError(t, err)
	assert.Equal(t, "text/html; charset=utf-8", ct)
	assert.Contains(t, string(out), "from template")

	assert.Equal(t, "single", reg.gotName)
	model, ok := reg.gotModel.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "patched", model["title"])
}

func TestRenderTemplateWithoutRegistry(t *testing.T) {
	p := NewPipeline(nil)

	_, _, err := p.Render(domain.ResponseBody{Kind: domain.BodyHtmlTemplate, TemplateName: "x"}, domain.Recommendations{})
	assert.ErrorIs(t, err, ErrRender)
}

func TestRenderTemplateFailure(t *testing.T) {
	reg := &fakeRegistry{err: errors.New("no such template")}
	p := NewPipeline(reg)

	_, _, err := p.Render(domain.ResponseBody{Kind: domain.BodyHtmlTemplate, TemplateName: "x"}, domain.Recommendations{})
	assert.ErrorIs(t, err, ErrRender)
}
