package templates

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CoderByBlood/whisper-cms-sub000/internal/core/domain"
)

func TestRegistryFromDir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "post.html"),
		[]byte(`<h1>{{.Title}}</h1>`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "page.tmpl"),
		[]byte(`<main>{{.Body}}</main>`), 0o644))

	reg, err := NewRegistry(dir)
	require.NoError(t, err)

	out, err := reg.Render("post", map[string]any{"Title": "Hello"})
	require.NoError(t, err)
	assert.Equal(t, "<h1>Hello</h1>", out)

	out, err = reg.Render("page", map[string]any{"Body": "text"})
	require.NoError(t, err)
	assert.Equal(t, "<main>text</main>", out)
}

func TestRegistryEscapesModelValues(t *testing.T) {
	reg, err := NewRegistryFromStrings(map[string]string{
		"post": `<p>{{.Title}}</p>`,
	})
	require.NoError(t, err)

	out, err := reg.Render("post", map[string]any{"Title": `<script>x</script>`})
	require.NoError(t, err)
	assert.Equal(t, "<p>&lt;script&gt;x&lt;/script&gt;</p>", out)
}

func TestRegistryRawSplicesTrustedHTML(t *testing.T) {
	reg, err := NewRegistryFromStrings(map[string]string{
		"page": `<article>{{raw .Content}}</article>`,
	})
	require.NoError(t, err)

	out, err := reg.Render("page", map[string]any{"Content": "<p>body</p>"})
	require.NoError(t, err)
	assert.Equal(t, "<article><p>body</p></article>", out)
}

func TestRegistryUnknownTemplate(t *testing.T) {
	reg, err := NewRegistryFromStrings(map[string]string{"a": "x"})
	require.NoError(t, err)

	_, err = reg.Render("missing", nil)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestRegistryEmptyDir(t *testing.T) {
	reg, err := NewRegistry(t.TempDir())
	require.NoError(t, err)

	_, err = reg.Render("anything", nil)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestRegistryReload(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "post.html"),
		[]byte(`v1`), 0o644))

	reg, err := NewRegistry(dir)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "post.html"),
		[]byte(`v2: {{.N}}`), 0o644))
	require.NoError(t, reg.Reload(dir))

	out, err := reg.Render("post", map[string]any{"N": 7})
	require.NoError(t, err)
	assert.Equal(t, "v2: 7", out)
}
