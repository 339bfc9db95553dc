package domain

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewResponseSpecDefaults(t *testing.T) {
	spec := NewResponseSpec()

	assert.Equal(t, http.StatusOK, spec.Status)
	assert.Equal(t, BodyUnset, spec.Body.Kind)
	assert.Empty(t, spec.Headers)
}

func TestResponseSpecHeaders(t *testing.T) {
	spec := NewResponseSpec()

	require.NoError(t, spec.SetHeader("Content-Language", "en"))
	require.NoError(t, spec.AppendHeader("Vary", "Accept"))
	require.NoError(t, spec.AppendHeader("Vary", "Cookie"))

	assert.Equal(t, "en", spec.Headers.Get("Content-Language"))
	assert.Equal(t, []string{"Accept", "Cookie"}, spec.Headers.Values("Vary"))

	spec.RemoveHeader("Vary")
	assert.Empty(t, spec.Headers.Values("Vary"))
}

func TestResponseSpecRejectsInvalidHeaders(t *testing.T) {
	spec := NewResponseSpec()

	assert.ErrorIs(t, spec.SetHeader("Bad Name", "v"), ErrInvalidHeader)
	assert.ErrorIs(t, spec.SetHeader("X-Ok", "bad\r\nvalue"), ErrInvalidHeader)
	assert.ErrorIs(t, spec.AppendHeader("", "v"), ErrInvalidHeader)
	assert.Empty(t, spec.Headers)
}

func TestResponseSpecBodySetters(t *testing.T) {
	spec := NewResponseSpec()

	spec.SetHtmlTemplate("single", map[string]any{"title": "x"})
	assert.Equal(t, BodyHtmlTemplate, spec.Body.Kind)
	assert.Equal(t, "single", spec.Body.TemplateName)

	spec.SetHtmlString("<p>hi</p>")
	assert.Equal(t, BodyHtmlString, spec.Body.Kind)
	assert.Equal(t, "<p>hi</p>", spec.Body.Html)

	spec.SetJsonValue(map[string]any{"ok": true})
	assert.Equal(t, BodyJsonValue, spec.Body.Kind)

	spec.SetNone()
	assert.Equal(t, BodyNone, spec.Body.Kind)

	spec.SetStatus(http.StatusNotFound)
	assert.Equal(t, http.StatusNotFound, spec.Status)
}
