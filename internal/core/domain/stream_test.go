package domain

import (
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mapResolver struct {
	content map[string]string
}

func (m *mapResolver) Resolve(h StreamHandle) (io.ReadCloser, error) {
	key := h.Path
	if h.Kind == StreamCas {
		key = h.Key
	}
	s, ok := m.content[key]
	if !ok {
		return nil, ErrNotFound
	}
	return io.NopCloser(strings.NewReader(s)), nil
}

func TestStreamOpenWithoutResolver(t *testing.T) {
	resetStreamResolver()

	_, err := FsStream("/tmp/x").Open()
	assert.ErrorIs(t, err, ErrResolverUnset)
}

func TestStreamResolverSetOnce(t *testing.T) {
	resetStreamResolver()
	t.Cleanup(resetStreamResolver)

	r := &mapResolver{content: map[string]string{
		"/site/a.md": "alpha",
		"cas:beta":   "beta",
	}}
	require.NoError(t, SetStreamResolver(r))
	assert.Error(t, SetStreamResolver(r))

	rc, err := FsStream("/site/a.md").Open()
	require.NoError(t, err)
	defer rc.Close()
	got, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "alpha", string(got))

	rc, err = CasStream("cas:beta").Open()
	require.NoError(t, err)
	defer rc.Close()
	got, err = io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "beta", string(got))
}
