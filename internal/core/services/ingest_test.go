package services

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CoderByBlood/whisper-cms-sub000/internal/adapters/driven/storage/memory"
	"github.com/CoderByBlood/whisper-cms-sub000/internal/core/domain"
	"github.com/CoderByBlood/whisper-cms-sub000/internal/core/ports/driven"
	"github.com/CoderByBlood/whisper-cms-sub000/internal/fswatch"
)

// memoryContent is a tiny ContentIndex for pipeline tests.
type memoryContent struct {
	mu   sync.Mutex
	byID map[string]string
}

func newMemoryContent() *memoryContent {
	return &memoryContent{byID: map[string]string{}}
}

func (c *memoryContent) Add(_ context.Context, path string, r io.Reader) error {
	body, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.byID[path] = string(body)
	return nil
}

func (c *memoryContent) Get(_ context.Context, path string) (io.ReadCloser, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	body, ok := c.byID[path]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return io.NopCloser(strings.NewReader(body)), nil
}

func (c *memoryContent) get(path string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	body, ok := c.byID[path]
	return body, ok
}

func newTestIngest(t *testing.T) (*IngestService, *memory.MetadataStore, *memory.FieldIndex, *memoryContent) {
	t.Helper()
	store := memory.NewMetadataStore()
	index := memory.NewFieldIndex(driven.DefaultIndexConfig())
	content := newMemoryContent()
	svc := NewIngestService(store, index, content)
	t.Cleanup(svc.Stop)
	return svc, store, index, content
}

func waitIdle(t *testing.T, svc *IngestService) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, svc.WaitIdle(ctx))
}

func TestIngestMarkdownPost(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "hello.md")
	require.NoError(t, os.WriteFile(path, []byte("---\ntitle: Hello\ntags: [rust, cms]\n---\n# Hi\n"), 0o644))

	svc, store, index, content := newTestIngest(t)
	require.NoError(t, svc.IngestPath(path))
	waitIdle(t, svc)

	require.Equal(t, 1, store.Len())

	// the projection lands element-wise in the tag index
	id := filepath.Join(dir, "hello.html")
	for _, tag := range []string{"rust", "cms"} {
		bm, err := index.LookupEq("tax.tags", tag)
		require.NoError(t, err)
		require.NotNil(t, bm)
		assert.Equal(t, []uint32{0}, bm.ToArray(), "tag %s", tag)
	}

	html, ok := content.get(id)
	require.True(t, ok)
	assert.Contains(t, html, "<h1>Hi</h1>")

	// the stored record resolves sectioned queries through the alias
	_, _, record, err := store.Get(0)
	require.NoError(t, err)
	title, ok := domain.ResolveField(record, "content.title")
	require.True(t, ok)
	assert.Equal(t, "Hello", title)
}

func TestIngestParseErrorRoutedNotFatal(t *testing.T) {
	dir := t.TempDir()
	bad := filepath.Join(dir, "bad.md")
	good := filepath.Join(dir, "good.md")
	require.NoError(t, os.WriteFile(bad, []byte("---\n{broken: [yaml\n---\nbody"), 0o644))
	require.NoError(t, os.WriteFile(good, []byte("---\ntitle: Fine\n---\nbody"), 0o644))

	svc, store, _, _ := newTestIngest(t)
	require.NoError(t, svc.IngestPath(bad))
	require.NoError(t, svc.IngestPath(good))
	waitIdle(t, svc)

	// the failing document is skipped, the healthy one lands
	assert.Equal(t, 1, store.Len())
}

func TestIngestTreeSchedulesAllFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "posts"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "posts", "a.md"), []byte("---\ntitle: A\n---\na"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "about.md"), []byte("---\ntitle: About\n---\nb"), 0o644))

	svc, store, _, _ := newTestIngest(t)
	res, err := svc.IngestTree(dir, fswatch.Filters{})
	require.NoError(t, err)
	assert.Len(t, res.ByAbs, 2)

	waitIdle(t, svc)
	assert.Equal(t, 2, store.Len())
}

func TestIngestSinkMirrors(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "p.md")
	require.NoError(t, os.WriteFile(path, []byte("---\ntitle: P\n---\nbody"), 0o644))

	var mu sync.Mutex
	mirrored := map[string]string{}
	sink := func(_ context.Context, id string, _ map[string]any, html string) error {
		mu.Lock()
		defer mu.Unlock()
		mirrored[id] = html
		return nil
	}

	store := memory.NewMetadataStore()
	index := memory.NewFieldIndex(driven.DefaultIndexConfig())
	svc := NewIngestService(store, index, nil, sink)
	t.Cleanup(svc.Stop)

	require.NoError(t, svc.IngestPath(path))
	waitIdle(t, svc)

	mu.Lock()
	defer mu.Unlock()
	assert.Contains(t, mirrored, filepath.Join(dir, "p.html"))
}

func TestIngestThenQueryEndToEnd(t *testing.T) {
	dir := t.TempDir()
	docs := map[string]string{
		"pub.md":   "---\ntitle: Pub\npublish:\n  status: published\n---\nx",
		"draft.md": "---\ntitle: Draft\npublish:\n  status: draft\n---\nx",
	}
	for name, body := range docs {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644))
	}

	svc, store, index, _ := newTestIngest(t)
	for name := range docs {
		require.NoError(t, svc.IngestPath(filepath.Join(dir, name)))
	}
	waitIdle(t, svc)

	query := NewQueryService(store, index)
	filter, err := domain.ParseFilter(map[string]any{"publish.status": "published"})
	require.NoError(t, err)

	got, err := query.Find(context.Background(), filter, domain.FindOptions{})
	require.NoError(t, err)
	require.Len(t, got, 1)
	title, _ := domain.ResolveField(got[0], "content.title")
	assert.Equal(t, "Pub", title)
}
