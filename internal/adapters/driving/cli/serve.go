package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/CoderByBlood/whisper-cms-sub000/internal/adapters/driven/config/file"
	"github.com/CoderByBlood/whisper-cms-sub000/internal/adapters/driven/storage/memory"
	"github.com/CoderByBlood/whisper-cms-sub000/internal/adapters/driven/storage/sqlite"
	"github.com/CoderByBlood/whisper-cms-sub000/internal/adapters/driven/templates"
	"github.com/CoderByBlood/whisper-cms-sub000/internal/adapters/driving/web"
	"github.com/CoderByBlood/whisper-cms-sub000/internal/core/domain"
	"github.com/CoderByBlood/whisper-cms-sub000/internal/core/ports/driven"
	"github.com/CoderByBlood/whisper-cms-sub000/internal/core/services"
	"github.com/CoderByBlood/whisper-cms-sub000/internal/edge"
	"github.com/CoderByBlood/whisper-cms-sub000/internal/fswatch"
	"github.com/CoderByBlood/whisper-cms-sub000/internal/logger"
	"github.com/CoderByBlood/whisper-cms-sub000/internal/render"
	"github.com/CoderByBlood/whisper-cms-sub000/internal/runtime"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Ingest the site and serve it",
	Long: `Scans the content directory, ingests every document through the
parse/render/index pipeline, then serves the site. Content changes are
picked up by a file watcher; theme changes trigger a hot reload of the
application server.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

// site holds everything runServe wires together.
type site struct {
	store    *file.SettingsStore
	settings file.Settings

	ingest   *services.IngestService
	query    *services.QueryService
	content  driven.ContentIndex
	themes   []runtime.Theme
	plugins  []runtime.Plugin
	registry *templates.Registry
	renderer *render.Pipeline
}

func runServe(cmd *cobra.Command, _ []string) error {
	store, err := file.NewSettingsStore(siteRoot)
	if err != nil {
		return fmt.Errorf("loading settings: %w", err)
	}

	s := &site{store: store, settings: store.Settings()}

	if err := s.wireStorage(); err != nil {
		return err
	}
	if err := s.wireRuntime(); err != nil {
		return err
	}
	if err := s.startIngest(); err != nil {
		return err
	}

	handle, err := edge.Start(edge.Settings{
		CertDir:   store.ResolvePath(s.settings.Server.CertDir),
		HTTPPort:  s.settings.Server.HTTPPort,
		HTTPSPort: s.settings.Server.HTTPSPort,
		AppPortA:  s.settings.Server.AppPortA,
		AppPortB:  s.settings.Server.AppPortB,
	}, s.makeRouter)
	if err != nil {
		return fmt.Errorf("starting edge: %w", err)
	}
	logger.Info("serving site", "root", store.SiteRoot(), "backend", handle.BackendAddr())

	stopThemeWatch, err := s.watchThemes(handle)
	if err != nil {
		logger.Warn("theme watch disabled", "error", err)
	} else {
		defer stopThemeWatch()
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	cmd.Println("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := handle.Shutdown(ctx); err != nil {
		logger.Error("edge shutdown", "error", err)
	}
	s.ingest.Stop()
	return nil
}

// wireStorage builds the metadata store, field index, SQLite executor
// and the mirrors hanging off the ingest sink.
func (s *site) wireStorage() error {
	dbPath := s.store.ResolvePath(s.settings.Ingest.DBPath)
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}

	exec, err := sqlite.ExecutorFor(dbPath)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}

	metastore := memory.NewMetadataStore()
	index := memory.NewFieldIndex(driven.DefaultIndexConfig())
	s.content = sqlite.NewContentIndex(exec)
	s.query = services.NewQueryService(metastore, index)

	upsert := sqlite.NewUpsert(exec)
	pages := sqlite.TableSpec{
		Name: "pages",
		Columns: []sqlite.ColumnSpec{
			{Name: "id", Type: sqlite.ColText, PK: true},
			{Name: "front_matter", Type: sqlite.ColText},
			{Name: "html", Type: sqlite.ColText},
			{Name: "ingested_at", Type: sqlite.ColText},
		},
	}
	mirror := func(ctx context.Context, id string, fm map[string]any, html string) error {
		doc, err := json.Marshal(fm)
		if err != nil {
			return fmt.Errorf("encoding front matter of %s: %w", id, err)
		}
		_, err = upsert.UpsertRows(ctx, pages, [][]driven.BindValue{{
			driven.TextValue(id),
			driven.JsonValue(string(doc)),
			driven.TextValue(html),
			driven.TextValue(time.Now().UTC().Format(time.RFC3339)),
		}})
		return err
	}

	s.ingest = services.NewIngestService(metastore, index, s.content, mirror)
	return installResolver(s.content)
}

// wireRuntime discovers plugins and the active theme and prepares the
// template registry and render pipeline.
func (s *site) wireRuntime() error {
	plugins, err := runtime.DiscoverPlugins(s.store.ResolvePath(s.settings.Site.PluginsDir))
	if err != nil {
		return fmt.Errorf("discovering plugins: %w", err)
	}
	s.plugins = plugins

	themes, err := runtime.DiscoverThemes(s.store.ResolvePath(s.settings.Site.ThemesDir))
	if err != nil {
		return fmt.Errorf("discovering themes: %w", err)
	}
	s.themes = themes

	theme := s.activeTheme()
	templateDir := ""
	if theme != nil {
		templateDir = filepath.Join(theme.Dir, "templates")
	}
	s.registry, err = templates.NewRegistry(templateDir)
	if err != nil {
		return fmt.Errorf("loading theme templates: %w", err)
	}
	s.renderer = render.NewPipeline(s.registry)

	for _, p := range plugins {
		logger.Info("plugin discovered", "id", p.ID, "script", p.Script)
	}
	if theme != nil {
		logger.Info("theme active", "id", theme.ID, "mount", theme.Mount)
	} else {
		logger.Warn("no theme found", "dir", s.settings.Site.ThemesDir)
	}
	return nil
}

func (s *site) activeTheme() *runtime.Theme {
	for i := range s.themes {
		if s.themes[i].ID == s.settings.Site.Theme {
			return &s.themes[i]
		}
	}
	if len(s.themes) > 0 {
		return &s.themes[0]
	}
	return nil
}

func (s *site) startIngest() error {
	contentDir := s.store.ResolvePath(s.settings.Site.ContentDir)

	result, err := s.ingest.IngestTree(contentDir, fswatch.Filters{})
	if err != nil {
		return fmt.Errorf("ingesting %s: %w", contentDir, err)
	}
	for _, scanErr := range result.Report.Errors {
		logger.Warn("scan issue", "error", scanErr)
	}

	debounce := time.Duration(s.settings.Ingest.DebounceMs) * time.Millisecond
	if err := s.ingest.WatchTree(contentDir, debounce); err != nil {
		return fmt.Errorf("watching %s: %w", contentDir, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := s.ingest.WaitIdle(ctx); err != nil {
		logger.Warn("initial ingest still settling", "error", err)
	}
	logger.Info("content ingested", "records", len(result.ByAbs))
	return nil
}

// makeRouter builds a fresh application handler. Called at start and on
// every hot reload.
func (s *site) makeRouter() http.Handler {
	contentDir := s.store.ResolvePath(s.settings.Site.ContentDir)
	router := web.NewRouter(contentDir, s.query, s.content, s.renderer)
	if theme := s.activeTheme(); theme != nil && theme.Assets != "" {
		router.MountAssets("/assets", theme.Assets)
	}
	return router
}

// watchThemes hot-reloads the application server when theme files
// change, after reparsing the template set.
func (s *site) watchThemes(handle *edge.Handle) (fswatch.StopFunc, error) {
	theme := s.activeTheme()
	if theme == nil {
		return func() {}, nil
	}

	changes, stop, err := fswatch.Watch(theme.Dir, fswatch.WatchConfig{
		Recursive: true,
		Debounce:  time.Duration(s.settings.Ingest.DebounceMs) * time.Millisecond,
	})
	if err != nil {
		return nil, err
	}

	go func() {
		for range changes {
			if err := s.registry.Reload(filepath.Join(theme.Dir, "templates")); err != nil {
				logger.Error("reloading templates", "error", err)
				continue
			}
			if _, err := handle.HotReload(s.makeRouter); err != nil {
				logger.Error("hot reload", "error", err)
			}
		}
	}()
	return stop, nil
}

// casResolver materializes stream handles: fs handles from disk, cas
// handles from the content index.
type casResolver struct {
	content driven.ContentIndex
}

func (r casResolver) Resolve(h domain.StreamHandle) (io.ReadCloser, error) {
	switch h.Kind {
	case domain.StreamFs:
		return os.Open(h.Path)
	case domain.StreamCas:
		return r.content.Get(context.Background(), h.Key)
	default:
		return nil, fmt.Errorf("%w: stream kind %q", domain.ErrInvalidInput, h.Kind)
	}
}

func installResolver(content driven.ContentIndex) error {
	if err := domain.SetStreamResolver(casResolver{content: content}); err != nil {
		// Second serve invocation in one process keeps the first resolver.
		logger.Debug("stream resolver already installed")
	}
	return nil
}
