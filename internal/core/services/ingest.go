package services

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/CoderByBlood/whisper-cms-sub000/internal/core/domain"
	"github.com/CoderByBlood/whisper-cms-sub000/internal/core/ports/driven"
	"github.com/CoderByBlood/whisper-cms-sub000/internal/core/ports/driving"
	"github.com/CoderByBlood/whisper-cms-sub000/internal/frontmatter"
	"github.com/CoderByBlood/whisper-cms-sub000/internal/fswatch"
	"github.com/CoderByBlood/whisper-cms-sub000/internal/logger"
	"github.com/CoderByBlood/whisper-cms-sub000/internal/markup"
	"github.com/CoderByBlood/whisper-cms-sub000/internal/pipeline"
	"github.com/CoderByBlood/whisper-cms-sub000/internal/queue"
)

// renderConcurrency bounds parallel body rendering.
const renderConcurrency = 4

// Ensure IngestService implements the interface.
var _ driving.Ingester = (*IngestService)(nil)

// ingestItem carries a document with its parsed front matter through
// the later pipeline stages.
type ingestItem struct {
	doc  *domain.Document
	fm   map[string]any
	html string
}

// Sink receives each ingested document after parsing and rendering.
// Extra sinks let the caller mirror records into other stores.
type Sink func(ctx context.Context, id string, fm map[string]any, html string) error

// IngestService runs the ingestion pipeline: load, parse front matter,
// render, then index. Paths enter through IngestPath; failures land on
// the error queue and are logged.
type IngestService struct {
	store   driven.MetadataStore
	indexer driven.Indexer
	content driven.ContentIndex
	sinks   []Sink

	paths   *queue.Queue[string]
	loaded  *queue.Queue[*domain.Document]
	parsed  *queue.Queue[ingestItem]
	indexed *queue.Queue[ingestItem]
	errs    *queue.Queue[error]

	stopWatch fswatch.StopFunc
}

// NewIngestService wires the pipeline. content may be nil to skip
// full-text indexing; sinks run after the core stores are updated.
func NewIngestService(store driven.MetadataStore, indexer driven.Indexer, content driven.ContentIndex, sinks ...Sink) *IngestService {
	s := &IngestService{
		store:   store,
		indexer: indexer,
		content: content,
		sinks:   sinks,
		paths:   queue.New[string]("ingest.paths"),
		loaded:  queue.New[*domain.Document]("ingest.loaded"),
		parsed:  queue.New[ingestItem]("ingest.parsed"),
		indexed: queue.New[ingestItem]("ingest.indexed"),
		errs:    queue.New[error]("ingest.errors"),
	}

	if err := s.errs.ForEachOwned(func(err error) {
		logger.Warn("ingest failed", "error", err)
	}); err != nil {
		logger.Error("registering ingest error consumer", "error", err)
	}

	chain := pipeline.LinkAsync(
		pipeline.From(s.paths, s.errs),
		s.loaded,
		s.load,
	)
	chain2 := pipeline.LinkSync(chain, s.parsed, s.parse)
	chain3 := pipeline.LinkAsyncBounded(chain2, s.indexed, renderConcurrency, s.render)
	if err := chain3.Out.ForEachOwned(s.sink); err != nil {
		logger.Error("registering ingest sink", "error", err)
	}

	return s
}

// IngestPath schedules one file for ingestion.
func (s *IngestService) IngestPath(path string) error {
	return s.paths.Enqueue(path)
}

// IngestTree scans root and schedules every matching file, returning
// the scan result for later refreshes.
func (s *IngestService) IngestTree(root string, filters fswatch.Filters) (*fswatch.Result, error) {
	res, err := fswatch.Scan(root, filters)
	if err != nil {
		return nil, fmt.Errorf("scanning %s: %w", root, err)
	}
	for abs := range res.ByAbs {
		if err := s.IngestPath(abs); err != nil {
			return nil, err
		}
	}
	logger.Info("scheduled content tree", "root", root, "files", len(res.ByAbs), "scan_errors", res.Report.Len())
	return res, nil
}

// WatchTree starts a watch on root feeding changed paths back into the
// pipeline until Stop.
func (s *IngestService) WatchTree(root string, debounce time.Duration) error {
	ch, stop, err := fswatch.Watch(root, fswatch.WatchConfig{
		Recursive:    true,
		Debounce:     debounce,
		Canonicalize: true,
	})
	if err != nil {
		return fmt.Errorf("watching %s: %w", root, err)
	}
	s.stopWatch = stop

	go func() {
		for path := range ch {
			if err := s.IngestPath(path); err != nil {
				logger.Warn("scheduling changed path", "path", path, "error", err)
			}
		}
	}()
	return nil
}

// Stop ends the watch and drains the pipeline queues.
func (s *IngestService) Stop() {
	if s.stopWatch != nil {
		s.stopWatch()
	}
	s.paths.Stop()
	s.loaded.Stop()
	s.parsed.Stop()
	s.indexed.Stop()
	s.errs.Stop()
}

// WaitIdle blocks until every queue reports clean across a short
// stability window, so async stages in flight between queues settle.
// Intended for tests and batch ingestion.
func (s *IngestService) WaitIdle(ctx context.Context) error {
	stable := 0
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		idle := true
		for _, dirty := range []func() (bool, error){
			s.paths.ReadDirty, s.loaded.ReadDirty, s.parsed.ReadDirty, s.indexed.ReadDirty,
		} {
			d, err := dirty()
			if err != nil {
				return err
			}
			if d {
				idle = false
				break
			}
		}
		if idle {
			stable++
			if stable >= 5 {
				return nil
			}
		} else {
			stable = 0
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func (s *IngestService) load(_ context.Context, path string) (*domain.Document, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	doc := domain.NewDocument(path)
	doc.Cache = string(raw)
	doc.BodyKind = domain.InferBodyKind(path)
	return doc, nil
}

func (s *IngestService) parse(doc *domain.Document) (ingestItem, error) {
	parsed, err := frontmatter.Parse(doc.Cache)
	if err != nil {
		return ingestItem{}, fmt.Errorf("parsing front matter of %s: %w", doc.Path, err)
	}
	doc.FmKind = parsed.Format
	doc.CachedBody = parsed.Body
	return ingestItem{doc: doc, fm: parsed.FrontMatter}, nil
}

func (s *IngestService) render(_ context.Context, item ingestItem) (ingestItem, error) {
	html, err := markup.Render(item.doc)
	if err != nil {
		return ingestItem{}, fmt.Errorf("rendering %s: %w", item.doc.Path, err)
	}
	item.html = html
	return item, nil
}

// sink is the terminal stage: append to the metadata store, index the
// projection, mirror content, then run extra sinks.
func (s *IngestService) sink(item ingestItem) {
	ctx := context.Background()
	id := item.doc.ServedPath()

	record := make(map[string]any, len(item.fm)+1)
	for k, v := range item.fm {
		record[k] = v
	}
	record["id"] = id

	entry, err := s.store.Append(record)
	if err != nil {
		s.fail(fmt.Errorf("appending %s: %w", id, err))
		return
	}
	rec := domain.NewIndexRecord(id, item.fm)
	if err := s.indexer.Index(entry, rec); err != nil {
		s.fail(fmt.Errorf("indexing %s: %w", id, err))
		return
	}
	if s.content != nil {
		if err := s.content.Add(ctx, id, strings.NewReader(item.html)); err != nil {
			s.fail(fmt.Errorf("storing content of %s: %w", id, err))
			return
		}
	}
	for _, sink := range s.sinks {
		if err := sink(ctx, id, record, item.html); err != nil {
			s.fail(fmt.Errorf("mirroring %s: %w", id, err))
			return
		}
	}
	logger.Debug("ingested document", "id", id, "entry", entry)
}

func (s *IngestService) fail(err error) {
	if qerr := s.errs.Enqueue(err); qerr != nil {
		logger.Error("ingest error dropped", "error", err)
	}
}
