package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/CoderByBlood/whisper-cms-sub000/internal/adapters/driven/config/file"
	"github.com/CoderByBlood/whisper-cms-sub000/internal/adapters/driven/storage/memory"
	"github.com/CoderByBlood/whisper-cms-sub000/internal/core/domain"
	"github.com/CoderByBlood/whisper-cms-sub000/internal/core/ports/driven"
	"github.com/CoderByBlood/whisper-cms-sub000/internal/core/services"
	"github.com/CoderByBlood/whisper-cms-sub000/internal/fswatch"
)

var (
	findLimit int
	findSkip  int
	findSort  []string
)

var findCmd = &cobra.Command{
	Use:   "find [query]",
	Short: "Query site metadata",
	Long: `Ingests the content tree into an in-memory index and evaluates a
metadata query against it. The query is a JSON document: bare values
mean equality, $-prefixed keys are operators.

  whisper find '{"type": "post", "tax.tags": "go"}'`,
	Args: cobra.ExactArgs(1),
	RunE: runFind,
}

func init() {
	findCmd.Flags().IntVarP(&findLimit, "limit", "n", 20, "maximum number of results")
	findCmd.Flags().IntVar(&findSkip, "skip", 0, "results to skip")
	findCmd.Flags().StringArrayVar(&findSort, "sort", nil, "sort field, prefix with - for descending")
	rootCmd.AddCommand(findCmd)
}

func runFind(cmd *cobra.Command, args []string) error {
	var q map[string]any
	if err := json.Unmarshal([]byte(args[0]), &q); err != nil {
		return fmt.Errorf("parsing query: %w", err)
	}
	filter, err := domain.ParseFilter(q)
	if err != nil {
		return err
	}

	store, err := file.NewSettingsStore(siteRoot)
	if err != nil {
		return fmt.Errorf("loading settings: %w", err)
	}
	contentDir := store.ResolvePath(store.Settings().Site.ContentDir)

	metastore := memory.NewMetadataStore()
	index := memory.NewFieldIndex(driven.DefaultIndexConfig())
	ingest := services.NewIngestService(metastore, index, nil)
	defer ingest.Stop()

	if _, err := ingest.IngestTree(contentDir, fswatch.Filters{}); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := ingest.WaitIdle(ctx); err != nil {
		return fmt.Errorf("waiting for ingest: %w", err)
	}

	opts := domain.FindOptions{Skip: findSkip, Limit: findLimit}
	for _, s := range findSort {
		sf := domain.SortField{Field: s}
		if len(s) > 1 && s[0] == '-' {
			sf = domain.SortField{Field: s[1:], Desc: true}
		}
		opts.Sort = append(opts.Sort, sf)
	}

	results, err := services.NewQueryService(metastore, index).Find(ctx, filter, opts)
	if err != nil {
		return err
	}

	out, err := json.MarshalIndent(results, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding results: %w", err)
	}
	cmd.Println(string(out))
	return nil
}
