package main

import (
	"context"
	"encoding/json"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/taralshah99/email-dossier-cli/internal/model"
)

var (
	runKeyword string
	runSender  string
	runStart   string
	runEnd     string
	runThreads []string
	runKinds   []string
	runClient  string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the full pipeline once: search, process, generate",
	Long:  "Searches Gmail with the given criteria, processes all (or the selected) threads, generates the requested dossier kinds in parallel, and prints them. Requires a prior 'auth login'.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initPipeline(ctx, "run")
		if err != nil {
			return err
		}
		defer env.Close()

		criteria := model.SearchCriteria{
			Keyword:     runKeyword,
			SenderEmail: runSender,
		}
		if criteria.StartDate, err = parseDate(runStart); err != nil {
			return eris.Wrapf(err, "parse --start %q", runStart)
		}
		if criteria.EndDate, err = parseDate(runEnd); err != nil {
			return eris.Wrapf(err, "parse --end %q", runEnd)
		}

		kinds, err := parseKinds(runKinds)
		if err != nil {
			return err
		}

		coord := env.NewCoordinator()

		threads, err := coord.Search(ctx, criteria)
		if err != nil {
			return eris.Wrap(err, "search")
		}
		if len(threads) == 0 {
			return eris.New("no threads matched the search criteria")
		}
		zap.L().Info("search complete", zap.Int("threads", len(threads)))

		for _, id := range selectIDs(threads, runThreads) {
			if err := coord.ToggleThread(id); err != nil {
				return eris.Wrapf(err, "select thread %s", id)
			}
		}

		meta, err := coord.Process(ctx)
		if err != nil {
			return eris.Wrap(err, "process")
		}
		zap.L().Info("metadata processed",
			zap.Int("threads", len(meta.ProcessedThreadIDs)),
			zap.Strings("client_candidates", meta.AvailableClientNames),
		)

		if runClient != "" {
			coord.SetClientCustomName(runClient)
		}

		var mu sync.Mutex
		results := make(map[model.DossierKind]*model.Dossier, len(kinds))

		generate := func(gctx context.Context, kind model.DossierKind) error {
			d, err := coord.Generate(gctx, kind, true)
			if err != nil {
				return eris.Wrapf(err, "generate %s", kind)
			}
			if err := env.Store.SaveDossier(gctx, d); err != nil {
				zap.L().Warn("save dossier failed", zap.String("kind", string(kind)), zap.Error(err))
			}
			mu.Lock()
			results[kind] = d
			mu.Unlock()
			return nil
		}

		// The first kind runs alone so the shared analysis is produced
		// exactly once; the remaining kinds reuse it concurrently.
		if err := generate(ctx, kinds[0]); err != nil {
			return err
		}

		g, gctx := errgroup.WithContext(ctx)
		for _, kind := range kinds[1:] {
			g.Go(func() error { return generate(gctx, kind) })
		}
		if err := g.Wait(); err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(results)
	},
}

func init() {
	runCmd.Flags().StringVar(&runKeyword, "keyword", "", "search keyword")
	runCmd.Flags().StringVar(&runSender, "sender", "", "sender email filter")
	runCmd.Flags().StringVar(&runStart, "start", "", "start date (YYYY-MM-DD)")
	runCmd.Flags().StringVar(&runEnd, "end", "", "end date (YYYY-MM-DD)")
	runCmd.Flags().StringSliceVar(&runThreads, "threads", nil, "thread IDs to process (default all matches)")
	runCmd.Flags().StringSliceVar(&runKinds, "kinds", []string{"summary", "meeting", "client"}, "dossier kinds to generate")
	runCmd.Flags().StringVar(&runClient, "client", "", "override the resolved client name")
	rootCmd.AddCommand(runCmd)
}

func parseKinds(names []string) ([]model.DossierKind, error) {
	kinds := make([]model.DossierKind, 0, len(names))
	for _, n := range names {
		k := model.DossierKind(strings.ToLower(strings.TrimSpace(n)))
		if !k.Valid() {
			return nil, eris.Errorf("unknown dossier kind %q", n)
		}
		kinds = append(kinds, k)
	}
	if len(kinds) == 0 {
		return nil, eris.New("at least one dossier kind is required")
	}
	return kinds, nil
}

// selectIDs returns the thread IDs to process: the explicit list when
// given, otherwise every search result.
func selectIDs(threads []model.Thread, explicit []string) []string {
	if len(explicit) > 0 {
		ids := make([]string, len(explicit))
		copy(ids, explicit)
		sort.Strings(ids)
		return ids
	}
	ids := make([]string, len(threads))
	for i, t := range threads {
		ids[i] = t.ID
	}
	return ids
}
