package experiments

import (
	"context"
	"errors"
	"fmt"

	"mcot/config"
	"mcot/engine"
	"mcot/experiments/metrics"
	"mcot/meta"
	"mcot/searcher"
	"mcot/tree"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

type Option func(s *sweep)

type sweep struct {
	goroutines  int
	checkpoints engine.Checkpointer
}

// WithGoroutines bounds the number of engines running at once.
func WithGoroutines(n int) Option {
	return func(s *sweep) {
		if n > 0 {
			s.goroutines = n
		}
	}
}

func WithCheckpointer(c engine.Checkpointer) Option {
	return func(s *sweep) {
		s.checkpoints = c
	}
}

// Comparisons pits the selection policies and the pruning thresholds against each other.
var Comparisons = []metrics.RunConfig{
	{ID: 1, Policy: searcher.LogDomainPolicy},
	{ID: 2, Policy: searcher.ExponentialPolicy},
	{ID: 3, Policy: searcher.LogDomainPolicy, PruneEvery: meta.THRESH_EPOCHS, Threshold: searcher.Li},
	{ID: 4, Policy: searcher.LogDomainPolicy, PruneEvery: meta.THRESH_EPOCHS, Threshold: searcher.Otsu},
	{ID: 5, Policy: searcher.LogDomainPolicy, PruneEvery: meta.THRESH_EPOCHS, Threshold: searcher.Mean},
}

// Apply overlays the non-zero fields of a run config on the base configuration. PruneEvery always
// applies so a zero disables pruning.
func Apply(base config.Config, rc metrics.RunConfig) config.Config {
	c := base
	if rc.N > 0 {
		c.Tree.Branching = rc.N
	}
	if rc.DepthLimit > 0 {
		c.Tree.DepthLimit = rc.DepthLimit
	}
	if rc.MaxNodes > 0 {
		c.Tree.MaxNodes = rc.MaxNodes
	}
	if rc.Rounds > 0 {
		c.Engine.Rounds = rc.Rounds
	}
	if rc.SamplingRate > 0 {
		c.Search.SamplingRate = rc.SamplingRate
		c.Search.SamplingRateFinal = rc.SamplingRate
	}
	if rc.Policy != "" {
		c.Search.Policy = rc.Policy
	}
	c.Prune.Every = rc.PruneEvery
	if rc.Threshold != "" {
		c.Prune.Method = rc.Threshold
	}
	if rc.Signal != "" {
		c.Prune.Signal = rc.Signal
	}
	// Every run gets its own id.
	c.Engine.RunID = ""
	return c
}

// RunSweep runs every config against base concurrently and writes the configs, run records and
// round records as CSV under root/name. It returns the output directory. Runs that exhaust their
// node budget are recorded, not failed.
func RunSweep(ctx context.Context, root, name string, base config.Config, configs []metrics.RunConfig, options ...Option) (string, error) {
	s := &sweep{goroutines: meta.GO_ROUTINES}
	for _, option := range options {
		option(s)
	}

	results := make([]engine.Result, len(configs))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(s.goroutines)
	for i, rc := range configs {
		g.Go(func() error {
			log.Info().Msgf("starting config %d of %d: %+v", i+1, len(configs), rc)
			result, err := run(ctx, Apply(base, rc), s.checkpoints)
			if err != nil && !errors.Is(err, tree.ErrResourceExhausted) {
				return fmt.Errorf("config %d: %w", rc.ID, err)
			}
			results[i] = result
			log.Info().Msgf("completed config %d of %d in %d rounds", i+1, len(configs), result.Rounds)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return "", err
	}

	runRecords := make([]metrics.RunRecord, 0, len(configs))
	roundRecords := []metrics.RoundRecord{}
	for i, result := range results {
		runRecords = append(runRecords, metrics.RunRecord{Config: configs[i].ID, RunMetric: result.RunMetric})
		for _, m := range result.RoundMetrics {
			roundRecords = append(roundRecords, metrics.RoundRecord{Run: result.RunID, RoundMetric: m})
		}
	}

	writer, err := metrics.NewWriter(root, name)
	if err != nil {
		return "", err
	}
	if err := writer.WriteRunConfigs(configs); err != nil {
		return "", fmt.Errorf("store run configs: %w", err)
	}
	if err := writer.WriteRunRecords(runRecords); err != nil {
		return "", fmt.Errorf("store run records: %w", err)
	}
	if err := writer.WriteRoundRecords(roundRecords); err != nil {
		return "", fmt.Errorf("store round records: %w", err)
	}
	log.Info().Msgf("stored %s sweep in %s", name, writer.Dir())
	return writer.Dir(), nil
}

func run(ctx context.Context, c config.Config, checkpoints engine.Checkpointer) (engine.Result, error) {
	if err := c.Validate(); err != nil {
		return engine.Result{}, err
	}
	t, err := c.NewTree()
	if err != nil {
		return engine.Result{}, err
	}
	evaluator, err := c.NewEvaluator()
	if err != nil {
		return engine.Result{}, err
	}
	options, err := c.EngineOptions()
	if err != nil {
		return engine.Result{}, err
	}
	if checkpoints != nil {
		options = append(options, engine.WithCheckpointer(checkpoints))
	}
	return engine.New(t, evaluator, options...).Run(ctx)
}
