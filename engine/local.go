package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"mcot/communication"
	"mcot/experiments/metrics"
	"mcot/meta"
	"mcot/searcher"
	"mcot/tree"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

type Option func(e *Engine)

// Engine drives the round loop over one tree: evaluate, then either backpropagate, select and
// refine, or on pruning rounds threshold and merge.
type Engine struct {
	tree       *tree.Tree
	evaluator  Evaluator
	runID      string
	rounds     int
	policy     searcher.Policy
	sampling   searcher.Schedule
	pruneEvery int
	method     string
	signal     string
	compact    bool
	tolerance  int
	minDelta   searcher.Schedule
	maxPasses  int
	checkpoint Checkpointer
	metrics    metrics.Collector
	reporter   communication.Reporter
}

func WithRounds(rounds int) Option {
	return func(e *Engine) {
		if rounds > 0 {
			e.rounds = rounds
		}
	}
}

func WithPolicy(policy searcher.Policy) Option {
	return func(e *Engine) {
		if policy != nil {
			e.policy = policy
		}
	}
}

// WithSamplingRate sets the fraction of leaves refined per round.
func WithSamplingRate(rate searcher.Schedule) Option {
	return func(e *Engine) {
		if rate != nil {
			e.sampling = rate
		}
	}
}

// WithPruning turns every nth round into a pruning round.
func WithPruning(every int, method, signal string) Option {
	return func(e *Engine) {
		e.pruneEvery = every
		e.method = method
		e.signal = signal
	}
}

// WithCompaction reclaims merged nodes after every pruning round.
func WithCompaction() Option {
	return func(e *Engine) {
		e.compact = true
	}
}

// WithStability repeats evaluation passes within a round until the losses are stable or maxPasses
// is reached.
func WithStability(tolerance int, minDelta searcher.Schedule, maxPasses int) Option {
	return func(e *Engine) {
		if tolerance > 0 {
			e.tolerance = tolerance
		}
		if minDelta != nil {
			e.minDelta = minDelta
		}
		if maxPasses > 0 {
			e.maxPasses = maxPasses
		}
	}
}

func WithCheckpointer(checkpoint Checkpointer) Option {
	return func(e *Engine) {
		e.checkpoint = checkpoint
	}
}

func WithMetrics(collector metrics.Collector) Option {
	return func(e *Engine) {
		if collector != nil {
			e.metrics = collector
		}
	}
}

// WithReporter publishes the tree and every completed round.
func WithReporter(reporter communication.Reporter) Option {
	return func(e *Engine) {
		e.reporter = reporter
	}
}

func WithRunID(id string) Option {
	return func(e *Engine) {
		if id != "" {
			e.runID = id
		}
	}
}

func New(t *tree.Tree, evaluator Evaluator, options ...Option) *Engine {
	if t == nil || evaluator == nil {
		panic("engine needs a tree and an evaluator")
	}
	e := &Engine{ // Default values
		tree:      t,
		evaluator: evaluator,
		runID:     uuid.NewString(),
		rounds:    meta.MAX_ROUNDS,
		policy:    searcher.LogDomain{},
		sampling: searcher.ExponentialDecay(
			meta.SAMPLING_RATE, meta.SAMPLING_RATE_FINAL, 0, 1, meta.DECAY_STEPS),
		tolerance: meta.STABILITY_TOLERANCE,
		minDelta:  searcher.ExponentialDecay(1e-3, 1e-5, 0, 1, meta.DECAY_STEPS),
		maxPasses: 10,
		metrics:   metrics.NewCollector(),
	}
	for _, option := range options {
		option(e)
	}
	if e.pruneEvery < 0 {
		panic("prune interval cannot be negative")
	}
	return e
}

func (e *Engine) RunID() string {
	return e.runID
}

func (e *Engine) Tree() *tree.Tree {
	return e.tree
}

// Run executes rounds until the budget is spent, the context is cancelled, the tree runs out of
// resources or no leaf can be refined any more. Resource exhaustion ends the run with an error
// wrapping tree.ErrResourceExhausted alongside the partial result.
func (e *Engine) Run(ctx context.Context) (Result, error) {
	result := Result{}
	result.RunID = e.runID
	result.StartTime = time.Now()
	lastDepth := e.tree.MaxDepth()

	if e.reporter != nil {
		e.reporter.UpdateTree(e.tree)
	}
	log.Info().Str("run", e.runID).Msgf("starting run of %d rounds on %d nodes", e.rounds, e.tree.Size())

	var err error
	for round := 1; round <= e.rounds; round++ {
		if err = ctx.Err(); err != nil {
			break
		}
		pruning := e.pruneEvery > 0 && round%e.pruneEvery == 0
		phase := metrics.PhaseRefine
		if pruning {
			phase = metrics.PhasePrune
		}
		e.metrics.Start(round, phase)

		refined := 0
		err = e.evaluate(ctx, round)
		if err == nil {
			if pruning {
				err = e.prune()
			} else {
				refined, err = e.refine(round)
			}
		}

		metric := e.metrics.Complete(e.tree.Stats())
		result.RoundMetrics = append(result.RoundMetrics, metric)
		if e.reporter != nil {
			e.reporter.UpdateRound(metric)
		}
		log.Info().Str("run", e.runID).Int("round", round).Str("phase", phase).
			Msgf("nodes=%d leaves=%d depth=%d refined=%d merged=%d", metric.Size, metric.Leaves, metric.MaxDepth, metric.Refined, metric.Merged)

		if depth := e.tree.MaxDepth(); depth > lastDepth && e.checkpoint != nil {
			if cerr := e.checkpoint.Save(ctx, e.runID, depth, e.tree); cerr != nil {
				err = errors.Join(err, fmt.Errorf("checkpoint depth %d: %w", depth, cerr))
			}
			lastDepth = depth
		}

		if errors.Is(err, tree.ErrResourceExhausted) {
			result.Exhausted = true
			log.Warn().Err(err).Str("run", e.runID).Msgf("stopping at round %d", round)
		}
		if err != nil {
			err = fmt.Errorf("round %d: %w", round, err)
			break
		}
		if !pruning && refined == 0 && saturated(e.tree) {
			result.Saturated = true
			log.Info().Str("run", e.runID).Msgf("every leaf is at depth %d", e.tree.DepthLimit())
			break
		}
	}

	result.Rounds = len(result.RoundMetrics)
	result.EndTime = time.Now()
	result.Duration = result.EndTime.Sub(result.StartTime)
	result.Stats = e.tree.Stats()
	log.Info().Str("run", e.runID).Msgf("completed %d rounds in %s with %d leaves at depth %d",
		result.Rounds, result.Duration, result.Leaves, result.MaxDepth)
	return result, err
}

// evaluate runs evaluation passes under the structural lock and stores the instant rewards of the
// last one.
func (e *Engine) evaluate(ctx context.Context, round int) error {
	unlock := e.tree.LockStructure()
	defer unlock()

	stability := searcher.NewStability(e.tolerance, e.minDelta(round))
	for pass := 1; ; pass++ {
		evaluation, err := e.evaluator.Evaluate(ctx, e.tree)
		if err != nil {
			return fmt.Errorf("evaluation pass %d: %w", pass, err)
		}
		e.metrics.AddPass()
		if stability.Check(evaluation.TrainLoss, evaluation.ValidationLoss) || pass >= e.maxPasses {
			return e.tree.SetInstantRewards(evaluation.Rewards)
		}
	}
}

func (e *Engine) refine(round int) (int, error) {
	_, nans := searcher.Backprop(e.tree)
	e.metrics.AddNaNs(nans)

	k := max(1, int(float64(e.tree.NumLeaves())*e.sampling(round)))
	picks := searcher.SelectMany(e.tree, e.policy, k)
	e.metrics.AddSelected(len(picks))

	refined := 0
	defer func() { e.metrics.AddRefined(refined) }()
	for _, l := range picks {
		r, err := e.tree.RefineAt(l.Node, l.X, l.Y, l.Z)
		if err != nil {
			return refined, err
		}
		if r.Resized {
			e.metrics.SetResized()
		}
		if r.Refined {
			refined++
		}
	}
	return refined, nil
}

func (e *Engine) prune() error {
	leaves := e.tree.Leaves()
	values, err := searcher.LeafSignal(e.tree, leaves, e.signal)
	if err != nil {
		return err
	}
	threshold, err := searcher.Threshold(values, e.method)
	if err != nil {
		return err
	}
	result, err := searcher.Prune(e.tree, leaves, values, threshold)
	e.metrics.AddMerged(result.Merged)
	if err != nil {
		return err
	}
	log.Debug().Msgf("pruned %d nodes below %s threshold %.6g of %s", result.Merged, e.method, threshold, e.signal)

	if e.compact && result.Merged > 0 {
		if _, err := e.tree.Compact(); err != nil {
			return err
		}
	}
	return nil
}

// saturated reports whether every live leaf is at the depth limit.
func saturated(t *tree.Tree) bool {
	v := t.Snapshot()
	for _, l := range v.Leaves() {
		if int(v.Depth(l.Node)) < t.DepthLimit() {
			return false
		}
	}
	return true
}
