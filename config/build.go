package config

import (
	"mcot/engine"
	"mcot/searcher"
	"mcot/tree"
	"mcot/volume"
)

// Options translates the tree section into construction options.
func (c TreeConfig) Options() []tree.Option {
	options := []tree.Option{
		tree.WithBranching(c.Branching),
		tree.WithDataDim(c.DataDim),
		tree.WithDepthLimit(c.DepthLimit),
		tree.WithInitRefine(c.InitRefine),
		tree.WithGrowthFactor(c.GrowthFactor),
		tree.WithMaxNodes(c.MaxNodes),
		tree.WithInitValue(c.InitValue),
		tree.WithBounds(c.Center, c.Radius),
	}
	if tier := c.Tiers(); tier != nil {
		options = append(options, tier)
	}
	return options
}

// Tiers returns the memory tier option, or nil when the defaults apply. Restored trees take their
// structure from the record and only this option from the configuration.
func (c TreeConfig) Tiers() tree.Option {
	if c.PrimaryBytes == 0 && !c.Fallback {
		return nil
	}
	var fallback tree.Tier
	if c.Fallback {
		fallback = tree.NewMemoryTier("fallback", c.FallbackBytes)
	}
	return tree.WithTiers(tree.NewMemoryTier("primary", c.PrimaryBytes), fallback)
}

func (c Config) NewTree() (*tree.Tree, error) {
	return tree.New(c.Tree.Options()...)
}

// EngineOptions translates the search, prune and engine sections. Checkpointing and metrics are
// wired by the caller.
func (c Config) EngineOptions() ([]engine.Option, error) {
	policy, err := searcher.NewPolicy(c.Search.Policy)
	if err != nil {
		return nil, err
	}
	options := []engine.Option{
		engine.WithRounds(c.Engine.Rounds),
		engine.WithPolicy(policy),
		engine.WithSamplingRate(searcher.ExponentialDecay(
			c.Search.SamplingRate, c.Search.SamplingRateFinal, 0, 1, c.Search.DecaySteps)),
		engine.WithStability(c.Engine.Tolerance,
			searcher.ExponentialDecay(c.Engine.MinDelta, c.Engine.MinDeltaFinal, 0, 1, c.Search.DecaySteps),
			c.Engine.MaxPasses),
		engine.WithRunID(c.Engine.RunID),
	}
	if c.Prune.Every > 0 {
		options = append(options, engine.WithPruning(c.Prune.Every, c.Prune.Method, c.Prune.Signal))
		if c.Prune.Compact {
			options = append(options, engine.WithCompaction())
		}
	}
	return options, nil
}

func (c Config) NewEvaluator() (*volume.Evaluator, error) {
	field, err := volume.NewField(c.Volume.Field)
	if err != nil {
		return nil, err
	}
	return volume.NewEvaluator(field,
		volume.WithSamples(c.Volume.Samples),
		volume.WithValidationSamples(c.Volume.ValidationSamples),
		volume.WithLearningRate(c.Volume.LearningRate),
		volume.WithSeed(c.Volume.Seed),
		volume.WithWorkers(c.Volume.Workers),
	), nil
}
