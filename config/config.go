package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"mcot/meta"
	"mcot/searcher"
	"mcot/tree"
	"mcot/volume"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterStructValidation(func(sl validator.StructLevel) {
		c := sl.Current().Interface().(TreeConfig)
		// Slot codes are int32 flat offsets, so max_nodes*N^3 must stay below 2^31.
		if c.Branching >= 2 && c.MaxNodes > tree.NewCodec(c.Branching).MaxNodes() {
			sl.ReportError(c.MaxNodes, "MaxNodes", "MaxNodes", "slotcodes", strconv.Itoa(tree.NewCodec(c.Branching).MaxNodes()))
		}
	}, TreeConfig{})
	return v
}

type Config struct {
	Tree       TreeConfig       `yaml:"tree"`
	Search     SearchConfig     `yaml:"search"`
	Prune      PruneConfig      `yaml:"prune"`
	Engine     EngineConfig     `yaml:"engine"`
	Volume     VolumeConfig     `yaml:"volume"`
	Checkpoint CheckpointConfig `yaml:"checkpoint"`
	Log        LogConfig        `yaml:"log"`
	Server     ServerConfig     `yaml:"server"`
}

type TreeConfig struct {
	Branching    int        `yaml:"n" validate:"min=2"`
	DataDim      int        `yaml:"data_dim" validate:"min=1"`
	DepthLimit   int        `yaml:"depth_limit" validate:"min=0"`
	InitRefine   int        `yaml:"init_refine" validate:"min=0"`
	GrowthFactor float64    `yaml:"growth_factor" validate:"gt=1"`
	MaxNodes     int        `yaml:"max_nodes" validate:"min=1"`
	InitValue    float32    `yaml:"init_value"`
	Center       [3]float64 `yaml:"center"`
	Radius       [3]float64 `yaml:"radius" validate:"dive,gt=0"`
	// PrimaryBytes caps the primary memory tier, 0 means unbounded.
	PrimaryBytes int64 `yaml:"primary_bytes" validate:"min=0"`
	// FallbackBytes caps the staging tier used while the primary tier is full. Only used when
	// Fallback is set.
	FallbackBytes int64 `yaml:"fallback_bytes" validate:"min=0"`
	Fallback      bool  `yaml:"fallback"`
}

type SearchConfig struct {
	Policy            string  `yaml:"policy" validate:"oneof=log exponential"`
	SamplingRate      float64 `yaml:"sampling_rate" validate:"gt=0,lte=1"`
	SamplingRateFinal float64 `yaml:"sampling_rate_final" validate:"gt=0,lte=1"`
	DecaySteps        int     `yaml:"decay_steps" validate:"min=1"`
}

type PruneConfig struct {
	// Every turns every nth round into a pruning round, 0 disables pruning.
	Every   int    `yaml:"every" validate:"min=0"`
	Method  string `yaml:"method" validate:"oneof=li otsu mean"`
	Signal  string `yaml:"signal" validate:"oneof=weight density visits"`
	Compact bool   `yaml:"compact"`
}

type EngineConfig struct {
	Rounds        int     `yaml:"rounds" validate:"min=1"`
	RunID         string  `yaml:"run_id" validate:"omitempty,uuid"`
	Tolerance     int     `yaml:"tolerance" validate:"min=1"`
	MinDelta      float64 `yaml:"min_delta" validate:"gt=0"`
	MinDeltaFinal float64 `yaml:"min_delta_final" validate:"gt=0"`
	MaxPasses     int     `yaml:"max_passes" validate:"min=1"`
}

type VolumeConfig struct {
	Field             string  `yaml:"field" validate:"oneof=sphere shell pair"`
	Samples           int     `yaml:"samples" validate:"min=1"`
	ValidationSamples int     `yaml:"validation_samples" validate:"min=1"`
	LearningRate      float32 `yaml:"learning_rate" validate:"gt=0"`
	Seed              uint64  `yaml:"seed"`
	Workers           int     `yaml:"workers" validate:"min=0"`
}

type CheckpointConfig struct {
	Enabled    bool   `yaml:"enabled"`
	Dir        string `yaml:"dir" validate:"required_if=Enabled true InMemory false"`
	InMemory   bool   `yaml:"in_memory"`
	SyncWrites bool   `yaml:"sync_writes"`
}

type LogConfig struct {
	Level  string `yaml:"level" validate:"oneof=trace debug info warn error"`
	Format string `yaml:"format" validate:"oneof=console json"`
	// File additionally writes JSON logs to a rotated file.
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb" validate:"min=0"`
	MaxBackups int    `yaml:"max_backups" validate:"min=0"`
	MaxAgeDays int    `yaml:"max_age_days" validate:"min=0"`
	Compress   bool   `yaml:"compress"`
}

type ServerConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr" validate:"required_if=Enabled true"`
}

func Default() Config {
	return Config{
		Tree: TreeConfig{
			Branching:    meta.BRANCHING,
			DataDim:      meta.DATA_DIM,
			DepthLimit:   meta.DEPTH_LIMIT,
			InitRefine:   meta.INIT_REFINE,
			GrowthFactor: meta.GROWTH_FACTOR,
			MaxNodes:     meta.MAX_NODES,
			InitValue:    meta.INIT_VALUE,
			Center:       [3]float64{0.5, 0.5, 0.5},
			Radius:       [3]float64{0.5, 0.5, 0.5},
		},
		Search: SearchConfig{
			Policy:            searcher.LogDomainPolicy,
			SamplingRate:      meta.SAMPLING_RATE,
			SamplingRateFinal: meta.SAMPLING_RATE_FINAL,
			DecaySteps:        meta.DECAY_STEPS,
		},
		Prune: PruneConfig{
			Every:  meta.THRESH_EPOCHS,
			Method: searcher.Li,
			Signal: searcher.SignalWeight,
		},
		Engine: EngineConfig{
			Rounds:        meta.MAX_ROUNDS,
			Tolerance:     meta.STABILITY_TOLERANCE,
			MinDelta:      1e-3,
			MinDeltaFinal: 1e-5,
			MaxPasses:     10,
		},
		Volume: VolumeConfig{
			Field:             volume.FieldSphere,
			Samples:           16,
			ValidationSamples: 512,
			LearningRate:      0.5,
			Seed:              1,
		},
		Checkpoint: CheckpointConfig{
			Dir:        "checkpoints",
			SyncWrites: true,
		},
		Log: LogConfig{
			Level:      "info",
			Format:     "console",
			MaxSizeMB:  100,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
		Server: ServerConfig{
			Addr: ":8080",
		},
	}
}

// Load reads the YAML file at path over the defaults, applies MCOT_* environment overrides and
// validates the result. An empty path skips the file.
func Load(path string) (Config, error) {
	c := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return c, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &c); err != nil {
			return c, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := c.applyEnv(); err != nil {
		return c, err
	}
	if err := c.Validate(); err != nil {
		return c, err
	}
	return c, nil
}

func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var fields validator.ValidationErrors
		if errors.As(err, &fields) && len(fields) > 0 {
			f := fields[0]
			return fmt.Errorf("invalid config: %s fails %s %s", f.Namespace(), f.Tag(), f.Param())
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

func (c *Config) applyEnv() error {
	ints := map[string]*int{
		"MCOT_N":           &c.Tree.Branching,
		"MCOT_DATA_DIM":    &c.Tree.DataDim,
		"MCOT_DEPTH_LIMIT": &c.Tree.DepthLimit,
		"MCOT_INIT_REFINE": &c.Tree.InitRefine,
		"MCOT_MAX_NODES":   &c.Tree.MaxNodes,
		"MCOT_ROUNDS":      &c.Engine.Rounds,
		"MCOT_MAX_PASSES":  &c.Engine.MaxPasses,
		"MCOT_PRUNE_EVERY": &c.Prune.Every,
		"MCOT_WORKERS":     &c.Volume.Workers,
	}
	for key, field := range ints {
		if v := os.Getenv(key); v != "" {
			i, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
			*field = i
		}
	}

	floats := map[string]*float64{
		"MCOT_GROWTH_FACTOR": &c.Tree.GrowthFactor,
		"MCOT_SAMPLING_RATE": &c.Search.SamplingRate,
	}
	for key, field := range floats {
		if v := os.Getenv(key); v != "" {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
			*field = f
		}
	}

	strs := map[string]*string{
		"MCOT_POLICY":         &c.Search.Policy,
		"MCOT_PRUNE_METHOD":   &c.Prune.Method,
		"MCOT_PRUNE_SIGNAL":   &c.Prune.Signal,
		"MCOT_RUN_ID":         &c.Engine.RunID,
		"MCOT_FIELD":          &c.Volume.Field,
		"MCOT_CHECKPOINT_DIR": &c.Checkpoint.Dir,
		"MCOT_LOG_LEVEL":      &c.Log.Level,
		"MCOT_LOG_FORMAT":     &c.Log.Format,
		"MCOT_LOG_FILE":       &c.Log.File,
		"MCOT_SERVER_ADDR":    &c.Server.Addr,
	}
	for key, field := range strs {
		if v := os.Getenv(key); v != "" {
			*field = v
		}
	}

	bools := map[string]*bool{
		"MCOT_CHECKPOINT": &c.Checkpoint.Enabled,
		"MCOT_SERVER":     &c.Server.Enabled,
	}
	for key, field := range bools {
		if v := os.Getenv(key); v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
			*field = b
		}
	}
	return nil
}
