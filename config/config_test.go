package config

import (
	"os"
	"path/filepath"
	"testing"

	"mcot/meta"
	"mcot/searcher"

	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, content string) string {
	path := filepath.Join(t.TempDir(), "mcot.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad(t *testing.T) {
	t.Run("defaults are valid", func(t *testing.T) {
		c, err := Load("")
		require.NoError(t, err)
		require.Equal(t, Default(), c)
		require.Equal(t, meta.BRANCHING, c.Tree.Branching)
		require.Equal(t, searcher.LogDomainPolicy, c.Search.Policy)
	})

	t.Run("file values override defaults", func(t *testing.T) {
		path := writeFile(t, `
tree:
  n: 3
  depth_limit: 5
  radius: [1, 2, 3]
search:
  policy: exponential
prune:
  every: 0
`)
		c, err := Load(path)

		require.NoError(t, err)
		require.Equal(t, 3, c.Tree.Branching)
		require.Equal(t, 5, c.Tree.DepthLimit)
		require.Equal(t, [3]float64{1, 2, 3}, c.Tree.Radius)
		require.Equal(t, searcher.ExponentialPolicy, c.Search.Policy)
		require.Zero(t, c.Prune.Every)
		require.Equal(t, meta.DATA_DIM, c.Tree.DataDim, "Unset fields should keep defaults")
	})

	t.Run("environment overrides the file", func(t *testing.T) {
		path := writeFile(t, "tree:\n  n: 3\n")
		t.Setenv("MCOT_N", "4")
		t.Setenv("MCOT_SAMPLING_RATE", "0.5")
		t.Setenv("MCOT_LOG_LEVEL", "debug")
		t.Setenv("MCOT_SERVER", "true")

		c, err := Load(path)

		require.NoError(t, err)
		require.Equal(t, 4, c.Tree.Branching)
		require.Equal(t, 0.5, c.Search.SamplingRate)
		require.Equal(t, "debug", c.Log.Level)
		require.True(t, c.Server.Enabled)
	})

	t.Run("malformed environment values fail", func(t *testing.T) {
		t.Setenv("MCOT_ROUNDS", "many")
		_, err := Load("")
		require.ErrorContains(t, err, "MCOT_ROUNDS")
	})

	t.Run("missing files fail", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
		require.Error(t, err)
	})

	t.Run("invalid values fail validation", func(t *testing.T) {
		for name, content := range map[string]string{
			"branching":     "tree:\n  n: 1\n",
			"growth":        "tree:\n  growth_factor: 1\n",
			"radius":        "tree:\n  radius: [1, 0, 1]\n",
			"policy":        "search:\n  policy: greedy\n",
			"sampling rate": "search:\n  sampling_rate: 2\n",
			"method":        "prune:\n  method: kmeans\n",
			"run id":        "engine:\n  run_id: not-a-uuid\n",
			"log level":     "log:\n  level: loud\n",
			"slot codes":    "tree:\n  n: 16\n  max_nodes: 600000\n",
		} {
			_, err := Load(writeFile(t, content))
			require.ErrorContains(t, err, "invalid config", name)
		}
	})

	t.Run("checkpoint directory is required on disk only", func(t *testing.T) {
		c := Default()
		c.Checkpoint.Enabled = true
		c.Checkpoint.Dir = ""
		require.Error(t, c.Validate())

		c.Checkpoint.InMemory = true
		require.NoError(t, c.Validate())
	})
}

func TestBuild(t *testing.T) {
	t.Run("tree options apply", func(t *testing.T) {
		c := Default()
		c.Tree.Branching = 3
		c.Tree.InitRefine = 1

		tr, err := c.NewTree()

		require.NoError(t, err)
		require.Equal(t, 3, tr.N())
		require.Equal(t, 1+27, tr.Size())
		require.Equal(t, "primary", tr.ResidentTier().Name())
	})

	t.Run("tier limits apply", func(t *testing.T) {
		c := Default()
		c.Tree.PrimaryBytes = 1
		_, err := c.NewTree()
		require.Error(t, err, "One byte cannot hold the root")

		c.Tree.Fallback = true
		require.NotNil(t, c.Tree.Tiers())
		require.Nil(t, Default().Tree.Tiers())
	})

	t.Run("pruning is optional", func(t *testing.T) {
		c := Default()
		with, err := c.EngineOptions()
		require.NoError(t, err)
		c.Prune.Every = 0
		without, err := c.EngineOptions()
		require.NoError(t, err)
		require.Len(t, with, len(without)+1)
	})

	t.Run("evaluator follows the volume section", func(t *testing.T) {
		c := Default()
		_, err := c.NewEvaluator()
		require.NoError(t, err)
		c.Volume.Field = "cube"
		_, err = c.NewEvaluator()
		require.Error(t, err)
	})
}
