package metrics

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"

	"mcot/tree"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestCollector(t *testing.T) {
	t.Run("counts reset on start", func(t *testing.T) {
		c := NewCollector()
		c.Start(1, PhaseRefine)
		c.AddRefined(3)
		c.Complete(tree.Stats{})

		c.Start(2, PhasePrune)
		c.AddMerged(2)
		c.AddMerged(1)
		c.AddNaNs(4)
		c.AddPass()
		metric := c.Complete(tree.Stats{Size: 9, Leaves: 57})

		require.Equal(t, 2, metric.Round)
		require.Equal(t, PhasePrune, metric.Phase)
		require.Equal(t, 0, metric.Refined, "Counters should reset between rounds")
		require.Equal(t, 3, metric.Merged)
		require.Equal(t, 4, metric.NaNs)
		require.Equal(t, 1, metric.Passes)
		require.Equal(t, 57, metric.Leaves)
	})

	t.Run("dummy collector records nothing", func(t *testing.T) {
		c := NewDummyCollector()
		c.Start(1, PhaseRefine)
		c.AddRefined(3)
		require.Equal(t, RoundMetric{}, c.Complete(tree.Stats{Size: 1}))
	})
}

func TestPrometheusCollector(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewPrometheusCollector(reg)

	c.Start(1, PhaseRefine)
	c.AddRefined(5)
	c.SetResized()
	c.Complete(tree.Stats{Size: 6, Live: 6, Leaves: 36, MaxDepth: 2, Capacity: 8})
	c.Start(2, PhasePrune)
	c.AddMerged(2)
	c.Complete(tree.Stats{Size: 6, Live: 4, Leaves: 22, MaxDepth: 1, Capacity: 8})

	require.Equal(t, 5.0, testutil.ToFloat64(c.refined))
	require.Equal(t, 2.0, testutil.ToFloat64(c.merged))
	require.Equal(t, 1.0, testutil.ToFloat64(c.resizes))
	require.Equal(t, 1.0, testutil.ToFloat64(c.rounds.WithLabelValues(PhasePrune)))
	require.Equal(t, 22.0, testutil.ToFloat64(c.leaves), "Gauges should hold the latest round")
	require.Equal(t, 1.0, testutil.ToFloat64(c.depth))

	families, err := reg.Gather()
	require.NoError(t, err)
	require.NotEmpty(t, families)
}

func TestWriter(t *testing.T) {
	w, err := NewWriter(t.TempDir(), "sweep")
	require.NoError(t, err)

	err = w.WriteRunConfigs([]RunConfig{{ID: 1, N: 2, DepthLimit: 4, Rounds: 10, SamplingRate: 0.05, Policy: "log"}})
	require.NoError(t, err)
	err = w.WriteRoundRecords([]RoundRecord{
		{Run: "a", RoundMetric: RoundMetric{Round: 1, Phase: PhaseRefine, Refined: 2}},
		{Run: "a", RoundMetric: RoundMetric{Round: 2, Phase: PhasePrune, Merged: 1}},
	})
	require.NoError(t, err)

	rows := readCSV(t, filepath.Join(w.Dir(), "round_records.csv"))
	require.Len(t, rows, 3, "Should hold a header and two rows")
	require.Equal(t, "run", rows[0][0])
	require.Equal(t, []string{"a", "2", "prune"}, rows[2][:3])

	rows = readCSV(t, filepath.Join(w.Dir(), "run_configs.csv"))
	require.Equal(t, "0.05", rows[1][5])
}

func readCSV(t *testing.T, path string) [][]string {
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	return rows
}
