package cmd

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"mcot/engine"
	"mcot/experiments/metrics"
	"mcot/tree"

	"github.com/muesli/termenv"
)

const barWidth = 40

func printResult(w io.Writer, r engine.Result) {
	out := termenv.NewOutput(w)
	status := out.String("completed").Foreground(out.Color("2"))
	switch {
	case r.Exhausted:
		status = out.String("exhausted").Foreground(out.Color("1"))
	case r.Saturated:
		status = out.String("saturated").Foreground(out.Color("3"))
	}
	fmt.Fprintf(w, "run %s %s\n", out.String(r.RunID).Bold(), status)
	fmt.Fprintf(w, "  rounds    %d in %s\n", r.Rounds, r.Duration.Round(time.Millisecond))
	printStats(w, out, r.Stats)
}

func printStats(w io.Writer, out *termenv.Output, s tree.Stats) {
	label := func(l string) termenv.Style { return out.String(l).Faint() }
	fmt.Fprintf(w, "  %s     %d live of %d allocated (capacity %d)\n", label("nodes"), s.Live, s.Size, s.Capacity)
	fmt.Fprintf(w, "  %s    %d\n", label("leaves"), s.Leaves)
	fmt.Fprintf(w, "  %s     %d\n", label("depth"), s.MaxDepth)
	fmt.Fprintf(w, "  %s      %s\n", label("tier"), s.Tier)
}

func printRound(w io.Writer, out *termenv.Output, m metrics.RoundMetric) {
	fmt.Fprintf(w, "round %s %s: %d passes, %d selected, %d refined, %d merged in %s\n",
		out.String(fmt.Sprint(m.Round)).Bold(), m.Phase, m.Passes, m.Selected, m.Refined, m.Merged, m.Duration)
}

// printTree prints the stats of a tree and a histogram of its leaves by depth.
func printTree(w io.Writer, name string, t *tree.Tree) {
	out := termenv.NewOutput(w)
	fmt.Fprintf(w, "%s (N=%d, depth limit %d)\n", out.String(name).Bold(), t.N(), t.DepthLimit())
	printStats(w, out, t.Stats())

	v := t.Snapshot()
	counts := make([]int, t.DepthLimit()+1)
	most := 0
	for _, l := range v.Leaves() {
		d := int(v.Depth(l.Node))
		counts[d]++
		most = max(most, counts[d])
	}
	for d, c := range counts {
		if c == 0 {
			continue
		}
		bar := strings.Repeat("#", max(1, c*barWidth/most))
		fmt.Fprintf(w, "  %3d %s %d\n", d, out.String(bar).Foreground(out.Color("4")), c)
	}
}

func writeRecord(path string, t *tree.Tree) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if _, err := t.WriteTo(f); err != nil {
		f.Close()
		return fmt.Errorf("write record %s: %w", path, err)
	}
	return f.Close()
}

func readRecord(path string, options ...tree.Option) (*tree.Tree, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return tree.ReadFrom(f, options...)
}
