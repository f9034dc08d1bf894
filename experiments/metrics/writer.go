package metrics

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// RunConfig is one engine configuration of a sweep.
type RunConfig struct {
	ID           int
	N            int
	DepthLimit   int
	MaxNodes     int
	Rounds       int
	SamplingRate float64
	Policy       string
	PruneEvery   int
	Threshold    string
	Signal       string
}

type RunRecord struct {
	Config int // RunConfig.ID
	RunMetric
}

type RoundRecord struct {
	Run string // RunMetric.RunID
	RoundMetric
}

type Writer struct {
	baseDir string
}

// NewWriter creates root/name/<timestamp> to hold the CSV files of one experiment.
func NewWriter(root, name string) (*Writer, error) {
	// Create a subfolder named by current timestamp
	timestamp := time.Now().UTC().Format("20060102T150405Z")
	baseDir := filepath.Join(root, name, timestamp)
	err := os.MkdirAll(baseDir, 0755)
	if err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	return &Writer{
		baseDir: baseDir,
	}, nil
}

func (w *Writer) Dir() string {
	return w.baseDir
}

func (w *Writer) WriteRunConfigs(configs []RunConfig) error {
	rows := make([][]string, 0, len(configs))
	for _, config := range configs {
		rows = append(rows, []string{
			strconv.Itoa(config.ID),
			strconv.Itoa(config.N),
			strconv.Itoa(config.DepthLimit),
			strconv.Itoa(config.MaxNodes),
			strconv.Itoa(config.Rounds),
			strconv.FormatFloat(config.SamplingRate, 'g', -1, 64),
			config.Policy,
			strconv.Itoa(config.PruneEvery),
			config.Threshold,
			config.Signal,
		})
	}
	header := []string{"id", "n", "depth_limit", "max_nodes", "rounds", "sampling_rate", "policy", "prune_every", "threshold", "signal"}
	return w.write("run_configs.csv", header, rows)
}

func (w *Writer) WriteRunRecords(records []RunRecord) error {
	rows := make([][]string, 0, len(records))
	for _, record := range records {
		rows = append(rows, []string{
			strconv.Itoa(record.Config),
			record.RunID,
			record.StartTime.Format(time.RFC3339),
			record.EndTime.Format(time.RFC3339),
			record.Duration.String(),
			strconv.Itoa(record.Rounds),
			strconv.Itoa(record.Size),
			strconv.Itoa(record.Live),
			strconv.Itoa(record.Leaves),
			strconv.Itoa(record.MaxDepth),
			strconv.FormatBool(record.Exhausted),
			strconv.FormatBool(record.Saturated),
		})
	}
	header := []string{"config", "run", "start_time", "end_time", "duration", "rounds", "nodes", "live", "leaves", "depth", "exhausted", "saturated"}
	return w.write("run_records.csv", header, rows)
}

func (w *Writer) WriteRoundRecords(records []RoundRecord) error {
	rows := make([][]string, 0, len(records))
	for _, record := range records {
		rows = append(rows, []string{
			record.Run,
			strconv.Itoa(record.Round),
			record.Phase,
			record.Duration.String(),
			strconv.Itoa(record.Passes),
			strconv.Itoa(record.Selected),
			strconv.Itoa(record.Refined),
			strconv.Itoa(record.Merged),
			strconv.Itoa(record.NaNs),
			strconv.FormatBool(record.Resized),
			strconv.Itoa(record.Size),
			strconv.Itoa(record.Leaves),
			strconv.Itoa(record.MaxDepth),
		})
	}
	header := []string{"run", "round", "phase", "duration", "passes", "selected", "refined", "merged", "nans", "resized", "nodes", "leaves", "depth"}
	return w.write("round_records.csv", header, rows)
}

func (w *Writer) write(name string, header []string, rows [][]string) error {
	// Create a file
	path := filepath.Join(w.baseDir, name)
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", name, err)
	}
	defer f.Close()

	writer := csv.NewWriter(f)

	// Write header
	err = writer.Write(header)
	if err != nil {
		return fmt.Errorf("failed to write %s header: %w", name, err)
	}

	// Write each row
	for _, row := range rows {
		err = writer.Write(row)
		if err != nil {
			return fmt.Errorf("failed to write %s row: %w", name, err)
		}
	}

	writer.Flush()
	return writer.Error()
}
