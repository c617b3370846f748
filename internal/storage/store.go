// Package storage keeps finished runs on disk. Each run gets its own
// directory holding metadata.json, the config it ran with and the sampled
// series as CSV.
package storage

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/golang/geo/r3"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"github.com/san-kum/opspace/internal/config"
	"github.com/san-kum/opspace/internal/sim"
)

const (
	metadataFile = "metadata.json"
	configFile   = "config.yaml"
	seriesFile   = "series.csv"
)

type Store struct {
	baseDir string
	now     func() time.Time
}

func New(baseDir string) *Store {
	return &Store{baseDir: baseDir, now: time.Now}
}

func (s *Store) Init() error {
	return os.MkdirAll(s.baseDir, 0755)
}

func (s *Store) Dir() string { return s.baseDir }

type RunMetadata struct {
	ID         string             `json:"id"`
	Model      string             `json:"model"`
	DOF        int                `json:"dof"`
	Timestamp  time.Time          `json:"timestamp"`
	Seed       int64              `json:"seed"`
	Dt         float64            `json:"dt"`
	Duration   float64            `json:"duration"`
	Integrator string             `json:"integrator"`
	Steps      int                `json:"steps"`
	Start      [3]float64         `json:"start"`
	Target     [3]float64         `json:"target"`
	FinalError float64            `json:"final_error"`
	Statuses   map[string]int     `json:"statuses"`
	Metrics    map[string]float64 `json:"metrics"`
}

// Run is everything needed to persist one simulation.
type Run struct {
	Config *config.Config
	Result *sim.Result
	Start  r3.Vector
	Target r3.Vector
}

func vec(v r3.Vector) [3]float64 { return [3]float64{v.X, v.Y, v.Z} }

// Metadata summarizes a run. Non-finite metrics are dropped since JSON
// cannot carry them.
func (r Run) Metadata(id string, at time.Time) RunMetadata {
	meta := RunMetadata{
		ID:         id,
		Model:      r.Config.Model,
		Timestamp:  at,
		Seed:       r.Config.Seed,
		Dt:         r.Config.Dt,
		Duration:   r.Config.Duration,
		Integrator: r.Config.Integrator,
		Start:      vec(r.Start),
		Target:     vec(r.Target),
		Statuses:   make(map[string]int),
		Metrics:    make(map[string]float64),
	}
	if r.Result == nil {
		return meta
	}
	meta.Steps = r.Result.StepsTaken
	meta.FinalError = r.Result.FinalError()
	if len(r.Result.Torques) > 0 {
		meta.DOF = len(r.Result.Torques[0])
	}
	for status, n := range r.Result.StatusCounts() {
		meta.Statuses[status.String()] = n
	}
	for name, v := range r.Result.Metrics {
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			meta.Metrics[name] = v
		}
	}
	return meta
}

// Save writes run under a fresh ID and returns it.
func (s *Store) Save(run Run) (string, error) {
	if run.Config == nil || run.Result == nil {
		return "", errors.New("storage: run needs a config and a result")
	}
	runID := fmt.Sprintf("%s_%s", run.Config.Model, uuid.New().String())
	runDir := filepath.Join(s.baseDir, runID)
	if err := os.MkdirAll(runDir, 0755); err != nil {
		return "", err
	}

	meta := run.Metadata(runID, s.now())
	if err := writeFile(filepath.Join(runDir, metadataFile), func(w io.Writer) error {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(meta)
	}); err != nil {
		return "", err
	}
	if err := config.Save(filepath.Join(runDir, configFile), run.Config); err != nil {
		return "", err
	}
	if err := writeFile(filepath.Join(runDir, seriesFile), func(w io.Writer) error {
		return WriteSeries(w, run.Result)
	}); err != nil {
		return "", err
	}
	return runID, nil
}

func writeFile(path string, write func(io.Writer) error) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Append(err, f.Close())
	}()
	return write(f)
}

// List returns the stored runs, oldest first. Directories without readable
// metadata are skipped.
func (s *Store) List() ([]RunMetadata, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []RunMetadata{}, nil
		}
		return nil, err
	}

	runs := make([]RunMetadata, 0)
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		meta, err := s.Load(entry.Name())
		if err != nil {
			continue
		}
		runs = append(runs, *meta)
	}
	sort.SliceStable(runs, func(i, j int) bool {
		return runs[i].Timestamp.Before(runs[j].Timestamp)
	})
	return runs, nil
}

func (s *Store) Load(runID string) (*RunMetadata, error) {
	data, err := os.ReadFile(filepath.Join(s.baseDir, runID, metadataFile))
	if err != nil {
		return nil, err
	}
	var meta RunMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, errors.Wrapf(err, "run %s metadata", runID)
	}
	return &meta, nil
}

// LoadConfig returns the config a run was made with.
func (s *Store) LoadConfig(runID string) (*config.Config, error) {
	return config.Load(filepath.Join(s.baseDir, runID, configFile))
}

func (s *Store) LoadSeries(runID string) (*Series, error) {
	f, err := os.Open(filepath.Join(s.baseDir, runID, seriesFile))
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadSeries(f)
}

// Delete removes a run directory.
func (s *Store) Delete(runID string) error {
	dir := filepath.Join(s.baseDir, runID)
	if _, err := os.Stat(filepath.Join(dir, metadataFile)); err != nil {
		return errors.Wrapf(err, "run %s", runID)
	}
	return os.RemoveAll(dir)
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', 10, 64)
}
