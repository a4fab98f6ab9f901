package storage

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/san-kum/gridsim/internal/metrics"
	"github.com/san-kum/gridsim/internal/physics"
	"github.com/san-kum/gridsim/internal/sim"
)

// Store archives finished runs, one directory per run.
type Store struct {
	baseDir string
}

func New(baseDir string) *Store {
	return &Store{baseDir: baseDir}
}

func (s *Store) Init() error {
	return os.MkdirAll(s.baseDir, 0755)
}

type RunMetadata struct {
	ID        string         `json:"id"`
	Timestamp time.Time      `json:"timestamp"`
	Mode      string         `json:"mode"`
	Particles int            `json:"particles"`
	Procs     int            `json:"procs"`
	Steps     int            `json:"steps"`
	Seed      int64          `json:"seed"`
	Size      float64        `json:"size"`
	Physics   physics.Params `json:"physics"`
	Seconds   float64        `json:"seconds"`
	AbsMin    float64        `json:"absmin,omitempty"`
	AbsAvg    float64        `json:"absavg,omitempty"`
	Warnings  []string       `json:"warnings,omitempty"`
}

// Save writes metadata.json and diagnostics.csv for a finished run and
// returns the run ID.
func (s *Store) Save(mode string, seed int64, prm physics.Params, result *sim.Result) (string, error) {
	now := time.Now()
	runID := fmt.Sprintf("%s_n%d_p%d_%d", mode, result.Particles, result.Procs, now.UnixNano())
	runDir := filepath.Join(s.baseDir, runID)

	if err := os.MkdirAll(runDir, 0755); err != nil {
		return "", err
	}

	meta := RunMetadata{
		ID:        runID,
		Timestamp: now,
		Mode:      mode,
		Particles: result.Particles,
		Procs:     result.Procs,
		Steps:     result.Steps,
		Seed:      seed,
		Size:      result.Size,
		Physics:   prm,
		Seconds:   result.Elapsed.Seconds(),
		AbsMin:    result.AbsMin,
		AbsAvg:    result.AbsAvg,
		Warnings:  result.Warnings,
	}

	metaFile, err := os.Create(filepath.Join(runDir, "metadata.json"))
	if err != nil {
		return "", err
	}
	defer metaFile.Close()

	enc := json.NewEncoder(metaFile)
	enc.SetIndent("", "  ")
	if err := enc.Encode(meta); err != nil {
		return "", err
	}

	csvFile, err := os.Create(filepath.Join(runDir, "diagnostics.csv"))
	if err != nil {
		return "", err
	}
	defer csvFile.Close()

	w := csv.NewWriter(csvFile)
	if err := w.Write([]string{"step", "dmin", "davg", "navg", "mean"}); err != nil {
		return "", err
	}
	for _, st := range result.History {
		row := []string{
			strconv.Itoa(st.Step),
			strconv.FormatFloat(st.DMin, 'g', -1, 64),
			strconv.FormatFloat(st.DAvg, 'g', -1, 64),
			strconv.Itoa(st.NAvg),
			strconv.FormatFloat(st.Mean(), 'g', -1, 64),
		}
		if err := w.Write(row); err != nil {
			return "", err
		}
	}
	w.Flush()
	return runID, w.Error()
}

// List returns every archived run, oldest first.
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
	sort.Slice(runs, func(i, j int) bool { return runs[i].Timestamp.Before(runs[j].Timestamp) })
	return runs, nil
}

func (s *Store) Load(runID string) (*RunMetadata, error) {
	data, err := os.ReadFile(filepath.Join(s.baseDir, runID, "metadata.json"))
	if err != nil {
		return nil, err
	}

	var meta RunMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, err
	}
	return &meta, nil
}

// LoadDiagnostics reads back the per-step history of a run.
func (s *Store) LoadDiagnostics(runID string) ([]metrics.Step, error) {
	file, err := os.Open(filepath.Join(s.baseDir, runID, "diagnostics.csv"))
	if err != nil {
		return nil, err
	}
	defer file.Close()

	records, err := csv.NewReader(file).ReadAll()
	if err != nil {
		return nil, err
	}
	if len(records) < 2 {
		return []metrics.Step{}, nil
	}

	out := make([]metrics.Step, 0, len(records)-1)
	for i, record := range records[1:] {
		if len(record) < 4 {
			return nil, fmt.Errorf("storage: %s diagnostics line %d: %d fields", runID, i+2, len(record))
		}
		step, err1 := strconv.Atoi(record[0])
		dmin, err2 := strconv.ParseFloat(record[1], 64)
		davg, err3 := strconv.ParseFloat(record[2], 64)
		navg, err4 := strconv.Atoi(record[3])
		for _, err := range []error{err1, err2, err3, err4} {
			if err != nil {
				return nil, fmt.Errorf("storage: %s diagnostics line %d: %w", runID, i+2, err)
			}
		}
		out = append(out, metrics.Step{Step: step, Sample: metrics.Sample{DMin: dmin, DAvg: davg, NAvg: navg}})
	}
	return out, nil
}
