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

	"gonum.org/v1/gonum/mat"
)

// Store persists solve runs under a base directory, one subdirectory per
// run with metadata.json and trajectories.csv.
type Store struct {
	baseDir string
}

func New(baseDir string) *Store {
	return &Store{baseDir: baseDir}
}

func (s *Store) Init() error {
	return os.MkdirAll(s.baseDir, 0755)
}

// RunMetadata summarizes one stored solve.
type RunMetadata struct {
	ID                  string    `json:"id"`
	Model               string    `json:"model"`
	Timestamp           time.Time `json:"timestamp"`
	N                   int       `json:"n"`
	Dt                  float64   `json:"dt"`
	Converged           bool      `json:"converged"`
	Iterations          int       `json:"iterations"`
	Cost                float64   `json:"cost"`
	DefectNorm          float64   `json:"defect_norm"`
	ConstraintViolation float64   `json:"constraint_violation"`
}

// Save writes one run. The trajectories are stored row-per-stage: the final
// stage carries empty input columns.
func (s *Store) Save(meta RunMetadata, x, u *mat.Dense) (string, error) {
	if meta.ID == "" {
		meta.ID = fmt.Sprintf("%s_%d", meta.Model, time.Now().Unix())
	}
	if meta.Timestamp.IsZero() {
		meta.Timestamp = time.Now()
	}
	runDir := filepath.Join(s.baseDir, meta.ID)
	if err := os.MkdirAll(runDir, 0755); err != nil {
		return "", err
	}

	metaFile, err := os.Create(filepath.Join(runDir, "metadata.json"))
	if err != nil {
		return "", err
	}
	enc := json.NewEncoder(metaFile)
	enc.SetIndent("", "  ")
	if err := enc.Encode(meta); err != nil {
		metaFile.Close()
		return "", err
	}
	if err := metaFile.Close(); err != nil {
		return "", err
	}

	trjFile, err := os.Create(filepath.Join(runDir, "trajectories.csv"))
	if err != nil {
		return "", err
	}
	defer trjFile.Close()

	nx, cols := x.Dims()
	nu, _ := u.Dims()
	w := csv.NewWriter(trjFile)

	header := []string{"k"}
	for i := 0; i < nx; i++ {
		header = append(header, fmt.Sprintf("x%d", i))
	}
	for j := 0; j < nu; j++ {
		header = append(header, fmt.Sprintf("u%d", j))
	}
	if err := w.Write(header); err != nil {
		return "", err
	}

	for k := 0; k < cols; k++ {
		row := []string{strconv.Itoa(k)}
		for i := 0; i < nx; i++ {
			row = append(row, strconv.FormatFloat(x.At(i, k), 'g', -1, 64))
		}
		for j := 0; j < nu; j++ {
			if k < cols-1 {
				row = append(row, strconv.FormatFloat(u.At(j, k), 'g', -1, 64))
			} else {
				row = append(row, "")
			}
		}
		if err := w.Write(row); err != nil {
			return "", err
		}
	}
	w.Flush()
	return meta.ID, w.Error()
}

// List returns the stored runs, newest first.
func (s *Store) List() ([]RunMetadata, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var runs []RunMetadata
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		meta, err := s.Load(e.Name())
		if err != nil {
			continue
		}
		runs = append(runs, meta)
	}
	sort.Slice(runs, func(i, j int) bool {
		return runs[i].Timestamp.After(runs[j].Timestamp)
	})
	return runs, nil
}

// Load reads one run's metadata.
func (s *Store) Load(runID string) (RunMetadata, error) {
	var meta RunMetadata
	data, err := os.ReadFile(filepath.Join(s.baseDir, runID, "metadata.json"))
	if err != nil {
		return meta, err
	}
	return meta, json.Unmarshal(data, &meta)
}

// LoadTrajectories reads one run's state and input trajectories back into
// dense matrices.
func (s *Store) LoadTrajectories(runID string) (x, u *mat.Dense, err error) {
	f, err := os.Open(filepath.Join(s.baseDir, runID, "trajectories.csv"))
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()

	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, nil, err
	}
	if len(records) < 2 {
		return nil, nil, fmt.Errorf("storage: run %s has no trajectory rows", runID)
	}

	header := records[0]
	nx, nu := 0, 0
	for _, col := range header[1:] {
		if len(col) > 0 && col[0] == 'x' {
			nx++
		}
		if len(col) > 0 && col[0] == 'u' {
			nu++
		}
	}
	stages := len(records) - 1

	x = mat.NewDense(nx, stages, nil)
	u = mat.NewDense(nu, stages-1, nil)
	for k, rec := range records[1:] {
		for i := 0; i < nx; i++ {
			v, err := strconv.ParseFloat(rec[1+i], 64)
			if err != nil {
				return nil, nil, err
			}
			x.Set(i, k, v)
		}
		if k == stages-1 {
			continue
		}
		for j := 0; j < nu; j++ {
			v, err := strconv.ParseFloat(rec[1+nx+j], 64)
			if err != nil {
				return nil, nil, err
			}
			u.Set(j, k, v)
		}
	}
	return x, u, nil
}
