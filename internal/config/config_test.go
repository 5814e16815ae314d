package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/YunxiTang/Horizon-opt/internal/linalg"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Model != "double_integrator" {
		t.Errorf("unexpected default model %q", cfg.Model)
	}
	if cfg.N != DefaultN || cfg.Dt != DefaultDt {
		t.Errorf("unexpected defaults: n=%d dt=%f", cfg.N, cfg.Dt)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "problem.yaml")

	cfg := DefaultConfig()
	cfg.Model = "unicycle"
	cfg.N = 40
	cfg.Goal = []float64{1, 1, 0}
	cfg.GoalAsConstraint = true
	cfg.Solver.ConstrDecomp = "qr"

	if err := Save(path, cfg); err != nil {
		t.Fatal(err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}

	if loaded.Model != "unicycle" || loaded.N != 40 {
		t.Errorf("round trip lost fields: %+v", loaded)
	}
	if !loaded.GoalAsConstraint {
		t.Error("goal_as_constraint not preserved")
	}
	if loaded.Solver.ConstrDecomp != "qr" {
		t.Errorf("solver block not preserved: %+v", loaded.Solver)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestLoadInvalidYaml(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("model: [unclosed"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("expected error for invalid yaml")
	}
}

func TestSolverOptions(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Solver = SolverConfig{
		KKTDecomp:    "ldlt",
		ConstrDecomp: "cod",
		SVDThreshold: 1e-10,
		Auglag:       true,
		RhoInitial:   5,
	}
	opt, err := cfg.SolverOptions()
	if err != nil {
		t.Fatal(err)
	}
	if opt.KKTDecomp != linalg.SolveLDLT || opt.ConstrDecomp != linalg.DecompCOD {
		t.Errorf("decomposition selectors not mapped: %+v", opt)
	}
	if opt.SVDThreshold != 1e-10 || !opt.EnableAuglag || opt.RhoInitial != 5 {
		t.Errorf("options not mapped: %+v", opt)
	}
}

func TestSolverOptionsRejectsUnknown(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Solver.KKTDecomp = "cholesky"
	if _, err := cfg.SolverOptions(); err == nil {
		t.Error("unknown kkt_decomp accepted")
	}
}

func TestPresets(t *testing.T) {
	for name, cfg := range Presets {
		if cfg.Model == "" || cfg.N <= 0 || cfg.Dt <= 0 {
			t.Errorf("preset %q incomplete: %+v", name, cfg)
		}
		if len(cfg.X0) == 0 {
			t.Errorf("preset %q missing x0", name)
		}
	}
}
