package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/YunxiTang/Horizon-opt/internal/ilqr"
	"github.com/YunxiTang/Horizon-opt/internal/linalg"
)

const (
	DefaultN       = 30
	DefaultDt      = 0.1
	DefaultMaxIter = 100
)

// Config describes one trajectory optimization problem: the model, horizon,
// boundary data and solver options.
type Config struct {
	Model   string    `yaml:"model"`
	N       int       `yaml:"n"`
	Dt      float64   `yaml:"dt"`
	MaxIter int       `yaml:"max_iter"`
	X0      []float64 `yaml:"x0"`

	// Goal is the target final state. With GoalAsConstraint it becomes a
	// hard final equality; otherwise it is tracked by a quadratic final
	// cost weighted by GoalWeight.
	Goal             []float64 `yaml:"goal"`
	GoalAsConstraint bool      `yaml:"goal_as_constraint"`
	GoalWeight       float64   `yaml:"goal_weight"`
	InputWeight      float64   `yaml:"input_weight"`

	// Uniform input bounds applied at every stage; nil disables.
	UMin []float64 `yaml:"u_min"`
	UMax []float64 `yaml:"u_max"`

	Solver SolverConfig `yaml:"solver"`
}

// SolverConfig mirrors the ilqr.Options knobs exposed to config files.
type SolverConfig struct {
	KKTDecomp    string  `yaml:"kkt_decomp"`
	ConstrDecomp string  `yaml:"constr_decomp"`
	SVDThreshold float64 `yaml:"svd_threshold"`
	HxxRegBase   float64 `yaml:"hxx_reg_base"`
	HxxRegGrowth float64 `yaml:"hxx_reg_growth"`
	HuuReg       float64 `yaml:"huu_reg"`
	KKTReg       float64 `yaml:"kkt_reg"`
	Auglag       bool    `yaml:"auglag"`
	RhoInitial   float64 `yaml:"rho_initial"`
	RhoGrowth    float64 `yaml:"rho_growth"`
	Verbose      bool    `yaml:"verbose"`
}

// DefaultConfig returns a solvable out-of-the-box problem.
func DefaultConfig() *Config {
	return &Config{
		Model:       "double_integrator",
		N:           DefaultN,
		Dt:          DefaultDt,
		MaxIter:     DefaultMaxIter,
		X0:          []float64{1, 0},
		Goal:        []float64{0, 0},
		GoalWeight:  200,
		InputWeight: 1,
	}
}

// Load reads a yaml config on top of the defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the config as yaml.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// SolverOptions translates the yaml solver block into ilqr options.
func (c *Config) SolverOptions() (ilqr.Options, error) {
	opt := ilqr.DefaultOptions()
	sc := c.Solver

	switch sc.KKTDecomp {
	case "", "lu":
		opt.KKTDecomp = linalg.SolveLU
	case "qr":
		opt.KKTDecomp = linalg.SolveQR
	case "ldlt":
		opt.KKTDecomp = linalg.SolveLDLT
	default:
		return opt, fmt.Errorf("config: unknown kkt_decomp %q", sc.KKTDecomp)
	}

	switch sc.ConstrDecomp {
	case "", "svd":
		opt.ConstrDecomp = linalg.DecompSVD
	case "qr":
		opt.ConstrDecomp = linalg.DecompQR
	case "cod":
		opt.ConstrDecomp = linalg.DecompCOD
	default:
		return opt, fmt.Errorf("config: unknown constr_decomp %q", sc.ConstrDecomp)
	}

	if sc.SVDThreshold > 0 {
		opt.SVDThreshold = sc.SVDThreshold
	}
	if sc.HxxRegBase > 0 {
		opt.HxxRegBase = sc.HxxRegBase
	}
	if sc.HxxRegGrowth > 1 {
		opt.HxxRegGrowth = sc.HxxRegGrowth
	}
	opt.HuuReg = sc.HuuReg
	opt.KKTReg = sc.KKTReg
	opt.EnableAuglag = sc.Auglag
	if sc.RhoInitial > 0 {
		opt.RhoInitial = sc.RhoInitial
	}
	if sc.RhoGrowth > 1 {
		opt.RhoGrowth = sc.RhoGrowth
	}
	opt.Verbose = sc.Verbose
	return opt, nil
}
