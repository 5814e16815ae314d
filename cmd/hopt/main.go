package main

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"text/tabwriter"

	"github.com/charmbracelet/lipgloss"
	"github.com/guptarohit/asciigraph"
	"github.com/spf13/cobra"
	"gonum.org/v1/gonum/mat"

	"github.com/YunxiTang/Horizon-opt/internal/config"
	"github.com/YunxiTang/Horizon-opt/internal/ilqr"
	"github.com/YunxiTang/Horizon-opt/internal/models"
	"github.com/YunxiTang/Horizon-opt/internal/ocp"
	"github.com/YunxiTang/Horizon-opt/internal/storage"
	"github.com/YunxiTang/Horizon-opt/internal/tui"
)

var (
	dataDir    string
	configFile string
	preset     string
	horizon    int
	dt         float64
	maxIter    int
	auglag     bool
	live       bool
	plotStates bool
	verbose    bool
)

var (
	headStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205"))
	okStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	warnStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "hopt",
		Short: "trajectory optimization with multiple-shooting ilqr",
	}
	rootCmd.PersistentFlags().StringVar(&dataDir, "data", ".hopt", "data directory")

	solveCmd := &cobra.Command{
		Use:   "solve [model]",
		Short: "solve a trajectory optimization problem",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runSolve,
	}
	solveCmd.Flags().StringVar(&configFile, "config", "", "config file path (yaml)")
	solveCmd.Flags().StringVar(&preset, "preset", "", "use preset configuration")
	solveCmd.Flags().IntVar(&horizon, "N", 0, "shooting intervals")
	solveCmd.Flags().Float64Var(&dt, "dt", 0, "timestep")
	solveCmd.Flags().IntVar(&maxIter, "max-iter", 0, "iteration budget")
	solveCmd.Flags().BoolVar(&auglag, "auglag", false, "enable augmented-lagrangian bound handling")
	solveCmd.Flags().BoolVar(&live, "live", false, "live solve view")
	solveCmd.Flags().BoolVar(&plotStates, "plot", false, "plot state trajectories after solving")
	solveCmd.Flags().BoolVar(&verbose, "verbose", false, "verbose solver output")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "list stored runs",
		RunE:  runList,
	}

	plotCmd := &cobra.Command{
		Use:   "plot [run_id]",
		Short: "plot a stored run",
		Args:  cobra.ExactArgs(1),
		RunE:  runPlot,
	}

	exportCmd := &cobra.Command{
		Use:   "export [run_id]",
		Short: "export run metadata as json",
		Args:  cobra.ExactArgs(1),
		RunE:  runExport,
	}

	rootCmd.AddCommand(solveCmd, listCmd, plotCmd, exportCmd)
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func resolveConfig(args []string) (*config.Config, error) {
	cfg := config.DefaultConfig()
	if preset != "" {
		p, ok := config.Presets[preset]
		if !ok {
			return nil, fmt.Errorf("unknown preset %q", preset)
		}
		cfg = p
	}
	if configFile != "" {
		loaded, err := config.Load(configFile)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	if len(args) > 0 {
		cfg.Model = args[0]
	}
	if horizon > 0 {
		cfg.N = horizon
	}
	if dt > 0 {
		cfg.Dt = dt
	}
	if maxIter > 0 {
		cfg.MaxIter = maxIter
	}
	if auglag {
		cfg.Solver.Auglag = true
	}
	if verbose {
		cfg.Solver.Verbose = true
	}
	return cfg, nil
}

func buildDynamics(cfg *config.Config) (ocp.Dynamics, error) {
	switch cfg.Model {
	case "double_integrator":
		return models.NewDoubleIntegrator(cfg.Dt), nil
	case "integrator":
		return models.NewIntegrator(cfg.Dt), nil
	case "unicycle":
		return models.NewUnicycle(cfg.Dt), nil
	case "pendulum":
		return models.NewPendulum(cfg.Dt), nil
	case "cartpole":
		return models.NewCartPole(cfg.Dt), nil
	}
	return nil, fmt.Errorf("unknown model %q", cfg.Model)
}

func buildSolver(cfg *config.Config) (*ilqr.Solver, error) {
	dyn, err := buildDynamics(cfg)
	if err != nil {
		return nil, err
	}
	if len(cfg.X0) != dyn.StateDim() {
		return nil, fmt.Errorf("x0 has %d entries, model %q needs %d",
			len(cfg.X0), cfg.Model, dyn.StateDim())
	}

	s, err := ilqr.New(dyn, cfg.N)
	if err != nil {
		return nil, err
	}
	opt, err := cfg.SolverOptions()
	if err != nil {
		return nil, err
	}
	if err := s.SetOptions(opt); err != nil {
		return nil, err
	}

	weight := cfg.InputWeight
	if weight <= 0 {
		weight = 1
	}
	if err := s.SetCost(ocp.NewInputCost(dyn.InputDim(), weight)); err != nil {
		return nil, err
	}

	if len(cfg.Goal) > 0 {
		if len(cfg.Goal) != dyn.StateDim() {
			return nil, fmt.Errorf("goal has %d entries, model %q needs %d",
				len(cfg.Goal), cfg.Model, dyn.StateDim())
		}
		goal := mat.NewVecDense(len(cfg.Goal), cfg.Goal)
		if cfg.GoalAsConstraint {
			nx := dyn.StateDim()
			eye := mat.NewDense(nx, nx, nil)
			for i := 0; i < nx; i++ {
				eye.Set(i, i, 1)
			}
			if err := s.SetFinalConstraint(&ocp.LinearConstraint{
				C:      eye,
				D:      mat.NewDense(nx, dyn.InputDim(), nil),
				Offset: goal,
			}); err != nil {
				return nil, err
			}
			if err := s.SetFinalCost(&ocp.QuadraticCost{}); err != nil {
				return nil, err
			}
		} else {
			w := cfg.GoalWeight
			if w <= 0 {
				w = 100
			}
			if err := s.SetFinalCost(ocp.NewStateCost(goal, w)); err != nil {
				return nil, err
			}
		}
	}

	if err := s.SetInitialState(mat.NewVecDense(len(cfg.X0), cfg.X0)); err != nil {
		return nil, err
	}

	if len(cfg.UMin) > 0 || len(cfg.UMax) > 0 {
		nu := dyn.InputDim()
		lb := mat.NewDense(nu, cfg.N, nil)
		ub := mat.NewDense(nu, cfg.N, nil)
		for j := 0; j < nu; j++ {
			lo, hi := math.Inf(-1), math.Inf(1)
			if j < len(cfg.UMin) {
				lo = cfg.UMin[j]
			}
			if j < len(cfg.UMax) {
				hi = cfg.UMax[j]
			}
			for k := 0; k < cfg.N; k++ {
				lb.Set(j, k, lo)
				ub.Set(j, k, hi)
			}
		}
		if err := s.SetInputBounds(lb, ub); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func runSolve(cmd *cobra.Command, args []string) error {
	cfg, err := resolveConfig(args)
	if err != nil {
		return err
	}
	s, err := buildSolver(cfg)
	if err != nil {
		return err
	}

	var converged bool
	var last ilqr.Report
	if live {
		converged, err = tui.Live(cfg.Model, func(cb ilqr.Callback) (bool, error) {
			s.SetIterationCallback(func(rep ilqr.Report) bool {
				last = rep
				return cb(rep)
			})
			return s.Solve(cfg.MaxIter)
		})
	} else {
		s.SetIterationCallback(func(rep ilqr.Report) bool {
			last = rep
			if rep.Accepted {
				fmt.Printf("iter %3d  alpha %6.4f  cost %12.6g  defect %10.3g  viol %10.3g\n",
					rep.Iter, rep.Alpha, rep.Cost, rep.DefectNorm, rep.ConstraintViolation)
			}
			return true
		})
		converged, err = s.Solve(cfg.MaxIter)
	}
	if err != nil {
		return err
	}

	prof := s.Profiling()
	fmt.Println()
	fmt.Println(headStyle.Render("solve summary"))
	status := okStyle.Render("converged")
	if !converged {
		status = warnStyle.Render("not converged")
	}
	fmt.Printf("  model       %s\n", cfg.Model)
	fmt.Printf("  status      %s\n", status)
	fmt.Printf("  iterations  %d (%d forward passes, %d restarts)\n",
		prof.Iterations, prof.ForwardPasses, prof.BackwardRestarts)
	fmt.Printf("  cost        %.6g\n", last.Cost)
	fmt.Printf("  defect      %.3g\n", last.DefectNorm)
	fmt.Printf("  violation   %.3g\n", last.ConstraintViolation)

	store := storage.New(dataDir)
	if err := store.Init(); err != nil {
		return err
	}
	id, err := store.Save(storage.RunMetadata{
		Model:               cfg.Model,
		N:                   cfg.N,
		Dt:                  cfg.Dt,
		Converged:           converged,
		Iterations:          prof.Iterations,
		Cost:                last.Cost,
		DefectNorm:          last.DefectNorm,
		ConstraintViolation: last.ConstraintViolation,
	}, s.StateTrajectory(), s.InputTrajectory())
	if err != nil {
		return err
	}
	fmt.Printf("  saved as    %s\n", id)

	if plotStates {
		plotTrajectories(s.StateTrajectory(), s.InputTrajectory())
	}
	return nil
}

func plotTrajectories(x, u *mat.Dense) {
	nx, cols := x.Dims()
	for i := 0; i < nx; i++ {
		series := make([]float64, cols)
		for k := 0; k < cols; k++ {
			series[k] = x.At(i, k)
		}
		fmt.Println()
		fmt.Println(asciigraph.Plot(series,
			asciigraph.Height(8),
			asciigraph.Caption(fmt.Sprintf("x%d", i))))
	}
	nu, stages := u.Dims()
	for j := 0; j < nu; j++ {
		series := make([]float64, stages)
		for k := 0; k < stages; k++ {
			series[k] = u.At(j, k)
		}
		fmt.Println()
		fmt.Println(asciigraph.Plot(series,
			asciigraph.Height(8),
			asciigraph.Caption(fmt.Sprintf("u%d", j))))
	}
}

func runList(cmd *cobra.Command, args []string) error {
	store := storage.New(dataDir)
	runs, err := store.List()
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tMODEL\tN\tCONVERGED\tITER\tCOST")
	for _, r := range runs {
		fmt.Fprintf(w, "%s\t%s\t%d\t%v\t%d\t%.6g\n",
			r.ID, r.Model, r.N, r.Converged, r.Iterations, r.Cost)
	}
	return w.Flush()
}

func runPlot(cmd *cobra.Command, args []string) error {
	store := storage.New(dataDir)
	x, u, err := store.LoadTrajectories(args[0])
	if err != nil {
		return err
	}
	plotTrajectories(x, u)
	return nil
}

func runExport(cmd *cobra.Command, args []string) error {
	store := storage.New(dataDir)
	meta, err := store.Load(args[0])
	if err != nil {
		return err
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(meta)
}
