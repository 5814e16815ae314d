package ilqr

import (
	"errors"
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"

	"github.com/YunxiTang/Horizon-opt/internal/linalg"
	"github.com/YunxiTang/Horizon-opt/internal/models"
	"github.com/YunxiTang/Horizon-opt/internal/ocp"
)

type recorder struct {
	reports []Report
	stopAt  int // stop after this many reports; 0 disables
}

func (r *recorder) cb(rep Report) bool {
	r.reports = append(r.reports, rep)
	return r.stopAt == 0 || len(r.reports) < r.stopAt
}

func (r *recorder) last() Report {
	return r.reports[len(r.reports)-1]
}

func diagDense(n int, v float64) *mat.Dense {
	d := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		d.Set(i, i, v)
	}
	return d
}

// riccatiRecursion computes the finite-horizon discrete Riccati sequence
// independently of the solver.
func riccatiRecursion(a, b, q, r, qf *mat.Dense, n int) *mat.Dense {
	s := mat.DenseCopyOf(qf)
	for k := n - 1; k >= 0; k-- {
		var sb, huu, hux, sa, snew mat.Dense
		sb.Mul(s, b)
		huu.Mul(b.T(), &sb)
		huu.Add(&huu, r)
		sa.Mul(s, a)
		hux.Mul(b.T(), &sa)

		var huuInv mat.Dense
		if err := huuInv.Inverse(&huu); err != nil {
			panic(err)
		}
		var gain, corr mat.Dense
		gain.Mul(&huuInv, &hux)
		corr.Mul(hux.T(), &gain)

		snew.Mul(a.T(), &sa)
		snew.Add(&snew, q)
		snew.Sub(&snew, &corr)
		s = mat.DenseCopyOf(&snew)
	}
	return s
}

func TestLQRMatchesRiccati(t *testing.T) {
	const n = 20
	dt := 0.1
	dyn := models.NewDoubleIntegrator(dt)

	q := diagDense(2, 1.0)
	r := diagDense(1, 1.0)
	qf := diagDense(2, 10.0)

	s, err := New(dyn, n)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.SetCost(&ocp.QuadraticCost{Q: q, R: r}); err != nil {
		t.Fatal(err)
	}
	if err := s.SetFinalCost(&ocp.QuadraticCost{Q: qf}); err != nil {
		t.Fatal(err)
	}
	if err := s.SetInitialState(mat.NewVecDense(2, []float64{1, 0})); err != nil {
		t.Fatal(err)
	}

	ok, err := s.Solve(10)
	if err != nil {
		t.Fatalf("solve failed: %v", err)
	}
	if !ok {
		t.Fatal("LQ problem did not converge")
	}
	if s.prof.Iterations > 3 {
		t.Errorf("LQ problem took %d iterations, expected one-shot convergence", s.prof.Iterations)
	}

	want := riccatiRecursion(dyn.A, dyn.B, q, r, qf, n)
	for i := 0; i < 2; i++ {
		for j := 0; j < 2; j++ {
			if e := math.Abs(s.value[0].S.At(i, j) - want.At(i, j)); e > 1e-8 {
				t.Errorf("S0[%d][%d] differs from Riccati by %g", i, j, e)
			}
		}
	}
}

func TestValueFunctionSymmetry(t *testing.T) {
	dyn := models.NewDoubleIntegrator(0.1)
	s, _ := New(dyn, 30)
	s.SetFinalCost(ocp.NewStateCost(mat.NewVecDense(2, nil), 200))
	s.SetInitialState(mat.NewVecDense(2, []float64{1, 0}))

	if _, err := s.Solve(20); err != nil {
		t.Fatal(err)
	}
	for k := 0; k <= s.n; k++ {
		S := s.value[k].S
		for i := 0; i < s.nx; i++ {
			for j := 0; j < s.nx; j++ {
				if e := math.Abs(S.At(i, j) - S.At(j, i)); e > 1e-10 {
					t.Fatalf("S[%d] asymmetric at (%d,%d): %g", k, i, j, e)
				}
			}
		}
	}
}

func TestDoubleIntegratorToOrigin(t *testing.T) {
	const n = 30
	dyn := models.NewDoubleIntegrator(0.1)

	s, err := New(dyn, n)
	if err != nil {
		t.Fatal(err)
	}
	s.SetFinalCost(ocp.NewStateCost(mat.NewVecDense(2, nil), 200))
	s.SetInitialState(mat.NewVecDense(2, []float64{1, 0}))

	rec := &recorder{}
	s.SetIterationCallback(rec.cb)

	ok, err := s.Solve(50)
	if err != nil {
		t.Fatalf("solve failed: %v", err)
	}
	if !ok {
		t.Fatal("did not converge")
	}

	x := s.StateTrajectory()
	finalNorm := math.Hypot(x.At(0, n), x.At(1, n))
	if finalNorm >= 1e-3 {
		t.Errorf("final state norm %g, want < 1e-3", finalNorm)
	}

	// cost settles across the last accepted iterations
	var accepted []float64
	for _, rep := range rec.reports {
		if rep.Accepted {
			accepted = append(accepted, rep.Cost)
		}
	}
	if len(accepted) >= 2 {
		last, prev := accepted[len(accepted)-1], accepted[len(accepted)-2]
		if math.Abs(last-prev) > 1e-6 {
			t.Errorf("cost not stable: %g vs %g", prev, last)
		}
	}
}

func TestLineSearchReportsValidSteps(t *testing.T) {
	dyn := models.NewDoubleIntegrator(0.1)
	s, _ := New(dyn, 30)
	s.SetFinalCost(ocp.NewStateCost(mat.NewVecDense(2, nil), 200))
	s.SetInitialState(mat.NewVecDense(2, []float64{1, 0}))

	rec := &recorder{}
	s.SetIterationCallback(rec.cb)

	if _, err := s.Solve(50); err != nil {
		t.Fatal(err)
	}

	for _, rep := range rec.reports {
		if rep.Alpha != 0 && (rep.Alpha < alphaMin/2 || rep.Alpha > 1) {
			t.Errorf("step size %g outside [alphaMin/2, 1]", rep.Alpha)
		}
		if math.IsNaN(rep.Merit) {
			t.Fatal("NaN merit reported")
		}
	}
}

func TestStageInputConstraint(t *testing.T) {
	// convex QP instance: the stage constraint u_10 = 0.3 is absorbed
	// directly by the stage KKT system
	dyn := models.NewDoubleIntegrator(0.1)
	s, _ := New(dyn, 30)
	s.SetFinalCost(ocp.NewStateCost(mat.NewVecDense(2, nil), 200))
	s.SetInitialState(mat.NewVecDense(2, []float64{1, 0}))

	con := &ocp.LinearConstraint{
		C:      mat.NewDense(1, 2, nil),
		D:      mat.NewDense(1, 1, []float64{1}),
		Offset: mat.NewVecDense(1, []float64{0.3}),
	}
	if err := s.SetIntermediateConstraint(10, con); err != nil {
		t.Fatal(err)
	}

	ok, err := s.Solve(50)
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("did not converge")
	}
	if e := math.Abs(s.InputTrajectory().At(0, 10) - 0.3); e > 1e-6 {
		t.Errorf("constrained input off by %g", e)
	}
}

func TestUnicycleEndpointConstraint(t *testing.T) {
	const n = 40
	dyn := models.NewUnicycle(0.05)
	s, err := New(dyn, n)
	if err != nil {
		t.Fatal(err)
	}
	s.SetFinalCost(&ocp.QuadraticCost{})
	s.SetInitialState(mat.NewVecDense(3, nil))

	goal := &ocp.LinearConstraint{
		C:      diagDense(3, 1),
		D:      mat.NewDense(3, 2, nil),
		Offset: mat.NewVecDense(3, []float64{1, 1, 0}),
	}
	if err := s.SetFinalConstraint(goal); err != nil {
		t.Fatal(err)
	}

	// seed with forward motion so the heading direction is observable
	u0 := mat.NewDense(2, n, nil)
	for k := 0; k < n; k++ {
		u0.Set(0, k, 0.5)
	}
	s.SetInputTrajectory(u0)

	ok, err := s.Solve(300)
	if err != nil {
		t.Fatalf("solve failed: %v", err)
	}
	if !ok {
		t.Fatal("did not converge")
	}

	x := s.StateTrajectory()
	want := []float64{1, 1, 0}
	for i := 0; i < 3; i++ {
		if e := math.Abs(x.At(i, n) - want[i]); e > 1e-4 {
			t.Errorf("endpoint component %d off by %g", i, e)
		}
	}
}

func TestRankDeficientConstraintDropped(t *testing.T) {
	// two identical final rows: one must be dropped as linearly dependent
	// and the solver must behave as if only one row were present
	const n = 30
	dyn := models.NewDoubleIntegrator(0.1)
	s, _ := New(dyn, n)
	s.SetInitialState(mat.NewVecDense(2, nil))

	con := &ocp.LinearConstraint{
		C: mat.NewDense(2, 2, []float64{
			1, 0,
			1, 0,
		}),
		D:      mat.NewDense(2, 1, nil),
		Offset: mat.NewVecDense(2, []float64{1, 1}),
	}
	if err := s.SetFinalConstraint(con); err != nil {
		t.Fatal(err)
	}

	ok, err := s.Solve(100)
	if err != nil {
		t.Fatalf("solve failed: %v", err)
	}
	if !ok {
		t.Fatal("did not converge")
	}
	if s.prof.DroppedDependentRows == 0 {
		t.Error("expected at least one dropped dependent row")
	}
	if e := math.Abs(s.StateTrajectory().At(0, n) - 1); e > 1e-4 {
		t.Errorf("endpoint position off by %g", e)
	}
}

func TestInfeasibleConstraintWarns(t *testing.T) {
	// uncontrollable scalar dynamics: a final equality the inputs cannot
	// reach must surface as a warning, not a fatal error
	dyn := ocp.NewLinearDynamics(
		mat.NewDense(1, 1, []float64{1}),
		mat.NewDense(1, 1, []float64{0}),
	)
	s, _ := New(dyn, 10)
	s.SetInitialState(mat.NewVecDense(1, nil))

	con := &ocp.LinearConstraint{
		C:      mat.NewDense(1, 1, []float64{1}),
		Offset: mat.NewVecDense(1, []float64{1}),
	}
	if err := s.SetFinalConstraint(con); err != nil {
		t.Fatal(err)
	}

	rec := &recorder{}
	s.SetIterationCallback(rec.cb)

	ok, err := s.Solve(10)
	if err != nil {
		t.Fatalf("infeasible problem must not be fatal: %v", err)
	}
	if ok {
		t.Error("infeasible problem reported as converged")
	}
	if s.prof.InfeasibleWarnings == 0 {
		t.Error("expected infeasibility warnings")
	}
	// violation plateaus at the unreachable residual
	if v := rec.last().ConstraintViolation; v < 1e-3 {
		t.Errorf("expected persistent constraint violation, got %g", v)
	}
}

func TestRegularizationRetry(t *testing.T) {
	// zero cost makes Huu exactly singular at the first backward pass; the
	// retry must raise the regularization and succeed
	dyn := models.NewIntegrator(0.1)
	s, _ := New(dyn, 5)
	s.SetCost(&ocp.QuadraticCost{})
	s.SetFinalCost(&ocp.QuadraticCost{})
	s.SetInitialState(mat.NewVecDense(1, []float64{0.5}))

	ok, err := s.Solve(20)
	if err != nil {
		t.Fatalf("solve failed: %v", err)
	}
	if !ok {
		t.Error("did not converge after regularization retry")
	}
	if s.prof.BackwardRestarts == 0 {
		t.Error("expected at least one backward pass restart")
	}
	if s.hxxReg < s.opt.HxxRegBase {
		t.Errorf("hxx_reg %g below its base %g", s.hxxReg, s.opt.HxxRegBase)
	}
}

func TestBoundActiveInputSaturation(t *testing.T) {
	const n = 10
	dyn := models.NewIntegrator(0.1)
	s, _ := New(dyn, n)
	s.SetFinalCost(ocp.NewStateCost(mat.NewVecDense(1, nil), 200))
	s.SetInitialState(mat.NewVecDense(1, []float64{1}))

	lb := fill(mat.NewDense(1, n, nil), -0.5)
	ub := fill(mat.NewDense(1, n, nil), 0.5)
	if err := s.SetInputBounds(lb, ub); err != nil {
		t.Fatal(err)
	}

	opt := s.Options()
	opt.EnableAuglag = true
	if err := s.SetOptions(opt); err != nil {
		t.Fatal(err)
	}

	rec := &recorder{}
	s.SetIterationCallback(rec.cb)

	if _, err := s.Solve(400); err != nil {
		t.Fatalf("solve failed: %v", err)
	}

	u := s.InputTrajectory()
	for k := 0; k < n; k++ {
		if v := math.Abs(u.At(0, k)); v > 0.5+1e-4 {
			t.Errorf("input %d saturates beyond bound: |u| = %g", k, v)
		}
	}
	if s.prof.AuglagUpdates == 0 {
		t.Error("expected auglag updates")
	}
	if v := rec.last().BoundViolation; v > 1e-4 {
		t.Errorf("bound violation %g did not vanish", v)
	}
}

func TestIdempotentAtOptimum(t *testing.T) {
	const n = 30
	dyn := models.NewDoubleIntegrator(0.1)

	first, _ := New(dyn, n)
	first.SetFinalCost(ocp.NewStateCost(mat.NewVecDense(2, nil), 200))
	first.SetInitialState(mat.NewVecDense(2, []float64{1, 0}))
	if ok, err := first.Solve(50); err != nil || !ok {
		t.Fatalf("seed solve failed: ok=%v err=%v", ok, err)
	}

	second, _ := New(dyn, n)
	second.SetFinalCost(ocp.NewStateCost(mat.NewVecDense(2, nil), 200))
	second.SetInitialState(mat.NewVecDense(2, []float64{1, 0}))
	second.SetStateTrajectory(first.StateTrajectory())
	second.SetInputTrajectory(first.InputTrajectory())

	ok, err := second.Solve(10)
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("re-solve at the optimum did not converge")
	}
	if second.prof.Iterations > 2 {
		t.Errorf("re-solve took %d iterations, want at most 2", second.prof.Iterations)
	}
}

func TestCallbackStopsSolve(t *testing.T) {
	dyn := models.NewDoubleIntegrator(0.1)
	s, _ := New(dyn, 30)
	s.SetFinalCost(ocp.NewStateCost(mat.NewVecDense(2, nil), 200))
	s.SetInitialState(mat.NewVecDense(2, []float64{1, 0}))

	rec := &recorder{stopAt: 1}
	s.SetIterationCallback(rec.cb)

	ok, err := s.Solve(50)
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Error("stopped solve must not report convergence")
	}
	if s.prof.Iterations != 1 {
		t.Errorf("expected a single iteration, got %d", s.prof.Iterations)
	}
}

func TestNonFiniteInitialState(t *testing.T) {
	dyn := models.NewDoubleIntegrator(0.1)
	s, _ := New(dyn, 10)
	s.SetInitialState(mat.NewVecDense(2, []float64{math.NaN(), 0}))

	_, err := s.Solve(10)
	if !errors.Is(err, ErrNonFiniteInput) {
		t.Fatalf("expected ErrNonFiniteInput, got %v", err)
	}
}

func TestOptionValidation(t *testing.T) {
	dyn := models.NewDoubleIntegrator(0.1)
	s, _ := New(dyn, 10)

	opt := s.Options()
	opt.KKTDecomp = 99
	if err := s.SetOptions(opt); err == nil {
		t.Error("invalid kkt decomposition accepted")
	}

	opt = s.Options()
	opt.ConstrDecomp = 99
	if err := s.SetOptions(opt); err == nil {
		t.Error("invalid constraint decomposition accepted")
	}
}

func TestDecompositionVariantsAgree(t *testing.T) {
	solveWith := func(kkt, constr int) *mat.Dense {
		dyn := models.NewDoubleIntegrator(0.1)
		s, _ := New(dyn, 30)
		s.SetInitialState(mat.NewVecDense(2, nil))
		con := &ocp.LinearConstraint{
			C:      mat.NewDense(1, 2, []float64{1, 0}),
			D:      mat.NewDense(1, 1, nil),
			Offset: mat.NewVecDense(1, []float64{1}),
		}
		s.SetFinalConstraint(con)

		opt := s.Options()
		opt.KKTDecomp = linalg.SolveKind(kkt)
		opt.ConstrDecomp = linalg.DecompKind(constr)
		if err := s.SetOptions(opt); err != nil {
			t.Fatal(err)
		}
		ok, err := s.Solve(100)
		if err != nil || !ok {
			t.Fatalf("variant (%d,%d) failed: ok=%v err=%v", kkt, constr, ok, err)
		}
		return mat.DenseCopyOf(s.StateTrajectory())
	}

	ref := solveWith(0, 0)
	for kkt := 0; kkt < 3; kkt++ {
		for constr := 0; constr < 3; constr++ {
			if kkt == 0 && constr == 0 {
				continue
			}
			got := solveWith(kkt, constr)
			r, c := ref.Dims()
			for i := 0; i < r; i++ {
				for j := 0; j < c; j++ {
					if e := math.Abs(got.At(i, j) - ref.At(i, j)); e > 1e-6 {
						t.Fatalf("variant (%d,%d) trajectory differs by %g at (%d,%d)",
							kkt, constr, e, i, j)
					}
				}
			}
		}
	}
}
