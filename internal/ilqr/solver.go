package ilqr

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/YunxiTang/Horizon-opt/internal/ocp"
)

// Solver owns the trajectories, the per-stage linearization caches and the
// backward/forward pass machinery for one problem instance. It is not safe
// for concurrent use.
type Solver struct {
	nx, nu, n int

	dyn    ocp.Dynamics
	cost   []ocp.Cost       // N+1; final entry is state-only
	constr []ocp.Constraint // N+1; nil entries allowed

	xtrj *mat.Dense // nx×(N+1)
	utrj *mat.Dense // nu×N

	xlb, xub *mat.Dense // nx×(N+1)
	ulb, uub *mat.Dense // nu×N

	dynA   []*mat.Dense    // N
	dynB   []*mat.Dense    // N
	defect []*mat.VecDense // N

	costQ []*mat.Dense    // N+1
	costR []*mat.Dense    // N+1
	costP []*mat.Dense    // N+1
	costq []*mat.VecDense // N+1
	costr []*mat.VecDense // N+1

	conC []*mat.Dense    // N+1, sized per constraint
	conD []*mat.Dense    // N+1
	conH []*mat.VecDense // N+1

	value []valueFn   // N+1
	bp    []*bpResult // N

	dx0    *mat.VecDense // nx
	dx0Lam *mat.VecDense // cap

	ctg *constraintToGo
	fp  *forwardResult
	ws  []*workspace // N

	opt  Options
	cb   Callback
	prof ProfilingInfo
	iter int

	hxxReg float64

	// augmented-Lagrangian state
	rho    float64
	lamXLo *mat.Dense // nx×(N+1)
	lamXHi *mat.Dense
	lamULo *mat.Dense // nu×N
	lamUHi *mat.Dense
	muB    float64

	fnext *mat.VecDense // nx dynamics scratch
}

// New builds a solver for horizon N; the state and input dimensions are
// derived from the dynamics oracle. The problem starts with the default cost
// ½‖u‖² per intermediate stage and ½‖x‖² at the final stage so that a solve
// works out of the box.
func New(dyn ocp.Dynamics, n int) (*Solver, error) {
	if dyn == nil {
		return nil, fmt.Errorf("ilqr: nil dynamics")
	}
	if n < 1 {
		return nil, fmt.Errorf("ilqr: horizon must be at least 1, got %d", n)
	}
	nx, nu := dyn.StateDim(), dyn.InputDim()
	if nx < 1 || nu < 1 {
		return nil, fmt.Errorf("%w: state dim %d, input dim %d", ErrDimensionMismatch, nx, nu)
	}

	opt := DefaultOptions()
	if err := opt.normalize(nx); err != nil {
		return nil, err
	}
	cap := opt.ConstraintCap

	s := &Solver{
		nx: nx, nu: nu, n: n,
		dyn:    dyn,
		cost:   make([]ocp.Cost, n+1),
		constr: make([]ocp.Constraint, n+1),
		xtrj:   mat.NewDense(nx, n+1, nil),
		utrj:   mat.NewDense(nu, n, nil),
		xlb:    fill(mat.NewDense(nx, n+1, nil), math.Inf(-1)),
		xub:    fill(mat.NewDense(nx, n+1, nil), math.Inf(1)),
		ulb:    fill(mat.NewDense(nu, n, nil), math.Inf(-1)),
		uub:    fill(mat.NewDense(nu, n, nil), math.Inf(1)),
		dynA:   make([]*mat.Dense, n),
		dynB:   make([]*mat.Dense, n),
		defect: make([]*mat.VecDense, n),
		costQ:  make([]*mat.Dense, n+1),
		costR:  make([]*mat.Dense, n+1),
		costP:  make([]*mat.Dense, n+1),
		costq:  make([]*mat.VecDense, n+1),
		costr:  make([]*mat.VecDense, n+1),
		conC:   make([]*mat.Dense, n+1),
		conD:   make([]*mat.Dense, n+1),
		conH:   make([]*mat.VecDense, n+1),
		value:  make([]valueFn, n+1),
		bp:     make([]*bpResult, n),
		dx0:    mat.NewVecDense(nx, nil),
		dx0Lam: mat.NewVecDense(cap, nil),
		ctg:    newConstraintToGo(nx, nu, cap),
		ws:     make([]*workspace, n),
		opt:    opt,
		lamXLo: mat.NewDense(nx, n+1, nil),
		lamXHi: mat.NewDense(nx, n+1, nil),
		lamULo: mat.NewDense(nu, n, nil),
		lamUHi: mat.NewDense(nu, n, nil),
		fnext:  mat.NewVecDense(nx, nil),
	}

	for i := 0; i < n; i++ {
		s.dynA[i] = mat.NewDense(nx, nx, nil)
		s.dynB[i] = mat.NewDense(nx, nu, nil)
		s.defect[i] = mat.NewVecDense(nx, nil)
		s.bp[i] = &bpResult{
			L:   mat.NewDense(nu, nx, nil),
			l:   mat.NewVecDense(nu, nil),
			lam: mat.NewVecDense(cap, nil),
		}
		s.ws[i] = newWorkspace(nx, nu, cap)
	}
	for k := 0; k <= n; k++ {
		s.costQ[k] = mat.NewDense(nx, nx, nil)
		s.costR[k] = mat.NewDense(nu, nu, nil)
		s.costP[k] = mat.NewDense(nu, nx, nil)
		s.costq[k] = mat.NewVecDense(nx, nil)
		s.costr[k] = mat.NewVecDense(nu, nil)
		s.value[k] = valueFn{S: mat.NewDense(nx, nx, nil), s: mat.NewVecDense(nx, nil)}
	}

	s.fp = &forwardResult{
		xtrj: mat.NewDense(nx, n+1, nil),
		utrj: mat.NewDense(nu, n, nil),
	}

	// default cost so the solver works out of the box
	inter := ocp.NewInputCost(nu, 1)
	for k := 0; k < n; k++ {
		s.cost[k] = inter
	}
	s.cost[n] = ocp.NewStateCost(mat.NewVecDense(nx, nil), 1)

	return s, nil
}

func fill(a *mat.Dense, v float64) *mat.Dense {
	r, c := a.Dims()
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			a.Set(i, j, v)
		}
	}
	return a
}

// SetOptions replaces the solver options. Invalid decomposition selectors
// are rejected.
func (s *Solver) SetOptions(o Options) error {
	if err := o.normalize(s.nx); err != nil {
		return err
	}
	// the constraint capacity sizes the workspaces; reallocate them when it
	// changes
	if o.ConstraintCap != s.opt.ConstraintCap {
		for k, c := range s.constr {
			if c != nil && c.Dim() > o.ConstraintCap {
				return fmt.Errorf("%w: constraint at %d has %d rows, capacity %d",
					ErrConstraintCapacity, k, c.Dim(), o.ConstraintCap)
			}
		}
		s.ctg = newConstraintToGo(s.nx, s.nu, o.ConstraintCap)
		s.dx0Lam = mat.NewVecDense(o.ConstraintCap, nil)
		for i := 0; i < s.n; i++ {
			s.bp[i].lam = mat.NewVecDense(o.ConstraintCap, nil)
			s.ws[i] = newWorkspace(s.nx, s.nu, o.ConstraintCap)
		}
	}
	s.opt = o
	return nil
}

// Options returns the active options.
func (s *Solver) Options() Options { return s.opt }

// SetIntermediateCost installs a cost term at stage k ∈ [0, N-1].
func (s *Solver) SetIntermediateCost(k int, c ocp.Cost) error {
	if k < 0 || k >= s.n {
		return fmt.Errorf("ilqr: intermediate cost index %d outside [0, %d)", k, s.n)
	}
	if c == nil {
		return fmt.Errorf("ilqr: nil cost")
	}
	s.cost[k] = c
	return nil
}

// SetCost installs the same cost term at every intermediate stage.
func (s *Solver) SetCost(c ocp.Cost) error {
	for k := 0; k < s.n; k++ {
		if err := s.SetIntermediateCost(k, c); err != nil {
			return err
		}
	}
	return nil
}

// SetFinalCost installs the final cost. The input slot passed to the oracle
// is aliased to u_{N-1} and must not influence the value.
func (s *Solver) SetFinalCost(c ocp.Cost) error {
	if c == nil {
		return fmt.Errorf("ilqr: nil cost")
	}
	s.cost[s.n] = c
	return nil
}

// SetIntermediateConstraint installs an equality constraint at stage
// k ∈ [0, N-1].
func (s *Solver) SetIntermediateConstraint(k int, c ocp.Constraint) error {
	if k < 0 || k >= s.n {
		return fmt.Errorf("ilqr: intermediate constraint index %d outside [0, %d)", k, s.n)
	}
	return s.setConstraint(k, c)
}

// SetConstraint installs the same equality constraint at every intermediate
// stage.
func (s *Solver) SetConstraint(c ocp.Constraint) error {
	for k := 0; k < s.n; k++ {
		if err := s.setConstraint(k, c); err != nil {
			return err
		}
	}
	return nil
}

// SetFinalConstraint installs the final equality constraint; only its state
// Jacobian is used.
func (s *Solver) SetFinalConstraint(c ocp.Constraint) error {
	return s.setConstraint(s.n, c)
}

func (s *Solver) setConstraint(k int, c ocp.Constraint) error {
	if c == nil {
		return fmt.Errorf("ilqr: nil constraint")
	}
	m := c.Dim()
	if m < 1 {
		return fmt.Errorf("%w: constraint at %d has %d rows", ErrDimensionMismatch, k, m)
	}
	if m > s.opt.ConstraintCap {
		return fmt.Errorf("%w: constraint at %d has %d rows, capacity %d",
			ErrConstraintCapacity, k, m, s.opt.ConstraintCap)
	}
	s.constr[k] = c
	s.conC[k] = mat.NewDense(m, s.nx, nil)
	s.conD[k] = mat.NewDense(m, s.nu, nil)
	s.conH[k] = mat.NewVecDense(m, nil)
	return nil
}

// SetInitialState pins the initial state: the first trajectory column is set
// to x0 and the stage-0 state bounds collapse onto it, which the backward
// pass treats as a fixed initial state.
func (s *Solver) SetInitialState(x0 *mat.VecDense) error {
	if x0.Len() != s.nx {
		return fmt.Errorf("%w: x0 has %d entries, state dim is %d", ErrDimensionMismatch, x0.Len(), s.nx)
	}
	for i := 0; i < s.nx; i++ {
		v := x0.AtVec(i)
		s.xtrj.Set(i, 0, v)
		s.xlb.Set(i, 0, v)
		s.xub.Set(i, 0, v)
	}
	return nil
}

// SetStateBounds installs per-stage state bounds (nx×(N+1)). Rows with
// lb = ub become hard equality constraints; strict rows are handled by the
// augmented-Lagrangian loop when enabled.
func (s *Solver) SetStateBounds(lb, ub *mat.Dense) error {
	return copyBounds(s.xlb, s.xub, lb, ub, s.nx, s.n+1, "state")
}

// SetInputBounds installs per-stage input bounds (nu×N).
func (s *Solver) SetInputBounds(lb, ub *mat.Dense) error {
	return copyBounds(s.ulb, s.uub, lb, ub, s.nu, s.n, "input")
}

func copyBounds(dlb, dub, lb, ub *mat.Dense, r, c int, kind string) error {
	lr, lc := lb.Dims()
	ur, uc := ub.Dims()
	if lr != r || lc != c || ur != r || uc != c {
		return fmt.Errorf("%w: %s bounds must be %d×%d", ErrDimensionMismatch, kind, r, c)
	}
	dlb.Copy(lb)
	dub.Copy(ub)
	return nil
}

// SetStateTrajectory seeds the state trajectory (warm start). The first
// column is not treated as a fixed initial state unless SetInitialState is
// also called.
func (s *Solver) SetStateTrajectory(x *mat.Dense) error {
	r, c := x.Dims()
	if r != s.nx || c != s.n+1 {
		return fmt.Errorf("%w: state trajectory must be %d×%d", ErrDimensionMismatch, s.nx, s.n+1)
	}
	s.xtrj.Copy(x)
	return nil
}

// SetInputTrajectory seeds the input trajectory (warm start).
func (s *Solver) SetInputTrajectory(u *mat.Dense) error {
	r, c := u.Dims()
	if r != s.nu || c != s.n {
		return fmt.Errorf("%w: input trajectory must be %d×%d", ErrDimensionMismatch, s.nu, s.n)
	}
	s.utrj.Copy(u)
	return nil
}

// SetIterationCallback installs the per-attempt callback.
func (s *Solver) SetIterationCallback(cb Callback) { s.cb = cb }

// StateTrajectory returns the solver-owned state trajectory (nx×(N+1)).
// Callers must not mutate it.
func (s *Solver) StateTrajectory() *mat.Dense { return s.xtrj }

// InputTrajectory returns the solver-owned input trajectory (nu×N).
// Callers must not mutate it.
func (s *Solver) InputTrajectory() *mat.Dense { return s.utrj }

// Profiling returns the diagnostic counters accumulated so far.
func (s *Solver) Profiling() ProfilingInfo { return s.prof }

// Solve runs up to maxIter outer iterations (the configured MaxIter when
// maxIter ≤ 0) and reports whether the stopping criteria were met within the
// budget.
func (s *Solver) Solve(maxIter int) (bool, error) {
	if maxIter <= 0 {
		maxIter = s.opt.MaxIter
	}
	if err := s.checkInputs(); err != nil {
		return false, err
	}

	s.hxxReg = s.opt.HxxRegBase
	if s.opt.EnableAuglag && s.rho == 0 {
		s.rho = s.opt.RhoInitial
	}

	for it := 0; it < maxIter; it++ {
		s.iter = it
		s.prof.Iterations++

		s.linearizeQuadratize()
		if err := s.backwardPass(); err != nil {
			return false, err
		}
		s.reduceRegularization()

		stop, err := s.lineSearch(it)
		if err != nil {
			return false, err
		}
		if stop {
			return false, nil
		}

		if s.auglagUpdate() {
			continue
		}
		if s.shouldStop() {
			return true, nil
		}
	}
	return false, nil
}

func (s *Solver) checkInputs() error {
	for i := 0; i < s.nx; i++ {
		v := s.xtrj.At(i, 0)
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: initial state entry %d is %v", ErrNonFiniteInput, i, v)
		}
	}
	for _, b := range []*mat.Dense{s.xlb, s.xub, s.ulb, s.uub} {
		if hasNaN(b) {
			return fmt.Errorf("%w: NaN in bounds", ErrNonFiniteInput)
		}
	}
	return nil
}

// linearizeQuadratize refreshes the per-stage caches around the current
// trajectory: dynamics Jacobians and defects, constraint Jacobians and
// residuals, and the cost quadratization.
func (s *Solver) linearizeQuadratize() {
	for i := 0; i < s.n; i++ {
		xi := s.xtrj.ColView(i)
		ui := s.utrj.ColView(i)

		s.dyn.Linearize(xi, ui, s.dynA[i], s.dynB[i])
		s.dyn.Next(xi, ui, s.fnext)
		for j := 0; j < s.nx; j++ {
			s.defect[i].SetVec(j, s.fnext.AtVec(j)-s.xtrj.At(j, i+1))
		}

		if c := s.constr[i]; c != nil {
			c.Linearize(xi, ui, s.conC[i], s.conD[i])
			c.Evaluate(xi, ui, s.conH[i])
		}

		s.cost[i].Gradient(xi, ui, s.costq[i], s.costr[i])
		s.cost[i].Hessian(xi, ui, s.costQ[i], s.costR[i], s.costP[i])
		if s.opt.EnableAuglag {
			s.addAuglagTerms(i)
		}
	}

	// final stage: state-only, input slot aliased to u_{N-1}
	xn := s.xtrj.ColView(s.n)
	un := s.utrj.ColView(s.n - 1)
	s.cost[s.n].Gradient(xn, un, s.costq[s.n], s.costr[s.n])
	s.cost[s.n].Hessian(xn, un, s.costQ[s.n], s.costR[s.n], s.costP[s.n])
	if c := s.constr[s.n]; c != nil {
		c.Linearize(xn, un, s.conC[s.n], s.conD[s.n])
		c.Evaluate(xn, un, s.conH[s.n])
	}
	if s.opt.EnableAuglag {
		s.addAuglagTerms(s.n)
	}
}

func (s *Solver) fixedInitialState() bool {
	for i := 0; i < s.nx; i++ {
		if s.xlb.At(i, 0) != s.xub.At(i, 0) {
			return false
		}
	}
	return true
}

func (s *Solver) logf(format string, args ...any) {
	if s.opt.Verbose {
		fmt.Fprintf(s.opt.LogWriter, format+"\n", args...)
	}
}

func (s *Solver) tracef(format string, args ...any) {
	if s.opt.Log {
		fmt.Fprintf(s.opt.LogWriter, format+"\n", args...)
	}
}
