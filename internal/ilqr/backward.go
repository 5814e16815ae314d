package ilqr

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/YunxiTang/Horizon-opt/internal/linalg"
)

const dependentRowTol = 1e-9

// backwardPass runs the Riccati/KKT recursion, restarting with increased
// regularization whenever a stage KKT system turns out indefinite.
func (s *Solver) backwardPass() error {
	restarts := 0
	for {
		err := s.backwardPassOnce()
		if err == nil {
			return nil
		}
		if !errors.Is(err, ErrHessianIndefinite) {
			return err
		}
		restarts++
		s.prof.BackwardRestarts++
		if restarts > s.opt.MaxRegRetries {
			return fmt.Errorf("%w: %d restarts exhausted (hxx_reg = %g)",
				ErrHessianIndefinite, restarts-1, s.hxxReg)
		}
		s.increaseRegularization()
		s.logf("increasing reg, hxx_reg = %g", s.hxxReg)
	}
}

func (s *Solver) backwardPassOnce() error {
	// initialize the recursion from the final cost..
	vn := s.value[s.n]
	vn.S.Copy(s.costQ[s.n])
	addDiag(vn.S, s.hxxReg)
	copyVec(vn.s, s.costq[s.n])

	// ..and the final constraint plus final bound equalities
	s.ctg.reset()
	if s.constr[s.n] != nil {
		if err := s.ctg.appendRows(s.conC[s.n], nil, s.conH[s.n]); err != nil {
			return err
		}
	}
	s.tracef("n_constr[%d] = %d (before bounds)", s.n, s.ctg.dim())
	if err := s.addBoundRows(s.n); err != nil {
		return err
	}
	s.tracef("n_constr[%d] = %d", s.n, s.ctg.dim())

	for i := s.n - 1; i >= 0; i-- {
		if err := s.backwardPassIter(i); err != nil {
			return err
		}
	}

	if err := s.optimizeInitialState(); err != nil {
		return err
	}

	// all constraints should have been absorbed by now; anything left is
	// satisfiable only by an initial state we do not control
	if s.ctg.dim() > 0 {
		c, _, h := s.ctg.views()
		var residual mat.VecDense
		residual.MulVec(c, s.dx0)
		residual.AddVec(&residual, h)
		if l1NormVec(&residual) > 1e-8 {
			s.prof.InfeasibleWarnings++
			s.logf("warn at k = 0: %d constraints not satisfied, residual inf-norm is %g",
				s.ctg.dim(), infNormVec(&residual))
		}
	}
	return nil
}

func (s *Solver) backwardPassIter(i int) error {
	nc, err := s.handleConstraints(i)
	if err != nil {
		return err
	}

	vnext := s.value[i+1]
	if !linalg.IsFinite(vnext.S) || !linalg.IsFiniteVec(vnext.s) {
		return ErrHessianIndefinite
	}

	a, b, d := s.dynA[i], s.dynB[i], s.defect[i]
	ws := s.ws[i]

	// components of the next node's value function expressed in (x_i, u_i)
	ws.sPlusSd.MulVec(vnext.S, d)
	ws.sPlusSd.AddVec(ws.sPlusSd, vnext.s)
	ws.sa.Mul(vnext.S, a)

	ws.v2.MulVec(a.T(), ws.sPlusSd)
	ws.hx.AddVec(s.costq[i], ws.v2)
	ws.hxx.Mul(a.T(), ws.sa)
	ws.hxx.Add(ws.hxx, s.costQ[i])
	addDiag(ws.hxx, s.hxxReg)

	ws.v1.MulVec(b.T(), ws.sPlusSd)
	ws.hu.AddVec(s.costr[i], ws.v1)
	ws.sb.Mul(vnext.S, b)
	ws.huu.Mul(b.T(), ws.sb)
	ws.huu.Add(ws.huu, s.costR[i])
	addDiag(ws.huu, s.opt.HuuReg)

	ws.hux.Mul(b.T(), ws.sa)
	ws.hux.Add(ws.hux, s.costP[i])

	// assemble the stage KKT system
	//   [ Huu  Df' ] [u(x); λ] = [ -Hux  -Cf | -hu ]
	//   [ Df  -εI  ]            [   0     0 | -hf ]
	dim := s.nu + nc
	kkt := ws.kkt.Slice(0, dim, 0, dim).(*mat.Dense)
	rhs := ws.rhs.Slice(0, dim, 0, s.nx+1).(*mat.Dense)
	kkt.Zero()
	for r := 0; r < s.nu; r++ {
		for c := 0; c < s.nu; c++ {
			kkt.Set(r, c, ws.huu.At(r, c))
		}
		for c := 0; c < s.nx; c++ {
			rhs.Set(r, c, -ws.hux.At(r, c))
		}
		rhs.Set(r, s.nx, -ws.hu.AtVec(r))
	}
	for r := 0; r < nc; r++ {
		for c := 0; c < s.nu; c++ {
			v := ws.df.At(r, c)
			kkt.Set(s.nu+r, c, v)
			kkt.Set(c, s.nu+r, v)
		}
		kkt.Set(s.nu+r, s.nu+r, -s.opt.KKTReg)
		for c := 0; c < s.nx; c++ {
			rhs.Set(s.nu+r, c, -ws.cf.At(r, c))
		}
		rhs.Set(s.nu+r, s.nx, -ws.hf.AtVec(r))
	}

	if !linalg.IsFinite(kkt) || !linalg.IsFinite(rhs) {
		return ErrHessianIndefinite
	}

	sol := ws.sol.Slice(0, dim, 0, s.nx+1).(*mat.Dense)
	if err := linalg.SolveSaddle(kkt, rhs, s.opt.KKTDecomp, sol); err != nil {
		return ErrHessianIndefinite
	}
	if !linalg.IsFinite(sol) {
		return ErrHessianIndefinite
	}
	s.tracef("feas_constr[%d] = %d, infeas_constr[%d] = %d", i, nc, i, s.ctg.dim())

	res := s.bp[i]
	for r := 0; r < s.nu; r++ {
		for c := 0; c < s.nx; c++ {
			res.L.Set(r, c, sol.At(r, c))
		}
		res.l.SetVec(r, sol.At(r, s.nx))
	}
	for r := 0; r < nc; r++ {
		res.lam.SetVec(r, sol.At(s.nu+r, s.nx))
	}
	res.ncFeas = nc

	// value function update
	//   S = Hxx + L'(Huu·L + Hux) + Hux'·L,   symmetrized
	//   s = hx + Hux'·l + L'(hu + Huu·l)
	ws.t1.Mul(ws.huu, res.L)
	ws.t1.Add(ws.t1, ws.hux)
	v := s.value[i]
	v.S.Mul(res.L.T(), ws.t1)
	ws.t2.Mul(ws.hux.T(), res.L)
	v.S.Add(v.S, ws.t2)
	v.S.Add(v.S, ws.hxx)
	symmetrize(v.S)

	ws.v1.MulVec(ws.huu, res.l)
	ws.v1.AddVec(ws.v1, ws.hu)
	v.s.MulVec(res.L.T(), ws.v1)
	ws.v2.MulVec(ws.hux.T(), res.l)
	v.s.AddVec(v.s, ws.v2)
	v.s.AddVec(v.s, ws.hx)

	if !linalg.IsFinite(v.S) || !linalg.IsFiniteVec(v.s) {
		return ErrHessianIndefinite
	}
	return nil
}

// handleConstraints propagates the constraint-to-go through stage i, stacks
// the stage's own rows and bound equalities, and splits the total into a
// feasible block (returned through the stage workspace) and an infeasible
// remainder pushed back into the accumulator for stage i-1.
func (s *Solver) handleConstraints(i int) (int, error) {
	ws := s.ws[i]

	s.ctg.propagate(s.dynA[i], s.dynB[i], s.defect[i])
	if s.constr[i] != nil {
		if err := s.ctg.appendRows(s.conC[i], s.conD[i], s.conH[i]); err != nil {
			return 0, err
		}
	}
	if err := s.addBoundRows(i); err != nil {
		return 0, err
	}

	nc := s.ctg.dim()
	s.bp[i].nc = nc
	s.tracef("n_constr[%d] = %d", i, nc)
	if nc == 0 {
		return 0, nil
	}

	c, d, h := s.ctg.views()
	if !linalg.IsFinite(c) || !linalg.IsFinite(d) || !linalg.IsFiniteVec(h) {
		return 0, ErrHessianIndefinite
	}

	q, rank := linalg.Decompose(d, s.opt.SVDThreshold, s.opt.ConstrDecomp)

	if rank > 0 {
		q1 := q.Slice(0, nc, 0, rank)
		cf := ws.cf.Slice(0, rank, 0, s.nx).(*mat.Dense)
		df := ws.df.Slice(0, rank, 0, s.nu).(*mat.Dense)
		hf := ws.hf.SliceVec(0, rank).(*mat.VecDense)
		cf.Mul(q1.T(), c)
		df.Mul(q1.T(), d)
		hf.MulVec(q1.T(), h)
	}

	nInf := nc - rank
	if nInf > 0 {
		q2 := q.Slice(0, nc, rank, nc)
		cinf := ws.cinf.Slice(0, nInf, 0, s.nx).(*mat.Dense)
		hinf := ws.hinf.SliceVec(0, nInf).(*mat.VecDense)
		cinf.Mul(q2.T(), c)
		hinf.MulVec(q2.T(), h)

		s.ctg.reset()
		for j := 0; j < nInf; j++ {
			// a row of the form 0·x = 0 is linearly dependent on the rows
			// absorbed above and can be dropped
			if math.Abs(hinf.AtVec(j)) < dependentRowTol &&
				infNormVec(cinf.RowView(j)) < dependentRowTol {
				s.prof.DroppedDependentRows++
				s.logf("warn at k = %d: removing linearly dependent constraint", i)
				continue
			}
			if err := s.ctg.appendStateRow(cinf.RowView(j), hinf.AtVec(j)); err != nil {
				return 0, err
			}
		}
	} else {
		s.ctg.reset()
	}

	return rank, nil
}

// addBoundRows lifts bound rows with lb = ub at stage k into hard equality
// constraints with residual trajectory − bound.
func (s *Solver) addBoundRows(k int) error {
	skipState := k == 0 && s.fixedInitialState()
	if !skipState {
		for i := 0; i < s.nx; i++ {
			lb := s.xlb.At(i, k)
			if lb == s.xub.At(i, k) {
				if err := s.ctg.appendUnitRow(i, -1, s.xtrj.At(i, k)-lb); err != nil {
					return err
				}
				s.tracef("%d: detected state equality constraint (index %d, value = %g)", k, i, lb)
			}
		}
	}
	if k == s.n {
		return nil
	}
	for j := 0; j < s.nu; j++ {
		lb := s.ulb.At(j, k)
		if lb == s.uub.At(j, k) {
			if err := s.ctg.appendUnitRow(-1, j, s.utrj.At(j, k)-lb); err != nil {
				return err
			}
			s.tracef("%d: detected input equality constraint (index %d, value = %g)", k, j, lb)
		}
	}
	return nil
}

// optimizeInitialState computes δx_0. A fixed initial state (collapsed
// stage-0 bounds) short-circuits; otherwise a small KKT system couples the
// stage-0 value function with the remaining constraint-to-go rows, and rows
// still violated by the solution stay in the accumulator to be surfaced as
// an infeasibility warning.
func (s *Solver) optimizeInitialState() error {
	if s.fixedInitialState() {
		for i := 0; i < s.nx; i++ {
			s.dx0.SetVec(i, s.xlb.At(i, 0)-s.xtrj.At(i, 0))
		}
		return nil
	}

	nc := s.ctg.dim()
	dim := s.nx + nc
	kkt := mat.NewDense(dim, dim, nil)
	rhs := mat.NewDense(dim, 1, nil)

	v := s.value[0]
	for r := 0; r < s.nx; r++ {
		for c := 0; c < s.nx; c++ {
			kkt.Set(r, c, v.S.At(r, c))
		}
		rhs.Set(r, 0, -v.s.AtVec(r))
	}
	if nc > 0 {
		c, _, h := s.ctg.views()
		for r := 0; r < nc; r++ {
			for j := 0; j < s.nx; j++ {
				kkt.Set(s.nx+r, j, c.At(r, j))
				kkt.Set(j, s.nx+r, c.At(r, j))
			}
			rhs.Set(s.nx+r, 0, -h.AtVec(r))
		}
	}

	if !linalg.IsFinite(kkt) || !linalg.IsFinite(rhs) {
		return ErrHessianIndefinite
	}
	var sol mat.Dense
	if err := linalg.SolveSaddle(kkt, rhs, s.opt.KKTDecomp, &sol); err != nil {
		return ErrHessianIndefinite
	}
	if !linalg.IsFinite(&sol) {
		return ErrHessianIndefinite
	}

	for i := 0; i < s.nx; i++ {
		s.dx0.SetVec(i, sol.At(i, 0))
	}
	for r := 0; r < nc; r++ {
		s.dx0Lam.SetVec(r, sol.At(s.nx+r, 0))
	}

	if nc == 0 {
		return nil
	}

	// keep only the rows the computed δx_0 cannot satisfy
	c, _, h := s.ctg.views()
	cKeep := mat.DenseCopyOf(c)
	hKeep := mat.VecDenseCopyOf(h)
	s.ctg.reset()
	for r := 0; r < nc; r++ {
		viol := hKeep.AtVec(r)
		for j := 0; j < s.nx; j++ {
			viol += cKeep.At(r, j) * s.dx0.AtVec(j)
		}
		if math.Abs(viol) < s.opt.ConstraintViolationThreshold {
			continue
		}
		if err := s.ctg.appendStateRow(cKeep.RowView(r), hKeep.AtVec(r)); err != nil {
			return err
		}
	}
	return nil
}

func (s *Solver) increaseRegularization() {
	if s.hxxReg < 1e-6 {
		s.hxxReg = 1.0
	}
	s.hxxReg *= s.opt.HxxRegGrowth
	if s.hxxReg < s.opt.HxxRegBase {
		s.hxxReg = s.opt.HxxRegBase
	}
}

func (s *Solver) reduceRegularization() {
	s.hxxReg /= math.Cbrt(s.opt.HxxRegGrowth)
	if s.hxxReg < s.opt.HxxRegBase {
		s.hxxReg = s.opt.HxxRegBase
	}
}
