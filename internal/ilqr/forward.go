package ilqr

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

const (
	stepReductionFactor = 0.5
	alphaMin            = 1e-3
	armijoEta           = 1e-4
	feasibilityTol      = 1e-6
	meritSlopeTol       = 1e-9
	stepLengthTol       = 1e-9
	meritSafetyFactor   = 2.0
)

// forwardPass rolls the closed-loop linearized dynamics with step size alpha
// from the current trajectory and scores the candidate. The alpha multiplying
// the defect closes the multiple-shooting gaps in proportion to the step.
func (s *Solver) forwardPass(alpha float64) {
	fp := s.fp
	fp.accepted = false
	fp.alpha = alpha
	fp.stepLength = 0

	for i := 0; i < s.nx; i++ {
		fp.xtrj.Set(i, 0, s.xtrj.At(i, 0)+alpha*s.dx0.AtVec(i))
	}

	for i := 0; i < s.n; i++ {
		s.forwardPassIter(i, alpha)
	}

	fp.cost = s.computeCost(fp.xtrj, fp.utrj)
	fp.defectNorm = s.computeDefect(fp.xtrj, fp.utrj)
	fp.constrViol = s.computeConstr(fp.xtrj, fp.utrj)
	fp.boundViol = s.computeBoundViolation(fp.xtrj, fp.utrj)
	s.prof.ForwardPasses++
}

// forwardPassIter updates the control at stage i and the state at i+1.
func (s *Solver) forwardPassIter(i int, alpha float64) {
	fp := s.fp
	ws := s.ws[i]
	res := s.bp[i]

	// dx = x̂_i − x_i
	for j := 0; j < s.nx; j++ {
		ws.dx.SetVec(j, fp.xtrj.At(j, i)-s.xtrj.At(j, i))
	}

	// du = α·l + L·dx
	ws.du.MulVec(res.L, ws.dx)
	for j := 0; j < s.nu; j++ {
		lj := alpha * res.l.AtVec(j)
		ws.du.SetVec(j, ws.du.AtVec(j)+lj)
		fp.utrj.Set(j, i, s.utrj.At(j, i)+ws.du.AtVec(j))
		fp.stepLength += math.Abs(lj)
	}

	// x̂_{i+1} = x_{i+1} + A·dx + B·du + α·d
	s.fnext.MulVec(s.dynA[i], ws.dx)
	ws.v2.MulVec(s.dynB[i], ws.du)
	for j := 0; j < s.nx; j++ {
		fp.xtrj.Set(j, i+1,
			s.xtrj.At(j, i+1)+s.fnext.AtVec(j)+ws.v2.AtVec(j)+alpha*s.defect[i].AtVec(j))
	}
}

func (s *Solver) computeCost(x, u *mat.Dense) float64 {
	total := 0.0
	for i := 0; i < s.n; i++ {
		total += s.cost[i].Evaluate(x.ColView(i), u.ColView(i))
		if s.opt.EnableAuglag {
			total += s.auglagValue(i, x, u)
		}
	}
	total += s.cost[s.n].Evaluate(x.ColView(s.n), u.ColView(s.n-1))
	if s.opt.EnableAuglag {
		total += s.auglagValue(s.n, x, u)
	}
	return total / float64(s.n)
}

func (s *Solver) computeDefect(x, u *mat.Dense) float64 {
	total := 0.0
	for i := 0; i < s.n; i++ {
		s.dyn.Next(x.ColView(i), u.ColView(i), s.fnext)
		for j := 0; j < s.nx; j++ {
			total += math.Abs(s.fnext.AtVec(j) - x.At(j, i+1))
		}
	}
	return total / float64(s.n)
}

func (s *Solver) computeConstr(x, u *mat.Dense) float64 {
	total := 0.0
	for i := 0; i <= s.n; i++ {
		c := s.constr[i]
		if c == nil {
			continue
		}
		ui := i
		if i == s.n {
			ui = s.n - 1
		}
		c.Evaluate(x.ColView(i), u.ColView(ui), s.conH[i])
		total += l1NormVec(s.conH[i])
	}
	return total / float64(s.n)
}

func (s *Solver) computeBoundViolation(x, u *mat.Dense) float64 {
	total := 0.0
	for k := 0; k <= s.n; k++ {
		for i := 0; i < s.nx; i++ {
			lb, ub := s.xlb.At(i, k), s.xub.At(i, k)
			if lb == ub {
				continue
			}
			v := x.At(i, k)
			if v < lb {
				total += lb - v
			}
			if v > ub {
				total += v - ub
			}
		}
	}
	for k := 0; k < s.n; k++ {
		for j := 0; j < s.nu; j++ {
			lb, ub := s.ulb.At(j, k), s.uub.At(j, k)
			if lb == ub {
				continue
			}
			v := u.At(j, k)
			if v < lb {
				total += lb - v
			}
			if v > ub {
				total += v - ub
			}
		}
	}
	return total / float64(s.n)
}

// computeMeritWeights estimates the largest dynamics and constraint
// multipliers at δx = 0 (it runs before the forward pass) and scales them by
// a fixed safety factor.
func (s *Solver) computeMeritWeights() (muF, muC float64) {
	lamXMax := 0.0
	lamGMax := 0.0
	for i := 0; i < s.n; i++ {
		if v := infNormVec(s.value[i].s); v > lamXMax {
			lamXMax = v
		}
		res := s.bp[i]
		for r := 0; r < res.ncFeas; r++ {
			if v := math.Abs(res.lam.AtVec(r)); v > lamGMax {
				lamGMax = v
			}
		}
	}
	return meritSafetyFactor * lamXMax, meritSafetyFactor * lamGMax
}

func (s *Solver) meritValue(muF, muC, muB, cost, defect, constr, bound float64) float64 {
	return cost + muF*defect + muC*constr + muB*bound
}

// meritSlope approximates the directional derivative of the merit function
// along the Newton step (Nocedal & Wright, Theorem 18.2).
func (s *Solver) meritSlope(muF, muC, defect, constr float64) float64 {
	der := 0.0
	for i := 0; i < s.n; i++ {
		der += mat.Dot(s.bp[i].l, s.ws[i].hu)
	}
	return der - muF*defect - muC*constr
}

// lineSearch backtracks on the l1 merit function with the Armijo condition,
// reporting every attempt through the iteration callback. On failure to
// satisfy Armijo before alphaMin the last step is accepted anyway. The
// returned flag is true when the callback requested termination.
func (s *Solver) lineSearch(iter int) (bool, error) {
	fp := s.fp
	muF, muC := s.computeMeritWeights()
	muB := s.muB
	if !s.opt.EnableAuglag && s.hasStrictBounds() {
		muB = muF
	}
	fp.muF, fp.muC, fp.muB = muF, muC, muB

	// merit at α = 0, scored on the current trajectory
	cost0 := s.computeCost(s.xtrj, s.utrj)
	defect0 := s.computeDefect(s.xtrj, s.utrj)
	constr0 := s.computeConstr(s.xtrj, s.utrj)
	bound0 := s.computeBoundViolation(s.xtrj, s.utrj)
	merit0 := s.meritValue(muF, muC, muB, cost0, defect0, constr0, bound0)

	if iter == 0 {
		fp.xtrj.Copy(s.xtrj)
		fp.utrj.Copy(s.utrj)
		fp.alpha = 0
		fp.stepLength = 0
		fp.cost, fp.defectNorm, fp.constrViol, fp.boundViol = cost0, defect0, constr0, bound0
		fp.merit = merit0
		fp.accepted = true
		if s.reportStop() {
			return true, nil
		}
	}

	slope := s.meritSlope(muF, muC, defect0, constr0)
	fp.meritDer = slope

	alpha := 1.0
	stop := false
	for alpha >= alphaMin {
		s.forwardPass(alpha)
		fp.merit = s.meritValue(muF, muC, muB, fp.cost, fp.defectNorm, fp.constrViol, fp.boundViol)
		fp.meritDer = slope
		fp.accepted = fp.merit <= merit0+armijoEta*alpha*slope
		if s.reportStop() {
			stop = true
			break
		}
		if fp.accepted {
			break
		}
		alpha *= stepReductionFactor
	}

	if !stop && !fp.accepted {
		// soft accept: keep the smallest step tried
		fp.accepted = true
		s.prof.SoftAccepts++
		stop = s.reportStop()
	}

	s.xtrj.Copy(fp.xtrj)
	s.utrj.Copy(fp.utrj)
	return stop, nil
}

func (s *Solver) reportStop() bool {
	if s.cb == nil {
		return false
	}
	fp := s.fp
	rep := Report{
		Iter:                s.iter,
		Alpha:               fp.alpha,
		StepLength:          fp.stepLength,
		Cost:                fp.cost,
		DefectNorm:          fp.defectNorm,
		ConstraintViolation: fp.constrViol,
		BoundViolation:      fp.boundViol,
		Merit:               fp.merit,
		MeritDer:            fp.meritDer,
		Accepted:            fp.accepted,
		X:                   fp.xtrj,
		U:                   fp.utrj,
	}
	return !s.cb(rep)
}

// shouldStop applies the feasibility-then-stationarity stopping test.
func (s *Solver) shouldStop() bool {
	fp := s.fp
	if fp.constrViol > feasibilityTol || fp.defectNorm > feasibilityTol {
		return false
	}
	m := math.Abs(fp.merit)
	if m == 0 {
		return true
	}
	if fp.meritDer/m > -meritSlopeTol {
		return true
	}
	un := mat.Norm(s.utrj, 2)
	if un == 0 {
		return fp.stepLength < 1e-12
	}
	return fp.stepLength/un < stepLengthTol
}

func (s *Solver) hasStrictBounds() bool {
	for k := 0; k <= s.n; k++ {
		for i := 0; i < s.nx; i++ {
			lb, ub := s.xlb.At(i, k), s.xub.At(i, k)
			if lb != ub && (!math.IsInf(lb, -1) || !math.IsInf(ub, 1)) {
				return true
			}
		}
	}
	for k := 0; k < s.n; k++ {
		for j := 0; j < s.nu; j++ {
			lb, ub := s.ulb.At(j, k), s.uub.At(j, k)
			if lb != ub && (!math.IsInf(lb, -1) || !math.IsInf(ub, 1)) {
				return true
			}
		}
	}
	return false
}
