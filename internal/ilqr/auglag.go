package ilqr

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// The augmented-Lagrangian loop lifts strict inequality bound rows into the
// cost using the scaled penalty
//
//	φ(g; λ, ρ) = ((λ + ρ·g)₊² − λ²) / (2ρ)
//
// per one-sided constraint g ≤ 0 (g = lb − y for a lower bound, y − ub for
// an upper bound). Its gradient is (λ + ρ·g)₊·dg/dy and its curvature ρ on
// active rows, which is what addAuglagTerms folds into the quadratized cost.

func auglagPhi(g, lam, rho float64) float64 {
	a := lam + rho*g
	if a > 0 {
		return (a*a - lam*lam) / (2 * rho)
	}
	return -lam * lam / (2 * rho)
}

// auglagValue sums the penalty terms at stage k on the given trajectories.
func (s *Solver) auglagValue(k int, x, u *mat.Dense) float64 {
	if s.rho == 0 {
		return 0
	}
	total := 0.0
	for i := 0; i < s.nx; i++ {
		lb, ub := s.xlb.At(i, k), s.xub.At(i, k)
		if lb == ub {
			continue
		}
		v := x.At(i, k)
		if !math.IsInf(lb, -1) {
			total += auglagPhi(lb-v, s.lamXLo.At(i, k), s.rho)
		}
		if !math.IsInf(ub, 1) {
			total += auglagPhi(v-ub, s.lamXHi.At(i, k), s.rho)
		}
	}
	if k == s.n {
		return total
	}
	for j := 0; j < s.nu; j++ {
		lb, ub := s.ulb.At(j, k), s.uub.At(j, k)
		if lb == ub {
			continue
		}
		v := u.At(j, k)
		if !math.IsInf(lb, -1) {
			total += auglagPhi(lb-v, s.lamULo.At(j, k), s.rho)
		}
		if !math.IsInf(ub, 1) {
			total += auglagPhi(v-ub, s.lamUHi.At(j, k), s.rho)
		}
	}
	return total
}

// addAuglagTerms folds the penalty gradient and curvature into the cached
// cost quadratization at stage k. Called during linearize-quadratize, after
// the cost oracle has filled the caches.
func (s *Solver) addAuglagTerms(k int) {
	if s.rho == 0 {
		s.rho = s.opt.RhoInitial
	}
	for i := 0; i < s.nx; i++ {
		lb, ub := s.xlb.At(i, k), s.xub.At(i, k)
		if lb == ub {
			continue
		}
		v := s.xtrj.At(i, k)
		if !math.IsInf(lb, -1) {
			if a := s.lamXLo.At(i, k) + s.rho*(lb-v); a > 0 {
				s.costq[k].SetVec(i, s.costq[k].AtVec(i)-a)
				s.costQ[k].Set(i, i, s.costQ[k].At(i, i)+s.rho)
			}
		}
		if !math.IsInf(ub, 1) {
			if a := s.lamXHi.At(i, k) + s.rho*(v-ub); a > 0 {
				s.costq[k].SetVec(i, s.costq[k].AtVec(i)+a)
				s.costQ[k].Set(i, i, s.costQ[k].At(i, i)+s.rho)
			}
		}
	}
	if k == s.n {
		return
	}
	for j := 0; j < s.nu; j++ {
		lb, ub := s.ulb.At(j, k), s.uub.At(j, k)
		if lb == ub {
			continue
		}
		v := s.utrj.At(j, k)
		if !math.IsInf(lb, -1) {
			if a := s.lamULo.At(j, k) + s.rho*(lb-v); a > 0 {
				s.costr[k].SetVec(j, s.costr[k].AtVec(j)-a)
				s.costR[k].Set(j, j, s.costR[k].At(j, j)+s.rho)
			}
		}
		if !math.IsInf(ub, 1) {
			if a := s.lamUHi.At(j, k) + s.rho*(v-ub); a > 0 {
				s.costr[k].SetVec(j, s.costr[k].AtVec(j)+a)
				s.costR[k].Set(j, j, s.costR[k].At(j, j)+s.rho)
			}
		}
	}
}

// auglagUpdate refreshes the multiplier estimates and grows the penalty once
// the inner loop has converged on the current subproblem while bound
// violation remains. Reports whether an update was performed; the primal
// trajectory is kept either way.
func (s *Solver) auglagUpdate() bool {
	if !s.opt.EnableAuglag {
		return false
	}
	fp := s.fp
	// inner loop converged when the merit derivative or the step length is
	// negligible; anything else is still too coarse an estimate
	stationary := math.Abs(fp.meritDer) <= s.opt.MeritDerThreshold*(1+math.Abs(fp.merit))
	if un := mat.Norm(s.utrj, 2); un > 0 && fp.stepLength/un < stepLengthTol {
		stationary = true
	}
	if !stationary {
		return false
	}
	// bounds already satisfied, no need to push further
	if fp.boundViol < s.opt.ConstraintViolationThreshold {
		return false
	}

	for k := 0; k <= s.n; k++ {
		for i := 0; i < s.nx; i++ {
			lb, ub := s.xlb.At(i, k), s.xub.At(i, k)
			if lb == ub {
				continue
			}
			v := s.xtrj.At(i, k)
			if !math.IsInf(lb, -1) {
				s.lamXLo.Set(i, k, math.Max(0, s.lamXLo.At(i, k)+s.rho*(lb-v)))
			}
			if !math.IsInf(ub, 1) {
				s.lamXHi.Set(i, k, math.Max(0, s.lamXHi.At(i, k)+s.rho*(v-ub)))
			}
		}
		if k == s.n {
			break
		}
		for j := 0; j < s.nu; j++ {
			lb, ub := s.ulb.At(j, k), s.uub.At(j, k)
			if lb == ub {
				continue
			}
			v := s.utrj.At(j, k)
			if !math.IsInf(lb, -1) {
				s.lamULo.Set(j, k, math.Max(0, s.lamULo.At(j, k)+s.rho*(lb-v)))
			}
			if !math.IsInf(ub, 1) {
				s.lamUHi.Set(j, k, math.Max(0, s.lamUHi.At(j, k)+s.rho*(v-ub)))
			}
		}
	}

	s.rho *= s.opt.RhoGrowth
	s.muB = matL1(s.lamXLo) + matL1(s.lamXHi) + matL1(s.lamULo) + matL1(s.lamUHi)
	s.prof.AuglagUpdates++
	s.logf("performing auglag update, rho = %g", s.rho)
	return true
}

func matL1(a *mat.Dense) float64 {
	r, c := a.Dims()
	total := 0.0
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			total += math.Abs(a.At(i, j))
		}
	}
	return total
}
