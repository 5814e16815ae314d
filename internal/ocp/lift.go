package ocp

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

var sqrtEps = math.Sqrt(math.Nextafter(1, 2) - 1)
var cubeEps = math.Pow(math.Nextafter(1, 2)-1, 1.0/3)

// FuncDynamics adapts a plain transition function to the [Dynamics]
// interface, estimating Jacobians by finite differences. Use Central for
// second-order accuracy at twice the evaluation count.
type FuncDynamics struct {
	NX, NU  int
	F       func(x, u, next []float64)
	Central bool
}

func (f *FuncDynamics) StateDim() int { return f.NX }
func (f *FuncDynamics) InputDim() int { return f.NU }

func (f *FuncDynamics) Next(x, u mat.Vector, next *mat.VecDense) {
	out := make([]float64, f.NX)
	f.F(vecSlice(x), vecSlice(u), out)
	for i, v := range out {
		next.SetVec(i, v)
	}
}

func (f *FuncDynamics) Linearize(x, u mat.Vector, a, b *mat.Dense) {
	xs, us := vecSlice(x), vecSlice(u)
	diffJac(f.NX, xs, f.Central, func(xp, out []float64) { f.F(xp, us, out) }, a)
	diffJac(f.NX, us, f.Central, func(up, out []float64) { f.F(xs, up, out) }, b)
}

// FuncConstraint adapts a plain residual function to the [Constraint]
// interface with finite-difference Jacobians.
type FuncConstraint struct {
	NX, NU, M int
	H         func(x, u, h []float64)
	Central   bool
}

func (f *FuncConstraint) Dim() int { return f.M }

func (f *FuncConstraint) Evaluate(x, u mat.Vector, h *mat.VecDense) {
	out := make([]float64, f.M)
	f.H(vecSlice(x), vecSlice(u), out)
	for i, v := range out {
		h.SetVec(i, v)
	}
}

func (f *FuncConstraint) Linearize(x, u mat.Vector, c, d *mat.Dense) {
	xs, us := vecSlice(x), vecSlice(u)
	diffJac(f.M, xs, f.Central, func(xp, out []float64) { f.H(xp, us, out) }, c)
	diffJac(f.M, us, f.Central, func(up, out []float64) { f.H(xs, up, out) }, d)
}

// LiftDynamics wraps a transition function in a finite-difference oracle.
func LiftDynamics(nx, nu int, f func(x, u, next []float64)) *FuncDynamics {
	return &FuncDynamics{NX: nx, NU: nu, F: f, Central: true}
}

// LiftConstraint wraps a residual function in a finite-difference oracle.
func LiftConstraint(nx, nu, m int, h func(x, u, out []float64)) *FuncConstraint {
	return &FuncConstraint{NX: nx, NU: nu, M: m, H: h, Central: true}
}

// diffJac estimates the m×len(at) Jacobian of f around at, one column per
// perturbed entry. Step sizes follow the scipy policy: eps^½·max(1,|x|) for
// forward differences, eps^⅓·max(1,|x|) for central.
func diffJac(m int, at []float64, central bool, f func(x, out []float64), dst *mat.Dense) {
	n := len(at)
	pert := make([]float64, n)
	copy(pert, at)
	lo := make([]float64, m)
	hi := make([]float64, m)

	if !central {
		f(at, lo)
	}

	for j := 0; j < n; j++ {
		h := sqrtEps * math.Max(1, math.Abs(at[j]))
		if central {
			h = cubeEps * math.Max(1, math.Abs(at[j]))
			pert[j] = at[j] - h
			f(pert, lo)
		}
		pert[j] = at[j] + h
		f(pert, hi)
		pert[j] = at[j]

		den := h
		if central {
			den = 2 * h
		}
		for i := 0; i < m; i++ {
			dst.Set(i, j, (hi[i]-lo[i])/den)
		}
	}
}

func vecSlice(v mat.Vector) []float64 {
	if vd, ok := v.(*mat.VecDense); ok && vd.RawVector().Inc == 1 {
		return vd.RawVector().Data
	}
	s := make([]float64, v.Len())
	for i := range s {
		s[i] = v.AtVec(i)
	}
	return s
}
