package ocp

import "gonum.org/v1/gonum/mat"

// LinearDynamics is the exact oracle for x_{k+1} = A·x + B·u.
type LinearDynamics struct {
	A *mat.Dense
	B *mat.Dense
}

// NewLinearDynamics builds a linear transition from its system matrices.
func NewLinearDynamics(a, b *mat.Dense) *LinearDynamics {
	return &LinearDynamics{A: a, B: b}
}

func (l *LinearDynamics) StateDim() int {
	r, _ := l.A.Dims()
	return r
}

func (l *LinearDynamics) InputDim() int {
	_, c := l.B.Dims()
	return c
}

func (l *LinearDynamics) Next(x, u mat.Vector, next *mat.VecDense) {
	next.MulVec(l.A, x)
	var bu mat.VecDense
	bu.MulVec(l.B, u)
	next.AddVec(next, &bu)
}

func (l *LinearDynamics) Linearize(_, _ mat.Vector, a, b *mat.Dense) {
	a.Copy(l.A)
	b.Copy(l.B)
}

// LinearConstraint is the exact oracle for C·x + D·u - b = 0. A nil D or
// nil Offset is treated as zero.
type LinearConstraint struct {
	C      *mat.Dense
	D      *mat.Dense
	Offset *mat.VecDense
}

func (l *LinearConstraint) Dim() int {
	r, _ := l.C.Dims()
	return r
}

func (l *LinearConstraint) Evaluate(x, u mat.Vector, h *mat.VecDense) {
	h.MulVec(l.C, x)
	if l.D != nil {
		var du mat.VecDense
		du.MulVec(l.D, u)
		h.AddVec(h, &du)
	}
	if l.Offset != nil {
		h.SubVec(h, l.Offset)
	}
}

func (l *LinearConstraint) Linearize(_, _ mat.Vector, c, d *mat.Dense) {
	c.Copy(l.C)
	d.Zero()
	if l.D != nil {
		d.Copy(l.D)
	}
}
