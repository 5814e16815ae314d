package ocp

import "gonum.org/v1/gonum/mat"

// QuadraticCost is the exact oracle for
//
//	l(x, u) = ½ (x - xref)ᵀ Q (x - xref) + ½ (u - uref)ᵀ R (u - uref)
//
// Nil Q or R drops the corresponding term; nil references are zero. Q and R
// must be symmetric.
type QuadraticCost struct {
	Q    *mat.Dense
	R    *mat.Dense
	Xref *mat.VecDense
	Uref *mat.VecDense
}

// NewInputCost builds the default intermediate cost ½‖u‖²·w.
func NewInputCost(nu int, w float64) *QuadraticCost {
	r := mat.NewDense(nu, nu, nil)
	for i := 0; i < nu; i++ {
		r.Set(i, i, w)
	}
	return &QuadraticCost{R: r}
}

// NewStateCost builds a final-style cost ½‖x - xref‖²·w.
func NewStateCost(xref *mat.VecDense, w float64) *QuadraticCost {
	nx := xref.Len()
	q := mat.NewDense(nx, nx, nil)
	for i := 0; i < nx; i++ {
		q.Set(i, i, w)
	}
	return &QuadraticCost{Q: q, Xref: xref}
}

func (c *QuadraticCost) Evaluate(x, u mat.Vector) float64 {
	total := 0.0
	if c.Q != nil {
		dx := deviation(x, c.Xref)
		var qdx mat.VecDense
		qdx.MulVec(c.Q, dx)
		total += 0.5 * mat.Dot(dx, &qdx)
	}
	if c.R != nil {
		du := deviation(u, c.Uref)
		var rdu mat.VecDense
		rdu.MulVec(c.R, du)
		total += 0.5 * mat.Dot(du, &rdu)
	}
	return total
}

func (c *QuadraticCost) Gradient(x, u mat.Vector, qx, ru *mat.VecDense) {
	qx.Zero()
	ru.Zero()
	if c.Q != nil {
		qx.MulVec(c.Q, deviation(x, c.Xref))
	}
	if c.R != nil {
		ru.MulVec(c.R, deviation(u, c.Uref))
	}
}

func (c *QuadraticCost) Hessian(_, _ mat.Vector, q, r, p *mat.Dense) {
	q.Zero()
	r.Zero()
	p.Zero()
	if c.Q != nil {
		q.Copy(c.Q)
	}
	if c.R != nil {
		r.Copy(c.R)
	}
}

func deviation(y mat.Vector, ref *mat.VecDense) *mat.VecDense {
	d := mat.NewVecDense(y.Len(), nil)
	for i := 0; i < y.Len(); i++ {
		v := y.AtVec(i)
		if ref != nil {
			v -= ref.AtVec(i)
		}
		d.SetVec(i, v)
	}
	return d
}
