package ilqr

import "gonum.org/v1/gonum/mat"

// constraintToGo accumulates equality rows C·δx + D·δu + h = 0 that could
// not be absorbed at later stages. Storage is fixed at construction; the row
// count grows and shrinks within a backward pass. The accumulator is owned
// by the solver and reset at the start of every backward pass.
type constraintToGo struct {
	c *mat.Dense    // cap×nx
	d *mat.Dense    // cap×nu
	h *mat.VecDense // cap
	n int
	cap, nx, nu int

	// propagation scratch
	pc *mat.Dense
	pd *mat.Dense
	ph *mat.VecDense
}

func newConstraintToGo(nx, nu, cap int) *constraintToGo {
	return &constraintToGo{
		c:   mat.NewDense(cap, nx, nil),
		d:   mat.NewDense(cap, nu, nil),
		h:   mat.NewVecDense(cap, nil),
		cap: cap,
		nx:  nx,
		nu:  nu,
		pc:  mat.NewDense(cap, nx, nil),
		pd:  mat.NewDense(cap, nu, nil),
		ph:  mat.NewVecDense(cap, nil),
	}
}

func (g *constraintToGo) dim() int { return g.n }

func (g *constraintToGo) reset() { g.n = 0 }

// views returns the active rows. Only valid while n > 0.
func (g *constraintToGo) views() (c, d *mat.Dense, h *mat.VecDense) {
	c = g.c.Slice(0, g.n, 0, g.nx).(*mat.Dense)
	d = g.d.Slice(0, g.n, 0, g.nu).(*mat.Dense)
	h = g.h.SliceVec(0, g.n).(*mat.VecDense)
	return c, d, h
}

// propagate reinterprets the accumulated rows, currently constraints on
// x_{i+1}, as constraints on (x_i, u_i) through the linearized dynamics:
// C ← C·A, D ← C·B, h ← h − C·d.
func (g *constraintToGo) propagate(a, b *mat.Dense, defect *mat.VecDense) {
	if g.n == 0 {
		return
	}
	c, _, h := g.views()
	pc := g.pc.Slice(0, g.n, 0, g.nx).(*mat.Dense)
	pd := g.pd.Slice(0, g.n, 0, g.nu).(*mat.Dense)
	ph := g.ph.SliceVec(0, g.n).(*mat.VecDense)

	pc.Mul(c, a)
	pd.Mul(c, b)
	ph.MulVec(c, defect)

	for i := 0; i < g.n; i++ {
		g.h.SetVec(i, h.AtVec(i)-ph.AtVec(i))
		for j := 0; j < g.nx; j++ {
			g.c.Set(i, j, pc.At(i, j))
		}
		for j := 0; j < g.nu; j++ {
			g.d.Set(i, j, pd.At(i, j))
		}
	}
}

// appendRows stacks m constraint rows below the accumulated ones. A nil d
// stands for a structurally zero input Jacobian.
func (g *constraintToGo) appendRows(c, d *mat.Dense, h *mat.VecDense) error {
	m, _ := c.Dims()
	if g.n+m > g.cap {
		return ErrConstraintCapacity
	}
	for i := 0; i < m; i++ {
		r := g.n + i
		for j := 0; j < g.nx; j++ {
			g.c.Set(r, j, c.At(i, j))
		}
		for j := 0; j < g.nu; j++ {
			if d != nil {
				g.d.Set(r, j, d.At(i, j))
			} else {
				g.d.Set(r, j, 0)
			}
		}
		g.h.SetVec(r, h.AtVec(i))
	}
	g.n += m
	return nil
}

// appendStateRow adds a single row with a zero input Jacobian.
func (g *constraintToGo) appendStateRow(c mat.Vector, h float64) error {
	if g.n+1 > g.cap {
		return ErrConstraintCapacity
	}
	for j := 0; j < g.nx; j++ {
		g.c.Set(g.n, j, c.AtVec(j))
	}
	for j := 0; j < g.nu; j++ {
		g.d.Set(g.n, j, 0)
	}
	g.h.SetVec(g.n, h)
	g.n++
	return nil
}

// appendUnitRow adds a bound-equality row selecting one state or input
// component.
func (g *constraintToGo) appendUnitRow(stateIdx, inputIdx int, h float64) error {
	if g.n+1 > g.cap {
		return ErrConstraintCapacity
	}
	for j := 0; j < g.nx; j++ {
		g.c.Set(g.n, j, 0)
	}
	for j := 0; j < g.nu; j++ {
		g.d.Set(g.n, j, 0)
	}
	if stateIdx >= 0 {
		g.c.Set(g.n, stateIdx, 1)
	}
	if inputIdx >= 0 {
		g.d.Set(g.n, inputIdx, 1)
	}
	g.h.SetVec(g.n, h)
	g.n++
	return nil
}
