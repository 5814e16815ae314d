package models

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/YunxiTang/Horizon-opt/internal/ocp"
)

// Unicycle is the kinematic unicycle x = (px, py, θ), u = (v, ω),
// Euler-discretized with step Dt:
//
//	px+ = px + dt·v·cos θ
//	py+ = py + dt·v·sin θ
//	θ+  = θ + dt·ω
type Unicycle struct {
	Dt float64
}

func NewUnicycle(dt float64) *Unicycle {
	return &Unicycle{Dt: dt}
}

func (m *Unicycle) StateDim() int { return 3 }
func (m *Unicycle) InputDim() int { return 2 }

func (m *Unicycle) Next(x, u mat.Vector, next *mat.VecDense) {
	theta := x.AtVec(2)
	v := u.AtVec(0)
	next.SetVec(0, x.AtVec(0)+m.Dt*v*math.Cos(theta))
	next.SetVec(1, x.AtVec(1)+m.Dt*v*math.Sin(theta))
	next.SetVec(2, theta+m.Dt*u.AtVec(1))
}

func (m *Unicycle) Linearize(x, u mat.Vector, a, b *mat.Dense) {
	theta := x.AtVec(2)
	v := u.AtVec(0)
	sin, cos := math.Sincos(theta)

	a.Zero()
	a.Set(0, 0, 1)
	a.Set(1, 1, 1)
	a.Set(2, 2, 1)
	a.Set(0, 2, -m.Dt*v*sin)
	a.Set(1, 2, m.Dt*v*cos)

	b.Zero()
	b.Set(0, 0, m.Dt*cos)
	b.Set(1, 0, m.Dt*sin)
	b.Set(2, 1, m.Dt)
}

var _ ocp.Dynamics = (*Unicycle)(nil)
