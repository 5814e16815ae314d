package models

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/YunxiTang/Horizon-opt/internal/ocp"
)

// Pendulum is a torque-actuated pendulum x = (θ, ω), Euler-discretized:
//
//	θ+ = θ + dt·ω
//	ω+ = ω + dt·(-g/l·sin θ - c·ω + u/(m·l²))
type Pendulum struct {
	Dt      float64
	Mass    float64
	Length  float64
	Gravity float64
	Damping float64
}

func NewPendulum(dt float64) *Pendulum {
	return &Pendulum{
		Dt:      dt,
		Mass:    1.0,
		Length:  1.0,
		Gravity: 9.81,
		Damping: 0.1,
	}
}

func (m *Pendulum) StateDim() int { return 2 }
func (m *Pendulum) InputDim() int { return 1 }

func (m *Pendulum) Next(x, u mat.Vector, next *mat.VecDense) {
	theta, omega := x.AtVec(0), x.AtVec(1)
	acc := -m.Gravity/m.Length*math.Sin(theta) - m.Damping*omega +
		u.AtVec(0)/(m.Mass*m.Length*m.Length)
	next.SetVec(0, theta+m.Dt*omega)
	next.SetVec(1, omega+m.Dt*acc)
}

func (m *Pendulum) Linearize(x, _ mat.Vector, a, b *mat.Dense) {
	theta := x.AtVec(0)

	a.Zero()
	a.Set(0, 0, 1)
	a.Set(0, 1, m.Dt)
	a.Set(1, 0, -m.Dt*m.Gravity/m.Length*math.Cos(theta))
	a.Set(1, 1, 1-m.Dt*m.Damping)

	b.Zero()
	b.Set(1, 0, m.Dt/(m.Mass*m.Length*m.Length))
}

var _ ocp.Dynamics = (*Pendulum)(nil)
