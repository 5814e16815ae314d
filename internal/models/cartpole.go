package models

import (
	"math"

	"github.com/YunxiTang/Horizon-opt/internal/ocp"
)

// CartPole parameters for the classic cart-pole on a rail,
// x = (pos, vel, θ, ω), u = (force).
type CartPole struct {
	Dt         float64
	CartMass   float64
	PoleMass   float64
	PoleLength float64
	Gravity    float64
}

// NewCartPole builds an Euler-discretized cart-pole with finite-difference
// Jacobians.
func NewCartPole(dt float64) ocp.Dynamics {
	c := &CartPole{
		Dt:         dt,
		CartMass:   1.0,
		PoleMass:   0.1,
		PoleLength: 1.0,
		Gravity:    9.81,
	}
	return ocp.LiftDynamics(4, 1, c.step)
}

func (c *CartPole) step(x, u, next []float64) {
	vel, theta, omega := x[1], x[2], x[3]
	force := u[0]

	mc, mp, l, g := c.CartMass, c.PoleMass, c.PoleLength, c.Gravity
	sint, cost := math.Sincos(theta)

	temp := (force + mp*l*omega*omega*sint) / (mc + mp)
	thetaAcc := (g*sint - cost*temp) / (l * (4.0/3.0 - mp*cost*cost/(mc+mp)))
	xAcc := temp - mp*l*thetaAcc*cost/(mc+mp)

	next[0] = x[0] + c.Dt*vel
	next[1] = vel + c.Dt*xAcc
	next[2] = theta + c.Dt*omega
	next[3] = omega + c.Dt*thetaAcc
}
