package models

import (
	"gonum.org/v1/gonum/mat"

	"github.com/YunxiTang/Horizon-opt/internal/ocp"
)

// NewDoubleIntegrator builds the exactly discretized double integrator
//
//	x_{k+1} = [1 dt; 0 1]·x + [0; dt]·u
func NewDoubleIntegrator(dt float64) *ocp.LinearDynamics {
	a := mat.NewDense(2, 2, []float64{
		1, dt,
		0, 1,
	})
	b := mat.NewDense(2, 1, []float64{
		0,
		dt,
	})
	return ocp.NewLinearDynamics(a, b)
}

// NewIntegrator builds the scalar integrator x_{k+1} = x + dt·u.
func NewIntegrator(dt float64) *ocp.LinearDynamics {
	return ocp.NewLinearDynamics(
		mat.NewDense(1, 1, []float64{1}),
		mat.NewDense(1, 1, []float64{dt}),
	)
}
