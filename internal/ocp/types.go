package ocp

import "gonum.org/v1/gonum/mat"

// Dynamics is the transition oracle for one shooting interval.
type Dynamics interface {
	StateDim() int
	InputDim() int

	// Next evaluates f(x, u) into next.
	Next(x, u mat.Vector, next *mat.VecDense)

	// Linearize writes the Jacobians df/dx into a (nx×nx) and df/du into
	// b (nx×nu).
	Linearize(x, u mat.Vector, a, b *mat.Dense)
}

// Cost is the stage cost oracle. For the final stage the input slot is
// aliased to the last input by convention and must not influence the value.
type Cost interface {
	// Evaluate returns l(x, u).
	Evaluate(x, u mat.Vector) float64

	// Gradient writes dl/dx into qx (nx) and dl/du into ru (nu).
	Gradient(x, u mat.Vector, qx, ru *mat.VecDense)

	// Hessian writes d²l/dx² into q (nx×nx), d²l/du² into r (nu×nu) and
	// d²l/dudx into p (nu×nx).
	Hessian(x, u mat.Vector, q, r, p *mat.Dense)
}

// Constraint is the stage equality oracle for h(x, u) = 0.
type Constraint interface {
	// Dim returns the number of constraint rows.
	Dim() int

	// Evaluate writes h(x, u) into h.
	Evaluate(x, u mat.Vector, h *mat.VecDense)

	// Linearize writes dh/dx into c (m×nx) and dh/du into d (m×nu).
	Linearize(x, u mat.Vector, c, d *mat.Dense)
}
