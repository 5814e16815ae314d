package ilqr

import "errors"

// Domain errors for solver operations.
var (
	// ErrDimensionMismatch indicates an oracle or user input whose shape is
	// inconsistent with the declared state/input dimensions. Surfaced at
	// configuration time.
	ErrDimensionMismatch = errors.New("ilqr: dimension mismatch")

	// ErrHessianIndefinite indicates a stage KKT system that could not be
	// solved (factorization breakdown or non-finite solution). Handled
	// inside the backward pass by growing the regularization and restarting;
	// surfaced to the caller only when the retry budget is exhausted.
	ErrHessianIndefinite = errors.New("ilqr: indefinite hessian in kkt system")

	// ErrNonFiniteInput indicates non-finite user-supplied data: a NaN or
	// ±Inf in the initial state, or a NaN in the bounds. Checked on entry to
	// Solve; seeded trajectories beyond the initial state are not checked.
	ErrNonFiniteInput = errors.New("ilqr: non-finite input")

	// ErrConstraintCapacity indicates the constraint-to-go accumulator
	// overflowed its configured capacity.
	ErrConstraintCapacity = errors.New("ilqr: constraint-to-go capacity exceeded")
)
