// Package ocp defines the problem oracles consumed by the solver:
//
//   - [Dynamics]: discrete-time transition x_{k+1} = f(x_k, u_k) with its
//     Jacobians
//   - [Cost]: stage cost with gradient and (Gauss-Newton or exact) Hessian
//   - [Constraint]: stage equality h(x, u) = 0 with its Jacobians
//
// Derivatives must be consistent with values to numerical precision, and
// evaluations must be pure. The package also provides exact building blocks
// ([LinearDynamics], [QuadraticCost], [LinearConstraint]) and
// finite-difference adapters ([LiftDynamics], [LiftConstraint]) for
// black-box models that only supply values.
package ocp
