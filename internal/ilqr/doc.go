// Package ilqr implements a multiple-shooting iterative LQR solver for
// discrete-time nonlinear optimal control problems
//
//	minimize   Σ l_k(x_k, u_k) + l_N(x_N)
//	subject to x_{k+1} = f_k(x_k, u_k)
//	           h_k(x_k, u_k) = 0
//	           lb ≤ (x_k, u_k) ≤ ub
//
// following "A Family of Iterative Gauss-Newton Shooting Methods for
// Nonlinear Optimal Control" (Giftthaler et al.). Equality constraints are
// handled inside the Riccati recursion: rows that cannot be satisfied by the
// inputs at a stage are propagated backwards as a constraint-to-go and
// absorbed at earlier stages, keeping the per-stage KKT systems small. Bound
// constraints are lifted into the cost by an optional augmented-Lagrangian
// outer loop; bound rows with lb = ub become hard equality rows.
//
// The solver is single-threaded and synchronous; one [Solver.Solve] call
// blocks until the stopping test passes, the iteration budget runs out, or
// the iteration callback requests termination. Per-stage workspaces are
// allocated at construction and reused across iterations.
//
// # Example
//
//	dyn := models.NewDoubleIntegrator(0.1)
//	s, _ := ilqr.New(dyn, 30)
//	s.SetFinalCost(ocp.NewStateCost(goal, 200))
//	s.SetInitialState(x0)
//	ok, err := s.Solve(50)
package ilqr
