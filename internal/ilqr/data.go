package ilqr

import "gonum.org/v1/gonum/mat"

// valueFn is the quadratic cost-to-go model ½ δxᵀS δx + sᵀδx at one stage.
type valueFn struct {
	S *mat.Dense
	s *mat.VecDense
}

// bpResult holds the affine policy δu = l + L·δx computed by the backward
// pass at one stage, together with the multipliers of the feasible
// constraint rows.
type bpResult struct {
	L   *mat.Dense    // nu×nx feedback
	l   *mat.VecDense // nu feedforward
	lam *mat.VecDense // cap; first ncFeas entries valid

	nc     int // rows received by the constraint handler
	ncFeas int // feasible rows kept in the stage KKT
}

// workspace is the exclusively-owned per-stage scratch of the backward pass.
// No buffer aliases another stage's.
type workspace struct {
	sPlusSd *mat.VecDense // nx
	sa      *mat.Dense    // nx×nx: S_{i+1}·A
	sb      *mat.Dense    // nx×nu: S_{i+1}·B
	hx      *mat.VecDense // nx
	hu      *mat.VecDense // nu
	hxx     *mat.Dense    // nx×nx
	huu     *mat.Dense    // nu×nu
	hux     *mat.Dense    // nu×nx

	kkt *mat.Dense // (nu+cap)×(nu+cap)
	rhs *mat.Dense // (nu+cap)×(nx+1)
	sol *mat.Dense // (nu+cap)×(nx+1)

	cf   *mat.Dense    // cap×nx feasible block
	df   *mat.Dense    // cap×nu
	hf   *mat.VecDense // cap
	cinf *mat.Dense    // cap×nx infeasible remainder
	hinf *mat.VecDense // cap

	t1 *mat.Dense    // nu×nx value-update scratch
	t2 *mat.Dense    // nx×nx
	v1 *mat.VecDense // nu
	v2 *mat.VecDense // nx

	dx *mat.VecDense // nx forward-pass state deviation
	du *mat.VecDense // nu forward-pass input step
}

func newWorkspace(nx, nu, cap int) *workspace {
	return &workspace{
		sPlusSd: mat.NewVecDense(nx, nil),
		sa:      mat.NewDense(nx, nx, nil),
		sb:      mat.NewDense(nx, nu, nil),
		hx:      mat.NewVecDense(nx, nil),
		hu:      mat.NewVecDense(nu, nil),
		hxx:     mat.NewDense(nx, nx, nil),
		huu:     mat.NewDense(nu, nu, nil),
		hux:     mat.NewDense(nu, nx, nil),
		kkt:     mat.NewDense(nu+cap, nu+cap, nil),
		rhs:     mat.NewDense(nu+cap, nx+1, nil),
		sol:     mat.NewDense(nu+cap, nx+1, nil),
		cf:      mat.NewDense(cap, nx, nil),
		df:      mat.NewDense(cap, nu, nil),
		hf:      mat.NewVecDense(cap, nil),
		cinf:    mat.NewDense(cap, nx, nil),
		hinf:    mat.NewVecDense(cap, nil),
		t1:      mat.NewDense(nu, nx, nil),
		t2:      mat.NewDense(nx, nx, nil),
		v1:      mat.NewVecDense(nu, nil),
		v2:      mat.NewVecDense(nx, nil),
		dx:      mat.NewVecDense(nx, nil),
		du:      mat.NewVecDense(nu, nil),
	}
}

// forwardResult records one closed-loop rollout and its scores.
type forwardResult struct {
	xtrj *mat.Dense // nx×(N+1)
	utrj *mat.Dense // nu×N

	alpha      float64
	stepLength float64
	cost       float64
	defectNorm float64
	constrViol float64
	boundViol  float64

	merit    float64
	meritDer float64
	muF      float64
	muC      float64
	muB      float64

	accepted bool
}
