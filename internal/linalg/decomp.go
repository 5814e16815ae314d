package linalg

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// DecompKind selects the rank-revealing factorization applied to the
// constraint input matrix.
type DecompKind int

const (
	// DecompSVD uses a singular value decomposition with a full left factor.
	// Most robust rank detection.
	DecompSVD DecompKind = iota
	// DecompQR uses Householder triangularization with column interchanges.
	DecompQR
	// DecompCOD uses a complete orthogonal decomposition: pivoted QR followed
	// by right Householder compression of the leading rows.
	DecompCOD
)

func (k DecompKind) String() string {
	switch k {
	case DecompSVD:
		return "svd"
	case DecompQR:
		return "qr"
	case DecompCOD:
		return "cod"
	}
	return "unknown"
}

// Decompose factors the m×n matrix d and returns a full m×m orthogonal
// factor q together with the pseudo-rank of d.
//
// The first rank columns of q span the range of d; the remaining columns
// span its orthogonal complement. The pseudo-rank counts pivots (singular
// values, or pivoted R diagonal entries) exceeding the absolute threshold
// tol; if the largest pivot is below tol the rank is zero.
func Decompose(d *mat.Dense, tol float64, kind DecompKind) (q *mat.Dense, rank int) {
	m, _ := d.Dims()
	switch kind {
	case DecompSVD:
		return decomposeSVD(d, tol)
	case DecompQR:
		q, rank, _ = pivotedQR(d, tol)
		return q, rank
	case DecompCOD:
		return decomposeCOD(d, tol)
	}
	// unreachable for valid kinds; treat as rank zero
	q = identity(m)
	return q, 0
}

func decomposeSVD(d *mat.Dense, tol float64) (*mat.Dense, int) {
	m, _ := d.Dims()
	var svd mat.SVD
	ok := svd.Factorize(d, mat.SVDFullU)
	if !ok {
		return identity(m), 0
	}
	var u mat.Dense
	svd.UTo(&u)
	sv := svd.Values(nil)

	rank := 0
	if len(sv) > 0 && sv[0] >= tol {
		for _, s := range sv {
			if s < tol {
				break
			}
			rank++
		}
	}
	return &u, rank
}

// pivotedQR triangularizes d with Householder reflections and column
// interchanges, accumulating the full orthogonal factor. The returned r
// holds the triangularized (and permuted) matrix; its diagonal entries are
// the pivots. Rank determination follows Lawson & Hanson: pivots are scanned
// in order and the count stops at the first entry at or below tol.
func pivotedQR(d *mat.Dense, tol float64) (q *mat.Dense, rank int, r *mat.Dense) {
	m, n := d.Dims()
	r = mat.DenseCopyOf(d)
	q = identity(m)

	diag := m
	if n < diag {
		diag = n
	}

	for j := 0; j < diag; j++ {
		// column with the largest residual sum of squares
		lmax, vmax := j, -1.0
		for l := j; l < n; l++ {
			ss := 0.0
			for i := j; i < m; i++ {
				t := r.At(i, l)
				ss += t * t
			}
			if ss > vmax {
				lmax, vmax = l, ss
			}
		}
		if lmax != j {
			swapCols(r, j, lmax)
		}
		applyLeftHouseholder(r, q, j)
	}

	rank = 0
	for j := 0; j < diag; j++ {
		if math.Abs(r.At(j, j)) <= tol {
			break
		}
		rank++
	}
	return q, rank, r
}

func decomposeCOD(d *mat.Dense, tol float64) (*mat.Dense, int) {
	q, rank, r := pivotedQR(d, tol)
	if rank == 0 {
		return q, 0
	}

	// Compress [R11 R12] into [W 0] with right Householders and re-validate
	// the pseudo-rank against the compressed diagonal.
	_, n := r.Dims()
	for i := rank - 1; i >= 0; i-- {
		applyRightHouseholder(r, i, rank, n)
	}
	k := 0
	for j := 0; j < rank; j++ {
		if math.Abs(r.At(j, j)) <= tol {
			break
		}
		k++
	}
	return q, k
}

// applyLeftHouseholder forms the reflection zeroing column j of a below the
// diagonal and applies it to a (columns j..n) and, from the right, to q.
func applyLeftHouseholder(a, q *mat.Dense, j int) {
	m, n := a.Dims()

	norm := 0.0
	for i := j; i < m; i++ {
		norm = math.Hypot(norm, a.At(i, j))
	}
	if norm == 0 {
		return
	}
	alpha := norm
	if a.At(j, j) > 0 {
		alpha = -norm
	}

	v := make([]float64, m-j)
	v[0] = a.At(j, j) - alpha
	for i := j + 1; i < m; i++ {
		v[i-j] = a.At(i, j)
	}
	vtv := 0.0
	for _, t := range v {
		vtv += t * t
	}
	if vtv == 0 {
		return
	}

	for c := j; c < n; c++ {
		dot := 0.0
		for i := j; i < m; i++ {
			dot += v[i-j] * a.At(i, c)
		}
		s := 2 * dot / vtv
		for i := j; i < m; i++ {
			a.Set(i, c, a.At(i, c)-s*v[i-j])
		}
	}
	// q <- q * H
	qm, _ := q.Dims()
	for rI := 0; rI < qm; rI++ {
		dot := 0.0
		for i := j; i < m; i++ {
			dot += q.At(rI, i) * v[i-j]
		}
		s := 2 * dot / vtv
		for i := j; i < m; i++ {
			q.Set(rI, i, q.At(rI, i)-s*v[i-j])
		}
	}
}

// applyRightHouseholder zeroes entries i of columns rank..n-1 of row i by a
// reflection acting on column indices {i} ∪ [rank, n).
func applyRightHouseholder(a *mat.Dense, i, rank, n int) {
	norm := math.Abs(a.At(i, i))
	for c := rank; c < n; c++ {
		norm = math.Hypot(norm, a.At(i, c))
	}
	if norm == 0 {
		return
	}
	alpha := norm
	if a.At(i, i) > 0 {
		alpha = -norm
	}

	nv := 1 + n - rank
	v := make([]float64, nv)
	v[0] = a.At(i, i) - alpha
	for c := rank; c < n; c++ {
		v[1+c-rank] = a.At(i, c)
	}
	vtv := 0.0
	for _, t := range v {
		vtv += t * t
	}
	if vtv == 0 {
		return
	}

	for rI := 0; rI <= i; rI++ {
		dot := a.At(rI, i) * v[0]
		for c := rank; c < n; c++ {
			dot += a.At(rI, c) * v[1+c-rank]
		}
		s := 2 * dot / vtv
		a.Set(rI, i, a.At(rI, i)-s*v[0])
		for c := rank; c < n; c++ {
			a.Set(rI, c, a.At(rI, c)-s*v[1+c-rank])
		}
	}
}

func swapCols(a *mat.Dense, j, l int) {
	m, _ := a.Dims()
	for i := 0; i < m; i++ {
		t := a.At(i, j)
		a.Set(i, j, a.At(i, l))
		a.Set(i, l, t)
	}
}

func identity(n int) *mat.Dense {
	q := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		q.Set(i, i, 1)
	}
	return q
}
