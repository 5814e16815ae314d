package linalg

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/mat"
)

// SolveKind selects the factorization used for the stage KKT systems.
type SolveKind int

const (
	// SolveLU uses an LU factorization with partial pivoting.
	SolveLU SolveKind = iota
	// SolveQR uses a Householder QR factorization.
	SolveQR
	// SolveLDLT uses an unpivoted symmetric-indefinite LDL^T factorization.
	// Requires the system to be quasi-definite (positive primal block,
	// negatively shifted dual block), which holds whenever kkt_reg > 0.
	SolveLDLT
)

func (k SolveKind) String() string {
	switch k {
	case SolveLU:
		return "lu"
	case SolveQR:
		return "qr"
	case SolveLDLT:
		return "ldlt"
	}
	return "unknown"
}

// ErrSingular reports a factorization breakdown (zero pivot or a singular
// system detected by the backend).
var ErrSingular = errors.New("linalg: singular kkt system")

// SolveSaddle solves K·X = rhs for the symmetric saddle-point matrix K,
// writing the solution into dst. A breakdown returns ErrSingular; callers
// should additionally check the solution with [IsFinite], since a nearly
// singular system can produce non-finite entries without an error.
func SolveSaddle(k *mat.Dense, rhs *mat.Dense, kind SolveKind, dst *mat.Dense) error {
	switch kind {
	case SolveLU:
		var lu mat.LU
		lu.Factorize(k)
		if err := lu.SolveTo(dst, false, rhs); err != nil {
			return ErrSingular
		}
		return nil
	case SolveQR:
		var qr mat.QR
		qr.Factorize(k)
		if err := qr.SolveTo(dst, false, rhs); err != nil {
			return ErrSingular
		}
		return nil
	case SolveLDLT:
		return solveLDLT(k, rhs, dst)
	}
	return errors.New("linalg: kkt factorization supports only lu, qr, or ldlt")
}

// solveLDLT factors k = L·D·L^T without pivoting and solves for every column
// of rhs. Only the lower triangle of k is referenced.
func solveLDLT(k *mat.Dense, rhs *mat.Dense, dst *mat.Dense) error {
	n, _ := k.Dims()
	_, nc := rhs.Dims()

	l := mat.NewDense(n, n, nil)
	d := make([]float64, n)

	for j := 0; j < n; j++ {
		dj := k.At(j, j)
		for p := 0; p < j; p++ {
			t := l.At(j, p)
			dj -= t * t * d[p]
		}
		if dj == 0 || math.IsNaN(dj) {
			return ErrSingular
		}
		d[j] = dj
		l.Set(j, j, 1)
		for i := j + 1; i < n; i++ {
			v := k.At(i, j)
			for p := 0; p < j; p++ {
				v -= l.At(i, p) * l.At(j, p) * d[p]
			}
			l.Set(i, j, v/dj)
		}
	}

	if dst.IsEmpty() {
		dst.ReuseAs(n, nc)
	}
	y := make([]float64, n)
	for c := 0; c < nc; c++ {
		// L y = b
		for i := 0; i < n; i++ {
			v := rhs.At(i, c)
			for p := 0; p < i; p++ {
				v -= l.At(i, p) * y[p]
			}
			y[i] = v
		}
		// D z = y, L^T x = z
		for i := 0; i < n; i++ {
			y[i] /= d[i]
		}
		for i := n - 1; i >= 0; i-- {
			v := y[i]
			for p := i + 1; p < n; p++ {
				v -= l.At(p, i) * y[p]
			}
			y[i] = v
			dst.Set(i, c, v)
		}
	}
	return nil
}

// IsFinite reports whether every entry of a is finite.
func IsFinite(a mat.Matrix) bool {
	r, c := a.Dims()
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			v := a.At(i, j)
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return false
			}
		}
	}
	return true
}

// IsFiniteVec reports whether every entry of v is finite.
func IsFiniteVec(v mat.Vector) bool {
	for i := 0; i < v.Len(); i++ {
		t := v.AtVec(i)
		if math.IsNaN(t) || math.IsInf(t, 0) {
			return false
		}
	}
	return true
}
