package ilqr

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

func addDiag(a *mat.Dense, v float64) {
	if v == 0 {
		return
	}
	n, _ := a.Dims()
	for i := 0; i < n; i++ {
		a.Set(i, i, a.At(i, i)+v)
	}
}

func symmetrize(a *mat.Dense) {
	n, _ := a.Dims()
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			v := 0.5 * (a.At(i, j) + a.At(j, i))
			a.Set(i, j, v)
			a.Set(j, i, v)
		}
	}
}

func copyVec(dst, src *mat.VecDense) {
	for i := 0; i < src.Len(); i++ {
		dst.SetVec(i, src.AtVec(i))
	}
}

func infNormVec(v mat.Vector) float64 {
	m := 0.0
	for i := 0; i < v.Len(); i++ {
		if a := math.Abs(v.AtVec(i)); a > m {
			m = a
		}
	}
	return m
}

func l1NormVec(v mat.Vector) float64 {
	s := 0.0
	for i := 0; i < v.Len(); i++ {
		s += math.Abs(v.AtVec(i))
	}
	return s
}

func hasNaN(a mat.Matrix) bool {
	r, c := a.Dims()
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			if math.IsNaN(a.At(i, j)) {
				return true
			}
		}
	}
	return false
}
