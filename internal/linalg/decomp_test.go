package linalg

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"
)

func orthoError(q *mat.Dense) float64 {
	n, _ := q.Dims()
	var qtq mat.Dense
	qtq.Mul(q.T(), q)
	maxErr := 0.0
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			want := 0.0
			if i == j {
				want = 1.0
			}
			if e := math.Abs(qtq.At(i, j) - want); e > maxErr {
				maxErr = e
			}
		}
	}
	return maxErr
}

func TestDecomposeFullRank(t *testing.T) {
	d := mat.NewDense(2, 3, []float64{
		1, 0, 2,
		0, 3, 1,
	})

	for _, kind := range []DecompKind{DecompSVD, DecompQR, DecompCOD} {
		q, rank := Decompose(d, 1e-12, kind)
		if rank != 2 {
			t.Errorf("%v: expected rank 2, got %d", kind, rank)
		}
		if e := orthoError(q); e > 1e-12 {
			t.Errorf("%v: q not orthogonal, error %g", kind, e)
		}
	}
}

func TestDecomposeDuplicateRows(t *testing.T) {
	// two identical rows: rank 1, and the second rotated row must vanish
	d := mat.NewDense(2, 2, []float64{
		1, 2,
		1, 2,
	})

	for _, kind := range []DecompKind{DecompSVD, DecompQR, DecompCOD} {
		q, rank := Decompose(d, 1e-12, kind)
		if rank != 1 {
			t.Fatalf("%v: expected rank 1, got %d", kind, rank)
		}
		var rot mat.Dense
		rot.Mul(q.T(), d)
		for j := 0; j < 2; j++ {
			if v := math.Abs(rot.At(1, j)); v > 1e-12 {
				t.Errorf("%v: infeasible part not annihilated, |rot[1][%d]| = %g", kind, j, v)
			}
		}
	}
}

func TestDecomposeZeroMatrix(t *testing.T) {
	d := mat.NewDense(3, 2, nil)
	for _, kind := range []DecompKind{DecompSVD, DecompQR, DecompCOD} {
		_, rank := Decompose(d, 1e-12, kind)
		if rank != 0 {
			t.Errorf("%v: expected rank 0 for zero matrix, got %d", kind, rank)
		}
	}
}

func TestDecomposeNearZeroThreshold(t *testing.T) {
	d := mat.NewDense(1, 2, []float64{1e-14, 0})
	for _, kind := range []DecompKind{DecompSVD, DecompQR, DecompCOD} {
		_, rank := Decompose(d, 1e-12, kind)
		if rank != 0 {
			t.Errorf("%v: max pivot below threshold should give rank 0, got %d", kind, rank)
		}
	}
}

func TestDecomposeReconstruct(t *testing.T) {
	// q^T d must be upper trapezoidal for the QR kinds
	d := mat.NewDense(3, 2, []float64{
		1, 4,
		2, 5,
		3, 6,
	})
	q, rank := Decompose(d, 1e-12, DecompQR)
	if rank != 2 {
		t.Fatalf("expected rank 2, got %d", rank)
	}
	var rot mat.Dense
	rot.Mul(q.T(), d)
	for j := 0; j < 2; j++ {
		if v := math.Abs(rot.At(2, j)); v > 1e-12 {
			t.Errorf("row below rank not annihilated: %g", v)
		}
	}
}

func TestSolveSaddle(t *testing.T) {
	// quasi-definite saddle-point system
	k := mat.NewDense(3, 3, []float64{
		4, 1, 1,
		1, 3, -1,
		1, -1, -1e-6,
	})
	rhs := mat.NewDense(3, 2, []float64{
		1, 0,
		2, 1,
		3, -1,
	})

	var ref mat.Dense
	var lu mat.LU
	lu.Factorize(k)
	if err := lu.SolveTo(&ref, false, rhs); err != nil {
		t.Fatalf("reference solve failed: %v", err)
	}

	for _, kind := range []SolveKind{SolveLU, SolveQR, SolveLDLT} {
		var dst mat.Dense
		if err := SolveSaddle(k, rhs, kind, &dst); err != nil {
			t.Fatalf("%v: solve failed: %v", kind, err)
		}
		for i := 0; i < 3; i++ {
			for j := 0; j < 2; j++ {
				if e := math.Abs(dst.At(i, j) - ref.At(i, j)); e > 1e-8 {
					t.Errorf("%v: solution mismatch at (%d,%d): %g", kind, i, j, e)
				}
			}
		}
	}
}

func TestSolveLDLTZeroPivot(t *testing.T) {
	k := mat.NewDense(2, 2, []float64{
		0, 1,
		1, 0,
	})
	rhs := mat.NewDense(2, 1, []float64{1, 1})
	var dst mat.Dense
	if err := SolveSaddle(k, rhs, SolveLDLT, &dst); err == nil {
		t.Error("expected breakdown on zero leading pivot")
	}
}

func TestIsFinite(t *testing.T) {
	a := mat.NewDense(2, 2, []float64{1, 2, 3, 4})
	if !IsFinite(a) {
		t.Error("finite matrix reported non-finite")
	}
	a.Set(1, 1, math.NaN())
	if IsFinite(a) {
		t.Error("NaN entry not detected")
	}
}
