package ilqr

import (
	"errors"
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"
)

func TestConstraintToGoAppendAndViews(t *testing.T) {
	g := newConstraintToGo(2, 1, 5)

	c := mat.NewDense(2, 2, []float64{
		1, 0,
		0, 1,
	})
	d := mat.NewDense(2, 1, []float64{2, 3})
	h := mat.NewVecDense(2, []float64{-1, 4})

	if err := g.appendRows(c, d, h); err != nil {
		t.Fatal(err)
	}
	if g.dim() != 2 {
		t.Fatalf("dim = %d, want 2", g.dim())
	}

	cv, dv, hv := g.views()
	if cv.At(0, 0) != 1 || dv.At(1, 0) != 3 || hv.AtVec(0) != -1 {
		t.Error("views do not reflect appended rows")
	}

	g.reset()
	if g.dim() != 0 {
		t.Error("reset did not clear the accumulator")
	}
}

func TestConstraintToGoCapacity(t *testing.T) {
	g := newConstraintToGo(2, 1, 2)
	c := mat.NewDense(2, 2, nil)
	h := mat.NewVecDense(2, nil)

	if err := g.appendRows(c, nil, h); err != nil {
		t.Fatal(err)
	}
	if err := g.appendStateRow(mat.NewVecDense(2, nil), 0); !errors.Is(err, ErrConstraintCapacity) {
		t.Fatalf("expected capacity error, got %v", err)
	}
}

func TestConstraintToGoPropagate(t *testing.T) {
	// one row: x0_{k+1} + 2 = 0, propagated through x_{k+1} = A·x + B·u + gap
	g := newConstraintToGo(2, 1, 4)
	g.appendStateRow(mat.NewVecDense(2, []float64{1, 0}), 2)

	a := mat.NewDense(2, 2, []float64{
		1, 0.1,
		0, 1,
	})
	b := mat.NewDense(2, 1, []float64{0, 0.1})
	d := mat.NewVecDense(2, []float64{0.5, 0})

	g.propagate(a, b, d)

	cv, dv, hv := g.views()
	if math.Abs(cv.At(0, 0)-1) > 1e-12 || math.Abs(cv.At(0, 1)-0.1) > 1e-12 {
		t.Errorf("propagated C row = (%g, %g), want (1, 0.1)", cv.At(0, 0), cv.At(0, 1))
	}
	if math.Abs(dv.At(0, 0)) > 1e-12 {
		t.Errorf("propagated D = %g, want 0", dv.At(0, 0))
	}
	// h ← h − C·d = 2 − 0.5
	if math.Abs(hv.AtVec(0)-1.5) > 1e-12 {
		t.Errorf("propagated h = %g, want 1.5", hv.AtVec(0))
	}
}

func TestConstraintToGoUnitRows(t *testing.T) {
	g := newConstraintToGo(3, 2, 4)
	if err := g.appendUnitRow(1, -1, 0.25); err != nil {
		t.Fatal(err)
	}
	if err := g.appendUnitRow(-1, 0, -0.5); err != nil {
		t.Fatal(err)
	}

	cv, dv, hv := g.views()
	if cv.At(0, 1) != 1 || dv.At(0, 0) != 0 || hv.AtVec(0) != 0.25 {
		t.Error("state unit row malformed")
	}
	if cv.At(1, 1) != 0 || dv.At(1, 0) != 1 || hv.AtVec(1) != -0.5 {
		t.Error("input unit row malformed")
	}
}
