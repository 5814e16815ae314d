package storage

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"
)

func TestSaveAndList(t *testing.T) {
	store := New(t.TempDir())
	if err := store.Init(); err != nil {
		t.Fatal(err)
	}

	x := mat.NewDense(2, 4, []float64{
		1, 2, 3, 4,
		5, 6, 7, 8,
	})
	u := mat.NewDense(1, 3, []float64{-1, -2, -3})

	id, err := store.Save(RunMetadata{
		Model: "double_integrator", N: 3, Dt: 0.1,
		Converged: true, Iterations: 4, Cost: 1.25,
	}, x, u)
	if err != nil {
		t.Fatal(err)
	}
	if id == "" {
		t.Fatal("empty run id")
	}

	runs, err := store.List()
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 1 {
		t.Fatalf("expected 1 run, got %d", len(runs))
	}
	if runs[0].Model != "double_integrator" || !runs[0].Converged {
		t.Errorf("metadata mismatch: %+v", runs[0])
	}
}

func TestLoadTrajectoriesRoundTrip(t *testing.T) {
	store := New(t.TempDir())
	if err := store.Init(); err != nil {
		t.Fatal(err)
	}

	x := mat.NewDense(2, 3, []float64{
		0.5, 1.5, 2.5,
		-0.25, 0, 0.25,
	})
	u := mat.NewDense(1, 2, []float64{0.125, -0.125})

	id, err := store.Save(RunMetadata{Model: "integrator", N: 2, Dt: 0.1}, x, u)
	if err != nil {
		t.Fatal(err)
	}

	gx, gu, err := store.LoadTrajectories(id)
	if err != nil {
		t.Fatal(err)
	}

	r, c := gx.Dims()
	if r != 2 || c != 3 {
		t.Fatalf("state shape %dx%d, want 2x3", r, c)
	}
	for i := 0; i < 2; i++ {
		for k := 0; k < 3; k++ {
			if math.Abs(gx.At(i, k)-x.At(i, k)) > 1e-12 {
				t.Errorf("x[%d][%d] = %g, want %g", i, k, gx.At(i, k), x.At(i, k))
			}
		}
	}
	for k := 0; k < 2; k++ {
		if math.Abs(gu.At(0, k)-u.At(0, k)) > 1e-12 {
			t.Errorf("u[0][%d] = %g, want %g", k, gu.At(0, k), u.At(0, k))
		}
	}
}

func TestListEmptyStore(t *testing.T) {
	store := New(t.TempDir() + "/never-created")
	runs, err := store.List()
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 0 {
		t.Errorf("expected no runs, got %d", len(runs))
	}
}
