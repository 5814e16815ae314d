package ilqr

import (
	"fmt"
	"io"
	"os"

	"github.com/YunxiTang/Horizon-opt/internal/linalg"
)

// Options collects the solver parameters. Zero values select the documented
// defaults; use [DefaultOptions] as a starting point.
type Options struct {
	// MaxIter bounds the outer iterations when Solve is called with a
	// non-positive budget. Default 100.
	MaxIter int

	// KKTDecomp selects the factorization for the stage KKT systems.
	KKTDecomp linalg.SolveKind

	// ConstrDecomp selects the rank-revealing factorization applied to the
	// constraint input matrix.
	ConstrDecomp linalg.DecompKind

	// SVDThreshold is the absolute pivot threshold for rank determination.
	// Default 1e-12.
	SVDThreshold float64

	// HxxRegBase is the floor of the state Hessian regularization.
	HxxRegBase float64

	// HxxRegGrowth is the multiplicative growth applied on every backward
	// pass restart. Default 10.
	HxxRegGrowth float64

	// HuuReg is the fixed additive shift on the input Hessian diagonal.
	HuuReg float64

	// KKTReg is the Tikhonov shift on the dual block of the stage KKT
	// systems.
	KKTReg float64

	// ConstraintCap bounds the constraint-to-go row count. Default 10·nx.
	ConstraintCap int

	// MaxRegRetries bounds the backward pass restarts within one iteration.
	// Default 40.
	MaxRegRetries int

	// EnableAuglag turns on the augmented-Lagrangian outer loop for strict
	// inequality bounds.
	EnableAuglag bool

	// RhoInitial is the starting penalty parameter. Default 10.
	RhoInitial float64

	// RhoGrowth multiplies the penalty on every outer update. Default 10.
	RhoGrowth float64

	// MeritDerThreshold gates the auglag update: the inner loop is
	// considered converged when |m'| ≤ threshold·(1+m). Default 1e-6.
	MeritDerThreshold float64

	// ConstraintViolationThreshold classifies initial-state constraint rows
	// as violated and gates the auglag update. Default 1e-6.
	ConstraintViolationThreshold float64

	// Verbose enables progress logging; Log additionally enables per-stage
	// numerical traces.
	Verbose bool
	Log     bool

	// LogWriter receives log output. Default os.Stdout.
	LogWriter io.Writer
}

// DefaultOptions returns the documented default parameters.
func DefaultOptions() Options {
	return Options{
		MaxIter:                      100,
		KKTDecomp:                    linalg.SolveLU,
		ConstrDecomp:                 linalg.DecompSVD,
		SVDThreshold:                 1e-12,
		HxxRegBase:                   0,
		HxxRegGrowth:                 10,
		HuuReg:                       0,
		KKTReg:                       0,
		MaxRegRetries:                40,
		RhoInitial:                   10,
		RhoGrowth:                    10,
		MeritDerThreshold:            1e-6,
		ConstraintViolationThreshold: 1e-6,
		LogWriter:                    os.Stdout,
	}
}

func (o *Options) normalize(nx int) error {
	if o.MaxIter <= 0 {
		o.MaxIter = 100
	}
	if o.SVDThreshold <= 0 {
		o.SVDThreshold = 1e-12
	}
	if o.HxxRegGrowth <= 1 {
		o.HxxRegGrowth = 10
	}
	if o.ConstraintCap <= 0 {
		o.ConstraintCap = 10 * nx
	}
	if o.MaxRegRetries <= 0 {
		o.MaxRegRetries = 40
	}
	if o.RhoInitial <= 0 {
		o.RhoInitial = 10
	}
	if o.RhoGrowth <= 1 {
		o.RhoGrowth = 10
	}
	if o.MeritDerThreshold <= 0 {
		o.MeritDerThreshold = 1e-6
	}
	if o.ConstraintViolationThreshold <= 0 {
		o.ConstraintViolationThreshold = 1e-6
	}
	if o.LogWriter == nil {
		o.LogWriter = os.Stdout
	}
	switch o.KKTDecomp {
	case linalg.SolveLU, linalg.SolveQR, linalg.SolveLDLT:
	default:
		return fmt.Errorf("ilqr: kkt decomposition supports only lu, qr, or ldlt (got %d)", o.KKTDecomp)
	}
	switch o.ConstrDecomp {
	case linalg.DecompSVD, linalg.DecompQR, linalg.DecompCOD:
	default:
		return fmt.Errorf("ilqr: constraint decomposition supports only svd, qr, or cod (got %d)", o.ConstrDecomp)
	}
	return nil
}
