package ilqr

import "gonum.org/v1/gonum/mat"

// Report carries the outcome of one line-search attempt. The trajectory
// fields are views into solver-owned storage: they are valid for the
// duration of the callback and must not be mutated or retained.
type Report struct {
	Iter                int
	Alpha               float64
	StepLength          float64
	Cost                float64
	DefectNorm          float64
	ConstraintViolation float64
	BoundViolation      float64
	Merit               float64
	MeritDer            float64
	Accepted            bool

	X mat.Matrix
	U mat.Matrix
}

// Callback is invoked after every line-search attempt. Returning false
// requests early termination of the solve. Implementations must not block
// and must not mutate solver state.
type Callback func(Report) bool

// ProfilingInfo accumulates diagnostic counters across a solve.
type ProfilingInfo struct {
	Iterations           int
	ForwardPasses        int
	BackwardRestarts     int
	DroppedDependentRows int
	InfeasibleWarnings   int
	SoftAccepts          int
	AuglagUpdates        int
}
