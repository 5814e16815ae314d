package config

var Presets = map[string]*Config{
	"origin": {
		Model: "double_integrator", N: 30, Dt: 0.1, MaxIter: 50,
		X0: []float64{1, 0}, Goal: []float64{0, 0},
		GoalWeight: 200, InputWeight: 1,
	},
	"endpoint": {
		Model: "unicycle", N: 40, Dt: 0.05, MaxIter: 300,
		X0: []float64{0, 0, 0}, Goal: []float64{1, 1, 0},
		GoalAsConstraint: true, InputWeight: 1,
	},
	"saturated": {
		Model: "integrator", N: 10, Dt: 0.1, MaxIter: 400,
		X0: []float64{1}, Goal: []float64{0},
		GoalWeight: 200, InputWeight: 1,
		UMin: []float64{-0.5}, UMax: []float64{0.5},
		Solver: SolverConfig{Auglag: true},
	},
	"swingup": {
		Model: "pendulum", N: 80, Dt: 0.05, MaxIter: 500,
		X0: []float64{3.14159, 0}, Goal: []float64{0, 0},
		GoalWeight: 500, InputWeight: 0.1,
	},
	"balance": {
		Model: "cartpole", N: 60, Dt: 0.02, MaxIter: 300,
		X0: []float64{0, 0, 0.3, 0}, Goal: []float64{0, 0, 0, 0},
		GoalWeight: 300, InputWeight: 0.5,
	},
}
