// Package models provides discrete-time benchmark systems implementing
// ocp.Dynamics, used by the CLI presets and the solver test suite.
package models
