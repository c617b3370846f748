// Package dynamo provides core simulation primitives shared by the plant
// models, integrators and the closed-loop runner.
//
// The package defines the fundamental interfaces and types:
//
//   - [State]: vector representing system state
//   - [System]: interface for ODE systems (dX/dt = f(X, u, t))
//   - [Integrator]: numerical integrator interface
//   - [Sample]: one control tick as seen by metrics and observers
//   - [Metric] and [Observer]: per-tick consumers of samples
//
// # Example
//
//	arm := physics.NewSevenDOF()
//	integ := integrators.NewRK4()
//	x := integ.Step(arm, arm.State(), dynamo.Control(tau), t, dt)
//
// # Errors
//
// Sentinel errors live in errors.go. Construction and configuration
// problems are reported with [ErrConstruction] and [ErrInvalidConfiguration];
// optimizer trouble inside a tick is described by [ErrNonConvergence] and
// [ErrBudgetExhausted] but never escapes the controller.
package dynamo
