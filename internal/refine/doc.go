// Package refine adjusts the desired task-space acceleration with a small
// constrained optimization before torques are synthesized.
//
// The decision variable is the 3-dimensional acceleration ddx. The objective
// keeps it close to the desired value:
//
//	f(ddx) = ‖ddx − ddx_desired‖²
//
// subject to a dynamics-consistency bound on the torque implied by ddx:
//
//	ddq(ddx) = J⁺·(ddx − dJ·dq)
//	g(ddx)   = M·ddq(ddx) + Cg − τ_min ≥ 0
//
// Refinement is best effort. Invalid parameters, optimizer errors and panics,
// budget exhaustion and infeasible results all fall back to ddx_desired and
// are reported through [Outcome] rather than returned as errors.
package refine
