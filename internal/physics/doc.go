// Package physics simulates serial arms of revolute joints carrying point
// masses.
//
// A [SerialArm] is both a [dynamo.System], integrated by the simulator, and
// a [robot.Model] with an end effector [robot.Body], read and commanded by
// the controller. Two presets are provided:
//
//   - [NewSevenDOF]: redundant seven joint manipulator
//   - [NewPlanar]: n joint arm in the vertical x-z plane, rank deficient in
//     task space
//
// Mass matrix, bias forces and Jacobians are recomputed lazily after each
// SetState.
//
// # Energy Conservation
//
// With zero torque and zero joint damping the arm is conservative, so energy
// drift measures integrator error:
//
//	arm := physics.NewPlanar(3)
//	e0 := arm.Energy(arm.DefaultState())
package physics
