// Package control runs the operational-space controller tick by tick.
//
// A [Controller] is bound to one robot model and one end-effector body. Each
// call to [Controller.Update] reads a consistent snapshot, evaluates the
// operational-space law, lets the refiner adjust the task acceleration
// within the torque lower bound, synthesizes joint torques and applies them:
//
//	ctrl, err := control.New(arm, arm.EndEffector(), tauMin,
//	    control.WithRefiner(refine.New(logger)))
//	if err != nil {
//	    return err
//	}
//	if err := ctrl.ConfigureForTorqueControl(control.DefaultJointDamping); err != nil {
//	    return err
//	}
//	cmd, err := ctrl.Update(target)
//
// Construction has no side effects on the robot. Joint setup happens in
// [Controller.ConfigureForTorqueControl] so it can fail visibly.
//
// Controllers implement [dynamo.Configurable] for live gain tuning.
package control
