package control

import (
	"fmt"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"

	"github.com/san-kum/opspace/internal/dynamo"
	"github.com/san-kum/opspace/internal/refine"
	"github.com/san-kum/opspace/internal/robot"
)

// JointPID holds a joint configuration on top of Coriolis and gravity
// compensation. It ignores the Cartesian target and is the joint-space
// baseline the operational-space controller is compared against.
type JointPID struct {
	Kp float64
	Ki float64
	Kd float64
	Dt float64

	model    robot.Model
	body     robot.Body
	qRef     []float64
	integral []float64
}

func NewJointPID(model robot.Model, body robot.Body, qRef []float64, kp, ki, kd, dt float64) (*JointPID, error) {
	if model == nil || body == nil {
		return nil, errors.Wrap(dynamo.ErrConstruction, "joint pid needs a model and an end effector")
	}
	if len(qRef) != model.DOF() {
		return nil, errors.Wrapf(dynamo.ErrDimensionMismatch, "reference has %d joints, robot has %d", len(qRef), model.DOF())
	}
	if dt <= 0 {
		return nil, errors.Wrapf(dynamo.ErrParameterBounds, "dt must be positive, got %g", dt)
	}
	return &JointPID{
		Kp:       kp,
		Ki:       ki,
		Kd:       kd,
		Dt:       dt,
		model:    model,
		body:     body,
		qRef:     append([]float64(nil), qRef...),
		integral: make([]float64, len(qRef)),
	}, nil
}

func (p *JointPID) Update(target r3.Vector) (*Command, error) {
	q := p.model.Positions()
	dq := p.model.Velocities()
	cg := p.model.CoriolisAndGravityForces()

	tau := make(dynamo.Control, len(q))
	for i := range q {
		err := p.qRef[i] - q[i]
		p.integral[i] += err * p.Dt
		tau[i] = cg.AtVec(i) + p.Kp*err + p.Ki*p.integral[i] - p.Kd*dq[i]
	}
	if err := p.model.SetForces(tau); err != nil {
		return nil, err
	}

	x := p.body.Translation()
	return &Command{
		Torque:        tau,
		Position:      x,
		PositionError: x.Sub(target).Norm(),
		Refine:        refine.Outcome{Status: refine.Skipped},
	}, nil
}

// Reset clears the integral state.
func (p *JointPID) Reset() {
	for i := range p.integral {
		p.integral[i] = 0
	}
}

// GetParams returns tunable parameters for live adjustment
func (p *JointPID) GetParams() map[string]float64 {
	return map[string]float64{
		"kp": p.Kp,
		"ki": p.Ki,
		"kd": p.Kd,
	}
}

// SetParam adjusts a PID parameter
func (p *JointPID) SetParam(name string, value float64) error {
	if value < 0 {
		return errors.Wrapf(dynamo.ErrParameterBounds, "%s must be non-negative, got %g", name, value)
	}
	switch name {
	case "kp":
		p.Kp = value
	case "ki":
		p.Ki = value
	case "kd":
		p.Kd = value
	default:
		return fmt.Errorf("unknown param: %s", name)
	}
	return nil
}
