package sim_test

import (
	"context"
	"math"

	"github.com/golang/geo/r3"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/san-kum/opspace/internal/control"
	"github.com/san-kum/opspace/internal/dynamo"
	"github.com/san-kum/opspace/internal/integrators"
	"github.com/san-kum/opspace/internal/physics"
	"github.com/san-kum/opspace/internal/refine"
	"github.com/san-kum/opspace/internal/sim"
)

func uniformBound(n int, v float64) []float64 {
	b := make([]float64, n)
	for i := range b {
		b[i] = v
	}
	return b
}

func closedLoop(arm *physics.SerialArm) *sim.Simulator {
	logger := zap.NewNop().Sugar()
	Expect(arm.SetState(arm.DefaultState())).To(Succeed())

	ctrl, err := control.New(arm, arm.EndEffector(), uniformBound(arm.DOF(), -1e3),
		control.WithLogger(logger), control.WithRefiner(refine.New(logger)))
	Expect(err).NotTo(HaveOccurred())
	Expect(ctrl.ConfigureForTorqueControl(control.DefaultJointDamping)).To(Succeed())

	return sim.New(arm, integrators.NewRK4(), ctrl, logger)
}

var _ = Describe("Operational space control of a seven joint arm", func() {
	var (
		arm   *physics.SerialArm
		s     *sim.Simulator
		start r3.Vector
		cfg   dynamo.Config
	)

	BeforeEach(func() {
		arm = physics.NewSevenDOF()
		s = closedLoop(arm)
		start = arm.EndEffector().Translation()
		cfg = dynamo.DefaultConfig()
	})

	It("holds still when the target is the current position", func() {
		cfg.Duration = 0.5
		res, err := s.Run(context.Background(), sim.Fixed(start), cfg)
		Expect(err).NotTo(HaveOccurred())
		Expect(res.StepsTaken).To(Equal(500))
		for _, e := range res.Errors {
			Expect(e).To(BeNumerically("<", 1e-6))
		}
	})

	Context("with a target 10 cm along x", func() {
		var target r3.Vector

		BeforeEach(func() {
			target = start.Add(r3.Vector{X: 0.1})
		})

		It("accelerates the end effector towards +x on the first tick", func() {
			cfg.Duration = cfg.Dt
			res, err := s.Run(context.Background(), sim.Fixed(target), cfg)
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Torques).To(HaveLen(1))
			Expect(res.Torques[0]).To(HaveLen(7))

			vx := arm.EndEffector().LinearVelocity().X
			Expect(vx).To(BeNumerically(">", 0))
		})

		It("shrinks the position error monotonically", func() {
			res, err := s.Run(context.Background(), sim.Fixed(target), cfg)
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Errors[0]).To(BeNumerically("~", 0.1, 1e-9))

			for i := 1; i < len(res.Errors); i++ {
				Expect(res.Errors[i]).To(BeNumerically("<=", res.Errors[i-1]+1e-12),
					"error grew between ticks %d and %d", i-1, i)
			}
			Expect(res.FinalError()).To(BeNumerically("<", 2e-3))
		})

		It("never produces a non-finite torque", func() {
			cfg.Duration = 0.5
			res, err := s.Run(context.Background(), sim.Fixed(target), cfg)
			Expect(err).NotTo(HaveOccurred())
			for _, tau := range res.Torques {
				Expect(dynamo.State(tau).IsValid()).To(BeTrue())
			}
		})
	})

	It("stops between ticks when cancelled", func() {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := s.Run(ctx, sim.Fixed(start), cfg)
		Expect(err).To(MatchError(context.Canceled))
	})
})

var _ = Describe("A planar arm asked to leave its plane", func() {
	It("tracks the reachable components and stays finite", func() {
		arm := physics.NewPlanar(3)
		s := closedLoop(arm)
		start := arm.EndEffector().Translation()
		target := start.Add(r3.Vector{X: -0.05, Y: 0.1})

		cfg := dynamo.DefaultConfig()
		cfg.Duration = 1.0
		res, err := s.Run(context.Background(), sim.Fixed(target), cfg)
		Expect(err).NotTo(HaveOccurred())

		for _, x := range res.States {
			Expect(x.IsValid()).To(BeTrue())
		}
		final := arm.EndEffector().Translation()
		Expect(math.Abs(final.Y - start.Y)).To(BeNumerically("<", 1e-9))
		Expect(math.Abs(final.X - target.X)).To(BeNumerically("<", 0.01))
		Expect(res.FinalError()).To(BeNumerically("~", 0.1, 0.02))
	})
})

var _ = Describe("An unreachable torque lower bound", func() {
	It("falls back every tick and still controls the arm", func() {
		arm := physics.NewSevenDOF()
		Expect(arm.SetState(arm.DefaultState())).To(Succeed())
		logger := zap.NewNop().Sugar()
		ctrl, err := control.New(arm, arm.EndEffector(), uniformBound(7, 1e6),
			control.WithLogger(logger), control.WithRefiner(refine.New(logger)))
		Expect(err).NotTo(HaveOccurred())
		Expect(ctrl.ConfigureForTorqueControl(control.DefaultJointDamping)).To(Succeed())
		s := sim.New(arm, integrators.NewRK4(), ctrl, logger)

		start := arm.EndEffector().Translation()
		cfg := dynamo.DefaultConfig()
		cfg.Duration = 0.5
		res, err := s.Run(context.Background(), sim.Fixed(start.Add(r3.Vector{X: 0.1})), cfg)
		Expect(err).NotTo(HaveOccurred())

		counts := res.StatusCounts()
		Expect(counts[refine.Refined]).To(Equal(0))
		Expect(res.FinalError()).To(BeNumerically("<", res.Errors[0]))
	})
})
