package robot

import (
	"context"
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/sarchlab/magicbot/inject"
	"github.com/sarchlab/magicbot/kvstore"
	"github.com/sarchlab/magicbot/reset"
	"github.com/sarchlab/magicbot/scheduler"
	"github.com/sarchlab/magicbot/statemachine"
	"github.com/sarchlab/magicbot/timing"
	"github.com/sarchlab/magicbot/tunable"
)

type motor struct {
	outputs []float64
}

func (m *motor) Set(v float64) {
	m.outputs = append(m.outputs, v)
}

type intake struct {
	motor   *motor
	speed   *tunable.Tunable[float64]
	running bool
	enabled int
	broken  bool
}

func (i *intake) ResetFields() []reset.Field {
	return []reset.Field{reset.To("running", &i.running, false)}
}

func (i *intake) BindTunables(b *tunable.Binder, owner string) {
	i.speed = tunable.Bind(b, owner, "speed", 1.0)
	b.Feedback(owner, "is_running", func() any { return i.running })
}

func (i *intake) Run() { i.running = true }

func (i *intake) OnEnable() { i.enabled++ }

func (i *intake) Execute() error {
	if i.broken {
		panic("intake jammed")
	}

	if i.running {
		i.motor.Set(i.speed.Get())
	} else {
		i.motor.Set(0)
	}

	return nil
}

type automation struct {
	intake *intake
	active bool
}

func (a *automation) Execute() error {
	if a.active {
		a.intake.Run()
	}
	return nil
}

type collectMode struct {
	*statemachine.Autonomous
	intake *intake
}

func newCollectMode(clock timing.Clock) *collectMode {
	m := &collectMode{}
	m.Autonomous = statemachine.NewAutonomous("collect", statemachine.MustDefine(
		statemachine.State{Name: "collect", First: true,
			Duration: 60 * time.Millisecond,
			Handler: func(statemachine.Run) error {
				m.intake.Run()
				return nil
			}},
	), clock)

	return m
}

func (m *collectMode) Default() bool { return true }

var _ = Describe("Robot", func() {
	var (
		clock *timing.ManualClock
		store *kvstore.Memory
		mot   *motor
		in    *intake
		auto  *automation
		decl  Declaration
	)

	BeforeEach(func() {
		clock = timing.NewManualClock()
		store = kvstore.NewMemory()
		mot = &motor{}

		decl = Declaration{
			Provided: []Provided{{Name: "intake_motor", Value: mot}},
			Components: []Slot{
				{Name: "automation", Def: inject.Define(
					func() *automation { return &automation{} },
					inject.Requires("intake",
						func(a *automation, i *intake) { a.intake = i })),
					Options: []inject.SlotOption{inject.Into(&auto)}},
				{Name: "intake", Def: inject.Define(
					func() *intake { return &intake{} },
					inject.Requires("motor",
						func(i *intake, m *motor) { i.motor = m })),
					Options: []inject.SlotOption{inject.Into(&in)}},
			},
			Modes: []Slot{
				{Name: "collect", Def: inject.Define(
					func() *collectMode { return newCollectMode(clock) },
					inject.Requires("intake",
						func(m *collectMode, i *intake) { m.intake = i }))},
			},
		}
	})

	build := func() *Robot {
		r, err := MakeBuilder().
			WithClock(clock).
			WithStore(store).
			WithCompetition(true).
			Build(decl)
		Expect(err).NotTo(HaveOccurred())
		return r
	}

	It("should wire components and modes", func() {
		r := build()

		Expect(r.Scheduler().Components()).To(Equal([]string{"automation", "intake"}))
		Expect(auto.intake).To(BeIdenticalTo(in))
		Expect(in.motor).To(BeIdenticalTo(mot))
		Expect(r.Selector().Options()).To(Equal([]string{"collect", "None"}))
		Expect(r.Resets().Owners()).To(ContainElement("intake"))
		Expect(r.ID()).NotTo(BeEmpty())
	})

	It("should let operator requests reach the component in the same loop", func() {
		decl.Callbacks.TeleopPeriodic = func() error {
			in.Run()
			return nil
		}
		r := build()

		r.LoopFunc(ModeTeleop)

		Expect(mot.outputs).To(Equal([]float64{1.0}))
	})

	It("should reset requests between loops", func() {
		r := build()

		auto.active = true
		r.LoopFunc(ModeTeleop)
		auto.active = false
		r.LoopFunc(ModeTeleop)

		Expect(mot.outputs).To(Equal([]float64{1.0, 0}))
	})

	It("should observe tunable writes in the same tick", func() {
		r := build()
		auto.active = true

		r.LoopFunc(ModeTeleop)
		r.Binder().Set("/components/intake/speed", 2.5)
		r.Tick()

		Expect(mot.outputs).To(Equal([]float64{1.0, 2.5}))
	})

	It("should publish feedback and the mode", func() {
		r := build()
		auto.active = true

		r.LoopFunc(ModeTeleop)

		v, _ := store.Get("/components/intake/is_running")
		Expect(v).To(BeTrue())
		v, _ = store.Get("/robot/mode")
		Expect(v).To(Equal("teleop"))
	})

	It("should not execute components while disabled", func() {
		r := build()

		r.LoopFunc(ModeDisabled)
		r.LoopFunc(ModeDisabled)

		Expect(mot.outputs).To(BeEmpty())
	})

	It("should enable components on mode changes", func() {
		r := build()

		r.LoopFunc(ModeDisabled)
		r.LoopFunc(ModeTeleop)
		r.LoopFunc(ModeTeleop)
		r.LoopFunc(ModeAutonomous)

		Expect(in.enabled).To(Equal(2))
	})

	It("should run the default autonomous mode to completion", func() {
		r := build()

		for i := 0; i < 6; i++ {
			r.LoopFunc(ModeAutonomous)
			clock.Step(20 * time.Millisecond)
		}

		Expect(mot.outputs).To(Equal([]float64{1, 1, 1, 0, 0, 0}))
		Expect(r.Selector().Active()).To(Equal("collect"))

		r.LoopFunc(ModeDisabled)
		Expect(r.Selector().Active()).To(Equal("None"))
	})

	It("should inspect components only between loop periods", func() {
		entered := make(chan struct{})
		release := make(chan struct{})
		decl.Callbacks.TeleopPeriodic = func() error {
			close(entered)
			<-release
			return nil
		}
		r := build()

		looped := make(chan struct{})
		go func() {
			defer close(looped)
			r.LoopFunc(ModeTeleop)
		}()
		<-entered

		inspected := make(chan struct{})
		go r.Inspect(func() { close(inspected) })

		Consistently(inspected, 50*time.Millisecond).ShouldNot(BeClosed())

		close(release)

		Eventually(looped).Should(BeClosed())
		Eventually(inspected).Should(BeClosed())
	})

	It("should contain component failures in competition", func() {
		r := build()
		in.broken = true

		r.LoopFunc(ModeTeleop)
		r.LoopFunc(ModeTeleop)

		Expect(r.Scheduler().Failures()).To(HaveLen(2))
		Expect(r.Halted()).To(Succeed())
	})

	It("should contain callback failures", func() {
		decl.Callbacks.TeleopPeriodic = func() error {
			return errors.New("joystick unplugged")
		}
		decl.Callbacks.RobotPeriodic = func() error { panic("oops") }
		r := build()

		r.LoopFunc(ModeTeleop)

		failures := r.Scheduler().Failures()
		Expect(failures).To(HaveLen(2))
		Expect(failures[0].Component).To(Equal("teleopPeriodic"))
		Expect(failures[1].Component).To(Equal("robotPeriodic"))
	})

	It("should halt outside competition", func() {
		var halted []scheduler.Failure
		r, err := MakeBuilder().
			WithClock(clock).
			WithHaltFunc(func(f scheduler.Failure) { halted = append(halted, f) }).
			Build(decl)
		Expect(err).NotTo(HaveOccurred())
		in.broken = true

		r.LoopFunc(ModeTeleop)

		Expect(halted).To(HaveLen(1))
		Expect(halted[0].Component).To(Equal("intake"))
	})

	It("should stop running when halted", func() {
		r, err := MakeBuilder().Build(decl)
		Expect(err).NotTo(HaveOccurred())
		in.broken = true
		r.SetMode(ModeTeleop)

		err = r.Run(context.Background(), time.Millisecond)

		var haltErr *HaltError
		Expect(errors.As(err, &haltErr)).To(BeTrue())
		Expect(haltErr.Failure.Component).To(Equal("intake"))
		Expect(r.LoopStats().Ticks).To(BeNumerically(">=", 0))
	})

	It("should stop running when cancelled", func() {
		r, err := MakeBuilder().Build(decl)
		Expect(err).NotTo(HaveOccurred())

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		Expect(r.Run(ctx, time.Millisecond)).To(MatchError(context.Canceled))
	})

	It("should reject components without an execute step", func() {
		decl.Components = append(decl.Components, Slot{
			Name: "plain", Def: inject.Define(func() *motor { return &motor{} }),
		})

		_, err := MakeBuilder().Build(decl)

		Expect(err).To(BeAssignableToTypeOf(&NotExecutableError{}))
	})

	It("should reject modes that are not modes", func() {
		decl.Modes = append(decl.Modes, Slot{
			Name: "bogus", Def: inject.Define(func() *motor { return &motor{} }),
		})

		_, err := MakeBuilder().Build(decl)

		Expect(err).To(BeAssignableToTypeOf(&NotAModeError{}))
	})

	It("should return resolution errors", func() {
		decl.Provided = nil

		_, err := MakeBuilder().Build(decl)

		Expect(err).To(BeAssignableToTypeOf(&inject.UnresolvedDependencyError{}))
	})
})

var _ = Describe("Mode", func() {
	It("should round trip through strings", func() {
		for _, m := range []Mode{ModeDisabled, ModeAutonomous, ModeTeleop, ModeTest} {
			parsed, err := ParseMode(m.String())
			Expect(err).NotTo(HaveOccurred())
			Expect(parsed).To(Equal(m))
		}

		_, err := ParseMode("flying")
		Expect(err).To(HaveOccurred())
	})
})
