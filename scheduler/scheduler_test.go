package scheduler

import (
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/sarchlab/magicbot/hooking"
	"github.com/sarchlab/magicbot/kvstore"
	"github.com/sarchlab/magicbot/reset"
	"github.com/sarchlab/magicbot/timing"
	"github.com/sarchlab/magicbot/tunable"
	"go.uber.org/mock/gomock"
)

type intake struct {
	speed float64
	seen  []float64
}

func (i *intake) ResetFields() []reset.Field {
	return []reset.Field{reset.To("speed", &i.speed, 0)}
}

func (i *intake) Execute() error {
	i.seen = append(i.seen, i.speed)
	return nil
}

type automation struct {
	intake  *intake
	running bool
}

func (a *automation) Execute() error {
	if a.running {
		a.intake.speed = 1
	}
	return nil
}

type lifecycle struct {
	calls []string
	fail  bool
}

func (l *lifecycle) Execute() error { return nil }

func (l *lifecycle) OnEnable() {
	l.calls = append(l.calls, "enable")
	if l.fail {
		panic("cannot enable")
	}
}

func (l *lifecycle) OnDisable() {
	l.calls = append(l.calls, "disable")
}

var _ = Describe("Scheduler", func() {
	var (
		mockCtrl *gomock.Controller
		clock    *timing.ManualClock
		resets   *reset.Registry
		sink     *MockFailureSink
		s        *Scheduler
	)

	BeforeEach(func() {
		mockCtrl = gomock.NewController(GinkgoT())
		clock = timing.NewManualClock()
		resets = reset.NewRegistry()
		sink = NewMockFailureSink(mockCtrl)
		s = New(resets, nil, clock, WithFailureSink(sink))
	})

	AfterEach(func() {
		mockCtrl.Finish()
	})

	It("should execute components in declaration order", func() {
		first := NewMockComponent(mockCtrl)
		second := NewMockComponent(mockCtrl)
		s.Add("first", first)
		s.Add("second", second)

		gomock.InOrder(
			first.EXPECT().Execute(),
			second.EXPECT().Execute(),
		)

		s.Tick()

		Expect(s.Components()).To(Equal([]string{"first", "second"}))
		Expect(s.TickCount()).To(Equal(uint64(1)))
	})

	It("should reset attributes at the start of every tick", func() {
		in := &intake{speed: 5}
		auto := &automation{intake: in}
		resets.RegisterComponent("intake", in)
		s.Add("automation", auto)
		s.Add("intake", in)

		auto.running = true
		s.Tick()
		auto.running = false
		s.Tick()
		s.Tick()

		Expect(in.seen).To(Equal([]float64{1, 0, 0}))
	})

	It("should contain returned errors and continue", func() {
		broken := NewMockComponent(mockCtrl)
		healthy := NewMockComponent(mockCtrl)
		s.Add("broken", broken)
		s.Add("healthy", healthy)

		clock.Step(time.Second)
		broken.EXPECT().Execute().Return(errors.New("motor stalled"))
		healthy.EXPECT().Execute()
		sink.EXPECT().Report(gomock.Any()).Do(func(f Failure) {
			Expect(f.Component).To(Equal("broken"))
			Expect(f.Tick).To(Equal(uint64(1)))
			Expect(f.Time).To(Equal(time.Second))
			Expect(f.Err).To(MatchError(ContainSubstring("motor stalled")))
			Expect(f.Forced).To(BeFalse())
		})

		Expect(s.Tick).NotTo(Panic())
		Expect(s.Failures()).To(HaveLen(1))
	})

	It("should contain panics with their stack", func() {
		broken := NewMockComponent(mockCtrl)
		healthy := NewMockComponent(mockCtrl)
		s.Add("broken", broken)
		s.Add("healthy", healthy)

		broken.EXPECT().Execute().DoAndReturn(func() error {
			panic("index out of range")
		})
		healthy.EXPECT().Execute()
		sink.EXPECT().Report(gomock.Any())

		Expect(s.Tick).NotTo(Panic())

		var execErr *ComponentExecutionError
		Expect(errors.As(s.Failures()[0].Err, &execErr)).To(BeTrue())
		Expect(execErr.Panicked).To(BeTrue())
		Expect(execErr.Stack).NotTo(BeEmpty())
		Expect(execErr.Error()).To(Equal("component broken panicked: index out of range"))
	})

	It("should keep a bounded failure history", func() {
		s = New(resets, nil, clock, WithFailureHistory(2))
		broken := NewMockComponent(mockCtrl)
		s.Add("broken", broken)
		broken.EXPECT().Execute().Return(errors.New("again")).Times(3)

		s.Tick()
		s.Tick()
		s.Tick()

		failures := s.Failures()
		Expect(failures).To(HaveLen(2))
		Expect(failures[0].Tick).To(Equal(uint64(2)))
		Expect(failures[1].Tick).To(Equal(uint64(3)))
	})

	It("should skip execution but keep resetting while paused", func() {
		in := &intake{speed: 5}
		resets.RegisterComponent("intake", in)
		s.Add("intake", in)

		s.Pause()
		Expect(s.Paused()).To(BeTrue())
		in.speed = 3
		s.Tick()

		Expect(in.seen).To(BeEmpty())
		Expect(in.speed).To(Equal(0.0))

		s.Continue()
		s.Tick()

		Expect(in.seen).To(Equal([]float64{0}))
	})

	It("should begin a tunable cycle every tick", func() {
		store := kvstore.NewMemory()
		binder := tunable.NewBinder(store, "components")
		speed := tunable.Bind(binder, "shooter", "speed", 1.0)
		s = New(resets, binder, clock)

		var seen []float64
		s.Add("shooter", componentFunc(func() error {
			seen = append(seen, speed.Get())
			return nil
		}))

		s.Tick()
		store.Set(speed.Path(), 2.0)
		s.Tick()

		Expect(seen).To(Equal([]float64{1.0, 2.0}))
	})

	It("should call lifecycle methods and force their failures", func() {
		ok := &lifecycle{}
		failing := &lifecycle{fail: true}
		s.Add("ok", ok)
		s.Add("failing", failing)

		sink.EXPECT().Report(gomock.Any()).Do(func(f Failure) {
			Expect(f.Component).To(Equal("failing"))
			Expect(f.Forced).To(BeTrue())
		})

		s.Enable()
		s.Disable()

		Expect(ok.calls).To(Equal([]string{"enable", "disable"}))
		Expect(failing.calls).To(Equal([]string{"enable", "disable"}))
	})

	It("should invoke hooks around every execution", func() {
		var positions []string
		s.AcceptHook(hooking.HookFunc(func(ctx hooking.HookCtx) {
			positions = append(positions, ctx.Pos.Name)
		}))

		broken := NewMockComponent(mockCtrl)
		s.Add("broken", broken)
		broken.EXPECT().Execute().Return(errors.New("x"))
		sink.EXPECT().Report(gomock.Any())

		s.Tick()

		Expect(positions).To(Equal([]string{
			"BeforeTick", "BeforeExecute", "Failure", "AfterExecute", "AfterTick",
		}))
	})

	It("should survive panicking hooks and sinks", func() {
		s.AcceptHook(hooking.HookFunc(func(hooking.HookCtx) { panic("bad hook") }))
		broken := NewMockComponent(mockCtrl)
		s.Add("broken", broken)
		broken.EXPECT().Execute().Return(errors.New("x"))
		sink.EXPECT().Report(gomock.Any()).Do(func(Failure) { panic("bad sink") })

		Expect(s.Tick).NotTo(Panic())
	})

	It("should reject duplicated components", func() {
		s.Add("a", NewMockComponent(mockCtrl))

		Expect(func() { s.Add("a", NewMockComponent(mockCtrl)) }).To(Panic())
	})
})

type componentFunc func() error

func (f componentFunc) Execute() error { return f() }

var _ = Describe("Contain", func() {
	It("should return nil on success", func() {
		Expect(Contain("a", func() error { return nil })).To(Succeed())
	})

	It("should wrap errors", func() {
		cause := errors.New("boom")

		err := Contain("a", func() error { return cause })

		Expect(err).To(MatchError(cause))
		Expect(err.Error()).To(Equal("component a failed: boom"))
	})

	It("should keep panicked errors unwrappable", func() {
		cause := errors.New("boom")

		err := Contain("a", func() error { panic(cause) })

		Expect(errors.Is(err, cause)).To(BeTrue())
	})

	It("should not wrap its own errors twice", func() {
		inner := Contain("a", func() error { return errors.New("boom") })

		err := Contain("a", func() error { return inner })

		Expect(err).To(BeIdenticalTo(inner))
	})
})

var _ = Describe("TickWith", func() {
	It("should run the callback between reset and execution", func() {
		resets := reset.NewRegistry()
		s := New(resets, nil, timing.NewManualClock())
		in := &intake{}
		resets.RegisterComponent("intake", in)
		s.Add("intake", in)

		s.TickWith(func() { in.speed = 0.5 })
		s.TickWith(nil)

		Expect(in.seen).To(Equal([]float64{0.5, 0}))
	})
})
