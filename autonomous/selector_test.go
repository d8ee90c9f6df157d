package autonomous

import (
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/sarchlab/magicbot/kvstore"
	"github.com/sarchlab/magicbot/scheduler"
	"github.com/sarchlab/magicbot/statemachine"
	"github.com/sarchlab/magicbot/timing"
	"github.com/sarchlab/magicbot/tunable"
)

type fakeMode struct {
	name     string
	def      bool
	disabled bool
	calls    []string
	times    []time.Duration
	err      error
}

func (m *fakeMode) Name() string   { return m.name }
func (m *fakeMode) Default() bool  { return m.def }
func (m *fakeMode) Disabled() bool { return m.disabled }
func (m *fakeMode) OnEnable()      { m.calls = append(m.calls, "enable") }
func (m *fakeMode) OnDisable()     { m.calls = append(m.calls, "disable") }

func (m *fakeMode) OnIteration(tm time.Duration) error {
	m.calls = append(m.calls, "iterate")
	m.times = append(m.times, tm)
	return m.err
}

var _ = Describe("Selector", func() {
	var (
		clock    *timing.ManualClock
		store    *kvstore.Memory
		binder   *tunable.Binder
		failures []scheduler.Failure
		sink     scheduler.FailureSink
	)

	BeforeEach(func() {
		clock = timing.NewManualClock()
		store = kvstore.NewMemory()
		binder = tunable.NewBinder(store, "components")
		failures = nil
		sink = scheduler.FailureSinkFunc(func(f scheduler.Failure) {
			failures = append(failures, f)
		})
	})

	newSelector := func(modes ...Mode) *Selector {
		s, err := NewSelector(modes, binder,
			WithClock(clock), WithFailureSink(sink))
		Expect(err).NotTo(HaveOccurred())
		return s
	}

	It("should publish the options and the default", func() {
		newSelector(
			&fakeMode{name: "two ball"},
			&fakeMode{name: "drive forward", def: true},
			&fakeMode{name: "broken", disabled: true},
		)

		v, _ := store.Get("/autonomous/options")
		Expect(v).To(Equal([]string{"drive forward", "two ball", None}))
		v, _ = store.Get("/autonomous/selected")
		Expect(v).To(Equal("drive forward"))
	})

	It("should run the selected mode", func() {
		forward := &fakeMode{name: "drive forward", def: true}
		twoBall := &fakeMode{name: "two ball"}
		s := newSelector(forward, twoBall)

		binder.Set("/autonomous/selected", "two ball")
		s.Start()
		clock.Step(20 * time.Millisecond)
		s.Periodic()
		clock.Step(20 * time.Millisecond)
		s.Periodic()
		s.Stop()

		Expect(forward.calls).To(BeEmpty())
		Expect(twoBall.calls).To(Equal([]string{
			"enable", "iterate", "iterate", "disable",
		}))
		Expect(twoBall.times).To(Equal([]time.Duration{
			20 * time.Millisecond, 40 * time.Millisecond,
		}))
		Expect(s.Active()).To(Equal(None))
	})

	It("should run nothing when None is selected", func() {
		forward := &fakeMode{name: "drive forward"}
		s := newSelector(forward)

		s.Start()
		s.Periodic()
		s.Stop()

		Expect(s.Active()).To(Equal(None))
		Expect(forward.calls).To(BeEmpty())
	})

	It("should reject selecting unknown modes", func() {
		s := newSelector(&fakeMode{name: "a"})

		Expect(s.Select("b")).NotTo(Succeed())
		Expect(s.Select("a")).To(Succeed())

		s.Start()
		Expect(s.Active()).To(Equal("a"))
	})

	It("should contain iteration failures", func() {
		mode := &fakeMode{name: "a", def: true, err: errors.New("lost target")}
		s := newSelector(mode)

		s.Start()
		Expect(s.Periodic).NotTo(Panic())

		Expect(failures).To(HaveLen(1))
		Expect(failures[0].Component).To(Equal("a"))
		Expect(failures[0].Forced).To(BeFalse())
		Expect(failures[0].Err).To(MatchError(ContainSubstring("lost target")))
	})

	It("should reject duplicated names", func() {
		_, err := NewSelector([]Mode{
			&fakeMode{name: "a"}, &fakeMode{name: "a"},
		}, binder)

		Expect(err).To(Equal(&DuplicateModeError{Name: "a"}))
	})

	It("should reject more than one default", func() {
		_, err := NewSelector([]Mode{
			&fakeMode{name: "a", def: true}, &fakeMode{name: "b", def: true},
		}, binder)

		Expect(err).To(BeAssignableToTypeOf(&MultipleDefaultModesError{}))
	})

	It("should drive autonomous state machines to completion", func() {
		var auto *statemachine.Autonomous
		steps := 0
		auto = statemachine.NewAutonomous("three steps", statemachine.MustDefine(
			statemachine.State{Name: "step", First: true,
				Handler: func(statemachine.Run) error {
					steps++
					if steps == 3 {
						auto.Done()
					}
					return nil
				}},
		), clock)
		s := newSelector(auto)
		Expect(s.Select("three steps")).To(Succeed())

		s.Start()
		for i := 0; i < 10; i++ {
			s.Periodic()
		}

		Expect(steps).To(Equal(3))
		Expect(auto.IsExecuting()).To(BeFalse())
	})
})
