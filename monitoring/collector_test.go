package monitoring

import (
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sarchlab/magicbot/scheduler"
	"github.com/sarchlab/magicbot/statemachine"
	"github.com/sarchlab/magicbot/timing"
)

type componentFunc func() error

func (f componentFunc) Execute() error { return f() }

var _ = Describe("Collector", func() {
	var (
		c     *Collector
		clock *timing.ManualClock
		s     *scheduler.Scheduler
	)

	BeforeEach(func() {
		c = NewCollector("test")
		clock = timing.NewManualClock()
		s = scheduler.New(nil, nil, clock, scheduler.WithFailureSink(c))
		s.AcceptHook(c)
	})

	It("should count ticks and observe durations", func() {
		s.Add("slow", componentFunc(func() error {
			clock.Step(3 * time.Millisecond)
			return nil
		}))

		s.Tick()
		s.Tick()

		Expect(testutil.ToFloat64(c.ticks)).To(Equal(2.0))
		Expect(testutil.CollectAndCount(c.tickDuration)).To(Equal(1))
		Expect(testutil.CollectAndCount(c.executeDuration)).To(Equal(1))
	})

	It("should count failures by component and kind", func() {
		s.Add("jammed", componentFunc(func() error {
			return errors.New("jammed")
		}))
		s.Add("broken", componentFunc(func() error {
			panic("broken")
		}))

		s.Tick()
		s.Tick()

		Expect(testutil.ToFloat64(
			c.failures.WithLabelValues("jammed", "false"))).To(Equal(2.0))
		Expect(testutil.ToFloat64(
			c.failures.WithLabelValues("broken", "true"))).To(Equal(2.0))
	})

	It("should count state transitions", func() {
		noop := func(statemachine.Run) error { return nil }
		m := statemachine.New("shooter", statemachine.MustDefine(
			statemachine.State{Name: "spin", First: true, Handler: noop},
		), clock)
		m.AcceptHook(c)

		m.Engage()
		Expect(m.Execute()).To(Succeed())

		Expect(testutil.ToFloat64(
			c.transitions.WithLabelValues("shooter", "spin"))).To(Equal(1.0))
	})

	It("should register once per registry", func() {
		reg := prometheus.NewRegistry()

		Expect(c.Register(reg)).To(Succeed())
		Expect(c.Register(reg)).NotTo(Succeed())
	})
})
