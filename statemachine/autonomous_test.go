package statemachine

import (
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/sarchlab/magicbot/timing"
)

var _ = Describe("Autonomous", func() {
	var clock *timing.ManualClock

	BeforeEach(func() {
		clock = timing.NewManualClock()
	})

	It("should run until done is called", func() {
		var a *Autonomous
		i := 0
		a = NewAutonomous("test_autonomous_sm", MustDefine(
			State{Name: "something", First: true, Handler: func(Run) error {
				i++
				if i == 6 {
					a.Done()
				}
				return nil
			}},
		), clock)

		a.OnEnable()

		for n := 0; n < 5; n++ {
			Expect(a.OnIteration(0)).To(Succeed())
			Expect(a.IsExecuting()).To(BeTrue())
		}

		Expect(a.OnIteration(0)).To(Succeed())
		Expect(a.IsExecuting()).To(BeFalse())

		for n := 0; n < 5; n++ {
			Expect(a.OnIteration(0)).To(Succeed())
			Expect(a.IsExecuting()).To(BeFalse())
		}

		Expect(i).To(Equal(6))
		Expect(a.Armed()).To(BeFalse())
	})

	It("should not loop after the last timed state", func() {
		var a *Autonomous
		i, j := 0, 0
		a = NewAutonomous("test_autonomous_sm_end_timed_state", MustDefine(
			State{Name: "something", First: true, Handler: func(Run) error {
				i++
				if i == 3 {
					return a.NextState("timed")
				}
				return nil
			}},
			State{Name: "timed", Duration: time.Second, Handler: func(Run) error {
				j++
				return nil
			}},
		), clock)

		a.OnEnable()

		for n := 0; n < 5; n++ {
			clock.StepSeconds(0.7)
			Expect(a.OnIteration(0)).To(Succeed())
			Expect(a.IsExecuting()).To(BeTrue())
		}

		for n := 0; n < 5; n++ {
			clock.StepSeconds(0.7)
			Expect(a.OnIteration(0)).To(Succeed())
			Expect(a.IsExecuting()).To(BeFalse())
		}

		Expect(i).To(Equal(3))
		Expect(j).To(Equal(2))
	})

	It("should do nothing until enabled", func() {
		ran := false
		a := NewAutonomous("idle", MustDefine(
			State{Name: "go", First: true, Handler: func(Run) error {
				ran = true
				return nil
			}},
		), clock)

		Expect(a.OnIteration(0)).To(Succeed())

		Expect(ran).To(BeFalse())
		Expect(a.Name()).To(Equal("idle"))
	})

	It("should disarm when disabled", func() {
		a := NewAutonomous("disabled", MustDefine(
			State{Name: "go", First: true, Handler: noop},
		), clock)
		a.OnEnable()
		Expect(a.OnIteration(0)).To(Succeed())

		a.OnDisable()

		Expect(a.Armed()).To(BeFalse())
		Expect(a.IsExecuting()).To(BeFalse())
	})
})
