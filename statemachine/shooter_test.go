package statemachine

import (
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/sarchlab/magicbot/timing"
)

type shooter struct {
	*Machine

	ready bool
	fired int
}

func newShooter(clock timing.Clock) *shooter {
	s := &shooter{}
	s.Machine = New("shooter", MustDefine(
		State{Name: "prepare", First: true, Handler: s.prepare},
		State{Name: "fire", Duration: time.Second, MustFinish: true,
			Handler: s.fire},
	), clock)

	return s
}

func (s *shooter) prepare(Run) error {
	if s.ready {
		return s.NextStateNow("fire")
	}

	return nil
}

func (s *shooter) fire(Run) error {
	s.fired++
	return nil
}

var _ = Describe("Shooter", func() {
	var (
		clock *timing.ManualClock
		s     *shooter
	)

	BeforeEach(func() {
		clock = timing.NewManualClock()
		s = newShooter(clock)
		s.ready = true
	})

	It("should fire on the first tick and keep firing for a second", func() {
		s.Engage()
		Expect(s.Execute()).To(Succeed())
		Expect(s.CurrentState()).To(Equal("fire"))

		for tick := 1; tick < 50; tick++ {
			clock.Step(20 * time.Millisecond)
			Expect(s.Execute()).To(Succeed())
			Expect(s.CurrentState()).To(Equal("fire"))
			Expect(s.IsExecuting()).To(BeTrue())
		}

		clock.Step(20 * time.Millisecond)
		Expect(s.Execute()).To(Succeed())

		Expect(s.IsExecuting()).To(BeFalse())
		Expect(s.CurrentState()).To(Equal(""))
		Expect(s.fired).To(Equal(50))
	})

	It("should stay in prepare while not ready", func() {
		s.ready = false

		for tick := 0; tick < 3; tick++ {
			s.Engage()
			Expect(s.Execute()).To(Succeed())
			Expect(s.CurrentState()).To(Equal("prepare"))
			clock.Step(20 * time.Millisecond)
		}

		Expect(s.fired).To(BeZero())
	})

	It("should keep firing when engaged every tick", func() {
		for tick := 0; tick < 3; tick++ {
			s.Engage()
			Expect(s.Execute()).To(Succeed())
			Expect(s.CurrentState()).To(Equal("fire"))
			clock.Step(20 * time.Millisecond)
		}

		Expect(s.fired).To(Equal(3))
	})
})
