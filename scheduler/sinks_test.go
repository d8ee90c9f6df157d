package scheduler

import (
	"bytes"
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/rs/zerolog"
	"github.com/sarchlab/magicbot/timing"
	"go.uber.org/mock/gomock"
)

var _ = Describe("Sinks", func() {
	var (
		mockCtrl *gomock.Controller
		next     *MockFailureSink
		clock    *timing.ManualClock
	)

	BeforeEach(func() {
		mockCtrl = gomock.NewController(GinkgoT())
		next = NewMockFailureSink(mockCtrl)
		clock = timing.NewManualClock()
	})

	AfterEach(func() {
		mockCtrl.Finish()
	})

	Context("RateLimitedSink", func() {
		var sink *RateLimitedSink

		BeforeEach(func() {
			sink = NewRateLimitedSink(next, clock, DefaultReportInterval)
		})

		It("should report the first failure", func() {
			next.EXPECT().Report(gomock.Any())

			sink.Report(Failure{Component: "a"})
		})

		It("should drop failures that follow closely", func() {
			next.EXPECT().Report(gomock.Any()).Times(1)

			for i := 0; i < 10; i++ {
				sink.Report(Failure{Component: "a"})
				clock.Step(20 * time.Millisecond)
			}

			Expect(sink.Suppressed()).To(Equal(9))
		})

		It("should report again after a quiet interval", func() {
			next.EXPECT().Report(gomock.Any()).Times(2)

			sink.Report(Failure{Component: "a"})
			clock.Step(600 * time.Millisecond)
			sink.Report(Failure{Component: "a"})
		})

		It("should always report forced failures", func() {
			next.EXPECT().Report(gomock.Any()).Times(3)

			sink.Report(Failure{Component: "a"})
			sink.Report(Failure{Component: "a", Forced: true})
			sink.Report(Failure{Component: "a", Forced: true})
		})
	})

	Context("EscalatingSink", func() {
		It("should halt outside competition", func() {
			var halted []Failure
			sink := NewEscalatingSink(false, func(f Failure) {
				halted = append(halted, f)
			})

			sink.Report(Failure{Component: "a"})

			Expect(halted).To(HaveLen(1))
		})

		It("should only contain in competition", func() {
			sink := NewEscalatingSink(true, func(Failure) {
				Fail("must not halt")
			})

			sink.Report(Failure{Component: "a"})
		})
	})

	Context("LogSink", func() {
		It("should log the component and the stack", func() {
			buf := &bytes.Buffer{}
			sink := NewLogSink(zerolog.New(buf).Level(zerolog.DebugLevel))

			err := Contain("drive", func() error { panic(errors.New("boom")) })
			sink.Report(Failure{Component: "drive", Err: err, Tick: 7})

			Expect(buf.String()).To(ContainSubstring(`"component":"drive"`))
			Expect(buf.String()).To(ContainSubstring(`"tick":7`))
			Expect(buf.String()).To(ContainSubstring("panic stack"))
		})
	})
})
