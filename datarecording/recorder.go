package datarecording

import (
	"context"
	"errors"
	"time"

	"github.com/rs/xid"
	"github.com/rs/zerolog"
	"github.com/sarchlab/magicbot/hooking"
	"github.com/sarchlab/magicbot/scheduler"
	"github.com/sarchlab/magicbot/statemachine"
)

// Table names used by the Recorder.
const (
	FailureTable    = "failures"
	TickTable       = "ticks"
	TransitionTable = "transitions"
)

// FailureRow is one contained failure.
type FailureRow struct {
	RunID     string
	Tick      uint64
	Time      float64
	Component string
	Error     string
	Panicked  bool
	Forced    bool
}

// TickRow is one control cycle.
type TickRow struct {
	RunID    string
	Tick     uint64
	Duration float64
}

// TransitionRow is one state being entered by a state machine.
type TransitionRow struct {
	RunID   string
	Machine string
	State   string
	Elapsed float64
}

// Recorder writes failures, tick durations, and state transitions of a run.
// It is a failure sink and a hook at the same time, so it can be attached to
// the scheduler and to state machines.
type Recorder struct {
	writer Writer
	runID  string
	logger zerolog.Logger
}

// NewRecorder creates the recorder tables in w. An empty runID picks a new
// one.
func NewRecorder(w Writer, runID string, logger zerolog.Logger) *Recorder {
	if runID == "" {
		runID = xid.New().String()
	}

	w.CreateTable(FailureTable, FailureRow{})
	w.CreateTable(TickTable, TickRow{})
	w.CreateTable(TransitionTable, TransitionRow{})

	return &Recorder{writer: w, runID: runID, logger: logger}
}

// RunID identifies the rows of this run.
func (r *Recorder) RunID() string {
	return r.runID
}

// Report records a failure.
func (r *Recorder) Report(f scheduler.Failure) {
	row := FailureRow{
		RunID:     r.runID,
		Tick:      f.Tick,
		Time:      f.Time.Seconds(),
		Component: f.Component,
	}

	if f.Err != nil {
		row.Error = f.Err.Error()
	}

	var execErr *scheduler.ComponentExecutionError
	if errors.As(f.Err, &execErr) {
		row.Panicked = execErr.Panicked
	}

	row.Forced = f.Forced

	r.writer.InsertData(FailureTable, row)
}

// Func records the end of ticks and the states machines enter.
func (r *Recorder) Func(ctx hooking.HookCtx) {
	switch ctx.Pos {
	case scheduler.HookPosAfterTick:
		tick, _ := ctx.Item.(uint64)
		spent, _ := ctx.Detail.(time.Duration)

		r.writer.InsertData(TickTable, TickRow{
			RunID:    r.runID,
			Tick:     tick,
			Duration: spent.Seconds(),
		})
	case statemachine.HookPosStateEnter:
		state, _ := ctx.Item.(string)
		elapsed, _ := ctx.Detail.(time.Duration)

		row := TransitionRow{
			RunID:   r.runID,
			State:   state,
			Elapsed: elapsed.Seconds(),
		}

		if m, ok := ctx.Domain.(interface{ Name() string }); ok {
			row.Machine = m.Name()
		}

		r.writer.InsertData(TransitionTable, row)
	}
}

// Run flushes the buffered rows every interval until ctx is done, then
// flushes one last time.
func (r *Recorder) Run(ctx context.Context, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			r.flush()
			return
		case <-t.C:
			r.flush()
		}
	}
}

func (r *Recorder) flush() {
	if err := r.writer.Flush(); err != nil {
		r.logger.Error().Err(err).Msg("failed to flush recording")
	}
}

// Close flushes and closes the underlying writer.
func (r *Recorder) Close() error {
	return r.writer.Close()
}
