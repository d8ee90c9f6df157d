package hooking

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// LogHook writes every hook invocation it sees to a zerolog logger. Positions
// can be filtered so that, for example, only failures are logged.
type LogHook struct {
	logger    zerolog.Logger
	level     zerolog.Level
	positions map[*HookPos]bool
}

// NewLogHook creates a LogHook logging at the given level. If positions are
// given, only those positions are logged.
func NewLogHook(
	logger zerolog.Logger,
	level zerolog.Level,
	positions ...*HookPos,
) *LogHook {
	h := &LogHook{
		logger: logger,
		level:  level,
	}

	if len(positions) > 0 {
		h.positions = make(map[*HookPos]bool, len(positions))
		for _, p := range positions {
			h.positions[p] = true
		}
	}

	return h
}

// Func logs the hook context.
func (h *LogHook) Func(ctx HookCtx) {
	if h.positions != nil && !h.positions[ctx.Pos] {
		return
	}

	evt := h.logger.WithLevel(h.level).Str("pos", ctx.Pos.Name)

	if ctx.Item != nil {
		evt = evt.Str("item", fmt.Sprint(ctx.Item))
	}

	switch d := ctx.Detail.(type) {
	case nil:
	case error:
		evt = evt.AnErr("detail", d)
	case time.Duration:
		evt = evt.Dur("detail", d)
	default:
		evt = evt.Interface("detail", d)
	}

	evt.Msg("hook")
}
