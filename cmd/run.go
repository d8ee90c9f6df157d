package cmd

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/pkg/browser"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"github.com/sarchlab/magicbot/config"
	"github.com/sarchlab/magicbot/datarecording"
	"github.com/sarchlab/magicbot/hooking"
	"github.com/sarchlab/magicbot/kvstore"
	"github.com/sarchlab/magicbot/logging"
	"github.com/sarchlab/magicbot/monitoring"
	"github.com/sarchlab/magicbot/robot"
	"github.com/sarchlab/magicbot/scheduler"
	"github.com/sarchlab/magicbot/statemachine"
	"github.com/sarchlab/magicbot/timing"
	"github.com/spf13/cobra"
	"github.com/tebeka/atexit"
)

type runFlags struct {
	configPath string
	envFiles   []string
	mode       string
	duration   time.Duration
	open       bool
}

func newRunCommand(p Program) *cobra.Command {
	f := runFlags{}

	c := &cobra.Command{
		Use:   "run",
		Short: "Run the control loop.",
		Long: "`run` runs the control loop until interrupted. The mode can be " +
			"changed while running through the monitor.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(f.configPath, f.envFiles...)
			if err != nil {
				return err
			}

			if f.open {
				cfg.Monitor.Enabled = true
			}

			return run(cmd.Context(), p, cfg, f)
		},
	}

	c.Flags().StringVarP(&f.configPath, "config", "c", "",
		"TOML configuration file")
	c.Flags().StringSliceVar(&f.envFiles, "env", []string{".env"},
		".env files to load")
	c.Flags().StringVar(&f.mode, "mode", robot.ModeDisabled.String(),
		"initial mode: disabled, auto, teleop, or test")
	c.Flags().DurationVar(&f.duration, "duration", 0,
		"stop after this long, 0 runs until interrupted")
	c.Flags().BoolVar(&f.open, "open", false,
		"start the monitor and open it in a browser")

	return c
}

type session struct {
	logger   zerolog.Logger
	registry *prometheus.Registry
	builder  robot.Builder
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	closers  []func() error
}

func run(ctx context.Context, p Program, cfg config.Config, f runFlags) error {
	mode, err := robot.ParseMode(f.mode)
	if err != nil {
		return err
	}

	logging.ConfigureRuntime()
	if lvl, ok := logging.ParseLevel(cfg.LogLevel); ok {
		logging.SetLevel(lvl)
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if f.duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.duration)
		defer cancel()
	}

	ctx, cancel := context.WithCancel(ctx)

	clock := timing.NewMonotonicClock()
	s := &session{
		logger:   logging.For(p.Name),
		registry: prometheus.NewRegistry(),
		cancel:   cancel,
	}
	s.builder = robot.MakeBuilder().
		WithClock(clock).
		WithNamespace(cfg.Namespace).
		WithCompetition(cfg.Competition).
		WithReportInterval(cfg.ErrorReportInterval).
		WithLogger(s.logger)

	defer s.close()

	if err := s.setUp(ctx, cfg); err != nil {
		return err
	}

	r, err := s.builder.Build(p.Declare(clock))
	if err != nil {
		return err
	}

	r.SetMode(mode)

	if cfg.Monitor.Enabled {
		if err := s.startMonitor(r, cfg, f.open); err != nil {
			return err
		}
	}

	err = r.Run(ctx, cfg.LoopPeriod)

	stats := r.LoopStats()
	s.logger.Info().
		Uint64("ticks", stats.Ticks).
		Uint64("overruns", stats.Overruns).
		Dur("longest", stats.Longest).
		Msg("robot stopped")

	if errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded) {
		return nil
	}

	return err
}

func (s *session) setUp(ctx context.Context, cfg config.Config) error {
	s.registry.MustRegister(collectors.NewGoCollector())

	collector := monitoring.NewCollector("magicbot")
	if err := collector.Register(s.registry); err != nil {
		return err
	}

	s.builder = s.builder.
		WithHook(collector).
		WithFailureSink(collector).
		WithHook(hooking.NewLogHook(s.logger, zerolog.DebugLevel,
			statemachine.HookPosStateEnter,
			statemachine.HookPosDone,
			scheduler.HookPosFailure))

	if cfg.Redis.Addr != "" {
		store := kvstore.DialRedis(cfg.Redis.Addr, cfg.Redis.Prefix,
			kvstore.WithRedisLogger(s.logger))
		s.builder = s.builder.WithStore(store)
		s.goRun(func() { store.Run(ctx, cfg.Redis.SyncInterval) })
	}

	if cfg.Recording.Enabled {
		w, err := datarecording.NewWriter(cfg.Recording.File)
		if err != nil {
			return err
		}

		rec := datarecording.NewRecorder(w, "", s.logger)
		s.builder = s.builder.WithHook(rec).WithFailureSink(rec)
		s.goRun(func() { rec.Run(ctx, cfg.Recording.FlushInterval) })
		s.closers = append(s.closers, rec.Close)

		s.logger.Info().Str("run", rec.RunID()).Msg("recording")
	}

	return nil
}

func (s *session) startMonitor(
	r *robot.Robot,
	cfg config.Config,
	open bool,
) error {
	m := monitoring.NewMonitor().
		WithLogger(s.logger).
		WithAssetDir(cfg.Monitor.AssetDir)
	if cfg.Monitor.Port != 0 {
		m.WithPortNumber(cfg.Monitor.Port)
	}

	m.RegisterRobot(r)
	m.RegisterGatherer(s.registry)

	url, err := m.StartServer()
	if err != nil {
		return err
	}

	stop := func() error {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()

		return m.Stop(ctx)
	}
	s.closers = append(s.closers, stop)
	atexit.Register(func() { _ = stop() })

	if open {
		if err := browser.OpenURL(url); err != nil {
			s.logger.Warn().Err(err).Msg("failed to open browser")
		}
	}

	return nil
}

func (s *session) goRun(fn func()) {
	s.wg.Add(1)

	go func() {
		defer s.wg.Done()
		fn()
	}()
}

// close stops the background loops, waits for them, and then releases their
// resources.
func (s *session) close() {
	s.cancel()
	s.wg.Wait()

	for _, c := range s.closers {
		if err := c(); err != nil {
			s.logger.Error().Err(err).Msg("shutdown failed")
		}
	}
}
