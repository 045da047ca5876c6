package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/got-is-bad-at-git/Kerbalism/internal/config"
	"github.com/got-is-bad-at-git/Kerbalism/internal/logging"
	"github.com/got-is-bad-at-git/Kerbalism/internal/notify"
	"github.com/got-is-bad-at-git/Kerbalism/internal/observability"
	"github.com/got-is-bad-at-git/Kerbalism/internal/persistence"
	"github.com/got-is-bad-at-git/Kerbalism/internal/scenario"
	"github.com/got-is-bad-at-git/Kerbalism/internal/server"
	"github.com/got-is-bad-at-git/Kerbalism/internal/sim"
	"github.com/got-is-bad-at-git/Kerbalism/timectrl"
)

func (c *cli) newSimulateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Run a scenario and print the final vessel states",
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("metrics-addr") {
				c.v.Set("metrics.enabled", true)
			}
			if cmd.Flags().Changed("grpc-addr") {
				c.v.Set("server.enabled", true)
			}
			cfg, err := c.load()
			if err != nil {
				return err
			}
			return runSimulation(cmd.Context(), cfg, cmd.OutOrStdout())
		},
	}

	flags := cmd.Flags()
	flags.Duration("duration", 0, "simulation time to run; 0 runs until interrupted")
	flags.Duration("tick", 0, "simulation time step")
	flags.String("mode", "", "clock mode (realtime, accelerated)")
	flags.Float64("warp", 0, "time warp rate; overrides the scenario")
	flags.String("events", "", `write change notifications as JSON lines ("-" for stdout)`)
	flags.String("db", "", "sqlite file for persisted part fields; empty keeps them in memory")
	flags.String("metrics-addr", "", "serve Prometheus /metrics on this address")
	flags.String("grpc-addr", "", "serve gRPC health and vessel listing on this address")
	c.bind(flags, "duration", "duration")
	c.bind(flags, "tick", "tick")
	c.bind(flags, "mode", "mode")
	c.bind(flags, "warp_rate", "warp")
	c.bind(flags, "events.path", "events")
	c.bind(flags, "persistence.path", "db")
	c.bind(flags, "metrics.address", "metrics-addr")
	c.bind(flags, "server.address", "grpc-addr")
	return cmd
}

// session holds the components built from a config, shared by simulate and
// inspect.
type session struct {
	cfg       *config.Config
	log       logging.Logger
	scenario  *scenario.Scenario
	sim       *sim.Simulator
	registry  *prometheus.Registry
	rpc       *observability.RPCCollector
	store     *persistence.Store
	sink      *notify.JSONLSink
	closers   []func() error
	shutdowns []func(context.Context) error
}

func newSession(ctx context.Context, cfg *config.Config, out io.Writer) (*session, error) {
	if cfg.Scenario == "" {
		return nil, errors.New("no scenario given; use --scenario or VESSELSIM_SCENARIO")
	}
	logCfg := cfg.LoggerConfig()
	logCfg.Output = os.Stderr
	sess := &session{cfg: cfg, log: logging.New(logCfg), registry: prometheus.NewRegistry()}

	ok := false
	defer func() {
		if !ok {
			sess.close(ctx)
		}
	}()

	sc, err := scenario.LoadFile(cfg.Scenario)
	if err != nil {
		return nil, err
	}
	sess.scenario = sc

	shutdown, err := observability.InitTracing(ctx, cfg.Tracing, sess.log)
	if err != nil {
		return nil, fmt.Errorf("init tracing: %w", err)
	}
	sess.shutdowns = append(sess.shutdowns, shutdown)

	simMetrics, err := observability.NewSimCollector(sess.registry)
	if err != nil {
		return nil, err
	}
	sess.rpc, err = observability.NewRPCCollector(sess.registry)
	if err != nil {
		return nil, err
	}
	sess.rpc.SetScenarioCounts(len(sc.Bodies), len(sc.Homes), len(sc.Vessels))

	sess.store, err = persistence.Open(cfg.Persistence.Path, sess.log)
	if err != nil {
		return nil, err
	}
	sess.closers = append(sess.closers, sess.store.Close)

	bus := notify.NewBus(simMetrics)
	if err := sess.openEvents(cfg.Events.Path, out, bus); err != nil {
		return nil, err
	}

	mode := timectrl.Accelerated
	if cfg.Mode == "realtime" {
		mode = timectrl.RealTime
	}
	clock := timectrl.NewTimeController(sc.Epoch, cfg.Tick, mode)

	sess.sim, err = sim.New(ctx, sc, clock,
		sim.WithLogger(sess.log),
		sim.WithTickMetrics(simMetrics),
		sim.WithCacheMetrics(simMetrics),
		sim.WithPartStore(sess.store),
		sim.WithBus(bus),
		sim.WithThresholds(cfg.Thresholds()),
		sim.WithEnvironmentParams(cfg.EnvironmentParams()),
		sim.WithPlasmaSpeed(cfg.PlasmaSpeed),
	)
	if err != nil {
		return nil, err
	}
	if cfg.WarpRate > 0 {
		clock.SetWarpRate(cfg.WarpRate)
	}
	ok = true
	return sess, nil
}

func (sess *session) openEvents(path string, stdout io.Writer, bus *notify.Bus) error {
	var w io.Writer
	switch path {
	case "":
		return nil
	case "-":
		w = stdout
	default:
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("open events file: %w", err)
		}
		sess.closers = append(sess.closers, f.Close)
		w = f
	}
	sess.sink = notify.NewJSONLSink(w)
	bus.Subscribe(sess.sink.Listen)
	return nil
}

func (sess *session) close(ctx context.Context) {
	for i := len(sess.closers) - 1; i >= 0; i-- {
		if err := sess.closers[i](); err != nil {
			sess.log.Warn(ctx, "close failed", logging.Err(err))
		}
	}
	for _, fn := range sess.shutdowns {
		observability.ShutdownWithTimeout(context.WithoutCancel(ctx), fn, sess.log)
	}
}

func runSimulation(ctx context.Context, cfg *config.Config, out io.Writer) error {
	sess, err := newSession(ctx, cfg, out)
	if err != nil {
		return err
	}
	defer sess.close(ctx)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	if cfg.Metrics.Enabled {
		srv := serveMetrics(runCtx, cfg.Metrics.Address, sess.rpc, sess.log)
		defer shutdownHTTP(ctx, srv)
	}
	var grpcDone chan error
	if cfg.Server.Enabled {
		lis, err := net.Listen("tcp", cfg.Server.Address)
		if err != nil {
			return fmt.Errorf("listen %s: %w", cfg.Server.Address, err)
		}
		grpcDone = make(chan error, 1)
		srv := server.New(sess.sim, sess.log, server.WithCollector(sess.rpc))
		go func() { grpcDone <- srv.Serve(runCtx, lis) }()
	}

	sess.log.Info(ctx, "simulation started",
		logging.Duration("duration", cfg.Duration),
		logging.Duration("tick", cfg.Tick),
		logging.String("mode", cfg.Mode),
		logging.Float("warp", sess.sim.Clock().WarpRate()),
	)
	start := time.Now()
	<-sess.sim.Run(runCtx, cfg.Duration)
	last := sess.sim.LastTick()
	sess.log.Info(ctx, "simulation finished",
		logging.Duration("wall", time.Since(start)),
		logging.String("sim_time", sess.sim.Clock().Now().Format(time.RFC3339)),
		logging.Int("refreshed", last.Refreshed),
		logging.Int("failed", last.Failed),
	)

	cancel()
	if grpcDone != nil {
		if err := <-grpcDone; err != nil {
			sess.log.Warn(ctx, "gRPC server exited", logging.Err(err))
		}
	}
	if sess.sink != nil {
		if err := sess.sink.Err(); err != nil {
			return err
		}
	}
	if cfg.Events.Path == "-" {
		return nil
	}
	return printSnapshots(out, sess.sim.NamedSnapshots())
}

func serveMetrics(ctx context.Context, addr string, collector *observability.RPCCollector, log logging.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", collector.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Warn(ctx, "metrics server exited", logging.Err(err))
		}
	}()
	log.Info(ctx, "serving Prometheus metrics", logging.String("addr", addr))
	return srv
}

func shutdownHTTP(ctx context.Context, srv *http.Server) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(ctx)
}
