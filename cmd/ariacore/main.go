// Command ariacore boots the cognitive runtime core described in spec.md:
// the skill registry, agent coordinator, heartbeat scheduler, session
// manager, and cognition pipeline, wired to a configurable store backend.
//
// Grounded on the teacher's cmd/nexus/main.go: a cobra root command built
// by a separate buildRootCmd (for testability), JSON structured logging
// to stderr, subcommands for serving and validating configuration.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/Najia-afk/aria-core/internal/audit"
	"github.com/Najia-afk/aria-core/internal/authtoken"
	"github.com/Najia-afk/aria-core/internal/cognition"
	"github.com/Najia-afk/aria-core/internal/config"
	"github.com/Najia-afk/aria-core/internal/coordinator"
	"github.com/Najia-afk/aria-core/internal/metrics"
	"github.com/Najia-afk/aria-core/internal/ratelimit"
	"github.com/Najia-afk/aria-core/internal/registry"
	"github.com/Najia-afk/aria-core/internal/router"
	"github.com/Najia-afk/aria-core/internal/scheduler"
	"github.com/Najia-afk/aria-core/internal/session"
	"github.com/Najia-afk/aria-core/internal/store"
	"github.com/Najia-afk/aria-core/internal/tracing"
	"github.com/Najia-afk/aria-core/pkg/errs"
	"github.com/Najia-afk/aria-core/pkg/types"
)

// sessionPruneJobName is the composite handler name (and scheduled job id)
// for the §4.4 session.prune(max_age_minutes) maintenance sweep.
const sessionPruneJobName = "session-prune"

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	rootCmd := buildRootCmd()
	if err := rootCmd.Execute(); err != nil {
		slog.Error("command execution failed", "error", err)
		os.Exit(1)
	}
}

// buildRootCmd creates the root command with all subcommands attached.
// Separated from main() to facilitate testing, matching the teacher's
// own buildRootCmd split.
func buildRootCmd() *cobra.Command {
	var configPath string

	rootCmd := &cobra.Command{
		Use:          "ariacore",
		Short:        "aria-core - cognitive runtime for a long-running autonomous agent",
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to YAML configuration file")

	rootCmd.AddCommand(buildServeCmd(&configPath), buildValidateCmd(&configPath))
	return rootCmd
}

func buildValidateCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate configuration, the tools descriptor, and the model catalog without starting the process",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			if cfg.ToolsDescriptorPath != "" {
				if _, err := config.LoadToolsDescriptor(cfg.ToolsDescriptorPath); err != nil {
					return err
				}
			}
			if cfg.ModelCatalogPath != "" {
				if _, err := config.LoadModelCatalog(cfg.ModelCatalogPath); err != nil {
					return err
				}
			}
			fmt.Fprintln(cmd.OutOrStdout(), "configuration is valid")
			return nil
		},
	}
}

func buildServeCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the core: registry, coordinator, scheduler, session manager, and cognition pipeline",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			return runServe(cmd.Context(), cfg)
		},
	}
}

// core bundles every long-lived component booted by `serve`, so tests and
// the signal-driven shutdown path share one struct.
type core struct {
	store     store.Store
	limiter   *ratelimit.Limiter
	audit     *audit.Logger
	registry  *registry.Registry
	coord     *coordinator.Coordinator
	routerCli *router.Client
	sessions  *session.Manager
	scheduler *scheduler.Scheduler
	pipeline  *cognition.Pipeline
	metrics   *metrics.Metrics
	tracer    *tracing.Tracer
	tokens    *authtoken.Service
	shutdown  func(context.Context) error
}

// buildCore wires every component per SPEC_FULL.md's ambient/domain stack,
// from a loaded Config. It does not start any background goroutine other
// than what each constructor already starts internally (audit.Logger's
// flush loop); the caller starts the scheduler explicitly.
func buildCore(cfg config.Config) (*core, error) {
	var st store.Store
	switch cfg.Store.Driver {
	case "", "memory":
		st = store.NewMemoryStore()
	case "postgres":
		poolCfg := store.DefaultPoolConfig()
		poolCfg.MaxOpenConns = cfg.Store.MaxOpenConns
		poolCfg.MaxIdleConns = cfg.Store.MaxIdleConns
		poolCfg.ConnMaxLifetime = cfg.Store.ConnMaxLifetime
		pg, err := store.NewPostgresStore(cfg.Store.DSN, poolCfg)
		if err != nil {
			return nil, err
		}
		st = pg
	default:
		return nil, errs.Configuration("unknown store driver %q", cfg.Store.Driver)
	}

	m := metrics.New()

	tracer, shutdown := tracing.New(tracing.Config{
		ServiceName:  cfg.Observability.ServiceName,
		Endpoint:     cfg.Observability.OTLPEndpoint,
		SamplingRate: 1.0,
	})
	if !cfg.Observability.TracingEnabled {
		tracer, shutdown = tracing.New(tracing.Config{ServiceName: cfg.Observability.ServiceName})
	}

	limiter := ratelimit.NewLimiter()
	auditLogger := audit.New(st.SkillInvocations(), audit.DefaultConfig(), slog.Default())
	reg := registry.New(limiter, auditLogger, registry.WithMetrics(m))
	coord := coordinator.New(reg, coordinator.WithMetrics(m))

	modelCatalog := &types.ModelCatalog{Models: map[string]types.ModelMeta{}}
	if cfg.ModelCatalogPath != "" {
		loaded, err := config.LoadModelCatalog(cfg.ModelCatalogPath)
		if err != nil {
			return nil, err
		}
		modelCatalog = loaded
	}
	routerClient := router.New(router.Config{
		BaseURL:          cfg.Router.BaseURL,
		APIKey:           cfg.Router.APIKey,
		AnthropicBaseURL: cfg.Router.AnthropicBaseURL,
		AnthropicAPIKey:  cfg.Router.AnthropicAPIKey,
		Timeout:          cfg.Router.Timeout,
	}, modelCatalog)

	sessMgr := session.New(st.Sessions(), st.Memories(), st.Activities(),
		session.WithCheckpointEvery(cfg.Session.CheckpointEveryMessages),
		session.WithReconcileWindow(cfg.Session.ReconcileWindow),
	)

	sched := scheduler.New(st.Jobs(), reg,
		scheduler.WithActivities(st.Activities()),
		scheduler.WithTickInterval(cfg.Scheduler.TickInterval),
		scheduler.WithHardTimeout(cfg.Scheduler.HardTimeout),
		scheduler.WithMetrics(m),
		scheduler.WithCompositeHandler(sessionPruneJobName, func(ctx context.Context, job *types.ScheduledJob) (any, error) {
			pruned, err := sessMgr.Prune(ctx, cfg.Session.PruneMaxAgeMinutes)
			return map[string]any{"pruned": pruned}, err
		}),
	)

	budget := cognition.NewDailyTokenBudget(cfg.Router.DailyTokenBudget, nil)
	modelRouter := cognition.NewModelRouter(routerClient, modelCatalog, budget)

	cogCfg := cognition.DefaultConfig()
	if cfg.Cognition.CompressionTriggerCount > 0 {
		cogCfg.CompressionEvery = cfg.Cognition.CompressionTriggerCount
	}
	pipeline := cognition.New(st, sessMgr, coord, routerClient, modelRouter, cogCfg, cognition.WithMetrics(m))

	tokens := authtoken.New(cfg.Auth.JWTSigningKey, cfg.Auth.JWTTTL)

	return &core{
		store:     st,
		limiter:   limiter,
		audit:     auditLogger,
		registry:  reg,
		coord:     coord,
		routerCli: routerClient,
		sessions:  sessMgr,
		scheduler: sched,
		pipeline:  pipeline,
		metrics:   m,
		tracer:    tracer,
		tokens:    tokens,
		shutdown:  shutdown,
	}, nil
}

func runServe(ctx context.Context, cfg config.Config) error {
	c, err := buildCore(cfg)
	if err != nil {
		return err
	}
	defer c.store.Close()
	defer c.audit.Close()
	defer c.shutdown(context.Background())

	if err := c.scheduler.Load(ctx); err != nil {
		return err
	}
	if err := c.scheduler.RegisterJob(ctx, &types.ScheduledJob{
		JobID:    sessionPruneJobName,
		Schedule: "every 1h",
		Command:  types.Command{Composite: sessionPruneJobName},
		Delivery: types.DeliveryErrorOnly,
		Enabled:  true,
	}); err != nil {
		return err
	}

	if addr := cfg.Observability.MetricsAddr; addr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metricsSrv := &http.Server{Addr: addr, Handler: mux}
		go func() {
			if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				slog.Error("metrics server stopped", "error", err)
			}
		}()
		defer metricsSrv.Close()
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := c.scheduler.Start(ctx); err != nil {
		return err
	}
	slog.Info("aria-core serving")

	<-ctx.Done()
	slog.Info("shutting down")
	c.scheduler.Stop()
	return nil
}
