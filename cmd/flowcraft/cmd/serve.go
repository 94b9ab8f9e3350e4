package cmd

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/flowcraft/flowcraft/cmd/flowcraft/config"
	"github.com/flowcraft/flowcraft/internal/engine/builtins"
	"github.com/flowcraft/flowcraft/internal/engine/evaluator"
	"github.com/flowcraft/flowcraft/internal/engine/executor"
	"github.com/flowcraft/flowcraft/internal/engine/runtime"
	"github.com/flowcraft/flowcraft/internal/engine/scheduler"
	httpserver "github.com/flowcraft/flowcraft/internal/infra/http"
	"github.com/flowcraft/flowcraft/internal/infra/http/handlers"
	"github.com/flowcraft/flowcraft/internal/infra/monitoring"
	"github.com/flowcraft/flowcraft/internal/infra/persistence/postgres"
	"github.com/flowcraft/flowcraft/internal/infra/tracing"
	"github.com/flowcraft/flowcraft/internal/pkg/eventbus"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the control-plane HTTP server",
	RunE:  runServe,
}

func runServe(_ *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	ctx := context.Background()

	pool, err := postgres.NewPool(ctx, postgres.Config{
		Host:     cfg.Database.Host,
		Port:     cfg.Database.Port,
		User:     cfg.Database.User,
		Password: cfg.Database.Password,
		Database: cfg.Database.Database,
		SSLMode:  cfg.Database.SSLMode,
	})
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer postgres.Close(pool)

	dsn := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		cfg.Database.User, cfg.Database.Password, cfg.Database.Host, cfg.Database.Port, cfg.Database.Database, cfg.Database.SSLMode)
	if err := postgres.Migrate(dsn); err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}

	eventStore := postgres.NewEventStore(pool)
	checkpoints := postgres.NewCheckpointRepository(pool)

	bus := eventbus.New()
	bridgeEventStore(bus, eventStore)

	metrics := monitoring.NewMetrics("flowcraft")
	metrics.Attach(bus)

	if cfg.Tracing.Enabled {
		if _, err := tracing.NewProvider(ctx, cfg.Tracing.CollectorEndpoint, "flowcraft"); err != nil {
			log.Printf("tracing disabled: failed to start exporter: %v", err)
		} else {
			tracing.NewTracer("flowcraft").Attach(bus)
		}
	}

	registry := executor.NewRegistry()
	builtins.Register(registry)

	blueprints := handlers.NewBlueprintRegistry()
	rt := runtime.New(registry, evaluator.NewPropertyPath(), bus, blueprints)

	sched := scheduler.New(rt, 1*time.Second, log.Default())
	rt.Scheduler = sched

	schedCtx, cancelSched := context.WithCancel(ctx)
	defer cancelSched()
	go sched.Start(schedCtx)

	workflows := handlers.NewWorkflowHandler(rt, blueprints, checkpointAdapter{repo: checkpoints})
	e := httpserver.NewServer(httpserver.Config{
		ServiceName: "flowcraft",
		JWTSecret:   cfg.Auth.Secret,
		AuthEnabled: cfg.Auth.Enabled,
	}, workflows)

	go func() {
		log.Printf("flowcraft listening on %s", cfg.ServerAddr())
		if err := e.Start(cfg.ServerAddr()); err != nil {
			log.Printf("server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("shutting down gracefully")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return e.Shutdown(shutdownCtx)
}

// bridgeEventStore appends every FlowcraftEvent to the Postgres event store
// as it's published, giving each execution a durable, replayable history
// independent of whatever happens to the in-memory WorkflowState.
func bridgeEventStore(bus *eventbus.EventBus, store *postgres.EventStore) {
	bus.Subscribe("*", func(ctx context.Context, evt eventbus.Event) error {
		return store.Append(ctx, evt.BlueprintID(), evt.ExecutionID(), []eventbus.Event{evt})
	})
}
