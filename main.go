package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"example.com/engagefeed/cmd/server"
	"example.com/engagefeed/cmd/worker"
	appkafka "example.com/engagefeed/internal/broker"
	"example.com/engagefeed/internal/engagement"
	config "example.com/engagefeed/internal/init"
	"example.com/engagefeed/internal/logger"
	"example.com/engagefeed/internal/middleware"
	"example.com/engagefeed/internal/store"
	"github.com/spf13/cobra"
)

var logg = logger.New()

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "engagefeed",
		Short:         "Follow-graph feeds, likes and notifications",
		SilenceUsage:  true,
		SilenceErrors: false,
		// Bare invocation runs whatever MODE selects.
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := setup()
			switch cfg.Mode {
			case "server":
				return runServer(cmd.Context(), cfg)
			case "worker":
				return runWorker(cmd.Context(), cfg)
			default:
				return fmt.Errorf("unknown mode: %s", cfg.Mode)
			}
		},
	}

	root.AddCommand(
		&cobra.Command{
			Use:   "server",
			Short: "Run the HTTP API",
			RunE: func(cmd *cobra.Command, args []string) error {
				return runServer(cmd.Context(), setup())
			},
		},
		&cobra.Command{
			Use:   "worker",
			Short: "Consume notification events from Kafka",
			RunE: func(cmd *cobra.Command, args []string) error {
				return runWorker(cmd.Context(), setup())
			},
		},
		&cobra.Command{
			Use:   "migrate",
			Short: "Create the keyspace and apply Cassandra migrations",
			RunE: func(cmd *cobra.Command, args []string) error {
				return store.Migrate(setup())
			},
		},
	)
	return root
}

// setup initializes application configuration and the log level.
func setup() *config.Config {
	cfg := config.Init()
	logger.SetLevel(cfg.LogLevel)
	return cfg
}

func kafkaConfig(cfg *config.Config) appkafka.KafkaConfig {
	return appkafka.KafkaConfig{
		Brokers:      []string{cfg.KafkaBroker},
		Topic:        cfg.KafkaTopic,
		Partition:    cfg.KafkaPartition,
		GroupID:      cfg.KafkaGroupID,
		WriteTimeout: cfg.KafkaWriteTO,
		ReadTimeout:  cfg.KafkaReadTO,
	}
}

// signalContext cancels on SIGINT or SIGTERM for graceful shutdown.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
}

func runServer(parent context.Context, cfg *config.Config) error {
	if cfg.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET must be set")
	}
	st, err := store.Open(cfg)
	if err != nil {
		return fmt.Errorf("store init failed: %w", err)
	}
	defer st.Close()

	// Direct mode writes notifications in-process; kafka mode hands them to the worker.
	var notifier engagement.Notifier
	switch cfg.NotifyMode {
	case "kafka":
		writer, err := appkafka.NewKafkaWriter(kafkaConfig(cfg))
		if err != nil {
			return fmt.Errorf("kafka writer init failed: %w", err)
		}
		defer writer.Close()
		notifier = appkafka.NewKafkaNotifier(writer)
	case "direct", "":
		notifier = engagement.StoreNotifier{Store: st}
	default:
		return fmt.Errorf("unknown notify mode: %s", cfg.NotifyMode)
	}

	engine := engagement.New(st, notifier, engagement.WithMaxFeedLimit(cfg.FeedMaxLimit))
	auth := middleware.NewAuthenticator(cfg.JWTSecret, cfg.TokenTTL)

	ctx, stop := signalContext(parent)
	defer stop()

	if err := server.Run(ctx, server.New(engine, auth), cfg); err != nil {
		return err
	}
	logg.Info("main", "Shutdown completed")
	return nil
}

func runWorker(parent context.Context, cfg *config.Config) error {
	st, err := store.Open(cfg)
	if err != nil {
		return fmt.Errorf("store init failed: %w", err)
	}

	reader := appkafka.NewKafkaReader(kafkaConfig(cfg))

	ctx, stop := signalContext(parent)
	defer stop()

	w := worker.New(st, reader, cfg.WorkerCount, 0)
	w.Run(ctx)
	if err := w.Close(); err != nil {
		return err
	}
	logg.Info("main", "Shutdown completed")
	return nil
}
