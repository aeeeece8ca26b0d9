package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"courier/internal/courier"
	"courier/internal/logger"
	"courier/internal/telemetry"
)

var nodeCmd = &cobra.Command{
	Use:   "node",
	Short: "Run a courier node hosting the built-in services",
	Long: `Starts a node that registers the built-in ping and time services,
advertises them on the broker, and answers calls and direct messages until
interrupted.`,
	Run: func(cmd *cobra.Command, args []string) {
		if err := runNode(); err != nil {
			exitWithError(err)
		}
	},
}

func runNode() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	logger.SetConsoleMode(cfg.Logging.Console)
	if verbose {
		logger.SetLevel("debug")
	} else {
		logger.SetLevel(cfg.Logging.Level)
	}
	log := logger.GetLogger("cmd.node")

	ctx := context.Background()
	b, err := dialBroker(ctx, cfg)
	if err != nil {
		return err
	}

	opts, err := cfg.Options()
	if err != nil {
		return err
	}

	node := courier.NewNode(b, opts...)

	node.Register("ping", func(ctx context.Context, args []any) ([]any, error) {
		return args, nil
	})
	node.Register("time", func(ctx context.Context, args []any) ([]any, error) {
		return []any{time.Now().Format(time.RFC3339)}, nil
	})

	node.OnMessage(func(sender string, args []any) {
		log.Info().Str("sender", sender).Interface("args", args).Msg("Received direct message")
	})
	node.OnListening(func() {
		fmt.Printf("node %s listening\n", node.ID())
	})

	if err := node.Start(ctx); err != nil {
		return err
	}

	if cfg.Telemetry.Enabled {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", telemetry.MetricsHandler())
			if err := http.ListenAndServe(cfg.Telemetry.Addr, mux); err != nil {
				log.Error().Err(err).Msg("Metrics endpoint failed")
			}
		}()
		log.Info().Str("addr", cfg.Telemetry.Addr).Msg("Metrics endpoint enabled")
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	log.Info().Msg("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return node.Exit(shutdownCtx)
}
