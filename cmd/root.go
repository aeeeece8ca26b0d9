package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"courier/internal/broker/redis"
	"courier/internal/courier"
	"courier/internal/logger"
)

var (
	verbose    bool
	configPath string
	brokerAddr string
)

var rootCmd = &cobra.Command{
	Use:   "courier",
	Short: "Courier - peer-to-peer RPC and messaging over a shared broker",
	Long: `Courier runs peer nodes that register named services, advertise their
liveness on a shared broker, and exchange calls and direct messages with
other nodes through per-node listen channels.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logger.SetSilentMode(!verbose)
		if verbose {
			logger.SetLevel("debug")
		}
	},
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config file")
	rootCmd.PersistentFlags().StringVar(&brokerAddr, "broker", "", "broker address (overrides config)")

	rootCmd.AddCommand(nodeCmd)
	rootCmd.AddCommand(callCmd)
	rootCmd.AddCommand(sendCmd)
}

// loadConfig reads the configured file, or falls back to defaults, and
// applies flag overrides.
func loadConfig() (*courier.Config, error) {
	var (
		cfg *courier.Config
		err error
	)
	if configPath != "" {
		cfg, err = courier.LoadConfig(configPath)
		if err != nil {
			return nil, err
		}
	} else {
		cfg = courier.NewDefaultConfig()
	}

	if brokerAddr != "" {
		cfg.Broker.Addr = brokerAddr
	}
	return cfg, nil
}

// dialBroker connects both broker connections from a config.
func dialBroker(ctx context.Context, cfg *courier.Config) (*redis.Provider, error) {
	return redis.Dial(ctx, redis.Options{
		Addr:     cfg.Broker.Addr,
		Password: cfg.Broker.Password,
		DB:       cfg.Broker.DB,
	})
}

func exitWithError(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}
