package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"courier/internal/courier"
)

var callTimeout time.Duration

var callCmd = &cobra.Command{
	Use:   "call <service> [args...]",
	Short: "Call a service on one of its live instances",
	Args:  cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		if err := runCall(args[0], args[1:]); err != nil {
			exitWithError(err)
		}
	},
}

func init() {
	callCmd.Flags().DurationVar(&callTimeout, "timeout", 30*time.Second, "how long to wait for the result")
}

func runCall(service string, rawArgs []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
	defer cancel()

	b, err := dialBroker(ctx, cfg)
	if err != nil {
		return err
	}

	opts, err := cfg.Options()
	if err != nil {
		return err
	}

	client := courier.NewClient(b, opts...)
	if err := client.Start(ctx); err != nil {
		return err
	}
	defer client.Close()

	callArgs := make([]any, len(rawArgs))
	for i, arg := range rawArgs {
		callArgs[i] = arg
	}

	results, err := client.Call(ctx, service, callArgs...)
	if err != nil {
		return fmt.Errorf("call to %s failed: %w", service, err)
	}

	out, err := json.Marshal(results)
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}
