package cmd

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"courier/internal/courier"
)

var sendCmd = &cobra.Command{
	Use:   "send <node-id> <text>",
	Short: "Send a one-way message to a node",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		if err := runSend(args[0], args[1]); err != nil {
			exitWithError(err)
		}
	},
}

func runSend(receiverID, text string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	b, err := dialBroker(ctx, cfg)
	if err != nil {
		return err
	}
	defer b.Close()

	opts, err := cfg.Options()
	if err != nil {
		return err
	}

	client := courier.NewClient(b, opts...)
	return client.Send(ctx, receiverID, text)
}
