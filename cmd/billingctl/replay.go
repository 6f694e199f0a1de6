package main

import (
	"errors"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/johnp2003/captify-ai/app"
	"github.com/johnp2003/captify-ai/app/config"
)

var replayCmd = &cobra.Command{
	Use:   "replay",
	Short: "Drain the reconciliation replay queue",
	Long: `Long-poll STRIPE_REPLAY_QUEUE_URL and re-apply every record until interrupted.
Records that fail again stay on the queue and reappear after the visibility timeout.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logr, err := loadConfig()
		if err != nil {
			return err
		}
		if err := checkReplayConfig(cfg); err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		deps, err := app.OpenDeps(ctx, cfg, logr)
		if err != nil {
			return err
		}
		defer deps.Close()

		if deps.Redis == nil || deps.Billing.ReplayQueue == nil {
			return errors.New("replay needs the shared Redis ledger and the replay queue")
		}
		return deps.Billing.ReplayQueue.Consume(ctx, deps.Billing.Reconciler.Replay)
	},
}

// checkReplayConfig rejects setups where a replayed record could grant twice. The server
// and this process must claim events in the same ledger, so a process-local one is not
// enough.
func checkReplayConfig(cfg *config.Config) error {
	if !cfg.Stripe.DedupEvents {
		return errors.New("replay requires STRIPE_DEDUP_EVENTS=true")
	}
	if cfg.Redis.Addr == "" {
		return errors.New("replay requires REDIS_ADDR: the event ledger must be shared with the server")
	}
	if cfg.Stripe.ReplayQueueURL == "" {
		return errors.New("STRIPE_REPLAY_QUEUE_URL is not set")
	}
	return nil
}
