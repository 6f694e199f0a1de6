package main

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/spf13/cobra"

	"github.com/johnp2003/captify-ai/app"
	"github.com/johnp2003/captify-ai/app/billing"
)

var (
	reconcileUser         string
	reconcileSubscription string
	reconcileEvent        string
	reconcileTimeout      time.Duration
)

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Apply a completed checkout by hand",
	Long: `Look up a Stripe subscription, write it for the user and grant the plan's points.
With --event the event id is claimed first, so an event that was already applied is skipped.
Without it the grant is applied unconditionally.`,
	Example: `  # Re-run a delivery Stripe gave up on
  billingctl reconcile --user user_2abc --subscription sub_123 --event evt_1Pq`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if reconcileUser == "" || reconcileSubscription == "" {
			return errors.New("--user and --subscription are required")
		}
		cfg, logr, err := loadConfig()
		if err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), reconcileTimeout)
		defer cancel()

		deps, err := app.OpenDeps(ctx, cfg, logr)
		if err != nil {
			return err
		}
		defer deps.Close()

		in := billing.ApplyInput{
			EventID:        reconcileEvent,
			EventType:      billing.EventCheckoutCompleted,
			UserID:         reconcileUser,
			SubscriptionID: reconcileSubscription,
		}
		var res billing.Result
		if reconcileEvent != "" {
			res, err = deps.Billing.Reconciler.ApplyOnce(ctx, in)
		} else {
			res, err = deps.Billing.Reconciler.Apply(ctx, in)
		}
		if err != nil {
			return err
		}

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	},
}

func init() {
	reconcileCmd.Flags().StringVar(&reconcileUser, "user", "", "user id (the checkout's client_reference_id)")
	reconcileCmd.Flags().StringVar(&reconcileSubscription, "subscription", "", "Stripe subscription id")
	reconcileCmd.Flags().StringVar(&reconcileEvent, "event", "", "Stripe event id to claim before applying")
	reconcileCmd.Flags().DurationVar(&reconcileTimeout, "timeout", time.Minute, "overall timeout")
}
