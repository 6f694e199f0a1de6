package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/johnp2003/captify-ai/app/billing"
)

var plansCmd = &cobra.Command{
	Use:   "plans",
	Short: "Print the price to plan table",
	Long:  `Print the STRIPE_PLANS table the webhook uses to turn a price id into a plan and points grant`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := loadConfig()
		if err != nil {
			return err
		}
		plans, err := billing.ParsePlanTable(cfg.Stripe.Plans)
		if err != nil {
			return fmt.Errorf("STRIPE_PLANS: %w", err)
		}
		return writePlans(cmd.OutOrStdout(), plans)
	},
}

func writePlans(w io.Writer, plans billing.PlanTable) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "PRICE ID\tPLAN\tPOINTS")
	for _, id := range plans.PriceIDs() {
		p := plans[id]
		fmt.Fprintf(tw, "%s\t%s\t%d\n", id, p.Name, p.Points)
	}
	return tw.Flush()
}
