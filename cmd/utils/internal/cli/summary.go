package cli

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

// SalesSummaryOptions holds flags for the sales-summary command.
type SalesSummaryOptions struct {
	*RootOptions
	Rebuild bool
}

func NewSalesSummaryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SalesSummaryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "sales-summary",
		Short: "Print the current session's sales summary",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := opts.withTimeout(cmd)
			defer cancel()

			s, err := opts.client().SalesSummary(ctx, opts.Rebuild)
			if err != nil {
				return fmt.Errorf("sales summary: %w", err)
			}

			out := cmd.OutOrStdout()
			if opts.Format == "json" {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(s)
			}

			fmt.Fprintf(out, "Session:    %s\n", s.SessionID)
			if s.UpdatedAt > 0 {
				fmt.Fprintf(out, "Updated:    %s\n", time.Unix(s.UpdatedAt, 0).Format(time.RFC3339))
			}
			fmt.Fprintf(out, "Orders:     %d confirmed, %d cancelled, %d total\n", s.ConfirmedOrders, s.CancelledOrders, s.TotalOrders)
			fmt.Fprintf(out, "Gross:      %d %s\n", s.GrossSales, s.Currency)
			fmt.Fprintf(out, "Cancelled:  %d %s\n", s.CancelledAmount, s.Currency)
			fmt.Fprintf(out, "Net:        %d %s\n", s.NetSales, s.Currency)
			return nil
		},
	}

	cmd.Flags().BoolVar(&opts.Rebuild, "rebuild", false, "recompute the summary from the order log")

	return cmd
}
