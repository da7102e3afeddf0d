package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

// ConfirmOptions guards destructive commands.
type ConfirmOptions struct {
	*RootOptions
	Yes bool
}

func NewSessionEndCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ConfirmOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "session-end",
		Short: "End the current sales session",
		Long: `End the current sales session. Active orders move to the archive
and every terminal clears its cart and call list.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !opts.Yes {
				return fmt.Errorf("refusing to end the session without --yes")
			}
			ctx, cancel := opts.withTimeout(cmd)
			defer cancel()
			if err := opts.client().EndSession(ctx); err != nil {
				return fmt.Errorf("end session: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Session ended")
			return nil
		},
	}
	cmd.Flags().BoolVarP(&opts.Yes, "yes", "y", false, "confirm")
	return cmd
}

func NewResetCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ConfirmOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Wipe all orders, sessions and settings on the server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !opts.Yes {
				return fmt.Errorf("refusing to reset the system without --yes")
			}
			ctx, cancel := opts.withTimeout(cmd)
			defer cancel()
			if err := opts.client().ResetSystem(ctx); err != nil {
				return fmt.Errorf("reset system: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "System reset")
			return nil
		},
	}
	cmd.Flags().BoolVarP(&opts.Yes, "yes", "y", false, "confirm")
	return cmd
}

func NewTimeSyncCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "time-sync",
		Short: "Set the server clock to this machine's time",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := rootOpts.withTimeout(cmd)
			defer cancel()
			now := time.Now()
			if err := rootOpts.client().SetTime(ctx, now.Unix()); err != nil {
				return fmt.Errorf("time sync: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Server clock set to %s\n", now.Format(time.RFC3339))
			return nil
		},
	}
}

func NewPaperReplacedCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "paper-replaced",
		Short: "Tell the printer the paper roll was replaced and release held jobs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := rootOpts.withTimeout(cmd)
			defer cancel()
			if err := rootOpts.client().PaperReplaced(ctx); err != nil {
				return fmt.Errorf("paper replaced: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Printer resumed")
			return nil
		},
	}
}

// APCycleOptions holds flags for the ap-cycle command.
type APCycleOptions struct {
	*RootOptions
	ResumeAfter time.Duration
}

func NewAPCycleCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &APCycleOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "ap-cycle",
		Short: "Restart the server's Wi-Fi access point",
		Long: `Restart the server's Wi-Fi access point. Terminals lose their link
until the AP comes back after --resume-after.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.ResumeAfter < time.Second {
				return fmt.Errorf("--resume-after must be at least 1s")
			}
			ctx, cancel := opts.withTimeout(cmd)
			defer cancel()
			secs := int(opts.ResumeAfter / time.Second)
			if err := opts.client().CycleAccessPoint(ctx, secs); err != nil {
				return fmt.Errorf("ap cycle: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Access point restarting, back in %ds\n", secs)
			return nil
		},
	}
	cmd.Flags().DurationVar(&opts.ResumeAfter, "resume-after", 30*time.Second, "how long the AP stays down")
	return cmd
}
