package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os/signal"
	"syscall"

	"github.com/appetiteclub/kds/pkg"
	"github.com/appetiteclub/kds/pkg/event"
	"github.com/spf13/cobra"
)

// WatchOptions holds flags for the watch command.
type WatchOptions struct {
	*RootOptions
	NATSURL string
	Topic   string
}

func NewWatchCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &WatchOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Print state change notifications relayed by terminals",
		Args:  cobra.NoArgs,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.NATSURL, "nats", envOr("KDS_NATS_URL", "nats://localhost:4222"), "NATS server URL")
	cmd.Flags().StringVar(&opts.Topic, "topic", event.StateTopic, "subject to watch")

	return cmd
}

func runWatch(cmd *cobra.Command, opts *WatchOptions) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sub, err := pkg.NewNATSSubscriber(opts.NATSURL)
	if err != nil {
		return err
	}
	defer sub.Close()

	logger := opts.logger()
	out := cmd.OutOrStdout()
	handler := func(ctx context.Context, msg []byte) error {
		return printStateEvent(out, opts.Format, msg)
	}
	onErr := func(err error) {
		logger.Error("cannot print state event", "error", err)
	}
	if err := sub.Subscribe(ctx, opts.Topic, handler, onErr); err != nil {
		return err
	}

	fmt.Fprintf(cmd.ErrOrStderr(), "Watching %s on %s\n", opts.Topic, opts.NATSURL)
	<-ctx.Done()
	return nil
}

func printStateEvent(out io.Writer, format string, msg []byte) error {
	var ev event.StateChangedEvent
	if err := json.Unmarshal(msg, &ev); err != nil {
		return fmt.Errorf("decode state event: %w", err)
	}
	if format == "json" {
		_, err := fmt.Fprintf(out, "%s\n", msg)
		return err
	}
	status := "offline"
	if ev.Online {
		status = "online"
	}
	_, err := fmt.Fprintf(out, "%s %-12s rev=%-6d page=%-8s session=%s %s\n",
		ev.OccurredAt.Format("15:04:05"), ev.TerminalID, ev.Revision, ev.Page, ev.SessionID, status)
	return err
}
