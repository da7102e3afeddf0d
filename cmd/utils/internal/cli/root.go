// Package cli implements kds-utils, one-shot operator commands against a
// terminal's embedded server.
package cli

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/appetiteclub/kds/pkg/remote"
	"github.com/aquamarinepk/aqm"
	"github.com/spf13/cobra"
)

const (
	appName    = "kds-utils"
	appVersion = "0.1.0"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	RemoteURL string
	Timeout   time.Duration
	LogLevel  string
	Format    string // "json" | "text"
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   appName,
		Short: "KDS operator utilities",
		Long: `One-shot operations against a KDS terminal's embedded server:
exports, session end, system reset, clock sync and device maintenance.`,
		Version:       appVersion,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			if opts.RemoteURL == "" {
				return fmt.Errorf("--remote is required")
			}
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&opts.RemoteURL, "remote", envOr("KDS_REMOTE_URL", "http://192.168.4.1"), "embedded server base URL")
	cmd.PersistentFlags().DurationVar(&opts.Timeout, "timeout", remote.DefaultTimeout, "request timeout")
	cmd.PersistentFlags().StringVar(&opts.LogLevel, "log-level", envOr("KDS_LOG_LEVEL", "info"), "log level")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")

	cmd.AddCommand(NewExportCommand(opts))
	cmd.AddCommand(NewSalesSummaryCommand(opts))
	cmd.AddCommand(NewSessionEndCommand(opts))
	cmd.AddCommand(NewResetCommand(opts))
	cmd.AddCommand(NewTimeSyncCommand(opts))
	cmd.AddCommand(NewPaperReplacedCommand(opts))
	cmd.AddCommand(NewAPCycleCommand(opts))
	cmd.AddCommand(NewWatchCommand(opts))

	return cmd
}

func (o *RootOptions) logger() aqm.Logger {
	return aqm.NewLogger(o.LogLevel)
}

func (o *RootOptions) client() *remote.Client {
	return remote.NewClient(o.RemoteURL, &http.Client{Timeout: o.Timeout}, o.logger())
}

// withTimeout bounds a command by the request timeout.
func (o *RootOptions) withTimeout(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithTimeout(ctx, o.Timeout)
}

func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
