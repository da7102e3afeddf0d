package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

// ExportOptions holds flags for the export command.
type ExportOptions struct {
	*RootOptions
	Output string
}

var exportKinds = map[string]string{
	"csv":      "sales CSV",
	"snapshot": "full state snapshot (JSON)",
	"lite":     "lightweight sales summary",
}

func NewExportCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ExportOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "export <csv|snapshot|lite>",
		Short: "Download an export from the server",
		Long: `Download an export from the server.

Example:
  kds-utils export csv -o sales.csv
  kds-utils export snapshot > snapshot.json`,
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"csv", "snapshot", "lite"},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExport(cmd, opts, args[0])
		},
	}

	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "write to file instead of stdout")

	return cmd
}

func runExport(cmd *cobra.Command, opts *ExportOptions, kind string) error {
	if _, ok := exportKinds[kind]; !ok {
		return fmt.Errorf("unknown export %q", kind)
	}

	ctx, cancel := opts.withTimeout(cmd)
	defer cancel()

	var w io.Writer = cmd.OutOrStdout()
	if opts.Output != "" {
		f, err := os.Create(opts.Output)
		if err != nil {
			return fmt.Errorf("create %s: %w", opts.Output, err)
		}
		defer f.Close()
		w = f
	}

	c := opts.client()
	var download func(ctx context.Context, w io.Writer) error
	switch kind {
	case "csv":
		download = c.ExportCSV
	case "snapshot":
		download = c.ExportSnapshot
	case "lite":
		download = c.ExportSalesSummaryLite
	}
	if err := download(ctx, w); err != nil {
		return fmt.Errorf("export %s: %w", kind, err)
	}

	if opts.Output != "" {
		fmt.Fprintf(cmd.ErrOrStderr(), "%s written to %s\n", exportKinds[kind], opts.Output)
	}
	return nil
}
