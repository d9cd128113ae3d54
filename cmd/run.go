package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/jobposting-crawler/internal/crawler"
)

// newRunCmd creates the 'run' subcommand, which performs one crawl and exits.
func newRunCmd() *cobra.Command {
	var printJSON bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Runs one crawl and exits",
		Long: `Runs a single crawl over every resolved keyword. The process exits
non-zero when the run aborts on a transport, persistence, or secret failure.`,
		RunE: withApp(func(cmd *cobra.Command, appInstance App) error {
			logger := appInstance.Logger()

			report, runErr := appInstance.Run(cmd.Context())
			if printJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				if err := enc.Encode(report); err != nil {
					return fmt.Errorf("encode report: %w", err)
				}
			}
			if runErr != nil {
				return fmt.Errorf("run %s: %w", crawler.StatusFor(runErr), runErr)
			}

			postings, denied := report.Totals()
			logger.Info("run command finished",
				zap.String("run_id", report.RunID),
				zap.String("status", string(report.Status)),
				zap.Int("keywords", len(report.Keywords)),
				zap.Int("postings", postings),
				zap.Int("denied", denied),
			)
			return nil
		}),
	}
	cmd.Flags().BoolVar(&printJSON, "json", false, "print the run report as JSON on stdout")
	return cmd
}
