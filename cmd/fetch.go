package main

import (
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/invoice-fetch/internal/fetch"
)

var fetchCode string

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Fetch a single invoice by lookup code",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		wf, err := buildWorkflow(cfg.Portal.SearchURL)
		if err != nil {
			return err
		}

		history := openHistory(ctx)
		if history != nil {
			defer history.Close() //nolint:errcheck
		}

		runner := fetch.NewRunner(wf, interRequestDelay(), history, zap.L())
		result, err := runner.Run(ctx, []string{fetchCode})
		if err != nil {
			return err
		}
		if result.Failed > 0 {
			return eris.Errorf("fetch failed for code %s", fetchCode)
		}
		return nil
	},
}

func init() {
	fetchCmd.Flags().StringVarP(&fetchCode, "code", "c", "", "invoice lookup code (required)")
	_ = fetchCmd.MarkFlagRequired("code")
	rootCmd.AddCommand(fetchCmd)
}
