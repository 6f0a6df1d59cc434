package main

import (
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/invoice-fetch/internal/codes"
	"github.com/sells-group/invoice-fetch/internal/fetch"
)

var batchExcel string

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Fetch every invoice listed in an XLSX spreadsheet",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		parsed, err := codes.ParseFile(batchExcel)
		if err != nil {
			return err
		}
		if len(parsed.Codes) == 0 {
			return eris.Errorf("no valid lookup codes in %s", batchExcel)
		}

		searchURL := cfg.Portal.SearchURL
		if parsed.DetectedURL != "" {
			zap.L().Info("using portal URL detected in spreadsheet",
				zap.String("url", parsed.DetectedURL))
			searchURL = parsed.DetectedURL
		}

		zap.L().Info("starting batch",
			zap.Int("codes", len(parsed.Codes)),
			zap.String("sheet", parsed.SheetName),
			zap.String("download_dir", cfg.Download.Dir))

		wf, err := buildWorkflow(searchURL)
		if err != nil {
			return err
		}

		history := openHistory(ctx)
		if history != nil {
			defer history.Close() //nolint:errcheck
		}

		runner := fetch.NewRunner(wf, interRequestDelay(), history, zap.L())
		result, err := runner.Run(ctx, parsed.Codes)
		if err != nil {
			return err
		}

		if result.Failed > 0 {
			return eris.Errorf("batch finished with %d of %d failures: %v",
				result.Failed, result.Total(), result.FailedCodes)
		}
		zap.L().Info("batch finished with no failures", zap.Int("total", result.Total()))
		return nil
	},
}

func init() {
	batchCmd.Flags().StringVarP(&batchExcel, "excel", "e", "", "path to XLSX file with lookup codes (required)")
	_ = batchCmd.MarkFlagRequired("excel")
	rootCmd.AddCommand(batchCmd)
}
