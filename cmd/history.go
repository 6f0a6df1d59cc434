package main

import (
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/invoice-fetch/internal/store"
)

var (
	historyLimit int
	historyBatch string
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show past download batches",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := store.NewSQLite(cfg.Store.Path)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		if historyBatch != "" {
			invoices, err := st.ListInvoices(ctx, historyBatch)
			if err != nil {
				return err
			}
			if len(invoices) == 0 {
				return eris.Errorf("no invoices recorded for batch %s", historyBatch)
			}
			for _, inv := range invoices {
				line := fmt.Sprintf("%-12s %s", inv.Status, inv.Code)
				if inv.FilePath != "" {
					line += "  " + inv.FilePath
				}
				if inv.Error != "" {
					line += "  (" + inv.Error + ")"
				}
				fmt.Fprintln(os.Stdout, line)
			}
			return nil
		}

		batches, err := st.ListBatches(ctx, historyLimit)
		if err != nil {
			return err
		}
		if len(batches) == 0 {
			fmt.Fprintln(os.Stdout, "no batches recorded")
			return nil
		}
		for _, b := range batches {
			fmt.Fprintf(os.Stdout, "%s  %s  total=%d success=%d failed=%d  %s\n",
				b.ID, b.CreatedAt.Format("2006-01-02 15:04"),
				b.TotalCount, b.SuccessCount, b.FailedCount, b.DownloadDir)
		}
		return nil
	},
}

func init() {
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "max batches to list")
	historyCmd.Flags().StringVar(&historyBatch, "batch", "", "list invoices for one batch id")
	rootCmd.AddCommand(historyCmd)
}
