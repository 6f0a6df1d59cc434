package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sells-group/invoice-fetch/internal/codes"
)

var codesCmd = &cobra.Command{
	Use:   "codes <file.xlsx>",
	Short: "Preview the lookup codes found in a spreadsheet without downloading",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		parsed, err := codes.ParseFile(args[0])
		if err != nil {
			return err
		}

		fmt.Fprintf(os.Stdout, "sheet: %s (%d rows)\n", parsed.SheetName, parsed.TotalRows)
		if parsed.DetectedURL != "" {
			fmt.Fprintf(os.Stdout, "portal url: %s\n", parsed.DetectedURL)
		}
		fmt.Fprintf(os.Stdout, "codes (%d):\n", len(parsed.Codes))
		for _, code := range parsed.Codes {
			fmt.Fprintf(os.Stdout, "  %s\n", code)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(codesCmd)
}
