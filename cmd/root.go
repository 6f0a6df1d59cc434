package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/invoice-fetch/internal/config"
)

var cfg *config.Config

var (
	flagDownloadDir string
	flagShowBrowser bool
	flagAPIKey      string
	flagProvider    string
)

var rootCmd = &cobra.Command{
	Use:   "invoice-fetch",
	Short: "Fetch electronic invoices from the VNPT portal",
	Long:  "Looks up invoices by code on the VNPT portal, solves the captcha via a vision model (with manual fallback), and downloads the PDF.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		// Flag overrides.
		if flagDownloadDir != "" {
			cfg.Download.Dir = flagDownloadDir
		}
		if flagShowBrowser {
			cfg.Browser.Headless = false
		}
		if flagProvider != "" {
			cfg.Solver.Provider = flagProvider
		}
		if flagAPIKey != "" {
			switch cfg.Solver.Provider {
			case "openai":
				cfg.Solver.OpenAIKey = flagAPIKey
			default:
				cfg.Solver.AnthropicKey = flagAPIKey
			}
		}

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&flagDownloadDir, "download-dir", "d", "", "directory for downloaded invoices")
	rootCmd.PersistentFlags().BoolVar(&flagShowBrowser, "show-browser", false, "run the browser visibly instead of headless")
	rootCmd.PersistentFlags().StringVar(&flagAPIKey, "api-key", "", "captcha solver API key (overrides config/env)")
	rootCmd.PersistentFlags().StringVar(&flagProvider, "provider", "", "captcha solver provider: anthropic or openai")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
