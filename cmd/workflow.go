package main

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/invoice-fetch/internal/browser"
	"github.com/sells-group/invoice-fetch/internal/captcha"
	"github.com/sells-group/invoice-fetch/internal/download"
	"github.com/sells-group/invoice-fetch/internal/fetch"
	"github.com/sells-group/invoice-fetch/internal/search"
	"github.com/sells-group/invoice-fetch/internal/store"
)

// buildWorkflow wires the per-document workflow from config: the solver
// chain, the browser session factory, and the flow timing knobs.
func buildWorkflow(searchURL string) (*fetch.Workflow, error) {
	dir := cfg.Download.Dir

	ai, err := captcha.New(cfg.Solver)
	if err != nil {
		if !errors.Is(err, captcha.ErrNoCredential) {
			return nil, err
		}
		zap.L().Warn("no solver credential configured, captcha entry will be manual",
			zap.String("provider", cfg.Solver.Provider))
		ai = nil
	}
	manual := captcha.NewManualSolver(dir, zap.L())

	newPage := func(ctx context.Context) (browser.Page, error) {
		return browser.NewSession(ctx, browser.Config{
			Headless:        cfg.Browser.Headless,
			ViewportWidth:   cfg.Browser.ViewportWidth,
			ViewportHeight:  cfg.Browser.ViewportHeight,
			UserAgent:       cfg.Browser.UserAgent,
			DownloadDir:     dir,
			SettleDelay:     time.Duration(cfg.Portal.SettleDelayMs) * time.Millisecond,
			ActionTimeout:   time.Duration(cfg.Portal.SelectorTimeout) * time.Second,
			NavigateTimeout: time.Duration(cfg.Portal.SettleTimeout) * time.Second,
		}, zap.L())
	}

	wcfg := fetch.Config{
		SearchURL: searchURL,
		Dir:       dir,
		Search: search.Config{
			SelectorTimeout: time.Duration(cfg.Portal.SelectorTimeout) * time.Second,
			SettleTimeout:   time.Duration(cfg.Portal.SettleTimeout) * time.Second,
			DebugDir:        dir,
		},
		Download: download.Config{
			TransferTimeout: time.Duration(cfg.Download.TransferTimeout) * time.Second,
		},
	}

	return fetch.NewWorkflow(wcfg, newPage, ai, manual, nil, zap.L()), nil
}

// openHistory opens the download-history store, returning nil when the run
// should proceed without persistence.
func openHistory(ctx context.Context) store.Store {
	if cfg.Store.Path == "" {
		return nil
	}
	st, err := store.NewSQLite(cfg.Store.Path)
	if err != nil {
		zap.L().Warn("history store unavailable, continuing without it", zap.Error(err))
		return nil
	}
	if err := st.Migrate(ctx); err != nil {
		zap.L().Warn("history store migration failed, continuing without it", zap.Error(err))
		st.Close() //nolint:errcheck
		return nil
	}
	return st
}

func interRequestDelay() time.Duration {
	return time.Duration(cfg.Download.InterRequestSecs) * time.Second
}
