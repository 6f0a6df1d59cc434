package browser

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	cdpbrowser "github.com/chromedp/cdproto/browser"
	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/chromedp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Config configures a browser session.
type Config struct {
	Headless       bool
	ViewportWidth  int
	ViewportHeight int
	UserAgent      string

	// DownloadDir receives completed file transfers.
	DownloadDir string

	// SettleDelay is the fixed pause applied after WaitSettle's readiness
	// check, mirroring the portal's post-load rendering lag.
	SettleDelay time.Duration

	// ActionTimeout bounds element interactions (fill, click, element
	// screenshots). Zero means 5s.
	ActionTimeout time.Duration

	// NavigateTimeout bounds page loads and reloads. Zero means 15s.
	NavigateTimeout time.Duration
}

func withDefaults(cfg Config) Config {
	if cfg.ViewportWidth <= 0 {
		cfg.ViewportWidth = 1920
	}
	if cfg.ViewportHeight <= 0 {
		cfg.ViewportHeight = 1080
	}
	if cfg.ActionTimeout <= 0 {
		cfg.ActionTimeout = 5 * time.Second
	}
	if cfg.NavigateTimeout <= 0 {
		cfg.NavigateTimeout = 15 * time.Second
	}
	return cfg
}

// Session owns one Chrome instance and one tab for the lifetime of a single
// document request. Close releases both the tab and the allocator on every
// exit path.
type Session struct {
	allocCancel context.CancelFunc
	cancel      context.CancelFunc
	ctx         context.Context
	cfg         Config
	logger      *zap.Logger

	closeOnce sync.Once
}

// NewSession launches a browser configured for file downloads.
func NewSession(ctx context.Context, cfg Config, logger *zap.Logger) (*Session, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg = withDefaults(cfg)

	if err := os.MkdirAll(cfg.DownloadDir, 0o755); err != nil {
		return nil, eris.Wrapf(err, "browser: create download dir %s", cfg.DownloadDir)
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", cfg.Headless),
		chromedp.WindowSize(cfg.ViewportWidth, cfg.ViewportHeight),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
	)
	if cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(cfg.UserAgent))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, opts...)
	bctx, cancel := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(func(format string, args ...any) {
			logger.Debug(fmt.Sprintf(format, args...))
		}),
	)

	s := &Session{
		allocCancel: allocCancel,
		cancel:      cancel,
		ctx:         bctx,
		cfg:         cfg,
		logger:      logger.With(zap.String("component", "browser")),
	}

	// Start the browser and route downloads into DownloadDir. Files land
	// under their transfer GUID; ExpectDownload renames them afterwards.
	if err := chromedp.Run(bctx,
		cdpbrowser.SetDownloadBehavior(cdpbrowser.SetDownloadBehaviorBehaviorAllowAndName).
			WithDownloadPath(cfg.DownloadDir).
			WithEventsEnabled(true),
	); err != nil {
		s.Close()
		return nil, eris.Wrap(err, "browser: start")
	}

	s.logger.Info("browser session started",
		zap.Bool("headless", cfg.Headless),
		zap.String("download_dir", cfg.DownloadDir))

	return s, nil
}

// Close tears down the tab and the allocator. Idempotent.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.cancel()
		s.allocCancel()
		s.logger.Info("browser session closed")
	})
	return nil
}

// bounded derives a deadline from the session context. Every portal
// interaction runs under one so a missing element surfaces as a classified
// failure instead of a hang.
func (s *Session) bounded(timeout time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(s.ctx, timeout)
}

func (s *Session) Navigate(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.logger.Debug("navigating", zap.String("url", url))
	tctx, cancel := s.bounded(s.cfg.NavigateTimeout)
	defer cancel()
	if err := chromedp.Run(tctx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
	); err != nil {
		return eris.Wrapf(err, "browser: navigate %s", url)
	}
	return nil
}

func (s *Session) Reload(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	tctx, cancel := s.bounded(s.cfg.NavigateTimeout)
	defer cancel()
	if err := chromedp.Run(tctx,
		chromedp.Reload(),
		chromedp.WaitReady("body", chromedp.ByQuery),
	); err != nil {
		return eris.Wrap(err, "browser: reload")
	}
	return nil
}

func (s *Session) WaitVisible(ctx context.Context, sel string, timeout time.Duration) error {
	tctx, cancel := s.bounded(timeout)
	defer cancel()
	if err := chromedp.Run(tctx, chromedp.WaitVisible(sel, chromedp.ByQuery)); err != nil {
		return eris.Wrapf(err, "browser: wait visible %q", sel)
	}
	return nil
}

func (s *Session) Fill(ctx context.Context, sel, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	tctx, cancel := s.bounded(s.cfg.ActionTimeout)
	defer cancel()
	if err := chromedp.Run(tctx,
		chromedp.WaitVisible(sel, chromedp.ByQuery),
		chromedp.Clear(sel, chromedp.ByQuery),
		chromedp.SendKeys(sel, value, chromedp.ByQuery),
	); err != nil {
		return eris.Wrapf(err, "browser: fill %q", sel)
	}
	return nil
}

func (s *Session) Click(ctx context.Context, sel string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	tctx, cancel := s.bounded(s.cfg.ActionTimeout)
	defer cancel()
	if err := chromedp.Run(tctx,
		chromedp.Click(sel, chromedp.ByQuery, chromedp.NodeVisible),
	); err != nil {
		return eris.Wrapf(err, "browser: click %q", sel)
	}
	return nil
}

func (s *Session) Exists(ctx context.Context, sel string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	tctx, cancel := s.bounded(s.cfg.ActionTimeout)
	defer cancel()
	var nodes []*cdp.Node
	if err := chromedp.Run(tctx,
		chromedp.Nodes(sel, &nodes, chromedp.ByQueryAll, chromedp.AtLeast(0)),
	); err != nil {
		return false, eris.Wrapf(err, "browser: query %q", sel)
	}
	return len(nodes) > 0, nil
}

func (s *Session) Text(ctx context.Context, sel string) (string, bool, error) {
	found, err := s.Exists(ctx, sel)
	if err != nil || !found {
		return "", false, err
	}
	tctx, cancel := s.bounded(s.cfg.ActionTimeout)
	defer cancel()
	var txt string
	if err := chromedp.Run(tctx, chromedp.Text(sel, &txt, chromedp.ByQuery)); err != nil {
		return "", false, eris.Wrapf(err, "browser: text %q", sel)
	}
	return txt, true, nil
}

func (s *Session) ElementScreenshot(ctx context.Context, sel string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	tctx, cancel := s.bounded(s.cfg.ActionTimeout)
	defer cancel()
	var buf []byte
	if err := chromedp.Run(tctx,
		chromedp.Screenshot(sel, &buf, chromedp.ByQuery, chromedp.NodeVisible),
	); err != nil {
		return nil, eris.Wrapf(err, "browser: screenshot %q", sel)
	}
	return buf, nil
}

func (s *Session) Screenshot(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	tctx, cancel := s.bounded(s.cfg.ActionTimeout)
	defer cancel()
	var buf []byte
	if err := chromedp.Run(tctx, chromedp.FullScreenshot(&buf, 90)); err != nil {
		return nil, eris.Wrap(err, "browser: full screenshot")
	}
	return buf, nil
}

func (s *Session) WaitSettle(ctx context.Context, timeout time.Duration) error {
	tctx, cancel := s.bounded(timeout)
	defer cancel()

	var ready bool
	if err := chromedp.Run(tctx,
		chromedp.Poll("document.readyState === 'complete'", &ready,
			chromedp.WithPollingTimeout(timeout)),
	); err != nil {
		return eris.Wrap(err, "browser: wait settle")
	}

	if s.cfg.SettleDelay > 0 {
		timer := time.NewTimer(s.cfg.SettleDelay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
	}
	return nil
}

func (s *Session) ExpectDownload(ctx context.Context, timeout time.Duration, trigger func() error) (Download, error) {
	type transfer struct {
		guid      string
		suggested string
	}

	done := make(chan transfer, 1)
	failed := make(chan string, 1)

	var mu sync.Mutex
	suggested := map[string]string{} // guid -> suggested filename

	lctx, lcancel := context.WithCancel(s.ctx)
	defer lcancel()

	chromedp.ListenTarget(lctx, func(ev any) {
		switch e := ev.(type) {
		case *cdpbrowser.EventDownloadWillBegin:
			mu.Lock()
			suggested[e.GUID] = e.SuggestedFilename
			mu.Unlock()
		case *cdpbrowser.EventDownloadProgress:
			switch e.State {
			case cdpbrowser.DownloadProgressStateCompleted:
				mu.Lock()
				name := suggested[e.GUID]
				mu.Unlock()
				select {
				case done <- transfer{guid: e.GUID, suggested: name}:
				default:
				}
			case cdpbrowser.DownloadProgressStateCanceled:
				select {
				case failed <- e.GUID:
				default:
				}
			}
		}
	})

	if err := trigger(); err != nil {
		return Download{}, err
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case t := <-done:
		src := filepath.Join(s.cfg.DownloadDir, t.guid)
		name := filepath.Base(t.suggested)
		if name == "" || name == "." || name == string(filepath.Separator) {
			name = t.guid
		}
		dst := filepath.Join(s.cfg.DownloadDir, name)
		if err := os.Rename(src, dst); err != nil {
			return Download{}, eris.Wrapf(err, "browser: persist download %s", name)
		}
		s.logger.Info("download complete", zap.String("file", dst))
		return Download{Path: dst, SuggestedFilename: t.suggested}, nil
	case guid := <-failed:
		return Download{}, eris.Errorf("browser: download %s canceled", guid)
	case <-timer.C:
		return Download{}, eris.Errorf("browser: download timed out after %s", timeout)
	case <-ctx.Done():
		return Download{}, ctx.Err()
	}
}
