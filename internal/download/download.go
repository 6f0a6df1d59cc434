package download

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/invoice-fetch/internal/browser"
)

var (
	// ErrNoDownloadLink means the selector cascade matched nothing.
	ErrNoDownloadLink = eris.New("download: no download link found")

	// ErrTransferFailed means the link was clicked but the transfer did not
	// complete in time.
	ErrTransferFailed = eris.New("download: file transfer failed")
)

// matcher is one tier of the selector cascade.
type matcher struct {
	desc string
	sel  string
}

// cascade lists the link-locating strategies in priority order; the first
// match wins.
var cascade = []matcher{
	{"pdf link with title and endpoint", `a[title='Tải file pdf'][href*='/HomeNoLogin/downloadPDF']`},
	{"pdf link with title", `a[title='Tải file pdf']`},
	{"any link to download endpoint", `a[href*='/HomeNoLogin/downloadPDF']`},
	{"generic pdf or download link", `a[href$='.pdf'], a[download]`},
}

// Outcome reports the result of a download attempt. Failures are outcomes,
// never errors: the orchestrator decides what to do with them.
type Outcome struct {
	Success bool
	Path    string
	Err     error
}

// Config holds the download flow's knobs.
type Config struct {
	// TransferTimeout bounds the wait for the file transfer to complete.
	TransferTimeout time.Duration
}

// Flow locates and triggers the document retrieval action and persists the
// result.
type Flow struct {
	page   browser.Page
	cfg    Config
	logger *zap.Logger
}

// NewFlow creates a download Flow.
func NewFlow(page browser.Page, cfg Config, logger *zap.Logger) *Flow {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.TransferTimeout <= 0 {
		cfg.TransferTimeout = 30 * time.Second
	}
	return &Flow{page: page, cfg: cfg, logger: logger}
}

// Download walks the selector cascade, clicks the first matching link, and
// waits for the transfer to land on disk under its suggested filename.
func (f *Flow) Download(ctx context.Context) Outcome {
	sel, desc, found := f.locateLink(ctx)
	if !found {
		f.logger.Warn("no download link matched any cascade tier")
		return Outcome{Err: ErrNoDownloadLink}
	}
	f.logger.Info("download link located", zap.String("strategy", desc))

	dl, err := f.page.ExpectDownload(ctx, f.cfg.TransferTimeout, func() error {
		return f.page.Click(ctx, sel)
	})
	if err != nil {
		return Outcome{Err: eris.Wrapf(ErrTransferFailed, "%v", err)}
	}

	f.logger.Info("invoice saved",
		zap.String("path", dl.Path),
		zap.String("suggested_filename", dl.SuggestedFilename))
	return Outcome{Success: true, Path: dl.Path}
}

// locateLink evaluates the cascade in order and returns the first selector
// that currently matches an element.
func (f *Flow) locateLink(ctx context.Context) (sel, desc string, found bool) {
	for _, m := range cascade {
		ok, err := f.page.Exists(ctx, m.sel)
		if err != nil {
			f.logger.Debug("cascade probe failed",
				zap.String("strategy", m.desc), zap.Error(err))
			continue
		}
		if ok {
			return m.sel, m.desc, true
		}
	}
	return "", "", false
}
