package fetch

import (
	"context"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/invoice-fetch/internal/browser"
	"github.com/sells-group/invoice-fetch/internal/captcha"
	"github.com/sells-group/invoice-fetch/internal/download"
	"github.com/sells-group/invoice-fetch/internal/resilience"
	"github.com/sells-group/invoice-fetch/internal/search"
)

// captchaProbe detects whether a captcha form is still on the page during
// recovery.
const captchaProbe = `img[src*='captcha' i], form img[src="/Captcha/Show"]`

// ErrOperatorDeclined means the operator refused the restart prompt during
// recovery.
var ErrOperatorDeclined = eris.New("fetch: operator declined restart")

// PageFactory opens a fresh browser session for one document request.
type PageFactory func(ctx context.Context) (browser.Page, error)

// Config holds the per-document workflow settings.
type Config struct {
	// SearchURL is the portal search page.
	SearchURL string

	// Dir receives downloaded invoices and debug artifacts.
	Dir string

	Search   search.Config
	Download download.Config
}

// Result is the terminal outcome for one document request.
type Result struct {
	Code string
	Path string
	Err  error
}

// Workflow runs one document request end to end: a fresh browser session,
// the captcha search loop, the download, and the two-tier recovery above
// them. The session is released on every exit path, including panics.
type Workflow struct {
	cfg     Config
	newPage PageFactory
	ai      captcha.Solver // nil when no credential is configured
	manual  captcha.Solver
	prompt  Prompter
	logger  *zap.Logger
}

// NewWorkflow creates a Workflow. ai may be nil; manual and newPage must not
// be.
func NewWorkflow(cfg Config, newPage PageFactory, ai, manual captcha.Solver, prompt Prompter, logger *zap.Logger) *Workflow {
	if logger == nil {
		logger = zap.NewNop()
	}
	if prompt == nil {
		prompt = NewStdinPrompter()
	}
	return &Workflow{
		cfg:     cfg,
		newPage: newPage,
		ai:      ai,
		manual:  manual,
		prompt:  prompt,
		logger:  logger,
	}
}

// Run fetches one invoice. It never panics outward: unclassified failures
// become a failed Result so a batch can continue.
func (w *Workflow) Run(ctx context.Context, code string) (res Result) {
	res.Code = code
	log := w.logger.With(zap.String("code", code))

	defer func() {
		if r := recover(); r != nil {
			log.Error("workflow panicked", zap.Any("panic", r))
			res.Err = eris.Errorf("fetch: unexpected failure: %v", r)
		}
	}()

	page, err := w.newPage(ctx)
	if err != nil {
		res.Err = eris.Wrap(err, "fetch: open browser session")
		return res
	}
	defer page.Close() //nolint:errcheck

	flow := search.NewFlow(page, w.ai, w.manual, w.cfg.Search, log)
	rc := search.NewRetryContext(w.ai != nil)
	dl := download.NewFlow(page, w.cfg.Download, log)

	log.Info("fetching invoice",
		zap.String("url", w.cfg.SearchURL),
		zap.String("solver_mode", rc.Mode.String()))

	if err := w.navigate(ctx, page); err != nil {
		flow.MarkFailed()
		res.Err = eris.Wrap(err, "fetch: open search page")
		return res
	}
	flow.MarkNavigated()

	if err := flow.EnterCode(ctx, code); err != nil {
		res.Err = err
		return res
	}

	if err := flow.RunCaptchaLoop(ctx, rc); err != nil {
		res.Err = err
		return res
	}

	outcome := dl.Download(ctx)
	if !outcome.Success {
		log.Warn("download failed after accepted search, entering recovery",
			zap.Error(outcome.Err))
		outcome = w.recover(ctx, page, flow, dl, rc, code)
	}

	if !outcome.Success {
		flow.MarkFailed()
		res.Err = outcome.Err
		return res
	}

	flow.MarkDownloaded()
	res.Path = outcome.Path
	log.Info("invoice fetched", zap.String("path", outcome.Path))
	return res
}

// navigate opens the search page, retrying once on transient network errors.
func (w *Workflow) navigate(ctx context.Context, page browser.Page) error {
	cfg := resilience.DefaultRetryConfig()
	cfg.MaxAttempts = 2
	cfg.OnRetry = resilience.RetryLogger("portal", "navigate")
	return resilience.Do(ctx, cfg, func(ctx context.Context) error {
		return page.Navigate(ctx, w.cfg.SearchURL)
	})
}

// recover is the outer recovery tier, invoked when the download flow fails
// after an apparently successful search. It captures a diagnostic screenshot,
// then branches on whether a captcha form is still present:
//
//   - present: the search silently failed but the session is alive. Force
//     manual mode, resubmit once, and retry the download once.
//   - absent: the session expired or the invoice does not exist. Ask the
//     operator; on acceptance run one full restart (navigate, re-enter code,
//     fresh captcha loop, download). At most one restart per document.
func (w *Workflow) recover(ctx context.Context, page browser.Page, flow *search.Flow, dl *download.Flow, rc *search.RetryContext, code string) download.Outcome {
	w.saveFailureScreenshot(ctx, page)

	present, err := page.Exists(ctx, captchaProbe)
	if err != nil {
		w.logger.Warn("captcha form probe failed", zap.Error(err))
	}

	if present {
		w.logger.Info("captcha form still present, resubmitting with manual entry")
		rc.ForceManual()
		resubmit := &search.RetryContext{MaxAttempts: 1, Mode: search.ModeManual}
		if err := flow.SubmitAttempt(ctx, resubmit); err != nil {
			return download.Outcome{Err: eris.Wrap(err, "fetch: recovery resubmit")}
		}
		return dl.Download(ctx)
	}

	if !w.prompt.Confirm("No captcha form present; the session may have expired or the invoice may not exist. Restart from the search page? (y/n): ") {
		w.logger.Info("operator declined restart")
		return download.Outcome{Err: ErrOperatorDeclined}
	}

	// One full restart, keeping the sticky solver mode but with a fresh
	// attempt budget. This path never re-enters recover, which caps restarts
	// at one per document.
	w.logger.Info("operator accepted restart, re-running search")
	if err := w.navigate(ctx, page); err != nil {
		return download.Outcome{Err: eris.Wrap(err, "fetch: restart navigation")}
	}
	if err := flow.EnterCode(ctx, code); err != nil {
		return download.Outcome{Err: err}
	}
	restart := &search.RetryContext{MaxAttempts: rc.MaxAttempts, Mode: rc.Mode}
	if err := flow.RunCaptchaLoop(ctx, restart); err != nil {
		return download.Outcome{Err: err}
	}
	return dl.Download(ctx)
}

func (w *Workflow) saveFailureScreenshot(ctx context.Context, page browser.Page) {
	shot, err := page.Screenshot(ctx)
	if err != nil {
		w.logger.Debug("failure screenshot capture failed", zap.Error(err))
		return
	}
	path := filepath.Join(w.cfg.Dir, "error_screenshot.png")
	if err := os.WriteFile(path, shot, 0o644); err != nil {
		w.logger.Debug("could not save failure screenshot", zap.Error(err))
		return
	}
	w.logger.Info("failure screenshot saved", zap.String("path", path))
}
