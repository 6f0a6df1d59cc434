package search

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/invoice-fetch/internal/browser"
	"github.com/sells-group/invoice-fetch/internal/captcha"
)

// Portal selectors, primary first.
const (
	codeFieldPrimary  = `input[placeholder*='tra cứu']`
	codeFieldFallback = `#Fkey`

	captchaImagePrimary  = `form img[src="/Captcha/Show"]`
	captchaImageFallback = `img[src*='captcha' i]`

	captchaInput = `input.captcha_input`
	submitButton = `button[type='submit']`

	errorBanner = `.validation-summary-errors, .alert-danger, label.error`
)

// rejectionMarkers are substrings of the portal's "wrong captcha" banner.
var rejectionMarkers = []string{"sai", "không đúng", "wrong", "incorrect"}

// Config holds the search flow's timing knobs.
type Config struct {
	SelectorTimeout time.Duration
	SettleTimeout   time.Duration

	// AttemptDelay is the pause before each captcha cycle, giving a
	// re-issued challenge image time to render.
	AttemptDelay time.Duration

	// DebugDir receives per-attempt captcha images; empty disables them.
	DebugDir string
}

// Flow drives navigation, code entry, captcha entry, and submission for one
// document request.
type Flow struct {
	page   browser.Page
	ai     captcha.Solver // nil when no credential is configured
	manual captcha.Solver
	cfg    Config
	logger *zap.Logger

	code  string
	state State
}

// NewFlow creates a Flow. ai may be nil; manual must not be.
func NewFlow(page browser.Page, ai, manual captcha.Solver, cfg Config, logger *zap.Logger) *Flow {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.SelectorTimeout <= 0 {
		cfg.SelectorTimeout = 5 * time.Second
	}
	if cfg.SettleTimeout <= 0 {
		cfg.SettleTimeout = 15 * time.Second
	}
	if cfg.AttemptDelay <= 0 {
		cfg.AttemptDelay = time.Second
	}
	return &Flow{
		page:   page,
		ai:     ai,
		manual: manual,
		cfg:    cfg,
		logger: logger,
	}
}

// State returns the current session state.
func (f *Flow) State() State { return f.state }

// MarkNavigated records that the workflow landed on the search page.
func (f *Flow) MarkNavigated() { f.state = StateNavigated }

// MarkDownloaded records terminal success.
func (f *Flow) MarkDownloaded() { f.state = StateDownloaded }

// MarkFailed records terminal failure.
func (f *Flow) MarkFailed() { f.state = StateFailed }

// EnterCode fills the lookup-code field, trying the label-based locator first
// and the fixed field id as fallback. Both failing is fatal for the document.
func (f *Flow) EnterCode(ctx context.Context, code string) error {
	f.code = code

	if err := f.page.WaitVisible(ctx, codeFieldPrimary, f.cfg.SelectorTimeout); err == nil {
		if err := f.page.Fill(ctx, codeFieldPrimary, code); err == nil {
			f.state = StateCodeEntered
			f.logger.Info("lookup code entered", zap.String("code", code))
			return nil
		}
	}

	f.logger.Debug("primary code field locator failed, trying fallback",
		zap.String("selector", codeFieldFallback))
	if err := f.page.Fill(ctx, codeFieldFallback, code); err != nil {
		f.state = StateFailed
		return eris.Wrapf(ErrInputTargetNotFound, "fallback %s: %v", codeFieldFallback, err)
	}

	f.state = StateCodeEntered
	f.logger.Info("lookup code entered via fallback", zap.String("code", code))
	return nil
}

// RunCaptchaLoop runs submit-and-check cycles until one succeeds or the
// attempt budget in rc is spent. rc is mutated: the attempt counter advances
// once per completed cycle and the solver mode sticks to manual after any
// rejection or solve failure.
func (f *Flow) RunCaptchaLoop(ctx context.Context, rc *RetryContext) error {
	for !rc.Exhausted() {
		if err := ctx.Err(); err != nil {
			f.state = StateFailed
			return err
		}

		err := f.SubmitAttempt(ctx, rc)
		if err == nil {
			return nil
		}
		rc.Attempt++

		switch {
		case errors.Is(err, ErrCaptchaRejected):
			f.logger.Warn("captcha rejected by portal",
				zap.Int("attempt", rc.Attempt),
				zap.String("mode", rc.Mode.String()))
		case errors.Is(err, ErrSessionCorrupted):
			f.logger.Warn("attempt failed, session recovered",
				zap.Int("attempt", rc.Attempt),
				zap.Error(err))
		default:
			f.logger.Warn("captcha attempt failed",
				zap.Int("attempt", rc.Attempt),
				zap.Error(err))
		}
	}

	f.state = StateFailed
	return ErrAttemptsExhausted
}

// SubmitAttempt runs exactly one captcha-attempt cycle: locate the image,
// solve it, fill and submit the form, and check the portal's verdict. A nil
// return means the submission was accepted (no rejection banner); it does not
// guarantee a result exists — the download flow judges that.
func (f *Flow) SubmitAttempt(ctx context.Context, rc *RetryContext) error {
	settle(ctx, f.cfg.AttemptDelay)

	sel, err := f.locateCaptchaImage(ctx)
	if err != nil {
		return err
	}

	image, err := f.page.ElementScreenshot(ctx, sel)
	if err != nil {
		return f.recoverSession(ctx, rc, eris.Wrap(err, "capture captcha image"))
	}
	f.saveDebugImage(image, rc.Attempt)

	answer := f.solve(ctx, rc, image)
	if answer == "" {
		rc.ForceManual()
		return ErrEmptyAnswer
	}

	f.logger.Info("submitting captcha answer",
		zap.Int("attempt", rc.Attempt+1),
		zap.String("mode", rc.Mode.String()))

	if err := f.page.Fill(ctx, captchaInput, answer); err != nil {
		return f.recoverSession(ctx, rc, eris.Wrap(err, "fill captcha input"))
	}
	if err := f.page.Click(ctx, submitButton); err != nil {
		return f.recoverSession(ctx, rc, eris.Wrap(err, "click submit"))
	}
	if err := f.page.WaitSettle(ctx, f.cfg.SettleTimeout); err != nil {
		return f.recoverSession(ctx, rc, eris.Wrap(err, "wait for submission"))
	}
	f.state = StateCaptchaSubmitted

	if banner, rejected := f.detectRejection(ctx); rejected {
		rc.ForceManual()
		return eris.Wrapf(ErrCaptchaRejected, "portal says: %s", banner)
	}

	// No rejection banner: hand off optimistically. The download flow reports
	// absence of a document.
	f.state = StateResultReceived
	return nil
}

// locateCaptchaImage returns the first selector that matches a visible
// captcha image, trying the fixed path before the generic fallback.
func (f *Flow) locateCaptchaImage(ctx context.Context) (string, error) {
	if err := f.page.WaitVisible(ctx, captchaImagePrimary, f.cfg.SelectorTimeout); err == nil {
		return captchaImagePrimary, nil
	}
	if err := f.page.WaitVisible(ctx, captchaImageFallback, f.cfg.SelectorTimeout); err != nil {
		return "", eris.Wrapf(ErrCaptchaFetchTimeout, "both selectors timed out after %s", f.cfg.SelectorTimeout)
	}
	return captchaImageFallback, nil
}

// solve produces a captcha answer according to the sticky solver mode. An AI
// failure downgrades the mode and falls through to manual entry within the
// same attempt.
func (f *Flow) solve(ctx context.Context, rc *RetryContext, image []byte) string {
	if rc.Mode == ModeAI && f.ai != nil {
		answer, err := f.ai.Solve(ctx, image)
		if err == nil {
			f.logger.Info("captcha solved",
				zap.String("source", f.ai.Source()),
				zap.Int("answer_len", len(answer)))
			return answer
		}
		f.logger.Warn("ai solve failed, switching to manual entry",
			zap.String("source", f.ai.Source()),
			zap.Error(err))
		rc.ForceManual()
	}

	answer, _ := f.manual.Solve(ctx, image) // manual entry never errors
	return answer
}

// detectRejection inspects the page for an error banner whose text marks a
// wrong captcha answer.
func (f *Flow) detectRejection(ctx context.Context) (string, bool) {
	banner, found, err := f.page.Text(ctx, errorBanner)
	if err != nil {
		f.logger.Debug("error banner probe failed", zap.Error(err))
		return "", false
	}
	if !found {
		return "", false
	}

	lower := strings.ToLower(banner)
	for _, marker := range rejectionMarkers {
		if strings.Contains(lower, marker) {
			return strings.TrimSpace(banner), true
		}
	}
	return "", false
}

// recoverSession handles an unexpected failure mid-attempt: force manual
// mode, reload the page, and re-enter the lookup code so the next attempt
// starts from a clean form. The attempt still counts against the budget.
func (f *Flow) recoverSession(ctx context.Context, rc *RetryContext, cause error) error {
	rc.ForceManual()
	f.logger.Warn("unexpected failure mid-attempt, reloading page", zap.Error(cause))

	if err := f.page.Reload(ctx); err != nil {
		f.logger.Warn("page reload failed", zap.Error(err))
	} else if err := f.EnterCode(ctx, f.code); err != nil {
		f.logger.Warn("code re-entry after reload failed", zap.Error(err))
	}

	return eris.Wrapf(ErrSessionCorrupted, "%v", cause)
}

func (f *Flow) saveDebugImage(image []byte, attempt int) {
	if f.cfg.DebugDir == "" {
		return
	}
	path := filepath.Join(f.cfg.DebugDir, fmt.Sprintf("debug_captcha_attempt_%d.png", attempt+1))
	if err := os.WriteFile(path, image, 0o644); err != nil {
		f.logger.Debug("could not save debug captcha image", zap.Error(err))
	}
}

// settle sleeps for d or until ctx is done.
func settle(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
