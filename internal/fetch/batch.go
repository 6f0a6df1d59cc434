package fetch

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/invoice-fetch/internal/store"
)

// BatchResult aggregates outcomes over a list of codes.
type BatchResult struct {
	Success     int
	Failed      int
	FailedCodes []string
}

// Total returns the number of codes processed.
func (r *BatchResult) Total() int { return r.Success + r.Failed }

// Runner applies the single-document workflow to a list of codes, one at a
// time. Each code gets a fresh browser session and a fresh retry context;
// a fixed delay separates consecutive documents to avoid being rate limited.
type Runner struct {
	wf      *Workflow
	delay   time.Duration
	history store.Store // optional
	logger  *zap.Logger
}

// NewRunner creates a Runner. history may be nil to skip persistence.
func NewRunner(wf *Workflow, delay time.Duration, history store.Store, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{wf: wf, delay: delay, history: history, logger: logger}
}

// Run processes every code sequentially. A single document's failure is
// recorded and does not abort the batch; context cancellation marks the
// remaining codes failed so the aggregate always accounts for every input.
func (r *Runner) Run(ctx context.Context, codes []string) (*BatchResult, error) {
	result := &BatchResult{}

	var batchID string
	if r.history != nil {
		b, err := r.history.CreateBatch(ctx, r.wf.cfg.Dir, len(codes))
		if err != nil {
			r.logger.Warn("could not record batch in history", zap.Error(err))
		} else {
			batchID = b.ID
		}
	}

	for i, code := range codes {
		if err := ctx.Err(); err != nil {
			r.failRemaining(ctx, result, batchID, codes[i:], err)
			break
		}

		r.logger.Info("processing code",
			zap.Int("index", i+1),
			zap.Int("total", len(codes)),
			zap.String("code", code))

		res := r.wf.Run(ctx, code)
		if res.Err != nil {
			result.Failed++
			result.FailedCodes = append(result.FailedCodes, code)
			r.logger.Error("code failed", zap.String("code", code), zap.Error(res.Err))
			r.record(ctx, batchID, store.Invoice{
				BatchID: batchID,
				Code:    code,
				Status:  store.InvoiceFailed,
				Error:   res.Err.Error(),
			})
		} else {
			result.Success++
			now := time.Now().UTC()
			r.record(ctx, batchID, store.Invoice{
				BatchID:      batchID,
				Code:         code,
				Status:       store.InvoiceDownloaded,
				FilePath:     res.Path,
				DownloadedAt: &now,
			})
		}

		// The full gap is applied after every document, success or failure,
		// so consecutive portal sessions are never closer than the delay.
		if i < len(codes)-1 {
			if err := r.pause(ctx); err != nil {
				r.failRemaining(ctx, result, batchID, codes[i+1:], err)
				break
			}
		}
	}

	if r.history != nil && batchID != "" {
		if err := r.history.FinishBatch(ctx, batchID, result.Success, result.Failed); err != nil {
			r.logger.Warn("could not finalize batch history", zap.Error(err))
		}
	}

	r.logger.Info("batch complete",
		zap.Int("success", result.Success),
		zap.Int("failed", result.Failed),
		zap.Strings("failed_codes", result.FailedCodes))

	return result, nil
}

// pause sleeps for the inter-request delay or until ctx is done.
func (r *Runner) pause(ctx context.Context) error {
	if r.delay <= 0 {
		return nil
	}
	timer := time.NewTimer(r.delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (r *Runner) failRemaining(ctx context.Context, result *BatchResult, batchID string, remaining []string, cause error) {
	r.logger.Warn("batch interrupted, marking remaining codes failed",
		zap.Int("remaining", len(remaining)), zap.Error(cause))
	for _, code := range remaining {
		result.Failed++
		result.FailedCodes = append(result.FailedCodes, code)
		r.record(context.WithoutCancel(ctx), batchID, store.Invoice{
			BatchID: batchID,
			Code:    code,
			Status:  store.InvoiceFailed,
			Error:   cause.Error(),
		})
	}
}

func (r *Runner) record(ctx context.Context, batchID string, inv store.Invoice) {
	if r.history == nil || batchID == "" {
		return
	}
	if err := r.history.RecordInvoice(ctx, inv); err != nil {
		r.logger.Warn("could not record invoice in history",
			zap.String("code", inv.Code), zap.Error(err))
	}
}
