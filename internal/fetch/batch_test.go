package fetch

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sells-group/invoice-fetch/internal/browser"
	"github.com/sells-group/invoice-fetch/internal/store"
)

// pageQueue hands out one scripted page per document request.
type pageQueue struct {
	pages []*fakePage
	next  int
}

func (q *pageQueue) factory(context.Context) (browser.Page, error) {
	p := q.pages[q.next]
	q.next++
	return p, nil
}

func successPage() *fakePage {
	p := newFakePage()
	p.exists[pdfLink] = true
	return p
}

func failurePage() *fakePage {
	p := newFakePage()
	p.banners = []string{"sai", "sai", "sai"}
	return p
}

func batchWorkflow(t *testing.T, q *pageQueue) *Workflow {
	t.Helper()
	wf, _ := testWorkflow(t, newFakePage(), &fakePrompt{})
	wf.prompt = &fakePrompt{} // never restart in batch tests
	wf.newPage = q.factory
	return wf
}

func TestBatch_EveryInputAccountedFor(t *testing.T) {
	q := &pageQueue{pages: []*fakePage{successPage(), failurePage(), successPage()}}
	wf := batchWorkflow(t, q)
	runner := NewRunner(wf, time.Millisecond, nil, zap.NewNop())

	codes := []string{"C25TLK0000001_Aa", "C25TLK0000002_Bb", "C25TLK0000003_Cc"}
	result, err := runner.Run(context.Background(), codes)
	require.NoError(t, err)

	assert.Equal(t, 2, result.Success)
	assert.Equal(t, 1, result.Failed)
	assert.Equal(t, len(codes), result.Total())
	assert.Equal(t, []string{"C25TLK0000002_Bb"}, result.FailedCodes)

	// Each document got its own session, released once.
	for i, p := range q.pages {
		assert.Equal(t, 1, p.closed, "page %d", i)
	}
}

func TestBatch_FailureDoesNotAbortBatch(t *testing.T) {
	q := &pageQueue{pages: []*fakePage{failurePage(), successPage()}}
	wf := batchWorkflow(t, q)
	runner := NewRunner(wf, time.Millisecond, nil, zap.NewNop())

	result, err := runner.Run(context.Background(), []string{"C25TLK0000001_Aa", "C25TLK0000002_Bb"})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Success)
	assert.Equal(t, 1, result.Failed)
	assert.Equal(t, 2, q.next, "both codes were attempted")
}

func TestBatch_CancellationMarksRemainingFailed(t *testing.T) {
	q := &pageQueue{pages: []*fakePage{successPage(), successPage(), successPage()}}
	wf := batchWorkflow(t, q)
	runner := NewRunner(wf, time.Millisecond, nil, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	codes := []string{"C25TLK0000001_Aa", "C25TLK0000002_Bb", "C25TLK0000003_Cc"}
	result, err := runner.Run(ctx, codes)
	require.NoError(t, err)

	assert.Equal(t, 0, result.Success)
	assert.Equal(t, 3, result.Failed)
	assert.Equal(t, len(codes), result.Total())
}

func TestBatch_DelaySeparatesDocuments(t *testing.T) {
	// The middle document fails; the gap applies regardless of outcome.
	q := &pageQueue{pages: []*fakePage{successPage(), failurePage(), successPage()}}
	wf := batchWorkflow(t, q)
	delay := 60 * time.Millisecond
	runner := NewRunner(wf, delay, nil, zap.NewNop())

	start := time.Now()
	result, err := runner.Run(context.Background(),
		[]string{"C25TLK0000001_Aa", "C25TLK0000002_Bb", "C25TLK0000003_Cc"})
	elapsed := time.Since(start)
	require.NoError(t, err)

	assert.Equal(t, 3, result.Total())
	// Three documents means two full inter-request gaps.
	assert.GreaterOrEqual(t, elapsed, 2*delay,
		"inter-request delay was not applied between documents")
}

func TestBatch_CancellationDuringDelay(t *testing.T) {
	q := &pageQueue{pages: []*fakePage{successPage(), successPage()}}
	wf := batchWorkflow(t, q)
	runner := NewRunner(wf, 500*time.Millisecond, nil, zap.NewNop())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	result, err := runner.Run(ctx, []string{"C25TLK0000001_Aa", "C25TLK0000002_Bb"})
	require.NoError(t, err)

	// The first document completes before the deadline; the pause is cut
	// short and the second document is marked failed.
	assert.Equal(t, 1, result.Success)
	assert.Equal(t, 1, result.Failed)
	assert.Equal(t, 2, result.Total())
}

func TestBatch_RecordsHistory(t *testing.T) {
	history, err := store.NewSQLite(":memory:")
	require.NoError(t, err)
	defer history.Close() //nolint:errcheck
	require.NoError(t, history.Migrate(context.Background()))

	q := &pageQueue{pages: []*fakePage{successPage(), failurePage()}}
	wf := batchWorkflow(t, q)
	runner := NewRunner(wf, time.Millisecond, history, zap.NewNop())

	result, err := runner.Run(context.Background(), []string{"C25TLK0000001_Aa", "C25TLK0000002_Bb"})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Success)
	assert.Equal(t, 1, result.Failed)

	batches, err := history.ListBatches(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, batches, 1)
	assert.Equal(t, 2, batches[0].TotalCount)
	assert.Equal(t, 1, batches[0].SuccessCount)
	assert.Equal(t, 1, batches[0].FailedCount)

	invoices, err := history.ListInvoices(context.Background(), batches[0].ID)
	require.NoError(t, err)
	require.Len(t, invoices, 2)
	assert.Equal(t, store.InvoiceDownloaded, invoices[0].Status)
	assert.Equal(t, "/tmp/invoice.pdf", invoices[0].FilePath)
	assert.NotNil(t, invoices[0].DownloadedAt)
	assert.Equal(t, store.InvoiceFailed, invoices[1].Status)
	assert.NotEmpty(t, invoices[1].Error)
}
