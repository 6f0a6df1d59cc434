package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLite(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	require.NoError(t, s.Migrate(context.Background()))
	return s
}

func TestSQLite_BatchLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	b, err := s.CreateBatch(ctx, "/tmp/invoices", 2)
	require.NoError(t, err)
	require.NotEmpty(t, b.ID)

	now := time.Now().UTC()
	require.NoError(t, s.RecordInvoice(ctx, Invoice{
		BatchID:      b.ID,
		Code:         "C25TLK0019654_Ln",
		Status:       InvoiceDownloaded,
		FilePath:     "/tmp/invoices/C25TLK0019654_Ln.pdf",
		DownloadedAt: &now,
	}))
	require.NoError(t, s.RecordInvoice(ctx, Invoice{
		BatchID: b.ID,
		Code:    "C25TLK0019655_Xy",
		Status:  InvoiceFailed,
		Error:   "captcha attempts exhausted",
	}))
	require.NoError(t, s.FinishBatch(ctx, b.ID, 1, 1))

	batches, err := s.ListBatches(ctx, 10)
	require.NoError(t, err)
	require.Len(t, batches, 1)
	assert.Equal(t, b.ID, batches[0].ID)
	assert.Equal(t, 2, batches[0].TotalCount)
	assert.Equal(t, 1, batches[0].SuccessCount)
	assert.Equal(t, 1, batches[0].FailedCount)
	assert.Equal(t, "/tmp/invoices", batches[0].DownloadDir)

	invoices, err := s.ListInvoices(ctx, b.ID)
	require.NoError(t, err)
	require.Len(t, invoices, 2)

	assert.Equal(t, "C25TLK0019654_Ln", invoices[0].Code)
	assert.Equal(t, InvoiceDownloaded, invoices[0].Status)
	assert.Equal(t, "/tmp/invoices/C25TLK0019654_Ln.pdf", invoices[0].FilePath)
	require.NotNil(t, invoices[0].DownloadedAt)
	assert.Empty(t, invoices[0].Error)

	assert.Equal(t, InvoiceFailed, invoices[1].Status)
	assert.Equal(t, "captcha attempts exhausted", invoices[1].Error)
	assert.Nil(t, invoices[1].DownloadedAt)
	assert.Empty(t, invoices[1].FilePath)
}

func TestSQLite_ListBatchesLimit(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := s.CreateBatch(ctx, "/tmp/invoices", 1)
		require.NoError(t, err)
	}

	batches, err := s.ListBatches(ctx, 3)
	require.NoError(t, err)
	assert.Len(t, batches, 3)
}

func TestSQLite_ListInvoicesEmptyBatch(t *testing.T) {
	s := newTestStore(t)

	invoices, err := s.ListInvoices(context.Background(), "no-such-batch")
	require.NoError(t, err)
	assert.Empty(t, invoices)
}

func TestSQLite_MigrateIdempotent(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Migrate(context.Background()))
}
