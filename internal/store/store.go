package store

import (
	"context"
	"time"
)

// InvoiceStatus tracks one code's progress within a batch.
type InvoiceStatus string

const (
	InvoicePending    InvoiceStatus = "pending"
	InvoiceDownloaded InvoiceStatus = "downloaded"
	InvoiceFailed     InvoiceStatus = "failed"
)

// Batch is one recorded run over a list of codes.
type Batch struct {
	ID           string
	CreatedAt    time.Time
	TotalCount   int
	SuccessCount int
	FailedCount  int
	DownloadDir  string
}

// Invoice is one code's outcome within a batch.
type Invoice struct {
	ID           string
	BatchID      string
	Code         string
	Status       InvoiceStatus
	Error        string
	FilePath     string
	DownloadedAt *time.Time
}

// Store persists download history.
type Store interface {
	CreateBatch(ctx context.Context, downloadDir string, total int) (*Batch, error)
	FinishBatch(ctx context.Context, batchID string, success, failed int) error
	RecordInvoice(ctx context.Context, inv Invoice) error
	ListBatches(ctx context.Context, limit int) ([]Batch, error)
	ListInvoices(ctx context.Context, batchID string) ([]Invoice, error)

	Migrate(ctx context.Context) error
	Close() error
}
