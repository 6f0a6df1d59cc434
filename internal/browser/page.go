package browser

import (
	"context"
	"time"
)

// Download describes a completed file transfer.
type Download struct {
	// Path is the final location of the file on disk.
	Path string
	// SuggestedFilename is the name proposed by the transfer.
	SuggestedFilename string
}

// Page is the browser surface the search and download flows drive. The
// chromedp-backed Session implements it; tests substitute fakes.
type Page interface {
	Navigate(ctx context.Context, url string) error
	Reload(ctx context.Context) error

	// WaitVisible blocks until the selector matches a visible element or the
	// timeout elapses.
	WaitVisible(ctx context.Context, sel string, timeout time.Duration) error

	// Fill clears the first element matching sel and types value into it.
	Fill(ctx context.Context, sel, value string) error
	Click(ctx context.Context, sel string) error

	// Exists reports whether sel currently matches at least one element.
	Exists(ctx context.Context, sel string) (bool, error)

	// Text returns the visible text of the first element matching sel and
	// whether such an element was found.
	Text(ctx context.Context, sel string) (string, bool, error)

	ElementScreenshot(ctx context.Context, sel string) ([]byte, error)
	Screenshot(ctx context.Context) ([]byte, error)

	// WaitSettle waits for in-flight page activity to finish, then applies
	// the configured settle delay.
	WaitSettle(ctx context.Context, timeout time.Duration) error

	// ExpectDownload runs trigger and waits for the resulting file transfer
	// to complete, persisting it under the transfer's suggested filename.
	ExpectDownload(ctx context.Context, timeout time.Duration, trigger func() error) (Download, error)

	// Close releases the browser session. Safe to call more than once.
	Close() error
}
