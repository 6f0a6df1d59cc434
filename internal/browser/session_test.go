package browser

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestConfigDefaults(t *testing.T) {
	cfg := withDefaults(Config{})
	assert.Equal(t, 1920, cfg.ViewportWidth)
	assert.Equal(t, 1080, cfg.ViewportHeight)
	assert.Equal(t, 5*time.Second, cfg.ActionTimeout)
	assert.Equal(t, 15*time.Second, cfg.NavigateTimeout)

	cfg = withDefaults(Config{
		ViewportWidth:   800,
		ViewportHeight:  600,
		ActionTimeout:   time.Second,
		NavigateTimeout: 2 * time.Second,
	})
	assert.Equal(t, 800, cfg.ViewportWidth)
	assert.Equal(t, 600, cfg.ViewportHeight)
	assert.Equal(t, time.Second, cfg.ActionTimeout)
	assert.Equal(t, 2*time.Second, cfg.NavigateTimeout)
}

// Element interactions against an element that never appears must expire with
// the configured timeout instead of blocking on the session context.
func TestBoundedContextExpires(t *testing.T) {
	s := &Session{ctx: context.Background(), cfg: withDefaults(Config{})}

	tctx, cancel := s.bounded(10 * time.Millisecond)
	defer cancel()

	select {
	case <-tctx.Done():
	case <-time.After(time.Second):
		t.Fatal("bounded context never expired")
	}
	assert.ErrorIs(t, tctx.Err(), context.DeadlineExceeded)
}
