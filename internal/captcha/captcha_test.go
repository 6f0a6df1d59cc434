package captcha

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/invoice-fetch/internal/config"
	"github.com/sells-group/invoice-fetch/internal/resilience"
	"github.com/sells-group/invoice-fetch/pkg/anthropic"
)

func TestNew_ProviderSelection(t *testing.T) {
	s, err := New(config.SolverConfig{Provider: "anthropic", AnthropicKey: "sk-ant-test"})
	require.NoError(t, err)
	assert.Equal(t, "anthropic", s.Source())

	// Empty provider defaults to anthropic.
	s, err = New(config.SolverConfig{AnthropicKey: "sk-ant-test"})
	require.NoError(t, err)
	assert.Equal(t, "anthropic", s.Source())

	s, err = New(config.SolverConfig{Provider: "openai", OpenAIKey: "sk-test"})
	require.NoError(t, err)
	assert.Equal(t, "openai", s.Source())
}

func TestNew_NoCredential(t *testing.T) {
	_, err := New(config.SolverConfig{Provider: "anthropic"})
	assert.ErrorIs(t, err, ErrNoCredential)

	_, err = New(config.SolverConfig{Provider: "openai"})
	assert.ErrorIs(t, err, ErrNoCredential)

	// The other provider's key does not count as a credential.
	_, err = New(config.SolverConfig{Provider: "anthropic", OpenAIKey: "sk-test"})
	assert.ErrorIs(t, err, ErrNoCredential)

	_, err = New(config.SolverConfig{Provider: "openai", AnthropicKey: "sk-ant-test"})
	assert.ErrorIs(t, err, ErrNoCredential)
}

func TestNew_UnknownProvider(t *testing.T) {
	_, err := New(config.SolverConfig{Provider: "mistral"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown provider")
}

type fakeAnthropicClient struct {
	resp *anthropic.MessageResponse
	err  error
	got  anthropic.MessageRequest
}

func (c *fakeAnthropicClient) CreateMessage(_ context.Context, req anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
	c.got = req
	return c.resp, c.err
}

func TestAnthropicSolver_Solve(t *testing.T) {
	client := &fakeAnthropicClient{
		resp: &anthropic.MessageResponse{
			Content: []anthropic.ContentBlock{{Type: "text", Text: "  AB1C\n"}},
		},
	}
	s := newAnthropicSolver(client, "")

	answer, err := s.Solve(context.Background(), []byte("png-bytes"))
	require.NoError(t, err)
	assert.Equal(t, "AB1C", answer, "response is trimmed, not validated")

	assert.Equal(t, defaultAnthropicModel, client.got.Model)
	require.Len(t, client.got.Messages, 1)
	assert.Equal(t, []byte("png-bytes"), client.got.Messages[0].Image)
	assert.Contains(t, client.got.Messages[0].Content, "captcha")
}

func TestOpenAISolver_Solve(t *testing.T) {
	var gotAuth string
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotBody, _ = io.ReadAll(r.Body)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":" XY2Z "}}]}`))
	}))
	defer srv.Close()

	s := NewOpenAISolver("sk-test", "")
	s.endpoint = srv.URL

	answer, err := s.Solve(context.Background(), []byte("png-bytes"))
	require.NoError(t, err)
	assert.Equal(t, "XY2Z", answer)
	assert.Equal(t, "Bearer sk-test", gotAuth)
	assert.Contains(t, string(gotBody), "data:image/png;base64,")
	assert.Contains(t, string(gotBody), defaultOpenAIModel)
}

func TestOpenAISolver_TransientStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	s := NewOpenAISolver("sk-test", "")
	s.endpoint = srv.URL

	_, err := s.Solve(context.Background(), []byte("png-bytes"))
	require.Error(t, err)
	assert.True(t, resilience.IsTransient(err))
}

func TestOpenAISolver_PermanentStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	s := NewOpenAISolver("sk-test", "")
	s.endpoint = srv.URL

	_, err := s.Solve(context.Background(), []byte("png-bytes"))
	require.Error(t, err)
	assert.False(t, resilience.IsTransient(err))
}

func TestManualSolver_ReadsAnswer(t *testing.T) {
	dir := t.TempDir()
	var out bytes.Buffer
	var opened []string
	s := &ManualSolver{
		Dir:    dir,
		In:     strings.NewReader("  ab1c  \n"),
		Out:    &out,
		Opener: func(path string) error { opened = append(opened, path); return nil },
	}

	answer, err := s.Solve(context.Background(), []byte("png-bytes"))
	require.NoError(t, err)
	assert.Equal(t, "ab1c", answer)

	imgPath := filepath.Join(dir, "captcha_manual.png")
	data, err := os.ReadFile(imgPath)
	require.NoError(t, err)
	assert.Equal(t, []byte("png-bytes"), data)
	assert.Equal(t, []string{imgPath}, opened)
	assert.Contains(t, out.String(), "Enter captcha text")
}

func TestManualSolver_EOFIsEmptyAnswer(t *testing.T) {
	s := &ManualSolver{
		Dir:    t.TempDir(),
		In:     strings.NewReader(""),
		Out:    &bytes.Buffer{},
		Opener: func(string) error { return nil },
	}

	answer, err := s.Solve(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, answer)
}

func TestManualSolver_ViewerFailureIsNonFatal(t *testing.T) {
	s := &ManualSolver{
		Dir:    t.TempDir(),
		In:     strings.NewReader("AB1C\n"),
		Out:    &bytes.Buffer{},
		Opener: func(string) error { return os.ErrNotExist },
	}

	answer, err := s.Solve(context.Background(), []byte("png"))
	require.NoError(t, err)
	assert.Equal(t, "AB1C", answer)
}
