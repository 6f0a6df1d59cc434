package captcha

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/invoice-fetch/internal/config"
)

// extractInstruction is sent verbatim to vision backends. The response is
// trusted as-is; the portal's own rejection signal is the only validation.
const extractInstruction = `Please extract the text from this captcha image.
Return ONLY the captcha text, nothing else. No explanations, no quotes, just the raw text.
The captcha usually contains 4 alphanumeric characters.`

// Solver extracts text from a captcha image.
type Solver interface {
	Solve(ctx context.Context, image []byte) (string, error)
	Source() string
}

// ErrNoCredential indicates the configured provider has no API key.
var ErrNoCredential = eris.New("captcha: no API key configured")

// New creates the AI-backed Solver for the configured provider. It returns
// ErrNoCredential when the provider has no key; callers fall back to manual
// entry in that case.
func New(cfg config.SolverConfig) (Solver, error) {
	key := cfg.Key()
	switch cfg.Provider {
	case "anthropic", "":
		if key == "" {
			return nil, ErrNoCredential
		}
		return NewAnthropicSolver(key, cfg.Model), nil
	case "openai":
		if key == "" {
			return nil, ErrNoCredential
		}
		return NewOpenAISolver(key, cfg.OpenAIModel), nil
	default:
		return nil, eris.Errorf("captcha: unknown provider %q", cfg.Provider)
	}
}
