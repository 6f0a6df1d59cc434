package captcha

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/invoice-fetch/pkg/anthropic"
)

const defaultAnthropicModel = "claude-haiku-4-5-20251001"

// AnthropicSolver extracts captcha text with a vision-capable Claude model.
type AnthropicSolver struct {
	client anthropic.Client
	model  string
}

// NewAnthropicSolver creates an AnthropicSolver. If model is empty, the
// default is used.
func NewAnthropicSolver(apiKey, model string) *AnthropicSolver {
	return newAnthropicSolver(anthropic.NewClient(apiKey), model)
}

func newAnthropicSolver(client anthropic.Client, model string) *AnthropicSolver {
	if model == "" {
		model = defaultAnthropicModel
	}
	return &AnthropicSolver{client: client, model: model}
}

func (s *AnthropicSolver) Source() string { return "anthropic" }

// Solve sends the image with the extraction instruction and returns the
// trimmed response text verbatim. No format validation is applied.
func (s *AnthropicSolver) Solve(ctx context.Context, image []byte) (string, error) {
	resp, err := s.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:     s.model,
		MaxTokens: 100,
		Messages: []anthropic.Message{
			{
				Role:      "user",
				Content:   extractInstruction,
				Image:     image,
				MediaType: "image/png",
			},
		},
	})
	if err != nil {
		return "", eris.Wrap(err, "captcha: anthropic solve")
	}
	return strings.TrimSpace(resp.Text()), nil
}
