package captcha

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/invoice-fetch/internal/resilience"
)

const (
	openAIEndpoint     = "https://api.openai.com/v1/chat/completions"
	defaultOpenAIModel = "gpt-4o-mini"
)

// OpenAISolver extracts captcha text via the OpenAI chat completions API.
type OpenAISolver struct {
	apiKey   string
	model    string
	endpoint string
	client   *http.Client
}

// NewOpenAISolver creates an OpenAISolver. If model is empty, the default is
// used.
func NewOpenAISolver(apiKey, model string) *OpenAISolver {
	if model == "" {
		model = defaultOpenAIModel
	}
	return &OpenAISolver{
		apiKey:   apiKey,
		model:    model,
		endpoint: openAIEndpoint,
		client:   &http.Client{},
	}
}

func (s *OpenAISolver) Source() string { return "openai" }

type openAIRequest struct {
	Model     string          `json:"model"`
	Messages  []openAIMessage `json:"messages"`
	MaxTokens int             `json:"max_tokens"`
}

type openAIMessage struct {
	Role    string          `json:"role"`
	Content []openAIContent `json:"content"`
}

type openAIContent struct {
	Type     string          `json:"type"`
	Text     string          `json:"text,omitempty"`
	ImageURL *openAIImageURL `json:"image_url,omitempty"`
}

type openAIImageURL struct {
	URL string `json:"url"`
}

type openAIResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Solve sends the image as a data URL with the extraction instruction and
// returns the trimmed response text verbatim.
func (s *OpenAISolver) Solve(ctx context.Context, image []byte) (string, error) {
	dataURL := "data:image/png;base64," + base64.StdEncoding.EncodeToString(image)

	reqBody := openAIRequest{
		Model:     s.model,
		MaxTokens: 100,
		Messages: []openAIMessage{
			{
				Role: "user",
				Content: []openAIContent{
					{Type: "text", Text: extractInstruction},
					{Type: "image_url", ImageURL: &openAIImageURL{URL: dataURL}},
				},
			},
		},
	}

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return "", eris.Wrap(err, "captcha: marshal openai request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(bodyBytes))
	if err != nil {
		return "", eris.Wrap(err, "captcha: create openai request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.apiKey)

	resp, err := s.client.Do(req)
	if err != nil {
		return "", eris.Wrap(err, "captcha: openai API call")
	}
	defer resp.Body.Close() //nolint:errcheck

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", eris.Wrap(err, "captcha: read openai response")
	}

	if resp.StatusCode != http.StatusOK {
		apiErr := eris.Errorf("captcha: openai API returned %d: %s", resp.StatusCode, string(respBody))
		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			return "", resilience.NewTransientError(apiErr, resp.StatusCode)
		}
		return "", apiErr
	}

	var parsed openAIResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", eris.Wrap(err, "captcha: unmarshal openai response")
	}
	if len(parsed.Choices) == 0 {
		return "", eris.New("captcha: openai response has no choices")
	}

	return strings.TrimSpace(parsed.Choices[0].Message.Content), nil
}
