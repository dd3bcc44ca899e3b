package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
)

// OpenAICompatProvider talks to any OpenAI-compatible chat completion API
// (Groq, Together, OpenRouter, Ollama) through a configurable base URL.
type OpenAICompatProvider struct {
	label   string
	baseURL string
	apiKey  string
	model   string
	client  *http.Client
}

func NewOpenAICompatProvider(label, baseURL, apiKey, model string) (*OpenAICompatProvider, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("%s: missing base URL", label)
	}
	if model == "" {
		model = "gpt-3.5-turbo"
	}
	return &OpenAICompatProvider{
		label:   label,
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		model:   model,
		client:  &http.Client{Timeout: 60 * time.Second},
	}, nil
}

func (p *OpenAICompatProvider) Available() bool { return p.apiKey != "" }
func (p *OpenAICompatProvider) Name() string    { return p.label }

type chatCompletionRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float32       `json:"temperature"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func (p *OpenAICompatProvider) Generate(ctx context.Context, prompt string, maxTokens int, temperature float32) (string, error) {
	body, err := json.Marshal(chatCompletionRequest{
		Model: p.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: prompt},
		},
		MaxTokens:   maxTokens,
		Temperature: temperature,
	})
	if err != nil {
		return "", err
	}

	var answer string
	err = retry.Do(
		func() error {
			req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/chat/completions", bytes.NewReader(body))
			if err != nil {
				return retry.Unrecoverable(err)
			}
			req.Header.Set("Content-Type", "application/json")
			req.Header.Set("Authorization", "Bearer "+p.apiKey)

			resp, err := p.client.Do(req)
			if err != nil {
				return err
			}
			defer resp.Body.Close()

			data, err := io.ReadAll(resp.Body)
			if err != nil {
				return err
			}
			if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
				return fmt.Errorf("%s: status %d", p.label, resp.StatusCode)
			}
			if resp.StatusCode != http.StatusOK {
				return retry.Unrecoverable(fmt.Errorf("%s: status %d: %s", p.label, resp.StatusCode, string(data)))
			}

			var parsed chatCompletionResponse
			if err := json.Unmarshal(data, &parsed); err != nil {
				return retry.Unrecoverable(err)
			}
			if parsed.Error != nil {
				return retry.Unrecoverable(fmt.Errorf("%s: %s", p.label, parsed.Error.Message))
			}
			if len(parsed.Choices) == 0 {
				return retry.Unrecoverable(fmt.Errorf("%s: empty choices", p.label))
			}

			answer = strings.TrimSpace(parsed.Choices[0].Message.Content)
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(3),
		retry.Delay(500*time.Millisecond),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		return "", err
	}

	return answer, nil
}
