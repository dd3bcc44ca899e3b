package ai

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/avast/retry-go/v4"
	"google.golang.org/api/option"

	genai "github.com/google/generative-ai-go/genai"
)

// ErrEmbedderUnavailable is returned when no embedding backend is configured.
var ErrEmbedderUnavailable = errors.New("embedding model not available")

// Embedder produces dense sentence embeddings for semantic retrieval.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Available() bool
}

// GeminiEmbedder embeds text through the Google Generative AI embedding
// model (text-embedding-004 by default).
type GeminiEmbedder struct {
	model  string
	client *genai.Client
}

func NewGeminiEmbedder(apiKey, model string) (*GeminiEmbedder, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("missing GEMINI_API_KEY for embeddings")
	}
	client, err := genai.NewClient(context.Background(), option.WithAPIKey(apiKey))
	if err != nil {
		return nil, err
	}
	return &GeminiEmbedder{model: model, client: client}, nil
}

func (e *GeminiEmbedder) Available() bool { return e != nil && e.client != nil }

func (e *GeminiEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if !e.Available() {
		return nil, ErrEmbedderUnavailable
	}

	var vec []float32
	err := retry.Do(
		func() error {
			model := e.client.EmbeddingModel(e.model)
			resp, err := model.EmbedContent(ctx, genai.Text(text))
			if err != nil {
				return err
			}
			if resp.Embedding == nil || len(resp.Embedding.Values) == 0 {
				return retry.Unrecoverable(fmt.Errorf("no embedding returned"))
			}
			vec = resp.Embedding.Values
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(3),
		retry.Delay(time.Second),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		return nil, err
	}

	return vec, nil
}

func (e *GeminiEmbedder) Close() error {
	if e.client != nil {
		return e.client.Close()
	}
	return nil
}
