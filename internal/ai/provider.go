package ai

import (
	"context"
	"errors"

	"admissions-chatbot-platform/internal/config"
	"admissions-chatbot-platform/internal/logger"
)

// ErrProviderUnavailable is returned by providers that are not configured.
var ErrProviderUnavailable = errors.New("generation provider not available")

// Provider is the outbound text-generation capability the orchestrator
// depends on. Exactly one provider (possibly the fallback null object) is
// selected at startup.
type Provider interface {
	Generate(ctx context.Context, prompt string, maxTokens int, temperature float32) (string, error)
	Available() bool
	Name() string
}

// FallbackProvider is the null object used when no backend is configured.
// It always reports unavailable; callers compose snippet answers instead.
type FallbackProvider struct{}

func (FallbackProvider) Generate(ctx context.Context, prompt string, maxTokens int, temperature float32) (string, error) {
	return "", ErrProviderUnavailable
}

func (FallbackProvider) Available() bool { return false }
func (FallbackProvider) Name() string    { return "fallback" }

// systemPrompt frames every generation call as the admissions advisor.
const systemPrompt = "Bạn là trợ lý tư vấn tuyển sinh thân thiện và chuyên nghiệp của Trường Đại học Công nghệ Thông tin và Truyền thông - ĐHTN (ICTU)."

// SelectProvider walks an ordered list of provider factories and returns the
// first one that is constructible from current configuration. "No provider"
// is represented by FallbackProvider, never by nil.
func SelectProvider(cfg *config.Config) Provider {
	type candidate struct {
		name  string
		build func() (Provider, error)
	}

	wants := func(name string) bool {
		return cfg.LLMProvider == name || cfg.LLMProvider == "auto" || cfg.LLMProvider == ""
	}

	candidates := []candidate{
		{"groq", func() (Provider, error) {
			if !wants("groq") || cfg.GroqAPIKey == "" {
				return nil, ErrProviderUnavailable
			}
			return NewOpenAICompatProvider("groq", cfg.GroqBaseURL, cfg.GroqAPIKey, cfg.GroqModel)
		}},
		{"together", func() (Provider, error) {
			if !wants("together") || cfg.TogetherAPIKey == "" {
				return nil, ErrProviderUnavailable
			}
			return NewOpenAICompatProvider("together", cfg.TogetherBaseURL, cfg.TogetherAPIKey, cfg.TogetherModel)
		}},
		{"openrouter", func() (Provider, error) {
			if !wants("openrouter") || cfg.OpenRouterAPIKey == "" {
				return nil, ErrProviderUnavailable
			}
			return NewOpenAICompatProvider("openrouter", cfg.OpenRouterBaseURL, cfg.OpenRouterAPIKey, cfg.OpenRouterModel)
		}},
		{"ollama", func() (Provider, error) {
			if !wants("ollama") || cfg.OllamaBaseURL == "" {
				return nil, ErrProviderUnavailable
			}
			return NewOpenAICompatProvider("ollama", cfg.OllamaBaseURL, "none", cfg.OllamaModel)
		}},
		{"gemini", func() (Provider, error) {
			if !wants("gemini") || cfg.GeminiAPIKey == "" {
				return nil, ErrProviderUnavailable
			}
			return NewGeminiProvider(cfg.GeminiAPIKey, cfg.GeminiModel, cfg.GeminiTier)
		}},
		{"compat", func() (Provider, error) {
			if !(cfg.LLMProvider == "compat" || cfg.LLMProvider == "openai-compat" || ((cfg.LLMProvider == "auto" || cfg.LLMProvider == "") && cfg.LLMBaseURL != "")) {
				return nil, ErrProviderUnavailable
			}
			return NewOpenAICompatProvider("compat", cfg.LLMBaseURL, cfg.LLMAPIKey, cfg.LLMModel)
		}},
	}

	for _, c := range candidates {
		p, err := c.build()
		if err != nil {
			continue
		}
		if p.Available() {
			logger.Info("Generation provider selected", "provider", c.name)
			return p
		}
	}

	logger.Warn("No generation provider available, using fallback")
	return FallbackProvider{}
}
