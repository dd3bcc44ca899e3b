package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	Port        string
	GinMode     string
	CORSOrigins []string

	// Knowledge base and retrieval engine
	KnowledgePath     string
	RAGCacheDir       string  // defaults to <knowledge dir>/.rag_cache
	RetrieveTopK      int     // k for semantic retrieval
	LexicalThreshold  float64 // below this cosine score the lexical matcher reports no-match
	SnippetPreviewLen int     // max chars per source snippet in provenance output
	MaxVocabSize      int     // TF-IDF vocabulary cap

	// Support channel surfaced in degraded/no-result responses
	SupportHotline string
	SupportEmail   string

	// Gemini (generation + embeddings)
	GeminiAPIKey          string
	GeminiModel           string
	GeminiTier            string
	GoogleEmbeddingsModel string

	// OpenAI-compatible generation backends, tried in order
	LLMProvider       string // "auto", "groq", "together", "openrouter", "ollama", "gemini", "compat"
	LLMBaseURL        string
	LLMAPIKey         string
	LLMModel          string
	GroqAPIKey        string
	GroqBaseURL       string
	GroqModel         string
	TogetherAPIKey    string
	TogetherBaseURL   string
	TogetherModel     string
	OpenRouterAPIKey  string
	OpenRouterBaseURL string
	OpenRouterModel   string
	OllamaBaseURL     string
	OllamaModel       string

	AnswerMaxTokens   int
	AnswerTemperature float64

	// Redis (rate limiting + asynq)
	RedisURL      string
	RedisPassword string
	RedisDB       int

	RateLimitReqs   int
	RateLimitWindow int

	// Knowledge document staleness watcher (minutes, 0 disables)
	KBWatchMinutes int

	// Query embedding cache TTL in minutes
	QueryEmbedCacheTTL int

	// Telemetry
	OTLPEndpoint   string
	TracingEnabled bool
}

func LoadConfig() (*Config, error) {
	// Load .env file if exists
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(); err != nil {
			return nil, fmt.Errorf("error loading .env file: %v", err)
		}
	}

	cfg := &Config{
		Port:        getEnv("PORT", "8080"),
		GinMode:     getEnv("GIN_MODE", "debug"),
		CORSOrigins: strings.Split(getEnv("CORS_ORIGINS", "http://localhost:3000,http://localhost:8080"), ","),

		KnowledgePath:     getEnv("KNOWLEDGE_PATH", "./data/chatbot_knowledge.json"),
		RAGCacheDir:       getEnv("RAG_CACHE_DIR", ""),
		RetrieveTopK:      getEnvInt("RETRIEVE_TOP_K", 3),
		LexicalThreshold:  getEnvFloat64("LEXICAL_THRESHOLD", 0.3),
		SnippetPreviewLen: getEnvInt("SNIPPET_PREVIEW_LEN", 800),
		MaxVocabSize:      getEnvInt("MAX_VOCAB_SIZE", 5000),

		SupportHotline: getEnv("SUPPORT_HOTLINE", "0981 33 66 28"),
		SupportEmail:   getEnv("SUPPORT_EMAIL", "tuyensinh@ictu.edu.vn"),

		GeminiAPIKey:          getEnv("GEMINI_API_KEY", ""),
		GeminiModel:           getEnv("GEMINI_MODEL", "gemini-2.0-flash"),
		GeminiTier:            getEnv("GEMINI_TIER", "free"),
		GoogleEmbeddingsModel: getEnv("GOOGLE_EMBEDDINGS_MODEL", "text-embedding-004"),

		LLMProvider:       strings.ToLower(getEnv("LLM_PROVIDER", "auto")),
		LLMBaseURL:        getEnv("LLM_BASE_URL", ""),
		LLMAPIKey:         getEnv("LLM_API_KEY", ""),
		LLMModel:          getEnv("LLM_MODEL", ""),
		GroqAPIKey:        getEnv("GROQ_API_KEY", ""),
		GroqBaseURL:       getEnv("GROQ_BASE_URL", "https://api.groq.com/openai/v1"),
		GroqModel:         getEnv("GROQ_MODEL", "llama-3.3-70b-versatile"),
		TogetherAPIKey:    getEnv("TOGETHER_API_KEY", ""),
		TogetherBaseURL:   getEnv("TOGETHER_BASE_URL", "https://api.together.xyz/v1"),
		TogetherModel:     getEnv("TOGETHER_MODEL", ""),
		OpenRouterAPIKey:  getEnv("OPENROUTER_API_KEY", ""),
		OpenRouterBaseURL: getEnv("OPENROUTER_BASE_URL", "https://openrouter.ai/api/v1"),
		OpenRouterModel:   getEnv("OPENROUTER_MODEL", ""),
		OllamaBaseURL:     getEnv("OLLAMA_BASE_URL", ""),
		OllamaModel:       getEnv("OLLAMA_MODEL", ""),

		AnswerMaxTokens:   getEnvInt("ANSWER_MAX_TOKENS", 500),
		AnswerTemperature: getEnvFloat64("ANSWER_TEMPERATURE", 0.7),

		RedisURL:      getEnv("REDIS_URL", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		RateLimitReqs:   getEnvInt("RATE_LIMIT_REQUESTS", 100),
		RateLimitWindow: getEnvInt("RATE_LIMIT_WINDOW", 60),

		KBWatchMinutes: getEnvInt("KB_WATCH_MINUTES", 0),

		QueryEmbedCacheTTL: getEnvInt("QUERY_EMBED_CACHE_TTL", 30),

		OTLPEndpoint:   getEnv("OTLP_ENDPOINT", "localhost:4317"),
		TracingEnabled: getEnvBool("TRACING_ENABLED", false),
	}

	if cfg.RAGCacheDir == "" {
		cfg.RAGCacheDir = filepath.Join(filepath.Dir(cfg.KnowledgePath), ".rag_cache")
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvFloat64(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}
