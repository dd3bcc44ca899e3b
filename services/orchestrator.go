package services

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"admissions-chatbot-platform/internal/ai"
	"admissions-chatbot-platform/internal/config"
	"admissions-chatbot-platform/internal/logger"
	"admissions-chatbot-platform/internal/telemetry"
	"admissions-chatbot-platform/models"
	"admissions-chatbot-platform/utils"
)

const msgEmptyQuery = "Xin lỗi, tôi không nhận được câu hỏi của bạn. Bạn cần hỗ trợ gì?"

// ChatEngine selects between semantic retrieval (preferred) and the lexical
// fallback matcher once at construction, then answers queries through the
// chosen path. It never propagates an internal error to its caller; every
// failure becomes a user-facing message.
type ChatEngine struct {
	cfg          *config.Config
	semantic     *SemanticIndex
	lexical      atomic.Pointer[LexicalMatcher]
	provider     ai.Provider
	semanticMode bool
	docHash      atomic.Pointer[string]
	metrics      *telemetry.Metrics
}

// SetMetrics attaches the metrics bundle. Optional; a nil receiver field
// means no recording.
func (e *ChatEngine) SetMetrics(m *telemetry.Metrics) { e.metrics = m }

// NewChatEngine attempts to build the semantic index; on failure it
// permanently downgrades to lexical mode for the lifetime of the engine.
func NewChatEngine(cfg *config.Config, embedder ai.Embedder, provider ai.Provider) *ChatEngine {
	if provider == nil {
		provider = ai.FallbackProvider{}
	}
	engine := &ChatEngine{cfg: cfg, provider: provider}

	ttl := time.Duration(cfg.QueryEmbedCacheTTL) * time.Minute
	index, result := NewSemanticIndex(cfg.KnowledgePath, cfg.RAGCacheDir, embedder, cfg.GoogleEmbeddingsModel, ttl)
	if result.OK {
		engine.semantic = index
		engine.semanticMode = true
		logger.Info("Chat engine ready in semantic mode", "chunks", index.ChunkCount(), "provider", provider.Name())
	} else {
		logger.Warn("Semantic index unavailable, falling back to lexical mode", "reason", result.Reason)
		engine.buildLexical()
		logger.Info("Chat engine ready in lexical mode")
	}

	if hash, err := utils.FileSHA256(cfg.KnowledgePath); err == nil {
		engine.docHash.Store(&hash)
	}

	return engine
}

func (e *ChatEngine) buildLexical() {
	doc := LoadKnowledge(e.cfg.KnowledgePath)
	e.lexical.Store(NewLexicalMatcher(doc, e.cfg.LexicalThreshold, e.cfg.MaxVocabSize))
}

// SemanticMode reports whether the engine runs on the semantic index. The
// decision is made once at construction and never re-evaluated per query.
func (e *ChatEngine) SemanticMode() bool { return e.semanticMode }

// ProviderName names the active generation backend.
func (e *ChatEngine) ProviderName() string { return e.provider.Name() }

// DocHash is the content hash of the knowledge document the engine last
// built from; empty when the document could not be read.
func (e *ChatEngine) DocHash() string {
	if h := e.docHash.Load(); h != nil {
		return *h
	}
	return ""
}

// Answer returns a response for the query. Always returns a string, never
// an error: internal failures degrade to fixed messages.
func (e *ChatEngine) Answer(ctx context.Context, query string) string {
	return e.AnswerWithSources(ctx, query, e.cfg.RetrieveTopK).Response
}

// AnswerWithSources answers the query and additionally reports the ranked
// source list with per-source rank, score, metadata, and snippet. Response
// text is identical to Answer for the same query and engine state.
func (e *ChatEngine) AnswerWithSources(ctx context.Context, query string, topK int) (result models.AnswerResult) {
	result = models.AnswerResult{
		Sources:      []models.Source{},
		SemanticMode: e.semanticMode,
		Provider:     e.provider.Name(),
	}

	defer func() {
		if r := recover(); r != nil {
			logger.Error("Panic while answering query", "query", query, "panic", r)
			result.Response = e.internalErrorMessage()
		}
	}()

	if strings.TrimSpace(query) == "" {
		result.Response = msgEmptyQuery
		return result
	}

	tracer := otel.Tracer("chat-engine")
	ctx, span := tracer.Start(ctx, "engine.answer")
	defer span.End()
	span.SetAttributes(
		attribute.Bool("engine.semantic_mode", e.semanticMode),
		attribute.String("engine.provider", e.provider.Name()),
	)

	if !e.semanticMode {
		matcher := e.lexical.Load()
		if matcher == nil {
			result.Response = e.internalErrorMessage()
			return result
		}
		result.Response = matcher.Respond(query)
		return result
	}

	retrieved, err := e.semantic.Retrieve(ctx, query, topK)
	if err != nil {
		logger.Error("Retrieval failed", "query", query, "error", err)
		span.SetAttributes(attribute.Bool("engine.retrieval_error", true))
		result.Response = e.internalErrorMessage()
		return result
	}
	span.SetAttributes(attribute.Int("engine.retrieved", len(retrieved)))
	if e.metrics != nil {
		e.metrics.RecordRetrieval(len(retrieved))
	}

	for i, hit := range retrieved {
		result.Sources = append(result.Sources, models.Source{
			Rank:    i + 1,
			Score:   hit.Score,
			Meta:    hit.Chunk.Metadata,
			Snippet: snippet(hit.Chunk.Text, e.cfg.SnippetPreviewLen),
		})
	}

	if len(retrieved) == 0 {
		result.Response = fmt.Sprintf(
			"Xin lỗi, tôi chưa tìm được thông tin liên quan trong cơ sở tri thức. Vui lòng liên hệ hotline %s hoặc email %s.",
			e.cfg.SupportHotline, e.cfg.SupportEmail)
		return result
	}

	if !e.provider.Available() {
		result.Response = e.composeSnippetAnswer(result.Sources)
		return result
	}

	prompt := e.buildRAGPrompt(query, retrieved)
	answer, err := e.provider.Generate(ctx, prompt, e.cfg.AnswerMaxTokens, float32(e.cfg.AnswerTemperature))
	if e.metrics != nil {
		e.metrics.RecordProviderCall(e.provider.Name(), err == nil)
	}
	if err != nil {
		logger.Error("Generation provider failed", "provider", e.provider.Name(), "query", query, "error", err)
		span.SetAttributes(attribute.Bool("engine.provider_error", true))
		result.Response = fmt.Sprintf(
			"Xin lỗi, hiện tại tôi chưa thể tạo câu trả lời. Vui lòng thử lại sau hoặc liên hệ hotline %s / email %s để được hỗ trợ trực tiếp.",
			e.cfg.SupportHotline, e.cfg.SupportEmail)
		return result
	}

	result.Response = answer
	return result
}

// Rebuild recomputes the active retrieval structure from the knowledge
// document. Semantic mode rebuilds and atomically swaps the vector index;
// lexical mode refits the TF-IDF matcher.
func (e *ChatEngine) Rebuild(ctx context.Context) error {
	if e.semanticMode {
		if err := e.semantic.Rebuild(ctx); err != nil {
			return err
		}
	} else {
		e.buildLexical()
	}

	if hash, err := utils.FileSHA256(e.cfg.KnowledgePath); err == nil {
		e.docHash.Store(&hash)
	}
	return nil
}

// buildRAGPrompt numbers the retrieved excerpts and instructs the model to
// answer only from them, deferring to the support channel otherwise.
func (e *ChatEngine) buildRAGPrompt(query string, retrieved []models.RetrievalResult) string {
	var sb strings.Builder
	for i, hit := range retrieved {
		fmt.Fprintf(&sb, "[Tài liệu %d]\n%s\n\n", i+1, hit.Chunk.Text)
	}

	return fmt.Sprintf(`Dựa vào các tài liệu sau đây về Trường Đại học Công nghệ Thông tin và Truyền thông - ĐHTN (ICTU), hãy trả lời câu hỏi của sinh viên một cách chính xác, thân thiện và chuyên nghiệp.

TÀI LIỆU THAM KHẢO:
%s
CÂU HỎI: %s

HƯỚNG DẪN TRẢ LỜI:
- Trả lời ngắn gọn, rõ ràng, dễ hiểu
- Chỉ dùng thông tin từ tài liệu tham khảo
- Nếu không có thông tin trong tài liệu, hãy nói "Hiện tại tôi chưa có thông tin này. Vui lòng liên hệ hotline %s hoặc email %s"
- Thêm thông tin liên hệ nếu cần thiết
- Giữ giọng văn thân thiện, tư vấn viên chuyên nghiệp

TRẢ LỜI:`, sb.String(), query, e.cfg.SupportHotline, e.cfg.SupportEmail)
}

// composeSnippetAnswer is the degraded answer used when retrieval found
// material but no generation provider is configured: labeled previews of
// every retrieved excerpt plus a configuration hint.
func (e *ChatEngine) composeSnippetAnswer(sources []models.Source) string {
	parts := make([]string, 0, len(sources))
	for _, src := range sources {
		var metaParts []string
		for _, key := range []string{"type", "ten_nganh", "ma_nganh"} {
			if v, ok := src.Meta[key]; ok && v != "" {
				metaParts = append(metaParts, v)
			}
		}
		label := fmt.Sprintf("[Tài liệu %d", src.Rank)
		if len(metaParts) > 0 {
			label += " | " + strings.Join(metaParts, ", ")
		}
		label += fmt.Sprintf(" | score=%.3f]", src.Score)
		parts = append(parts, label+"\n"+src.Snippet)
	}

	return "Hiện tại hệ thống LLM chưa được cấu hình. Dưới đây là thông tin tìm thấy từ cơ sở tri thức (tài liệu tham khảo):\n\n" +
		strings.Join(parts, "\n\n") +
		"\n\nNếu bạn muốn câu trả lời tự nhiên hơn, hãy cấu hình API key cho một LLM provider (GROQ_API_KEY, GEMINI_API_KEY, ...) trong file .env rồi khởi động lại server."
}

func (e *ChatEngine) internalErrorMessage() string {
	return fmt.Sprintf(
		"Xin lỗi, đã xảy ra lỗi khi xử lý câu hỏi. Vui lòng thử lại hoặc liên hệ hotline %s.",
		e.cfg.SupportHotline)
}

// snippet collapses whitespace and truncates to at most limit runes.
func snippet(text string, limit int) string {
	collapsed := strings.Join(strings.Fields(text), " ")
	runes := []rune(collapsed)
	if limit > 0 && len(runes) > limit {
		return string(runes[:limit])
	}
	return collapsed
}
