package services

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"admissions-chatbot-platform/internal/ai"
	"admissions-chatbot-platform/internal/config"
	"admissions-chatbot-platform/models"
)

func testConfig(t *testing.T, kbPath string) *config.Config {
	t.Helper()
	return &config.Config{
		KnowledgePath:      kbPath,
		RAGCacheDir:        filepath.Join(t.TempDir(), ".rag_cache"),
		RetrieveTopK:       3,
		LexicalThreshold:   0.3,
		SnippetPreviewLen:  800,
		MaxVocabSize:       5000,
		SupportHotline:     "0981 33 66 28",
		SupportEmail:       "tuyensinh@ictu.edu.vn",
		AnswerMaxTokens:    500,
		AnswerTemperature:  0.7,
		QueryEmbedCacheTTL: 1,
	}
}

type fixedProvider struct {
	reply      string
	lastPrompt string
	calls      int32
}

func (p *fixedProvider) Generate(ctx context.Context, prompt string, maxTokens int, temperature float32) (string, error) {
	atomic.AddInt32(&p.calls, 1)
	p.lastPrompt = prompt
	return p.reply, nil
}
func (p *fixedProvider) Available() bool { return true }
func (p *fixedProvider) Name() string    { return "fixed" }

type erroringProvider struct{}

func (erroringProvider) Generate(ctx context.Context, prompt string, maxTokens int, temperature float32) (string, error) {
	return "", errors.New("upstream 500")
}
func (erroringProvider) Available() bool { return true }
func (erroringProvider) Name() string    { return "erroring" }

type panickingProvider struct{}

func (panickingProvider) Generate(ctx context.Context, prompt string, maxTokens int, temperature float32) (string, error) {
	panic("provider blew up")
}
func (panickingProvider) Available() bool { return true }
func (panickingProvider) Name() string    { return "panicking" }

func TestAnswerEmptyQuerySkipsRetrieval(t *testing.T) {
	tags := []string{"alpha", "beta"}
	embedder := &keywordEmbedder{keywords: tags}
	cfg := testConfig(t, writeKB(t, semanticDoc(tags...)))

	engine := NewChatEngine(cfg, embedder, &fixedProvider{reply: "ok"})
	if !engine.SemanticMode() {
		t.Fatal("expected semantic mode")
	}

	afterBuild := embedder.callCount()
	for _, q := range []string{"", "   ", "\t\n"} {
		got := engine.Answer(context.Background(), q)
		if got != msgEmptyQuery {
			t.Errorf("Answer(%q) = %q, want empty-query prompt", q, got)
		}
	}
	if embedder.callCount() != afterBuild {
		t.Errorf("empty query triggered %d embed calls", embedder.callCount()-afterBuild)
	}
}

func TestLexicalModeWithoutEmbedder(t *testing.T) {
	cfg := testConfig(t, writeKB(t, lexicalDoc()))

	engine := NewChatEngine(cfg, nil, ai.FallbackProvider{})
	if engine.SemanticMode() {
		t.Fatal("engine without embedder must run in lexical mode")
	}

	if got := engine.Answer(context.Background(), "xin chào"); got != "Chào bạn!" {
		t.Errorf("lexical answer = %q, want greeting response", got)
	}

	result := engine.AnswerWithSources(context.Background(), "xin chào", 3)
	if result.SemanticMode {
		t.Error("result should report lexical mode")
	}
	if len(result.Sources) != 0 {
		t.Errorf("lexical mode must not report sources, got %d", len(result.Sources))
	}
}

func TestLexicalModeEmptyKnowledge(t *testing.T) {
	cfg := testConfig(t, filepath.Join(t.TempDir(), "missing.json"))

	engine := NewChatEngine(cfg, nil, ai.FallbackProvider{})
	got := engine.Answer(context.Background(), "học phí bao nhiêu?")

	found := false
	for _, d := range defaultResponses {
		if got == d {
			found = true
		}
	}
	if !found {
		t.Errorf("empty knowledge base answer = %q, want a default prompt", got)
	}
}

func TestGenerationPath(t *testing.T) {
	tags := []string{"alpha", "beta"}
	embedder := &keywordEmbedder{keywords: tags}
	cfg := testConfig(t, writeKB(t, semanticDoc(tags...)))
	provider := &fixedProvider{reply: "Ngành alpha tuyển 100 chỉ tiêu."}

	engine := NewChatEngine(cfg, embedder, provider)
	got := engine.Answer(context.Background(), "alpha")

	if got != provider.reply {
		t.Errorf("Answer = %q, want provider reply", got)
	}
	if !strings.Contains(provider.lastPrompt, "[Tài liệu 1]") {
		t.Error("prompt missing numbered document labels")
	}
	if !strings.Contains(provider.lastPrompt, "alpha") {
		t.Error("prompt missing the user query")
	}
	if !strings.Contains(provider.lastPrompt, cfg.SupportHotline) {
		t.Error("prompt missing the support hotline instruction")
	}
}

func TestProviderErrorBecomesApology(t *testing.T) {
	tags := []string{"alpha"}
	embedder := &keywordEmbedder{keywords: tags}
	cfg := testConfig(t, writeKB(t, semanticDoc(tags...)))

	engine := NewChatEngine(cfg, embedder, erroringProvider{})
	got := engine.Answer(context.Background(), "alpha")

	if !strings.Contains(got, cfg.SupportHotline) {
		t.Errorf("provider-error answer should name the hotline: %q", got)
	}
}

func TestProviderPanicIsRecovered(t *testing.T) {
	tags := []string{"alpha"}
	embedder := &keywordEmbedder{keywords: tags}
	cfg := testConfig(t, writeKB(t, semanticDoc(tags...)))

	engine := NewChatEngine(cfg, embedder, panickingProvider{})
	got := engine.Answer(context.Background(), "alpha")

	if !strings.Contains(got, "lỗi") {
		t.Errorf("panic should degrade to the internal error message, got %q", got)
	}
}

func TestEmbeddingFailureBecomesInternalMessage(t *testing.T) {
	tags := []string{"alpha", "beta"}
	embedder := &keywordEmbedder{keywords: tags}
	cfg := testConfig(t, writeKB(t, semanticDoc(tags...)))

	engine := NewChatEngine(cfg, embedder, &fixedProvider{reply: "should not be reached"})
	if !engine.SemanticMode() {
		t.Fatal("expected semantic mode")
	}

	// the embedding backend goes down after the index is built
	embedder.failing = true

	got := engine.Answer(context.Background(), "alpha")
	if got != engine.internalErrorMessage() {
		t.Errorf("embed failure answer = %q, want the internal error message", got)
	}
	if !strings.Contains(got, cfg.SupportHotline) {
		t.Errorf("embed failure answer should name the hotline: %q", got)
	}

	result := engine.AnswerWithSources(context.Background(), "alpha", cfg.RetrieveTopK)
	if len(result.Sources) != 0 {
		t.Errorf("failed retrieval reported %d sources", len(result.Sources))
	}
	if result.Response != engine.internalErrorMessage() {
		t.Errorf("AnswerWithSources response = %q, want the internal error message", result.Response)
	}
}

func TestSnippetAnswerWithoutProvider(t *testing.T) {
	tags := []string{"alpha", "beta", "gamma", "delta", "epsilon"}
	embedder := &keywordEmbedder{keywords: tags}
	cfg := testConfig(t, writeKB(t, semanticDoc(tags...)))

	engine := NewChatEngine(cfg, embedder, ai.FallbackProvider{})
	result := engine.AnswerWithSources(context.Background(), "gamma", cfg.RetrieveTopK)

	if len(result.Sources) != 3 {
		t.Fatalf("got %d sources, want 3", len(result.Sources))
	}
	for i, src := range result.Sources {
		if src.Rank != i+1 {
			t.Errorf("source %d has rank %d", i, src.Rank)
		}
		if src.Snippet == "" {
			t.Errorf("source %d has empty snippet", i)
		}
	}

	if !strings.Contains(result.Response, "[Tài liệu 1") {
		t.Error("snippet answer missing labeled excerpts")
	}
	if !strings.Contains(result.Response, "score=") {
		t.Error("snippet answer missing scores")
	}
	if !strings.Contains(result.Response, "cấu hình") {
		t.Error("snippet answer missing the configuration hint")
	}
}

func TestAnswerMatchesAnswerWithSources(t *testing.T) {
	tags := []string{"alpha", "beta", "gamma"}
	embedder := &keywordEmbedder{keywords: tags}
	cfg := testConfig(t, writeKB(t, semanticDoc(tags...)))

	// the snippet path is deterministic, so both entry points must agree
	engine := NewChatEngine(cfg, embedder, ai.FallbackProvider{})

	plain := engine.Answer(context.Background(), "beta")
	detailed := engine.AnswerWithSources(context.Background(), "beta", cfg.RetrieveTopK)
	if plain != detailed.Response {
		t.Errorf("Answer and AnswerWithSources disagree:\n%q\n%q", plain, detailed.Response)
	}
}

func TestNoRetrievalResultsMessage(t *testing.T) {
	embedder := &keywordEmbedder{keywords: []string{"alpha"}}
	cfg := testConfig(t, writeKB(t, semanticDoc()))

	engine := NewChatEngine(cfg, embedder, &fixedProvider{reply: "should not be called"})
	result := engine.AnswerWithSources(context.Background(), "alpha", 3)

	if len(result.Sources) != 0 {
		t.Errorf("empty corpus produced %d sources", len(result.Sources))
	}
	if !strings.Contains(result.Response, cfg.SupportHotline) || !strings.Contains(result.Response, cfg.SupportEmail) {
		t.Errorf("no-results answer should name the support channel: %q", result.Response)
	}
}

func TestRebuildRefreshesEngine(t *testing.T) {
	kbPath := writeKB(t, lexicalDoc())
	cfg := testConfig(t, kbPath)

	engine := NewChatEngine(cfg, nil, ai.FallbackProvider{})
	oldHash := engine.DocHash()
	if oldHash == "" {
		t.Fatal("expected a document hash after construction")
	}

	updated := lexicalDoc()
	updated.Intents = append(updated.Intents, models.Intent{
		Tag:       "ky_tuc_xa",
		Patterns:  []string{"ký túc xá thế nào"},
		Responses: []string{"Ký túc xá có đủ chỗ cho sinh viên năm nhất."},
	})
	if err := overwriteKB(t, kbPath, updated); err != nil {
		t.Fatal(err)
	}

	if err := engine.Rebuild(context.Background()); err != nil {
		t.Fatalf("rebuild: %v", err)
	}

	if engine.DocHash() == oldHash {
		t.Error("doc hash unchanged after rebuild over a changed document")
	}
	if got := engine.Answer(context.Background(), "ký túc xá thế nào"); !strings.Contains(got, "Ký túc xá") {
		t.Errorf("new intent not answerable after rebuild: %q", got)
	}
}

func TestSnippetTruncation(t *testing.T) {
	long := strings.Repeat("điểm chuẩn ", 200)
	got := snippet(long, 50)
	if n := len([]rune(got)); n > 50 {
		t.Errorf("snippet has %d runes, want at most 50", n)
	}
	if strings.Contains(got, "\n") {
		t.Error("snippet should collapse whitespace")
	}
}
