package services

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"admissions-chatbot-platform/models"
)

// keywordEmbedder is a deterministic in-process embedder: one dimension per
// keyword, valued by occurrence count. Chunks and queries sharing a keyword
// end up colinear, so ranking is fully predictable.
type keywordEmbedder struct {
	keywords []string
	calls    int32
	failing  bool
}

func (e *keywordEmbedder) Available() bool { return true }

func (e *keywordEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	atomic.AddInt32(&e.calls, 1)
	if e.failing {
		return nil, errors.New("embedding backend down")
	}
	lower := strings.ToLower(text)
	vec := make([]float32, len(e.keywords))
	for i, kw := range e.keywords {
		vec[i] = float32(strings.Count(lower, kw))
	}
	return vec, nil
}

func (e *keywordEmbedder) callCount() int { return int(atomic.LoadInt32(&e.calls)) }

func semanticDoc(tags ...string) *models.KnowledgeDocument {
	doc := &models.KnowledgeDocument{}
	for _, tag := range tags {
		doc.Intents = append(doc.Intents, models.Intent{
			Tag:       tag,
			Patterns:  []string{tag + " question"},
			Responses: []string{tag + " answer"},
		})
	}
	return doc
}

func newTestIndex(t *testing.T, tags []string, embedder *keywordEmbedder) (*SemanticIndex, string, string) {
	t.Helper()
	kbPath := writeKB(t, semanticDoc(tags...))
	cacheDir := filepath.Join(t.TempDir(), ".rag_cache")

	index, result := NewSemanticIndex(kbPath, cacheDir, embedder, "keyword-test", time.Minute)
	if !result.OK {
		t.Fatalf("index build failed: %s", result.Reason)
	}
	return index, kbPath, cacheDir
}

func TestNewSemanticIndexNoEmbedder(t *testing.T) {
	kbPath := writeKB(t, semanticDoc("alpha"))

	index, result := NewSemanticIndex(kbPath, t.TempDir(), nil, "keyword-test", time.Minute)
	if result.OK {
		t.Fatal("index without embedder must not report OK")
	}
	if index != nil {
		t.Fatal("failed build must not return a usable index")
	}
	if result.Reason == "" {
		t.Error("failed build should carry a reason")
	}
}

func TestNewSemanticIndexEmbedderFails(t *testing.T) {
	kbPath := writeKB(t, semanticDoc("alpha"))
	embedder := &keywordEmbedder{keywords: []string{"alpha"}, failing: true}

	_, result := NewSemanticIndex(kbPath, t.TempDir(), embedder, "keyword-test", time.Minute)
	if result.OK {
		t.Fatal("index with failing embedder must not report OK")
	}
}

func TestRetrieveRanking(t *testing.T) {
	tags := []string{"alpha", "beta", "gamma", "delta", "epsilon"}
	embedder := &keywordEmbedder{keywords: tags}
	index, _, _ := newTestIndex(t, tags, embedder)

	results, err := index.Retrieve(context.Background(), "gamma", 3)
	if err != nil {
		t.Fatalf("retrieve: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("got %d results, want 3", len(results))
	}

	if !strings.Contains(results[0].Chunk.Text, "gamma") {
		t.Errorf("top hit should mention the query keyword: %q", results[0].Chunk.Text)
	}
	for i := 1; i < len(results); i++ {
		if results[i].Score > results[i-1].Score {
			t.Errorf("scores not non-increasing at rank %d: %f > %f",
				i, results[i].Score, results[i-1].Score)
		}
	}
	for _, r := range results {
		if r.Score < -1.0001 || r.Score > 1.0001 {
			t.Errorf("score %f outside unit-vector bounds", r.Score)
		}
	}
}

func TestRetrieveTopKBounds(t *testing.T) {
	tags := []string{"alpha", "beta", "gamma", "delta", "epsilon"}
	embedder := &keywordEmbedder{keywords: tags}
	index, _, _ := newTestIndex(t, tags, embedder)

	results, err := index.Retrieve(context.Background(), "alpha", 50)
	if err != nil {
		t.Fatalf("retrieve: %v", err)
	}
	if len(results) != len(tags) {
		t.Errorf("topK above corpus size: got %d results, want %d", len(results), len(tags))
	}

	results, err = index.Retrieve(context.Background(), "alpha", 0)
	if err != nil {
		t.Fatalf("retrieve: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("topK 0: got %d results, want none", len(results))
	}
}

func TestRetrieveEmptyCorpus(t *testing.T) {
	embedder := &keywordEmbedder{keywords: []string{"alpha"}}
	index, _, _ := newTestIndex(t, nil, embedder)

	results, err := index.Retrieve(context.Background(), "alpha", 3)
	if err != nil {
		t.Fatalf("retrieve over empty corpus: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("empty corpus should yield no results, got %d", len(results))
	}
}

func TestCacheRoundtrip(t *testing.T) {
	tags := []string{"alpha", "beta", "gamma"}
	embedder := &keywordEmbedder{keywords: tags}
	index, kbPath, cacheDir := newTestIndex(t, tags, embedder)

	built := embedder.callCount()
	if built != len(tags) {
		t.Fatalf("corpus build used %d embed calls, want %d", built, len(tags))
	}

	// A second index over the same document loads the cache and must not
	// re-embed the corpus.
	reloaded, result := NewSemanticIndex(kbPath, cacheDir, embedder, "keyword-test", time.Minute)
	if !result.OK {
		t.Fatalf("cache load failed: %s", result.Reason)
	}
	if embedder.callCount() != built {
		t.Fatalf("cache load re-embedded the corpus: %d calls, want %d", embedder.callCount(), built)
	}
	if reloaded.ChunkCount() != index.ChunkCount() {
		t.Fatalf("cached index has %d chunks, want %d", reloaded.ChunkCount(), index.ChunkCount())
	}

	results, err := reloaded.Retrieve(context.Background(), "beta", 1)
	if err != nil {
		t.Fatalf("retrieve on cached index: %v", err)
	}
	if len(results) != 1 || !strings.Contains(results[0].Chunk.Text, "beta") {
		t.Fatalf("cached index retrieval broken: %+v", results)
	}
	if results[0].Chunk.Metadata["tag"] != "beta" {
		t.Errorf("metadata lost through cache roundtrip: %v", results[0].Chunk.Metadata)
	}
}

func TestCacheInvalidatedByEmbeddingModelChange(t *testing.T) {
	tags := []string{"alpha", "beta", "gamma"}
	embedder := &keywordEmbedder{keywords: tags}
	_, kbPath, cacheDir := newTestIndex(t, tags, embedder)

	built := embedder.callCount()

	// Same document, different embedding model: the cached vectors must
	// not be reused.
	_, result := NewSemanticIndex(kbPath, cacheDir, embedder, "keyword-test-v2", time.Minute)
	if !result.OK {
		t.Fatalf("rebuild under new model failed: %s", result.Reason)
	}
	if embedder.callCount() != built+len(tags) {
		t.Fatalf("model change did not force a corpus rebuild: %d calls, want %d",
			embedder.callCount(), built+len(tags))
	}
}

func TestQueryEmbeddingCached(t *testing.T) {
	tags := []string{"alpha", "beta"}
	embedder := &keywordEmbedder{keywords: tags}
	index, _, _ := newTestIndex(t, tags, embedder)

	before := embedder.callCount()
	for i := 0; i < 5; i++ {
		if _, err := index.Retrieve(context.Background(), "alpha", 1); err != nil {
			t.Fatalf("retrieve: %v", err)
		}
	}
	if got := embedder.callCount() - before; got != 1 {
		t.Errorf("repeated identical query used %d embed calls, want 1", got)
	}
}

func TestRebuildServesReadersThroughout(t *testing.T) {
	tags := []string{"alpha", "beta", "gamma", "delta", "epsilon"}
	embedder := &keywordEmbedder{keywords: tags}
	index, _, _ := newTestIndex(t, tags, embedder)

	stop := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				results, err := index.Retrieve(context.Background(), "alpha", 3)
				if err != nil {
					t.Errorf("retrieve during rebuild: %v", err)
					return
				}
				if len(results) != 3 {
					t.Errorf("got %d results during rebuild, want 3", len(results))
					return
				}
			}
		}()
	}

	for i := 0; i < 3; i++ {
		if err := index.Rebuild(context.Background()); err != nil {
			t.Fatalf("rebuild %d: %v", i, err)
		}
	}
	close(stop)
	wg.Wait()

	if index.ChunkCount() != len(tags) {
		t.Fatalf("chunk count after rebuild = %d, want %d", index.ChunkCount(), len(tags))
	}
}

func TestRebuildPicksUpDocumentChanges(t *testing.T) {
	tags := []string{"alpha", "beta"}
	embedder := &keywordEmbedder{keywords: append(tags, "zeta")}
	index, kbPath, _ := newTestIndex(t, tags, embedder)

	oldHash := index.DocHash()

	data, err := json.Marshal(semanticDoc("alpha", "beta", "zeta"))
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(kbPath, data, 0o644); err != nil {
		t.Fatal(err)
	}

	if err := index.Rebuild(context.Background()); err != nil {
		t.Fatalf("rebuild: %v", err)
	}

	if index.ChunkCount() != 3 {
		t.Errorf("chunk count after rebuild = %d, want 3", index.ChunkCount())
	}
	if index.DocHash() == oldHash {
		t.Error("doc hash unchanged after the document changed")
	}

	results, err := index.Retrieve(context.Background(), "zeta", 1)
	if err != nil {
		t.Fatalf("retrieve: %v", err)
	}
	if len(results) != 1 || !strings.Contains(results[0].Chunk.Text, "zeta") {
		t.Fatalf("new chunk not retrievable after rebuild: %+v", results)
	}
}
