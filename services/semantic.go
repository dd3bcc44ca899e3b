package services

import (
	"context"
	"encoding/gob"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"admissions-chatbot-platform/internal/ai"
	"admissions-chatbot-platform/internal/logger"
	"admissions-chatbot-platform/models"
	"admissions-chatbot-platform/utils"
)

const (
	vectorsFile  = "vectors.gob"
	chunksFile   = "chunks.gob"
	metadataFile = "metadata.gob"
	hashFile     = "kb.sha256"
)

// BuildResult reports the outcome of an index build. The orchestrator
// consumes it for mode selection instead of catching panics.
type BuildResult struct {
	OK     bool
	Reason string
}

// chunkMeta is the serialized per-chunk metadata cache artifact.
type chunkMeta struct {
	Metadata  models.Metadata
	SourceTag string
}

// snapshot is the immutable (vectors, chunks) pair served to readers.
// Rebuild replaces the whole snapshot atomically; readers never observe a
// vector count that disagrees with the chunk count.
type snapshot struct {
	vectors [][]float32 // L2-normalized, one row per chunk
	chunks  []models.Chunk
	docHash string
}

// SemanticIndex embeds knowledge chunks into a dense vector space and
// serves nearest-neighbor search by inner product (cosine similarity on
// unit vectors). Built once and cached; queries read a shared snapshot.
type SemanticIndex struct {
	kbPath     string
	cacheDir   string
	embedder   ai.Embedder
	embedModel string
	snap       atomic.Pointer[snapshot]
	queryCache *gocache.Cache
	buildMu    sync.Mutex
}

// NewSemanticIndex loads the cached index if all artifacts are present and
// match the current knowledge document, otherwise builds from scratch. A
// failed build never leaves the index half-initialized; the returned
// BuildResult tells the orchestrator whether semantic mode is usable.
// embedModel is part of the cache key: vectors from one embedding model are
// never served against queries embedded with another.
func NewSemanticIndex(kbPath, cacheDir string, embedder ai.Embedder, embedModel string, queryCacheTTL time.Duration) (*SemanticIndex, BuildResult) {
	if embedder == nil || !embedder.Available() {
		return nil, BuildResult{OK: false, Reason: "embedding model not configured"}
	}

	s := &SemanticIndex{
		kbPath:     kbPath,
		cacheDir:   cacheDir,
		embedder:   embedder,
		embedModel: embedModel,
		queryCache: gocache.New(queryCacheTTL, 2*queryCacheTTL),
	}

	if snap, err := s.loadCache(); err == nil {
		s.snap.Store(snap)
		logger.Info("Semantic index loaded from cache", "chunks", len(snap.chunks))
		return s, BuildResult{OK: true}
	} else if !os.IsNotExist(err) {
		logger.Warn("Failed to load index cache, rebuilding", "error", err)
	}

	snap, err := s.build(context.Background())
	if err != nil {
		return nil, BuildResult{OK: false, Reason: err.Error()}
	}
	s.snap.Store(snap)
	s.saveCache(snap)
	logger.Info("Semantic index built", "chunks", len(snap.chunks))

	return s, BuildResult{OK: true}
}

// Retrieve runs a k-nearest-neighbor search over the current snapshot.
// Returns an empty list when the index is uninitialized, topK <= 0, or the
// corpus is empty; callers treat that as "no relevant knowledge found".
func (s *SemanticIndex) Retrieve(ctx context.Context, query string, topK int) ([]models.RetrievalResult, error) {
	snap := s.snap.Load()
	if snap == nil || topK <= 0 || len(snap.chunks) == 0 {
		return []models.RetrievalResult{}, nil
	}

	qvec, err := s.embedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query embedding failed: %w", err)
	}

	type hit struct {
		idx   int
		score float32
	}
	hits := make([]hit, len(snap.vectors))
	for i, row := range snap.vectors {
		hits[i] = hit{idx: i, score: dot(row, qvec)}
	}
	sort.SliceStable(hits, func(a, b int) bool { return hits[a].score > hits[b].score })

	if topK > len(hits) {
		topK = len(hits)
	}
	results := make([]models.RetrievalResult, 0, topK)
	for _, h := range hits[:topK] {
		results = append(results, models.RetrievalResult{
			ChunkIndex: h.idx,
			Score:      h.score,
			Chunk:      snap.chunks[h.idx],
		})
	}
	return results, nil
}

// Rebuild discards cached artifacts, recomputes the index from the current
// knowledge document, and swaps it in atomically. In-flight reads keep the
// old snapshot until they finish.
func (s *SemanticIndex) Rebuild(ctx context.Context) error {
	s.buildMu.Lock()
	defer s.buildMu.Unlock()

	s.dropCache()

	snap, err := s.build(ctx)
	if err != nil {
		return fmt.Errorf("index rebuild failed: %w", err)
	}

	s.snap.Store(snap)
	s.queryCache.Flush()
	s.saveCache(snap)
	logger.Info("Semantic index rebuilt", "chunks", len(snap.chunks))
	return nil
}

// ChunkCount reports the number of chunks in the current snapshot.
func (s *SemanticIndex) ChunkCount() int {
	if snap := s.snap.Load(); snap != nil {
		return len(snap.chunks)
	}
	return 0
}

// DocHash reports the content hash of the document the current snapshot was
// built from. The staleness watcher compares it against the file on disk.
func (s *SemanticIndex) DocHash() string {
	if snap := s.snap.Load(); snap != nil {
		return snap.docHash
	}
	return ""
}

func (s *SemanticIndex) build(ctx context.Context) (*snapshot, error) {
	doc := LoadKnowledge(s.kbPath)
	chunks := ExtractChunks(doc)

	docHash, err := utils.FileSHA256(s.kbPath)
	if err != nil {
		docHash = ""
	}

	vectors := make([][]float32, 0, len(chunks))
	for i, chunk := range chunks {
		vec, err := s.embedder.Embed(ctx, chunk.Text)
		if err != nil {
			return nil, fmt.Errorf("embedding chunk %d: %w", i, err)
		}
		vectors = append(vectors, normalize(vec))
	}

	return &snapshot{vectors: vectors, chunks: chunks, docHash: docHash}, nil
}

func (s *SemanticIndex) embedQuery(ctx context.Context, query string) ([]float32, error) {
	if cached, ok := s.queryCache.Get(query); ok {
		return cached.([]float32), nil
	}

	vec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, err
	}
	qvec := normalize(vec)
	s.queryCache.SetDefault(query, qvec)
	return qvec, nil
}

// loadCache reads the three cache artifacts and validates them against the
// current knowledge document's content hash and the embedding model name.
// Any inconsistency is an error; the caller falls back to a full build.
func (s *SemanticIndex) loadCache() (*snapshot, error) {
	wantHash, err := utils.FileSHA256(s.kbPath)
	if err != nil {
		return nil, err
	}

	got, err := os.ReadFile(filepath.Join(s.cacheDir, hashFile))
	if err != nil {
		return nil, err
	}
	if string(got) != s.cacheKey(wantHash) {
		return nil, fmt.Errorf("cache built from a different knowledge document or embedding model")
	}

	var vectors [][]float32
	if err := readGob(filepath.Join(s.cacheDir, vectorsFile), &vectors); err != nil {
		return nil, err
	}
	var texts []string
	if err := readGob(filepath.Join(s.cacheDir, chunksFile), &texts); err != nil {
		return nil, err
	}
	var metas []chunkMeta
	if err := readGob(filepath.Join(s.cacheDir, metadataFile), &metas); err != nil {
		return nil, err
	}

	if len(vectors) != len(texts) || len(texts) != len(metas) {
		return nil, fmt.Errorf("cache artifacts disagree: %d vectors, %d chunks, %d metadata",
			len(vectors), len(texts), len(metas))
	}

	chunks := make([]models.Chunk, len(texts))
	for i := range texts {
		chunks[i] = models.Chunk{
			Text:      texts[i],
			Metadata:  metas[i].Metadata,
			SourceTag: metas[i].SourceTag,
		}
	}

	return &snapshot{vectors: vectors, chunks: chunks, docHash: wantHash}, nil
}

func (s *SemanticIndex) saveCache(snap *snapshot) {
	if err := os.MkdirAll(s.cacheDir, 0o755); err != nil {
		logger.Warn("Could not create cache dir, index will not be cached", "dir", s.cacheDir, "error", err)
		return
	}

	texts := make([]string, len(snap.chunks))
	metas := make([]chunkMeta, len(snap.chunks))
	for i, c := range snap.chunks {
		texts[i] = c.Text
		metas[i] = chunkMeta{Metadata: c.Metadata, SourceTag: c.SourceTag}
	}

	if err := writeGob(filepath.Join(s.cacheDir, vectorsFile), snap.vectors); err != nil {
		logger.Warn("Could not save vector cache", "error", err)
		return
	}
	if err := writeGob(filepath.Join(s.cacheDir, chunksFile), texts); err != nil {
		logger.Warn("Could not save chunk cache", "error", err)
		return
	}
	if err := writeGob(filepath.Join(s.cacheDir, metadataFile), metas); err != nil {
		logger.Warn("Could not save metadata cache", "error", err)
		return
	}
	if err := os.WriteFile(filepath.Join(s.cacheDir, hashFile), []byte(s.cacheKey(snap.docHash)), 0o644); err != nil {
		logger.Warn("Could not save knowledge hash", "error", err)
	}
}

// cacheKey ties the cached artifacts to both the document content and the
// embedding model that produced the vectors.
func (s *SemanticIndex) cacheKey(docHash string) string {
	return docHash + "\n" + s.embedModel
}

func (s *SemanticIndex) dropCache() {
	for _, name := range []string{vectorsFile, chunksFile, metadataFile, hashFile} {
		os.Remove(filepath.Join(s.cacheDir, name))
	}
}

func readGob(path string, v any) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return gob.NewDecoder(f).Decode(v)
}

func writeGob(path string, v any) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return gob.NewEncoder(f).Encode(v)
}

func normalize(vec []float32) []float32 {
	var sum float64
	for _, x := range vec {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return vec
	}
	norm := float32(math.Sqrt(sum))
	out := make([]float32, len(vec))
	for i, x := range vec {
		out[i] = x / norm
	}
	return out
}

func dot(a, b []float32) float32 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var sum float32
	for i := 0; i < n; i++ {
		sum += a[i] * b[i]
	}
	return sum
}
