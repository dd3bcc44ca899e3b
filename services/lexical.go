package services

import (
	"math"
	"math/rand"
	"regexp"
	"sort"
	"strings"

	"admissions-chatbot-platform/internal/logger"
	"admissions-chatbot-platform/models"
)

// nonLetterRegex strips everything outside Latin letters (including
// Vietnamese diacritics) and whitespace before tokenizing.
var nonLetterRegex = regexp.MustCompile(`[^a-zA-ZÀ-ỹ\s]`)

var defaultResponses = []string{
	"Xin lỗi, tôi không hiểu câu hỏi của bạn. Bạn có thể diễn đạt lại được không?",
	"Tôi chưa rõ ý bạn lắm. Bạn có thể giải thích rõ hơn được không?",
	"Xin bạn hãy cho tôi thêm thông tin về vấn đề này.",
}

// stopWords combines a standard English list with Vietnamese function words.
var stopWords = buildStopWords()

func buildStopWords() map[string]bool {
	english := []string{
		"a", "about", "above", "after", "again", "against", "all", "am", "an",
		"and", "any", "are", "as", "at", "be", "because", "been", "before",
		"being", "below", "between", "both", "but", "by", "can", "did", "do",
		"does", "doing", "down", "during", "each", "few", "for", "from",
		"further", "had", "has", "have", "having", "he", "her", "here", "hers",
		"him", "his", "how", "i", "if", "in", "into", "is", "it", "its",
		"just", "me", "more", "most", "my", "no", "nor", "not", "now", "of",
		"off", "on", "once", "only", "or", "other", "our", "out", "over",
		"own", "same", "she", "so", "some", "such", "than", "that", "the",
		"their", "them", "then", "there", "these", "they", "this", "those",
		"through", "to", "too", "under", "until", "up", "very", "was", "we",
		"were", "what", "when", "where", "which", "while", "who", "whom",
		"why", "will", "with", "you", "your", "yours",
	}
	vietnamese := []string{
		"và", "của", "cho", "trong", "với", "các", "được", "để", "có",
		"những", "một", "là", "này", "từ", "khi", "đến", "như", "không",
		"về", "tại", "theo", "đã", "sẽ", "vì", "nhưng", "còn", "bị",
		"do", "phải", "nếu", "nên", "đang", "sau", "rồi", "thì", "cũng",
		"ra", "vào", "lại", "trên", "dưới", "bằng", "hay", "hoặc", "mà",
	}

	set := make(map[string]bool, len(english)+len(vietnamese))
	for _, w := range english {
		set[w] = true
	}
	for _, w := range vietnamese {
		set[w] = true
	}
	return set
}

// Tokenize lower-cases, strips non-letter characters, splits on whitespace,
// and drops stop words and single-character tokens. The same tokenizer runs
// at corpus-build time and query time.
func Tokenize(text string) []string {
	cleaned := nonLetterRegex.ReplaceAllString(text, " ")
	fields := strings.Fields(strings.ToLower(cleaned))

	tokens := make([]string, 0, len(fields))
	for _, tok := range fields {
		if len([]rune(tok)) <= 1 {
			continue
		}
		if stopWords[tok] {
			continue
		}
		tokens = append(tokens, tok)
	}
	return tokens
}

// LexicalMatcher ranks intents by TF-IDF cosine similarity over their
// example patterns. It is the always-available baseline needing no
// embedding model and no external service.
type LexicalMatcher struct {
	threshold float64
	vocab     map[string]int
	idf       []float64
	vectors   [][]float64 // one L2-normalized row per pattern
	responses [][]string  // response group of the intent owning each row
}

// NewLexicalMatcher fits a TF-IDF vocabulary (capped at maxVocab terms by
// corpus frequency) over every intent pattern in the document.
func NewLexicalMatcher(doc *models.KnowledgeDocument, threshold float64, maxVocab int) *LexicalMatcher {
	m := &LexicalMatcher{threshold: threshold}

	var rows [][]string
	for _, intent := range doc.Intents {
		for _, pattern := range intent.Patterns {
			rows = append(rows, Tokenize(pattern))
			m.responses = append(m.responses, intent.Responses)
		}
	}

	if len(rows) == 0 {
		logger.Warn("No patterns found in knowledge base, lexical matcher is empty")
		return m
	}

	// Cap vocabulary at the top maxVocab terms by corpus frequency,
	// breaking ties alphabetically so column order is deterministic.
	totalFreq := make(map[string]int)
	docFreq := make(map[string]int)
	for _, row := range rows {
		seen := make(map[string]bool, len(row))
		for _, tok := range row {
			totalFreq[tok]++
			if !seen[tok] {
				docFreq[tok]++
				seen[tok] = true
			}
		}
	}

	terms := make([]string, 0, len(totalFreq))
	for term := range totalFreq {
		terms = append(terms, term)
	}
	sortTerms(terms, totalFreq)
	if maxVocab > 0 && len(terms) > maxVocab {
		terms = terms[:maxVocab]
	}

	m.vocab = make(map[string]int, len(terms))
	m.idf = make([]float64, len(terms))
	n := float64(len(rows))
	for i, term := range terms {
		m.vocab[term] = i
		m.idf[i] = math.Log((1+n)/(1+float64(docFreq[term]))) + 1
	}

	m.vectors = make([][]float64, len(rows))
	for i, row := range rows {
		m.vectors[i] = m.vectorize(row)
	}

	return m
}

// sortTerms orders terms by descending corpus frequency, alphabetical on ties.
func sortTerms(terms []string, freq map[string]int) {
	sort.Slice(terms, func(i, j int) bool {
		if freq[terms[i]] != freq[terms[j]] {
			return freq[terms[i]] > freq[terms[j]]
		}
		return terms[i] < terms[j]
	})
}

// vectorize projects tokens into the fitted vocabulary; out-of-vocabulary
// tokens contribute nothing. The result is L2-normalized.
func (m *LexicalMatcher) vectorize(tokens []string) []float64 {
	vec := make([]float64, len(m.idf))
	for _, tok := range tokens {
		if idx, ok := m.vocab[tok]; ok {
			vec[idx]++
		}
	}

	var norm float64
	for i := range vec {
		vec[i] *= m.idf[i]
		norm += vec[i] * vec[i]
	}
	if norm > 0 {
		norm = math.Sqrt(norm)
		for i := range vec {
			vec[i] /= norm
		}
	}
	return vec
}

// Empty reports whether the matcher has no fitted pattern vectors.
func (m *LexicalMatcher) Empty() bool { return len(m.vectors) == 0 }

// Match returns the winning intent's response group and its cosine score.
// ok is false when the corpus is empty or the best score is below threshold.
func (m *LexicalMatcher) Match(query string) ([]string, float64, bool) {
	if m.Empty() {
		return nil, 0, false
	}

	qvec := m.vectorize(Tokenize(query))

	bestIdx, bestScore := -1, 0.0
	for i, row := range m.vectors {
		var dot float64
		for j := range row {
			dot += row[j] * qvec[j]
		}
		if dot > bestScore {
			bestScore = dot
			bestIdx = i
		}
	}

	if bestIdx < 0 || bestScore < m.threshold {
		return nil, bestScore, false
	}
	return m.responses[bestIdx], bestScore, true
}

// Respond applies the single-best-match policy: random pick among the
// winning intent's responses, or a default prompt when nothing clears the
// threshold. Randomness is deliberate, to avoid robotic repetition.
func (m *LexicalMatcher) Respond(query string) string {
	responses, _, ok := m.Match(query)
	if !ok {
		return randomChoice(defaultResponses)
	}
	return randomChoice(responses)
}

func randomChoice(options []string) string {
	if len(options) == 0 {
		return defaultResponses[0]
	}
	return options[rand.Intn(len(options))]
}
