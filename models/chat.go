package models

import "time"

type ChatRequest struct {
	// Message may be empty; the engine answers with a clarification prompt.
	Message        string `json:"message"`
	ConversationID string `json:"conversation_id,omitempty"`
}

type ChatResponse struct {
	Reply          string    `json:"reply"`
	ConversationID string    `json:"conversation_id"`
	SemanticMode   bool      `json:"semantic_mode"`
	Timestamp      time.Time `json:"timestamp"`
}

// Source is one provenance entry returned alongside an answer.
type Source struct {
	Rank    int      `json:"rank"`
	Score   float32  `json:"score"`
	Meta    Metadata `json:"meta"`
	Snippet string   `json:"snippet"`
}

// AnswerResult is the full output of AnswerWithSources.
type AnswerResult struct {
	Response     string   `json:"response"`
	Sources      []Source `json:"sources"`
	SemanticMode bool     `json:"semantic_mode"`
	Provider     string   `json:"provider"`
}
