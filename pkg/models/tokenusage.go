package models

import "time"

// TokenUsageRecord is the persisted per-query aggregate of LLM token
// consumption, written when a token session is finalized.
type TokenUsageRecord struct {
	QueryID          string    `json:"query_id" db:"query_id"`
	Handle           string    `json:"whatsapp" db:"handle"`
	Message          string    `json:"mensaje" db:"message"`
	Provider         string    `json:"provider" db:"provider"`
	Model            string    `json:"model" db:"model"`
	PromptTokens     int       `json:"total_prompt_tokens" db:"prompt_tokens"`
	CompletionTokens int       `json:"total_completion_tokens" db:"completion_tokens"`
	TotalTokens      int       `json:"total_tokens" db:"total_tokens"`
	InferenceCount   int       `json:"inference_count" db:"inference_count"`
	StartedAt        time.Time `json:"start_time" db:"started_at"`
	EndedAt          time.Time `json:"end_time" db:"ended_at"`
}
