package models

import (
	"fmt"
	"strings"
)

// AskRequest is the body of POST /ask.
type AskRequest struct {
	Q string `json:"q"`
}

// Validate rejects a missing or blank question.
func (r *AskRequest) Validate() error {
	if strings.TrimSpace(r.Q) == "" {
		return fmt.Errorf("q cannot be empty")
	}
	return nil
}

// AskResponse is the body of a successful POST /ask.
type AskResponse struct {
	Answer      string   `json:"answer"`
	Citations   []string `json:"citations,omitempty"`
	QueryTimeMS int64    `json:"query_time_ms"`
}

// Answer is the result of one question: the model's text plus the source
// documents of the passages that were actually placed in the prompt.
// Derived per request, never persisted.
type Answer struct {
	Text      string   `json:"text"`
	Citations []string `json:"citations,omitempty"`
}
