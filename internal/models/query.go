package models

import (
	"strings"
	"unicode/utf8"

	"github.com/hyperjump/kotae/internal/errs"
)

// QueryRequest is the body of a query call.
type QueryRequest struct {
	Query string `json:"query"`
	TopK  int    `json:"top_k,omitempty"`
}

// Validate trims the query and checks bounds. TopK defaults to defaultTopK
// when unset; out-of-range values are rejected, not clamped.
func (q *QueryRequest) Validate(defaultTopK, maxTopK, maxQueryLen int) error {
	q.Query = strings.TrimSpace(q.Query)
	if q.Query == "" {
		return errs.New(errs.CodeQueryInvalid, "query cannot be empty")
	}
	if utf8.RuneCountInString(q.Query) > maxQueryLen {
		return errs.Newf(errs.CodeQueryInvalid, "query exceeds %d characters", maxQueryLen)
	}
	if q.TopK == 0 {
		q.TopK = defaultTopK
	}
	if q.TopK < 1 || q.TopK > maxTopK {
		return errs.Newf(errs.CodeQueryInvalid, "top_k must be between 1 and %d", maxTopK)
	}
	return nil
}

// QueryResponse is the non-streaming answer shape.
type QueryResponse struct {
	Query        string            `json:"query"`
	Answer       string            `json:"answer"`
	Sources      []*SourceCitation `json:"sources"`
	ResponseTime float64           `json:"response_time"`
	ModelUsed    string            `json:"model_used"`
	TotalTokens  int               `json:"total_tokens,omitempty"`
}
