package models

// Stream event types, in the order a successful query emits them:
// status (searching), token*, sources, and a transport-level end marker.
// Errors replace everything after the point of failure with a single error
// frame.
const (
	EventTypeStatus  = "status"
	EventTypeToken   = "token"
	EventTypeSources = "sources"
	EventTypeError   = "error"
	EventTypeEnd     = "end"
)

// StreamEvent is one NDJSON frame of a streamed query answer.
type StreamEvent struct {
	Type         string            `json:"type"`
	Message      string            `json:"message,omitempty"`
	Content      string            `json:"content,omitempty"`
	Sources      []*SourceCitation `json:"sources,omitempty"`
	ResponseTime float64           `json:"response_time,omitempty"`
	ModelUsed    string            `json:"model_used,omitempty"`
}
