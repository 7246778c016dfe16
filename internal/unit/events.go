package unit

import "time"

// EventKind discriminates trace event records.
type EventKind string

const (
	EventCallStart EventKind = "call_start"
	EventCallEnd   EventKind = "call_end"
	EventCallError EventKind = "call_error"
)

// TraceEvent is one recorded call lifecycle record. A call produces one
// CallStart and exactly one of CallEnd or CallError.
type TraceEvent struct {
	Kind         EventKind     `json:"kind"`
	CallID       string        `json:"call_id"`
	ParentCallID string        `json:"parent_call_id,omitempty"`
	UnitID       string        `json:"unit_id,omitempty"`
	Name         string        `json:"name,omitempty"`
	Timestamp    time.Time     `json:"timestamp"`
	Duration     time.Duration `json:"duration,omitempty"`
	ArgSamples   []string      `json:"arg_samples,omitempty"`
	ResultSample string        `json:"result_sample,omitempty"`
	ErrorSummary string        `json:"error_summary,omitempty"`
	IsAsync      bool          `json:"is_async,omitempty"`
}

// Frame is one entry of the active call stack, used only to attribute a
// call's parent at start time.
type Frame struct {
	CallID string
	Name   string
	UnitID string
}
