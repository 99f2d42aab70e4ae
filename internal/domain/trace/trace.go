// Package trace keeps a bounded history of processed messages.
package trace

import "time"

// Entry records one run of a mapping against one message.
type Entry struct {
	Seq            uint64          `json:"seq"`
	ID             string          `json:"id"`
	Timestamp      time.Time       `json:"timestamp"`
	Duration       time.Duration   `json:"duration"`
	MappingID      string          `json:"mapping_id"`
	MappingName    string          `json:"mapping_name"`
	Direction      string          `json:"direction"`
	Topic          string          `json:"topic"`
	ProcessingType string          `json:"processing_type,omitempty"`
	Filtered       bool            `json:"filtered"`
	DryRun         bool            `json:"dry_run"`
	Requests       []RequestResult `json:"requests"`
	Errors         []string        `json:"errors,omitempty"`
	Warnings       []string        `json:"warnings,omitempty"`
}

// RequestResult summarizes a single outgoing request.
type RequestResult struct {
	Method    string `json:"method"`
	TargetAPI string `json:"target_api,omitempty"`
	Topic     string `json:"topic,omitempty"`
	SourceID  string `json:"source_id,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Failed reports whether the run produced errors or failed requests.
func (e Entry) Failed() bool {
	if len(e.Errors) > 0 {
		return true
	}
	for _, r := range e.Requests {
		if r.Error != "" {
			return true
		}
	}
	return false
}
