// Package job tracks detection jobs: a sqlite-backed status store and the
// workers that drive the audio, hand, and combined pipelines per upload.
package job

import (
	"fmt"
)

// Status represents the lifecycle of a job
type Status string

const (
	StatusQueued  Status = "queued"
	StatusRunning Status = "running"
	StatusDone    Status = "done"
	StatusError   Status = "error"
)

// Method selects which detectors a job runs
type Method string

const (
	MethodAudio Method = "audio"
	MethodHand  Method = "hand"
	MethodBoth  Method = "both"
)

// ParseMethod validates a method string
func ParseMethod(s string) (Method, error) {
	switch Method(s) {
	case MethodAudio, MethodHand, MethodBoth:
		return Method(s), nil
	default:
		return "", fmt.Errorf("method must be %q, %q, or %q", MethodAudio, MethodHand, MethodBoth)
	}
}

// SubResult is one detector's output inside a combined job
type SubResult struct {
	CSVPath   string `json:"csv_path,omitempty"`
	VideoPath string `json:"video_path,omitempty"`
	JSONPath  string `json:"json_path,omitempty"`
	Rows      int    `json:"rows"`
}

// Record is the externally visible state of one job. Single-method jobs use
// the flat fields; both-method jobs use the nested sub-results. A Record is
// always replaced whole in the store, never mutated field by field, so
// status pollers cannot observe a torn state.
type Record struct {
	Status  Status `json:"status"`
	Message string `json:"message,omitempty"`

	// Flat result for audio-only and hand-only jobs
	CSVPath   string `json:"csv_path,omitempty"`
	VideoPath string `json:"video_path,omitempty"`
	JSONPath  string `json:"json_path,omitempty"`
	Rows      *int   `json:"rows,omitempty"`

	// Nested results for both-method jobs. A failed later stage leaves
	// earlier sub-results in place as partial output.
	Audio         *SubResult `json:"audio,omitempty"`
	Hand          *SubResult `json:"hand,omitempty"`
	Combined      *SubResult `json:"combined,omitempty"`
	HandError     string     `json:"hand_error,omitempty"`
	CombinedError string     `json:"combined_error,omitempty"`
}

// queuedRecord is the initial state of every job
func queuedRecord() Record {
	return Record{Status: StatusQueued}
}

// runningRecord is a phase transition with a coarse progress label
func runningRecord(message string) Record {
	return Record{Status: StatusRunning, Message: message}
}

// errorRecord is the terminal failure state
func errorRecord(err error) Record {
	return Record{Status: StatusError, Message: err.Error()}
}

func intPtr(v int) *int {
	return &v
}
