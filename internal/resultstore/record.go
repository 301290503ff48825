// Package resultstore persists one record per completed audit task as
// append-only JSON lines, and reads them back for the concordance pass.
package resultstore

import (
	"fmt"
	"time"
)

// SchemaVersion is the current record schema. Readers reject records
// with a version they do not understand.
const SchemaVersion = 1

// FailedTimeMs is the sentinel duration for a tool whose own invocation
// failed within an otherwise completed task.
const FailedTimeMs = -1

// Status classifies a task or a single tool invocation.
type Status string

const (
	StatusOK    Status = "ok"
	StatusError Status = "error"
)

// ToolRecord is the outcome of one tool within one task.
type ToolRecord struct {
	TimeMs          int64    `json:"timeMs"`
	Status          Status   `json:"status"`
	Error           string   `json:"error,omitempty"`
	CategoriesFound []string `json:"categoriesFound"`
}

// CategoryToolDetail is one tool's view of one category on one target.
type CategoryToolDetail struct {
	Found        bool     `json:"found"`
	RuleIDs      []string `json:"ruleIds,omitempty"`
	FindingCount int      `json:"findingCount"`
}

// CategoryDetail breaks a target down per category: which tools found
// it, the rule identifiers they attributed, and finding volume.
type CategoryDetail struct {
	Category string                        `json:"category"`
	PerTool  map[string]CategoryToolDetail `json:"perTool"`
}

// Record is one audit result: created exactly once when a task finishes
// (success, tool failure, timeout or hard kill), never mutated after.
type Record struct {
	SchemaVersion  int                   `json:"schemaVersion"`
	Origin         string                `json:"origin"`
	Rank           int                   `json:"rank"`
	Status         Status                `json:"status"`
	Error          string                `json:"error,omitempty"`
	Timestamp      time.Time             `json:"timestamp"`
	Tools          map[string]ToolRecord `json:"tools"`
	CategoryDetail []CategoryDetail      `json:"categoryDetail,omitempty"`
}

// NewRecord returns a Record shell for a target with the current schema
// version and timestamp; the executor fills in status and tool results.
func NewRecord(origin string, rank int) Record {
	return Record{
		SchemaVersion: SchemaVersion,
		Origin:        origin,
		Rank:          rank,
		Timestamp:     time.Now().UTC(),
		Tools:         make(map[string]ToolRecord),
	}
}

// Validate checks structural invariants at the store boundary.
func (r Record) Validate() error {
	if r.SchemaVersion != SchemaVersion {
		return fmt.Errorf("unsupported schema version %d (want %d)", r.SchemaVersion, SchemaVersion)
	}
	if r.Origin == "" {
		return fmt.Errorf("record has empty origin")
	}
	if r.Status != StatusOK && r.Status != StatusError {
		return fmt.Errorf("record %s: bad status %q", r.Origin, r.Status)
	}
	return nil
}
