// Package emergency defines the core data model for relayed emergency records.
package emergency

import (
	"encoding/json"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"
)

// Priority indicates how urgent an emergency is.
type Priority string

const (
	PriorityCritical Priority = "critical"
	PriorityHigh     Priority = "high"
	PriorityMedium   Priority = "medium"
	PriorityLow      Priority = "low"
)

// Status tracks the response lifecycle of a record. The relay core only
// performs the active -> responding transition; resolved and cancelled are
// set by external collaborators and must round-trip untouched.
type Status string

const (
	StatusActive     Status = "active"
	StatusResponding Status = "responding"
	StatusResolved   Status = "resolved"
	StatusCancelled  Status = "cancelled"
)

// ID is a record identifier that producers may send as either a JSON number
// or a JSON string. It is stored as its text form and re-marshals numeric
// identifiers as numbers so pollers see what the producer sent.
type ID string

func (id *ID) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	if s == "null" {
		*id = ""
		return nil
	}
	if strings.HasPrefix(s, `"`) {
		var v string
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		*id = ID(v)
		return nil
	}
	if _, err := strconv.ParseInt(s, 10, 64); err != nil {
		return fmt.Errorf("id must be a string or integer, got %s", s)
	}
	*id = ID(s)
	return nil
}

func (id ID) MarshalJSON() ([]byte, error) {
	// Only canonical integer text goes out as a bare number; ids like
	// "017" or "+17" parse but are not valid JSON numbers.
	if n, err := strconv.ParseInt(string(id), 10, 64); err == nil && strconv.FormatInt(n, 10) == string(id) {
		return []byte(id), nil
	}
	return json.Marshal(string(id))
}

func (id ID) String() string { return string(id) }

// Record is a single emergency report as produced by the dispatch backend.
// reportedBy is opaque to the relay and passes through untouched.
type Record struct {
	ID            ID              `json:"id"`
	Title         string          `json:"title"`
	Description   string          `json:"description"`
	Address       string          `json:"address"`
	Priority      Priority        `json:"priority"`
	Status        Status          `json:"status"`
	Severity      int             `json:"severity"`
	ReportedBy    json.RawMessage `json:"reportedBy,omitempty"`
	AssignedUnits []string        `json:"assignedUnits,omitempty"`
	Images        []string        `json:"images,omitempty"`
	Timestamp     time.Time       `json:"timestamp"`
	UpdatedAt     time.Time       `json:"updatedAt,omitzero"`
}

// Clone returns a copy whose slice fields do not alias the original.
func (r Record) Clone() Record {
	r.ReportedBy = slices.Clone(r.ReportedBy)
	r.AssignedUnits = slices.Clone(r.AssignedUnits)
	r.Images = slices.Clone(r.Images)
	return r
}

// Label returns a display label for the priority.
func (p Priority) Label() string {
	switch p {
	case PriorityCritical:
		return "Critical"
	case PriorityHigh:
		return "High"
	case PriorityMedium:
		return "Medium"
	case PriorityLow:
		return "Low"
	default:
		return string(p)
	}
}

// Label returns a display label for the status.
func (s Status) Label() string {
	return string(s)
}
