package query

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Query is the canonical input for a hop analysis: one source against a set
// of targets.
type Query struct {
	ID         string    `json:"id"`
	Source     string    `json:"source"`            // node id or GUID
	Targets    []string  `json:"targets,omitempty"` // empty = every entity
	Filter     string    `json:"filter,omitempty"`  // selector expression
	ReceivedAt time.Time `json:"-"`
}

// New returns a Query with a fresh ID.
func New(source string, targets ...string) *Query {
	return &Query{
		ID:         uuid.New().String(),
		Source:     source,
		Targets:    targets,
		ReceivedAt: time.Now(),
	}
}

// Normalize fills in a missing ID and receive time.
func (q *Query) Normalize() {
	if q.ID == "" {
		q.ID = uuid.New().String()
	}
	if q.ReceivedAt.IsZero() {
		q.ReceivedAt = time.Now()
	}
}

// Validate checks required fields.
func (q *Query) Validate() error {
	if q.Source == "" {
		return errors.New("query: source is required")
	}
	for _, t := range q.Targets {
		if t == "" {
			return errors.New("query: empty target")
		}
	}
	return nil
}
