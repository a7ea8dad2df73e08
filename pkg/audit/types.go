// Package audit records the cache protocol's durable event trail: promotions,
// graduations, rollbacks, and anomalies such as dropped score events. The
// trail is append-only and queryable, so operators can reconstruct why an
// edge holds its current state.
package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// EventType classifies an audit event.
type EventType string

const (
	// EventPromoted records a durable edge gaining a volatile working copy.
	EventPromoted EventType = "promoted"

	// EventValidated records an edge crossing the promotion threshold.
	EventValidated EventType = "validated"

	// EventGraduated records a validated volatile edge merged back into the
	// durable plane.
	EventGraduated EventType = "graduated"

	// EventRolledBack records a graduation being reversed.
	EventRolledBack EventType = "rolled_back"

	// EventScoreDropped records a reinforcement event abandoned after the
	// bounded retry budget was exhausted. The score is the delta that was
	// lost, not the edge's total.
	EventScoreDropped EventType = "score_dropped"

	// EventForceExpired records an operator forcing an edge's expiration.
	EventForceExpired EventType = "force_expired"
)

// Event is one entry in the audit trail.
type Event struct {
	ID         string    `json:"id"`
	Type       EventType `json:"type"`
	EdgeKey    string    `json:"edge_key"`
	Score      int64     `json:"score,omitempty"`
	SessionID  string    `json:"session_id,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
	Detail     string    `json:"detail,omitempty"`
}

// NewEvent builds an event with a fresh ID and the current timestamp.
func NewEvent(t EventType, edgeKey string, score int64, sessionID string) Event {
	return Event{
		ID:         uuid.NewString(),
		Type:       t,
		EdgeKey:    edgeKey,
		Score:      score,
		SessionID:  sessionID,
		OccurredAt: time.Now().UTC(),
	}
}

// Filter narrows a List call. Zero values match everything.
type Filter struct {
	Type    EventType
	EdgeKey string
	Since   time.Time
	Limit   int
}

// Recorder persists and queries audit events.
type Recorder interface {
	// Record appends an event to the trail.
	Record(ctx context.Context, e Event) error

	// List returns events matching the filter, newest first.
	List(ctx context.Context, f Filter) ([]Event, error)
}
