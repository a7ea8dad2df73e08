package audit

import (
	"context"
	"sync"
)

// MemoryRecorder keeps the trail in process memory. It backs tests and
// single-node deployments that do not need the trail to survive restarts.
type MemoryRecorder struct {
	mu     sync.RWMutex
	events []Event
}

// NewMemoryRecorder creates an empty in-memory recorder.
func NewMemoryRecorder() *MemoryRecorder {
	return &MemoryRecorder{}
}

func (r *MemoryRecorder) Record(ctx context.Context, e Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *MemoryRecorder) List(ctx context.Context, f Filter) ([]Event, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []Event
	for i := len(r.events) - 1; i >= 0; i-- {
		e := r.events[i]
		if f.Type != "" && e.Type != f.Type {
			continue
		}
		if f.EdgeKey != "" && e.EdgeKey != f.EdgeKey {
			continue
		}
		if !f.Since.IsZero() && e.OccurredAt.Before(f.Since) {
			continue
		}
		out = append(out, e)
		if f.Limit > 0 && len(out) >= f.Limit {
			break
		}
	}
	return out, nil
}

var _ Recorder = (*MemoryRecorder)(nil)
