// Package journal records the outcome of every scheduling batch so that
// operators can review past runs.
package journal

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/danpasecinic/podfleet/internal/types"
	"github.com/google/uuid"
)

var (
	// ErrBatchAlreadyExists is returned when recording a batch id twice
	ErrBatchAlreadyExists = errors.New("batch already exists")
)

// Entry is the recorded outcome of one resource
type Entry struct {
	Kind      types.ResourceKind  `json:"kind"`
	Name      string              `json:"name"`
	Namespace string              `json:"namespace"`
	Node      string              `json:"node"`
	Phase     types.SchedulePhase `json:"phase"`
	Message   string              `json:"message"`
}

// Batch is one scheduling run
type Batch struct {
	ID         string    `json:"id"`
	Cluster    string    `json:"cluster"`
	Source     string    `json:"source"`
	StartedAt  time.Time `json:"startedAt"`
	FinishedAt time.Time `json:"finishedAt"`
	Entries    []Entry   `json:"entries"`
}

// NewBatch builds a batch with a fresh id from scheduling results
func NewBatch(cluster, source string, startedAt time.Time, results []types.ScheduleResult) Batch {
	entries := make([]Entry, 0, len(results))
	for _, res := range results {
		id := res.Resource.Identity()
		entries = append(
			entries, Entry{
				Kind:      id.Kind,
				Name:      id.Name,
				Namespace: id.Namespace,
				Node:      res.NodeName,
				Phase:     res.Status.Phase,
				Message:   res.Status.Message,
			},
		)
	}

	return Batch{
		ID:         uuid.NewString(),
		Cluster:    cluster,
		Source:     source,
		StartedAt:  startedAt.UTC(),
		FinishedAt: time.Now().UTC(),
		Entries:    entries,
	}
}

// Failed returns the number of entries with an Error phase
func (b Batch) Failed() int {
	n := 0
	for _, e := range b.Entries {
		if e.Phase != types.PhaseScheduled {
			n++
		}
	}
	return n
}

// Journal stores scheduling batches
type Journal interface {
	Record(batch Batch) error
	// List returns up to limit batches, newest first. A limit of zero or
	// less returns every batch.
	List(limit int) ([]Batch, error)
	Close() error
}

// InMemoryJournal is a thread-safe in-memory Journal
type InMemoryJournal struct {
	mu      sync.RWMutex
	batches []Batch
	ids     map[string]struct{}
}

// NewInMemoryJournal creates an empty in-memory journal
func NewInMemoryJournal() *InMemoryJournal {
	return &InMemoryJournal{ids: make(map[string]struct{})}
}

// Record stores a copy of the batch
func (j *InMemoryJournal) Record(batch Batch) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if _, exists := j.ids[batch.ID]; exists {
		return ErrBatchAlreadyExists
	}
	j.ids[batch.ID] = struct{}{}
	j.batches = append(j.batches, copyBatch(batch))
	return nil
}

// List returns stored batches, newest first
func (j *InMemoryJournal) List(limit int) ([]Batch, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()

	out := make([]Batch, 0, len(j.batches))
	for _, b := range j.batches {
		out = append(out, copyBatch(b))
	}
	sort.SliceStable(
		out, func(a, b int) bool {
			return out[a].StartedAt.After(out[b].StartedAt)
		},
	)

	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Close is a no-op
func (j *InMemoryJournal) Close() error {
	return nil
}

func copyBatch(b Batch) Batch {
	b.Entries = append([]Entry(nil), b.Entries...)
	return b
}

// Discard is a Journal that keeps nothing
type Discard struct{}

// Record drops the batch
func (Discard) Record(Batch) error { return nil }

// List returns nothing
func (Discard) List(int) ([]Batch, error) { return nil, nil }

// Close is a no-op
func (Discard) Close() error { return nil }
