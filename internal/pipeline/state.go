package pipeline

import (
	"context"
	"sync"
	"time"
)

// Stage is a pipeline state-machine position for one document.
type Stage string

const (
	StageReceived   Stage = "Received"
	StageFetching   Stage = "Fetching"
	StageExtracting Stage = "Extracting"
	StageCleaning   Stage = "Cleaning"
	StageChunking   Stage = "Chunking"
	StageEmbedding  Stage = "Embedding"
	StageIndexing   Stage = "Indexing"
	StageCompleted  Stage = "Completed"
	StageFailed     Stage = "Failed"
)

// PipelineState is the orchestrator-owned record of where a document's
// run stands. Mutated only by the owning worker via the registry.
type PipelineState struct {
	DocumentID string    `json:"document_id"`
	Stage      Stage     `json:"stage"`
	Reason     string    `json:"reason,omitempty"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// stateRegistry keeps one PipelineState per document id. Terminal states
// stay archived so the ops surface can report recent outcomes.
type stateRegistry struct {
	mu     sync.RWMutex
	states map[string]PipelineState
}

func newStateRegistry() *stateRegistry {
	return &stateRegistry{states: make(map[string]PipelineState)}
}

func (r *stateRegistry) set(documentID string, stage Stage) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states[documentID] = PipelineState{
		DocumentID: documentID,
		Stage:      stage,
		UpdatedAt:  time.Now(),
	}
}

func (r *stateRegistry) fail(documentID, reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states[documentID] = PipelineState{
		DocumentID: documentID,
		Stage:      StageFailed,
		Reason:     reason,
		UpdatedAt:  time.Now(),
	}
}

func (r *stateRegistry) get(documentID string) (PipelineState, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.states[documentID]
	return s, ok
}

func (r *stateRegistry) snapshot() []PipelineState {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]PipelineState, 0, len(r.states))
	for _, s := range r.states {
		out = append(out, s)
	}
	return out
}

// keyedLocks serializes pipeline runs per document id while leaving
// distinct documents free to run in parallel. Entries are reference
// counted so the map does not grow with every id ever seen.
type keyedLocks struct {
	mu      sync.Mutex
	entries map[string]*lockEntry
}

type lockEntry struct {
	sem  chan struct{}
	refs int
}

func newKeyedLocks() *keyedLocks {
	return &keyedLocks{entries: make(map[string]*lockEntry)}
}

// acquire blocks until the key's lock is free or ctx is done. The
// returned release function must be called on every exit path.
func (k *keyedLocks) acquire(ctx context.Context, key string) (func(), error) {
	k.mu.Lock()
	e, ok := k.entries[key]
	if !ok {
		e = &lockEntry{sem: make(chan struct{}, 1)}
		k.entries[key] = e
	}
	e.refs++
	k.mu.Unlock()

	release := func() {
		<-e.sem
		k.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(k.entries, key)
		}
		k.mu.Unlock()
	}

	select {
	case e.sem <- struct{}{}:
		return release, nil
	case <-ctx.Done():
		k.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(k.entries, key)
		}
		k.mu.Unlock()
		return nil, ctx.Err()
	}
}
