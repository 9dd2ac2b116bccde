package graph

import (
	"context"
	"maps"
	"sync"
)

// Query is one statement seen by a Recorder.
type Query struct {
	Cypher string
	Params map[string]any
}

// Recorder is an in-memory Client that records every statement.  Used in
// tests and when no graph URI is configured.
type Recorder struct {
	mu      sync.Mutex
	queries []Query
	err     error
}

func NewRecorder() *Recorder { return &Recorder{} }

// FailWith makes every subsequent call return err.
func (r *Recorder) FailWith(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.err = err
}

func (r *Recorder) Write(_ context.Context, cypher string, params map[string]any) ([]Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	r.queries = append(r.queries, Query{Cypher: cypher, Params: maps.Clone(params)})
	return nil, nil
}

func (r *Recorder) Ping(context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

func (r *Recorder) Close(context.Context) error { return nil }

// Queries returns a snapshot of recorded statements.
func (r *Recorder) Queries() []Query {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Query(nil), r.queries...)
}
