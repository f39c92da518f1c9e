package llmcall

import (
	"github.com/jackzampolin/critic/internal/providers"
)

// Recorder handles fire-and-forget LLM call recording into a Store.
type Recorder struct {
	store *Store
}

// NewRecorder creates a new LLM call recorder.
func NewRecorder(store *Store) *Recorder {
	return &Recorder{store: store}
}

// Record captures an LLM call. Returns the recorded call.
func (r *Recorder) Record(result *providers.ChatResult, opts RecordOptions) *Call {
	if r == nil || r.store == nil {
		return nil // No store configured, skip recording
	}

	call := FromChatResult(result, opts)
	r.store.Add(call)
	return call
}

// RecordCall captures an already-constructed Call.
func (r *Recorder) RecordCall(call *Call) {
	if r == nil || r.store == nil || call == nil {
		return
	}
	r.store.Add(call)
}

// Store exposes the backing store for queries.
func (r *Recorder) Store() *Store {
	if r == nil {
		return nil
	}
	return r.store
}
