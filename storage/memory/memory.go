// Package memory provides a thread-safe in-memory storage.Repository.
package memory

import (
	"fmt"
	"maps"
	"strings"
	"sync"

	"github.com/jmcleod/kycagent/storage"
)

type namespace map[string]*storage.Envelope

// Repository keeps envelopes in process memory. Suitable for tests, the
// sandbox server and ephemeral sessions.
type Repository struct {
	mu   sync.RWMutex
	data map[string]namespace
}

var _ storage.Repository = (*Repository)(nil)

// NewRepository creates a new empty in-memory Repository.
func NewRepository() *Repository {
	return &Repository{data: make(map[string]namespace)}
}

func (r *Repository) Put(ns, recordType, recordID string, envelope *storage.Envelope) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bucket(ns).put(recordType, recordID, envelope)
	return nil
}

func (r *Repository) Get(ns, recordType, recordID string) (*storage.Envelope, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.data[ns]
	if !ok {
		return nil, fmt.Errorf("%s: %w", ns, storage.ErrNamespaceNotFound)
	}
	env, ok := b[storage.RecordKey(recordType, recordID)]
	if !ok {
		return nil, fmt.Errorf("%s/%s: %w", recordType, recordID, storage.ErrNotFound)
	}
	return env.Clone(), nil
}

func (r *Repository) Delete(ns, recordType, recordID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.data[ns]
	if !ok {
		return fmt.Errorf("%s: %w", ns, storage.ErrNamespaceNotFound)
	}
	return b.delete(recordType, recordID)
}

func (r *Repository) List(ns, recordType string) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	prefix := storage.RecordKey(recordType, "")
	var ids []string
	for k := range r.data[ns] {
		if id, ok := strings.CutPrefix(k, prefix); ok {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (r *Repository) PutCAS(ns, recordType, recordID string, expectedVersion uint64, envelope *storage.Envelope) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.bucket(ns).putCAS(recordType, recordID, expectedVersion, envelope)
}

// Batch runs fn against a copy of the namespace and commits it only if fn
// succeeds.
func (r *Repository) Batch(ns string, fn func(tx storage.BatchTx) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	working := maps.Clone(r.bucket(ns))
	if err := fn(working); err != nil {
		return err
	}
	r.data[ns] = working
	return nil
}

// bucket returns the namespace map, creating it on first write.
func (r *Repository) bucket(ns string) namespace {
	b, ok := r.data[ns]
	if !ok {
		b = make(namespace)
		r.data[ns] = b
	}
	return b
}

func (n namespace) put(recordType, recordID string, envelope *storage.Envelope) {
	n[storage.RecordKey(recordType, recordID)] = envelope.Clone()
}

func (n namespace) putCAS(recordType, recordID string, expectedVersion uint64, envelope *storage.Envelope) error {
	existing, ok := n[storage.RecordKey(recordType, recordID)]
	switch {
	case !ok && expectedVersion != 0:
		return storage.ErrCASFailed
	case ok && existing.Version != expectedVersion:
		return storage.ErrCASFailed
	case ok && expectedVersion == 0:
		return storage.ErrCASFailed
	}
	n.put(recordType, recordID, envelope)
	return nil
}

func (n namespace) delete(recordType, recordID string) error {
	k := storage.RecordKey(recordType, recordID)
	if _, ok := n[k]; !ok {
		return fmt.Errorf("%s/%s: %w", recordType, recordID, storage.ErrNotFound)
	}
	delete(n, k)
	return nil
}

// namespace satisfies storage.BatchTx so Batch can hand out the working copy.

func (n namespace) Put(recordType, recordID string, envelope *storage.Envelope) error {
	n.put(recordType, recordID, envelope)
	return nil
}

func (n namespace) PutCAS(recordType, recordID string, expectedVersion uint64, envelope *storage.Envelope) error {
	return n.putCAS(recordType, recordID, expectedVersion, envelope)
}

func (n namespace) Delete(recordType, recordID string) error {
	return n.delete(recordType, recordID)
}
