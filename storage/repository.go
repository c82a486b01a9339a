// Package storage provides the sealed record store that backs the secure
// key-value store.
package storage

import "errors"

var (
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrNamespaceNotFound is returned when no record was ever written to a namespace.
	ErrNamespaceNotFound = errors.New("namespace not found")
	// ErrCASFailed is returned when a compare-and-swap version check fails.
	ErrCASFailed = errors.New("CAS version mismatch")
)

// BatchTx is the write view of a namespace inside Repository.Batch.
type BatchTx interface {
	Put(recordType, recordID string, envelope *Envelope) error
	PutCAS(recordType, recordID string, expectedVersion uint64, envelope *Envelope) error
	Delete(recordType, recordID string) error
}

// Repository stores sealed envelopes addressed by namespace, record type and
// record ID. Implementations must make every single call atomic; Batch groups
// several writes into one atomic unit.
type Repository interface {
	Put(namespace, recordType, recordID string, envelope *Envelope) error
	Get(namespace, recordType, recordID string) (*Envelope, error)
	Delete(namespace, recordType, recordID string) error
	List(namespace, recordType string) ([]string, error)
	// PutCAS writes only if the stored version equals expectedVersion.
	// An expectedVersion of 0 means "create only".
	PutCAS(namespace, recordType, recordID string, expectedVersion uint64, envelope *Envelope) error
	Batch(namespace string, fn func(tx BatchTx) error) error
}

// RecordKey joins a record type and ID into the flat key used by backends.
func RecordKey(recordType, recordID string) string {
	return recordType + ":" + recordID
}
