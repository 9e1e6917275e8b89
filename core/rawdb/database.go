// Package rawdb stores the appended chain: every block's encoding keyed by
// its number, plus the number of the head block. Two backends satisfy
// Database, an in-memory map and goleveldb.
package rawdb

import "errors"

var (
	ErrNotFound = errors.New("rawdb: not found")
	ErrClosed   = errors.New("rawdb: database closed")
)

// Reader looks up a stored record. A missing key yields ErrNotFound.
type Reader interface {
	Get(key []byte) ([]byte, error)
}

// Writer stores a record, replacing any previous value.
type Writer interface {
	Put(key, value []byte) error
}

// Batch collects writes that Write applies together.
type Batch interface {
	Writer
	Write() error
}

// Database is the store behind the block list.
type Database interface {
	Reader
	Writer
	NewBatch() Batch
	Close() error
}
