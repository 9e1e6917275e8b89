package rawdb

import "sync"

// MemoryDB keeps records in a map. It backs tests and the memory store mode;
// nothing survives the process.
type MemoryDB struct {
	mu      sync.RWMutex
	records map[string][]byte
	closed  bool
}

// NewMemoryDB returns an empty MemoryDB.
func NewMemoryDB() *MemoryDB {
	return &MemoryDB{records: make(map[string][]byte)}
}

// Get returns a copy of the record under key.
func (db *MemoryDB) Get(key []byte) ([]byte, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	if db.closed {
		return nil, ErrClosed
	}
	val, ok := db.records[string(key)]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), val...), nil
}

// Put stores a copy of value.
func (db *MemoryDB) Put(key, value []byte) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.closed {
		return ErrClosed
	}
	db.records[string(key)] = append([]byte(nil), value...)
	return nil
}

// Close drops every record. Later calls fail with ErrClosed.
func (db *MemoryDB) Close() error {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.closed = true
	db.records = nil
	return nil
}

// Len returns the number of records.
func (db *MemoryDB) Len() int {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return len(db.records)
}

// NewBatch returns a batch applied under a single lock acquisition.
func (db *MemoryDB) NewBatch() Batch {
	return &memBatch{db: db, records: make(map[string][]byte)}
}

type memBatch struct {
	db      *MemoryDB
	records map[string][]byte
}

func (b *memBatch) Put(key, value []byte) error {
	b.records[string(key)] = append([]byte(nil), value...)
	return nil
}

func (b *memBatch) Write() error {
	b.db.mu.Lock()
	defer b.db.mu.Unlock()
	if b.db.closed {
		return ErrClosed
	}
	for k, v := range b.records {
		b.db.records[k] = v
	}
	return nil
}
