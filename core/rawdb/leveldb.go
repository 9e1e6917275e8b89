package rawdb

import (
	"errors"

	"github.com/syndtr/goleveldb/leveldb"
	lverrors "github.com/syndtr/goleveldb/leveldb/errors"
	"github.com/syndtr/goleveldb/leveldb/opt"

	"github.com/eth2030/plasma/log"
)

// Minimum LevelDB tuning values.
const (
	minCache   = 16 // MiB
	minHandles = 16
)

// LevelDB is a persistent Database on goleveldb. Writes go through the
// default options; a block is durable once its batch is written.
type LevelDB struct {
	db   *leveldb.DB
	path string
	log  *log.Logger
}

// OpenLevelDB opens or creates the database at path. cache is the block
// cache size in MiB and handles the open file limit. A corrupted database is
// recovered before use.
func OpenLevelDB(path string, cache, handles int) (*LevelDB, error) {
	if cache < minCache {
		cache = minCache
	}
	if handles < minHandles {
		handles = minHandles
	}
	logger := log.Default().Module("rawdb")
	options := &opt.Options{
		BlockCacheCapacity:     cache / 2 * opt.MiB,
		WriteBuffer:            cache / 4 * opt.MiB,
		OpenFilesCacheCapacity: handles,
	}
	db, err := leveldb.OpenFile(path, options)
	if _, corrupted := err.(*lverrors.ErrCorrupted); corrupted {
		logger.Warn("recovering corrupted database", "path", path)
		db, err = leveldb.RecoverFile(path, nil)
	}
	if err != nil {
		return nil, err
	}
	logger.Info("database opened", "path", path, "cache", cache, "handles", handles)
	return &LevelDB{db: db, path: path, log: logger}, nil
}

// Path returns the database directory.
func (l *LevelDB) Path() string { return l.path }

func (l *LevelDB) Get(key []byte) ([]byte, error) {
	val, err := l.db.Get(key, nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, ErrNotFound
	}
	if errors.Is(err, leveldb.ErrClosed) {
		return nil, ErrClosed
	}
	return val, err
}

func (l *LevelDB) Put(key, value []byte) error {
	return l.db.Put(key, value, nil)
}

func (l *LevelDB) Close() error {
	l.log.Info("database closed", "path", l.path)
	return l.db.Close()
}

// NewBatch creates a write batch committed through Write.
func (l *LevelDB) NewBatch() Batch {
	return &levelBatch{db: l.db, b: new(leveldb.Batch)}
}

type levelBatch struct {
	db *leveldb.DB
	b  *leveldb.Batch
}

func (b *levelBatch) Put(key, value []byte) error {
	b.b.Put(key, value)
	return nil
}

func (b *levelBatch) Write() error { return b.db.Write(b.b, nil) }
