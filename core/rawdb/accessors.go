package rawdb

import (
	"encoding/binary"
	"fmt"
)

// WriteBlock stores a block's encoding under its number.
func WriteBlock(db Writer, number uint64, data []byte) error {
	return db.Put(blockKey(number), data)
}

// ReadBlock retrieves a block's encoding.
func ReadBlock(db Reader, number uint64) ([]byte, error) {
	return db.Get(blockKey(number))
}

// WriteHeadNumber records the number of the last appended block.
func WriteHeadNumber(db Writer, number uint64) error {
	return db.Put(headBlockKey, encodeBlockNumber(number))
}

// ReadHeadNumber returns the last appended block number. ErrNotFound means
// the store is empty.
func ReadHeadNumber(db Reader) (uint64, error) {
	data, err := db.Get(headBlockKey)
	if err != nil {
		return 0, err
	}
	if len(data) != 8 {
		return 0, fmt.Errorf("rawdb: corrupt head block number")
	}
	return binary.BigEndian.Uint64(data), nil
}

// WriteBlockAndHead stores a block and advances the head in one batch, so a
// reader never sees a head without its block.
func WriteBlockAndHead(db Database, number uint64, data []byte) error {
	batch := db.NewBatch()
	if err := WriteBlock(batch, number, data); err != nil {
		return err
	}
	if err := WriteHeadNumber(batch, number); err != nil {
		return err
	}
	return batch.Write()
}
