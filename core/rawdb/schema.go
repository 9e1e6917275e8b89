package rawdb

import "encoding/binary"

// Key layout. Block numbers are 8-byte big-endian so keys sort by number.
var (
	blockPrefix  = []byte("b") // b + num -> encoded block
	headBlockKey = []byte("H") // -> number of the last appended block
)

func encodeBlockNumber(number uint64) []byte {
	enc := make([]byte, 8)
	binary.BigEndian.PutUint64(enc, number)
	return enc
}

func blockKey(number uint64) []byte {
	return append(append([]byte{}, blockPrefix...), encodeBlockNumber(number)...)
}
