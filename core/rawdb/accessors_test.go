package rawdb

import (
	"bytes"
	"errors"
	"testing"
)

func testStores(t *testing.T) map[string]Database {
	t.Helper()
	ldb, err := OpenLevelDB(t.TempDir(), 0, 0)
	if err != nil {
		t.Fatalf("OpenLevelDB: %v", err)
	}
	t.Cleanup(func() { ldb.Close() })
	return map[string]Database{"memory": NewMemoryDB(), "leveldb": ldb}
}

func TestBlockAccessors(t *testing.T) {
	for name, db := range testStores(t) {
		data := []byte{0xc0, 0x01}

		if _, err := ReadBlock(db, 3); !errors.Is(err, ErrNotFound) {
			t.Fatalf("%s: ReadBlock before write: %v", name, err)
		}
		if err := WriteBlock(db, 3, data); err != nil {
			t.Fatalf("%s: WriteBlock: %v", name, err)
		}
		got, err := ReadBlock(db, 3)
		if err != nil || !bytes.Equal(got, data) {
			t.Fatalf("%s: ReadBlock = %x, %v", name, got, err)
		}
		// numbers straddling a byte boundary map to distinct keys
		if err := WriteBlock(db, 259, []byte{3}); err != nil {
			t.Fatal(err)
		}
		if got, _ := ReadBlock(db, 3); !bytes.Equal(got, data) {
			t.Fatalf("%s: block 3 overwritten by 259: %x", name, got)
		}
	}
}

func TestHeadNumber(t *testing.T) {
	for name, db := range testStores(t) {
		if _, err := ReadHeadNumber(db); !errors.Is(err, ErrNotFound) {
			t.Fatalf("%s: empty head: %v", name, err)
		}
		if err := WriteBlockAndHead(db, 7, []byte{7}); err != nil {
			t.Fatalf("%s: WriteBlockAndHead: %v", name, err)
		}
		if n, err := ReadHeadNumber(db); err != nil || n != 7 {
			t.Fatalf("%s: head = %d, %v", name, n, err)
		}
		if got, err := ReadBlock(db, 7); err != nil || !bytes.Equal(got, []byte{7}) {
			t.Fatalf("%s: block not written with head: %x, %v", name, got, err)
		}
		if err := db.Put(headBlockKey, []byte{1, 2}); err != nil {
			t.Fatal(err)
		}
		if _, err := ReadHeadNumber(db); err == nil {
			t.Fatalf("%s: corrupt head accepted", name)
		}
	}
}

func TestLevelDBReopen(t *testing.T) {
	dir := t.TempDir()
	db, err := OpenLevelDB(dir, 16, 16)
	if err != nil {
		t.Fatal(err)
	}
	if err := WriteBlockAndHead(db, 1, []byte("one")); err != nil {
		t.Fatal(err)
	}
	if err := db.Close(); err != nil {
		t.Fatal(err)
	}

	db, err = OpenLevelDB(dir, 16, 16)
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	if n, err := ReadHeadNumber(db); err != nil || n != 1 {
		t.Fatalf("head after reopen = %d, %v", n, err)
	}
	if got, _ := ReadBlock(db, 1); string(got) != "one" {
		t.Fatalf("block after reopen = %q", got)
	}
}
