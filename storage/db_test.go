package storage

import (
	"bytes"
	"errors"
	"path/filepath"
	"testing"

	"github.com/syndtr/goleveldb/leveldb"
)

func TestMemDBRoundTrip(t *testing.T) {
	db := NewMemDB()
	defer db.Close()

	if err := db.Put([]byte("k"), []byte("v")); err != nil {
		t.Fatalf("put: %v", err)
	}
	value, err := db.Get([]byte("k"))
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !bytes.Equal(value, []byte("v")) {
		t.Fatalf("value mismatch: %q", value)
	}

	_, err = db.Get([]byte("missing"))
	if err == nil {
		t.Fatalf("missing key must error")
	}
	if !IsNotFound(err) {
		t.Fatalf("missing key error not recognized: %v", err)
	}
}

func TestLevelDBRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "db")
	db, err := NewLevelDB(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()

	if err := db.Put([]byte("k"), []byte("v")); err != nil {
		t.Fatalf("put: %v", err)
	}
	value, err := db.Get([]byte("k"))
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !bytes.Equal(value, []byte("v")) {
		t.Fatalf("value mismatch: %q", value)
	}

	_, err = db.Get([]byte("missing"))
	if !IsNotFound(err) {
		t.Fatalf("missing key error not recognized: %v", err)
	}
}

func TestIsNotFound(t *testing.T) {
	if IsNotFound(nil) {
		t.Fatalf("nil error is not a miss")
	}
	if !IsNotFound(leveldb.ErrNotFound) {
		t.Fatalf("leveldb miss not recognized")
	}
	if IsNotFound(errors.New("disk on fire")) {
		t.Fatalf("unrelated error misclassified")
	}
}
