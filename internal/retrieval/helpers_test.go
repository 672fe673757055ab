package retrieval

import (
	"os"
	"testing"
	"time"

	"go.etcd.io/bbolt"
)

func tamperRow(t *testing.T, path string, pos int, val []byte) {
	t.Helper()
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		t.Fatalf("opening index: %v", err)
	}
	defer db.Close()
	err = db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketRows).Put(rowKey(pos), val)
	})
	if err != nil {
		t.Fatalf("tampering: %v", err)
	}
}

func writeFile(path string, data []byte) error {
	return os.WriteFile(path, data, 0600)
}
