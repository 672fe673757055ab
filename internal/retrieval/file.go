package retrieval

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"go.etcd.io/bbolt"
)

// File layout: bucket "meta" holds the format version, dimension, row count
// and a SHA-256 over every row; bucket "rows" maps a big-endian position to
// uvarint(len text) text uvarint(len source) source float32le*dim.
const formatVersion = 1

var (
	bucketMeta = []byte("meta")
	bucketRows = []byte("rows")

	keyVersion   = []byte("version")
	keyDimension = []byte("dimension")
	keyCount     = []byte("count")
	keyChecksum  = []byte("checksum")
)

// Save writes the index to path. The file is built next to path and renamed
// over it, so a reader opening path sees either the old or the new index.
func (x *Index) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("creating index directory: %w", err)
	}

	tmp := path + ".tmp"
	_ = os.Remove(tmp)

	if err := x.writeFile(tmp); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("installing index file: %w", err)
	}
	return nil
}

func (x *Index) writeFile(path string) error {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return fmt.Errorf("creating index file: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		rows, err := tx.CreateBucketIfNotExists(bucketRows)
		if err != nil {
			return err
		}
		sum := sha256.New()
		for i := range x.chunks {
			key := rowKey(i)
			val := encodeRow(x.chunks[i], x.vectors[i])
			sum.Write(key)
			sum.Write(val)
			if err := rows.Put(key, val); err != nil {
				return err
			}
		}

		meta, err := tx.CreateBucketIfNotExists(bucketMeta)
		if err != nil {
			return err
		}
		for k, v := range map[string][]byte{
			string(keyVersion):   uint64Bytes(formatVersion),
			string(keyDimension): uint64Bytes(uint64(x.Dimension())),
			string(keyCount):     uint64Bytes(uint64(x.Len())),
			string(keyChecksum):  sum.Sum(nil),
		} {
			if err := meta.Put([]byte(k), v); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return fmt.Errorf("writing index file: %w", err)
	}
	if err := db.Close(); err != nil {
		return fmt.Errorf("closing index file: %w", err)
	}
	return nil
}

// Load reads an index written by Save. A missing file yields ErrNoIndex and
// a file that fails verification yields ErrCorruptIndex.
func Load(path string) (*Index, error) {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNoIndex
		}
		return nil, fmt.Errorf("checking index file: %w", err)
	}

	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 5 * time.Second, ReadOnly: true})
	if err != nil {
		return nil, fmt.Errorf("%w: opening %s: %w", ErrCorruptIndex, path, err)
	}
	defer db.Close()

	x := &Index{}
	err = db.View(func(tx *bbolt.Tx) error {
		meta := tx.Bucket(bucketMeta)
		rows := tx.Bucket(bucketRows)
		if meta == nil || rows == nil {
			return errors.New("missing buckets")
		}

		version, err := readUint64(meta, keyVersion)
		if err != nil {
			return err
		}
		if version != formatVersion {
			return fmt.Errorf("unsupported format version %d", version)
		}
		dim, err := readUint64(meta, keyDimension)
		if err != nil {
			return err
		}
		count, err := readUint64(meta, keyCount)
		if err != nil {
			return err
		}
		want := meta.Get(keyChecksum)

		x.dim = int(dim)
		x.chunks = make([]Chunk, 0, count)
		x.vectors = make([][]float32, 0, count)

		sum := sha256.New()
		c := rows.Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			pos := len(x.chunks)
			if !bytes.Equal(k, rowKey(pos)) {
				return fmt.Errorf("row %d out of sequence", pos)
			}
			chunk, vec, err := decodeRow(v, x.dim)
			if err != nil {
				return fmt.Errorf("row %d: %w", pos, err)
			}
			chunk.ID = pos
			sum.Write(k)
			sum.Write(v)
			x.chunks = append(x.chunks, chunk)
			x.vectors = append(x.vectors, vec)
		}

		if uint64(len(x.chunks)) != count {
			return fmt.Errorf("found %d rows, header says %d", len(x.chunks), count)
		}
		if !bytes.Equal(sum.Sum(nil), want) {
			return errors.New("checksum mismatch")
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorruptIndex, err)
	}
	return x, nil
}

// RemoveFile deletes the index file at path. A missing file is not an error.
func RemoveFile(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("removing index file: %w", err)
	}
	return nil
}

func rowKey(pos int) []byte {
	return uint64Bytes(uint64(pos))
}

func uint64Bytes(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}

func readUint64(b *bbolt.Bucket, key []byte) (uint64, error) {
	v := b.Get(key)
	if len(v) != 8 {
		return 0, fmt.Errorf("bad meta value for %q", key)
	}
	return binary.BigEndian.Uint64(v), nil
}

func encodeRow(c Chunk, vec []float32) []byte {
	buf := make([]byte, 0, 2*binary.MaxVarintLen64+len(c.Text)+len(c.SourceDocID)+4*len(vec))
	buf = binary.AppendUvarint(buf, uint64(len(c.Text)))
	buf = append(buf, c.Text...)
	buf = binary.AppendUvarint(buf, uint64(len(c.SourceDocID)))
	buf = append(buf, c.SourceDocID...)
	for _, f := range vec {
		buf = binary.LittleEndian.AppendUint32(buf, math.Float32bits(f))
	}
	return buf
}

func decodeRow(b []byte, dim int) (Chunk, []float32, error) {
	text, b, err := readString(b)
	if err != nil {
		return Chunk{}, nil, fmt.Errorf("reading text: %w", err)
	}
	source, b, err := readString(b)
	if err != nil {
		return Chunk{}, nil, fmt.Errorf("reading source: %w", err)
	}
	if len(b) != 4*dim {
		return Chunk{}, nil, fmt.Errorf("vector has %d bytes, want %d", len(b), 4*dim)
	}
	vec := make([]float32, dim)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return Chunk{Text: text, SourceDocID: source}, vec, nil
}

func readString(b []byte) (string, []byte, error) {
	n, w := binary.Uvarint(b)
	if w <= 0 || uint64(len(b)-w) < n {
		return "", nil, errors.New("truncated string")
	}
	end := w + int(n)
	return string(b[w:end]), b[end:], nil
}
