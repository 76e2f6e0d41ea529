package store

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.etcd.io/bbolt"
)

// DefaultOpenTimeout bounds how long OpenBoltStore waits for the file lock
// held by another process.
const DefaultOpenTimeout = time.Second

// BoltStore wraps a bbolt database holding the ledger's records.
type BoltStore struct {
	db *bbolt.DB
}

// Compile-time interface check.
var _ Store = (*BoltStore)(nil)

// OpenBoltStore opens or creates the bbolt database at dbPath.
// The parent directory is created if it does not exist.
func OpenBoltStore(dbPath string, timeout time.Duration) (*BoltStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0700); err != nil {
		return nil, fmt.Errorf("store: create directory: %w", err)
	}
	if timeout <= 0 {
		timeout = DefaultOpenTimeout
	}
	db, err := bbolt.Open(dbPath, 0600, &bbolt.Options{Timeout: timeout})
	if err != nil {
		return nil, fmt.Errorf("store: open bolt db: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range Buckets {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return fmt.Errorf("boltstore: create bucket %q: %w", name, err)
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: create buckets: %w", err)
	}

	return &BoltStore{db: db}, nil
}

// Close closes the underlying database.
func (s *BoltStore) Close() error { return s.db.Close() }

// Path returns the database file path.
func (s *BoltStore) Path() string { return s.db.Path() }

// View runs fn in a read-only bbolt transaction.
func (s *BoltStore) View(fn func(Tx) error) error {
	return s.db.View(func(tx *bbolt.Tx) error {
		return fn(&boltTx{tx: tx})
	})
}

// Update runs fn in a read-write bbolt transaction. bbolt rolls the
// transaction back when fn returns an error.
func (s *BoltStore) Update(fn func(Tx) error) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return fn(&boltTx{tx: tx})
	})
}

// boltTx adapts a bbolt transaction to Tx.
type boltTx struct {
	tx *bbolt.Tx
}

func (t *boltTx) bucket(name Bucket) (*bbolt.Bucket, error) {
	b := t.tx.Bucket([]byte(name))
	if b == nil {
		return nil, fmt.Errorf("%w: %q", ErrUnknownBucket, name)
	}
	return b, nil
}

func (t *boltTx) Get(bucket Bucket, key []byte, v any) error {
	b, err := t.bucket(bucket)
	if err != nil {
		return err
	}
	data := b.Get(key)
	if data == nil {
		return ErrNotFound
	}
	if err := decodeGob(data, v); err != nil {
		return fmt.Errorf("boltstore: decode %s record: %w", bucket, err)
	}
	return nil
}

func (t *boltTx) Put(bucket Bucket, key []byte, v any) error {
	if !t.tx.Writable() {
		return ErrReadOnly
	}
	if len(key) == 0 {
		return ErrEmptyKey
	}
	b, err := t.bucket(bucket)
	if err != nil {
		return err
	}
	data, err := encodeGob(v)
	if err != nil {
		return fmt.Errorf("boltstore: encode %s record: %w", bucket, err)
	}
	if err := b.Put(key, data); err != nil {
		return fmt.Errorf("boltstore: put %s record: %w", bucket, err)
	}
	return nil
}

func (t *boltTx) Has(bucket Bucket, key []byte) (bool, error) {
	b, err := t.bucket(bucket)
	if err != nil {
		return false, err
	}
	return b.Get(key) != nil, nil
}

func (t *boltTx) Count(bucket Bucket) (int, error) {
	b, err := t.bucket(bucket)
	if err != nil {
		return 0, err
	}
	// Stats().KeyN is not updated until commit, so count with a cursor.
	n := 0
	c := b.Cursor()
	for k, _ := c.First(); k != nil; k, _ = c.Next() {
		n++
	}
	return n, nil
}

func (t *boltTx) ForEach(bucket Bucket, fn func(key []byte, decode func(v any) error) error) error {
	b, err := t.bucket(bucket)
	if err != nil {
		return err
	}
	return b.ForEach(func(k, v []byte) error {
		return fn(k, func(dst any) error {
			if err := decodeGob(v, dst); err != nil {
				return fmt.Errorf("boltstore: decode %s record: %w", bucket, err)
			}
			return nil
		})
	})
}

func (t *boltTx) Writable() bool { return t.tx.Writable() }
