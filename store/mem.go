package store

import (
	"fmt"
	"sort"
	"sync"
)

// MemStore is an in-memory Store for testing. Update works on a copy of
// the data and swaps it in only when the callback succeeds.
type MemStore struct {
	mu   sync.RWMutex
	data map[Bucket]map[string][]byte
}

// Compile-time interface check.
var _ Store = (*MemStore)(nil)

// NewMemStore creates an empty in-memory store with every ledger bucket.
func NewMemStore() *MemStore {
	data := make(map[Bucket]map[string][]byte, len(Buckets))
	for _, b := range Buckets {
		data[b] = make(map[string][]byte)
	}
	return &MemStore{data: data}
}

// View runs fn against the current data.
func (s *MemStore) View(fn func(Tx) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn(&memTx{data: s.data})
}

// Update runs fn against a private copy and commits it on success.
func (s *MemStore) Update(fn func(Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	shadow := make(map[Bucket]map[string][]byte, len(s.data))
	for b, records := range s.data {
		cp := make(map[string][]byte, len(records))
		for k, v := range records {
			cp[k] = v
		}
		shadow[b] = cp
	}

	if err := fn(&memTx{data: shadow, writable: true}); err != nil {
		return err
	}
	s.data = shadow
	return nil
}

// Close is a no-op.
func (s *MemStore) Close() error { return nil }

type memTx struct {
	data     map[Bucket]map[string][]byte
	writable bool
}

func (t *memTx) bucket(name Bucket) (map[string][]byte, error) {
	b, ok := t.data[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownBucket, name)
	}
	return b, nil
}

func (t *memTx) Get(bucket Bucket, key []byte, v any) error {
	b, err := t.bucket(bucket)
	if err != nil {
		return err
	}
	data, ok := b[string(key)]
	if !ok {
		return ErrNotFound
	}
	return decodeGob(data, v)
}

func (t *memTx) Put(bucket Bucket, key []byte, v any) error {
	if !t.writable {
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
		return err
	}
	b[string(key)] = data
	return nil
}

func (t *memTx) Has(bucket Bucket, key []byte) (bool, error) {
	b, err := t.bucket(bucket)
	if err != nil {
		return false, err
	}
	_, ok := b[string(key)]
	return ok, nil
}

func (t *memTx) Count(bucket Bucket) (int, error) {
	b, err := t.bucket(bucket)
	if err != nil {
		return 0, err
	}
	return len(b), nil
}

func (t *memTx) ForEach(bucket Bucket, fn func(key []byte, decode func(v any) error) error) error {
	b, err := t.bucket(bucket)
	if err != nil {
		return err
	}
	keys := make([]string, 0, len(b))
	for k := range b {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		data := b[k]
		if err := fn([]byte(k), func(dst any) error { return decodeGob(data, dst) }); err != nil {
			return err
		}
	}
	return nil
}

func (t *memTx) Writable() bool { return t.writable }
