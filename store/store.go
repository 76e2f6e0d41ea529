// Package store is the account-storage substrate of the staking ledger:
// typed records addressed by key, grouped into buckets, read and written
// inside atomic transactions.
//
// Every ledger instruction runs inside exactly one Update call. If the
// callback returns an error nothing it wrote is kept, which is what makes
// each instruction all-or-nothing.
package store

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"fmt"
)

// Bucket names a group of records of one type.
type Bucket string

// Buckets used by the ledger.
const (
	BucketConfig  Bucket = "config"
	BucketEpochs  Bucket = "epochs"
	BucketStakes  Bucket = "stakes"
	BucketIndex   Bucket = "stakes_index"
	BucketWeights Bucket = "epoch_weights"
	BucketTokens  Bucket = "token_accounts"
	BucketJournal Bucket = "journal"
)

// Buckets lists every bucket created when a store is opened.
var Buckets = []Bucket{
	BucketConfig,
	BucketEpochs,
	BucketStakes,
	BucketIndex,
	BucketWeights,
	BucketTokens,
	BucketJournal,
}

// Tx is a view of the store inside a transaction.
type Tx interface {
	// Get decodes the record at key into v. Returns ErrNotFound if absent.
	Get(bucket Bucket, key []byte, v any) error

	// Put encodes v and stores it at key, replacing any previous record.
	Put(bucket Bucket, key []byte, v any) error

	// Has reports whether a record exists at key.
	Has(bucket Bucket, key []byte) (bool, error)

	// Count returns the number of records in bucket.
	Count(bucket Bucket) (int, error)

	// ForEach visits records in ascending key order. decode unpacks the
	// current record; it must not be retained past the callback.
	ForEach(bucket Bucket, fn func(key []byte, decode func(v any) error) error) error

	// Writable reports whether Put is permitted.
	Writable() bool
}

// Store opens transactions over the ledger's records.
type Store interface {
	// View runs fn in a read-only transaction.
	View(fn func(Tx) error) error

	// Update runs fn in a read-write transaction. Writes are committed only
	// if fn returns nil.
	Update(fn func(Tx) error) error

	// Close releases the underlying resources.
	Close() error
}

// Uint64Key encodes n as an 8-byte big-endian key so records sort numerically.
func Uint64Key(n uint64) []byte {
	k := make([]byte, 8)
	binary.BigEndian.PutUint64(k, n)
	return k
}

// KeyUint64 decodes a key produced by Uint64Key.
func KeyUint64(k []byte) (uint64, error) {
	if len(k) != 8 {
		return 0, fmt.Errorf("%w: numeric key must be 8 bytes, got %d", ErrCodec, len(k))
	}
	return binary.BigEndian.Uint64(k), nil
}

// CompositeKey concatenates key parts for prefix-ordered records.
func CompositeKey(parts ...[]byte) []byte {
	var n int
	for _, p := range parts {
		n += len(p)
	}
	k := make([]byte, 0, n)
	for _, p := range parts {
		k = append(k, p...)
	}
	return k
}

// encodeGob serializes a record using gob encoding.
func encodeGob(v any) ([]byte, error) {
	if v == nil {
		return nil, fmt.Errorf("%w: record", ErrNilParam)
	}
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCodec, err)
	}
	return buf.Bytes(), nil
}

// decodeGob deserializes gob-encoded data into a record.
func decodeGob(data []byte, v any) error {
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(v); err != nil {
		return fmt.Errorf("%w: %w", ErrCodec, err)
	}
	return nil
}

func knownBucket(b Bucket) bool {
	for _, k := range Buckets {
		if k == b {
			return true
		}
	}
	return false
}
