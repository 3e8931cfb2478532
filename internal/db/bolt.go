package db

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"go.etcd.io/bbolt"
)

var recordsBucket = []byte("records")

// BoltDB is an embedded single-file Store. bbolt allows one writer at a time,
// which serializes every Update.
type BoltDB struct {
	*bbolt.DB
}

var _ Store = (*BoltDB)(nil)

// NewBoltDB opens (creating if needed) the database file at path
func NewBoltDB(path string) (*BoltDB, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt database: %w", err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(recordsBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create records bucket: %w", err)
	}
	return &BoltDB{DB: db}, nil
}

// Update runs fn in a read-write transaction
func (db *BoltDB) Update(ctx context.Context, fn func(tx Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return db.DB.Update(func(tx *bbolt.Tx) error {
		return fn(&boltTx{bucket: tx.Bucket(recordsBucket)})
	})
}

// View runs fn in a read-only transaction
func (db *BoltDB) View(ctx context.Context, fn func(tx Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return db.DB.View(func(tx *bbolt.Tx) error {
		return fn(&boltTx{bucket: tx.Bucket(recordsBucket)})
	})
}

// Close releases the database file lock
func (db *BoltDB) Close() error {
	return db.DB.Close()
}

type boltTx struct {
	bucket *bbolt.Bucket
}

func (t *boltTx) Get(_ context.Context, key []byte) ([]byte, error) {
	v := t.bucket.Get(key)
	if v == nil {
		return nil, ErrNotFound
	}
	// bbolt values are only valid for the life of the transaction.
	return bytes.Clone(v), nil
}

func (t *boltTx) Put(_ context.Context, key, value []byte) error {
	if t.bucket.Get(key) == nil {
		return ErrNotFound
	}
	if err := t.bucket.Put(key, value); err != nil {
		return fmt.Errorf("failed to put record: %w", err)
	}
	return nil
}

func (t *boltTx) Create(_ context.Context, key, value []byte) error {
	if t.bucket.Get(key) != nil {
		return ErrExists
	}
	if err := t.bucket.Put(key, value); err != nil {
		return fmt.Errorf("failed to create record: %w", err)
	}
	return nil
}
