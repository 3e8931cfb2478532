package db

import (
	"context"
	"errors"
)

var (
	// ErrNotFound is returned when no record is stored under a key
	ErrNotFound = errors.New("record not found")
	// ErrExists is returned when creating a record under a key already in use
	ErrExists = errors.New("record already exists")
)

// Tx reads and writes records inside one atomic unit of work. Records are
// opaque fixed-width byte strings keyed by a derived address.
type Tx interface {
	// Get returns the record stored at key. Inside Update the record stays
	// locked against other writers until the transaction ends.
	Get(ctx context.Context, key []byte) ([]byte, error)
	// Put overwrites an existing record
	Put(ctx context.Context, key, value []byte) error
	// Create stores a new record, failing with ErrExists if the key is taken
	Create(ctx context.Context, key, value []byte) error
}

// Store runs transactions against persistent records. A function passed to
// Update either commits every write or, when it returns an error, none.
type Store interface {
	Update(ctx context.Context, fn func(tx Tx) error) error
	View(ctx context.Context, fn func(tx Tx) error) error
	Close() error
}
