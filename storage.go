package kvdoc

import "context"

// Store is the flat key-value store that tables are persisted in. Keys and
// values are strings; keys are scanned by prefix.
//
// Implementations must be safe for concurrent use. Tables do not coordinate
// writers, so concurrent writes to one key resolve the way the store does.
type Store interface {
	// Get returns the value stored under key; found is false if there is none.
	Get(ctx context.Context, key string) (value string, found bool, err error)

	// Set stores a value under key, replacing any previous value.
	Set(ctx context.Context, key, value string) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Scan opens a cursor over the keys starting with prefix. It may return
	// a nil cursor when the store knows that no key matches.
	Scan(ctx context.Context, prefix string) (Cursor, error)

	// Close releases the store.
	Close() error
}

// Cursor iterates over the keys of a prefix scan.
//
// The order of keys is store-defined. Keys deleted through the same store
// while a scan is open must not cause other keys to be skipped; beyond that,
// concurrent mutations during an open scan have undefined effect on which
// keys are returned.
type Cursor interface {
	// Next returns the next key, or ok == false once the scan is exhausted.
	Next(ctx context.Context) (key string, ok bool, err error)

	// Close releases the cursor. It is safe to call multiple times.
	Close() error
}
