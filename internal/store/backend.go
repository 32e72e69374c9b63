package store

import "context"

// Backend is the key/value layer under Ledger. Get returns an error wrapping
// errs.ErrNotFound for a missing key; Delete of a missing key is not an error.
type Backend interface {
	Init(ctx context.Context, dirs []string) error
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, data []byte) error
	Delete(ctx context.Context, key string) error
	List(ctx context.Context, prefix string) ([]string, error)
	Close() error
}
