package blob

import "context"

// Store is the object storage surface the document workflow needs. Keys are
// opaque to callers and recorded verbatim on the owning row.
type Store interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
	Get(ctx context.Context, key string) ([]byte, error)
}
