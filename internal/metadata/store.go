package metadata

import "context"

// Record is one row of the metadata table. Payload is the raw JSON document
// returned by the resource API; no schema is imposed on it.
type Record struct {
	Payload string
}

type Store interface {
	Insert(ctx context.Context, rec Record) error
}
