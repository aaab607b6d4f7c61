// Package inmem implements an in-memory artifact spool storage
// backend.
package inmem

import (
	"github.com/aduanasoft/vucemd/subsystem/spool/storage/kv"
	"github.com/aduanasoft/vucemd/utils/kv/kvmap"
)

// InMem is an in-memory artifact spool storage backend.
type InMem struct {
	*kv.KV
}

// New creates a new artifact spool storage backend.
func New() *InMem {
	return &InMem{KV: kv.New(kvmap.NewBucket())}
}
