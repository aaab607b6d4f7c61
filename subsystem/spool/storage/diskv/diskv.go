// Package diskv implements a diskv-backed artifact spool storage
// backend.
package diskv

import (
	"path/filepath"

	"github.com/aduanasoft/vucemd/subsystem/spool/storage/kv"
	"github.com/aduanasoft/vucemd/utils/kv/kvdiskv"

	"github.com/peterbourgon/diskv/v3"
)

// Diskv is an on-disk artifact spool storage backend.
type Diskv struct {
	*kv.KV
}

// New creates a new artifact spool storage backend at path.
func New(path string) *Diskv {
	flatTransform := func(s string) []string { return []string{} }
	return &Diskv{KV: kv.New(kvdiskv.NewBucket(diskv.New(diskv.Options{
		BasePath:     filepath.Join(path, "spool"),
		Transform:    flatTransform,
		CacheSizeMax: 1024 * 1024,
	})))}
}
