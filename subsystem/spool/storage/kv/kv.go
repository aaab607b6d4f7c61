// Package kv implements an artifact spool storage backend using a
// key-value store.
package kv

import (
	"context"
	"fmt"

	"github.com/aduanasoft/vucemd/subsystem/spool/storage"
	"github.com/aduanasoft/vucemd/utils/kv"
)

// KV is an artifact spool storage backend using a key-value store.
type KV struct {
	b kv.TraversingBucket
}

// New creates a new artifact spool backend.
func New(b kv.TraversingBucket) *KV {
	return &KV{b: b}
}

// StoreArtifact spools artifact content under name.
func (s *KV) StoreArtifact(ctx context.Context, name string, content []byte) error {
	if name == "" {
		return fmt.Errorf("empty artifact name")
	}
	return s.b.Set(ctx, name, content)
}

// RetrieveArtifact returns the spooled artifact content by name.
func (s *KV) RetrieveArtifact(ctx context.Context, name string) ([]byte, error) {
	ok, err := s.b.Has(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("checking %s: %w", name, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", storage.ErrArtifactNotFound, name)
	}
	return s.b.Get(ctx, name)
}

// ListArtifacts returns the unordered names of spooled artifacts.
func (s *KV) ListArtifacts(ctx context.Context) ([]string, error) {
	cancel := make(chan struct{})
	defer close(cancel)
	var names []string
	for name := range s.b.Keys(cancel) {
		names = append(names, name)
	}
	return names, nil
}

// DeleteArtifact removes a spooled artifact.
func (s *KV) DeleteArtifact(ctx context.Context, name string) error {
	return s.b.Delete(ctx, name)
}
