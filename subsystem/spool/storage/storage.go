// Package storage defines types and interfaces to support the
// artifact spool subsystem: local copies of the XML and binary
// artifacts produced by retrievals, kept for inspection and
// re-delivery after the remote document store took ownership.
package storage

import (
	"context"
	"errors"
)

// ErrArtifactNotFound is returned when a spooled artifact is absent.
var ErrArtifactNotFound = errors.New("artifact not found")

type ReadStorage interface {
	// RetrieveArtifact returns the spooled artifact content by name.
	RetrieveArtifact(ctx context.Context, name string) ([]byte, error)

	// ListArtifacts returns the unordered names of spooled artifacts.
	ListArtifacts(ctx context.Context) ([]string, error)
}

type Storage interface {
	ReadStorage

	// StoreArtifact spools artifact content under name, replacing any
	// previous content.
	StoreArtifact(ctx context.Context, name string, content []byte) error

	// DeleteArtifact removes a spooled artifact.
	DeleteArtifact(ctx context.Context, name string) error
}
