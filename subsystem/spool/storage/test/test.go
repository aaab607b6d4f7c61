// Package test contains shared tests for artifact spool storage
// backends.
package test

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/aduanasoft/vucemd/subsystem/spool/storage"
)

// TestStorage runs the shared storage backend tests against s.
func TestStorage(t *testing.T, s storage.Storage) {
	ctx := context.Background()

	if _, err := s.RetrieveArtifact(ctx, "absent"); !errors.Is(err, storage.ErrArtifactNotFound) {
		t.Errorf("expected ErrArtifactNotFound, have: %v", err)
	}

	content := []byte("<resultado><tieneError>false</tieneError></resultado>")
	if err := s.StoreArtifact(ctx, "completo_070_3840_4005285_R0_P0.xml", content); err != nil {
		t.Fatal(err)
	}
	have, err := s.RetrieveArtifact(ctx, "completo_070_3840_4005285_R0_P0.xml")
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(have, content) {
		t.Errorf("have: %v, want: %v", have, content)
	}

	// replace
	if err = s.StoreArtifact(ctx, "completo_070_3840_4005285_R0_P0.xml", []byte("replaced")); err != nil {
		t.Fatal(err)
	}
	if have, err = s.RetrieveArtifact(ctx, "completo_070_3840_4005285_R0_P0.xml"); err != nil {
		t.Fatal(err)
	}
	if want := []byte("replaced"); !bytes.Equal(have, want) {
		t.Errorf("have: %v, want: %v", have, want)
	}

	if err = s.StoreArtifact(ctx, "acuse_070_3840_4005285_R0_P0_001.pdf", []byte("%PDF-1.4")); err != nil {
		t.Fatal(err)
	}
	names, err := s.ListArtifacts(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if have, want := len(names), 2; have != want {
		t.Errorf("artifact count: have: %v, want: %v", have, want)
	}

	if err = s.DeleteArtifact(ctx, "acuse_070_3840_4005285_R0_P0_001.pdf"); err != nil {
		t.Fatal(err)
	}
	if _, err = s.RetrieveArtifact(ctx, "acuse_070_3840_4005285_R0_P0_001.pdf"); !errors.Is(err, storage.ErrArtifactNotFound) {
		t.Errorf("expected ErrArtifactNotFound after delete, have: %v", err)
	}

	if err = s.StoreArtifact(ctx, "", []byte("x")); err == nil {
		t.Error("expected error for empty artifact name")
	}
}
