package partidas

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/aduanasoft/vucemd/customs"
	"github.com/aduanasoft/vucemd/vucem"
	"github.com/aduanasoft/vucemd/workflow"
)

type fakeGateway struct {
	calls int
	// fail holds 1-based call ordinals that should fail
	fail map[int]bool
}

func (g *fakeGateway) Call(_ context.Context, endpoint string, env *vucem.Envelope) (*vucem.Response, error) {
	g.calls++
	if g.fail[g.calls] {
		return nil, errors.New("gateway timeout")
	}
	return &vucem.Response{StatusCode: 200, Raw: []byte("<respuesta/>")}, nil
}

type fakeStore struct {
	uploads []*customs.Upload
}

func (s *fakeStore) UploadDocument(_ context.Context, up *customs.Upload) (*customs.Document, error) {
	s.uploads = append(s.uploads, up)
	return &customs.Document{ID: "stored"}, nil
}

func testRequest(partidas int) *workflow.Request {
	return &workflow.Request{
		Pedimento: &customs.Pedimento{
			ID:              "42",
			Aduana:          "240",
			Patente:         "3842",
			Pedimento:       "4004070",
			NumeroOperacion: "6301234567",
			Partidas:        partidas,
		},
		Organization: "9",
		Service:      &customs.ServiceInstance{ID: 7},
		Credentials:  &customs.Credentials{Usuario: "u", Password: "p"},
	}
}

func TestRunAllPartidas(t *testing.T) {
	gateway := new(fakeGateway)
	store := new(fakeStore)
	w, err := New(gateway, workflow.NewArtifacts(store, nil, nil))
	if err != nil {
		t.Fatal(err)
	}

	res, err := w.Run(context.Background(), testRequest(3))
	if err != nil {
		t.Fatal(err)
	}
	if res.Attempted != 3 || res.Succeeded != 3 || res.Failed != 0 {
		t.Errorf("have %d/%d/%d attempted/succeeded/failed, want 3/3/0",
			res.Attempted, res.Succeeded, res.Failed)
	}
	if len(store.uploads) != 3 {
		t.Fatalf("uploads: have %d, want 3", len(store.uploads))
	}
	// per-item artifacts carry the 1-based ordinal suffix
	if name := store.uploads[2].Name; !strings.HasSuffix(name, "_003.xml") {
		t.Errorf("artifact name: have %q", name)
	}
}

func TestRunPartialFailure(t *testing.T) {
	gateway := &fakeGateway{fail: map[int]bool{2: true}}
	store := new(fakeStore)
	w, err := New(gateway, workflow.NewArtifacts(store, nil, nil))
	if err != nil {
		t.Fatal(err)
	}

	res, err := w.Run(context.Background(), testRequest(5))
	if err != nil {
		t.Fatal(err)
	}
	if res.Succeeded != 4 || res.Failed != 1 {
		t.Errorf("have %d/%d succeeded/failed, want 4/1", res.Succeeded, res.Failed)
	}
	found := false
	for _, warning := range res.Warnings {
		if strings.Contains(warning, "4/5") {
			found = true
		}
	}
	if !found {
		t.Errorf("expected 4/5 summary warning, have %v", res.Warnings)
	}
}

func TestRunAllFail(t *testing.T) {
	gateway := &fakeGateway{fail: map[int]bool{1: true, 2: true}}
	w, err := New(gateway, workflow.NewArtifacts(new(fakeStore), nil, nil))
	if err != nil {
		t.Fatal(err)
	}

	_, err = w.Run(context.Background(), testRequest(2))
	if err == nil {
		t.Fatal("expected error when every partida fails")
	}
	if !strings.Contains(err.Error(), "all 2 partidas failed") {
		t.Errorf("have %v", err)
	}
}

func TestRunPreconditions(t *testing.T) {
	w, err := New(new(fakeGateway), workflow.NewArtifacts(new(fakeStore), nil, nil))
	if err != nil {
		t.Fatal(err)
	}

	req := testRequest(0)
	if _, err = w.Run(context.Background(), req); !errors.Is(err, ErrNoPartidas) {
		t.Errorf("have %v, want ErrNoPartidas", err)
	}

	req = testRequest(3)
	req.Pedimento.NumeroOperacion = ""
	if _, err = w.Run(context.Background(), req); err == nil {
		t.Error("expected error without operation number")
	}
}
