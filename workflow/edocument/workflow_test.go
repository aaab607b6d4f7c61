package edocument

import (
	"context"
	"encoding/base64"
	"errors"
	"testing"

	"github.com/aduanasoft/vucemd/customs"
	"github.com/aduanasoft/vucemd/vucem"
	"github.com/aduanasoft/vucemd/workflow"
)

func documentResponse(content []byte) []byte {
	return []byte(`<?xml version="1.0"?>
<s:Envelope xmlns:s="http://schemas.xmlsoap.org/soap/envelope/">
  <s:Body>
    <DocumentoInResponse xmlns="http://tempuri.org/">
      <File>` + base64.StdEncoding.EncodeToString(content) + `</File>
    </DocumentoInResponse>
  </s:Body>
</s:Envelope>`)
}

type fakeGateway struct {
	raw []byte
	err error
}

func (g *fakeGateway) Call(_ context.Context, endpoint string, env *vucem.Envelope) (*vucem.Response, error) {
	if g.err != nil {
		return nil, g.err
	}
	return &vucem.Response{StatusCode: 200, Raw: g.raw}, nil
}

type fakeStore struct {
	uploads []*customs.Upload
}

func (s *fakeStore) UploadDocument(_ context.Context, up *customs.Upload) (*customs.Document, error) {
	s.uploads = append(s.uploads, up)
	return &customs.Document{ID: "stored-7"}, nil
}

type fakeRegistry struct {
	docs    []customs.EDocument
	listErr error
	updates map[string]*customs.EDocumentUpdate
}

func (r *fakeRegistry) EDocumentsByPedimento(_ context.Context, pedimentoID string) ([]customs.EDocument, error) {
	return r.docs, r.listErr
}

func (r *fakeRegistry) UpdateEDocument(_ context.Context, id string, update *customs.EDocumentUpdate) error {
	if r.updates == nil {
		r.updates = make(map[string]*customs.EDocumentUpdate)
	}
	r.updates[id] = update
	return nil
}

func testRequest() *workflow.Request {
	return &workflow.Request{
		Pedimento: &customs.Pedimento{
			ID:        "42",
			Aduana:    "240",
			Patente:   "3842",
			Pedimento: "4004070",
		},
		Organization: "9",
		Service:      &customs.ServiceInstance{ID: 7},
		Credentials:  &customs.Credentials{Usuario: "u", Password: "p"},
	}
}

func TestRun(t *testing.T) {
	gateway := &fakeGateway{raw: documentResponse([]byte("%PDF-1.4 factura"))}
	store := new(fakeStore)
	registry := &fakeRegistry{docs: []customs.EDocument{
		{ID: "e1", Numero: "0123400012345"},
	}}
	w, err := New(gateway, workflow.NewArtifacts(store, nil, nil), registry)
	if err != nil {
		t.Fatal(err)
	}

	res, err := w.Run(context.Background(), testRequest())
	if err != nil {
		t.Fatal(err)
	}
	if res.Succeeded != 1 {
		t.Errorf("have %d succeeded, want 1", res.Succeeded)
	}
	if len(store.uploads) != 1 {
		t.Fatalf("uploads: have %d, want 1", len(store.uploads))
	}
	if string(store.uploads[0].Content) != "%PDF-1.4 factura" {
		t.Errorf("payload not decoded: %q", store.uploads[0].Content)
	}
	if store.uploads[0].Type != customs.DocumentTypeEDocument {
		t.Errorf("document type: have %d", store.uploads[0].Type)
	}
	if update := registry.updates["e1"]; update == nil || update.Documento != "stored-7" {
		t.Errorf("record not annotated: %+v", update)
	}
}

func TestRunNoReferences(t *testing.T) {
	w, err := New(new(fakeGateway), workflow.NewArtifacts(new(fakeStore), nil, nil), new(fakeRegistry))
	if err != nil {
		t.Fatal(err)
	}
	if _, err = w.Run(context.Background(), testRequest()); !errors.Is(err, ErrNoEDocuments) {
		t.Errorf("have %v, want ErrNoEDocuments", err)
	}
}

func TestRunListFailure(t *testing.T) {
	registry := &fakeRegistry{listErr: errors.New("registry down")}
	w, err := New(new(fakeGateway), workflow.NewArtifacts(new(fakeStore), nil, nil), registry)
	if err != nil {
		t.Fatal(err)
	}
	if _, err = w.Run(context.Background(), testRequest()); err == nil {
		t.Fatal("expected error")
	}
}

func TestRunBadPayload(t *testing.T) {
	gateway := &fakeGateway{raw: []byte(`<DocumentoInResponse xmlns="http://tempuri.org/"><File>!!!</File></DocumentoInResponse>`)}
	registry := &fakeRegistry{docs: []customs.EDocument{{ID: "e1", Numero: "0123400012345"}}}
	w, err := New(gateway, workflow.NewArtifacts(new(fakeStore), nil, nil), registry)
	if err != nil {
		t.Fatal(err)
	}

	// a single undecodable payload with no successes fails the run
	if _, err = w.Run(context.Background(), testRequest()); err == nil {
		t.Fatal("expected error")
	}
}
