package completo

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/aduanasoft/vucemd/customs"
	"github.com/aduanasoft/vucemd/vucem"
	"github.com/aduanasoft/vucemd/workflow"
)

const completoResponse = `<?xml version="1.0"?>
<soap:Envelope xmlns:soap="http://schemas.xmlsoap.org/soap/envelope/">
  <soap:Body>
    <con:consultarPedimentoCompletoRespuesta
        xmlns:con="http://www.ventanillaunica.gob.mx/pedimentos/ws/oxml/consultarpedimentocompleto"
        xmlns:com="http://www.ventanillaunica.gob.mx/pedimentos/ws/oxml/comunes">
      <con:numeroOperacion>6301234567</con:numeroOperacion>
      <con:pedimento>
        <con:pedimento>4004070</con:pedimento>
        <con:partidas>2</con:partidas>
        <con:tipoOperacion><con:clave>IMP</con:clave></con:tipoOperacion>
        <con:identificadores>
          <con:identificadores>
            <com:claveIdentificador>
              <com:clave>ED</com:clave>
              <com:descripcion>E-DOCUMENT</com:descripcion>
            </com:claveIdentificador>
            <com:complemento1>0123400012345</com:complemento1>
          </con:identificadores>
          <con:identificadores>
            <com:claveIdentificador>
              <com:clave>ED</com:clave>
              <com:descripcion>E-DOCUMENT</com:descripcion>
            </com:claveIdentificador>
            <com:complemento1>0123400054321</com:complemento1>
          </con:identificadores>
        </con:identificadores>
      </con:pedimento>
    </con:consultarPedimentoCompletoRespuesta>
  </soap:Body>
</soap:Envelope>`

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
	return &customs.Document{ID: "stored"}, nil
}

type fakePoster struct {
	created []*customs.EDocument
	// failNumero makes registering that document number fail
	failNumero string
}

func (p *fakePoster) CreateEDocument(_ context.Context, doc *customs.EDocument) (*customs.EDocument, error) {
	if doc.Numero == p.failNumero {
		return nil, errors.New("registry rejected")
	}
	p.created = append(p.created, doc)
	return doc, nil
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
	store := new(fakeStore)
	poster := new(fakePoster)
	w, err := New(&fakeGateway{raw: []byte(completoResponse)}, workflow.NewArtifacts(store, nil, nil), poster)
	if err != nil {
		t.Fatal(err)
	}

	res, err := w.Run(context.Background(), testRequest())
	if err != nil {
		t.Fatal(err)
	}
	if res.Fields == nil {
		t.Fatal("expected extracted fields")
	}
	if res.Fields.NumeroOperacion != "6301234567" {
		t.Errorf("numero operacion: have %q", res.Fields.NumeroOperacion)
	}
	if res.Fields.Partidas != 2 {
		t.Errorf("partidas: have %d, want 2", res.Fields.Partidas)
	}

	// the raw response is persisted with the extracted flags in its name
	if len(store.uploads) != 1 {
		t.Fatalf("uploads: have %d, want 1", len(store.uploads))
	}
	if name := store.uploads[0].Name; name != "completo_240_3842_4004070_R0_P2_TIMP.xml" {
		t.Errorf("artifact name: have %q", name)
	}

	// both discovered e-document references get registered
	if len(poster.created) != 2 {
		t.Fatalf("e-documents created: have %d, want 2", len(poster.created))
	}
	if poster.created[0].Numero != "0123400012345" {
		t.Errorf("have %q", poster.created[0].Numero)
	}
	if res.Succeeded != 2 || res.Failed != 0 {
		t.Errorf("have %d/%d succeeded/failed, want 2/0", res.Succeeded, res.Failed)
	}
}

func TestRunPosterFailureIsWarning(t *testing.T) {
	store := new(fakeStore)
	poster := &fakePoster{failNumero: "0123400012345"}
	w, err := New(&fakeGateway{raw: []byte(completoResponse)}, workflow.NewArtifacts(store, nil, nil), poster)
	if err != nil {
		t.Fatal(err)
	}

	res, err := w.Run(context.Background(), testRequest())
	if err != nil {
		t.Fatal(err)
	}
	if res.Succeeded != 1 || res.Failed != 1 {
		t.Errorf("have %d/%d succeeded/failed, want 1/1", res.Succeeded, res.Failed)
	}
	if len(res.Warnings) == 0 {
		t.Error("expected a per-item warning")
	}
}

func TestRunUnparseableResponse(t *testing.T) {
	store := new(fakeStore)
	w, err := New(&fakeGateway{raw: []byte("not xml <")}, workflow.NewArtifacts(store, nil, nil), new(fakePoster))
	if err != nil {
		t.Fatal(err)
	}

	// a garbage body is still archived; the run warns instead of failing
	res, err := w.Run(context.Background(), testRequest())
	if err != nil {
		t.Fatal(err)
	}
	if res.Fields != nil {
		t.Error("expected no fields")
	}
	if len(store.uploads) != 1 {
		t.Errorf("uploads: have %d, want 1", len(store.uploads))
	}
	found := false
	for _, warning := range res.Warnings {
		if strings.Contains(warning, "not parseable") {
			found = true
		}
	}
	if !found {
		t.Errorf("expected parse warning, have %v", res.Warnings)
	}
}

func TestRunGatewayFailure(t *testing.T) {
	w, err := New(&fakeGateway{err: errors.New("gateway down")}, workflow.NewArtifacts(new(fakeStore), nil, nil), new(fakePoster))
	if err != nil {
		t.Fatal(err)
	}
	if _, err = w.Run(context.Background(), testRequest()); err == nil {
		t.Fatal("expected error")
	}
}
