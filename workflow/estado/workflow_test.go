package estado

import (
	"context"
	"errors"
	"testing"

	"github.com/aduanasoft/vucemd/customs"
	"github.com/aduanasoft/vucemd/vucem"
	"github.com/aduanasoft/vucemd/workflow"
)

const estadoResponse = `<?xml version="1.0"?>
<soap:Envelope xmlns:soap="http://schemas.xmlsoap.org/soap/envelope/">
  <soap:Body>
    <e:consultarEstadoPedimentosRespuesta
        xmlns:e="http://www.ventanillaunica.gob.mx/pedimentos/ws/oxml/consultarestadopedimentos">
      <e:tipoOperacion>
        <e:clave>IMP</e:clave>
      </e:tipoOperacion>
    </e:consultarEstadoPedimentosRespuesta>
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

func testRequest() *workflow.Request {
	return &workflow.Request{
		Pedimento: &customs.Pedimento{
			ID:              "42",
			Aduana:          "240",
			Patente:         "3842",
			Pedimento:       "4004070",
			NumeroOperacion: "6301234567",
		},
		Organization: "9",
		Service:      &customs.ServiceInstance{ID: 7},
		Credentials:  &customs.Credentials{Usuario: "u", Password: "p"},
	}
}

func TestRun(t *testing.T) {
	store := new(fakeStore)
	w, err := New(&fakeGateway{raw: []byte(estadoResponse)}, workflow.NewArtifacts(store, nil, nil))
	if err != nil {
		t.Fatal(err)
	}

	res, err := w.Run(context.Background(), testRequest())
	if err != nil {
		t.Fatal(err)
	}
	if res.Fields == nil || res.Fields.TipoOperacion != "IMP" {
		t.Errorf("have %+v, want tipo operacion IMP", res.Fields)
	}
	if len(store.uploads) != 1 {
		t.Fatalf("uploads: have %d, want 1", len(store.uploads))
	}
	if store.uploads[0].Name != "estado_240_3842_4004070_R0_P0.xml" {
		t.Errorf("artifact name: have %q", store.uploads[0].Name)
	}
}

func TestRunNoOperationNumber(t *testing.T) {
	w, err := New(new(fakeGateway), workflow.NewArtifacts(new(fakeStore), nil, nil))
	if err != nil {
		t.Fatal(err)
	}

	req := testRequest()
	req.Pedimento.NumeroOperacion = ""
	if _, err = w.Run(context.Background(), req); !errors.Is(err, ErrNoOperationNumber) {
		t.Errorf("have %v, want ErrNoOperationNumber", err)
	}
}

func TestRunGatewayFailure(t *testing.T) {
	w, err := New(&fakeGateway{err: errors.New("gateway down")}, workflow.NewArtifacts(new(fakeStore), nil, nil))
	if err != nil {
		t.Fatal(err)
	}
	if _, err = w.Run(context.Background(), testRequest()); err == nil {
		t.Fatal("expected error")
	}
}
