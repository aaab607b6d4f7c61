package vucem

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/aduanasoft/vucemd/customs"

	"github.com/beevik/etree"
)

// ErrNoCredentials is returned when an envelope is requested for
// credentials missing the gateway username or password.
var ErrNoCredentials = errors.New("incomplete gateway credentials")

// Envelope is a ready-to-send SOAP request for one gateway operation.
type Envelope struct {
	// Operation is the request element's local name. Used for logging
	// and error reporting, not sent on the wire separately.
	Operation string

	doc *etree.Document
}

// Bytes serializes the envelope document.
func (e *Envelope) Bytes() ([]byte, error) {
	if e == nil || e.doc == nil {
		return nil, errors.New("empty envelope")
	}
	return e.doc.WriteToBytes()
}

func checkCredentials(c *customs.Credentials) error {
	if c == nil || c.Usuario == "" || c.Password == "" {
		return ErrNoCredentials
	}
	return nil
}

// newEnvelope creates the soapenv:Envelope skeleton with the given
// extra namespace declarations and a WSSE UsernameToken header, and
// returns the document along with its Body element.
func newEnvelope(nsDecls map[string]string, c *customs.Credentials) (*etree.Document, *etree.Element) {
	doc := etree.NewDocument()
	env := doc.CreateElement("soapenv:Envelope")
	env.CreateAttr("xmlns:soapenv", NSSoapEnv)
	for prefix, uri := range nsDecls {
		env.CreateAttr("xmlns:"+prefix, uri)
	}

	header := env.CreateElement("soapenv:Header")
	sec := header.CreateElement("wsse:Security")
	sec.CreateAttr("soapenv:mustUnderstand", "1")
	sec.CreateAttr("xmlns:wsse", NSWSSE)
	token := sec.CreateElement("wsse:UsernameToken")
	token.CreateElement("wsse:Username").SetText(c.Usuario)
	pw := token.CreateElement("wsse:Password")
	pw.CreateAttr("Type", PasswordTextType)
	pw.SetText(c.Password)

	return doc, env.CreateElement("soapenv:Body")
}

// addRef appends the shared com:{aduana,patente,pedimento} reference
// block to a peticion element.
func addRef(peticion *etree.Element, p *customs.Pedimento) {
	peticion.CreateElement("com:aduana").SetText(p.Aduana)
	peticion.CreateElement("com:patente").SetText(p.Patente)
	peticion.CreateElement("com:pedimento").SetText(p.Pedimento)
}

// NewCompletoRequest builds the consultarPedimentoCompleto envelope.
func NewCompletoRequest(c *customs.Credentials, p *customs.Pedimento) (*Envelope, error) {
	if err := checkCredentials(c); err != nil {
		return nil, err
	}
	if err := p.ValidateRef(); err != nil {
		return nil, err
	}
	doc, body := newEnvelope(map[string]string{
		"con": NSConsultaCompleto,
		"com": NSComunes,
	}, c)
	req := body.CreateElement("con:consultarPedimentoCompletoPeticion")
	addRef(req.CreateElement("con:peticion"), p)
	return &Envelope{Operation: "consultarPedimentoCompletoPeticion", doc: doc}, nil
}

// NewEstadoRequest builds the consultarEstadoPedimentos envelope. The
// operation number is the gateway-assigned one from a prior full
// retrieval.
func NewEstadoRequest(c *customs.Credentials, p *customs.Pedimento, numeroOperacion string) (*Envelope, error) {
	if err := checkCredentials(c); err != nil {
		return nil, err
	}
	if err := p.ValidateRef(); err != nil {
		return nil, err
	}
	if numeroOperacion == "" {
		return nil, errors.New("missing operation number")
	}
	doc, body := newEnvelope(map[string]string{
		"con": NSConsultaEstado,
		"com": NSComunes,
	}, c)
	req := body.CreateElement("con:consultarEstadoPedimentosPeticion")
	req.CreateElement("con:numeroOperacion").SetText(numeroOperacion)
	addRef(req.CreateElement("con:peticion"), p)
	return &Envelope{Operation: "consultarEstadoPedimentosPeticion", doc: doc}, nil
}

// NewRemesasRequest builds the consultarRemesas envelope.
func NewRemesasRequest(c *customs.Credentials, p *customs.Pedimento, numeroOperacion string) (*Envelope, error) {
	if err := checkCredentials(c); err != nil {
		return nil, err
	}
	if err := p.ValidateRef(); err != nil {
		return nil, err
	}
	if numeroOperacion == "" {
		return nil, errors.New("missing operation number")
	}
	doc, body := newEnvelope(map[string]string{
		"con": NSConsultaRemesas,
		"com": NSComunes,
	}, c)
	req := body.CreateElement("con:consultarRemesasPeticion")
	req.CreateElement("con:numeroOperacion").SetText(numeroOperacion)
	addRef(req.CreateElement("con:peticion"), p)
	return &Envelope{Operation: "consultarRemesasPeticion", doc: doc}, nil
}

// NewPartidaRequest builds the consultarPartida envelope for a single
// 1-based item ordinal.
func NewPartidaRequest(c *customs.Credentials, p *customs.Pedimento, numeroOperacion string, partida int) (*Envelope, error) {
	if err := checkCredentials(c); err != nil {
		return nil, err
	}
	if err := p.ValidateRef(); err != nil {
		return nil, err
	}
	if numeroOperacion == "" {
		return nil, errors.New("missing operation number")
	}
	if partida < 1 {
		return nil, fmt.Errorf("invalid partida ordinal: %d", partida)
	}
	doc, body := newEnvelope(map[string]string{
		"con": NSConsultaPartida,
		"com": NSComunes,
	}, c)
	req := body.CreateElement("con:consultarPartidaPeticion")
	peticion := req.CreateElement("con:peticion")
	addRef(peticion, p)
	peticion.CreateElement("con:numeroOperacion").SetText(numeroOperacion)
	peticion.CreateElement("con:numeroPartida").SetText(strconv.Itoa(partida))
	return &Envelope{Operation: "consultarPartidaPeticion", doc: doc}, nil
}

// NewAcuseRequest builds the consultaAcuses envelope for one e-document
// number.
func NewAcuseRequest(c *customs.Credentials, idEDocument string) (*Envelope, error) {
	if err := checkCredentials(c); err != nil {
		return nil, err
	}
	if idEDocument == "" {
		return nil, errors.New("missing e-document number")
	}
	doc, body := newEnvelope(map[string]string{
		"oxml": NSAcuses,
	}, c)
	req := body.CreateElement("oxml:consultaAcusesPeticion")
	// the acuses service expects the id element unqualified.
	req.CreateElement("idEdocument").SetText(idEDocument)
	return &Envelope{Operation: "consultaAcusesPeticion", doc: doc}, nil
}

// NewEDocumentRequest builds the digitized-document envelope. This
// service predates the oxml ones: credentials travel as plain header
// elements instead of a WSSE token.
func NewEDocumentRequest(c *customs.Credentials, idEDocument string) (*Envelope, error) {
	if err := checkCredentials(c); err != nil {
		return nil, err
	}
	if idEDocument == "" {
		return nil, errors.New("missing e-document number")
	}
	doc := etree.NewDocument()
	env := doc.CreateElement("soapenv:Envelope")
	env.CreateAttr("xmlns:soapenv", NSSoapEnv)
	env.CreateAttr("xmlns:tem", NSTempuri)

	header := env.CreateElement("soapenv:Header")
	header.CreateElement("tem:UserName").SetText(c.Usuario)
	header.CreateElement("tem:Password").SetText(c.Password)

	body := env.CreateElement("soapenv:Body")
	req := body.CreateElement("tem:DocumentoIn")
	req.CreateElement("tem:Edocument").SetText(idEDocument)
	req.CreateElement("tem:IsCertificado").SetText("1")
	return &Envelope{Operation: "DocumentoIn", doc: doc}, nil
}
