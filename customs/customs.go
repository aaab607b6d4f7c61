// Package customs defines the domain types shared by the vucemd services:
// pedimentos, service instances (procesamientos), gateway credentials,
// e-documents, and produced documents.
package customs

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidRef is returned when a pedimento reference fails validation.
	ErrInvalidRef = errors.New("invalid pedimento reference")

	// ErrInvalidTransition is returned for a non-monotonic state change.
	ErrInvalidTransition = errors.New("invalid state transition")
)

// ServiceKind enumerates the retrieval operations the registry tracks.
// The numeric values are the registry wire values. Treat these as
// append-only: order and position matter.
type ServiceKind int

const (
	KindCompleto  ServiceKind = 1 // full pedimento retrieval
	KindEstado    ServiceKind = 2 // operation status query
	KindEDocument ServiceKind = 3 // digitized document retrieval
	KindPartidas  ServiceKind = 4 // per-item retrieval
	KindRemesas   ServiceKind = 5 // shipment-lot retrieval
	KindAcuse     ServiceKind = 6 // acknowledgment retrieval
)

func (k ServiceKind) Valid() bool {
	return k >= KindCompleto && k <= KindAcuse
}

func (k ServiceKind) String() string {
	switch k {
	case KindCompleto:
		return "completo"
	case KindEstado:
		return "estado"
	case KindEDocument:
		return "edocument"
	case KindPartidas:
		return "partidas"
	case KindRemesas:
		return "remesas"
	case KindAcuse:
		return "acuse"
	default:
		return fmt.Sprintf("unknown service kind: %d", int(k))
	}
}

// ServiceKindForString returns the kind named by s, or 0 if unknown.
func ServiceKindForString(s string) ServiceKind {
	switch s {
	case "completo":
		return KindCompleto
	case "estado":
		return KindEstado
	case "edocument":
		return KindEDocument
	case "partidas":
		return KindPartidas
	case "remesas":
		return KindRemesas
	case "acuse":
		return KindAcuse
	default:
		return 0
	}
}

// ServiceState is the lifecycle state of a service instance in the
// registry. The numeric values are the registry wire values.
type ServiceState int

const (
	StateCreated    ServiceState = 1
	StateInProgress ServiceState = 2
	StateFinished   ServiceState = 3
	StateError      ServiceState = 4
)

func (s ServiceState) Valid() bool {
	return s >= StateCreated && s <= StateError
}

// String returns the registry's (Spanish) state name.
func (s ServiceState) String() string {
	switch s {
	case StateCreated:
		return "CREADO"
	case StateInProgress:
		return "EN_PROCESO"
	case StateFinished:
		return "FINALIZADO"
	case StateError:
		return "ERROR"
	default:
		return fmt.Sprintf("unknown service state: %d", int(s))
	}
}

// Terminal is true for states a service instance cannot leave.
func (s ServiceState) Terminal() bool {
	return s == StateFinished || s == StateError
}

// CanTransition reports whether moving from s to next keeps the
// lifecycle monotonic: CREADO → EN_PROCESO → {FINALIZADO, ERROR}.
func (s ServiceState) CanTransition(next ServiceState) bool {
	switch s {
	case StateCreated:
		return next == StateInProgress
	case StateInProgress:
		return next == StateFinished || next == StateError
	default:
		return false
	}
}

// ProcessingAutomatic is the registry processing-type code for service
// instances created by this service (as opposed to manual captures).
const ProcessingAutomatic = 1

// Pedimento is the registry record of a customs declaration. The
// registry owns it; vucemd reads it and patches retrieval results onto
// it by reference.
type Pedimento struct {
	ID              string `json:"id"`
	Aduana          string `json:"aduana"`
	Patente         string `json:"patente"`
	Pedimento       string `json:"pedimento"`
	Contribuyente   string `json:"contribuyente"`
	NumeroOperacion string `json:"numero_operacion,omitempty"`
	Partidas        int    `json:"numero_partidas,omitempty"`
	TipoOperacion   string `json:"tipo_operacion,omitempty"`
	Remesas         bool   `json:"remesas,omitempty"`
	CURPApoderado   string `json:"curp_apoderado,omitempty"`
	AgenteAduanal   string `json:"agente_aduanal,omitempty"`
}

// ValidateRef checks the gateway reference triplet: a 3-digit customs
// office code, a 4-digit broker license and a 7-digit declaration
// number.
func (p *Pedimento) ValidateRef() error {
	if !allDigits(p.Aduana, 3) {
		return fmt.Errorf("%w: aduana %q", ErrInvalidRef, p.Aduana)
	}
	if !allDigits(p.Patente, 4) {
		return fmt.Errorf("%w: patente %q", ErrInvalidRef, p.Patente)
	}
	if !allDigits(p.Pedimento, 7) {
		return fmt.Errorf("%w: pedimento %q", ErrInvalidRef, p.Pedimento)
	}
	return nil
}

func allDigits(s string, n int) bool {
	if len(s) != n {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// PedimentoUpdate carries the extraction results patched back onto a
// pedimento record. Zero-valued fields are omitted from the patch.
type PedimentoUpdate struct {
	Organization    string `json:"organizacion,omitempty"`
	NumeroOperacion string `json:"numero_operacion,omitempty"`
	Partidas        int    `json:"numero_partidas,omitempty"`
	TipoOperacion   string `json:"tipo_operacion,omitempty"`
	Remesas         bool   `json:"remesas,omitempty"`
	CURPApoderado   string `json:"curp_apoderado,omitempty"`
	AgenteAduanal   string `json:"agente_aduanal,omitempty"`
}

// ServiceInstance is one registry-tracked workflow run of a retrieval
// kind against a pedimento.
type ServiceInstance struct {
	ID           int64        `json:"id"`
	Pedimento    Pedimento    `json:"pedimento"`
	Organization string       `json:"organizacion"`
	Kind         ServiceKind  `json:"servicio"`
	State        ServiceState `json:"estado"`
	Processing   int          `json:"tipo_procesamiento"`
}

// ServiceCreate is the payload for registering a new service instance.
// Unlike ServiceInstance the pedimento is a bare reference here.
type ServiceCreate struct {
	Pedimento    string      `json:"pedimento"`
	Organization string      `json:"organizacion"`
	Kind         ServiceKind `json:"servicio"`
	State        ServiceState `json:"estado"`
	Processing   int         `json:"tipo_procesamiento"`
}

// ServiceUpdate is the payload for a service state transition. The
// pedimento and organization references ride along on every terminal
// transition so FINALIZADO and ERROR updates carry an identical shape.
type ServiceUpdate struct {
	State        ServiceState `json:"estado"`
	Pedimento    string       `json:"pedimento"`
	Organization string       `json:"organizacion"`
}

// Credentials hold a taxpayer's VUCEM gateway login and capability
// flags. Owned by the remote credential store, read-only here.
type Credentials struct {
	ID             string `json:"id"`
	Usuario        string `json:"usuario"`
	Password       string `json:"password"`
	Patente        string `json:"patente"`
	Importer       bool   `json:"is_importer"`
	AcuseCove      bool   `json:"acuseCove"`
	AcuseEDocument bool   `json:"acuseedocument"`
	Active         bool   `json:"is_active"`
}

// AcuseEligible is true when the credentials may retrieve
// acknowledgment documents of any type.
func (c *Credentials) AcuseEligible() bool {
	return c.AcuseCove || c.AcuseEDocument
}

// EDocumentID is one digitized-document identifier extracted from a
// full-pedimento response: the literal "ED" code, its description and
// the gateway document number carried in the complement field.
type EDocumentID struct {
	Clave       string `json:"clave"`
	Descripcion string `json:"descripcion"`
	Complemento string `json:"complemento1"`
}

// EDocument is the registry record of a digitized document reference.
type EDocument struct {
	ID           string `json:"id"`
	Pedimento    string `json:"pedimento"`
	Organization string `json:"organizacion"`
	Clave        string `json:"clave"`
	Descripcion  string `json:"descripcion"`
	Numero       string `json:"numero_edocument"`
}

// EDocumentUpdate patches retrieval results onto an e-document record.
type EDocumentUpdate struct {
	Documento string `json:"documento,omitempty"`
	Acuse     string `json:"acuse,omitempty"`
}

// ExtractedFields is the canonical field set pulled out of a
// full-pedimento gateway response. Transient: individual fields feed
// pedimento patches and follow-up decisions.
type ExtractedFields struct {
	NumeroOperacion string
	Pedimento       string
	CURPApoderado   string
	AgenteAduanal   string
	Partidas        int
	TipoOperacion   string
	Remesas         bool
	EDocuments      []EDocumentID
}

// Empty is true when none of the headline fields were found.
func (f *ExtractedFields) Empty() bool {
	return f == nil || (f.NumeroOperacion == "" && f.Pedimento == "" &&
		f.CURPApoderado == "" && f.AgenteAduanal == "")
}

// Document type codes in the remote document store.
const (
	DocumentTypeXML       = 2
	DocumentTypeAcusePDF  = 3
	DocumentTypeEDocument = 4
)

// Document is a stored artifact reference returned by the remote
// document store after upload.
type Document struct {
	ID           string `json:"id"`
	Organization string `json:"organizacion"`
	Pedimento    string `json:"pedimento"`
	Archivo      string `json:"archivo,omitempty"`
	Extension    string `json:"extension"`
	Type         int    `json:"document_type"`
	Size         int64  `json:"size"`
}

// Upload describes an artifact to hand over to the remote document
// store: the raw bytes plus the metadata the store indexes on.
type Upload struct {
	Organization string
	Pedimento    string
	Name         string
	Extension    string
	Type         int
	Content      []byte
	ContentType  string
}
