package vucem

import (
	"errors"
	"strconv"
	"strings"

	"github.com/aduanasoft/vucemd/customs"

	"github.com/beevik/etree"
)

// Document is a parsed gateway response with namespace-aware element
// lookup. Lookups key on the namespace URI an element's prefix is
// bound to, never on the prefix itself: different gateway versions
// bind different prefixes ("ns2", "con", ...) to the same URIs.
type Document struct {
	root *etree.Element
}

// ParseResponse parses raw gateway response bytes. This is the only
// hard failure in the extraction layer; all field lookups on the
// returned document fail soft.
func ParseResponse(raw []byte) (*Document, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(raw); err != nil {
		return nil, err
	}
	root := doc.Root()
	if root == nil {
		return nil, errors.New("no document root")
	}
	return &Document{root: root}, nil
}

// walkElements visits e and its child elements depth-first until fn
// returns false.
func walkElements(e *etree.Element, fn func(*etree.Element) bool) bool {
	if !fn(e) {
		return false
	}
	for _, child := range e.ChildElements() {
		if !walkElements(child, fn) {
			return false
		}
	}
	return true
}

// nsURI resolves the namespace URI of e's prefix by scanning xmlns
// declarations up the ancestor chain. Empty if undeclared.
func nsURI(e *etree.Element) string {
	prefix := e.Space
	for el := e; el != nil; el = el.Parent() {
		for _, attr := range el.Attr {
			if prefix == "" {
				if attr.Space == "" && attr.Key == "xmlns" {
					return attr.Value
				}
			} else if attr.Space == "xmlns" && attr.Key == prefix {
				return attr.Value
			}
		}
	}
	return ""
}

// matches reports whether e is named local under the uri namespace.
func matches(e *etree.Element, uri, local string) bool {
	return e.Tag == local && nsURI(e) == uri
}

// findAll returns all descendant elements (including d's root) named
// local under uri, in document order.
func (d *Document) findAll(uri, local string) (found []*etree.Element) {
	walkElements(d.root, func(e *etree.Element) bool {
		if matches(e, uri, local) {
			found = append(found, e)
		}
		return true
	})
	return
}

// findFirst returns the first descendant element named local under
// uri, or nil.
func (d *Document) findFirst(uri, local string) (found *etree.Element) {
	walkElements(d.root, func(e *etree.Element) bool {
		if matches(e, uri, local) {
			found = e
			return false
		}
		return true
	})
	return
}

// childText returns the trimmed text of the first direct child of e
// named local under uri.
func childText(e *etree.Element, uri, local string) string {
	for _, child := range e.ChildElements() {
		if matches(child, uri, local) {
			return strings.TrimSpace(child.Text())
		}
	}
	return ""
}

// firstText returns the trimmed text of the first descendant named
// local under uri.
func (d *Document) firstText(uri, local string) string {
	if e := d.findFirst(uri, local); e != nil {
		return strings.TrimSpace(e.Text())
	}
	return ""
}

// Extract pulls the canonical field set out of a full-pedimento
// response. Every field fails soft: a missing or malformed element
// yields that field's zero value and extraction of the remaining
// fields continues. Callers check Empty() to detect a response that
// yielded nothing at all.
func Extract(d *Document) *customs.ExtractedFields {
	f := &customs.ExtractedFields{
		NumeroOperacion: d.firstText(NSConsultaCompleto, "numeroOperacion"),
		CURPApoderado:   d.firstText(NSConsultaCompleto, "curpApoderadomandatario"),
		AgenteAduanal:   d.firstText(NSConsultaCompleto, "rfcAgenteAduanalSocFactura"),
		Partidas:        d.maxPartidas(),
		TipoOperacion:   d.operationType(NSConsultaCompleto),
	}

	// the declaration number nests a pedimento element inside another
	for _, e := range d.findAll(NSConsultaCompleto, "pedimento") {
		if inner := childText(e, NSConsultaCompleto, "pedimento"); inner != "" {
			f.Pedimento = inner
			break
		}
	}

	for _, id := range d.identificadores() {
		clave := childPath(id, NSComunes, "claveIdentificador", "clave")
		switch clave {
		case "ED":
			// an ED identifier without its complement carries no
			// retrievable document number; skip it
			comp := childText(id, NSComunes, "complemento1")
			if comp == "" {
				continue
			}
			f.EDocuments = append(f.EDocuments, customs.EDocumentID{
				Clave:       clave,
				Descripcion: childPath(id, NSComunes, "claveIdentificador", "descripcion"),
				Complemento: comp,
			})
		case "RC":
			f.Remesas = true
		}
	}
	return f
}

// ExtractEstado pulls the operation type out of a status-query
// response. Empty when absent.
func ExtractEstado(d *Document) string {
	return d.operationType(NSConsultaEstado)
}

// maxPartidas scans every repeated partidas element and reports the
// maximum integer value found. The gateway repeats the element at
// several depths with partial counts; the real item count is the
// maximum, independent of document order.
func (d *Document) maxPartidas() int {
	max := 0
	for _, e := range d.findAll(NSConsultaCompleto, "partidas") {
		n, err := strconv.Atoi(strings.TrimSpace(e.Text()))
		if err != nil {
			continue
		}
		if n > max {
			max = n
		}
	}
	return max
}

// identificadores returns the identifier entries of a full-pedimento
// response: identificadores elements nested inside an identificadores
// group element.
func (d *Document) identificadores() (found []*etree.Element) {
	for _, e := range d.findAll(NSConsultaCompleto, "identificadores") {
		if p := e.Parent(); p != nil && matches(p, NSConsultaCompleto, "identificadores") {
			found = append(found, e)
		}
	}
	return
}

func (d *Document) operationType(uri string) string {
	if e := d.findFirst(uri, "tipoOperacion"); e != nil {
		return childText(e, uri, "clave")
	}
	return ""
}

// childPath descends direct children by local names under uri.
func childPath(e *etree.Element, uri string, locals ...string) string {
	cur := e
	for i, local := range locals {
		var next *etree.Element
		for _, child := range cur.ChildElements() {
			if matches(child, uri, local) {
				next = child
				break
			}
		}
		if next == nil {
			return ""
		}
		if i == len(locals)-1 {
			return strings.TrimSpace(next.Text())
		}
		cur = next
	}
	return ""
}
