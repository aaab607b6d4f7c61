package vucem

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/beevik/etree"
)

// ErrNoPayload is returned when a response carries no embedded binary
// payload element.
var ErrNoPayload = errors.New("no embedded payload element")

// payload elements arrive polluted with whitespace and stray XML
// character entities (notably &#xd; carriage returns).
var (
	payloadEntities   = regexp.MustCompile(`&#x?[0-9a-fA-F]+;`)
	payloadWhitespace = regexp.MustCompile(`[\s\r\n\t]`)
)

// FilePayload locates the embedded base64 payload of an
// acknowledgment or digitized-document response: the first non-empty
// element whose local name is "File" or "archivo", in any namespace.
func (d *Document) FilePayload() (string, error) {
	var payload string
	walkElements(d.root, func(e *etree.Element) bool {
		if e.Tag != "File" && e.Tag != "archivo" {
			return true
		}
		if text := strings.TrimSpace(e.Text()); text != "" {
			payload = text
			return false
		}
		return true
	})
	if payload == "" {
		return "", ErrNoPayload
	}
	return payload, nil
}

// DecodePayload cleans and decodes an embedded base64 payload. The
// cleanup removes XML entity noise and all whitespace and pads to a
// valid base64 length; a strict decode failure is retried once with
// relaxed (unpadded) validation before giving up.
func DecodePayload(s string) ([]byte, error) {
	s = payloadEntities.ReplaceAllString(s, "")
	s = payloadWhitespace.ReplaceAllString(s, "")
	if s == "" {
		return nil, errors.New("empty payload after cleanup")
	}
	if n := len(s) % 4; n != 0 {
		s += strings.Repeat("=", 4-n)
	}
	decoded, err := base64.StdEncoding.DecodeString(s)
	if err == nil {
		return decoded, nil
	}
	decoded, relaxedErr := base64.RawStdEncoding.DecodeString(strings.TrimRight(s, "="))
	if relaxedErr == nil {
		return decoded, nil
	}
	return nil, fmt.Errorf("decoding payload: %w", err)
}

// IsPDF reports whether decoded payload bytes carry the PDF magic.
func IsPDF(b []byte) bool {
	return bytes.HasPrefix(b, []byte("%PDF"))
}
