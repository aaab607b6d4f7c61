package workflow

import (
	"context"
	"fmt"

	"github.com/aduanasoft/vucemd/customs"
	"github.com/aduanasoft/vucemd/logkeys"
	"github.com/aduanasoft/vucemd/vucem"

	"github.com/micromdm/nanolib/log"
	"github.com/micromdm/nanolib/log/ctxlog"
)

// Gateway sends SOAP envelopes to the customs gateway.
type Gateway interface {
	Call(ctx context.Context, endpoint string, env *vucem.Envelope) (*vucem.Response, error)
}

// DocumentStore uploads produced artifacts to the remote document
// store.
type DocumentStore interface {
	UploadDocument(ctx context.Context, up *customs.Upload) (*customs.Document, error)
}

// Spool keeps local copies of produced artifacts.
type Spool interface {
	StoreArtifact(ctx context.Context, name string, content []byte) error
}

// Artifacts persists workflow artifacts: a best-effort local spool
// copy plus the authoritative remote document store upload.
type Artifacts struct {
	store  DocumentStore
	spool  Spool
	logger log.Logger
}

// NewArtifacts creates an artifact persister. The spool may be nil.
func NewArtifacts(store DocumentStore, spool Spool, logger log.Logger) *Artifacts {
	if logger == nil {
		logger = log.NopLogger
	}
	return &Artifacts{store: store, spool: spool, logger: logger}
}

// Save spools and uploads one artifact. A spool write failure is a
// logged warning only; the remote store owns the artifact after a
// successful upload.
func (a *Artifacts) Save(ctx context.Context, up *customs.Upload) (*customs.Document, error) {
	logger := ctxlog.Logger(ctx, a.logger).With(logkeys.DocumentName, up.Name)
	if a.spool != nil {
		if err := a.spool.StoreArtifact(ctx, up.Name, up.Content); err != nil {
			logger.Info(logkeys.Message, "spooling artifact", logkeys.Error, err)
		}
	}
	doc, err := a.store.UploadDocument(ctx, up)
	if err != nil {
		return nil, fmt.Errorf("uploading %s: %w", up.Name, err)
	}
	return doc, nil
}

// SaveXML persists a raw gateway response as an XML artifact.
func (a *Artifacts) SaveXML(ctx context.Context, req *Request, name string, raw []byte) (*customs.Document, error) {
	return a.Save(ctx, &customs.Upload{
		Organization: req.Organization,
		Pedimento:    req.Pedimento.ID,
		Name:         name + ".xml",
		Extension:    "xml",
		Type:         customs.DocumentTypeXML,
		Content:      raw,
		ContentType:  "application/xml",
	})
}

// SavePDF persists a decoded binary payload as a PDF artifact.
func (a *Artifacts) SavePDF(ctx context.Context, req *Request, name string, docType int, content []byte) (*customs.Document, error) {
	return a.Save(ctx, &customs.Upload{
		Organization: req.Organization,
		Pedimento:    req.Pedimento.ID,
		Name:         name + ".pdf",
		Extension:    "pdf",
		Type:         docType,
		Content:      content,
		ContentType:  "application/pdf",
	})
}
