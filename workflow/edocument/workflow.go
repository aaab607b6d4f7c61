// Package edocument implements the digitized-document retrieval
// workflow: one call to the digitalizar service per registered
// e-document reference, decoding each base64 payload to its original
// binary before persistence.
package edocument

import (
	"context"
	"errors"
	"fmt"

	"github.com/aduanasoft/vucemd/customs"
	"github.com/aduanasoft/vucemd/logkeys"
	"github.com/aduanasoft/vucemd/vucem"
	"github.com/aduanasoft/vucemd/workflow"

	"github.com/micromdm/nanolib/log"
	"github.com/micromdm/nanolib/log/ctxlog"
)

const WorkflowName = "mx.aduanasoft.wf.edocument.v1"

// ErrNoEDocuments is returned when the pedimento has no retrievable
// e-document references.
var ErrNoEDocuments = errors.New("no retrievable e-document references")

// EDocumentRegistry lists and annotates the pedimento's
// digitized-document references.
type EDocumentRegistry interface {
	EDocumentsByPedimento(ctx context.Context, pedimentoID string) ([]customs.EDocument, error)
	UpdateEDocument(ctx context.Context, id string, update *customs.EDocumentUpdate) error
}

type Workflow struct {
	gateway  workflow.Gateway
	arts     *workflow.Artifacts
	registry EDocumentRegistry
	endpoint string
	logger   log.Logger
}

type Option func(*Workflow)

func WithLogger(logger log.Logger) Option {
	return func(w *Workflow) {
		w.logger = logger
	}
}

// WithEndpoint overrides the gateway endpoint path.
func WithEndpoint(endpoint string) Option {
	return func(w *Workflow) {
		w.endpoint = endpoint
	}
}

func New(gateway workflow.Gateway, arts *workflow.Artifacts, registry EDocumentRegistry, opts ...Option) (*Workflow, error) {
	w := &Workflow{
		gateway:  gateway,
		arts:     arts,
		registry: registry,
		endpoint: vucem.EndpointEDocument,
		logger:   log.NopLogger,
	}
	for _, opt := range opts {
		opt(w)
	}
	w.logger = w.logger.With(logkeys.WorkflowName, w.Name())
	return w, nil
}

func (w *Workflow) Name() string {
	return WorkflowName
}

func (w *Workflow) Kind() customs.ServiceKind {
	return customs.KindEDocument
}

func (w *Workflow) Config() *workflow.Config {
	return new(workflow.Config)
}

func (w *Workflow) Run(ctx context.Context, req *workflow.Request) (*workflow.Result, error) {
	docs, err := w.registry.EDocumentsByPedimento(ctx, req.Pedimento.ID)
	if err != nil {
		return nil, fmt.Errorf("listing e-documents: %w", err)
	}
	logger := ctxlog.Logger(ctx, w.logger)

	res := new(workflow.Result)
	var lastErr error
	for i, doc := range docs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if doc.Numero == "" {
			res.Warnf("e-document %s has no gateway number", doc.ID)
			continue
		}
		res.Attempted++
		if err := w.retrieveDocument(ctx, req, &doc, i+1); err != nil {
			lastErr = err
			res.Failed++
			res.Warnf("e-document %s: %v", doc.Numero, err)
			logger.Info(
				logkeys.Message, "retrieving e-document",
				logkeys.DocumentName, doc.Numero,
				logkeys.Error, err,
			)
			continue
		}
		res.Succeeded++
	}

	if res.Attempted == 0 {
		return nil, ErrNoEDocuments
	}
	if res.Succeeded == 0 {
		return nil, fmt.Errorf("all %d e-documents failed: %w", res.Attempted, lastErr)
	}
	if res.Failed > 0 {
		res.Warnf("retrieved %d/%d e-documents", res.Succeeded, res.Attempted)
	}
	return res, nil
}

func (w *Workflow) retrieveDocument(ctx context.Context, req *workflow.Request, edoc *customs.EDocument, index int) error {
	env, err := vucem.NewEDocumentRequest(req.Credentials, edoc.Numero)
	if err != nil {
		return err
	}
	resp, err := w.gateway.Call(ctx, w.endpoint, env)
	if err != nil {
		return err
	}
	doc, err := vucem.ParseResponse(resp.Raw)
	if err != nil {
		return fmt.Errorf("parsing response: %w", err)
	}
	payload, err := doc.FilePayload()
	if err != nil {
		return err
	}
	decoded, err := vucem.DecodePayload(payload)
	if err != nil {
		return err
	}

	name := customs.ArtifactName(customs.KindEDocument, req.Pedimento, index)
	stored, err := w.arts.SavePDF(ctx, req, name, customs.DocumentTypeEDocument, decoded)
	if err != nil {
		return err
	}
	if err = w.registry.UpdateEDocument(ctx, edoc.ID, &customs.EDocumentUpdate{Documento: stored.ID}); err != nil {
		ctxlog.Logger(ctx, w.logger).Info(
			logkeys.Message, "annotating e-document record",
			logkeys.DocumentName, edoc.Numero,
			logkeys.Error, err,
		)
	}
	return nil
}
