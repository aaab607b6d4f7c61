// Package acuse implements the acknowledgment-document retrieval
// workflow: one gateway call per registered e-document reference,
// with base64 payload recovery and a partial-failure policy.
package acuse

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

const WorkflowName = "mx.aduanasoft.wf.acuse.v1"

var (
	// ErrNotEligible is returned when the credentials lack both
	// acknowledgment capability flags.
	ErrNotEligible = errors.New("credentials not eligible for acuse retrieval")

	// ErrNoEDocuments is returned when the pedimento has no
	// retrievable e-document references.
	ErrNoEDocuments = errors.New("no retrievable e-document references")
)

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
		endpoint: vucem.EndpointAcuses,
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
	return customs.KindAcuse
}

func (w *Workflow) Config() *workflow.Config {
	return new(workflow.Config)
}

func (w *Workflow) Run(ctx context.Context, req *workflow.Request) (*workflow.Result, error) {
	if !req.Credentials.AcuseEligible() {
		return nil, ErrNotEligible
	}
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
			// reference never got a gateway document number; nothing
			// to retrieve
			res.Warnf("e-document %s has no gateway number", doc.ID)
			continue
		}
		res.Attempted++
		if err := w.retrieveAcuse(ctx, req, &doc, i+1); err != nil {
			lastErr = err
			res.Failed++
			res.Warnf("acuse %s: %v", doc.Numero, err)
			logger.Info(
				logkeys.Message, "retrieving acuse",
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
		return nil, fmt.Errorf("all %d acuses failed: %w", res.Attempted, lastErr)
	}
	if res.Failed > 0 {
		res.Warnf("retrieved %d/%d acuses", res.Succeeded, res.Attempted)
	}
	return res, nil
}

func (w *Workflow) retrieveAcuse(ctx context.Context, req *workflow.Request, edoc *customs.EDocument, index int) error {
	env, err := vucem.NewAcuseRequest(req.Credentials, edoc.Numero)
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
	logger := ctxlog.Logger(ctx, w.logger)
	if !vucem.IsPDF(decoded) {
		logger.Info(
			logkeys.Message, "decoded acuse payload missing PDF magic",
			logkeys.DocumentName, edoc.Numero,
		)
	}

	name := customs.ArtifactName(customs.KindAcuse, req.Pedimento, index)
	stored, err := w.arts.SavePDF(ctx, req, name, customs.DocumentTypeAcusePDF, decoded)
	if err != nil {
		return err
	}
	// record keeping only; the artifact is already persisted
	if err = w.registry.UpdateEDocument(ctx, edoc.ID, &customs.EDocumentUpdate{Acuse: stored.ID}); err != nil {
		logger.Info(
			logkeys.Message, "annotating e-document record",
			logkeys.DocumentName, edoc.Numero,
			logkeys.Error, err,
		)
	}
	return nil
}
