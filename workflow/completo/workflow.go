// Package completo implements the full-pedimento retrieval workflow:
// one gateway call that returns the whole declaration, field
// extraction, artifact persistence, and registration of the
// digitized-document references the response names.
package completo

import (
	"context"
	"fmt"

	"github.com/aduanasoft/vucemd/customs"
	"github.com/aduanasoft/vucemd/logkeys"
	"github.com/aduanasoft/vucemd/vucem"
	"github.com/aduanasoft/vucemd/workflow"

	"github.com/micromdm/nanolib/log"
	"github.com/micromdm/nanolib/log/ctxlog"
)

const WorkflowName = "mx.aduanasoft.wf.completo.v1"

// EDocumentPoster registers digitized-document references discovered
// in the response.
type EDocumentPoster interface {
	CreateEDocument(ctx context.Context, doc *customs.EDocument) (*customs.EDocument, error)
}

type Workflow struct {
	gateway  workflow.Gateway
	arts     *workflow.Artifacts
	registry EDocumentPoster
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

func New(gateway workflow.Gateway, arts *workflow.Artifacts, registry EDocumentPoster, opts ...Option) (*Workflow, error) {
	w := &Workflow{
		gateway:  gateway,
		arts:     arts,
		registry: registry,
		endpoint: vucem.EndpointCompleto,
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
	return customs.KindCompleto
}

func (w *Workflow) Config() *workflow.Config {
	// every full retrieval gets a fresh service instance
	return &workflow.Config{CreatesInstance: true}
}

func (w *Workflow) Run(ctx context.Context, req *workflow.Request) (*workflow.Result, error) {
	logger := ctxlog.Logger(ctx, w.logger)

	env, err := vucem.NewCompletoRequest(req.Credentials, req.Pedimento)
	if err != nil {
		return nil, err
	}
	resp, err := w.gateway.Call(ctx, w.endpoint, env)
	if err != nil {
		return nil, err
	}

	res := new(workflow.Result)
	doc, err := vucem.ParseResponse(resp.Raw)
	if err != nil {
		// keep the raw artifact even when it won't parse
		logger.Info(logkeys.Message, "parsing response", logkeys.Error, err)
		res.Warnf("response not parseable: %v", err)
	} else {
		res.Fields = vucem.Extract(doc)
		if res.Fields.Empty() {
			logger.Info(logkeys.Message, "extraction yielded no headline fields")
			res.Warnf("no fields extracted from response")
		}
	}

	named := *req.Pedimento
	if f := res.Fields; f != nil {
		named.Remesas = f.Remesas
		named.Partidas = f.Partidas
		named.TipoOperacion = f.TipoOperacion
	}
	if _, err = w.arts.SaveXML(ctx, req, customs.ArtifactName(customs.KindCompleto, &named, 0), resp.Raw); err != nil {
		return nil, err
	}

	if res.Fields != nil {
		w.postEDocuments(ctx, req, res)
	}
	return res, nil
}

// postEDocuments registers each discovered e-document reference with
// the registry. Per-item failures are warnings; registration of the
// remaining references continues.
func (w *Workflow) postEDocuments(ctx context.Context, req *workflow.Request, res *workflow.Result) {
	logger := ctxlog.Logger(ctx, w.logger)
	res.Attempted = len(res.Fields.EDocuments)
	for _, id := range res.Fields.EDocuments {
		_, err := w.registry.CreateEDocument(ctx, &customs.EDocument{
			Pedimento:    req.Pedimento.ID,
			Organization: req.Organization,
			Clave:        id.Clave,
			Descripcion:  id.Descripcion,
			Numero:       id.Complemento,
		})
		if err != nil {
			res.Failed++
			res.Warnf("registering e-document %s: %v", id.Complemento, err)
			logger.Info(
				logkeys.Message, "registering e-document",
				logkeys.DocumentName, id.Complemento,
				logkeys.Error, err,
			)
			continue
		}
		res.Succeeded++
	}
	if res.Attempted > 0 {
		logger.Debug(
			logkeys.Message, "e-document references registered",
			logkeys.GenericCount, fmt.Sprintf("%d/%d", res.Succeeded, res.Attempted),
		)
	}
}
