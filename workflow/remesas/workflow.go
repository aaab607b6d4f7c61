// Package remesas implements the shipment-lot retrieval workflow for
// consolidated pedimentos.
package remesas

import (
	"context"
	"errors"

	"github.com/aduanasoft/vucemd/customs"
	"github.com/aduanasoft/vucemd/logkeys"
	"github.com/aduanasoft/vucemd/vucem"
	"github.com/aduanasoft/vucemd/workflow"

	"github.com/micromdm/nanolib/log"
	"github.com/micromdm/nanolib/log/ctxlog"
)

const WorkflowName = "mx.aduanasoft.wf.remesas.v1"

type Workflow struct {
	gateway  workflow.Gateway
	arts     *workflow.Artifacts
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

func New(gateway workflow.Gateway, arts *workflow.Artifacts, opts ...Option) (*Workflow, error) {
	w := &Workflow{
		gateway:  gateway,
		arts:     arts,
		endpoint: vucem.EndpointRemesas,
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
	return customs.KindRemesas
}

func (w *Workflow) Config() *workflow.Config {
	return &workflow.Config{RequiresOperationNumber: true}
}

func (w *Workflow) Run(ctx context.Context, req *workflow.Request) (*workflow.Result, error) {
	if req.Pedimento.NumeroOperacion == "" {
		return nil, errors.New("pedimento has no operation number")
	}
	logger := ctxlog.Logger(ctx, w.logger)
	if !req.Pedimento.Remesas {
		// an explicit request overrides the RC flag; the gateway
		// answers with an empty listing for non-consolidated
		// pedimentos
		logger.Debug(logkeys.Message, "pedimento not flagged for remesas")
	}

	env, err := vucem.NewRemesasRequest(req.Credentials, req.Pedimento, req.Pedimento.NumeroOperacion)
	if err != nil {
		return nil, err
	}
	resp, err := w.gateway.Call(ctx, w.endpoint, env)
	if err != nil {
		return nil, err
	}

	name := customs.ArtifactName(customs.KindRemesas, req.Pedimento, 0)
	if _, err = w.arts.SaveXML(ctx, req, name, resp.Raw); err != nil {
		return nil, err
	}
	return new(workflow.Result), nil
}
