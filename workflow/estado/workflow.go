// Package estado implements the pedimento status-query workflow.
package estado

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

const WorkflowName = "mx.aduanasoft.wf.estado.v1"

// ErrNoOperationNumber is returned when the pedimento has no gateway
// operation number yet; a full retrieval must assign one first.
var ErrNoOperationNumber = errors.New("pedimento has no operation number")

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
		endpoint: vucem.EndpointEstado,
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
	return customs.KindEstado
}

func (w *Workflow) Config() *workflow.Config {
	return &workflow.Config{RequiresOperationNumber: true}
}

func (w *Workflow) Run(ctx context.Context, req *workflow.Request) (*workflow.Result, error) {
	if req.Pedimento.NumeroOperacion == "" {
		return nil, ErrNoOperationNumber
	}
	env, err := vucem.NewEstadoRequest(req.Credentials, req.Pedimento, req.Pedimento.NumeroOperacion)
	if err != nil {
		return nil, err
	}
	resp, err := w.gateway.Call(ctx, w.endpoint, env)
	if err != nil {
		return nil, err
	}

	res := new(workflow.Result)
	if doc, err := vucem.ParseResponse(resp.Raw); err != nil {
		ctxlog.Logger(ctx, w.logger).Info(logkeys.Message, "parsing response", logkeys.Error, err)
		res.Warnf("response not parseable: %v", err)
	} else if tipo := vucem.ExtractEstado(doc); tipo != "" {
		res.Fields = &customs.ExtractedFields{TipoOperacion: tipo}
	}

	name := customs.ArtifactName(customs.KindEstado, req.Pedimento, 0)
	if _, err = w.arts.SaveXML(ctx, req, name, resp.Raw); err != nil {
		return nil, err
	}
	return res, nil
}
