// Package partidas implements the per-item (partida) retrieval
// workflow: one gateway call per item ordinal, sequential by design
// to bound load on the gateway, with a partial-failure policy.
package partidas

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

const WorkflowName = "mx.aduanasoft.wf.partidas.v1"

// ErrNoPartidas is returned when the pedimento reports no items.
var ErrNoPartidas = errors.New("pedimento has no partidas")

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
		endpoint: vucem.EndpointPartidas,
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
	return customs.KindPartidas
}

func (w *Workflow) Config() *workflow.Config {
	return &workflow.Config{RequiresOperationNumber: true}
}

func (w *Workflow) Run(ctx context.Context, req *workflow.Request) (*workflow.Result, error) {
	if req.Pedimento.NumeroOperacion == "" {
		return nil, errors.New("pedimento has no operation number")
	}
	count := req.Pedimento.Partidas
	if count < 1 {
		return nil, ErrNoPartidas
	}
	logger := ctxlog.Logger(ctx, w.logger)

	res := &workflow.Result{Attempted: count}
	var lastErr error
	for i := 1; i <= count; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := w.retrievePartida(ctx, req, i); err != nil {
			lastErr = err
			res.Failed++
			res.Warnf("partida %d: %v", i, err)
			logger.Info(
				logkeys.Message, "retrieving partida",
				logkeys.GenericCount, i,
				logkeys.Error, err,
			)
			continue
		}
		res.Succeeded++
	}

	if res.Succeeded == 0 {
		return nil, fmt.Errorf("all %d partidas failed: %w", count, lastErr)
	}
	if res.Failed > 0 {
		res.Warnf("retrieved %d/%d partidas", res.Succeeded, res.Attempted)
	}
	logger.Debug(
		logkeys.Message, "partidas retrieved",
		logkeys.GenericCount, fmt.Sprintf("%d/%d", res.Succeeded, res.Attempted),
	)
	return res, nil
}

func (w *Workflow) retrievePartida(ctx context.Context, req *workflow.Request, ordinal int) error {
	env, err := vucem.NewPartidaRequest(req.Credentials, req.Pedimento, req.Pedimento.NumeroOperacion, ordinal)
	if err != nil {
		return err
	}
	resp, err := w.gateway.Call(ctx, w.endpoint, env)
	if err != nil {
		return err
	}
	name := customs.ArtifactName(customs.KindPartidas, req.Pedimento, ordinal)
	_, err = w.arts.SaveXML(ctx, req, name, resp.Raw)
	return err
}
