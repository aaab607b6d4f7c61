// Package engine implements the vucemd retrieval engine: the shared
// run skeleton every retrieval workflow executes under, and the
// fan-out scheduler for follow-up retrievals.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/aduanasoft/vucemd/customs"
	"github.com/aduanasoft/vucemd/logkeys"
	"github.com/aduanasoft/vucemd/workflow"

	"github.com/micromdm/nanolib/log"
	"github.com/micromdm/nanolib/log/ctxlog"
)

var (
	ErrNoSuchWorkflow = errors.New("no such workflow")

	// ErrMissingReference is the client error for a request without
	// both the pedimento and organization references. No remote call
	// is made in that case.
	ErrMissingReference = errors.New("pedimento and organization references required")
)

func NewErrNoSuchWorkflow(kind customs.ServiceKind) error {
	return fmt.Errorf("%w: %s", ErrNoSuchWorkflow, kind)
}

// Registry is the slice of the system-of-record the engine drives:
// service instance lifecycle, pedimento records, and credentials.
type Registry interface {
	ServiceByKind(ctx context.Context, pedimentoID string, kind customs.ServiceKind) (*customs.ServiceInstance, error)
	CreateService(ctx context.Context, create *customs.ServiceCreate) (*customs.ServiceInstance, error)
	UpdateService(ctx context.Context, id int64, update *customs.ServiceUpdate) error
	Pedimento(ctx context.Context, id string) (*customs.Pedimento, error)
	UpdatePedimento(ctx context.Context, id string, update *customs.PedimentoUpdate) error
	CredentialsForUser(ctx context.Context, usuario string) (*customs.Credentials, error)
}

// Engine coordinates retrieval workflows with the registry.
type Engine struct {
	workflowsMu sync.RWMutex
	workflows   map[customs.ServiceKind]workflow.Workflow

	registry    Registry
	scheduler   *Scheduler
	defaultUser string
	logger      log.Logger
}

type Option func(*Engine)

func WithLogger(logger log.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithDefaultUser sets the credential selector used for pedimentos
// without a taxpayer reference.
func WithDefaultUser(usuario string) Option {
	return func(e *Engine) {
		e.defaultUser = usuario
	}
}

// New creates a retrieval engine.
func New(registry Registry, opts ...Option) *Engine {
	e := &Engine{
		workflows: make(map[customs.ServiceKind]workflow.Workflow),
		registry:  registry,
		logger:    log.NopLogger,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// SetScheduler attaches the follow-up scheduler. Without one the
// completo workflow finishes without fan-out.
func (e *Engine) SetScheduler(s *Scheduler) {
	e.scheduler = s
}

// Response is the uniform envelope every retrieval operation returns.
type Response struct {
	Success  bool     `json:"success"`
	Message  string   `json:"message"`
	Data     Data     `json:"data"`
	Warnings []string `json:"warnings,omitempty"`
}

// Data carries the operation details of a Response.
type Data struct {
	Organization    string               `json:"organizacion"`
	Service         int64                `json:"servicio"`
	State           customs.ServiceState `json:"estado"`
	PedimentoID     string               `json:"pedimento_id"`
	NumeroOperacion string               `json:"numero_operacion,omitempty"`
	Attempted       int                  `json:"items_attempted,omitempty"`
	Succeeded       int                  `json:"items_succeeded,omitempty"`
	Failed          int                  `json:"items_failed,omitempty"`
	FollowUps       []string             `json:"follow_ups,omitempty"`
	FollowUpsFailed int                  `json:"follow_ups_failed,omitempty"`
	TaskID          string               `json:"task_id,omitempty"`
}

// Run executes the retrieval workflow of a kind for a pedimento
// through the shared skeleton: resolve (or register) the service
// instance, transition it to EN_PROCESO, resolve credentials, run the
// workflow, terminate the instance, and assemble the response
// envelope. Errors are classified by sentinel: ErrMissingReference
// and customs.ErrInvalidRef are client errors, record.ErrNotFound is
// a not-found condition, everything else is a server error.
func (e *Engine) Run(ctx context.Context, kind customs.ServiceKind, pedimentoID, organization string) (*Response, error) {
	if pedimentoID == "" || organization == "" {
		return nil, ErrMissingReference
	}
	w := e.Workflow(kind)
	if w == nil {
		return nil, NewErrNoSuchWorkflow(kind)
	}
	logger := ctxlog.Logger(ctx, e.logger).With(
		logkeys.PedimentoID, pedimentoID,
		logkeys.Organization, organization,
		logkeys.ServiceKind, kind,
	)

	p, err := e.registry.Pedimento(ctx, pedimentoID)
	if err != nil {
		return nil, fmt.Errorf("fetching pedimento: %w", err)
	}

	cfg := w.Config()
	if cfg == nil {
		cfg = new(workflow.Config)
	}
	var instance *customs.ServiceInstance
	if cfg.CreatesInstance {
		instance, err = e.registry.CreateService(ctx, &customs.ServiceCreate{
			Pedimento:    p.ID,
			Organization: organization,
			Kind:         kind,
			State:        customs.StateCreated,
			Processing:   customs.ProcessingAutomatic,
		})
		if err != nil {
			return nil, fmt.Errorf("registering service: %w", err)
		}
	} else if instance, err = e.registry.ServiceByKind(ctx, p.ID, kind); err != nil {
		return nil, err
	}
	logger = logger.With(logkeys.ServiceID, instance.ID)

	// best-effort: a failed EN_PROCESO transition is logged and the
	// run continues; the terminal transition retries the state write
	e.transition(ctx, logger, instance.ID, p.ID, organization, customs.StateInProgress)

	user := p.Contribuyente
	if user == "" {
		user = e.defaultUser
	}
	creds, err := e.registry.CredentialsForUser(ctx, user)
	if err != nil {
		e.transition(ctx, logger, instance.ID, p.ID, organization, customs.StateError)
		return nil, fmt.Errorf("fetching credentials: %w", err)
	}

	req := &workflow.Request{
		Pedimento:    p,
		Organization: organization,
		Service:      instance,
		Credentials:  creds,
	}
	if err = req.Validate(); err != nil {
		e.transition(ctx, logger, instance.ID, p.ID, organization, customs.StateError)
		return nil, err
	}

	logger.Debug(logkeys.Message, "running workflow", logkeys.WorkflowName, w.Name())
	res, err := w.Run(ctx, req)
	if err != nil {
		e.transition(ctx, logger, instance.ID, p.ID, organization, customs.StateError)
		return nil, fmt.Errorf("running %s: %w", w.Name(), err)
	}
	e.transition(ctx, logger, instance.ID, p.ID, organization, customs.StateFinished)

	resp := &Response{
		Success: true,
		Message: fmt.Sprintf("%s retrieval finished", kind),
		Data: Data{
			Organization: organization,
			Service:      instance.ID,
			State:        customs.StateFinished,
			PedimentoID:  p.ID,
			Attempted:    res.Attempted,
			Succeeded:    res.Succeeded,
			Failed:       res.Failed,
		},
		Warnings: res.Warnings,
	}
	if res.Fields != nil {
		resp.Data.NumeroOperacion = res.Fields.NumeroOperacion
	}
	if kind == customs.KindCompleto && res.Fields != nil && !res.Fields.Empty() {
		e.finishCompleto(ctx, logger, p, organization, res.Fields, resp)
	}
	return resp, nil
}

// transition updates a service instance's state. Failures are logged,
// never raised: the caller already has its primary outcome to report.
func (e *Engine) transition(ctx context.Context, logger log.Logger, serviceID int64, pedimentoID, organization string, state customs.ServiceState) {
	err := e.registry.UpdateService(ctx, serviceID, &customs.ServiceUpdate{
		State:        state,
		Pedimento:    pedimentoID,
		Organization: organization,
	})
	if err != nil {
		logger.Info(
			logkeys.Message, "transitioning service",
			logkeys.ServiceState, state,
			logkeys.Error, err,
		)
		return
	}
	logger.Debug(
		logkeys.Message, "service transitioned",
		logkeys.ServiceState, state,
	)
}

// finishCompleto runs the post-retrieval steps of a successful full
// retrieval: patch the extracted fields onto the pedimento record,
// register the follow-up service instances, and hand the follow-up
// retrievals to the scheduler as a detached task. Every failure here
// is a response warning; the primary retrieval already succeeded.
func (e *Engine) finishCompleto(ctx context.Context, logger log.Logger, p *customs.Pedimento, organization string, f *customs.ExtractedFields, resp *Response) {
	err := e.registry.UpdatePedimento(ctx, p.ID, &customs.PedimentoUpdate{
		Organization:    organization,
		NumeroOperacion: f.NumeroOperacion,
		Partidas:        f.Partidas,
		TipoOperacion:   f.TipoOperacion,
		Remesas:         f.Remesas,
		CURPApoderado:   f.CURPApoderado,
		AgenteAduanal:   f.AgenteAduanal,
	})
	if err != nil {
		logger.Info(logkeys.Message, "patching pedimento", logkeys.Error, err)
		resp.Warnings = append(resp.Warnings, fmt.Sprintf("patching pedimento: %v", err))
	}

	kinds := []customs.ServiceKind{customs.KindEstado, customs.KindAcuse}
	if f.Partidas > 0 {
		kinds = append(kinds, customs.KindPartidas)
	}
	if f.Remesas {
		kinds = append(kinds, customs.KindRemesas)
	}
	if len(f.EDocuments) > 0 {
		kinds = append(kinds, customs.KindEDocument)
	}
	for _, kind := range kinds {
		_, err := e.registry.CreateService(ctx, &customs.ServiceCreate{
			Pedimento:    p.ID,
			Organization: organization,
			Kind:         kind,
			State:        customs.StateCreated,
			Processing:   customs.ProcessingAutomatic,
		})
		if err != nil {
			logger.Info(
				logkeys.Message, "registering follow-up service",
				logkeys.ServiceKind, kind,
				logkeys.Error, err,
			)
			resp.Data.FollowUpsFailed++
			resp.Warnings = append(resp.Warnings, fmt.Sprintf("registering %s follow-up: %v", kind, err))
			continue
		}
		resp.Data.FollowUps = append(resp.Data.FollowUps, kind.String())
	}

	if e.scheduler != nil {
		task := e.scheduler.Schedule(ctx, p.ID, organization, f.Partidas > 0, f.Remesas)
		resp.Data.TaskID = task.ID
	}
}
