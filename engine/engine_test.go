package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/aduanasoft/vucemd/customs"
	"github.com/aduanasoft/vucemd/record"
	"github.com/aduanasoft/vucemd/workflow"
)

// fakeRegistry is an in-memory Registry tracking instance lifecycles.
type fakeRegistry struct {
	mu         sync.Mutex
	nextID     int64
	pedimentos map[string]*customs.Pedimento
	creds      map[string]*customs.Credentials
	instances  map[int64]*customs.ServiceInstance
	updates    map[string]*customs.PedimentoUpdate

	credsErr     error
	createErr    error
	updateSvcErr error
}

func newFakeRegistry() *fakeRegistry {
	p := &customs.Pedimento{
		ID:            "42",
		Aduana:        "240",
		Patente:       "3842",
		Pedimento:     "4004070",
		Contribuyente: "XAXX010101000",
	}
	return &fakeRegistry{
		nextID:     100,
		pedimentos: map[string]*customs.Pedimento{"42": p},
		creds: map[string]*customs.Credentials{
			"XAXX010101000": {
				Usuario:  "XAXX010101000",
				Password: "secret",
				Active:   true,
			},
		},
		instances: make(map[int64]*customs.ServiceInstance),
		updates:   make(map[string]*customs.PedimentoUpdate),
	}
}

func (r *fakeRegistry) ServiceByKind(_ context.Context, pedimentoID string, kind customs.ServiceKind) (*customs.ServiceInstance, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, i := range r.instances {
		if i.Pedimento.ID == pedimentoID && i.Kind == kind && i.State == customs.StateCreated {
			return i, nil
		}
	}
	return nil, fmt.Errorf("%w: %s service", record.ErrNotFound, kind)
}

func (r *fakeRegistry) CreateService(_ context.Context, create *customs.ServiceCreate) (*customs.ServiceInstance, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.createErr != nil {
		return nil, r.createErr
	}
	r.nextID++
	i := &customs.ServiceInstance{
		ID:           r.nextID,
		Pedimento:    customs.Pedimento{ID: create.Pedimento},
		Organization: create.Organization,
		Kind:         create.Kind,
		State:        create.State,
		Processing:   create.Processing,
	}
	r.instances[i.ID] = i
	return i, nil
}

func (r *fakeRegistry) UpdateService(_ context.Context, id int64, update *customs.ServiceUpdate) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.updateSvcErr != nil {
		return r.updateSvcErr
	}
	i, ok := r.instances[id]
	if !ok {
		return record.ErrNotFound
	}
	i.State = update.State
	return nil
}

func (r *fakeRegistry) Pedimento(_ context.Context, id string) (*customs.Pedimento, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.pedimentos[id]
	if !ok {
		return nil, record.ErrNotFound
	}
	return p, nil
}

func (r *fakeRegistry) UpdatePedimento(_ context.Context, id string, update *customs.PedimentoUpdate) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updates[id] = update
	return nil
}

func (r *fakeRegistry) CredentialsForUser(_ context.Context, usuario string) (*customs.Credentials, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.credsErr != nil {
		return nil, r.credsErr
	}
	c, ok := r.creds[usuario]
	if !ok {
		return nil, record.ErrNotFound
	}
	return c, nil
}

// seed adds an instance of a kind in CREADO state.
func (r *fakeRegistry) seed(pedimentoID string, kind customs.ServiceKind) *customs.ServiceInstance {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	i := &customs.ServiceInstance{
		ID:        r.nextID,
		Pedimento: customs.Pedimento{ID: pedimentoID},
		Kind:      kind,
		State:     customs.StateCreated,
	}
	r.instances[i.ID] = i
	return i
}

func (r *fakeRegistry) state(id int64) customs.ServiceState {
	r.mu.Lock()
	defer r.mu.Unlock()
	if i, ok := r.instances[id]; ok {
		return i.State
	}
	return 0
}

type fakeWorkflow struct {
	kind   customs.ServiceKind
	config workflow.Config
	result *workflow.Result
	err    error
	runs   int
}

func (w *fakeWorkflow) Name() string               { return "test." + w.kind.String() }
func (w *fakeWorkflow) Kind() customs.ServiceKind  { return w.kind }
func (w *fakeWorkflow) Config() *workflow.Config   { return &w.config }
func (w *fakeWorkflow) Run(_ context.Context, req *workflow.Request) (*workflow.Result, error) {
	w.runs++
	if w.err != nil {
		return nil, w.err
	}
	if w.result != nil {
		return w.result, nil
	}
	return new(workflow.Result), nil
}

func TestRunMissingReferences(t *testing.T) {
	e := New(newFakeRegistry())
	for _, test := range []struct{ pedimento, org string }{
		{"", "9"},
		{"42", ""},
		{"", ""},
	} {
		_, err := e.Run(context.Background(), customs.KindEstado, test.pedimento, test.org)
		if !errors.Is(err, ErrMissingReference) {
			t.Errorf("pedimento=%q org=%q: have %v, want ErrMissingReference", test.pedimento, test.org, err)
		}
	}
}

func TestRunUnknownWorkflow(t *testing.T) {
	e := New(newFakeRegistry())
	_, err := e.Run(context.Background(), customs.KindEstado, "42", "9")
	if !errors.Is(err, ErrNoSuchWorkflow) {
		t.Errorf("have %v, want ErrNoSuchWorkflow", err)
	}
}

func TestRunRequiresExistingInstance(t *testing.T) {
	reg := newFakeRegistry()
	e := New(reg)
	e.RegisterWorkflow(&fakeWorkflow{kind: customs.KindEstado})

	// no CREADO estado instance registered yet
	_, err := e.Run(context.Background(), customs.KindEstado, "42", "9")
	if !errors.Is(err, record.ErrNotFound) {
		t.Errorf("have %v, want record.ErrNotFound", err)
	}
}

func TestRunLifecycle(t *testing.T) {
	reg := newFakeRegistry()
	e := New(reg)
	wf := &fakeWorkflow{kind: customs.KindEstado}
	e.RegisterWorkflow(wf)
	seeded := reg.seed("42", customs.KindEstado)

	resp, err := e.Run(context.Background(), customs.KindEstado, "42", "9")
	if err != nil {
		t.Fatal(err)
	}
	if !resp.Success {
		t.Error("expected success response")
	}
	if wf.runs != 1 {
		t.Errorf("workflow runs: have %d, want 1", wf.runs)
	}
	if have, want := reg.state(seeded.ID), customs.StateFinished; have != want {
		t.Errorf("instance state: have %s, want %s", have, want)
	}
	if resp.Data.Service != seeded.ID {
		t.Errorf("response service id: have %d, want %d", resp.Data.Service, seeded.ID)
	}
}

func TestRunWorkflowFailureEndsInError(t *testing.T) {
	reg := newFakeRegistry()
	e := New(reg)
	e.RegisterWorkflow(&fakeWorkflow{kind: customs.KindEstado, err: errors.New("gateway down")})
	seeded := reg.seed("42", customs.KindEstado)

	_, err := e.Run(context.Background(), customs.KindEstado, "42", "9")
	if err == nil {
		t.Fatal("expected error")
	}
	// the instance must never be left EN_PROCESO
	if have, want := reg.state(seeded.ID), customs.StateError; have != want {
		t.Errorf("instance state: have %s, want %s", have, want)
	}
}

func TestRunCredentialFailureEndsInError(t *testing.T) {
	reg := newFakeRegistry()
	reg.credsErr = errors.New("credential store down")
	e := New(reg)
	wf := &fakeWorkflow{kind: customs.KindEstado}
	e.RegisterWorkflow(wf)
	seeded := reg.seed("42", customs.KindEstado)

	_, err := e.Run(context.Background(), customs.KindEstado, "42", "9")
	if err == nil {
		t.Fatal("expected error")
	}
	if wf.runs != 0 {
		t.Error("workflow must not run without credentials")
	}
	if have, want := reg.state(seeded.ID), customs.StateError; have != want {
		t.Errorf("instance state: have %s, want %s", have, want)
	}
}

func TestRunCompletoFollowUps(t *testing.T) {
	reg := newFakeRegistry()
	e := New(reg)
	e.RegisterWorkflow(&fakeWorkflow{
		kind:   customs.KindCompleto,
		config: workflow.Config{CreatesInstance: true},
		result: &workflow.Result{
			Fields: &customs.ExtractedFields{
				NumeroOperacion: "6301234567",
				Partidas:        7,
				TipoOperacion:   "IMP",
				Remesas:         true,
				EDocuments:      []customs.EDocumentID{{Clave: "ED", Complemento: "0123400012345"}},
			},
		},
	})

	resp, err := e.Run(context.Background(), customs.KindCompleto, "42", "9")
	if err != nil {
		t.Fatal(err)
	}
	if resp.Data.NumeroOperacion != "6301234567" {
		t.Errorf("numero operacion: have %q", resp.Data.NumeroOperacion)
	}

	// extracted fields are patched onto the pedimento record
	update := reg.updates["42"]
	if update == nil {
		t.Fatal("pedimento not patched")
	}
	if update.Partidas != 7 || !update.Remesas || update.TipoOperacion != "IMP" {
		t.Errorf("unexpected patch: %+v", update)
	}

	// estado and acuse always; partidas, remesas and edocument because
	// the extraction indicated them
	want := map[string]bool{
		"estado": true, "acuse": true, "partidas": true, "remesas": true, "edocument": true,
	}
	if len(resp.Data.FollowUps) != len(want) {
		t.Fatalf("follow-ups: have %v", resp.Data.FollowUps)
	}
	for _, name := range resp.Data.FollowUps {
		if !want[name] {
			t.Errorf("unexpected follow-up: %s", name)
		}
	}
	if resp.Data.FollowUpsFailed != 0 {
		t.Errorf("follow-ups failed: have %d, want 0", resp.Data.FollowUpsFailed)
	}
}

func TestRunCompletoMinimalFollowUps(t *testing.T) {
	reg := newFakeRegistry()
	e := New(reg)
	e.RegisterWorkflow(&fakeWorkflow{
		kind:   customs.KindCompleto,
		config: workflow.Config{CreatesInstance: true},
		result: &workflow.Result{
			Fields: &customs.ExtractedFields{NumeroOperacion: "6301234567"},
		},
	})

	resp, err := e.Run(context.Background(), customs.KindCompleto, "42", "9")
	if err != nil {
		t.Fatal(err)
	}
	want := map[string]bool{"estado": true, "acuse": true}
	if len(resp.Data.FollowUps) != len(want) {
		t.Fatalf("follow-ups: have %v", resp.Data.FollowUps)
	}
	for _, name := range resp.Data.FollowUps {
		if !want[name] {
			t.Errorf("unexpected follow-up: %s", name)
		}
	}
}

func TestRunCompletoScheduledTask(t *testing.T) {
	reg := newFakeRegistry()
	e := New(reg)
	e.RegisterWorkflow(&fakeWorkflow{
		kind:   customs.KindCompleto,
		config: workflow.Config{CreatesInstance: true},
		result: &workflow.Result{
			Fields: &customs.ExtractedFields{NumeroOperacion: "6301234567"},
		},
	})
	// register the follow-up kinds so the scheduler's runs succeed
	e.RegisterWorkflow(&fakeWorkflow{kind: customs.KindEstado})
	e.RegisterWorkflow(&fakeWorkflow{kind: customs.KindAcuse})

	sch := NewScheduler(e, reg,
		WithWarmup(0),
		WithPoll(time.Second, time.Millisecond),
		WithCooldown(0),
	)
	e.SetScheduler(sch)

	resp, err := e.Run(context.Background(), customs.KindCompleto, "42", "9")
	if err != nil {
		t.Fatal(err)
	}
	if resp.Data.TaskID == "" {
		t.Fatal("expected a scheduled task id")
	}
}
