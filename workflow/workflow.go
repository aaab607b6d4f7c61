package workflow

import (
	"context"
	"fmt"

	"github.com/aduanasoft/vucemd/customs"
)

// Namers provide a name string.
type Namer interface {
	// Name returns the name of the workflow. This string routes
	// retrieval requests to this workflow.
	Name() string
}

// Workflows retrieve one kind of customs gateway data for a pedimento.
// The engine owns the shared run skeleton (instance resolution, state
// transitions, credential lookup, response assembly); a workflow owns
// the kind-specific middle: envelopes, gateway calls, extraction, and
// artifact persistence.
type Workflow interface {
	Namer

	// Kind returns the registry service kind this workflow retrieves.
	Kind() customs.ServiceKind

	// Config returns the workflow configuration.
	Config() *Config

	// Run performs the retrieval. A returned error means the whole
	// operation failed and the engine will terminate the service
	// instance in ERROR; partial per-item failures are reported in
	// the Result's warnings instead.
	Run(ctx context.Context, req *Request) (*Result, error)
}

// Config is static workflow configuration the engine consults.
type Config struct {
	// CreatesInstance makes the engine register a fresh service
	// instance on every run instead of requiring a pre-existing one.
	CreatesInstance bool

	// RequiresOperationNumber marks workflows that cannot run before
	// a full retrieval assigned the pedimento its gateway operation
	// number.
	RequiresOperationNumber bool
}

// Request carries the resolved inputs of one workflow run.
type Request struct {
	Pedimento    *customs.Pedimento
	Organization string
	Service      *customs.ServiceInstance
	Credentials  *customs.Credentials
}

// Validate checks the request invariants shared by all workflows.
func (r *Request) Validate() error {
	if r == nil || r.Pedimento == nil {
		return fmt.Errorf("%w: no pedimento", customs.ErrInvalidRef)
	}
	if r.Pedimento.ID == "" || r.Organization == "" {
		return fmt.Errorf("%w: pedimento and organization references required", customs.ErrInvalidRef)
	}
	return r.Pedimento.ValidateRef()
}

// Result is the outcome of a successful (possibly partially
// successful) workflow run.
type Result struct {
	// Fields is the extracted field set, when the kind extracts any.
	Fields *customs.ExtractedFields

	// Attempted/Succeeded/Failed count per-item sub-operations of
	// fan-out kinds. Zero Attempted means a single-shot operation.
	Attempted int
	Succeeded int
	Failed    int

	// Warnings describe non-fatal per-item failures.
	Warnings []string
}

// Warnf appends a formatted warning.
func (r *Result) Warnf(format string, a ...interface{}) {
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, a...))
}
