package main

import (
	"fmt"

	"github.com/aduanasoft/vucemd/engine"
	"github.com/aduanasoft/vucemd/record"
	"github.com/aduanasoft/vucemd/workflow"
	"github.com/aduanasoft/vucemd/workflow/acuse"
	"github.com/aduanasoft/vucemd/workflow/completo"
	"github.com/aduanasoft/vucemd/workflow/edocument"
	"github.com/aduanasoft/vucemd/workflow/estado"
	"github.com/aduanasoft/vucemd/workflow/partidas"
	"github.com/aduanasoft/vucemd/workflow/remesas"

	"github.com/micromdm/nanolib/log"
)

// registerWorkflows instantiates the six retrieval workflows and
// registers them with the engine.
func registerWorkflows(logger log.Logger, e *engine.Engine, gateway workflow.Gateway, arts *workflow.Artifacts, registry *record.Client) error {
	logger = logger.With("service", "workflow")

	w, err := completo.New(gateway, arts, registry, completo.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("creating completo workflow: %w", err)
	}
	if err = e.RegisterWorkflow(w); err != nil {
		return fmt.Errorf("registering %s: %w", w.Name(), err)
	}

	we, err := estado.New(gateway, arts, estado.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("creating estado workflow: %w", err)
	}
	if err = e.RegisterWorkflow(we); err != nil {
		return fmt.Errorf("registering %s: %w", we.Name(), err)
	}

	wp, err := partidas.New(gateway, arts, partidas.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("creating partidas workflow: %w", err)
	}
	if err = e.RegisterWorkflow(wp); err != nil {
		return fmt.Errorf("registering %s: %w", wp.Name(), err)
	}

	wr, err := remesas.New(gateway, arts, remesas.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("creating remesas workflow: %w", err)
	}
	if err = e.RegisterWorkflow(wr); err != nil {
		return fmt.Errorf("registering %s: %w", wr.Name(), err)
	}

	wa, err := acuse.New(gateway, arts, registry, acuse.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("creating acuse workflow: %w", err)
	}
	if err = e.RegisterWorkflow(wa); err != nil {
		return fmt.Errorf("registering %s: %w", wa.Name(), err)
	}

	wd, err := edocument.New(gateway, arts, registry, edocument.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("creating edocument workflow: %w", err)
	}
	if err = e.RegisterWorkflow(wd); err != nil {
		return fmt.Errorf("registering %s: %w", wd.Name(), err)
	}

	return nil
}
