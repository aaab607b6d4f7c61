package engine

import (
	"github.com/aduanasoft/vucemd/customs"
	"github.com/aduanasoft/vucemd/logkeys"
	"github.com/aduanasoft/vucemd/workflow"
)

// RegisterWorkflow associates w with the engine by its service kind.
// A later registration of the same kind replaces the earlier one.
func (e *Engine) RegisterWorkflow(w workflow.Workflow) error {
	e.workflowsMu.Lock()
	defer e.workflowsMu.Unlock()
	e.workflows[w.Kind()] = w
	e.logger.Debug(
		logkeys.Message, "registered workflow",
		logkeys.WorkflowName, w.Name(),
		logkeys.ServiceKind, w.Kind(),
	)
	return nil
}

// UnregisterWorkflow dissociates the workflow of a kind from the engine.
func (e *Engine) UnregisterWorkflow(kind customs.ServiceKind) error {
	e.workflowsMu.Lock()
	defer e.workflowsMu.Unlock()
	if _, ok := e.workflows[kind]; ok {
		delete(e.workflows, kind)
		e.logger.Debug(logkeys.Message, "unregistered workflow", logkeys.ServiceKind, kind)
	} else {
		e.logger.Info(
			logkeys.Message, "unregistered workflow",
			logkeys.ServiceKind, kind,
			logkeys.Error, "workflow kind not found",
		)
	}
	return nil
}

// Workflow returns the registered workflow of a kind, or nil.
func (e *Engine) Workflow(kind customs.ServiceKind) workflow.Workflow {
	e.workflowsMu.RLock()
	defer e.workflowsMu.RUnlock()
	return e.workflows[kind]
}

// WorkflowRegistered is true if a workflow of the kind is registered.
func (e *Engine) WorkflowRegistered(kind customs.ServiceKind) bool {
	e.workflowsMu.RLock()
	defer e.workflowsMu.RUnlock()
	_, ok := e.workflows[kind]
	return ok
}
