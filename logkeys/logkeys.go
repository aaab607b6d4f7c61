// Package logkeys defines some static logging keys for consistent structured logging output.
// Mostly exists as a mental aid when drafting log messages.
package logkeys

const (
	Message = "msg"
	Error   = "err"

	// registry reference of the pedimento being processed
	PedimentoID = "pedimento"

	// registry id of the service instance (procesamiento)
	ServiceID = "service_id"

	ServiceKind  = "service_kind"
	ServiceState = "service_state"

	Organization = "organizacion"

	InstanceID   = "instance_id"
	WorkflowName = "workflow_name"

	// SOAP gateway endpoint path of the current call
	Endpoint = "endpoint"

	// 1-based attempt counter of a retry loop
	Attempt = "attempt"

	DocumentName = "document"

	// a context-dependent numerical count/length of something
	GenericCount = "count"
)
