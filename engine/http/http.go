// Package http contains HTTP handlers that drive the vucemd retrieval
// engine.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/aduanasoft/vucemd/customs"
	"github.com/aduanasoft/vucemd/engine"
	"github.com/aduanasoft/vucemd/http/api"
	"github.com/aduanasoft/vucemd/logkeys"
	"github.com/aduanasoft/vucemd/record"

	"github.com/alexedwards/flow"
	"github.com/micromdm/nanolib/log"
	"github.com/micromdm/nanolib/log/ctxlog"
)

// ErrUnknownKind is returned for an unrecognized retrieval kind path
// parameter.
var ErrUnknownKind = errors.New("unknown retrieval kind")

// KindRunner runs one retrieval kind. Satisfied by *engine.Engine.
type KindRunner interface {
	Run(ctx context.Context, kind customs.ServiceKind, pedimentoID, organization string) (*engine.Response, error)
}

// RetrievalRequest is the JSON body of a retrieval trigger.
type RetrievalRequest struct {
	Pedimento    string `json:"pedimento"`
	Organization string `json:"organizacion"`
}

// statusForError classifies an engine error for the HTTP response:
// missing or malformed references are client errors, absent registry
// records are not-found, everything else is a server error.
func statusForError(err error) int {
	switch {
	case errors.Is(err, engine.ErrMissingReference), errors.Is(err, customs.ErrInvalidRef):
		return http.StatusBadRequest
	case errors.Is(err, record.ErrNotFound), errors.Is(err, engine.ErrNoSuchWorkflow):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// StartCompletoHandler creates a HandlerFunc that triggers the full
// pedimento retrieval (and, on success, its follow-up fan-out).
func StartCompletoHandler(runner KindRunner, logger log.Logger) http.HandlerFunc {
	return runHandler(runner, logger, func(*http.Request) (customs.ServiceKind, error) {
		return customs.KindCompleto, nil
	})
}

// RunKindHandler creates a HandlerFunc that runs the retrieval kind
// named by the :kind path parameter.
func RunKindHandler(runner KindRunner, logger log.Logger) http.HandlerFunc {
	return runHandler(runner, logger, func(r *http.Request) (customs.ServiceKind, error) {
		name := flow.Param(r.Context(), "kind")
		kind := customs.ServiceKindForString(name)
		if !kind.Valid() {
			return 0, fmt.Errorf("%w: %s", ErrUnknownKind, name)
		}
		return kind, nil
	})
}

func runHandler(runner KindRunner, logger log.Logger, kindFn func(*http.Request) (customs.ServiceKind, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger := ctxlog.Logger(r.Context(), logger)

		kind, err := kindFn(r)
		if err != nil {
			logger.Info(logkeys.Message, "parameters", logkeys.Error, err)
			api.JSONError(w, err, http.StatusNotFound)
			return
		}

		var req RetrievalRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			logger.Info(logkeys.Message, "decoding body", logkeys.Error, err)
			api.JSONError(w, err, http.StatusBadRequest)
			return
		}
		logger = logger.With(
			logkeys.PedimentoID, req.Pedimento,
			logkeys.ServiceKind, kind,
		)

		resp, err := runner.Run(r.Context(), kind, req.Pedimento, req.Organization)
		if err != nil {
			logger.Info(logkeys.Message, "running retrieval", logkeys.Error, err)
			api.JSONError(w, err, statusForError(err))
			return
		}

		w.Header().Set("Content-Type", "application/json")
		if err = json.NewEncoder(w).Encode(resp); err != nil {
			logger.Info(logkeys.Message, "encoding json response", logkeys.Error, err)
		}
	}
}
