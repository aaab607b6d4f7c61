// Package http contains HTTP handlers for the artifact spool
// subsystem.
package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/aduanasoft/vucemd/http/api"
	"github.com/aduanasoft/vucemd/logkeys"
	"github.com/aduanasoft/vucemd/subsystem/spool/storage"

	"github.com/alexedwards/flow"
	"github.com/micromdm/nanolib/log"
	"github.com/micromdm/nanolib/log/ctxlog"
)

func contentType(name string) string {
	switch {
	case strings.HasSuffix(name, ".xml"):
		return "application/xml"
	case strings.HasSuffix(name, ".pdf"):
		return "application/pdf"
	default:
		return "application/octet-stream"
	}
}

// GetArtifactHandler creates a HandlerFunc that serves a spooled
// artifact by its :name path parameter.
func GetArtifactHandler(store storage.ReadStorage, logger log.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger := ctxlog.Logger(r.Context(), logger)
		name := flow.Param(r.Context(), "name")
		content, err := store.RetrieveArtifact(r.Context(), name)
		if err != nil {
			logger.Info(
				logkeys.Message, "retrieving artifact",
				logkeys.DocumentName, name,
				logkeys.Error, err,
			)
			status := http.StatusInternalServerError
			if errors.Is(err, storage.ErrArtifactNotFound) {
				status = http.StatusNotFound
			}
			api.JSONError(w, err, status)
			return
		}
		w.Header().Set("Content-Type", contentType(name))
		w.Write(content)
	}
}

// ListArtifactsHandler creates a HandlerFunc that lists spooled
// artifact names.
func ListArtifactsHandler(store storage.ReadStorage, logger log.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger := ctxlog.Logger(r.Context(), logger)
		names, err := store.ListArtifacts(r.Context())
		if err != nil {
			logger.Info(logkeys.Message, "listing artifacts", logkeys.Error, err)
			api.JSONError(w, err, 0)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if err = json.NewEncoder(w).Encode(names); err != nil {
			logger.Info(logkeys.Message, "encoding json response", logkeys.Error, err)
		}
	}
}
