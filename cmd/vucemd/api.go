package main

import (
	"net/http"
	"os"

	enginehttp "github.com/aduanasoft/vucemd/engine/http"
	httpcmd "github.com/aduanasoft/vucemd/http"
	spoolhttp "github.com/aduanasoft/vucemd/subsystem/spool/http"
	spoolstorage "github.com/aduanasoft/vucemd/subsystem/spool/storage"

	"github.com/alexedwards/flow"
	"github.com/micromdm/nanolib/log"
)

func handlers(mux *flow.Mux, logger log.Logger, runner enginehttp.KindRunner, spool spoolstorage.ReadStorage, dumpAPI bool) {
	wrap := func(h http.Handler) http.Handler {
		if dumpAPI {
			return httpcmd.DumpHandler(h, os.Stdout)
		}
		return h
	}

	// retrievals

	mux.Handle(
		"/v1/retrieval/completo",
		wrap(enginehttp.StartCompletoHandler(runner, logger.With("handler", "start completo"))),
		"PUT",
	)

	mux.Handle(
		"/v1/retrieval/:kind",
		wrap(enginehttp.RunKindHandler(runner, logger.With("handler", "run retrieval"))),
		"POST",
	)

	// artifact spool

	mux.Handle(
		"/v1/spool",
		spoolhttp.ListArtifactsHandler(spool, logger.With("handler", "list artifacts")),
		"GET",
	)

	mux.Handle(
		"/v1/spool/:name",
		spoolhttp.GetArtifactHandler(spool, logger.With("handler", "get artifact")),
		"GET",
	)
}
