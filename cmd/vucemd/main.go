// Package main starts a vucemd server.
package main

import (
	"flag"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"time"

	"github.com/aduanasoft/vucemd/engine"
	"github.com/aduanasoft/vucemd/logkeys"
	"github.com/aduanasoft/vucemd/record"
	"github.com/aduanasoft/vucemd/vucem"
	"github.com/aduanasoft/vucemd/workflow"

	"github.com/alexedwards/flow"
	"github.com/micromdm/nanolib/envflag"
	nanohttp "github.com/micromdm/nanolib/http"
	"github.com/micromdm/nanolib/http/trace"
	"github.com/micromdm/nanolib/log/stdlogfmt"
)

// overridden by -ldflags -X
var version = "unknown"

const (
	apiUsername = "vucemd"
	apiRealm    = "vucemd"
)

func main() {
	var (
		flDebug   = flag.Bool("debug", false, "log debug messages")
		flListen  = flag.String("listen", ":9005", "HTTP listen address")
		flVersion = flag.Bool("version", false, "print version and exit")
		flAPIKey  = flag.String("api", "", "API key for API endpoints")
		flConfig  = flag.String("config", "", "path to YAML config file")
		flDumpAPI = flag.Bool("dump-api", false, "dump API request bodies")

		flVucemURL  = flag.String("vucem-url", "", "URL of the VUCEM gateway base")
		flVucemUser = flag.String("vucem-user", "", "fallback VUCEM credential selector")
		flRecURL    = flag.String("record-url", "", "URL of the system-of-record registry")
		flRecToken  = flag.String("record-token", "", "registry API token")

		flRetries = flag.Int("retries", vucem.DefaultRetries, "gateway attempt budget")
		flWaitSec = flag.Uint("retry-wait", 0, "delay between gateway attempts in seconds")
		flTOSec   = flag.Uint("timeout", uint(vucem.DefaultTimeout/time.Second), "per-attempt gateway timeout in seconds")

		flStorage = flag.String("storage", "file", "name of spool storage backend")
		flDSN     = flag.String("storage-dsn", "", "data source name (e.g. path)")

		flWarmSec = flag.Uint("warmup", uint(engine.DefaultWarmup/time.Second), "follow-up warmup delay in seconds")
		flPollSec = flag.Uint("poll-timeout", uint(engine.DefaultPollTimeout/time.Second), "follow-up existence-poll timeout in seconds")
		flIntSec  = flag.Uint("poll-interval", uint(engine.DefaultPollInterval/time.Second), "follow-up existence-poll interval in seconds")
		flOpRetry = flag.Int("op-retries", engine.DefaultOpRetries, "follow-up retry count")
		flCoolSec = flag.Uint("cooldown", uint(engine.DefaultCooldown/time.Second), "cooldown between follow-ups in seconds")
	)
	envflag.Parse("VUCEMD_", []string{"version"})

	if *flVersion {
		fmt.Println(version)
		return
	}

	logger := stdlogfmt.New(stdlogfmt.WithDebugFlag(*flDebug))

	if *flConfig != "" {
		cfg, err := loadConfig(*flConfig)
		if err != nil {
			logger.Info(logkeys.Message, "loading config", logkeys.Error, err)
			os.Exit(1)
		}
		cfg.applyDefaults(flVucemURL, flVucemUser, flRecURL, flRecToken, flAPIKey, flStorage, flDSN)
	}

	if *flVucemURL == "" || *flRecURL == "" {
		logger.Info(logkeys.Error, "VUCEM URL and registry URL required")
		os.Exit(1)
	}

	// configure spool storage
	spool, err := parseStorage(*flStorage, *flDSN)
	if err != nil {
		logger.Info(logkeys.Message, "parse storage", logkeys.Error, err)
		os.Exit(1)
	}

	// configure the system-of-record registry client
	registry, err := record.New(*flRecURL, *flRecToken, record.WithLogger(logger.With("service", "record")))
	if err != nil {
		logger.Info(logkeys.Message, "creating registry client", logkeys.Error, err)
		os.Exit(1)
	}

	// configure the gateway client
	gateway, err := vucem.New(*flVucemURL,
		vucem.WithLogger(logger.With("service", "vucem")),
		vucem.WithRetries(*flRetries),
		vucem.WithRetryWait(time.Second*time.Duration(*flWaitSec)),
		vucem.WithTimeout(time.Second*time.Duration(*flTOSec)),
	)
	if err != nil {
		logger.Info(logkeys.Message, "creating gateway client", logkeys.Error, err)
		os.Exit(1)
	}

	arts := workflow.NewArtifacts(registry, spool, logger.With("service", "artifacts"))

	// configure the retrieval engine and its follow-up scheduler
	e := engine.New(registry,
		engine.WithLogger(logger.With("service", "engine")),
		engine.WithDefaultUser(*flVucemUser),
	)
	e.SetScheduler(engine.NewScheduler(e, registry,
		engine.WithSchedulerLogger(logger.With("service", "scheduler")),
		engine.WithWarmup(time.Second*time.Duration(*flWarmSec)),
		engine.WithPoll(time.Second*time.Duration(*flPollSec), time.Second*time.Duration(*flIntSec)),
		engine.WithOpRetries(*flOpRetry),
		engine.WithCooldown(time.Second*time.Duration(*flCoolSec)),
	))

	// register workflows with the engine
	if err = registerWorkflows(logger, e, gateway, arts, registry); err != nil {
		logger.Info(logkeys.Message, "registering workflows", logkeys.Error, err)
		os.Exit(1)
	}

	mux := flow.New()

	mux.Handle("/version", nanohttp.NewJSONVersionHandler(version))
	mux.Handle("/health", http.HandlerFunc(healthHandler), "GET")

	if *flAPIKey != "" {
		mux.Group(func(mux *flow.Mux) {
			mux.Use(func(h http.Handler) http.Handler {
				return nanohttp.NewSimpleBasicAuthHandler(h, apiUsername, *flAPIKey, apiRealm)
			})

			handlers(mux, logger, e, spool, *flDumpAPI)
		})
	}

	// seed for newTraceID
	rand.Seed(time.Now().UnixNano())

	logger.Info(logkeys.Message, "starting server", "listen", *flListen)
	err = http.ListenAndServe(*flListen, trace.NewTraceLoggingHandler(mux, logger.With("handler", "log"), newTraceID))
	logs := []interface{}{logkeys.Message, "server shutdown"}
	if err != nil {
		logs = append(logs, logkeys.Error, err)
	}
	logger.Info(logs...)
}

func healthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}` + "\n"))
}

// newTraceID generates a new HTTP trace ID for context logging.
// Currently this just makes a random string. This would be better
// served by e.g. https://github.com/oklog/ulid or something like
// https://opentelemetry.io/ someday.
func newTraceID(_ *http.Request) string {
	b := make([]byte, 8)
	rand.Read(b)
	return fmt.Sprintf("%x", b)
}
