package api

import (
	"net/http"

	"github.com/triage-ai/palisade/services/deployment_risk/internal/auth"
	"github.com/triage-ai/palisade/services/deployment_risk/internal/storage"
	"github.com/triage-ai/palisade/services/deployment_risk/internal/tool"
	"go.uber.org/zap"
)

// Dependencies holds shared state injected into all HTTP handlers.
type Dependencies struct {
	Registry *tool.Registry
	Auth     auth.Authenticator
	Writer   storage.EventWriter
	Logger   *zap.Logger
}

// NewRouter builds the HTTP mux with all routes wired up.
func NewRouter(deps *Dependencies) http.Handler {
	mux := http.NewServeMux()

	// Tool catalogue and invocation (auth required via Bearer tsk_ token)
	mux.HandleFunc("GET /v1/tools", deps.authMiddleware(deps.handleListTools))
	mux.HandleFunc("POST /v1/tools/{name}/invoke", deps.authMiddleware(deps.handleInvoke))

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	return requestLogging(mux, deps.Logger)
}
