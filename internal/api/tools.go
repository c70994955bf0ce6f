package api

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/triage-ai/palisade/services/deployment_risk/internal/storage"
	"go.uber.org/zap"
)

const maxInvokeBodyBytes = 1 << 20

// handleListTools implements GET /v1/tools.
func (d *Dependencies) handleListTools(w http.ResponseWriter, _ *http.Request) {
	descriptors := d.Registry.List()
	resp := make([]ToolResp, 0, len(descriptors))
	for _, desc := range descriptors {
		resp = append(resp, ToolResp{
			Name:        desc.Name,
			Description: desc.Description,
			Parameters:  desc.Parameters,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleInvoke implements POST /v1/tools/{name}/invoke.
// Tool failures are reported in the output text with status 200; only
// malformed requests and unknown tools get error statuses.
func (d *Dependencies) handleInvoke(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	name := r.PathValue("name")

	reg, ok := d.Registry.Get(name)
	if !ok {
		writeJSON(w, http.StatusNotFound, ErrorResp{Detail: "unknown tool: " + name})
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxInvokeBodyBytes)
	var req InvokeRequest
	if err := readJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "Invalid JSON body"})
		return
	}
	if len(req.Arguments) == 0 {
		req.Arguments = []byte(`{}`)
	}

	caller := callerFromContext(r.Context())
	if caller == nil {
		writeJSON(w, http.StatusInternalServerError, ErrorResp{Detail: "missing caller context"})
		return
	}

	requestID := uuid.New().String()
	result := reg.Invoke(r.Context(), req.Arguments)
	latencyMs := float32(float64(time.Since(start)) / float64(time.Millisecond))

	d.Logger.Debug("tool invoked",
		zap.String("request_id", requestID),
		zap.String("project_id", caller.ProjectID),
		zap.String("tool", name),
		zap.String("outcome", string(result.Outcome)),
	)

	// Fire-and-forget audit event
	d.Writer.Write(&storage.QueryEvent{
		RequestID:   requestID,
		ProjectID:   caller.ProjectID,
		Timestamp:   time.Now(),
		ToolName:    name,
		Fragment:    result.Fragment,
		Outcome:     string(result.Outcome),
		MatchedIDs:  result.MatchedIDs,
		Succeeded:   uint32(result.Summary.Succeeded),
		Failed:      uint32(result.Summary.Failed),
		OutputBytes: uint32(len(result.Text)),
		LatencyMs:   latencyMs,
		Source:      "http",
	})

	writeJSON(w, http.StatusOK, InvokeResp{
		RequestID: requestID,
		Tool:      name,
		Outcome:   string(result.Outcome),
		Output:    result.Text,
	})
}
