package api

import "encoding/json"

// InvokeRequest is the body of POST /v1/tools/{name}/invoke.
type InvokeRequest struct {
	Arguments json.RawMessage `json:"arguments"`
}

// InvokeResp is returned for every completed invocation. Output is plain
// text: the report or a message explaining why there is none.
type InvokeResp struct {
	RequestID string `json:"request_id"`
	Tool      string `json:"tool"`
	Outcome   string `json:"outcome"`
	Output    string `json:"output"`
}

// ToolResp describes one tool in GET /v1/tools.
type ToolResp struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"`
}

// ErrorResp is the body of every non-2xx response.
type ErrorResp struct {
	Detail string `json:"detail"`
}
