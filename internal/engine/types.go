package engine

import "encoding/json"

// Status is the per-deployment outcome of a risk fetch.
type Status string

const (
	StatusSuccess Status = "Success"
	StatusError   Status = "Error"
)

// RiskOutcome is the result of fetching risk for one deployment.
// Payload is set when Status is StatusSuccess, Error otherwise.
type RiskOutcome struct {
	DeploymentID string
	Status       Status
	Payload      json.RawMessage
	Error        string
}

// Succeeded builds a success outcome.
func Succeeded(id string, payload json.RawMessage) RiskOutcome {
	return RiskOutcome{DeploymentID: id, Status: StatusSuccess, Payload: payload}
}

// Failed builds an error outcome.
func Failed(id, message string) RiskOutcome {
	return RiskOutcome{DeploymentID: id, Status: StatusError, Error: message}
}

// OK reports whether the outcome carries a payload.
func (o RiskOutcome) OK() bool { return o.Status == StatusSuccess }
