package engine

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// SerializationError is returned when a report cannot be encoded. With
// payloads validated by the inventory client this does not happen.
type SerializationError struct {
	DeploymentID string
	Err          error
}

func (e *SerializationError) Error() string {
	if e.DeploymentID == "" {
		return fmt.Sprintf("serialize report: %v", e.Err)
	}
	return fmt.Sprintf("serialize report entry %s: %v", e.DeploymentID, e.Err)
}

func (e *SerializationError) Unwrap() error { return e.Err }

// Report maps deployment ids to outcomes, keeping resolution order.
type Report struct {
	order   []string
	entries map[string]RiskOutcome
}

// Summary counts outcomes by status.
type Summary struct {
	Succeeded int
	Failed    int
}

// Aggregate builds a Report from outcomes. A repeated id keeps its first
// position and takes the later outcome.
func Aggregate(outcomes []RiskOutcome) *Report {
	r := &Report{
		order:   make([]string, 0, len(outcomes)),
		entries: make(map[string]RiskOutcome, len(outcomes)),
	}
	for _, o := range outcomes {
		if _, seen := r.entries[o.DeploymentID]; !seen {
			r.order = append(r.order, o.DeploymentID)
		}
		r.entries[o.DeploymentID] = o
	}
	return r
}

// Len returns the number of entries.
func (r *Report) Len() int { return len(r.order) }

// IDs returns the deployment ids in report order.
func (r *Report) IDs() []string {
	return append([]string(nil), r.order...)
}

// Get returns the outcome recorded for id.
func (r *Report) Get(id string) (RiskOutcome, bool) {
	o, ok := r.entries[id]
	return o, ok
}

// Summary counts successes and failures.
func (r *Report) Summary() Summary {
	var s Summary
	for _, id := range r.order {
		if r.entries[id].OK() {
			s.Succeeded++
		} else {
			s.Failed++
		}
	}
	return s
}

type successEntry struct {
	Status  Status          `json:"status"`
	Payload json.RawMessage `json:"payload"`
}

type errorEntry struct {
	Status Status `json:"status"`
	Error  string `json:"error"`
}

// Serialize encodes the report as a JSON object indented by two spaces,
// keys in report order. Equal reports always give identical output.
func (r *Report) Serialize() (string, error) {
	var compact bytes.Buffer
	compact.WriteByte('{')
	for i, id := range r.order {
		if i > 0 {
			compact.WriteByte(',')
		}
		key, err := marshal(id)
		if err != nil {
			return "", &SerializationError{DeploymentID: id, Err: err}
		}
		compact.Write(key)
		compact.WriteByte(':')

		o := r.entries[id]
		var entry any
		if o.OK() {
			entry = successEntry{Status: StatusSuccess, Payload: o.Payload}
		} else {
			entry = errorEntry{Status: StatusError, Error: o.Error}
		}
		val, err := marshal(entry)
		if err != nil {
			return "", &SerializationError{DeploymentID: id, Err: err}
		}
		compact.Write(val)
	}
	compact.WriteByte('}')

	var out bytes.Buffer
	if err := json.Indent(&out, compact.Bytes(), "", "  "); err != nil {
		return "", &SerializationError{Err: err}
	}
	return out.String(), nil
}

// marshal encodes v without HTML escaping.
func marshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
