package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"github.com/triage-ai/palisade/services/deployment_risk/internal/engine"
	"github.com/triage-ai/palisade/services/deployment_risk/internal/inventory"
	"github.com/triage-ai/palisade/services/deployment_risk/internal/resolver"
	"go.uber.org/zap"
)

// RiskQueryName is the tool name presented to agents.
const RiskQueryName = "query_deployment_risks"

const riskQueryDescription = "Given a deployment name, fetch risks associated with deployment IDs from RHACS. " +
	"The name may be partial and is matched case-insensitively. Returns a JSON object keyed by " +
	"deployment ID; each entry has a status of Success (with payload) or Error (with error)."

const riskQuerySchema = `{
  "type": "object",
  "properties": {
    "deployment_name": {
      "type": "string",
      "minLength": 1,
      "description": "Name (or partial name) of the deployment."
    }
  },
  "required": ["deployment_name"],
  "additionalProperties": false
}`

// Outcome is the terminal state of one invocation.
type Outcome string

const (
	OutcomeInvalid        Outcome = "invalid"
	OutcomeNotFound       Outcome = "not_found"
	OutcomeResolveError   Outcome = "resolve_error"
	OutcomeReport         Outcome = "report"
	OutcomeSerializeError Outcome = "serialize_error"
)

// Result is the text answer of an invocation plus what is needed to
// audit it.
type Result struct {
	Outcome    Outcome
	Text       string
	Fragment   string
	MatchedIDs []string
	Summary    engine.Summary
}

// Resolver turns a name fragment into deployment ids.
type Resolver interface {
	Resolve(ctx context.Context, conn inventory.Connection, fragment string) (resolver.Resolution, error)
}

// Fetcher fetches risk for resolved ids.
type Fetcher interface {
	FetchAll(ctx context.Context, conn inventory.Connection, ids []string) []engine.RiskOutcome
}

// RiskQuery is the deployment risk tool bound to one Central connection.
// It is safe for concurrent use.
type RiskQuery struct {
	conn     inventory.Connection
	resolver Resolver
	fetcher  Fetcher
	schema   *jsonschema.Schema
	logger   *zap.Logger
}

// NewRiskQuery creates the tool and compiles its parameter schema.
func NewRiskQuery(conn inventory.Connection, res Resolver, fetcher Fetcher, logger *zap.Logger) (*RiskQuery, error) {
	schema, err := compileSchema(riskQuerySchema)
	if err != nil {
		return nil, fmt.Errorf("NewRiskQuery: %w", err)
	}
	return &RiskQuery{
		conn:     conn,
		resolver: res,
		fetcher:  fetcher,
		schema:   schema,
		logger:   logger,
	}, nil
}

// Descriptor returns the tool's name, description and parameter schema.
func (q *RiskQuery) Descriptor() Descriptor {
	return Descriptor{
		Name:        RiskQueryName,
		Description: riskQueryDescription,
		Parameters:  json.RawMessage(riskQuerySchema),
	}
}

// Registration returns the tool ready to add to a Registry.
func (q *RiskQuery) Registration() Registration {
	return Registration{Descriptor: q.Descriptor(), Invoke: q.Invoke}
}

// RunQuery resolves fragment, fetches risk for every match and returns
// the serialized report, or a message explaining why there is none. It
// never fails; every error path becomes text.
func (q *RiskQuery) RunQuery(ctx context.Context, fragment string) string {
	return q.Run(ctx, fragment).Text
}

// Invoke validates JSON arguments against the parameter schema and runs
// the query.
func (q *RiskQuery) Invoke(ctx context.Context, args json.RawMessage) Result {
	var decoded any
	if err := json.Unmarshal(args, &decoded); err != nil {
		return invalid("", fmt.Sprintf("arguments are not valid JSON: %v", err))
	}
	if err := q.schema.Validate(decoded); err != nil {
		return invalid("", fmt.Sprintf("arguments do not match schema: %v", err))
	}
	obj, _ := decoded.(map[string]any)
	name, _ := obj["deployment_name"].(string)
	return q.Run(ctx, name)
}

// Run drives resolve, fetch and aggregate for one fragment.
func (q *RiskQuery) Run(ctx context.Context, fragment string) Result {
	start := time.Now()
	fragment = strings.TrimSpace(fragment)
	if fragment == "" {
		return invalid("", "deployment name must not be empty.")
	}

	res, err := q.resolver.Resolve(ctx, q.conn, fragment)
	if err != nil {
		q.logger.Warn("deployment resolution failed",
			zap.String("fragment", fragment),
			zap.Error(err),
		)
		return Result{
			Outcome:  OutcomeResolveError,
			Text:     "Error fetching deployment IDs: " + err.Error(),
			Fragment: fragment,
		}
	}
	if res.NotFound() {
		return Result{
			Outcome:  OutcomeNotFound,
			Text:     fmt.Sprintf("No deployment found with name matching '%s'.", fragment),
			Fragment: fragment,
		}
	}

	outcomes := q.fetcher.FetchAll(ctx, q.conn, res.IDs)
	report := engine.Aggregate(outcomes)
	summary := report.Summary()

	text, err := report.Serialize()
	if err != nil {
		q.logger.Error("risk report serialization failed", zap.Error(err))
		return Result{
			Outcome:    OutcomeSerializeError,
			Text:       "Error serializing risk report: " + err.Error(),
			Fragment:   fragment,
			MatchedIDs: res.IDs,
			Summary:    summary,
		}
	}

	q.logger.Info("risk query complete",
		zap.String("fragment", fragment),
		zap.Int("matched", len(res.IDs)),
		zap.Int("succeeded", summary.Succeeded),
		zap.Int("failed", summary.Failed),
		zap.Duration("duration", time.Since(start)),
	)
	return Result{
		Outcome:    OutcomeReport,
		Text:       text,
		Fragment:   fragment,
		MatchedIDs: res.IDs,
		Summary:    summary,
	}
}

func invalid(fragment, detail string) Result {
	return Result{
		Outcome:  OutcomeInvalid,
		Text:     "Invalid input: " + detail,
		Fragment: fragment,
	}
}

func compileSchema(raw string) (*jsonschema.Schema, error) {
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("schema unmarshal error: %w", err)
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource("schema.json", doc); err != nil {
		return nil, fmt.Errorf("schema compile error: %w", err)
	}
	return c.Compile("schema.json")
}
