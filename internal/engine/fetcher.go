package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/triage-ai/palisade/services/deployment_risk/internal/inventory"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// riskErrorPrefix starts every per-deployment error message.
const riskErrorPrefix = "Error fetching risks: "

// RiskSource fetches the risk document of one deployment.
type RiskSource interface {
	FetchRisk(ctx context.Context, conn inventory.Connection, id string) (json.RawMessage, error)
}

// FetcherConfig bounds the fan-out.
type FetcherConfig struct {
	Concurrency int           // max requests in flight (default 4)
	CallTimeout time.Duration // per request (default 10s)
}

// DefaultFetcherConfig returns the default limits.
func DefaultFetcherConfig() FetcherConfig {
	return FetcherConfig{
		Concurrency: DefaultConcurrency,
		CallTimeout: DefaultCallTimeout,
	}
}

// Fetcher retrieves risk for many deployments concurrently. A failure for
// one id never affects the others.
type Fetcher struct {
	source RiskSource
	cfg    FetcherConfig
	logger *zap.Logger
}

// NewFetcher creates a Fetcher. Zero config fields take their defaults.
func NewFetcher(source RiskSource, cfg FetcherConfig, logger *zap.Logger) *Fetcher {
	if cfg.Concurrency < 1 {
		cfg.Concurrency = DefaultConcurrency
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = DefaultCallTimeout
	}
	return &Fetcher{
		source: source,
		cfg:    cfg,
		logger: logger,
	}
}

// FetchAll returns exactly one outcome per id, in the order of ids.
//
// Each goroutine writes only to its own slot of the pre-sized slice, so
// completion order does not matter. When ctx is cancelled, in-flight
// requests are aborted and ids that were never started are recorded as
// errors; the result is never shorter than ids.
func (f *Fetcher) FetchAll(ctx context.Context, conn inventory.Connection, ids []string) []RiskOutcome {
	start := time.Now()
	outcomes := make([]RiskOutcome, len(ids))

	var g errgroup.Group
	g.SetLimit(f.cfg.Concurrency)

	for i, id := range ids {
		if err := ctx.Err(); err != nil {
			outcomes[i] = abandoned(id, err)
			continue
		}
		g.Go(func() error {
			outcomes[i] = f.fetchOne(ctx, conn, id)
			return nil
		})
	}
	_ = g.Wait()

	f.logger.Debug("risk fetch complete",
		zap.Int("deployments", len(ids)),
		zap.Duration("duration", time.Since(start)),
	)
	return outcomes
}

func (f *Fetcher) fetchOne(ctx context.Context, conn inventory.Connection, id string) RiskOutcome {
	if err := ctx.Err(); err != nil {
		return abandoned(id, err)
	}

	callCtx, cancel := context.WithTimeout(ctx, f.cfg.CallTimeout)
	defer cancel()

	payload, err := f.source.FetchRisk(callCtx, conn, id)
	if err != nil {
		f.logger.Warn("risk fetch failed",
			zap.String("deployment_id", id),
			zap.Error(err),
		)
		return Failed(id, riskErrorPrefix+err.Error())
	}
	return Succeeded(id, payload)
}

func abandoned(id string, err error) RiskOutcome {
	return Failed(id, fmt.Sprintf("%sfetch abandoned: %v", riskErrorPrefix, err))
}
