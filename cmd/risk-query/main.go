// Command risk-query runs one deployment risk query and prints the
// result, the same text an agent receives from the tool server.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/triage-ai/palisade/services/deployment_risk/internal/config"
	"github.com/triage-ai/palisade/services/deployment_risk/internal/engine"
	"github.com/triage-ai/palisade/services/deployment_risk/internal/inventory"
	"github.com/triage-ai/palisade/services/deployment_risk/internal/resolver"
	"github.com/triage-ai/palisade/services/deployment_risk/internal/tool"
	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", os.Getenv("RISK_TOOL_CONFIG"), "path to YAML config file")
	name := flag.String("name", "", "deployment name or partial name")
	flag.Parse()

	if err := run(*configPath, *name); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(configPath, name string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	// Logs go to stderr so stdout carries only the result.
	logger, err := config.BuildLogger(cfg.LogLevel, "stderr")
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck // best-effort flush

	conn, err := inventory.NewConnection(cfg.Central.URL, cfg.Central.Token)
	if err != nil {
		return err
	}

	client := inventory.NewClient(inventory.ClientConfig{
		InsecureSkipVerify: cfg.Central.InsecureSkipVerify,
	}, logger)
	fetcher := engine.NewFetcher(client, engine.FetcherConfig{
		Concurrency: cfg.Fetch.Concurrency,
		CallTimeout: cfg.Fetch.CallTimeout,
	}, logger)
	q, err := tool.NewRiskQuery(conn, resolver.New(client, cfg.Fetch.ListTimeout), fetcher, logger)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	res := q.Run(ctx, name)
	logger.Debug("query finished", zap.String("outcome", string(res.Outcome)))
	fmt.Println(res.Text)
	return nil
}
