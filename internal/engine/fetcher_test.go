package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/triage-ai/palisade/services/deployment_risk/internal/inventory"
	"github.com/triage-ai/palisade/services/deployment_risk/internal/inventory/inventorytest"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// stubSource answers from a table, optionally after a per-id delay.
type stubSource struct {
	payloads map[string]string
	errs     map[string]error
	delays   map[string]time.Duration

	mu    sync.Mutex
	calls []string
}

func (s *stubSource) FetchRisk(ctx context.Context, _ inventory.Connection, id string) (json.RawMessage, error) {
	s.mu.Lock()
	s.calls = append(s.calls, id)
	s.mu.Unlock()

	if d := s.delays[id]; d > 0 {
		select {
		case <-time.After(d):
		case <-ctx.Done():
			return nil, &inventory.TransportError{URL: id, Err: ctx.Err()}
		}
	}
	if err := s.errs[id]; err != nil {
		return nil, err
	}
	return json.RawMessage(s.payloads[id]), nil
}

func testConn(t *testing.T) inventory.Connection {
	t.Helper()
	conn, err := inventory.NewConnection("https://central.example.com", "tok")
	if err != nil {
		t.Fatal(err)
	}
	return conn
}

func TestFetchAll_PreservesOrderUnderConcurrency(t *testing.T) {
	src := &stubSource{
		payloads: map[string]string{},
		delays:   map[string]time.Duration{},
	}
	ids := make([]string, 20)
	for i := range ids {
		id := fmt.Sprintf("dep-%02d", i)
		ids[i] = id
		src.payloads[id] = fmt.Sprintf(`{"n":%d}`, i)
		// Later ids finish first.
		src.delays[id] = time.Duration(len(ids)-i) * time.Millisecond
	}

	f := NewFetcher(src, FetcherConfig{Concurrency: 8, CallTimeout: time.Second}, zap.NewNop())
	outcomes := f.FetchAll(context.Background(), testConn(t), ids)

	if len(outcomes) != len(ids) {
		t.Fatalf("expected %d outcomes, got %d", len(ids), len(outcomes))
	}
	for i, o := range outcomes {
		if o.DeploymentID != ids[i] {
			t.Fatalf("outcome %d: expected id %s, got %s", i, ids[i], o.DeploymentID)
		}
		if !o.OK() {
			t.Fatalf("outcome %d: expected success, got %q", i, o.Error)
		}
		if string(o.Payload) != fmt.Sprintf(`{"n":%d}`, i) {
			t.Fatalf("outcome %d: wrong payload %s", i, o.Payload)
		}
	}
}

func TestFetchAll_FailureIsolation(t *testing.T) {
	src := &stubSource{
		payloads: map[string]string{"1": `{"risk":"low"}`, "3": `{"risk":"high"}`},
		errs:     map[string]error{"2": &inventory.UpstreamStatusError{URL: "u", StatusCode: 500}},
	}
	f := NewFetcher(src, DefaultFetcherConfig(), zap.NewNop())

	outcomes := f.FetchAll(context.Background(), testConn(t), []string{"1", "2", "3"})

	if !outcomes[0].OK() || !outcomes[2].OK() {
		t.Fatalf("sibling outcomes should succeed: %+v", outcomes)
	}
	if outcomes[1].OK() {
		t.Fatal("expected outcome 2 to fail")
	}
	if !strings.HasPrefix(outcomes[1].Error, "Error fetching risks: upstream status 500") {
		t.Errorf("unexpected error message %q", outcomes[1].Error)
	}
	if outcomes[1].Payload != nil {
		t.Error("error outcome must not carry a payload")
	}
}

func TestFetchAll_TimeoutBecomesErrorOutcome(t *testing.T) {
	srv := inventorytest.NewServer(t)
	srv.SetRisk("1", inventorytest.RiskResponse{Body: `{"risk":"low"}`})
	srv.SetRisk("2", inventorytest.RiskResponse{Body: `{}`, Delay: 2 * time.Second})
	client := inventory.NewClient(inventory.ClientConfig{}, zap.NewNop())

	f := NewFetcher(client, FetcherConfig{Concurrency: 2, CallTimeout: 50 * time.Millisecond}, zap.NewNop())
	outcomes := f.FetchAll(context.Background(), srv.Connection(t), []string{"1", "2"})

	if !outcomes[0].OK() || string(outcomes[0].Payload) != `{"risk":"low"}` {
		t.Fatalf("expected success for 1, got %+v", outcomes[0])
	}
	if outcomes[1].OK() {
		t.Fatal("expected timeout error for 2")
	}
	if !strings.Contains(outcomes[1].Error, "deadline exceeded") {
		t.Errorf("expected timeout message, got %q", outcomes[1].Error)
	}
}

func TestFetchAll_CancelledContextFillsEveryID(t *testing.T) {
	src := &stubSource{payloads: map[string]string{"1": `{}`, "2": `{}`}}
	f := NewFetcher(src, DefaultFetcherConfig(), zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	outcomes := f.FetchAll(ctx, testConn(t), []string{"1", "2"})

	if len(outcomes) != 2 {
		t.Fatalf("expected 2 outcomes, got %d", len(outcomes))
	}
	for i, o := range outcomes {
		if o.OK() {
			t.Fatalf("outcome %d should be an error after cancellation", i)
		}
		if !strings.Contains(o.Error, "fetch abandoned: context canceled") {
			t.Errorf("unexpected message %q", o.Error)
		}
	}
	if len(src.calls) != 0 {
		t.Errorf("expected no calls after cancellation, got %v", src.calls)
	}
}

func TestFetchAll_CancelDuringFetch(t *testing.T) {
	src := &stubSource{
		payloads: map[string]string{"fast": `{}`, "slow": `{}`, "queued": `{}`},
		delays:   map[string]time.Duration{"slow": 5 * time.Second, "queued": 5 * time.Second},
	}
	f := NewFetcher(src, FetcherConfig{Concurrency: 1, CallTimeout: 10 * time.Second}, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(30*time.Millisecond, cancel)

	start := time.Now()
	outcomes := f.FetchAll(ctx, testConn(t), []string{"fast", "slow", "queued"})

	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Fatalf("cancellation did not propagate, took %v", elapsed)
	}
	if len(outcomes) != 3 {
		t.Fatalf("expected 3 outcomes, got %d", len(outcomes))
	}
	if !outcomes[0].OK() {
		t.Errorf("completed fetch should keep its success, got %q", outcomes[0].Error)
	}
	for _, o := range outcomes[1:] {
		if o.OK() {
			t.Errorf("expected error for %s", o.DeploymentID)
		}
	}
}

func TestFetchAll_RespectsConcurrencyLimit(t *testing.T) {
	var inFlight, peak atomic.Int32
	src := &trackingSource{inFlight: &inFlight, peak: &peak}
	f := NewFetcher(src, FetcherConfig{Concurrency: 3, CallTimeout: time.Second}, zap.NewNop())

	ids := make([]string, 12)
	for i := range ids {
		ids[i] = fmt.Sprint(i)
	}
	f.FetchAll(context.Background(), testConn(t), ids)

	if p := peak.Load(); p > 3 {
		t.Fatalf("expected at most 3 concurrent calls, saw %d", p)
	}
	if p := peak.Load(); p < 2 {
		t.Fatalf("expected calls to overlap, peak was %d", p)
	}
}

type trackingSource struct {
	inFlight *atomic.Int32
	peak     *atomic.Int32
}

func (s *trackingSource) FetchRisk(_ context.Context, _ inventory.Connection, _ string) (json.RawMessage, error) {
	n := s.inFlight.Add(1)
	defer s.inFlight.Add(-1)
	for {
		p := s.peak.Load()
		if n <= p || s.peak.CompareAndSwap(p, n) {
			break
		}
	}
	time.Sleep(10 * time.Millisecond)
	return json.RawMessage(`{}`), nil
}

func TestFetchAll_EmptyInput(t *testing.T) {
	f := NewFetcher(&stubSource{}, DefaultFetcherConfig(), zap.NewNop())
	if got := f.FetchAll(context.Background(), testConn(t), nil); len(got) != 0 {
		t.Fatalf("expected no outcomes, got %d", len(got))
	}
}

func TestFetchAll_LogsFailures(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	src := &stubSource{errs: map[string]error{"x": errors.New("boom")}}
	f := NewFetcher(src, DefaultFetcherConfig(), zap.New(core))

	f.FetchAll(context.Background(), testConn(t), []string{"x"})

	entries := logs.FilterField(zap.String("deployment_id", "x")).All()
	if len(entries) != 1 {
		t.Fatalf("expected 1 warning for x, got %d", len(entries))
	}
}

func TestNewFetcher_Defaults(t *testing.T) {
	f := NewFetcher(&stubSource{}, FetcherConfig{}, zap.NewNop())
	if f.cfg.Concurrency != DefaultConcurrency {
		t.Errorf("expected concurrency %d, got %d", DefaultConcurrency, f.cfg.Concurrency)
	}
	if f.cfg.CallTimeout != DefaultCallTimeout {
		t.Errorf("expected timeout %v, got %v", DefaultCallTimeout, f.cfg.CallTimeout)
	}
}

func BenchmarkFetchAll_TwentyIDs(b *testing.B) {
	src := &stubSource{payloads: map[string]string{}}
	ids := make([]string, 20)
	for i := range ids {
		ids[i] = fmt.Sprint(i)
		src.payloads[ids[i]] = `{"risk":"low"}`
	}
	conn, _ := inventory.NewConnection("https://central.example.com", "tok")
	f := NewFetcher(src, DefaultFetcherConfig(), zap.NewNop())

	b.ResetTimer()
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		f.FetchAll(context.Background(), conn, ids)
	}
}
