package inventory_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/triage-ai/palisade/services/deployment_risk/internal/inventory"
	"github.com/triage-ai/palisade/services/deployment_risk/internal/inventory/inventorytest"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func newClient() *inventory.Client {
	return inventory.NewClient(inventory.ClientConfig{}, zap.NewNop())
}

func TestListDeployments_PreservesOrder(t *testing.T) {
	srv := inventorytest.NewServer(t)
	srv.SetDeployments(
		inventory.Deployment{ID: "1", Name: "cert-manager-operator-controller-manager"},
		inventory.Deployment{ID: "2", Name: "other-app"},
	)

	got, err := newClient().ListDeployments(context.Background(), srv.Connection(t))
	if err != nil {
		t.Fatalf("ListDeployments: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 deployments, got %d", len(got))
	}
	if got[0].ID != "1" || got[1].ID != "2" {
		t.Errorf("unexpected order: %+v", got)
	}
	if got[1].Name != "other-app" {
		t.Errorf("expected name other-app, got %q", got[1].Name)
	}
}

func TestListDeployments_EmptyListing(t *testing.T) {
	srv := inventorytest.NewServer(t)

	got, err := newClient().ListDeployments(context.Background(), srv.Connection(t))
	if err != nil {
		t.Fatalf("ListDeployments: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected no deployments, got %d", len(got))
	}
}

func TestListDeployments_UpstreamStatus(t *testing.T) {
	srv := inventorytest.NewServer(t)
	srv.FailListing(http.StatusInternalServerError, "boom")

	_, err := newClient().ListDeployments(context.Background(), srv.Connection(t))
	var statusErr *inventory.UpstreamStatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("expected UpstreamStatusError, got %T: %v", err, err)
	}
	if statusErr.StatusCode != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", statusErr.StatusCode)
	}
	if !strings.Contains(err.Error(), "boom") {
		t.Errorf("expected body in error message, got %q", err.Error())
	}
}

func TestListDeployments_MalformedBody(t *testing.T) {
	srv := inventorytest.NewServer(t)
	srv.FailListing(http.StatusOK, "not json")

	_, err := newClient().ListDeployments(context.Background(), srv.Connection(t))
	var decodeErr *inventory.DecodeError
	if !errors.As(err, &decodeErr) {
		t.Fatalf("expected DecodeError, got %T: %v", err, err)
	}
}

func TestFetchRisk_SendsBearerToken(t *testing.T) {
	srv := inventorytest.NewServer(t)
	srv.SetRisk("1", inventorytest.RiskResponse{Body: `{"risk":"low"}`})

	payload, err := newClient().FetchRisk(context.Background(), srv.Connection(t), "1")
	if err != nil {
		t.Fatalf("FetchRisk: %v", err)
	}
	if string(payload) != `{"risk":"low"}` {
		t.Errorf("unexpected payload %s", payload)
	}
}

func TestFetchRisk_WrongTokenIsUpstreamStatus(t *testing.T) {
	srv := inventorytest.NewServer(t)
	srv.SetRisk("1", inventorytest.RiskResponse{Body: `{}`})
	conn, err := inventory.NewConnection(srv.URL, "wrong")
	if err != nil {
		t.Fatal(err)
	}

	_, err = newClient().FetchRisk(context.Background(), conn, "1")
	var statusErr *inventory.UpstreamStatusError
	if !errors.As(err, &statusErr) || statusErr.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 UpstreamStatusError, got %v", err)
	}
}

func TestFetchRisk_NotFound(t *testing.T) {
	srv := inventorytest.NewServer(t)

	_, err := newClient().FetchRisk(context.Background(), srv.Connection(t), "missing")
	var statusErr *inventory.UpstreamStatusError
	if !errors.As(err, &statusErr) || statusErr.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 UpstreamStatusError, got %v", err)
	}
}

func TestFetchRisk_InvalidJSON(t *testing.T) {
	srv := inventorytest.NewServer(t)
	srv.SetRisk("1", inventorytest.RiskResponse{Body: `{"risk":`})

	_, err := newClient().FetchRisk(context.Background(), srv.Connection(t), "1")
	var decodeErr *inventory.DecodeError
	if !errors.As(err, &decodeErr) {
		t.Fatalf("expected DecodeError, got %T: %v", err, err)
	}
}

func TestFetchRisk_ResponseTooLarge(t *testing.T) {
	srv := inventorytest.NewServer(t)
	srv.SetRisk("1", inventorytest.RiskResponse{Body: `{"risk":"` + strings.Repeat("x", 64) + `"}`})
	client := inventory.NewClient(inventory.ClientConfig{MaxResponseBytes: 16}, zap.NewNop())

	_, err := client.FetchRisk(context.Background(), srv.Connection(t), "1")
	var decodeErr *inventory.DecodeError
	if !errors.As(err, &decodeErr) {
		t.Fatalf("expected DecodeError, got %T: %v", err, err)
	}
}

func TestFetchRisk_TimeoutIsTransportError(t *testing.T) {
	srv := inventorytest.NewServer(t)
	srv.SetRisk("slow", inventorytest.RiskResponse{Body: `{}`, Delay: time.Second})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := newClient().FetchRisk(ctx, srv.Connection(t), "slow")
	var transportErr *inventory.TransportError
	if !errors.As(err, &transportErr) {
		t.Fatalf("expected TransportError, got %T: %v", err, err)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded in chain, got %v", err)
	}
}

func TestFetchRisk_ConnectionRefused(t *testing.T) {
	srv := inventorytest.NewServer(t)
	conn := srv.Connection(t)
	srv.Close()

	_, err := newClient().FetchRisk(context.Background(), conn, "1")
	var transportErr *inventory.TransportError
	if !errors.As(err, &transportErr) {
		t.Fatalf("expected TransportError, got %T: %v", err, err)
	}
}

func TestFetchRisk_EscapesID(t *testing.T) {
	srv := inventorytest.NewServer(t)
	srv.SetRisk("a b", inventorytest.RiskResponse{Body: `{"ok":true}`})

	if _, err := newClient().FetchRisk(context.Background(), srv.Connection(t), "a b"); err != nil {
		t.Fatalf("FetchRisk: %v", err)
	}
}

func TestNewClient_WarnsWhenVerificationDisabled(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	inventory.NewClient(inventory.ClientConfig{InsecureSkipVerify: true}, zap.New(core))

	if logs.Len() != 1 {
		t.Fatalf("expected 1 warning, got %d", logs.Len())
	}
}

func TestNewClient_NoWarningByDefault(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	inventory.NewClient(inventory.ClientConfig{}, zap.New(core))

	if logs.Len() != 0 {
		t.Fatalf("expected no warnings, got %d", logs.Len())
	}
}

func selfSignedCentral(t *testing.T) inventory.Connection {
	t.Helper()
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"deployments":[{"id":"1","name":"tls-app"}]}`))
	}))
	t.Cleanup(srv.Close)

	conn, err := inventory.NewConnection(srv.URL, "tok")
	if err != nil {
		t.Fatalf("NewConnection: %v", err)
	}
	return conn
}

func TestNewClient_VerifiesCertificatesByDefault(t *testing.T) {
	conn := selfSignedCentral(t)

	_, err := newClient().ListDeployments(context.Background(), conn)
	if err == nil {
		t.Fatal("expected untrusted certificate to be rejected")
	}
	var transportErr *inventory.TransportError
	if !errors.As(err, &transportErr) {
		t.Fatalf("expected TransportError, got %T: %v", err, err)
	}
}

func TestNewClient_InsecureSkipVerifyAcceptsUntrusted(t *testing.T) {
	conn := selfSignedCentral(t)
	client := inventory.NewClient(inventory.ClientConfig{InsecureSkipVerify: true}, zap.NewNop())

	got, err := client.ListDeployments(context.Background(), conn)
	if err != nil {
		t.Fatalf("ListDeployments: %v", err)
	}
	if len(got) != 1 || got[0].Name != "tls-app" {
		t.Errorf("unexpected listing %+v", got)
	}
}
