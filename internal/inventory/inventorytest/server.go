// Package inventorytest provides an in-process fake of the Central
// deployment and risk endpoints for tests.
package inventorytest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/triage-ai/palisade/services/deployment_risk/internal/inventory"
)

// Token is the bearer token the fake accepts.
const Token = "test-central-token"

// RiskResponse describes how the fake answers a risk request for one id.
type RiskResponse struct {
	Status int // 0 means 200
	Body   string
	Delay  time.Duration
}

// Server is a fake Central. Unknown ids answer 404.
type Server struct {
	*httptest.Server

	mu          sync.Mutex
	deployments []inventory.Deployment
	risks       map[string]RiskResponse
	listStatus  int
	listBody    string
	listDelay   time.Duration
	listCalls   int
	riskCalls   map[string]int
	inFlight    int
	maxInFlight int
}

// NewServer starts a fake Central that is closed when the test ends.
func NewServer(t testing.TB) *Server {
	t.Helper()
	s := &Server{
		risks:     make(map[string]RiskResponse),
		riskCalls: make(map[string]int),
	}
	s.Server = httptest.NewServer(http.HandlerFunc(s.handle))
	t.Cleanup(s.Close)
	return s
}

// Connection returns a Connection pointing at the fake with a valid token.
func (s *Server) Connection(t testing.TB) inventory.Connection {
	t.Helper()
	conn, err := inventory.NewConnection(s.URL, Token)
	if err != nil {
		t.Fatalf("NewConnection: %v", err)
	}
	return conn
}

// SetDeployments replaces the listing.
func (s *Server) SetDeployments(ds ...inventory.Deployment) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deployments = ds
}

// SetRisk configures the answer for one deployment id.
func (s *Server) SetRisk(id string, r RiskResponse) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.risks[id] = r
}

// FailListing makes the listing endpoint answer with status and body.
func (s *Server) FailListing(status int, body string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listStatus = status
	s.listBody = body
}

// DelayListing holds every listing response for d, or until the
// request is abandoned.
func (s *Server) DelayListing(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listDelay = d
}

// ListCalls returns how many listing requests were served.
func (s *Server) ListCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listCalls
}

// RiskCalls returns how many risk requests were served in total.
func (s *Server) RiskCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.riskCalls {
		n += c
	}
	return n
}

// MaxInFlight returns the highest number of concurrent risk requests seen.
func (s *Server) MaxInFlight() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.maxInFlight
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	if r.Header.Get("Authorization") != "Bearer "+Token {
		http.Error(w, `{"error":"credentials not found"}`, http.StatusUnauthorized)
		return
	}
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	switch {
	case r.URL.Path == "/v1/deployments":
		s.handleList(w, r)
	case strings.HasPrefix(r.URL.Path, "/v1/deploymentswithrisk/"):
		s.handleRisk(w, r, strings.TrimPrefix(r.URL.Path, "/v1/deploymentswithrisk/"))
	default:
		http.NotFound(w, r)
	}
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.listCalls++
	status, body, delay := s.listStatus, s.listBody, s.listDelay
	items := make([]map[string]string, 0, len(s.deployments))
	for _, d := range s.deployments {
		items = append(items, map[string]string{"id": d.ID, "name": d.Name, "namespace": "default"})
	}
	s.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-r.Context().Done():
			return
		}
	}
	if status != 0 {
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"deployments": items})
}

func (s *Server) handleRisk(w http.ResponseWriter, r *http.Request, id string) {
	s.mu.Lock()
	s.riskCalls[id]++
	s.inFlight++
	if s.inFlight > s.maxInFlight {
		s.maxInFlight = s.inFlight
	}
	resp, ok := s.risks[id]
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.inFlight--
		s.mu.Unlock()
	}()

	if !ok {
		http.Error(w, `{"error":"deployment not found"}`, http.StatusNotFound)
		return
	}
	if resp.Delay > 0 {
		select {
		case <-time.After(resp.Delay):
		case <-r.Context().Done():
			return
		}
	}
	status := resp.Status
	if status == 0 {
		status = http.StatusOK
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(resp.Body))
}
