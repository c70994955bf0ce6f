package inventory

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"
)

const (
	deploymentsPath     = "/v1/deployments"
	deploymentRiskPath  = "/v1/deploymentswithrisk/"
	defaultMaxBodyBytes = 16 << 20
)

// Deployment is a workload tracked by Central. Name is not unique.
type Deployment struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// ClientConfig configures the Central HTTP client.
type ClientConfig struct {
	// InsecureSkipVerify disables TLS certificate verification. Off by
	// default; only meant for sandbox clusters with self-signed certs.
	InsecureSkipVerify bool
	// MaxResponseBytes caps a single response body (default 16 MiB).
	MaxResponseBytes int64
	// HTTPClient overrides the client built from the fields above.
	HTTPClient *http.Client
}

// Client performs the two Central calls the pipeline needs. It does not
// retry; callers that want retries wrap it.
type Client struct {
	http    *http.Client
	maxBody int64
	logger  *zap.Logger
}

// NewClient creates a Client from cfg.
func NewClient(cfg ClientConfig, logger *zap.Logger) *Client {
	maxBody := cfg.MaxResponseBytes
	if maxBody <= 0 {
		maxBody = defaultMaxBodyBytes
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		transport := http.DefaultTransport.(*http.Transport).Clone()
		transport.TLSClientConfig = &tls.Config{
			MinVersion:         tls.VersionTLS12,
			InsecureSkipVerify: cfg.InsecureSkipVerify, //nolint:gosec // explicit opt-in
		}
		httpClient = &http.Client{Transport: transport}
	}

	if cfg.InsecureSkipVerify {
		logger.Warn("TLS certificate verification is disabled for Central requests")
	}

	return &Client{
		http:    httpClient,
		maxBody: maxBody,
		logger:  logger,
	}
}

// ListDeployments returns every deployment Central reports, in listing order.
func (c *Client) ListDeployments(ctx context.Context, conn Connection) ([]Deployment, error) {
	body, reqURL, err := c.get(ctx, conn, deploymentsPath)
	if err != nil {
		return nil, err
	}

	var listing struct {
		Deployments []Deployment `json:"deployments"`
	}
	if err := json.Unmarshal(body, &listing); err != nil {
		return nil, &DecodeError{URL: reqURL, Err: err}
	}
	return listing.Deployments, nil
}

// FetchRisk returns the raw risk document for one deployment id.
func (c *Client) FetchRisk(ctx context.Context, conn Connection, id string) (json.RawMessage, error) {
	body, reqURL, err := c.get(ctx, conn, deploymentRiskPath+url.PathEscape(id))
	if err != nil {
		return nil, err
	}
	if !json.Valid(body) {
		return nil, &DecodeError{URL: reqURL, Err: errors.New("body is not valid JSON")}
	}
	return json.RawMessage(body), nil
}

func (c *Client) get(ctx context.Context, conn Connection, path string) ([]byte, string, error) {
	reqURL := conn.baseURL + path
	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, reqURL, &TransportError{URL: reqURL, Err: err}
	}
	req.Header.Set("Authorization", conn.authorization())
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, reqURL, &TransportError{URL: reqURL, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBody+1))
	if err != nil {
		return nil, reqURL, &TransportError{URL: reqURL, Err: err}
	}

	c.logger.Debug("central request",
		zap.String("url", reqURL),
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", time.Since(start)),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, reqURL, &UpstreamStatusError{
			URL:        reqURL,
			StatusCode: resp.StatusCode,
			Body:       snippet(body),
		}
	}
	if int64(len(body)) > c.maxBody {
		return nil, reqURL, &DecodeError{URL: reqURL, Err: errResponseTooLarge}
	}
	return body, reqURL, nil
}
