package assistant

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// CapabilityResult holds the gateway response for one invocation. A non-200
// status is a handled outcome, not an error: it becomes an embedded reply
// segment while the rest of the turn continues.
type CapabilityResult struct {
	StatusCode int
	Body       []byte
}

// OK reports whether the gateway returned a successful payload.
func (r *CapabilityResult) OK() bool {
	return r.StatusCode == http.StatusOK
}

// Gateway executes authenticated reads against the internal gateway fronting
// the club CRUD microservices.
type Gateway interface {
	// Fetch issues a GET for the given route with the invocation arguments as
	// query parameters. The returned error is reserved for transport-level
	// failures (timeout, connection refused), which abort the whole request.
	Fetch(ctx context.Context, route string, args map[string]any, token string) (*CapabilityResult, error)
}

// GatewayClient is the production Gateway implementation.
type GatewayClient struct {
	baseURL string
	client  *http.Client
}

// NewGatewayClient creates a gateway client with a fixed per-call timeout.
func NewGatewayClient(baseURL string, timeout time.Duration) *GatewayClient {
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &GatewayClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

func (g *GatewayClient) Fetch(ctx context.Context, route string, args map[string]any, token string) (*CapabilityResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+route, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "build gateway request for %s", route)
	}

	query := url.Values{}
	for name, value := range args {
		query.Set(name, fmt.Sprint(value))
	}
	req.URL.RawQuery = query.Encode()
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "gateway call %s failed", route)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrapf(err, "read gateway response for %s", route)
	}

	return &CapabilityResult{StatusCode: resp.StatusCode, Body: body}, nil
}
