package billing

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

var ErrNotConfigured = errors.New("billing: checkout endpoint not configured")

type Status string

const (
	StatusReady             Status = "ready"
	StatusUnsupportedRegion Status = "unsupported_region"
)

const DefaultPlan = "pro"

type Request struct {
	UserID     string `json:"userId"`
	Email      string `json:"email"`
	Plan       string `json:"plan"`
	Region     string `json:"region"`
	SuccessURL string `json:"successUrl,omitempty"`
	CancelURL  string `json:"cancelUrl,omitempty"`
}

// Checkout is the outcome of a checkout request. An unsupported region is
// a normal outcome with its own message, not an error.
type Checkout struct {
	ID      string `json:"id"`
	Status  Status `json:"status"`
	URL     string `json:"url,omitempty"`
	Message string `json:"message,omitempty"`
}

// Client creates checkout sessions with the payment provider.
type Client struct {
	endpoint  string
	supported map[string]bool
	http      *http.Client
}

func NewClient(endpoint string, supportedRegions []string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	supported := make(map[string]bool, len(supportedRegions))
	for _, r := range supportedRegions {
		supported[strings.ToUpper(strings.TrimSpace(r))] = true
	}
	return &Client{
		endpoint:  endpoint,
		supported: supported,
		http:      &http.Client{Timeout: timeout},
	}
}

// Supported reports whether purchases are offered in region. An empty
// supported list allows every region.
func (c *Client) Supported(region string) bool {
	if len(c.supported) == 0 {
		return true
	}
	return c.supported[strings.ToUpper(strings.TrimSpace(region))]
}

type providerResponse struct {
	URL string `json:"url"`
}

func (c *Client) CreateCheckout(ctx context.Context, req Request) (Checkout, error) {
	id := uuid.NewString()
	if !c.Supported(req.Region) {
		return Checkout{
			ID:      id,
			Status:  StatusUnsupportedRegion,
			Message: "Pro is not available in your region yet.",
		}, nil
	}
	if c.endpoint == "" {
		return Checkout{}, ErrNotConfigured
	}
	if req.Plan == "" {
		req.Plan = DefaultPlan
	}

	body, err := json.Marshal(req)
	if err != nil {
		return Checkout{}, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return Checkout{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Idempotency-Key", id)

	res, err := c.http.Do(httpReq)
	if err != nil {
		return Checkout{}, fmt.Errorf("billing: create checkout: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return Checkout{}, fmt.Errorf("billing: create checkout: http %d", res.StatusCode)
	}

	var out providerResponse
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return Checkout{}, fmt.Errorf("billing: decode checkout: %w", err)
	}
	if out.URL == "" {
		return Checkout{}, errors.New("billing: provider returned no checkout url")
	}

	return Checkout{ID: id, Status: StatusReady, URL: out.URL}, nil
}
