package subtitle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

var ErrNotFound = errors.New("subtitle: not found")

// RESTClient queries a remote subtitle endpoint: GET {base}/{fid} answering
// {"subtitle": "..."}.
type RESTClient struct {
	base   string
	client *http.Client
}

func NewRESTClient(baseURL string, timeout time.Duration) *RESTClient {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &RESTClient{
		base:   strings.TrimRight(baseURL, "/"),
		client: &http.Client{Timeout: timeout},
	}
}

type restResponse struct {
	Subtitle string `json:"subtitle"`
}

func (c *RESTClient) Subtitle(ctx context.Context, fid string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+"/"+url.PathEscape(fid), nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Accept", "application/json")

	res, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("subtitle fallback: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusNotFound {
		return "", ErrNotFound
	}
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return "", fmt.Errorf("subtitle fallback: http %d", res.StatusCode)
	}

	var body restResponse
	if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("subtitle fallback: decode: %w", err)
	}
	return body.Subtitle, nil
}
