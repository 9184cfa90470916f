package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// HTTPClient queries a person-lookup provider over HTTP/JSON.
type HTTPClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewHTTPClient builds a provider client. The http.Client timeout is a
// hard backstop; per-call deadlines come from ctx.
func NewHTTPClient(baseURL, apiKey string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
	}
}

type lookupResponse struct {
	Found      bool    `json:"found"`
	LastName   string  `json:"last_name"`
	FirstName  string  `json:"first_name"`
	City       string  `json:"city"`
	State      string  `json:"state"`
	Zip5       string  `json:"zip5"`
	Email      string  `json:"email"`
	Confidence float64 `json:"confidence"`
}

// LookupByIP resolves a hashed IP to person fields.
func (c *HTTPClient) LookupByIP(ctx context.Context, ipHash string) (Person, error) {
	endpoint := fmt.Sprintf("%s/v1/person?ip=%s", c.baseURL, url.QueryEscape(ipHash))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Person{}, NewProviderError(ErrorInternal, "build request", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return Person{}, NewProviderError(ErrorTimeout, "lookup by ip", err)
		}
		return Person{}, NewProviderError(ErrorOutage, "lookup by ip", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return Person{}, NewProviderError(ErrorNotFound, "no person for identifier", nil)
	case resp.StatusCode == http.StatusTooManyRequests:
		return Person{}, NewProviderError(ErrorRateLimited, "rate limited", nil)
	case resp.StatusCode >= 500:
		return Person{}, NewProviderError(ErrorOutage, fmt.Sprintf("status %d", resp.StatusCode), nil)
	case resp.StatusCode != http.StatusOK:
		return Person{}, NewProviderError(ErrorInternal, fmt.Sprintf("status %d", resp.StatusCode), nil)
	}

	var body lookupResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return Person{}, NewProviderError(ErrorBadData, "decode response", err)
	}
	if !body.Found {
		return Person{}, NewProviderError(ErrorNotFound, "no person for identifier", nil)
	}

	return Person{
		LastName:   body.LastName,
		FirstName:  body.FirstName,
		City:       body.City,
		State:      body.State,
		Zip5:       body.Zip5,
		Email:      body.Email,
		Confidence: body.Confidence,
	}, nil
}
