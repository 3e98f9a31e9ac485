package gameapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"
)

var (
	// ErrAccountNotFound indicates the game API does not know the handle
	ErrAccountNotFound = errors.New("game account not found")

	// ErrUnavailable indicates the request was never delivered (dial failed,
	// connection refused). No remote state can have changed.
	ErrUnavailable = errors.New("game api unavailable")

	// ErrOutcomeUnknown indicates the request may have been applied remotely
	// (timeout, connection reset after send). The caller must not assume
	// either outcome.
	ErrOutcomeUnknown = errors.New("game api outcome unknown")
)

// APIError represents an explicit rejection payload from the game API
type APIError struct {
	StatusCode int
	Reason     string
}

// Error implements the error interface
func (e *APIError) Error() string {
	return fmt.Sprintf("game api rejected request (%d): %s", e.StatusCode, e.Reason)
}

// AccountInfo describes a game account as reported by the lookup endpoint
type AccountInfo struct {
	Handle     string `json:"handle"`
	AccountRef string `json:"account_ref"`
}

// RechargeResult is the success payload of the recharge endpoint
type RechargeResult struct {
	NewBalance       int64  `json:"new_balance"`
	NewLifetimeTotal int64  `json:"new_lifetime_total"`
	Raw              string `json:"-"` // response body kept for the audit record
}

//go:generate mockgen -source=$GOFILE -destination=mock/client.go -package=mock_gameapi
type Client interface {
	// LookupAccount resolves a handle to account info. Returns
	// ErrAccountNotFound if the handle does not exist and ErrUnavailable on
	// any transport failure (lookups are read-only, so retrying is safe).
	LookupAccount(ctx context.Context, handle string) (*AccountInfo, error)

	// Recharge credits game currency to a handle. The idempotency token is
	// forwarded so the remote side can, in principle, deduplicate. Errors are
	// classified: *APIError (definite rejection), ErrUnavailable (request
	// never sent), ErrOutcomeUnknown (may have been applied).
	Recharge(ctx context.Context, handle string, amount int64, idempotencyToken string) (*RechargeResult, error)
}

// HTTPClient implements Client against the game's administrative HTTP API
type HTTPClient struct {
	baseURL         string
	apiKey          string
	httpClient      *http.Client
	rechargeTimeout time.Duration
}

// NewHTTPClient creates a new game API client
func NewHTTPClient(baseURL, apiKey string, rechargeTimeout time.Duration) *HTTPClient {
	if rechargeTimeout <= 0 {
		rechargeTimeout = 30 * time.Second
	}
	return &HTTPClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: rechargeTimeout,
		},
		rechargeTimeout: rechargeTimeout,
	}
}

// lookupResponse is the wire shape of the lookup endpoint
type lookupResponse struct {
	Exists     bool   `json:"exists"`
	AccountRef string `json:"account_ref"`
}

// LookupAccount resolves a handle to account info
func (c *HTTPClient) LookupAccount(ctx context.Context, handle string) (*AccountInfo, error) {
	endpoint := fmt.Sprintf("%s/accounts/%s", c.baseURL, url.PathEscape(handle))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("error building lookup request: %w", err)
	}
	c.setHeaders(req)

	res, err := c.httpClient.Do(req)
	if err != nil {
		// Lookups have no side effects, every transport failure is safely
		// retryable
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusNotFound {
		return nil, ErrAccountNotFound
	}
	if res.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: lookup returned status %d", ErrUnavailable, res.StatusCode)
	}

	var payload lookupResponse
	if err := json.NewDecoder(res.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("%w: error decoding lookup response: %v", ErrUnavailable, err)
	}

	if !payload.Exists {
		return nil, ErrAccountNotFound
	}

	return &AccountInfo{Handle: handle, AccountRef: payload.AccountRef}, nil
}

// rechargeRequest is the wire shape of the recharge endpoint
type rechargeRequest struct {
	Handle           string `json:"handle"`
	Amount           int64  `json:"amount"`
	IdempotencyToken string `json:"idempotency_token"`
}

// rechargeResponse is the wire shape of the recharge endpoint's reply
type rechargeResponse struct {
	Success          bool   `json:"success"`
	NewBalance       int64  `json:"new_balance"`
	NewLifetimeTotal int64  `json:"new_lifetime_total"`
	Error            string `json:"error"`
}

// Recharge credits game currency to a handle
func (c *HTTPClient) Recharge(ctx context.Context, handle string, amount int64, idempotencyToken string) (*RechargeResult, error) {
	body, err := json.Marshal(rechargeRequest{
		Handle:           handle,
		Amount:           amount,
		IdempotencyToken: idempotencyToken,
	})
	if err != nil {
		return nil, fmt.Errorf("error building recharge request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.rechargeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/recharge", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("error building recharge request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	c.setHeaders(req)

	res, err := c.httpClient.Do(req)
	if err != nil {
		return nil, classifyTransportError(err)
	}
	defer res.Body.Close()

	raw, err := io.ReadAll(res.Body)
	if err != nil {
		// The server accepted the request but the response was cut off
		return nil, fmt.Errorf("%w: error reading recharge response: %v", ErrOutcomeUnknown, err)
	}

	var payload rechargeResponse
	if err := json.Unmarshal(raw, &payload); err != nil {
		if res.StatusCode >= 500 {
			// The server may have applied the recharge before failing
			return nil, fmt.Errorf("%w: recharge returned status %d", ErrOutcomeUnknown, res.StatusCode)
		}
		return nil, &APIError{StatusCode: res.StatusCode, Reason: string(raw)}
	}

	if !payload.Success {
		reason := payload.Error
		if reason == "" {
			reason = fmt.Sprintf("recharge rejected with status %d", res.StatusCode)
		}
		return nil, &APIError{StatusCode: res.StatusCode, Reason: reason}
	}

	return &RechargeResult{
		NewBalance:       payload.NewBalance,
		NewLifetimeTotal: payload.NewLifetimeTotal,
		Raw:              string(raw),
	}, nil
}

// setHeaders applies shared request headers
func (c *HTTPClient) setHeaders(req *http.Request) {
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
}

// classifyTransportError sorts a failed recharge into "never sent" versus
// "outcome unknown". A dial failure means the connection was never
// established, so the request cannot have reached the server. Anything after
// that (timeout, reset mid-flight) may or may not have been applied.
func classifyTransportError(err error) error {
	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return fmt.Errorf("%w: %v", ErrOutcomeUnknown, err)
}
