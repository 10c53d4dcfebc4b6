package agentswap

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"sync"
	"time"
)

// DefaultHTTPTimeout defines the timeout used by clients created without a
// custom http.Client. It is intentionally short to avoid hanging network calls.
const DefaultHTTPTimeout = 15 * time.Second

// Client wraps the HTTP interactions with the AgentSwap Chain REST API.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client

	mu       sync.RWMutex
	apiToken string
}

// TradeSubmission represents the payload required to create a trading request.
type TradeSubmission struct {
	// ID is an optional idempotency key. The server generates one when empty.
	ID string `json:"id,omitempty"`
	// Intent is the free-text trading intent, e.g. "buy ETH if sentiment is bullish".
	Intent   string         `json:"intent"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// TradeOutcome describes the final answer of the trading pipeline.
type TradeOutcome struct {
	Kind         string `json:"kind"`
	Message      string `json:"message"`
	Symbol       string `json:"symbol"`
	Action       string `json:"action"`
	Amount       string `json:"amount"`
	TxHash       string `json:"tx_hash,omitempty"`
	BlockNumber  string `json:"block_number,omitempty"`
	RevertReason string `json:"revert_reason,omitempty"`
	Nonce        string `json:"nonce,omitempty"`
}

// TradeRecord mirrors the server side view of a trading request.
type TradeRecord struct {
	ID         string         `json:"id"`
	Intent     string         `json:"intent"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Status     string         `json:"status"`
	Attempts   int            `json:"attempts"`
	MaxRetries int            `json:"max_retries"`
	LastError  string         `json:"last_error,omitempty"`
	ErrorCode  string         `json:"error_code,omitempty"`
	Outcome    *TradeOutcome  `json:"outcome,omitempty"`
	CreatedAt  int64          `json:"created_at"`
	UpdatedAt  int64          `json:"updated_at"`
}

// TradeStats aggregates request counts by status.
type TradeStats struct {
	Total           int   `json:"total"`
	Pending         int   `json:"pending"`
	Running         int   `json:"running"`
	Succeeded       int   `json:"succeeded"`
	Failed          int   `json:"failed"`
	OldestUpdatedAt int64 `json:"oldest_updated_at"`
	NewestUpdatedAt int64 `json:"newest_updated_at"`
}

// DaemonStatus reports the chain-facing state of the daemon, including
// the live contract reads: pause flag, the signer the contract trusts
// and the funds it custodies for the daemon's signer.
type DaemonStatus struct {
	Paused           bool     `json:"paused"`
	SignerAddress    string   `json:"signer_address"`
	AuthorizedSigner string   `json:"authorized_signer"`
	SignerAuthorized bool     `json:"signer_authorized"`
	SignerFunds      string   `json:"signer_funds"`
	LastNonce        uint64   `json:"last_nonce"`
	DefaultChain     string   `json:"default_chain"`
	ChainID          string   `json:"chain_id"`
	BlockNumber      string   `json:"block_number"`
	Chains           []string `json:"chains"`
}

// APIError represents server side validation or internal errors.
type APIError struct {
	StatusCode int
	Code       string `json:"code"`
	Message    string `json:"message"`
}

func (e *APIError) Error() string {
	if e == nil {
		return ""
	}
	if e.Code != "" {
		return fmt.Sprintf("agentswap api error (%d): %s - %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("agentswap api error (%d): %s", e.StatusCode, e.Message)
}

// NewClient instantiates a client for the AgentSwap Chain API. When httpClient
// is nil, a default client with a sensible timeout is used.
func NewClient(rawURL string, httpClient *http.Client) *Client {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		panic(fmt.Sprintf("invalid base url: %v", err))
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultHTTPTimeout}
	}
	return &Client{baseURL: parsed, httpClient: httpClient}
}

// SetAPIToken stores the bearer token attached to subsequent calls. An empty
// token disables the Authorization header, matching servers without auth.
func (c *Client) SetAPIToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.apiToken = token
}

// APIToken returns the currently stored token string.
func (c *Client) APIToken() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.apiToken
}

// SubmitTrade creates a new trading request.
func (c *Client) SubmitTrade(ctx context.Context, submission TradeSubmission) (TradeRecord, error) {
	var record TradeRecord
	if err := c.post(ctx, "/api/v1/trades", submission, &record); err != nil {
		return TradeRecord{}, err
	}
	return record, nil
}

// GetTrade fetches a trading request by identifier.
func (c *Client) GetTrade(ctx context.Context, tradeID string) (TradeRecord, error) {
	var record TradeRecord
	endpoint := fmt.Sprintf("/api/v1/trades?id=%s", url.QueryEscape(tradeID))
	if err := c.get(ctx, endpoint, &record); err != nil {
		return TradeRecord{}, err
	}
	return record, nil
}

// ListTrades returns trading requests matching the raw query string, e.g.
// "status=failed&limit=10".
func (c *Client) ListTrades(ctx context.Context, rawQuery string) ([]TradeRecord, error) {
	endpoint := "/api/v1/trades"
	if rawQuery != "" {
		endpoint += "?" + rawQuery
	}
	var records []TradeRecord
	if err := c.get(ctx, endpoint, &records); err != nil {
		return nil, err
	}
	return records, nil
}

// Stats returns aggregate request counts.
func (c *Client) Stats(ctx context.Context) (TradeStats, error) {
	var stats TradeStats
	if err := c.get(ctx, "/api/v1/trades/stats", &stats); err != nil {
		return TradeStats{}, err
	}
	return stats, nil
}

// Status returns the daemon status including the pause flag and signer nonce.
func (c *Client) Status(ctx context.Context) (DaemonStatus, error) {
	var status DaemonStatus
	if err := c.get(ctx, "/api/v1/status", &status); err != nil {
		return DaemonStatus{}, err
	}
	return status, nil
}

// WaitForTrade polls the trade until it reaches a final status or the context
// is cancelled.
func (c *Client) WaitForTrade(ctx context.Context, tradeID string, interval time.Duration) (TradeRecord, error) {
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		record, err := c.GetTrade(ctx, tradeID)
		if err != nil {
			return TradeRecord{}, err
		}
		if record.Status == "succeeded" || record.Status == "failed" {
			return record, nil
		}
		select {
		case <-ctx.Done():
			return TradeRecord{}, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (c *Client) post(ctx context.Context, endpoint string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	req, err := c.newRequest(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) get(ctx context.Context, endpoint string, out any) error {
	req, err := c.newRequest(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *Client) newRequest(ctx context.Context, method, endpoint string, body io.Reader) (*http.Request, error) {
	parsed, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("parse endpoint: %w", err)
	}
	rel := &url.URL{Path: path.Join(c.baseURL.Path, parsed.Path), RawQuery: parsed.RawQuery}
	u := c.baseURL.ResolveReference(rel)
	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if token := c.APIToken(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req, nil
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("perform request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var apiErr APIError
		apiErr.StatusCode = resp.StatusCode
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("read error response: %w", err)
		}
		if len(data) > 0 {
			if err := json.Unmarshal(data, &struct {
				Error *APIError `json:"error"`
			}{Error: &apiErr}); err != nil {
				// try direct decode into apiErr if server returned flat payload
				_ = json.Unmarshal(data, &apiErr)
			}
		}
		if apiErr.Message == "" {
			apiErr.Message = string(bytes.TrimSpace(data))
		}
		return &apiErr
	}

	if out == nil {
		return nil
	}
	decoder := json.NewDecoder(resp.Body)
	if err := decoder.Decode(out); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
