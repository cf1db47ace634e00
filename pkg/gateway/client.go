package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/printlab/printlab-backend/pkg/enums"
	pkgerrors "github.com/printlab/printlab-backend/pkg/errors"
	"github.com/printlab/printlab-backend/pkg/metrics"
)

const (
	defaultTimeout              = 10 * time.Second
	responseBodyReadLimit int64 = 1024
)

var (
	errPrivateKeyRequired = errors.New("payment gateway private key is required")
	errBaseURLRequired    = errors.New("payment gateway base url is required")
)

// Client reads transactions from the payment gateway API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	privateKey string
	metrics    *metrics.PaymentMetrics
}

// Option configures optional client behavior.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithTimeout bounds every gateway call.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.httpClient.Timeout = timeout
		}
	}
}

// WithMetrics records call latency and outcome.
func WithMetrics(m *metrics.PaymentMetrics) Option {
	return func(c *Client) {
		c.metrics = m
	}
}

// NewClient builds a gateway client for baseURL authenticated with privateKey.
func NewClient(baseURL, privateKey string, opts ...Option) (*Client, error) {
	key := strings.TrimSpace(privateKey)
	if key == "" {
		return nil, errPrivateKeyRequired
	}
	base := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if base == "" {
		return nil, errBaseURLRequired
	}

	client := &Client{
		privateKey: key,
		baseURL:    base,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}
	if client.httpClient.Timeout <= 0 {
		client.httpClient.Timeout = defaultTimeout
	}
	return client, nil
}

// Transaction is the gateway's current view of a payment.
type Transaction struct {
	ID                string                  `json:"id"`
	Status            enums.TransactionStatus `json:"status"`
	Reference         string                  `json:"reference"`
	AmountInCents     int64                   `json:"amount_in_cents"`
	Currency          string                  `json:"currency"`
	PaymentMethodType string                  `json:"payment_method_type"`
	StatusMessage     string                  `json:"status_message,omitempty"`
	CreatedAt         *time.Time              `json:"created_at,omitempty"`
	FinalizedAt       *time.Time              `json:"finalized_at,omitempty"`
}

// GetTransaction fetches GET /transactions/{id}. Timeouts and non-2xx
// answers are dependency errors; callers must not transition on them.
func (c *Client) GetTransaction(ctx context.Context, transactionID string) (*Transaction, error) {
	if c == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "payment gateway client not configured")
	}
	trimmed := strings.TrimSpace(transactionID)
	if trimmed == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "transaction id is required")
	}

	started := time.Now()
	outcome := "error"
	defer func() { c.metrics.ObserveGateway(outcome, time.Since(started)) }()

	endpoint := fmt.Sprintf("%s/transactions/%s", c.baseURL, url.PathEscape(trimmed))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "build transaction request")
	}
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.privateKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		outcome = "unreachable"
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "execute transaction request")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusNotFound {
		outcome = "not_found"
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "transaction not found").
			WithDetails(map[string]any{"transaction_id": trimmed})
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		outcome = "bad_status"
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, responseBodyReadLimit))
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg))), "transaction request failed")
	}

	var apiResp struct {
		Data Transaction `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		outcome = "bad_body"
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode transaction response")
	}
	tx := apiResp.Data
	if tx.ID == "" {
		outcome = "bad_body"
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "transaction response missing id")
	}
	status, err := enums.ParseTransactionStatus(string(tx.Status))
	if err != nil {
		outcome = "bad_body"
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "transaction response status")
	}
	tx.Status = status

	outcome = "ok"
	return &tx, nil
}
