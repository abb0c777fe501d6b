// Package ocr is the client for the external receipt-OCR service. The
// service is the least reliable dependency of the tracker, so every
// call runs through a circuit breaker and degrades to a pending result
// instead of failing the upload.
package ocr

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/Kkocaoglan/IncomeExpense-sub000/internal/breaker"
)

// Status of one scan.
const (
	StatusCompleted = "completed"
	StatusPending   = "pending"
)

// Result is the outcome of a receipt scan. Pending results carry no
// fields; the caller re-polls or finishes the entry by hand.
type Result struct {
	Status     string  `json:"status"`
	Merchant   string  `json:"merchant,omitempty"`
	TotalCents int64   `json:"total_cents,omitempty"`
	Currency   string  `json:"currency,omitempty"`
	Date       string  `json:"date,omitempty"`
	Confidence float64 `json:"confidence,omitempty"`
}

// ErrUnavailable reports that the OCR service could not serve the call.
var ErrUnavailable = errors.New("ocr service unavailable")

// Config locates the upstream service.
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
	Breaker breaker.Config
}

// Client scans receipts through the upstream service.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	breaker *breaker.Breaker
}

func NewClient(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Client{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		http:    &http.Client{Timeout: cfg.Timeout},
		breaker: breaker.New(cfg.Breaker),
	}
}

// BreakerState exposes the breaker position for health reporting.
func (c *Client) BreakerState() breaker.State {
	return c.breaker.State()
}

// Scan submits receipt image bytes. When the service is down or the
// breaker is open the result is StatusPending, never an error: a slow
// OCR backend must not break expense capture.
func (c *Client) Scan(ctx context.Context, image []byte, contentType string) (*Result, error) {
	var result *Result
	err := c.breaker.Do(ctx,
		func(ctx context.Context) error {
			r, err := c.scanOnce(ctx, image, contentType)
			if err != nil {
				return err
			}
			result = r
			return nil
		},
		func(ctx context.Context, cause error) error {
			result = &Result{Status: StatusPending}
			return nil
		},
	)
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (c *Client) scanOnce(ctx context.Context, image []byte, contentType string) (*Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/scan", bytes.NewReader(image))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", contentType)
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}

	var result Result
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if result.Status == "" {
		result.Status = StatusCompleted
	}
	return &result, nil
}
