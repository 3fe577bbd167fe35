// Package inventory talks to the external inventory service. The service
// owns physical stock; this side only queries availability and asks for
// deductions. Every transport or protocol failure is reported as
// ErrUnavailable so callers can map it to one outcome.
package inventory

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

var ErrUnavailable = errors.New("inventory service unavailable")

// Date marshals as yyyy-MM-dd, the wire format the inventory service uses.
type Date struct {
	time.Time
}

const dateLayout = "2006-01-02"

func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.Format(dateLayout))
}

func (d *Date) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return fmt.Errorf("parse date %q: %w", s, err)
	}
	d.Time = t
	return nil
}

type Batch struct {
	BatchNo    string          `json:"batchNo"`
	ExpiryDate Date            `json:"expiryDate"`
	MRP        decimal.Decimal `json:"mrp"`
	Quantity   int             `json:"quantity"`
	SKU        string          `json:"sku,omitempty"`
	Status     string          `json:"status,omitempty"`
}

type SKUPriceQuery struct {
	SKU string          `json:"sku"`
	MRP decimal.Decimal `json:"mrp"`
}

type DeductLine struct {
	BatchNo    string          `json:"batchNo"`
	SKU        string          `json:"sku"`
	Quantity   int             `json:"quantity"`
	MRP        decimal.Decimal `json:"mrp"`
	ExpiryDate Date            `json:"expiryDate"`
}

// Key builds the sku||mrp grouping key used across availability responses
// and allocation planning. SKU matching is case- and whitespace-insensitive.
func Key(sku string, mrp decimal.Decimal) string {
	return strings.ToLower(strings.TrimSpace(sku)) + "||" + mrp.String()
}

// BatchKey extends Key with the batch number, identifying one physical batch.
func BatchKey(sku string, mrp decimal.Decimal, batchNo string) string {
	return Key(sku, mrp) + "||" + batchNo
}

type Client struct {
	baseURL string
	http    *http.Client
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

type availableRequest struct {
	Queries []SKUPriceQuery `json:"queries"`
}

type availableResponse struct {
	Success *bool              `json:"success"`
	Message string             `json:"message"`
	Data    map[string][]Batch `json:"data"`
}

// AvailableBatches fetches candidate batches for every distinct (sku, mrp)
// pair in one call. The result is keyed by Key(sku, mrp); pairs the service
// knows nothing about are absent.
func (c *Client) AvailableBatches(ctx context.Context, queries []SKUPriceQuery) (map[string][]Batch, error) {
	if len(queries) == 0 {
		return map[string][]Batch{}, nil
	}

	seen := make(map[string]bool, len(queries))
	distinct := make([]SKUPriceQuery, 0, len(queries))
	for _, q := range queries {
		k := Key(q.SKU, q.MRP)
		if seen[k] {
			continue
		}
		seen[k] = true
		distinct = append(distinct, q)
	}

	body, err := c.post(ctx, "/available", availableRequest{Queries: distinct})
	if err != nil {
		return nil, err
	}

	var resp availableResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("%w: decode availability response: %v", ErrUnavailable, err)
	}
	if resp.Success != nil && !*resp.Success {
		return nil, fmt.Errorf("%w: %s", ErrUnavailable, resp.Message)
	}
	if resp.Data == nil {
		return map[string][]Batch{}, nil
	}
	return resp.Data, nil
}

type deductRequest struct {
	Operation string       `json:"operation"`
	Items     []DeductLine `json:"items"`
}

// DeductBulk asks the inventory service to deduct every line in one atomic
// operation. The service either applies all lines or none.
func (c *Client) DeductBulk(ctx context.Context, lines []DeductLine) error {
	if len(lines) == 0 {
		return nil
	}
	_, err := c.post(ctx, "/save", deductRequest{Operation: "DEDUCT", Items: lines})
	return err
}

func (c *Client) post(ctx context.Context, path string, payload any) ([]byte, error) {
	buf, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(buf))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", ErrUnavailable, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: %s: %s", ErrUnavailable, resp.Status, strings.TrimSpace(string(body)))
	}
	return body, nil
}
