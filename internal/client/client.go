// Package client is the Go client for out-of-process storefront callers of the coupon API.
// Its Client satisfies orchestrator.CouponClient, so a storefront can run Sessions locally
// against a remote coupon-service.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/pkg/errors"

	"github.com/Cheertaboi/storefront-coupon-service/internal/api/middleware"
	"github.com/Cheertaboi/storefront-coupon-service/internal/models"
)

// StatusError is returned for any non-200 answer. Callers treat it as a transport failure.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("coupon service returned %d: %s", e.StatusCode, e.Body)
}

// Client calls the /api/coupons endpoints of a remote coupon-service.
type Client struct {
	BaseURL *url.URL
	HTTP    *http.Client
}

func New(baseURL string, httpClient *http.Client) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid coupon service url %q", baseURL)
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{BaseURL: u, HTTP: httpClient}, nil
}

func (c *Client) Apply(ctx context.Context, req models.ApplyRequest) (models.ApplyResponse, error) {
	var out models.ApplyResponse
	err := c.post(ctx, "/api/coupons/apply", req, &out)
	return out, err
}

func (c *Client) AutoApply(ctx context.Context, req models.AutoApplyRequest) (models.ApplyResponse, error) {
	var out models.ApplyResponse
	err := c.post(ctx, "/api/coupons/auto-apply", req, &out)
	return out, err
}

func (c *Client) Revalidate(ctx context.Context, req models.RevalidateRequest) (models.RevalidateResponse, error) {
	var out models.RevalidateResponse
	err := c.post(ctx, "/api/coupons/revalidate", req, &out)
	return out, err
}

func (c *Client) post(ctx context.Context, path string, in, out interface{}) error {
	body, err := json.Marshal(in)
	if err != nil {
		return errors.Wrap(err, "encode request")
	}

	u := c.BaseURL.ResolveReference(&url.URL{Path: path})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), bytes.NewReader(body))
	if err != nil {
		return errors.Wrap(err, "build request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	// Ensure correlation id propagated downstream
	if cid := middleware.GetCorrelationID(ctx); cid != "" {
		req.Header.Set(middleware.HeaderCorrelationID, cid)
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return errors.Wrapf(err, "POST %s", path)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &StatusError{StatusCode: resp.StatusCode, Body: string(bytes.TrimSpace(snippet))}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Wrapf(err, "decode %s response", path)
	}
	return nil
}
