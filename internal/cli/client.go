// Package cli is the thin HTTP client the agctl binary talks through.
package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

type Client struct {
	BaseURL string
	HTTP    *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTP: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

func (c *Client) ListMarkets(ctx context.Context, region string) (map[string]any, error) {
	path := "/v1/markets"
	if region != "" {
		path += "?region=" + url.QueryEscape(region)
	}
	var out map[string]any
	err := c.jsonRequest(ctx, http.MethodGet, path, nil, &out)
	return out, err
}

func (c *Client) MarketDetail(ctx context.Context, marketID string) (map[string]any, error) {
	var out map[string]any
	err := c.jsonRequest(ctx, http.MethodGet, "/v1/markets/"+url.PathEscape(marketID), nil, &out)
	return out, err
}

func (c *Client) Quote(ctx context.Context, marketID, side string, quantity int64) (map[string]any, error) {
	var out map[string]any
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/markets/"+url.PathEscape(marketID)+"/quote", map[string]any{
		"side":     side,
		"quantity": quantity,
	}, &out)
	return out, err
}

func (c *Client) Execute(ctx context.Context, marketID, side string, quantity, observedPriceLevel int64, owner string) (map[string]any, error) {
	var out map[string]any
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/markets/"+url.PathEscape(marketID)+"/execute", map[string]any{
		"side":                 side,
		"quantity":             quantity,
		"observed_price_level": observedPriceLevel,
		"owner":                owner,
	}, &out)
	return out, err
}

func (c *Client) History(ctx context.Context, marketID string, days int) (map[string]any, error) {
	path := fmt.Sprintf("/v1/markets/%s/history?days=%d", url.PathEscape(marketID), days)
	var out map[string]any
	err := c.jsonRequest(ctx, http.MethodGet, path, nil, &out)
	return out, err
}

func (c *Client) Account(ctx context.Context, owner string) (map[string]any, error) {
	var out map[string]any
	err := c.jsonRequest(ctx, http.MethodGet, "/v1/accounts/"+url.PathEscape(owner), nil, &out)
	return out, err
}

func (c *Client) Transfer(ctx context.Context, fromOwner, toOwner, scope, amount, reason string) (map[string]any, error) {
	var out map[string]any
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/accounts/transfer", map[string]any{
		"from_owner": fromOwner,
		"to_owner":   toOwner,
		"scope":      scope,
		"amount":     amount,
		"reason":     reason,
	}, &out)
	return out, err
}

func (c *Client) jsonRequest(ctx context.Context, method, path string, in any, out any) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("api status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
