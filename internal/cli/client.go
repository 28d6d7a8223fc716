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

func (c *Client) ListMarkets(ctx context.Context) (map[string]any, error) {
	var out map[string]any
	err := c.jsonRequest(ctx, http.MethodGet, "/v1/markets", "", nil, &out)
	return out, err
}

func (c *Client) Board(ctx context.Context, user, name string) (map[string]any, error) {
	var out map[string]any
	err := c.jsonRequest(ctx, http.MethodGet, "/v1/markets/"+url.PathEscape(name), user, nil, &out)
	return out, err
}

func (c *Client) CreateMarket(ctx context.Context, user, name, question string, outcomes []string, closeTime time.Time, liquidity float64) (map[string]any, error) {
	var out map[string]any
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/markets", user, map[string]any{
		"name":       name,
		"question":   question,
		"outcomes":   outcomes,
		"close_time": closeTime,
		"liquidity":  liquidity,
	}, &out)
	return out, err
}

func (c *Client) Buy(ctx context.Context, user, name, outcome string, spend float64) (map[string]any, error) {
	var out map[string]any
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/markets/"+url.PathEscape(name)+"/buy", user, map[string]any{
		"outcome": outcome,
		"spend":   spend,
	}, &out)
	return out, err
}

func (c *Client) Sell(ctx context.Context, user, name, outcome string, shares float64) (map[string]any, error) {
	var out map[string]any
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/markets/"+url.PathEscape(name)+"/sell", user, map[string]any{
		"outcome": outcome,
		"shares":  shares,
	}, &out)
	return out, err
}

func (c *Client) Resolve(ctx context.Context, user, name, outcome string) (map[string]any, error) {
	var out map[string]any
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/markets/"+url.PathEscape(name)+"/resolve", user, map[string]any{
		"outcome": outcome,
	}, &out)
	return out, err
}

func (c *Client) Cancel(ctx context.Context, user, name string) (map[string]any, error) {
	var out map[string]any
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/markets/"+url.PathEscape(name)+"/cancel", user, nil, &out)
	return out, err
}

func (c *Client) Balance(ctx context.Context, user string) (map[string]any, error) {
	var out map[string]any
	err := c.jsonRequest(ctx, http.MethodGet, "/v1/balance", user, nil, &out)
	return out, err
}

func (c *Client) Leaderboard(ctx context.Context) (map[string]any, error) {
	var out map[string]any
	err := c.jsonRequest(ctx, http.MethodGet, "/v1/leaderboard", "", nil, &out)
	return out, err
}

func (c *Client) jsonRequest(ctx context.Context, method, path, user string, in any, out any) error {
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
	if user != "" {
		req.Header.Set("X-User", user)
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
