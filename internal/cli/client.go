// Package cli is the HTTP client side of the tup terminal game client.
package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"tradeup/internal/auth"
	"tradeup/internal/game"
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

type ProposeInput struct {
	Recipient       string `json:"recipient"`
	OfferResource   string `json:"offer_resource"`
	OfferQty        int64  `json:"offer_qty"`
	RequestResource string `json:"request_resource"`
	RequestQty      int64  `json:"request_qty"`
}

func (c *Client) Login(ctx context.Context, username, password string) (auth.Session, error) {
	var out auth.Session
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/auth/login", "", map[string]any{
		"username": username,
		"password": password,
	}, &out)
	return out, err
}

func (c *Client) Logout(ctx context.Context, token string) error {
	return c.jsonRequest(ctx, http.MethodPost, "/v1/auth/logout", token, nil, nil)
}

func (c *Client) Dashboard(ctx context.Context, token string) (game.Dashboard, error) {
	var out game.Dashboard
	err := c.jsonRequest(ctx, http.MethodGet, "/v1/dashboard", token, nil, &out)
	return out, err
}

func (c *Client) Collect(ctx context.Context, token string) (game.CollectResult, error) {
	var out game.CollectResult
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/actions/collect", token, nil, &out)
	return out, err
}

func (c *Client) Tasks(ctx context.Context, token string) ([]game.TaskView, error) {
	var out struct {
		Tasks []game.TaskView `json:"tasks"`
	}
	err := c.jsonRequest(ctx, http.MethodGet, "/v1/tasks", token, nil, &out)
	return out.Tasks, err
}

func (c *Client) SubmitTask(ctx context.Context, token string, taskID int64) (game.SubmitResult, error) {
	var out game.SubmitResult
	err := c.jsonRequest(ctx, http.MethodPost, fmt.Sprintf("/v1/tasks/%d/submit", taskID), token, nil, &out)
	return out, err
}

func (c *Client) IncomingTrades(ctx context.Context, token string) ([]game.TradeView, error) {
	var out struct {
		Trades []game.TradeView `json:"trades"`
	}
	err := c.jsonRequest(ctx, http.MethodGet, "/v1/trades/incoming", token, nil, &out)
	return out.Trades, err
}

func (c *Client) ProposeTrade(ctx context.Context, token string, in ProposeInput) (game.TradeView, error) {
	var out game.TradeView
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/trades", token, in, &out)
	return out, err
}

func (c *Client) AcceptTrade(ctx context.Context, token string, tradeID int64) (game.TradeView, error) {
	var out game.TradeView
	err := c.jsonRequest(ctx, http.MethodPost, fmt.Sprintf("/v1/trades/%d/accept", tradeID), token, nil, &out)
	return out, err
}

func (c *Client) RejectTrade(ctx context.Context, token string, tradeID int64) (game.RejectResult, error) {
	var out game.RejectResult
	err := c.jsonRequest(ctx, http.MethodPost, fmt.Sprintf("/v1/trades/%d/reject", tradeID), token, nil, &out)
	return out, err
}

func (c *Client) Leaderboard(ctx context.Context, token string) ([]game.LeaderboardRow, error) {
	var out struct {
		Rows []game.LeaderboardRow `json:"rows"`
	}
	err := c.jsonRequest(ctx, http.MethodGet, "/v1/leaderboard", token, nil, &out)
	return out.Rows, err
}

func (c *Client) jsonRequest(ctx context.Context, method, path, token string, body, out any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode >= 400 {
		var payload struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(raw, &payload) == nil && payload.Error != "" {
			return fmt.Errorf("%s", payload.Error)
		}
		return fmt.Errorf("%s %s: status %d", method, path, resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(raw, out)
}
