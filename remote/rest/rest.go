/*
Package rest is a reconcile.Remote over a PostgREST-style HTTP API.

PROTOCOL:
  Fetch:  GET  /rest/v1/<table>?user_id=eq.<id>&select=user_id,data,updated_at
          -> JSON array with zero or one row
  Upsert: POST /rest/v1/<table>?on_conflict=user_id
          Prefer: resolution=merge-duplicates
          body: {"user_id", "data", "updated_at"}

  Every request carries the project key as the apikey header and a bearer
  token (the session's access token when one is set, else the key).

SEE ALSO:
  - reconcile/reconciler.go: Remote contract and sync policy
  - remote/postgres: Direct database implementation
*/
package rest

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/warp/rent-ledger/billing"
	"github.com/warp/rent-ledger/reconcile"
)

// DefaultTable is the backup table name.
const DefaultTable = "landlord_backup"

// Config configures the client.
type Config struct {
	BaseURL    string
	APIKey     string
	Table      string
	Timeout    time.Duration
	RetryCount int
}

// Client implements reconcile.Remote.
type Client struct {
	httpClient *resty.Client
	table      string
	apiKey     string
	logger     *zap.Logger

	mu          sync.RWMutex
	accessToken string
}

// wireRow is the row as the API sends it. Data stays raw so null and []
// can be told apart.
type wireRow struct {
	UserID    string          `json:"user_id"`
	Data      json.RawMessage `json:"data"`
	UpdatedAt string          `json:"updated_at,omitempty"`
}

type upsertBody struct {
	UserID    string         `json:"user_id"`
	Data      []billing.Room `json:"data"`
	UpdatedAt string         `json:"updated_at"`
}

// New creates a client.
func New(cfg Config, logger *zap.Logger) *Client {
	if cfg.Table == "" {
		cfg.Table = DefaultTable
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 15 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	client := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(cfg.Timeout).
		SetRetryCount(cfg.RetryCount).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(3 * time.Second).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json").
		SetHeader("apikey", cfg.APIKey)

	return &Client{
		httpClient: client,
		table:      cfg.Table,
		apiKey:     cfg.APIKey,
		logger:     logger,
	}
}

// SetAccessToken sets the bearer token of the signed-in user. Empty falls
// back to the API key.
func (c *Client) SetAccessToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.accessToken = token
}

func (c *Client) bearer() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.accessToken != "" {
		return c.accessToken
	}
	return c.apiKey
}

func (c *Client) path() string {
	return "/rest/v1/" + c.table
}

// Fetch returns the user's row, or (nil, nil) when there is none.
func (c *Client) Fetch(ctx context.Context, userID string) (*reconcile.Row, error) {
	var rows []wireRow
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetAuthToken(c.bearer()).
		SetQueryParams(map[string]string{
			"user_id": "eq." + userID,
			"select":  "user_id,data,updated_at",
		}).
		SetResult(&rows).
		Get(c.path())
	if err != nil {
		return nil, fmt.Errorf("fetch backup: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("fetch backup: status %d: %s", resp.StatusCode(), resp.String())
	}
	if len(rows) == 0 {
		return nil, nil
	}

	data, err := reconcile.DecodeData(rows[0].Data)
	if err != nil {
		return nil, fmt.Errorf("fetch backup: %w", err)
	}
	row := &reconcile.Row{UserID: rows[0].UserID, Data: data}
	if t, err := time.Parse(time.RFC3339Nano, rows[0].UpdatedAt); err == nil {
		row.UpdatedAt = t
	}

	c.logger.Debug("fetched backup",
		zap.String("user_id", userID),
		zap.Bool("has_data", data != nil),
		zap.Int("rooms", len(data)),
	)
	return row, nil
}

// Upsert replaces the user's row.
func (c *Client) Upsert(ctx context.Context, row reconcile.Row) error {
	data := row.Data
	if data == nil {
		data = []billing.Room{}
	}
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetAuthToken(c.bearer()).
		SetHeader("Prefer", "resolution=merge-duplicates,return=minimal").
		SetQueryParam("on_conflict", "user_id").
		SetBody(upsertBody{
			UserID:    row.UserID,
			Data:      data,
			UpdatedAt: row.UpdatedAt.UTC().Format(time.RFC3339Nano),
		}).
		Post(c.path())
	if err != nil {
		return fmt.Errorf("upsert backup: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("upsert backup: status %d: %s", resp.StatusCode(), resp.String())
	}
	return nil
}
