// Package remote provides the Supabase-backed remote session store:
// CRUD over PostgREST and a change feed over the Realtime websocket.
package remote

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

	"github.com/drawguess/backend/internal/errors"
	"github.com/drawguess/backend/internal/models"
	"github.com/drawguess/backend/internal/store"
)

const sessionsTable = "game_sessions"

// Config holds the Supabase connection settings.
type Config struct {
	// BaseURL is the project URL, e.g. https://abc.supabase.co.
	BaseURL string
	// AnonKey is sent as the apikey header on every request.
	AnonKey string
	// AccessToken is the bearer token of the signed-in user. Falls back
	// to AnonKey when empty.
	AccessToken string
}

// Client implements store.RemoteStore against Supabase.
type Client struct {
	config     Config
	httpClient *http.Client
}

// NewClient creates a remote store client.
func NewClient(config Config) (*Client, error) {
	if config.BaseURL == "" || config.AnonKey == "" {
		return nil, errors.New(errors.ErrSyncNotConfigured, "supabase URL and anon key are required")
	}
	return &Client{
		config: config,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:    10,
				IdleConnTimeout: 30 * time.Second,
			},
		},
	}, nil
}

var _ store.RemoteStore = (*Client)(nil)

// restURL builds a PostgREST endpoint URL with the given query values.
func (c *Client) restURL(table string, query url.Values) string {
	u := strings.TrimSuffix(c.config.BaseURL, "/") + "/rest/v1/" + table
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	return u
}

func (c *Client) newRequest(ctx context.Context, method, rawURL string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, rawURL, body)
	if err != nil {
		return nil, err
	}
	token := c.config.AccessToken
	if token == "" {
		token = c.config.AnonKey
	}
	req.Header.Set("apikey", c.config.AnonKey)
	req.Header.Set("Authorization", "Bearer "+token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

func (c *Client) do(req *http.Request) ([]byte, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrap(errors.ErrRemoteUnavailable, "request failed", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(errors.ErrRemoteUnavailable, "failed to read response", err)
	}
	if resp.StatusCode == http.StatusNotFound {
		return nil, errors.New(errors.ErrNotFound, "remote record not found")
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, errors.Newf(errors.ErrRemoteRejected, "remote returned %d: %s",
			resp.StatusCode, strings.TrimSpace(string(data)))
	}
	return data, nil
}

// List returns all remote sessions.
func (c *Client) List(ctx context.Context) ([]*models.GameSession, error) {
	q := url.Values{}
	q.Set("select", "*")
	q.Set("order", "updated_at.desc")

	req, err := c.newRequest(ctx, http.MethodGet, c.restURL(sessionsTable, q), nil)
	if err != nil {
		return nil, err
	}
	data, err := c.do(req)
	if err != nil {
		return nil, err
	}

	var sessions []*models.GameSession
	if err := json.Unmarshal(data, &sessions); err != nil {
		return nil, errors.Wrap(errors.ErrRemoteRejected, "failed to decode session list", err)
	}
	return sessions, nil
}

// Get returns the remote session with the given id.
func (c *Client) Get(ctx context.Context, id string) (*models.GameSession, error) {
	q := url.Values{}
	q.Set("select", "*")
	q.Set("id", "eq."+id)

	req, err := c.newRequest(ctx, http.MethodGet, c.restURL(sessionsTable, q), nil)
	if err != nil {
		return nil, err
	}
	data, err := c.do(req)
	if err != nil {
		return nil, err
	}

	var sessions []*models.GameSession
	if err := json.Unmarshal(data, &sessions); err != nil {
		return nil, errors.Wrap(errors.ErrRemoteRejected, "failed to decode session", err)
	}
	if len(sessions) == 0 {
		return nil, errors.Newf(errors.ErrNotFound, "session %s not found", id)
	}
	return sessions[0], nil
}

// Create inserts a session remotely. Existing rows with the same id are
// merged, so a retried push does not fail on a duplicate key.
func (c *Client) Create(ctx context.Context, session *models.GameSession) error {
	payload, err := json.Marshal(session)
	if err != nil {
		return errors.Wrap(errors.ErrInternal, "failed to encode session", err)
	}

	req, err := c.newRequest(ctx, http.MethodPost, c.restURL(sessionsTable, nil), bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Prefer", "resolution=merge-duplicates")

	_, err = c.do(req)
	return err
}

// Update replaces the remote session with the same id.
func (c *Client) Update(ctx context.Context, session *models.GameSession) error {
	payload, err := json.Marshal(session)
	if err != nil {
		return errors.Wrap(errors.ErrInternal, "failed to encode session", err)
	}

	q := url.Values{}
	q.Set("id", "eq."+session.ID.String())
	req, err := c.newRequest(ctx, http.MethodPatch, c.restURL(sessionsTable, q), bytes.NewReader(payload))
	if err != nil {
		return err
	}

	_, err = c.do(req)
	return err
}

// Delete removes the remote session with the given id.
func (c *Client) Delete(ctx context.Context, id string) error {
	q := url.Values{}
	q.Set("id", "eq."+id)
	req, err := c.newRequest(ctx, http.MethodDelete, c.restURL(sessionsTable, q), nil)
	if err != nil {
		return err
	}

	_, err = c.do(req)
	return err
}

// Upsert writes the session remotely whether or not it already exists.
func (c *Client) Upsert(ctx context.Context, session *models.GameSession) error {
	return c.Create(ctx, session)
}

func (c *Client) String() string {
	return fmt.Sprintf("supabase(%s)", c.config.BaseURL)
}
