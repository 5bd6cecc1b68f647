// Package assets moves drawing images between the game and the remote
// object store: bounded-size uploads with retry, and cached public-URL
// resolution.
package assets

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/drawguess/backend/internal/errors"
)

// ObjectStore is the contract against the remote object storage.
type ObjectStore interface {
	// Upload writes data under path, overwriting any existing object.
	Upload(ctx context.Context, path string, data []byte, contentType string) error

	// PublicURL returns the public reference for path.
	PublicURL(path string) string

	// List returns the object names under prefix.
	List(ctx context.Context, prefix string) ([]string, error)

	// Remove deletes the object at path.
	Remove(ctx context.Context, path string) error
}

// StorageConfig holds the Supabase Storage connection settings.
type StorageConfig struct {
	BaseURL     string
	AnonKey     string
	AccessToken string
	Bucket      string
}

// StorageClient implements ObjectStore against the Supabase Storage API.
type StorageClient struct {
	config     StorageConfig
	httpClient *http.Client
}

// NewStorageClient creates a storage client.
func NewStorageClient(config StorageConfig) (*StorageClient, error) {
	if config.BaseURL == "" || config.AnonKey == "" {
		return nil, errors.New(errors.ErrSyncNotConfigured, "storage URL and anon key are required")
	}
	if config.Bucket == "" {
		return nil, errors.New(errors.ErrSyncNotConfigured, "storage bucket is required")
	}
	return &StorageClient{
		config: config,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
	}, nil
}

var _ ObjectStore = (*StorageClient)(nil)

func (c *StorageClient) baseURL() string {
	return strings.TrimSuffix(c.config.BaseURL, "/")
}

func (c *StorageClient) authorize(req *http.Request) {
	token := c.config.AccessToken
	if token == "" {
		token = c.config.AnonKey
	}
	req.Header.Set("apikey", c.config.AnonKey)
	req.Header.Set("Authorization", "Bearer "+token)
}

// Upload writes data under path in the configured bucket.
func (c *StorageClient) Upload(ctx context.Context, path string, data []byte, contentType string) error {
	u := fmt.Sprintf("%s/storage/v1/object/%s/%s", c.baseURL(), c.config.Bucket, path)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(data))
	if err != nil {
		return err
	}
	c.authorize(req)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("x-upsert", "true")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.Wrap(errors.ErrUploadFailed, "upload request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(resp.Body)
		return errors.Newf(errors.ErrUploadFailed, "upload returned %d: %s",
			resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return nil
}

// PublicURL returns the public reference for path.
func (c *StorageClient) PublicURL(path string) string {
	return fmt.Sprintf("%s/storage/v1/object/public/%s/%s", c.baseURL(), c.config.Bucket, path)
}

// List returns object names under prefix, newest first.
func (c *StorageClient) List(ctx context.Context, prefix string) ([]string, error) {
	u := fmt.Sprintf("%s/storage/v1/object/list/%s", c.baseURL(), c.config.Bucket)
	payload, err := json.Marshal(map[string]interface{}{
		"prefix": prefix,
		"limit":  100,
		"sortBy": map[string]string{"column": "created_at", "order": "desc"},
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	c.authorize(req)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrap(errors.ErrRemoteUnavailable, "list request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, errors.Newf(errors.ErrRemoteRejected, "list returned %d: %s",
			resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var objects []struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&objects); err != nil {
		return nil, errors.Wrap(errors.ErrRemoteRejected, "failed to decode object list", err)
	}

	names := make([]string, 0, len(objects))
	for _, o := range objects {
		names = append(names, o.Name)
	}
	return names, nil
}

// Remove deletes the object at path.
func (c *StorageClient) Remove(ctx context.Context, path string) error {
	u := fmt.Sprintf("%s/storage/v1/object/%s/%s", c.baseURL(), c.config.Bucket, path)
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, u, nil)
	if err != nil {
		return err
	}
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.Wrap(errors.ErrRemoteUnavailable, "remove request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNotFound {
		body, _ := io.ReadAll(resp.Body)
		return errors.Newf(errors.ErrRemoteRejected, "remove returned %d: %s",
			resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return nil
}
