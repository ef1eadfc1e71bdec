// Package media forwards image uploads to the WordPress media library so
// the newsletter can reference hosted assets. Pure pass-through: the file
// body is streamed to the CMS and its response mapped back.
package media

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const httpTimeout = 30 * time.Second

// ErrNotConfigured is reported when WordPress credentials are absent.
var ErrNotConfigured = errors.New("media upload not configured")

// Upload is the slice of the WordPress media response the dashboard uses.
type Upload struct {
	ID        int64  `json:"id"`
	SourceURL string `json:"sourceURL"`
}

// Service uploads files to the WordPress REST media endpoint with
// application-password basic auth.
type Service struct {
	client      *http.Client
	baseURL     string
	user        string
	appPassword string
}

// NewService returns an upload service, or nil when any credential is
// missing (the route then reports not-configured).
func NewService(baseURL, user, appPassword string) *Service {
	if baseURL == "" || user == "" || appPassword == "" {
		return nil
	}
	return &Service{
		client:      &http.Client{Timeout: httpTimeout},
		baseURL:     strings.TrimRight(baseURL, "/"),
		user:        user,
		appPassword: appPassword,
	}
}

// Upload streams body to the media library and returns the stored
// attachment's id and public URL.
func (s *Service) Upload(ctx context.Context, filename, contentType string, body io.Reader) (Upload, error) {
	if s == nil {
		return Upload{}, ErrNotConfigured
	}
	if filename == "" {
		return Upload{}, errors.New("filename is required")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/wp-json/wp/v2/media", body)
	if err != nil {
		return Upload{}, fmt.Errorf("media upload: build request: %w", err)
	}
	req.SetBasicAuth(s.user, s.appPassword)
	req.Header.Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return Upload{}, fmt.Errorf("media upload: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Upload{}, fmt.Errorf("media upload: read response: %w", err)
	}
	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		return Upload{}, fmt.Errorf("media upload: upstream returned %d", resp.StatusCode)
	}

	var result struct {
		ID        int64  `json:"id"`
		SourceURL string `json:"source_url"`
	}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return Upload{}, fmt.Errorf("media upload: decode response: %w", err)
	}
	return Upload{ID: result.ID, SourceURL: result.SourceURL}, nil
}
