// Package feeds proxies the third-party JSON feeds the dashboard displays
// (campaign stats and environmental/civic data). The service is pass-through
// glue: it fetches, checks the upstream status and hands the body back
// without interpreting it.
package feeds

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Feed names routed by the HTTP layer.
const (
	Campaigns  = "campaigns"
	AirQuality = "air-quality"
	CO2        = "co2"
	LakeLevel  = "lake-level"
	Meetings   = "meetings"
)

// ErrNotConfigured is reported for feeds with no upstream URL set.
var ErrNotConfigured = errors.New("feed not configured")

// ErrUnknownFeed is reported for names the service does not know.
var ErrUnknownFeed = errors.New("unknown feed")

// UpstreamError carries a non-2xx upstream response status.
type UpstreamError struct {
	Feed   string
	Status int
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("feed %s: upstream returned %d", e.Feed, e.Status)
}

// Service fetches configured upstream feeds with a shared timeout client.
type Service struct {
	client *http.Client
	urls   map[string]string
}

// NewService builds a feed service from a name-to-URL map. Feeds with an
// empty URL stay registered but report ErrNotConfigured when fetched.
func NewService(timeout time.Duration, urls map[string]string) *Service {
	return &Service{
		client: &http.Client{Timeout: timeout},
		urls:   urls,
	}
}

// Fetch retrieves the named feed and returns its JSON body verbatim. One
// attempt per call; retry is a caller concern.
func (s *Service) Fetch(ctx context.Context, name string) (json.RawMessage, error) {
	url, known := s.urls[name]
	if !known {
		return nil, ErrUnknownFeed
	}
	if url == "" {
		return nil, fmt.Errorf("feed %s: %w", name, ErrNotConfigured)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("feed %s: build request: %w", name, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("feed %s: %w", name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &UpstreamError{Feed: name, Status: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("feed %s: read body: %w", name, err)
	}
	if !json.Valid(body) {
		return nil, fmt.Errorf("feed %s: upstream returned invalid JSON", name)
	}
	return json.RawMessage(body), nil
}
