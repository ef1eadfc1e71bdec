package app

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"pressdeck/api/internal/feeds"
	"pressdeck/api/internal/kv"
)

func newFeedTestServer(t *testing.T, urls map[string]string) *HTTPServer {
	t.Helper()
	s := miniredis.RunT(t)
	client, err := kv.New("redis://"+s.Addr(), "")
	if err != nil {
		t.Fatalf("failed to create kv client: %v", err)
	}
	t.Cleanup(func() { client.Close() })
	service := New(testConfig(), client, feeds.NewService(5*time.Second, urls), nil, nil)
	return NewHTTPServer(service)
}

func TestFeedPassthrough(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"ppm":421.3}`))
	}))
	defer upstream.Close()

	server := newFeedTestServer(t, map[string]string{feeds.CO2: upstream.URL})
	rec := doRequest(t, server, authedRequest(http.MethodGet, "/api/feeds/co2", ""))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if payload := decodeResponse(t, rec); payload["ppm"] != 421.3 {
		t.Errorf("feed body not passed through: %v", payload)
	}
}

func TestCampaignStatsRoute(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"opens":1200,"clicks":340}`))
	}))
	defer upstream.Close()

	server := newFeedTestServer(t, map[string]string{feeds.Campaigns: upstream.URL})
	rec := doRequest(t, server, authedRequest(http.MethodGet, "/api/stats/campaigns", ""))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if payload := decodeResponse(t, rec); payload["opens"] != float64(1200) {
		t.Errorf("unexpected payload: %v", payload)
	}
}

func TestFeedUpstreamFailureMapsTo502(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusServiceUnavailable)
	}))
	defer upstream.Close()

	server := newFeedTestServer(t, map[string]string{feeds.AirQuality: upstream.URL})
	rec := doRequest(t, server, authedRequest(http.MethodGet, "/api/feeds/air-quality", ""))
	if rec.Code != http.StatusBadGateway {
		t.Errorf("expected 502, got %d", rec.Code)
	}
}

func TestFeedUnconfiguredMapsTo503(t *testing.T) {
	server := newFeedTestServer(t, map[string]string{feeds.LakeLevel: ""})
	rec := doRequest(t, server, authedRequest(http.MethodGet, "/api/feeds/lake-level", ""))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", rec.Code)
	}
}

func TestFeedUnknownNameMapsTo404(t *testing.T) {
	server := newFeedTestServer(t, map[string]string{})
	rec := doRequest(t, server, authedRequest(http.MethodGet, "/api/feeds/stocks", ""))
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}

func TestFeedRoutesAreGated(t *testing.T) {
	server := newFeedTestServer(t, map[string]string{feeds.CO2: "http://example.invalid"})
	rec := doRequest(t, server, httptest.NewRequest(http.MethodGet, "/api/feeds/co2", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 without a cookie, got %d", rec.Code)
	}
}
