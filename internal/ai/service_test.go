package ai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func newTestService(t *testing.T, handler http.HandlerFunc) *Service {
	t.Helper()
	upstream := httptest.NewServer(handler)
	t.Cleanup(upstream.Close)
	service := NewService("test-key", "test-model")
	service.baseURL = upstream.URL
	return service
}

func completionResponse(content string) []byte {
	payload := map[string]any{
		"choices": []map[string]any{
			{"message": map[string]string{"content": content}},
		},
	}
	body, _ := json.Marshal(payload)
	return body
}

func TestParseReturnsModelJSON(t *testing.T) {
	service := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("unexpected authorization header %q", got)
		}
		_, _ = w.Write(completionResponse(`[{"title":"Lake report","body":"Levels rising"}]`))
	})

	items, err := service.Parse(context.Background(), "Lake report. Levels rising.")
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if string(items) != `[{"title":"Lake report","body":"Levels rising"}]` {
		t.Errorf("unexpected items: %s", items)
	}
}

func TestParseStripsCodeFence(t *testing.T) {
	service := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(completionResponse("```json\n[{\"title\":\"x\",\"body\":\"y\"}]\n```"))
	})

	items, err := service.Parse(context.Background(), "x")
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if string(items) != `[{"title":"x","body":"y"}]` {
		t.Errorf("fence not stripped: %s", items)
	}
}

func TestParseUpstreamFailure(t *testing.T) {
	service := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"rate limited"}`, http.StatusTooManyRequests)
	})

	if _, err := service.Parse(context.Background(), "x"); err == nil {
		t.Error("expected error for upstream failure")
	}
}

func TestParseInvalidModelOutput(t *testing.T) {
	service := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(completionResponse("Sure! Here are the items you asked for."))
	})

	if _, err := service.Parse(context.Background(), "x"); err == nil {
		t.Error("expected error for non-JSON model output")
	}
}

func TestParseUnconfigured(t *testing.T) {
	var service *Service
	if _, err := service.Parse(context.Background(), "x"); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("expected ErrNotConfigured, got %v", err)
	}
	if NewService("", "model") != nil {
		t.Error("NewService with empty key should return nil")
	}
}
