package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"pressdeck/api/internal/ai"
	"pressdeck/api/internal/app"
	"pressdeck/api/internal/config"
	"pressdeck/api/internal/feeds"
	"pressdeck/api/internal/kv"
	"pressdeck/api/internal/media"
	"pressdeck/api/internal/metrics"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}

	var kvClient kv.Client
	if cfg.KVConfigured() {
		kvClient, err = kv.New(cfg.KVURL, cfg.KVToken)
		if err != nil {
			log.Fatalf("kv client failed: %v", err)
		}
		defer kvClient.Close()
	} else {
		log.Printf("WARNING: key-value backend not configured; draft and preview routes will report unavailable")
	}

	feedService := feeds.NewService(cfg.FeedTimeout, map[string]string{
		feeds.Campaigns:  cfg.CampaignStatsURL,
		feeds.AirQuality: cfg.AirQualityURL,
		feeds.CO2:        cfg.CO2URL,
		feeds.LakeLevel:  cfg.LakeLevelURL,
		feeds.Meetings:   cfg.MeetingsURL,
	})
	aiService := ai.NewService(cfg.OpenAIKey, cfg.OpenAIModel)
	mediaService := media.NewService(cfg.WordPressURL, cfg.WordPressUser, cfg.WordPressAppPassword)

	service := app.New(cfg, kvClient, feedService, aiService, mediaService)
	httpServer := app.NewHTTPServer(service)

	registry := prometheus.NewRegistry()
	metrics.RegisterCollectors(registry)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	mux.Handle("/", httpServer.Handler())

	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Printf("Pressdeck API listening on %s", cfg.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server failed: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
}
