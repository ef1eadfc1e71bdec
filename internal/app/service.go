package app

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"io"
	"net/http"

	"golang.org/x/crypto/bcrypt"

	"pressdeck/api/internal/ai"
	"pressdeck/api/internal/auth"
	"pressdeck/api/internal/config"
	"pressdeck/api/internal/draft"
	"pressdeck/api/internal/feeds"
	"pressdeck/api/internal/kv"
	"pressdeck/api/internal/media"
	"pressdeck/api/internal/preview"
)

// Service wires the stores and upstream clients behind the HTTP layer.
type Service struct {
	cfg      config.Config
	kv       kv.Client
	drafts   *draft.Store
	previews *preview.Store
	feeds    *feeds.Service
	ai       *ai.Service
	media    *media.Service
}

// New assembles the service. kvClient may be nil when the backend is
// unconfigured; draft and preview operations then report not-configured
// instead of crashing. aiSvc and mediaSvc may likewise be nil.
func New(cfg config.Config, kvClient kv.Client, feedsSvc *feeds.Service, aiSvc *ai.Service, mediaSvc *media.Service) *Service {
	return &Service{
		cfg:      cfg,
		kv:       kvClient,
		drafts:   draft.NewStore(kvClient),
		previews: preview.NewStore(kvClient),
		feeds:    feedsSvc,
		ai:       aiSvc,
		media:    mediaSvc,
	}
}

// Login checks the shared editor password and mints the credential token.
// A bcrypt hash wins over the plain password when both are configured; the
// plain comparison is constant-time.
func (s *Service) Login(password string) (string, error) {
	if s.cfg.SessionSecret == "" {
		return "", domainError(http.StatusServiceUnavailable, "NOT_CONFIGURED", "Login is not configured")
	}
	switch {
	case s.cfg.EditorPasswordHash != "":
		if bcrypt.CompareHashAndPassword([]byte(s.cfg.EditorPasswordHash), []byte(password)) != nil {
			return "", domainError(http.StatusUnauthorized, "INVALID_CREDENTIALS", "Invalid password")
		}
	case s.cfg.EditorPassword != "":
		if subtle.ConstantTimeCompare([]byte(password), []byte(s.cfg.EditorPassword)) != 1 {
			return "", domainError(http.StatusUnauthorized, "INVALID_CREDENTIALS", "Invalid password")
		}
	default:
		return "", domainError(http.StatusServiceUnavailable, "NOT_CONFIGURED", "Login is not configured")
	}
	return auth.Issue(s.cfg.SessionSecret), nil
}

// VerifyCredential reports whether token is the valid editor credential.
// An unconfigured secret rejects everything.
func (s *Service) VerifyCredential(token string) bool {
	return auth.Verify(token, s.cfg.SessionSecret)
}

// Ping checks backend reachability for the readiness probe.
func (s *Service) Ping(ctx context.Context) error {
	if s.kv == nil {
		return kv.ErrNotConfigured
	}
	return s.kv.Ping(ctx)
}

func (s *Service) GetDraft(ctx context.Context) (draft.Record, error) {
	return s.drafts.GetFull(ctx)
}

func (s *Service) GetDraftMeta(ctx context.Context) (draft.Meta, error) {
	return s.drafts.GetMeta(ctx)
}

func (s *Service) WriteDraft(ctx context.Context, state json.RawMessage, userID string) (draft.WriteResult, error) {
	return s.drafts.Write(ctx, state, userID)
}

func (s *Service) CreatePreview(ctx context.Context, html string) (string, error) {
	return s.previews.Create(ctx, html)
}

func (s *Service) FetchPreview(ctx context.Context, id string) (string, error) {
	return s.previews.Fetch(ctx, id)
}

func (s *Service) FetchFeed(ctx context.Context, name string) (json.RawMessage, error) {
	return s.feeds.Fetch(ctx, name)
}

func (s *Service) ParseText(ctx context.Context, text string) (json.RawMessage, error) {
	return s.ai.Parse(ctx, text)
}

func (s *Service) UploadMedia(ctx context.Context, filename, contentType string, body io.Reader) (media.Upload, error) {
	return s.media.Upload(ctx, filename, contentType, body)
}
