package kis

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"stock-autotrader/internal/api"
	"stock-autotrader/internal/logger"
	"stock-autotrader/internal/types"
)

// TokenLifetime is how long an issued access token is reused before a new one is requested.
const TokenLifetime = 24 * time.Hour

type cachedToken struct {
	AccessToken string `yaml:"access_token"`
	IssuedAt    string `yaml:"issued_at"`
}

// Session owns the access token and its issue time. Safe for concurrent use.
type Session struct {
	client    *api.Client
	appKey    string
	appSecret string
	cachePath string
	now       func() time.Time

	mu       sync.Mutex
	token    string
	issuedAt time.Time
}

// NewSession creates a session. cachePath may be empty to keep the token in memory only.
func NewSession(client *api.Client, appKey, appSecret, cachePath string) *Session {
	s := &Session{
		client:    client,
		appKey:    appKey,
		appSecret: appSecret,
		cachePath: cachePath,
		now:       time.Now,
	}
	s.loadCache()
	return s
}

// Token returns a valid access token, requesting a new one when forced or when the
// current one is older than TokenLifetime.
func (s *Session) Token(ctx context.Context, force bool) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !force && s.token != "" && s.now().Sub(s.issuedAt) < TokenLifetime {
		return s.token, nil
	}

	resp, err := s.client.POST(ctx, pathToken, tokenRequest{
		GrantType: "client_credentials",
		AppKey:    s.appKey,
		AppSecret: s.appSecret,
	})
	if err != nil {
		return "", fmt.Errorf("issue access token: %w", err)
	}
	var tr tokenResponse
	if err := resp.ParseJSON(&tr); err != nil {
		return "", err
	}
	if tr.AccessToken == "" {
		return "", fmt.Errorf("token endpoint returned no access_token (%s %s): %w", tr.ErrorCode, tr.ErrorDescription, types.ErrTransient)
	}

	s.token = tr.AccessToken
	s.issuedAt = s.now()
	logger.Info(ctx, "Issued new KIS access token", "expires_in", tr.ExpiresIn)
	s.saveCache(ctx)
	return s.token, nil
}

// IssuedAt reports when the current token was obtained.
func (s *Session) IssuedAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.issuedAt
}

func (s *Session) loadCache() {
	if s.cachePath == "" {
		return
	}
	b, err := os.ReadFile(s.cachePath)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			logger.Warn(context.Background(), "Cannot read token cache", "path", s.cachePath, "error", err)
		}
		return
	}
	var c cachedToken
	if err := yaml.Unmarshal(b, &c); err != nil {
		logger.Warn(context.Background(), "Ignoring malformed token cache", "path", s.cachePath, "error", err)
		return
	}
	issued, err := time.Parse(time.RFC3339, c.IssuedAt)
	if err != nil || c.AccessToken == "" {
		return
	}
	s.token = c.AccessToken
	s.issuedAt = issued
}

func (s *Session) saveCache(ctx context.Context) {
	if s.cachePath == "" {
		return
	}
	b, err := yaml.Marshal(cachedToken{AccessToken: s.token, IssuedAt: s.issuedAt.Format(time.RFC3339)})
	if err != nil {
		logger.Warn(ctx, "Cannot encode token cache", "error", err)
		return
	}
	if err := os.WriteFile(s.cachePath, b, 0o600); err != nil {
		logger.Warn(ctx, "Cannot write token cache", "path", s.cachePath, "error", err)
	}
}
