package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"mailtriage/pkg/config"
)

const tokenCacheKey = "graph:token"

// expiry skew so a token is never used right at its deadline
const tokenExpirySkew = 5 * time.Minute

// TokenProvider yields a bearer token for the provider API.
type TokenProvider interface {
	Token(ctx context.Context) (string, error)
}

// TokenSource acquires bearer tokens via the OAuth2 client credentials
// flow and caches them in Redis until shortly before expiry. Redis being
// down is fail-open: every call just pays for a fresh exchange.
type TokenSource struct {
	cfg        config.GraphConfig
	authURL    string
	httpClient *http.Client
	rdb        *redis.Client
	logger     *zap.Logger
}

func NewTokenSource(cfg config.GraphConfig, rdb *redis.Client, logger *zap.Logger) *TokenSource {
	return &TokenSource{
		cfg:     cfg,
		authURL: fmt.Sprintf("https://login.microsoftonline.com/%s/oauth2/v2.0/token", cfg.TenantID),
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		rdb:    rdb,
		logger: logger,
	}
}

// NewTokenSourceWithURL is used by tests to point at a fake identity
// provider.
func NewTokenSourceWithURL(cfg config.GraphConfig, authURL string, rdb *redis.Client, logger *zap.Logger) *TokenSource {
	ts := NewTokenSource(cfg, rdb, logger)
	ts.authURL = authURL
	return ts
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
}

// Token returns a valid bearer token, from cache when possible.
func (ts *TokenSource) Token(ctx context.Context) (string, error) {
	if ts.rdb != nil {
		cached, err := ts.rdb.Get(ctx, tokenCacheKey).Result()
		if err == nil && cached != "" {
			return cached, nil
		}
		if err != nil && err != redis.Nil {
			ts.logger.Warn("Token cache unavailable, fetching fresh token", zap.Error(err))
		}
	}

	form := url.Values{}
	form.Set("client_id", ts.cfg.ClientID)
	form.Set("client_secret", ts.cfg.ClientSecret)
	form.Set("scope", "https://graph.microsoft.com/.default")
	form.Set("grant_type", "client_credentials")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, ts.authURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := ts.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("token request failed: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return "", &AuthError{Status: resp.StatusCode, Body: string(body)}
	}

	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return "", fmt.Errorf("failed to decode token response: %w", err)
	}
	if tr.AccessToken == "" {
		return "", &AuthError{Status: resp.StatusCode, Body: "empty access_token"}
	}

	if ts.rdb != nil {
		ttl := cacheTTL(tr)
		if ttl > 0 {
			if err := ts.rdb.Set(ctx, tokenCacheKey, tr.AccessToken, ttl).Err(); err != nil {
				ts.logger.Warn("Failed to cache access token", zap.Error(err))
			}
		}
	}

	return tr.AccessToken, nil
}

// cacheTTL derives how long the token may be cached. Graph tokens are
// JWTs, so the exp claim is authoritative; the claim is read unverified
// because we are the party the token was issued to, not its audience
// validator. expires_in is the fallback for opaque tokens.
func cacheTTL(tr tokenResponse) time.Duration {
	parser := jwt.NewParser()
	claims := jwt.MapClaims{}
	if _, _, err := parser.ParseUnverified(tr.AccessToken, claims); err == nil {
		if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
			return time.Until(exp.Time) - tokenExpirySkew
		}
	}
	if tr.ExpiresIn > 0 {
		return time.Duration(tr.ExpiresIn)*time.Second - tokenExpirySkew
	}
	return 0
}
