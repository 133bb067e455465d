// Package pesapal implements the domain.Gateway interface against the
// Pesapal v3 API: bearer token acquisition, IPN registration, order
// submission and transaction status queries.
package pesapal

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Brymax254/safari-payments/internal/domain"
	"github.com/Brymax254/safari-payments/internal/platform/retry"
	"github.com/Brymax254/safari-payments/internal/tokencache"
)

const (
	// tokenSafetyMargin keeps us from using a token that expires mid-request.
	tokenSafetyMargin = 60 * time.Second

	// defaultTokenTTL applies when the provider response carries no expiry.
	defaultTokenTTL = time.Hour
)

// TokenSource acquires and caches the short-lived Pesapal bearer token.
//
// Concurrent callers during a refresh may each issue their own token request;
// the provider tolerates duplicate auth calls and the store replaces the
// credential wholesale, so every caller ends up with a valid token either way.
type TokenSource struct {
	httpClient     *http.Client
	baseURL        string
	consumerKey    string
	consumerSecret string
	store          tokencache.Store
	policy         retry.Policy
	logger         *zap.Logger
	now            func() time.Time
}

// NewTokenSource creates a TokenSource backed by the given credential store.
func NewTokenSource(cfg Config, store tokencache.Store, logger *zap.Logger) *TokenSource {
	return &TokenSource{
		httpClient:     &http.Client{Timeout: cfg.timeout()},
		baseURL:        strings.TrimRight(cfg.BaseURL, "/"),
		consumerKey:    cfg.ConsumerKey,
		consumerSecret: cfg.ConsumerSecret,
		store:          store,
		policy:         retry.DefaultPolicy,
		logger:         logger,
		now:            time.Now,
	}
}

// tokenResponse tolerates the field-name variants Pesapal has used over time.
type tokenResponse struct {
	Token       string `json:"token"`
	AccessToken string `json:"access_token"`
	ExpiryDate  string `json:"expiryDate"`
	Expiry      string `json:"expiry"`
	ExpiresIn   int64  `json:"expires_in"`
	Error       any    `json:"error"`
}

func (r tokenResponse) token() string {
	if r.Token != "" {
		return r.Token
	}
	return r.AccessToken
}

func (r tokenResponse) ttl(now time.Time) time.Duration {
	for _, raw := range []string{r.ExpiryDate, r.Expiry} {
		if raw == "" {
			continue
		}
		if exp, err := time.Parse(time.RFC3339, raw); err == nil && exp.After(now) {
			return exp.Sub(now)
		}
	}
	if r.ExpiresIn > 0 {
		return time.Duration(r.ExpiresIn) * time.Second
	}
	return defaultTokenTTL
}

// Token returns a valid bearer token, reusing the cached credential while it
// is unexpired. forceRefresh bypasses the cache entirely.
func (s *TokenSource) Token(ctx context.Context, forceRefresh bool) (string, error) {
	if !forceRefresh {
		cred, ok, err := s.store.Get(ctx)
		if err != nil {
			s.logger.Warn("credential store read failed, requesting fresh token", zap.Error(err))
		} else if ok && cred.Valid(s.now(), tokenSafetyMargin) {
			return cred.Token, nil
		}
	}

	cred, err := s.requestToken(ctx)
	if err != nil {
		return "", err
	}

	// Atomic replace of the shared cache entry.
	if err := s.store.Set(ctx, cred); err != nil {
		s.logger.Warn("failed to cache credential", zap.Error(err))
	}
	return cred.Token, nil
}

// Invalidate drops the cached credential so the next caller fetches a new one.
func (s *TokenSource) Invalidate(ctx context.Context) error {
	return s.store.Invalidate(ctx)
}

func (s *TokenSource) requestToken(ctx context.Context) (tokencache.Credential, error) {
	var cred tokencache.Credential

	err := s.policy.Do(ctx, func(ctx context.Context) error {
		payload := map[string]string{
			"consumer_key":    s.consumerKey,
			"consumer_secret": s.consumerSecret,
		}
		body, err := json.Marshal(payload)
		if err != nil {
			return retry.Permanent(err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost,
			s.baseURL+"/api/Auth/RequestToken", bytes.NewReader(body))
		if err != nil {
			return retry.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/json")

		resp, err := s.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("token request failed: %w", err)
		}
		defer resp.Body.Close()

		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		if resp.StatusCode >= 500 {
			return fmt.Errorf("token request returned status %d", resp.StatusCode)
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			// Rejected credentials do not get better with retries.
			return retry.Permanent(domain.NewPaymentError(domain.ErrAuth,
				fmt.Sprintf("token request rejected with status %d", resp.StatusCode),
				"AUTH_REJECTED"))
		}

		var tr tokenResponse
		if err := json.Unmarshal(raw, &tr); err != nil {
			return retry.Permanent(domain.NewPaymentError(domain.ErrAuth,
				"malformed token response", "AUTH_MALFORMED"))
		}
		if tr.token() == "" {
			return retry.Permanent(domain.NewPaymentError(domain.ErrAuth,
				"token response missing token field", "AUTH_MALFORMED"))
		}

		now := s.now()
		cred = tokencache.Credential{
			Token:     tr.token(),
			IssuedAt:  now,
			ExpiresAt: now.Add(tr.ttl(now)),
		}
		return nil
	})
	if err != nil {
		var perr *domain.PaymentError
		if !errors.As(err, &perr) {
			err = domain.NewPaymentError(domain.ErrAuth, err.Error(), "AUTH_UNREACHABLE")
		}
		return tokencache.Credential{}, err
	}
	return cred, nil
}
