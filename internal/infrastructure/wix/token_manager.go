package wix

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"wix-store-migrator/internal/domain"
	"wix-store-migrator/internal/ports"

	"github.com/rs/zerolog"
)

// tokenSafetyMargin is subtracted from the token lifetime before reuse
const tokenSafetyMargin = 5 * time.Minute

// TokenManager mints access tokens per store instance with the client
// credentials grant and caches them until shortly before expiry.
type TokenManager struct {
	client   *Client
	appID    string
	secret   string
	cache    ports.TokenCache
	logger   zerolog.Logger
	now      func() time.Time
	inflight sync.Map // instanceID -> *sync.Mutex
}

// NewTokenManager creates a new token manager. cache may be nil.
func NewTokenManager(client *Client, appID, appSecret string, cache ports.TokenCache, logger zerolog.Logger) *TokenManager {
	return &TokenManager{
		client: client,
		appID:  appID,
		secret: appSecret,
		cache:  cache,
		logger: logger,
		now:    time.Now,
	}
}

var _ ports.TokenProvider = (*TokenManager)(nil)

// GetAccessToken returns a cached token or mints a new one
func (tm *TokenManager) GetAccessToken(ctx context.Context, instanceID string) (string, error) {
	instanceID = strings.TrimSpace(instanceID)
	if instanceID == "" {
		return "", fmt.Errorf("%w: instance id is empty", domain.ErrTokenUnavailable)
	}
	if tm.appID == "" || tm.secret == "" {
		return "", fmt.Errorf("%w: app credentials are not configured", domain.ErrTokenUnavailable)
	}

	// one exchange per instance at a time
	muAny, _ := tm.inflight.LoadOrStore(instanceID, &sync.Mutex{})
	mu := muAny.(*sync.Mutex)
	mu.Lock()
	defer mu.Unlock()

	if tm.cache != nil {
		cached, err := tm.cache.Get(ctx, instanceID)
		if err != nil {
			tm.logger.Warn().Err(err).Str("instanceId", instanceID).Msg("Token cache read failed")
		} else if cached.Valid(tm.now(), tokenSafetyMargin) {
			return cached.Value, nil
		}
	}

	token, err := tm.exchange(ctx, instanceID)
	if err != nil {
		return "", err
	}

	if tm.cache != nil {
		if err := tm.cache.Set(ctx, instanceID, token); err != nil {
			tm.logger.Warn().Err(err).Str("instanceId", instanceID).Msg("Token cache write failed")
		}
	}
	return token.Value, nil
}

func (tm *TokenManager) exchange(ctx context.Context, instanceID string) (*domain.AccessToken, error) {
	body := map[string]any{
		"grant_type":    "client_credentials",
		"client_id":     tm.appID,
		"client_secret": tm.secret,
		"instance_id":   instanceID,
	}
	var resp struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	err := tm.client.do(ctx, "oauth.token", "", http.MethodPost, "/oauth2/token", body, &resp)
	if err != nil {
		var re *ports.RemoteError
		if errors.As(err, &re) && (re.Status == http.StatusBadRequest || re.Status == http.StatusUnauthorized || re.Status == http.StatusForbidden) {
			tm.logger.Warn().
				Int("status", re.Status).
				Str("instanceId", instanceID).
				Msg("Token exchange rejected")
			return nil, fmt.Errorf("%w: %s", domain.ErrTokenUnavailable, re.Body)
		}
		return nil, fmt.Errorf("failed to exchange token: %w", err)
	}
	if resp.AccessToken == "" {
		return nil, fmt.Errorf("%w: empty token in response", domain.ErrTokenUnavailable)
	}

	token := &domain.AccessToken{Value: resp.AccessToken}
	if resp.ExpiresIn > 0 {
		token.ExpiresAt = tm.now().Add(time.Duration(resp.ExpiresIn) * time.Second)
	}
	tm.logger.Debug().Str("instanceId", instanceID).Msg("Minted access token")
	return token, nil
}
