package tokens

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Seann-Moser/integrations/integration"
	"github.com/Seann-Moser/integrations/oauth/provider"
	"github.com/Seann-Moser/integrations/secrets"
)

const (
	// DefaultFreshnessMargin is how long before expiry a token stops
	// counting as fresh. It absorbs clock skew and downstream call time.
	DefaultFreshnessMargin = 2 * time.Minute
	// DefaultRefreshTimeout bounds a single refresh attempt, including the
	// provider round trip and the persistence write.
	DefaultRefreshTimeout = 15 * time.Second

	remotePollInterval = 200 * time.Millisecond
)

// flight is one in-progress refresh. Waiters block on done and then read
// token/err; both are written exactly once before done is closed.
type flight struct {
	done  chan struct{}
	token string
	err   error
}

// Coordinator hands out usable access tokens, refreshing expired ones with at
// most one refresh in flight per (user, provider) inside this process. An
// optional redis lease extends the guarantee across processes.
type Coordinator struct {
	store   integration.Store
	cipher  *secrets.Cipher
	clients map[string]provider.Client

	margin         time.Duration
	refreshTimeout time.Duration

	redis redis.Cmdable

	mu       sync.Mutex
	inflight map[string]*flight
}

// NewCoordinator builds a coordinator over the given store, cipher and
// provider clients (keyed by provider name).
func NewCoordinator(store integration.Store, cipher *secrets.Cipher, clients map[string]provider.Client) *Coordinator {
	return &Coordinator{
		store:          store,
		cipher:         cipher,
		clients:        clients,
		margin:         DefaultFreshnessMargin,
		refreshTimeout: DefaultRefreshTimeout,
		inflight:       map[string]*flight{},
	}
}

// SetupRedis enables the cross-process refresh lease. Without it the
// single-flight guarantee holds per process only.
func (c *Coordinator) SetupRedis(client redis.Cmdable) {
	c.redis = client
}

// GetValidAccessToken returns a decrypted access token valid for at least the
// freshness margin, refreshing it first if needed. Callers never trigger more
// than one concurrent refresh per (user, provider).
func (c *Coordinator) GetValidAccessToken(ctx context.Context, userID, providerName string) (string, error) {
	rec, err := c.store.Get(ctx, userID, providerName)
	if err != nil {
		if errors.Is(err, integration.ErrNotFound) {
			return "", integration.ErrNotConnected
		}
		return "", err
	}
	switch rec.Status {
	case integration.StatusDisconnected:
		return "", integration.ErrNotConnected
	case integration.StatusError:
		return "", integration.ErrReauthRequired
	}
	if c.fresh(rec) {
		return c.decryptAccess(rec)
	}
	return c.join(ctx, userID, providerName)
}

// decryptAccess returns the stored access token. An unreadable ciphertext is
// terminal for the record, so it is marked errored before the failure
// surfaces.
func (c *Coordinator) decryptAccess(rec *integration.Record) (string, error) {
	token, err := c.cipher.Decrypt(rec.AccessTokenCiphertext)
	if err != nil {
		c.markError(rec.UserID, rec.Provider, "stored access token unreadable")
		return "", err
	}
	return token, nil
}

func (c *Coordinator) fresh(rec *integration.Record) bool {
	if rec.TokenExpiresAt.IsZero() {
		return false
	}
	return time.Until(rec.TokenExpiresAt) > c.margin
}

// join attaches the caller to the in-flight refresh for this key, starting
// one if none exists. The refresh itself runs detached from the caller's
// context so one caller's cancellation cannot abort a shared refresh.
func (c *Coordinator) join(ctx context.Context, userID, providerName string) (string, error) {
	key := userID + "/" + providerName

	c.mu.Lock()
	f, ok := c.inflight[key]
	if !ok {
		f = &flight{done: make(chan struct{})}
		c.inflight[key] = f
		go c.run(key, f, userID, providerName)
	}
	c.mu.Unlock()

	safety := time.NewTimer(c.refreshTimeout + time.Second)
	defer safety.Stop()
	select {
	case <-f.done:
		return f.token, f.err
	case <-ctx.Done():
		return "", ctx.Err()
	case <-safety.C:
		return "", integration.ErrTemporarilyUnavailable
	}
}

func (c *Coordinator) run(key string, f *flight, userID, providerName string) {
	ctx, cancel := context.WithTimeout(context.Background(), c.refreshTimeout)
	defer cancel()

	f.token, f.err = c.refresh(ctx, userID, providerName)

	c.mu.Lock()
	delete(c.inflight, key)
	c.mu.Unlock()
	close(f.done)
}

// refresh re-reads the record, exchanges the refresh token and persists the
// result. It is the only path that writes token material after connect.
func (c *Coordinator) refresh(ctx context.Context, userID, providerName string) (string, error) {
	if c.redis != nil {
		acquired, err := c.acquireLease(ctx, userID, providerName)
		if err != nil {
			slog.Warn("refresh lease unavailable, proceeding locally", "user_id", userID, "provider", providerName, "err", err)
		} else if !acquired {
			return c.awaitRemoteRefresh(ctx, userID, providerName)
		} else {
			defer c.releaseLease(userID, providerName)
		}
	}

	// Re-read: another caller (or process) may have finished a refresh
	// between the staleness check and here.
	rec, err := c.store.Get(ctx, userID, providerName)
	if err != nil {
		if errors.Is(err, integration.ErrNotFound) {
			return "", integration.ErrNotConnected
		}
		return "", err
	}
	switch rec.Status {
	case integration.StatusDisconnected:
		return "", integration.ErrNotConnected
	case integration.StatusError:
		return "", integration.ErrReauthRequired
	}
	if c.fresh(rec) {
		return c.decryptAccess(rec)
	}

	if rec.RefreshTokenCiphertext == "" {
		c.markError(userID, providerName, "no refresh token on record")
		return "", integration.ErrCannotRefresh
	}
	refreshToken, err := c.cipher.Decrypt(rec.RefreshTokenCiphertext)
	if err != nil {
		c.markError(userID, providerName, "stored refresh token unreadable")
		return "", err
	}

	client, ok := c.clients[providerName]
	if !ok {
		return "", fmt.Errorf("no client registered for provider %s", providerName)
	}
	grant, err := client.Refresh(ctx, refreshToken)
	if err != nil {
		return "", c.handleRefreshFailure(userID, providerName, err)
	}
	return c.persist(ctx, rec, grant)
}

func (c *Coordinator) handleRefreshFailure(userID, providerName string, err error) error {
	var perr *provider.Error
	if !errors.As(err, &perr) {
		return err
	}
	switch perr.Kind {
	case provider.KindInvalidGrant:
		slog.Info("refresh token rejected by provider", "user_id", userID, "provider", providerName, "code", perr.Code)
		c.markError(userID, providerName, "refresh token rejected by provider")
		return integration.ErrReauthRequired
	case provider.KindTransient:
		slog.Warn("provider temporarily unavailable", "user_id", userID, "provider", providerName, "err", err)
		return integration.ErrTemporarilyUnavailable
	default:
		// Misconfigured: our registration is broken, not the user's grant.
		// The record stays connected so refresh works once it's fixed.
		slog.Error("provider client misconfigured", "user_id", userID, "provider", providerName, "err", err)
		return err
	}
}

// persist writes the refreshed grant under the version the refresh started
// from. A conflict means someone else persisted first; their result wins.
func (c *Coordinator) persist(ctx context.Context, rec *integration.Record, grant *provider.Grant) (string, error) {
	upd := integration.TokenUpdate{ExpiresAt: grant.ExpiresAt.UTC()}
	ct, err := c.cipher.Encrypt(grant.AccessToken)
	if err != nil {
		return "", err
	}
	upd.AccessTokenCiphertext = ct
	if grant.RefreshToken != "" {
		rct, err := c.cipher.Encrypt(grant.RefreshToken)
		if err != nil {
			return "", err
		}
		upd.RefreshTokenCiphertext = rct
	}

	version := rec.UpdatedAt
	for attempt := 0; attempt < 2; attempt++ {
		_, err := c.store.UpdateTokens(ctx, rec.UserID, rec.Provider, version, upd)
		if err == nil {
			return grant.AccessToken, nil
		}
		if !errors.Is(err, integration.ErrConflict) {
			return "", err
		}
		current, gerr := c.store.Get(ctx, rec.UserID, rec.Provider)
		if gerr != nil {
			return "", gerr
		}
		switch current.Status {
		case integration.StatusDisconnected:
			return "", integration.ErrNotConnected
		case integration.StatusError:
			return "", integration.ErrReauthRequired
		}
		if c.fresh(current) {
			// The competing write already stored a usable token.
			return c.decryptAccess(current)
		}
		version = current.UpdatedAt
	}
	return "", integration.ErrTemporarilyUnavailable
}

// markError is best effort; the refresh outcome is already decided.
func (c *Coordinator) markError(userID, providerName, reason string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.store.MarkError(ctx, userID, providerName, reason); err != nil {
		slog.Warn("failed to mark integration errored", "user_id", userID, "provider", providerName, "err", err)
	}
}

func leaseKey(userID, providerName string) string {
	return "integrations:refresh:" + userID + ":" + providerName
}

func (c *Coordinator) acquireLease(ctx context.Context, userID, providerName string) (bool, error) {
	return c.redis.SetNX(ctx, leaseKey(userID, providerName), "1", c.refreshTimeout).Result()
}

func (c *Coordinator) releaseLease(userID, providerName string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.redis.Del(ctx, leaseKey(userID, providerName)).Err(); err != nil {
		slog.Warn("failed to release refresh lease", "user_id", userID, "provider", providerName, "err", err)
	}
}

// awaitRemoteRefresh polls the store while another process holds the lease.
func (c *Coordinator) awaitRemoteRefresh(ctx context.Context, userID, providerName string) (string, error) {
	ticker := time.NewTicker(remotePollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return "", integration.ErrTemporarilyUnavailable
		case <-ticker.C:
			rec, err := c.store.Get(ctx, userID, providerName)
			if err != nil {
				if errors.Is(err, integration.ErrNotFound) {
					return "", integration.ErrNotConnected
				}
				return "", err
			}
			switch rec.Status {
			case integration.StatusDisconnected:
				return "", integration.ErrNotConnected
			case integration.StatusError:
				return "", integration.ErrReauthRequired
			}
			if c.fresh(rec) {
				return c.decryptAccess(rec)
			}
		}
	}
}
