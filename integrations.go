package integrations

import (
	"context"
	"net/http"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/Seann-Moser/integrations/integration"
	"github.com/Seann-Moser/integrations/lifecycle"
	"github.com/Seann-Moser/integrations/oauth/provider"
	"github.com/Seann-Moser/integrations/secrets"
	"github.com/Seann-Moser/integrations/tokens"
)

// Service wires the store, cipher, coordinator and lifecycle manager into one
// unit. Backend callers use Tokens for access tokens; the HTTP surface covers
// connect, disconnect and status.
type Service struct {
	Store     integration.Store
	Cipher    *secrets.Cipher
	Tokens    *tokens.Coordinator
	Lifecycle *lifecycle.Manager

	server *lifecycle.Server
}

// New builds a Service backed by MongoDB. Keys map key ids to base64-encoded
// 32 byte encryption keys; active names the key sealing new token material.
func New(ctx context.Context, db *mongo.Database, keys map[string]string, active string, sessionSecret []byte, providers ...provider.Config) (*Service, error) {
	rawKeys, err := secrets.ParseKeySet(keys)
	if err != nil {
		return nil, err
	}
	cipher, err := secrets.NewCipher(rawKeys, active)
	if err != nil {
		return nil, err
	}

	store := integration.NewMongoStore(db)
	if err := store.EnsureIndexes(ctx); err != nil {
		return nil, err
	}

	clients := make(map[string]provider.Client, len(providers))
	for _, cfg := range providers {
		clients[cfg.Name] = provider.NewHTTPClient(cfg)
	}

	manager := lifecycle.NewManager(store, cipher, clients)
	return &Service{
		Store:     store,
		Cipher:    cipher,
		Tokens:    tokens.NewCoordinator(store, cipher, clients),
		Lifecycle: manager,
		server:    lifecycle.NewServer(manager, sessionSecret),
	}, nil
}

// SetupRedis enables the cross-process refresh lease.
func (s *Service) SetupRedis(cmdable redis.Cmdable) {
	s.Tokens.SetupRedis(cmdable)
}

// RegisterRoutes attaches the lifecycle endpoints to mux.
func (s *Service) RegisterRoutes(mux *http.ServeMux) {
	s.server.RegisterRoutes(mux)
}

// AccessToken returns a usable access token for the user's integration,
// refreshing it first when needed.
func (s *Service) AccessToken(ctx context.Context, userID, providerName string) (string, error) {
	return s.Tokens.GetValidAccessToken(ctx, userID, providerName)
}
