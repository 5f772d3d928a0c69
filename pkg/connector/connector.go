package connector

import (
	"context"
	"crypto/rsa"
	"fmt"

	"github.com/conductorone/baton-sdk/pkg/uhttp"
	"github.com/grpc-ecosystem/go-grpc-middleware/logging/zap/ctxzap"
	"go.uber.org/zap"

	"github.com/conductorone/snowflake-list-tables/pkg/config"
	"github.com/conductorone/snowflake-list-tables/pkg/snowflake"
)

// Session lists tables over one open connection. Close must be called once
// the session is no longer needed.
type Session interface {
	ListTables(ctx context.Context, database, schemaLike string) ([]snowflake.Table, error)
	Close() error
}

var (
	_ Session = (*snowflake.Session)(nil)
	_ Session = (*snowflake.Client)(nil)
)

func wrapError(err error, message string) error {
	return fmt.Errorf("snowflake-connector: %s: %w", message, err)
}

// OpenFunc opens a session for cfg authenticated with key.
type OpenFunc func(ctx context.Context, cfg *config.Config, key *rsa.PrivateKey) (Session, error)

// Open picks the transport named by cfg.Connector.
func Open(ctx context.Context, cfg *config.Config, key *rsa.PrivateKey) (Session, error) {
	l := ctxzap.Extract(ctx)

	if fp, err := snowflake.PublicKeyFingerprint(key); err == nil {
		l.Debug("using key pair", zap.String("user", cfg.User), zap.String("public_key_fp", fp))
	}

	switch cfg.Connector {
	case config.ConnectorSQLAPI:
		return openSQLAPI(ctx, cfg, key)
	case config.ConnectorDriver, "":
		return openDriver(ctx, cfg, key)
	default:
		return nil, fmt.Errorf("snowflake-connector: unknown connector %q", cfg.Connector)
	}
}

func openDriver(ctx context.Context, cfg *config.Config, key *rsa.PrivateKey) (Session, error) {
	session, err := snowflake.Open(ctx, snowflake.DriverConfig{
		Account:    cfg.Account,
		User:       cfg.User,
		Role:       cfg.Role,
		Warehouse:  cfg.Warehouse,
		Database:   cfg.Database,
		Host:       cfg.Host,
		PrivateKey: key,
	})
	if err != nil {
		return nil, wrapError(err, "failed to open driver session")
	}

	return session, nil
}

func openSQLAPI(ctx context.Context, cfg *config.Config, key *rsa.PrivateKey) (Session, error) {
	jwtConfig := snowflake.JWTConfig{
		AccountIdentifier: cfg.Account,
		UserIdentifier:    cfg.User,
		PrivateKeyValue:   key,
	}
	token, err := jwtConfig.GenerateBearerToken()
	if err != nil {
		return nil, wrapError(err, "failed to generate bearer token")
	}

	httpClient, err := uhttp.NewBearerAuth(token).GetClient(ctx)
	if err != nil {
		return nil, wrapError(err, "failed to create http client")
	}

	client, err := snowflake.New(cfg.AccountUrl, jwtConfig, httpClient)
	if err != nil {
		return nil, wrapError(err, "failed to create sql api client")
	}

	return client.WithSession(cfg.Warehouse, cfg.Database, cfg.Role), nil
}
