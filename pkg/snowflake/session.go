package snowflake

import (
	"context"
	"crypto/rsa"
	"database/sql"
	"fmt"

	"github.com/grpc-ecosystem/go-grpc-middleware/logging/zap/ctxzap"
	"github.com/snowflakedb/gosnowflake"
	"go.uber.org/zap"
)

const applicationName = "snowflake-list-tables"

// DriverConfig holds what the vendor driver needs for key-pair authentication.
type DriverConfig struct {
	Account    string
	User       string
	Role       string
	Warehouse  string
	Database   string
	Host       string
	PrivateKey *rsa.PrivateKey
}

// ToConfig builds the driver configuration. Role is left unset when empty so
// the user's default role applies.
func (c DriverConfig) ToConfig() *gosnowflake.Config {
	return &gosnowflake.Config{
		Account:       c.Account,
		User:          c.User,
		Role:          c.Role,
		Warehouse:     c.Warehouse,
		Database:      c.Database,
		Application:   applicationName,
		Authenticator: gosnowflake.AuthTypeJwt,
		PrivateKey:    c.PrivateKey,
		Host:          c.Host,
	}
}

// Session is a single driver connection.
type Session struct {
	db *sql.DB
}

func NewSession(db *sql.DB) *Session {
	return &Session{db: db}
}

// Open connects through the vendor driver and verifies the connection before
// returning. The handle is pinned to one connection.
func Open(ctx context.Context, c DriverConfig) (*Session, error) {
	l := ctxzap.Extract(ctx)

	db := sql.OpenDB(gosnowflake.NewConnector(gosnowflake.SnowflakeDriver{}, *c.ToConfig()))
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to connect to account %s: %w", c.Account, err)
	}

	l.Debug("connected", zap.String("account", c.Account), zap.String("user", c.User))

	return NewSession(db), nil
}

func (s *Session) Close() error {
	return s.db.Close()
}
