// Package export runs the list-and-export pipeline: load the key, open one
// session, list tables, print them and write the CSV.
package export

import (
	"context"
	"fmt"
	"io"

	"github.com/grpc-ecosystem/go-grpc-middleware/logging/zap/ctxzap"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/conductorone/snowflake-list-tables/pkg/config"
	"github.com/conductorone/snowflake-list-tables/pkg/connector"
	"github.com/conductorone/snowflake-list-tables/pkg/report"
	"github.com/conductorone/snowflake-list-tables/pkg/snowflake"
)

type Exporter struct {
	Config *config.Config
	Open   connector.OpenFunc
	Stdout io.Writer
}

func New(cfg *config.Config, stdout io.Writer) *Exporter {
	return &Exporter{
		Config: cfg,
		Open:   connector.Open,
		Stdout: stdout,
	}
}

// Run executes the pipeline once. After the session opens it is closed exactly
// once on every return path, and a close error is merged into the result.
func (e *Exporter) Run(ctx context.Context) (err error) {
	l := ctxzap.Extract(ctx)
	cfg := e.Config

	key, err := snowflake.ReadPrivateKey(cfg.PrivateKeyPath)
	if err != nil {
		return err
	}

	if err := report.Connecting(e.Stdout, cfg.Account, cfg.User, cfg.RoleOrDefault(), cfg.Warehouse, cfg.Database, cfg.SchemaLike); err != nil {
		return err
	}

	session, err := e.Open(ctx, cfg, key)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := session.Close(); closeErr != nil {
			l.Warn("failed to close session", zap.Error(closeErr))
			err = multierr.Append(err, fmt.Errorf("failed to close session: %w", closeErr))
		}
	}()

	tables, err := session.ListTables(ctx, cfg.Database, cfg.SchemaLike)
	if err != nil {
		return err
	}

	if err := report.PrintTables(e.Stdout, tables); err != nil {
		return err
	}

	if err := report.WriteCSVFile(cfg.Output, tables); err != nil {
		return err
	}

	l.Debug("export complete", zap.String("output", cfg.Output), zap.Int("count", len(tables)))

	return report.Saved(e.Stdout, cfg.Output, len(tables))
}
