package main

import (
	"context"
	"fmt"
	"os"

	"github.com/grpc-ecosystem/go-grpc-middleware/logging/zap/ctxzap"
	"github.com/spf13/cobra"

	"github.com/conductorone/snowflake-list-tables/pkg/config"
	"github.com/conductorone/snowflake-list-tables/pkg/export"
)

const (
	version = "dev"
	appName = "snowflake-list-tables"
)

func main() {
	ctx := context.Background()

	cmd, err := newRootCommand()
	if err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}

	if err := cmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "[ERROR] %s\n", err.Error())
		os.Exit(1)
	}
}

func newRootCommand() (*cobra.Command, error) {
	v := config.NewViper()

	cmd := &cobra.Command{
		Use:           appName,
		Short:         "List the tables of a Snowflake database and export them to CSV",
		Version:       version,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := loadDotEnv(dotEnvFile); err != nil {
				return err
			}

			cfg, err := config.Load(v)
			if err != nil {
				return err
			}

			l, err := buildLogger(cfg.LogLevel, cfg.LogFormat)
			if err != nil {
				return err
			}
			defer func() { _ = l.Sync() }()

			ctx := ctxzap.ToContext(cmd.Context(), l)

			// Errors are printed once, by main.
			return export.New(cfg, cmd.OutOrStdout()).Run(ctx)
		},
	}

	if err := config.BindFlags(cmd.Flags(), v); err != nil {
		return nil, err
	}

	return cmd, nil
}
