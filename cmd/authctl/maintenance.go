package main

import (
	"context"
	"io"

	"github.com/dmitrijs2005/authkeeper/internal/server"
	"github.com/dmitrijs2005/authkeeper/internal/server/store"
	"github.com/samber/oops"
	"github.com/spf13/cobra"
)

type maintenanceStore interface {
	InitSchema(ctx context.Context) error
	PurgeExpired(ctx context.Context) (store.PurgeResult, error)
}

// openMaintenanceStore is a seam for tests.
var openMaintenanceStore = func(dsn string) (io.Closer, maintenanceStore, error) {
	db, st, err := server.OpenStore(dsn)
	if err != nil {
		return nil, nil, err
	}
	return db, st, nil
}

func (o *options) withStore(cmd *cobra.Command, operation string, fn func(ctx context.Context, st maintenanceStore) error) error {
	cfg, err := o.load()
	if err != nil {
		return err
	}
	ctx, cancel := o.commandContext(cmd, cfg)
	defer cancel()

	db, st, err := openMaintenanceStore(cfg.DatabaseDSN)
	if err != nil {
		return oops.Code("DB_CONNECT_FAILED").With("operation", operation).Wrap(err)
	}
	defer db.Close()

	return fn(ctx, st)
}

func newMigrateCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the server database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.withStore(cmd, "migrate", func(ctx context.Context, st maintenanceStore) error {
				if err := st.InitSchema(ctx); err != nil {
					return oops.Code("MIGRATION_FAILED").Wrap(err)
				}
				cmd.Println("schema is up to date")
				return nil
			})
		},
	}
}

func newPurgeCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "purge",
		Short: "Delete expired refresh tokens and spent reset tokens",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.withStore(cmd, "purge", func(ctx context.Context, st maintenanceStore) error {
				res, err := st.PurgeExpired(ctx)
				if err != nil {
					return oops.Code("PURGE_FAILED").Wrap(err)
				}
				cmd.Printf("removed %d refresh tokens and %d reset tokens\n", res.RefreshTokens, res.ResetTokens)
				return nil
			})
		},
	}
}
