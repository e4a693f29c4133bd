package main

import (
	"context"
	"time"

	"github.com/dmitrijs2005/authkeeper/internal/client/authclient"
	"github.com/dmitrijs2005/authkeeper/internal/client/config"
	"github.com/dmitrijs2005/authkeeper/internal/client/tokenstore"
	"github.com/dmitrijs2005/authkeeper/internal/filex"
	"github.com/samber/oops"
	"github.com/spf13/cobra"
	"google.golang.org/grpc"
)

// options carries the persistent flags. Empty values fall back to the
// config file and environment.
type options struct {
	configPath string
	server     string
	session    string
	dsn        string
	timeout    time.Duration

	dialOpts []grpc.DialOption
}

// NewRootCmd creates the root command.
func NewRootCmd() *cobra.Command {
	return newRootCmd(&options{})
}

func newRootCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:          "authctl",
		Short:        "AuthKeeper account and maintenance client",
		SilenceUsage: true,
	}

	pf := cmd.PersistentFlags()
	pf.StringVar(&opts.configPath, "config", "", "path to JSON config file")
	pf.StringVar(&opts.server, "server", "", "AuthKeeper gRPC address (host:port)")
	pf.StringVar(&opts.session, "session", "", "path to the local session cache")
	pf.StringVar(&opts.dsn, "dsn", "", "PostgreSQL DSN for migrate and purge")
	pf.DurationVar(&opts.timeout, "timeout", 0, "per-command timeout")

	cmd.AddCommand(
		newMigrateCmd(opts),
		newPurgeCmd(opts),
		newSignUpCmd(opts),
		newSignInCmd(opts),
		newRefreshCmd(opts),
		newSignOutCmd(opts),
		newMeCmd(opts),
		newStatusCmd(opts),
		newUpdateProfileCmd(opts),
		newChangePasswordCmd(opts),
		newForgotCmd(opts),
		newResetCmd(opts),
	)
	return cmd
}

func (o *options) load() (*config.Config, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, oops.Code("CONFIG_INVALID").With("path", o.configPath).Wrap(err)
	}
	if o.server != "" {
		cfg.ServerAddr = o.server
	}
	if o.session != "" {
		cfg.SessionPath = o.session
	}
	if o.dsn != "" {
		cfg.DatabaseDSN = o.dsn
	}
	if o.timeout > 0 {
		cfg.Timeout = o.timeout
	}
	return cfg, nil
}

func (o *options) commandContext(cmd *cobra.Command, cfg *config.Config) (context.Context, context.CancelFunc) {
	if cfg.Timeout <= 0 {
		return context.WithCancel(cmd.Context())
	}
	return context.WithTimeout(cmd.Context(), cfg.Timeout)
}

// withClient opens the session cache and a client for one command run.
func (o *options) withClient(cmd *cobra.Command, fn func(ctx context.Context, c *authclient.Client) error) error {
	cfg, err := o.load()
	if err != nil {
		return err
	}
	ctx, cancel := o.commandContext(cmd, cfg)
	defer cancel()

	if _, err := filex.EnsureParentDir(cfg.SessionPath); err != nil {
		return oops.Code("SESSION_OPEN_FAILED").With("path", cfg.SessionPath).Wrap(err)
	}
	store, err := tokenstore.Open(ctx, cfg.SessionPath)
	if err != nil {
		return oops.Code("SESSION_OPEN_FAILED").With("path", cfg.SessionPath).Wrap(err)
	}
	defer store.Close()

	c, err := authclient.New(cfg.ServerAddr, store, o.dialOpts...)
	if err != nil {
		return oops.Code("SERVER_CONNECT_FAILED").With("server", cfg.ServerAddr).Wrap(err)
	}
	defer c.Close()

	return fn(ctx, c)
}
