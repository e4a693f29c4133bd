// Package server wires the AuthKeeper server together: configuration,
// logging, the PostgreSQL-backed credential store, the token codec, the
// session and reset services, the gRPC endpoint and the /metrics listener.
package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/dmitrijs2005/authkeeper/internal/cryptox"
	"github.com/dmitrijs2005/authkeeper/internal/logging"
	"github.com/dmitrijs2005/authkeeper/internal/server/auth"
	"github.com/dmitrijs2005/authkeeper/internal/server/config"
	"github.com/dmitrijs2005/authkeeper/internal/server/mailer"
	"github.com/dmitrijs2005/authkeeper/internal/server/metrics"
	"github.com/dmitrijs2005/authkeeper/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/authkeeper/internal/server/services"
	"github.com/dmitrijs2005/authkeeper/internal/server/store"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	gs "github.com/dmitrijs2005/authkeeper/internal/server/grpc"
)

const serviceName = "authkeeper"

type App struct {
	config   *config.Config
	logger   logging.Logger
	db       *sql.DB
	store    *store.CredentialStore
	tracing  *sdktrace.TracerProvider
	registry *prometheus.Registry
	grpc     *gs.GRPCServer
}

// OpenStore opens the database and builds a CredentialStore over it. The
// caller owns the returned *sql.DB.
func OpenStore(dsn string, opts ...store.Option) (*sql.DB, *store.CredentialStore, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("db open error: %w", err)
	}
	st := store.New(db, repomanager.NewPostgresRepositoryManager(), cryptox.NewArgon2idHasher(cryptox.DefaultArgon2Params), opts...)
	return db, st, nil
}

// newTracerProvider installs the process-wide provider. Spans carry ids for
// the log handler; there is no exporter.
func newTracerProvider() *sdktrace.TracerProvider {
	tp := sdktrace.NewTracerProvider(sdktrace.WithSampler(sdktrace.AlwaysSample()))
	otel.SetTracerProvider(tp)
	return tp
}

// NewMailer picks the SMTP sender when a relay is configured and the
// discarding sender otherwise.
func NewMailer(c *config.Config, l logging.Logger) (mailer.Sender, error) {
	if c.SMTPAddr == "" {
		return mailer.NewDiscardSender(l.With("module", "mailer")), nil
	}
	return mailer.NewSMTPSender(mailer.SMTPConfig{
		Addr:     c.SMTPAddr,
		User:     c.SMTPUser,
		Password: c.SMTPPassword,
		From:     c.MailFrom,
	})
}

func NewApp(c *config.Config) (*App, error) {
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	logger := logging.New(serviceName, c.LogLevel, c.LogFormat, os.Stdout)

	codec, err := auth.NewCodec(auth.CodecConfig{
		AccessSecret:  []byte(c.AccessSecretKey),
		RefreshSecret: []byte(c.RefreshSecretKey),
		AccessTTL:     c.AccessTokenValidityDuration,
		RefreshTTL:    c.RefreshTokenValidityDuration,
		Issuer:        serviceName,
	})
	if err != nil {
		return nil, fmt.Errorf("token codec: %w", err)
	}

	mail, err := NewMailer(c, logger)
	if err != nil {
		return nil, fmt.Errorf("mailer: %w", err)
	}

	tp := newTracerProvider()

	db, st, err := OpenStore(c.DatabaseDSN, store.WithTracer(tp.Tracer(serviceName)))
	if err != nil {
		_ = tp.Shutdown(context.Background())
		return nil, err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	rec := metrics.NewCollector(reg)

	sessions := services.NewSessionService(st, codec, logger.With("module", "sessions"), rec)
	resets := services.NewResetService(st, mail, services.ResetConfig{
		TokenTTL:    c.ResetTokenValidityDuration,
		MailTimeout: c.MailTimeout,
		LinkBase:    c.ResetURLBase,
	}, logger.With("module", "resets"), rec)

	srv := gs.NewGRPCServer(c.EndpointAddrGRPC, logger, sessions, resets, auth.NewGuard(codec), c.OperationTimeout)

	return &App{config: c, logger: logger, db: db, store: st, tracing: tp, registry: reg, grpc: srv}, nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) startGRPCServer(ctx context.Context, cancelFunc context.CancelFunc) {
	if err := app.grpc.Run(ctx); err != nil {
		app.logger.Error(ctx, "gRPC server failed", "error", err.Error())
		cancelFunc()
	}
}

func (app *App) startMetricsServer(ctx context.Context, cancelFunc context.CancelFunc) {
	srv := &http.Server{
		Addr:              app.config.EndpointAddrMetrics,
		Handler:           metrics.Handler(app.registry),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	app.logger.Info(ctx, "starting metrics server", "address", srv.Addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		app.logger.Error(ctx, "metrics server failed", "error", err.Error())
		cancelFunc()
	}
}

// Run migrates the schema and serves until SIGINT/SIGTERM or a listener
// failure.
func (app *App) Run(ctx context.Context) error {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()
	defer app.db.Close()
	defer func() { _ = app.tracing.Shutdown(context.Background()) }()

	app.logger.Info(ctx, "starting app")
	app.initSignalHandler(cancelFunc)

	initCtx, cancel := context.WithTimeout(ctx, time.Minute)
	err := app.store.InitSchema(initCtx)
	cancel()
	if err != nil {
		app.logger.Error(ctx, "schema init failed", logging.ErrorAttrs(err)...)
		return err
	}

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.startGRPCServer(ctx, cancelFunc)
	}()

	if app.config.EndpointAddrMetrics != "" {
		wg.Add(1)
		go func() {
			defer wg.Done()
			app.startMetricsServer(ctx, cancelFunc)
		}()
	}

	wg.Wait()
	app.logger.Info(context.Background(), "app stopped")
	return nil
}
