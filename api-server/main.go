package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/univer-labs/plugins-api/internal/apispec"
	"github.com/univer-labs/plugins-api/internal/catalog"
	"github.com/univer-labs/plugins-api/internal/platform/auditlog"
	"github.com/univer-labs/plugins-api/internal/platform/auth"
	"github.com/univer-labs/plugins-api/internal/platform/env"
	"github.com/univer-labs/plugins-api/internal/platform/httpserver"
	"github.com/univer-labs/plugins-api/internal/platform/objectstore"
	"github.com/univer-labs/plugins-api/internal/platform/postgres"
	"github.com/univer-labs/plugins-api/internal/platform/tracing"
	"github.com/univer-labs/plugins-api/internal/repo/jsonfile"
	"github.com/univer-labs/plugins-api/internal/service/templates"
	"github.com/univer-labs/plugins-api/internal/snapshot"
	"go.opentelemetry.io/otel/trace"
)

const serviceName = "plugins-api"

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	ctx := context.Background()
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	addr := env.String("API_HTTP_ADDR", ":8000")
	shutdownTimeout, err := env.Duration("API_SHUTDOWN_TIMEOUT", 10*time.Second)
	if err != nil {
		logger.Error("invalid env", "error", err)
		os.Exit(2)
	}
	maxBodyMiB, err := env.Int("API_MAX_BODY_MIB", 16)
	if err != nil {
		logger.Error("invalid env", "error", err)
		os.Exit(2)
	}
	storePath := env.Trimmed("TEMPLATE_STORE_PATH", jsonfile.DefaultPath)
	corsOrigins := env.CSV("CORS_ALLOWED_ORIGINS", []string{"*"})

	traceCfg, err := tracing.ConfigFromEnv(serviceName)
	if err != nil {
		logger.Error("invalid tracing config", "error", err)
		os.Exit(2)
	}
	tracerProvider, err := tracing.NewProvider(ctx, traceCfg)
	if err != nil {
		logger.Error("tracing init failed", "error", err)
		os.Exit(2)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tracerProvider.Shutdown(shutdownCtx); err != nil {
			logger.Warn("tracing shutdown failed", "error", err)
		}
	}()

	snapshotCfg, err := objectstore.ConfigFromEnv()
	if err != nil {
		logger.Error("invalid snapshot config", "error", err)
		os.Exit(2)
	}

	var checks []httpserver.ReadinessCheck
	fileOpts := []jsonfile.Option{jsonfile.WithLogger(logger)}
	replicatorDone := make(chan struct{})
	if snapshotCfg.Enabled {
		client, err := objectstore.NewMinIOClient(snapshotCfg)
		if err != nil {
			logger.Error("object store client init failed", "error", err)
			os.Exit(2)
		}
		bucket := objectstore.NewBucket(client, snapshotCfg)
		startupCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		if err := bucket.Ensure(startupCtx); err != nil {
			cancel()
			logger.Error("object store unavailable", "bucket", bucket.Name(), "error", err)
			os.Exit(1)
		}
		cancel()

		replicator := snapshot.NewReplicator(bucket, snapshotCfg.Prefix, logger)
		fileOpts = append(fileOpts, jsonfile.WithAfterSave(replicator.Offer))
		go func() {
			defer close(replicatorDone)
			_ = replicator.Run(ctx)
		}()
		checks = append(checks, httpserver.ReadinessCheck{
			Name:  "snapshot_bucket",
			Check: httpserver.WithTimeout(750*time.Millisecond, bucket.Check),
		})
	} else {
		close(replicatorDone)
	}

	file, err := jsonfile.New(storePath, fileOpts...)
	if err != nil {
		logger.Error("invalid template store config", "error", err)
		os.Exit(2)
	}
	store, err := templates.New(file, templates.WithTracer(tracerProvider.Tracer()))
	if err != nil {
		logger.Error("template store init failed", "error", err)
		os.Exit(1)
	}
	checks = append(checks, httpserver.ReadinessCheck{
		Name: "template_store",
		Check: func(ctx context.Context) error {
			_, err := store.Count(ctx)
			return err
		},
	})

	dropdown, err := catalog.DefaultDropdown()
	if err != nil {
		logger.Error("dropdown catalog init failed", "error", err)
		os.Exit(1)
	}
	doc, err := apispec.Load(ctx)
	if err != nil {
		logger.Error("openapi document invalid", "error", err)
		os.Exit(1)
	}

	dbCfg, err := postgres.ConfigFromEnv()
	if err != nil {
		logger.Error("invalid database config", "error", err)
		os.Exit(2)
	}
	var appender auditlog.Appender
	if dbCfg.Enabled() {
		db, err := openAuditDB(ctx, dbCfg)
		if err != nil {
			logger.Error("audit database unavailable", "error", err)
			os.Exit(1)
		}
		defer func() { _ = db.Close() }()
		appender = auditlog.DBAppender{DB: db}
		checks = append(checks, httpserver.ReadinessCheck{
			Name:  "postgres",
			Check: httpserver.WithTimeout(750*time.Millisecond, db.PingContext),
		})
	}
	recorder := auditlog.NewRecorder(appender, logger, serviceName)

	authCfg, err := auth.ConfigFromEnv()
	if err != nil {
		logger.Error("invalid auth config", "error", err)
		os.Exit(2)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", httpserver.Healthz(serviceName))
	mux.HandleFunc("GET /readyz", httpserver.ReadyzWithChecks(serviceName, checks...))

	var authenticator auth.Authenticator
	switch authCfg.Mode {
	case auth.ModeOIDC:
		oidcSvc, err := auth.NewOIDCService(ctx, authCfg)
		if err != nil {
			logger.Error("oidc init failed", "error", err)
			os.Exit(1)
		}
		authenticator = oidcSvc
		if authCfg.LoginEnabled() {
			if err := registerAuthRoutes(mux, oidcSvc); err != nil {
				logger.Error("invalid oidc login config", "error", err)
				os.Exit(2)
			}
		}
	case auth.ModeDev:
		logger.Warn("dev auth enabled", "subject", authCfg.Dev.Subject, "roles", authCfg.Dev.Roles)
		authenticator = auth.NewDevAuthenticator(authCfg.Dev)
	}

	api := newPluginsAPI(logger, store, dropdown, doc, recorder, int64(maxBodyMiB)<<20)
	api.register(mux)

	handler := buildHandler(logger, mux, chainConfig{
		Authenticator: authenticator,
		Audit:         recorder,
		Tracer:        tracerProvider.Tracer(),
		CORSOrigins:   corsOrigins,
	})

	cfg := httpserver.Config{
		Service:         serviceName,
		Addr:            addr,
		ShutdownTimeout: shutdownTimeout,
	}

	runErr := httpserver.Run(ctx, logger, cfg, handler)
	stop()
	<-replicatorDone
	if runErr != nil && !errors.Is(runErr, http.ErrServerClosed) {
		logger.Error("server failed", "error", runErr)
		os.Exit(1)
	}
}

type chainConfig struct {
	Authenticator auth.Authenticator
	Audit         *auditlog.Recorder
	Tracer        trace.Tracer
	CORSOrigins   []string
}

// buildHandler wraps the routes, outermost first, in recovery and request
// logging, CORS, authentication and tracing. Preflights are answered before
// authentication runs. Tracing sits next to the mux so spans pick up the
// matched route pattern.
func buildHandler(logger *slog.Logger, mux http.Handler, c chainConfig) http.Handler {
	handler := tracing.Middleware(c.Tracer, mux)
	handler = auth.Middleware{
		Logger:        logger,
		Authenticator: c.Authenticator,
		Authorize:     auth.MethodRoleAuthorizer(),
		Audit: func(ctx context.Context, event auth.DenyEvent) error {
			auditCtx, cancel := context.WithTimeout(ctx, 750*time.Millisecond)
			defer cancel()
			return c.Audit.AuthDeny(auditCtx, event)
		},
		SkipPrefixes: []string{"/auth/", "/healthz", "/readyz"},
	}.Wrap(handler)
	handler = httpserver.CORS{AllowedOrigins: c.CORSOrigins, AllowCredentials: true, MaxAge: 10 * time.Minute}.Wrap(handler)
	return httpserver.Wrap(logger, handler)
}

func openAuditDB(ctx context.Context, cfg postgres.Config) (*sql.DB, error) {
	db, err := postgres.Open(ctx, cfg)
	if err != nil {
		return nil, err
	}
	schemaCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := auditlog.EnsureSchema(schemaCtx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

func registerAuthRoutes(mux *http.ServeMux, svc *auth.OIDCService) error {
	login, err := svc.LoginHandler()
	if err != nil {
		return err
	}
	callback, err := svc.CallbackHandler()
	if err != nil {
		return err
	}
	mux.HandleFunc("GET /auth/login", login)
	mux.HandleFunc("GET /auth/callback", callback)
	mux.HandleFunc("GET /auth/logout", svc.LogoutHandler())
	mux.HandleFunc("GET /auth/session", svc.SessionHandler())
	return nil
}
