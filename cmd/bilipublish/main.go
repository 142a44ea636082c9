package main

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	_ "golang.org/x/crypto/x509roots/fallback" // Embed CA certs for scratch container

	"github.com/ericfisherdev/bilipublish/internal/adapter/driven/aesgcm"
	"github.com/ericfisherdev/bilipublish/internal/adapter/driven/biliup"
	"github.com/ericfisherdev/bilipublish/internal/adapter/driven/fsstore"
	pgadapter "github.com/ericfisherdev/bilipublish/internal/adapter/driven/postgres"
	sqliteadapter "github.com/ericfisherdev/bilipublish/internal/adapter/driven/sqlite"
	httphandler "github.com/ericfisherdev/bilipublish/internal/adapter/driving/http"
	"github.com/ericfisherdev/bilipublish/internal/application"
	"github.com/ericfisherdev/bilipublish/internal/config"
	"github.com/ericfisherdev/bilipublish/internal/domain/port/driven"
)

func main() {
	if err := run(); err != nil {
		slog.Error("fatal error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Seed the environment from .env when present, then load configuration.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Warn("could not read .env file", "error", err)
	}
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	slog.Info("config loaded",
		"listen_addr", cfg.ListenAddr,
		"db_driver", cfg.DBDriver,
		"upstream_url", cfg.UpstreamURL,
		"artifact_root", cfg.ArtifactRoot,
		"video_dir", cfg.VideoDir,
		"vault_enabled", cfg.VaultEnabled(),
	)
	if !cfg.VaultEnabled() {
		slog.Warn("BILIPUBLISH_SECRET_KEY not set, credentials cannot be stored or restored")
	}

	// 2. Setup signal-based context (SIGINT, SIGTERM).
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sealer, err := aesgcm.NewSealer(cfg.SecretKey)
	if err != nil {
		return err
	}

	// 3. Open the configured database and run migrations.
	vault, tasks, closeDB, err := openStores(ctx, cfg, sealer)
	if err != nil {
		return err
	}
	defer closeDB()

	// 4. Wire adapters.
	store := fsstore.New(cfg.ArtifactRoot, cfg.VideoDir,
		fsstore.WithArtifactMode(cfg.ArtifactFileMode),
		fsstore.WithMediaMode(cfg.MediaFileMode),
	)
	upstream := biliup.NewClient(biliup.Config{
		BaseURL:        cfg.UpstreamURL,
		Username:       cfg.UpstreamUsername,
		Password:       cfg.UpstreamPassword,
		CookieName:     cfg.CookieName,
		ConnectTimeout: cfg.ConnectTimeout,
		RequestTimeout: cfg.RequestTimeout,
		ConfirmTimeout: cfg.ConfirmTimeout,
	}, slog.Default())

	// 5. Best-effort eager login; calls authenticate lazily otherwise.
	authCtx, cancelAuth := context.WithTimeout(ctx, cfg.RequestTimeout)
	if err := upstream.Authenticate(authCtx); err != nil {
		slog.Warn("initial upstream authentication failed, will retry on first call", "error", err)
	} else {
		slog.Info("authenticated with upstream", "username", cfg.UpstreamUsername)
	}
	cancelAuth()

	// 6. Create services.
	reconciler := application.NewReconciler(vault, upstream, store, application.ReconcilerConfig{
		ArtifactWaitAttempts: cfg.ArtifactWaitAttempts,
		ArtifactWaitInterval: cfg.ArtifactWaitInterval,
	}, slog.Default())
	loginSvc := application.NewLoginService(upstream, reconciler, vault, store, cfg.LoginSessionTTL, slog.Default())
	publishSvc := application.NewPublishService(upstream, reconciler, vault, tasks, slog.Default())
	mediaSvc := application.NewMediaService(store, slog.Default())
	healthSvc := application.NewHealthService(upstream, cfg.VaultEnabled())

	// 7. Create HTTP handler and register API routes.
	apiHandler := httphandler.NewHandler(loginSvc, publishSvc, mediaSvc, healthSvc, httphandler.Options{
		QRIssuePerMinute: cfg.QRIssuePerMinute,
		MaxUploadBytes:   cfg.MaxUploadBytes,
	}, slog.Default())

	// The confirm endpoint blocks for up to the confirm timeout and uploads
	// can be large, so there is no overall write timeout.
	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           httphandler.NewServeMux(apiHandler, slog.Default()),
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		slog.Info("http server starting", "addr", cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("http server error", "error", err)
			stop()
		}
	}()

	slog.Info("bilipublish started", "listen_addr", cfg.ListenAddr)

	// 8. Wait for shutdown signal.
	<-ctx.Done()
	slog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("http server shutdown error", "error", err)
	}

	slog.Info("shutdown complete")
	return nil
}

// openStores opens the credential vault and task store on the configured
// database driver.
func openStores(ctx context.Context, cfg *config.Config, sealer *aesgcm.Sealer) (driven.CredentialVault, driven.PublishTaskStore, func(), error) {
	if cfg.DBDriver == config.DriverPostgres {
		pool, err := pgadapter.NewPool(ctx, cfg.DBDSN, pgadapter.PoolConfig{})
		if err != nil {
			return nil, nil, nil, err
		}
		if err := pgadapter.RunMigrations(pool); err != nil {
			pool.Close()
			return nil, nil, nil, err
		}
		slog.Info("postgres ready")
		return pgadapter.NewCredentialRepo(pool, sealer, cfg.CredentialTTL), pgadapter.NewTaskRepo(pool), pool.Close, nil
	}

	db, err := sqliteadapter.NewDB(ctx, cfg.DBPath)
	if err != nil {
		return nil, nil, nil, err
	}
	if err := sqliteadapter.RunMigrations(db.Writer); err != nil {
		_ = db.Close()
		return nil, nil, nil, err
	}
	slog.Info("sqlite ready", "path", cfg.DBPath)

	closeDB := func() {
		if err := db.Close(); err != nil {
			slog.Error("error closing database", "error", err)
		}
	}
	return sqliteadapter.NewCredentialRepo(db, sealer, cfg.CredentialTTL), sqliteadapter.NewTaskRepo(db), closeDB, nil
}
