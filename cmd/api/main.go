//	@title			InfinityHole API
//	@version		1.0
//	@description	Media downloader and multi-provider cloud storage with ad-earned quota.
//
//	@host		localhost:8000
//	@BasePath	/api/v1
//
//	@securityDefinitions.apikey	BearerAuth
//	@in							header
//	@name						Authorization
//	@description				JWT Bearer token. Format: **Bearer {token}**

package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	httpSwagger "github.com/swaggo/http-swagger/v2"
	"golang.org/x/sync/errgroup"

	"github.com/infinityhole/api/internal/auth"
	"github.com/infinityhole/api/internal/cloud"
	"github.com/infinityhole/api/internal/config"
	"github.com/infinityhole/api/internal/db"
	"github.com/infinityhole/api/internal/logger"
	"github.com/infinityhole/api/internal/media"
	appMiddleware "github.com/infinityhole/api/internal/middleware"
	"github.com/infinityhole/api/internal/storage"
	"github.com/infinityhole/api/internal/user"

	_ "github.com/infinityhole/api/docs/swagger"
)

func main() {
	cfg := config.Load()
	logger.Init(cfg.IsProduction(), cfg.SentryDSN)
	defer sentry.Flush(2 * time.Second)

	if err := run(cfg); err != nil {
		slog.Error("server exited", "error", err)
		sentry.Flush(2 * time.Second)
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	conn, err := db.Open(cfg.DBDriver, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer conn.Close()

	if err := db.Migrate(conn, cfg.DBDriver); err != nil {
		return err
	}

	// Cloud storage: providers → ledger → manager
	providers, local := storage.NewProviders(ctx, cfg)
	ledger, err := cloud.OpenLedger(cfg.LedgerPath)
	if err != nil {
		return err
	}
	manager := cloud.NewManager(providers, ledger, cloud.Options{
		AdBonusMB: float64(cfg.AdBonusMB),
		AdsMax:    cfg.AdsMax,
	})
	cloudHandler := cloud.NewHandler(manager, cfg.MaxUploadMB)

	// Wire dependencies: repository → service → handler
	userRepo := user.NewRepository(conn)
	userSvc := user.NewService(userRepo)
	userHandler := user.NewHandler(userSvc)

	authRepo := auth.NewRepository(conn)
	authSvc := auth.NewService(authRepo, userSvc, cfg.JWTSecret, cfg.JWTTTL)
	authHandler := auth.NewHandler(authSvc)

	runner := media.ExecRunner{}
	mediaSvc, err := media.NewService(
		media.NewExtractor(runner, cfg.YtDlpPath),
		media.NewTranscoder(runner, cfg.FFmpegPath),
		media.Config{
			Dir:            cfg.DownloadDir,
			PublicPath:     "/downloads",
			MaxBytes:       int64(cfg.MaxDownloadMB) * storage.BytesPerMB,
			AllowedDomains: cfg.AllowedDomains,
			Timeout:        cfg.MediaTimeout,
		},
	)
	if err != nil {
		return err
	}
	mediaHandler := media.NewHandler(mediaSvc)
	cleaner := media.NewCleaner(mediaSvc.Dir(), cfg.CleanupMaxAge, cfg.CleanupInterval)

	// Router
	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(appMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.CORSOrigins,
		AllowedMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders: []string{"Content-Disposition"},
		MaxAge:         300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	// Swagger UI at /swagger/
	r.Get("/swagger/*", httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"),
	))

	r.Get("/downloads/{filename}", mediaHandler.ServeFile)

	if local != nil {
		prefix := "/" + strings.Trim(cfg.LocalPublicPath, "/")
		r.Handle(prefix+"/*", http.StripPrefix(prefix, noDirListing(http.FileServer(http.Dir(local.BaseDir())))))
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.Post("/register", authHandler.Register)
			r.Post("/login", authHandler.Login)
		})

		r.Route("/media", func(r chi.Router) {
			r.Post("/extract", mediaHandler.Extract)
			r.Post("/download", mediaHandler.Download)
		})

		// Protected endpoints
		r.Group(func(r chi.Router) {
			r.Use(appMiddleware.RequireAuth(cfg.JWTSecret))

			r.Get("/users/me", userHandler.GetMe)

			r.Route("/cloud", func(r chi.Router) {
				r.Post("/files", cloudHandler.Upload)
				r.Get("/files", cloudHandler.List)
				r.Get("/files/{id}", cloudHandler.Info)
				r.Delete("/files/{id}", cloudHandler.Delete)
				r.Get("/storage", cloudHandler.Storage)
				r.Post("/ads/watch", cloudHandler.WatchAd)
			})
		})
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 15 * time.Second,
		ReadTimeout:       10 * time.Minute, // large multipart uploads
		WriteTimeout:      cfg.MediaTimeout + time.Minute,
		IdleTimeout:       60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("server listening", "port", cfg.Port, "env", cfg.AppEnv)
		slog.Info("swagger UI", "url", "http://localhost:"+cfg.Port+"/swagger/")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		return cleaner.Run(gctx)
	})

	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down gracefully")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	slog.Info("server stopped")
	return nil
}

// noDirListing hides directory indexes from the static file server.
func noDirListing(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "" || strings.HasSuffix(r.URL.Path, "/") {
			http.NotFound(w, r)
			return
		}
		next.ServeHTTP(w, r)
	})
}
