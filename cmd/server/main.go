package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/dtc/client-desk/internal/access"
	"github.com/dtc/client-desk/internal/auth"
	"github.com/dtc/client-desk/internal/config"
	"github.com/dtc/client-desk/internal/contact"
	"github.com/dtc/client-desk/internal/dashboard"
	"github.com/dtc/client-desk/internal/metrics"
	deskmw "github.com/dtc/client-desk/internal/middleware"
	"github.com/dtc/client-desk/internal/model"
	"github.com/dtc/client-desk/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("configuration error", "err", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	slog.SetDefault(logger)

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	// --- Initialize store ---
	var st store.Store
	var cleanup []func()

	if cfg.DatabaseURL != "" {
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			slog.Error("database connection failed", "err", err)
			os.Exit(1)
		}
		cleanup = append(cleanup, pool.Close)
		pg := store.NewPostgresStore(pool)
		if err := pg.Migrate(ctx); err != nil {
			slog.Error("schema migration failed", "err", err)
			os.Exit(1)
		}
		st = pg
		slog.Info("connected to PostgreSQL")

		// Wrap with Redis read-through cache if configured.
		if cfg.RedisURL != "" {
			opt, err := redis.ParseURL(cfg.RedisURL)
			if err != nil {
				slog.Error("invalid REDIS_URL", "err", err)
				os.Exit(1)
			}
			rdb := redis.NewClient(opt)
			cleanup = append(cleanup, func() { rdb.Close() })
			st = store.NewCachedStore(st, rdb, cfg.CacheTTL)
			slog.Info("Redis cache enabled", "ttl", cfg.CacheTTL)
		}
	} else {
		slog.Warn("DATABASE_URL not set, using in-memory store (data will not persist)")
		st = store.NewMemoryStore()
	}

	defer func() {
		for _, fn := range cleanup {
			fn()
		}
	}()

	// --- Access control ---
	restricted, _ := cfg.Restricted() // validated by Load
	policy := access.NewPolicy(restricted)
	issuer, err := auth.NewIssuer(cfg.JWTSecret, cfg.TokenTTL)
	if err != nil {
		slog.Error("token issuer", "err", err)
		os.Exit(1)
	}
	authn := auth.NewAuthenticator(issuer, st, policy)

	if cfg.BootstrapAdminEmail != "" {
		if err := bootstrapAdmin(ctx, st, issuer, cfg.BootstrapAdminEmail); err != nil {
			slog.Error("bootstrap admin failed", "err", err)
			os.Exit(1)
		}
	}

	// --- WebSocket hub ---
	wsHub := dashboard.NewHub(cfg.AllowedOrigins)
	go wsHub.Run(ctx)

	// --- Dashboard service ---
	deskSvc := dashboard.NewService(st, contact.NewNormalizer(cfg.PhoneRegion), wsHub)

	// --- HTTP router ---
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(cfg.RequestTimeout))
	r.Use(metrics.Middleware)
	r.Use(deskmw.CORS(deskmw.CORSConfig{AllowedOrigins: cfg.AllowedOrigins}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok","service":"client-desk"}`))
	})

	// Prometheus metrics endpoint.
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(deskmw.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst).Handler)
		r.Use(authn.Middleware)
		deskSvc.Routes(r)
	})

	// --- Server ---
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.RequestTimeout + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("client-desk listening", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "err", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	slog.Info("shutting down client-desk...")
	stop()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
	}
	fmt.Println("client-desk stopped")
}

// bootstrapAdmin makes sure a super admin exists for email and logs a
// token for it. The profile id is derived from the email so restarts
// reuse the same account.
func bootstrapAdmin(ctx context.Context, st store.Store, issuer *auth.Issuer, email string) error {
	email, err := contact.NormalizeEmail(email)
	if err != nil {
		return err
	}
	p := &model.Profile{
		ID:       uuid.NewSHA1(uuid.NameSpaceURL, []byte("mailto:"+email)).String(),
		Email:    email,
		Role:     model.RoleSuperAdmin,
		IsActive: true,
	}
	if err := st.UpsertProfile(ctx, p); err != nil {
		return fmt.Errorf("upsert profile: %w", err)
	}
	token, err := issuer.Issue(p.ID, p.Role)
	if err != nil {
		return fmt.Errorf("issue token: %w", err)
	}
	slog.Info("bootstrap admin ready", "user_id", p.ID, "email", p.Email, "token", token)
	return nil
}
