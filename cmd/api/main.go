package main

import (
	"log"
	"log/slog"
	"net/http"
	"os"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	httpSwagger "github.com/swaggo/http-swagger"

	_ "github.com/roots/discourse-github-sponsors/docs"
	"github.com/roots/discourse-github-sponsors/internal/cache"
	"github.com/roots/discourse-github-sponsors/internal/config"
	"github.com/roots/discourse-github-sponsors/internal/database"
	"github.com/roots/discourse-github-sponsors/internal/discord"
	"github.com/roots/discourse-github-sponsors/internal/github"
	"github.com/roots/discourse-github-sponsors/internal/group"
	"github.com/roots/discourse-github-sponsors/internal/identity"
	"github.com/roots/discourse-github-sponsors/internal/invite"
	syncsvc "github.com/roots/discourse-github-sponsors/internal/sync"
	mw "github.com/roots/discourse-github-sponsors/pkg/middleware"
)

// @title        Discourse GitHub Sponsors API
// @version      1.0
// @description  Reconciles the sponsor group against GitHub Sponsors and issues Discord invites to sponsors.
// @BasePath     /api/v1
func main() {
	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	// Load configuration
	cfg := config.Load()

	logLevel := slog.LevelInfo
	if cfg.VerboseLogging {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(logger)

	// Initialize database connection
	db, err := database.NewPostgresConnection(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	logger.Info("connected to database")

	// Keyed cache store: redis when configured, in-process otherwise
	var cacheStore cache.Store
	if cfg.RedisAddr != "" {
		redisStore, err := cache.NewRedisStore(cache.RedisConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err != nil {
			log.Fatalf("Failed to connect to redis: %v", err)
		}
		defer redisStore.Close()
		cacheStore = redisStore
		logger.Info("connected to redis cache", "addr", cfg.RedisAddr)
	} else {
		cacheStore = cache.NewMemoryStore()
		logger.Info("using in-memory cache")
	}

	// A rejected GitHub token flips the health endpoint to degraded so the
	// hosting platform can alert on it.
	var githubAuthFailed atomic.Bool

	githubClient := github.NewClient(github.Config{
		Token:  cfg.GitHubToken,
		Cache:  cacheStore,
		Logger: logger,
		OnAuthFailure: func() {
			githubAuthFailed.Store(true)
			logger.Error("github credentials rejected")
		},
	})

	discordClient := discord.NewClient(discord.Config{
		BotToken:   cfg.DiscordBotToken,
		GuildID:    cfg.DiscordGuildID,
		ChannelID:  cfg.DiscordChannelID,
		WebhookURL: cfg.DiscordWebhookURL,
		Cache:      cacheStore,
		Logger:     logger,
	})

	// Repositories
	identityRepo := identity.NewRepository(db)
	groupRepo := group.NewRepository(db)

	// Sponsor sync feature
	syncService := syncsvc.NewService(syncsvc.Options{
		Enabled:       cfg.SyncEnabled,
		Account:       cfg.GitHubAccount,
		GroupName:     cfg.GroupName,
		SponsorTitle:  cfg.SponsorTitle,
		RetentionDays: cfg.HistoryRetentionDays,
	}, githubClient, identityRepo, groupRepo, syncsvc.NewRecorder(db), logger)
	syncHandler := syncsvc.NewHandler(syncService)

	// Invite feature
	inviteRepo := invite.NewRepository(db)
	inviteService := invite.NewService(invite.Options{
		GroupName:     cfg.GroupName,
		TTL:           time.Duration(cfg.InviteTTLSeconds) * time.Second,
		RetentionDays: cfg.InviteRetentionDays,
	}, inviteRepo, discordClient, groupRepo, identityRepo, logger)
	inviteHandler := invite.NewHandler(inviteService)

	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if githubAuthFailed.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"status":"degraded","reason":"github auth failed"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	})

	r.Get("/swagger/*", httpSwagger.WrapHandler)

	// API routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(mw.UserMiddleware)
			r.Mount("/invites", inviteHandler.Routes())
		})

		// Scheduler and operator endpoints
		r.Group(func(r chi.Router) {
			r.Use(mw.AdminKeyMiddleware(cfg.AdminAPIKey))
			r.Mount("/sync", syncHandler.Routes())
			r.Mount("/admin/invites", inviteHandler.AdminRoutes())
		})
	})

	logger.Info("server starting", "port", cfg.Port)
	if err := http.ListenAndServe(":"+cfg.Port, r); err != nil {
		log.Fatalf("Server failed to start: %v", err)
	}
}
