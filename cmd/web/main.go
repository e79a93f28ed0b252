package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/AdamBeresnev/op-tournament-engine/internal/config"
	"github.com/AdamBeresnev/op-tournament-engine/internal/db"
	"github.com/AdamBeresnev/op-tournament-engine/internal/livesync"
	"github.com/AdamBeresnev/op-tournament-engine/internal/middleware"
	"github.com/AdamBeresnev/op-tournament-engine/internal/service"
	"github.com/AdamBeresnev/op-tournament-engine/internal/store"
	"github.com/alexedwards/scs/sqlite3store"
	"github.com/alexedwards/scs/v2"
	"github.com/jmoiron/sqlx"
)

type application struct {
	sessions    *scs.SessionManager
	userStore   *store.UserStore
	users       *service.UserService
	tournaments *service.TournamentService
	matches     *service.MatchService
	live        *livesync.Manager
	corsOrigins []string
}

func newApplication(cfg *config.Config, database *sqlx.DB, live *livesync.Manager) *application {
	sessionManager := scs.New()
	sessionManager.Lifetime = cfg.Server.SessionLifetime
	// Postgres deployments keep sessions in memory.
	if cfg.Database.Driver == db.DriverSQLite {
		sessionManager.Store = sqlite3store.New(database.DB)
	}

	tournamentStore := store.NewTournamentStore(database)
	userStore := store.NewUserStore(database)
	return &application{
		sessions:    sessionManager,
		userStore:   userStore,
		users:       service.NewUserService(userStore),
		tournaments: service.NewTournamentService(database, tournamentStore, live, cfg.MaxTeams),
		matches:     service.NewMatchService(database, tournamentStore, live),
		live:        live,
		corsOrigins: cfg.Server.CORSAllowedOrigins,
	}
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	database, err := db.InitDB(cfg.Database.Driver, cfg.Database.URL)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer database.Close()

	if err := db.RunMigrations(database, cfg.Database.MigrationsPath); err != nil {
		logger.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}

	middleware.InitAuth(cfg.Auth)

	live := livesync.NewManager(
		livesync.WithLogger(logger.With("component", "livesync")),
		livesync.WithBuffer(cfg.Live.SubscriberBuffer),
		livesync.WithGrace(cfg.Live.SnapshotGrace),
	)
	defer live.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	go live.Run(ctx, cfg.Live.SweepInterval)

	app := newApplication(cfg, database, live)
	server := &http.Server{
		Addr:        fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:     newRouter(app),
		ReadTimeout: 10 * time.Second,
		IdleTimeout: 120 * time.Second,
		ErrorLog:    slog.NewLogLogger(logger.Handler(), slog.LevelError),
	}

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("server starting", "address", server.Addr)
		serverErrors <- server.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	case <-ctx.Done():
		logger.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("graceful shutdown failed", "error", err)
			server.Close()
		}
	}
	logger.Info("server stopped")
}
