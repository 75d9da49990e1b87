package main

import (
	"context"
	"crypto/rand"
	"ctchen222/blog-web-api/internal/api/controller"
	"ctchen222/blog-web-api/internal/api/service"
	"ctchen222/blog-web-api/internal/config"
	"ctchen222/blog-web-api/internal/db"
	"ctchen222/blog-web-api/internal/events"
	"ctchen222/blog-web-api/internal/feed"
	"ctchen222/blog-web-api/internal/logger"
	"ctchen222/blog-web-api/internal/repository"
	"ctchen222/blog-web-api/internal/server"
	"ctchen222/blog-web-api/internal/telemetry"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// storage bundles the repositories of the selected backend with the feed
// wiring that goes with it.
type storage struct {
	users     repository.UserRepository
	posts     repository.PostRepository
	hub       *feed.Hub
	publisher events.Publisher
	close     func() error
}

func openStorage(ctx context.Context, cfg *config.Config) (*storage, error) {
	switch cfg.StoreBackend {
	case config.BackendSQLite:
		pool, err := db.LocalConnect(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize sqlite db: %w", err)
		}
		hub := feed.NewHub(nil)
		return &storage{
			users:     repository.NewSQLiteUserRepository(pool),
			posts:     repository.NewSQLitePostRepository(pool),
			hub:       hub,
			publisher: hub,
			close:     pool.Close,
		}, nil
	default:
		rdb, err := db.NewRedisClient(ctx, cfg.Redis)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize redis: %w", err)
		}
		return &storage{
			users:     repository.NewUserRepository(rdb),
			posts:     repository.NewPostRepository(rdb),
			hub:       feed.NewHub(rdb),
			publisher: events.NewRedisPublisher(rdb),
			close:     rdb.Close,
		}, nil
	}
}

func tokenSecret(cfg *config.Config) []byte {
	if cfg.TokenSecret != "" {
		return []byte(cfg.TokenSecret)
	}
	slog.Warn("TOKEN_SECRET is not set, using a random secret: tokens will not survive a restart")
	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		panic(err)
	}
	return secret
}

func run() error {
	cfg := config.LoadConfig()
	logger.Init(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize telemetry
	shutdown, err := telemetry.InitOtel(ctx, cfg.OtelEndpoint)
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer func() {
		if err := shutdown(context.Background()); err != nil {
			slog.Error("Error shutting down telemetry", "error", err)
		}
	}()

	store, err := openStorage(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.close()
	slog.Info("Storage ready", "backend", cfg.StoreBackend)

	// Create services
	credentials := service.NewCredentialStore(store.users, cfg.BcryptCost)
	tokens := service.NewTokenManager(store.users, tokenSecret(cfg), cfg.TokenDuration)
	posts := service.NewPostStore(store.posts)
	locks := service.NewKeyedMutex()
	accountService := service.NewAccountService(credentials, tokens, posts, store.publisher, locks)
	blogService := service.NewBlogService(credentials, tokens, posts, store.publisher, locks)

	// Create controllers
	userController := controller.NewUserController(accountService)
	postController := controller.NewPostController(blogService)

	hubCtx, stopHub := context.WithCancel(context.Background())
	defer stopHub()
	go store.hub.Run(hubCtx)

	gin.SetMode(gin.ReleaseMode)
	srv := server.NewServer(store.hub, userController, postController)

	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.ServerPort),
		Handler: otelhttp.NewHandler(srv.Engine(), "blog-web-api"),
	}

	serveErr := make(chan error, 1)
	go func() {
		slog.Info("http server started", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("ListenAndServe: %w", err)
		}
	case <-ctx.Done():
	}

	slog.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	// Feed connections are hijacked and not tracked by Shutdown.
	stopHub()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	slog.Info("Server exiting")
	return nil
}

func main() {
	if err := run(); err != nil {
		slog.Error("Server failed", "error", err)
		os.Exit(1)
	}
}
