package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"syscall"
	"time"

	embeddedpostgres "github.com/fergusstrange/embedded-postgres"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/chatserver/internal/config"
	"github.com/chatserver/internal/handler"
	"github.com/chatserver/internal/logger"
	"github.com/chatserver/internal/middleware"
	"github.com/chatserver/internal/push"
	"github.com/chatserver/internal/repository"
	"github.com/chatserver/internal/service"
	"github.com/chatserver/internal/startup"
	"github.com/chatserver/internal/storage"
	"github.com/chatserver/internal/storage/memory"
	"github.com/chatserver/internal/ws"
	"github.com/chatserver/migrations"
)

func main() {
	logger.SetPrefix("api")
	migrate := flag.Bool("migrate", false, "run database migrations and exit")
	dev := flag.Bool("dev", false, "start with embedded PostgreSQL (no external DB or Redis required)")
	flag.Parse()

	logger.Info("starting API service")
	cfg := config.Load()

	var embeddedDB *embeddedpostgres.EmbeddedPostgres
	if *dev {
		var err error
		embeddedDB, err = startEmbeddedPostgres(cfg)
		if err != nil {
			logger.Errorf("embedded postgres: %v", err)
			os.Exit(1)
		}
		defer func() {
			logger.Info("stopping embedded postgres...")
			if err := embeddedDB.Stop(); err != nil {
				logger.Errorf("embedded postgres stop: %v", err)
			}
		}()
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.DatabaseURL())
	if err != nil {
		logger.Errorf("parse db config: %v", err)
		os.Exit(1)
	}
	poolCfg.MaxConns = int32(cfg.DBMaxConnections())
	poolCfg.MinConns = 4

	pool := startup.ConnectDBWithRetry(poolCfg, 60*time.Second, "")
	defer pool.Close()

	runMigrations(pool)
	if *migrate && !*dev {
		return
	}
	logger.Info("database connected, migrations applied")

	cacheTTL := time.Duration(cfg.Cache.TTLMinutes) * time.Minute
	var cache storage.UnreadCache
	if *dev {
		cache = memory.New(cacheTTL)
		logger.Info("using in-memory unread cache (dev mode)")
	} else {
		cache = startup.ConnectRedisWithRetry(cfg.Redis.URL, cacheTTL, 60*time.Second, "")
		logger.Info("redis connected")
	}
	defer cache.Close()

	memberRepo := repository.NewMemberRepository(pool)
	roomRepo := repository.NewRoomRepository(pool)
	participantRepo := repository.NewParticipantRepository(pool)
	msgRepo := repository.NewMessageRepository(pool)
	readMarkRepo := repository.NewReadMarkRepository(pool)

	roomSvc := service.NewRoomService(pool, roomRepo, participantRepo, memberRepo, readMarkRepo, cache)
	msgSvc := service.NewMessageService(pool, roomRepo, participantRepo, memberRepo, msgRepo, readMarkRepo, cache)

	pushClient := push.NewClient(cfg.PushServiceURL)
	msgSvc.SetNotifier(pushClient)

	router := ws.NewRouter(msgSvc, cfg.MaxWSConnections)
	msgSvc.SetPublisher(router)

	routerCtx, routerCancel := context.WithCancel(context.Background())
	var routerWg sync.WaitGroup
	routerWg.Add(1)
	go func() {
		defer routerWg.Done()
		router.Run(routerCtx)
	}()

	roomH := handler.NewRoomHandler(roomSvc)
	msgH := handler.NewMessageHandler(msgSvc)
	memberH := handler.NewMemberHandler(memberRepo)
	wsH := handler.NewWSHandler(router, msgSvc, cfg.CORSAllowedOrigins)
	pushH := handler.NewPushHandler(pushClient)

	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Use(chimw.Logger)
	r.Use(middleware.RecoverJSON)
	// Не сжимать WebSocket — иначе ResponseWriter не реализует http.Hijacker и upgrade даёт 500.
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if strings.EqualFold(req.Header.Get("Upgrade"), "websocket") {
				next.ServeHTTP(w, req)
				return
			}
			chimw.Compress(5)(next).ServeHTTP(w, req)
		})
	})
	r.Use(middleware.RequestLog)
	r.Use(middleware.SecureHeaders)
	r.Use(middleware.RateLimitAPI)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{cfg.CORSAllowedOrigins},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Identity-Token"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK); w.Write([]byte("ok")) })

	// Служебные ручки provisioning: участники заводятся сервисом идентификации.
	r.Group(func(r chi.Router) {
		r.Use(middleware.InternalOnly)
		r.Post("/internal/members", memberH.Upsert)
		r.Get("/internal/members", memberH.List)
		r.Get("/internal/members/{memberId}", memberH.Get)
	})

	identity := middleware.IdentityValidate(cfg.IdentityServiceURL, nil)
	if *dev {
		// В dev-режиме внешнего сервиса идентификации нет.
		identity = middleware.TrustedHeaderIdentity
	}

	r.Group(func(r chi.Router) {
		r.Use(identity)
		r.Get("/api/rooms", roomH.ListGroupRooms)
		r.Post("/api/rooms", roomH.CreateGroupRoom)
		r.Get("/api/rooms/my", roomH.MyRooms)
		r.Post("/api/rooms/{roomId}/join", roomH.Join)
		r.Post("/api/rooms/{roomId}/leave", roomH.Leave)
		r.Get("/api/rooms/{roomId}/messages", msgH.History)
		r.Post("/api/rooms/{roomId}/messages", msgH.Send)
		r.Post("/api/rooms/{roomId}/read", msgH.MarkRead)
		r.Post("/api/push/subscribe", pushH.Subscribe)
		r.Delete("/api/push/subscribe", pushH.Unsubscribe)
		r.Get("/ws/rooms/{roomId}", wsH.ServeWS)
	})

	srv := &http.Server{
		Addr:         cfg.ServerAddr,
		Handler:      r,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	var srvWg sync.WaitGroup
	errCh := make(chan error, 1)
	srvWg.Add(1)
	go func() {
		defer srvWg.Done()
		logger.Infof("server listening on %s", cfg.ServerAddr)
		errCh <- srv.ListenAndServe()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			logger.Errorf("server error: %v", err)
			os.Exit(1)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("server shutdown: %v", err)
	}
	logger.Info("server stopped accepting connections")
	routerCancel()
	routerWg.Wait()
	logger.Info("ws router stopped")
	srvWg.Wait()
	logger.Info("server goroutine exited")
}

// runMigrations накатывает встроенные SQL-миграции в лексикографическом
// порядке имён файлов.
func runMigrations(pool *pgxpool.Pool) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	entries, err := migrations.Files.ReadDir(".")
	if err != nil {
		logger.Errorf("read migrations: %v", err)
		os.Exit(1)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	for _, name := range names {
		data, err := migrations.Files.ReadFile(name)
		if err != nil {
			logger.Errorf("read migration %s: %v", name, err)
			os.Exit(1)
		}
		if _, err := pool.Exec(ctx, string(data)); err != nil {
			logger.Errorf("run migration %s: %v", name, err)
			os.Exit(1)
		}
	}
	logger.Info("migrations applied")
}

func startEmbeddedPostgres(cfg *config.Config) (*embeddedpostgres.EmbeddedPostgres, error) {
	const (
		port     = 5432
		user     = "chat"
		password = "chat_secret"
		database = "chat"
	)

	dataDir := filepath.Join(".", ".pgdata")
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create pgdata dir: %w", err)
	}

	db := embeddedpostgres.NewDatabase(
		embeddedpostgres.DefaultConfig().
			Port(port).
			Username(user).
			Password(password).
			Database(database).
			DataPath(dataDir).
			RuntimePath(filepath.Join(os.TempDir(), "embedded-pg-runtime")),
	)

	logger.Info("starting embedded PostgreSQL...")
	if err := db.Start(); err != nil {
		return nil, fmt.Errorf("start: %w", err)
	}

	cfg.Database.URL = fmt.Sprintf(
		"postgres://%s:%s@localhost:%d/%s?sslmode=disable",
		user, password, port, database,
	)
	logger.Infof("embedded PostgreSQL running on port %d", port)
	return db, nil
}
