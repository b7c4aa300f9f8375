package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/personainsights/server/internal/api"
	"github.com/personainsights/server/internal/app"
	"github.com/personainsights/server/internal/app/maintenance"
	iauth "github.com/personainsights/server/internal/auth"
	"github.com/personainsights/server/internal/cache"
	"github.com/personainsights/server/internal/database"
	"github.com/personainsights/server/internal/middleware"
	"github.com/personainsights/server/internal/realtime"
	"github.com/personainsights/server/pkg/logger"
	"github.com/personainsights/server/pkg/mail"
)

const shutdownTimeout = 15 * time.Second

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	defer stop()

	if err := run(ctx, os.Args[1:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("personainsights-server", flag.ContinueOnError)
	fs.SetOutput(os.Stdout)

	var configPath string
	fs.StringVar(&configPath, "config", "", "Configuration directory or file")

	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := loadApplicationConfig(configPath)
	if err != nil {
		return err
	}

	generated, err := app.ApplyRuntimeDefaults(cfg)
	if err != nil {
		return err
	}

	if err := app.ConfigureLogging(cfg.Server.LogLevel); err != nil {
		return fmt.Errorf("set up logging: %w", err)
	}
	defer logger.Sync() // best effort

	log := logger.WithScope("bootstrap")
	for key := range generated {
		log.Info("generated missing secret at startup", zap.String("key", key))
	}

	db, err := initialiseDatabase(cfg)
	if err != nil {
		return err
	}
	defer closeDatabase(db, log)

	dbStore := cache.NewDatabaseStore(db)

	var redisClient cache.Store
	if cfg.Cache.Redis.Enabled {
		client, redisErr := cache.NewRedisClient(cfg.Cache.Redis.RedisConfig())
		if redisErr != nil {
			log.Warn("redis connection failed, using database-backed cache", zap.Error(redisErr))
		} else {
			redisClient = client
			log.Info("connected to redis", zap.String("addr", cfg.Cache.Redis.Address))
		}
	}

	defer func() {
		if rc, ok := redisClient.(*cache.RedisClient); ok && rc != nil {
			_ = rc.Close()
		}
	}()

	var cacheStore cache.Store = dbStore
	if redisClient != nil {
		cacheStore = redisClient
	}

	jwtService, err := iauth.NewJWTService(cfg.Auth.JWTServiceConfig())
	if err != nil {
		return fmt.Errorf("init jwt service: %w", err)
	}

	mailer, err := mail.NewSMTPMailer(cfg.Email.SMTP.SMTPSettings())
	if err != nil {
		return fmt.Errorf("initialise mailer: %w", err)
	}
	if !cfg.Email.SMTP.Enabled {
		log.Info("smtp delivery disabled; invitation links must be shared manually")
	}

	var cleaner *maintenance.Cleaner
	if cfg.Maintenance.Enabled {
		cleaner = maintenance.NewCleaner(db,
			maintenance.WithSchedule(cfg.Maintenance.Schedule),
			maintenance.WithResolvedRetention(cfg.Maintenance.ResolvedRetention),
			maintenance.WithExpiredRetention(cfg.Maintenance.ExpiredRetention),
			maintenance.WithNotificationRetention(cfg.Maintenance.NotificationRetention),
		)
		if err := cleaner.Start(); err != nil {
			return fmt.Errorf("start maintenance scheduler: %w", err)
		}
		defer func() {
			stopCtx := cleaner.Stop()
			if err := cleaner.RunOnce(stopCtx); err != nil {
				log.Warn("final maintenance sweep failed", zap.Error(err))
			}
		}()
	}

	var rateStore middleware.RateStore
	switch {
	case redisClient != nil:
		rateStore = middleware.NewRedisRateStore(redisClient)
	default:
		rateStore = middleware.NewDatabaseRateStore(dbStore)
	}

	router, err := api.NewRouter(db, jwtService, cfg, api.Dependencies{
		Hub:       realtime.NewHub(),
		Mailer:    mailer,
		Cache:     cacheStore,
		RateStore: rateStore,
	})
	if err != nil {
		return fmt.Errorf("construct router: %w", err)
	}

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info("http server listening", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case <-ctx.Done():
		log.Info("received shutdown signal")
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("shutdown http server: %w", err)
	}

	if err, ok := <-serverErr; ok && err != nil {
		return fmt.Errorf("http server: %w", err)
	}

	log.Info("server shut down cleanly")
	return nil
}

func loadApplicationConfig(path string) (*app.Config, error) {
	switch {
	case strings.TrimSpace(path) == "":
		return app.LoadConfig()
	default:
		info, err := os.Stat(path)
		if err == nil {
			if info.IsDir() {
				return app.LoadConfig(path)
			}
			return app.LoadConfig(filepath.Dir(path))
		}
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("configuration path %q not found", path)
		}
		return nil, fmt.Errorf("inspect configuration path: %w", err)
	}
}

func initialiseDatabase(cfg *app.Config) (*gorm.DB, error) {
	dbCfg := cfg.Database.Connection()
	db, err := database.Open(dbCfg)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}

	if err := database.Prepare(db); err != nil {
		return nil, fmt.Errorf("prepare database: %w", err)
	}

	log := logger.WithScope("database")
	log.Info("database ready", zap.String("driver", strings.ToLower(strings.TrimSpace(dbCfg.Driver))))

	return db, nil
}

func closeDatabase(db *gorm.DB, log *zap.Logger) {
	if db == nil {
		return
	}

	sqlDB, err := db.DB()
	if err != nil {
		log.Warn("retrieve sql handle for close", zap.Error(err))
		return
	}

	if err := sqlDB.Close(); err != nil {
		log.Warn("close database", zap.Error(err))
	}
}
