package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/cardvault/voucher-service/internal/config"
	"github.com/cardvault/voucher-service/internal/db"
	internalhttp "github.com/cardvault/voucher-service/internal/http"
	"github.com/cardvault/voucher-service/internal/http/api/admin"
	"github.com/cardvault/voucher-service/internal/http/api/front"
	"github.com/cardvault/voucher-service/internal/models"
	"github.com/cardvault/voucher-service/internal/security"
	"github.com/cardvault/voucher-service/internal/voucher"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
	"gorm.io/gorm"
)

// Migrate opens the database and runs migrations.
func Migrate(ctx context.Context, configPath string) error {
	dsn, err := config.LoadDatabaseDSN(config.ResolveConfigPath(configPath))
	if err != nil {
		return err
	}
	conn, err := db.Open(dsn)
	if err != nil {
		return err
	}
	return db.Migrate(conn)
}

// CreateAdmin creates or re-enables an admin account with the given
// credentials. It is invoked from the command line, not over HTTP.
func CreateAdmin(ctx context.Context, configPath, username, password string) error {
	username = strings.TrimSpace(username)
	if username == "" {
		return errors.New("app: username is required")
	}
	if strings.TrimSpace(password) == "" {
		return errors.New("app: password is required")
	}

	cfg, err := config.Load(config.ResolveConfigPath(configPath))
	if err != nil {
		return err
	}
	conn, err := db.Open(cfg.Database.DSN)
	if err != nil {
		return err
	}
	if errMigrate := db.Migrate(conn); errMigrate != nil {
		return errMigrate
	}

	hash, errHash := security.HashPassword(password)
	if errHash != nil {
		return fmt.Errorf("app: hash password: %w", errHash)
	}

	return conn.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var admin models.Admin
		errFind := tx.Where("username = ?", username).First(&admin).Error
		if errFind == nil {
			return tx.Model(&admin).Updates(map[string]any{
				"password": hash,
				"active":   true,
			}).Error
		}
		if !errors.Is(errFind, gorm.ErrRecordNotFound) {
			return errFind
		}
		return tx.Create(&models.Admin{Username: username, Password: hash, Active: true}).Error
	})
}

// RunServer boots the voucher API server.
func RunServer(ctx context.Context, configPath string) error {
	cfg, err := config.Load(config.ResolveConfigPath(configPath))
	if err != nil {
		return err
	}
	setupLogging(cfg.Log)

	conn, err := db.Open(cfg.Database.DSN)
	if err != nil {
		return err
	}
	if errMigrate := db.Migrate(conn); errMigrate != nil {
		return errMigrate
	}

	svc := voucher.NewService(conn, voucher.Options{
		PINLength:          cfg.Issuance.PINLength,
		SerialNumberWidth:  cfg.Issuance.SerialNumberWidth,
		MaxBundlesPerBatch: cfg.Issuance.MaxBundlesPerBatch,
		MaxCardsPerBundle:  cfg.Issuance.MaxCardsPerBundle,
		Reservations:       newRedisClient(ctx, cfg.Redis),
	})

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery(), internalhttp.RequestLogMiddleware())

	admin.RegisterAdminRoutes(engine, conn, cfg.JWT, svc)
	front.RegisterFrontRoutes(engine, svc)

	server := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Infof("listening on %s", cfg.Server.Addr)
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if errShutdown := server.Shutdown(shutdownCtx); errShutdown != nil {
			return errShutdown
		}
		log.Info("server stopped")
		return nil
	case errServe := <-errCh:
		if errors.Is(errServe, http.ErrServerClosed) {
			return nil
		}
		return errServe
	}
}

// setupLogging configures logrus with JSON output and optional file
// rotation.
func setupLogging(cfg config.LogConfig) {
	level, errLevel := log.ParseLevel(cfg.Level)
	if errLevel != nil {
		level = log.InfoLevel
	}
	log.SetLevel(level)
	log.SetFormatter(&log.JSONFormatter{TimestampFormat: time.RFC3339})

	if strings.TrimSpace(cfg.File) == "" {
		return
	}
	rotated := &lumberjack.Logger{
		Filename:   cfg.File,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
		Compress:   true,
	}
	log.SetOutput(io.MultiWriter(os.Stderr, rotated))
}

// newRedisClient connects to Redis for serial reservations. Failure is not
// fatal: the service falls back to database-backed reservation checks.
func newRedisClient(ctx context.Context, cfg config.RedisConfig) *redis.Client {
	if strings.TrimSpace(cfg.Addr) == "" {
		return nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if errPing := client.Ping(pingCtx).Err(); errPing != nil {
		log.Warnf("redis unavailable, falling back to database reservations: %v", errPing)
		return nil
	}
	return client
}
