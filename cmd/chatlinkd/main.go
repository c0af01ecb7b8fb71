package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	_ "github.com/lib/pq"

	"github.com/chatlink-app/chatlink/internal/api"
	"github.com/chatlink-app/chatlink/internal/config"
	"github.com/chatlink-app/chatlink/internal/database"
	"github.com/chatlink-app/chatlink/internal/presence"
	"github.com/chatlink-app/chatlink/internal/server"
	"github.com/chatlink-app/chatlink/internal/stats"
	"github.com/chatlink-app/chatlink/internal/storage"
)

const defaultSigningKey = "wT0phFUusHZIrDhL9bUKPUhwaxKhpi/SaI6PtgB+MgU="

type stringSliceFlag []string

func (s *stringSliceFlag) String() string {
	return strings.Join(*s, ",")
}

func (s *stringSliceFlag) Set(value string) error {
	*s = append(*s, strings.Split(value, ",")...)
	return nil
}

var (
	addr             string
	dsn              string
	signingKey       string
	allowedOrigins   stringSliceFlag
	redisAddr        string
	storageEndpoint  string
	storageAccessKey string
	storageSecretKey string
	storageUseSSL    bool
)

func main() {
	flag.StringVar(&addr, "addr", "localhost:8000", "server address")
	flag.StringVar(&dsn, "dsn", "host=localhost user=postgres password=postgres dbname=postgres sslmode=disable", "database connection string")
	flag.StringVar(&signingKey, "signing-key", defaultSigningKey, "base64 encoded signing key")
	flag.Var(&allowedOrigins, "allowed-origins", "comma-separated list of allowed origins for CORS")
	flag.StringVar(&redisAddr, "redis-addr", "", "redis address for presence tracking (empty disables presence)")
	flag.StringVar(&storageEndpoint, "storage-endpoint", "", "object storage endpoint for uploads (empty disables uploads)")
	flag.StringVar(&storageAccessKey, "storage-access-key", "", "object storage access key")
	flag.StringVar(&storageSecretKey, "storage-secret-key", "", "object storage secret key")
	flag.BoolVar(&storageUseSSL, "storage-use-ssl", false, "use TLS when talking to object storage")
	flag.Parse()

	logger := log.New(os.Stderr, "[chatlink] ", log.LstdFlags)

	cfg, err := config.NewConfig(addr, dsn, signingKey, allowedOrigins)
	if err != nil {
		logger.Fatal("config:", err)
	}
	cfg.RedisAddr = redisAddr
	cfg.StorageEndpoint = storageEndpoint
	cfg.StorageAccessKey = storageAccessKey
	cfg.StorageSecretKey = storageSecretKey
	cfg.StorageUseSSL = storageUseSSL

	dbConn, err := database.NewPgChatLinkRepository(cfg.DatabaseDSN)
	if err != nil {
		logger.Fatal("db open:", err)
	}
	defer func() {
		if err := dbConn.Close(); err != nil {
			logger.Fatal("db close:", err)
		}
	}()

	var tracker *presence.Tracker
	if cfg.RedisAddr != "" {
		tracker, err = presence.NewTracker(cfg.RedisAddr)
		if err != nil {
			logger.Fatal("presence:", err)
		}
		defer tracker.Close()
	} else {
		logger.Println("presence tracking disabled")
	}

	var store storage.BlobStore
	if cfg.StorageEndpoint != "" {
		store, err = storage.NewMinioStore(cfg.StorageEndpoint, cfg.StorageAccessKey, cfg.StorageSecretKey, cfg.StorageUseSSL)
		if err != nil {
			logger.Fatal("storage:", err)
		}
	} else {
		logger.Println("uploads disabled")
	}

	mux := http.NewServeMux()

	statsUpdater := stats.NewStatsUpdater(mux)

	chatServer, err := server.NewChatServer(logger, dbConn, statsUpdater, tracker)
	if err != nil {
		logger.Fatal("new chat server:", err)
	}

	srv := api.NewChatLinkApp(mux, logger, chatServer, dbConn, statsUpdater, tracker, store, cfg)

	statsUpdater.Run()
	defer statsUpdater.Stop()

	go chatServer.Run()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigs:
		logger.Printf("received signal: %s\n", sig)
	case err := <-errCh:
		logger.Println("server:", err)
	}

	shutDownCtx, cancel := context.WithTimeout(
		context.Background(),
		10*time.Second,
	)
	defer cancel()

	if err := srv.Shutdown(shutDownCtx); err != nil {
		logger.Fatalln("HTTP server shutdown:", err)
	}

	logger.Println("shutting down chat server...")
	if err := chatServer.Shutdown(shutDownCtx); err != nil {
		logger.Fatalln("chat server shutdown:", err)
	}

	logger.Println("shutdown complete")
}
