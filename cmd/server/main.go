package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"paperfolio/internal/auth"
	"paperfolio/internal/config"
	"paperfolio/internal/db"
	"paperfolio/internal/handlers"
	"paperfolio/internal/ledger"
	"paperfolio/internal/portfolio"
	"paperfolio/internal/quote"
	"paperfolio/internal/trade"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	// API_KEY is required: the process refuses to serve without the quote
	// provider credential.
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger, _ := zap.NewProduction()
	defer logger.Sync()

	database, err := db.Open(cfg)
	if err != nil {
		logger.Fatal("db", zap.Error(err))
	}
	defer database.Close()

	if err := db.EnsureSchema(database); err != nil {
		logger.Fatal("schema", zap.Error(err))
	}

	quotes := quote.New(cfg.QuoteAPIURL, cfg.QuoteAPIKey, cfg.QuoteTimeout)
	authSvc := auth.New(database)
	ledgerStore := ledger.NewStore(database)
	engine := portfolio.NewEngine(ledgerStore, quotes)

	executor := trade.NewExecutor(database, quotes, cfg.NumWorkers, logger)
	executor.Start()
	defer executor.Stop()

	if os.Getenv("GIN_MODE") == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	s := handlers.NewServer(authSvc, ledgerStore, engine, executor, quotes,
		logger, cfg.SessionSecret, "web/templates/*.tmpl")

	server := &http.Server{Addr: ":" + cfg.Port, Handler: s.R}
	go func() {
		logger.Info("http listening", zap.String("port", cfg.Port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("http", zap.Error(err))
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	ctxShut, cancelShut := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShut()
	_ = server.Shutdown(ctxShut)
	logger.Info("shutdown complete")
}
