package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"bidinsouk/internal/clock"
	"bidinsouk/internal/config"
	"bidinsouk/internal/database/auctionstore"
	"bidinsouk/internal/database/db_client"
	"bidinsouk/internal/database/migrations"
	"bidinsouk/internal/http/http_server"
	"bidinsouk/internal/notify"
	"bidinsouk/internal/orders"
	"bidinsouk/internal/redis/redis_client"
	"bidinsouk/internal/redis/snapshotcache"
	"bidinsouk/internal/redis/watcher/auctionwatcher"
	"bidinsouk/internal/services/auction"
	"bidinsouk/internal/sweeper"
	"bidinsouk/internal/ws"
)

var (
	Log, _ = zap.NewDevelopment()
)

func main() {
	defer Log.Sync()
	zap.ReplaceGlobals(Log)

	var err error
	var cfg *config.Config
	var redisClient *redis.Client
	var auctionService auction.IAuctionService

	// 1. Load configuration
	cfg, err = config.LoadConfig()
	if err != nil {
		Log.Fatal("Failed to load configuration", zap.Error(err))
	}
	Log.Debug("Configuration loaded successfully", zap.Any("config", cfg))

	// 2. Context with signal handling
	ctx, stop := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGINT, syscall.SIGTERM,
	)
	defer stop()

	// 3. Redis
	redisClient, err = redis_client.NewRedisClient(ctx, cfg.RedisHost, int(cfg.RedisPort))
	if err != nil {
		Log.Fatal("Failed to create Redis client", zap.Error(err))
	}
	defer redisClient.Close()
	Log.Debug("Redis client created successfully")

	// 4. Postgres db client + migrations
	pgDb, err := db_client.Open(ctx, cfg.PostgresHost, cfg.PostgresPort, cfg.PostgresUser, cfg.PostgresPassword, cfg.PostgresDb)
	if err != nil {
		Log.Fatal("pg-open", zap.Error(err))
	}
	defer pgDb.Close()

	migCtx, migCancel := context.WithTimeout(ctx, 30*time.Second)
	if err := migrations.Up(migCtx, pgDb); err != nil {
		migCancel()
		Log.Fatal("pg-migrate", zap.Error(err))
	}
	migCancel()

	// 5. Auction engine: store, ports and service
	store := auctionstore.New(pgDb)
	orderPort := orders.New(pgDb)
	notifier := notify.New(redisClient)
	cache := snapshotcache.New(redisClient)

	auctionService = auction.NewAuctionService(store, orderPort, notifier, cache, clock.NewSystem(), auction.Settings{
		Currency:           cfg.Currency,
		MinIncrement:       cfg.BidMinIncrement,
		EndingSoonWindow:   cfg.EndingSoonWindow,
		AntiSnipeWindow:    cfg.AntiSnipeWindow,
		AntiSnipeExtension: cfg.AntiSnipeExtension,
		MaxExtensions:      cfg.MaxExtensions,
		ScheduleGrace:      cfg.ScheduleGrace,
	})

	// 6. Background: key-expiry watcher ➜ finalise in DB
	go auctionwatcher.Run(ctx, redisClient, auctionService)

	// 7. Background: wall-clock sweep (activation / ending-soon / close)
	sweeper.Run(ctx, auctionService, cfg.SweepInterval)

	// 8. WebSockets hub + per-room Redis fan-out
	hub := ws.NewHub()
	wsSrv := ws.NewWsServer(hub, redisClient, auctionService)

	// 9. HTTP + WS server
	httpServer := http_server.NewHttpServer(ctx, cfg.HttpServerPort, wsSrv, auctionService)
	if err := httpServer.Start(); err != nil {
		Log.Fatal("Failed to start HTTP server", zap.Error(err))
	}
}
