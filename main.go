package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"proconnect/internal/access"
	"proconnect/internal/config"
	"proconnect/internal/database/db_client"
	"proconnect/internal/history"
	"proconnect/internal/http/http_server"
	"proconnect/internal/identity"
	"proconnect/internal/occupancy"
	"proconnect/internal/redis/redis_client"
	"proconnect/internal/redis/redis_functions"
	"proconnect/internal/redis/watcher/roomwatcher"
	"proconnect/internal/relay"
	"proconnect/internal/services/directory"
	"proconnect/internal/services/room"
	"proconnect/internal/ws"

	"go.uber.org/zap"
)

var (
	Log, _ = zap.NewDevelopment()
)

func main() {
	defer Log.Sync()
	zap.ReplaceGlobals(Log)

	// 1. Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		Log.Fatal("Failed to load configuration", zap.Error(err))
	}
	Log.Debug("Configuration loaded successfully",
		zap.Uint16("http_port", cfg.HttpServerPort),
		zap.Duration("access_check_timeout", cfg.AccessCheckTimeout),
		zap.Int("outbox_size", cfg.OutboxSize),
	)

	// 2. Context with signal handling
	ctx, stop := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGINT, syscall.SIGTERM,
	)
	defer stop()

	// 3. Redis
	redisClient, err := redis_client.NewRedisClient(ctx, cfg.RedisHost, int(cfg.RedisPort))
	if err != nil {
		Log.Fatal("Failed to create Redis client", zap.Error(err))
	}
	defer redisClient.Close()

	// Load the Redis Functions lua
	libs, err := redis_functions.LoadAll(ctx, redisClient)
	if err != nil {
		Log.Fatal("load-redis-funcs", zap.Error(err))
	}
	Log.Debug("Redis functions loaded", zap.Strings("libraries", libs))

	// 4. Postgres db client
	pgDb, err := db_client.Open(ctx, cfg.PostgresHost, cfg.PostgresPort, cfg.PostgresUser, cfg.PostgresPassword, cfg.PostgresDb)
	if err != nil {
		Log.Fatal("pg-open", zap.Error(err))
	}
	defer pgDb.Close()

	// 5. Access gate + relay engine
	directorySvc := directory.NewDirectoryService(pgDb)
	gate := access.NewGate(directorySvc, cfg.AccessCheckTimeout)

	sink := history.NewRedisSink(redisClient, cfg.HistoryBuffer, cfg.HistoryStreamMaxLen)
	go sink.Run(ctx)

	engine := relay.NewEngine(gate, sink)
	engine.Presence().Observe(func(p relay.Presence) {
		if p.Initial {
			return
		}
		Log.Debug("presence",
			zap.String("kind", string(p.Kind)),
			zap.String("room", p.RoomID),
			zap.String("conn", p.ConnID),
			zap.String("reason", p.Reason),
			zap.Int("members", p.Members),
		)
	})

	// 6. Background: history tailer, occupancy mirror, retired-room watcher
	history.NewSyncer(redisClient, pgDb).Run(ctx)
	occupancy.Run(ctx, redisClient, engine, cfg.OccupancyInterval)
	go roomwatcher.Run(ctx, redisClient, engine)

	// 7. Initialize the WS server
	resolver := identity.NewResolver(cfg.JwtSecret)
	wsSrv := ws.NewWsServer(engine, resolver, ws.Options{
		OutboxSize: cfg.OutboxSize,
		ReadLimit:  cfg.ReadLimit,
	})

	// 8. HTTP + WS server
	roomSvc := room.NewRoomService(redisClient, pgDb, directorySvc, engine)
	httpServer := http_server.NewHttpServer(ctx, cfg.HttpServerPort, wsSrv, roomSvc, engine, resolver, gate)

	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		<-ctx.Done()
		Log.Info("shutting down")
		_ = httpServer.Dispose()
		n := engine.CloseAll()
		Log.Info("connections closed", zap.Int("count", n))
	}()

	if err := httpServer.Start(); err != nil {
		Log.Fatal("Failed to start HTTP server", zap.Error(err))
	}
	<-stopped
}
