package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	v1 "github.com/SCS-Technik/Assixx-sub005/cmd/api/router/v1"
	"github.com/SCS-Technik/Assixx-sub005/internal/config"
	"github.com/SCS-Technik/Assixx-sub005/internal/infrastructure/auth"
	cacheAdapter "github.com/SCS-Technik/Assixx-sub005/internal/infrastructure/cache/adapter"
	cacheport "github.com/SCS-Technik/Assixx-sub005/internal/infrastructure/cache/port"
	"github.com/SCS-Technik/Assixx-sub005/internal/infrastructure/database"
	queueAdapter "github.com/SCS-Technik/Assixx-sub005/internal/infrastructure/queue/adapter"
	qport "github.com/SCS-Technik/Assixx-sub005/internal/infrastructure/queue/port"
	"github.com/SCS-Technik/Assixx-sub005/internal/infrastructure/realtime"
	"github.com/SCS-Technik/Assixx-sub005/internal/pkg/chat/application/task"
	"github.com/SCS-Technik/Assixx-sub005/internal/pkg/chat/application/usecase"
	"github.com/SCS-Technik/Assixx-sub005/internal/pkg/chat/application/worker"
	repoAdapter "github.com/SCS-Technik/Assixx-sub005/internal/pkg/chat/persistence/repository/adapter"
	"github.com/SCS-Technik/Assixx-sub005/internal/pkg/chat/presentation/controller"
)

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Warn(".env file not found or could not be loaded", "err", err)
	}

	log := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(log)

	cfg, err := config.Load("")
	if err != nil {
		log.Error("failed to load config", "err", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	connectCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	pool, err := database.Connect(connectCtx, cfg.Database.DSN)
	cancel()
	if err != nil {
		log.Error("failed to connect to database", "err", err)
		os.Exit(1)
	}
	defer pool.Close()

	var cache cacheport.Cache
	if cfg.Redis.URL != "" {
		redisCache, err := cacheAdapter.NewRedisAdapter(cfg.Redis.URL)
		if err != nil {
			log.Error("failed to connect to redis", "err", err)
			os.Exit(1)
		}
		defer redisCache.Close()
		cache = redisCache
	}

	var queueClient qport.Client
	var queueServer qport.Server
	if cfg.Redis.URL != "" {
		client, err := queueAdapter.NewAsynqClient(cfg.Redis.URL)
		if err != nil {
			log.Error("failed to create asynq client", "err", err)
			os.Exit(1)
		}
		defer client.Close()
		queueClient = client

		server, err := queueAdapter.NewAsynqServer(cfg.Redis.URL, cfg.Chat.AsynqConcurrency, log)
		if err != nil {
			log.Error("failed to create asynq server", "err", err)
			os.Exit(1)
		}
		queueServer = server
	}

	registry := realtime.NewRegistry()
	defer registry.Close()

	verifier := auth.NewVerifier(cfg.JWT.Secret)
	repo := repoAdapter.NewPgChatRepository(pool)
	displayUC := usecase.NewGetUserDisplayUseCase(repo, cache)

	socket := controller.NewChatSocketController(repo, cache, registry, verifier, queueClient, log, controller.SocketOptions{
		EchoToSender: cfg.Chat.EchoToSender,
		QueueOffline: cfg.Chat.QueueOffline,
	})

	var wg sync.WaitGroup

	deliveryWorker := worker.NewDeliveryQueueWorker(repo, registry, displayUC, log).
		WithCadence(cfg.Chat.DeliveryInterval, cfg.Chat.DeliveryBatch, cfg.Chat.MaxAttempts)
	scheduledWorker := worker.NewScheduledMessageWorker(repo, registry, displayUC, log).
		WithInterval(cfg.Chat.ScheduledInterval)
	heartbeatWorker := worker.NewHeartbeatWorker(registry, log).
		WithInterval(cfg.Chat.HeartbeatInterval)

	wg.Add(3)
	go func() { defer wg.Done(); deliveryWorker.Run(ctx) }()
	go func() { defer wg.Done(); scheduledWorker.Run(ctx) }()
	go func() { defer wg.Done(); heartbeatWorker.Run(ctx) }()

	if queueServer != nil {
		task.RegisterNotifyOfflineTask(queueServer, repo, registry, displayUC, log)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := queueServer.Run(ctx); err != nil {
				log.Error("asynq server stopped", "err", err)
			}
		}()
	}

	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.Default()
	v1.RegisterRoutes(r, socket)

	srv := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: r,
	}

	go func() {
		log.Info("chat transport listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server failed", "err", err)
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown", "err", err)
	}

	registry.Close()
	wg.Wait()
}
