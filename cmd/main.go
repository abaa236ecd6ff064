package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/osslararemellan/ole/config"
	"github.com/osslararemellan/ole/internal/handlers"
	"github.com/osslararemellan/ole/internal/realtime"
	"github.com/osslararemellan/ole/internal/repositories"
	"github.com/osslararemellan/ole/internal/routers"
	"github.com/osslararemellan/ole/internal/services"
	"github.com/osslararemellan/ole/internal/session"
	"github.com/osslararemellan/ole/internal/storage"
	"github.com/osslararemellan/ole/internal/utils"
	"github.com/osslararemellan/ole/middleware/jwt"
	logger "github.com/osslararemellan/ole/middleware/log"
	"github.com/osslararemellan/ole/pkg/mq"
	"github.com/osslararemellan/ole/pkg/ws"
	"github.com/osslararemellan/ole/utils/ratelimit"
	"github.com/osslararemellan/ole/utils/snowflake"
)

func main() {
	path := flag.String("config", "./config.toml", "config file; empty reads OLE_* variables only")
	flag.Parse()

	if err := run(*path); err != nil {
		fmt.Fprintln(os.Stderr, "ole:", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return err
	}

	lg, err := logger.NewLogger(&cfg.Logging)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer lg.Close()
	zl := lg.Logger

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := storage.InitPostgres(cfg.Postgres, cfg.Server.Mode == gin.DebugMode, zl)
	if err != nil {
		return err
	}
	rdb, err := storage.InitRedis(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	defer rdb.Close()

	var blobs storage.BlobStore = storage.DisabledStore{}
	if cfg.S3Enabled() {
		client, err := storage.NewS3Client(ctx, cfg.S3)
		if err != nil {
			return err
		}
		blobs = storage.NewS3Store(client, cfg.S3.Bucket, time.Duration(cfg.S3.URLExpiryMins)*time.Minute)
	} else {
		zl.Warn("s3 bucket not configured, uploads are disabled")
	}

	ids, err := snowflake.NewGenerator(cfg.Server.NodeID)
	if err != nil {
		return fmt.Errorf("snowflake: %w", err)
	}
	limiter := ratelimit.NewWindowLimiter(rdb, ratelimit.Rules(cfg.RateLimit), zl, cfg.RateLimit.FailOpen)

	pool := utils.NewWorkerPool(cfg.WorkerPool.Size, cfg.WorkerPool.QueueSize, zl)
	pool.Start()
	defer pool.Stop()

	// Changes go to the durable log when Kafka is configured; the relay
	// fans them out to Redis for live sessions.
	redisPub := realtime.NewRedisPublisher(rdb)
	var publisher realtime.Publisher = redisPub
	if cfg.KafkaEnabled() {
		producer, err := mq.NewChangeProducer(cfg.Kafka, redisPub, zl)
		if err != nil {
			zl.Warn("kafka unavailable, publishing changes to redis only", zap.Error(err))
		} else {
			defer producer.Close()
			publisher = producer

			group, err := mq.NewConsumerGroup(cfg.Kafka)
			if err != nil {
				return err
			}
			defer group.Close()
			go mq.RunRelay(ctx, group, cfg.Kafka.Topic, mq.NewChangeRelay(redisPub, zl), zl)
		}
	}

	profileRepo := repositories.NewProfileRepository(db, rdb)
	resourceRepo := repositories.NewResourceRepository(db)
	fileRepo := repositories.NewFileRepository(db)

	profileSvc := services.NewProfileService(profileRepo, zl)
	groupSvc := services.NewGroupService(repositories.NewGroupRepository(db), profileRepo, publisher, zl)
	messageSvc := services.NewMessageService(services.MessageDeps{
		Messages:  repositories.NewMessageRepository(db),
		Groups:    groupSvc,
		Profiles:  profileRepo,
		Files:     fileRepo,
		Resources: resourceRepo,
		Blobs:     blobs,
		IDs:       ids,
		Limiter:   limiter,
		Publisher: publisher,
		Limits:    cfg.Messaging,
		Logger:    zl,
	})
	contactSvc := services.NewContactService(messageSvc, repositories.NewContactRepository(db), profileRepo, zl)
	fileSvc := services.NewFileService(fileRepo, blobs, cfg.Messaging.MaxUploadBytes, zl)
	resourceSvc := services.NewResourceService(resourceRepo, zl)

	sessions := session.NewRegistry()
	hub := ws.NewHub(session.Deps{
		Contacts:     contactSvc,
		Groups:       groupSvc,
		Messages:     messageSvc,
		Files:        fileSvc,
		Redis:        rdb,
		Pool:         pool,
		MaxMaterials: cfg.Messaging.MaxMaterials,
		MaxFiles:     cfg.Messaging.MaxFiles,
		Logger:       zl,
	}, sessions, strconv.FormatInt(cfg.Server.NodeID, 10), zl)
	go hub.Run()

	gin.SetMode(cfg.Server.Mode)
	r := gin.New()
	routers.SetupRoutes(r, routers.Deps{
		Logger:        lg,
		Tokens:        jwt.NewTokenManager(cfg.JWT.Secret, cfg.JWT.ExpireHours),
		Limiter:       limiter,
		Pool:          pool,
		Hub:           hub,
		CORSOrigins:   cfg.Server.CORSOrigins,
		Profiles:      handlers.NewProfileHandler(profileSvc, lg),
		Contacts:      handlers.NewContactHandler(contactSvc, lg),
		Groups:        handlers.NewGroupHandler(groupSvc, lg),
		Conversations: handlers.NewConversationHandler(messageSvc, lg),
		Resources:     handlers.NewResourceHandler(resourceSvc, lg),
		Files:         handlers.NewFileHandler(fileSvc, sessions, lg),
	})

	srv := &http.Server{
		Addr:              ":" + strconv.Itoa(cfg.Server.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	serveErr := make(chan error, 1)
	go func() {
		zl.Info("server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("serve: %w", err)
		}
	case <-ctx.Done():
	}

	zl.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zl.Warn("http shutdown", zap.Error(err))
	}
	hub.Shutdown()
	sessions.CloseAll()
	// Drain queued jobs while the publishers and redis are still open.
	pool.Stop()
	return nil
}
