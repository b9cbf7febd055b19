package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/chris-fellows/cf-message-queue-sub000/internal/audit"
	"github.com/chris-fellows/cf-message-queue-sub000/internal/config"
	"github.com/chris-fellows/cf-message-queue-sub000/internal/hub"
	"github.com/chris-fellows/cf-message-queue-sub000/internal/notify"
	"github.com/chris-fellows/cf-message-queue-sub000/internal/queue"
	"github.com/chris-fellows/cf-message-queue-sub000/internal/repository/memory"
	minioRepo "github.com/chris-fellows/cf-message-queue-sub000/internal/repository/minio"
	tarantoolRepo "github.com/chris-fellows/cf-message-queue-sub000/internal/repository/tarantool"
	"github.com/chris-fellows/cf-message-queue-sub000/internal/security"
	"github.com/chris-fellows/cf-message-queue-sub000/internal/transport"
	"github.com/chris-fellows/cf-message-queue-sub000/internal/wire"
	"github.com/chris-fellows/cf-message-queue-sub000/pkg/logger"
)

var (
	configPath = flag.String("config", "", "Path to configuration file (optional)")
)

// notifySendTimeout bounds one notification push.
const notifySendTimeout = 5 * time.Second

func main() {
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize logger
	appLogger, err := logger.New(logger.Config{
		Level:      cfg.Logger.Level,
		Format:     cfg.Logger.Format,
		OutputPath: cfg.Logger.OutputPath,
	})
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer appLogger.Sync()

	appLogger.Info("Starting message hub",
		logger.String("address", cfg.Hub.Address),
		logger.Int("port", cfg.Hub.Port),
		logger.String("storage", cfg.Storage.Backend),
	)

	ctx := context.Background()

	// Initialize Vault client if enabled
	vaultClient, err := config.NewVaultClient(&cfg.Vault)
	if err != nil {
		appLogger.Fatal("Failed to create Vault client", logger.Error(err))
	}

	// Apply Vault secrets to configuration
	if vaultClient != nil {
		appLogger.Info("Loading secrets from Vault")
		if err := config.ApplyVaultSecrets(ctx, cfg, vaultClient); err != nil {
			appLogger.Fatal("Failed to apply Vault secrets", logger.Error(err))
		}
		appLogger.Info("Secrets loaded from Vault successfully")
	} else {
		appLogger.Info("Vault is disabled - using configuration file values")
	}

	// Initialize the storage backend
	var repos hub.Repositories
	switch cfg.Storage.Backend {
	case "tarantool":
		appLogger.Info("Connecting to Tarantool", logger.String("address", cfg.Tarantool.Address))
		conn, err := tarantoolRepo.Connect(ctx, &tarantoolRepo.Config{
			Address:  cfg.Tarantool.Address,
			User:     cfg.Tarantool.User,
			Password: cfg.Tarantool.Password,
			Timeout:  cfg.Tarantool.Timeout,
		}, appLogger)
		if err != nil {
			appLogger.Fatal("Failed to connect to Tarantool", logger.Error(err))
		}
		defer conn.Close()

		if err := conn.Ping(); err != nil {
			appLogger.Fatal("Failed to ping Tarantool", logger.Error(err))
		}
		appLogger.Info("✓ Connected to Tarantool")

		repos = hub.Repositories{
			Hubs:     tarantoolRepo.NewHubRepository(conn),
			Clients:  tarantoolRepo.NewClientRepository(conn),
			Queues:   tarantoolRepo.NewQueueRepository(conn),
			Messages: tarantoolRepo.NewMessageRepository(conn),
		}

	default:
		repos = hub.Repositories{
			Hubs:     memory.NewHubRepository(),
			Clients:  memory.NewClientRepository(),
			Queues:   memory.NewQueueRepository(),
			Messages: memory.NewMessageRepository(),
		}
	}

	// Initialize the content blob store if payload offload is enabled
	var offloadThreshold int
	if cfg.Content.Enabled {
		appLogger.Info("Connecting to MinIO",
			logger.String("endpoint", cfg.Content.Endpoint),
			logger.String("bucket", cfg.Content.BucketName),
		)
		store, err := minioRepo.NewStore(&minioRepo.Config{
			Endpoint:        cfg.Content.Endpoint,
			AccessKeyID:     cfg.Content.AccessKeyID,
			SecretAccessKey: cfg.Content.SecretAccessKey,
			UseSSL:          cfg.Content.UseSSL,
			BucketName:      cfg.Content.BucketName,
		}, appLogger)
		if err != nil {
			appLogger.Fatal("Failed to create MinIO client", logger.Error(err))
		}
		if err := store.EnsureBucket(ctx); err != nil {
			appLogger.Fatal("Failed to ensure MinIO bucket", logger.Error(err))
		}
		appLogger.Info("✓ Connected to MinIO")

		repos.Content = store
		offloadThreshold = cfg.Content.OffloadThreshold
	}

	// Initialize the audit sink
	sink, err := audit.NewLog(cfg.Audit.OutputPath)
	if err != nil {
		appLogger.Fatal("Failed to create audit sink", logger.Error(err))
	}

	// Initialize the security authority and the subscription notifier
	authority := security.NewAuthority(repos.Clients, cfg.Timers.IdentityRefresh, appLogger)
	notifier := notify.NewNotifier(notifySender(), appLogger)

	service := hub.NewService(hub.Config{
		Address:        cfg.Hub.Address,
		Port:           cfg.Hub.Port,
		PortRangeStart: cfg.Hub.PortRangeStart,
		PortRangeEnd:   cfg.Hub.PortRangeEnd,
		AdminName:      cfg.Hub.AdminName,
		AdminSecretKey: cfg.Hub.AdminSecretKey,
		Engine: queue.Config{
			PollInterval:     cfg.Timers.LeasePollInterval,
			SweepInterval:    cfg.Timers.SweepInterval,
			FlushInterval:    cfg.Timers.NotifyFlushInterval,
			OffloadThreshold: offloadThreshold,
		},
	}, repos, authority, notifier, sink, appLogger)

	if err := service.Start(ctx); err != nil {
		appLogger.Fatal("Failed to start hub", logger.Error(err))
	}
	appLogger.Info("✓ Hub listening", logger.String("address", service.Addr()))
	appLogger.Info("Ready to accept requests...")

	// Handle graceful shutdown
	sigint := make(chan os.Signal, 1)
	signal.Notify(sigint, os.Interrupt, syscall.SIGTERM)
	<-sigint

	appLogger.Info("Received shutdown signal, shutting down gracefully...")
	if err := service.Stop(ctx); err != nil {
		appLogger.Error("Shutdown failed", logger.Error(err))
	}
}

// notifySender pushes notification envelopes to subscriber reply addresses.
func notifySender() notify.Sender {
	return notify.SenderFunc(func(ctx context.Context, addr string, n *wire.MessageQueueNotification) error {
		env, err := wire.NewEnvelope(uuid.NewString(), wire.TypeMessageQueueNotification, n)
		if err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(ctx, notifySendTimeout)
		defer cancel()
		return transport.SendOneWay(ctx, env, addr)
	})
}
