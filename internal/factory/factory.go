package factory

import (
	"context"
	"fmt"
	"sync"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	"github.com/go-chi/chi/v5"

	"gateway-service/internal/analytics"
	"gateway-service/internal/auth"
	"gateway-service/internal/bucketing"
	"gateway-service/internal/client"
	"gateway-service/internal/config"
	"gateway-service/internal/docs"
	"gateway-service/internal/encryption"
	"gateway-service/internal/gateway"
	"gateway-service/internal/handler"
	"gateway-service/internal/ratelimit"
	redisrepo "gateway-service/internal/repository/redis"
	"gateway-service/internal/repository/scylla"
	"gateway-service/internal/tls"
	"gateway-service/internal/token"
	"gateway-service/internal/util"
)

// Factory builds and owns the lifecycle of every dependency. Backends
// are optional: with Redis or Scylla disabled the in-memory fallbacks
// serve, which keeps local development to a single process.
type Factory struct {
	config     *config.Config
	tlsManager *tls.TLSManager

	// Clients
	redisClient      *client.RedisClient
	scyllaClient     *scylla.ScyllaClient
	kafkaProducer    *client.KafkaProducer
	esClient         *client.ESClient
	clickhouseClient *client.ClickHouseClient

	// Managers
	encryptionManager *encryption.Manager
	bucketingManager  *bucketing.Manager

	// Core services
	tokenStore *token.Store
	legacyAuth *auth.LegacyAuthenticator
	resolver   *auth.Resolver
	limiter    *ratelimit.Limiter
	recorder   *analytics.Recorder

	janitorCancel context.CancelFunc

	closeOnce sync.Once
	closed    chan struct{}
}

// NewFactory loads configuration and initializes all dependencies.
func NewFactory() (*Factory, error) {
	cfg := config.LoadConfig()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	util.Init(cfg.Environment, cfg.Logging.Level, cfg.Logging.Format)

	f := &Factory{
		config: cfg,
		closed: make(chan struct{}),
	}

	if cfg.Server.EnableTLS {
		f.tlsManager = tls.NewTLSManager(&tls.TLSConfig{
			EnableTLS:   cfg.Server.EnableTLS,
			AutoCert:    cfg.Server.AutoCert,
			Domain:      cfg.Server.Domain,
			CertFile:    cfg.Server.CertFile,
			KeyFile:     cfg.Server.KeyFile,
			AutoCertDir: cfg.Server.AutoCertDir,
			Email:       cfg.Server.Email,
			Environment: cfg.Environment,
		})
	}

	if err := f.initializeClients(); err != nil {
		return nil, fmt.Errorf("failed to initialize clients: %w", err)
	}
	if err := f.initializeServices(); err != nil {
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	util.Info("Factory initialized successfully",
		util.String("environment", cfg.Environment),
		util.Bool("tls_enabled", cfg.Server.EnableTLS),
		util.Bool("redis_enabled", cfg.Redis.Enabled),
		util.Bool("scylla_enabled", cfg.Scylla.Enabled),
		util.Bool("analytics_enabled", cfg.Analytics.Enabled),
	)
	return f, nil
}

func (f *Factory) initializeClients() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var initErrors []error

	if f.config.Redis.Enabled {
		if c, err := client.NewRedisClient(f.config, util.Get()); err != nil {
			initErrors = append(initErrors, fmt.Errorf("redis: %w", err))
		} else {
			f.redisClient = c
			if err := f.redisClient.HealthCheck(ctx); err != nil {
				initErrors = append(initErrors, fmt.Errorf("redis health check: %w", err))
			} else {
				util.Info("Redis client initialized and healthy")
			}
		}
	}

	if f.config.Scylla.Enabled {
		if c, err := scylla.NewScyllaClient(f.config); err != nil {
			initErrors = append(initErrors, fmt.Errorf("scylla: %w", err))
		} else {
			f.scyllaClient = c
			if err := f.scyllaClient.HealthCheck(); err != nil {
				initErrors = append(initErrors, fmt.Errorf("scylla health check: %w", err))
			} else {
				util.Info("ScyllaDB client initialized and healthy")
			}
		}
	}

	if f.config.Kafka.Enabled {
		if producer, err := client.NewKafkaProducer(f.config); err != nil {
			util.Warn("Kafka producer initialization failed, proceeding without Kafka", util.ErrorField(err))
		} else {
			f.kafkaProducer = producer
		}
	}

	if f.config.ClickHouse.Enabled {
		if c, err := client.NewClickHouseClient(f.config); err != nil {
			initErrors = append(initErrors, fmt.Errorf("clickhouse: %w", err))
		} else {
			f.clickhouseClient = c
		}
	}

	if f.config.Elastic.Enabled {
		if c, err := client.NewElasticsearchClient(f.config); err != nil {
			initErrors = append(initErrors, fmt.Errorf("elasticsearch: %w", err))
		} else {
			f.esClient = c
		}
	}

	if len(initErrors) > 0 {
		if f.config.IsProduction() {
			return fmt.Errorf("critical service initialization failed: %v", initErrors)
		}
		for _, err := range initErrors {
			util.Warn("Service initialization warning", util.ErrorField(err))
		}
	}
	return nil
}

func (f *Factory) initializeServices() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	f.bucketingManager = bucketing.NewManager(f.config.Bucketing)

	var kmsClient *kms.Client
	if f.config.KMS.Enabled {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(f.config.KMS.Region))
		if err != nil {
			return fmt.Errorf("failed to load AWS config: %w", err)
		}
		kmsClient = kms.NewFromConfig(awsCfg)
	}
	f.encryptionManager = encryption.NewManager(f.config.KMS, kmsClient)

	jwtSecret := f.config.Auth.JWTSecret
	if f.config.Auth.JWTSecretEncrypted != "" {
		unsealed, err := f.encryptionManager.UnsealSecret(ctx, f.config.Auth.JWTSecretEncrypted)
		if err != nil {
			return fmt.Errorf("failed to unseal JWT secret: %w", err)
		}
		jwtSecret = unsealed
	}

	// Token store over Scylla or memory.
	var tokenRepo token.Repository
	var userRepo auth.UserRepository
	if f.scyllaClient != nil {
		tokenRepo = scylla.NewTokenRepository(f.scyllaClient)
		userRepo = scylla.NewUserRepository(f.scyllaClient)
	} else {
		tokenRepo = token.NewMemoryRepository()
		userRepo = auth.NewMemoryUserRepository()
		util.Warn("Scylla disabled, token and user state is in-memory only")
	}
	f.tokenStore = token.NewStore(tokenRepo, f.config.Token)
	f.legacyAuth = auth.NewLegacyAuthenticator(userRepo, []byte(jwtSecret), f.config.Auth.JWTExpiry)

	var verifier auth.Verifier
	if f.config.Auth.FirebaseProjectID != "" {
		fb, err := auth.NewFirebaseVerifier(ctx, f.config.Auth)
		if err != nil {
			if f.config.IsProduction() {
				return fmt.Errorf("failed to initialize Firebase verifier: %w", err)
			}
			util.Warn("Firebase verifier initialization failed, Firebase credentials will be rejected", util.ErrorField(err))
		} else {
			verifier = fb
		}
	}
	f.resolver = auth.NewResolver(f.tokenStore, verifier, f.legacyAuth, f.config.RateLimit.LegacyTier)

	// Counter store over Redis or memory.
	var counters ratelimit.CounterStore
	if f.redisClient != nil {
		counters = redisrepo.NewCounterStore(f.redisClient)
	} else {
		store := ratelimit.NewMemoryStore()
		janitorCtx, janitorCancel := context.WithCancel(context.Background())
		store.StartJanitor(janitorCtx)
		f.janitorCancel = janitorCancel
		counters = store
		util.Warn("Redis disabled, rate-limit counters are per-instance")
	}
	f.limiter = ratelimit.NewLimiter(counters, f.config.RateLimit)

	if f.config.Analytics.Enabled {
		var usageSinks []analytics.UsageSink
		var auditSinks []analytics.AuditSink
		if f.clickhouseClient != nil {
			usageSinks = append(usageSinks, analytics.NewClickHouseUsageSink(f.clickhouseClient))
		}
		if f.kafkaProducer != nil {
			usageSinks = append(usageSinks, analytics.NewKafkaUsageSink(f.kafkaProducer, f.config.Kafka, f.bucketingManager))
		}
		if f.esClient != nil {
			auditSinks = append(auditSinks, analytics.NewElasticAuditSink(f.esClient, f.config.Elastic))
		}
		if len(usageSinks) > 0 || len(auditSinks) > 0 {
			f.recorder = analytics.NewRecorder(f.config.Analytics, f.bucketingManager, usageSinks, auditSinks)
			go f.recorder.Run()
		} else {
			util.Warn("Analytics enabled but no sink is configured, events will not be recorded")
		}
	}
	return nil
}

// Router assembles the HTTP surface.
func (f *Factory) Router() chi.Router {
	var usage gateway.UsageRecorder
	if f.recorder != nil {
		usage = f.recorder
	}
	admission := gateway.NewMiddleware(f.resolver, f.limiter, f.config.RateLimit.Enabled, usage)
	authHandler := handler.NewAuthHandler(f.legacyAuth, f.tokenStore, f.recorder)
	docsHandler := handler.NewDocsHandler(docs.NewHTTPConverter())

	return handler.NewRouter(admission, f.recorder, authHandler, docsHandler, f.HealthCheck)
}

func (f *Factory) HealthCheck(ctx context.Context) map[string]error {
	healthErrors := make(map[string]error)

	if f.redisClient != nil {
		if err := f.redisClient.HealthCheck(ctx); err != nil {
			healthErrors["redis"] = err
		}
	}
	if f.scyllaClient != nil {
		if err := f.scyllaClient.HealthCheck(); err != nil {
			healthErrors["scylla"] = err
		}
	}
	if f.clickhouseClient != nil {
		if err := f.clickhouseClient.HealthCheck(ctx); err != nil {
			healthErrors["clickhouse"] = err
		}
	}
	if f.esClient != nil {
		if err := f.esClient.HealthCheck(); err != nil {
			healthErrors["elasticsearch"] = err
		}
	}
	if f.kafkaProducer != nil {
		if err := f.kafkaProducer.HealthCheck(ctx); err != nil {
			healthErrors["kafka"] = err
		}
	}
	return healthErrors
}

func (f *Factory) Close() error {
	f.closeOnce.Do(func() {
		close(f.closed)
		util.Info("Shutting down factory...")

		if f.recorder != nil {
			f.recorder.Close()
			util.Info("Analytics recorder drained")
		}
		if f.janitorCancel != nil {
			f.janitorCancel()
		}
		if f.clickhouseClient != nil {
			if err := f.clickhouseClient.Close(); err != nil {
				util.Error("Failed to close ClickHouse client", util.ErrorField(err))
			}
		}
		if f.esClient != nil {
			f.esClient.Close()
		}
		if f.kafkaProducer != nil {
			if err := f.kafkaProducer.Close(); err != nil {
				util.Error("Failed to close Kafka producer", util.ErrorField(err))
			}
		}
		if f.scyllaClient != nil {
			f.scyllaClient.Close()
		}
		if f.redisClient != nil {
			if err := f.redisClient.Close(); err != nil {
				util.Error("Failed to close Redis client", util.ErrorField(err))
			}
		}
		if f.encryptionManager != nil {
			f.encryptionManager.ClearCache()
		}

		util.Sync()
		util.Info("Factory shutdown completed")
	})
	return nil
}

func (f *Factory) Config() *config.Config {
	return f.config
}

func (f *Factory) TLSManager() *tls.TLSManager {
	return f.tlsManager
}
