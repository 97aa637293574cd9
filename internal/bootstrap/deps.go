package bootstrap

import (
	"context"
	"strings"
	"time"

	"mailsync_server/adapter/out/credential"
	"mailsync_server/adapter/out/hook"
	"mailsync_server/adapter/out/messaging"
	"mailsync_server/adapter/out/mongodb"
	"mailsync_server/adapter/out/persistence"
	"mailsync_server/adapter/out/provider"
	"mailsync_server/config"
	"mailsync_server/core/port/out"
	mailsync "mailsync_server/core/service/sync"
	"mailsync_server/infra/database"
	"mailsync_server/internal/stream"
	"mailsync_server/pkg/logger"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib" // pgx driver for database/sql
	"github.com/jmoiron/sqlx"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
)

type Dependencies struct {
	Config  *config.Config
	DB      *pgxpool.Pool
	SQLDB   *sqlx.DB
	Redis   *redis.Client
	MongoDB *mongo.Client
	Neo4j   neo4j.DriverWithContext

	// Repositories
	AccountRepo out.AccountRepository
	FolderRepo  out.FolderRepository
	MessageRepo out.MessageRepository
	RunRepo     out.SyncRunRepository
	BodyStore   out.MessageBodyStore
	EmbedStore  out.EmbeddingStore

	// Outbound adapters
	Credentials out.CredentialPort
	Providers   out.MailProviderFactory
	Categorizer out.CategorizerPort
	Contacts    out.ContactTimelinePort

	// Messaging
	Stream     *stream.RedisStream
	Scheduler  out.JobSchedulerPort
	EmbedQueue out.EmbedQueuePort
	SyncLock   out.SyncLockPort

	// Services
	SyncService *mailsync.SyncService
}

func NewDependencies(cfg *config.Config) (*Dependencies, func(), error) {
	deps := &Dependencies{Config: cfg}
	var cleanups []func()

	// Database (pgxpool)
	db, err := database.NewPostgres(cfg.DatabaseURL)
	if err != nil {
		return nil, nil, err
	}
	deps.DB = db
	cleanups = append(cleanups, func() { db.Close() })

	// Database (sqlx for the repository adapters)
	sqlxURL := cfg.DatabaseURL
	if strings.Contains(sqlxURL, "?") {
		sqlxURL += "&default_query_exec_mode=simple_protocol"
	} else {
		sqlxURL += "?default_query_exec_mode=simple_protocol"
	}
	sqlDB, err := sqlx.Connect("pgx", sqlxURL)
	if err != nil {
		db.Close()
		return nil, nil, err
	}
	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)
	sqlDB.SetConnMaxIdleTime(5 * time.Minute)

	deps.SQLDB = sqlDB
	cleanups = append(cleanups, func() { sqlDB.Close() })

	// Repositories
	deps.AccountRepo = persistence.NewAccountAdapter(sqlDB)
	deps.FolderRepo = persistence.NewFolderAdapter(sqlDB)
	deps.MessageRepo = persistence.NewMessageAdapter(sqlDB)
	deps.RunRepo = persistence.NewSyncRunAdapter(sqlDB)

	// Redis (streams, trigger lock). dispatch 경로의 필수 의존성이라
	// 다른 선택적 스토어와 달리 없으면 기동 자체를 실패시킨다.
	redisClient, err := database.NewRedis(cfg.RedisURL)
	if err != nil {
		sqlDB.Close()
		db.Close()
		return nil, nil, err
	}
	deps.Redis = redisClient
	cleanups = append(cleanups, func() { redisClient.Close() })

	deps.Stream = stream.NewRedisStream(redisClient, cfg.WorkerGroup)
	deps.Scheduler = messaging.NewSchedulerAdapter(deps.Stream)
	deps.EmbedQueue = messaging.NewEmbedQueueAdapter(deps.Stream)
	deps.SyncLock = messaging.NewSyncLockAdapter(redisClient)

	// MongoDB (message bodies)
	if cfg.MongoDBURL != "" {
		mongoClient, err := mongodb.NewClient(cfg.MongoDBURL)
		if err != nil {
			logger.Warn("MongoDB connection failed: %v", err)
		} else {
			deps.MongoDB = mongoClient
			cleanups = append(cleanups, func() {
				mongoClient.Disconnect(context.Background())
			})

			bodyAdapter := mongodb.NewBodyAdapter(mongoClient.Database(cfg.MongoDBName))
			if err := bodyAdapter.EnsureIndexes(context.Background()); err != nil {
				logger.Warn("Failed to ensure MongoDB indexes: %v", err)
			}
			deps.BodyStore = bodyAdapter
			deps.EmbedStore = bodyAdapter
		}
	}

	// Neo4j (contact timeline)
	if cfg.Neo4jURL != "" {
		neo4jDriver, err := hook.NewNeo4jDriver(cfg.Neo4jURL, cfg.Neo4jUsername, cfg.Neo4jPassword)
		if err != nil {
			logger.Warn("Neo4j connection failed: %v", err)
		} else {
			deps.Neo4j = neo4jDriver
			cleanups = append(cleanups, func() {
				neo4jDriver.Close(context.Background())
			})

			contactAdapter := hook.NewContactGraphAdapter(neo4jDriver, "neo4j")
			if err := contactAdapter.EnsureIndexes(context.Background()); err != nil {
				logger.Warn("Failed to ensure Neo4j indexes: %v", err)
			}
			deps.Contacts = contactAdapter
			logger.Info("Neo4j ContactGraphAdapter initialized")
		}
	}

	// Credentials (token refresh, reconnection detection)
	deps.Credentials = credential.NewCredentialAdapter(
		sqlDB,
		cfg.GoogleClientID,
		cfg.GoogleClientSecret,
		cfg.MicrosoftClientID,
		cfg.MicrosoftClientSecret,
		cfg.MicrosoftTenantID,
	)

	// Providers
	deps.Providers = provider.NewFactory(
		&provider.GmailConfig{
			ClientID:     cfg.GoogleClientID,
			ClientSecret: cfg.GoogleClientSecret,
			RedirectURL:  cfg.GoogleRedirectURL,
		},
		&provider.GraphConfig{
			ClientID:     cfg.MicrosoftClientID,
			ClientSecret: cfg.MicrosoftClientSecret,
			RedirectURL:  cfg.MicrosoftRedirectURL,
			TenantID:     cfg.MicrosoftTenantID,
		},
	)

	// Categorizer (LLM classification for auto syncs)
	if cfg.OpenAIAPIKey != "" {
		deps.Categorizer = hook.NewCategorizerAdapter(cfg.OpenAIAPIKey, cfg.CategorizerModel)
		logger.Info("Categorizer initialized (model: %s)", cfg.CategorizerModel)
	}

	// Sync Service
	deps.SyncService = mailsync.NewSyncService(
		deps.AccountRepo,
		deps.FolderRepo,
		deps.MessageRepo,
		deps.BodyStore,
		deps.RunRepo,
		deps.Providers,
		deps.Credentials,
		deps.Categorizer,
		deps.EmbedQueue,
		deps.Contacts,
		deps.Scheduler,
		deps.SyncLock,
	)

	cleanup := func() {
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i]()
		}
	}

	return deps, cleanup, nil
}

func (d *Dependencies) HealthCheck(ctx context.Context) error {
	if err := d.DB.Ping(ctx); err != nil {
		return err
	}

	if d.Redis != nil {
		if err := d.Redis.Ping(ctx).Err(); err != nil {
			return err
		}
	}

	return nil
}
