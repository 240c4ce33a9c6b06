// Package bootstrap assembles the dependency graph for the API server and
// the worker.
package bootstrap

import (
	"context"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib" // pgx driver for database/sql
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"

	"matcher_server/adapter/out/messaging"
	"matcher_server/adapter/out/mongodb"
	"matcher_server/adapter/out/persistence"
	"matcher_server/adapter/out/semantic"
	"matcher_server/config"
	"matcher_server/core/domain"
	"matcher_server/core/port/out"
	"matcher_server/core/service/assemble"
	"matcher_server/core/service/cycle"
	"matcher_server/core/service/resolve"
	"matcher_server/core/service/scoring"
	"matcher_server/infra/database"
	"matcher_server/pkg/cache"
	"matcher_server/pkg/logger"
	"matcher_server/pkg/metrics"
)

type Dependencies struct {
	Config  *config.Config
	DB      *pgxpool.Pool
	SQLDB   *sqlx.DB
	Redis   *redis.Client
	MongoDB *mongo.Client

	// Repositories
	ProfileRepo    domain.ProfileRepository
	IntakeRepo     domain.IntakeRepository
	SuggestionRepo domain.SuggestionRepository
	PopularityRepo domain.PopularityRepository
	ReviewRepo     domain.ReviewRepository
	ReportRepo     domain.CycleReportRepository

	// Outbound adapters
	Cache    out.Cache
	Oracle   out.SemanticOracle
	Producer out.MessageProducer

	// Services
	Resolver     *resolve.Resolver
	Assembler    *assemble.Assembler
	Scorer       *scoring.Scorer
	CycleService *cycle.Service
}

// NewDependencies connects the backing stores and wires the pipeline
// services. Postgres is mandatory; Redis, MongoDB and the oracle degrade
// gracefully when unconfigured.
func NewDependencies(cfg *config.Config) (*Dependencies, func(), error) {
	log := logger.Component("bootstrap")

	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}

	deps := &Dependencies{Config: cfg}
	var cleanups []func()

	// Database (pgxpool)
	db, err := database.NewPostgres(cfg.DatabaseURL)
	if err != nil {
		return nil, nil, err
	}
	deps.DB = db
	cleanups = append(cleanups, func() { db.Close() })

	// Database (sqlx for the adapters). Simple protocol keeps sqlx from
	// fighting pgx over prepared statements.
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
	metrics.RegisterPool("postgres", sqlDB.DB)

	// Redis
	if cfg.RedisURL != "" {
		redisClient, err := database.NewRedis(cfg.RedisURL)
		if err != nil {
			log.Warn().Err(err).Msg("redis connection failed, running without cache and streams")
		} else {
			deps.Redis = redisClient
			cleanups = append(cleanups, func() { redisClient.Close() })

			deps.Cache = cache.NewRedisCache(redisClient)
			deps.Producer = messaging.NewRedisProducer(redisClient)
		}
	}

	// MongoDB (cycle report archive)
	if cfg.MongoDBURL != "" {
		mongoClient, err := mongodb.NewClient(cfg.MongoDBURL)
		if err != nil {
			log.Warn().Err(err).Msg("mongodb connection failed, cycle reports will not be archived")
		} else {
			deps.MongoDB = mongoClient
			cleanups = append(cleanups, func() {
				mongoClient.Disconnect(context.Background())
			})

			reportAdapter := mongodb.NewCycleReportAdapter(mongoClient.Database(cfg.MongoDBName))
			if err := reportAdapter.EnsureIndexes(context.Background()); err != nil {
				log.Warn().Err(err).Msg("failed to ensure report indexes")
			}
			deps.ReportRepo = reportAdapter
		}
	}

	// Repositories
	deps.ProfileRepo = persistence.NewProfileAdapter(sqlDB)
	deps.IntakeRepo = persistence.NewIntakeAdapter(sqlDB)
	deps.SuggestionRepo = persistence.NewSuggestionAdapter(sqlDB)
	deps.PopularityRepo = persistence.NewPopularityAdapter(sqlDB)
	deps.ReviewRepo = persistence.NewReviewAdapter(sqlDB)

	// Semantic oracle
	if cfg.OracleEnabled && cfg.OpenAIAPIKey != "" {
		deps.Oracle = semantic.NewOpenAIOracle(cfg.OpenAIAPIKey, semantic.OracleConfig{
			Model:      cfg.EmbeddingModel,
			BatchSize:  cfg.OracleBatchSize,
			MaxRetries: cfg.OracleMaxRetries,
			Timeout:    time.Duration(cfg.OracleTimeoutSec) * time.Second,
		})
	} else {
		log.Info().Msg("semantic oracle disabled, intent scoring uses the lexical fallback")
	}

	// Services
	deps.Resolver = resolve.NewResolver(deps.ProfileRepo, deps.ReviewRepo, cfg.FuzzyReviewThreshold)
	deps.Assembler = assemble.NewAssembler(deps.ProfileRepo, deps.IntakeRepo)

	thresholds := scoring.DefaultThresholds()
	thresholds.SemanticMatch = cfg.SemanticThreshold
	thresholds.JaccardFallback = cfg.JaccardThreshold
	thresholds.MomentumDecay = cfg.MomentumDecayRate
	thresholds.ContextPerEvent = cfg.ContextEventWeight

	weights := scoring.Weights{
		Intent:   cfg.WeightIntent,
		Synergy:  cfg.WeightSynergy,
		Momentum: cfg.WeightMomentum,
		Context:  cfg.WeightContext,
	}

	policy := scoring.NewRulePolicy(weights, thresholds)
	deps.Scorer = scoring.NewScorer(policy, deps.Oracle, deps.Cache, scoring.ScorerConfig{
		Shards:        cfg.ScorerShards,
		OracleEnabled: cfg.OracleEnabled && deps.Oracle != nil,
		BatchSize:     cfg.OracleBatchSize,
		CacheTTL:      time.Duration(cfg.OracleCacheTTLMin) * time.Minute,
	})

	deps.CycleService = cycle.NewService(
		deps.Assembler,
		deps.Scorer,
		deps.SuggestionRepo,
		deps.PopularityRepo,
		deps.ReportRepo,
		deps.Producer,
		deps.Cache,
		time.Now,
		cycle.Config{
			TopK:          cfg.TopK,
			PopularityCap: cfg.PopularityCap,
			ExpiryDays:    cfg.ExpiryDays,
			OracleEnabled: cfg.OracleEnabled && deps.Oracle != nil,
			Weights:       weights,
			Thresholds:    thresholds,
		},
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
