package apiapp

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/ivankudzin/forummod/internal/config"
	s3infra "github.com/ivankudzin/forummod/internal/infra/s3"
	rescorejob "github.com/ivankudzin/forummod/internal/jobs/rescore"
	"github.com/ivankudzin/forummod/internal/repo/memory"
	pgrepo "github.com/ivankudzin/forummod/internal/repo/postgres"
	redrepo "github.com/ivankudzin/forummod/internal/repo/redis"
	archivesvc "github.com/ivankudzin/forummod/internal/services/archive"
	authsvc "github.com/ivankudzin/forummod/internal/services/auth"
	modsvc "github.com/ivankudzin/forummod/internal/services/moderation"
	"github.com/ivankudzin/forummod/internal/services/spam"
	"github.com/ivankudzin/forummod/internal/transport/http/handlers"
)

type App struct {
	cfg        config.Config
	logger     *zap.Logger
	server     *http.Server
	postgres   *pgxpool.Pool
	redis      *goredis.Client
	rescore    *rescorejob.Job
	stopJobs   context.CancelFunc
	jobs       sync.WaitGroup
	httpRouter http.Handler
}

func New(ctx context.Context, cfg config.Config, log *zap.Logger) (*App, error) {
	if log == nil {
		return nil, fmt.Errorf("logger is nil")
	}

	r := chi.NewRouter()
	ApplyMiddlewares(r, log)

	healthHandler := handlers.NewHealthHandler(cfg.Storage.Driver)

	var (
		store modsvc.Store
		pool  *pgxpool.Pool
	)
	switch cfg.Storage.Driver {
	case config.StorageDriverPostgres:
		p, err := pgrepo.NewPool(ctx, pgrepo.PoolConfig{
			DSN:      cfg.Postgres.DSN,
			MaxConns: int32(cfg.Postgres.MaxConns),
		})
		if err != nil {
			return nil, fmt.Errorf("init postgres: %w", err)
		}
		pool = p
		store = pgrepo.NewContentRepo(pool)
		healthHandler.AddCheck("postgres", pool.Ping)
	default:
		store = memory.NewContentStore()
	}

	evaluator, err := spam.NewEvaluator(spam.Config{
		BannedTerms:          cfg.Spam.BannedTerms,
		LinkThreshold:        cfg.Spam.LinkThreshold,
		BurstShortWindowPost: cfg.Spam.BurstShortWindowPost,
		BurstLongWindowPost:  cfg.Spam.BurstLongWindowPost,
		CacheSize:            cfg.Spam.CacheSize,
	})
	if err != nil {
		closePool(pool)
		return nil, fmt.Errorf("init spam evaluator: %w", err)
	}

	moderationService := modsvc.NewService(store, evaluator, modsvc.Config{
		MaxBodyRunes:     cfg.Moderation.MaxBodyRunes,
		MaxBatchSize:     cfg.Moderation.MaxBatchSize,
		BatchParallelism: cfg.Moderation.BatchParallelism,
		DefaultPageSize:  cfg.Moderation.DefaultPageSize,
		MaxPageSize:      cfg.Moderation.MaxPageSize,
		SuspectScore:     cfg.Moderation.SuspectScore,
	}, log.Named("moderation"))

	// Redis only feeds signals and the dashboard; an outage degrades scoring, never decisions.
	var redisClient *goredis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redrepo.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err := redisClient.Ping(ctx).Err(); err != nil {
			log.Warn("redis ping failed, continuing in degraded mode", zap.Error(err))
		}
		moderationService.AttachSignals(redrepo.NewSignalRepo(redisClient))
		moderationService.AttachDashboard(redrepo.NewDashboardRepo(redisClient))
	}

	var archiveService *archivesvc.Service
	s3cfg := s3infra.Config{
		Endpoint:  cfg.S3.Endpoint,
		Region:    cfg.S3.Region,
		AccessKey: cfg.S3.AccessKey,
		SecretKey: cfg.S3.SecretKey,
		UseSSL:    cfg.S3.UseSSL,
	}
	if s3cfg.Enabled() {
		if c, err := s3infra.NewClient(s3cfg); err != nil {
			log.Warn("s3 init failed, audit archive disabled", zap.Error(err))
		} else {
			storage := archivesvc.NewS3Storage(c, cfg.S3.Bucket)
			archiveService = archivesvc.NewService(storage, moderationService, cfg.S3.URLTTL, log.Named("archive"))
		}
	}

	jwtManager := authsvc.NewJWTManager(cfg.Auth.JWTSecret, cfg.Auth.JWTAccessTTL)

	var job *rescorejob.Job
	if cfg.Rescore.Enabled {
		job = rescorejob.New(moderationService, cfg.Rescore.MaxAge, cfg.Rescore.BatchSize, log.Named("rescore"))
	}

	RegisterRoutes(r, Dependencies{
		ModerationService: moderationService,
		ArchiveService:    archiveService,
		JWTManager:        jwtManager,
		HealthHandler:     healthHandler,
		Logger:            log,
		Config:            cfg,
	})

	server := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      r,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	return &App{
		cfg:        cfg,
		logger:     log,
		server:     server,
		postgres:   pool,
		redis:      redisClient,
		rescore:    job,
		httpRouter: r,
	}, nil
}

func (a *App) Run() error {
	if a.rescore != nil {
		jobCtx, cancel := context.WithCancel(context.Background())
		a.stopJobs = cancel
		a.jobs.Add(1)
		go func() {
			defer a.jobs.Done()
			a.rescore.Start(jobCtx, a.cfg.Rescore.Interval)
		}()
	}

	a.logger.Info("api server started",
		zap.String("addr", a.cfg.HTTP.Addr),
		zap.String("storage", a.cfg.Storage.Driver),
	)
	err := a.server.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error

	if err := a.server.Shutdown(ctx); err != nil {
		shutdownErr = err
	}
	if a.stopJobs != nil {
		a.stopJobs()
		a.jobs.Wait()
	}
	closePool(a.postgres)
	if a.redis != nil {
		if err := a.redis.Close(); err != nil && shutdownErr == nil {
			shutdownErr = err
		}
	}

	return shutdownErr
}

func (a *App) Handler() http.Handler {
	return a.httpRouter
}

func closePool(pool *pgxpool.Pool) {
	if pool != nil {
		pool.Close()
	}
}
