package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"smartattend/internal/attendance"
	"smartattend/internal/checkin"
	"smartattend/internal/cloudinary"
	"smartattend/internal/config"
	"smartattend/internal/course"
	"smartattend/internal/httpapi"
	"smartattend/internal/identity"
	"smartattend/internal/insight"
	"smartattend/internal/metrics"
	"smartattend/internal/persist"
	"smartattend/internal/queue"
	"smartattend/internal/session"
	"smartattend/internal/store"
)

func main() {
	cfg := config.Load()
	cfg.ConfigureLogging()

	if cfg.Production() {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := run(cfg); err != nil {
		log.Fatalf("api failed: %v", err)
	}
}

func run(cfg config.App) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	health := map[string]httpapi.HealthCheck{}

	var redisClient *store.Redis
	if cfg.KVBackend == "redis" || cfg.QueueBackend == "redis" {
		redisClient = store.NewRedis(cfg.RedisAddr)
		defer redisClient.Close()
		health["redis"] = redisClient.Healthy
	}

	var kv store.KV = store.NewMemoryKV()
	if cfg.KVBackend == "redis" {
		kv = redisClient.KV()
	} else {
		log.Warn("KV_BACKEND=memory: state is lost on restart")
	}

	// An unreadable snapshot must stop startup, otherwise the first save
	// would overwrite it with an empty state.
	state, err := persist.Load(ctx, kv)
	if err != nil {
		return err
	}
	if len(state.Courses) == 0 {
		state.Courses = course.Defaults()
	}
	log.WithFields(log.Fields{
		"users":   len(state.Users),
		"records": len(state.Records),
		"courses": len(state.Courses),
	}).Info("state loaded")

	recordStore, closeStore, err := openRecordStore(ctx, cfg, state.Records, health)
	if err != nil {
		return err
	}
	defer closeStore()

	m := metrics.New(prometheus.DefaultRegisterer)
	directory := identity.NewDirectory(state.Users)
	catalog := course.NewCatalog(state.Courses)
	records := attendance.NewService(recordStore)
	manager := session.NewManager(catalog, cfg.SessionRetention)
	manager.Observe = func(n int) { m.ActiveSessions.Set(float64(n)) }

	syncer := persist.NewSyncer(kv, func(ctx context.Context) (persist.State, error) {
		recs, err := records.Records(ctx)
		if err != nil {
			return persist.State{}, err
		}
		return persist.State{Users: directory.Snapshot(), Records: recs, Courses: catalog.Snapshot()}, nil
	})
	syncer.OnFailure = func(error) { m.PersistFailures.Inc() }

	var publisher checkin.Publisher
	if cfg.QueueBackend == "redis" {
		publisher = queue.NewRedisQueue(redisClient.Client, queue.DefaultKey)
	} else {
		log.Info("QUEUE_BACKEND=memory: record events are not published")
	}

	svc := checkin.New(checkin.Deps{
		Directory: directory,
		Catalog:   catalog,
		Sessions:  manager,
		Records:   records,
		Metrics:   m,
		Notifier:  syncer,
		Publisher: publisher,
		Snapshots: syncer,
	})

	insightClient := insight.New(cfg.InsightURL, cfg.InsightSkip)
	if !cfg.InsightSkip {
		health["insight"] = func(ctx context.Context) bool { return insightClient.Health(ctx) == nil }
	}
	uploader := cloudinary.New(cfg.CloudinaryCloudName, cfg.CloudinaryAPIKey, cfg.CloudinaryAPISecret, cfg.CloudinaryFolder)
	if uploader.Configured() {
		log.WithField("cloud", cfg.CloudinaryCloudName).Info("cloudinary configured")
	} else {
		log.Info("cloudinary not configured, credential photos must be passed as image_url")
	}

	api := httpapi.New(httpapi.Config{
		JWTIssuer:       cfg.JWTIssuer,
		JWTSigningKey:   cfg.JWTSigningKey,
		AccessTTL:       cfg.AccessTTL,
		RefreshTTL:      cfg.RefreshTTL,
		RateLimitPerMin: cfg.RateLimitPerMin,
		AllowedOrigins:  cfg.AllowedOrigins,
	}, httpapi.Deps{
		Directory: directory,
		Catalog:   catalog,
		Checkin:   svc,
		Records:   records,
		Insight:   insightClient,
		Uploader:  uploader,
		Health:    health,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      api.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Infof("starting server on :%s", cfg.HTTPPort)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	g.Go(func() error { return manager.Run(gctx, cfg.TickInterval) })
	g.Go(func() error { return syncer.Run(gctx) })
	g.Go(func() error { return api.PruneLimits(gctx, time.Minute) })

	err = g.Wait()
	svc.Wait()
	log.Info("server exited")
	return err
}

// openRecordStore picks the record backend. Either one is seeded from the
// snapshot; the Postgres store is migrated first.
func openRecordStore(ctx context.Context, cfg config.App, seed []attendance.Record, health map[string]httpapi.HealthCheck) (attendance.Store, func(), error) {
	if cfg.RecordBackend != "postgres" {
		return attendance.NewMemoryStore(seed), func() {}, nil
	}

	db, err := store.NewDB(cfg.DatabaseURL)
	if err != nil {
		_ = db.Close()
		return nil, nil, err
	}
	if err := db.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, nil, err
	}
	repo := attendance.NewRepository(db.Client)
	for _, rec := range seed {
		if err := repo.Mirror(ctx, rec); err != nil {
			_ = db.Close()
			return nil, nil, err
		}
	}
	health["db"] = db.Healthy
	log.WithField("seeded", len(seed)).Info("attendance records stored in postgres")
	return repo, func() { _ = db.Close() }, nil
}
