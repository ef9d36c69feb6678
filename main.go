package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/Rafhael-Viana/geoproof/attendance"
	"github.com/Rafhael-Viana/geoproof/auth"
	"github.com/Rafhael-Viana/geoproof/cache"
	"github.com/Rafhael-Viana/geoproof/config"
	"github.com/Rafhael-Viana/geoproof/cors"
	"github.com/Rafhael-Viana/geoproof/db"
	"github.com/Rafhael-Viana/geoproof/logger"
	middleware "github.com/Rafhael-Viana/geoproof/middlewares"
	"github.com/Rafhael-Viana/geoproof/repository"
	"github.com/Rafhael-Viana/geoproof/routes"
	"github.com/Rafhael-Viana/geoproof/service"
	"github.com/Rafhael-Viana/geoproof/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Error loading config: %v", err)
	}

	lg, err := logger.NewLogger(cfg.Log.Level, cfg.Log.Format, "geoproof")
	if err != nil {
		log.Fatalf("Error building logger: %v", err)
	}
	defer func() { _ = lg.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	database, err := db.NewPool(ctx, cfg.Database, lg)
	if err != nil {
		lg.Fatal("Error connecting database", zap.Error(err))
	}
	defer database.Close()

	if err := database.Migrate(ctx); err != nil {
		lg.Fatal("Error applying schema", zap.Error(err))
	}

	kv := newKVStore(ctx, cfg, lg)

	userRepo := repository.NewUserRepository(database.Pool())
	geofenceRepo := repository.NewGeofenceRepository(database.Pool())
	attendanceRepo := repository.NewAttendanceRepository(database.Pool())
	reportRepo := repository.NewReportRepository(database.Pool())

	activeGeofence := cache.NewActiveGeofenceCache(kv, geofenceRepo.Active, cfg.Cache.GeofenceTTL, lg)
	checkInLock := cache.NewLocker(kv, "geoproof:lock:checkin:", cfg.Cache.CheckInLock)

	photos, err := storage.NewDiskPhotoStore(cfg.UploadDir)
	if err != nil {
		lg.Fatal("Error preparing upload dir", zap.String("dir", cfg.UploadDir), zap.Error(err))
	}

	tokens := auth.NewTokens(cfg.JWTSecret, cfg.JWTTTL)
	loc := cfg.Location()
	thresholds := attendance.Thresholds{
		AccuracyMeters: cfg.Validation.AccuracyThresholdMeters,
		MaxSpeedKmh:    cfg.Validation.MaxSpeedKmh,
	}

	users := service.NewUserService(userRepo, tokens, lg)
	if cfg.SeedAdmin.Email != "" && cfg.SeedAdmin.Password != "" {
		if err := users.SeedAdmin(ctx, cfg.SeedAdmin.Name, cfg.SeedAdmin.Email, cfg.SeedAdmin.Password); err != nil {
			lg.Fatal("Error seeding admin", zap.Error(err))
		}
	}

	proxies, err := middleware.NewTrustedProxies(cfg.TrustedProxies)
	if err != nil {
		lg.Fatal("Error parsing TRUSTED_PROXIES", zap.Error(err))
	}

	api := &routes.API{
		Users:          users,
		Geofences:      service.NewGeofenceService(geofenceRepo, activeGeofence, lg),
		Attendance:     service.NewAttendanceService(attendanceRepo, activeGeofence, photos, checkInLock, thresholds, loc, lg),
		Reports:        service.NewReportService(attendanceRepo, reportRepo, loc),
		Tokens:         tokens,
		DB:             database,
		Logger:         lg,
		UploadDir:      photos.Dir(),
		MaxUploadBytes: cfg.MaxUploadBytes,
		GeneralLimiter: cache.NewRateLimiter(kv, "geoproof:rl:general:", cfg.RateLimit.GeneralMax, cfg.RateLimit.Window),
		CheckInLimiter: cache.NewRateLimiter(kv, "geoproof:rl:checkin:", cfg.RateLimit.CheckInMax, cfg.RateLimit.Window),
		Proxies:        proxies,
	}

	handler := cors.Cors(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowCredentials: true,
		AllowLocalhost:   cfg.AppEnv != "production",
	})(api.Handler())

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		lg.Info("Server listening", zap.String("port", cfg.Port), zap.String("env", cfg.AppEnv), zap.String("timezone", loc.String()))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			lg.Fatal("Error start server", zap.Error(err))
		}
	}()

	<-ctx.Done()
	lg.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		lg.Error("Error during shutdown", zap.Error(err))
	}
}

// newKVStore connects to Redis when enabled. Without Redis the cache, lock
// and rate limits are process-local.
func newKVStore(ctx context.Context, cfg *config.Config, lg *zap.Logger) cache.KVStore {
	if !cfg.Redis.Enabled {
		lg.Info("Redis disabled, using in-memory cache")
		return cache.NewMemoryKVStore()
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		lg.Warn("Redis unreachable, using in-memory cache", zap.String("addr", cfg.Redis.Addr), zap.Error(err))
		_ = client.Close()
		return cache.NewMemoryKVStore()
	}

	lg.Info("Redis connected", zap.String("addr", cfg.Redis.Addr))
	return cache.NewRedisKVStore(client)
}
