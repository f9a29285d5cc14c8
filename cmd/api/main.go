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

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/slotwise-health/slotwise/internal/cache"
	"github.com/slotwise-health/slotwise/internal/config"
	"github.com/slotwise-health/slotwise/internal/fhir"
	v1 "github.com/slotwise-health/slotwise/internal/handler/v1"
	"github.com/slotwise-health/slotwise/internal/repository/postgres"
	"github.com/slotwise-health/slotwise/internal/service"
	"github.com/slotwise-health/slotwise/pkg/auth"
	"github.com/slotwise-health/slotwise/pkg/database"
	"github.com/slotwise-health/slotwise/pkg/keylock"
	"github.com/slotwise-health/slotwise/pkg/logger"
	"github.com/slotwise-health/slotwise/pkg/metrics"
	"github.com/slotwise-health/slotwise/pkg/tracer"
)

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	zlog, err := logger.New(cfg.Log)
	if err != nil {
		log.Fatalf("building logger: %v", err)
	}
	defer func() { _ = zlog.Sync() }()

	if cfg.App.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	tp, err := tracer.Init(cfg.Tracing)
	if err != nil {
		zlog.Fatal("initializing tracer", zap.Error(err))
	}
	defer func() {
		if err := tp.Shutdown(context.Background()); err != nil {
			zlog.Warn("tracer shutdown", zap.Error(err))
		}
	}()

	db, err := database.Connect(cfg.Database)
	if err != nil {
		zlog.Fatal("connecting to database", zap.Error(err))
	}
	if err := database.Migrate(db, zlog); err != nil {
		zlog.Fatal("running migrations", zap.Error(err))
	}

	m := metrics.NewCollector("slotwise")

	if err := database.Instrument(db, m); err != nil {
		zlog.Fatal("instrumenting database", zap.Error(err))
	}

	if sqlDB, err := db.DB(); err == nil {
		go func() {
			ticker := time.NewTicker(15 * time.Second)
			defer ticker.Stop()
			for range ticker.C {
				m.DBConnections.Set(float64(sqlDB.Stats().OpenConnections))
			}
		}()
	}

	scheduleRepo := postgres.NewScheduleRepo(db)
	appointmentRepo := postgres.NewAppointmentRepo(db)
	doctorRepo := postgres.NewDoctorRepo(db)
	patientRepo := postgres.NewPatientRepo(db)
	userRepo := postgres.NewUserRepo(db)
	auditRepo := postgres.NewAuditRepo(db)
	bookingStore := postgres.NewBookingStore(db)

	locks := keylock.New()
	scheduleCache, err := cache.NewScheduleCache(cfg.Booking.ScheduleCacheSize, zlog)
	if err != nil {
		zlog.Fatal("creating schedule cache", zap.Error(err))
	}

	jwtManager := auth.NewJWTManager(cfg.JWT)

	auditSvc := service.NewAuditService(auditRepo, m, zlog)
	defer auditSvc.Shutdown()

	authSvc := service.NewAuthService(userRepo, jwtManager, zlog)
	patientSvc := service.NewPatientService(patientRepo, auditSvc, zlog)
	scheduleSvc := service.NewScheduleService(scheduleRepo, appointmentRepo, doctorRepo, locks, scheduleCache, m, auditSvc, zlog)
	bookingSvc := service.NewBookingService(bookingStore, appointmentRepo, doctorRepo, patientRepo, locks, scheduleCache, m, auditSvc, zlog, cfg.Booking.ConflictRetries)

	router := v1.NewRouter(v1.RouterDeps{
		Auth:           v1.NewAuthHandler(authSvc),
		Patients:       v1.NewPatientHandler(patientSvc),
		Doctors:        v1.NewDoctorHandler(doctorRepo),
		Schedules:      v1.NewScheduleHandler(scheduleSvc),
		Bookings:       v1.NewBookingHandler(bookingSvc),
		JWT:            jwtManager,
		Metrics:        m,
		Log:            zlog,
		RateLimitRPS:   cfg.RateLimit.RequestsPerSecond,
		RateLimitBurst: cfg.RateLimit.BurstSize,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.FHIR.Enabled {
		fhirClient := fhir.NewClient(cfg.FHIR.BaseURL, cfg.FHIR.Username, cfg.FHIR.Password, cfg.FHIR.HTTPTimeout, zlog)
		runner := fhir.NewRunner(fhirClient, doctorRepo, scheduleRepo, appointmentRepo, locks, scheduleCache, m, zlog,
			cfg.FHIR.SyncInterval, cfg.FHIR.HorizonDays)
		go runner.Run(ctx)
	}

	srv := &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		zlog.Info("server listening",
			zap.String("addr", srv.Addr),
			zap.String("env", cfg.App.Environment),
			zap.String("version", cfg.App.Version),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zlog.Fatal("server error", zap.Error(err))
		}
	}()

	<-ctx.Done()
	zlog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zlog.Error("graceful shutdown failed", zap.Error(err))
	}
}
