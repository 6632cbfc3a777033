package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	_ "github.com/noah-isme/training-enrollment-api/api/swagger"
	"github.com/noah-isme/training-enrollment-api/internal/handler"
	"github.com/noah-isme/training-enrollment-api/internal/repository"
	"github.com/noah-isme/training-enrollment-api/internal/service"
	"github.com/noah-isme/training-enrollment-api/pkg/cache"
	"github.com/noah-isme/training-enrollment-api/pkg/config"
	"github.com/noah-isme/training-enrollment-api/pkg/database"
	"github.com/noah-isme/training-enrollment-api/pkg/export"
	"github.com/noah-isme/training-enrollment-api/pkg/gateway"
	"github.com/noah-isme/training-enrollment-api/pkg/jobs"
	"github.com/noah-isme/training-enrollment-api/pkg/logger"
	"github.com/noah-isme/training-enrollment-api/pkg/notify"
	"github.com/noah-isme/training-enrollment-api/pkg/storage"
)

// @title Training Enrollment API
// @version 1.0.0
// @description Registrations, payment verification and certificates for training classes.
// @BasePath /api/v1
// @schemes http https
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logr); err != nil {
		logr.Fatal("server stopped", zap.Error(err))
	}
}

func run(ctx context.Context, cfg *config.Config, logr *zap.Logger) error {
	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer db.Close()

	metrics := service.NewMetricsService()
	validate := validator.New()
	checks := map[string]handler.ReadinessCheck{"postgres": db.PingContext}

	var seatCache *service.CacheService
	if cfg.Cache.Enabled {
		client, err := cache.NewRedis(cfg.Redis)
		if err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		defer client.Close()
		checks["redis"] = redisCheck(client)
		seatCache = service.NewCacheService(repository.NewCacheRepository(client, "enrollment", logr), metrics, cfg.Cache.SeatsTTL, logr, true)
	}

	files, err := storage.NewLocalStorage(cfg.Payments.StorageDir)
	if err != nil {
		return fmt.Errorf("init proof storage: %w", err)
	}

	tx := database.NewTransactor(db)
	catalog := repository.NewCatalogRepository(db)
	registrations := repository.NewRegistrationRepository(db)
	payments := repository.NewPaymentRepository(db)
	certificates := repository.NewCertificateRepository(db)
	valueReports := repository.NewValueReportRepository(db)
	audit := repository.NewAuditRepository(db)

	dispatcher, err := newDispatcher(cfg.Notifications, logr)
	if err != nil {
		return err
	}
	queue := jobs.NewQueue("notifications", dispatcher.Handle, jobs.QueueConfig{
		Workers:    cfg.Notifications.Workers,
		MaxRetries: cfg.Notifications.Retries,
		RetryDelay: cfg.Notifications.RetryDelay,
		Logger:     logr,
		OnDone: func(o jobs.Outcome) {
			metrics.RecordNotification(o.Job.Type, o.Err)
			metrics.ObserveJob("notifications", o.Job.Type, o.Elapsed)
		},
	})
	notifications := service.NewNotificationService(queue, cfg.Notifications.AdminEmails, metrics, logr)

	quota := service.NewQuotaService(catalog, registrations, seatCache, cfg.Cache.SeatsTTL, logr)
	registrationSvc := service.NewRegistrationService(service.RegistrationDeps{
		Tx:            tx,
		Registrations: registrations,
		Catalog:       catalog,
		Payments:      payments,
		Certificates:  certificates,
		ValueReports:  valueReports,
		Quota:         quota,
		Files:         files,
		Audit:         audit,
		Metrics:       metrics,
	}, validate, logr)
	paymentSvc := service.NewPaymentService(service.PaymentDeps{
		Tx:            tx,
		Payments:      payments,
		Registrations: registrations,
		Classes:       catalog,
		Files:         files,
		Signer:        storage.NewSignedURLSigner(cfg.Payments.SignedURLSecret, cfg.Payments.SignedURLTTL),
		Processor:     service.NewProofProcessor(cfg.Payments.AllowedMIMEs, cfg.Payments.MaxProofSizeBytes, cfg.Payments.ImageMaxDimension),
		Notifier:      notifications,
		Audit:         audit,
		URLPrefix:     cfg.APIPrefix,
	}, validate, logr)
	verificationSvc := service.NewVerificationService(service.VerificationDeps{
		Tx:            tx,
		Payments:      payments,
		Registrations: registrations,
		Notifier:      notifications,
		Audit:         audit,
		Metrics:       metrics,
	}, validate, logr)

	var gatewaySvc *service.GatewayService
	if cfg.Gateway.Enabled {
		gatewaySvc = service.NewGatewayService(tx, gateway.NewClient(cfg.Gateway.ServerKey, cfg.Gateway.Production), payments, registrations, verificationSvc, audit, logr)
	} else {
		gatewaySvc = service.NewGatewayService(tx, nil, payments, registrations, verificationSvc, audit, logr)
	}

	certificateSvc := service.NewCertificateService(service.CertificateDeps{
		Certificates:  certificates,
		Catalog:       catalog,
		Registrations: registrations,
		Renderer:      export.NewCertificateRenderer(),
		Notifier:      notifications,
		Audit:         audit,
		Metrics:       metrics,
		Generate:      service.NewNumberGenerator(cfg.Certificates.NumberDigits),
	}, service.CertificateOptions{
		MaxAttempts:   cfg.Certificates.MaxAttempts,
		VerifyBaseURL: cfg.Certificates.VerifyBaseURL,
		IssuerName:    cfg.Certificates.IssuerName,
	}, validate, logr)
	sweeper := service.NewCertificateSweeper(certificateSvc, cfg.Certificates.SweepInterval, logr)
	valueReportSvc := service.NewValueReportService(valueReports, registrations, audit, validate, logr)
	exportSvc := service.NewExportService(catalog, registrations, logr, nil, nil)

	router := handler.NewRouter(handler.RouterConfig{
		APIPrefix:      cfg.APIPrefix,
		AllowedOrigins: cfg.CORS.AllowedOrigins,
		EnableDocs:     cfg.Env != config.EnvProduction,
		Logger:         logr,
		Metrics:        metrics,
		Tokens: service.NewTokenService(service.TokenConfig{
			Secret:   cfg.JWT.Secret,
			Issuer:   cfg.JWT.Issuer,
			Audience: cfg.JWT.Audience,
		}),
		Audit:         audit,
		System:        handler.NewSystemHandler(metrics, checks),
		Registrations: handler.NewRegistrationHandler(registrationSvc, quota),
		Payments:      handler.NewPaymentHandler(paymentSvc, verificationSvc, cfg.Payments.MaxProofSizeBytes, logr),
		Gateway:       handler.NewGatewayHandler(gatewaySvc),
		Certificates:  handler.NewCertificateHandler(certificateSvc),
		ValueReports:  handler.NewValueReportHandler(valueReportSvc),
		Exports:       handler.NewExportHandler(exportSvc),
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	queue.Start(ctx)
	defer queue.Stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logr.Info("server starting", zap.String("addr", srv.Addr), zap.String("env", cfg.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		sweeper.Start(gctx)
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		logr.Info("server shutting down")
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func newDispatcher(cfg config.NotificationsConfig, logr *zap.Logger) (*service.NotificationDispatcher, error) {
	var email notify.Notifier
	if cfg.SMTPHost != "" {
		email = notify.NewSMTPMailer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUsername, cfg.SMTPPassword, cfg.SMTPFrom)
	} else {
		logr.Warn("SMTP not configured, email notifications disabled")
	}
	if cfg.TelegramToken == "" || cfg.TelegramChat == 0 {
		return service.NewNotificationDispatcher(email), nil
	}
	bot, err := notify.NewTelegramBot(cfg.TelegramToken)
	if err != nil {
		return nil, fmt.Errorf("init telegram bot: %w", err)
	}
	return service.NewNotificationDispatcher(email, notify.NewTelegramNotifier(bot, cfg.TelegramChat)), nil
}

func redisCheck(client *redis.Client) handler.ReadinessCheck {
	return func(ctx context.Context) error {
		return client.Ping(ctx).Err()
	}
}
