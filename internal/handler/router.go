package handler

import (
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"github.com/noah-isme/training-enrollment-api/internal/middleware"
	"github.com/noah-isme/training-enrollment-api/internal/models"
	"github.com/noah-isme/training-enrollment-api/internal/service"
	"github.com/noah-isme/training-enrollment-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/training-enrollment-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/training-enrollment-api/pkg/middleware/requestid"
)

// RouterConfig carries everything the HTTP surface needs.
type RouterConfig struct {
	APIPrefix      string
	AllowedOrigins []string
	EnableDocs     bool
	Logger         *zap.Logger
	Metrics        *service.MetricsService
	Tokens         middleware.TokenValidator
	Audit          middleware.AuditLogWriter

	System        *SystemHandler
	Registrations *RegistrationHandler
	Payments      *PaymentHandler
	Gateway       *GatewayHandler
	Certificates  *CertificateHandler
	ValueReports  *ValueReportHandler
	Exports       *ExportHandler
}

// NewRouter builds the gin engine with every route mounted under APIPrefix.
func NewRouter(cfg RouterConfig) *gin.Engine {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.APIPrefix == "" {
		cfg.APIPrefix = "/api/v1"
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(cfg.Logger))
	r.Use(corsmiddleware.New(cfg.AllowedOrigins))
	r.Use(middleware.Metrics(cfg.Metrics))

	if cfg.System != nil {
		r.GET("/health", cfg.System.Health)
		r.GET("/ready", cfg.System.Ready)
		r.GET("/metrics", cfg.System.Prometheus)
	}
	if cfg.EnableDocs {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)

	// public
	if cfg.Certificates != nil {
		api.GET("/certificates/verify/:number", cfg.Certificates.Verify)
	}
	if cfg.Payments != nil {
		api.GET("/payments/:id/proof", cfg.Payments.DownloadProof)
	}
	if cfg.Gateway != nil {
		callback := []gin.HandlerFunc{}
		if cfg.Audit != nil {
			callback = append(callback, middleware.Audit(cfg.Audit, models.AuditActionGatewayCallback, "payments", cfg.Logger))
		}
		callback = append(callback, cfg.Gateway.Notification)
		api.POST("/payments/gateway/notifications", callback...)
	}

	secured := api.Group("")
	secured.Use(middleware.JWT(cfg.Tokens))

	admin := middleware.RequireRoles(models.RoleAdmin)
	staff := middleware.RequireRoles(models.RoleAdmin, models.RoleInstructor)
	anyone := middleware.RequireRoles(models.RoleAdmin, models.RoleInstructor, models.RoleParticipant)
	payer := middleware.RequireRoles(models.RoleAdmin, models.RoleParticipant)

	if h := cfg.Registrations; h != nil {
		secured.POST("/registrations", payer, h.Register)
		secured.GET("/registrations", anyone, h.List)
		secured.GET("/registrations/:id", anyone, h.Get)
		secured.DELETE("/registrations/:id", payer, h.Cancel)
		secured.PUT("/registrations/:id/attendance", staff, h.UpdateAttendance)
		secured.GET("/classes/:id/seats", anyone, middleware.WithResponseMeta(), h.Seats)
	}
	if h := cfg.Payments; h != nil {
		secured.POST("/registrations/:id/payments/proof", payer, h.UploadProof)
		secured.POST("/registrations/:id/payments/manual", admin, h.RecordManual)
		secured.GET("/registrations/:id/payments", anyone, h.List)
		secured.GET("/payments/:id/proof-url", anyone, h.ProofURL)
		secured.POST("/payments/:id/verify", admin, h.Verify)
	}
	if h := cfg.Gateway; h != nil {
		secured.POST("/registrations/:id/payments/checkout", middleware.RequireRoles(models.RoleParticipant), h.Checkout)
	}
	if h := cfg.Certificates; h != nil {
		secured.POST("/certificates", admin, h.Issue)
		secured.POST("/certificates/sweep", admin, h.Sweep)
		secured.GET("/certificates/:id", anyone, h.Get)
		secured.GET("/certificates/:id/pdf", anyone, h.PDF)
	}
	if h := cfg.ValueReports; h != nil {
		secured.GET("/registrations/:id/value-reports", anyone, h.List)
		secured.POST("/registrations/:id/value-reports", staff, h.Create)
		secured.PUT("/value-reports/:id", staff, h.Update)
		secured.DELETE("/value-reports/:id", staff, h.Delete)
	}
	if h := cfg.Exports; h != nil {
		secured.GET("/classes/:id/roster", staff, h.Roster)
	}

	return r
}
