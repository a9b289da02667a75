package main

import (
	"fmt"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/noah-isme/seatdesk-api/api/swagger"
	"github.com/noah-isme/seatdesk-api/internal/handler"
	"github.com/noah-isme/seatdesk-api/internal/middleware"
	"github.com/noah-isme/seatdesk-api/internal/repository"
	"github.com/noah-isme/seatdesk-api/internal/service"
	"github.com/noah-isme/seatdesk-api/pkg/cache"
	"github.com/noah-isme/seatdesk-api/pkg/config"
	"github.com/noah-isme/seatdesk-api/pkg/database"
	"github.com/noah-isme/seatdesk-api/pkg/logger"
	"github.com/noah-isme/seatdesk-api/pkg/mailer"
	corsmiddleware "github.com/noah-isme/seatdesk-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/seatdesk-api/pkg/middleware/requestid"
)

// @title SeatDesk API
// @version 1.0.0
// @description Library seat and locker management service
// @BasePath /api/v1
// @schemes http

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

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to redis", "error", err)
	}
	defer redisClient.Close()

	validate := validator.New()
	metricsSvc := service.NewMetricsService()
	mail := mailer.New(cfg.SMTP, logr)

	studentRepo := repository.NewStudentRepository(db)
	userRepo := repository.NewUserRepository(db)
	otpRepo := repository.NewOTPRepository(redisClient)

	allocationSvc := service.NewAllocationService(studentRepo, metricsSvc, logr)
	studentSvc := service.NewStudentService(studentRepo, allocationSvc, validate, logr)
	exportSvc := service.NewExportService(studentRepo, logr, nil, nil, nil)
	authSvc := service.NewAuthService(userRepo, otpRepo, mail, validate, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             cfg.JWT.Issuer,
		OTPTTL:             cfg.OTP.TTL,
		OTPMaxAttempts:     cfg.OTP.MaxAttempts,
	})

	authHandler := handler.NewAuthHandler(authSvc)
	studentHandler := handler.NewStudentHandler(studentSvc)
	exportHandler := handler.NewExportHandler(exportSvc)
	metricsHandler := handler.NewMetricsHandler(metricsSvc)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	r.GET("/ready", func(c *gin.Context) {
		if err := db.Ping(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})

	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)

	auth := api.Group("/auth")
	auth.POST("/signup", authHandler.Signup)
	auth.POST("/verify-otp", authHandler.VerifyOTP)
	auth.POST("/login", authHandler.Login)
	auth.POST("/refresh", authHandler.Refresh)

	students := api.Group("/students")
	students.Use(middleware.JWT(authSvc))
	students.GET("", studentHandler.List)
	students.POST("", studentHandler.Create)
	students.GET("/next-registration-number", studentHandler.NextRegistrationNumber)
	students.GET("/export", exportHandler.StudentRoster)
	students.GET("/:id", studentHandler.Get)
	students.PUT("/:id", studentHandler.Update)
	students.DELETE("/:id", studentHandler.Delete)

	addr := fmt.Sprintf(":%d", cfg.Port)
	logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
	if err := r.Run(addr); err != nil {
		logr.Sugar().Fatalw("server failed", "error", err)
	}
}
