package main

import (
	"fmt"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/markbookhq/markbook-api/api/swagger"
	"github.com/markbookhq/markbook-api/internal/handler"
	"github.com/markbookhq/markbook-api/internal/lms"
	"github.com/markbookhq/markbook-api/internal/middleware"
	"github.com/markbookhq/markbook-api/internal/repository"
	"github.com/markbookhq/markbook-api/internal/service"
	"github.com/markbookhq/markbook-api/pkg/cache"
	"github.com/markbookhq/markbook-api/pkg/config"
	"github.com/markbookhq/markbook-api/pkg/database"
	"github.com/markbookhq/markbook-api/pkg/logger"
	corsmiddleware "github.com/markbookhq/markbook-api/pkg/middleware/cors"
	reqidmiddleware "github.com/markbookhq/markbook-api/pkg/middleware/requestid"
	"github.com/markbookhq/markbook-api/pkg/storage"
)

// @title Markbook API
// @version 0.1.0
// @description Grade computation and LMS identity reconciliation service
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
		logr.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer db.Close()

	var lookupCache service.LookupCache
	if cfg.Reconcile.LookupCacheEnabled {
		redisClient, err := cache.NewRedis(cfg.Redis)
		if err != nil {
			logr.Warn("redis unavailable, lookup cache disabled", zap.Error(err))
		} else {
			defer redisClient.Close()
			lookupCache = repository.NewLookupCacheRepository(redisClient, cfg.Reconcile.LookupCacheTTL, logr)
		}
	}

	files, err := storage.NewLocalStorage(cfg.Exports.StorageDir)
	if err != nil {
		logr.Fatal("failed to init export storage", zap.Error(err))
	}
	signer := storage.NewSignedURLSigner(cfg.Exports.SignedURLSecret, cfg.Exports.SignedURLTTL)

	validate := validator.New()
	metrics := service.NewMetricsService()

	systemRepo := repository.NewGradingSystemRepository(db)
	recordRepo := repository.NewRecordRepository(db)
	studentRepo := repository.NewStudentRepository(db)
	subjectRepo := repository.NewSubjectRepository(db)

	lmsClient := lms.NewClient(cfg.LMS)
	scorer := service.ScorerByName(cfg.Reconcile.Scorer)
	matcher := service.NewIdentityMatcher(scorer, cfg.Reconcile.AcceptThreshold)

	engine := service.NewGradeEngine()
	tokenService := service.NewTokenService(cfg.JWT.Secret, cfg.JWT.Expiration)
	gradingSystemService := service.NewGradingSystemService(systemRepo, validate, logr)
	gradeService := service.NewGradeService(systemRepo, recordRepo, engine, metrics, logr)
	reconcileService := service.NewReconcileService(lmsClient, recordRepo, studentRepo, lookupCache, matcher, metrics, cfg.LMS.CourseID, cfg.Reconcile.Workers, logr)
	accessService := service.NewAccessService(recordRepo, logr)
	subjectService := service.NewSubjectService(subjectRepo, validate, logr)
	studentService := service.NewStudentService(studentRepo, logr)
	exportService := service.NewExportService(systemRepo, recordRepo, subjectRepo, files, signer,
		service.ExportConfig{APIPrefix: cfg.APIPrefix, ResultTTL: cfg.Exports.SignedURLTTL}, logr)

	gradingSystemHandler := handler.NewGradingSystemHandler(gradingSystemService)
	gradeHandler := handler.NewGradeHandler(gradeService)
	reconcileHandler := handler.NewReconcileHandler(reconcileService)
	accessHandler := handler.NewAccessHandler(accessService)
	subjectHandler := handler.NewSubjectHandler(subjectService)
	studentHandler := handler.NewStudentHandler(studentService)
	exportHandler := handler.NewExportHandler(exportService)
	metricsHandler := handler.NewMetricsHandler(metrics)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metrics))

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", func(c *gin.Context) {
		if err := db.Ping(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "down"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)

	// Student-facing endpoints, guarded by access codes rather than JWTs.
	api.POST("/lookup", accessHandler.Lookup)
	api.GET("/exports/:token", exportHandler.Download)

	protected := api.Group("")
	protected.Use(middleware.JWT(tokenService))
	{
		protected.GET("/subjects", subjectHandler.List)
		protected.POST("/subjects", subjectHandler.Create)
		protected.GET("/subjects/:subjectId", subjectHandler.Get)
		protected.PUT("/subjects/:subjectId", subjectHandler.Update)

		protected.GET("/subjects/:subjectId/grading-system", gradingSystemHandler.Get)
		protected.PUT("/subjects/:subjectId/grading-system", gradingSystemHandler.Put)
		protected.POST("/subjects/:subjectId/grading-system/assign-key", gradingSystemHandler.AssignKey)

		protected.POST("/subjects/:subjectId/grades/compute", gradeHandler.Compute)
		protected.POST("/subjects/:subjectId/reconcile-emails", reconcileHandler.ReconcileEmails)
		protected.POST("/subjects/:subjectId/gradesheet", exportHandler.Generate)

		protected.GET("/records/:recordId", gradeHandler.GetRecord)
		protected.GET("/records/:recordId/preview", gradeHandler.Preview)
		protected.PUT("/records/:recordId/scores", gradeHandler.PutScores)
		protected.POST("/records/:recordId/access-code", accessHandler.IssueCode)

		protected.GET("/students", studentHandler.List)
		protected.GET("/students/:studentId", studentHandler.Get)
		protected.PUT("/students/:studentId/active", studentHandler.SetActive)
		protected.POST("/students/import", reconcileHandler.ImportStudents)
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
	if err := r.Run(addr); err != nil {
		logr.Sugar().Fatalw("server failed", "error", err)
	}
}
