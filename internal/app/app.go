package app

import (
	"edu_insight_backend/internal/config"
	"edu_insight_backend/internal/controller"
	"edu_insight_backend/internal/repository"
	"edu_insight_backend/internal/service"
	"edu_insight_backend/pkg/database"
	"edu_insight_backend/pkg/logger"
	"edu_insight_backend/pkg/monitoring"
	"edu_insight_backend/pkg/tracing"
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type App struct {
	Config          *config.Config
	Router          *gin.Engine
	DB              *gorm.DB
	Redis           *redis.Client
	services        *services
	configCallbacks []func(*config.Config)
}

type repositories struct {
	user        *repository.UserRepository
	performance *repository.PerformanceRepository
	dependency  *repository.DependencyRepository
	consent     *repository.ConsentRepository
	alert       *repository.AlertRepository
}

type services struct {
	auth      *service.AuthService
	consent   *service.ConsentService
	mapper    *service.DependencyMapperService
	gaps      *service.GapAnalyzerService
	analytics *service.AnalyticsService
	alerts    *service.AlertService
}

type controllers struct {
	auth       *controller.AuthController
	health     *controller.HealthController
	analytics  *controller.AnalyticsController
	dependency *controller.DependencyController
	alert      *controller.AlertController
	consent    *controller.ConsentController
}

func (a *App) RegisterConfigCallback(callback func(*config.Config)) {
	a.configCallbacks = append(a.configCallbacks, callback)
}

func (a *App) initRepositories(db *gorm.DB, rdb *redis.Client) *repositories {
	return &repositories{
		user:        repository.NewUserRepository(db),
		performance: repository.NewPerformanceRepository(db),
		dependency:  repository.NewDependencyRepository(db),
		consent:     repository.NewConsentRepository(db),
		alert:       repository.NewAlertRepository(db, rdb),
	}
}

func (a *App) initServices(repos *repositories, cfg *config.Config, rdb *redis.Client) *services {
	s := &services{}

	s.auth = service.NewAuthService(repos.user, cfg)
	s.consent = service.NewConsentService(repos.consent)

	var similarity service.ConceptSimilarity
	if cfg.Analytics.EmbeddingSimilarity && cfg.AI.BaseURL != "" {
		similarity = service.NewEmbeddingConceptSimilarity(cfg.AI, repos.dependency)
	} else {
		similarity = service.NewLexicalConceptSimilarity(repos.dependency)
	}

	s.mapper = service.NewDependencyMapperService(repos.performance, repos.dependency, s.consent, similarity, cfg.Analytics)
	s.gaps = service.NewGapAnalyzerService(repos.performance, repos.dependency, s.consent, cfg.Analytics)

	var cache service.AnalyticsCache
	cacheTTL := time.Duration(cfg.Analytics.CacheTTLMinutes) * time.Minute
	if cfg.Analytics.CacheBackend == "redis" {
		cache = service.NewRedisAnalyticsCache(rdb, cacheTTL)
	} else {
		cache = service.NewMemoryAnalyticsCache(cacheTTL, cfg.Analytics.CacheMaxEntries)
	}
	s.analytics = service.NewAnalyticsService(repos.performance, repos.dependency, s.consent, s.gaps, cache, cfg.Analytics)

	var notifier service.AlertNotifier = service.NoopAlertNotifier{}
	if rdb != nil {
		notifier = service.NewRedisAlertNotifier(rdb)
	}
	s.alerts = service.NewAlertService(repos.alert, s.gaps, repos.performance, repos.user, notifier, cfg.Alerts)

	// 热更新只触及可调分析参数，连接类配置需重启生效
	a.RegisterConfigCallback(func(next *config.Config) {
		s.mapper.SetConfig(next.Analytics)
		s.gaps.SetConfig(next.Analytics)
		s.analytics.SetConfig(next.Analytics)
		s.alerts.SetConfig(next.Alerts)
	})

	return s
}

func (a *App) initControllers(s *services, repos *repositories, db *gorm.DB, rdb *redis.Client) *controllers {
	return &controllers{
		auth:       controller.NewAuthController(s.auth),
		health:     controller.NewHealthController(db, rdb),
		analytics:  controller.NewAnalyticsController(s.analytics, s.gaps),
		dependency: controller.NewDependencyController(s.mapper, repos.dependency),
		alert:      controller.NewAlertController(s.alerts),
		consent:    controller.NewConsentController(s.consent),
	}
}

// ApplyConfig 配置热更新回调入口，由外部的配置监听器调用。
func (a *App) ApplyConfig(cfg *config.Config) {
	a.Config = cfg
	for _, cb := range a.configCallbacks {
		cb(cfg)
	}
	logger.Log.Info("runtime configuration reloaded")
}

// startBackgroundTasks 可选的内置批量扫描，替代外部 cron。
func (a *App) startBackgroundTasks(s *services) {
	if !a.Config.Alerts.SweepEnabled {
		return
	}

	interval := time.Duration(a.Config.Alerts.SweepIntervalHours) * time.Hour
	if interval <= 0 {
		interval = 24 * time.Hour
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for range ticker.C {
			a.runAlertSweep(s)
		}
	}()
}

func (a *App) runAlertSweep(s *services) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	courses, err := a.listCoursesForSweep()
	if err != nil {
		logger.Log.Error("alert sweep course listing failed", zap.Error(err))
		return
	}

	for instructorID, courseCodes := range courses {
		alerts, err := s.alerts.ProcessBatchAlerts(ctx, instructorID, courseCodes, 0, 0)
		if err != nil {
			logger.Log.Error("alert sweep failed for instructor",
				zap.Uint("instructorId", instructorID),
				zap.Error(err))
			continue
		}
		if len(alerts) > 0 {
			logger.Log.Info("alert sweep generated alerts",
				zap.Uint("instructorId", instructorID),
				zap.Int("count", len(alerts)))
		}
	}
}

func (a *App) listCoursesForSweep() (map[uint][]string, error) {
	var courses []struct {
		Code         string
		InstructorID uint
	}
	if err := a.DB.Table("courses").Select("code, instructor_id").Where("instructor_id > 0").Scan(&courses).Error; err != nil {
		return nil, err
	}

	byInstructor := make(map[uint][]string)
	for _, c := range courses {
		byInstructor[c.InstructorID] = append(byInstructor[c.InstructorID], c.Code)
	}
	return byInstructor, nil
}

func NewApp(cfg *config.Config) *App {
	logger.InitLogger(cfg)

	logger.Log.Info("Logger initialized successfully")

	db, err := database.InitDB(&cfg.Database)
	if err != nil {
		logger.Log.Fatal("Failed to initialize database", zap.Error(err))
		log.Fatalf("Failed to initialize database: %v", err)
	}

	rdb, err := database.InitRedis(&cfg.Redis)
	if err != nil {
		logger.Log.Fatal("Failed to initialize redis", zap.Error(err))
		log.Fatalf("Failed to initialize redis: %v", err)
	}

	app := &App{
		Config: cfg,
		DB:     db,
		Redis:  rdb,
	}

	repos := app.initRepositories(db, rdb)
	services := app.initServices(repos, cfg, rdb)
	app.services = services
	controllers := app.initControllers(services, repos, db, rdb)

	// 监控初始化
	monitoring.Init()

	if cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.Default()
	app.Router = router

	app.setupMiddlewares(router, cfg)

	if cfg.Tracing.Enabled {
		if _, err := tracing.InitTracer("edu-insight", cfg.Tracing.CollectorEndpoint); err != nil {
			logger.Log.Fatal("Failed to initialize tracing", zap.Error(err))
		}
	}

	app.registerRoutes(router, controllers, repos, cfg)

	app.startBackgroundTasks(services)

	return app
}

func (a *App) Run() {
	srv := &http.Server{
		Addr:    ":" + a.Config.Server.Port,
		Handler: a.Router,
	}

	// 启动服务器
	go func() {
		log.Printf("Server running on port %s", a.Config.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %s\n", err)
		}
	}()

	// 等待中断信号优雅地关闭服务器（设置5秒的超时时间）
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	log.Println("Server exiting")
}
