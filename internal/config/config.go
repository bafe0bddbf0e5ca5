package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	JWT       JWTConfig
	Redis     RedisConfig
	Tracing   TracingConfig   `mapstructure:"tracing"`
	AI        AIConfig        `mapstructure:"ai"`
	CORS      CORSConfig      `mapstructure:"cors"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Analytics AnalyticsConfig `mapstructure:"analytics"`
	Alerts    AlertConfig     `mapstructure:"alerts"`

	// 运行时标志（非配置文件，通过命令行参数设置）
	ForceMigrate bool `mapstructure:"-"` // 强制执行数据库迁移
	MigrateOnly  bool `mapstructure:"-"` // 仅迁移模式（迁移后退出）
}

type ServerConfig struct {
	Port string
	Mode string
}

type DatabaseConfig struct {
	Host      string
	Port      int
	User      string
	Password  string
	DBName    string
	Charset   string
	ParseTime bool
}

type JWTConfig struct {
	Secret     string        `mapstructure:"secret"`
	ExpireTime time.Duration `mapstructure:"expire_hours"`
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

type TracingConfig struct {
	Enabled           bool   `mapstructure:"enabled"`
	CollectorEndpoint string `mapstructure:"collector_endpoint"`
}

// AIConfig 嵌入向量服务（概念相似度的可选后端）
type AIConfig struct {
	BaseURL        string `mapstructure:"base_url"`
	APIKey         string `mapstructure:"api_key"`
	EmbeddingModel string `mapstructure:"embedding_model"`
}

type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

type RateLimitConfig struct {
	MaxRequests   int `mapstructure:"max_requests"`
	WindowMinutes int `mapstructure:"window_minutes"`
}

// AnalyticsConfig 跨课程分析的可调参数。
// 阈值均为经验值而非定律，允许通过配置文件热更新。
type AnalyticsConfig struct {
	SimilarityThreshold       float64 `mapstructure:"similarity_threshold"`        // 概念相似度候选阈值
	MinSampleSize             int     `mapstructure:"min_sample_size"`             // 相关性分析最小样本量
	CorrelationThreshold      float64 `mapstructure:"correlation_threshold"`       // |r| 保留阈值
	MinDependencyStrength     float64 `mapstructure:"min_dependency_strength"`     // 依赖边落库最小强度
	RiskMasteryThreshold      float64 `mapstructure:"risk_mastery_threshold"`      // 先修概念掌握度风险线
	SeverityFloor             float64 `mapstructure:"severity_floor"`              // 误报过滤：最低严重度
	TransferStrengthThreshold float64 `mapstructure:"transfer_strength_threshold"` // 正迁移机会的强度阈值
	StrengthSmoothingAlpha    float64 `mapstructure:"strength_smoothing_alpha"`    // 依赖强度指数平滑权重
	MaxCoursesAnalyzed        int     `mapstructure:"max_courses_analyzed"`        // 单次分析课程数上限
	MaxConceptPairs           int     `mapstructure:"max_concept_pairs"`           // 单次分析概念对上限
	CacheBackend              string  `mapstructure:"cache_backend"`               // memory | redis
	CacheTTLMinutes           int     `mapstructure:"cache_ttl_minutes"`
	CacheMaxEntries           int     `mapstructure:"cache_max_entries"`
	GapRiskWeight             float64 `mapstructure:"gap_risk_weight"`
	TrendRiskWeight           float64 `mapstructure:"trend_risk_weight"`
	VelocityRiskWeight        float64 `mapstructure:"velocity_risk_weight"`
	EngagementRiskWeight      float64 `mapstructure:"engagement_risk_weight"`
	EmbeddingSimilarity       bool    `mapstructure:"embedding_similarity"` // 使用嵌入后端代替词法启发式
}

type AlertConfig struct {
	SeverityThreshold   float64 `mapstructure:"severity_threshold"`     // 单条预警的最低严重度
	BatchThreshold      float64 `mapstructure:"batch_threshold"`        // 批量扫描的过滤阈值
	MaxAlertsPerStudent int     `mapstructure:"max_alerts_per_student"` // 每个学生保留的最严重缺口数
	SweepEnabled        bool    `mapstructure:"sweep_enabled"`          // 内置定时扫描（无外部cron时启用）
	SweepIntervalHours  int     `mapstructure:"sweep_interval_hours"`
}

func LoadConfig(path string) (*Config, error) {
	viper.AddConfigPath(path)
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")

	viper.SetEnvPrefix("EDU_INSIGHT")
	viper.AutomaticEnv()

	// Database
	viper.BindEnv("database.host", "DATABASE_HOST")
	viper.BindEnv("database.port", "DATABASE_PORT")
	viper.BindEnv("database.user", "DATABASE_USER")
	viper.BindEnv("database.password", "DATABASE_PASSWORD")
	viper.BindEnv("database.dbname", "DATABASE_NAME")

	// JWT
	viper.BindEnv("jwt.secret", "JWT_SECRET")

	// Redis
	viper.BindEnv("redis.host", "REDIS_HOST")
	viper.BindEnv("redis.port", "REDIS_PORT")
	viper.BindEnv("redis.password", "REDIS_PASSWORD")

	// Server
	viper.BindEnv("server.mode", "SERVER_MODE")

	// AI / Embedding
	viper.BindEnv("ai.base_url", "AI_BASE_URL")
	viper.BindEnv("ai.api_key", "AI_API_KEY")
	viper.BindEnv("ai.embedding_model", "AI_EMBEDDING_MODEL")

	// Tracing
	viper.BindEnv("tracing.enabled", "TRACING_ENABLED")
	viper.BindEnv("tracing.collector_endpoint", "TRACING_COLLECTOR_ENDPOINT")

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		return nil, err
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	cfg.JWT.ExpireTime = cfg.JWT.ExpireTime * time.Hour

	// 生产环境校验 JWT Secret 强度
	if cfg.Server.Mode == "release" && len(cfg.JWT.Secret) < 32 {
		return nil, fmt.Errorf("JWT secret is too short (%d chars), must be at least 32 characters in release mode", len(cfg.JWT.Secret))
	}

	return &cfg, nil
}

func setDefaults() {
	viper.SetDefault("analytics.similarity_threshold", 0.7)
	viper.SetDefault("analytics.min_sample_size", 10)
	viper.SetDefault("analytics.correlation_threshold", 0.5)
	viper.SetDefault("analytics.min_dependency_strength", 0.1)
	viper.SetDefault("analytics.risk_mastery_threshold", 0.6)
	viper.SetDefault("analytics.severity_floor", 0.25)
	viper.SetDefault("analytics.transfer_strength_threshold", 0.6)
	viper.SetDefault("analytics.strength_smoothing_alpha", 0.3)
	viper.SetDefault("analytics.max_courses_analyzed", 12)
	viper.SetDefault("analytics.max_concept_pairs", 2000)
	viper.SetDefault("analytics.cache_backend", "memory")
	viper.SetDefault("analytics.cache_ttl_minutes", 60)
	viper.SetDefault("analytics.cache_max_entries", 100)
	viper.SetDefault("analytics.gap_risk_weight", 0.35)
	viper.SetDefault("analytics.trend_risk_weight", 0.25)
	viper.SetDefault("analytics.velocity_risk_weight", 0.25)
	viper.SetDefault("analytics.engagement_risk_weight", 0.15)

	viper.SetDefault("alerts.severity_threshold", 0.3)
	viper.SetDefault("alerts.batch_threshold", 0.5)
	viper.SetDefault("alerts.max_alerts_per_student", 3)
	viper.SetDefault("alerts.sweep_enabled", false)
	viper.SetDefault("alerts.sweep_interval_hours", 24)
}

// DefaultAnalyticsConfig 与 viper 默认值保持一致，测试直接构造服务时使用。
func DefaultAnalyticsConfig() AnalyticsConfig {
	return AnalyticsConfig{
		SimilarityThreshold:       0.7,
		MinSampleSize:             10,
		CorrelationThreshold:      0.5,
		MinDependencyStrength:     0.1,
		RiskMasteryThreshold:      0.6,
		SeverityFloor:             0.25,
		TransferStrengthThreshold: 0.6,
		StrengthSmoothingAlpha:    0.3,
		MaxCoursesAnalyzed:        12,
		MaxConceptPairs:           2000,
		CacheBackend:              "memory",
		CacheTTLMinutes:           60,
		CacheMaxEntries:           100,
		GapRiskWeight:             0.35,
		TrendRiskWeight:           0.25,
		VelocityRiskWeight:        0.25,
		EngagementRiskWeight:      0.15,
	}
}

// DefaultAlertConfig 与 viper 默认值保持一致。
func DefaultAlertConfig() AlertConfig {
	return AlertConfig{
		SeverityThreshold:   0.3,
		BatchThreshold:      0.5,
		MaxAlertsPerStudent: 3,
		SweepIntervalHours:  24,
	}
}
