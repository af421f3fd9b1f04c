package config

import (
	"log"
	"os"

	"RescueHub/pkg/logger"
	"RescueHub/pkg/util"
)

// Config 全局配置
type Config struct {
	DBDriver string `env:"DB_DRIVER"`
	DSN      string `env:"DSN"`
	Log      logger.LogConfig
	Addr     string `env:"ADDR"`
	Mode     string `env:"MODE"`

	APIPrefix string `env:"API_PREFIX"`

	// 匹配与指派
	SkillInference       map[string]string `env:"SKILL_INFERENCE"`         // 标签=所需技能，如 "medical=medical,trapped=rescue"
	AssignMode           string            `env:"ASSIGN_MODE"`             // single 或 broadcast
	DefaultSearchRadiusM float64           `env:"DEFAULT_SEARCH_RADIUS_M"` // 帮助者未设活动范围时的兜底半径
	CandidateCacheTTLSec int64             `env:"CANDIDATE_CACHE_TTL_SEC"` // 候选列表缓存时间，0 关闭
	RematchCron          string            `env:"REMATCH_CRON"`            // open 案件重新匹配的 cron 表达式
	RematchMinAgeSec     int64             `env:"REMATCH_MIN_AGE_SEC"`     // open 超过该时长才参与重扫

	// 消息通道
	PollBatchSize int64 `env:"POLL_BATCH_SIZE"`

	// 存储重试
	StoreRetries   int64 `env:"STORE_RETRIES"`
	StoreBackoffMs int64 `env:"STORE_BACKOFF_MS"`
	CASRetries     int64 `env:"CAS_RETRIES"` // 乐观并发冲突的重试上限
	GraceWindowSec int64 `env:"CHANNEL_GRACE_WINDOW_SEC"`

	// 缓存
	CacheType     string `env:"CACHE_TYPE"` // local 或 redis
	RedisAddr     string `env:"REDIS_ADDR"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int64  `env:"REDIS_DB"`

	// 指派短信提醒（网关地址为空时退化为 no-op）
	SMSGatewayURL   string `env:"SMS_GATEWAY_URL"`
	SMSSignName     string `env:"SMS_SIGN_NAME"`
	SMSTemplateCode string `env:"SMS_TEMPLATE_CODE"`

	// 文案生成协作方（异步调用，绝不阻塞引擎）
	LLMProvider string `env:"LLM_PROVIDER"` // openai 或 ollama，空则关闭
	LLMApiKey   string `env:"LLM_API_KEY"`
	LLMBaseURL  string `env:"LLM_BASE_URL"`
	LLMModel    string `env:"LLM_MODEL"`
}

var GlobalConfig *Config

// Load 加载全局配置
func Load() error {
	// 1. 根据环境加载 .env 文件
	env := os.Getenv("APP_ENV")
	if env == "" {
		env = "development"
	}
	if err := util.LoadEnv(env); err != nil {
		log.Printf("Failed to load .env file: %v", err)
	}

	// 2. 加载全局配置
	GlobalConfig = &Config{
		DBDriver: util.GetEnv("DB_DRIVER"),
		DSN:      util.GetEnv("DSN"),
		Addr:     util.GetEnvDefault("ADDR", ":8080"),
		Mode:     util.GetEnvDefault("MODE", "debug"),
		Log: logger.LogConfig{
			Level:      util.GetEnvDefault("LOG_LEVEL", "info"),
			Filename:   util.GetEnv("LOG_FILE"),
			MaxSizeMB:  int(util.GetIntEnvDefault("LOG_MAX_SIZE", 100)),
			MaxBackups: int(util.GetIntEnvDefault("LOG_MAX_BACKUPS", 3)),
			MaxAgeDays: int(util.GetIntEnvDefault("LOG_MAX_AGE", 28)),
			Compress:   util.GetBoolEnv("LOG_COMPRESS"),
		},
		APIPrefix: util.GetEnvDefault("API_PREFIX", "/api"),

		SkillInference:       util.GetMapEnv("SKILL_INFERENCE"),
		AssignMode:           util.GetEnvDefault("ASSIGN_MODE", "single"),
		DefaultSearchRadiusM: util.GetFloatEnvDefault("DEFAULT_SEARCH_RADIUS_M", 10000),
		CandidateCacheTTLSec: util.GetIntEnvDefault("CANDIDATE_CACHE_TTL_SEC", 0),
		RematchCron:          util.GetEnvDefault("REMATCH_CRON", "@every 2m"),
		RematchMinAgeSec:     util.GetIntEnvDefault("REMATCH_MIN_AGE_SEC", 120),

		PollBatchSize: util.GetIntEnvDefault("POLL_BATCH_SIZE", 50),

		StoreRetries:   util.GetIntEnvDefault("STORE_RETRIES", 3),
		StoreBackoffMs: util.GetIntEnvDefault("STORE_BACKOFF_MS", 50),
		CASRetries:     util.GetIntEnvDefault("CAS_RETRIES", 5),
		GraceWindowSec: util.GetIntEnvDefault("CHANNEL_GRACE_WINDOW_SEC", 60),

		CacheType:     util.GetEnvDefault("CACHE_TYPE", "local"),
		RedisAddr:     util.GetEnvDefault("REDIS_ADDR", "127.0.0.1:6379"),
		RedisPassword: util.GetEnv("REDIS_PASSWORD"),
		RedisDB:       util.GetIntEnv("REDIS_DB"),

		SMSGatewayURL:   util.GetEnv("SMS_GATEWAY_URL"),
		SMSSignName:     util.GetEnvDefault("SMS_SIGN_NAME", "RescueHub"),
		SMSTemplateCode: util.GetEnv("SMS_TEMPLATE_CODE"),

		LLMProvider: util.GetEnv("LLM_PROVIDER"),
		LLMApiKey:   util.GetEnv("LLM_API_KEY"),
		LLMBaseURL:  util.GetEnv("LLM_BASE_URL"),
		LLMModel:    util.GetEnvDefault("LLM_MODEL", "gpt-4o-mini"),
	}

	// 默认技能推断表，可被环境变量整体覆盖
	if GlobalConfig.SkillInference == nil {
		GlobalConfig.SkillInference = DefaultSkillInference()
	}
	return nil
}

// DefaultSkillInference 默认的 标签/等级 → 所需技能 映射
func DefaultSkillInference() map[string]string {
	return map[string]string{
		"medical":          "medical",
		"injury":           "medical",
		"elderly":          "medical",
		"pregnant":         "medical",
		"trapped":          "rescue",
		"disabled":         "rescue",
		"life_threatening": "medical",
	}
}
