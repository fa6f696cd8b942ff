package config

import (
	"os"
	"strconv"
	"time"
)

// DBConfig 数据库配置
type DBConfig struct {
	Host               string        `yaml:"host" validate:"required"`
	Port               int           `yaml:"port" validate:"required,min=1,max=65535"`
	User               string        `yaml:"user" validate:"required"`
	Password           string        `yaml:"password"`
	Name               string        `yaml:"name" validate:"required"`
	SSLMode            string        `yaml:"sslmode"`
	MaxConns           int32         `yaml:"max_conns" validate:"omitempty,min=1"`
	MinConns           int32         `yaml:"min_conns" validate:"omitempty,min=0"`
	SlowQueryThreshold time.Duration `yaml:"slow_query_threshold"`
	AutoMigrate        bool          `yaml:"auto_migrate"`
}

// MQConfig 消息队列配置
type MQConfig struct {
	URL      string `yaml:"url" validate:"required"`
	Prefetch int    `yaml:"prefetch" validate:"omitempty,min=1"`
}

// RedisConfig Redis配置
type RedisConfig struct {
	Addr     string `yaml:"addr" validate:"required"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// JWTConfig JWT配置
type JWTConfig struct {
	Secret string        `yaml:"secret" validate:"required,min=16"`
	TTL    time.Duration `yaml:"ttl"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	Port string `yaml:"port" validate:"required"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level       string `yaml:"level" validate:"omitempty,oneof=debug info warn error"`
	Development bool   `yaml:"development"`
	Service     string `yaml:"service"`
}

// OAuthConfig 邮箱 OAuth 配置
type OAuthConfig struct {
	ClientID      string        `yaml:"client_id" validate:"required"`
	ClientSecret  string        `yaml:"client_secret" validate:"required"`
	RedirectURL   string        `yaml:"redirect_url" validate:"required,url"`
	AuthURL       string        `yaml:"auth_url" validate:"omitempty,url"`
	TokenURL      string        `yaml:"token_url" validate:"omitempty,url"`
	Scopes        []string      `yaml:"scopes" validate:"min=1"`
	RefreshMargin time.Duration `yaml:"refresh_margin"`
	RenewTimeout  time.Duration `yaml:"renew_timeout"`
	// EncryptionKey base64 编码的 32 字节 key，用于加密存储的 token
	EncryptionKey string `yaml:"encryption_key" validate:"required,base64"`
}

// GmailConfig 拉取配置
type GmailConfig struct {
	BaseURL          string        `yaml:"base_url" validate:"omitempty,url"`
	RequestTimeout   time.Duration `yaml:"request_timeout"`
	QPS              float64       `yaml:"qps" validate:"omitempty,gt=0"`
	Burst            int           `yaml:"burst" validate:"omitempty,min=1"`
	MaxRetries       int           `yaml:"max_retries" validate:"omitempty,min=0,max=10"`
	FetchConcurrency int           `yaml:"fetch_concurrency" validate:"omitempty,min=1,max=32"`
	DefaultMaxItems  int           `yaml:"default_max_items" validate:"omitempty,min=1,max=500"`
}

// LLMConfig 摘要 / 元数据模型配置
type LLMConfig struct {
	Provider      string        `yaml:"provider" validate:"required,oneof=openai gemini"`
	BaseURL       string        `yaml:"base_url" validate:"required_if=Provider openai"`
	APIKey        string        `yaml:"api_key"`
	Model         string        `yaml:"model" validate:"required"`
	Timeout       time.Duration `yaml:"timeout"`
	MaxInputChars int           `yaml:"max_input_chars" validate:"omitempty,min=200"`
}

// EmbeddingConfig 向量模型配置
type EmbeddingConfig struct {
	Provider   string        `yaml:"provider" validate:"required,oneof=openai gemini hash"`
	BaseURL    string        `yaml:"base_url" validate:"required_if=Provider openai"`
	APIKey     string        `yaml:"api_key"`
	Model      string        `yaml:"model"`
	Dimensions int           `yaml:"dimensions" validate:"required,min=8,max=4096"`
	Timeout    time.Duration `yaml:"timeout"`
}

// VectorConfig 向量库配置
type VectorConfig struct {
	Backend string `yaml:"backend" validate:"required,oneof=pgvector memory"`
	Table   string `yaml:"table" validate:"omitempty,max=63"`
}

// EnrichmentConfig 处理流水线配置
type EnrichmentConfig struct {
	Concurrency   int           `yaml:"concurrency" validate:"omitempty,min=1,max=16"`
	ItemTimeout   time.Duration `yaml:"item_timeout"`
	ClaimTTL      time.Duration `yaml:"claim_ttl"`
	MaxAttempts   int64         `yaml:"max_attempts" validate:"omitempty,min=1"`
	SweepInterval time.Duration `yaml:"sweep_interval"`
	SweepGrace    time.Duration `yaml:"sweep_grace"`
	SweepBatch    int           `yaml:"sweep_batch" validate:"omitempty,min=1,max=1000"`
}

// ClaimWindow 未配置时默认 10 分钟
func (c EnrichmentConfig) ClaimWindow() time.Duration {
	if c.ClaimTTL <= 0 {
		return 10 * time.Minute
	}
	return c.ClaimTTL
}

// SearchConfig 语义搜索配置
type SearchConfig struct {
	MinScore        float64 `yaml:"min_score" validate:"min=0,max=1"`
	OverFetchFactor int     `yaml:"over_fetch_factor" validate:"omitempty,min=1,max=10"`
	DefaultLimit    int     `yaml:"default_limit" validate:"omitempty,min=1"`
	MaxLimit        int     `yaml:"max_limit" validate:"omitempty,min=1"`
}

// SchedulerConfig 定时任务配置
type SchedulerConfig struct {
	SnoozeSpec string `yaml:"snooze_spec"`
}

// OutboxConfig 补发任务配置
type OutboxConfig struct {
	Interval   time.Duration `yaml:"interval"`
	BatchSize  int           `yaml:"batch_size" validate:"omitempty,min=1,max=1000"`
	MaxRetries int           `yaml:"max_retries" validate:"omitempty,min=1"`
}

// OverrideDBFromEnv 从环境变量覆盖数据库配置
func OverrideDBFromEnv(cfg *DBConfig) {
	if host := os.Getenv("DB_HOST"); host != "" {
		cfg.Host = host
	}
	if port := os.Getenv("DB_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			cfg.Port = p
		}
	}
	if user := os.Getenv("DB_USER"); user != "" {
		cfg.User = user
	}
	if password := os.Getenv("DB_PASSWORD"); password != "" {
		cfg.Password = password
	}
	if name := os.Getenv("DB_NAME"); name != "" {
		cfg.Name = name
	}
}

// OverrideMQFromEnv 从环境变量覆盖MQ配置
func OverrideMQFromEnv(cfg *MQConfig) {
	if url := os.Getenv("MQ_URL"); url != "" {
		cfg.URL = url
	}
}

// OverrideRedisFromEnv 从环境变量覆盖Redis配置
func OverrideRedisFromEnv(cfg *RedisConfig) {
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		cfg.Addr = addr
	}
	if password := os.Getenv("REDIS_PASSWORD"); password != "" {
		cfg.Password = password
	}
}

// OverrideJWTFromEnv 从环境变量覆盖JWT配置
func OverrideJWTFromEnv(cfg *JWTConfig) {
	if secret := os.Getenv("JWT_SECRET"); secret != "" {
		cfg.Secret = secret
	}
}

// OverrideServerFromEnv 从环境变量覆盖服务器配置
func OverrideServerFromEnv(cfg *ServerConfig) {
	if port := os.Getenv("SERVER_PORT"); port != "" {
		cfg.Port = port
	}
}

// OverrideOAuthFromEnv 只覆盖敏感字段
func OverrideOAuthFromEnv(cfg *OAuthConfig) {
	if secret := os.Getenv("OAUTH_CLIENT_SECRET"); secret != "" {
		cfg.ClientSecret = secret
	}
	if key := os.Getenv("CREDENTIAL_ENCRYPTION_KEY"); key != "" {
		cfg.EncryptionKey = key
	}
}

// OverrideLLMFromEnv 从环境变量覆盖模型 key，llm / emb 可为 nil
func OverrideLLMFromEnv(llm *LLMConfig, emb *EmbeddingConfig) {
	if key := os.Getenv("LLM_API_KEY"); key != "" && llm != nil {
		llm.APIKey = key
	}
	if key := os.Getenv("EMBEDDING_API_KEY"); key != "" && emb != nil {
		emb.APIKey = key
	}
}
