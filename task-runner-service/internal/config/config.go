package config

import (
	"ezmail/pkg/config"
)

type Config struct {
	DB         config.DBConfig         `yaml:"db"`
	MQ         config.MQConfig         `yaml:"mq"`
	Redis      config.RedisConfig      `yaml:"redis"`
	Server     config.ServerConfig     `yaml:"server"`
	Log        config.LogConfig        `yaml:"log"`
	LLM        config.LLMConfig        `yaml:"llm"`
	Embedding  config.EmbeddingConfig  `yaml:"embedding"`
	Vector     config.VectorConfig     `yaml:"vector"`
	Enrichment config.EnrichmentConfig `yaml:"enrichment"`
	Scheduler  config.SchedulerConfig  `yaml:"scheduler"`
	Outbox     config.OutboxConfig     `yaml:"outbox"`
}

func Load() (*Config, error) {
	// 使用统一配置中心
	var cfg Config
	if err := config.LoadInto(&cfg); err != nil {
		return nil, err
	}

	// 环境变量覆盖（优先级最高）
	config.OverrideDBFromEnv(&cfg.DB)
	config.OverrideMQFromEnv(&cfg.MQ)
	config.OverrideRedisFromEnv(&cfg.Redis)
	config.OverrideServerFromEnv(&cfg.Server)
	config.OverrideLLMFromEnv(&cfg.LLM, &cfg.Embedding)
	if cfg.Log.Service == "" {
		cfg.Log.Service = "task-runner-service"
	}

	if err := config.Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
