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
}

func Load() (*Config, error) {
	var cfg Config
	if err := config.LoadInto(&cfg); err != nil {
		return nil, err
	}

	config.OverrideDBFromEnv(&cfg.DB)
	config.OverrideMQFromEnv(&cfg.MQ)
	config.OverrideRedisFromEnv(&cfg.Redis)
	config.OverrideServerFromEnv(&cfg.Server)
	config.OverrideLLMFromEnv(&cfg.LLM, &cfg.Embedding)
	if cfg.Log.Service == "" {
		cfg.Log.Service = "email-processor-service"
	}

	if err := config.Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
