package config

import (
	"ezmail/pkg/config"
)

type Config struct {
	DB        config.DBConfig        `yaml:"db"`
	JWT       config.JWTConfig       `yaml:"jwt"`
	Server    config.ServerConfig    `yaml:"server"`
	Log       config.LogConfig       `yaml:"log"`
	MQ        config.MQConfig        `yaml:"mq"`
	Embedding config.EmbeddingConfig `yaml:"embedding"`
	Vector    config.VectorConfig    `yaml:"vector"`
	Search    config.SearchConfig    `yaml:"search"`
}

func Load() (*Config, error) {
	var cfg Config
	if err := config.LoadInto(&cfg); err != nil {
		return nil, err
	}

	// 环境变量覆盖
	config.OverrideDBFromEnv(&cfg.DB)
	config.OverrideJWTFromEnv(&cfg.JWT)
	config.OverrideServerFromEnv(&cfg.Server)
	config.OverrideMQFromEnv(&cfg.MQ)
	config.OverrideLLMFromEnv(nil, &cfg.Embedding)
	if cfg.Log.Service == "" {
		cfg.Log.Service = "api-gateway"
	}

	if err := config.Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
