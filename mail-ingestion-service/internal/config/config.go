package config

import (
	"ezmail/pkg/config"
)

type Config struct {
	DB     config.DBConfig     `yaml:"db"`
	MQ     config.MQConfig     `yaml:"mq"`
	JWT    config.JWTConfig    `yaml:"jwt"`
	Server config.ServerConfig `yaml:"server"`
	Log    config.LogConfig    `yaml:"log"`
	OAuth  config.OAuthConfig  `yaml:"oauth"`
	Gmail  config.GmailConfig  `yaml:"gmail"`
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
	config.OverrideJWTFromEnv(&cfg.JWT)
	config.OverrideServerFromEnv(&cfg.Server)
	config.OverrideOAuthFromEnv(&cfg.OAuth)
	if cfg.Log.Service == "" {
		cfg.Log.Service = "mail-ingestion-service"
	}

	if err := config.Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
