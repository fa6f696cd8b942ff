package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Decode 将合并后的 map 转换为具体的配置结构
func Decode(cfgMap map[string]interface{}, out interface{}) error {
	data, err := yaml.Marshal(cfgMap)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return nil
}

// Validate checks `validate` tags and folds every violation into one error.
func Validate(cfg interface{}) error {
	err := validate.Struct(cfg)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s failed on %q", fe.Namespace(), fe.Tag()))
	}
	return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
}

// LoadInto 统一入口：读取 CONFIG_ENV / CONFIG_DIR，合并后解码到 out
func LoadInto(out interface{}) error {
	env := GetConfigEnv()
	configDir := GetEnv("CONFIG_DIR", "config")

	cfgMap, err := LoadConfig(env, configDir)
	if err != nil {
		return err
	}
	return Decode(cfgMap, out)
}
