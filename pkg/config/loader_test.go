package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testConfig struct {
	DB     DBConfig     `yaml:"db"`
	Search SearchConfig `yaml:"search"`
	JWT    JWTConfig    `yaml:"jwt"`
}

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o600))
}

func TestLoadConfigMergesEnvAndSecrets(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "base.yaml", `
db:
  host: localhost
  port: 5432
  user: ezmail
  name: ezmail
  password: ${DB_SECRET}
  slow_query_threshold: 150ms
search:
  min_score: 0.3
jwt:
  secret: ${JWT_SIGNING}
`)
	writeFile(t, dir, "staging.yaml", `
db:
  host: db.staging
search:
  min_score: 0.5
`)
	writeFile(t, dir, "secrets.env", "DB_SECRET=\"s3cret\"\n# comment\n")
	t.Setenv("JWT_SIGNING", "0123456789abcdef-signing")

	m, err := LoadConfig("staging", dir)
	require.NoError(t, err)

	var cfg testConfig
	require.NoError(t, Decode(m, &cfg))

	assert.Equal(t, "db.staging", cfg.DB.Host)
	assert.Equal(t, 5432, cfg.DB.Port)
	assert.Equal(t, "s3cret", cfg.DB.Password)
	assert.Equal(t, 150*time.Millisecond, cfg.DB.SlowQueryThreshold)
	assert.InDelta(t, 0.5, cfg.Search.MinScore, 1e-9)
	assert.Equal(t, "0123456789abcdef-signing", cfg.JWT.Secret)
	assert.NoError(t, Validate(&cfg))
}

func TestLoadConfigMissingBase(t *testing.T) {
	_, err := LoadConfig("local", t.TempDir())
	assert.Error(t, err)
}

func TestValidateReportsFields(t *testing.T) {
	cfg := testConfig{
		DB:     DBConfig{Host: "h", Port: 70000, User: "u", Name: "n"},
		Search: SearchConfig{MinScore: 1.5},
		JWT:    JWTConfig{Secret: "short"},
	}
	err := Validate(&cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DB.Port")
	assert.Contains(t, err.Error(), "Search.MinScore")
	assert.Contains(t, err.Error(), "JWT.Secret")
}

func TestSubstituteStringUnknownVar(t *testing.T) {
	lookup := func(k string) (string, bool) {
		if k == "A" {
			return "1", true
		}
		return "", false
	}
	assert.Equal(t, "x1y", substituteString("x${A}y${B}", lookup))
	assert.Equal(t, "plain", substituteString("plain", lookup))
	assert.Equal(t, "broken ${A", substituteString("broken ${A", lookup))
}

func TestClaimWindowDefault(t *testing.T) {
	assert.Equal(t, 10*time.Minute, EnrichmentConfig{}.ClaimWindow())
	assert.Equal(t, 3*time.Minute, EnrichmentConfig{ClaimTTL: 3 * time.Minute}.ClaimWindow())
}
