package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetRedisConfig_FromEnvVars(t *testing.T) {
	t.Setenv("REDIS_ADDR", "testhost:6380")
	t.Setenv("REDIS_PASSWORD", "testpassword")
	t.Setenv("REDIS_DB", "5")
	t.Setenv("REDIS_STREAM", "test_stream")

	c := &Config{}
	c.applyDefaults()
	cfg := c.GetRedisConfig()

	assert.Equal(t, "testhost:6380", cfg.Addr)
	assert.Equal(t, "testpassword", cfg.Password)
	assert.Equal(t, 5, cfg.DB)
	assert.Equal(t, "test_stream", cfg.Stream)
}

func TestGetRedisConfig_FromFile(t *testing.T) {
	for _, k := range []string{"REDIS_ADDR", "REDIS_PASSWORD", "REDIS_DB", "REDIS_STREAM"} {
		t.Setenv(k, "")
	}

	c := &Config{}
	c.Redis.Addr = "cache:6379"
	c.Redis.DB = 2
	c.applyDefaults()
	cfg := c.GetRedisConfig()

	assert.Equal(t, "cache:6379", cfg.Addr)
	assert.Equal(t, "", cfg.Password)
	assert.Equal(t, 2, cfg.DB)
	assert.Equal(t, "air_quality", cfg.Stream)
}

func TestGetRedisConfig_InvalidDB(t *testing.T) {
	t.Setenv("REDIS_DB", "invalid")

	c := &Config{}
	c.applyDefaults()
	assert.Equal(t, 0, c.GetRedisConfig().DB)
}
