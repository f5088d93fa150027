package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDatabaseConfig_LoadFromEnv(t *testing.T) {
	t.Setenv("DB_HOST", "db.internal")
	t.Setenv("DB_PORT", "6543")
	t.Setenv("DB_NAME", "posture_db")

	cfg := DatabaseConfig{Host: "localhost", Port: 5432, Database: "x", SSLMode: "disable"}
	cfg.LoadFromEnv("DB")

	assert.Equal(t, "db.internal", cfg.Host)
	assert.Equal(t, 6543, cfg.Port)
	assert.Equal(t, "posture_db", cfg.Database)
	assert.Equal(t, "disable", cfg.SSLMode)
	assert.Equal(t, "host=db.internal port=6543 user= password= dbname=posture_db sslmode=disable", cfg.GetDSN())
}

func TestGetEnvHelpers(t *testing.T) {
	t.Setenv("TEST_INT", "not-a-number")
	t.Setenv("TEST_DURATION", "8s")
	t.Setenv("TEST_BOOL", "false")
	t.Setenv("TEST_FLOAT", "1.35")

	assert.Equal(t, 7, GetEnvInt("TEST_INT", 7))
	assert.Equal(t, 8*time.Second, GetEnvDuration("TEST_DURATION", time.Second))
	assert.False(t, GetEnvBool("TEST_BOOL", true))
	assert.InDelta(t, 1.35, GetEnvFloat("TEST_FLOAT", 1.4), 1e-9)
	assert.Equal(t, "fallback", GetEnv("TEST_MISSING_KEY", "fallback"))
}
