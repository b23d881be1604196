package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func lookupFrom(m map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := m[key]
		return v, ok
	}
}

func TestFromLookup_Defaults(t *testing.T) {
	cfg, err := FromLookup(lookupFrom(map[string]string{"LABTRAIL_TZ": "UTC"}))
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, StoreMemory, cfg.Store.Driver)
	assert.Equal(t, 1024, cfg.Audit.BufferSize)
	assert.Equal(t, 2*time.Second, cfg.Audit.AppendTimeout)
	assert.Equal(t, "₹", cfg.History.CurrencySymbol)
	assert.Equal(t, time.UTC, cfg.History.Location)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Empty(t, cfg.Server.JWTSigningKey)
}

func TestFromLookup_Overrides(t *testing.T) {
	cfg, err := FromLookup(lookupFrom(map[string]string{
		"LABTRAIL_STORE":                "Redis",
		"REDIS_URL":                     "redis://localhost:6379/0",
		"REDIS_POOL_SIZE":               "20",
		"LABTRAIL_AUDIT_APPEND_TIMEOUT": "500ms",
		"LABTRAIL_TZ":                   "Asia/Kolkata",
		"LOG_LEVEL":                     "DEBUG",
	}))
	require.NoError(t, err)

	assert.Equal(t, StoreRedis, cfg.Store.Driver)
	assert.Equal(t, 20, cfg.Redis.PoolSize)
	assert.Equal(t, 500*time.Millisecond, cfg.Audit.AppendTimeout)
	assert.Equal(t, "Asia/Kolkata", cfg.History.Location.String())
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestFromLookup_Errors(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"unknown driver", map[string]string{"LABTRAIL_STORE": "mongo"}, "unknown driver"},
		{"postgres without url", map[string]string{"LABTRAIL_STORE": "postgres"}, "DATABASE_URL"},
		{"redis without url", map[string]string{"LABTRAIL_STORE": "redis"}, "REDIS_URL"},
		{"bad duration", map[string]string{"LABTRAIL_AUDIT_APPEND_TIMEOUT": "soon"}, "LABTRAIL_AUDIT_APPEND_TIMEOUT"},
		{"bad int", map[string]string{"LABTRAIL_AUDIT_BUFFER": "lots"}, "LABTRAIL_AUDIT_BUFFER"},
		{"zero buffer", map[string]string{"LABTRAIL_AUDIT_BUFFER": "0"}, "must be positive"},
		{"bad zone", map[string]string{"LABTRAIL_TZ": "Nowhere/Else"}, "LABTRAIL_TZ"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := FromLookup(lookupFrom(tt.env))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
