package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_Defaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "secret")

	cfg, err := Parse()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.GetHTTPAddr())
	assert.Equal(t, StoreSQLite, cfg.GetStoreDriver())
	assert.Equal(t, EphemeralMemory, cfg.GetEphemeralDriver())
	assert.Equal(t, AuthJWT, cfg.GetAuthMode())
	assert.Equal(t, 25*time.Second, cfg.GetHeartbeatInterval())
	assert.Equal(t, "dm:", cfg.GetDirectRoomPrefix())
	assert.False(t, cfg.GetTracingEnabled())
}

func TestParse_Overrides(t *testing.T) {
	t.Setenv("AUTH_MODE", AuthHeader)
	t.Setenv("STORE_DRIVER", StoreMemory)
	t.Setenv("HEARTBEAT_INTERVAL", "2s")
	t.Setenv("WS_EVENTS_PER_SECOND", "7.5")
	t.Setenv("REDIS_DB", "3")

	cfg, err := Parse()
	require.NoError(t, err)

	assert.Equal(t, StoreMemory, cfg.GetStoreDriver())
	assert.Equal(t, 2*time.Second, cfg.GetHeartbeatInterval())
	assert.InDelta(t, 7.5, cfg.GetEventsPerSecond(), 0.0001)
	assert.Equal(t, 3, cfg.GetRedisDB())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{
			name:    "surreal without url",
			mutate:  func(c *Config) { c.StoreDriver = StoreSurreal },
			wantErr: "SURREAL_URL",
		},
		{
			name:    "jwt without secret",
			mutate:  func(c *Config) { c.AuthMode = AuthJWT; c.JWTSecret = "" },
			wantErr: "JWT_SECRET",
		},
		{
			name:    "session without secret",
			mutate:  func(c *Config) { c.AuthMode = AuthSession },
			wantErr: "SESSION_SECRET",
		},
		{
			name:    "unknown store",
			mutate:  func(c *Config) { c.StoreDriver = "mongo" },
			wantErr: "unknown STORE_DRIVER",
		},
		{
			name:    "zero heartbeat",
			mutate:  func(c *Config) { c.HeartbeatInterval = 0 },
			wantErr: "HEARTBEAT_INTERVAL",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}

	assert.NoError(t, validConfig().Validate())
}

func validConfig() *Config {
	return &Config{
		StoreDriver:       StoreMemory,
		EphemeralDriver:   EphemeralMemory,
		AuthMode:          AuthJWT,
		JWTSecret:         "secret",
		HeartbeatInterval: time.Second,
		DBQueryTimeout:    time.Second,
		DBExecuteTimeout:  time.Second,
		SendBuffer:        8,
		InboundBuffer:     8,
	}
}
