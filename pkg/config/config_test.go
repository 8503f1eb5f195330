package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "0 6 * * 1", cfg.Batch.Schedule)
	assert.Equal(t, 170, cfg.Triage.SimulatorCapacity)
	assert.Equal(t, 2, cfg.Triage.SimulatorJitter)
	assert.Equal(t, 30*time.Second, cfg.Triage.Timeout)
	assert.Equal(t, "file", cfg.Queue.CacheBackend)
	assert.Equal(t, "log", cfg.Notifications.Transport)
	assert.True(t, cfg.Triage.UseTriageSimulator(), "no endpoint configured means simulator")
}

func TestLoad_TriageConfig(t *testing.T) {
	t.Setenv("TRIAGE_ENDPOINT_URL", "http://triage:9000/rank")
	t.Setenv("TRIAGE_TIMEOUT", "45")
	t.Setenv("TRIAGE_SIM_CAPACITY", "12")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "http://triage:9000/rank", cfg.Triage.EndpointURL)
	assert.Equal(t, 45*time.Second, cfg.Triage.Timeout)
	assert.Equal(t, 12, cfg.Triage.SimulatorCapacity)
	assert.False(t, cfg.Triage.UseTriageSimulator())

	t.Setenv("TRIAGE_SIMULATION", "true")
	cfg, err = Load()
	require.NoError(t, err)
	assert.True(t, cfg.Triage.UseTriageSimulator())
}

func TestLoad_DurationFormats(t *testing.T) {
	t.Setenv("BATCH_LOCK_TTL", "2m")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 2*time.Minute, cfg.Batch.LockTTL)
}

func TestLoad_RejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{name: "bad cron", key: "BATCH_SCHEDULE", value: "every monday"},
		{name: "six field cron", key: "BATCH_SCHEDULE", value: "0 0 6 * * 1"},
		{name: "bad timezone", key: "BATCH_TIMEZONE", value: "Mars/Olympus"},
		{name: "negative capacity", key: "TRIAGE_SIM_CAPACITY", value: "-1"},
		{name: "unknown cache backend", key: "QUEUE_CACHE_BACKEND", value: "memcached"},
		{name: "unknown transport", key: "NOTIFY_TRANSPORT", value: "pigeon"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestBatchConfig_Location(t *testing.T) {
	cfg := BatchConfig{Timezone: "Africa/Lagos"}
	assert.Equal(t, "Africa/Lagos", cfg.Location().String())

	cfg.Timezone = "nowhere"
	assert.Equal(t, time.UTC, cfg.Location())
}

func TestLoad_AllowedOrigins(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"*"}, cfg.Server.AllowedOrigins)

	t.Setenv("ALLOWED_ORIGINS", "https://clinic.example.org, https://ops.example.org,")
	cfg, err = Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"https://clinic.example.org", "https://ops.example.org"}, cfg.Server.AllowedOrigins)
}
