package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_DefaultValues(t *testing.T) {
	// 清除环境变量
	os.Clearenv()

	cfg, err := Load()
	require.NoError(t, err)
	assert.NotNil(t, cfg)

	// 验证默认值
	assert.Equal(t, "localhost", cfg.Database.Host)
	assert.Equal(t, 5432, cfg.Database.Port)
	assert.Equal(t, "postgres", cfg.Database.User)
	assert.Equal(t, "wakeclock", cfg.Database.Database)
	assert.Equal(t, "disable", cfg.Database.SSLMode)

	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, "", cfg.Redis.Password)
	assert.Equal(t, 0, cfg.Redis.DB)

	assert.Equal(t, "tcp://localhost:1883", cfg.MQTT.Broker)
	assert.Equal(t, "wakeclock", cfg.MQTT.ClientID)

	assert.Equal(t, StorageBackendPostgres, cfg.Storage.Backend)

	assert.Equal(t, 9, cfg.Alarm.SnoozeMinutes)
	assert.Equal(t, 60, cfg.Alarm.RingToleranceSeconds)
	assert.Equal(t, 5, cfg.Alarm.PollInterval)

	assert.Equal(t, "wakeclock:alarms", cfg.Alarm.Cache.AlarmsKey)
	assert.Equal(t, "wakeclock:next-alarm", cfg.Alarm.Cache.NextAlarmKey)
	assert.Equal(t, 30, cfg.Alarm.Cache.NextAlarmTTL)
	assert.Equal(t, "wakeclock:ring-events", cfg.Alarm.Cache.RingStreamName)

	assert.Equal(t, "wakeclock/reminders", cfg.Alarm.Notify.TopicPrefix)
	assert.Equal(t, 1, cfg.Alarm.Notify.QoS)

	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoad_EnvironmentVariables(t *testing.T) {
	os.Clearenv()

	// 设置环境变量
	os.Setenv("DB_HOST", "test-host")
	os.Setenv("DB_USER", "test-user")
	os.Setenv("DB_DATABASE", "test-db")
	os.Setenv("REDIS_ADDR", "test-redis:6380")
	os.Setenv("MQTT_BROKER", "tcp://test-broker:1883")
	os.Setenv("STORAGE_BACKEND", "redis")
	os.Setenv("ALARM_SNOOZE_MINUTES", "5")
	os.Setenv("ALARM_RING_TOLERANCE_SECONDS", "30")
	os.Setenv("ALARM_POLL_INTERVAL", "2")
	os.Setenv("LOG_LEVEL", "debug")
	os.Setenv("LOG_FORMAT", "console")
	defer os.Clearenv()

	cfg, err := Load()
	require.NoError(t, err)
	assert.NotNil(t, cfg)

	assert.Equal(t, "test-host", cfg.Database.Host)
	assert.Equal(t, "test-user", cfg.Database.User)
	assert.Equal(t, "test-db", cfg.Database.Database)
	assert.Equal(t, "test-redis:6380", cfg.Redis.Addr)
	assert.Equal(t, "tcp://test-broker:1883", cfg.MQTT.Broker)
	assert.Equal(t, StorageBackendRedis, cfg.Storage.Backend)
	assert.Equal(t, 5, cfg.Alarm.SnoozeMinutes)
	assert.Equal(t, 30, cfg.Alarm.RingToleranceSeconds)
	assert.Equal(t, 2, cfg.Alarm.PollInterval)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
}

func TestLoad_InvalidIntFallsBackToDefault(t *testing.T) {
	os.Clearenv()
	os.Setenv("ALARM_SNOOZE_MINUTES", "not-a-number")
	defer os.Clearenv()

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 9, cfg.Alarm.SnoozeMinutes)
}
