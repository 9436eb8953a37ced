package config

import (
	"os"
	"strconv"

	"wakeclock/pkg/config"
)

// 持久化后端
const (
	StorageBackendPostgres = "postgres"
	StorageBackendRedis    = "redis"
)

// Config 闹钟服务配置
type Config struct {
	Database config.DatabaseConfig
	Redis    config.RedisConfig
	MQTT     config.MQTTConfig

	// 持久化配置
	Storage struct {
		Backend string // "postgres" 或 "redis"
	}

	// 闹钟服务特定配置
	Alarm struct {
		// 默认贪睡时长（分钟）
		SnoozeMinutes int

		// 响铃窗口容差（秒）。|next_ring_time - now| 小于该值视为"应该在响"。
		// 沿用产品现值 60 秒，阈值依据待产品侧确认，勿随意调整
		RingToleranceSeconds int

		// 轮询间隔（秒）
		PollInterval int

		// Redis 缓存配置
		Cache struct {
			AlarmsKey       string // 闹钟集合持久化键（redis 后端时使用）
			NextAlarmKey    string // "下一个响铃闹钟"缓存键
			NextAlarmTTL    int    // "下一个响铃闹钟"缓存 TTL（秒）
			RingStreamName  string // 响铃事件流名称
		}

		// 提醒下发配置
		Notify struct {
			TopicPrefix string // MQTT 主题前缀，如 "wakeclock/reminders"
			QoS         int
		}
	}

	Log struct {
		Level  string
		Format string
	}
}

// Load 加载配置
func Load() (*Config, error) {
	cfg := &Config{}

	// 数据库默认值 + 环境变量覆盖
	cfg.Database.Host = "localhost"
	cfg.Database.Port = 5432
	cfg.Database.User = "postgres"
	cfg.Database.Password = "postgres"
	cfg.Database.Database = "wakeclock"
	cfg.Database.SSLMode = "disable"
	cfg.Database.LoadFromEnv("DB")

	// Redis 默认值 + 环境变量覆盖
	cfg.Redis.Addr = "localhost:6379"
	cfg.Redis.Password = ""
	cfg.Redis.DB = 0
	cfg.Redis.LoadFromEnv("REDIS")

	// MQTT 默认值 + 环境变量覆盖
	cfg.MQTT.Broker = "tcp://localhost:1883"
	cfg.MQTT.ClientID = "wakeclock"
	cfg.MQTT.QoS = 1
	cfg.MQTT.LoadFromEnv("MQTT")

	// 持久化后端
	cfg.Storage.Backend = getEnv("STORAGE_BACKEND", StorageBackendPostgres)

	// 闹钟服务配置
	cfg.Alarm.SnoozeMinutes = getEnvInt("ALARM_SNOOZE_MINUTES", 9)
	cfg.Alarm.RingToleranceSeconds = getEnvInt("ALARM_RING_TOLERANCE_SECONDS", 60)
	cfg.Alarm.PollInterval = getEnvInt("ALARM_POLL_INTERVAL", 5)

	cfg.Alarm.Cache.AlarmsKey = getEnv("CACHE_ALARMS_KEY", "wakeclock:alarms")
	cfg.Alarm.Cache.NextAlarmKey = getEnv("CACHE_NEXT_ALARM_KEY", "wakeclock:next-alarm")
	cfg.Alarm.Cache.NextAlarmTTL = getEnvInt("CACHE_NEXT_ALARM_TTL", 30)
	cfg.Alarm.Cache.RingStreamName = getEnv("RING_STREAM_NAME", "wakeclock:ring-events")

	cfg.Alarm.Notify.TopicPrefix = getEnv("NOTIFY_TOPIC_PREFIX", "wakeclock/reminders")
	cfg.Alarm.Notify.QoS = getEnvInt("NOTIFY_QOS", 1)

	// 日志配置
	cfg.Log.Level = getEnv("LOG_LEVEL", "info")
	cfg.Log.Format = getEnv("LOG_FORMAT", "json")

	return cfg, nil
}

// getEnv 读取环境变量，未设置时返回默认值
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt 读取整型环境变量，未设置或非法时返回默认值
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}
