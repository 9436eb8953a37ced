package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"wakeclock/internal/models"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// RedisAlarmRepository 闹钟集合的 Redis 持久化
// 整个集合以 JSON 存于单键下；time.Time 经 encoding/json 序列化为
// RFC3339 绝对时刻，满足无损往返要求。适合单用户/嵌入式部署形态
type RedisAlarmRepository struct {
	redisClient *redis.Client
	key         string
	logger      *zap.Logger
}

// NewRedisAlarmRepository 创建 Redis 闹钟仓库
func NewRedisAlarmRepository(redisClient *redis.Client, key string, logger *zap.Logger) *RedisAlarmRepository {
	return &RedisAlarmRepository{
		redisClient: redisClient,
		key:         key,
		logger:      logger,
	}
}

// LoadAll 加载全部闹钟记录（键不存在视为空集合，首次运行场景）
func (r *RedisAlarmRepository) LoadAll(ctx context.Context) ([]models.Alarm, error) {
	val, err := r.redisClient.Get(ctx, r.key).Result()
	if err != nil {
		if err == redis.Nil {
			return []models.Alarm{}, nil
		}
		return nil, fmt.Errorf("failed to get alarms: %w", err)
	}

	var alarms []models.Alarm
	if err := json.Unmarshal([]byte(val), &alarms); err != nil {
		return nil, fmt.Errorf("failed to unmarshal alarms: %w", err)
	}

	return alarms, nil
}

// SaveAll 保存全部闹钟记录（整体替换，不设 TTL）
func (r *RedisAlarmRepository) SaveAll(ctx context.Context, alarms []models.Alarm) error {
	jsonData, err := json.Marshal(alarms)
	if err != nil {
		return fmt.Errorf("failed to marshal alarms: %w", err)
	}

	if err := r.redisClient.Set(ctx, r.key, jsonData, 0).Err(); err != nil {
		return fmt.Errorf("failed to set alarms: %w", err)
	}

	r.logger.Debug("Saved alarms",
		zap.String("key", r.key),
		zap.Int("alarm_count", len(alarms)),
	)

	return nil
}
