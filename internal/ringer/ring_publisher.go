package ringer

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"wakeclock/internal/models"
	"wakeclock/pkg/redisutil"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// RingPublisher 响铃事件发布器
//
// 到点闹钟以 JSON 事件写入 Redis Stream，由响铃侧（UI/播放服务）消费；
// 同时把"下一个响铃闹钟"缓存到独立键下（带 TTL），供界面低成本读取
type RingPublisher struct {
	redisClient *redis.Client
	streamName  string
	nextKey     string
	nextTTL     time.Duration
	logger      *zap.Logger
}

// NewRingPublisher 创建响铃事件发布器
func NewRingPublisher(redisClient *redis.Client, streamName, nextKey string, nextTTL time.Duration, logger *zap.Logger) *RingPublisher {
	return &RingPublisher{
		redisClient: redisClient,
		streamName:  streamName,
		nextKey:     nextKey,
		nextTTL:     nextTTL,
		logger:      logger,
	}
}

// RingEvent 响铃事件（透传唤醒配置）
type RingEvent struct {
	AlarmID  string                `json:"alarm_id"`
	Name     string                `json:"name"`
	RingAt   time.Time             `json:"ring_at"`
	WakeMode models.WakeUpMode     `json:"wake_mode"`
	WakeUp   models.WakeUpSettings `json:"wake_up"`
}

// PublishRing 发布一条响铃事件
func (p *RingPublisher) PublishRing(ctx context.Context, alarm *models.Alarm) error {
	if alarm.NextRingTime == nil {
		return fmt.Errorf("alarm has no ring time: %s", alarm.ID)
	}

	event := RingEvent{
		AlarmID:  alarm.ID,
		Name:     alarm.Name,
		RingAt:   *alarm.NextRingTime,
		WakeMode: alarm.WakeUp.Mode,
		WakeUp:   alarm.WakeUp,
	}

	id, err := redisutil.PublishJSONToStream(ctx, p.redisClient, p.streamName, event)
	if err != nil {
		return fmt.Errorf("failed to publish ring event: %w", err)
	}

	p.logger.Info("Ring event published",
		zap.String("alarm_id", alarm.ID),
		zap.String("stream_id", id),
		zap.Time("ring_at", *alarm.NextRingTime),
	)

	return nil
}

// UpdateNextAlarmCache 刷新"下一个响铃闹钟"缓存
// next 为 nil 时清除缓存键（没有激活的闹钟）
func (p *RingPublisher) UpdateNextAlarmCache(ctx context.Context, next *models.Alarm) error {
	if next == nil {
		if err := p.redisClient.Del(ctx, p.nextKey).Err(); err != nil {
			return fmt.Errorf("failed to clear next alarm cache: %w", err)
		}
		return nil
	}

	jsonData, err := json.Marshal(next)
	if err != nil {
		return fmt.Errorf("failed to marshal next alarm: %w", err)
	}

	if err := p.redisClient.Set(ctx, p.nextKey, jsonData, p.nextTTL).Err(); err != nil {
		return fmt.Errorf("failed to set next alarm cache: %w", err)
	}

	p.logger.Debug("Updated next alarm cache",
		zap.String("alarm_id", next.ID),
		zap.String("key", p.nextKey),
	)

	return nil
}
