package ringer

import (
	"context"
	"fmt"
	"time"

	"wakeclock/internal/config"
	"wakeclock/internal/store"

	"go.uber.org/zap"
)

// Poller 到点闹钟轮询器
//
// 周期性查询响铃窗口内的闹钟并发布响铃事件。核心的到点判断是纯查询
// （store.Due），轮询节奏由这里的服务层配置决定，核心不持有定时器
type Poller struct {
	config    *config.Config
	store     *store.ScheduleStore
	publisher *RingPublisher
	logger    *zap.Logger

	// 已发布的响铃记录：alarm_id -> 已发布的触发时刻
	// 同一触发时刻在容差窗口内只发布一次
	published map[string]time.Time
}

// NewPoller 创建轮询器
func NewPoller(cfg *config.Config, scheduleStore *store.ScheduleStore, publisher *RingPublisher, logger *zap.Logger) *Poller {
	return &Poller{
		config:    cfg,
		store:     scheduleStore,
		publisher: publisher,
		logger:    logger,
		published: make(map[string]time.Time),
	}
}

// Start 启动轮询（阻塞直到 ctx 取消）
func (p *Poller) Start(ctx context.Context) error {
	p.logger.Info("Ring poller started",
		zap.Int("poll_interval", p.config.Alarm.PollInterval),
		zap.Int("ring_tolerance_seconds", p.config.Alarm.RingToleranceSeconds),
	)

	ticker := time.NewTicker(time.Duration(p.config.Alarm.PollInterval) * time.Second)
	defer ticker.Stop()

	// 立即执行一次
	if err := p.checkDue(ctx); err != nil {
		p.logger.Error("Failed to check due alarms on startup",
			zap.Error(err),
		)
	}

	// 定期轮询
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("Ring poller stopped")
			return nil
		case <-ticker.C:
			if err := p.checkDue(ctx); err != nil {
				p.logger.Error("Failed to check due alarms",
					zap.Error(err),
				)
				// 继续执行，不中断
			}
		}
	}
}

// checkDue 查询到点闹钟并发布响铃事件，同时刷新下一个闹钟缓存
func (p *Poller) checkDue(ctx context.Context) error {
	now := time.Now()
	tolerance := time.Duration(p.config.Alarm.RingToleranceSeconds) * time.Second

	due, err := p.store.Due(ctx, now, tolerance)
	if err != nil {
		return fmt.Errorf("failed to query due alarms: %w", err)
	}

	for i := range due {
		alarm := &due[i]

		// 同一触发时刻只发布一次
		if last, ok := p.published[alarm.ID]; ok && alarm.NextRingTime != nil && last.Equal(*alarm.NextRingTime) {
			continue
		}

		if err := p.publisher.PublishRing(ctx, alarm); err != nil {
			p.logger.Error("Failed to publish ring event",
				zap.String("alarm_id", alarm.ID),
				zap.Error(err),
			)
			continue
		}
		if alarm.NextRingTime != nil {
			p.published[alarm.ID] = *alarm.NextRingTime
		}
	}

	p.cleanupPublished(now, tolerance)

	// 刷新"下一个响铃闹钟"缓存
	next, err := p.store.NextAlarm(ctx)
	if err != nil {
		return fmt.Errorf("failed to query next alarm: %w", err)
	}
	if err := p.publisher.UpdateNextAlarmCache(ctx, next); err != nil {
		p.logger.Error("Failed to update next alarm cache",
			zap.Error(err),
		)
	}

	return nil
}

// cleanupPublished 清理已滑出响铃窗口的发布记录
func (p *Poller) cleanupPublished(now time.Time, tolerance time.Duration) {
	for alarmID, ringAt := range p.published {
		if now.Sub(ringAt) > tolerance {
			delete(p.published, alarmID)
		}
	}
}
