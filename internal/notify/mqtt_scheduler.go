package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"wakeclock/internal/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Publisher MQTT 发布能力（便于测试注入，pkg/mqttutil.Client 满足该接口）
type Publisher interface {
	Publish(topic string, qos byte, retained bool, payload []byte) error
	IsConnected() bool
}

// MQTTReminderScheduler 通过 MQTT 将提醒布防/撤防指令下发到设备端
// 实现 store.ReminderScheduler 契约
//
// 布防消息发到 <prefix>/arm，撤防消息发到 <prefix>/disarm。
// broker 未连接时布防降级（返回空句柄），闹钟保持激活但无提醒；
// 撤防天然幂等：设备端对未知句柄的撤防指令直接忽略
type MQTTReminderScheduler struct {
	publisher   Publisher
	topicPrefix string
	qos         byte
	logger      *zap.Logger
}

// NewMQTTReminderScheduler 创建 MQTT 提醒调度器
func NewMQTTReminderScheduler(publisher Publisher, topicPrefix string, qos byte, logger *zap.Logger) *MQTTReminderScheduler {
	return &MQTTReminderScheduler{
		publisher:   publisher,
		topicPrefix: topicPrefix,
		qos:         qos,
		logger:      logger,
	}
}

// armMessage 布防消息（透传唤醒配置，响铃侧按 wake_mode 分发播放）
type armMessage struct {
	Handle   string                `json:"handle"`
	AlarmID  string                `json:"alarm_id"`
	Name     string                `json:"name"`
	RingAt   string                `json:"ring_at"` // RFC3339 绝对时刻
	WakeMode models.WakeUpMode     `json:"wake_mode"`
	WakeUp   models.WakeUpSettings `json:"wake_up"`
}

// disarmMessage 撤防消息
type disarmMessage struct {
	Handle string `json:"handle"`
}

// Arm 布防提醒，返回新句柄
// broker 未连接视为调度降级：返回空句柄且无错误，由存储层记录降级状态
func (s *MQTTReminderScheduler) Arm(ctx context.Context, alarm *models.Alarm) (string, error) {
	if alarm.NextRingTime == nil {
		return "", fmt.Errorf("cannot arm reminder without next ring time: %s", alarm.ID)
	}

	if !s.publisher.IsConnected() {
		s.logger.Warn("MQTT broker not connected, reminder scheduling degraded",
			zap.String("alarm_id", alarm.ID),
		)
		return "", nil
	}

	handle := uuid.New().String()
	msg := armMessage{
		Handle:   handle,
		AlarmID:  alarm.ID,
		Name:     alarm.Name,
		RingAt:   alarm.NextRingTime.Format(time.RFC3339),
		WakeMode: alarm.WakeUp.Mode,
		WakeUp:   alarm.WakeUp,
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return "", fmt.Errorf("failed to marshal arm message: %w", err)
	}

	if err := s.publisher.Publish(s.topicPrefix+"/arm", s.qos, false, payload); err != nil {
		return "", fmt.Errorf("failed to publish arm message: %w", err)
	}

	s.logger.Debug("Reminder armed",
		zap.String("alarm_id", alarm.ID),
		zap.String("handle", handle),
		zap.String("ring_at", msg.RingAt),
	)

	return handle, nil
}

// Disarm 撤防提醒
// broker 未连接时视为已撤防（设备端提醒随连接断开失效），保持幂等不报错
func (s *MQTTReminderScheduler) Disarm(ctx context.Context, handle string) error {
	if handle == "" {
		return nil
	}

	if !s.publisher.IsConnected() {
		s.logger.Warn("MQTT broker not connected, skipping disarm",
			zap.String("handle", handle),
		)
		return nil
	}

	payload, err := json.Marshal(disarmMessage{Handle: handle})
	if err != nil {
		return fmt.Errorf("failed to marshal disarm message: %w", err)
	}

	if err := s.publisher.Publish(s.topicPrefix+"/disarm", s.qos, false, payload); err != nil {
		return fmt.Errorf("failed to publish disarm message: %w", err)
	}

	s.logger.Debug("Reminder disarmed",
		zap.String("handle", handle),
	)

	return nil
}
