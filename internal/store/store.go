package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"wakeclock/internal/models"
	"wakeclock/internal/recurrence"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Persistence 闹钟集合的持久化协作方
// NextRingTime 必须以绝对时刻无损往返（RFC3339 等），不允许按挂钟时间重建
type Persistence interface {
	LoadAll(ctx context.Context) ([]models.Alarm, error)
	SaveAll(ctx context.Context, alarms []models.Alarm) error
}

// ReminderScheduler 平台提醒调度协作方
//
// Arm 返回空句柄且无错误表示调度降级（权限被拒等），闹钟保持激活但无提醒，
// 不算硬错误；传输层失败返回 error。
// Disarm 必须幂等：撤销已触发或已撤销的句柄不得报错
type ReminderScheduler interface {
	Arm(ctx context.Context, alarm *models.Alarm) (string, error)
	Disarm(ctx context.Context, handle string) error
}

// ScheduleStore 闹钟调度存储
//
// 持有闹钟集合的权威状态迁移逻辑：每次变更先撤销旧提醒、重算下一次触发
// 时间、按需重新布防，再持久化。同一闹钟 id 上的迁移串行执行（按 id 加锁），
// 不同 id 之间互不阻塞
type ScheduleStore struct {
	persistence Persistence
	scheduler   ReminderScheduler
	logger      *zap.Logger

	// 当前时间来源，测试中可替换
	now func() time.Time

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewScheduleStore 创建闹钟调度存储
func NewScheduleStore(persistence Persistence, scheduler ReminderScheduler, logger *zap.Logger) *ScheduleStore {
	return &ScheduleStore{
		persistence: persistence,
		scheduler:   scheduler,
		logger:      logger,
		now:         time.Now,
		locks:       make(map[string]*sync.Mutex),
	}
}

// lockFor 返回指定闹钟 id 的互斥锁（懒创建）
func (s *ScheduleStore) lockFor(alarmID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()

	lock, exists := s.locks[alarmID]
	if !exists {
		lock = &sync.Mutex{}
		s.locks[alarmID] = lock
	}
	return lock
}

// Create 创建闹钟：生成 id、计算下一次触发时间、按需布防提醒、持久化
// 返回重新排序后的集合
func (s *ScheduleStore) Create(ctx context.Context, draft models.Alarm) ([]models.Alarm, error) {
	alarm := draft
	alarm.ID = uuid.New().String()
	alarm.NotificationID = nil
	alarm.NormalizeRepeatDays()

	now := s.now()
	alarm.CreatedAt = now
	alarm.UpdatedAt = now
	alarm.NextRingTime = recurrence.NextRingTime(&alarm, now)

	alarms, err := s.persistence.LoadAll(ctx)
	if err != nil {
		return nil, &StorageError{Op: "load", Err: err}
	}

	if err := s.armIfNeeded(ctx, &alarm); err != nil {
		return nil, err
	}

	alarms = append(alarms, alarm)
	if err := s.persistence.SaveAll(ctx, alarms); err != nil {
		// 保存失败时撤销刚布防的提醒，避免悬空提醒
		s.disarmBestEffort(ctx, &alarm)
		return nil, &StorageError{Op: "save", Err: err}
	}

	s.logger.Info("Alarm created",
		zap.String("alarm_id", alarm.ID),
		zap.String("name", alarm.Name),
		zap.Bool("active", alarm.Active),
		zap.Timep("next_ring_time", alarm.NextRingTime),
	)

	return sortAlarms(alarms), nil
}

// Update 更新闹钟：合并补丁、先撤销旧提醒再重算、按需重新布防、持久化
// 目标 id 不存在时返回 NotFoundError（调用方错误）
func (s *ScheduleStore) Update(ctx context.Context, alarmID string, patch models.AlarmPatch) ([]models.Alarm, error) {
	lock := s.lockFor(alarmID)
	lock.Lock()
	defer lock.Unlock()

	alarms, err := s.persistence.LoadAll(ctx)
	if err != nil {
		return nil, &StorageError{Op: "load", Err: err}
	}

	idx := indexOf(alarms, alarmID)
	if idx < 0 {
		return nil, &NotFoundError{AlarmID: alarmID}
	}

	alarm := alarms[idx]

	// 先撤销再重算，避免补丁生效期间出现重复提醒；
	// 撤销失败则整个更新不得继续（保持原状态原子失败）
	if err := s.disarm(ctx, &alarm); err != nil {
		return nil, err
	}

	patch.Apply(&alarm)
	alarm.NormalizeRepeatDays()
	alarm.NextRingTime = recurrence.NextRingTime(&alarm, s.now())
	alarm.UpdatedAt = s.now()

	if err := s.armIfNeeded(ctx, &alarm); err != nil {
		return nil, err
	}

	alarms[idx] = alarm
	if err := s.persistence.SaveAll(ctx, alarms); err != nil {
		s.disarmBestEffort(ctx, &alarm)
		return nil, &StorageError{Op: "save", Err: err}
	}

	s.logger.Info("Alarm updated",
		zap.String("alarm_id", alarm.ID),
		zap.Bool("active", alarm.Active),
		zap.Timep("next_ring_time", alarm.NextRingTime),
	)

	return sortAlarms(alarms), nil
}

// Toggle 切换闹钟激活状态
// 等价于只改 Active 字段的 Update：仍会重算触发时间并相应布防/撤防
func (s *ScheduleStore) Toggle(ctx context.Context, alarmID string, active bool) ([]models.Alarm, error) {
	return s.Update(ctx, alarmID, models.AlarmPatch{Active: &active})
}

// Delete 删除闹钟：先撤销提醒再移除记录
// 目标 id 不存在时返回当前集合原样，不报错（容忍删除竞争）
func (s *ScheduleStore) Delete(ctx context.Context, alarmID string) ([]models.Alarm, error) {
	lock := s.lockFor(alarmID)
	lock.Lock()
	defer lock.Unlock()

	alarms, err := s.persistence.LoadAll(ctx)
	if err != nil {
		return nil, &StorageError{Op: "load", Err: err}
	}

	idx := indexOf(alarms, alarmID)
	if idx < 0 {
		return sortAlarms(alarms), nil
	}

	alarm := alarms[idx]
	if err := s.disarm(ctx, &alarm); err != nil {
		return nil, err
	}

	alarms = append(alarms[:idx], alarms[idx+1:]...)
	if err := s.persistence.SaveAll(ctx, alarms); err != nil {
		return nil, &StorageError{Op: "save", Err: err}
	}

	s.logger.Info("Alarm deleted", zap.String("alarm_id", alarmID))

	return sortAlarms(alarms), nil
}

// Snooze 贪睡：把下一次触发时间覆写为 now + durationMinutes
//
// 贪睡是显式覆盖，不走正常的重复规则计算。目标 id 不存在时静默返回 nil
// （响铃界面可能与删除操作竞争，应优雅降级而非报错）。
// 返回更新后的单条闹钟，便于调用方直接刷新视图
func (s *ScheduleStore) Snooze(ctx context.Context, alarmID string, durationMinutes int, now time.Time) (*models.Alarm, error) {
	lock := s.lockFor(alarmID)
	lock.Lock()
	defer lock.Unlock()

	alarms, err := s.persistence.LoadAll(ctx)
	if err != nil {
		return nil, &StorageError{Op: "load", Err: err}
	}

	idx := indexOf(alarms, alarmID)
	if idx < 0 {
		return nil, nil
	}

	alarm := alarms[idx]
	if err := s.disarm(ctx, &alarm); err != nil {
		return nil, err
	}

	next := now.Add(time.Duration(durationMinutes) * time.Minute)
	alarm.NextRingTime = &next
	alarm.UpdatedAt = s.now()

	// 贪睡只会发生在激活的响铃闹钟上，无条件重新布防
	if err := s.armIfNeeded(ctx, &alarm); err != nil {
		return nil, err
	}

	alarms[idx] = alarm
	if err := s.persistence.SaveAll(ctx, alarms); err != nil {
		s.disarmBestEffort(ctx, &alarm)
		return nil, &StorageError{Op: "save", Err: err}
	}

	s.logger.Info("Alarm snoozed",
		zap.String("alarm_id", alarm.ID),
		zap.Int("duration_minutes", durationMinutes),
		zap.Time("next_ring_time", next),
	)

	result := alarm
	return &result, nil
}

// Dismiss 停止响铃
//
// 重复闹钟：按重复规则重算下一次触发并重新布防，保持激活。
// 单次闹钟：停用并清空触发时间，不再布防。
// 目标 id 不存在时返回当前集合原样（容忍竞争）
func (s *ScheduleStore) Dismiss(ctx context.Context, alarmID string, now time.Time) ([]models.Alarm, error) {
	lock := s.lockFor(alarmID)
	lock.Lock()
	defer lock.Unlock()

	alarms, err := s.persistence.LoadAll(ctx)
	if err != nil {
		return nil, &StorageError{Op: "load", Err: err}
	}

	idx := indexOf(alarms, alarmID)
	if idx < 0 {
		return sortAlarms(alarms), nil
	}

	alarm := alarms[idx]
	if err := s.disarm(ctx, &alarm); err != nil {
		return nil, err
	}

	if alarm.IsOneShot() {
		// 单次闹钟响过即停用
		alarm.Active = false
		alarm.NextRingTime = nil
	} else {
		alarm.NextRingTime = recurrence.NextRingTime(&alarm, now)
		if err := s.armIfNeeded(ctx, &alarm); err != nil {
			return nil, err
		}
	}
	alarm.UpdatedAt = s.now()

	alarms[idx] = alarm
	if err := s.persistence.SaveAll(ctx, alarms); err != nil {
		s.disarmBestEffort(ctx, &alarm)
		return nil, &StorageError{Op: "save", Err: err}
	}

	s.logger.Info("Alarm dismissed",
		zap.String("alarm_id", alarm.ID),
		zap.Bool("active", alarm.Active),
		zap.Timep("next_ring_time", alarm.NextRingTime),
	)

	return sortAlarms(alarms), nil
}

// List 返回排序后的闹钟集合
func (s *ScheduleStore) List(ctx context.Context) ([]models.Alarm, error) {
	alarms, err := s.persistence.LoadAll(ctx)
	if err != nil {
		return nil, &StorageError{Op: "load", Err: err}
	}
	return sortAlarms(alarms), nil
}

// NextAlarm 返回下一个将要响铃的闹钟（排序后首个激活项），没有则返回 nil
func (s *ScheduleStore) NextAlarm(ctx context.Context) (*models.Alarm, error) {
	alarms, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	if len(alarms) == 0 || !alarms[0].Active {
		return nil, nil
	}
	next := alarms[0]
	return &next, nil
}

// Due 返回处于响铃窗口内的闹钟
func (s *ScheduleStore) Due(ctx context.Context, now time.Time, tolerance time.Duration) ([]models.Alarm, error) {
	alarms, err := s.persistence.LoadAll(ctx)
	if err != nil {
		return nil, &StorageError{Op: "load", Err: err}
	}
	return recurrence.DueAlarms(alarms, now, tolerance), nil
}

// armIfNeeded 在激活且有下一次触发时间时申请平台提醒
// 调度降级（空句柄）时闹钟保持激活但无提醒，只记录告警日志
func (s *ScheduleStore) armIfNeeded(ctx context.Context, alarm *models.Alarm) error {
	if !alarm.Active || alarm.NextRingTime == nil {
		alarm.NotificationID = nil
		return nil
	}

	handle, err := s.scheduler.Arm(ctx, alarm)
	if err != nil {
		return err
	}
	if handle == "" {
		s.logger.Warn("Reminder scheduling degraded, alarm stays active without reminder",
			zap.String("alarm_id", alarm.ID),
			zap.Time("next_ring_time", *alarm.NextRingTime),
		)
		alarm.NotificationID = nil
		return nil
	}

	alarm.NotificationID = &handle
	return nil
}

// disarm 撤销当前提醒；失败时返回错误，调用方必须中止本次迁移
func (s *ScheduleStore) disarm(ctx context.Context, alarm *models.Alarm) error {
	if alarm.NotificationID == nil {
		return nil
	}
	if err := s.scheduler.Disarm(ctx, *alarm.NotificationID); err != nil {
		return err
	}
	alarm.NotificationID = nil
	return nil
}

// disarmBestEffort 持久化失败后的回滚撤防，错误只记日志
func (s *ScheduleStore) disarmBestEffort(ctx context.Context, alarm *models.Alarm) {
	if alarm.NotificationID == nil {
		return
	}
	if err := s.scheduler.Disarm(ctx, *alarm.NotificationID); err != nil {
		s.logger.Error("Failed to disarm reminder after save failure",
			zap.String("alarm_id", alarm.ID),
			zap.Error(err),
		)
	}
	alarm.NotificationID = nil
}

// sortAlarms 返回排序后的集合副本
//
// 排序规则：激活的在前；激活的按下一次触发时间升序（无触发时间的排最后）；
// 停用的按 (hour, minute) 升序，保证列表不随意抖动
func sortAlarms(alarms []models.Alarm) []models.Alarm {
	sorted := make([]models.Alarm, len(alarms))
	copy(sorted, alarms)

	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := &sorted[i], &sorted[j]

		if a.Active != b.Active {
			return a.Active
		}

		if a.Active {
			switch {
			case a.NextRingTime != nil && b.NextRingTime != nil:
				return a.NextRingTime.Before(*b.NextRingTime)
			case a.NextRingTime != nil:
				return true
			case b.NextRingTime != nil:
				return false
			}
		}

		if a.Hour != b.Hour {
			return a.Hour < b.Hour
		}
		return a.Minute < b.Minute
	})

	return sorted
}

// indexOf 按 id 查找闹钟下标，找不到返回 -1
func indexOf(alarms []models.Alarm, alarmID string) int {
	for i := range alarms {
		if alarms[i].ID == alarmID {
			return i
		}
	}
	return -1
}
