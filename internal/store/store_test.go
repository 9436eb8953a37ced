package store

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"wakeclock/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakePersistence 内存持久化（可注入失败）
type fakePersistence struct {
	alarms    []models.Alarm
	loadErr   error
	saveErr   error
	saveCalls int
}

func (f *fakePersistence) LoadAll(ctx context.Context) ([]models.Alarm, error) {
	if f.loadErr != nil {
		return nil, f.loadErr
	}
	out := make([]models.Alarm, len(f.alarms))
	copy(out, f.alarms)
	return out, nil
}

func (f *fakePersistence) SaveAll(ctx context.Context, alarms []models.Alarm) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	f.saveCalls++
	f.alarms = make([]models.Alarm, len(alarms))
	copy(f.alarms, alarms)
	return nil
}

// fakeScheduler 记录布防/撤防调用（可注入降级与失败）
type fakeScheduler struct {
	armCount  int
	disarmed  []string
	degraded  bool
	armErr    error
	disarmErr error
}

func (f *fakeScheduler) Arm(ctx context.Context, alarm *models.Alarm) (string, error) {
	if f.armErr != nil {
		return "", f.armErr
	}
	if f.degraded {
		return "", nil
	}
	f.armCount++
	return fmt.Sprintf("handle-%d", f.armCount), nil
}

func (f *fakeScheduler) Disarm(ctx context.Context, handle string) error {
	if f.disarmErr != nil {
		return f.disarmErr
	}
	f.disarmed = append(f.disarmed, handle)
	return nil
}

func setupTestStore(t *testing.T) (*fakePersistence, *fakeScheduler, *ScheduleStore) {
	persistence := &fakePersistence{}
	scheduler := &fakeScheduler{}
	s := NewScheduleStore(persistence, scheduler, zap.NewNop())
	return persistence, scheduler, s
}

func radioSettings() models.WakeUpSettings {
	return models.WakeUpSettings{
		Mode:  models.WakeUpRadio,
		Radio: &models.RadioSettings{StationID: "fip", StreamURL: "https://stream.example/fip"},
	}
}

func TestCreate_ActiveAlarm_ArmsAndSorts(t *testing.T) {
	persistence, scheduler, s := setupTestStore(t)
	ctx := context.Background()

	before := time.Now()
	alarms, err := s.Create(ctx, models.Alarm{
		Name:   "wake up",
		Hour:   7,
		Minute: 0,
		Active: true,
		WakeUp: radioSettings(),
	})

	require.NoError(t, err)
	require.Len(t, alarms, 1)

	created := alarms[0]
	assert.NotEmpty(t, created.ID)
	require.NotNil(t, created.NextRingTime)
	assert.True(t, created.NextRingTime.After(before))
	require.NotNil(t, created.NotificationID)
	assert.Equal(t, "handle-1", *created.NotificationID)
	assert.Equal(t, 1, scheduler.armCount)
	assert.Equal(t, 1, persistence.saveCalls)
}

func TestCreate_InactiveAlarm_NoReminder(t *testing.T) {
	_, scheduler, s := setupTestStore(t)
	ctx := context.Background()

	alarms, err := s.Create(ctx, models.Alarm{
		Name:   "disabled",
		Hour:   7,
		Minute: 0,
		Active: false,
		WakeUp: radioSettings(),
	})

	require.NoError(t, err)
	require.Len(t, alarms, 1)
	assert.Nil(t, alarms[0].NextRingTime)
	assert.Nil(t, alarms[0].NotificationID)
	assert.Equal(t, 0, scheduler.armCount)
}

func TestCreate_SortedBeforeLaterAlarm(t *testing.T) {
	_, _, s := setupTestStore(t)
	ctx := context.Background()

	fixedNow := time.Date(2024, 1, 15, 6, 0, 0, 0, time.UTC) // 周一 06:00
	s.now = func() time.Time { return fixedNow }

	_, err := s.Create(ctx, models.Alarm{Name: "later", Hour: 9, Minute: 0, Active: true, WakeUp: radioSettings()})
	require.NoError(t, err)

	alarms, err := s.Create(ctx, models.Alarm{Name: "sooner", Hour: 7, Minute: 0, Active: true, WakeUp: radioSettings()})
	require.NoError(t, err)

	require.Len(t, alarms, 2)
	assert.Equal(t, "sooner", alarms[0].Name)
	assert.Equal(t, "later", alarms[1].Name)
	assert.True(t, alarms[0].NextRingTime.Before(*alarms[1].NextRingTime))
}

func TestUpdate_UnknownID_ReturnsNotFound(t *testing.T) {
	_, _, s := setupTestStore(t)
	ctx := context.Background()

	name := "renamed"
	_, err := s.Update(ctx, "no-such-alarm", models.AlarmPatch{Name: &name})

	require.Error(t, err)
	var notFound *NotFoundError
	require.True(t, errors.As(err, &notFound))
	assert.Equal(t, "no-such-alarm", notFound.AlarmID)
}

func TestUpdate_DisarmsOldReminderBeforeRearm(t *testing.T) {
	_, scheduler, s := setupTestStore(t)
	ctx := context.Background()

	alarms, err := s.Create(ctx, models.Alarm{Name: "wake up", Hour: 7, Minute: 0, Active: true, WakeUp: radioSettings()})
	require.NoError(t, err)
	alarmID := alarms[0].ID

	hour := 8
	updated, err := s.Update(ctx, alarmID, models.AlarmPatch{Hour: &hour})

	require.NoError(t, err)
	// 旧句柄已撤销，新句柄已布防
	require.Len(t, scheduler.disarmed, 1)
	assert.Equal(t, "handle-1", scheduler.disarmed[0])
	require.NotNil(t, updated[0].NotificationID)
	assert.Equal(t, "handle-2", *updated[0].NotificationID)
	assert.Equal(t, 8, updated[0].Hour)
}

func TestToggle_Deactivate_ClearsReminderAndRingTime(t *testing.T) {
	_, scheduler, s := setupTestStore(t)
	ctx := context.Background()

	alarms, err := s.Create(ctx, models.Alarm{Name: "wake up", Hour: 7, Minute: 0, Active: true, WakeUp: radioSettings()})
	require.NoError(t, err)
	alarmID := alarms[0].ID

	updated, err := s.Toggle(ctx, alarmID, false)

	require.NoError(t, err)
	require.Len(t, updated, 1)
	assert.False(t, updated[0].Active)
	assert.Nil(t, updated[0].NextRingTime)
	assert.Nil(t, updated[0].NotificationID)
	assert.Equal(t, []string{"handle-1"}, scheduler.disarmed)
}

func TestToggle_Reactivate_RecomputesAndRearms(t *testing.T) {
	_, _, s := setupTestStore(t)
	ctx := context.Background()

	alarms, err := s.Create(ctx, models.Alarm{Name: "wake up", Hour: 7, Minute: 0, Active: false, WakeUp: radioSettings()})
	require.NoError(t, err)
	alarmID := alarms[0].ID

	before := time.Now()
	updated, err := s.Toggle(ctx, alarmID, true)

	require.NoError(t, err)
	assert.True(t, updated[0].Active)
	require.NotNil(t, updated[0].NextRingTime)
	assert.True(t, updated[0].NextRingTime.After(before))
	require.NotNil(t, updated[0].NotificationID)
}

func TestDelete_UnknownID_IsIdempotent(t *testing.T) {
	_, scheduler, s := setupTestStore(t)
	ctx := context.Background()

	alarms, err := s.Create(ctx, models.Alarm{Name: "wake up", Hour: 7, Minute: 0, Active: true, WakeUp: radioSettings()})
	require.NoError(t, err)

	result, err := s.Delete(ctx, "no-such-alarm")

	require.NoError(t, err)
	assert.Len(t, result, len(alarms))
	assert.Empty(t, scheduler.disarmed)
}

func TestDelete_DisarmsAndRemoves(t *testing.T) {
	persistence, scheduler, s := setupTestStore(t)
	ctx := context.Background()

	alarms, err := s.Create(ctx, models.Alarm{Name: "wake up", Hour: 7, Minute: 0, Active: true, WakeUp: radioSettings()})
	require.NoError(t, err)
	alarmID := alarms[0].ID

	result, err := s.Delete(ctx, alarmID)

	require.NoError(t, err)
	assert.Empty(t, result)
	assert.Empty(t, persistence.alarms)
	assert.Equal(t, []string{"handle-1"}, scheduler.disarmed)
}

func TestSnooze_OverridesRingTime(t *testing.T) {
	_, scheduler, s := setupTestStore(t)
	ctx := context.Background()

	alarms, err := s.Create(ctx, models.Alarm{
		Name:       "wake up",
		Hour:       7,
		Minute:     0,
		RepeatDays: []models.WeekDay{models.Monday, models.Wednesday},
		Active:     true,
		WakeUp:     radioSettings(),
	})
	require.NoError(t, err)
	alarmID := alarms[0].ID

	now := time.Date(2024, 1, 15, 7, 0, 30, 0, time.UTC)
	snoozed, err := s.Snooze(ctx, alarmID, 9, now)

	require.NoError(t, err)
	require.NotNil(t, snoozed)
	// 贪睡绕过重复规则，直接 now + 9 分钟
	require.NotNil(t, snoozed.NextRingTime)
	assert.Equal(t, now.Add(9*time.Minute), *snoozed.NextRingTime)
	require.NotNil(t, snoozed.NotificationID)
	assert.Equal(t, []string{"handle-1"}, scheduler.disarmed)
}

func TestSnooze_UnknownID_ReturnsNilSilently(t *testing.T) {
	_, _, s := setupTestStore(t)
	ctx := context.Background()

	snoozed, err := s.Snooze(ctx, "no-such-alarm", 9, time.Now())

	require.NoError(t, err)
	assert.Nil(t, snoozed)
}

func TestDismiss_OneShot_Deactivates(t *testing.T) {
	_, scheduler, s := setupTestStore(t)
	ctx := context.Background()

	alarms, err := s.Create(ctx, models.Alarm{Name: "one shot", Hour: 7, Minute: 0, Active: true, WakeUp: radioSettings()})
	require.NoError(t, err)
	alarmID := alarms[0].ID

	result, err := s.Dismiss(ctx, alarmID, time.Now())

	require.NoError(t, err)
	require.Len(t, result, 1)
	assert.False(t, result[0].Active)
	assert.Nil(t, result[0].NextRingTime)
	assert.Nil(t, result[0].NotificationID)
	assert.Equal(t, []string{"handle-1"}, scheduler.disarmed)
}

func TestDismiss_Repeating_RearmsForNextOccurrence(t *testing.T) {
	_, scheduler, s := setupTestStore(t)
	ctx := context.Background()

	alarms, err := s.Create(ctx, models.Alarm{
		Name:       "weekday",
		Hour:       7,
		Minute:     0,
		RepeatDays: []models.WeekDay{models.Monday, models.Wednesday},
		Active:     true,
		WakeUp:     radioSettings(),
	})
	require.NoError(t, err)
	alarmID := alarms[0].ID

	dismissTime := time.Date(2024, 1, 15, 7, 0, 10, 0, time.UTC) // 周一，响铃中
	result, err := s.Dismiss(ctx, alarmID, dismissTime)

	require.NoError(t, err)
	require.Len(t, result, 1)
	assert.True(t, result[0].Active)
	require.NotNil(t, result[0].NextRingTime)
	assert.True(t, result[0].NextRingTime.After(dismissTime))
	// 下一次是周三 07:00
	assert.Equal(t, time.Date(2024, 1, 17, 7, 0, 0, 0, time.UTC), *result[0].NextRingTime)
	require.NotNil(t, result[0].NotificationID)
	assert.Equal(t, []string{"handle-1"}, scheduler.disarmed)
}

func TestDismiss_UnknownID_ReturnsCollectionUnchanged(t *testing.T) {
	_, _, s := setupTestStore(t)
	ctx := context.Background()

	_, err := s.Create(ctx, models.Alarm{Name: "wake up", Hour: 7, Minute: 0, Active: true, WakeUp: radioSettings()})
	require.NoError(t, err)

	result, err := s.Dismiss(ctx, "no-such-alarm", time.Now())

	require.NoError(t, err)
	assert.Len(t, result, 1)
}

func TestLoadFailure_PropagatesStorageError(t *testing.T) {
	persistence, _, s := setupTestStore(t)
	ctx := context.Background()

	persistence.loadErr = errors.New("disk gone")

	_, err := s.List(ctx)

	require.Error(t, err)
	var storageErr *StorageError
	require.True(t, errors.As(err, &storageErr))
	assert.Equal(t, "load", storageErr.Op)
}

func TestSaveFailure_RollsBackFreshReminder(t *testing.T) {
	persistence, scheduler, s := setupTestStore(t)
	ctx := context.Background()

	persistence.saveErr = errors.New("write failed")

	_, err := s.Create(ctx, models.Alarm{Name: "wake up", Hour: 7, Minute: 0, Active: true, WakeUp: radioSettings()})

	require.Error(t, err)
	var storageErr *StorageError
	require.True(t, errors.As(err, &storageErr))
	assert.Equal(t, "save", storageErr.Op)
	// 保存失败后刚布防的提醒被回滚撤销
	assert.Equal(t, []string{"handle-1"}, scheduler.disarmed)
}

func TestUpdate_DisarmFailure_AbortsWithoutPersisting(t *testing.T) {
	persistence, scheduler, s := setupTestStore(t)
	ctx := context.Background()

	alarms, err := s.Create(ctx, models.Alarm{Name: "wake up", Hour: 7, Minute: 0, Active: true, WakeUp: radioSettings()})
	require.NoError(t, err)
	alarmID := alarms[0].ID
	savesBefore := persistence.saveCalls

	scheduler.disarmErr = errors.New("platform rejected cancel")

	hour := 8
	_, err = s.Update(ctx, alarmID, models.AlarmPatch{Hour: &hour})

	require.Error(t, err)
	// 撤防失败则整个迁移中止，状态未被部分应用
	assert.Equal(t, savesBefore, persistence.saveCalls)
	assert.Equal(t, 7, persistence.alarms[0].Hour)
	require.NotNil(t, persistence.alarms[0].NotificationID)
}

func TestArm_Degraded_AlarmStaysActiveWithoutReminder(t *testing.T) {
	_, scheduler, s := setupTestStore(t)
	ctx := context.Background()

	scheduler.degraded = true

	alarms, err := s.Create(ctx, models.Alarm{Name: "wake up", Hour: 7, Minute: 0, Active: true, WakeUp: radioSettings()})

	require.NoError(t, err)
	require.Len(t, alarms, 1)
	assert.True(t, alarms[0].Active)
	require.NotNil(t, alarms[0].NextRingTime)
	assert.Nil(t, alarms[0].NotificationID)
}

func TestSortOrder_ActiveFirstInactiveByWallClock(t *testing.T) {
	persistence, _, s := setupTestStore(t)
	ctx := context.Background()

	soon := time.Date(2024, 1, 15, 7, 0, 0, 0, time.UTC)
	later := time.Date(2024, 1, 15, 9, 0, 0, 0, time.UTC)

	persistence.alarms = []models.Alarm{
		{ID: "inactive-late", Hour: 22, Minute: 30, Active: false},
		{ID: "active-later", Hour: 9, Minute: 0, Active: true, NextRingTime: &later},
		{ID: "inactive-early", Hour: 6, Minute: 15, Active: false},
		{ID: "active-soon", Hour: 7, Minute: 0, Active: true, NextRingTime: &soon},
	}

	sorted, err := s.List(ctx)

	require.NoError(t, err)
	require.Len(t, sorted, 4)
	assert.Equal(t, "active-soon", sorted[0].ID)
	assert.Equal(t, "active-later", sorted[1].ID)
	assert.Equal(t, "inactive-early", sorted[2].ID)
	assert.Equal(t, "inactive-late", sorted[3].ID)
}

func TestNextAlarm(t *testing.T) {
	persistence, _, s := setupTestStore(t)
	ctx := context.Background()

	next, err := s.NextAlarm(ctx)
	require.NoError(t, err)
	assert.Nil(t, next)

	soon := time.Date(2024, 1, 15, 7, 0, 0, 0, time.UTC)
	persistence.alarms = []models.Alarm{
		{ID: "inactive", Hour: 6, Minute: 0, Active: false},
		{ID: "active", Hour: 7, Minute: 0, Active: true, NextRingTime: &soon},
	}

	next, err = s.NextAlarm(ctx)
	require.NoError(t, err)
	require.NotNil(t, next)
	assert.Equal(t, "active", next.ID)
}

func TestNextAlarm_OnlyInactive_ReturnsNil(t *testing.T) {
	persistence, _, s := setupTestStore(t)
	ctx := context.Background()

	persistence.alarms = []models.Alarm{
		{ID: "inactive", Hour: 6, Minute: 0, Active: false},
	}

	next, err := s.NextAlarm(ctx)

	require.NoError(t, err)
	assert.Nil(t, next)
}
