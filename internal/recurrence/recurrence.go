// Package recurrence 实现闹钟的下一次触发时间计算
//
// 纯函数，无外部状态。所有日期运算基于 now 所在时区的本地挂钟时间，
// 跨天偏移使用日历日（AddDate），夏令时切换时保持挂钟时间不变。
package recurrence

import (
	"sort"
	"time"

	"wakeclock/internal/models"
)

// NextRingTime 计算闹钟的下一次触发时间
//
// 停用的闹钟返回 nil。激活且配置了重复日的闹钟必有结果。
// 边界时刻与 now 相等视为已过（严格大于比较），避免闹钟在
// 自身触发时刻的那一微秒仍被视为"待触发"
func NextRingTime(alarm *models.Alarm, now time.Time) *time.Time {
	if !alarm.Active {
		return nil
	}

	// 今天的闹钟时刻（hour:minute:00.000 本地时间）
	todayAtAlarmTime := time.Date(
		now.Year(), now.Month(), now.Day(),
		alarm.Hour, alarm.Minute, 0, 0,
		now.Location(),
	)

	// 单次闹钟：今天没过就今天响，过了就明天同一时刻
	if alarm.IsOneShot() {
		if todayAtAlarmTime.After(now) {
			return &todayAtAlarmTime
		}
		next := todayAtAlarmTime.AddDate(0, 0, 1)
		return &next
	}

	days := sortedDays(alarm.RepeatDays)
	currentDay := models.WeekDayFromTime(now.Weekday())

	// 今天在重复日内且时刻未过：今天响
	if containsDay(days, currentDay) && todayAtAlarmTime.After(now) {
		return &todayAtAlarmTime
	}

	// 本周内找严格晚于今天的最小重复日
	for _, d := range days {
		if d > currentDay {
			next := todayAtAlarmTime.AddDate(0, 0, int(d-currentDay))
			return &next
		}
	}

	// 本周已无剩余重复日，回绕到下周最早的重复日
	minDay := days[0]
	next := todayAtAlarmTime.AddDate(0, 0, 7-int(currentDay)+int(minDay))
	return &next
}

// DueAlarms 返回处于响铃窗口内的闹钟
//
// tolerance 为响铃窗口容差：|NextRingTime - now| < tolerance 视为应该在响。
// 纯查询，轮询节奏由调用方自行决定
func DueAlarms(alarms []models.Alarm, now time.Time, tolerance time.Duration) []models.Alarm {
	var due []models.Alarm
	for _, a := range alarms {
		if !a.Active || a.NextRingTime == nil {
			continue
		}
		diff := a.NextRingTime.Sub(now)
		if diff < 0 {
			diff = -diff
		}
		if diff < tolerance {
			due = append(due, a)
		}
	}
	return due
}

// sortedDays 返回去重升序的重复日副本
func sortedDays(days []models.WeekDay) []models.WeekDay {
	seen := make(map[models.WeekDay]bool, len(days))
	sorted := make([]models.WeekDay, 0, len(days))
	for _, d := range days {
		if !seen[d] {
			seen[d] = true
			sorted = append(sorted, d)
		}
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	return sorted
}

func containsDay(days []models.WeekDay, d models.WeekDay) bool {
	for _, day := range days {
		if day == d {
			return true
		}
	}
	return false
}
