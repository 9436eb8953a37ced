package models

import (
	"sort"
	"time"
)

// WeekDay 重复日（周一=0 ... 周日=6）
// 注意：与 Go 标准库的周日优先序（time.Sunday=0）不同，
// 所有对外交互必须经过 WeekDayFromTime / ToTime 转换
type WeekDay int

const (
	Monday WeekDay = iota
	Tuesday
	Wednesday
	Thursday
	Friday
	Saturday
	Sunday
)

var weekDayNames = [...]string{
	"Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday", "Sunday",
}

// String 返回英文名称
func (d WeekDay) String() string {
	if d < Monday || d > Sunday {
		return "Unknown"
	}
	return weekDayNames[d]
}

// WeekDayFromTime 将 Go 的周日优先序转换为周一优先序
func WeekDayFromTime(wd time.Weekday) WeekDay {
	return WeekDay((int(wd) + 6) % 7)
}

// ToTime 转换为 Go 的周日优先序
func (d WeekDay) ToTime() time.Weekday {
	return time.Weekday((int(d) + 1) % 7)
}

// Alarm 闹钟记录（对应 alarms 表）
//
// 不变量（每次状态迁移后必须成立）：
//  1. !Active ⇒ NotificationID == nil
//  2. Active && NextRingTime == nil ⇒ NotificationID == nil
//  3. NextRingTime 非 nil 时严格晚于计算它所用的"当前时间"
type Alarm struct {
	ID             string         `json:"id" db:"id"`
	Name           string         `json:"name" db:"name"`
	Hour           int            `json:"hour" db:"hour"`     // 0-23
	Minute         int            `json:"minute" db:"minute"` // 0-59
	RepeatDays     []WeekDay      `json:"repeat_days" db:"repeat_days"` // 空 = 单次闹钟
	Active         bool           `json:"active" db:"active"`
	WakeUp         WakeUpSettings `json:"wake_up" db:"wake_up"`
	NextRingTime   *time.Time     `json:"next_ring_time,omitempty" db:"next_ring_time"`
	NotificationID *string        `json:"notification_id,omitempty" db:"notification_id"`
	CreatedAt      time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at" db:"updated_at"`
}

// IsOneShot 是否为单次闹钟（无重复日，响一次后停用）
func (a *Alarm) IsOneShot() bool {
	return len(a.RepeatDays) == 0
}

// HasRepeatDay 重复日集合中是否包含指定日
func (a *Alarm) HasRepeatDay(d WeekDay) bool {
	for _, day := range a.RepeatDays {
		if day == d {
			return true
		}
	}
	return false
}

// NormalizeRepeatDays 去重并按序号升序排列重复日
// 重复日是集合语义，顺序和重复项无意义，入库前统一规整
func (a *Alarm) NormalizeRepeatDays() {
	if len(a.RepeatDays) == 0 {
		return
	}
	seen := make(map[WeekDay]bool, len(a.RepeatDays))
	normalized := make([]WeekDay, 0, len(a.RepeatDays))
	for _, d := range a.RepeatDays {
		if !seen[d] {
			seen[d] = true
			normalized = append(normalized, d)
		}
	}
	sort.Slice(normalized, func(i, j int) bool { return normalized[i] < normalized[j] })
	a.RepeatDays = normalized
}

// AlarmPatch 闹钟部分更新载体（nil 字段保持原值）
type AlarmPatch struct {
	Name       *string
	Hour       *int
	Minute     *int
	RepeatDays *[]WeekDay
	Active     *bool
	WakeUp     *WakeUpSettings
}

// Apply 将补丁合并到闹钟记录
func (p *AlarmPatch) Apply(a *Alarm) {
	if p.Name != nil {
		a.Name = *p.Name
	}
	if p.Hour != nil {
		a.Hour = *p.Hour
	}
	if p.Minute != nil {
		a.Minute = *p.Minute
	}
	if p.RepeatDays != nil {
		a.RepeatDays = append([]WeekDay(nil), (*p.RepeatDays)...)
	}
	if p.Active != nil {
		a.Active = *p.Active
	}
	if p.WakeUp != nil {
		a.WakeUp = *p.WakeUp
	}
}
