package models

import "fmt"

// WakeUpMode 唤醒模式标签
type WakeUpMode string

const (
	WakeUpRadio     WakeUpMode = "radio"
	WakeUpMusic     WakeUpMode = "music"
	WakeUpHoroscope WakeUpMode = "horoscope"
)

// RadioSettings 电台唤醒载荷
type RadioSettings struct {
	StationID   string `json:"station_id"`
	StationName string `json:"station_name,omitempty"`
	StreamURL   string `json:"stream_url"`
}

// MusicSettings 音乐服务唤醒载荷
type MusicSettings struct {
	Provider   string `json:"provider"`
	PlaylistID string `json:"playlist_id"`
	TrackName  string `json:"track_name,omitempty"`
}

// HoroscopeSettings 星座运势唤醒载荷
type HoroscopeSettings struct {
	ZodiacSign string `json:"zodiac_sign"`
}

// WakeUpSettings 唤醒配置（封闭的标签联合）
// Mode 是判别标签，决定哪个载荷字段有效；核心层不解释载荷内容，
// 只负责透传给响铃侧
type WakeUpSettings struct {
	Mode      WakeUpMode         `json:"mode"`
	Radio     *RadioSettings     `json:"radio,omitempty"`
	Music     *MusicSettings     `json:"music,omitempty"`
	Horoscope *HoroscopeSettings `json:"horoscope,omitempty"`
}

// Validate 校验标签与载荷的一致性
// 新增唤醒模式时必须在此处补充分支，default 分支保证未知标签被拒绝
func (w *WakeUpSettings) Validate() error {
	switch w.Mode {
	case WakeUpRadio:
		if w.Radio == nil {
			return fmt.Errorf("wake_up mode is %q but radio payload is missing", w.Mode)
		}
	case WakeUpMusic:
		if w.Music == nil {
			return fmt.Errorf("wake_up mode is %q but music payload is missing", w.Mode)
		}
	case WakeUpHoroscope:
		if w.Horoscope == nil {
			return fmt.Errorf("wake_up mode is %q but horoscope payload is missing", w.Mode)
		}
	default:
		return fmt.Errorf("unknown wake_up mode: %q", w.Mode)
	}
	return nil
}
