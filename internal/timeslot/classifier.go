package timeslot

import (
	"time"

	"wisefido-study-monitor/internal/models"
)

// Classify 把测量时间归入每日时段
// matutina（早间）：04:00 - 12:59
// vespertina（晚间）：13:00 - 03:59（跨到次日凌晨）
//
// 注意：凌晨 00:00-03:59 的晚间测量归属其自身日历日，
// 不回拨到前一天。这是沿用线上系统的既有口径，调整前需要产品确认。
func Classify(t time.Time) models.Slot {
	return ClassifyHour(t.Hour())
}

// ClassifyHour 按小时（0-23）归类
func ClassifyHour(hour int) models.Slot {
	switch {
	case hour >= 4 && hour <= 12:
		return models.SlotMorning
	case (hour >= 13 && hour <= 23) || (hour >= 0 && hour <= 3):
		return models.SlotEvening
	default:
		return models.SlotOutOfRange
	}
}
