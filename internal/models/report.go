package models

import (
	"sort"
	"time"
)

// SlotCounts 单个时段内按类型的测量计数
type SlotCounts struct {
	PressureCount int `json:"pressure_count"`
	EcgCount      int `json:"ecg_count"`
}

// DaySlots 一个自然日内各时段的计数，键为时段名
type DaySlots map[Slot]*SlotCounts

// PatientTimeline 病人时间线：自然日（YYYY-MM-DD）-> 各时段计数
// 仅由 aggregator 在单次运行内累加；同样的测量集合总是产出同样的时间线
type PatientTimeline map[string]DaySlots

// SortedDates 返回按时间升序排列的日期键
func (t PatientTimeline) SortedDates() []string {
	dates := make([]string, 0, len(t))
	for d := range t {
		dates = append(dates, d)
	}
	sort.Strings(dates)
	return dates
}

// Requirements 每个时段的最低测量次数要求
type Requirements struct {
	PressurePerSlot int `json:"pressure_per_slot"`
	EcgPerSlot      int `json:"ecg_per_slot"`
}

// MissingSlot 未达标时段及其缺少的测量类型
type MissingSlot struct {
	Date         string            `json:"date"`
	Slot         Slot              `json:"slot"`
	MissingKinds []MeasurementKind `json:"missing_kinds"`
}

// CompletenessReport 单个病人的完整度报告
// 每次运行整体重算，不做增量更新
type CompletenessReport struct {
	PatientID               string          `json:"patient_id"`
	DailyData               PatientTimeline `json:"daily_data"`
	Requirements            Requirements    `json:"requirements"`
	RequiredStudyDays       int             `json:"required_study_days"`
	ConsecutiveCompleteDays int             `json:"consecutive_complete_days"`
	IsComplete              bool            `json:"is_complete"`
	MissingSlots            []MissingSlot   `json:"missing_slots"`

	// 以下为面板兼容的统计字段（沿用旧系统口径）
	TotalDays            int     `json:"total_days"`
	CompleteDays         int     `json:"complete_days"`
	CompletionPercentage float64 `json:"completion_percentage"`
	ReceivedSlots        int     `json:"received_slots"`
	ExpectedSlots        int     `json:"expected_slots"`

	// IgnoredSources 被正典文件选择排除、未参与计数的文件名
	IgnoredSources []string `json:"ignored_sources,omitempty"`
	Warnings       []string `json:"warnings,omitempty"`
}

// OverallSummary 跨病人的汇总统计
type OverallSummary struct {
	TotalPatients      int `json:"total_patients"`
	PatientsComplete   int `json:"patients_complete"`
	PatientsIncomplete int `json:"patients_incomplete"`
	TotalSlotsReceived int `json:"total_slots_received"`
	TotalSlotsExpected int `json:"total_slots_expected"`
}

// MonitoringReport 单次运行的完整产物
type MonitoringReport struct {
	RunID          string                         `json:"run_id"`
	GenerationDate time.Time                      `json:"generation_date"`
	Overall        OverallSummary                 `json:"overall_summary"`
	Patients       map[string]*CompletenessReport `json:"patients"`
	Warnings       []string                       `json:"warnings,omitempty"`
	Errors         []string                       `json:"errors,omitempty"`
}

// PatientExtract 单个病人在一次运行内的中间提取结果
// 由编排层显式构建并传递，不做跨运行缓存
type PatientExtract struct {
	PatientID     string
	Measurements  []RawMeasurement
	CanonicalFile *FileDescriptor
	IgnoredFiles  []FileDescriptor
	Warnings      []string
	FileErrors    []string
}
