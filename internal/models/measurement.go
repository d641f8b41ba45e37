package models

import "time"

// Slot 每日固定测量时段
type Slot string

const (
	SlotMorning Slot = "morning" // 04:00 - 12:59
	SlotEvening Slot = "evening" // 13:00 - 03:59（跨午夜）
	// SlotOutOfRange 当前时段边界覆盖全部 24 小时，正常不会产生；
	// 保留该值以便将来调整时段边界时有明确的兜底分类。
	SlotOutOfRange Slot = "out_of_slot"
)

// MeasurementKind 测量类型
type MeasurementKind string

const (
	KindPressure MeasurementKind = "pressure"
	KindEcg      MeasurementKind = "ecg"
)

// PressurePayload 血压测量值（来源文件中缺失的列保持为 nil）
type PressurePayload struct {
	Systolic  *float64 `json:"systolic"`
	Diastolic *float64 `json:"diastolic"`
	Pulse     *float64 `json:"pulse"`
}

// RawMeasurement 归一化后的单次测量
// 由 extractor 创建后不再修改；聚合进 PatientTimeline 后即丢弃，
// 不会单独出现在最终报告里。
type RawMeasurement struct {
	PatientID  string           `json:"patient_id"`
	Kind       MeasurementKind  `json:"kind"`
	Timestamp  time.Time        `json:"timestamp"`
	Slot       Slot             `json:"slot"` // 恒等于 timeslot.Classify(Timestamp)
	Payload    *PressurePayload `json:"payload,omitempty"`
	SourceFile string           `json:"source_file"`
	// Warnings 生理范围越界等数据质量提示；带警告的测量仍然计数
	Warnings []string `json:"warnings,omitempty"`
}

// AmbiguousTimestamp 12 小时制且没有上下午标记的时间戳
// 只存在于提取和消歧之间，不落盘
type AmbiguousTimestamp struct {
	Date                time.Time // 当天零点
	Hour12              int       // 1-12
	Minute              int
	Second              int
	HasExplicitMeridiem bool
	// Meridiem 显式标记（"am" / "pm"），仅在 HasExplicitMeridiem 时有效
	Meridiem string
}

// FileKind 病人目录下的文件用途分类
type FileKind string

const (
	FilePressure FileKind = "pressure" // 表格血压导出（CSV / XLSX）
	FileEcgText  FileKind = "ecg_text" // 文档协作方抽取出的 ECG 文本
)

// FileDescriptor 病人目录下的单个文件
type FileDescriptor struct {
	Path         string    `json:"path"`
	Name         string    `json:"name"`
	PatientID    string    `json:"patient_id"`
	Kind         FileKind  `json:"kind"`
	Size         int64     `json:"size"`
	ModifiedTime time.Time `json:"modified_time"`
}
