package aggregator

import (
	"sort"
	"time"

	"go.uber.org/zap"

	"wisefido-study-monitor/internal/models"
)

// Aggregator 完整度聚合器
// 把单个病人的测量流折叠成 PatientTimeline，再算出 CompletenessReport。
// 纯函数式：同样的输入永远产出同样的报告，不依赖时钟。
type Aggregator struct {
	logger *zap.Logger
}

func NewAggregator(logger *zap.Logger) *Aggregator {
	return &Aggregator{logger: logger}
}

const dateLayout = "2006-01-02"

// Aggregate 折叠测量并计算完整度
// 判定规则：
//   - 某时段达标 = 血压计数和 ECG 计数都满足 requirements
//   - 某天达标   = 早晚两个时段都达标
//   - IsComplete = 最长连续达标天数 >= requiredStudyDays
func (a *Aggregator) Aggregate(patientID string, measurements []models.RawMeasurement, req models.Requirements, requiredStudyDays int) *models.CompletenessReport {
	timeline := buildTimeline(measurements)

	report := &models.CompletenessReport{
		PatientID:         patientID,
		DailyData:         timeline,
		Requirements:      req,
		RequiredStudyDays: requiredStudyDays,
		ExpectedSlots:     2 * requiredStudyDays,
	}

	var completeDates []string
	for _, date := range timeline.SortedDates() {
		day := timeline[date]
		dayComplete := true
		for _, slot := range []models.Slot{models.SlotMorning, models.SlotEvening} {
			counts := day[slot]
			if counts == nil {
				counts = &models.SlotCounts{}
			}
			missing := missingKinds(counts, req)
			if len(missing) > 0 {
				dayComplete = false
				report.MissingSlots = append(report.MissingSlots, models.MissingSlot{
					Date:         date,
					Slot:         slot,
					MissingKinds: missing,
				})
			} else {
				report.ReceivedSlots++
			}
		}
		if dayComplete {
			completeDates = append(completeDates, date)
			report.CompleteDays++
		}
	}

	report.TotalDays = len(timeline)
	if report.TotalDays > 0 {
		report.CompletionPercentage = float64(report.CompleteDays) / float64(report.TotalDays) * 100
	}
	report.ConsecutiveCompleteDays = longestConsecutiveRun(completeDates)
	report.IsComplete = report.ConsecutiveCompleteDays >= requiredStudyDays

	a.logger.Info("Patient completeness aggregated",
		zap.String("patient_id", patientID),
		zap.Int("total_days", report.TotalDays),
		zap.Int("complete_days", report.CompleteDays),
		zap.Int("consecutive_complete_days", report.ConsecutiveCompleteDays),
		zap.Bool("is_complete", report.IsComplete),
	)
	return report
}

// buildTimeline 按日期、时段、类型累加计数
// 上游已经通过正典文件选择排除了重复来源，这里不再去重
func buildTimeline(measurements []models.RawMeasurement) models.PatientTimeline {
	timeline := make(models.PatientTimeline)
	for _, m := range measurements {
		date := m.Timestamp.Format(dateLayout)
		day, ok := timeline[date]
		if !ok {
			day = models.DaySlots{
				models.SlotMorning: &models.SlotCounts{},
				models.SlotEvening: &models.SlotCounts{},
			}
			timeline[date] = day
		}
		counts, ok := day[m.Slot]
		if !ok {
			// OutOfSlot 在当前边界下不可达，保险起见单独挂一项
			counts = &models.SlotCounts{}
			day[m.Slot] = counts
		}
		switch m.Kind {
		case models.KindPressure:
			counts.PressureCount++
		case models.KindEcg:
			counts.EcgCount++
		}
	}
	return timeline
}

// missingKinds 返回该时段还缺哪些类型的测量
func missingKinds(counts *models.SlotCounts, req models.Requirements) []models.MeasurementKind {
	var missing []models.MeasurementKind
	if counts.PressureCount < req.PressurePerSlot {
		missing = append(missing, models.KindPressure)
	}
	if counts.EcgCount < req.EcgPerSlot {
		missing = append(missing, models.KindEcg)
	}
	return missing
}

// longestConsecutiveRun 已排序去重的达标日期里最长的连续自然日段
func longestConsecutiveRun(dates []string) int {
	if len(dates) == 0 {
		return 0
	}
	sort.Strings(dates)

	longest, current := 1, 1
	prev, _ := time.Parse(dateLayout, dates[0])
	for _, d := range dates[1:] {
		t, err := time.Parse(dateLayout, d)
		if err != nil {
			continue
		}
		if t.Sub(prev) == 24*time.Hour {
			current++
		} else if t.Equal(prev) {
			continue
		} else {
			current = 1
		}
		if current > longest {
			longest = current
		}
		prev = t
	}
	return longest
}
