package resolver

import (
	"time"

	"go.uber.org/zap"

	"wisefido-study-monitor/internal/models"
)

// 消歧阈值（分钟）
// 同一采集会话（ECG 与配套血压同次上传）给紧阈值，
// 只有“当天的某条读数”可用时给松阈值。
const (
	TightThresholdMinutes = 2
	LooseThresholdMinutes = 120
)

// Branch 消歧结果走到的分支，用于审计日志
type Branch string

const (
	BranchExplicit     Branch = "explicit_meridiem"
	BranchCorroborated Branch = "corroborated"
	BranchHeuristic    Branch = "heuristic"
)

// Trace 单次消歧的过程记录（旁路输出，不属于返回契约）
type Trace struct {
	Branch           Branch
	ResolvedMeridiem string  // "am" / "pm"
	MinDiffAM        float64 // 分钟；无佐证时为 -1
	MinDiffPM        float64
	ThresholdMinutes float64
	CorroborationLen int
}

// Resolver 上下午消歧器
// 对无显式标记、小时落在 1-12 的时间戳，用同一病人当天
// 有精确 24 小时制时间的读数（通常是血压）做最近邻佐证。
// 该操作不会失败：没有可用佐证时退回启发式默认值。
type Resolver struct {
	logger *zap.Logger
}

func NewResolver(logger *zap.Logger) *Resolver {
	return &Resolver{logger: logger}
}

// Resolve 返回消歧后的时间戳和过程记录
// corroboration 为同一病人已确定的测量时间，调用方应预先筛到同一自然日；
// sameSession 表示佐证来自与该测量同一采集会话（启用紧阈值）。
func (r *Resolver) Resolve(amb models.AmbiguousTimestamp, corroboration []time.Time, sameSession bool) (time.Time, Trace) {
	trace := Trace{MinDiffAM: -1, MinDiffPM: -1, CorroborationLen: len(corroboration)}

	// 1. 有显式标记：直接应用，不存在歧义
	if amb.HasExplicitMeridiem {
		resolved := applyMeridiem(amb, amb.Meridiem == "pm")
		trace.Branch = BranchExplicit
		trace.ResolvedMeridiem = amb.Meridiem
		r.logTrace(amb, resolved, trace)
		return resolved, trace
	}

	// 2. 构造 AM / PM 两个候选
	amCandidate := applyMeridiem(amb, false)
	pmCandidate := applyMeridiem(amb, true)

	// 3. 对每条同日佐证计算到两个候选的分钟差，各自取最小值
	minDiffAM := -1.0
	minDiffPM := -1.0
	for _, c := range corroboration {
		if !sameDate(c, amb.Date) {
			continue
		}
		diffAM := absMinutes(c.Sub(amCandidate))
		diffPM := absMinutes(c.Sub(pmCandidate))
		if minDiffAM < 0 || diffAM < minDiffAM {
			minDiffAM = diffAM
		}
		if minDiffPM < 0 || diffPM < minDiffPM {
			minDiffPM = diffPM
		}
	}
	trace.MinDiffAM = minDiffAM
	trace.MinDiffPM = minDiffPM

	threshold := float64(LooseThresholdMinutes)
	if sameSession {
		threshold = float64(TightThresholdMinutes)
	}
	trace.ThresholdMinutes = threshold

	// 4. 必须在阈值内且严格小于另一候选才采纳；平手或双双超阈走启发式
	if minDiffAM >= 0 && minDiffAM <= threshold && (minDiffPM < 0 || minDiffAM < minDiffPM) {
		trace.Branch = BranchCorroborated
		trace.ResolvedMeridiem = "am"
		r.logTrace(amb, amCandidate, trace)
		return amCandidate, trace
	}
	if minDiffPM >= 0 && minDiffPM <= threshold && (minDiffAM < 0 || minDiffPM < minDiffAM) {
		trace.Branch = BranchCorroborated
		trace.ResolvedMeridiem = "pm"
		r.logTrace(amb, pmCandidate, trace)
		return pmCandidate, trace
	}

	// 5. 启发式：1-11 点按门诊采集习惯视为上午，12 点视为中午（PM）
	resolved := amCandidate
	trace.ResolvedMeridiem = "am"
	if amb.Hour12 == 12 {
		resolved = pmCandidate
		trace.ResolvedMeridiem = "pm"
	}
	trace.Branch = BranchHeuristic
	r.logTrace(amb, resolved, trace)
	return resolved, trace
}

func (r *Resolver) logTrace(amb models.AmbiguousTimestamp, resolved time.Time, trace Trace) {
	r.logger.Debug("AM/PM resolution",
		zap.String("branch", string(trace.Branch)),
		zap.String("meridiem", trace.ResolvedMeridiem),
		zap.Int("hour12", amb.Hour12),
		zap.Time("resolved", resolved),
		zap.Float64("min_diff_am", trace.MinDiffAM),
		zap.Float64("min_diff_pm", trace.MinDiffPM),
		zap.Float64("threshold_minutes", trace.ThresholdMinutes),
		zap.Int("corroboration", trace.CorroborationLen),
	)
}

// applyMeridiem 把 1-12 的小时落到 24 小时制
// AM：12 -> 0；PM：小于 12 时加 12，12 保持不变（正午）
func applyMeridiem(amb models.AmbiguousTimestamp, pm bool) time.Time {
	hour := amb.Hour12
	if pm {
		if hour < 12 {
			hour += 12
		}
	} else {
		if hour == 12 {
			hour = 0
		}
	}
	return time.Date(amb.Date.Year(), amb.Date.Month(), amb.Date.Day(),
		hour, amb.Minute, amb.Second, 0, amb.Date.Location())
}

func sameDate(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

func absMinutes(d time.Duration) float64 {
	m := d.Minutes()
	if m < 0 {
		return -m
	}
	return m
}
