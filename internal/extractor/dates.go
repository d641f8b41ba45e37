package extractor

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// 统一的日期解析表：按优先级逐个尝试，first match wins。
// 旧系统里血压和 ECG 两条链路各自维护了一份近似重复的解析逻辑，
// 这里收敛成一张表，两条链路共用。
var dateLayouts = []string{
	"2006/01/02 15:04",
	"2006-01-02 15:04:05",
	"02/01/2006 15:04",
	"01/02/2006 15:04",
	"2006/01/02 15:04:05",
	"02-01-2006 15:04",
	"20060102 150405",
	"2006-01-02 15:04",
	"2006-01-02",
}

// 西语月份表（含报告里出现的缩写）
var spanishMonths = map[string]time.Month{
	"enero": time.January, "ene": time.January,
	"febrero": time.February, "feb": time.February,
	"marzo": time.March, "mar": time.March,
	"abril": time.April, "abr": time.April,
	"mayo": time.May, "may": time.May,
	"junio": time.June, "jun": time.June,
	"julio": time.July, "jul": time.July,
	"agosto": time.August, "ago": time.August,
	"septiembre": time.September, "sep": time.September,
	"octubre": time.October, "oct": time.October,
	"noviembre": time.November, "nov": time.November,
	"diciembre": time.December, "dic": time.December,
}

// "22 de mayo de 2025, 8:15:26"
var spanishDateRe = regexp.MustCompile(`(?i)(\d{1,2})\s*de\s*([a-záéíóú]+)\s*de\s*(\d{4}),?\s*(\d{1,2}):(\d{2})(?::(\d{2}))?`)

// ParseDateString 解析表格单元格里的日期文本
// 依次尝试固定布局和西语文本格式；全部失败返回 false，
// 调用方应丢弃该行（绝不按行回退到“当前时间”）。
func ParseDateString(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}

	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return t, true
		}
	}

	if m := spanishDateRe.FindStringSubmatch(s); m != nil {
		if t, ok := buildSpanishDate(m[1], m[2], m[3], m[4], m[5], m[6]); ok {
			return t, true
		}
	}

	return time.Time{}, false
}

func buildSpanishDate(dayS, monthName, yearS, hourS, minS, secS string) (time.Time, bool) {
	month, ok := spanishMonths[strings.ToLower(monthName)]
	if !ok {
		return time.Time{}, false
	}
	day, _ := strconv.Atoi(dayS)
	year, _ := strconv.Atoi(yearS)
	hour, _ := strconv.Atoi(hourS)
	min, _ := strconv.Atoi(minS)
	sec := 0
	if secS != "" {
		sec, _ = strconv.Atoi(secS)
	}
	if day < 1 || day > 31 || hour > 23 || min > 59 {
		return time.Time{}, false
	}
	return time.Date(year, month, day, hour, min, sec, 0, time.Local), true
}

// 文件名日期模式：仅用于文件级兜底，不用于按行取值
var filenameDateRes = []*regexp.Regexp{
	regexp.MustCompile(`(?:ecg|pressure)_(\d{4}-\d{2}-\d{2})_(\d{2}-\d{2}-\d{2})`),
	regexp.MustCompile(`(\d{4})(\d{2})(\d{2})_(\d{2})(\d{2})(\d{2})`),
}

// ParseFilenameDate 从文件名里提取日期时间（文件级兜底）
func ParseFilenameDate(name string) (time.Time, bool) {
	for _, re := range filenameDateRes {
		m := re.FindStringSubmatch(name)
		if m == nil {
			continue
		}
		switch len(m) {
		case 3:
			s := m[1] + " " + strings.ReplaceAll(m[2], "-", ":")
			if t, err := time.ParseInLocation("2006-01-02 15:04:05", s, time.Local); err == nil {
				return t, true
			}
		case 7:
			year, _ := strconv.Atoi(m[1])
			month, _ := strconv.Atoi(m[2])
			day, _ := strconv.Atoi(m[3])
			hour, _ := strconv.Atoi(m[4])
			min, _ := strconv.Atoi(m[5])
			sec, _ := strconv.Atoi(m[6])
			if month < 1 || month > 12 || day < 1 || day > 31 || hour > 23 || min > 59 || sec > 59 {
				continue
			}
			return time.Date(year, time.Month(month), day, hour, min, sec, 0, time.Local), true
		}
	}
	return time.Time{}, false
}
