package extractor

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"wisefido-study-monitor/internal/models"
)

// EcgDocument 文档文本协作方交来的单份 ECG 报告
type EcgDocument struct {
	ExtractedText string
	SourceFile    string
}

// EcgRecord 对 ECG 文本的分析结果
// 时间要么已确定（Timestamp 有效），要么带着歧义（Ambiguous 非 nil）
// 交由上层用血压读数佐证后再定。
type EcgRecord struct {
	PatientName   string
	Timestamp     time.Time
	Ambiguous     *models.AmbiguousTimestamp
	HasEcgContent bool
	TextLength    int
	Warnings      []string
}

// 显式上下午标记：时间附近出现 a.m. / p.m. 的几种写法
var explicitMeridiemRes = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\d{1,2}:\d{2}(?::\d{2})?\s*[ap]\.?\s*m\.?`),
	regexp.MustCompile(`(?i)[ap]\.?\s*m\.?\s*\d{1,2}:\d{2}`),
}

// ECG 报告里的日期短语，按优先级排列（带标记的写法优先）
// 例："Registrado jueves, 13 de mar de 2025, 2:05:59 p. m."
//
//	"Fecha de registro: viernes, 4 de abril de 2025, 6:14:36 p.m."
//	"22 de mayo de 2025, 8:15:26"
var ecgDatetimeRes = []*regexp.Regexp{
	regexp.MustCompile(`(?i)registrado\w*\s*[a-záéíóúñ]+,\s*(\d{1,2})\s*de\s*([a-záéíóú]+)\s*de\s*(\d{4}),\s*(\d{1,2}):(\d{2}):(\d{2})\s*([ap]\.?\s*m\.?)`),
	regexp.MustCompile(`(?i)fecha\s+de\s+registro:?\s*[a-záéíóúñ]+,\s*(\d{1,2})\s*de\s*([a-záéíóú]+)\s*de\s*(\d{4}),\s*(\d{1,2}):(\d{2}):(\d{2})\s*([ap]\.?\s*m\.?)?`),
	regexp.MustCompile(`(?i)registrado\w*\s*[a-záéíóúñ]+,\s*(\d{1,2})\s*de\s*([a-záéíóú]+)\s*de\s*(\d{4}),\s*(\d{1,2}):(\d{2}):(\d{2})`),
	regexp.MustCompile(`(?i)(\d{1,2})\s*de\s*([a-záéíóú]+)\s*de\s*(\d{4}),\s*(\d{1,2}):(\d{2}):(\d{2})`),
}

// 病人姓名短语
var patientNameRes = []*regexp.Regexp{
	regexp.MustCompile(`(?i)paciente:?\s*([a-záéíóúñü\-\s]{3,})`),
	regexp.MustCompile(`(?i)nombre:?\s*([a-záéíóúñü\-\s]{3,})`),
	regexp.MustCompile(`(?i)patient:?\s*([a-záéíóúñü\-\s]{3,})`),
}

var ecgKeywords = []string{"ecg", "electrocardiogram", "ritmo", "frecuencia", "bpm", "latido", "cardíaca"}

// ExtractEcg 分析一份 ECG 文本
// 时间来源优先级：正文日期短语 > 文件名模式 > 文件修改时间（文件级兜底，记警告）。
func (e *Extractor) ExtractEcg(patientID string, doc EcgDocument, file models.FileDescriptor) *EcgRecord {
	rec := &EcgRecord{TextLength: len(doc.ExtractedText)}
	text := doc.ExtractedText

	rec.PatientName = extractPatientName(text)
	if rec.PatientName == "" {
		// 目录名兜底（目录即病人标识）
		rec.PatientName = patientID
	}

	hasMeridiemInText := false
	for _, re := range explicitMeridiemRes {
		if re.MatchString(text) {
			hasMeridiemInText = true
			break
		}
	}

	found := false
	for _, re := range ecgDatetimeRes {
		m := re.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		day, _ := strconv.Atoi(m[1])
		month, ok := spanishMonths[strings.ToLower(m[2])]
		if !ok {
			continue
		}
		year, _ := strconv.Atoi(m[3])
		hour, _ := strconv.Atoi(m[4])
		min, _ := strconv.Atoi(m[5])
		sec, _ := strconv.Atoi(m[6])
		// 越界的组件按误匹配处理，换下一个模式
		if day < 1 || day > 31 || hour > 23 || min > 59 || sec > 59 {
			continue
		}

		meridiem := ""
		if len(m) > 7 && m[7] != "" {
			meridiem = normalizeMeridiem(m[7])
		}

		// 歧义判定：小时落在 1-12、匹配里没有标记、全文也没有标记
		ambiguousHour := hour >= 1 && hour <= 12
		if ambiguousHour && meridiem == "" && !hasMeridiemInText {
			rec.Ambiguous = &models.AmbiguousTimestamp{
				Date:   time.Date(year, month, day, 0, 0, 0, 0, time.Local),
				Hour12: hour,
				Minute: min,
				Second: sec,
			}
		} else if meridiem != "" && ambiguousHour {
			rec.Ambiguous = &models.AmbiguousTimestamp{
				Date:                time.Date(year, month, day, 0, 0, 0, 0, time.Local),
				Hour12:              hour,
				Minute:              min,
				Second:              sec,
				HasExplicitMeridiem: true,
				Meridiem:            meridiem,
			}
		} else {
			// 24 小时制或无需调整，直接确定
			rec.Timestamp = time.Date(year, month, day, hour, min, sec, 0, time.Local)
		}
		found = true
		break
	}

	if !found {
		// 文件级兜底：先文件名，再修改时间
		if ts, ok := ParseFilenameDate(file.Name); ok {
			rec.Timestamp = ts
			rec.Warnings = append(rec.Warnings, fmt.Sprintf("%s: no date in text, used filename date", file.Name))
		} else {
			rec.Timestamp = file.ModifiedTime
			rec.Warnings = append(rec.Warnings, fmt.Sprintf("%s: no date in text or filename, used file mtime", file.Name))
		}
	}

	lower := strings.ToLower(text)
	for _, kw := range ecgKeywords {
		if strings.Contains(lower, kw) {
			rec.HasEcgContent = true
			break
		}
	}
	if !rec.HasEcgContent {
		rec.Warnings = append(rec.Warnings, fmt.Sprintf("%s: no typical ECG content detected", file.Name))
	}

	e.logger.Debug("ECG text analyzed",
		zap.String("patient_id", patientID),
		zap.String("file", file.Name),
		zap.Bool("ambiguous", rec.Ambiguous != nil && !rec.Ambiguous.HasExplicitMeridiem),
		zap.Bool("ecg_content", rec.HasEcgContent),
	)
	return rec
}

func normalizeMeridiem(raw string) string {
	s := strings.ToLower(raw)
	s = strings.NewReplacer(".", "", " ", "").Replace(s)
	if strings.HasPrefix(s, "p") {
		return "pm"
	}
	if strings.HasPrefix(s, "a") {
		return "am"
	}
	return ""
}

var nonNameRe = regexp.MustCompile(`[^\p{L}\s\-]`)

// extractPatientName 从报告文本里找病人姓名
func extractPatientName(text string) string {
	for _, re := range patientNameRes {
		m := re.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		// 截到行尾，避免把后续字段吞进来
		name := m[1]
		if i := strings.IndexAny(name, "\r\n"); i >= 0 {
			name = name[:i]
		}
		name = strings.TrimSpace(nonNameRe.ReplaceAllString(name, ""))
		if len(name) > 2 {
			return titleCase(name)
		}
	}
	return ""
}

func titleCase(s string) string {
	words := strings.Fields(strings.ToLower(s))
	for i, w := range words {
		r := []rune(w)
		r[0] = []rune(strings.ToUpper(string(r[0])))[0]
		words[i] = string(r)
	}
	return strings.Join(words, " ")
}
