package extractor

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"wisefido-study-monitor/internal/models"
	"wisefido-study-monitor/internal/timeslot"
)

// PressureRow 表格解码协作方交来的单行血压记录
type PressureRow struct {
	Systolic    *float64
	Diastolic   *float64
	Pulse       *float64
	RawDateText string
}

// 生理范围（超出只标警告，不剔除）
var pressureRanges = map[string][2]float64{
	"systolic":  {70, 250},
	"diastolic": {40, 150},
	"pulse":     {40, 150},
}

// 列名识别表：大小写无关的子串匹配，兼容英文和西语表头
var columnPatterns = map[string][]string{
	"systolic":  {"sistolic", "systolic", "sys", "presion_sistolic", "presión_sistólica", "sys(mmhg)"},
	"diastolic": {"diastolic", "dia", "presion_diastolic", "presión_diastólica", "dia(mmhg)"},
	"pulse":     {"pulse", "pulso", "heart_rate", "frecuencia", "pulse(bpm)"},
	"date":      {"date", "fecha", "timestamp", "fecha de la medición", "fecha de la medicion", "time", "hora"},
}

// columnIndex 识别出的各列下标，-1 表示缺失
type columnIndex struct {
	systolic  int
	diastolic int
	pulse     int
	date      int
}

// detectColumns 在表头里定位血压相关列
// 至少要有收缩压和舒张压两列，否则整个文件按结构无效处理
func detectColumns(headers []string) (columnIndex, bool) {
	idx := columnIndex{systolic: -1, diastolic: -1, pulse: -1, date: -1}

	assign := func(field string, col int) {
		switch field {
		case "systolic":
			if idx.systolic < 0 {
				idx.systolic = col
			}
		case "diastolic":
			if idx.diastolic < 0 {
				idx.diastolic = col
			}
		case "pulse":
			if idx.pulse < 0 {
				idx.pulse = col
			}
		case "date":
			if idx.date < 0 {
				idx.date = col
			}
		}
	}

	for field, patterns := range columnPatterns {
		for col, h := range headers {
			lower := strings.ToLower(strings.TrimSpace(h))
			for _, p := range patterns {
				if strings.Contains(lower, p) {
					assign(field, col)
					break
				}
			}
		}
	}

	if idx.systolic < 0 || idx.diastolic < 0 {
		return idx, false
	}
	return idx, true
}

var digitRunRe = regexp.MustCompile(`\d+`)

// parseCellNumber 解析数值单元格；非数值文本退而扫描首个数字串
func parseCellNumber(cell string) *float64 {
	s := strings.TrimSpace(cell)
	if s == "" {
		return nil
	}
	if v, err := strconv.ParseFloat(s, 64); err == nil {
		return &v
	}
	if m := digitRunRe.FindString(s); m != "" {
		if v, err := strconv.ParseFloat(m, 64); err == nil {
			return &v
		}
	}
	return nil
}

// Extractor 把解码后的行 / 文本归一化为 RawMeasurement
type Extractor struct {
	logger *zap.Logger
}

func NewExtractor(logger *zap.Logger) *Extractor {
	return &Extractor{logger: logger}
}

// DecodePressureFile 按扩展名解码表格文件为原始行
// 字节级不可读属于结构性失败，向上返回错误由编排层按文件记录
func (e *Extractor) DecodePressureFile(file models.FileDescriptor) ([]PressureRow, []string, error) {
	var records [][]string
	var err error

	switch strings.ToLower(filepath.Ext(file.Name)) {
	case ".xlsx":
		records, err = readXLSX(file.Path)
	default:
		records, err = readCSV(file.Path)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to decode pressure file %s: %w", file.Name, err)
	}
	if len(records) < 2 {
		return nil, []string{fmt.Sprintf("%s: no data rows", file.Name)}, nil
	}

	idx, ok := detectColumns(records[0])
	if !ok {
		return nil, []string{fmt.Sprintf("%s: no systolic/diastolic columns detected", file.Name)}, nil
	}

	var warnings []string
	rows := make([]PressureRow, 0, len(records)-1)
	for _, rec := range records[1:] {
		row := PressureRow{}
		if idx.systolic < len(rec) {
			row.Systolic = parseCellNumber(rec[idx.systolic])
		}
		if idx.diastolic < len(rec) {
			row.Diastolic = parseCellNumber(rec[idx.diastolic])
		}
		if idx.pulse >= 0 && idx.pulse < len(rec) {
			row.Pulse = parseCellNumber(rec[idx.pulse])
		}
		if idx.date >= 0 && idx.date < len(rec) {
			row.RawDateText = strings.TrimSpace(rec[idx.date])
		}
		rows = append(rows, row)
	}
	return rows, warnings, nil
}

// ExtractPressure 把原始行转成归一化测量
// 丢弃规则：收缩压或舒张压缺失、日期文本解析失败的行直接跳过并记警告；
// 生理范围越界只标记，不影响计数。
func (e *Extractor) ExtractPressure(patientID string, sourceFile string, rows []PressureRow) ([]models.RawMeasurement, []string) {
	var measurements []models.RawMeasurement
	var warnings []string

	for i, row := range rows {
		if row.Systolic == nil || row.Diastolic == nil {
			warnings = append(warnings, fmt.Sprintf("%s row %d: missing systolic/diastolic, dropped", sourceFile, i+1))
			continue
		}
		ts, ok := ParseDateString(row.RawDateText)
		if !ok {
			// 行级绝不回退到当前时间，解析不了就丢弃
			warnings = append(warnings, fmt.Sprintf("%s row %d: unparseable date %q, dropped", sourceFile, i+1, row.RawDateText))
			continue
		}

		payload := &models.PressurePayload{
			Systolic:  row.Systolic,
			Diastolic: row.Diastolic,
			Pulse:     row.Pulse,
		}
		m := models.RawMeasurement{
			PatientID:  patientID,
			Kind:       models.KindPressure,
			Timestamp:  ts,
			Slot:       timeslot.Classify(ts),
			Payload:    payload,
			SourceFile: sourceFile,
			Warnings:   validatePressureRanges(payload),
		}
		measurements = append(measurements, m)
	}

	e.logger.Debug("Pressure rows extracted",
		zap.String("patient_id", patientID),
		zap.String("file", sourceFile),
		zap.Int("rows", len(rows)),
		zap.Int("measurements", len(measurements)),
		zap.Int("warnings", len(warnings)),
	)
	return measurements, warnings
}

// validatePressureRanges 生理范围校验，返回警告列表
func validatePressureRanges(p *models.PressurePayload) []string {
	var warnings []string
	check := func(name string, v *float64) {
		if v == nil {
			return
		}
		r := pressureRanges[name]
		if *v < r[0] || *v > r[1] {
			warnings = append(warnings, fmt.Sprintf("%s %.0f outside normal range (%.0f-%.0f)", name, *v, r[0], r[1]))
		}
	}
	check("systolic", p.Systolic)
	check("diastolic", p.Diastolic)
	check("pulse", p.Pulse)
	return warnings
}

func readCSV(path string) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	return r.ReadAll()
}

func readXLSX(path string) ([][]string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("workbook has no sheets")
	}
	return f.GetRows(sheets[0])
}
