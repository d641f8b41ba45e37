package source

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"wisefido-study-monitor/internal/models"
)

// Scanner 扫描数据目录，发现病人及其测量文件
// 目录布局：<dataDir>/<patientID>/<files...>，目录名即病人标识
type Scanner struct {
	dataDir string
	logger  *zap.Logger
}

func NewScanner(dataDir string, logger *zap.Logger) *Scanner {
	return &Scanner{dataDir: dataDir, logger: logger}
}

// ListPatients 列出数据目录下的全部病人
func (s *Scanner) ListPatients() ([]string, error) {
	entries, err := os.ReadDir(s.dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read data dir %s: %w", s.dataDir, err)
	}

	var patients []string
	for _, e := range entries {
		if e.IsDir() {
			patients = append(patients, e.Name())
		}
	}
	return patients, nil
}

// ListFiles 列出某个病人目录下可识别的测量文件
// 空文件跳过并记警告（旧数据里出现过零字节附件）
func (s *Scanner) ListFiles(patientID string) ([]models.FileDescriptor, []string, error) {
	dir := filepath.Join(s.dataDir, patientID)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read patient dir %s: %w", dir, err)
	}

	var files []models.FileDescriptor
	var warnings []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		kind, ok := classifyFile(e.Name())
		if !ok {
			continue
		}
		info, err := e.Info()
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("%s/%s: stat failed: %v", patientID, e.Name(), err))
			continue
		}
		if info.Size() == 0 {
			warnings = append(warnings, fmt.Sprintf("%s/%s: empty file, skipped", patientID, e.Name()))
			continue
		}
		files = append(files, models.FileDescriptor{
			Path:         filepath.Join(dir, e.Name()),
			Name:         e.Name(),
			PatientID:    patientID,
			Kind:         kind,
			Size:         info.Size(),
			ModifiedTime: info.ModTime(),
		})
	}

	s.logger.Debug("Patient files listed",
		zap.String("patient_id", patientID),
		zap.Int("files", len(files)),
	)
	return files, warnings, nil
}

// classifyFile 按文件名判断用途
// 血压：.csv / .xlsx 或名字里带 pressure（包括导出成 .txt 的表格）；
// ECG 文本：文档协作方生成的其余 .txt
func classifyFile(name string) (models.FileKind, bool) {
	lower := strings.ToLower(name)
	switch {
	case strings.HasSuffix(lower, ".csv"), strings.HasSuffix(lower, ".xlsx"):
		return models.FilePressure, true
	case strings.Contains(lower, "pressure"):
		return models.FilePressure, true
	case strings.HasSuffix(lower, ".txt"):
		return models.FileEcgText, true
	default:
		return "", false
	}
}
