package service

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"wisefido-study-monitor/internal/extractor"
	"wisefido-study-monitor/internal/models"
	"wisefido-study-monitor/internal/resolver"
	"wisefido-study-monitor/internal/selector"
	"wisefido-study-monitor/internal/timeslot"
)

// RunOnce 执行一轮完整运行：同步附件、逐病人流水线、汇总、落盘、通知
func (s *MonitorService) RunOnce(ctx context.Context) (*models.MonitoringReport, error) {
	runID := uuid.NewString()
	s.logger.Info("Monitoring run started", zap.String("run_id", runID))

	report := &models.MonitoringReport{
		RunID:          runID,
		GenerationDate: time.Now(),
		Patients:       make(map[string]*models.CompletenessReport),
	}

	// 1. 附件同步（失败只降级为警告，继续用本地已有文件）
	if s.syncer != nil {
		if n, err := s.syncer.SyncAttachments(); err != nil {
			report.Warnings = append(report.Warnings, fmt.Sprintf("attachment sync failed: %v", err))
			s.logger.Warn("Attachment sync failed", zap.Error(err))
		} else if n > 0 {
			s.logger.Info("New attachments synced", zap.Int("count", n))
		}
	}

	// 2. 发现病人
	patients, err := s.scanner.ListPatients()
	if err != nil {
		return nil, fmt.Errorf("failed to list patients: %w", err)
	}
	s.logger.Info("Patients discovered", zap.Int("count", len(patients)))

	// 3. 病人级并行流水线（病人之间无共享可变状态，结果做简单归并）
	type patientResult struct {
		patientID string
		report    *models.CompletenessReport
	}

	jobs := make(chan string)
	results := make(chan patientResult, len(patients))
	workers := s.config.Monitor.PatientWorkers

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for patientID := range jobs {
				results <- patientResult{
					patientID: patientID,
					report:    s.processPatient(ctx, patientID),
				}
			}
		}()
	}

	for _, p := range patients {
		select {
		case <-ctx.Done():
			// 超时护栏触发：不再投新任务，已有结果照常归并
			report.Errors = append(report.Errors, "run cancelled before all patients were processed")
		case jobs <- p:
		}
		if ctx.Err() != nil {
			break
		}
	}
	close(jobs)
	wg.Wait()
	close(results)

	for r := range results {
		report.Patients[r.patientID] = r.report
	}

	// 4. 汇总（可交换可结合的归并，与完成顺序无关）
	report.Overall = buildOverall(report.Patients)

	// 5. 报告产物
	if s.config.Monitor.ReportsDir != "" {
		path, err := s.writeReportArtifact(report)
		if err != nil {
			report.Warnings = append(report.Warnings, fmt.Sprintf("failed to write report artifact: %v", err))
			s.logger.Error("Failed to write report artifact", zap.Error(err))
		} else {
			s.logger.Info("Report artifact written", zap.String("path", path))
		}
	}

	// 6. 持久化与快照
	if s.reportStore != nil {
		if err := s.reportStore.SaveRun(report); err != nil {
			report.Warnings = append(report.Warnings, fmt.Sprintf("failed to persist run: %v", err))
			s.logger.Error("Failed to persist run", zap.Error(err))
		}
	}
	if s.snapshot != nil {
		for _, pr := range report.Patients {
			if err := s.snapshot.UpdatePatientReport(ctx, pr); err != nil {
				s.logger.Warn("Failed to update patient snapshot",
					zap.String("patient_id", pr.PatientID), zap.Error(err))
			}
		}
		if err := s.snapshot.UpdateOverallSummary(ctx, &report.Overall); err != nil {
			s.logger.Warn("Failed to update overall snapshot", zap.Error(err))
		}
	}

	// 7. 通知下游
	if s.notifier != nil {
		if err := s.notifier.PublishRunSummary(report); err != nil {
			report.Warnings = append(report.Warnings, fmt.Sprintf("failed to publish run summary: %v", err))
			s.logger.Warn("Failed to publish run summary", zap.Error(err))
		}
	}

	s.logger.Info("Monitoring run completed",
		zap.String("run_id", runID),
		zap.Int("patients", report.Overall.TotalPatients),
		zap.Int("complete", report.Overall.PatientsComplete),
	)
	return report, nil
}

// processPatient 单个病人的三段流水线：提取 -> 消歧/分类 -> 聚合
// 数据质量问题一律降级为报告内的警告，绝不让一个病人的坏文件
// 影响其他病人的处理。
func (s *MonitorService) processPatient(ctx context.Context, patientID string) *models.CompletenessReport {
	req := models.Requirements{
		PressurePerSlot: s.config.Monitor.PressurePerSlot,
		EcgPerSlot:      s.config.Monitor.EcgPerSlot,
	}

	ext := s.extractPatient(patientID)
	report := s.aggregator.Aggregate(patientID, ext.Measurements, req, s.config.Monitor.RequiredStudyDays)

	for _, f := range ext.IgnoredFiles {
		report.IgnoredSources = append(report.IgnoredSources, f.Name)
	}
	report.Warnings = append(report.Warnings, ext.Warnings...)
	report.Warnings = append(report.Warnings, ext.FileErrors...)
	return report
}

// extractPatient 构建单个病人的运行内提取结果
// 血压先行：其 24 小时制时间戳随后作为 ECG 消歧的佐证
func (s *MonitorService) extractPatient(patientID string) *models.PatientExtract {
	ext := &models.PatientExtract{PatientID: patientID}

	files, warnings, err := s.scanner.ListFiles(patientID)
	ext.Warnings = append(ext.Warnings, warnings...)
	if err != nil {
		ext.FileErrors = append(ext.FileErrors, fmt.Sprintf("failed to list files: %v", err))
		return ext
	}

	var pressureFiles []models.FileDescriptor
	var ecgFiles []models.FileDescriptor
	for _, f := range files {
		switch f.Kind {
		case models.FilePressure:
			pressureFiles = append(pressureFiles, f)
		case models.FileEcgText:
			ecgFiles = append(ecgFiles, f)
		}
	}

	// 同类血压导出可能存在多份（同一时段多封邮件），只取正典文件，
	// 其余整体忽略以避免重复计数
	canonical, ignored := selector.SelectCanonical(pressureFiles, s.logger)
	ext.CanonicalFile = canonical
	ext.IgnoredFiles = ignored

	var corroboration []time.Time
	if canonical != nil {
		rows, decodeWarnings, err := s.extractor.DecodePressureFile(*canonical)
		ext.Warnings = append(ext.Warnings, decodeWarnings...)
		if err != nil {
			// 字节级不可读：按文件记错误，该病人的其他文件照常处理
			ext.FileErrors = append(ext.FileErrors, err.Error())
		} else {
			measurements, extractWarnings := s.extractor.ExtractPressure(patientID, canonical.Name, rows)
			ext.Warnings = append(ext.Warnings, extractWarnings...)
			ext.Measurements = append(ext.Measurements, measurements...)
			for _, m := range measurements {
				corroboration = append(corroboration, m.Timestamp)
			}
		}
	}

	for _, f := range ecgFiles {
		data, err := os.ReadFile(f.Path)
		if err != nil {
			ext.FileErrors = append(ext.FileErrors, fmt.Sprintf("%s: unreadable: %v", f.Name, err))
			continue
		}

		rec := s.extractor.ExtractEcg(patientID, extractor.EcgDocument{
			ExtractedText: string(data),
			SourceFile:    f.Name,
		}, f)
		ext.Warnings = append(ext.Warnings, rec.Warnings...)

		ts := rec.Timestamp
		if rec.Ambiguous != nil {
			sameSession := canonical != nil && sameCaptureSession(f, *canonical)
			sameDay := filterSameDate(corroboration, rec.Ambiguous.Date)
			resolved, trace := s.resolver.Resolve(*rec.Ambiguous, sameDay, sameSession)
			ts = resolved
			if trace.Branch != resolver.BranchExplicit {
				ext.Warnings = append(ext.Warnings, fmt.Sprintf(
					"%s: AM/PM resolved via %s", f.Name, trace.Branch))
			}
		}

		ext.Measurements = append(ext.Measurements, models.RawMeasurement{
			PatientID:  patientID,
			Kind:       models.KindEcg,
			Timestamp:  ts,
			Slot:       timeslot.Classify(ts),
			SourceFile: f.Name,
		})
	}

	return ext
}

// sameCaptureSession 判断 ECG 文件与血压文件是否来自同一采集会话
// 同一会话的导出带相近的文件名时间戳；命中时消歧用紧阈值
func sameCaptureSession(ecgFile, pressureFile models.FileDescriptor) bool {
	ecgTS, ok1 := extractor.ParseFilenameDate(ecgFile.Name)
	pressureTS, ok2 := extractor.ParseFilenameDate(pressureFile.Name)
	if !ok1 || !ok2 {
		return false
	}
	diff := ecgTS.Sub(pressureTS)
	if diff < 0 {
		diff = -diff
	}
	return diff <= 10*time.Minute
}

func filterSameDate(times []time.Time, date time.Time) []time.Time {
	y, m, d := date.Date()
	var out []time.Time
	for _, t := range times {
		ty, tm, td := t.Date()
		if ty == y && tm == m && td == d {
			out = append(out, t)
		}
	}
	return out
}

// buildOverall 跨病人汇总
func buildOverall(patients map[string]*models.CompletenessReport) models.OverallSummary {
	summary := models.OverallSummary{TotalPatients: len(patients)}
	for _, pr := range patients {
		if pr.IsComplete {
			summary.PatientsComplete++
		} else {
			summary.PatientsIncomplete++
		}
		summary.TotalSlotsReceived += pr.ReceivedSlots
		summary.TotalSlotsExpected += pr.ExpectedSlots
	}
	return summary
}

// writeReportArtifact 按生成时间命名写出本轮报告 JSON
func (s *MonitorService) writeReportArtifact(report *models.MonitoringReport) (string, error) {
	if err := os.MkdirAll(s.config.Monitor.ReportsDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create reports dir: %w", err)
	}

	name := fmt.Sprintf("monitoring_report_%s.json", report.GenerationDate.Format("20060102_150405"))
	path := filepath.Join(s.config.Monitor.ReportsDir, name)

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal report: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write report file: %w", err)
	}
	return path, nil
}
