package repository

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"wisefido-study-monitor/internal/models"
)

// ReportRepository 运行报告持久化（PostgreSQL）
type ReportRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

func NewReportRepository(db *sql.DB, logger *zap.Logger) *ReportRepository {
	return &ReportRepository{db: db, logger: logger}
}

// SaveRun 保存一次运行的汇总和各病人报告
// 同一事务写入，避免出现只有汇总没有明细的运行记录
func (r *ReportRepository) SaveRun(report *models.MonitoringReport) error {
	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	fullJSON, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}

	_, err = tx.Exec(`
		INSERT INTO monitoring_runs (
			run_id, generated_at,
			total_patients, patients_complete, patients_incomplete,
			slots_received, slots_expected, report
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		report.RunID, report.GenerationDate,
		report.Overall.TotalPatients, report.Overall.PatientsComplete, report.Overall.PatientsIncomplete,
		report.Overall.TotalSlotsReceived, report.Overall.TotalSlotsExpected, fullJSON,
	)
	if err != nil {
		return fmt.Errorf("failed to insert monitoring run: %w", err)
	}

	for patientID, pr := range report.Patients {
		prJSON, err := json.Marshal(pr)
		if err != nil {
			return fmt.Errorf("failed to marshal patient report %s: %w", patientID, err)
		}
		_, err = tx.Exec(`
			INSERT INTO patient_reports (
				run_id, patient_id, is_complete, consecutive_complete_days, report
			) VALUES ($1, $2, $3, $4, $5)`,
			report.RunID, patientID, pr.IsComplete, pr.ConsecutiveCompleteDays, prJSON,
		)
		if err != nil {
			return fmt.Errorf("failed to insert patient report %s: %w", patientID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit report: %w", err)
	}

	r.logger.Info("Monitoring run persisted",
		zap.String("run_id", report.RunID),
		zap.Int("patients", len(report.Patients)),
	)
	return nil
}

// GetLatestRun 读取最近一次运行的完整报告
func (r *ReportRepository) GetLatestRun() (*models.MonitoringReport, error) {
	var raw []byte
	err := r.db.QueryRow(`
		SELECT report
		FROM monitoring_runs
		ORDER BY generated_at DESC
		LIMIT 1`).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query latest run: %w", err)
	}

	var report models.MonitoringReport
	if err := json.Unmarshal(raw, &report); err != nil {
		return nil, fmt.Errorf("failed to unmarshal latest run: %w", err)
	}
	return &report, nil
}

// GetPatientHistory 读取某病人最近 limit 次运行的报告
func (r *ReportRepository) GetPatientHistory(patientID string, limit int) ([]*models.CompletenessReport, error) {
	rows, err := r.db.Query(`
		SELECT pr.report
		FROM patient_reports pr
		INNER JOIN monitoring_runs mr ON mr.run_id = pr.run_id
		WHERE pr.patient_id = $1
		ORDER BY mr.generated_at DESC
		LIMIT $2`,
		patientID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query patient history: %w", err)
	}
	defer rows.Close()

	var reports []*models.CompletenessReport
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("failed to scan patient report: %w", err)
		}
		var report models.CompletenessReport
		if err := json.Unmarshal(raw, &report); err != nil {
			return nil, fmt.Errorf("failed to unmarshal patient report: %w", err)
		}
		reports = append(reports, &report)
	}
	return reports, rows.Err()
}
