package service_test

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"wisefido-study-monitor/internal/config"
	"wisefido-study-monitor/internal/models"
	"wisefido-study-monitor/internal/service"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := &config.Config{}
	cfg.Monitor.DataDir = filepath.Join(t.TempDir(), "data")
	cfg.Monitor.ReportsDir = filepath.Join(t.TempDir(), "reports")
	cfg.Monitor.PressurePerSlot = 2
	cfg.Monitor.EcgPerSlot = 2
	cfg.Monitor.RequiredStudyDays = 7
	cfg.Monitor.PatientWorkers = 2
	cfg.Log.Level = "debug"
	return cfg
}

// writeCompletePatient 生成一个连续 7 天完全达标的病人目录
// 早间 ECG 用 1-12 小时的无标记时间，靠同日血压读数消歧
func writeCompletePatient(t *testing.T, dataDir, patientID string) {
	t.Helper()
	dir := filepath.Join(dataDir, patientID)
	require.NoError(t, os.MkdirAll(dir, 0o755))

	var csv strings.Builder
	csv.WriteString("Date,Sys(mmHg),Dia(mmHg),Pulse(bpm)\n")
	ecgIdx := 0
	for day := 1; day <= 7; day++ {
		// 早间读数贴近 ECG 时间，晚间刻意拉开，保证 AM 候选严格更近
		for i := 0; i < 2; i++ {
			csv.WriteString(fmt.Sprintf("2025-01-%02d 08:%02d:00,120,80,72\n", day, 5+i))
		}
		for i := 0; i < 2; i++ {
			csv.WriteString(fmt.Sprintf("2025-01-%02d 20:%02d:00,120,80,72\n", day, 35+i))
		}

		// 早间 ECG：8:10 / 8:12 无标记，需佐证消歧
		for _, min := range []int{10, 12} {
			ecgIdx++
			text := fmt.Sprintf("ecg registrado lunes, %d de enero de 2025, 8:%02d:00\nritmo sinusal 72 bpm\n", day, min)
			require.NoError(t, os.WriteFile(
				filepath.Join(dir, fmt.Sprintf("ecg_%03d.txt", ecgIdx)), []byte(text), 0o644))
		}
		// 晚间 ECG：24 小时制，直接确定
		for _, min := range []int{10, 12} {
			ecgIdx++
			text := fmt.Sprintf("ecg registrado lunes, %d de enero de 2025, 20:%02d:00\nritmo sinusal 70 bpm\n", day, min)
			require.NoError(t, os.WriteFile(
				filepath.Join(dir, fmt.Sprintf("ecg_%03d.txt", ecgIdx)), []byte(text), 0o644))
		}
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "pressure_export.csv"), []byte(csv.String()), 0o644))
}

func writeIncompletePatient(t *testing.T, dataDir, patientID string) {
	t.Helper()
	dir := filepath.Join(dataDir, patientID)
	require.NoError(t, os.MkdirAll(dir, 0o755))

	csv := "Date,Sys(mmHg),Dia(mmHg)\n2025-01-01 08:05:00,120,80\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "pressure_export.csv"), []byte(csv), 0o644))
}

// fakeStore / fakeSnapshot / fakeNotifier 记录调用，验证编排层的分发
type fakeStore struct{ saved *models.MonitoringReport }

func (f *fakeStore) SaveRun(report *models.MonitoringReport) error {
	f.saved = report
	return nil
}

type fakeSnapshot struct {
	patients []string
	overall  *models.OverallSummary
}

func (f *fakeSnapshot) UpdatePatientReport(_ context.Context, report *models.CompletenessReport) error {
	f.patients = append(f.patients, report.PatientID)
	return nil
}

func (f *fakeSnapshot) UpdateOverallSummary(_ context.Context, summary *models.OverallSummary) error {
	f.overall = summary
	return nil
}

type fakeNotifier struct{ published *models.MonitoringReport }

func (f *fakeNotifier) PublishRunSummary(report *models.MonitoringReport) error {
	f.published = report
	return nil
}

func TestRunOnce_EndToEnd(t *testing.T) {
	cfg := testConfig(t)
	writeCompletePatient(t, cfg.Monitor.DataDir, "patient-a")
	writeIncompletePatient(t, cfg.Monitor.DataDir, "patient-b")

	store := &fakeStore{}
	snapshot := &fakeSnapshot{}
	notifier := &fakeNotifier{}
	svc := service.NewMonitorServiceWithDeps(cfg, zap.NewNop(), store, snapshot, notifier, nil)

	report, err := svc.RunOnce(context.Background())
	require.NoError(t, err)
	require.Len(t, report.Patients, 2)

	a := report.Patients["patient-a"]
	require.NotNil(t, a)
	require.Equal(t, 7, a.TotalDays)
	require.Equal(t, 7, a.ConsecutiveCompleteDays)
	require.True(t, a.IsComplete)
	require.Equal(t, 14, a.ReceivedSlots)

	b := report.Patients["patient-b"]
	require.NotNil(t, b)
	require.False(t, b.IsComplete)
	require.Equal(t, 1, b.TotalDays)
	require.Zero(t, b.ReceivedSlots)
	require.Len(t, b.MissingSlots, 2)

	require.Equal(t, 2, report.Overall.TotalPatients)
	require.Equal(t, 1, report.Overall.PatientsComplete)
	require.Equal(t, 1, report.Overall.PatientsIncomplete)

	// 分发验证：持久化、快照、通知都拿到同一份报告
	require.Same(t, report, store.saved)
	require.ElementsMatch(t, []string{"patient-a", "patient-b"}, snapshot.patients)
	require.Equal(t, report.Overall, *snapshot.overall)
	require.Same(t, report, notifier.published)

	// 报告产物落盘
	entries, err := os.ReadDir(cfg.Monitor.ReportsDir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Regexp(t, `^monitoring_report_\d{8}_\d{6}\.json$`, entries[0].Name())
}

func TestRunOnce_AmbiguousEcgResolvedByCorroboration(t *testing.T) {
	// 早间 8:10 的无标记 ECG 靠 08:05 血压读数佐证归入上午时段
	cfg := testConfig(t)
	writeCompletePatient(t, cfg.Monitor.DataDir, "patient-a")

	svc := service.NewMonitorServiceWithDeps(cfg, zap.NewNop(), nil, nil, nil, nil)
	report, err := svc.RunOnce(context.Background())
	require.NoError(t, err)

	a := report.Patients["patient-a"]
	for _, date := range []string{"2025-01-01", "2025-01-04", "2025-01-07"} {
		day := a.DailyData[date]
		require.Equal(t, 2, day[models.SlotMorning].EcgCount, date)
		require.Equal(t, 2, day[models.SlotEvening].EcgCount, date)
	}
	// 非显式消歧会留下可追溯的警告
	found := false
	for _, w := range a.Warnings {
		if strings.Contains(w, "AM/PM resolved via") {
			found = true
			break
		}
	}
	require.True(t, found)
}

func TestRunOnce_DuplicatePressureExportsIgnored(t *testing.T) {
	cfg := testConfig(t)
	writeCompletePatient(t, cfg.Monitor.DataDir, "patient-a")

	// 同一病人的第二份更小的血压导出：整体忽略，不重复计数
	dup := "Date,Sys(mmHg),Dia(mmHg)\n2025-01-01 08:05:00,120,80\n"
	require.NoError(t, os.WriteFile(
		filepath.Join(cfg.Monitor.DataDir, "patient-a", "pressure_export_old.csv"), []byte(dup), 0o644))

	svc := service.NewMonitorServiceWithDeps(cfg, zap.NewNop(), nil, nil, nil, nil)
	report, err := svc.RunOnce(context.Background())
	require.NoError(t, err)

	a := report.Patients["patient-a"]
	require.Contains(t, a.IgnoredSources, "pressure_export_old.csv")
	require.Equal(t, 2, a.DailyData["2025-01-01"][models.SlotMorning].PressureCount)
	require.True(t, a.IsComplete)
}

func TestRunOnce_EmptyDataDir(t *testing.T) {
	cfg := testConfig(t)
	require.NoError(t, os.MkdirAll(cfg.Monitor.DataDir, 0o755))

	svc := service.NewMonitorServiceWithDeps(cfg, zap.NewNop(), nil, nil, nil, nil)
	report, err := svc.RunOnce(context.Background())
	require.NoError(t, err)
	require.Empty(t, report.Patients)
	require.Zero(t, report.Overall.TotalPatients)
}

func TestRunOnce_BadFileDoesNotSinkPatient(t *testing.T) {
	cfg := testConfig(t)
	writeCompletePatient(t, cfg.Monitor.DataDir, "patient-a")

	// 一份没有血压列的杂项表格：只产生警告，病人照常达标
	junk := "foo,bar\n1,2\n"
	require.NoError(t, os.WriteFile(
		filepath.Join(cfg.Monitor.DataDir, "patient-a", "otros_datos.csv"), []byte(junk), 0o644))

	svc := service.NewMonitorServiceWithDeps(cfg, zap.NewNop(), nil, nil, nil, nil)
	report, err := svc.RunOnce(context.Background())
	require.NoError(t, err)

	a := report.Patients["patient-a"]
	require.True(t, a.IsComplete)
}
