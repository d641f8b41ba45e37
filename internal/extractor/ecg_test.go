package extractor_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"wisefido-study-monitor/internal/extractor"
	"wisefido-study-monitor/internal/models"
)

func ecgFile(name string, mtime time.Time) models.FileDescriptor {
	return models.FileDescriptor{
		Path: "/data/p1/" + name, Name: name, PatientID: "p1",
		Kind: models.FileEcgText, Size: 1024, ModifiedTime: mtime,
	}
}

func TestExtractEcg_RegistradoWithMeridiem(t *testing.T) {
	e := extractor.NewExtractor(zap.NewNop())
	doc := extractor.EcgDocument{
		ExtractedText: "Informe ECG\nPaciente: maria lopez garcia\n" +
			"Registrado jueves, 13 de mar de 2025, 2:05:59 p. m.\n" +
			"Ritmo sinusal, 72 bpm",
		SourceFile: "ecg_1.txt",
	}

	rec := e.ExtractEcg("p1", doc, ecgFile("ecg_1.txt", time.Now()))
	require.Equal(t, "Maria Lopez Garcia", rec.PatientName)
	require.True(t, rec.HasEcgContent)

	// 带显式标记的 1-12 小时也走统一的歧义结构，由解析器套用标记
	require.NotNil(t, rec.Ambiguous)
	require.True(t, rec.Ambiguous.HasExplicitMeridiem)
	require.Equal(t, "pm", rec.Ambiguous.Meridiem)
	require.Equal(t, 2, rec.Ambiguous.Hour12)
	require.Equal(t, 59, rec.Ambiguous.Second)
	require.Equal(t, time.March, rec.Ambiguous.Date.Month())
}

func TestExtractEcg_AmbiguousWithoutMeridiem(t *testing.T) {
	e := extractor.NewExtractor(zap.NewNop())
	doc := extractor.EcgDocument{
		ExtractedText: "Electrocardiograma\n22 de mayo de 2025, 8:15:26\nFrecuencia 68 bpm",
		SourceFile:    "ecg_2.txt",
	}

	rec := e.ExtractEcg("p1", doc, ecgFile("ecg_2.txt", time.Now()))
	require.NotNil(t, rec.Ambiguous)
	require.False(t, rec.Ambiguous.HasExplicitMeridiem)
	require.Equal(t, 8, rec.Ambiguous.Hour12)
	require.Equal(t, 22, rec.Ambiguous.Date.Day())
}

func TestExtractEcg_AccentedWeekdayKeepsMeridiem(t *testing.T) {
	// 带重音的星期（miércoles / sábado）不能让 p. m. 标记丢失
	e := extractor.NewExtractor(zap.NewNop())

	cases := []string{
		"Registrado miércoles, 5 de marzo de 2025, 2:05:59 p. m.\necg normal",
		"Registrado sábado, 22 de marzo de 2025, 2:05:59 p. m.\necg normal",
		"Fecha de registro: miércoles, 5 de marzo de 2025, 2:05:59 p.m.\necg normal",
	}
	for _, text := range cases {
		doc := extractor.EcgDocument{ExtractedText: text, SourceFile: "ecg_a.txt"}
		rec := e.ExtractEcg("p1", doc, ecgFile("ecg_a.txt", time.Now()))
		require.NotNil(t, rec.Ambiguous, text)
		require.True(t, rec.Ambiguous.HasExplicitMeridiem, text)
		require.Equal(t, "pm", rec.Ambiguous.Meridiem, text)
		require.Equal(t, 2, rec.Ambiguous.Hour12, text)
	}
}

func TestExtractEcg_OutOfRangeDateRejected(t *testing.T) {
	// "99 de enero" 属于误匹配，不得归一化成别的月份；回落到文件级兜底
	e := extractor.NewExtractor(zap.NewNop())
	mtime := time.Date(2025, 3, 13, 10, 0, 0, 0, time.Local)
	doc := extractor.EcgDocument{
		ExtractedText: "ecg registrado lunes, 99 de enero de 2025, 8:15:26",
		SourceFile:    "scan.txt",
	}

	rec := e.ExtractEcg("p1", doc, ecgFile("scan.txt", mtime))
	require.Nil(t, rec.Ambiguous)
	require.True(t, rec.Timestamp.Equal(mtime))
	require.Len(t, rec.Warnings, 1)
	require.Contains(t, rec.Warnings[0], "used file mtime")
}

func TestExtractEcg_FechaDeRegistro(t *testing.T) {
	e := extractor.NewExtractor(zap.NewNop())
	doc := extractor.EcgDocument{
		ExtractedText: "Fecha de registro: viernes, 4 de abril de 2025, 6:14:36 p.m.\necg normal",
		SourceFile:    "ecg_3.txt",
	}

	rec := e.ExtractEcg("p1", doc, ecgFile("ecg_3.txt", time.Now()))
	require.NotNil(t, rec.Ambiguous)
	require.True(t, rec.Ambiguous.HasExplicitMeridiem)
	require.Equal(t, "pm", rec.Ambiguous.Meridiem)
	require.Equal(t, 6, rec.Ambiguous.Hour12)
}

func TestExtractEcg_TwentyFourHourDirect(t *testing.T) {
	// 24 小时制的时间不带歧义，直接确定
	e := extractor.NewExtractor(zap.NewNop())
	doc := extractor.EcgDocument{
		ExtractedText: "ecg registrado lunes, 13 de marzo de 2025, 14:05:59",
		SourceFile:    "ecg_4.txt",
	}

	rec := e.ExtractEcg("p1", doc, ecgFile("ecg_4.txt", time.Now()))
	require.Nil(t, rec.Ambiguous)
	require.Equal(t, 14, rec.Timestamp.Hour())
	require.Empty(t, rec.Warnings)
}

func TestExtractEcg_FilenameFallback(t *testing.T) {
	e := extractor.NewExtractor(zap.NewNop())
	doc := extractor.EcgDocument{
		ExtractedText: "ecg sin fecha legible",
		SourceFile:    "ecg_2025-03-13_14-05-59.txt",
	}

	rec := e.ExtractEcg("p1", doc, ecgFile("ecg_2025-03-13_14-05-59.txt", time.Now()))
	require.Nil(t, rec.Ambiguous)
	require.Equal(t, 14, rec.Timestamp.Hour())
	require.Len(t, rec.Warnings, 1)
	require.Contains(t, rec.Warnings[0], "used filename date")
}

func TestExtractEcg_MtimeFallbackAndNoContent(t *testing.T) {
	e := extractor.NewExtractor(zap.NewNop())
	mtime := time.Date(2025, 3, 13, 10, 0, 0, 0, time.Local)
	doc := extractor.EcgDocument{
		ExtractedText: "documento vacio",
		SourceFile:    "scan-final.txt",
	}

	rec := e.ExtractEcg("p1", doc, ecgFile("scan-final.txt", mtime))
	require.True(t, rec.Timestamp.Equal(mtime))
	require.False(t, rec.HasEcgContent)
	require.Len(t, rec.Warnings, 2) // mtime 兜底 + 无 ECG 内容
}

func TestExtractEcg_NameFallsBackToPatientID(t *testing.T) {
	e := extractor.NewExtractor(zap.NewNop())
	doc := extractor.EcgDocument{
		ExtractedText: "ecg 22 de mayo de 2025, 8:15:26",
		SourceFile:    "ecg_5.txt",
	}

	rec := e.ExtractEcg("patient-007", doc, ecgFile("ecg_5.txt", time.Now()))
	require.Equal(t, "patient-007", rec.PatientName)
}
