package source_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"wisefido-study-monitor/internal/source"
)

func gatewayServer(t *testing.T, attachments []source.AttachmentInfo) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/attachments", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		data := make([]json.RawMessage, 0, len(attachments))
		for _, a := range attachments {
			raw, _ := json.Marshal(a)
			data = append(data, raw)
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"status": 0, "msg": "ok", "data": data,
		})
	})
	mux.HandleFunc("/files/", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("Date,Sys,Dia\n2025-01-01 08:05:00,120,80\n"))
	})
	return httptest.NewServer(mux)
}

func TestSyncAttachments_DownloadsMissing(t *testing.T) {
	srv := gatewayServer(t, []source.AttachmentInfo{
		{PatientID: "p1", FileName: "pressure_export.csv", URL: "/files/1"},
		{PatientID: "p2", FileName: "ecg_1.txt", URL: "/files/2"},
	})
	defer srv.Close()

	dataDir := t.TempDir()
	g := source.NewGatewayClient(srv.URL, "test-key", dataDir, zap.NewNop())

	n, err := g.SyncAttachments()
	require.NoError(t, err)
	require.Equal(t, 2, n)

	data, err := os.ReadFile(filepath.Join(dataDir, "p1", "pressure_export.csv"))
	require.NoError(t, err)
	require.Contains(t, string(data), "120,80")
}

func TestSyncAttachments_SkipsExisting(t *testing.T) {
	srv := gatewayServer(t, []source.AttachmentInfo{
		{PatientID: "p1", FileName: "pressure_export.csv", URL: "/files/1"},
	})
	defer srv.Close()

	dataDir := t.TempDir()
	existing := filepath.Join(dataDir, "p1", "pressure_export.csv")
	require.NoError(t, os.MkdirAll(filepath.Dir(existing), 0o755))
	require.NoError(t, os.WriteFile(existing, []byte("local copy"), 0o644))

	g := source.NewGatewayClient(srv.URL, "test-key", dataDir, zap.NewNop())
	n, err := g.SyncAttachments()
	require.NoError(t, err)
	require.Zero(t, n)

	// 本地文件不被覆盖
	data, err := os.ReadFile(existing)
	require.NoError(t, err)
	require.Equal(t, "local copy", string(data))
}

func TestSyncAttachments_MalformedEntriesSkipped(t *testing.T) {
	srv := gatewayServer(t, []source.AttachmentInfo{
		{PatientID: "", FileName: "x.csv", URL: "/files/1"}, // 缺病人标识
		{PatientID: "p1", FileName: "", URL: "/files/1"},    // 缺文件名
	})
	defer srv.Close()

	g := source.NewGatewayClient(srv.URL, "test-key", t.TempDir(), zap.NewNop())
	n, err := g.SyncAttachments()
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestSyncAttachments_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	g := source.NewGatewayClient(srv.URL, "test-key", t.TempDir(), zap.NewNop())
	_, err := g.SyncAttachments()
	require.Error(t, err)
}
