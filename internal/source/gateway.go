package source

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// AttachmentInfo 网关返回的单个附件描述
type AttachmentInfo struct {
	PatientID string `json:"patient_id"`
	FileName  string `json:"file_name"`
	URL       string `json:"url"`
}

// attachmentListResponse 网关列表接口的响应信封
type attachmentListResponse struct {
	Status int               `json:"status"`
	Msg    string            `json:"msg"`
	Data   []json.RawMessage `json:"data"`
}

// GatewayClient 附件网关客户端
// 邮箱侧的附件抓取由独立的网关服务完成（邮件协议不在本服务范围内），
// 本客户端只负责把网关上新到的导出文件同步进本地数据目录。
type GatewayClient struct {
	httpClient *resty.Client
	dataDir    string
	logger     *zap.Logger
}

func NewGatewayClient(baseURL, apiKey, dataDir string, logger *zap.Logger) *GatewayClient {
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(30 * time.Second).
		SetRetryCount(3).
		SetRetryWaitTime(1 * time.Second).
		SetRetryMaxWaitTime(5 * time.Second).
		SetHeader("Accept", "application/json").
		SetAuthToken(apiKey)

	return &GatewayClient{
		httpClient: client,
		dataDir:    dataDir,
		logger:     logger,
	}
}

// SyncAttachments 拉取网关上的附件清单并下载缺失文件
// 单个文件失败只记日志并继续，不中断整轮同步
func (g *GatewayClient) SyncAttachments() (int, error) {
	resp, err := g.httpClient.R().
		SetResult(&attachmentListResponse{}).
		Get("/api/v1/attachments")
	if err != nil {
		return 0, fmt.Errorf("failed to list attachments: %w", err)
	}
	if resp.IsError() {
		return 0, fmt.Errorf("attachment list returned status %d", resp.StatusCode())
	}

	list, ok := resp.Result().(*attachmentListResponse)
	if !ok || list.Status != 0 {
		return 0, fmt.Errorf("unexpected attachment list response")
	}

	downloaded := 0
	for _, raw := range list.Data {
		var att AttachmentInfo
		if err := json.Unmarshal(raw, &att); err != nil {
			g.logger.Warn("Malformed attachment entry", zap.Error(err))
			continue
		}
		if att.PatientID == "" || att.FileName == "" {
			continue
		}

		target := filepath.Join(g.dataDir, att.PatientID, att.FileName)
		if _, err := os.Stat(target); err == nil {
			continue // 已存在，跳过
		}

		if err := g.downloadFile(att, target); err != nil {
			g.logger.Warn("Failed to download attachment",
				zap.String("patient_id", att.PatientID),
				zap.String("file", att.FileName),
				zap.Error(err),
			)
			continue
		}
		downloaded++
	}

	g.logger.Info("Attachment sync completed",
		zap.Int("listed", len(list.Data)),
		zap.Int("downloaded", downloaded),
	)
	return downloaded, nil
}

func (g *GatewayClient) downloadFile(att AttachmentInfo, target string) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("failed to create patient dir: %w", err)
	}

	resp, err := g.httpClient.R().
		SetOutput(target).
		Get(att.URL)
	if err != nil {
		return err
	}
	if resp.IsError() {
		return fmt.Errorf("download returned status %d", resp.StatusCode())
	}
	return nil
}
