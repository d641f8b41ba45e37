package notify

import (
	"encoding/json"
	"fmt"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"wisefido-study-monitor/internal/models"
)

// runSummaryMessage 发往下游的运行摘要
type runSummaryMessage struct {
	RunID          string                `json:"run_id"`
	GenerationDate string                `json:"generation_date"`
	Overall        models.OverallSummary `json:"overall_summary"`
	WarningCount   int                   `json:"warning_count"`
	ErrorCount     int                   `json:"error_count"`
}

// MQTTNotifier 运行结束后向 MQTT 主题发布摘要
// 护理端服务订阅该主题来触发提醒（谁的监测还没做完）
type MQTTNotifier struct {
	client mqtt.Client
	topic  string
	qos    byte
	logger *zap.Logger
}

// NewMQTTNotifier 连接 broker 并创建通知器
func NewMQTTNotifier(broker, clientID, username, password, topic string, qos byte, logger *zap.Logger) (*MQTTNotifier, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(broker)
	opts.SetClientID(clientID)
	if username != "" {
		opts.SetUsername(username)
	}
	if password != "" {
		opts.SetPassword(password)
	}
	opts.SetAutoReconnect(true)
	opts.SetCleanSession(true)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker: %w", token.Error())
	}

	return &MQTTNotifier{
		client: client,
		topic:  topic,
		qos:    qos,
		logger: logger,
	}, nil
}

// PublishRunSummary 发布一次运行的摘要
func (n *MQTTNotifier) PublishRunSummary(report *models.MonitoringReport) error {
	msg := runSummaryMessage{
		RunID:          report.RunID,
		GenerationDate: report.GenerationDate.Format("2006-01-02T15:04:05Z07:00"),
		Overall:        report.Overall,
		WarningCount:   len(report.Warnings),
		ErrorCount:     len(report.Errors),
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal run summary: %w", err)
	}

	token := n.client.Publish(n.topic, n.qos, false, payload)
	token.Wait()
	if token.Error() != nil {
		return fmt.Errorf("failed to publish to topic %s: %w", n.topic, token.Error())
	}

	n.logger.Info("Run summary published",
		zap.String("run_id", report.RunID),
		zap.String("topic", n.topic),
	)
	return nil
}

// Close 断开 MQTT 连接
func (n *MQTTNotifier) Close() {
	n.client.Disconnect(250)
}
