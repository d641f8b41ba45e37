package service

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"wisefido-study-monitor/internal/aggregator"
	"wisefido-study-monitor/internal/config"
	"wisefido-study-monitor/internal/extractor"
	"wisefido-study-monitor/internal/notify"
	"wisefido-study-monitor/internal/repository"
	"wisefido-study-monitor/internal/resolver"
	"wisefido-study-monitor/internal/source"

	"wisefido-study-monitor/internal/models"

	_ "github.com/lib/pq"
)

// ReportStore 运行报告持久化
type ReportStore interface {
	SaveRun(report *models.MonitoringReport) error
}

// Snapshot 最新报告快照
type Snapshot interface {
	UpdatePatientReport(ctx context.Context, report *models.CompletenessReport) error
	UpdateOverallSummary(ctx context.Context, summary *models.OverallSummary) error
}

// Notifier 运行摘要通知
type Notifier interface {
	PublishRunSummary(report *models.MonitoringReport) error
}

// AttachmentSyncer 运行前的附件同步
type AttachmentSyncer interface {
	SyncAttachments() (int, error)
}

// MonitorService 监测完整度服务
// 每轮运行对全部病人执行 提取 -> 消歧/分类 -> 聚合 三段流水线，
// 病人之间数据完全独立，按固定大小的 worker 池并行处理。
type MonitorService struct {
	config *config.Config
	logger *zap.Logger

	db          *sql.DB
	redisClient *redis.Client

	scanner    *source.Scanner
	extractor  *extractor.Extractor
	resolver   *resolver.Resolver
	aggregator *aggregator.Aggregator

	reportStore ReportStore
	snapshot    Snapshot
	notifier    Notifier
	syncer      AttachmentSyncer
}

// NewMonitorService 组装完整服务（含数据库、Redis、MQTT、附件网关）
func NewMonitorService(cfg *config.Config, logger *zap.Logger) (*MonitorService, error) {
	svc := NewMonitorServiceWithDeps(cfg, logger, nil, nil, nil, nil)

	if cfg.Monitor.PersistEnabled {
		db, err := sql.Open("postgres", cfg.Database.GetDSN())
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}
		if err := db.Ping(); err != nil {
			return nil, fmt.Errorf("failed to ping database: %w", err)
		}
		svc.db = db
		svc.reportStore = repository.NewReportRepository(db, logger)

		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := redisClient.Ping(context.Background()).Err(); err != nil {
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		svc.redisClient = redisClient
		svc.snapshot = repository.NewSnapshotCache(
			repository.NewRedisKVStore(redisClient),
			time.Duration(cfg.Monitor.SnapshotTTLSecs)*time.Second,
			logger,
		)
	}

	if cfg.MQTT.Enabled {
		notifier, err := notify.NewMQTTNotifier(
			cfg.MQTT.Broker, cfg.MQTT.ClientID,
			cfg.MQTT.Username, cfg.MQTT.Password,
			cfg.MQTT.Topic, cfg.MQTT.QoS, logger,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create MQTT notifier: %w", err)
		}
		svc.notifier = notifier
	}

	if cfg.Gateway.Enabled {
		svc.syncer = source.NewGatewayClient(
			cfg.Gateway.BaseURL, cfg.Gateway.APIKey,
			cfg.Monitor.DataDir, logger,
		)
	}

	return svc, nil
}

// NewMonitorServiceWithDeps 用注入的外部依赖组装服务
// 任意依赖传 nil 表示该能力关闭（测试和本地运行用）
func NewMonitorServiceWithDeps(
	cfg *config.Config,
	logger *zap.Logger,
	store ReportStore,
	snapshot Snapshot,
	notifier Notifier,
	syncer AttachmentSyncer,
) *MonitorService {
	return &MonitorService{
		config:      cfg,
		logger:      logger,
		scanner:     source.NewScanner(cfg.Monitor.DataDir, logger),
		extractor:   extractor.NewExtractor(logger),
		resolver:    resolver.NewResolver(logger),
		aggregator:  aggregator.NewAggregator(logger),
		reportStore: store,
		snapshot:    snapshot,
		notifier:    notifier,
		syncer:      syncer,
	}
}

// Start 启动周期运行：先跑一轮，然后按配置间隔轮询
func (s *MonitorService) Start(ctx context.Context) error {
	interval := time.Duration(s.config.Monitor.IntervalSeconds) * time.Second
	s.logger.Info("Starting study monitor service",
		zap.Duration("interval", interval),
		zap.String("data_dir", s.config.Monitor.DataDir),
		zap.Int("patient_workers", s.config.Monitor.PatientWorkers),
	)

	s.runWithTimeout(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.runWithTimeout(ctx)
		}
	}
}

// runWithTimeout 整轮运行加超时护栏，防止个别文件卡死调度
func (s *MonitorService) runWithTimeout(ctx context.Context) {
	timeout := time.Duration(s.config.Monitor.RunTimeoutSeconds) * time.Second
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if _, err := s.RunOnce(runCtx); err != nil {
		s.logger.Error("Monitoring run failed", zap.Error(err))
	}
}

// Stop 释放外部连接
func (s *MonitorService) Stop(ctx context.Context) error {
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			s.logger.Error("Failed to close database", zap.Error(err))
		}
	}
	if s.redisClient != nil {
		if err := s.redisClient.Close(); err != nil {
			s.logger.Error("Failed to close redis", zap.Error(err))
		}
	}
	if closer, ok := s.notifier.(interface{ Close() }); ok {
		closer.Close()
	}
	return nil
}
