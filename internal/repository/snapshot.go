package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"wisefido-study-monitor/internal/models"
)

// ErrCacheMiss 表示快照不存在
var ErrCacheMiss = errors.New("cache miss")

// KVStore 抽象的 KV 存储（便于单元测试里替换 Redis）
type KVStore interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value string, ttl time.Duration) error
}

// RedisKVStore 基于 go-redis 的 KV 实现
type RedisKVStore struct {
	client *redis.Client
}

func NewRedisKVStore(client *redis.Client) *RedisKVStore {
	return &RedisKVStore{client: client}
}

func (r *RedisKVStore) Get(ctx context.Context, key string) (string, error) {
	val, err := r.client.Get(ctx, key).Result()
	if err != nil {
		if err == redis.Nil {
			return "", ErrCacheMiss
		}
		return "", err
	}
	return val, nil
}

func (r *RedisKVStore) Set(ctx context.Context, key string, value string, ttl time.Duration) error {
	return r.client.Set(ctx, key, value, ttl).Err()
}

// SnapshotCache 各病人最新报告的快照缓存
// 面板等下游服务直接读这份快照，不用等下一轮运行
type SnapshotCache struct {
	kv     KVStore
	ttl    time.Duration
	logger *zap.Logger
}

func NewSnapshotCache(kv KVStore, ttl time.Duration, logger *zap.Logger) *SnapshotCache {
	return &SnapshotCache{kv: kv, ttl: ttl, logger: logger}
}

func patientReportKey(patientID string) string {
	return fmt.Sprintf("study-monitor:patient:%s:report", patientID)
}

const overallSummaryKey = "study-monitor:overall:latest"

// UpdatePatientReport 写入某病人的最新完整度报告
func (c *SnapshotCache) UpdatePatientReport(ctx context.Context, report *models.CompletenessReport) error {
	data, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("failed to marshal patient snapshot: %w", err)
	}
	if err := c.kv.Set(ctx, patientReportKey(report.PatientID), string(data), c.ttl); err != nil {
		return fmt.Errorf("failed to write patient snapshot: %w", err)
	}
	return nil
}

// GetPatientReport 读取某病人的最新报告快照
func (c *SnapshotCache) GetPatientReport(ctx context.Context, patientID string) (*models.CompletenessReport, error) {
	raw, err := c.kv.Get(ctx, patientReportKey(patientID))
	if err != nil {
		return nil, err
	}
	var report models.CompletenessReport
	if err := json.Unmarshal([]byte(raw), &report); err != nil {
		return nil, fmt.Errorf("failed to unmarshal patient snapshot: %w", err)
	}
	return &report, nil
}

// UpdateOverallSummary 写入最近一次运行的汇总
func (c *SnapshotCache) UpdateOverallSummary(ctx context.Context, summary *models.OverallSummary) error {
	data, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("failed to marshal overall snapshot: %w", err)
	}
	if err := c.kv.Set(ctx, overallSummaryKey, string(data), c.ttl); err != nil {
		return fmt.Errorf("failed to write overall snapshot: %w", err)
	}
	return nil
}

// GetOverallSummary 读取最近一次运行的汇总快照
func (c *SnapshotCache) GetOverallSummary(ctx context.Context) (*models.OverallSummary, error) {
	raw, err := c.kv.Get(ctx, overallSummaryKey)
	if err != nil {
		return nil, err
	}
	var summary models.OverallSummary
	if err := json.Unmarshal([]byte(raw), &summary); err != nil {
		return nil, fmt.Errorf("failed to unmarshal overall snapshot: %w", err)
	}
	return &summary, nil
}
