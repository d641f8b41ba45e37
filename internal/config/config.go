package config

import (
	"fmt"
	"os"
	"strconv"
)

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
}

// GetDSN 拼接数据库连接字符串
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode)
}

// RedisConfig Redis 配置
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// MQTTConfig MQTT 配置
type MQTTConfig struct {
	Enabled  bool
	Broker   string
	ClientID string
	Username string
	Password string
	Topic    string
	QoS      byte
}

// Config 监测完整度服务配置
type Config struct {
	Database DatabaseConfig
	Redis    RedisConfig
	MQTT     MQTTConfig

	Monitor struct {
		// 病人文件所在目录（每个病人一个子目录）
		DataDir string
		// 运行报告产物目录
		ReportsDir string

		// 完整度判定参数
		PressurePerSlot   int // 每时段血压次数要求，默认 2
		EcgPerSlot        int // 每时段 ECG 次数要求，默认 2
		RequiredStudyDays int // 连续达标天数要求，默认 7

		// 运行调度
		IntervalSeconds   int // 轮询间隔（秒），默认 3600
		RunTimeoutSeconds int // 单轮整体超时（秒），默认 600
		PatientWorkers    int // 病人级并行度，默认 4

		// 是否把运行结果写入 PostgreSQL / Redis 快照
		PersistEnabled  bool
		SnapshotTTLSecs int
	}

	Gateway struct {
		// 附件网关（邮箱附件由网关服务抓取，本服务只做同步）
		Enabled bool
		BaseURL string
		APIKey  string
	}

	Log struct {
		Level  string
		Format string
	}
}

// Load 从环境变量加载配置并校验
// 完整度要求参数非法属于编程契约错误，直接报错退出
func Load() (*Config, error) {
	cfg := &Config{}

	cfg.Database.Host = getEnv("DB_HOST", "localhost")
	cfg.Database.Port = getEnvInt("DB_PORT", 5432)
	cfg.Database.User = getEnv("DB_USER", "postgres")
	cfg.Database.Password = getEnv("DB_PASSWORD", "postgres")
	cfg.Database.Database = getEnv("DB_NAME", "studymon")
	cfg.Database.SSLMode = getEnv("DB_SSLMODE", "disable")

	cfg.Redis.Addr = getEnv("REDIS_ADDR", "localhost:6379")
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", "")
	cfg.Redis.DB = 0

	cfg.MQTT.Enabled = getEnv("MQTT_ENABLED", "false") == "true"
	cfg.MQTT.Broker = getEnv("MQTT_BROKER", "tcp://localhost:1883")
	cfg.MQTT.ClientID = getEnv("MQTT_CLIENT_ID", "wisefido-study-monitor")
	cfg.MQTT.Username = getEnv("MQTT_USERNAME", "")
	cfg.MQTT.Password = getEnv("MQTT_PASSWORD", "")
	cfg.MQTT.Topic = getEnv("MQTT_TOPIC", "study-monitor/runs")
	cfg.MQTT.QoS = 1

	cfg.Monitor.DataDir = getEnv("MONITOR_DATA_DIR", "data")
	cfg.Monitor.ReportsDir = getEnv("MONITOR_REPORTS_DIR", "reports")
	cfg.Monitor.PressurePerSlot = getEnvInt("MONITOR_PRESSURE_PER_SLOT", 2)
	cfg.Monitor.EcgPerSlot = getEnvInt("MONITOR_ECG_PER_SLOT", 2)
	cfg.Monitor.RequiredStudyDays = getEnvInt("MONITOR_REQUIRED_STUDY_DAYS", 7)
	cfg.Monitor.IntervalSeconds = getEnvInt("MONITOR_INTERVAL", 3600)
	cfg.Monitor.RunTimeoutSeconds = getEnvInt("MONITOR_RUN_TIMEOUT", 600)
	cfg.Monitor.PatientWorkers = getEnvInt("MONITOR_PATIENT_WORKERS", 4)
	cfg.Monitor.PersistEnabled = getEnv("MONITOR_PERSIST_ENABLED", "true") == "true"
	cfg.Monitor.SnapshotTTLSecs = getEnvInt("MONITOR_SNAPSHOT_TTL", 0)

	cfg.Gateway.Enabled = getEnv("GATEWAY_ENABLED", "false") == "true"
	cfg.Gateway.BaseURL = getEnv("GATEWAY_BASE_URL", "")
	cfg.Gateway.APIKey = getEnv("GATEWAY_API_KEY", "")

	cfg.Log.Level = getEnv("LOG_LEVEL", "info")
	cfg.Log.Format = getEnv("LOG_FORMAT", "json")

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Monitor.PressurePerSlot < 1 {
		return fmt.Errorf("invalid MONITOR_PRESSURE_PER_SLOT: %d (must be >= 1)", c.Monitor.PressurePerSlot)
	}
	if c.Monitor.EcgPerSlot < 1 {
		return fmt.Errorf("invalid MONITOR_ECG_PER_SLOT: %d (must be >= 1)", c.Monitor.EcgPerSlot)
	}
	if c.Monitor.RequiredStudyDays < 1 {
		return fmt.Errorf("invalid MONITOR_REQUIRED_STUDY_DAYS: %d (must be >= 1)", c.Monitor.RequiredStudyDays)
	}
	if c.Monitor.PatientWorkers < 1 {
		return fmt.Errorf("invalid MONITOR_PATIENT_WORKERS: %d (must be >= 1)", c.Monitor.PatientWorkers)
	}
	if c.Gateway.Enabled && c.Gateway.BaseURL == "" {
		return fmt.Errorf("GATEWAY_BASE_URL is required when gateway sync is enabled")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if v, err := strconv.Atoi(value); err == nil {
			return v
		}
	}
	return defaultValue
}
