package config

import (
	"encoding/json"
	stdErrors "errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"StoryAgent-Kit/pkg/logger"
)

// 与原始 SDK 保持一致的环境变量名。
const (
	EnvRPCURL     = "RPC_URL"
	EnvPrivateKey = "WALLET_PRIVATE_KEY"
	EnvConfigPath = "STORYAGENT_CONFIG"
)

// DefaultPath 是未设置 STORYAGENT_CONFIG 时读取的配置文件。
var DefaultPath = filepath.Join("configs", "storyagent.json")

// ErrMissingPrivateKey 表示运行需要钱包的命令时未提供私钥。
var ErrMissingPrivateKey = stdErrors.New("未配置钱包私钥")

// Config 描述了 StoryAgent 在启动阶段需要加载的全部配置。
type Config struct {
	Server        ServerConfig        `json:"server"`
	Web3          Web3Config          `json:"web3"`
	Metapool      MetapoolConfig      `json:"metapool"`
	Storage       StorageConfig       `json:"storage"`
	TaskQueue     TaskQueueConfig     `json:"task_queue"`
	Logging       logger.Config       `json:"logging"`
	Observability ObservabilityConfig `json:"observability"`
	Runtime       RuntimeConfig       `json:"runtime"`
}

// ServerConfig 控制 HTTP API 的监听地址与限流参数。
type ServerConfig struct {
	Address        string  `json:"address"`
	RateLimitRPS   float64 `json:"rate_limit_rps"`
	RateLimitBurst int     `json:"rate_limit_burst"`
	// APIKeys 为空时关闭鉴权。
	APIKeys []APIKeyConfig `json:"api_keys"`
}

// APIKeyConfig 描述一个静态 API Key 及其权限。
type APIKeyConfig struct {
	Name        string   `json:"name"`
	Key         string   `json:"key"`
	KeyEnv      string   `json:"key_env"`
	Permissions []string `json:"permissions"`
}

// ObservabilityConfig 控制链路追踪与告警。
type ObservabilityConfig struct {
	Tracing  TracingConfig  `json:"tracing"`
	Alerting AlertingConfig `json:"alerting"`
}

// TracingConfig 控制 OpenTelemetry 追踪。
type TracingConfig struct {
	Enabled     bool    `json:"enabled"`
	ServiceName string  `json:"service_name"`
	SampleRate  float64 `json:"sample_rate"`
}

// AlertingConfig 描述告警 Webhook。
type AlertingConfig struct {
	WebhookURL     string `json:"webhook_url"`
	TimeoutSeconds int    `json:"timeout_seconds"`
}

// Web3Config 包含访问链节点与签名所需的信息。
type Web3Config struct {
	RPCURL      string `json:"rpc_url"`
	ChainConfig string `json:"chain_config"`
	Chain       string `json:"chain"`
	// PrivateKeyEnv 指定从哪个环境变量读取私钥，私钥本身不写入配置文件。
	PrivateKeyEnv         string          `json:"private_key_env"`
	ReceiptTimeoutSeconds int             `json:"receipt_timeout_seconds"`
	ReceiptPollMillis     int             `json:"receipt_poll_millis"`
	WaitForConfirmation   map[string]bool `json:"wait_for_confirmation"`

	privateKey string
}

// MetapoolConfig 描述质押合约与 APY 数据源。
type MetapoolConfig struct {
	VaultAddress string `json:"vault_address"`
	APYURL       string `json:"apy_url"`
	APYTimeout   int    `json:"apy_timeout_seconds"`
}

// StorageConfig 描述调用日志与异步任务的存储后端。
type StorageConfig struct {
	Journal   DatabaseConfig `json:"journal"`
	TaskStore DatabaseConfig `json:"task_store"`
}

// DatabaseConfig 支持 memory 与 mysql 两种驱动。
type DatabaseConfig struct {
	Driver                 string `json:"driver"`
	DSN                    string `json:"dsn"`
	MaxOpenConns           int    `json:"max_open_conns"`
	MaxIdleConns           int    `json:"max_idle_conns"`
	ConnMaxLifetimeSeconds int    `json:"conn_max_lifetime_seconds"`
}

// TaskQueueConfig 控制异步任务的消息队列。
type TaskQueueConfig struct {
	Driver   string         `json:"driver"`
	Worker   int            `json:"worker"`
	Redis    RedisConfig    `json:"redis"`
	RabbitMQ RabbitMQConfig `json:"rabbitmq"`
}

// RedisConfig 描述 Redis list 队列。
type RedisConfig struct {
	Address   string `json:"address"`
	Password  string `json:"password"`
	DB        int    `json:"db"`
	Queue     string `json:"queue"`
	BlockWait int    `json:"block_wait_seconds"`
}

// RabbitMQConfig 描述 RabbitMQ 队列。
type RabbitMQConfig struct {
	URL      string `json:"url"`
	Queue    string `json:"queue"`
	Prefetch int    `json:"prefetch"`
	Durable  bool   `json:"durable"`
}

// RuntimeConfig 用于放置运行时的通用参数。
type RuntimeConfig struct {
	DataDir string `json:"data_dir"`
}

// Load 负责解析指定路径的 JSON 配置文件，并叠加环境变量。
func Load(path string) (*Config, error) {
	if strings.TrimSpace(path) == "" {
		return nil, stdErrors.New("配置文件路径为空")
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("打开配置文件失败: %w", err)
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(content, &cfg); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	cfg.applyDefaults(filepath.Dir(path))
	cfg.applyEnv()
	return &cfg, nil
}

// LoadOrDefault 在配置文件不存在时退回到默认配置，便于只依赖环境变量运行。
func LoadOrDefault(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv(EnvConfigPath)
	}
	if path == "" {
		path = DefaultPath
	}
	cfg, err := Load(path)
	if err == nil {
		return cfg, nil
	}
	if !stdErrors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	return Default(), nil
}

// Default 返回仅包含默认值与环境变量的配置。
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults(".")
	cfg.applyEnv()
	return cfg
}

// applyDefaults 在用户未填写部分字段时设置合理的默认值。
func (c *Config) applyDefaults(baseDir string) {
	if c.Server.Address == "" {
		c.Server.Address = ":8080"
	}
	if c.Server.RateLimitRPS <= 0 {
		c.Server.RateLimitRPS = 20
	}
	if c.Server.RateLimitBurst <= 0 {
		c.Server.RateLimitBurst = 40
	}

	for i := range c.Server.APIKeys {
		key := &c.Server.APIKeys[i]
		if key.Key == "" && key.KeyEnv != "" {
			key.Key = strings.TrimSpace(os.Getenv(key.KeyEnv))
		}
	}

	if c.Observability.Tracing.ServiceName == "" {
		c.Observability.Tracing.ServiceName = "storyagent"
	}
	if c.Observability.Tracing.SampleRate <= 0 {
		c.Observability.Tracing.SampleRate = 1
	}
	if c.Observability.Alerting.TimeoutSeconds <= 0 {
		c.Observability.Alerting.TimeoutSeconds = 5
	}

	if c.Web3.Chain == "" {
		c.Web3.Chain = "story"
	}
	if c.Web3.PrivateKeyEnv == "" {
		c.Web3.PrivateKeyEnv = EnvPrivateKey
	}
	if c.Web3.ReceiptTimeoutSeconds <= 0 {
		c.Web3.ReceiptTimeoutSeconds = 120
	}
	if c.Web3.ReceiptPollMillis <= 0 {
		c.Web3.ReceiptPollMillis = 1000
	}
	if c.Web3.ChainConfig != "" && !filepath.IsAbs(c.Web3.ChainConfig) {
		c.Web3.ChainConfig = filepath.Join(baseDir, c.Web3.ChainConfig)
	}

	if c.Metapool.APYTimeout <= 0 {
		c.Metapool.APYTimeout = 10
	}

	if c.Storage.Journal.Driver == "" {
		c.Storage.Journal.Driver = "memory"
	}
	if c.Storage.TaskStore.Driver == "" {
		c.Storage.TaskStore.Driver = "memory"
	}

	if c.TaskQueue.Driver == "" {
		c.TaskQueue.Driver = "memory"
	}
	if c.TaskQueue.Worker <= 0 {
		c.TaskQueue.Worker = 4
	}

	if c.Runtime.DataDir == "" {
		c.Runtime.DataDir = filepath.Join(baseDir, "data")
	} else if !filepath.IsAbs(c.Runtime.DataDir) {
		c.Runtime.DataDir = filepath.Join(baseDir, c.Runtime.DataDir)
	}
}

// applyEnv 用环境变量覆盖 RPC 地址并读取私钥。
func (c *Config) applyEnv() {
	if rpc := strings.TrimSpace(os.Getenv(EnvRPCURL)); rpc != "" {
		c.Web3.RPCURL = rpc
	}
	c.Web3.privateKey = strings.TrimSpace(os.Getenv(c.Web3.PrivateKeyEnv))
}

// PrivateKey 返回钱包私钥；缺失时返回 ErrMissingPrivateKey。
func (w Web3Config) PrivateKey() (string, error) {
	if w.privateKey == "" {
		return "", fmt.Errorf("%w: 请设置环境变量 %s", ErrMissingPrivateKey, w.PrivateKeyEnv)
	}
	return w.privateKey, nil
}

// WithPrivateKey 返回携带私钥的副本，主要用于测试与命令行参数。
func (w Web3Config) WithPrivateKey(key string) Web3Config {
	w.privateKey = strings.TrimSpace(key)
	return w
}

// ReceiptTimeout 返回等待交易回执的上限。
func (w Web3Config) ReceiptTimeout() time.Duration {
	return time.Duration(w.ReceiptTimeoutSeconds) * time.Second
}

// ReceiptPollInterval 返回轮询交易回执的间隔。
func (w Web3Config) ReceiptPollInterval() time.Duration {
	return time.Duration(w.ReceiptPollMillis) * time.Millisecond
}

// Timeout 返回 APY 查询的 HTTP 超时时间。
func (m MetapoolConfig) Timeout() time.Duration {
	return time.Duration(m.APYTimeout) * time.Second
}

// Timeout 返回告警 Webhook 的请求超时。
func (a AlertingConfig) Timeout() time.Duration {
	return time.Duration(a.TimeoutSeconds) * time.Second
}

// ConnMaxLifetime 返回连接最大存活时间。
func (d DatabaseConfig) ConnMaxLifetime() time.Duration {
	return time.Duration(d.ConnMaxLifetimeSeconds) * time.Second
}
