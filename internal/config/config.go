package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"
)

// Config 描述了 agentd 在启动阶段需要加载的核心配置。
type Config struct {
	Server   ServerConfig   `json:"server"`
	Storage  StorageConfig  `json:"storage"`
	RunQueue QueueConfig    `json:"run_queue"`
	LLM      LLMConfig      `json:"llm"`
	Web3     Web3Config     `json:"web3"`
	Memory   MemoryConfig   `json:"memory"`
	Agent    AgentConfig    `json:"agent"`
	Logging  LoggingConfig  `json:"logging"`
	Runtime  RuntimeConfig  `json:"runtime"`
	Alerting AlertingConfig `json:"alerting"`
}

// ServerConfig 控制 API 服务的监听地址等参数。
type ServerConfig struct {
	Address string `json:"address"`
}

// StorageConfig 统一描述运行持久化后端的连接信息。
type StorageConfig struct {
	RunStore RunStoreConfig `json:"run_store"`
}

// RunStoreConfig 选择运行存储驱动，memory 主要用于本地调试。
type RunStoreConfig struct {
	Driver  string `json:"driver"`
	DSN     string `json:"dsn"`
	Retries int    `json:"retries"`
}

// QueueConfig 选择运行队列驱动。
type QueueConfig struct {
	Driver   string         `json:"driver"`
	Worker   int            `json:"worker"`
	Redis    RedisConfig    `json:"redis"`
	RabbitMQ RabbitMQConfig `json:"rabbitmq"`
}

// RedisConfig 描述 Redis 队列连接参数。
type RedisConfig struct {
	Address   string `json:"address"`
	Password  string `json:"password"`
	DB        int    `json:"db"`
	Queue     string `json:"queue"`
	BlockWait int    `json:"block_wait_seconds"`
}

// RabbitMQConfig 描述 RabbitMQ 队列连接参数。
type RabbitMQConfig struct {
	URL        string `json:"url"`
	Queue      string `json:"queue"`
	Prefetch   int    `json:"prefetch"`
	Durable    bool   `json:"durable"`
	AutoDelete bool   `json:"auto_delete"`
}

// LLMConfig 用于配置大模型推理的调用方式。
type LLMConfig struct {
	Provider string       `json:"provider"`
	OpenAI   OpenAIConfig `json:"openai"`
}

// OpenAIConfig 描述 OpenAI 兼容接口的调用参数。
type OpenAIConfig struct {
	APIKey         string `json:"api_key"`
	APIKeyEnv      string `json:"api_key_env"`
	BaseURL        string `json:"base_url"`
	Model          string `json:"model"`
	TimeoutSeconds int    `json:"timeout_seconds"`
}

// Timeout 将配置的秒数转换为 time.Duration。
func (c OpenAIConfig) Timeout() time.Duration {
	if c.TimeoutSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// Web3Config 包含访问区块链节点所需的 RPC 地址。
type Web3Config struct {
	ChainConfig  string `json:"chain_config"`
	RPCURL       string `json:"rpc_url"`
	DefaultChain string `json:"default_chain"`
}

// MemoryConfig 描述经验档案与知识库的存储方式。
type MemoryConfig struct {
	Driver     string            `json:"driver"`
	DSN        string            `json:"dsn"`
	Documents  string            `json:"documents"`
	MaxResults int               `json:"max_results"`
	Cache      MemoryCacheConfig `json:"cache"`
}

// MemoryCacheConfig 描述可选的 Redis 经验缓存。
type MemoryCacheConfig struct {
	Enabled  bool   `json:"enabled"`
	Address  string `json:"address"`
	Password string `json:"password"`
	DB       int    `json:"db"`
	Key      string `json:"key"`
	MaxLen   int64  `json:"max_len"`
}

// AgentConfig 控制编排循环的行为。
type AgentConfig struct {
	MemoryDepth             int    `json:"memory_depth"`
	ThinkTimeoutSeconds     int    `json:"think_timeout_seconds"`
	DecomposeTimeoutSeconds int    `json:"decompose_timeout_seconds"`
	ActionTimeoutSeconds    int    `json:"action_timeout_seconds"`
	FailurePolicy           string `json:"failure_policy"`
	FailureBudget           int    `json:"failure_budget"`
	EventBuffer             int    `json:"event_buffer"`
}

// ThinkTimeout 返回单次推理的时间预算。
func (c AgentConfig) ThinkTimeout() time.Duration {
	if c.ThinkTimeoutSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.ThinkTimeoutSeconds) * time.Second
}

// DecomposeTimeout 返回拆解调用的时间预算。
func (c AgentConfig) DecomposeTimeout() time.Duration {
	if c.DecomposeTimeoutSeconds <= 0 {
		return 60 * time.Second
	}
	return time.Duration(c.DecomposeTimeoutSeconds) * time.Second
}

// ActionTimeout 返回单次动作执行的时间预算。
func (c AgentConfig) ActionTimeout() time.Duration {
	if c.ActionTimeoutSeconds <= 0 {
		return 60 * time.Second
	}
	return time.Duration(c.ActionTimeoutSeconds) * time.Second
}

// LoggingConfig 描述日志输出方式。
type LoggingConfig struct {
	Level       string         `json:"level"`
	Format      string         `json:"format"`
	OutputPaths []string       `json:"output_paths"`
	Audit       AuditLogConfig `json:"audit"`
}

// AuditLogConfig 描述审计日志通道。
type AuditLogConfig struct {
	Enabled    bool   `json:"enabled"`
	Path       string `json:"path"`
	MaxSizeMB  int    `json:"max_size_mb"`
	MaxBackups int    `json:"max_backups"`
	MaxAgeDays int    `json:"max_age_days"`
}

// RuntimeConfig 用于放置运行时的通用参数。
type RuntimeConfig struct {
	DataDir string `json:"data_dir"`
}

// AlertingConfig 控制告警通道，目前只包含开关。
type AlertingConfig struct {
	Enabled bool `json:"enabled"`
}

// Load 负责解析指定路径的 JSON 配置文件。
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("配置文件路径为空")
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

	return &cfg, nil
}

// applyDefaults 在用户未填写部分字段时设置合理的默认值。
func (c *Config) applyDefaults(baseDir string) {
	if c.Server.Address == "" {
		c.Server.Address = ":8080"
	}

	if c.Storage.RunStore.Driver == "" {
		c.Storage.RunStore.Driver = "memory"
	}
	if c.Storage.RunStore.Retries <= 0 {
		c.Storage.RunStore.Retries = 3
	}

	if c.RunQueue.Driver == "" {
		c.RunQueue.Driver = "memory"
	}
	if c.RunQueue.Worker <= 0 {
		c.RunQueue.Worker = 1
	}

	if c.LLM.Provider == "" {
		c.LLM.Provider = "openai"
	}

	if c.Memory.Driver == "" {
		c.Memory.Driver = "inprocess"
	}
	if c.Memory.MaxResults <= 0 {
		c.Memory.MaxResults = 3
	}

	if c.Agent.MemoryDepth <= 0 {
		c.Agent.MemoryDepth = 5
	}
	if c.Agent.FailurePolicy == "" {
		c.Agent.FailurePolicy = "continue"
	}
	if c.Agent.EventBuffer <= 0 {
		c.Agent.EventBuffer = 128
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}

	if c.Runtime.DataDir == "" {
		c.Runtime.DataDir = filepath.Join(baseDir, "data")
	} else if !filepath.IsAbs(c.Runtime.DataDir) {
		c.Runtime.DataDir = filepath.Join(baseDir, c.Runtime.DataDir)
	}

	if !filepath.IsAbs(c.Memory.Documents) && c.Memory.Documents != "" {
		c.Memory.Documents = filepath.Join(baseDir, c.Memory.Documents)
	}
	if !filepath.IsAbs(c.Web3.ChainConfig) && c.Web3.ChainConfig != "" {
		c.Web3.ChainConfig = filepath.Join(baseDir, c.Web3.ChainConfig)
	}
}
