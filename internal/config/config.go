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

// Config 描述 AgentSwap 守护进程启动阶段需要加载的全部配置。
type Config struct {
	Server    ServerConfig    `json:"server"`
	Storage   StorageConfig   `json:"storage"`
	Queue     QueueConfig     `json:"queue"`
	Sentiment SentimentConfig `json:"sentiment"`
	Trading   TradingConfig   `json:"trading"`
	Chain     ChainConfig     `json:"chain"`
	Logging   LoggingConfig   `json:"logging"`
	Runtime   RuntimeConfig   `json:"runtime"`
}

// ServerConfig 控制 API 服务的监听地址与访问令牌。
type ServerConfig struct {
	Address string `json:"address"`
	// AuthTokenEnv 指定携带 API 访问令牌的环境变量名。为空时 API 不鉴权。
	AuthTokenEnv string `json:"auth_token_env"`
}

// StorageConfig 统一描述交易请求存储的后端连接信息。
type StorageConfig struct {
	TradeStore TradeStoreConfig `json:"trade_store"`
}

// TradeStoreConfig 支持 memory 与 mysql 两种驱动。
type TradeStoreConfig struct {
	Driver string `json:"driver"`
	DSN    string `json:"dsn"`
	// MaxRetries 是单个交易请求允许的最大处理次数。
	MaxRetries int `json:"max_retries"`
}

// QueueConfig 描述交易请求队列的实现方式。
type QueueConfig struct {
	Driver string `json:"driver"`
	// Redis 队列参数。
	RedisAddr     string `json:"redis_addr"`
	RedisPassword string `json:"redis_password"`
	RedisDB       int    `json:"redis_db"`
	RedisKey      string `json:"redis_key"`
	// RabbitMQ 队列参数。
	AMQPURL   string `json:"amqp_url"`
	AMQPQueue string `json:"amqp_queue"`
	// Workers 是消费队列的工作协程数。
	Workers int `json:"workers"`
}

// SentimentConfig 描述情绪样本的来源。
type SentimentConfig struct {
	// Source 支持 fixture 与 http。
	Source string `json:"source"`
	// FixturePath 指向 JSON 样本文件，fixture 模式下使用。
	FixturePath string `json:"fixture_path"`
	// HTTP 模式参数。
	BaseURL     string `json:"base_url"`
	TokenEnv    string `json:"token_env"`
	SampleLimit int    `json:"sample_limit"`
	TimeoutSecs int    `json:"timeout_secs"`
}

// TradingConfig 汇总计划合成与签名的业务参数。
type TradingConfig struct {
	BaseAmount        string  `json:"base_amount"`
	BasePrice         string  `json:"base_price"`
	PriceSensitivity  string  `json:"price_sensitivity"`
	ActionConfidence  float64 `json:"action_confidence"`
	QuoteSymbol       string  `json:"quote_symbol"`
	SlippageTolerance string  `json:"slippage_tolerance"`
	// ExecutionWindowSecs 决定签名授权的有效期。
	ExecutionWindowSecs int `json:"execution_window_secs"`
}

// ChainConfig 包含访问区块链节点与委托合约所需的信息。
type ChainConfig struct {
	// ChainConfigPath 指向 configs/chains.yaml。
	ChainConfigPath string `json:"chain_config"`
	DefaultChain    string `json:"default_chain"`
	// SignerKeyEnv 指定携带签名私钥的环境变量名，私钥不落盘。
	SignerKeyEnv string `json:"signer_key_env"`
}

// LoggingConfig 控制运行日志与审计日志的输出。
type LoggingConfig struct {
	Level       string   `json:"level"`
	Format      string   `json:"format"`
	OutputPaths []string `json:"output_paths"`
	AuditPath   string   `json:"audit_path"`
	AuditMaxMB  int      `json:"audit_max_mb"`
	AuditMaxAge int      `json:"audit_max_age_days"`
}

// RuntimeConfig 用于放置运行时的通用参数。
type RuntimeConfig struct {
	DataDir string `json:"data_dir"`
}

// EnvConfigPath 是指向配置文件路径的环境变量名。
const EnvConfigPath = "AGENTSWAP_CONFIG"

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

// ExecutionWindow 把配置的秒数转换为时间段。
func (c TradingConfig) ExecutionWindow() time.Duration {
	if c.ExecutionWindowSecs <= 0 {
		return time.Hour
	}
	return time.Duration(c.ExecutionWindowSecs) * time.Second
}

// SentimentTimeout 把配置的秒数转换为时间段。
func (c SentimentConfig) SentimentTimeout() time.Duration {
	if c.TimeoutSecs <= 0 {
		return 10 * time.Second
	}
	return time.Duration(c.TimeoutSecs) * time.Second
}

// applyDefaults 在用户未填写部分字段时设置合理的默认值。
func (c *Config) applyDefaults(baseDir string) {
	if c.Server.Address == "" {
		c.Server.Address = ":8080"
	}

	if c.Storage.TradeStore.Driver == "" {
		c.Storage.TradeStore.Driver = "memory"
	}
	if c.Storage.TradeStore.MaxRetries <= 0 {
		c.Storage.TradeStore.MaxRetries = 3
	}

	if c.Queue.Driver == "" {
		c.Queue.Driver = "memory"
	}
	if c.Queue.Workers <= 0 {
		c.Queue.Workers = 2
	}
	if c.Queue.RedisKey == "" {
		c.Queue.RedisKey = "agentswap:trades"
	}
	if c.Queue.AMQPQueue == "" {
		c.Queue.AMQPQueue = "agentswap.trades"
	}

	if c.Sentiment.Source == "" {
		c.Sentiment.Source = "fixture"
	}
	if c.Sentiment.FixturePath != "" && !filepath.IsAbs(c.Sentiment.FixturePath) {
		c.Sentiment.FixturePath = filepath.Join(baseDir, c.Sentiment.FixturePath)
	}
	if c.Sentiment.SampleLimit <= 0 {
		c.Sentiment.SampleLimit = 20
	}

	if c.Chain.ChainConfigPath == "" {
		c.Chain.ChainConfigPath = filepath.Join(baseDir, "chains.yaml")
	} else if !filepath.IsAbs(c.Chain.ChainConfigPath) {
		c.Chain.ChainConfigPath = filepath.Join(baseDir, c.Chain.ChainConfigPath)
	}
	if c.Chain.SignerKeyEnv == "" {
		c.Chain.SignerKeyEnv = "AGENTSWAP_SIGNER_KEY"
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
}
