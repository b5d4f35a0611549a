// Package config 提供 TOML 配置加载与环境变量覆盖。
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/wyfcoding/dexcore/pkg/logger"
)

// Config 定序服务配置
type Config struct {
	// 服务名称
	ServiceName string `mapstructure:"service_name"`
	// 环境：dev, staging, prod
	Environment string `mapstructure:"environment"`
	// HTTP 服务配置
	HTTP HTTPConfig `mapstructure:"http"`
	// 日志配置
	Logger logger.Config `mapstructure:"logger"`
	// 指标配置
	Metrics MetricsConfig `mapstructure:"metrics"`
	// 日志流（journal）配置
	Journal JournalConfig `mapstructure:"journal"`
	// Kafka 配置（响应日志下游分发）
	Kafka KafkaConfig `mapstructure:"kafka"`
	// 数据库配置（成交归档消费者）
	Database DatabaseConfig `mapstructure:"database"`
	// 定序核心配置
	Sequencer SequencerConfig `mapstructure:"sequencer"`
}

// HTTPConfig HTTP 服务配置
type HTTPConfig struct {
	// 监听地址
	Host string `mapstructure:"host"`
	// 监听端口
	Port int `mapstructure:"port"`
	// 读超时（秒）
	ReadTimeout int `mapstructure:"read_timeout"`
	// 写超时（秒）
	WriteTimeout int `mapstructure:"write_timeout"`
}

// MetricsConfig 指标配置
type MetricsConfig struct {
	// 是否启用
	Enabled bool `mapstructure:"enabled"`
	// Prometheus 监听端口
	Port int `mapstructure:"port"`
	// 指标路径
	Path string `mapstructure:"path"`
}

// JournalConfig 请求/响应日志流配置
type JournalConfig struct {
	// 日志目录，请求日志与响应日志分别为 requests.log / responses.log
	Dir string `mapstructure:"dir"`
	// 每条记录写入后是否 fsync
	Fsync bool `mapstructure:"fsync"`
	// 每处理多少条请求做一次检查点（0 表示关闭）
	CheckpointEvery int `mapstructure:"checkpoint_every"`
}

// KafkaConfig Kafka 配置
type KafkaConfig struct {
	// 是否启用下游分发
	Enabled bool `mapstructure:"enabled"`
	// Broker 地址列表
	Brokers []string `mapstructure:"brokers"`
	// 主题前缀，例如 dexcore 会产生 dexcore.trades 等主题
	TopicPrefix string `mapstructure:"topic_prefix"`
	// 最大重试次数
	MaxRetries int `mapstructure:"max_retries"`
	// 重试退避（毫秒）
	RetryBackoff int `mapstructure:"retry_backoff"`
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	// 是否启用成交归档
	Enabled bool `mapstructure:"enabled"`
	// 数据源名称
	DSN string `mapstructure:"dsn"`
	// 最大连接数
	MaxOpenConns int `mapstructure:"max_open_conns"`
	// 最大空闲连接数
	MaxIdleConns int `mapstructure:"max_idle_conns"`
}

// SequencerConfig 定序核心配置
type SequencerConfig struct {
	// 手续费归集钱包，成交/提现手续费记入该钱包
	FeeWallet string `mapstructure:"fee_wallet"`
	// 查询快照的盘口深度
	SnapshotDepth int `mapstructure:"snapshot_depth"`
}

// Load 从 TOML 文件加载配置，支持 APP_ 前缀环境变量覆盖
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigFile(configPath)
	v.SetConfigType("toml")
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	v.SetEnvPrefix("APP")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

// Validate 验证配置的有效性
func (c *Config) Validate() error {
	if c.ServiceName == "" {
		return fmt.Errorf("service_name is required")
	}
	if c.Environment == "" {
		c.Environment = "dev"
	}
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.HTTP.Port)
	}
	if c.Journal.Dir == "" {
		return fmt.Errorf("journal.dir is required")
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers is required when kafka is enabled")
	}
	if c.Database.Enabled && c.Database.DSN == "" {
		return fmt.Errorf("database.dsn is required when trade archiving is enabled")
	}
	if c.Sequencer.FeeWallet == "" {
		return fmt.Errorf("sequencer.fee_wallet is required")
	}
	return nil
}

// setDefaults 设置默认值
func setDefaults(v *viper.Viper) {
	v.SetDefault("http.host", "0.0.0.0")
	v.SetDefault("http.port", 8080)
	v.SetDefault("http.read_timeout", 30)
	v.SetDefault("http.write_timeout", 30)

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.port", 9090)
	v.SetDefault("metrics.path", "/metrics")

	v.SetDefault("journal.dir", "data/journal")
	v.SetDefault("journal.fsync", true)
	v.SetDefault("journal.checkpoint_every", 10000)

	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.topic_prefix", "dexcore")
	v.SetDefault("kafka.max_retries", 3)
	v.SetDefault("kafka.retry_backoff", 100)

	v.SetDefault("database.enabled", false)
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)

	v.SetDefault("sequencer.snapshot_depth", 50)

	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "json")
	v.SetDefault("logger.output", "stdout")
	v.SetDefault("logger.file_path", "logs/sequencer.log")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 10)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)
	v.SetDefault("logger.with_caller", false)
}
