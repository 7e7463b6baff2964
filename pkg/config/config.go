// Package config 提供 TOML 配置加载、APP_ 环境变量覆盖、默认值与 schema 校验。
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config 网关配置
type Config struct {
	// 服务名称
	ServiceName string `mapstructure:"service_name"`
	// 环境：dev, staging, prod
	Environment string `mapstructure:"environment"`
	// HTTP 服务配置
	HTTP HTTPConfig `mapstructure:"http"`
	// Binance 接口配置
	Binance BinanceConfig `mapstructure:"binance"`
	// 交易决策配置（启动后不可变）
	Trading TradingConfig `mapstructure:"trading"`
	// Telegram 通知配置
	Telegram TelegramConfig `mapstructure:"telegram"`
	// Kafka 事件流配置
	Kafka KafkaConfig `mapstructure:"kafka"`
	// 日志配置
	Logger LoggerConfig `mapstructure:"logger"`
	// 指标配置
	Metrics MetricsConfig `mapstructure:"metrics"`
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

// BinanceConfig 交易所配置，凭证仅来自配置，绝不出现在请求体中
type BinanceConfig struct {
	// API Key
	APIKey string `mapstructure:"api_key"`
	// API Secret
	APISecret string `mapstructure:"api_secret"`
	// REST 基础地址（默认 USDT-M 期货测试网）
	BaseURL string `mapstructure:"base_url"`
	// 签名请求的 recvWindow（毫秒）
	RecvWindow int `mapstructure:"recv_window"`
	// 请求超时（秒）
	Timeout int `mapstructure:"timeout"`
}

// TradingConfig 交易决策配置快照
type TradingConfig struct {
	// 总仓位占钱包余额的百分比
	AllocationPct float64 `mapstructure:"allocation_pct"`
	// 单笔占总仓位的百分比
	PerTradePct float64 `mapstructure:"per_trade_pct"`
	// 默认杠杆
	DefaultLeverage int `mapstructure:"default_leverage"`
	// 杠杆策略：auto, webhook, per_symbol, default
	LeveragePolicy string `mapstructure:"leverage_policy"`
	// 每交易对杠杆，格式 "BTCUSDT:7,ETHUSDT:6"
	LeveragePerSymbol string `mapstructure:"leverage_per_symbol"`
	// 交易对白名单，CSV；为空表示不限制
	Whitelist string `mapstructure:"whitelist"`
	// 干跑模式：全局开关，true 时绝不触达交易所
	DryRun bool `mapstructure:"dry_run"`
	// 干跑模式下的模拟钱包余额（USDT）
	SimulatedBalance float64 `mapstructure:"simulated_balance"`
	// 单请求处理超时（秒）
	RequestTimeout int `mapstructure:"request_timeout"`
	// 执行历史保留条数
	HistoryRetention int `mapstructure:"history_retention"`
}

// TelegramConfig Telegram 通知配置，token 为空时禁用
type TelegramConfig struct {
	BotToken string `mapstructure:"bot_token"`
	ChatID   string `mapstructure:"chat_id"`
}

// KafkaConfig Kafka 配置，brokers 为空时禁用事件流
type KafkaConfig struct {
	Brokers      []string `mapstructure:"brokers"`
	Topic        string   `mapstructure:"topic"`
	MaxRetries   int      `mapstructure:"max_retries"`
	RetryBackoff int      `mapstructure:"retry_backoff"`
}

// LoggerConfig 日志配置
type LoggerConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	Output     string `mapstructure:"output"`
	FilePath   string `mapstructure:"file_path"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
	Compress   bool   `mapstructure:"compress"`
	WithCaller bool   `mapstructure:"with_caller"`
}

// MetricsConfig 指标配置
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Port    int    `mapstructure:"port"`
	Path    string `mapstructure:"path"`
}

// Load 从 TOML 文件加载配置，支持 APP_ 前缀环境变量覆盖（如 APP_TRADING_DRY_RUN）
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigFile(configPath)
	v.SetConfigType("toml")
	// 配置文件缺失时仅依赖环境变量与默认值
	_ = v.ReadInConfig()

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
		c.ServiceName = "gateway"
	}
	if c.Environment == "" {
		c.Environment = "dev"
	}
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.HTTP.Port)
	}
	switch strings.ToLower(c.Trading.LeveragePolicy) {
	case "auto", "webhook", "per_symbol", "default":
	default:
		return fmt.Errorf("invalid leverage_policy: %s", c.Trading.LeveragePolicy)
	}
	if c.Trading.DefaultLeverage <= 0 {
		return fmt.Errorf("default_leverage must be positive: %d", c.Trading.DefaultLeverage)
	}
	if c.Trading.AllocationPct <= 0 || c.Trading.AllocationPct > 100 {
		return fmt.Errorf("allocation_pct out of range: %v", c.Trading.AllocationPct)
	}
	if c.Trading.PerTradePct <= 0 || c.Trading.PerTradePct > 100 {
		return fmt.Errorf("per_trade_pct out of range: %v", c.Trading.PerTradePct)
	}
	if !c.Trading.DryRun && (c.Binance.APIKey == "" || c.Binance.APISecret == "") {
		return fmt.Errorf("binance credentials are required when dry_run is disabled")
	}
	return nil
}

// WhitelistSymbols 解析白名单 CSV，统一大写；为空返回 nil（允许所有交易对）
func (t TradingConfig) WhitelistSymbols() []string {
	raw := strings.TrimSpace(t.Whitelist)
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if s := strings.ToUpper(strings.TrimSpace(part)); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// LeverageMap 解析 "SYM:lev,SYM:lev" 形式的每交易对杠杆配置，非法条目跳过
func (t TradingConfig) LeverageMap() map[string]int {
	m := make(map[string]int)
	for _, part := range strings.Split(t.LeveragePerSymbol, ",") {
		pt := strings.TrimSpace(part)
		if pt == "" {
			continue
		}
		k, v, ok := strings.Cut(pt, ":")
		if !ok {
			continue
		}
		var lev int
		if _, err := fmt.Sscanf(strings.TrimSpace(v), "%d", &lev); err != nil || lev <= 0 {
			continue
		}
		m[strings.ToUpper(strings.TrimSpace(k))] = lev
	}
	return m
}

// setDefaults 设置默认值
func setDefaults(v *viper.Viper) {
	v.SetDefault("service_name", "gateway")
	v.SetDefault("environment", "dev")

	v.SetDefault("http.host", "0.0.0.0")
	v.SetDefault("http.port", 8000)
	v.SetDefault("http.read_timeout", 30)
	v.SetDefault("http.write_timeout", 30)

	v.SetDefault("binance.base_url", "https://testnet.binancefuture.com")
	v.SetDefault("binance.recv_window", 10000)
	v.SetDefault("binance.timeout", 20)

	v.SetDefault("trading.allocation_pct", 50.0)
	v.SetDefault("trading.per_trade_pct", 10.0)
	v.SetDefault("trading.default_leverage", 5)
	v.SetDefault("trading.leverage_policy", "auto")
	v.SetDefault("trading.whitelist", "BTCUSDT,ETHUSDT")
	v.SetDefault("trading.dry_run", true)
	v.SetDefault("trading.simulated_balance", 100000.0)
	v.SetDefault("trading.request_timeout", 30)
	v.SetDefault("trading.history_retention", 200)

	v.SetDefault("kafka.topic", "gateway.executions")
	v.SetDefault("kafka.max_retries", 3)
	v.SetDefault("kafka.retry_backoff", 100)

	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "json")
	v.SetDefault("logger.output", "stdout")
	v.SetDefault("logger.file_path", "logs/gateway.log")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 10)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.port", 9090)
	v.SetDefault("metrics.path", "/metrics")
}
