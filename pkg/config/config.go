package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// VenueConfig 交易所会话配置
type VenueConfig struct {
	Host         string // 会话网关主机
	Port         int    // 会话端口（websocket）
	RestPort     int    // REST 侧信道端口（登录握手/账户摘要）
	SessionID    int32  // 本实例的会话/客户端 ID（用于过滤跨会话回调）
	FirstOrderID int64  // 交易所订单 ID 计数器种子
}

// LogConfig 日志配置
type LogConfig struct {
	Level      string // 日志级别
	File       string // 日志文件路径（可选）
	MaxSize    int    // 单文件最大大小（MB）
	MaxBackups int    // 保留旧文件数
	MaxAge     int    // 保留天数
	Compress   bool   // 是否压缩旧文件
}

// WatchdogConfig watchdog 配置
type WatchdogConfig struct {
	Anchor          string // 每日锚点墙钟时刻（如开盘 "09:30:00"）
	ShortIntervalS  int    // 锚点窄窗口内的轮询间隔（秒）
	MediumIntervalS int    // 常规轮询间隔（秒）
	LongIntervalS   int    // 远离锚点后的轮询间隔（秒）
}

// SecretsConfig 凭证存储配置
type SecretsConfig struct {
	StorePath string // badger 凭证库路径（可选，为空则只用环境变量）
}

// Config 应用配置
type Config struct {
	Venue    VenueConfig
	Log      LogConfig
	Watchdog WatchdogConfig
	Secrets  SecretsConfig
}

// configFile 配置文件结构（用于 YAML/JSON 解析）
type configFile struct {
	Venue struct {
		Host         string `yaml:"host" json:"host"`
		Port         int    `yaml:"port" json:"port"`
		RestPort     int    `yaml:"rest_port" json:"rest_port"`
		SessionID    int32  `yaml:"session_id" json:"session_id"`
		FirstOrderID int64  `yaml:"first_order_id" json:"first_order_id"`
	} `yaml:"venue" json:"venue"`
	Log struct {
		Level      string `yaml:"level" json:"level"`
		File       string `yaml:"file" json:"file"`
		MaxSize    int    `yaml:"max_size" json:"max_size"`
		MaxBackups int    `yaml:"max_backups" json:"max_backups"`
		MaxAge     int    `yaml:"max_age" json:"max_age"`
		Compress   bool   `yaml:"compress" json:"compress"`
	} `yaml:"log" json:"log"`
	Watchdog struct {
		Anchor          string `yaml:"anchor" json:"anchor"`
		ShortIntervalS  int    `yaml:"short_interval_s" json:"short_interval_s"`
		MediumIntervalS int    `yaml:"medium_interval_s" json:"medium_interval_s"`
		LongIntervalS   int    `yaml:"long_interval_s" json:"long_interval_s"`
	} `yaml:"watchdog" json:"watchdog"`
	Secrets struct {
		StorePath string `yaml:"store_path" json:"store_path"`
	} `yaml:"secrets" json:"secrets"`
}

// LoadFromFile 从指定文件加载配置
// 优先级：配置文件 > 环境变量 > 默认值。filePath 为空时只用环境变量。
func LoadFromFile(filePath string) (*Config, error) {
	var cf *configFile
	if filePath != "" {
		var err error
		cf, err = loadConfigFile(filePath)
		if err != nil {
			return nil, fmt.Errorf("加载配置文件失败 %s: %w", filePath, err)
		}
	}

	cfg := &Config{
		Venue: VenueConfig{
			Host: getValueFromSources(cf != nil && cf.Venue.Host != "",
				safeString(cf, func(c *configFile) string { return c.Venue.Host }),
				getEnv("VENUE_HOST", "127.0.0.1")),
			Port: getIntFromSources(cf != nil && cf.Venue.Port > 0,
				safeInt(cf, func(c *configFile) int { return c.Venue.Port }),
				parseIntEnv("VENUE_PORT", 7496)),
			RestPort: getIntFromSources(cf != nil && cf.Venue.RestPort > 0,
				safeInt(cf, func(c *configFile) int { return c.Venue.RestPort }),
				parseIntEnv("VENUE_REST_PORT", 7497)),
			SessionID: int32(getIntFromSources(cf != nil && cf.Venue.SessionID > 0,
				safeInt(cf, func(c *configFile) int { return int(c.Venue.SessionID) }),
				parseIntEnv("VENUE_SESSION_ID", 1))),
			FirstOrderID: int64(getIntFromSources(cf != nil && cf.Venue.FirstOrderID > 0,
				safeInt(cf, func(c *configFile) int { return int(c.Venue.FirstOrderID) }),
				parseIntEnv("VENUE_FIRST_ORDER_ID", 1))),
		},
		Log: LogConfig{
			Level: getValueFromSources(cf != nil && cf.Log.Level != "",
				safeString(cf, func(c *configFile) string { return c.Log.Level }),
				getEnv("LOG_LEVEL", "info")),
			File: getValueFromSources(cf != nil && cf.Log.File != "",
				safeString(cf, func(c *configFile) string { return c.Log.File }),
				getEnv("LOG_FILE", "")),
			MaxSize: getIntFromSources(cf != nil && cf.Log.MaxSize > 0,
				safeInt(cf, func(c *configFile) int { return c.Log.MaxSize }),
				parseIntEnv("LOG_MAX_SIZE", 100)),
			MaxBackups: getIntFromSources(cf != nil && cf.Log.MaxBackups > 0,
				safeInt(cf, func(c *configFile) int { return c.Log.MaxBackups }),
				parseIntEnv("LOG_MAX_BACKUPS", 5)),
			MaxAge: getIntFromSources(cf != nil && cf.Log.MaxAge > 0,
				safeInt(cf, func(c *configFile) int { return c.Log.MaxAge }),
				parseIntEnv("LOG_MAX_AGE", 14)),
			Compress: cf != nil && cf.Log.Compress,
		},
		Watchdog: WatchdogConfig{
			Anchor: getValueFromSources(cf != nil && cf.Watchdog.Anchor != "",
				safeString(cf, func(c *configFile) string { return c.Watchdog.Anchor }),
				getEnv("WATCHDOG_ANCHOR", "09:30:00")),
			ShortIntervalS: getIntFromSources(cf != nil && cf.Watchdog.ShortIntervalS > 0,
				safeInt(cf, func(c *configFile) int { return c.Watchdog.ShortIntervalS }),
				parseIntEnv("WATCHDOG_SHORT_INTERVAL_S", 2)),
			MediumIntervalS: getIntFromSources(cf != nil && cf.Watchdog.MediumIntervalS > 0,
				safeInt(cf, func(c *configFile) int { return c.Watchdog.MediumIntervalS }),
				parseIntEnv("WATCHDOG_MEDIUM_INTERVAL_S", 30)),
			LongIntervalS: getIntFromSources(cf != nil && cf.Watchdog.LongIntervalS > 0,
				safeInt(cf, func(c *configFile) int { return c.Watchdog.LongIntervalS }),
				parseIntEnv("WATCHDOG_LONG_INTERVAL_S", 300)),
		},
		Secrets: SecretsConfig{
			StorePath: getValueFromSources(cf != nil && cf.Secrets.StorePath != "",
				safeString(cf, func(c *configFile) string { return c.Secrets.StorePath }),
				getEnv("SECRETS_STORE_PATH", "")),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("配置验证失败: %w", err)
	}
	return cfg, nil
}

// Validate 验证配置
func (c *Config) Validate() error {
	if c.Venue.Host == "" {
		return fmt.Errorf("VENUE_HOST 未配置")
	}
	if c.Venue.Port <= 0 || c.Venue.Port > 65535 {
		return fmt.Errorf("VENUE_PORT 非法: %d", c.Venue.Port)
	}
	if c.Venue.SessionID <= 0 {
		// session id 0 保留给共享连接池上的「无主」回调，不允许真实实例使用
		return fmt.Errorf("VENUE_SESSION_ID 必须大于 0")
	}
	if c.Watchdog.ShortIntervalS >= c.Watchdog.MediumIntervalS ||
		c.Watchdog.MediumIntervalS >= c.Watchdog.LongIntervalS {
		return fmt.Errorf("watchdog 间隔必须满足 short < medium < long")
	}
	return nil
}

// loadConfigFile 加载配置文件（支持 YAML 和 JSON）
func loadConfigFile(filePath string) (*configFile, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	var cf configFile
	ext := strings.ToLower(filepath.Ext(filePath))

	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &cf); err != nil {
			return nil, fmt.Errorf("解析 YAML 配置文件失败: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, &cf); err != nil {
			return nil, fmt.Errorf("解析 JSON 配置文件失败: %w", err)
		}
	default:
		return nil, fmt.Errorf("不支持的配置文件格式: %s (支持 .yaml, .yml, .json)", ext)
	}

	return &cf, nil
}

// getValueFromSources 从多个源获取字符串值（优先级：配置文件 > 环境变量/默认值）
func getValueFromSources(hasConfigValue bool, configValue, envValue string) string {
	if hasConfigValue && configValue != "" {
		return configValue
	}
	return envValue
}

// getIntFromSources 从多个源获取整数值
func getIntFromSources(hasConfigValue bool, configValue, envValue int) int {
	if hasConfigValue {
		return configValue
	}
	return envValue
}

// safeString 安全地读取配置文件字符串字段
func safeString(cf *configFile, getter func(*configFile) string) string {
	if cf == nil {
		return ""
	}
	return getter(cf)
}

// safeInt 安全地读取配置文件整数字段
func safeInt(cf *configFile, getter func(*configFile) int) int {
	if cf == nil {
		return 0
	}
	return getter(cf)
}

// getEnv 获取环境变量，如果不存在则返回默认值
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// parseIntEnv 解析整数环境变量
func parseIntEnv(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return parsed
}
