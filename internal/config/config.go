package config

import (
	"fmt"
	"strings"
	"time"
	_ "time/tzdata" // 容器镜像可能没有时区数据

	"github.com/spf13/viper"
)

// Config 全局配置结构
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	MySQL     MySQLConfig     `mapstructure:"mysql"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Kafka     KafkaConfig     `mapstructure:"kafka"`
	Invoicing InvoicingConfig `mapstructure:"invoicing"`
	Outbox    OutboxConfig    `mapstructure:"outbox"`
	Audit     AuditConfig     `mapstructure:"audit"`
	Log       LogConfig       `mapstructure:"log"`
}

type ServerConfig struct {
	Port int    `mapstructure:"port"`
	Mode     string `mapstructure:"mode"`      // gin 模式：debug / release / test
	WorkerID int64  `mapstructure:"worker_id"` // 雪花算法机器号，多实例部署时必须不同
}

type MySQLConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	User         string `mapstructure:"user"`
	Password     string `mapstructure:"password"`
	Database     string `mapstructure:"database"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
	LogLevel     string `mapstructure:"log_level"` // silent / error / warn / info
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type KafkaConfig struct {
	Brokers []string         `mapstructure:"brokers"`
	Topic   KafkaTopicConfig `mapstructure:"topic"`
}

type KafkaTopicConfig struct {
	InvoiceDocument string `mapstructure:"invoice_document"`
}

// InvoicingConfig 开票相关配置
type InvoicingConfig struct {
	TimeZone           string `mapstructure:"time_zone"`
	Locale             string `mapstructure:"locale"`
	ReferencePattern   string `mapstructure:"reference_pattern"`    // setting 表没有配置时使用
	OrderNumberPattern string `mapstructure:"order_number_pattern"` // 同上
	FootprintSecret    string `mapstructure:"footprint_secret"`     // 为空时使用 SHA-256，否则 HMAC-SHA256
	ChainLockSeconds   int    `mapstructure:"chain_lock_seconds"`
}

type OutboxConfig struct {
	IntervalMs    int `mapstructure:"interval_ms"`
	BatchSize     int `mapstructure:"batch_size"`
	MaxRetryCount int `mapstructure:"max_retry_count"`
}

type AuditConfig struct {
	IntervalSeconds int `mapstructure:"interval_seconds"`
	BatchSize       int `mapstructure:"batch_size"`
}

type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"` // json / console
	Output     string `mapstructure:"output"` // stdout / stderr / 文件路径
	TimeFormat string `mapstructure:"time_format"`
}

// Location 解析配置的时区，为空时使用 UTC
func (c *InvoicingConfig) Location() (*time.Location, error) {
	if c.TimeZone == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(c.TimeZone)
	if err != nil {
		return nil, fmt.Errorf("无效的时区 %q: %w", c.TimeZone, err)
	}
	return loc, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.worker_id", 1)

	v.SetDefault("mysql.host", "127.0.0.1")
	v.SetDefault("mysql.port", 3306)
	v.SetDefault("mysql.max_open_conns", 50)
	v.SetDefault("mysql.max_idle_conns", 10)
	v.SetDefault("mysql.log_level", "warn")

	v.SetDefault("redis.host", "127.0.0.1")
	v.SetDefault("redis.port", 6379)

	v.SetDefault("kafka.brokers", []string{"127.0.0.1:9092"})
	v.SetDefault("kafka.topic.invoice_document", "invoice_document")

	v.SetDefault("invoicing.time_zone", "UTC")
	v.SetDefault("invoicing.locale", "en")
	v.SetDefault("invoicing.reference_pattern", "YYMMmmmX[/VL]R[/A]")
	v.SetDefault("invoicing.order_number_pattern", "yyyymmmm-MM-YY")
	v.SetDefault("invoicing.chain_lock_seconds", 10)

	v.SetDefault("outbox.interval_ms", 100)
	v.SetDefault("outbox.batch_size", 100)
	v.SetDefault("outbox.max_retry_count", 5)

	v.SetDefault("audit.interval_seconds", 3600)
	v.SetDefault("audit.batch_size", 500)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.output", "stdout")
	v.SetDefault("log.time_format", "2006-01-02T15:04:05.000Z07:00")
}

// LoadConfig 加载配置文件
// 环境变量优先，前缀 INVOICING_，例如 INVOICING_MYSQL_HOST
// configPath 为空时只使用默认值和环境变量
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("INVOICING")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("读取配置文件失败: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("解析配置文件失败: %w", err)
	}

	if _, err := cfg.Invoicing.Location(); err != nil {
		return nil, err
	}
	return cfg, nil
}
