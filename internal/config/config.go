package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config 应用程序配置结构
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	OCPP     OCPPConfig     `mapstructure:"ocpp"`
	Influx   InfluxConfig   `mapstructure:"influx"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Kafka    KafkaConfig    `mapstructure:"kafka"`
	Log      LogConfig      `mapstructure:"log"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	MountPath       string        `mapstructure:"mount_path"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// OCPPConfig OCPP协议配置
type OCPPConfig struct {
	CallTimeout       time.Duration `mapstructure:"call_timeout"`        // 下行RPC默认超时
	ReportTimeout     time.Duration `mapstructure:"report_timeout"`      // NotifyReport聚合等待上限
	MaxMessageSize    int64         `mapstructure:"max_message_size"`
	HeartbeatInterval int           `mapstructure:"heartbeat_interval"`  // BootNotification应答中的interval
}

// InfluxConfig InfluxDB配置（时序落盘）
type InfluxConfig struct {
	URL    string `mapstructure:"url"`
	Token  string `mapstructure:"token"`
	Org    string `mapstructure:"org"`
	Bucket string `mapstructure:"bucket"`
}

// RedisConfig Redis配置（设置持久化）
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// KafkaConfig Kafka配置（事件外发，可选）
type KafkaConfig struct {
	Brokers       []string `mapstructure:"brokers"`
	UpstreamTopic string   `mapstructure:"upstream_topic"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
	Async  bool   `mapstructure:"async"`
}

// MetricsConfig 监控指标配置
type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

// Load 加载配置：默认值 + 环境变量覆盖
func Load() (*Config, error) {
	v := viper.New()

	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.mount_path", "/api")
	v.SetDefault("server.read_timeout", 60*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)

	v.SetDefault("ocpp.call_timeout", 30*time.Second)
	v.SetDefault("ocpp.report_timeout", 10*time.Second)
	v.SetDefault("ocpp.max_message_size", int64(1024*1024))
	v.SetDefault("ocpp.heartbeat_interval", 10)

	v.SetDefault("influx.url", "http://localhost:8086")
	v.SetDefault("influx.token", "my-token")
	v.SetDefault("influx.org", "v2x_org")
	v.SetDefault("influx.bucket", "v2x_bucket")

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("kafka.brokers", []string{})
	v.SetDefault("kafka.upstream_topic", "csms-events")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("log.output", "stdout")
	v.SetDefault("log.async", false)

	v.SetDefault("metrics.addr", ":9100")

	// INFLUX_URL、REDIS_ADDR 等环境变量直接覆盖对应配置项
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}
	return &cfg, nil
}

// GetServerAddr 获取服务器地址
func (c *Config) GetServerAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// GetMetricsAddr 获取监控地址
func (c *Config) GetMetricsAddr() string {
	return c.Metrics.Addr
}

// KafkaEnabled Kafka事件外发是否启用
func (c *Config) KafkaEnabled() bool {
	return len(c.Kafka.Brokers) > 0
}
