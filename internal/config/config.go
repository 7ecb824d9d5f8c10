package config

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Config 全局配置结构体
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	WebSocket WebSocketConfig `mapstructure:"websocket"`
	Hardware  HardwareConfig  `mapstructure:"hardware"`
	Payment   PaymentConfig   `mapstructure:"payment"`
	MQTT      MQTTConfig      `mapstructure:"mqtt"`
	Log       LogConfig       `mapstructure:"log"`
	Monitor   MonitorConfig   `mapstructure:"monitor"`
	Security  SecurityConfig  `mapstructure:"security"`
	System    SystemConfig    `mapstructure:"system"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	Mode            string        `mapstructure:"mode"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"`
	DSN             string        `mapstructure:"dsn"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	LogLevel        string        `mapstructure:"log_level"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
}

// WebSocketConfig WebSocket配置
type WebSocketConfig struct {
	Path              string        `mapstructure:"path"`
	ReadBufferSize    int           `mapstructure:"read_buffer_size"`
	WriteBufferSize   int           `mapstructure:"write_buffer_size"`
	MaxMessageSize    int64         `mapstructure:"max_message_size"`
	PingInterval      time.Duration `mapstructure:"ping_interval"`
	PongTimeout       time.Duration `mapstructure:"pong_timeout"`
	WriteTimeout      time.Duration `mapstructure:"write_timeout"`
	EnableCompression bool          `mapstructure:"enable_compression"`
}

// HardwareConfig 出货控制板配置
type HardwareConfig struct {
	Enabled        bool            `mapstructure:"enabled"`
	MockMode       bool            `mapstructure:"mock_mode"` // 调试模式（使用模拟串口）
	Port           string          `mapstructure:"port"`
	BaudRate       int             `mapstructure:"baud_rate"`
	DataBits       int             `mapstructure:"data_bits"`
	StopBits       int             `mapstructure:"stop_bits"`
	Parity         string          `mapstructure:"parity"`
	ReadTimeout    time.Duration   `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration   `mapstructure:"write_timeout"`
	CommandTimeout time.Duration   `mapstructure:"command_timeout"` // 请求响应默认超时
	EventBuffer    int             `mapstructure:"event_buffer"`
	Reconnect      ReconnectConfig `mapstructure:"reconnect"`
}

// ReconnectConfig 断线重连配置
type ReconnectConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	Interval    time.Duration `mapstructure:"interval"`
	MaxInterval time.Duration `mapstructure:"max_interval"`
	MaxRetries  int           `mapstructure:"max_retries"` // 0表示无限重试
}

// PaymentConfig 支付配置
type PaymentConfig struct {
	Card CardConfig `mapstructure:"card"`
	QR   QRConfig   `mapstructure:"qr"`
	Cash CashConfig `mapstructure:"cash"`
}

// CardConfig 卡支付终端（VAN串口终端）配置
type CardConfig struct {
	Enabled       bool          `mapstructure:"enabled"`
	MockMode      bool          `mapstructure:"mock_mode"`
	Port          string        `mapstructure:"port"`
	BaudRate      int           `mapstructure:"baud_rate"`
	DataBits      int           `mapstructure:"data_bits"`
	StopBits      int           `mapstructure:"stop_bits"`
	Parity        string        `mapstructure:"parity"`
	ReadTimeout   time.Duration `mapstructure:"read_timeout"`
	Timeout       time.Duration `mapstructure:"timeout"`        // 支付响应超时
	CancelTimeout time.Duration `mapstructure:"cancel_timeout"` // 取消响应超时
}

// QRConfig 二维码支付网关配置
type QRConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	BaseURL string        `mapstructure:"base_url"`
	APIKey  string        `mapstructure:"api_key"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// CashConfig 现金支付模块配置
type CashConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	MockMode        bool          `mapstructure:"mock_mode"`
	SocketPath      string        `mapstructure:"socket_path"` // 现金模块IPC套接字
	WaitTimeout     time.Duration `mapstructure:"wait_timeout"`
	DispenseTimeout time.Duration `mapstructure:"dispense_timeout"`
}

// MQTTConfig MQTT配置
type MQTTConfig struct {
	Enabled              bool          `mapstructure:"enabled"`
	Broker               string        `mapstructure:"broker"`
	ClientID             string        `mapstructure:"client_id"`
	Username             string        `mapstructure:"username"`
	Password             string        `mapstructure:"password"`
	QoS                  byte          `mapstructure:"qos"`
	Retained             bool          `mapstructure:"retained"`
	CleanSession         bool          `mapstructure:"clean_session"`
	AutoReconnect        bool          `mapstructure:"auto_reconnect"`
	MaxReconnectInterval time.Duration `mapstructure:"max_reconnect_interval"`
	KeepAlive            time.Duration `mapstructure:"keep_alive"`
	PingTimeout          time.Duration `mapstructure:"ping_timeout"`
	StatusInterval       time.Duration `mapstructure:"status_interval"` // 状态快照上报周期
	Topics               MQTTTopics    `mapstructure:"topics"`
}

// MQTTTopics MQTT主题配置
type MQTTTopics struct {
	Status  string `mapstructure:"status"`
	Event   string `mapstructure:"event"`
	Payment string `mapstructure:"payment"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level   string            `mapstructure:"level"`
	Format  string            `mapstructure:"format"`
	Output  string            `mapstructure:"output"`
	File    LogFileConfig     `mapstructure:"file"`
	Modules map[string]string `mapstructure:"modules"`
}

// LogFileConfig 日志文件配置
type LogFileConfig struct {
	Path       string `mapstructure:"path"`
	Filename   string `mapstructure:"filename"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxAge     int    `mapstructure:"max_age"`
	MaxBackups int    `mapstructure:"max_backups"`
	Compress   bool   `mapstructure:"compress"`
}

// MonitorConfig 监控配置
type MonitorConfig struct {
	Enabled             bool          `mapstructure:"enabled"`
	MetricsInterval     time.Duration `mapstructure:"metrics_interval"`
	HealthCheckInterval time.Duration `mapstructure:"health_check_interval"`
}

// SecurityConfig 安全配置
type SecurityConfig struct {
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	JWT       JWTConfig       `mapstructure:"jwt"`
}

// RateLimitConfig 限流配置
type RateLimitConfig struct {
	Enabled           bool `mapstructure:"enabled"`
	RequestsPerMinute int  `mapstructure:"requests_per_minute"`
	Burst             int  `mapstructure:"burst"`
}

// JWTConfig JWT配置
type JWTConfig struct {
	Secret       string `mapstructure:"secret"`
	ExpireHours  int    `mapstructure:"expire_hours"`
	RefreshHours int    `mapstructure:"refresh_hours"`
}

// SystemConfig 系统配置
type SystemConfig struct {
	Timezone string `mapstructure:"timezone"`
	MaxProcs int    `mapstructure:"max_procs"`
	KioskID  string `mapstructure:"kiosk_id"` // 设备编号（上报和日志使用）
}

var (
	cfg  *Config
	once sync.Once
	mu   sync.RWMutex
	v    *viper.Viper
)

// Init 初始化配置
func Init(configPath string) error {
	var err error
	once.Do(func() {
		v = viper.New()

		// 设置配置文件路径
		if configPath != "" {
			v.SetConfigFile(configPath)
		} else {
			v.SetConfigName("config")
			v.SetConfigType("yaml")
			v.AddConfigPath("./config")
			v.AddConfigPath(".")
		}

		// 设置环境变量前缀
		v.SetEnvPrefix("KIOSK")
		v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
		v.AutomaticEnv()

		// 设置默认值
		setDefaults(v)

		// 读取配置文件
		if err = v.ReadInConfig(); err != nil {
			// 如果配置文件不存在，使用默认配置
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return
			}
			err = nil
		}

		// 解析配置到结构体
		cfg = &Config{}
		if err = v.Unmarshal(cfg); err != nil {
			return
		}

		// 替换MQTT主题中的变量
		replaceMQTTTopics()
	})

	return err
}

// setDefaults 设置默认配置值
func setDefaults(v *viper.Viper) {
	// 服务器默认配置
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "development")
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.shutdown_timeout", "10s")

	// 数据库默认配置
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "./data/kiosk.db")
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.max_open_conns", 20)
	v.SetDefault("database.conn_max_lifetime", "1h")
	// 设备日志持续批量写库，info级别的SQL日志会刷屏
	v.SetDefault("database.log_level", "warn")
	v.SetDefault("database.auto_migrate", true)

	// WebSocket默认配置
	v.SetDefault("websocket.path", "/ws")
	v.SetDefault("websocket.read_buffer_size", 1024)
	v.SetDefault("websocket.write_buffer_size", 1024)
	v.SetDefault("websocket.max_message_size", 8192)
	v.SetDefault("websocket.ping_interval", "30s")
	v.SetDefault("websocket.pong_timeout", "60s")
	v.SetDefault("websocket.write_timeout", "10s")
	v.SetDefault("websocket.enable_compression", true)

	// 硬件默认配置
	v.SetDefault("hardware.enabled", true)
	v.SetDefault("hardware.mock_mode", false)
	v.SetDefault("hardware.port", "/dev/ttyUSB0")
	v.SetDefault("hardware.baud_rate", 9600)
	v.SetDefault("hardware.data_bits", 8)
	v.SetDefault("hardware.stop_bits", 1)
	v.SetDefault("hardware.parity", "none")
	v.SetDefault("hardware.read_timeout", "100ms")
	v.SetDefault("hardware.write_timeout", "1s")
	v.SetDefault("hardware.command_timeout", "5s")
	v.SetDefault("hardware.event_buffer", 128)
	v.SetDefault("hardware.reconnect.enabled", false)
	v.SetDefault("hardware.reconnect.interval", "3s")
	v.SetDefault("hardware.reconnect.max_interval", "30s")
	v.SetDefault("hardware.reconnect.max_retries", 0)

	// 支付默认配置
	v.SetDefault("payment.card.enabled", true)
	v.SetDefault("payment.card.mock_mode", false)
	v.SetDefault("payment.card.port", "/dev/ttyS1")
	v.SetDefault("payment.card.baud_rate", 115200)
	v.SetDefault("payment.card.data_bits", 8)
	v.SetDefault("payment.card.stop_bits", 1)
	v.SetDefault("payment.card.parity", "none")
	v.SetDefault("payment.card.read_timeout", "100ms")
	v.SetDefault("payment.card.timeout", "30s")
	v.SetDefault("payment.card.cancel_timeout", "10s")
	v.SetDefault("payment.qr.enabled", true)
	v.SetDefault("payment.qr.base_url", "http://127.0.0.1:9100")
	v.SetDefault("payment.qr.timeout", "10s")
	v.SetDefault("payment.cash.enabled", true)
	v.SetDefault("payment.cash.mock_mode", false)
	v.SetDefault("payment.cash.socket_path", "/tmp/cash-module.sock")
	v.SetDefault("payment.cash.wait_timeout", "60s")
	v.SetDefault("payment.cash.dispense_timeout", "15s")

	// MQTT默认配置
	v.SetDefault("mqtt.enabled", false)
	v.SetDefault("mqtt.broker", "tcp://127.0.0.1:1883")
	v.SetDefault("mqtt.client_id", "beautibox-kiosk")
	v.SetDefault("mqtt.qos", 0)
	v.SetDefault("mqtt.auto_reconnect", true)
	v.SetDefault("mqtt.max_reconnect_interval", "30s")
	v.SetDefault("mqtt.keep_alive", "60s")
	v.SetDefault("mqtt.ping_timeout", "10s")
	v.SetDefault("mqtt.status_interval", "30s")
	v.SetDefault("mqtt.topics.status", "beautibox/{client_id}/status")
	v.SetDefault("mqtt.topics.event", "beautibox/{client_id}/event")
	v.SetDefault("mqtt.topics.payment", "beautibox/{client_id}/payment")

	// 日志默认配置
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.output", "both")
	v.SetDefault("log.file.path", "./logs")
	v.SetDefault("log.file.filename", "kiosk.log")
	v.SetDefault("log.file.max_size", 100)
	v.SetDefault("log.file.max_age", 30)
	v.SetDefault("log.file.max_backups", 7)
	v.SetDefault("log.file.compress", true)

	// 监控默认配置
	v.SetDefault("monitor.enabled", true)
	v.SetDefault("monitor.metrics_interval", "30s")
	v.SetDefault("monitor.health_check_interval", "60s")

	// 系统默认配置
	v.SetDefault("system.timezone", "Asia/Seoul")
	v.SetDefault("system.kiosk_id", "sub001")
}

// replaceMQTTTopics 替换MQTT主题中的变量
func replaceMQTTTopics() {
	if cfg == nil || !cfg.MQTT.Enabled {
		return
	}

	clientID := cfg.MQTT.ClientID
	cfg.MQTT.Topics.Status = strings.ReplaceAll(cfg.MQTT.Topics.Status, "{client_id}", clientID)
	cfg.MQTT.Topics.Event = strings.ReplaceAll(cfg.MQTT.Topics.Event, "{client_id}", clientID)
	cfg.MQTT.Topics.Payment = strings.ReplaceAll(cfg.MQTT.Topics.Payment, "{client_id}", clientID)
}

// Get 获取配置实例
func Get() *Config {
	mu.RLock()
	defer mu.RUnlock()
	return cfg
}

// Watch 监听配置文件变化
func Watch(callback func(*Config)) {
	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		mu.Lock()
		defer mu.Unlock()

		newCfg := &Config{}
		if err := v.Unmarshal(newCfg); err != nil {
			fmt.Printf("配置重载失败: %v\n", err)
			return
		}

		cfg = newCfg
		replaceMQTTTopics()

		if callback != nil {
			callback(cfg)
		}

		fmt.Println("配置已重新加载")
	})
}

// GetString 获取字符串配置
func GetString(key string) string {
	return v.GetString(key)
}

// GetInt 获取整数配置
func GetInt(key string) int {
	return v.GetInt(key)
}

// GetBool 获取布尔配置
func GetBool(key string) bool {
	return v.GetBool(key)
}

// GetDuration 获取时间间隔配置
func GetDuration(key string) time.Duration {
	return v.GetDuration(key)
}

// ConfigFileUsed 实际加载的配置文件路径，未找到文件时为空
func ConfigFileUsed() string {
	if v == nil {
		return ""
	}
	return v.ConfigFileUsed()
}

// IsSet 检查配置项是否存在
func IsSet(key string) bool {
	return v.IsSet(key)
}

// Set 动态设置配置值
func Set(key string, value interface{}) {
	v.Set(key, value)
}
