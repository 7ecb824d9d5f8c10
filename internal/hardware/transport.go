package hardware

import (
	"io"
	"time"

	"github.com/tarm/serial"

	"github.com/jimeKim/cvm-beautibox-kiosk-sub001/internal/errors"
)

// SerialPort 串口抽象接口（便于测试与模拟模式注入）
type SerialPort interface {
	io.ReadWriteCloser
	Flush() error
}

// Config 出货控制板串口配置
type Config struct {
	Port           string        // 串口设备路径，如 /dev/ttyUSB0
	BaudRate       int           // 波特率
	DataBits       int           // 数据位
	StopBits       int           // 停止位
	Parity         string        // 校验位 none/odd/even
	ReadTimeout    time.Duration // 读超时（决定 readLoop 的唤醒频率）
	WriteTimeout   time.Duration // 写超时
	CommandTimeout time.Duration // 命令等待响应超时
	EventBuffer    int           // 事件通道缓冲大小
}

// withDefaults 填充零值字段的默认配置
func (c Config) withDefaults() Config {
	if c.Port == "" {
		c.Port = "/dev/ttyUSB0"
	}
	if c.BaudRate <= 0 {
		c.BaudRate = 9600
	}
	if c.DataBits <= 0 {
		c.DataBits = 8
	}
	if c.StopBits <= 0 {
		c.StopBits = 1
	}
	if c.Parity == "" {
		c.Parity = "none"
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = 100 * time.Millisecond
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 1 * time.Second
	}
	if c.CommandTimeout <= 0 {
		c.CommandTimeout = 3 * time.Second
	}
	if c.EventBuffer <= 0 {
		c.EventBuffer = 256
	}
	return c
}

// OpenSerial 按配置打开真实串口
func OpenSerial(cfg Config) (SerialPort, error) {
	cfg = cfg.withDefaults()

	serialCfg := &serial.Config{
		Name:        cfg.Port,
		Baud:        cfg.BaudRate,
		Size:        byte(cfg.DataBits),
		ReadTimeout: cfg.ReadTimeout,
	}

	switch cfg.Parity {
	case "odd":
		serialCfg.Parity = serial.ParityOdd
	case "even":
		serialCfg.Parity = serial.ParityEven
	default:
		serialCfg.Parity = serial.ParityNone
	}

	switch cfg.StopBits {
	case 2:
		serialCfg.StopBits = serial.Stop2
	default:
		serialCfg.StopBits = serial.Stop1
	}

	port, err := serial.OpenPort(serialCfg)
	if err != nil {
		return nil, errors.Wrapf(err, errors.ErrSerialPortOpen, "打开串口失败: %s", cfg.Port)
	}

	return port, nil
}
