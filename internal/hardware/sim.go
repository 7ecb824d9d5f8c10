package hardware

import (
	"fmt"
	"math/rand"
	"strconv"
	"strings"
	"sync"
	"time"
)

var errSimClosed = fmt.Errorf("sim serial: port closed")

// SimPort 模拟出货控制板固件（mock_mode）
// 回应状态探测、按钮与输出命令，并周期性推送感应距离
type SimPort struct {
	mu       sync.Mutex
	closed   bool
	rx       []byte
	distance float64
	detected bool
	version  string
	rand     *rand.Rand

	dataCh chan struct{}
	stopCh chan struct{}
}

// NewSimPort 创建模拟串口，sensorInterval 为感应推送周期
func NewSimPort(sensorInterval time.Duration) *SimPort {
	if sensorInterval <= 0 {
		sensorInterval = 2 * time.Second
	}

	p := &SimPort{
		distance: 80,
		version:  "SIM-1.2.0",
		rand:     rand.New(rand.NewSource(time.Now().UnixNano())),
		dataCh:   make(chan struct{}, 1),
		stopCh:   make(chan struct{}),
	}
	go p.sensorLoop(sensorInterval)
	return p
}

// SimOpener 返回模拟串口的打开函数，配置 mock_mode 时注入控制器
func SimOpener(sensorInterval time.Duration) func(Config) (SerialPort, error) {
	return func(Config) (SerialPort, error) {
		return NewSimPort(sensorInterval), nil
	}
}

func (p *SimPort) Read(buf []byte) (int, error) {
	for {
		p.mu.Lock()
		if len(p.rx) > 0 {
			n := copy(buf, p.rx)
			p.rx = p.rx[n:]
			p.mu.Unlock()
			return n, nil
		}
		closed := p.closed
		p.mu.Unlock()

		if closed {
			return 0, errSimClosed
		}

		select {
		case <-p.dataCh:
		case <-p.stopCh:
			// 下一轮循环返回关闭错误
		case <-time.After(100 * time.Millisecond):
			return 0, nil
		}
	}
}

func (p *SimPort) Write(data []byte) (int, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return 0, errSimClosed
	}
	p.mu.Unlock()

	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		p.handleCommand(line)
	}
	return len(data), nil
}

func (p *SimPort) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	close(p.stopCh)
	return nil
}

func (p *SimPort) Flush() error {
	p.mu.Lock()
	p.rx = nil
	p.mu.Unlock()
	return nil
}

// handleCommand 模拟固件对一条主机命令的反应
func (p *SimPort) handleCommand(command string) {
	if button, err := strconv.Atoi(command); err == nil {
		if button >= MatrixButtonMin && button <= MatrixButtonMax {
			p.feed(fmt.Sprintf("BUTTON_%d:SENT", button))
			p.feed(fmt.Sprintf("MATRIX_SIGNAL:R%dC%d", (button-1)/8+1, (button-1)%8+1))
		}
		return
	}

	switch {
	case command == statusProbeCommand:
		p.mu.Lock()
		distance := p.distance
		version := p.version
		p.mu.Unlock()

		p.feed("STATUS:READY")
		p.feed("VERSION:" + version)
		p.feed(fmt.Sprintf("SENSOR:DISTANCE:%.1f", distance))

	case strings.HasSuffix(command, ":ON"), strings.HasSuffix(command, ":OFF"):
		index := strings.LastIndex(command, ":")
		device := command[:index]
		switch device {
		case "LED1", "LED2", "MOTOR":
			p.feed("CONTROLLER:" + command)
		}
	}
}

// sensorLoop 周期性推送随机游走的感应距离，越过阈值时附带状态变化消息
func (p *SimPort) sensorLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-p.stopCh:
			return
		case <-ticker.C:
			p.mu.Lock()
			p.distance += (p.rand.Float64() - 0.5) * 30
			if p.distance < simDistanceMin {
				p.distance = simDistanceMin
			}
			if p.distance > simDistanceMax {
				p.distance = simDistanceMax
			}
			distance := p.distance
			wasDetected := p.detected
			p.detected = distance <= DetectionThreshold
			nowDetected := p.detected
			p.mu.Unlock()

			p.feed(fmt.Sprintf("SENSOR:DISTANCE:%.1f", distance))
			if nowDetected != wasDetected {
				if nowDetected {
					p.feed("SENSOR:DETECTED")
				} else {
					p.feed("SENSOR:CLEAR")
				}
			}
		}
	}
}

func (p *SimPort) feed(line string) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.rx = append(p.rx, line+"\n"...)
	p.mu.Unlock()

	select {
	case p.dataCh <- struct{}{}:
	default:
	}
}
