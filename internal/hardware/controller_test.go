package hardware

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/jimeKim/cvm-beautibox-kiosk-sub001/internal/errors"
)

// mockPort 脚本化串口，记录写入并按需回放固件响应
type mockPort struct {
	mu     sync.Mutex
	writes []string
	closed bool

	rx       chan []byte
	errCh    chan error
	closedCh chan struct{}

	autoRespond func(line string) []string
}

func newMockPort() *mockPort {
	return &mockPort{
		rx:       make(chan []byte, 64),
		errCh:    make(chan error, 1),
		closedCh: make(chan struct{}),
	}
}

func (p *mockPort) Read(buf []byte) (int, error) {
	select {
	case data := <-p.rx:
		return copy(buf, data), nil
	case err := <-p.errCh:
		return 0, err
	case <-p.closedCh:
		return 0, fmt.Errorf("port closed")
	case <-time.After(20 * time.Millisecond):
		return 0, nil
	}
}

func (p *mockPort) Write(data []byte) (int, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return 0, fmt.Errorf("port closed")
	}
	line := strings.TrimSpace(string(data))
	p.writes = append(p.writes, line)
	auto := p.autoRespond
	p.mu.Unlock()

	if auto != nil {
		for _, resp := range auto(line) {
			p.push(resp)
		}
	}
	return len(data), nil
}

func (p *mockPort) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	close(p.closedCh)
	return nil
}

func (p *mockPort) Flush() error { return nil }

func (p *mockPort) push(line string) {
	select {
	case p.rx <- []byte(line + "\n"):
	case <-p.closedCh:
	}
}

func (p *mockPort) failNextRead(err error) {
	select {
	case p.errCh <- err:
	default:
	}
}

func (p *mockPort) writtenLines() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.writes))
	copy(out, p.writes)
	return out
}

func (p *mockPort) writeCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.writes)
}

func containsLine(lines []string, want string) bool {
	for _, line := range lines {
		if line == want {
			return true
		}
	}
	return false
}

func newTestController(port SerialPort) *Controller {
	c := NewController(Config{
		Port:           "/dev/ttyTEST0",
		ReadTimeout:    10 * time.Millisecond,
		CommandTimeout: 2 * time.Second,
		EventBuffer:    64,
	}, zap.NewNop())
	c.SetPortOpener(func(Config) (SerialPort, error) { return port, nil })
	return c
}

func TestControllerInitializeSendsStatusProbe(t *testing.T) {
	port := newMockPort()
	c := newTestController(port)

	require.NoError(t, c.Initialize(""))
	defer c.Disconnect()

	assert.Equal(t, StateConnected, c.State())
	assert.True(t, c.IsConnected())

	// 连接后立即发出状态探测，不等待响应
	require.Eventually(t, func() bool {
		lines := port.writtenLines()
		return len(lines) >= 1 && lines[0] == "STATUS"
	}, time.Second, 5*time.Millisecond)
}

func TestControllerInitializeOpenFailure(t *testing.T) {
	c := newTestController(nil)
	c.SetPortOpener(func(Config) (SerialPort, error) {
		return nil, fmt.Errorf("no such device")
	})

	err := c.Initialize("/dev/ttyUSB9")
	require.Error(t, err)
	assert.Equal(t, StateDisconnected, c.State())

	// 失败后允许再次尝试
	err = c.Initialize("/dev/ttyUSB9")
	require.Error(t, err)
	assert.Equal(t, StateDisconnected, c.State())
}

func TestControllerInitializeIdempotent(t *testing.T) {
	port := newMockPort()
	c := newTestController(port)

	require.NoError(t, c.Initialize(""))
	defer c.Disconnect()

	// 已连接时重复初始化直接返回
	require.NoError(t, c.Initialize(""))
	assert.Equal(t, StateConnected, c.State())
}

func TestControllerSensorStateFlow(t *testing.T) {
	port := newMockPort()
	c := newTestController(port)
	require.NoError(t, c.Initialize(""))
	defer c.Disconnect()

	port.push("SENSOR:DISTANCE:42.5")
	require.Eventually(t, func() bool {
		state := c.DeviceState()
		return state.Sensor.Distance != nil &&
			*state.Sensor.Distance == 42.5 &&
			state.Sensor.Detected
	}, time.Second, 5*time.Millisecond)

	port.push("SENSOR:CLEAR")
	require.Eventually(t, func() bool {
		state := c.DeviceState()
		return !state.Sensor.Detected && *state.Sensor.Distance == presenceFarDistance
	}, time.Second, 5*time.Millisecond)
}

func TestControllerPublishesEvents(t *testing.T) {
	port := newMockPort()
	c := newTestController(port)
	require.NoError(t, c.Initialize(""))
	defer c.Disconnect()

	port.push("SENSOR:DISTANCE:30.0")

	deadline := time.After(time.Second)
	for {
		select {
		case event := <-c.Events():
			if sensor, ok := event.(SensorEvent); ok {
				assert.Equal(t, 30.0, sensor.Distance)
				assert.True(t, sensor.Detected)
				return
			}
		case <-deadline:
			t.Fatal("未收到感应事件")
		}
	}
}

func TestControllerMatrixButtonValidation(t *testing.T) {
	port := newMockPort()
	c := newTestController(port)
	require.NoError(t, c.Initialize(""))
	defer c.Disconnect()

	require.Eventually(t, func() bool {
		return port.writeCount() >= 1
	}, time.Second, 5*time.Millisecond)

	before := port.writeCount()
	for _, invalid := range []int{0, -1, 41, 100} {
		result, err := c.SendMatrixButton(invalid)
		require.Error(t, err, "button=%d", invalid)
		assert.Nil(t, result)
		assert.Equal(t, errors.ErrInvalidParam, errors.GetCode(err))
	}
	// 校验失败不向串口写任何数据
	assert.Equal(t, before, port.writeCount())

	result, err := c.SendMatrixButton(7)
	require.NoError(t, err)
	assert.Equal(t, 7, result.Button)
	assert.False(t, result.Simulated)

	require.Eventually(t, func() bool {
		return containsLine(port.writtenLines(), "7")
	}, time.Second, 5*time.Millisecond)
}

func TestControllerMatrixButtonDisconnected(t *testing.T) {
	c := newTestController(newMockPort())

	// 未连接时模拟成功
	result, err := c.SendMatrixButton(12)
	require.NoError(t, err)
	assert.Equal(t, 12, result.Button)
	assert.True(t, result.Simulated)

	// 范围校验先于模拟
	_, err = c.SendMatrixButton(41)
	require.Error(t, err)
	assert.Equal(t, errors.ErrInvalidParam, errors.GetCode(err))
}

func TestControllerMatrixAckEvent(t *testing.T) {
	port := newMockPort()
	port.autoRespond = func(line string) []string {
		if line == "5" {
			return []string{"BUTTON_5:SENT"}
		}
		return nil
	}

	c := newTestController(port)
	require.NoError(t, c.Initialize(""))
	defer c.Disconnect()

	_, err := c.SendMatrixButton(5)
	require.NoError(t, err)

	deadline := time.After(time.Second)
	for {
		select {
		case event := <-c.Events():
			if ack, ok := event.(MatrixAckEvent); ok {
				assert.Equal(t, 5, ack.Button)
				return
			}
		case <-deadline:
			t.Fatal("未收到按钮确认事件")
		}
	}
}

func TestControllerReadDistanceDisconnected(t *testing.T) {
	c := newTestController(newMockPort())

	// 未连接时返回模拟区间内的值，从不失败
	for i := 0; i < 100; i++ {
		distance := c.ReadDistance()
		assert.GreaterOrEqual(t, distance, simDistanceMin)
		assert.Less(t, distance, simDistanceMax)
	}
}

func TestControllerReadDistanceConnected(t *testing.T) {
	port := newMockPort()
	c := newTestController(port)
	require.NoError(t, c.Initialize(""))
	defer c.Disconnect()

	port.push("SENSOR:DISTANCE:33.0")
	require.Eventually(t, func() bool {
		state := c.DeviceState()
		return state.Sensor.Distance != nil && *state.Sensor.Distance == 33.0
	}, time.Second, 5*time.Millisecond)

	assert.Equal(t, 33.0, c.ReadDistance())

	// 读距离顺带触发一次状态探测
	require.Eventually(t, func() bool {
		probes := 0
		for _, line := range port.writtenLines() {
			if line == "STATUS" {
				probes++
			}
		}
		return probes >= 2
	}, time.Second, 5*time.Millisecond)
}

func TestControllerProbe(t *testing.T) {
	port := newMockPort()
	port.autoRespond = func(line string) []string {
		if line == "STATUS" {
			return []string{"STATUS:READY", "VERSION:9.9.9"}
		}
		return nil
	}

	c := newTestController(port)
	require.NoError(t, c.Initialize(""))
	defer c.Disconnect()

	line, err := c.Probe(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "STATUS:READY", line)

	require.Eventually(t, func() bool {
		status := c.Status()
		return status.FirmwareReady && status.FirmwareVersion == "9.9.9"
	}, time.Second, 5*time.Millisecond)
}

func TestControllerSetOutput(t *testing.T) {
	port := newMockPort()
	port.autoRespond = func(line string) []string {
		switch line {
		case "LED1:ON", "LED1:OFF", "LED2:ON", "LED2:OFF", "MOTOR:ON", "MOTOR:OFF":
			return []string{"CONTROLLER:" + line}
		}
		return nil
	}

	c := newTestController(port)
	require.NoError(t, c.Initialize(""))
	defer c.Disconnect()

	require.NoError(t, c.SetOutput("led1", true))
	require.Eventually(t, func() bool {
		return c.DeviceState().Controller.Led1
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, c.SetOutput("MOTOR", true))
	require.Eventually(t, func() bool {
		return c.DeviceState().Controller.Motor
	}, time.Second, 5*time.Millisecond)

	err := c.SetOutput("buzzer", true)
	require.Error(t, err)
	assert.Equal(t, errors.ErrInvalidParam, errors.GetCode(err))
}

func TestControllerDisconnectIdempotent(t *testing.T) {
	port := newMockPort()
	c := newTestController(port)
	require.NoError(t, c.Initialize(""))

	port.push("CONTROLLER:LED1:ON")
	require.Eventually(t, func() bool {
		return c.DeviceState().Controller.Led1
	}, time.Second, 5*time.Millisecond)

	c.Disconnect()

	assert.Equal(t, StateDisconnected, c.State())
	// 断开时输出逻辑停机
	assert.Equal(t, OutputState{}, c.DeviceState().Controller)

	lines := port.writtenLines()
	assert.True(t, containsLine(lines, "LED1:OFF"))
	assert.True(t, containsLine(lines, "LED2:OFF"))
	assert.True(t, containsLine(lines, "MOTOR:OFF"))

	// 重复断开直接返回，无额外写入
	count := port.writeCount()
	c.Disconnect()
	c.Disconnect()
	assert.Equal(t, StateDisconnected, c.State())
	assert.Equal(t, count, port.writeCount())
}

func TestControllerDisconnectFailsPending(t *testing.T) {
	port := newMockPort()
	c := newTestController(port)
	require.NoError(t, c.Initialize(""))

	probeErr := make(chan error, 1)
	go func() {
		_, err := c.Probe(context.Background())
		probeErr <- err
	}()

	require.Eventually(t, func() bool {
		return c.correlator.PendingCount() == 1
	}, time.Second, 5*time.Millisecond)

	c.Disconnect()

	select {
	case err := <-probeErr:
		require.Error(t, err)
		assert.Equal(t, errors.ErrConnectionLost, errors.GetCode(err))
	case <-time.After(time.Second):
		t.Fatal("等待中的请求未被断开终结")
	}
}

func TestControllerConnectionLostOnFatalReadError(t *testing.T) {
	port := newMockPort()
	c := newTestController(port)
	require.NoError(t, c.Initialize(""))
	defer c.Disconnect()

	probeErr := make(chan error, 1)
	go func() {
		_, err := c.Probe(context.Background())
		probeErr <- err
	}()

	require.Eventually(t, func() bool {
		return c.correlator.PendingCount() == 1
	}, time.Second, 5*time.Millisecond)

	// 设备拔出
	port.failNextRead(fmt.Errorf("input/output error"))

	require.Eventually(t, func() bool {
		return c.State() == StateDisconnected
	}, time.Second, 5*time.Millisecond)

	select {
	case err := <-probeErr:
		require.Error(t, err)
		assert.Equal(t, errors.ErrConnectionLost, errors.GetCode(err))
	case <-time.After(time.Second):
		t.Fatal("等待中的请求未被连接丢失终结")
	}

	err := c.SendCommand("STATUS")
	require.Error(t, err)
	assert.Equal(t, errors.ErrNotConnected, errors.GetCode(err))
}
