package hardware

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestSimPortFullDialog(t *testing.T) {
	c := NewController(Config{
		ReadTimeout:    10 * time.Millisecond,
		CommandTimeout: 2 * time.Second,
		EventBuffer:    128,
	}, zap.NewNop())
	c.SetPortOpener(SimOpener(50 * time.Millisecond))

	require.NoError(t, c.Initialize(""))
	defer c.Disconnect()

	// 状态探测回报就绪与版本
	require.Eventually(t, func() bool {
		status := c.Status()
		return status.FirmwareReady && status.FirmwareVersion != ""
	}, 2*time.Second, 10*time.Millisecond)

	// 感应流周期推送
	require.Eventually(t, func() bool {
		state := c.DeviceState()
		return state.Sensor.Distance != nil && state.Sensor.LastUpdate != nil
	}, 2*time.Second, 10*time.Millisecond)

	distance := c.ReadDistance()
	assert.GreaterOrEqual(t, distance, simDistanceMin)
	assert.LessOrEqual(t, distance, simDistanceMax)

	result, err := c.SendMatrixButton(9)
	require.NoError(t, err)
	assert.Equal(t, 9, result.Button)
	assert.False(t, result.Simulated)

	deadline := time.After(2 * time.Second)
	for {
		select {
		case event := <-c.Events():
			if ack, ok := event.(MatrixAckEvent); ok {
				assert.Equal(t, 9, ack.Button)
				return
			}
		case <-deadline:
			t.Fatal("模拟固件未确认按钮")
		}
	}
}

func TestSimPortOutputEcho(t *testing.T) {
	c := NewController(Config{
		ReadTimeout:    10 * time.Millisecond,
		CommandTimeout: 2 * time.Second,
		EventBuffer:    128,
	}, zap.NewNop())
	c.SetPortOpener(SimOpener(time.Hour)) // 关掉感应流，只看输出回显

	require.NoError(t, c.Initialize(""))
	defer c.Disconnect()

	require.NoError(t, c.SetOutput("led2", true))
	require.Eventually(t, func() bool {
		return c.DeviceState().Controller.Led2
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, c.SetOutput("led2", false))
	require.Eventually(t, func() bool {
		return !c.DeviceState().Controller.Led2
	}, 2*time.Second, 10*time.Millisecond)
}

func TestSimPortCloseIdempotent(t *testing.T) {
	p := NewSimPort(time.Hour)
	require.NoError(t, p.Close())
	require.NoError(t, p.Close())

	_, err := p.Write([]byte("STATUS\n"))
	assert.Error(t, err)
}
