package hardware

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/jimeKim/cvm-beautibox-kiosk-sub001/internal/errors"
)

func TestCorrelatorFIFOOrder(t *testing.T) {
	c := NewCorrelator(zap.NewNop())
	ctx := context.Background()

	first := c.Register("CMD1", nil)
	second := c.Register("CMD2", nil)

	// 先登记的请求先拿响应
	require.True(t, c.Dispatch("RESP1"))
	require.True(t, c.Dispatch("RESP2"))

	line, err := c.Wait(ctx, first, time.Second)
	require.NoError(t, err)
	assert.Equal(t, "RESP1", line)

	line, err = c.Wait(ctx, second, time.Second)
	require.NoError(t, err)
	assert.Equal(t, "RESP2", line)

	assert.Equal(t, 0, c.PendingCount())
}

func TestCorrelatorSelectiveMatch(t *testing.T) {
	c := NewCorrelator(zap.NewNop())
	ctx := context.Background()

	statusReq := c.Register("STATUS", func(line string) bool {
		return line == "STATUS:READY"
	})
	anyReq := c.Register("ANY", nil)

	// 不匹配队首的响应跳给后面的请求
	require.True(t, c.Dispatch("BUTTON_3:SENT"))
	line, err := c.Wait(ctx, anyReq, time.Second)
	require.NoError(t, err)
	assert.Equal(t, "BUTTON_3:SENT", line)

	require.True(t, c.Dispatch("STATUS:READY"))
	line, err = c.Wait(ctx, statusReq, time.Second)
	require.NoError(t, err)
	assert.Equal(t, "STATUS:READY", line)
}

func TestCorrelatorDispatchWithoutPending(t *testing.T) {
	c := NewCorrelator(zap.NewNop())
	assert.False(t, c.Dispatch("SENSOR:DISTANCE:42.0"))
}

func TestCorrelatorTimeout(t *testing.T) {
	c := NewCorrelator(zap.NewNop())

	req := c.Register("STATUS", nil)

	start := time.Now()
	_, err := c.Wait(context.Background(), req, 50*time.Millisecond)
	require.Error(t, err)
	assert.Equal(t, errors.ErrSerialTimeout, errors.GetCode(err))
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)

	// 超时的请求已出队，迟到的响应无人认领
	assert.Equal(t, 0, c.PendingCount())
	assert.False(t, c.Dispatch("LATE"))
}

func TestCorrelatorContextCancel(t *testing.T) {
	c := NewCorrelator(zap.NewNop())

	req := c.Register("STATUS", nil)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := c.Wait(ctx, req, time.Second)
	require.Error(t, err)
	assert.Equal(t, errors.ErrCanceled, errors.GetCode(err))
	assert.Equal(t, 0, c.PendingCount())
}

func TestCorrelatorFailAll(t *testing.T) {
	c := NewCorrelator(zap.NewNop())
	ctx := context.Background()

	first := c.Register("CMD1", nil)
	second := c.Register("CMD2", nil)

	c.FailAll(errors.New(errors.ErrConnectionLost, "串口连接丢失"))

	_, err := c.Wait(ctx, first, time.Second)
	require.Error(t, err)
	assert.Equal(t, errors.ErrConnectionLost, errors.GetCode(err))

	_, err = c.Wait(ctx, second, time.Second)
	require.Error(t, err)
	assert.Equal(t, errors.ErrConnectionLost, errors.GetCode(err))

	assert.Equal(t, 0, c.PendingCount())
}

func TestCorrelatorCancel(t *testing.T) {
	c := NewCorrelator(zap.NewNop())

	req := c.Register("CMD", nil)
	require.Equal(t, 1, c.PendingCount())

	c.Cancel(req)
	assert.Equal(t, 0, c.PendingCount())
	assert.False(t, c.Dispatch("RESP"))

	// 响应已派发后取消只是丢弃结果
	late := c.Register("CMD2", nil)
	require.True(t, c.Dispatch("RESP2"))
	c.Cancel(late)
	assert.Equal(t, 0, c.PendingCount())
}

func TestCorrelatorConcurrentDispatch(t *testing.T) {
	c := NewCorrelator(zap.NewNop())
	ctx := context.Background()

	const count = 50
	requests := make([]*PendingRequest, 0, count)
	for i := 0; i < count; i++ {
		requests = append(requests, c.Register("CMD", nil))
	}

	var wg sync.WaitGroup
	wg.Add(count)
	for i := 0; i < count; i++ {
		go func() {
			defer wg.Done()
			c.Dispatch("RESP")
		}()
	}
	wg.Wait()

	// 每个请求都恰好收到一个响应
	for _, req := range requests {
		line, err := c.Wait(ctx, req, time.Second)
		require.NoError(t, err)
		assert.Equal(t, "RESP", line)
	}
	assert.Equal(t, 0, c.PendingCount())
}
