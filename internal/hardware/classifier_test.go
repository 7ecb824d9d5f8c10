package hardware

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jimeKim/cvm-beautibox-kiosk-sub001/internal/errors"
)

func TestClassifySensorMessages(t *testing.T) {
	event, err := Classify("SENSOR:DETECTED")
	require.NoError(t, err)
	sensor, ok := event.(SensorEvent)
	require.True(t, ok)
	assert.True(t, sensor.Detected)
	assert.Equal(t, presenceNearDistance, sensor.Distance)

	event, err = Classify("SENSOR:CLEAR")
	require.NoError(t, err)
	sensor = event.(SensorEvent)
	assert.False(t, sensor.Detected)
	assert.Equal(t, presenceFarDistance, sensor.Distance)
}

func TestClassifyDistanceDetectionThreshold(t *testing.T) {
	// 阈值判定：距离不超过 50 即视为有人
	for _, distance := range []float64{0, 10, 49.9, 50, 50.1, 80, 119.5} {
		event, err := Classify(fmt.Sprintf("SENSOR:DISTANCE:%v", distance))
		require.NoError(t, err)

		sensor, ok := event.(SensorEvent)
		require.True(t, ok)
		assert.Equal(t, distance, sensor.Distance)
		assert.Equal(t, distance <= DetectionThreshold, sensor.Detected,
			"distance=%v", distance)
	}
}

func TestClassifyControllerMessages(t *testing.T) {
	tests := []struct {
		line   string
		device string
		on     bool
	}{
		{"CONTROLLER:LED1:ON", "led1", true},
		{"CONTROLLER:LED1:OFF", "led1", false},
		{"CONTROLLER:LED2:ON", "led2", true},
		{"CONTROLLER:MOTOR:OFF", "motor", false},
	}

	for _, tt := range tests {
		event, err := Classify(tt.line)
		require.NoError(t, err, tt.line)

		ctrl, ok := event.(ControllerStateEvent)
		require.True(t, ok, tt.line)
		assert.Equal(t, tt.device, ctrl.Device)
		assert.Equal(t, tt.on, ctrl.On)
	}
}

func TestClassifyButtonAck(t *testing.T) {
	for _, tt := range []struct {
		line   string
		button int
	}{
		{"BUTTON_1:SENT", 1},
		{"BUTTON_7:SENT", 7},
		{"BUTTON_40:SENT", 40},
	} {
		event, err := Classify(tt.line)
		require.NoError(t, err)

		ack, ok := event.(MatrixAckEvent)
		require.True(t, ok)
		assert.Equal(t, tt.button, ack.Button)
	}
}

func TestClassifyFirmwareAndDiagnostics(t *testing.T) {
	event, err := Classify("STATUS:READY")
	require.NoError(t, err)
	firmware, ok := event.(FirmwareStatusEvent)
	require.True(t, ok)
	assert.True(t, firmware.Ready)
	assert.Empty(t, firmware.Version)

	event, err = Classify("VERSION:2.4.1")
	require.NoError(t, err)
	firmware = event.(FirmwareStatusEvent)
	assert.False(t, firmware.Ready)
	assert.Equal(t, "2.4.1", firmware.Version)

	event, err = Classify("MATRIX_SIGNAL:R2C5")
	require.NoError(t, err)
	diag, ok := event.(DiagnosticEvent)
	require.True(t, ok)
	assert.Equal(t, "MATRIX_SIGNAL:R2C5", diag.Raw)
}

func TestClassifyParseErrors(t *testing.T) {
	// 格式对但值坏的消息报解析错误
	for _, line := range []string{
		"SENSOR:DISTANCE:abc",
		"SENSOR:DISTANCE:",
		"CONTROLLER:ON",
		"CONTROLLER:LED1:BLINK",
		"BUTTON_x:SENT",
		"BUTTON_:SENT",
	} {
		event, err := Classify(line)
		require.Error(t, err, line)
		assert.Nil(t, event, line)
		assert.Equal(t, errors.ErrProtocolParse, errors.GetCode(err), line)
	}
}

func TestClassifyUnrecognized(t *testing.T) {
	// 未识别消息不是错误，留给调用方记日志
	for _, line := range []string{
		"GARBAGE",
		"SENSOR:HUMIDITY:44",
		"BUTTON_7:QUEUED",
		"hello world",
	} {
		event, err := Classify(line)
		require.NoError(t, err, line)

		unrecognized, ok := event.(UnrecognizedEvent)
		require.True(t, ok, line)
		assert.Equal(t, line, unrecognized.Raw)
	}
}
