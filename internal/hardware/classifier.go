package hardware

import (
	"strconv"
	"strings"

	"github.com/jimeKim/cvm-beautibox-kiosk-sub001/internal/errors"
)

// DetectionThreshold 判定"有人/有物"的距离阈值（厘米）
const DetectionThreshold = 50.0

// 固件只报 DETECTED/CLEAR 不带距离时使用的代表值
const (
	presenceNearDistance = 20.0
	presenceFarDistance  = 120.0
)

// 固件上行消息前缀
const (
	prefixSensorDistance = "SENSOR:DISTANCE:"
	prefixController     = "CONTROLLER:"
	prefixButton         = "BUTTON_"
	suffixButtonSent     = ":SENT"
	prefixMatrixSignal   = "MATRIX_SIGNAL:"
	prefixVersion        = "VERSION:"
)

// Classify 将一行固件消息解析为事件
// 消息格式错误返回解析错误，格式未知返回 UnrecognizedEvent，两者都不致命
func Classify(line string) (Event, error) {
	switch {
	case line == "SENSOR:DETECTED":
		return SensorEvent{Distance: presenceNearDistance, Detected: true}, nil

	case line == "SENSOR:CLEAR":
		return SensorEvent{Distance: presenceFarDistance, Detected: false}, nil

	case strings.HasPrefix(line, prefixSensorDistance):
		raw := strings.TrimPrefix(line, prefixSensorDistance)
		distance, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, errors.Wrapf(err, errors.ErrProtocolParse, "距离值无法解析: %s", line)
		}
		return SensorEvent{Distance: distance, Detected: distance <= DetectionThreshold}, nil

	case strings.HasPrefix(line, prefixController):
		rest := strings.TrimPrefix(line, prefixController)
		index := strings.LastIndex(rest, ":")
		if index <= 0 {
			return nil, errors.Newf(errors.ErrProtocolParse, "控制器回报缺少设备或状态: %s", line)
		}
		device := strings.ToLower(rest[:index])
		switch rest[index+1:] {
		case "ON":
			return ControllerStateEvent{Device: device, On: true}, nil
		case "OFF":
			return ControllerStateEvent{Device: device, On: false}, nil
		default:
			return nil, errors.Newf(errors.ErrProtocolParse, "控制器状态非 ON/OFF: %s", line)
		}

	case strings.HasPrefix(line, prefixButton) && strings.HasSuffix(line, suffixButtonSent):
		raw := strings.TrimSuffix(strings.TrimPrefix(line, prefixButton), suffixButtonSent)
		button, err := strconv.Atoi(raw)
		if err != nil {
			return nil, errors.Wrapf(err, errors.ErrProtocolParse, "按钮编号无法解析: %s", line)
		}
		return MatrixAckEvent{Button: button}, nil

	case strings.HasPrefix(line, prefixMatrixSignal):
		return DiagnosticEvent{Raw: line}, nil

	case line == "STATUS:READY":
		return FirmwareStatusEvent{Ready: true}, nil

	case strings.HasPrefix(line, prefixVersion):
		return FirmwareStatusEvent{Version: strings.TrimPrefix(line, prefixVersion)}, nil

	default:
		return UnrecognizedEvent{Raw: line}, nil
	}
}
