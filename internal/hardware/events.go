package hardware

// EventKind 硬件事件类型
type EventKind string

const (
	EventSensor       EventKind = "sensor"       // 感应距离更新
	EventController   EventKind = "controller"   // LED/电机状态回报
	EventMatrixAck    EventKind = "matrix_ack"   // 出货按钮发送确认
	EventFirmware     EventKind = "firmware"     // 固件就绪/版本
	EventDiagnostic   EventKind = "diagnostic"   // 矩阵诊断信号
	EventConnection   EventKind = "connection"   // 连接状态变化
	EventUnrecognized EventKind = "unrecognized" // 未识别消息
)

// Event 分类后的固件上行消息
type Event interface {
	Kind() EventKind
}

// SensorEvent 超声波感应读数
type SensorEvent struct {
	Distance float64 `json:"distance"`
	Detected bool    `json:"is_detected"`
}

func (SensorEvent) Kind() EventKind { return EventSensor }

// ControllerStateEvent 输出设备开关回报
type ControllerStateEvent struct {
	Device string `json:"device"` // led1/led2/motor
	On     bool   `json:"on"`
}

func (ControllerStateEvent) Kind() EventKind { return EventController }

// MatrixAckEvent 矩阵键盘按钮发送确认
type MatrixAckEvent struct {
	Button int `json:"button"`
}

func (MatrixAckEvent) Kind() EventKind { return EventMatrixAck }

// FirmwareStatusEvent 固件状态回报，Ready 与 Version 分别来自两条消息
type FirmwareStatusEvent struct {
	Ready   bool   `json:"ready"`
	Version string `json:"version,omitempty"`
}

func (FirmwareStatusEvent) Kind() EventKind { return EventFirmware }

// DiagnosticEvent 矩阵诊断原始信号，仅透传不入状态
type DiagnosticEvent struct {
	Raw string `json:"raw"`
}

func (DiagnosticEvent) Kind() EventKind { return EventDiagnostic }

// ConnectionEvent 串口连接状态变化
type ConnectionEvent struct {
	State string `json:"state"`
}

func (ConnectionEvent) Kind() EventKind { return EventConnection }

// UnrecognizedEvent 无法识别的消息行
type UnrecognizedEvent struct {
	Raw string `json:"raw"`
}

func (UnrecognizedEvent) Kind() EventKind { return EventUnrecognized }
