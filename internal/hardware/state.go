package hardware

import (
	"sync"
	"time"
)

// SensorState 超声波感应最新状态
type SensorState struct {
	Distance   *float64   `json:"distance"`    // 最近一次距离（厘米），未收到读数时为 nil
	Detected   bool       `json:"is_detected"` // 是否有人/有物
	LastUpdate *time.Time `json:"last_update"` // 最近一次感应更新时间
}

// OutputState 输出设备开关状态
type OutputState struct {
	Led1  bool `json:"led1"`
	Led2  bool `json:"led2"`
	Motor bool `json:"motor"`
}

// DeviceState 设备状态快照
type DeviceState struct {
	Sensor     SensorState `json:"sensor"`
	Controller OutputState `json:"controller"`
}

// StateStore 设备状态缓存，由 readLoop 单写、API/WebSocket 多读
type StateStore struct {
	mu    sync.RWMutex
	state DeviceState
	now   func() time.Time
}

// NewStateStore 创建状态缓存
func NewStateStore() *StateStore {
	return &StateStore{now: time.Now}
}

// Apply 按事件更新状态，未知设备与非状态事件直接忽略
func (s *StateStore) Apply(event Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch ev := event.(type) {
	case SensorEvent:
		distance := ev.Distance
		s.state.Sensor.Distance = &distance
		s.state.Sensor.Detected = ev.Detected

		// 时钟被回拨时保持上次时间戳，更新时间只进不退
		now := s.now()
		if s.state.Sensor.LastUpdate == nil || !now.Before(*s.state.Sensor.LastUpdate) {
			s.state.Sensor.LastUpdate = &now
		}

	case ControllerStateEvent:
		switch ev.Device {
		case "led1":
			s.state.Controller.Led1 = ev.On
		case "led2":
			s.state.Controller.Led2 = ev.On
		case "motor":
			s.state.Controller.Motor = ev.On
		}
	}
}

// Snapshot 返回当前状态的副本
func (s *StateStore) Snapshot() DeviceState {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snapshot := s.state
	if s.state.Sensor.Distance != nil {
		distance := *s.state.Sensor.Distance
		snapshot.Sensor.Distance = &distance
	}
	if s.state.Sensor.LastUpdate != nil {
		lastUpdate := *s.state.Sensor.LastUpdate
		snapshot.Sensor.LastUpdate = &lastUpdate
	}
	return snapshot
}

// LastDistance 返回最近一次距离读数
func (s *StateStore) LastDistance() (float64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.state.Sensor.Distance == nil {
		return 0, false
	}
	return *s.state.Sensor.Distance, true
}

// ResetOutputs 将所有输出设备标记为关闭（断开连接时的逻辑停机）
func (s *StateStore) ResetOutputs() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.state.Controller = OutputState{}
}
