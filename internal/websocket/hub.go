package websocket

import (
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Hub WebSocket连接管理中心
// 前端界面与运维面板通过 /ws/events 订阅设备与支付事件，所有事件全员广播
type Hub struct {
	// 客户端连接池
	clients   map[string]*Client
	clientsMu sync.RWMutex

	// 消息广播通道
	broadcast chan *Message

	// 注册/注销通道
	register   chan *Client
	unregister chan *Client

	// 设备状态快照提供者，客户端请求state时调用
	stateProvider StateProvider

	// 日志
	logger *zap.Logger
}

// StateProvider 设备状态快照提供者
type StateProvider func() interface{}

// Message WebSocket消息
type Message struct {
	Type      string          `json:"type"`                // 消息类型
	Data      json.RawMessage `json:"data,omitempty"`      // 消息数据
	Timestamp int64           `json:"timestamp"`           // 时间戳
}

// MessageType 消息类型
const (
	// 系统消息
	MessageTypeConnected = "connected"
	MessageTypePing      = "ping"
	MessageTypePong      = "pong"
	MessageTypeError     = "error"
	MessageTypeState     = "state"

	// 硬件事件（与固件上行消息分类一一对应）
	MessageTypeSensor       = "sensor"
	MessageTypeController   = "controller"
	MessageTypeMatrixAck    = "matrix_ack"
	MessageTypeFirmware     = "firmware"
	MessageTypeDiagnostic   = "diagnostic"
	MessageTypeConnection   = "connection"
	MessageTypeUnrecognized = "unrecognized"

	// 支付事件
	MessageTypePayment = "payment"
)

// NewHub 创建Hub
func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		clients:    make(map[string]*Client),
		broadcast:  make(chan *Message, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		logger:     logger,
	}
}

// SetStateProvider 挂接设备状态快照提供者
func (h *Hub) SetStateProvider(provider StateProvider) {
	h.stateProvider = provider
}

// Run 运行Hub
func (h *Hub) Run() {
	// 启动心跳检测
	go h.runHeartbeat()

	for {
		select {
		case client := <-h.register:
			h.registerClient(client)

		case client := <-h.unregister:
			h.unregisterClient(client)

		case message := <-h.broadcast:
			h.broadcastMessage(message)
		}
	}
}

// registerClient 注册客户端
func (h *Hub) registerClient(client *Client) {
	h.clientsMu.Lock()
	h.clients[client.ID] = client
	h.clientsMu.Unlock()

	h.logger.Info("WebSocket客户端连接",
		zap.String("client_id", client.ID),
		zap.String("remote", client.RemoteAddr))

	// 发送连接成功消息
	msg := &Message{
		Type:      MessageTypeConnected,
		Timestamp: time.Now().Unix(),
		Data:      json.RawMessage(`{"message":"连接成功"}`),
	}
	h.SendToClient(client.ID, msg)
}

// unregisterClient 注销客户端
func (h *Hub) unregisterClient(client *Client) {
	h.clientsMu.Lock()
	if _, ok := h.clients[client.ID]; ok {
		delete(h.clients, client.ID)
		close(client.Send)
	}
	h.clientsMu.Unlock()

	h.logger.Info("WebSocket客户端断开",
		zap.String("client_id", client.ID))
}

// broadcastMessage 广播消息
func (h *Hub) broadcastMessage(message *Message) {
	data, err := json.Marshal(message)
	if err != nil {
		h.logger.Error("序列化消息失败", zap.Error(err))
		return
	}

	h.clientsMu.RLock()
	for _, client := range h.clients {
		select {
		case client.Send <- data:
		default:
			// 发送缓冲区满，丢弃本条，客户端可通过state请求补齐
			h.logger.Warn("客户端发送缓冲区满",
				zap.String("client_id", client.ID),
				zap.String("type", message.Type))
		}
	}
	h.clientsMu.RUnlock()
}

// SendToClient 发送消息给指定客户端
func (h *Hub) SendToClient(clientID string, message *Message) error {
	data, err := json.Marshal(message)
	if err != nil {
		return err
	}

	h.clientsMu.RLock()
	client, ok := h.clients[clientID]
	h.clientsMu.RUnlock()

	if !ok {
		return ErrClientNotFound
	}

	select {
	case client.Send <- data:
		return nil
	default:
		return ErrSendBufferFull
	}
}

// Broadcast 广播消息（公开方法）
func (h *Hub) Broadcast(message *Message) {
	select {
	case h.broadcast <- message:
	default:
		h.logger.Warn("广播通道满，丢弃消息", zap.String("type", message.Type))
	}
}

// BroadcastEvent 序列化payload后按类型广播
func (h *Hub) BroadcastEvent(msgType string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		h.logger.Error("序列化事件失败", zap.Error(err), zap.String("type", msgType))
		return
	}

	h.Broadcast(&Message{
		Type:      msgType,
		Data:      data,
		Timestamp: time.Now().Unix(),
	})
}

// GetOnlineCount 获取在线连接数
func (h *Hub) GetOnlineCount() int {
	h.clientsMu.RLock()
	defer h.clientsMu.RUnlock()
	return len(h.clients)
}

// runHeartbeat 运行心跳检测
func (h *Hub) runHeartbeat() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		<-ticker.C
		ping := &Message{
			Type:      MessageTypePing,
			Timestamp: time.Now().Unix(),
		}
		h.Broadcast(ping)
	}
}

// Register 注册客户端（公开方法）
func (h *Hub) Register(client *Client) {
	h.register <- client
}

// Unregister 注销客户端（公开方法）
func (h *Hub) Unregister(client *Client) {
	h.unregister <- client
}
