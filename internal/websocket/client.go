package websocket

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// 错误定义
var (
	ErrClientNotFound = errors.New("客户端未找到")
	ErrSendBufferFull = errors.New("发送缓冲区已满")
	ErrInvalidMessage = errors.New("无效的消息格式")
)

// WebSocket配置
const (
	// 写超时
	writeWait = 10 * time.Second

	// 读取pong超时
	pongWait = 60 * time.Second

	// ping发送周期（必须小于pongWait）
	pingPeriod = (pongWait * 9) / 10

	// 最大消息大小，事件订阅端只发送小控制消息
	maxMessageSize = 8 * 1024
)

// Client WebSocket客户端
type Client struct {
	ID         string          // 客户端ID
	RemoteAddr string          // 远端地址
	Hub        *Hub            // Hub引用
	Conn       *websocket.Conn // WebSocket连接
	Send       chan []byte     // 发送通道
}

// NewClient 创建新客户端
func NewClient(hub *Hub, conn *websocket.Conn) *Client {
	return &Client{
		ID:         uuid.New().String(),
		RemoteAddr: conn.RemoteAddr().String(),
		Hub:        hub,
		Conn:       conn,
		Send:       make(chan []byte, 256),
	}
}

// ReadPump 读取消息
func (c *Client) ReadPump() {
	defer func() {
		c.Hub.unregister <- c
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(maxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.Hub.logger.Error("WebSocket读取错误",
					zap.String("client_id", c.ID),
					zap.Error(err))
			}
			break
		}

		// 处理接收到的消息
		c.handleMessage(message)
	}
}

// WritePump 写入消息
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Hub关闭了通道
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.Conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			// 批量发送队列中的消息
			n := len(c.Send)
			for i := 0; i < n; i++ {
				w.Write([]byte{'\n'})
				w.Write(<-c.Send)
			}

			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleMessage 处理接收到的消息
// 订阅端只接受少量控制消息：pong回应、state快照请求
func (c *Client) handleMessage(data []byte) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		c.Hub.logger.Warn("解析WebSocket消息失败",
			zap.String("client_id", c.ID),
			zap.Error(err))
		c.sendError("消息格式错误")
		return
	}

	switch msg.Type {
	case MessageTypePong:
		// 客户端回应心跳
		c.Hub.logger.Debug("收到pong",
			zap.String("client_id", c.ID))

	case MessageTypePing:
		c.sendMessage(MessageTypePong, nil)

	case MessageTypeState:
		// 请求设备状态快照
		if c.Hub.stateProvider == nil {
			c.sendError("状态快照不可用")
			return
		}
		c.sendMessage(MessageTypeState, c.Hub.stateProvider())

	default:
		c.Hub.logger.Warn("收到不支持的消息类型",
			zap.String("client_id", c.ID),
			zap.String("type", msg.Type))
		c.sendError("不支持的消息类型: " + msg.Type)
	}
}

// sendMessage 发送消息给客户端
func (c *Client) sendMessage(msgType string, payload interface{}) {
	msg := &Message{
		Type:      msgType,
		Timestamp: time.Now().Unix(),
	}

	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			c.Hub.logger.Error("序列化消息失败",
				zap.String("client_id", c.ID),
				zap.Error(err))
			return
		}
		msg.Data = data
	}

	c.Hub.SendToClient(c.ID, msg)
}

// sendError 发送错误消息
func (c *Client) sendError(message string) {
	payload, _ := json.Marshal(map[string]string{"error": message})
	c.Hub.SendToClient(c.ID, &Message{
		Type:      MessageTypeError,
		Timestamp: time.Now().Unix(),
		Data:      payload,
	})
}

// Close 关闭客户端连接
func (c *Client) Close() {
	c.Hub.unregister <- c
}
