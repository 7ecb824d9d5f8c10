package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/jimeKim/cvm-beautibox-kiosk-sub001/internal/config"
	ws "github.com/jimeKim/cvm-beautibox-kiosk-sub001/internal/websocket"
)

// WebSocketHandler WebSocket处理器
type WebSocketHandler struct {
	hub      *ws.Hub
	upgrader websocket.Upgrader
	logger   *zap.Logger
}

// NewWebSocketHandler 创建WebSocket处理器
func NewWebSocketHandler(hub *ws.Hub, wsCfg config.WebSocketConfig, logger *zap.Logger) *WebSocketHandler {
	readBuffer := wsCfg.ReadBufferSize
	if readBuffer <= 0 {
		readBuffer = 1024
	}
	writeBuffer := wsCfg.WriteBufferSize
	if writeBuffer <= 0 {
		writeBuffer = 1024
	}

	return &WebSocketHandler{
		hub: hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:    readBuffer,
			WriteBufferSize:   writeBuffer,
			EnableCompression: wsCfg.EnableCompression,
			CheckOrigin: func(r *http.Request) bool {
				// 运维端与机台前端同机部署，不校验Origin
				return true
			},
		},
		logger: logger,
	}
}

// EventsWebSocket 硬件事件流WebSocket连接
// 连接后实时推送传感器、出货确认、连接状态与支付事件
func (h *WebSocketHandler) EventsWebSocket(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("WebSocket升级失败",
			zap.String("remote", c.ClientIP()),
			zap.Error(err))
		return
	}

	// 创建客户端
	client := ws.NewClient(h.hub, conn)

	// 注册客户端
	h.hub.Register(client)

	// 启动读写协程
	go client.WritePump()
	go client.ReadPump()

	h.logger.Info("WebSocket连接建立",
		zap.String("client_id", client.ID),
		zap.String("remote", client.RemoteAddr))
}

// GetOnlineCount 获取在线连接数
func (h *WebSocketHandler) GetOnlineCount(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"online_count": h.hub.GetOnlineCount(),
	})
}
