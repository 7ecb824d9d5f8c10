package telemetry

import (
	"encoding/json"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"github.com/jimeKim/cvm-beautibox-kiosk-sub001/internal/config"
	"github.com/jimeKim/cvm-beautibox-kiosk-sub001/internal/hardware"
	"github.com/jimeKim/cvm-beautibox-kiosk-sub001/internal/logger"
	"github.com/jimeKim/cvm-beautibox-kiosk-sub001/internal/models"
)

const (
	connectTimeout = 10 * time.Second
	publishTimeout = 5 * time.Second
	queueSize      = 256
)

// message 待发布的MQTT消息
type message struct {
	topic    string
	payload  []byte
	qos      byte
	retained bool
}

// MQTTPublisher 基于paho的遥测发布器
// 发布方法把消息放进内存队列，后台协程串行发往broker，
// 掉线期间的消息直接丢弃，状态由周期快照和retained标志兜底
type MQTTPublisher struct {
	client  paho.Client
	cfg     config.MQTTConfig
	kioskID string
	logger  *zap.Logger
	queue   chan message
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewMQTTPublisher 创建遥测发布器并发起连接
// broker暂时不可达不算错误，paho会在后台持续重连
func NewMQTTPublisher(cfg config.MQTTConfig, kioskID string, log *zap.Logger) (*MQTTPublisher, error) {
	if kioskID == "" {
		kioskID = cfg.ClientID
	}

	p := &MQTTPublisher{
		cfg:     cfg,
		kioskID: kioskID,
		logger:  log,
		queue:   make(chan message, queueSize),
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}

	will, err := FormatOfflinePayload(kioskID)
	if err != nil {
		return nil, err
	}

	opts := paho.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetCleanSession(cfg.CleanSession).
		SetAutoReconnect(cfg.AutoReconnect).
		SetMaxReconnectInterval(cfg.MaxReconnectInterval).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetKeepAlive(cfg.KeepAlive).
		SetPingTimeout(cfg.PingTimeout).
		SetBinaryWill(cfg.Topics.Status, will, 1, true).
		SetOnConnectHandler(p.onConnect).
		SetConnectionLostHandler(p.onConnectionLost)

	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}

	p.client = paho.NewClient(opts)

	token := p.client.Connect()
	if token.WaitTimeout(connectTimeout) {
		if err := token.Error(); err != nil {
			return nil, err
		}
	} else {
		log.Warn("MQTT连接超时，后台继续重连", zap.String("broker", cfg.Broker))
	}

	go p.worker()

	return p, nil
}

// onConnect 连接/重连成功后立即补发retained在线标志
func (p *MQTTPublisher) onConnect(client paho.Client) {
	p.logger.Info("MQTT已连接",
		zap.String("broker", p.cfg.Broker),
		zap.String("client_id", p.cfg.ClientID))

	payload, err := json.Marshal(StatusPayload{
		KioskID:   p.kioskID,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Online:    true,
	})
	if err != nil {
		return
	}
	client.Publish(p.cfg.Topics.Status, 1, true, payload)
}

func (p *MQTTPublisher) onConnectionLost(_ paho.Client, err error) {
	p.logger.Warn("MQTT连接断开", zap.Error(err))
}

// PublishStatus 上报设备状态快照
func (p *MQTTPublisher) PublishStatus(report hardware.StatusReport) {
	payload, err := FormatStatusPayload(p.kioskID, report)
	if err != nil {
		p.logger.Error("状态消息序列化失败", zap.Error(err))
		return
	}
	// 状态主题恒为retained，保证订阅端随时能拿到最近一次快照
	p.enqueue(message{topic: p.cfg.Topics.Status, payload: payload, qos: p.cfg.QoS, retained: true})
}

// PublishEvent 上报硬件事件
func (p *MQTTPublisher) PublishEvent(event hardware.Event) {
	payload, err := FormatEventPayload(p.kioskID, event)
	if err != nil {
		p.logger.Error("事件消息序列化失败", zap.Error(err))
		return
	}
	p.enqueue(message{topic: p.cfg.Topics.Event, payload: payload, qos: p.cfg.QoS, retained: p.cfg.Retained})
}

// PublishPayment 上报支付结果
// 支付结果用QoS 1，至少送达一次
func (p *MQTTPublisher) PublishPayment(tx *models.PaymentTransaction) {
	if tx == nil {
		return
	}
	payload, err := FormatPaymentPayload(p.kioskID, tx)
	if err != nil {
		p.logger.Error("支付消息序列化失败", zap.Error(err))
		return
	}
	p.enqueue(message{topic: p.cfg.Topics.Payment, payload: payload, qos: 1, retained: false})
}

// enqueue 非阻塞入队，队列满时丢弃并告警
func (p *MQTTPublisher) enqueue(msg message) {
	select {
	case p.queue <- msg:
	default:
		p.logger.Warn("遥测队列已满，丢弃消息", zap.String("topic", msg.topic))
	}
}

// worker 后台发布协程
func (p *MQTTPublisher) worker() {
	defer close(p.doneCh)

	for {
		select {
		case msg := <-p.queue:
			p.publish(msg)

		case <-p.stopCh:
			// 退出前把队列里剩余的消息发完
			for {
				select {
				case msg := <-p.queue:
					p.publish(msg)
				default:
					return
				}
			}
		}
	}
}

func (p *MQTTPublisher) publish(msg message) {
	if !p.client.IsConnected() {
		return
	}

	token := p.client.Publish(msg.topic, msg.qos, msg.retained, msg.payload)
	if !token.WaitTimeout(publishTimeout) {
		p.logger.Warn("MQTT发布超时", zap.String("topic", msg.topic))
		return
	}
	if err := token.Error(); err != nil {
		p.logger.Warn("MQTT发布失败", zap.String("topic", msg.topic), zap.Error(err))
		return
	}

	logger.LogMQTTMessage(msg.topic, "publish", json.RawMessage(msg.payload))
}

// Close 停止后台协程，补发下线标志后断开连接
func (p *MQTTPublisher) Close() {
	close(p.stopCh)
	<-p.doneCh

	if p.client.IsConnected() {
		if payload, err := FormatOfflinePayload(p.kioskID); err == nil {
			token := p.client.Publish(p.cfg.Topics.Status, 1, true, payload)
			token.WaitTimeout(2 * time.Second)
		}
	}
	p.client.Disconnect(1000)
}
