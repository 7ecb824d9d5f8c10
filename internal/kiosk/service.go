// Package kiosk 机台服务组装层
// 按依赖顺序构建数据库、出货控制板、支付终端、WebSocket推送与MQTT遥测，
// 并统一管理启动与优雅关闭
package kiosk

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/jimeKim/cvm-beautibox-kiosk-sub001/internal/api"
	"github.com/jimeKim/cvm-beautibox-kiosk-sub001/internal/config"
	"github.com/jimeKim/cvm-beautibox-kiosk-sub001/internal/database"
	"github.com/jimeKim/cvm-beautibox-kiosk-sub001/internal/errors"
	"github.com/jimeKim/cvm-beautibox-kiosk-sub001/internal/hardware"
	"github.com/jimeKim/cvm-beautibox-kiosk-sub001/internal/logger"
	"github.com/jimeKim/cvm-beautibox-kiosk-sub001/internal/models"
	"github.com/jimeKim/cvm-beautibox-kiosk-sub001/internal/payment"
	"github.com/jimeKim/cvm-beautibox-kiosk-sub001/internal/service"
	"github.com/jimeKim/cvm-beautibox-kiosk-sub001/internal/telemetry"
	ws "github.com/jimeKim/cvm-beautibox-kiosk-sub001/internal/websocket"
)

// simSensorInterval 模拟串口的感应事件间隔
const simSensorInterval = 3 * time.Second

// Service 机台服务
// 持有全部运行组件，生命周期 New -> Start -> Shutdown
type Service struct {
	cfg *config.Config
	log *zap.Logger

	db           *gorm.DB
	controller   *hardware.Controller
	reconnect    *hardware.ReconnectManager
	dispatcher   *payment.Service
	cardTerminal *payment.CardTerminal
	services     *service.Services
	hub          *ws.Hub
	pump         *ws.EventPump
	telemetry    telemetry.Publisher
	reporter     *telemetry.Reporter
	router       *api.Router
	httpServer   *http.Server

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New 组装机台服务
func New(cfg *config.Config, log *zap.Logger) (*Service, error) {
	ctx, cancel := context.WithCancel(context.Background())

	s := &Service{
		cfg:    cfg,
		log:    log,
		ctx:    ctx,
		cancel: cancel,
	}

	if err := s.initDatabase(); err != nil {
		cancel()
		return nil, err
	}

	s.buildHardware()
	s.buildPaymentTerminals()
	s.buildServices()
	s.buildEventPush()

	if err := s.buildTelemetry(); err != nil {
		cancel()
		return nil, err
	}

	s.buildHTTP()

	return s, nil
}

// initDatabase 初始化数据库连接并迁移表结构
func (s *Service) initDatabase() error {
	if err := database.Init(&s.cfg.Database); err != nil {
		return errors.Wrap(err, errors.ErrDatabaseConnect, "初始化数据库连接失败")
	}

	if s.cfg.Database.AutoMigrate {
		if err := database.AutoMigrate(); err != nil {
			return errors.Wrap(err, errors.ErrDatabaseConnect, "数据库迁移失败")
		}
	}

	if !database.IsConnected() {
		return errors.New(errors.ErrDatabaseConnect, "数据库连接检查失败")
	}

	s.db = database.GetDB()
	return nil
}

// buildHardware 构建出货控制板控制器与重连管理器
func (s *Service) buildHardware() {
	hwCfg := s.cfg.Hardware
	hwLog := logger.GetModuleLogger("hardware")

	s.controller = hardware.NewController(hardware.Config{
		Port:           hwCfg.Port,
		BaudRate:       hwCfg.BaudRate,
		DataBits:       hwCfg.DataBits,
		StopBits:       hwCfg.StopBits,
		Parity:         hwCfg.Parity,
		ReadTimeout:    hwCfg.ReadTimeout,
		WriteTimeout:   hwCfg.WriteTimeout,
		CommandTimeout: hwCfg.CommandTimeout,
		EventBuffer:    hwCfg.EventBuffer,
	}, hwLog)

	if hwCfg.MockMode {
		s.log.Warn("出货控制板运行在模拟模式")
		s.controller.SetPortOpener(hardware.SimOpener(simSensorInterval))
	}

	if hwCfg.Reconnect.Enabled {
		s.reconnect = hardware.NewReconnectManager(s.controller, hardware.ReconnectOptions{
			Interval:    hwCfg.Reconnect.Interval,
			MaxInterval: hwCfg.Reconnect.MaxInterval,
			MaxRetries:  hwCfg.Reconnect.MaxRetries,
		}, hwLog)
	}
}

// buildPaymentTerminals 按配置构建支付终端并注册到调度器
func (s *Service) buildPaymentTerminals() {
	payLog := logger.GetModuleLogger("payment")
	s.dispatcher = payment.NewService(payLog)

	if s.cfg.Payment.Card.Enabled {
		cardCfg := s.cfg.Payment.Card
		card := payment.NewCardTerminal(payment.CardOptions{
			Port:          cardCfg.Port,
			BaudRate:      cardCfg.BaudRate,
			ReadTimeout:   cardCfg.ReadTimeout,
			Timeout:       cardCfg.Timeout,
			CancelTimeout: cardCfg.CancelTimeout,
		}, payLog)

		if cardCfg.MockMode {
			s.log.Warn("刷卡终端运行在模拟模式")
			card.SetPortOpener(payment.SimCardOpener())
		}

		s.cardTerminal = card
		// 手机Pay走同一台VAN终端
		s.dispatcher.Register(payment.MethodCard, card)
		s.dispatcher.Register(payment.MethodMobile, card)
	}

	if s.cfg.Payment.QR.Enabled {
		qrCfg := s.cfg.Payment.QR
		qr := payment.NewQRTerminal(qrCfg.BaseURL, qrCfg.APIKey, qrCfg.Timeout, payLog)
		s.dispatcher.Register(payment.MethodQR, qr)
	}

	if s.cfg.Payment.Cash.Enabled {
		cashCfg := s.cfg.Payment.Cash

		var handler payment.CashHandler
		if cashCfg.MockMode {
			s.log.Warn("现金模块运行在模拟模式")
			handler = payment.NewSimCashHandler(2*time.Second, 0)
		} else {
			handler = payment.NewIPCCashHandler(cashCfg.SocketPath, cashCfg.DispenseTimeout, payLog)
		}

		cash := payment.NewCashTerminal(handler, cashCfg.WaitTimeout, payLog)
		s.dispatcher.Register(payment.MethodCash, cash)
	}
}

// buildServices 构建业务服务层并挂接串口日志持久化
func (s *Service) buildServices() {
	s.services = service.NewServices(s.db, serviceConfig(s.cfg), s.dispatcher, s.log)

	s.controller.SetDeviceLogRecorder(s.services.DeviceLog)
	if s.cardTerminal != nil {
		s.cardTerminal.SetDeviceLogRecorder(s.services.DeviceLog)
	}
}

// buildEventPush 构建WebSocket推送中心与硬件事件泵
func (s *Service) buildEventPush() {
	s.hub = ws.NewHub(logger.GetModuleLogger("websocket"))
	s.hub.SetStateProvider(func() interface{} {
		return s.controller.Status()
	})

	s.pump = ws.NewEventPump(s.hub, s.controller.Events(), logger.GetModuleLogger("websocket"))
}

// buildTelemetry 构建MQTT遥测并挂接支付结果通知
func (s *Service) buildTelemetry() error {
	mqttCfg := s.cfg.MQTT

	if mqttCfg.Enabled {
		pub, err := telemetry.NewMQTTPublisher(mqttCfg, s.cfg.System.KioskID, logger.GetModuleLogger("mqtt"))
		if err != nil {
			return errors.Wrap(err, errors.ErrConfigLoad, "初始化MQTT遥测失败")
		}
		s.telemetry = pub
		s.pump.SetEventSink(pub)
		s.reporter = telemetry.NewReporter(pub, s.controller.Status, mqttCfg.StatusInterval)
	} else {
		s.telemetry = telemetry.NopPublisher{}
	}

	// 支付结果落库后推给前端并上报遥测
	s.services.Payment.SetNotifier(func(tx *models.PaymentTransaction) {
		s.pump.BroadcastPayment(tx)
		s.telemetry.PublishPayment(tx)
	})

	return nil
}

// buildHTTP 构建HTTP路由与服务器
func (s *Service) buildHTTP() {
	s.router = api.NewRouter(s.db, s.cfg, s.services, s.controller, s.hub, s.log)

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", s.cfg.Server.Host, s.cfg.Server.Port),
		Handler:      s.router.GetEngine(),
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
	}
}

// Start 启动所有组件
func (s *Service) Start() error {
	go s.hub.Run()

	if s.cfg.Hardware.Enabled {
		if err := s.controller.Initialize(s.cfg.Hardware.Port); err != nil {
			// 开机时串口可能尚未就绪，交给重连管理器继续尝试
			s.log.Warn("出货控制板初始化失败", zap.Error(err))
		}
		if s.reconnect != nil {
			s.reconnect.Start()
		}
	}

	connectCtx, cancelConnect := context.WithTimeout(s.ctx, 30*time.Second)
	defer cancelConnect()
	for method, err := range s.dispatcher.ConnectAll(connectCtx) {
		if err != nil {
			// 单个终端故障不阻塞开机，该通道保持不可用
			s.log.Warn("支付终端连接失败",
				zap.String("method", string(method)),
				zap.Error(err))
		}
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.pump.Run(s.ctx)
	}()

	if s.reporter != nil {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.reporter.Run(s.ctx)
		}()
	}

	if s.cfg.Monitor.Enabled {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.runMonitor(s.ctx)
		}()
	}

	listener, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return errors.Wrap(err, errors.ErrUnknown, "HTTP端口监听失败")
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.httpServer.Serve(listener); err != nil && err != http.ErrServerClosed {
			s.log.Error("HTTP服务异常退出", zap.Error(err))
		}
	}()

	s.log.Info("机台服务启动完成",
		zap.String("http", s.httpServer.Addr),
		zap.Bool("hardware", s.cfg.Hardware.Enabled),
		zap.Strings("payment_methods", s.methodNames()),
		zap.Bool("mqtt", s.cfg.MQTT.Enabled))

	return nil
}

// Shutdown 按依赖逆序关闭所有组件
func (s *Service) Shutdown(ctx context.Context) error {
	// 先停HTTP入口，不再接受新请求
	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.log.Warn("HTTP服务关闭超时", zap.Error(err))
	}

	if s.reconnect != nil {
		s.reconnect.Stop()
	}
	s.dispatcher.DisconnectAll()
	s.controller.Disconnect()

	// 停事件泵、遥测上报与监控
	s.cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		s.log.Warn("组件关闭超时")
	}

	// 刷掉缓冲中的设备日志与遥测消息
	s.services.DeviceLog.Close()
	s.telemetry.Close()

	if err := database.Close(); err != nil {
		return errors.Wrap(err, errors.ErrDatabaseConnect, "关闭数据库失败")
	}

	return nil
}

// methodNames 已注册支付方式列表
func (s *Service) methodNames() []string {
	methods := s.dispatcher.Methods()
	names := make([]string, 0, len(methods))
	for _, method := range methods {
		names = append(names, string(method))
	}
	return names
}

// serviceConfig 由安全配置推导服务层配置，零值回退到默认
func serviceConfig(cfg *config.Config) *service.Config {
	svcCfg := service.DefaultConfig()

	jwt := cfg.Security.JWT
	if jwt.Secret != "" {
		svcCfg.JWTSecret = jwt.Secret
	}
	if jwt.ExpireHours > 0 {
		svcCfg.AccessTokenExpiry = time.Duration(jwt.ExpireHours) * time.Hour
	}
	if jwt.RefreshHours > 0 {
		svcCfg.RefreshTokenExpiry = time.Duration(jwt.RefreshHours) * time.Hour
	}

	return svcCfg
}
