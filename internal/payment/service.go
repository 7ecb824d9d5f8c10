package payment

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/jimeKim/cvm-beautibox-kiosk-sub001/internal/errors"
)

// Service 支付调度器
// 按支付方式把请求路由到注册的终端，任何一个终端的故障不影响其它终端
type Service struct {
	mu        sync.RWMutex
	terminals map[Method]Terminal
	logger    *zap.Logger
}

// NewService 创建支付调度器
func NewService(logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		terminals: make(map[Method]Terminal),
		logger:    logger,
	}
}

// Register 注册支付方式对应的终端，刷卡终端可同时注册 card 与 mobile
func (s *Service) Register(method Method, terminal Terminal) {
	s.mu.Lock()
	s.terminals[method] = terminal
	s.mu.Unlock()

	s.logger.Info("支付终端已注册", zap.String("method", string(method)))
}

// Terminal 返回某支付方式的终端
func (s *Service) Terminal(method Method) (Terminal, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	terminal, ok := s.terminals[method]
	return terminal, ok
}

// Methods 返回已注册的支付方式
func (s *Service) Methods() []Method {
	s.mu.RLock()
	defer s.mu.RUnlock()

	methods := make([]Method, 0, len(s.terminals))
	for method := range s.terminals {
		methods = append(methods, method)
	}
	return methods
}

// ProcessPayment 路由并执行一笔支付，任何失败都表达为 Success=false
func (s *Service) ProcessPayment(ctx context.Context, req *Request) *Response {
	if req == nil {
		return failure(nil, CodeInvalidRequest, "支付请求为空")
	}

	method, ok := ParseMethod(string(req.Method))
	if !ok {
		s.logger.Warn("未知支付方式", zap.String("method", string(req.Method)))
		return failure(req, CodeUnsupportedMethod, "不支持的支付方式: "+string(req.Method))
	}
	req.Method = method

	terminal, ok := s.Terminal(method)
	if !ok {
		s.logger.Warn("支付方式未注册终端", zap.String("method", string(method)))
		return failure(req, CodeUnsupportedMethod, "该支付方式未启用: "+string(method))
	}

	resp := s.safeProcess(ctx, terminal, req)

	s.logger.Info("支付处理完成",
		zap.String("order_id", req.OrderID),
		zap.String("method", string(method)),
		zap.Bool("success", resp.Success),
		zap.String("error_code", resp.ErrorCode))
	return resp
}

// CancelPayment 路由并取消一笔交易
func (s *Service) CancelPayment(ctx context.Context, method Method, transactionID string) *Response {
	parsed, ok := ParseMethod(string(method))
	if !ok {
		return &Response{Success: false, TransactionID: transactionID,
			ErrorCode: CodeUnsupportedMethod, ErrorMessage: "不支持的支付方式: " + string(method)}
	}

	terminal, ok := s.Terminal(parsed)
	if !ok {
		return &Response{Success: false, Method: parsed, TransactionID: transactionID,
			ErrorCode: CodeUnsupportedMethod, ErrorMessage: "该支付方式未启用: " + string(parsed)}
	}

	return s.safeCancel(ctx, terminal, parsed, transactionID)
}

// TerminalStatus 查询单个终端状态
func (s *Service) TerminalStatus(ctx context.Context, method Method) (TerminalStatus, error) {
	parsed, ok := ParseMethod(string(method))
	if !ok {
		return TerminalStatus{}, errors.Newf(errors.ErrUnsupportedMethod,
			"不支持的支付方式: %s", method)
	}

	terminal, ok := s.Terminal(parsed)
	if !ok {
		return TerminalStatus{}, errors.Newf(errors.ErrUnsupportedMethod,
			"该支付方式未启用: %s", parsed)
	}

	return s.safeStatus(ctx, parsed, terminal), nil
}

// AllTerminalStatus 查询全部终端状态
// 逐个独立查询，单个终端查询失败不阻断其余终端的上报
func (s *Service) AllTerminalStatus(ctx context.Context) map[Method]TerminalStatus {
	s.mu.RLock()
	snapshot := make(map[Method]Terminal, len(s.terminals))
	for method, terminal := range s.terminals {
		snapshot[method] = terminal
	}
	s.mu.RUnlock()

	statuses := make(map[Method]TerminalStatus, len(snapshot))
	for method, terminal := range snapshot {
		statuses[method] = s.safeStatus(ctx, method, terminal)
	}
	return statuses
}

// ConnectAll 连接全部终端，失败只记录并汇报，不阻断其它终端
func (s *Service) ConnectAll(ctx context.Context) map[Method]error {
	s.mu.RLock()
	snapshot := make(map[Method]Terminal, len(s.terminals))
	for method, terminal := range s.terminals {
		snapshot[method] = terminal
	}
	s.mu.RUnlock()

	results := make(map[Method]error, len(snapshot))
	for method, terminal := range snapshot {
		err := terminal.Connect(ctx)
		results[method] = err
		if err != nil {
			s.logger.Error("支付终端连接失败",
				zap.String("method", string(method)),
				zap.Error(err))
		}
	}
	return results
}

// DisconnectAll 断开全部终端，同一终端注册多个方式时重复断开是安全的
func (s *Service) DisconnectAll() {
	s.mu.RLock()
	snapshot := make(map[Method]Terminal, len(s.terminals))
	for method, terminal := range s.terminals {
		snapshot[method] = terminal
	}
	s.mu.RUnlock()

	for method, terminal := range snapshot {
		func() {
			defer func() {
				if r := recover(); r != nil {
					s.logger.Error("断开支付终端时发生内部错误",
						zap.String("method", string(method)),
						zap.Any("panic", r))
				}
			}()
			terminal.Disconnect()
		}()
	}

	s.logger.Info("全部支付终端已断开")
}

func (s *Service) safeProcess(ctx context.Context, terminal Terminal, req *Request) (resp *Response) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("支付终端内部错误",
				zap.String("method", string(req.Method)),
				zap.Any("panic", r))
			resp = failure(req, CodePaymentProcessing, "终端内部错误")
		}
	}()

	resp = terminal.ProcessPayment(ctx, req)
	if resp == nil {
		resp = failure(req, CodePaymentProcessing, "终端未返回结果")
	}
	return resp
}

func (s *Service) safeCancel(ctx context.Context, terminal Terminal, method Method, transactionID string) (resp *Response) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("取消交易时终端内部错误",
				zap.String("method", string(method)),
				zap.Any("panic", r))
			resp = &Response{Success: false, Method: method, TransactionID: transactionID,
				ErrorCode: CodeCancelProcessing, ErrorMessage: "终端内部错误"}
		}
	}()

	resp = terminal.CancelPayment(ctx, transactionID)
	if resp == nil {
		resp = &Response{Success: false, Method: method, TransactionID: transactionID,
			ErrorCode: CodeCancelProcessing, ErrorMessage: "终端未返回结果"}
	}
	return resp
}

func (s *Service) safeStatus(ctx context.Context, method Method, terminal Terminal) (status TerminalStatus) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("查询终端状态时内部错误",
				zap.String("method", string(method)),
				zap.Any("panic", r))
			status = TerminalStatus{Method: method, Status: "error", Detail: "终端内部错误"}
		}
	}()

	status = terminal.Status(ctx)
	status.Method = method
	return status
}
