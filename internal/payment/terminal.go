package payment

import "context"

// Terminal 支付终端统一接口
// 三种实现：刷卡终端（串口）、二维码网关（HTTP）、现金机具（IPC）
type Terminal interface {
	// Connect 建立与终端的连接或探测其可用性
	Connect(ctx context.Context) error

	// Disconnect 断开连接，幂等且不报错
	Disconnect()

	// ProcessPayment 执行一笔支付，预期内的失败以 Success=false 返回
	ProcessPayment(ctx context.Context, req *Request) *Response

	// CancelPayment 取消一笔已有交易
	CancelPayment(ctx context.Context, transactionID string) *Response

	// Status 查询终端当前状态
	Status(ctx context.Context) TerminalStatus
}
