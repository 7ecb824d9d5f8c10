package errors

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/suite"
)

// ErrorsTestSuite 错误包测试套件
type ErrorsTestSuite struct {
	suite.Suite
}

// 测试创建新错误
func (suite *ErrorsTestSuite) TestNew() {
	// 测试基本错误创建
	err := New(ErrInvalidParam)
	suite.NotNil(err)
	suite.Equal(ErrInvalidParam, err.Code)
	suite.Equal("无效的参数", err.Message)
	suite.Empty(err.Details)

	// 测试带详情的错误
	err = New(ErrNotConnected, "硬件控制器未初始化")
	suite.NotNil(err)
	suite.Equal(ErrNotConnected, err.Code)
	suite.Equal("设备未连接", err.Message)
	suite.Equal("硬件控制器未初始化", err.Details)

	// 测试多个详情
	err = New(ErrSerialPortOpen, "打开失败", "端口: /dev/ttyUSB0", "波特率: 9600")
	suite.Equal("打开失败; 端口: /dev/ttyUSB0; 波特率: 9600", err.Details)
}

// 测试格式化错误创建
func (suite *ErrorsTestSuite) TestNewf() {
	err := Newf(ErrInvalidParam, "按钮编号 %d 超出范围 [%d, %d]", 41, 1, 40)
	suite.NotNil(err)
	suite.Equal(ErrInvalidParam, err.Code)
	suite.Equal("按钮编号 41 超出范围 [1, 40]", err.Details)
}

// 测试错误包装
func (suite *ErrorsTestSuite) TestWrap() {
	// 包装标准错误
	originalErr := errors.New("原始错误")
	wrappedErr := Wrap(originalErr, ErrSerialPortWrite)
	suite.NotNil(wrappedErr)
	suite.Equal(ErrSerialPortWrite, wrappedErr.Code)
	suite.Equal("原始错误", wrappedErr.Details)
	suite.Equal(originalErr, wrappedErr.Cause)

	// 包装nil错误
	nilErr := Wrap(nil, ErrUnknown)
	suite.Nil(nilErr)

	// 包装已有的AppError
	appErr := New(ErrPaymentTimeout, "30秒无响应")
	wrappedAppErr := Wrap(appErr, ErrInvalidParam, "额外信息")
	suite.Equal(ErrPaymentTimeout, wrappedAppErr.Code) // 保留原始错误码
	suite.Contains(wrappedAppErr.Details, "额外信息")
}

// 测试格式化错误包装
func (suite *ErrorsTestSuite) TestWrapf() {
	originalErr := errors.New("连接超时")
	wrappedErr := Wrapf(originalErr, ErrNetworkRequest, "请求 %s 失败", "/payments")
	suite.NotNil(wrappedErr)
	suite.Equal(ErrNetworkRequest, wrappedErr.Code)
	suite.Equal("请求 /payments 失败", wrappedErr.Details)
	suite.Equal(originalErr, wrappedErr.Cause)
}

// 测试错误码判断
func (suite *ErrorsTestSuite) TestIs() {
	err := New(ErrCashCancelNotSupported)
	suite.True(Is(err, ErrCashCancelNotSupported))
	suite.False(Is(err, ErrNotFound))
	suite.False(Is(nil, ErrCashCancelNotSupported))

	// 测试标准错误
	standardErr := errors.New("标准错误")
	suite.False(Is(standardErr, ErrUnknown))
}

// 测试获取错误码
func (suite *ErrorsTestSuite) TestGetCode() {
	// AppError
	appErr := New(ErrTokenExpired)
	suite.Equal(ErrTokenExpired, GetCode(appErr))

	// 标准错误
	standardErr := errors.New("标准错误")
	suite.Equal(ErrUnknown, GetCode(standardErr))

	// nil错误
	suite.Equal(ErrorCode(0), GetCode(nil))
}

// 测试错误消息
func (suite *ErrorsTestSuite) TestError() {
	// 只有消息
	err := &AppError{
		Code:    ErrNotConnected,
		Message: "设备未连接",
	}
	suite.Equal("[3004] 设备未连接", err.Error())

	// 有详情
	err.Details = "端口: /dev/ttyACM0"
	suite.Equal("[3004] 设备未连接: 端口: /dev/ttyACM0", err.Error())
}

// 测试Unwrap
func (suite *ErrorsTestSuite) TestUnwrap() {
	originalErr := errors.New("原始错误")
	wrappedErr := Wrap(originalErr, ErrUnknown)
	suite.Equal(originalErr, wrappedErr.Unwrap())

	// 没有原因的错误
	err := New(ErrUnknown)
	suite.Nil(err.Unwrap())
}

// 测试WithDetails
func (suite *ErrorsTestSuite) TestWithDetails() {
	err := New(ErrInvalidParam)
	err.WithDetails("参数不能为空")
	suite.Equal("参数不能为空", err.Details)
}

// 测试WithCause
func (suite *ErrorsTestSuite) TestWithCause() {
	err := New(ErrDatabaseQuery)
	cause := errors.New("SQL语法错误")
	err.WithCause(cause)
	suite.Equal(cause, err.Cause)
	suite.Equal("SQL语法错误", err.Details)

	// 已有Details的情况
	err2 := New(ErrDatabaseQuery, "查询失败")
	err2.WithCause(cause)
	suite.Equal(cause, err2.Cause)
	suite.Equal("查询失败", err2.Details) // 保留原有Details
}

// 测试HTTP状态码映射
func (suite *ErrorsTestSuite) TestHTTPStatus() {
	testCases := []struct {
		code     ErrorCode
		expected int
	}{
		{ErrInvalidParam, 400},
		{ErrNotFound, 400}, // ErrNotFound落在1001-1003区间，返回400
		{ErrPermissionDenied, 403},
		{ErrTimeout, 408},
		{ErrAuthentication, 401},
		{ErrRateLimitExceeded, 429},
		{ErrDatabaseConnect, 503},
		{ErrPaymentDeclined, 500},
		{ErrUnknown, 500},
	}

	for _, tc := range testCases {
		err := New(tc.code)
		suite.Equal(tc.expected, err.HTTPStatus(), "错误码 %d 应该返回HTTP状态码 %d", tc.code, tc.expected)
	}
}

// 测试可重试判断
func (suite *ErrorsTestSuite) TestIsRetryable() {
	retryableErrors := []ErrorCode{
		ErrTimeout,
		ErrSerialTimeout,
		ErrWebSocketConnect,
		ErrMQTTConnect,
		ErrDatabaseConnect,
		ErrNotConnected,
		ErrDeviceBusy,
		ErrTerminalBusy,
		ErrNetworkRequest,
	}

	for _, code := range retryableErrors {
		err := New(code)
		suite.True(IsRetryable(err), "错误码 %d 应该是可重试的", code)
	}

	// 不可重试的错误
	nonRetryableErrors := []ErrorCode{
		ErrInvalidParam,
		ErrNotFound,
		ErrPermissionDenied,
		ErrCashCancelNotSupported,
		ErrUnsupportedMethod,
	}

	for _, code := range nonRetryableErrors {
		err := New(code)
		suite.False(IsRetryable(err), "错误码 %d 不应该是可重试的", code)
	}

	// nil错误
	suite.False(IsRetryable(nil))
}

// 测试严重错误判断
func (suite *ErrorsTestSuite) TestIsCritical() {
	criticalErrors := []ErrorCode{
		ErrDatabaseConnect,
		ErrSerialPortOpen,
		ErrConfigLoad,
		ErrConfigMissing,
		ErrDataIntegrity,
	}

	for _, code := range criticalErrors {
		suite.True(IsCritical(New(code)), "错误码 %d 应该是严重错误", code)
	}

	// 非严重错误
	nonCriticalErrors := []ErrorCode{
		ErrInvalidParam,
		ErrPaymentTimeout,
		ErrSerialTimeout,
	}

	for _, code := range nonCriticalErrors {
		suite.False(IsCritical(New(code)), "错误码 %d 不应该是严重错误", code)
	}

	suite.False(IsCritical(nil))
}

// 测试错误响应结构
func (suite *ErrorsTestSuite) TestNewErrorResponse() {
	appErr := New(ErrUnsupportedMethod, "method: voucher")
	resp := NewErrorResponse(appErr, "req-123")
	suite.False(resp.Success)
	suite.Equal(appErr, resp.Error)
	suite.Equal("req-123", resp.RequestID)
	suite.NotZero(resp.Timestamp)
}

// TestErrorsTestSuite 运行测试套件
func TestErrorsTestSuite(t *testing.T) {
	suite.Run(t, new(ErrorsTestSuite))
}
