package utils

import (
	"testing"

	"github.com/stretchr/testify/suite"
)

// SanitizeTestSuite 脱敏工具测试套件
type SanitizeTestSuite struct {
	suite.Suite
}

// 测试卡号脱敏
func (suite *SanitizeTestSuite) TestMaskCardNumber() {
	testCases := []struct {
		name     string
		input    string
		expected string
	}{
		{"标准16位卡号", "1234567890123456", "123456******3456"},
		{"带连字符的卡号", "1234-5678-9012-3456", "1234-56**-****-3456"},
		{"短数字串不脱敏", "123456789", "123456789"},
		{"订单号不脱敏", "ORD-2025", "ORD-2025"},
		{"空字符串", "", ""},
	}

	for _, tc := range testCases {
		suite.Run(tc.name, func() {
			suite.Equal(tc.expected, MaskCardNumber(tc.input))
		})
	}
}

// 测试串口行脱敏
func (suite *SanitizeTestSuite) TestSanitizeSerialLine() {
	// 疑似卡号字段被打码
	line := "SUCCESS,TX100,APPROVED,1234567890123456"
	masked := SanitizeSerialLine(line)
	suite.Equal("SUCCESS,TX100,APPROVED,123456******3456", masked)

	// 普通字段保持原样
	line = "PAY,5000,ORDER-1,CARD"
	suite.Equal(line, SanitizeSerialLine(line))

	// 混合行只处理长数字字段
	line = "SUCCESS,9876543210987654,A123,receipt"
	suite.Equal("SUCCESS,987654******7654,A123,receipt", SanitizeSerialLine(line))
}

// TestSanitizeTestSuite 运行测试套件
func TestSanitizeTestSuite(t *testing.T) {
	suite.Run(t, new(SanitizeTestSuite))
}
