package utils

import (
	"strings"
	"unicode"
)

// MaskCardNumber 卡号脱敏，保留前6后4位
// 不足10位的数字串原样返回
func MaskCardNumber(s string) string {
	digits := 0
	for _, r := range s {
		if unicode.IsDigit(r) {
			digits++
		}
	}
	if digits < 10 {
		return s
	}

	var b strings.Builder
	b.Grow(len(s))
	seen := 0
	for _, r := range s {
		if unicode.IsDigit(r) {
			seen++
			if seen > 6 && seen <= digits-4 {
				b.WriteRune('*')
				continue
			}
		}
		b.WriteRune(r)
	}
	return b.String()
}

// SanitizeSerialLine 串口日志脱敏
// 卡支付终端的响应行可能携带完整卡号，记录前对长数字串打码
func SanitizeSerialLine(line string) string {
	fields := strings.Split(line, ",")
	for i, f := range fields {
		if isLongDigitRun(f) {
			fields[i] = MaskCardNumber(f)
		}
	}
	return strings.Join(fields, ",")
}

// isLongDigitRun 判断字段是否为12位以上的纯数字串（疑似卡号）
func isLongDigitRun(s string) bool {
	s = strings.TrimSpace(s)
	if len(s) < 12 {
		return false
	}
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}
