package hardware

import "strings"

// maxLineBytes 单行最大长度，超出视为固件异常输出，整体丢弃
const maxLineBytes = 4096

// LineFramer 将串口字节流按换行切分为完整消息行
// 行尾的 \r 与首尾空白会被剥离，空行跳过
type LineFramer struct {
	buffer  string
	dropped int
}

// NewLineFramer 创建行切分器
func NewLineFramer() *LineFramer {
	return &LineFramer{}
}

// Push 追加一段串口数据，返回其中完整的消息行
func (f *LineFramer) Push(data []byte) []string {
	f.buffer += string(data)

	var lines []string
	for {
		index := strings.Index(f.buffer, "\n")
		if index == -1 {
			break
		}

		line := strings.TrimSpace(f.buffer[:index])
		f.buffer = f.buffer[index+1:]

		if line == "" {
			continue
		}
		lines = append(lines, line)
	}

	// 长时间收不到换行说明数据异常，丢弃避免缓冲无限增长
	if len(f.buffer) > maxLineBytes {
		f.buffer = ""
		f.dropped++
	}

	return lines
}

// Pending 返回尚未凑成完整行的字节数
func (f *LineFramer) Pending() int {
	return len(f.buffer)
}

// Dropped 返回因超长被丢弃的次数
func (f *LineFramer) Dropped() int {
	return f.dropped
}

// Reset 清空缓冲（重连时调用，避免半截旧数据串台）
func (f *LineFramer) Reset() {
	f.buffer = ""
}
