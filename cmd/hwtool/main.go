// hwtool 出货控制板现场调试工具
// 技师用交互式命令行直接驱动串口协议，排查按钮矩阵、感应器与LED/电机，
// 不依赖数据库与HTTP服务
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/jimeKim/cvm-beautibox-kiosk-sub001/internal/hardware"
)

func main() {
	var (
		port     = flag.String("port", "/dev/ttyUSB0", "串口设备路径")
		baudRate = flag.Int("baud", 9600, "波特率")
		mock     = flag.Bool("mock", false, "使用模拟串口")
		verbose  = flag.Bool("v", false, "输出控制器调试日志")
	)
	flag.Parse()

	log := newConsoleLogger(*verbose)

	controller := hardware.NewController(hardware.Config{
		Port:     *port,
		BaudRate: *baudRate,
	}, log)

	if *mock {
		fmt.Println("[模拟模式] 使用内置模拟串口")
		controller.SetPortOpener(hardware.SimOpener(2 * time.Second))
	}

	fmt.Println("=== 出货控制板调试工具 ===")
	fmt.Printf("串口: %s @ %d\n", *port, *baudRate)
	fmt.Println("输入 'help' 查看可用命令")

	runInteractive(controller, *port)
}

// runInteractive 交互式命令循环
func runInteractive(controller *hardware.Controller, defaultPort string) {
	scanner := bufio.NewScanner(os.Stdin)

	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		parts := strings.Fields(line)
		command := parts[0]

		switch command {
		case "help":
			printCommands()

		case "connect":
			portPath := defaultPort
			if len(parts) > 1 {
				portPath = parts[1]
			}
			if err := controller.Initialize(portPath); err != nil {
				fmt.Printf("连接失败: %v\n", err)
				continue
			}
			fmt.Printf("已连接 %s\n", portPath)

		case "disconnect":
			controller.Disconnect()
			fmt.Println("已断开")

		case "status":
			printJSON(controller.Status())

		case "distance":
			state := controller.DeviceState()
			fmt.Printf("距离: %.1fcm 感应: %v (连接状态: %s)\n",
				controller.ReadDistance(), state.Sensor.Detected, controller.State())

		case "button":
			if len(parts) < 2 {
				fmt.Println("用法: button <1-40>")
				continue
			}
			button, err := strconv.Atoi(parts[1])
			if err != nil {
				fmt.Printf("无效按钮号: %s\n", parts[1])
				continue
			}
			result, err := controller.SendMatrixButton(button)
			if err != nil {
				fmt.Printf("发送失败: %v\n", err)
				continue
			}
			if result.Simulated {
				fmt.Printf("按钮 %d 已模拟发送\n", result.Button)
			} else {
				fmt.Printf("按钮 %d 已发送\n", result.Button)
			}

		case "output":
			if len(parts) < 3 {
				fmt.Println("用法: output <led1|led2|motor> <on|off>")
				continue
			}
			on := parts[2] == "on"
			if err := controller.SetOutput(parts[1], on); err != nil {
				fmt.Printf("设置失败: %v\n", err)
				continue
			}
			fmt.Printf("%s -> %s\n", parts[1], parts[2])

		case "probe":
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			response, err := controller.Probe(ctx)
			cancel()
			if err != nil {
				fmt.Printf("探测失败: %v\n", err)
				continue
			}
			fmt.Printf("固件响应: %s\n", response)

		case "raw":
			if len(parts) < 2 {
				fmt.Println("用法: raw <命令>")
				continue
			}
			rawCommand := strings.Join(parts[1:], " ")
			if err := controller.SendCommand(rawCommand); err != nil {
				fmt.Printf("发送失败: %v\n", err)
				continue
			}
			fmt.Printf("已发送: %s\n", rawCommand)

		case "listen":
			seconds := 10
			if len(parts) > 1 {
				if n, err := strconv.Atoi(parts[1]); err == nil && n > 0 {
					seconds = n
				}
			}
			listenEvents(controller, time.Duration(seconds)*time.Second)

		case "quit", "exit":
			controller.Disconnect()
			fmt.Println("再见")
			return

		default:
			fmt.Printf("未知命令: %s（输入 help 查看）\n", command)
		}
	}
}

// listenEvents 在给定时长内打印固件上行事件
func listenEvents(controller *hardware.Controller, duration time.Duration) {
	fmt.Printf("监听事件 %v（Ctrl+C 退出程序）...\n", duration)

	timeout := time.After(duration)
	count := 0
	for {
		select {
		case event, ok := <-controller.Events():
			if !ok {
				fmt.Println("事件通道已关闭")
				return
			}
			count++
			data, _ := json.Marshal(event)
			fmt.Printf("[%s] %s %s\n", time.Now().Format("15:04:05.000"), event.Kind(), data)

		case <-timeout:
			fmt.Printf("监听结束，共 %d 条事件\n", count)
			return
		}
	}
}

func printCommands() {
	fmt.Println("可用命令:")
	fmt.Println("  connect [串口路径]      连接出货控制板")
	fmt.Println("  disconnect              断开连接")
	fmt.Println("  status                  查看控制器状态")
	fmt.Println("  distance                读取感应距离")
	fmt.Println("  button <1-40>           发送出货按钮")
	fmt.Println("  output <设备> <on|off>  控制LED/电机")
	fmt.Println("  probe                   探测固件状态")
	fmt.Println("  raw <命令>              发送原始命令")
	fmt.Println("  listen [秒数]           监听固件上行事件")
	fmt.Println("  quit                    退出")
}

func printJSON(value interface{}) {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		fmt.Printf("序列化失败: %v\n", err)
		return
	}
	fmt.Println(string(data))
}

// newConsoleLogger 调试工具的控制台日志器
func newConsoleLogger(verbose bool) *zap.Logger {
	level := zapcore.WarnLevel
	if verbose {
		level = zapcore.DebugLevel
	}

	encoderCfg := zap.NewDevelopmentEncoderConfig()
	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(encoderCfg),
		zapcore.Lock(os.Stderr),
		level,
	)
	return zap.New(core)
}
