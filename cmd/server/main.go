package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/jimeKim/cvm-beautibox-kiosk-sub001/internal/config"
	"github.com/jimeKim/cvm-beautibox-kiosk-sub001/internal/kiosk"
	"github.com/jimeKim/cvm-beautibox-kiosk-sub001/internal/logger"
)

// 版本信息
var (
	Version   = "1.0.0"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	// 命令行参数
	var (
		configPath  = flag.String("config", "", "配置文件路径")
		showVersion = flag.Bool("version", false, "显示版本信息")
		showHelp    = flag.Bool("help", false, "显示帮助信息")
	)

	flag.Parse()

	// 显示版本信息
	if *showVersion {
		printVersion()
		os.Exit(0)
	}

	// 显示帮助信息
	if *showHelp {
		printHelp()
		os.Exit(0)
	}

	// 加载配置
	if err := config.Init(*configPath); err != nil {
		fmt.Printf("加载配置失败: %v\n", err)
		os.Exit(1)
	}

	cfg := config.Get()

	// 初始化日志系统
	if err := logger.Init(&cfg.Log); err != nil {
		fmt.Printf("初始化日志失败: %v\n", err)
		os.Exit(1)
	}

	// 设置系统参数
	setupSystem(&cfg.System)

	// 打印启动信息
	printStartInfo(cfg)

	// 组装机台服务
	svc, err := kiosk.New(cfg, logger.GetLogger())
	if err != nil {
		logger.Fatal("机台服务组装失败", zap.Error(err))
	}

	// 启动
	if err := svc.Start(); err != nil {
		logger.Fatal("机台服务启动失败", zap.Error(err))
	}

	// 监听配置变化
	// 运行中的组件不热切换，改动在下次重启后生效
	config.Watch(func(newCfg *config.Config) {
		logger.Info("配置文件已变更，重启后生效")
	})

	// 等待退出信号
	waitForSignal()

	// 优雅关闭
	shutdownTimeout := cfg.Server.ShutdownTimeout
	if shutdownTimeout <= 0 {
		shutdownTimeout = 30 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := svc.Shutdown(shutdownCtx); err != nil {
		logger.Error("机台服务关闭失败", zap.Error(err))
		logger.Sync()
		os.Exit(1)
	}

	logger.Info("机台服务已安全关闭")

	// 同步日志
	if err := logger.Sync(); err != nil {
		fmt.Printf("同步日志失败: %v\n", err)
	}
}

// waitForSignal 阻塞等待退出信号
func waitForSignal() {
	sigCh := make(chan os.Signal, 1)

	signal.Notify(sigCh,
		syscall.SIGINT,  // Ctrl+C
		syscall.SIGTERM, // kill命令
		syscall.SIGQUIT, // Ctrl+\
	)

	sig := <-sigCh
	logger.Info("收到退出信号", zap.String("signal", sig.String()))
}

// setupSystem 设置系统参数
func setupSystem(cfg *config.SystemConfig) {
	// 设置时区
	if cfg.Timezone != "" {
		if loc, err := time.LoadLocation(cfg.Timezone); err == nil {
			time.Local = loc
		}
	}

	// 设置最大处理器数
	if cfg.MaxProcs > 0 {
		runtime.GOMAXPROCS(cfg.MaxProcs)
	}

	// 设置文件描述符限制（Unix系统）
	var rLimit syscall.Rlimit
	if err := syscall.Getrlimit(syscall.RLIMIT_NOFILE, &rLimit); err == nil {
		rLimit.Cur = rLimit.Max
		syscall.Setrlimit(syscall.RLIMIT_NOFILE, &rLimit)
	}
}

// printVersion 打印版本信息
func printVersion() {
	fmt.Printf("BeautiBox 机台服务\n")
	fmt.Printf("版本: %s\n", Version)
	fmt.Printf("构建时间: %s\n", BuildTime)
	fmt.Printf("Git提交: %s\n", GitCommit)
	fmt.Printf("Go版本: %s\n", runtime.Version())
	fmt.Printf("操作系统: %s/%s\n", runtime.GOOS, runtime.GOARCH)
}

// printHelp 打印帮助信息
func printHelp() {
	fmt.Println("BeautiBox 机台服务")
	fmt.Println()
	fmt.Println("用法:")
	fmt.Println("  kiosk-server [选项]")
	fmt.Println()
	fmt.Println("选项:")
	flag.PrintDefaults()
	fmt.Println()
	fmt.Println("环境变量:")
	fmt.Println("  配置项均可用 KIOSK_ 前缀的环境变量覆盖，层级用下划线分隔")
	fmt.Println("  例如: KIOSK_SERVER_PORT=9090 KIOSK_MQTT_ENABLED=true")
	fmt.Println()
	fmt.Println("示例:")
	fmt.Println("  kiosk-server -config=/etc/beautibox/config.yaml")
	fmt.Println("  kiosk-server -version")
}

// printStartInfo 打印启动信息
func printStartInfo(cfg *config.Config) {
	banner := `
╔══════════════════════════════════════════════════╗
║                                                  ║
║          BeautiBox Kiosk Device Service          ║
║              无人售货机台设备服务                ║
║                                                  ║
╚══════════════════════════════════════════════════╝
`
	fmt.Println(banner)
	fmt.Printf("版本: %s | 模式: %s | PID: %d\n", Version, cfg.Server.Mode, os.Getpid())
	if file := config.ConfigFileUsed(); file != "" {
		fmt.Printf("配置文件: %s\n", file)
	} else {
		fmt.Println("配置文件: 未找到，使用默认配置")
	}
	fmt.Println("══════════════════════════════════════════════════")
}
