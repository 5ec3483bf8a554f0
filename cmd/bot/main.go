package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/tradebot/gotrade/internal/strategies/sample"
	"github.com/tradebot/gotrade/internal/venue/wire"
	"github.com/tradebot/gotrade/pkg/config"
	"github.com/tradebot/gotrade/pkg/env"
	"github.com/tradebot/gotrade/pkg/logger"
	"github.com/tradebot/gotrade/pkg/secretstore"
	"github.com/tradebot/gotrade/pkg/shutdown"
	"github.com/tradebot/gotrade/pkg/syncgroup"
)

func main() {
	configPath := flag.String("config", "", "配置文件路径（支持 .yaml, .yml, .json）")
	symbol := flag.String("symbol", "AAPL", "示例策略标的")
	side := flag.String("side", "BUY", "示例策略方向（BUY/SELL）")
	quantity := flag.Float64("qty", 100, "示例策略数量")
	flag.Parse()

	// .env 可选：不存在时静默跳过
	_ = godotenv.Load()

	cfg, err := config.LoadFromFile(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "加载配置失败: %v\n", err)
		os.Exit(1)
	}

	if err := logger.Init(logger.Config{
		Level:      cfg.Log.Level,
		OutputFile: cfg.Log.File,
		MaxSize:    cfg.Log.MaxSize,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAge:     cfg.Log.MaxAge,
		Compress:   cfg.Log.Compress,
	}); err != nil {
		fmt.Fprintf(os.Stderr, "初始化日志失败: %v\n", err)
		os.Exit(1)
	}

	apiToken, err := loadAPIToken(cfg)
	if err != nil {
		logger.Errorf("读取凭证失败: %v", err)
		os.Exit(1)
	}

	session := wire.NewSession(wire.Options{
		RestPort: cfg.Venue.RestPort,
		APIToken: apiToken,
	})
	environment, err := env.New(cfg, session)
	if err != nil {
		logger.Errorf("组装环境失败: %v", err)
		os.Exit(1)
	}

	if err := environment.Connect(); err != nil {
		logger.Errorf("连接交易所失败: %v", err)
		os.Exit(1)
	}
	logger.Infof("已连接 %s:%d (session=%d)", cfg.Venue.Host, cfg.Venue.Port, cfg.Venue.SessionID)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	group := syncgroup.NewSyncGroup()

	// watchdog 周期巡检
	group.Add(func() {
		environment.RunWatchdog(ctx)
	})

	// 示例策略 worker
	strategy := sample.New(sample.Config{
		Symbol:   *symbol,
		Side:     *side,
		Quantity: *quantity,
	}, environment)
	group.Add(func() {
		if err := strategy.Run(ctx); err != nil && ctx.Err() == nil {
			logger.Errorf("策略退出: %v", err)
		}
	})

	group.Run()

	// 等待退出信号
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Infof("收到信号 %v，开始关闭", sig)

	manager := shutdown.NewManager()
	manager.OnShutdown(func(shutdownCtx context.Context, _ *sync.WaitGroup) {
		cancel()
		done := make(chan struct{})
		go func() {
			group.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-shutdownCtx.Done():
		}
	})

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	manager.Shutdown(shutdownCtx)

	environment.Disconnect()
	logger.Info("已退出")
}

// loadAPIToken 取 REST 凭证：优先凭证库，回退环境变量 VENUE_API_TOKEN
func loadAPIToken(cfg *config.Config) (string, error) {
	if cfg.Secrets.StorePath == "" {
		return os.Getenv("VENUE_API_TOKEN"), nil
	}

	key, err := secretstore.ParseKey(os.Getenv("SECRETS_ENCRYPTION_KEY"))
	if err != nil {
		return "", err
	}
	store, err := secretstore.Open(secretstore.OpenOptions{
		Path:          cfg.Secrets.StorePath,
		EncryptionKey: key,
		ReadOnly:      true,
	})
	if err != nil {
		return "", err
	}
	defer store.Close()

	token, found, err := store.GetString(secretstore.KeyAPIToken)
	if err != nil {
		return "", err
	}
	if !found {
		return os.Getenv("VENUE_API_TOKEN"), nil
	}
	return token, nil
}
