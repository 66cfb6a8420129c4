package main

import (
	"bufio"
	"context"
	stdErrors "errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"OpenAgent-Chain/internal/action"
	"OpenAgent-Chain/internal/api"
	"OpenAgent-Chain/internal/config"
	"OpenAgent-Chain/internal/events"
	"OpenAgent-Chain/internal/memory"
	"OpenAgent-Chain/internal/memory/mysqlstore"
	"OpenAgent-Chain/internal/memory/rediscache"
	"OpenAgent-Chain/internal/observability/alerting"
	"OpenAgent-Chain/internal/observability/metrics"
	"OpenAgent-Chain/internal/orchestrator"
	"OpenAgent-Chain/internal/reasoning"
	"OpenAgent-Chain/internal/reasoning/openai"
	"OpenAgent-Chain/internal/run"
	"OpenAgent-Chain/internal/web3/provider"
	"OpenAgent-Chain/pkg/logger"
)

// main 是 agentd 守护进程的入口。
func main() {
	console := flag.Bool("console", false, "以交互模式运行，从标准输入读取目标")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := runMain(ctx, *console); err != nil && !stdErrors.Is(err, context.Canceled) {
		fmt.Fprintf(os.Stderr, "agentd 运行失败: %v\n", err)
		os.Exit(1)
	}
}

func runMain(ctx context.Context, console bool) error {
	configPath := os.Getenv("AGENTD_CONFIG")
	if configPath == "" {
		configPath = filepath.Join("configs", "agentd.json")
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	if err := logger.Init(logger.Config{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		OutputPaths: cfg.Logging.OutputPaths,
		Audit: logger.AuditConfig{
			Enabled:    cfg.Logging.Audit.Enabled,
			Path:       cfg.Logging.Audit.Path,
			MaxSizeMB:  cfg.Logging.Audit.MaxSizeMB,
			MaxBackups: cfg.Logging.Audit.MaxBackups,
			MaxAgeDays: cfg.Logging.Audit.MaxAgeDays,
		},
	}); err != nil {
		return err
	}
	defer logger.Sync()

	if err := os.MkdirAll(cfg.Runtime.DataDir, 0o755); err != nil {
		return err
	}

	engine, err := createEngine(cfg)
	if err != nil {
		return err
	}

	archive, err := createArchive(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if closer, ok := archive.(interface{ Close() error }); ok {
			_ = closer.Close()
		}
	}()

	registry := action.NewRegistry()

	chainRegistry, err := provider.NewRegistry(ctx, cfg.Web3)
	if err != nil {
		return err
	}
	defer chainRegistry.Close()
	if err := provider.RegisterActions(registry, chainRegistry); err != nil {
		return err
	}

	bus := events.NewBus(events.WithBuffer(cfg.Agent.EventBuffer))
	defer bus.Close()
	unsubscribe := metrics.SubscribeBus(bus)
	defer unsubscribe()

	buildOrchestrator := func(runID string) *orchestrator.Orchestrator {
		opts := []orchestrator.Option{
			orchestrator.WithEventBus(bus),
			orchestrator.WithMemoryDepth(cfg.Agent.MemoryDepth),
			orchestrator.WithThinkTimeout(cfg.Agent.ThinkTimeout()),
			orchestrator.WithDecomposeTimeout(cfg.Agent.DecomposeTimeout()),
			orchestrator.WithActionTimeout(cfg.Agent.ActionTimeout()),
			orchestrator.WithFailurePolicy(failurePolicy(cfg.Agent)),
		}
		if runID != "" {
			opts = append(opts, orchestrator.WithRunID(runID))
		}
		return orchestrator.New(engine, registry, archive, opts...)
	}

	if console {
		return runConsole(ctx, buildOrchestrator)
	}

	store, err := createStore(cfg)
	if err != nil {
		return err
	}
	queue, err := createQueue(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if queue != nil {
			_ = queue.Close()
		}
	}()

	service := run.NewService(store, queue, cfg.Storage.RunStore.Retries)
	defer service.Close()

	launcher := run.LauncherFunc(func(ctx context.Context, r *run.Run) (*orchestrator.Report, error) {
		return buildOrchestrator(r.ID).Run(ctx, r.Objective)
	})

	processorOpts := []run.ProcessorOption{
		run.WithWorkerCount(cfg.RunQueue.Worker),
		run.WithProcessorLogger(logger.Component("processor")),
	}
	if cfg.Alerting.Enabled {
		processorOpts = append(processorOpts,
			run.WithAlertDispatcher(alerting.NewFanout(&alerting.LogNotifier{})))
	}
	processor := run.NewProcessor(launcher, store, queue, queue, processorOpts...)

	processorCtx, processorCancel := context.WithCancel(ctx)
	defer processorCancel()

	go func() {
		if err := processor.Start(processorCtx); err != nil && !stdErrors.Is(err, context.Canceled) {
			logger.L().Error("运行处理器异常退出", slog.Any("error", err))
		}
	}()

	server := api.NewServer(cfg.Server.Address, service)
	logger.L().Info("agentd 已启动",
		slog.String("address", cfg.Server.Address),
		slog.String("queue", cfg.RunQueue.Driver),
		slog.String("store", cfg.Storage.RunStore.Driver),
	)

	if err := server.Start(ctx); err != nil && !stdErrors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// runConsole 进入交互模式，逐行读取目标并同步执行。
// 输入 exit 退出（不区分大小写）。
func runConsole(ctx context.Context, build func(runID string) *orchestrator.Orchestrator) error {
	fmt.Println("agentd 交互模式，输入目标开始执行，输入 exit 退出。")
	scanner := bufio.NewScanner(os.Stdin)
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		fmt.Print("> ")
		if !scanner.Scan() {
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if strings.EqualFold(line, "exit") {
			return nil
		}

		started := time.Now()
		report, err := build("").Run(ctx, line)
		if err != nil {
			fmt.Printf("运行失败: %v\n", err)
			continue
		}
		fmt.Printf("完成 %d 个目标，失败 %d 个，耗时 %s\n",
			report.Stats.Completed, report.Stats.Failed, time.Since(started).Round(time.Millisecond))
		for _, g := range report.Goals {
			fmt.Printf("  [%s] %s (%s)\n", g.Status, g.Description, g.ID)
		}
		for _, stalled := range report.Stalled {
			fmt.Printf("  无法推进: %s (%s)\n", stalled.Description, stalled.Classification)
		}
	}
}

func createEngine(cfg *config.Config) (reasoning.Engine, error) {
	switch cfg.LLM.Provider {
	case "", "openai":
		apiKey := strings.TrimSpace(cfg.LLM.OpenAI.APIKey)
		if apiKey == "" && cfg.LLM.OpenAI.APIKeyEnv != "" {
			apiKey = strings.TrimSpace(os.Getenv(cfg.LLM.OpenAI.APIKeyEnv))
		}
		if apiKey == "" {
			return nil, stdErrors.New("OpenAI provider 需要配置 api_key 或 api_key_env")
		}
		return openai.NewClient(openai.Config{
			APIKey:  apiKey,
			BaseURL: cfg.LLM.OpenAI.BaseURL,
			Model:   cfg.LLM.OpenAI.Model,
			Timeout: cfg.LLM.OpenAI.Timeout(),
		})
	default:
		return nil, fmt.Errorf("未知的大模型 provider: %s", cfg.LLM.Provider)
	}
}

func createArchive(ctx context.Context, cfg *config.Config) (memory.Archive, error) {
	var documents []memory.Document
	if cfg.Memory.Documents != "" {
		loaded, err := memory.LoadDocuments(cfg.Memory.Documents)
		if err != nil {
			return nil, err
		}
		documents = loaded
	}

	var archive memory.Archive
	switch cfg.Memory.Driver {
	case "", "inprocess":
		archive = memory.NewInProcessArchive(
			memory.WithDocuments(documents),
			memory.WithMaxResults(cfg.Memory.MaxResults),
		)
	case "mysql":
		var docGateway memory.Gateway
		if len(documents) > 0 {
			docGateway = memory.NewInProcessArchive(
				memory.WithDocuments(documents),
				memory.WithMaxResults(cfg.Memory.MaxResults),
			)
		}
		store, err := mysqlstore.New(ctx, mysqlstore.Config{DSN: cfg.Memory.DSN}, docGateway)
		if err != nil {
			return nil, err
		}
		archive = store
	default:
		return nil, fmt.Errorf("未知的记忆驱动: %s", cfg.Memory.Driver)
	}

	if cfg.Memory.Cache.Enabled {
		cached, err := rediscache.New(rediscache.Config{
			Address:  cfg.Memory.Cache.Address,
			Password: cfg.Memory.Cache.Password,
			DB:       cfg.Memory.Cache.DB,
			Key:      cfg.Memory.Cache.Key,
			MaxLen:   cfg.Memory.Cache.MaxLen,
		}, archive)
		if err != nil {
			return nil, err
		}
		archive = cached
	}
	return archive, nil
}

func createStore(cfg *config.Config) (run.Store, error) {
	switch cfg.Storage.RunStore.Driver {
	case "", "memory":
		return run.NewMemoryStore(), nil
	case "mysql":
		return run.NewMySQLStore(cfg.Storage.RunStore.DSN)
	default:
		return nil, fmt.Errorf("未知的存储驱动: %s", cfg.Storage.RunStore.Driver)
	}
}

func createQueue(cfg *config.Config) (run.Queue, error) {
	switch cfg.RunQueue.Driver {
	case "", "memory":
		return run.NewMemoryQueue(1024), nil
	case "redis":
		return run.NewRedisQueue(run.RedisQueueConfig{
			Address:   cfg.RunQueue.Redis.Address,
			Password:  cfg.RunQueue.Redis.Password,
			DB:        cfg.RunQueue.Redis.DB,
			Queue:     cfg.RunQueue.Redis.Queue,
			BlockWait: time.Duration(cfg.RunQueue.Redis.BlockWait) * time.Second,
		})
	case "rabbitmq":
		return run.NewRabbitMQQueue(run.RabbitMQConfig{
			URL:        cfg.RunQueue.RabbitMQ.URL,
			Queue:      cfg.RunQueue.RabbitMQ.Queue,
			Prefetch:   cfg.RunQueue.RabbitMQ.Prefetch,
			Durable:    cfg.RunQueue.RabbitMQ.Durable,
			AutoDelete: cfg.RunQueue.RabbitMQ.AutoDelete,
		})
	default:
		return nil, fmt.Errorf("未知的队列驱动: %s", cfg.RunQueue.Driver)
	}
}

func failurePolicy(cfg config.AgentConfig) orchestrator.FailurePolicy {
	switch cfg.FailurePolicy {
	case "stop":
		return orchestrator.StopOnFirstFailure()
	case "stop_after":
		return orchestrator.StopAfter(cfg.FailureBudget)
	default:
		return orchestrator.ContinueAlways()
	}
}
