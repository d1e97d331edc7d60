package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/charging-platform/csms-gateway/internal/command"
	"github.com/charging-platform/csms-gateway/internal/config"
	"github.com/charging-platform/csms-gateway/internal/dashboard"
	"github.com/charging-platform/csms-gateway/internal/eventbus"
	"github.com/charging-platform/csms-gateway/internal/logger"
	"github.com/charging-platform/csms-gateway/internal/message"
	"github.com/charging-platform/csms-gateway/internal/metrics"
	"github.com/charging-platform/csms-gateway/internal/session"
	"github.com/charging-platform/csms-gateway/internal/settings"
	"github.com/charging-platform/csms-gateway/internal/transport"
	"github.com/charging-platform/csms-gateway/internal/tsdb"
)

func main() {
	// 1. 加载配置
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// 2. 初始化日志
	log, err := logger.New(&logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
		Async:  cfg.Log.Async,
	})
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	log.Info("Logger initialized")

	// 3. 事件总线
	bus := eventbus.New(log)

	// 4. 设置仓库：Redis不可用时降级为无持久化
	repo := buildSettingsRepository(cfg, log)
	defer repo.Close()

	// 5. 会话注册表 + 别名预热
	registry := session.NewRegistry(bus, repo, log)
	preloadAliases(registry, repo, log)

	// 6. 命令门面
	service := command.NewService(registry, bus, cfg.OCPP.ReportTimeout, log)

	// 7. 前端推送
	fanout := dashboard.NewFanout(bus, log)

	// 8. 时序落盘
	writer := tsdb.NewInfluxWriter(cfg.Influx.URL, cfg.Influx.Token, cfg.Influx.Org, cfg.Influx.Bucket)
	defer writer.Close()
	tsdb.NewSink(bus, writer, log)
	log.Infof("Time-series sink ready (bucket=%s)", cfg.Influx.Bucket)

	// 9. Kafka外发（可选）
	var producer *message.KafkaProducer
	if cfg.KafkaEnabled() {
		producer, err = message.NewKafkaProducer(cfg.Kafka.Brokers, cfg.Kafka.UpstreamTopic, bus)
		if err != nil {
			log.Fatalf("Failed to initialize Kafka producer: %v", err)
		}
		log.Infof("Kafka producer initialized (topic=%s)", cfg.Kafka.UpstreamTopic)
	}

	// 10. 监控服务器
	metrics.RegisterMetrics()
	go startMetricsServer(cfg.GetMetricsAddr(), log)
	log.Infof("Metrics server starting on %s", cfg.GetMetricsAddr())

	// 11. 接入层
	server := transport.NewServer(cfg, registry, service, fanout, bus, log)
	go func() {
		if err := server.Start(); err != nil {
			log.Fatalf("Gateway server failed: %v", err)
		}
	}()

	// 12. 等待退出信号后优雅关停
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	log.Infof("Received signal %s, shutting down", sig)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Errorf("Server shutdown failed: %v", err)
	}
	registry.CloseAll()
	if producer != nil {
		if err := producer.Close(); err != nil {
			log.Errorf("Kafka producer close failed: %v", err)
		}
	}
	log.Info("Gateway stopped")
}

// buildSettingsRepository 优先Redis，连接失败回落到noop
func buildSettingsRepository(cfg *config.Config, log *logger.Logger) settings.Repository {
	if cfg.Redis.Addr == "" {
		log.Warn("Redis not configured, charge point settings will not be persisted")
		return settings.NewNoopRepository()
	}

	client := redis.NewClient(&redis.Options{
		Addr:        cfg.Redis.Addr,
		Password:    cfg.Redis.Password,
		DB:          cfg.Redis.DB,
		DialTimeout: 5 * time.Second,
	})
	repo, err := settings.NewRedisRepository(client, log)
	if err != nil {
		log.Warnf("Redis unavailable (%v), falling back to in-memory settings", err)
		client.Close()
		return settings.NewNoopRepository()
	}
	log.Infof("Settings repository ready (redis=%s)", cfg.Redis.Addr)
	return repo
}

// preloadAliases 启动时恢复断线充电桩的别名
func preloadAliases(registry *session.Registry, repo settings.Repository, log *logger.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	records, err := repo.LoadAll(ctx)
	if err != nil {
		log.Warnf("Alias preload failed: %v", err)
		return
	}
	registry.PreloadAliases(records)
}

// startMetricsServer 独立端口暴露Prometheus指标
func startMetricsServer(addr string, log *logger.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Errorf("Metrics server failed: %v", err)
	}
}
