// タスク管理APIのエントリポイント。
// ユーザー登録・ログインと、ユーザーごとのタスクのCRUDを提供する。
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/nao1215/taskhub/internal/auth"
	"github.com/nao1215/taskhub/internal/config"
	"github.com/nao1215/taskhub/internal/repository"
	"github.com/nao1215/taskhub/internal/repository/postgres"
	"github.com/nao1215/taskhub/internal/repository/sqlite"
	"github.com/nao1215/taskhub/internal/server"
	"github.com/nao1215/taskhub/internal/task"
	"github.com/nao1215/taskhub/pkg/event"
	"github.com/nao1215/taskhub/pkg/httpclient"
	"github.com/nao1215/taskhub/pkg/logger"
	"github.com/nao1215/taskhub/pkg/middleware"
)

// defaultWebhookBackoff はWebhook配信の初回リトライまでの待機時間。
const defaultWebhookBackoff = 200 * time.Millisecond

func main() {
	if err := run(); err != nil {
		slog.Error("taskhub terminated", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("設定の読み込みに失敗: %w", err)
	}
	log := logger.New("taskhub", cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer store.Close()

	version, err := store.SchemaVersion(ctx)
	if err != nil {
		return fmt.Errorf("スキーマバージョンの取得に失敗: %w", err)
	}
	log.Info("store ready", "driver", cfg.DatabaseDriver, "schema_version", version)

	sink, closeSink, err := buildPublisher(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeSink()

	// 配信はリクエストとは別のgoroutineで行い、停止時にキューを流し切る
	publisher := event.NewAsync(sink, log, cfg.EventQueueSize)
	defer func() {
		drainCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := publisher.Close(drainCtx); err != nil {
			log.Warn("event queue not drained", "error", err)
		}
	}()

	issuer := middleware.NewTokenIssuer(cfg.JWTSecret, cfg.TokenTTL)
	authSvc, err := auth.New(store, issuer, publisher, log, cfg.BcryptCost)
	if err != nil {
		return fmt.Errorf("認証サービスの初期化に失敗: %w", err)
	}
	taskSvc := task.New(store, publisher, log)

	var metrics server.Metrics
	if cfg.MetricsEnabled {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		metrics = reg
	}

	srv, err := server.New(server.Options{
		Addr:        cfg.Addr(),
		Auth:        authSvc,
		Tasks:       taskSvc,
		Issuer:      issuer,
		Store:       store,
		Logger:      log,
		CORSOrigins: cfg.CORSOrigins,
		Metrics:     metrics,
	})
	if err != nil {
		return fmt.Errorf("サーバーの初期化に失敗: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Run()
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("サーバーの起動に失敗: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("shutting down", "timeout", cfg.ShutdownTimeout)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("サーバーの停止に失敗: %w", err)
	}
	return <-errCh
}

// openStore は設定されたドライバーでデータストアを開き、マイグレーションを適用する。
func openStore(ctx context.Context, cfg config.Config, log *slog.Logger) (repository.Store, error) {
	switch cfg.DatabaseDriver {
	case config.DriverSQLite:
		repo, err := sqlite.Open(ctx, cfg.DatabaseURL, log)
		if err != nil {
			return nil, fmt.Errorf("SQLiteの初期化に失敗: %w", err)
		}
		return repo, nil
	case config.DriverPostgres:
		repo, err := postgres.Open(ctx, cfg.DatabaseURL, log)
		if err != nil {
			return nil, fmt.Errorf("PostgreSQLの初期化に失敗: %w", err)
		}
		return repo, nil
	default:
		return nil, fmt.Errorf("未対応のデータベースドライバー: %q", cfg.DatabaseDriver)
	}
}

// buildPublisher は設定された配信先からイベントのPublisherを組み立てる。
// 配信先が無い場合はevent.Nopを返す。
func buildPublisher(ctx context.Context, cfg config.Config, log *slog.Logger) (event.Publisher, func(), error) {
	var (
		publishers event.Multi
		closers    []func()
	)

	if cfg.MQTTURL != "" {
		target, err := event.ParseMQTTURL(cfg.MQTTURL)
		if err != nil {
			return nil, nil, err
		}
		client, err := event.ConnectMQTT(ctx, target, "taskhub-"+uuid.NewString()[:8])
		if err != nil {
			return nil, nil, err
		}
		p := event.NewMQTTPublisher(client, target.Topic)
		publishers = append(publishers, p)
		closers = append(closers, p.Close)
		log.Info("mqtt publisher enabled", "broker", target.Broker, "topic", target.Topic)
	}

	if cfg.EventWebhookURL != "" {
		opts := []httpclient.Option{
			httpclient.WithTimeout(cfg.EventWebhookTimeout),
			httpclient.WithRetry(2, defaultWebhookBackoff),
		}
		if cfg.EventWebhookToken != "" {
			opts = append(opts, httpclient.WithHeader("Authorization", "Bearer "+cfg.EventWebhookToken))
		}
		publishers = append(publishers, event.NewWebhookPublisher(cfg.EventWebhookURL, opts...))
		log.Info("webhook publisher enabled")
	}

	closeAll := func() {
		for _, c := range closers {
			c()
		}
	}
	switch len(publishers) {
	case 0:
		return event.Nop{}, closeAll, nil
	case 1:
		return publishers[0], closeAll, nil
	default:
		return publishers, closeAll, nil
	}
}
