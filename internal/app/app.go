// Package app はコマンドの解析と依存関係のワイヤリングを行う。
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/hitoshi/astropulse/internal/config"
	"github.com/hitoshi/astropulse/internal/conversation"
	"github.com/hitoshi/astropulse/internal/delivery"
	"github.com/hitoshi/astropulse/internal/handler"
	"github.com/hitoshi/astropulse/internal/logger"
	"github.com/hitoshi/astropulse/internal/metrics"
	"github.com/hitoshi/astropulse/internal/middleware"
	"github.com/hitoshi/astropulse/internal/prediction"
	"github.com/hitoshi/astropulse/internal/report"
	"github.com/hitoshi/astropulse/internal/security"
	"github.com/hitoshi/astropulse/internal/session"
	"github.com/hitoshi/astropulse/internal/worker/cleanup"
	"github.com/hitoshi/astropulse/internal/worker/farewell"
)

const shutdownTimeout = 30 * time.Second

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w, "info")

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// 3. 設定されたレベルでロガーを作り直す
	logger.SetupDefault(w, cfg.LogLevel)

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(fmt.Sprintf("http://localhost:%s/health", port))
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
		slog.String("base_url", cfg.BaseURL),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return runServe(ctx, cfg, slog.Default())
}

// components はserveモードで起動する部品一式。
type components struct {
	router   http.Handler
	cleanup  *cleanup.CleanupJob
	farewell *farewell.Scheduler
	limiter  *middleware.RateLimiter
	store    *session.MemoryStore
}

// close はバックグラウンド処理を持つ部品を停止する。
// 保留中の終了メッセージはキャンセルし、送信中のものは完了を待つ。
func (c *components) close() {
	c.farewell.Stop()
	if c.limiter != nil {
		c.limiter.Stop()
	}
	c.store.Stop()
}

// buildComponents は設定から全依存関係をワイヤリングする。
// 外部サービスへの接続は行わない。
func buildComponents(cfg *config.Config, log *slog.Logger) (*components, error) {
	// 1. メトリクス
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector := metrics.NewCollector(registry)

	// 2. セキュリティサービス
	guard := security.NewOutboundGuard()
	if err := guard.ValidateEndpoint(cfg.PredictionEndpoint); err != nil {
		return nil, fmt.Errorf("invalid PREDICTION_ENDPOINT: %w", err)
	}
	sanitizer := security.NewTextSanitizer()

	// 3. マラヤーラム語フォント（無いとマラヤーラム語のレポートを生成できない）
	if err := checkFontFile(cfg.MalayalamFontPath); err != nil {
		return nil, fmt.Errorf("invalid MALAYALAM_FONT_PATH: %w", err)
	}

	// 4. 外部サービスのクライアント
	predictor := prediction.NewClient(
		guard.NewSafeClient(cfg.PredictionTimeout),
		prediction.Config{
			Endpoint:        cfg.PredictionEndpoint,
			APIKey:          cfg.PredictionAPIKey,
			MaxResponseSize: cfg.PredictionMaxSize,
			PhaseFallback:   cfg.PredictionPhaseFallback,
		},
		sanitizer, collector, log,
	)
	channel := delivery.NewTwilioChannel(cfg.TwilioAccountSID, cfg.TwilioAuthToken, cfg.TwilioNumber, log)
	renderer := report.NewRenderer(cfg.ReportDir, cfg.MalayalamFontPath, log)

	// 5. 会話状態とバックグラウンド処理
	store := session.NewMemoryStore(cfg.SessionIdleTTL)
	scheduler := farewell.NewScheduler(channel, cfg.FarewellDelay, collector, log)
	cleanupJob := cleanup.NewCleanupJob(cfg.ReportDir, cfg.ReportRetention, log)

	engine := conversation.NewEngine(conversation.Deps{
		Store:     store,
		Locks:     session.NewKeyedMutex(),
		Channel:   channel,
		Predictor: predictor,
		Renderer:  renderer,
		Farewell:  scheduler,
		Metrics:   collector,
		Logger:    log,
	}, conversation.Config{
		MediaBaseURL: cfg.BaseURL,
	})

	// 6. ルーター
	deps := &handler.RouterDeps{
		Engine:     engine,
		WebhookURL: cfg.WebhookURL(),
		ReportDir:  cfg.ReportDir,
		Gatherer:   registry,
		Logger:     log,
	}
	var limiter *middleware.RateLimiter
	if cfg.RateLimitWebhook > 0 {
		limiter = middleware.NewRateLimiter(middleware.NewRateLimiterConfig(cfg.RateLimitWebhook), log)
		deps.RateLimiter = limiter
	}
	if cfg.TwilioValidateSignature {
		deps.SignatureValidator = middleware.NewTwilioValidator(cfg.TwilioAuthToken)
	}

	return &components{
		router:   handler.NewRouter(deps),
		cleanup:  cleanupJob,
		farewell: scheduler,
		limiter:  limiter,
		store:    store,
	}, nil
}

// checkFontFile はフォントファイルが通常ファイルとして存在するかを確認する。
func checkFontFile(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("font not found: %w", err)
	}
	if !info.Mode().IsRegular() {
		return fmt.Errorf("font path %q is not a regular file", path)
	}
	return nil
}

// runServe はWebhookサーバーモードで起動する。
// ctxがキャンセルされる（SIGINT/SIGTERM）とグレースフルシャットダウンを行う。
func runServe(ctx context.Context, cfg *config.Config, log *slog.Logger) error {
	c, err := buildComponents(cfg, log)
	if err != nil {
		return err
	}
	defer c.close()

	// レポートのクリーンアップをバックグラウンドで実行
	jobCtx, cancelJobs := context.WithCancel(ctx)
	defer cancelJobs()
	if cfg.ReportCleanupInterval > 0 {
		go c.cleanup.Start(jobCtx, cfg.ReportCleanupInterval)
	}

	server := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           c.router,
		ReadHeaderTimeout: 10 * time.Second,
		// パイプライン（予測取得・PDF生成・送信）を含むため長めに取る
		WriteTimeout: 90 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("webhook server starting",
			slog.String("addr", server.Addr),
			slog.String("webhook_url", cfg.WebhookURL()),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server listen error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("shutting down webhook server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	log.Info("webhook server stopped gracefully")
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(url string) error {
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}
