package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/astropulse/internal/metrics"
	"github.com/hitoshi/astropulse/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	Engine MessageHandler

	// RateLimiter がnilの場合は送信者ごとのレート制限を行わない。
	RateLimiter *middleware.RateLimiter

	// SignatureValidator がnilの場合はWebhook署名を検証しない。
	SignatureValidator middleware.SignatureValidator
	WebhookURL         string

	ReportDir string
	Gatherer  prometheus.Gatherer
	Logger    *slog.Logger
}

// NewRouter は全エンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → Logging → (POST /bot) Signature → Sender → RateLimit
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.NewRecoveryMiddleware(deps.Logger))
	r.Use(middleware.NewLoggingMiddleware(deps.Logger))

	webhook := NewWebhookHandler(deps.Engine, deps.Logger)
	static := NewStaticHandler(deps.ReportDir, deps.Logger)

	r.Group(func(r chi.Router) {
		if deps.SignatureValidator != nil {
			r.Use(middleware.NewSignatureMiddleware(deps.SignatureValidator, deps.WebhookURL, deps.Logger))
		}
		r.Use(middleware.NewSenderMiddleware())
		if deps.RateLimiter != nil {
			r.Use(deps.RateLimiter.Middleware())
		}
		r.Post("/bot", webhook.Receive)
	})

	r.With(middleware.NewSecurityHeadersMiddleware()).Get("/static/{name}", static.ServeReport)

	r.Get("/health", Health)

	if deps.Gatherer != nil {
		r.Handle("/metrics", metrics.Handler(deps.Gatherer))
	}

	return r
}
