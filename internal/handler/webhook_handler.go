// Package handler はHTTPハンドラーとルーティングを提供する。
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/hitoshi/astropulse/internal/logger"
	"github.com/hitoshi/astropulse/internal/middleware"
)

// Webhookの応答本文
const (
	responseSuccess = "success"
	responseError   = "error"
)

// MessageHandler はWebhookハンドラーが必要とする会話エンジンのインターフェース。
type MessageHandler interface {
	HandleMessage(ctx context.Context, sender, body string) error
}

// WebhookHandler はTwilioの受信Webhookを処理するHTTPハンドラー。
type WebhookHandler struct {
	engine MessageHandler
	logger *slog.Logger
}

// NewWebhookHandler はWebhookHandlerを生成する。
func NewWebhookHandler(engine MessageHandler, logger *slog.Logger) *WebhookHandler {
	return &WebhookHandler{
		engine: engine,
		logger: logger,
	}
}

// Receive は受信メッセージを会話エンジンに渡す。
// POST /bot
//
// 処理結果に関わらずHTTP 200を返し、本文でsuccess/errorを区別する。
// Twilio側が接続を切っても処理を続けるため、キャンセルを切り離したコンテキストを使う。
func (h *WebhookHandler) Receive(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.logger.Warn("webhook form parse failed", slog.String("error", err.Error()))
		writeText(w, responseError)
		return
	}

	sender := middleware.SenderFromContext(r.Context())
	if sender == "" {
		sender = strings.TrimSpace(r.PostForm.Get("From"))
	}
	body := r.PostForm.Get("Body")

	ctx := context.WithoutCancel(r.Context())
	if err := h.engine.HandleMessage(ctx, sender, body); err != nil {
		h.logger.Error("webhook handling failed",
			slog.String("sender", logger.MaskSender(sender)),
			slog.String("error", err.Error()),
		)
		writeText(w, responseError)
		return
	}

	writeText(w, responseSuccess)
}

// Health は死活監視用のエンドポイント。
// GET /health
func Health(w http.ResponseWriter, r *http.Request) {
	writeText(w, "ok")
}

func writeText(w http.ResponseWriter, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(body))
}
