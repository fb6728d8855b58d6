// Package middleware はWebhook受信用のHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"net/http"
	"strings"
)

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

var (
	senderContextKey      = contextKey("sender")
	requestMetaContextKey = contextKey("request_meta")
)

// requestMeta はロギングミドルウェアと内側のミドルウェアで共有するリクエスト情報。
// 内側で付け替えたコンテキストは外側から見えないため、ポインタで受け渡す。
type requestMeta struct {
	sender string
}

// NewSenderMiddleware はフォームのFromフィールドから送信者を取り出し、
// リクエストコンテキストに注入するミドルウェアを返す。
// Fromが空でもリクエストは通す。空送信者の扱いは会話エンジンが決める。
func NewSenderMiddleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sender := ""
			if err := r.ParseForm(); err == nil {
				sender = strings.TrimSpace(r.PostForm.Get("From"))
			}

			if meta, ok := r.Context().Value(requestMetaContextKey).(*requestMeta); ok {
				meta.sender = sender
			}

			ctx := ContextWithSender(r.Context(), sender)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// SenderFromContext はリクエストコンテキストから送信者を取得する。
func SenderFromContext(ctx context.Context) string {
	sender, _ := ctx.Value(senderContextKey).(string)
	return sender
}

// ContextWithSender はコンテキストに送信者を注入する。
func ContextWithSender(ctx context.Context, sender string) context.Context {
	return context.WithValue(ctx, senderContextKey, sender)
}
