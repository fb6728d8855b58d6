package middleware

import (
	"log/slog"
	"net/http"

	twclient "github.com/twilio/twilio-go/client"
)

// twilioSignatureHeader はTwilioがWebhookに付与する署名ヘッダー。
const twilioSignatureHeader = "X-Twilio-Signature"

// SignatureValidator はWebhook署名の検証に必要なインターフェース。
// twilio-goのclient.RequestValidatorが満たす。
type SignatureValidator interface {
	Validate(url string, params map[string]string, expectedSignature string) bool
}

// NewTwilioValidator はAuth TokenからSignatureValidatorを生成する。
func NewTwilioValidator(authToken string) SignatureValidator {
	v := twclient.NewRequestValidator(authToken)
	return &v
}

// NewSignatureMiddleware はX-Twilio-Signatureを検証するミドルウェアを返す。
// webhookURLはTwilioに登録した公開URL（プロキシ越しでもこのURLで署名される）。
// 検証に失敗したリクエストには403を返す。
func NewSignatureMiddleware(validator SignatureValidator, webhookURL string, logger *slog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			signature := r.Header.Get(twilioSignatureHeader)
			if signature == "" {
				logger.Warn("webhook signature missing",
					slog.String("path", r.URL.Path),
				)
				http.Error(w, "forbidden", http.StatusForbidden)
				return
			}

			if err := r.ParseForm(); err != nil {
				http.Error(w, "bad request", http.StatusBadRequest)
				return
			}

			params := make(map[string]string, len(r.PostForm))
			for key, values := range r.PostForm {
				if len(values) > 0 {
					params[key] = values[0]
				}
			}

			if !validator.Validate(webhookURL, params, signature) {
				logger.Warn("webhook signature invalid",
					slog.String("path", r.URL.Path),
				)
				http.Error(w, "forbidden", http.StatusForbidden)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
