// Package delivery はTwilio Messaging APIによるメッセージ送信を提供する。
// 送信は同期的に1回だけ行い、リトライはしない。
package delivery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/twilio/twilio-go"
	twclient "github.com/twilio/twilio-go/client"
	openapi "github.com/twilio/twilio-go/rest/api/v2010"

	"github.com/hitoshi/astropulse/internal/logger"
	"github.com/hitoshi/astropulse/internal/model"
)

// messageCreator はTwilio APIのメッセージ作成部分。テストで差し替える。
type messageCreator interface {
	CreateMessage(params *openapi.CreateMessageParams) (*openapi.ApiV2010Message, error)
}

// Channel はTwilio経由の送信チャネル。
type Channel struct {
	api    messageCreator
	from   string
	logger *slog.Logger
}

// NewTwilioChannel はアカウントSIDと認証トークンからChannelを生成する。
// fromは送信元番号（WhatsAppの場合は "whatsapp:+14155238886" 形式）。
func NewTwilioChannel(accountSID, authToken, from string, logger *slog.Logger) *Channel {
	rest := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: accountSID,
		Password: authToken,
	})
	return newChannel(rest.Api, from, logger)
}

func newChannel(api messageCreator, from string, logger *slog.Logger) *Channel {
	return &Channel{api: api, from: from, logger: logger}
}

// SendText はテキストメッセージを送信する。
func (c *Channel) SendText(ctx context.Context, to, body string) error {
	params := &openapi.CreateMessageParams{}
	params.SetTo(to)
	params.SetFrom(c.from)
	params.SetBody(body)
	return c.send(ctx, "send_text", to, params)
}

// SendMedia はメディアURL付きのメッセージを送信する。
func (c *Channel) SendMedia(ctx context.Context, to, body, mediaURL string) error {
	params := &openapi.CreateMessageParams{}
	params.SetTo(to)
	params.SetFrom(c.from)
	params.SetBody(body)
	params.SetMediaUrl([]string{mediaURL})
	return c.send(ctx, "send_media", to, params)
}

func (c *Channel) send(ctx context.Context, op, to string, params *openapi.CreateMessageParams) error {
	// twilio-goはcontextを受け取らないため、送信前にだけ確認する
	if err := ctx.Err(); err != nil {
		return model.NewFailure(model.KindDelivery, op, err)
	}

	msg, err := c.api.CreateMessage(params)
	if err != nil {
		attrs := []any{
			slog.String("op", op),
			slog.String("to", logger.MaskSender(to)),
			slog.String("error", err.Error()),
		}
		var restErr *twclient.TwilioRestError
		if errors.As(err, &restErr) {
			attrs = append(attrs,
				slog.Int("twilio_code", restErr.Code),
				slog.Int("http_status", restErr.Status),
			)
		}
		c.logger.Error("メッセージの送信に失敗しました", attrs...)
		return model.NewFailure(model.KindDelivery, op, fmt.Errorf("twilio: %w", err))
	}

	sid := ""
	if msg != nil && msg.Sid != nil {
		sid = *msg.Sid
	}
	c.logger.Debug("メッセージを送信しました",
		slog.String("op", op),
		slog.String("to", logger.MaskSender(to)),
		slog.String("sid", sid),
	)
	return nil
}
