// Package conversation は送信者ごとの会話ステートマシンを提供する。
//
// 1通の受信メッセージにつき1回の遷移を行う。順序は
// 入力検証 → 次のセッションの決定 → 送信 → 保存。
// 送信に失敗した場合は遷移を確定せず、前のセッションを残す。
// カテゴリ選択でレポートパイプライン（予測取得 → PDF生成 → メディア送信）を実行する。
package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/hitoshi/astropulse/internal/logger"
	"github.com/hitoshi/astropulse/internal/metrics"
	"github.com/hitoshi/astropulse/internal/model"
	"github.com/hitoshi/astropulse/internal/prediction"
	"github.com/hitoshi/astropulse/internal/report"
	"github.com/hitoshi/astropulse/internal/session"
)

// MessageSender は送信チャネル。delivery.Channelが実装する。
type MessageSender interface {
	SendText(ctx context.Context, to, body string) error
	SendMedia(ctx context.Context, to, body, mediaURL string) error
}

// Predictor は予測文の取得。prediction.Clientが実装する。
type Predictor interface {
	Predict(ctx context.Context, req prediction.Request) (string, error)
}

// Renderer はPDFの生成。report.Rendererが実装する。
type Renderer interface {
	Render(ctx context.Context, doc report.Document) (*report.Artifact, error)
}

// FarewellScheduler は終了メッセージの遅延送信。farewell.Schedulerが実装する。
type FarewellScheduler interface {
	Schedule(recipient, text string)
	Cancel(recipient string) bool
}

// Locker は送信者単位の排他制御。session.KeyedMutexが実装する。
type Locker interface {
	Lock(key string) (unlock func())
}

// Deps はEngineの依存。
type Deps struct {
	Store     session.Store
	Locks     Locker
	Channel   MessageSender
	Predictor Predictor
	Renderer  Renderer
	Farewell  FarewellScheduler
	Metrics   metrics.MetricsCollector
	Logger    *slog.Logger
}

// Config はEngineの設定。
type Config struct {
	// MediaBaseURL はPDFの公開URLの基点（BASE_URL）。
	MediaBaseURL string
	// Now は現在時刻。フェーズ判定に使う。nilならtime.Now。
	Now func() time.Time
}

// Engine は会話ステートマシン。
type Engine struct {
	store     session.Store
	locks     Locker
	channel   MessageSender
	predictor Predictor
	renderer  Renderer
	farewell  FarewellScheduler
	metrics   metrics.MetricsCollector
	logger    *slog.Logger

	mediaBaseURL string
	now          func() time.Time
}

// NewEngine は新しいEngineを生成する。
func NewEngine(deps Deps, cfg Config) *Engine {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Engine{
		store:        deps.Store,
		locks:        deps.Locks,
		channel:      deps.Channel,
		predictor:    deps.Predictor,
		renderer:     deps.Renderer,
		farewell:     deps.Farewell,
		metrics:      deps.Metrics,
		logger:       deps.Logger,
		mediaBaseURL: cfg.MediaBaseURL,
		now:          now,
	}
}

// HandleMessage は受信メッセージ1通を処理する。
// 返すエラーは、メッセージの送信失敗（DeliveryFailure）とセッションの読み書き失敗のみ。
// 入力不正やパイプラインの失敗はユーザーへの通知で完結し、nilを返す。
func (e *Engine) HandleMessage(ctx context.Context, sender, body string) error {
	if sender == "" {
		return model.NewFailure(model.KindValidation, "handle_message", errors.New("empty sender"))
	}

	unlock := e.locks.Lock(sender)
	defer unlock()

	current, err := e.store.Get(ctx, sender)
	if err != nil {
		return fmt.Errorf("セッションの取得に失敗しました: %w", err)
	}
	e.metrics.RecordMessage(current.Step.String())

	next, stepErr := e.step(ctx, current, normalize(body))
	if stepErr != nil {
		kind, _ := model.KindOf(stepErr)
		e.metrics.RecordFailure(string(kind))
		e.logger.Error("メッセージの処理に失敗しました",
			slog.String("sender", logger.MaskSender(sender)),
			slog.String("step", current.Step.String()),
			slog.String("kind", string(kind)),
			slog.String("error", stepErr.Error()),
		)
	}
	if next == nil {
		return stepErr
	}

	next.UpdatedAt = e.now()
	if err := e.store.Put(ctx, *next); err != nil {
		return errors.Join(stepErr, fmt.Errorf("セッションの保存に失敗しました: %w", err))
	}
	if next.Step != current.Step {
		e.metrics.RecordTransition(current.Step.String(), next.Step.String())
	}
	e.logger.Debug("メッセージを処理しました",
		slog.String("sender", logger.MaskSender(sender)),
		slog.String("from", current.Step.String()),
		slog.String("to", next.Step.String()),
	)
	return stepErr
}

// normalize は前後の空白を除去して小文字にする。
func normalize(body string) string {
	return strings.ToLower(strings.TrimSpace(body))
}

func isGreeting(input string) bool {
	return input == "hi" || input == "hello"
}

// step は現在のセッションと入力から次のセッションを決め、応答を送る。
// 戻り値のセッションがnilの場合は遷移を確定しない。
func (e *Engine) step(ctx context.Context, sess model.Session, input string) (*model.Session, error) {
	if isGreeting(input) {
		return e.greet(ctx, sess)
	}

	if sess.Step == model.StepAwaitingLanguage {
		return e.selectLanguage(ctx, sess, input)
	}

	// ここから先は言語選択済みでなければならない
	if !sess.Language.Valid() {
		return e.unmapped(ctx, sess)
	}
	msgs := catalogFor(sess.Language)

	switch sess.Step {
	case model.StepInitial:
		// 言語選択済みなら挨拶以外の入力でもメニューから再開する
		next := sess.Reset()
		next.Step = model.StepAwaitingReportType
		return e.reply(ctx, sess, next, msgs.welcome)

	case model.StepAwaitingReportType:
		switch input {
		case "1":
			next := sess
			next.Step = model.StepAwaitingZodiac
			return e.reply(ctx, sess, next, msgs.zodiacMenu)
		case "2":
			return e.reply(ctx, sess, sess, msgs.comingSoon)
		default:
			return e.reject(ctx, sess, msgs.invalidChoice)
		}

	case model.StepAwaitingZodiac:
		zodiac, ok := parseInRange(input, 1, 12)
		if !ok {
			return e.reject(ctx, sess, msgs.zodiacRange)
		}
		next := sess
		next.Zodiac = zodiac
		next.Step = model.StepAwaitingYear
		return e.reply(ctx, sess, next, msgs.yearPrompt)

	case model.StepAwaitingYear:
		if !isDigits(input) {
			return e.reject(ctx, sess, msgs.invalidYear)
		}
		next := sess
		next.Year = input
		next.Step = model.StepAwaitingCategory
		return e.reply(ctx, sess, next, msgs.categoryMenu)

	case model.StepAwaitingCategory:
		index, ok := parseInRange(input, 1, len(model.Categories))
		if !ok {
			return e.reject(ctx, sess, msgs.categoryRange)
		}
		category, _ := model.CategoryAt(index)
		return e.runPipeline(ctx, sess, category)
	}

	return e.unmapped(ctx, sess)
}

// greet はどの状態からでも言語選択からやり直す。
// 保留中の終了メッセージは、言語メニューを送信できて遷移が確定する場合のみ取り消す。
func (e *Engine) greet(ctx context.Context, sess model.Session) (*model.Session, error) {
	next := sess.Reset()
	next.Step = model.StepAwaitingLanguage
	committed, err := e.reply(ctx, sess, next, languageMenu)
	if err != nil {
		return nil, err
	}

	if e.farewell.Cancel(sess.Sender) {
		e.logger.Info("保留中の終了メッセージを取り消しました",
			slog.String("sender", logger.MaskSender(sess.Sender)),
		)
	}
	return committed, nil
}

func (e *Engine) selectLanguage(ctx context.Context, sess model.Session, input string) (*model.Session, error) {
	var lang model.Language
	switch input {
	case "1":
		lang = model.LanguageEnglish
	case "2":
		lang = model.LanguageMalayalam
	default:
		return e.reject(ctx, sess, invalidLanguageChoice)
	}

	next := sess
	next.Language = lang
	next.Step = model.StepAwaitingReportType
	return e.reply(ctx, sess, next, catalogFor(lang).welcome)
}

// unmapped は定義されていない状態と入力の組み合わせ。汎用の通知を送って初期状態に戻す。
func (e *Engine) unmapped(ctx context.Context, sess model.Session) (*model.Session, error) {
	e.logger.Warn("想定外の状態でメッセージを受信しました",
		slog.String("sender", logger.MaskSender(sess.Sender)),
		slog.String("step", sess.Step.String()),
		slog.String("language", string(sess.Language)),
	)
	return e.reply(ctx, sess, sess.Reset(), catalogFor(sess.Language).invalidInput)
}

// reject は入力不正を通知し、同じステップに留まる。
func (e *Engine) reject(ctx context.Context, sess model.Session, notice string) (*model.Session, error) {
	e.metrics.RecordFailure(string(model.KindValidation))
	return e.reply(ctx, sess, sess, notice)
}

// reply はtextを送信し、成功した場合のみnextを確定する。
func (e *Engine) reply(ctx context.Context, current, next model.Session, text string) (*model.Session, error) {
	if err := e.channel.SendText(ctx, current.Sender, text); err != nil {
		return nil, asDeliveryFailure("send_text", err)
	}
	return &next, nil
}

// runPipeline はレポートパイプラインを実行する。
// どの段階で失敗しても通知を1通送り、言語を残して初期状態に戻す。
func (e *Engine) runPipeline(ctx context.Context, sess model.Session, category model.Category) (*model.Session, error) {
	lang := sess.Language
	msgs := catalogFor(lang)
	reset := sess.Reset()

	if !sess.HasZodiac() || !sess.HasYear() {
		err := model.NewFailure(model.KindSessionIntegrity, "pipeline",
			fmt.Errorf("zodiac=%d year=%q", sess.Zodiac, sess.Year))
		return e.abort(ctx, reset, err, msgs.sessionError)
	}

	text, err := e.predictor.Predict(ctx, prediction.Request{
		Year:     sess.Year,
		Zodiac:   sess.Zodiac,
		Language: lang,
		Phase:    prediction.PhaseFor(e.now()),
		Category: category,
	})
	if err != nil {
		return e.abort(ctx, reset, ensureKind(model.KindDataUnavailable, "predict", err), msgs.predictionError)
	}

	artifact, err := e.renderer.Render(ctx, report.Document{
		Text:     text,
		Category: category,
		Year:     sess.Year,
		Language: lang,
	})
	if err != nil {
		return e.abort(ctx, reset, ensureKind(model.KindRender, "render", err), msgs.renderError)
	}

	mediaURL := report.PublicURL(e.mediaBaseURL, artifact.Name)
	if err := e.channel.SendMedia(ctx, sess.Sender, msgs.caption(lang, category, sess.Year), mediaURL); err != nil {
		return e.abort(ctx, reset, asDeliveryFailure("send_media", err), msgs.sendError)
	}

	e.farewell.Schedule(sess.Sender, msgs.farewell)
	e.metrics.RecordReportDelivered(string(lang))
	e.logger.Info("レポートを送信しました",
		slog.String("sender", logger.MaskSender(sess.Sender)),
		slog.String("language", string(lang)),
		slog.String("category", string(category)),
		slog.String("artifact", artifact.Name),
	)
	return &reset, nil
}

// abort はパイプラインの失敗を記録して通知を送る。
// 通知の送信にも失敗した場合はリセットを確定したうえでDeliveryFailureを返す。
func (e *Engine) abort(ctx context.Context, reset model.Session, cause error, notice string) (*model.Session, error) {
	kind, _ := model.KindOf(cause)
	e.metrics.RecordFailure(string(kind))
	e.logger.Warn("レポートパイプラインを中断しました",
		slog.String("sender", logger.MaskSender(reset.Sender)),
		slog.String("kind", string(kind)),
		slog.String("error", cause.Error()),
	)

	if err := e.channel.SendText(ctx, reset.Sender, notice); err != nil {
		return &reset, asDeliveryFailure("send_text", err)
	}
	return &reset, nil
}

// ensureKind はエラーが分類付きでなければkindで包む。
func ensureKind(kind model.FailureKind, op string, err error) error {
	if _, ok := model.KindOf(err); ok {
		return err
	}
	return model.NewFailure(kind, op, err)
}

func asDeliveryFailure(op string, err error) error {
	if model.IsKind(err, model.KindDelivery) {
		return err
	}
	return model.NewFailure(model.KindDelivery, op, err)
}

// isDigits は空でないASCII数字列かを返す。
func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// parseInRange はASCII数字列をlo以上hi以下の整数として解釈する。
func parseInRange(s string, lo, hi int) (int, bool) {
	if !isDigits(s) {
		return 0, false
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < lo || n > hi {
		return 0, false
	}
	return n, true
}
