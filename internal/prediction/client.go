// Package prediction はVedic Astro APIの年間予測の取得を提供する。
// 星座・年・言語で1回のGETを行い、指定フェーズ・カテゴリの予測文を取り出す。
package prediction

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"time"

	"github.com/hitoshi/astropulse/internal/metrics"
	"github.com/hitoshi/astropulse/internal/model"
	"github.com/hitoshi/astropulse/internal/security"
)

const (
	// defaultMaxResponseSize はレスポンスボディの上限（1MiB）。
	defaultMaxResponseSize int64 = 1 << 20
	userAgent                    = "AstroPulse/1.0"
)

// errResponseTooLarge はレスポンスボディが上限を超えたことを示す。
var errResponseTooLarge = errors.New("response body exceeds size limit")

// Request は予測取得の入力。
type Request struct {
	Year     string
	Zodiac   int
	Language model.Language
	Phase    model.Phase
	Category model.Category
}

// Config は予測クライアントの設定。
type Config struct {
	Endpoint        string
	APIKey          string
	MaxResponseSize int64
	// PhaseFallback が有効な場合、要求フェーズがレスポンスに無ければ
	// キー順で最初のフェーズを代わりに使う。
	PhaseFallback bool
}

// Client は予測APIのクライアント。
type Client struct {
	httpClient *http.Client
	sanitizer  security.TextSanitizerService
	metrics    metrics.MetricsCollector
	logger     *slog.Logger

	endpoint        string
	apiKey          string
	maxResponseSize int64
	phaseFallback   bool
}

// NewClient はClientの新しいインスタンスを生成する。
// 本番ではsafeurlのクライアントを渡す。テストではhttptestサーバーに届く通常のクライアントを渡す。
func NewClient(
	httpClient *http.Client,
	cfg Config,
	sanitizer security.TextSanitizerService,
	collector metrics.MetricsCollector,
	logger *slog.Logger,
) *Client {
	maxSize := cfg.MaxResponseSize
	if maxSize <= 0 {
		maxSize = defaultMaxResponseSize
	}
	return &Client{
		httpClient:      httpClient,
		sanitizer:       sanitizer,
		metrics:         collector,
		logger:          logger,
		endpoint:        cfg.Endpoint,
		apiKey:          cfg.APIKey,
		maxResponseSize: maxSize,
		phaseFallback:   cfg.PhaseFallback,
	}
}

// yearlyResponse はAPIレスポンスの外枠。
// responseはフェーズ名をキーとするオブジェクトだが、エラー時は文字列が入るため遅延デコードする。
type yearlyResponse struct {
	Status   int             `json:"status"`
	Response json.RawMessage `json:"response"`
}

type categoryEntry struct {
	Prediction string `json:"prediction"`
}

// Predict は予測文を取得する。
// 失敗時は全てDataUnavailableのmodel.Failureを返す。
func (c *Client) Predict(ctx context.Context, req Request) (string, error) {
	start := time.Now()
	text, err := c.predict(ctx, req)
	c.metrics.RecordPredictionLatency(time.Since(start))
	if err != nil {
		c.logger.Error("予測の取得に失敗しました",
			slog.String("error", err.Error()),
			slog.Int("zodiac", req.Zodiac),
			slog.String("year", req.Year),
			slog.String("phase", string(req.Phase)),
			slog.String("category", string(req.Category)),
		)
		return "", model.NewFailure(model.KindDataUnavailable, "predict", err)
	}
	return text, nil
}

func (c *Client) predict(ctx context.Context, req Request) (string, error) {
	body, err := c.fetch(ctx, req)
	if err != nil {
		return "", err
	}

	var envelope yearlyResponse
	if err := json.Unmarshal(body, &envelope); err != nil {
		return "", fmt.Errorf("レスポンスJSONのパースに失敗しました: %w", err)
	}
	if len(envelope.Response) == 0 || string(envelope.Response) == "null" {
		return "", fmt.Errorf("レスポンスにresponseがありません")
	}

	var phases map[string]json.RawMessage
	if err := json.Unmarshal(envelope.Response, &phases); err != nil {
		return "", fmt.Errorf("responseがオブジェクトではありません: %s", truncate(string(envelope.Response), 120))
	}

	phaseData, servedPhase, err := c.selectPhase(phases, req.Phase)
	if err != nil {
		return "", err
	}
	if servedPhase != req.Phase {
		c.metrics.RecordPhaseFallback()
		c.logger.Warn("要求したフェーズが無いため別フェーズで代替しました",
			slog.String("requested_phase", string(req.Phase)),
			slog.String("served_phase", string(servedPhase)),
			slog.String("category", string(req.Category)),
		)
	}

	raw, ok := phaseData[string(req.Category)]
	if !ok {
		return "", fmt.Errorf("カテゴリ %q の予測がありません", req.Category)
	}
	var entry categoryEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return "", fmt.Errorf("カテゴリ %q のパースに失敗しました: %w", req.Category, err)
	}

	text := c.sanitizer.PlainText(entry.Prediction)
	if text == "" {
		return "", fmt.Errorf("カテゴリ %q の予測文が空です", req.Category)
	}
	return text, nil
}

// fetch はAPIを呼び出してレスポンスボディを返す。
func (c *Client) fetch(ctx context.Context, req Request) ([]byte, error) {
	reqURL, err := url.Parse(c.endpoint)
	if err != nil {
		return nil, fmt.Errorf("エンドポイントURLのパースに失敗しました: %w", err)
	}

	q := reqURL.Query()
	q.Set("year", req.Year)
	q.Set("zodiac", strconv.Itoa(req.Zodiac))
	q.Set("api_key", c.apiKey)
	q.Set("lang", req.Language.Code())
	reqURL.RawQuery = q.Encode()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("HTTPリクエストの作成に失敗しました: %w", err)
	}
	httpReq.Header.Set("User-Agent", userAgent)
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		// url.Errorはクエリ（api_key）を含むため操作名だけ残す
		var urlErr *url.Error
		if errors.As(err, &urlErr) {
			err = urlErr.Err
		}
		return nil, fmt.Errorf("予測APIの呼び出しに失敗しました: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("予測APIがステータス %d を返しました", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxResponseSize+1))
	if err != nil {
		return nil, fmt.Errorf("レスポンスボディの読み取りに失敗しました: %w", err)
	}
	if int64(len(body)) > c.maxResponseSize {
		return nil, errResponseTooLarge
	}
	return body, nil
}

// selectPhase は要求フェーズのデータを返す。
// 要求フェーズが無いか空の場合、フォールバック有効時はキー順で最初の有効なフェーズを返す。
func (c *Client) selectPhase(phases map[string]json.RawMessage, want model.Phase) (map[string]json.RawMessage, model.Phase, error) {
	if data, ok := decodePhase(phases[string(want)]); ok {
		return data, want, nil
	}
	if !c.phaseFallback {
		return nil, "", fmt.Errorf("フェーズ %q がレスポンスにありません", want)
	}

	keys := make([]string, 0, len(phases))
	for k := range phases {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if data, ok := decodePhase(phases[k]); ok {
			return data, model.Phase(k), nil
		}
	}
	return nil, "", fmt.Errorf("レスポンスに利用可能なフェーズがありません")
}

func decodePhase(raw json.RawMessage) (map[string]json.RawMessage, bool) {
	if len(raw) == 0 {
		return nil, false
	}
	var data map[string]json.RawMessage
	if err := json.Unmarshal(raw, &data); err != nil || len(data) == 0 {
		return nil, false
	}
	return data, true
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
