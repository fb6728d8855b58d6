package model

import (
	"errors"
	"fmt"
)

// FailureKind は会話処理で発生する失敗の分類。
// メトリクスのラベルとしても使用する。
type FailureKind string

// 定義済みの失敗分類
const (
	// KindValidation はユーザー入力の不正。同じステップで再入力を促す。
	KindValidation FailureKind = "validation"
	// KindSessionIntegrity はパイプライン開始時に必須項目が欠けている状態。
	KindSessionIntegrity FailureKind = "session_integrity"
	// KindDataUnavailable は予測APIから予測文を取得できなかった状態。
	KindDataUnavailable FailureKind = "data_unavailable"
	// KindRender はPDF生成の失敗。
	KindRender FailureKind = "render"
	// KindDelivery はメッセージ送信の失敗。
	KindDelivery FailureKind = "delivery"
)

// Failure は分類付きのエラー。
// Opには失敗した操作名（"predict", "send_media" など）を入れる。
type Failure struct {
	Kind FailureKind
	Op   string
	Err  error
}

// Error はerrorインターフェースを実装する。
func (f *Failure) Error() string {
	if f.Err == nil {
		return fmt.Sprintf("[%s] %s", f.Kind, f.Op)
	}
	return fmt.Sprintf("[%s] %s: %v", f.Kind, f.Op, f.Err)
}

// Unwrap は元のエラーを返す。
func (f *Failure) Unwrap() error {
	return f.Err
}

// NewFailure はFailureを生成する。
func NewFailure(kind FailureKind, op string, err error) *Failure {
	return &Failure{Kind: kind, Op: op, Err: err}
}

// KindOf はエラーチェーンからFailureの分類を取り出す。
func KindOf(err error) (FailureKind, bool) {
	var f *Failure
	if errors.As(err, &f) {
		return f.Kind, true
	}
	return "", false
}

// IsKind はエラーが指定分類のFailureを含むかを返す。
func IsKind(err error, kind FailureKind) bool {
	k, ok := KindOf(err)
	return ok && k == kind
}
