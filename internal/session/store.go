// Package session は送信者ごとの会話状態の保存と排他制御を提供する。
package session

import (
	"context"

	"github.com/hitoshi/astropulse/internal/model"
)

// Store は送信者IDをキーとするセッションの保存先。
// 会話エンジンはこのインターフェースだけに依存する。
type Store interface {
	// Get は送信者のセッションを返す。存在しない場合は初期状態の新しいセッションを返す。
	Get(ctx context.Context, sender string) (model.Session, error)
	// Put はセッションを保存する。既存の値は置き換える。
	Put(ctx context.Context, sess model.Session) error
}
