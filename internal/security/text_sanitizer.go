// Package security はアプリケーションのセキュリティ機能を提供する。
//
// TextSanitizer は予測APIから受け取った文章をプレーンテキストに変換する。
// PDFにはマークアップを描画できないため、タグを全て除去し、
// 改行を意味するタグだけを改行文字として残す。
package security

import (
	"html"
	"regexp"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// TextSanitizerService はプレーンテキスト化のインターフェース。
type TextSanitizerService interface {
	// PlainText はHTML断片からタグを除去し、エンティティを復元したテキストを返す。
	// <br> と段落の終わりは改行に置き換える。前後の空白は除去する。
	PlainText(raw string) string
}

var (
	lineBreakTags = regexp.MustCompile(`(?i)<br\s*/?>|</p\s*>`)
	blankLines    = regexp.MustCompile(`\n{3,}`)
)

// textSanitizer はTextSanitizerServiceの実装。
// bluemondayのStrictPolicyは全てのタグを除去する。
type textSanitizer struct {
	policy *bluemonday.Policy
}

// NewTextSanitizer はTextSanitizerServiceの新しいインスタンスを生成する。
func NewTextSanitizer() *textSanitizer {
	return &textSanitizer{
		policy: bluemonday.StrictPolicy(),
	}
}

// PlainText はHTML断片をプレーンテキストに変換する。
func (s *textSanitizer) PlainText(raw string) string {
	if raw == "" {
		return ""
	}
	withBreaks := lineBreakTags.ReplaceAllString(raw, "\n")
	stripped := s.policy.Sanitize(withBreaks)
	// StrictPolicyは & < > などをエスケープして返すため元に戻す
	text := html.UnescapeString(stripped)
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = blankLines.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}
