// Package model はドメインモデルを定義する。
package model

import "time"

// Step は会話ステートマシンの現在位置を表す。
type Step int

const (
	// StepInitial は挨拶待ちの初期状態。レポート送信後もこの状態に戻る。
	StepInitial Step = iota
	// StepAwaitingLanguage は言語選択（1=English, 2=Malayalam）待ち。
	StepAwaitingLanguage
	// StepAwaitingReportType はレポート種別（年間/週間）の選択待ち。
	StepAwaitingReportType
	// StepAwaitingZodiac は星座番号（1〜12）の入力待ち。
	StepAwaitingZodiac
	// StepAwaitingYear は年の入力待ち。
	StepAwaitingYear
	// StepAwaitingCategory は予測カテゴリ（1〜9）の選択待ち。ここでパイプラインが走る。
	StepAwaitingCategory
)

// String はメトリクスラベルやログに使う名前を返す。
func (s Step) String() string {
	switch s {
	case StepInitial:
		return "initial"
	case StepAwaitingLanguage:
		return "awaiting_language"
	case StepAwaitingReportType:
		return "awaiting_report_type"
	case StepAwaitingZodiac:
		return "awaiting_zodiac"
	case StepAwaitingYear:
		return "awaiting_year"
	case StepAwaitingCategory:
		return "awaiting_category"
	default:
		return "unknown"
	}
}

// Valid はステップが定義済みの値かを返す。
func (s Step) Valid() bool {
	return s >= StepInitial && s <= StepAwaitingCategory
}

// Language はユーザーが選択した言語。空文字は未選択を表す。
type Language string

const (
	// LanguageUnset は言語未選択。
	LanguageUnset Language = ""
	// LanguageEnglish は英語。予測APIのlangパラメータにもそのまま使う。
	LanguageEnglish Language = "en"
	// LanguageMalayalam はマラヤーラム語。
	LanguageMalayalam Language = "ml"
)

// Valid は対応言語のいずれかが設定されているかを返す。
func (l Language) Valid() bool {
	return l == LanguageEnglish || l == LanguageMalayalam
}

// Code は予測APIに渡す言語コードを返す。
func (l Language) Code() string {
	return string(l)
}

// Session は送信者ごとの会話状態。
// Zodiac=0、Year="" はそれぞれ未入力を表し、各ステップの検証を通過した値のみ格納される。
type Session struct {
	Sender    string
	Step      Step
	Language  Language
	Zodiac    int
	Year      string
	UpdatedAt time.Time
}

// NewSession は初回接触時の初期セッションを生成する。
func NewSession(sender string) Session {
	return Session{Sender: sender, Step: StepInitial}
}

// HasZodiac は星座が入力済みかを返す。
func (s Session) HasZodiac() bool {
	return s.Zodiac >= 1 && s.Zodiac <= 12
}

// HasYear は年が入力済みかを返す。
func (s Session) HasYear() bool {
	return s.Year != ""
}

// Reset は初期状態に戻したセッションを返す。言語設定は保持する。
func (s Session) Reset() Session {
	s.Step = StepInitial
	s.Zodiac = 0
	s.Year = ""
	return s
}
