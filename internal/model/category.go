package model

import "strings"

// Category は予測カテゴリ。値は予測APIレスポンスのキーと一致する。
type Category string

const (
	CategoryHealth       Category = "health"
	CategoryPhysique     Category = "physique"
	CategoryRelationship Category = "relationship"
	CategoryCareer       Category = "career"
	CategoryTravel       Category = "travel"
	CategoryFamily       Category = "family"
	CategoryFriends      Category = "friends"
	CategoryFinances     Category = "finances"
	CategoryStatus       Category = "status"
)

// Categories はメニュー番号順（1〜9）のカテゴリ一覧。両言語で同じ順序を使う。
var Categories = [...]Category{
	CategoryHealth,
	CategoryPhysique,
	CategoryRelationship,
	CategoryCareer,
	CategoryTravel,
	CategoryFamily,
	CategoryFriends,
	CategoryFinances,
	CategoryStatus,
}

// CategoryAt はメニュー番号（1始まり）に対応するカテゴリを返す。
func CategoryAt(index int) (Category, bool) {
	if index < 1 || index > len(Categories) {
		return "", false
	}
	return Categories[index-1], true
}

var malayalamCategoryLabels = map[Category]string{
	CategoryHealth:       "ആരോഗ്യം",
	CategoryPhysique:     "ശരീരഘടന",
	CategoryRelationship: "ബന്ധം",
	CategoryCareer:       "കരിയർ",
	CategoryTravel:       "യാത്ര",
	CategoryFamily:       "കുടുംബം",
	CategoryFriends:      "സുഹൃത്തുക്കൾ",
	CategoryFinances:     "സാമ്പത്തികം",
	CategoryStatus:       "പ്രതിഷ്ഠ",
}

// Label は言語に応じた表示名を返す。英語は先頭を大文字にしたキー。
func (c Category) Label(lang Language) string {
	if lang == LanguageMalayalam {
		if label, ok := malayalamCategoryLabels[c]; ok {
			return label
		}
	}
	if c == "" {
		return ""
	}
	return strings.ToUpper(string(c[:1])) + string(c[1:])
}

// Phase は予測APIレスポンス内の四半期バケットのキー。
type Phase string

const (
	Phase1 Phase = "phase_1"
	Phase2 Phase = "phase_2"
	Phase3 Phase = "phase_3"
	Phase4 Phase = "phase_4"
)
