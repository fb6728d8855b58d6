package prediction

import (
	"time"

	"github.com/hitoshi/astropulse/internal/model"
)

// PhaseForMonth は月を四半期のフェーズに変換する。
// 1〜3月=phase_1, 4〜6月=phase_2, 7〜9月=phase_3, 10〜12月=phase_4。
func PhaseForMonth(m time.Month) model.Phase {
	switch {
	case m <= time.March:
		return model.Phase1
	case m <= time.June:
		return model.Phase2
	case m <= time.September:
		return model.Phase3
	default:
		return model.Phase4
	}
}

// PhaseFor は時刻の属する月のフェーズを返す。
func PhaseFor(t time.Time) model.Phase {
	return PhaseForMonth(t.Month())
}
