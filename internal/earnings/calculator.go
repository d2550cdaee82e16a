// Package earnings converts qualifying stream counts into creator money.
package earnings

import (
	"errors"
	"math"
)

var (
	ErrInvalidPlayCount  = errors.New("invalid_play_count")
	ErrInvalidRate       = errors.New("invalid_rate")
	ErrInvalidCommission = errors.New("invalid_commission")
)

// CreatorShare returns the creator's cut for playCount streams at ratePer1000
// money units per 1000 plays, after the platform keeps commissionPct percent.
// A commission of 100 is valid and yields zero. The result is unrounded;
// accumulation happens at full precision and rounding is a presentation
// concern (Round2).
func CreatorShare(playCount int64, ratePer1000, commissionPct float64) (float64, error) {
	if playCount < 0 {
		return 0, ErrInvalidPlayCount
	}
	if ratePer1000 < 0 || math.IsNaN(ratePer1000) || math.IsInf(ratePer1000, 0) {
		return 0, ErrInvalidRate
	}
	if commissionPct < 0 || commissionPct > 100 || math.IsNaN(commissionPct) {
		return 0, ErrInvalidCommission
	}

	return float64(playCount) / 1000 * ratePer1000 * (100 - commissionPct) / 100, nil
}

// Round2 rounds a money value to 2 decimal places for report and API output.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}
