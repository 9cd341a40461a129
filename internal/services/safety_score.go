package services

import (
	"safetrails/internal/utils"
)

// ComputeSafetyScore derives a user's safety score from their history:
// start at 100, subtract 10 per SOS ticket, add 2 per community post capped
// at +20, add 1 per completed trip capped at +30, clamp to [0, 100].
func ComputeSafetyScore(sosCount, communityPostCount, completedTripCount int64) int {
	score := int64(100)

	score -= sosCount * 10

	communityBonus := communityPostCount * 2
	if communityBonus > 20 {
		communityBonus = 20
	}
	score += communityBonus

	tripBonus := completedTripCount
	if tripBonus > 30 {
		tripBonus = 30
	}
	score += tripBonus

	if score < utils.SafetyScoreMin {
		score = utils.SafetyScoreMin
	}
	if score > utils.SafetyScoreMax {
		score = utils.SafetyScoreMax
	}

	return int(score)
}
