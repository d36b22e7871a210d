package app

import (
	"math"
	"time"

	"hifdh-quest-service/internal/domain"
)

var basePoints = map[domain.QuestionType]int{
	domain.QuestionGuessSurah:    100,
	domain.QuestionGuessMeaning:  150,
	domain.QuestionGuessNext:     200,
	domain.QuestionGuessPrevious: 250,
	domain.QuestionGuessReciter:  150,
}

// BasePoints returns the points a correct answer is worth before bonuses.
func BasePoints(q domain.QuestionType) int {
	if p, ok := basePoints[q]; ok {
		return p
	}
	return 100
}

// SpeedMultiplier rewards fast buzzes. Latency is measured on the server
// clock from the round start, never taken from the client.
func SpeedMultiplier(latency time.Duration) float64 {
	switch {
	case latency < 5*time.Second:
		return 1.5
	case latency < 10*time.Second:
		return 1.2
	default:
		return 1.0
	}
}

// StreakBonus is awarded for consecutive correct answers, the current one included.
func StreakBonus(streak int) int {
	switch {
	case streak >= 10:
		return 250
	case streak >= 5:
		return 100
	case streak >= 3:
		return 50
	default:
		return 0
	}
}

func RankBonus(rank int) int {
	switch rank {
	case 1:
		return 25
	case 2:
		return 10
	default:
		return 0
	}
}

// ScoreCorrect computes the award for a correct judgment.
func ScoreCorrect(q domain.QuestionType, latency time.Duration, rank, streak, adminPoints int) domain.ScoreBreakdown {
	base := BasePoints(q)
	mult := SpeedMultiplier(latency)
	speed := int(math.Round(float64(base)*mult)) - base

	b := domain.ScoreBreakdown{
		BasePoints:      base,
		SpeedMultiplier: mult,
		SpeedBonus:      speed,
		StreakBonus:     StreakBonus(streak),
		RankBonus:       RankBonus(rank),
		AdminBonus:      adminPoints,
	}
	b.Total = b.BasePoints + b.SpeedBonus + b.StreakBonus + b.RankBonus + b.AdminBonus
	if b.Total < 0 {
		b.Total = 0
	}
	return b
}
