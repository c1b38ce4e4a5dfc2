package engine

import (
	"math"

	"github.com/longsangsabo/sabo-pool-engine/models"
)

// ClassifyFinalRank maps a finishing position (1-based) onto its reward
// bucket. Positions beyond 16 all earn participation rewards.
func ClassifyFinalRank(position int) models.FinishingPosition {
	switch {
	case position <= 1:
		return models.PositionChampion
	case position == 2:
		return models.PositionRunnerUp
	case position == 3:
		return models.PositionThirdPlace
	case position == 4:
		return models.PositionFourthPlace
	case position <= 8:
		return models.PositionTop8
	case position <= 16:
		return models.PositionTop16
	default:
		return models.PositionParticipation
	}
}

// DefaultRewardTable holds the base point grants per finishing bucket.
func DefaultRewardTable() map[models.FinishingPosition]models.RewardEntry {
	return map[models.FinishingPosition]models.RewardEntry{
		models.PositionChampion:      {EloPoints: 100, SpaPoints: 1000},
		models.PositionRunnerUp:      {EloPoints: 75, SpaPoints: 700},
		models.PositionThirdPlace:    {EloPoints: 50, SpaPoints: 500},
		models.PositionFourthPlace:   {EloPoints: 40, SpaPoints: 400},
		models.PositionTop8:          {EloPoints: 25, SpaPoints: 250},
		models.PositionTop16:         {EloPoints: 15, SpaPoints: 150},
		models.PositionParticipation: {EloPoints: 10, SpaPoints: 100},
	}
}

// DefaultRankMultipliers scales rewards by the player's rank tier so
// beginners (K group) earn full value and stronger tiers earn progressively
// less from the same finish.
func DefaultRankMultipliers() map[models.RankTier]float64 {
	return map[models.RankTier]float64{
		models.TierK: 1.0,
		models.TierI: 0.9,
		models.TierH: 0.8,
		models.TierG: 0.7,
		models.TierF: 0.6,
		models.TierE: 0.5,
	}
}

// RewardCalculator is a pure point calculator: same inputs, same outputs,
// no persistence.
type RewardCalculator struct {
	table       map[models.FinishingPosition]models.RewardEntry
	multipliers map[models.RankTier]float64
}

func NewRewardCalculator() *RewardCalculator {
	return &RewardCalculator{
		table:       DefaultRewardTable(),
		multipliers: DefaultRankMultipliers(),
	}
}

// NewRewardCalculatorWith builds a calculator over custom tables. Missing
// buckets grant zero points; missing tiers multiply by 1.
func NewRewardCalculatorWith(table map[models.FinishingPosition]models.RewardEntry, multipliers map[models.RankTier]float64) *RewardCalculator {
	return &RewardCalculator{table: table, multipliers: multipliers}
}

// Calculate returns the reward for finishing in a position with a given
// rank. Unknown rank codes fall back to the K-group multiplier. Results
// are rounded to the nearest integer and never negative.
func (c *RewardCalculator) Calculate(position models.FinishingPosition, rank models.RankCode) models.RewardEntry {
	base, ok := c.table[position]
	if !ok {
		return models.RewardEntry{}
	}

	mult := 1.0
	if m, ok := c.multipliers[models.TierOf(rank)]; ok {
		mult = m
	}

	return models.RewardEntry{
		EloPoints: scalePoints(base.EloPoints, mult),
		SpaPoints: scalePoints(base.SpaPoints, mult),
	}
}

func scalePoints(base int, mult float64) int {
	v := int(math.Round(float64(base) * mult))
	if v < 0 {
		return 0
	}
	return v
}
