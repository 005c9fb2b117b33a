package policy

import (
	"fmt"

	"railhaul/internal/domain"
)

// Rules are the tunable thresholds of the greedy strategy.
type Rules struct {
	StoragePhaseTicks   int
	MaxTrainLevel       int
	MaxTownLevel        int
	FinalUpgradeHorizon int
	FinalUpgradeDivisor int
}

func (r Rules) withDefaults() Rules {
	if r.StoragePhaseTicks <= 0 {
		r.StoragePhaseTicks = 150
	}
	if r.MaxTrainLevel <= 0 {
		r.MaxTrainLevel = 3
	}
	if r.MaxTownLevel <= 0 {
		r.MaxTownLevel = 3
	}
	if r.FinalUpgradeHorizon <= 0 {
		r.FinalUpgradeHorizon = 500
	}
	if r.FinalUpgradeDivisor <= 0 {
		r.FinalUpgradeDivisor = 25
	}
	return r
}

type Engine struct {
	rules Rules
}

func New(rules Rules) *Engine {
	return &Engine{rules: rules.withDefaults()}
}

func (e *Engine) Rules() Rules {
	return e.rules
}

// StoragePhase reports whether tick still falls in the opening phase where
// every empty train goes for armor.
func (e *Engine) StoragePhase(tick int) bool {
	return tick < e.rules.StoragePhaseTicks
}

// MarketsToFocus sizes the per-tick market quota by the home town population.
func (e *Engine) MarketsToFocus(population float64) int {
	switch p := int(population); {
	case p <= 1:
		return 1
	case p <= 4:
		return 2
	case p <= 6:
		return 3
	default:
		return 4
	}
}

// Target picks the post kind an empty train should head for, with the reason
// for the decision log.
func (e *Engine) Target(tick, quota int, headingToMarket bool, level int) (domain.PostKind, string) {
	switch {
	case e.StoragePhase(tick):
		return domain.PostKindStorage, fmt.Sprintf("storage phase tick=%d", tick)
	case quota > 0:
		return domain.PostKindMarket, fmt.Sprintf("market quota=%d", quota)
	case headingToMarket:
		return domain.PostKindMarket, "keeping market route"
	case level >= e.rules.MaxTrainLevel:
		return domain.PostKindMarket, fmt.Sprintf("top level=%d", level)
	default:
		return domain.PostKindStorage, "market quota exhausted"
	}
}

// CanUpgradeTrain checks a train parked at home against the armor left.
func (e *Engine) CanUpgradeTrain(t domain.Train, atHome bool, armor float64) (bool, string) {
	switch {
	case t.Level >= e.rules.MaxTrainLevel:
		return false, "max level"
	case !atHome:
		return false, "not at home"
	case t.NextLevelPrice > armor:
		return false, fmt.Sprintf("price=%v armor=%v", t.NextLevelPrice, armor)
	default:
		return true, fmt.Sprintf("level=%d price=%v", t.Level, t.NextLevelPrice)
	}
}

// CanUpgradeTown funds every town level below the last freely. The last
// level waits until all trains are maxed and the armor left after paying
// exceeds a threshold that shrinks as the game nears its horizon.
func (e *Engine) CanUpgradeTown(town domain.Post, trainsMaxed bool, armor float64, tick int) (bool, string) {
	switch {
	case town.Level >= e.rules.MaxTownLevel:
		return false, "max level"
	case town.NextLevelPrice > armor:
		return false, fmt.Sprintf("price=%v armor=%v", town.NextLevelPrice, armor)
	case town.Level < e.rules.MaxTownLevel-1:
		return true, fmt.Sprintf("level=%d price=%v", town.Level, town.NextLevelPrice)
	case !trainsMaxed:
		return false, "trains not maxed"
	}
	leftover := armor - town.NextLevelPrice
	threshold := (e.rules.FinalUpgradeHorizon - tick) / e.rules.FinalUpgradeDivisor
	if leftover > float64(threshold) {
		return true, fmt.Sprintf("final level leftover=%v threshold=%d", leftover, threshold)
	}
	return false, fmt.Sprintf("holding final level leftover=%v threshold=%d", leftover, threshold)
}
