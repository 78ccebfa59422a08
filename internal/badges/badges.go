// Package badges awards achievement badges from a user's check-in history.
package badges

import (
	"context"
	"fmt"
	"time"

	"github.com/fitnessquest/server/internal/logger"
)

// Type identifies a badge.
type Type string

const (
	FirstMonster     Type = "FIRST_MONSTER"
	ThreeMonsters    Type = "THREE_MONSTERS"
	TenMonsters      Type = "TEN_MONSTERS"
	TwentyMonsters   Type = "TWENTY_MONSTERS"
	WeekStreak       Type = "WEEK_STREAK"
	TwoWeekStreak    Type = "TWO_WEEK_STREAK"
	MonthStreak      Type = "MONTH_STREAK"
	HundredDayStreak Type = "HUNDRED_DAY_STREAK"
	GoalMaster       Type = "GOAL_MASTER"
	SupportHero      Type = "SUPPORT_HERO"
	Healer           Type = "HEALER"
	Defender         Type = "DEFENDER"
	HeroicWarrior    Type = "HEROIC_WARRIOR"
	CriticalHero     Type = "CRITICAL_HERO"
)

// Stats are the lifetime counters badges are judged on.
type Stats struct {
	MonstersDefeated   int
	LongestStreak      int
	GoalsMet           int
	EncouragementsSent int
	Heals              int
	Defends            int
	HeroicStrikes      int
	NaturalTwenties    int
}

type rule struct {
	badge     Type
	threshold int
	stat      func(Stats) int
}

func monsters(s Stats) int { return s.MonstersDefeated }
func streak(s Stats) int   { return s.LongestStreak }

// Rules are evaluated in this order, which is also the order newly earned
// badges are reported in.
var rules = []rule{
	{FirstMonster, 1, monsters},
	{ThreeMonsters, 3, monsters},
	{TenMonsters, 10, monsters},
	{TwentyMonsters, 20, monsters},
	{WeekStreak, 7, streak},
	{TwoWeekStreak, 14, streak},
	{MonthStreak, 30, streak},
	{HundredDayStreak, 100, streak},
	{GoalMaster, 100, func(s Stats) int { return s.GoalsMet }},
	{SupportHero, 50, func(s Stats) int { return s.EncouragementsSent }},
	{Healer, 25, func(s Stats) int { return s.Heals }},
	{Defender, 20, func(s Stats) int { return s.Defends }},
	{HeroicWarrior, 10, func(s Stats) int { return s.HeroicStrikes }},
	{CriticalHero, 10, func(s Stats) int { return s.NaturalTwenties }},
}

// Earned returns every badge the stats qualify for.
func Earned(s Stats) []Type {
	var out []Type
	for _, r := range rules {
		if r.stat(s) >= r.threshold {
			out = append(out, r.badge)
		}
	}
	return out
}

// Store reads badge counters and records awards.
type Store interface {
	BadgeStats(ctx context.Context, userID string) (Stats, error)
	// AwardBadge records a badge, reporting false if the user already had it.
	AwardBadge(ctx context.Context, userID string, badge Type, at time.Time) (bool, error)
}

// Evaluator awards badges a user has newly qualified for.
type Evaluator struct {
	store Store
	now   func() time.Time
}

// NewEvaluator creates an evaluator over store.
func NewEvaluator(store Store) *Evaluator {
	return &Evaluator{store: store, now: time.Now}
}

// Evaluate awards every badge the user qualifies for and does not hold yet.
// It returns the new badges.
func (e *Evaluator) Evaluate(ctx context.Context, userID string) ([]string, error) {
	stats, err := e.store.BadgeStats(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("badge stats for %s: %w", userID, err)
	}

	var awarded []string
	now := e.now().UTC()
	for _, b := range Earned(stats) {
		isNew, err := e.store.AwardBadge(ctx, userID, b, now)
		if err != nil {
			return awarded, fmt.Errorf("award %s to %s: %w", b, userID, err)
		}
		if isNew {
			awarded = append(awarded, string(b))
		}
	}
	if len(awarded) > 0 {
		logger.Info("Badges awarded", "user", userID, "badges", awarded)
	}
	return awarded, nil
}
