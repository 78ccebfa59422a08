package checkin

import (
	"time"

	"github.com/fitnessquest/server/internal/combat"
)

// Eligibility describes whether a member can claim the welcome back bonus.
type Eligibility struct {
	Eligible   bool
	DaysMissed int
	Reason     string
}

// WelcomeBackEligibility checks a member against the absence rules on today.
func WelcomeBackEligibility(rules combat.Rules, m Member, today time.Time) Eligibility {
	if m.LastCheckIn.IsZero() {
		return Eligibility{Reason: "no previous check-ins"}
	}
	days := DaysBetween(m.LastCheckIn, today)
	if m.WelcomeBack.Active && m.WelcomeBack.Remaining > 0 {
		return Eligibility{DaysMissed: days, Reason: "welcome back bonus already active"}
	}
	if days < rules.WelcomeBackMinMissedDays {
		return Eligibility{DaysMissed: days, Reason: "not away long enough"}
	}
	return Eligibility{Eligible: true, DaysMissed: days}
}

// ActivateWelcomeBack applies the bonus: an immediate heal and a number of
// boosted check-ins. It returns the HP restored.
func ActivateWelcomeBack(rules combat.Rules, m *Member) int {
	healed := min(rules.WelcomeBackHeal, max(0, m.MaxHP-m.CurrentHP))
	m.CurrentHP += healed
	m.WelcomeBack = WelcomeBack{Active: rules.WelcomeBackCheckIns > 0, Remaining: rules.WelcomeBackCheckIns}
	return healed
}

func decrementWelcomeBack(wb WelcomeBack) WelcomeBack {
	wb.Remaining--
	if wb.Remaining <= 0 {
		return WelcomeBack{}
	}
	return wb
}
