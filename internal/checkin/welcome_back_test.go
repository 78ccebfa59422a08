package checkin

import (
	"testing"
	"time"

	"github.com/fitnessquest/server/internal/combat"
)

func TestWelcomeBackEligibility(t *testing.T) {
	rules := combat.DefaultRules()
	tests := []struct {
		name     string
		daysAgo  int
		never    bool
		active   bool
		eligible bool
	}{
		{"never checked in", 0, true, false, false},
		{"checked in yesterday", 1, false, false, false},
		{"two days away", 2, false, false, false},
		{"three days away", 3, false, false, true},
		{"a month away", 30, false, false, true},
		{"buff already active", 10, false, true, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewMember(rules, "m1", "p1", "u1", "Ada")
			if !tt.never {
				m.LastCheckIn = testDate.AddDate(0, 0, -tt.daysAgo)
			}
			if tt.active {
				m.WelcomeBack = WelcomeBack{Active: true, Remaining: 2}
			}
			got := WelcomeBackEligibility(rules, m, testDate)
			if got.Eligible != tt.eligible {
				t.Errorf("Eligible = %v (%s), want %v", got.Eligible, got.Reason, tt.eligible)
			}
			if !tt.never && got.DaysMissed != tt.daysAgo {
				t.Errorf("DaysMissed = %d, want %d", got.DaysMissed, tt.daysAgo)
			}
		})
	}
}

func TestActivateWelcomeBack(t *testing.T) {
	rules := combat.DefaultRules()
	m := NewMember(rules, "m1", "p1", "u1", "Ada")
	m.CurrentHP = 90

	if healed := ActivateWelcomeBack(rules, &m); healed != 10 {
		t.Errorf("healed = %d, want 10 (capped at missing HP)", healed)
	}
	if m.CurrentHP != 100 {
		t.Errorf("CurrentHP = %d, want 100", m.CurrentHP)
	}
	if !m.WelcomeBack.Active || m.WelcomeBack.Remaining != 3 {
		t.Errorf("WelcomeBack = %+v", m.WelcomeBack)
	}

	m.CurrentHP = 40
	m.WelcomeBack = WelcomeBack{}
	if healed := ActivateWelcomeBack(rules, &m); healed != 20 {
		t.Errorf("healed = %d, want 20", healed)
	}
}

func TestDecrementWelcomeBack(t *testing.T) {
	wb := WelcomeBack{Active: true, Remaining: 2}
	wb = decrementWelcomeBack(wb)
	if !wb.Active || wb.Remaining != 1 {
		t.Errorf("after one use = %+v", wb)
	}
	wb = decrementWelcomeBack(wb)
	if wb.Active || wb.Remaining != 0 {
		t.Errorf("after last use = %+v", wb)
	}
}

func TestDaysBetween(t *testing.T) {
	late := testDate.Add(23*time.Hour + 59*time.Minute)
	if got := DaysBetween(testDate, late); got != 0 {
		t.Errorf("same day = %d", got)
	}
	if got := DaysBetween(late, testDate.AddDate(0, 0, 1)); got != 1 {
		t.Errorf("next day = %d", got)
	}
}
