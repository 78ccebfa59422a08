package combat

import (
	"errors"
	"testing"

	"github.com/fitnessquest/server/internal/stats"
)

func TestRollD20Range(t *testing.T) {
	r := stats.NewRand(7)
	for i := 0; i < 200; i++ {
		if roll := RollD20(r); roll < 1 || roll > 20 {
			t.Fatalf("RollD20() = %d, expected 1-20", roll)
		}
	}
}

func TestRollBaseDamageRange(t *testing.T) {
	r := stats.NewRand(8)
	for i := 0; i < 200; i++ {
		if dmg := RollBaseDamage(r); dmg < 3 || dmg > 5 {
			t.Fatalf("RollBaseDamage() = %d, expected 3-5", dmg)
		}
	}
}

func TestAttackBonuses(t *testing.T) {
	tests := []struct {
		name                               string
		goals, streak, hp, maxHP, teamMate int
		want                               Bonuses
	}{
		{"fresh", 1, 1, 100, 100, 0, Bonuses{Goal: 1, Total: 1}},
		{"streak", 2, 3, 100, 100, 0, Bonuses{Goal: 2, Streak: 2, Total: 4}},
		{"team capped", 0, 0, 100, 100, 5, Bonuses{Team: 2, Total: 2}},
		{"underdog", 1, 0, 49, 100, 1, Bonuses{Goal: 1, Team: 1, Underdog: 2, Total: 4}},
		{"half hp is not underdog", 0, 0, 50, 100, 0, Bonuses{}},
		{"everything", 3, 10, 10, 100, 3, Bonuses{Goal: 3, Streak: 2, Team: 2, Underdog: 2, Total: 9}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := AttackBonuses(tt.goals, tt.streak, tt.hp, tt.maxHP, tt.teamMate)
			if got != tt.want {
				t.Errorf("AttackBonuses() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestResolveAttack(t *testing.T) {
	// A miss still lands the base damage.
	miss := ResolveAttack(1, 0, 4, 20)
	if miss.Hit || miss.Damage != 4 {
		t.Errorf("ResolveAttack(1, 0, 4, 20) = %+v, want miss for 4", miss)
	}

	hit := ResolveAttack(15, 5, 4, 12)
	if !hit.Hit || hit.Damage != 9 {
		t.Errorf("ResolveAttack(15, 5, 4, 12) = %+v, want hit for 9", hit)
	}

	exact := ResolveAttack(10, 2, 3, 12)
	if !exact.Hit {
		t.Error("roll+bonus equal to AC should hit")
	}
}

func TestDefenseValue(t *testing.T) {
	tests := []struct {
		streak, enc, want int
	}{
		{0, 0, 0},
		{1, 0, 5},
		{3, 2, 25},
		{5, 5, 50},
		{30, 30, 50},
		{-2, 1, 5},
	}
	for _, tt := range tests {
		if got := DefenseValue(tt.streak, tt.enc); got != tt.want {
			t.Errorf("DefenseValue(%d, %d) = %d, want %d", tt.streak, tt.enc, got, tt.want)
		}
	}
}

func TestEffectiveCounterChance(t *testing.T) {
	if got := EffectiveCounterChance(30, 0); got != 30 {
		t.Errorf("no defense = %d, want 30", got)
	}
	if got := EffectiveCounterChance(30, 50); got != 15 {
		t.Errorf("defense 50 = %d, want 15", got)
	}
	if got := EffectiveCounterChance(150, 0); got != 100 {
		t.Errorf("chance clamps to 100, got %d", got)
	}
}

func TestResolveCounterattack(t *testing.T) {
	r := stats.NewRand(9)
	for i := 0; i < 100; i++ {
		if ResolveCounterattack(r, 0, 0) {
			t.Fatal("0% counterattack fired")
		}
		if !ResolveCounterattack(r, 100, 0) {
			t.Fatal("100% counterattack missed")
		}
	}
	// Intn(100) returning 29 is under 30.
	if !ResolveCounterattack(stats.NewSequence(29), 30, 0) {
		t.Error("roll 29 should beat chance 30")
	}
	if ResolveCounterattack(stats.NewSequence(30), 30, 0) {
		t.Error("roll 30 should not beat chance 30")
	}
}

func TestCounterattackDamage(t *testing.T) {
	r := stats.NewRand(10)
	d := stats.MustParseDice("2d6+2")
	for i := 0; i < 100; i++ {
		if dmg := CounterattackDamage(r, d); dmg < 4 || dmg > 14 {
			t.Fatalf("CounterattackDamage() = %d, expected 4-14", dmg)
		}
	}
}

func TestEvaluateGoal(t *testing.T) {
	tests := []struct {
		actual, target, flex float64
		want                 bool
	}{
		{10000, 10000, 0, true},
		{9000, 10000, 10, true},
		{8999, 10000, 10, false},
		{11000, 10000, 10, true},
		{11001, 10000, 10, false},
		{0, 0, 0, true},
	}
	for _, tt := range tests {
		if got := EvaluateGoal(tt.actual, tt.target, tt.flex); got != tt.want {
			t.Errorf("EvaluateGoal(%v, %v, %v) = %v, want %v", tt.actual, tt.target, tt.flex, got, tt.want)
		}
	}
}

func TestUpdateStreak(t *testing.T) {
	if got := UpdateStreak(true, 4); got != 5 {
		t.Errorf("UpdateStreak(true, 4) = %d, want 5", got)
	}
	if got := UpdateStreak(false, 4); got != 1 {
		t.Errorf("UpdateStreak(false, 4) = %d, want 1", got)
	}
}

func TestActionGating(t *testing.T) {
	tests := []struct {
		action        Action
		streak, focus int
		unlocked      bool
	}{
		{Attack, 0, 0, true},
		{Defend, 0, 0, true},
		{Support, 2, 10, false},
		{Support, 3, 0, true},
		{HeroicStrike, 7, 2, false},
		{HeroicStrike, 6, 10, false},
		{HeroicStrike, 7, 3, true},
	}
	for _, tt := range tests {
		err := tt.action.Unlocked(tt.streak, tt.focus)
		if (err == nil) != tt.unlocked {
			t.Errorf("%s.Unlocked(%d, %d) = %v, want unlocked=%v", tt.action, tt.streak, tt.focus, err, tt.unlocked)
		}
		var locked *LockedError
		if err != nil && !errors.As(err, &locked) {
			t.Errorf("expected *LockedError, got %T", err)
		}
	}
}

func TestActionPayload(t *testing.T) {
	if Attack.FocusDelta() != 1 || Defend.FocusDelta() != -1 || Support.FocusDelta() != -2 || HeroicStrike.FocusDelta() != -3 {
		t.Error("unexpected focus deltas")
	}
	if got := Defend.ScaleDamage(9); got != 4 {
		t.Errorf("Defend.ScaleDamage(9) = %d, want 4", got)
	}
	if got := HeroicStrike.ScaleDamage(4); got != 8 {
		t.Errorf("HeroicStrike.ScaleDamage(4) = %d, want 8", got)
	}
	if !HeroicStrike.Spec().AutoHit || Defend.Spec().PartyDefense != 5 || !Support.Spec().HealsTeammate {
		t.Error("unexpected action payloads")
	}
}

func TestParseAction(t *testing.T) {
	for in, want := range map[string]Action{
		"attack":        Attack,
		"DEFEND":        Defend,
		"heroic-strike": HeroicStrike,
		"heroic":        HeroicStrike,
		" support ":     Support,
	} {
		got, err := ParseAction(in)
		if err != nil || got != want {
			t.Errorf("ParseAction(%q) = %q, %v", in, got, err)
		}
	}
	if _, err := ParseAction("dance"); err == nil {
		t.Error("expected error for unknown action")
	}
}

func TestAvailable(t *testing.T) {
	if got := Available(0, 0); len(got) != 2 {
		t.Errorf("Available(0, 0) = %v", got)
	}
	if got := Available(7, 3); len(got) != 4 {
		t.Errorf("Available(7, 3) = %v", got)
	}
}

func TestRulesValidate(t *testing.T) {
	if err := DefaultRules().Validate(); err != nil {
		t.Fatalf("default rules invalid: %v", err)
	}
	bad := DefaultRules()
	bad.BaseDamageMax = 1
	if err := bad.Validate(); err == nil {
		t.Error("expected error for max below min")
	}
	bad = DefaultRules()
	bad.StartingFocus = 11
	if err := bad.Validate(); err == nil {
		t.Error("expected error for starting focus above cap")
	}
}
