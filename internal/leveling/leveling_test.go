package leveling

import (
	"testing"

	"github.com/fitnessquest/server/internal/monster"
)

func TestLevelFromXP(t *testing.T) {
	tests := []struct {
		xp   int
		want int
	}{
		{-50, 1},
		{0, 1},
		{99, 1},
		{100, 2},
		{399, 2},
		{400, 3},
		{900, 4},
		{2500, 6},
		{6400, 9},
	}

	for _, tt := range tests {
		if got := LevelFromXP(tt.xp); got != tt.want {
			t.Errorf("LevelFromXP(%d) = %d, want %d", tt.xp, got, tt.want)
		}
	}
}

func TestLevelMonotonic(t *testing.T) {
	prev := LevelFromXP(0)
	for xp := 1; xp <= 20000; xp += 7 {
		level := LevelFromXP(xp)
		if level < prev {
			t.Fatalf("LevelFromXP(%d) = %d dropped below %d", xp, level, prev)
		}
		prev = level
	}
}

func TestXPForLevelInverse(t *testing.T) {
	if XPForLevel(1) != 0 || XPForLevel(0) != 0 {
		t.Errorf("XPForLevel(<=1) should be 0")
	}
	for level := 2; level <= 30; level++ {
		xp := XPForLevel(level)
		if got := LevelFromXP(xp); got != level {
			t.Errorf("LevelFromXP(XPForLevel(%d)) = %d", level, got)
		}
		if got := LevelFromXP(xp - 1); got != level-1 {
			t.Errorf("LevelFromXP(XPForLevel(%d)-1) = %d", level, got)
		}
	}
}

func TestCheckInXP(t *testing.T) {
	if got := CheckInXP(0); got != 10 {
		t.Errorf("CheckInXP(0) = %d, want 10", got)
	}
	if got := CheckInXP(3); got != 16 {
		t.Errorf("CheckInXP(3) = %d, want 16", got)
	}
}

func TestMonsterDefeatXP(t *testing.T) {
	tests := map[monster.Type]int{
		monster.Tank:        100,
		monster.Balanced:    75,
		monster.GlassCannon: 50,
	}
	for typ, want := range tests {
		if got := MonsterDefeatXP(typ); got != want {
			t.Errorf("MonsterDefeatXP(%s) = %d, want %d", typ, got, want)
		}
	}
}

func TestSkillPointsEarned(t *testing.T) {
	if got := SkillPointsEarned(2, 4); got != 2 {
		t.Errorf("SkillPointsEarned(2, 4) = %d, want 2", got)
	}
	if got := SkillPointsEarned(4, 2); got != 0 {
		t.Errorf("SkillPointsEarned(4, 2) = %d, want 0", got)
	}
}

func TestApply(t *testing.T) {
	info := Apply(90, 75)
	if info.XP != 165 || info.OldLevel != 1 || info.NewLevel != 2 || info.SkillPoints != 1 {
		t.Errorf("Apply(90, 75) = %+v", info)
	}
	if !info.LeveledUp() {
		t.Error("expected level up")
	}
}

func TestLevelProgress(t *testing.T) {
	p := LevelProgress(250)
	if p.Level != 2 || p.CurrentLevelXP != 100 || p.NextLevelXP != 400 || p.Percent != 50 {
		t.Errorf("LevelProgress(250) = %+v", p)
	}
	if XPToNextLevel(250) != 150 {
		t.Errorf("XPToNextLevel(250) = %d, want 150", XPToNextLevel(250))
	}
}
