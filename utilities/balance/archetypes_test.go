package balance

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/fitnessquest/server/internal/checkin"
	"github.com/fitnessquest/server/internal/combat"
	"github.com/fitnessquest/server/internal/stats"
)

func TestShouldCheckInGuaranteedDays(t *testing.T) {
	a := Archetype{Name: "Flake", Policy: PolicyAttackOnly, Pattern: PatternRandom, GuaranteedDays: 14}
	r := stats.NewRand(1)
	for day := 1; day <= 14; day++ {
		if !a.ShouldCheckIn(r, day, nil) {
			t.Errorf("day %d: expected a guaranteed check-in", day)
		}
	}
	for day := 15; day <= 30; day++ {
		if a.ShouldCheckIn(r, day, nil) {
			t.Errorf("day %d: zero-rate player checked in", day)
		}
	}
}

func TestShouldCheckInBreaks(t *testing.T) {
	r := stats.NewRand(1)
	for day := 1; day <= 45; day++ {
		inBreak := (day >= 15 && day <= 21) || (day >= 36 && day <= 40)
		a := Returning
		a.CheckInRate = 1
		if got := a.ShouldCheckIn(r, day, nil); got == inBreak {
			t.Errorf("day %d: ShouldCheckIn = %v, in break = %v", day, got, inBreak)
		}
	}
}

func TestShouldCheckInPatterns(t *testing.T) {
	missed3 := []bool{true, false, false, false}
	missed2 := []bool{false, true, false, false, true, false, false}

	tests := []struct {
		name    string
		pattern Pattern
		day     int
		history []bool
		roll    int
		want    bool
	}{
		{"weekday miss on weekend roll low", PatternWeekdayMiss, 5, nil, 0, true},
		{"weekday miss on weekend roll high", PatternWeekdayMiss, 6, nil, 900_000, false},
		{"weekday miss on weekday", PatternWeekdayMiss, 3, nil, 0, false},
		{"clustered return after three misses", PatternClustered, 5, missed3, 0, true},
		{"clustered stays away on high roll", PatternClustered, 5, missed3, 600_000, false},
		{"clustered uses base rate otherwise", PatternClustered, 8, missed2, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := Archetype{Name: "x", Policy: PolicyAttackOnly, Pattern: tt.pattern}
			if got := a.ShouldCheckIn(stats.NewSequence(tt.roll), tt.day, tt.history); got != tt.want {
				t.Errorf("ShouldCheckIn = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestGoalsMet(t *testing.T) {
	r := stats.NewRand(5)
	tests := []struct {
		name string
		a    Archetype
		want int
	}{
		{"always succeeds", Archetype{GoalSuccessRate: 1, AverageGoals: 5}, GoalsPerDay},
		{"never succeeds but floors at one", Archetype{GoalSuccessRate: 0, AverageGoals: 2}, 1},
		{"no goals at all", Archetype{GoalSuccessRate: 0, AverageGoals: 0}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.a.GoalsMet(r); got != tt.want {
				t.Errorf("GoalsMet = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestChooseAction(t *testing.T) {
	rules := combat.DefaultRules()
	self := checkin.NewMember(rules, "m1", "p1", "u1", "Ada")
	healthy := checkin.NewMember(rules, "m2", "p1", "u2", "Bo")
	hurt := healthy
	hurt.CurrentHP = hurt.MaxHP / 2

	tests := []struct {
		name      string
		a         Archetype
		roll      int
		streak    int
		teammates []checkin.Member
		want      combat.Action
	}{
		{"attack only", Casual, 0, 10, nil, combat.Attack},
		{"optimized heroic", Perfect, 0, 7, nil, combat.HeroicStrike},
		{"optimized heals a hurt teammate", Perfect, 0, 3, []checkin.Member{self, hurt}, combat.Support},
		{"optimized attacks when all are healthy", Perfect, 0, 3, []checkin.Member{self, healthy}, combat.Attack},
		{"menu pick", Returning, 750_000, 3, nil, combat.Support},
		{"locked menu pick falls back", Returning, 950_000, 0, nil, combat.Attack},
		{"random picks from available", Archetype{Policy: PolicyRandom}, 1, 0, nil, combat.Defend},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.a.ChooseAction(stats.NewSequence(tt.roll), self, tt.streak, tt.teammates)
			if got != tt.want {
				t.Errorf("ChooseAction = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestDefaultLibraryPartiesResolve(t *testing.T) {
	lib := DefaultLibrary()
	for _, name := range lib.PartyNames() {
		roster, err := lib.Party(name)
		if err != nil {
			t.Errorf("party %s: %v", name, err)
			continue
		}
		if len(roster) != len(lib.Parties[name]) {
			t.Errorf("party %s: roster has %d members, want %d", name, len(roster), len(lib.Parties[name]))
		}
	}
	if _, err := lib.Party("nobody"); err == nil {
		t.Error("expected an error for an unknown preset")
	}
	if a, err := lib.Archetype(" perfect "); err != nil || a.Name != Perfect.Name {
		t.Errorf("Archetype(perfect) = %v, %v", a.Name, err)
	}
}

func TestLoadLibrary(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "archetypes.yaml")
	data := `archetypes:
  grinder:
    name: Grinder
    check_in_rate: 0.95
    goal_success_rate: 0.9
    average_goals: 4
    policy: mostly-attack
    encouragement_rate: 0.2
parties:
  grind_team: [grinder, PERFECT]
`
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatal(err)
	}

	lib, err := LoadLibrary(path)
	if err != nil {
		t.Fatalf("LoadLibrary: %v", err)
	}
	g, err := lib.Archetype("GRINDER")
	if err != nil {
		t.Fatalf("Archetype: %v", err)
	}
	if g.Pattern != PatternRandom {
		t.Errorf("Pattern = %q, want default %q", g.Pattern, PatternRandom)
	}
	roster, err := lib.Party("GRIND_TEAM")
	if err != nil || len(roster) != 2 {
		t.Fatalf("Party = %v, %v", roster, err)
	}
	if _, err := lib.Party("SOLO"); err != nil {
		t.Errorf("stock preset lost after load: %v", err)
	}
}

func TestLoadLibraryErrors(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"bad policy", "archetypes:\n  x:\n    name: X\n    policy: yolo\n"},
		{"bad probability", "archetypes:\n  x:\n    name: X\n    policy: random\n    check_in_rate: 1.5\n"},
		{"unknown member", "parties:\n  team: [GHOST]\n"},
		{"not yaml", "archetypes: [\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "a.yaml")
			if err := os.WriteFile(path, []byte(tt.data), 0644); err != nil {
				t.Fatal(err)
			}
			if _, err := LoadLibrary(path); err == nil {
				t.Error("expected an error")
			}
		})
	}

	if _, err := LoadLibrary(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected an error for a missing file")
	}
}
