// Package balance simulates parties of synthetic players through the live
// check-in rules and flags economy imbalances in the results.
package balance

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/fitnessquest/server/internal/checkin"
	"github.com/fitnessquest/server/internal/combat"
	"github.com/fitnessquest/server/internal/stats"
)

// Policy is how an archetype picks its combat action.
type Policy string

const (
	PolicyOptimized    Policy = "optimized"
	PolicyMostlyAttack Policy = "mostly-attack"
	PolicyBalanced     Policy = "balanced"
	PolicySupportHeavy Policy = "support-heavy"
	PolicyAttackOnly   Policy = "attack-only"
	PolicyRandom       Policy = "random"
)

// Pattern shapes when an archetype misses days.
type Pattern string

const (
	PatternRandom      Pattern = "random"       // independent daily rolls at CheckInRate
	PatternWeekdayMiss Pattern = "weekday-miss" // shows up mostly on weekends
	PatternClustered   Pattern = "clustered"    // misses come in runs, then a likely return
	PatternBreaks      Pattern = "breaks"       // fixed absence windows
)

// GoalsPerDay is how many goals every simulated player tracks.
const GoalsPerDay = 5

// Break is an inclusive window of days with no check-ins.
type Break struct {
	From int `yaml:"from"`
	To   int `yaml:"to"`
}

// Archetype describes a synthetic player's habits.
type Archetype struct {
	Name              string  `yaml:"name"`
	CheckInRate       float64 `yaml:"check_in_rate"`
	GoalSuccessRate   float64 `yaml:"goal_success_rate"`
	AverageGoals      float64 `yaml:"average_goals"`
	Policy            Policy  `yaml:"policy"`
	EncouragementRate float64 `yaml:"encouragement_rate"`
	Pattern           Pattern `yaml:"pattern"`
	Breaks            []Break `yaml:"breaks,omitempty"`
	// GuaranteedDays are opening days the player never misses.
	GuaranteedDays int `yaml:"guaranteed_days,omitempty"`
}

func (a Archetype) validate() error {
	for _, p := range []float64{a.CheckInRate, a.GoalSuccessRate, a.EncouragementRate} {
		if p < 0 || p > 1 {
			return fmt.Errorf("probabilities must be within 0-1")
		}
	}
	switch a.Policy {
	case PolicyOptimized, PolicyMostlyAttack, PolicyBalanced, PolicySupportHeavy, PolicyAttackOnly, PolicyRandom:
	default:
		return fmt.Errorf("unknown policy %q", a.Policy)
	}
	switch a.Pattern {
	case PatternRandom, PatternWeekdayMiss, PatternClustered, PatternBreaks:
	default:
		return fmt.Errorf("unknown pattern %q", a.Pattern)
	}
	for _, b := range a.Breaks {
		if b.From > b.To {
			return fmt.Errorf("break %d-%d is reversed", b.From, b.To)
		}
	}
	return nil
}

// Stock archetypes
var (
	Perfect = Archetype{
		Name: "Perfect Player", CheckInRate: 1.0, GoalSuccessRate: 1.0, AverageGoals: 5,
		Policy: PolicyOptimized, EncouragementRate: 1.0, Pattern: PatternRandom,
	}
	Consistent = Archetype{
		Name: "Consistent Player", CheckInRate: 0.85, GoalSuccessRate: 0.70, AverageGoals: 3.5,
		Policy: PolicyMostlyAttack, EncouragementRate: 0.3, Pattern: PatternRandom,
	}
	Casual = Archetype{
		Name: "Casual Player", CheckInRate: 0.60, GoalSuccessRate: 0.50, AverageGoals: 2.5,
		Policy: PolicyAttackOnly, EncouragementRate: 0.05, Pattern: PatternWeekdayMiss,
	}
	Returning = Archetype{
		Name: "Returning Player", CheckInRate: 0.55, GoalSuccessRate: 0.60, AverageGoals: 3,
		Policy: PolicyBalanced, EncouragementRate: 0.5, Pattern: PatternBreaks,
		Breaks: []Break{{From: 15, To: 21}, {From: 36, To: 40}},
	}
	Burnout = Archetype{
		Name: "Burnout Player", CheckInRate: 0.25, GoalSuccessRate: 0.30, AverageGoals: 1.5,
		Policy: PolicyAttackOnly, EncouragementRate: 0, Pattern: PatternClustered,
		GuaranteedDays: 14,
	}
	Social = Archetype{
		Name: "Social Butterfly", CheckInRate: 0.75, GoalSuccessRate: 0.60, AverageGoals: 3,
		Policy: PolicySupportHeavy, EncouragementRate: 1.0, Pattern: PatternRandom,
	}
)

// Library holds named archetypes and party presets built from them.
type Library struct {
	Archetypes map[string]Archetype `yaml:"archetypes"`
	Parties    map[string][]string  `yaml:"parties"`
}

// DefaultLibrary returns the stock archetypes and party presets.
func DefaultLibrary() *Library {
	return &Library{
		Archetypes: map[string]Archetype{
			"PERFECT":    Perfect,
			"CONSISTENT": Consistent,
			"CASUAL":     Casual,
			"RETURNING":  Returning,
			"BURNOUT":    Burnout,
			"SOCIAL":     Social,
		},
		Parties: map[string][]string{
			"SOLO":          {"CONSISTENT"},
			"DUO":           {"PERFECT", "CASUAL"},
			"STANDARD_4":    {"PERFECT", "CONSISTENT", "CONSISTENT", "RETURNING"},
			"LARGE_8":       {"PERFECT", "CONSISTENT", "CONSISTENT", "CONSISTENT", "CASUAL", "CASUAL", "RETURNING", "BURNOUT"},
			"SUPPORT_HEAVY": {"SOCIAL", "SOCIAL", "CONSISTENT"},
		},
	}
}

// LoadLibrary reads archetypes and parties from a YAML file. Entries in the
// file replace stock entries with the same key; the rest stay available.
func LoadLibrary(filename string) (*Library, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read archetypes file: %w", err)
	}

	var loaded Library
	if err := yaml.Unmarshal(data, &loaded); err != nil {
		return nil, fmt.Errorf("failed to parse archetypes YAML: %w", err)
	}

	lib := DefaultLibrary()
	for key, a := range loaded.Archetypes {
		if a.Pattern == "" {
			a.Pattern = PatternRandom
		}
		if err := a.validate(); err != nil {
			return nil, fmt.Errorf("archetype %q: %w", key, err)
		}
		lib.Archetypes[strings.ToUpper(key)] = a
	}
	for key, roster := range loaded.Parties {
		lib.Parties[strings.ToUpper(key)] = roster
	}
	for key := range loaded.Parties {
		if _, err := lib.Party(key); err != nil {
			return nil, err
		}
	}
	return lib, nil
}

// Archetype looks up an archetype by key, case-insensitively.
func (l *Library) Archetype(key string) (Archetype, error) {
	a, ok := l.Archetypes[strings.ToUpper(strings.TrimSpace(key))]
	if !ok {
		return Archetype{}, fmt.Errorf("unknown archetype %q", key)
	}
	return a, nil
}

// Party resolves a preset into its roster.
func (l *Library) Party(name string) ([]Archetype, error) {
	keys, ok := l.Parties[strings.ToUpper(strings.TrimSpace(name))]
	if !ok {
		return nil, fmt.Errorf("unknown party preset %q", name)
	}
	if len(keys) == 0 {
		return nil, fmt.Errorf("party preset %q is empty", name)
	}
	roster := make([]Archetype, 0, len(keys))
	for _, k := range keys {
		a, err := l.Archetype(k)
		if err != nil {
			return nil, fmt.Errorf("party %q: %w", name, err)
		}
		roster = append(roster, a)
	}
	return roster, nil
}

// ArchetypeKeys returns archetype keys in sorted order.
func (l *Library) ArchetypeKeys() []string {
	return sortedKeys(l.Archetypes)
}

// PartyNames returns preset names in sorted order.
func (l *Library) PartyNames() []string {
	return sortedKeys(l.Parties)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// chance succeeds with probability p.
func chance(r stats.Roller, p float64) bool {
	switch {
	case p >= 1:
		return true
	case p <= 0:
		return false
	}
	return float64(r.Intn(1_000_000)) < p*1_000_000
}

// ShouldCheckIn decides whether the player shows up on day (1-based).
// history holds the previous days' decisions, oldest first.
func (a Archetype) ShouldCheckIn(r stats.Roller, day int, history []bool) bool {
	if day <= a.GuaranteedDays {
		return true
	}
	switch a.Pattern {
	case PatternBreaks:
		for _, b := range a.Breaks {
			if day >= b.From && day <= b.To {
				return false
			}
		}
	case PatternWeekdayMiss:
		if dow := day % 7; dow == 5 || dow == 6 {
			return chance(r, 0.8)
		}
	case PatternClustered:
		if n := len(history); n >= 3 && !history[n-1] && !history[n-2] && !history[n-3] {
			return chance(r, 0.5)
		}
	}
	return chance(r, a.CheckInRate)
}

// GoalsMet rolls each tracked goal at the archetype's success rate. Players
// who average any goals meet at least one.
func (a Archetype) GoalsMet(r stats.Roller) int {
	met := 0
	for i := 0; i < GoalsPerDay; i++ {
		if chance(r, a.GoalSuccessRate) {
			met++
		}
	}
	if met == 0 && a.AverageGoals > 0 {
		met = 1
	}
	return met
}

// weighted picks from a fixed-probability menu.
type weighted struct {
	action combat.Action
	weight float64
}

var policyMenus = map[Policy][]weighted{
	PolicyMostlyAttack: {{combat.Attack, 0.8}, {combat.Defend, 0.1}, {combat.Support, 0.1}},
	PolicyBalanced:     {{combat.Attack, 0.4}, {combat.Defend, 0.3}, {combat.Support, 0.2}, {combat.HeroicStrike, 0.1}},
	PolicySupportHeavy: {{combat.Attack, 0.2}, {combat.Defend, 0.3}, {combat.Support, 0.4}, {combat.HeroicStrike, 0.1}},
}

// ChooseAction picks today's action for a member whose streak will be
// streak after checking in. Locked picks fall back to ATTACK.
func (a Archetype) ChooseAction(r stats.Roller, self checkin.Member, streak int, teammates []checkin.Member) combat.Action {
	available := combat.Available(streak, self.Focus)
	unlocked := func(act combat.Action) bool { return act.Unlocked(streak, self.Focus) == nil }

	var pick combat.Action
	switch a.Policy {
	case PolicyAttackOnly:
		return combat.Attack
	case PolicyOptimized:
		switch {
		case unlocked(combat.HeroicStrike):
			pick = combat.HeroicStrike
		case unlocked(combat.Support) && needsHealing(self.ID, teammates):
			pick = combat.Support
		default:
			pick = combat.Attack
		}
	case PolicyRandom:
		pick = available[r.Intn(len(available))]
	default:
		menu := policyMenus[a.Policy]
		roll := float64(r.Intn(1_000_000)) / 1_000_000
		pick = combat.Attack
		for _, w := range menu {
			if roll < w.weight {
				pick = w.action
				break
			}
			roll -= w.weight
		}
	}
	if !unlocked(pick) {
		return combat.Attack
	}
	return pick
}

// needsHealing reports whether any teammate is below 70% HP.
func needsHealing(selfID string, teammates []checkin.Member) bool {
	for _, t := range teammates {
		if t.ID != selfID && t.CurrentHP*10 < t.MaxHP*7 {
			return true
		}
	}
	return false
}
