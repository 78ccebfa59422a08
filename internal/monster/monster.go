// Package monster defines party bosses, their templates and scaling.
package monster

import (
	"fmt"
	"strings"

	"github.com/fitnessquest/server/internal/stats"
)

// Type is the monster's combat archetype.
type Type string

const (
	Tank        Type = "TANK"
	Balanced    Type = "BALANCED"
	GlassCannon Type = "GLASS_CANNON"
)

// Types lists every monster type in a stable order.
var Types = []Type{Tank, Balanced, GlassCannon}

// ParseType converts a string to a Type. GLASS and GLASS-CANNON are accepted.
func ParseType(s string) (Type, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "TANK":
		return Tank, nil
	case "BALANCED":
		return Balanced, nil
	case "GLASS_CANNON", "GLASS-CANNON", "GLASS":
		return GlassCannon, nil
	}
	return "", fmt.Errorf("unknown monster type %q", s)
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *Type) UnmarshalText(text []byte) error {
	parsed, err := ParseType(string(text))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// DefaultCounterDice is the counterattack damage roll when a monster doesn't set one.
var DefaultCounterDice = stats.Dice{Count: 2, Sides: 6, Bonus: 2}

// Monster is a shared party boss.
type Monster struct {
	ID                  string
	Name                string
	Type                Type
	MaxHP               int
	CurrentHP           int
	ArmorClass          int
	BaseDamage          [2]int // min, max
	CounterattackChance int    // percent, 0-100
	CounterDice         stats.Dice
	IsDefeated          bool
	Version             int
}

// HPPercent returns remaining HP as a percentage of max.
func (m *Monster) HPPercent() float64 {
	if m.MaxHP <= 0 {
		return 0
	}
	return float64(m.CurrentHP) * 100 / float64(m.MaxHP)
}

// Damage lowers CurrentHP, never below zero, and marks the monster defeated at zero.
// It returns the HP actually removed.
func (m *Monster) Damage(amount int) int {
	if amount <= 0 || m.IsDefeated {
		return 0
	}
	before := m.CurrentHP
	m.CurrentHP = max(0, m.CurrentHP-amount)
	if m.CurrentHP == 0 {
		m.IsDefeated = true
	}
	return before - m.CurrentHP
}

// Dice returns the counterattack damage roll. Explicit dice win, then the
// base damage range (expressed as 1dN+B), then DefaultCounterDice.
func (m *Monster) Dice() stats.Dice {
	return counterDice(m.CounterDice, m.BaseDamage)
}

func counterDice(d stats.Dice, dmg [2]int) stats.Dice {
	if d.Count > 0 {
		return d
	}
	if dmg[1] > 0 && dmg[1] >= dmg[0] {
		return stats.Dice{Count: 1, Sides: dmg[1] - dmg[0] + 1, Bonus: dmg[0] - 1}
	}
	return DefaultCounterDice
}

// Template is a catalog entry used to spawn monsters.
type Template struct {
	Name                string     `yaml:"name"`
	Type                Type       `yaml:"type"`
	MaxHP               int        `yaml:"max_hp"`
	ArmorClass          int        `yaml:"armor_class"`
	BaseDamage          [2]int     `yaml:"base_damage"`
	CounterattackChance int        `yaml:"counterattack_chance"`
	CounterDice         stats.Dice `yaml:"counter_dice"`
}

// Spawn creates a fresh monster at full HP.
func (t Template) Spawn(id string) *Monster {
	return &Monster{
		ID:                  id,
		Name:                t.Name,
		Type:                t.Type,
		MaxHP:               t.MaxHP,
		CurrentHP:           t.MaxHP,
		ArmorClass:          t.ArmorClass,
		BaseDamage:          t.BaseDamage,
		CounterattackChance: t.CounterattackChance,
		CounterDice:         t.CounterDice,
	}
}

// DefaultTemplates are the stock stats for each type. Counterattacks roll
// the base damage range.
var DefaultTemplates = map[Type]Template{
	Tank: {
		Name: "Stone Golem", Type: Tank, MaxHP: 300, ArmorClass: 14,
		BaseDamage: [2]int{3, 4}, CounterattackChance: 40,
	},
	Balanced: {
		Name: "Shadow Wolf", Type: Balanced, MaxHP: 200, ArmorClass: 12,
		BaseDamage: [2]int{4, 5}, CounterattackChance: 30,
	},
	GlassCannon: {
		Name: "Fire Imp", Type: GlassCannon, MaxHP: 150, ArmorClass: 10,
		BaseDamage: [2]int{5, 6}, CounterattackChance: 20,
	},
}
