package combat

import (
	"fmt"
	"strings"
)

// Action is the combat choice made with a check-in.
type Action string

const (
	Attack       Action = "ATTACK"
	Defend       Action = "DEFEND"
	Support      Action = "SUPPORT"
	HeroicStrike Action = "HEROIC_STRIKE"
)

// Actions lists every action in a stable order.
var Actions = []Action{Attack, Defend, Support, HeroicStrike}

// ActionSpec is the modifier payload carried by each action.
type ActionSpec struct {
	DamageMultiplier float64
	FocusEarned      int
	FocusCost        int
	MinStreak        int
	MinFocus         int
	AutoHit          bool // skip the roll against AC, bonuses don't apply
	NoCounter        bool // the monster cannot strike back
	PartyDefense     int  // defense added to every party member
	CounterScale     float64
	HealsTeammate    bool
}

var actionSpecs = map[Action]ActionSpec{
	Attack: {
		DamageMultiplier: 1.0,
		FocusEarned:      1,
		CounterScale:     1.0,
	},
	Defend: {
		DamageMultiplier: 0.5,
		FocusCost:        1,
		PartyDefense:     5,
		CounterScale:     0.5,
	},
	Support: {
		DamageMultiplier: 0.5,
		FocusCost:        2,
		MinStreak:        3,
		CounterScale:     1.0,
		HealsTeammate:    true,
	},
	HeroicStrike: {
		DamageMultiplier: 2.0,
		FocusCost:        3,
		MinStreak:        7,
		MinFocus:         3,
		AutoHit:          true,
		NoCounter:        true,
		CounterScale:     1.0,
	},
}

// ParseAction converts a string like "attack" or "heroic-strike" to an Action.
func ParseAction(s string) (Action, error) {
	a := Action(strings.ReplaceAll(strings.ToUpper(strings.TrimSpace(s)), "-", "_"))
	if a == "HEROIC" {
		a = HeroicStrike
	}
	if _, ok := actionSpecs[a]; !ok {
		return "", fmt.Errorf("unknown action %q", s)
	}
	return a, nil
}

// Valid reports whether a is a known action.
func (a Action) Valid() bool {
	_, ok := actionSpecs[a]
	return ok
}

// Spec returns the action's modifiers. Unknown actions get ATTACK's.
func (a Action) Spec() ActionSpec {
	if spec, ok := actionSpecs[a]; ok {
		return spec
	}
	return actionSpecs[Attack]
}

// LockedError explains why an action can't be used yet.
type LockedError struct {
	Action    Action
	Streak    int
	Focus     int
	MinStreak int
	MinFocus  int
}

func (e *LockedError) Error() string {
	return fmt.Sprintf("%s requires streak %d and focus %d (have streak %d, focus %d)",
		e.Action, e.MinStreak, e.MinFocus, e.Streak, e.Focus)
}

// Unlocked returns a *LockedError when streak or focus is too low for the action.
func (a Action) Unlocked(streak, focus int) error {
	spec := a.Spec()
	if streak < spec.MinStreak || focus < spec.MinFocus {
		return &LockedError{
			Action:    a,
			Streak:    streak,
			Focus:     focus,
			MinStreak: spec.MinStreak,
			MinFocus:  spec.MinFocus,
		}
	}
	return nil
}

// FocusDelta is the net focus change of using the action.
func (a Action) FocusDelta() int {
	spec := a.Spec()
	return spec.FocusEarned - spec.FocusCost
}

// ScaleDamage applies the action's multiplier, rounding down.
func (a Action) ScaleDamage(damage int) int {
	return int(float64(damage) * a.Spec().DamageMultiplier)
}

// Available returns the actions usable at the given streak and focus.
func Available(streak, focus int) []Action {
	var out []Action
	for _, a := range Actions {
		if a.Unlocked(streak, focus) == nil {
			out = append(out, a)
		}
	}
	return out
}
