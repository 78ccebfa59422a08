package combat

import "fmt"

// Rules holds the tunable numbers of the combat model. The same Rules value
// is handed to live check-ins and to the balance simulator.
type Rules struct {
	BaseDamageMin int `yaml:"base_damage_min"`
	BaseDamageMax int `yaml:"base_damage_max"`

	// AttackBonusAdjustment is added to every attack bonus total. Zero keeps
	// the plain goal+streak+team+underdog sum.
	AttackBonusAdjustment int `yaml:"attack_bonus_adjustment"`

	MaxHP         int `yaml:"max_hp"`
	MaxFocus      int `yaml:"max_focus"`
	StartingFocus int `yaml:"starting_focus"`
	MaxDefense    int `yaml:"max_defense"`

	// SupportHeal is the HP restored to the most injured teammate by SUPPORT.
	SupportHeal int `yaml:"support_heal"`

	WelcomeBackDamage        int `yaml:"welcome_back_damage"`
	WelcomeBackHeal          int `yaml:"welcome_back_heal"`
	WelcomeBackCheckIns      int `yaml:"welcome_back_check_ins"`
	WelcomeBackMinMissedDays int `yaml:"welcome_back_min_missed_days"`

	// MonsterPhases makes wounded monsters counterattack more often and harder.
	MonsterPhases bool `yaml:"monster_phases"`
}

// DefaultRules returns the standard rule set.
func DefaultRules() Rules {
	return Rules{
		BaseDamageMin:            3,
		BaseDamageMax:            5,
		MaxHP:                    100,
		MaxFocus:                 10,
		StartingFocus:            5,
		MaxDefense:               50,
		SupportHeal:              10,
		WelcomeBackDamage:        5,
		WelcomeBackHeal:          20,
		WelcomeBackCheckIns:      3,
		WelcomeBackMinMissedDays: 3,
	}
}

// Validate rejects rule sets the engine cannot run with.
func (r Rules) Validate() error {
	switch {
	case r.BaseDamageMin < 1:
		return fmt.Errorf("base_damage_min must be at least 1, got %d", r.BaseDamageMin)
	case r.BaseDamageMax < r.BaseDamageMin:
		return fmt.Errorf("base_damage_max (%d) below base_damage_min (%d)", r.BaseDamageMax, r.BaseDamageMin)
	case r.MaxHP < 1:
		return fmt.Errorf("max_hp must be positive, got %d", r.MaxHP)
	case r.MaxFocus < 0 || r.StartingFocus < 0 || r.StartingFocus > r.MaxFocus:
		return fmt.Errorf("starting_focus %d must be within 0-%d", r.StartingFocus, r.MaxFocus)
	case r.MaxDefense < 0 || r.MaxDefense > 100:
		return fmt.Errorf("max_defense must be within 0-100, got %d", r.MaxDefense)
	case r.SupportHeal < 0 || r.WelcomeBackHeal < 0 || r.WelcomeBackDamage < 0:
		return fmt.Errorf("heal and damage bonuses cannot be negative")
	case r.WelcomeBackCheckIns < 0 || r.WelcomeBackMinMissedDays < 1:
		return fmt.Errorf("welcome back needs check_ins >= 0 and min_missed_days >= 1")
	}
	return nil
}

// ClampFocus keeps focus within 0..MaxFocus.
func (r Rules) ClampFocus(focus int) int {
	return clamp(focus, 0, r.MaxFocus)
}

// ClampDefense keeps defense within 0..MaxDefense.
func (r Rules) ClampDefense(defense int) int {
	return clamp(defense, 0, r.MaxDefense)
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
