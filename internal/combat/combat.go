// Package combat implements the dice-and-bonus rules that turn a day of
// goal progress into damage. Everything here is pure: randomness comes in
// through a stats.Roller and nothing is stored.
package combat

import (
	"github.com/fitnessquest/server/internal/stats"
)

// Bonus values
const (
	StreakBonusThreshold = 3
	StreakBonus          = 2
	MaxTeamBonus         = 2
	UnderdogBonus        = 2
	DefensePerStep       = 5
	MaxDefenseSteps      = 5
)

// RollD20 rolls the attack die.
func RollD20(r stats.Roller) int {
	return stats.D20(r)
}

// RollBaseDamage rolls the guaranteed damage of a check-in using the default range (3-5).
func RollBaseDamage(r stats.Roller) int {
	return RollBaseDamageIn(r, DefaultRules())
}

// RollBaseDamageIn rolls base damage within the rule set's range.
func RollBaseDamageIn(r stats.Roller, rules Rules) int {
	return stats.RollRange(r, rules.BaseDamageMin, rules.BaseDamageMax)
}

// Bonuses is the breakdown of an attack roll bonus.
type Bonuses struct {
	Goal     int
	Streak   int
	Team     int
	Underdog int
	Total    int
}

// AttackBonuses sums the situational bonuses for an attack.
// checkedInBefore is the number of teammates who already checked in today.
func AttackBonuses(goalsMet, streak, currentHP, maxHP, checkedInBefore int) Bonuses {
	b := Bonuses{Goal: max(0, goalsMet)}
	if streak >= StreakBonusThreshold {
		b.Streak = StreakBonus
	}
	b.Team = clamp(checkedInBefore, 0, MaxTeamBonus)
	if maxHP > 0 && currentHP*2 < maxHP {
		b.Underdog = UnderdogBonus
	}
	b.Total = b.Goal + b.Streak + b.Team + b.Underdog
	return b
}

// AttackResult is the outcome of one attack roll.
type AttackResult struct {
	Hit    bool
	Damage int
}

// ResolveAttack checks roll+bonus against the target's armor class.
// A hit deals damage+bonus. A miss still deals the base damage.
func ResolveAttack(roll, bonus, damage, targetAC int) AttackResult {
	if roll+bonus >= targetAC {
		return AttackResult{Hit: true, Damage: max(0, damage+bonus)}
	}
	return AttackResult{Hit: false, Damage: max(0, damage)}
}

// DefenseValue derives a member's defense from streak and recent encouragements.
func DefenseValue(streak, encouragementsLast7Days int) int {
	s := clamp(streak, 0, MaxDefenseSteps)
	e := clamp(encouragementsLast7Days, 0, MaxDefenseSteps)
	return min(DefaultRules().MaxDefense, DefensePerStep*s+DefensePerStep*e)
}

// EffectiveCounterChance scales a counterattack chance down by defense.
// Defense 50 halves the chance; defense 100 removes it.
func EffectiveCounterChance(chance, defense int) int {
	chance = clamp(chance, 0, 100)
	defense = clamp(defense, 0, 100)
	return chance * (100 - defense) / 100
}

// ResolveCounterattack rolls whether the monster strikes back.
func ResolveCounterattack(r stats.Roller, chance, defense int) bool {
	return stats.Chance(r, EffectiveCounterChance(chance, defense))
}

// CounterattackDamage rolls the monster's counterattack.
func CounterattackDamage(r stats.Roller, dice stats.Dice) int {
	return dice.Roll(r)
}

// EvaluateGoal reports whether actual lands within flexPercentage of target.
func EvaluateGoal(actual, target, flexPercentage float64) bool {
	flex := target * flexPercentage / 100
	if flex < 0 {
		flex = -flex
	}
	return actual >= target-flex && actual <= target+flex
}

// UpdateStreak returns the streak after today's check-in.
func UpdateStreak(checkedInYesterday bool, streak int) int {
	if checkedInYesterday {
		return max(0, streak) + 1
	}
	return 1
}
