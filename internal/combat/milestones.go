package combat

// Milestones are the HP percentages that trigger a one-time celebration,
// deepest first.
var Milestones = []int{25, 50, 75}

// MilestoneCrossed returns the deepest milestone passed when HP drops from
// oldHP to newHP, or 0 if none was crossed.
func MilestoneCrossed(oldHP, newHP, maxHP int) int {
	if maxHP <= 0 || newHP >= oldHP {
		return 0
	}
	for _, m := range Milestones {
		// percent > m  <=>  hp*100 > m*maxHP, kept in integers
		if oldHP*100 > m*maxHP && newHP*100 <= m*maxHP {
			return m
		}
	}
	return 0
}

// Phase is how desperate a monster has become.
type Phase struct {
	Number             int
	Name               string
	CounterattackBonus int // percentage points
	DamageBonus        int
	DamageMultiplier   float64
}

var phases = [4]Phase{
	{Number: 1, Name: "Normal", DamageMultiplier: 1.0},
	{Number: 2, Name: "Bloodied", CounterattackBonus: 10, DamageBonus: 1, DamageMultiplier: 1.0},
	{Number: 3, Name: "Enraged", CounterattackBonus: 20, DamageBonus: 2, DamageMultiplier: 1.0},
	{Number: 4, Name: "Desperate", CounterattackBonus: 30, DamageMultiplier: 1.5},
}

// PhaseFor returns the phase for the monster's remaining HP.
func PhaseFor(currentHP, maxHP int) Phase {
	if maxHP <= 0 {
		return phases[0]
	}
	switch pct := currentHP * 100; {
	case pct > 75*maxHP:
		return phases[0]
	case pct > 50*maxHP:
		return phases[1]
	case pct > 25*maxHP:
		return phases[2]
	default:
		return phases[3]
	}
}

// ApplyToDamage adds the phase's bonus and multiplier to counterattack damage.
func (p Phase) ApplyToDamage(damage int) int {
	return int(float64(damage+p.DamageBonus) * p.DamageMultiplier)
}
