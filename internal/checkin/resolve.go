package checkin

import (
	"time"

	"github.com/fitnessquest/server/internal/combat"
	"github.com/fitnessquest/server/internal/leveling"
	"github.com/fitnessquest/server/internal/monster"
	"github.com/fitnessquest/server/internal/stats"
)

// TurnInput is everything needed to resolve one member's day.
type TurnInput struct {
	Date    time.Time
	Member  Member
	Monster monster.Monster // snapshot taken inside the caller's transaction
	Goals   []GoalOutcome   // Target and FlexPercentage filled in; Met is computed
	Action  combat.Action

	CheckedInYesterday bool
	CheckedInBefore    int      // teammates who already checked in today
	Encouragements7d   int      // encouragements received in the last 7 days
	Teammates          []Member // other party members, for SUPPORT targeting
}

// Heal is a SUPPORT heal applied to a teammate.
type Heal struct {
	MemberID string
	Amount   int
}

// TurnOutcome is the result of resolving a turn. Member is the updated state.
type TurnOutcome struct {
	Goals    []GoalOutcome
	GoalsMet int
	Action   combat.Action
	Bonuses  combat.Bonuses

	TotalBonus  int
	Rolls       []AttackRoll
	Hit         bool // at least one roll hit
	DamageDealt int

	CounterChance int
	Countered     bool
	DamageTaken   int
	Died          bool

	FocusDelta      int
	XPGained        int
	LevelUp         leveling.LevelUpInfo
	WelcomeBackUsed bool

	MonsterID       string
	MonsterHPBefore int
	MonsterHPAfter  int
	Milestone       int
	MonsterDefeated bool

	PartyDefense int // added to every other member's DefenseBuff
	Heal         *Heal

	Member Member
}

// AttackRoll returns the first d20 rolled, or 0 if none.
func (o *TurnOutcome) AttackRoll() int {
	if len(o.Rolls) == 0 {
		return 0
	}
	return o.Rolls[0].Roll
}

// Resolve applies the combat rules to one member's check-in. It is pure apart
// from drawing dice from r, and is shared by live check-ins and the simulator.
func Resolve(rules combat.Rules, r stats.Roller, in TurnInput) (*TurnOutcome, error) {
	if !in.Action.Valid() {
		return nil, ErrUnknownAction
	}
	if in.Monster.IsDefeated || in.Monster.CurrentHP <= 0 {
		return nil, ErrNoActiveMonster
	}
	spec := in.Action.Spec()
	m := in.Member

	out := &TurnOutcome{
		Action:          in.Action,
		MonsterID:       in.Monster.ID,
		MonsterHPBefore: in.Monster.CurrentHP,
	}

	out.Goals = make([]GoalOutcome, len(in.Goals))
	for i, g := range in.Goals {
		g.Met = g.IsRestDay || combat.EvaluateGoal(g.Actual, g.Target, g.FlexPercentage)
		if g.Met {
			out.GoalsMet++
		}
		out.Goals[i] = g
	}

	newStreak := combat.UpdateStreak(in.CheckedInYesterday, m.Streak)
	if err := in.Action.Unlocked(newStreak, m.Focus); err != nil {
		return nil, err
	}

	out.Bonuses = combat.AttackBonuses(out.GoalsMet, newStreak, m.CurrentHP, m.MaxHP, in.CheckedInBefore)
	out.TotalBonus = out.Bonuses.Total + rules.AttackBonusAdjustment

	welcomeBack := m.WelcomeBack.Active && m.WelcomeBack.Remaining > 0

	// One roll per met goal, minimum one.
	attacks := max(1, out.GoalsMet)
	for i := 0; i < attacks; i++ {
		roll := combat.RollD20(r)
		base := combat.RollBaseDamageIn(r, rules)
		if welcomeBack {
			base += rules.WelcomeBackDamage
		}
		a := AttackRoll{Roll: roll, BaseDamage: base}
		if spec.AutoHit {
			a.Hit = true
			a.Damage = in.Action.ScaleDamage(base)
		} else {
			res := combat.ResolveAttack(roll, out.TotalBonus, base, in.Monster.ArmorClass)
			a.Hit = res.Hit
			a.Damage = in.Action.ScaleDamage(res.Damage)
		}
		a.Damage = max(1, a.Damage)
		out.Hit = out.Hit || a.Hit
		out.DamageDealt += a.Damage
		out.Rolls = append(out.Rolls, a)
	}

	out.MonsterHPAfter = max(0, in.Monster.CurrentHP-out.DamageDealt)
	out.Milestone = combat.MilestoneCrossed(out.MonsterHPBefore, out.MonsterHPAfter, in.Monster.MaxHP)
	out.MonsterDefeated = out.MonsterHPAfter == 0

	defense := rules.ClampDefense(combat.DefenseValue(newStreak, in.Encouragements7d) + m.DefenseBuff + spec.PartyDefense)
	out.PartyDefense = spec.PartyDefense

	// A monster only strikes back at members who hit it, and not from the grave.
	if out.Hit && !spec.NoCounter && !out.MonsterDefeated {
		chance := in.Monster.CounterattackChance
		phase := combat.PhaseFor(out.MonsterHPAfter, in.Monster.MaxHP)
		if rules.MonsterPhases {
			chance += phase.CounterattackBonus
		}
		if welcomeBack {
			chance /= 2
		}
		chance = int(float64(chance) * spec.CounterScale)
		out.CounterChance = combat.EffectiveCounterChance(chance, defense)

		if combat.ResolveCounterattack(r, chance, defense) {
			out.Countered = true
			dmg := combat.CounterattackDamage(r, in.Monster.Dice())
			if rules.MonsterPhases {
				dmg = phase.ApplyToDamage(dmg)
			}
			out.DamageTaken = max(0, int(float64(dmg)*spec.CounterScale))
		}
	}

	next := m
	next.Streak = newStreak
	next.Defense = defense
	next.DefenseBuff = 0
	next.CurrentHP = clampHP(m.CurrentHP-out.DamageTaken, m.MaxHP)
	out.Died = m.CurrentHP > 0 && next.CurrentHP == 0

	next.Focus = rules.ClampFocus(m.Focus + spec.FocusEarned - spec.FocusCost)
	out.FocusDelta = next.Focus - m.Focus

	out.XPGained = leveling.CheckInXP(out.GoalsMet)
	out.LevelUp = leveling.Apply(m.XP, out.XPGained)
	next.XP = out.LevelUp.XP
	next.Level = out.LevelUp.NewLevel
	next.SkillPoints = m.SkillPoints + out.LevelUp.SkillPoints

	if welcomeBack {
		out.WelcomeBackUsed = true
		next.WelcomeBack = decrementWelcomeBack(m.WelcomeBack)
	}

	if spec.HealsTeammate {
		out.Heal = supportHeal(in.Teammates, m.ID, rules.SupportHeal)
	}

	if !in.Date.IsZero() && in.Date.After(m.LastCheckIn) {
		next.LastCheckIn = Day(in.Date)
	}
	out.Member = next
	return out, nil
}

// Record builds the stored check-in for an outcome.
func (o *TurnOutcome) Record(id string, date time.Time) *Record {
	rec := &Record{
		ID:          id,
		MemberID:    o.Member.ID,
		PartyID:     o.Member.PartyID,
		Date:        Day(date),
		GoalsMet:    o.GoalsMet,
		Action:      o.Action,
		AttackRoll:  o.AttackRoll(),
		TotalBonus:  o.TotalBonus,
		Hit:         o.Hit,
		DamageDealt: o.DamageDealt,
		Countered:   o.Countered,
		DamageTaken: o.DamageTaken,
		FocusDelta:  o.FocusDelta,
		XPGained:    o.XPGained,
		Goals:       o.Goals,
		Rolls:       o.Rolls,
	}
	if o.Heal != nil {
		rec.HealTarget = o.Heal.MemberID
		rec.HealAmount = o.Heal.Amount
	}
	return rec
}

// supportHeal picks the teammate with the lowest HP percentage. Ties go to the
// earlier teammate. Returns nil when nobody is hurt.
func supportHeal(teammates []Member, selfID string, amount int) *Heal {
	var target *Member
	for i := range teammates {
		t := &teammates[i]
		if t.ID == selfID || t.MaxHP <= 0 || t.CurrentHP >= t.MaxHP {
			continue
		}
		// t.hp/t.max < target.hp/target.max, cross-multiplied
		if target == nil || t.CurrentHP*target.MaxHP < target.CurrentHP*t.MaxHP {
			target = t
		}
	}
	if target == nil || amount <= 0 {
		return nil
	}
	return &Heal{MemberID: target.ID, Amount: min(amount, target.MaxHP-target.CurrentHP)}
}

func clampHP(hp, maxHP int) int {
	if hp < 0 {
		return 0
	}
	if hp > maxHP {
		return maxHP
	}
	return hp
}
