// Package victory turns a defeated monster into party rewards: a battle
// summary with MVPs, XP for every member and a focus refill.
package victory

import (
	"time"

	"github.com/fitnessquest/server/internal/checkin"
	"github.com/fitnessquest/server/internal/combat"
	"github.com/fitnessquest/server/internal/leveling"
	"github.com/fitnessquest/server/internal/monster"
)

// MVP names the member who led a category and by how much.
// MemberID is empty when nobody qualified.
type MVP struct {
	MemberID string
	Stat     int
}

// MVPs are the three awards handed out after each fight.
type MVPs struct {
	Consistent MVP // longest run of consecutive check-in days
	Supportive MVP // most SUPPORT actions
	Damage     MVP // most damage dealt
}

// Summary aggregates the battle history of one monster.
type Summary struct {
	DaysToDefeat int
	TotalDamage  int
	TotalHeals   int
	MVPs         MVPs
}

// Compute summarizes the check-ins made against a monster. history must be
// in creation order. Ties go to whoever comes first in members.
func Compute(history []checkin.Record, members []checkin.Member, since, defeatedOn time.Time) Summary {
	s := Summary{DaysToDefeat: max(1, checkin.DaysBetween(since, defeatedOn)+1)}

	damage := make(map[string]int)
	support := make(map[string]int)
	dates := make(map[string][]time.Time)
	for _, rec := range history {
		s.TotalDamage += rec.DamageDealt
		if rec.HealAmount > 0 {
			s.TotalHeals++
		}
		damage[rec.MemberID] += rec.DamageDealt
		if rec.Action == combat.Support {
			support[rec.MemberID]++
		}
		dates[rec.MemberID] = append(dates[rec.MemberID], rec.Date)
	}

	for _, m := range members {
		if d, ok := dates[m.ID]; ok {
			if run := longestRun(d); run > s.MVPs.Consistent.Stat {
				s.MVPs.Consistent = MVP{MemberID: m.ID, Stat: run}
			}
		}
		if n := support[m.ID]; n > s.MVPs.Supportive.Stat {
			s.MVPs.Supportive = MVP{MemberID: m.ID, Stat: n}
		}
		if n := damage[m.ID]; n > s.MVPs.Damage.Stat {
			s.MVPs.Damage = MVP{MemberID: m.ID, Stat: n}
		}
	}
	return s
}

// longestRun returns the longest stretch of consecutive days in dates.
func longestRun(dates []time.Time) int {
	if len(dates) == 0 {
		return 0
	}
	days := make(map[int64]bool, len(dates))
	for _, d := range dates {
		days[checkin.Day(d).Unix()/86400] = true
	}
	best := 0
	for day := range days {
		if days[day-1] {
			continue
		}
		run := 1
		for days[day+int64(run)] {
			run++
		}
		best = max(best, run)
	}
	return best
}

// Grant is the reward one member received.
type Grant struct {
	MemberID string
	XP       int
	LevelUp  leveling.LevelUpInfo
}

// ApplyRewards grants defeat XP to every member, recomputes level and skill
// points and refills focus. members is updated in place.
func ApplyRewards(rules combat.Rules, members []checkin.Member, t monster.Type) []Grant {
	xp := leveling.MonsterDefeatXP(t)
	grants := make([]Grant, 0, len(members))
	for i := range members {
		m := &members[i]
		info := leveling.Apply(m.XP, xp)
		m.XP = info.XP
		m.Level = info.NewLevel
		m.SkillPoints += info.SkillPoints
		m.Focus = rules.MaxFocus
		grants = append(grants, Grant{MemberID: m.ID, XP: xp, LevelUp: info})
	}
	return grants
}
