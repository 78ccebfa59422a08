package balance

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"golang.org/x/crypto/blake2b"
	"golang.org/x/sync/errgroup"

	"github.com/fitnessquest/server/internal/checkin"
	"github.com/fitnessquest/server/internal/combat"
	"github.com/fitnessquest/server/internal/monster"
	"github.com/fitnessquest/server/internal/stats"
	"github.com/fitnessquest/server/internal/victory"
)

// DefaultMonsterSequence is fought in order, wrapping around.
var DefaultMonsterSequence = []monster.Type{monster.Balanced, monster.Tank, monster.GlassCannon, monster.Balanced}

// simStart is day 0 of every run. Only day differences matter.
var simStart = time.Date(2025, 1, 5, 0, 0, 0, 0, time.UTC)

// Config describes one simulation run.
type Config struct {
	Party           string // label used in reports; names containing "SOLO" count as solo
	Roster          []Archetype
	MonsterSequence []monster.Type
	Days            int
	Seed            int64
	Rules           combat.Rules
	Catalog         *monster.Catalog // nil uses the stock templates
	ScaleMonsters   bool             // scale monster HP to the party size
}

func (c Config) validate() error {
	switch {
	case len(c.Roster) == 0:
		return errors.New("roster is empty")
	case c.Days < 1:
		return fmt.Errorf("days must be positive, got %d", c.Days)
	}
	for i, a := range c.Roster {
		if err := a.validate(); err != nil {
			return fmt.Errorf("roster[%d] %s: %w", i, a.Name, err)
		}
	}
	return c.Rules.Validate()
}

// DailySnapshot is the party's state at the end of one day.
type DailySnapshot struct {
	Day          int
	Monster      string
	MonsterHP    int
	MonsterMaxHP int
	PartyDamage  int
	Defeated     bool
	PlayerHP     []int
	PlayerLevels []int
}

// PlayerStats are one player's totals over a run.
type PlayerStats struct {
	Name                   string
	Archetype              string
	CheckIns               int
	GoalsMet               int
	DamageDealt            int
	DamageTaken            int
	Deaths                 int
	MaxStreak              int
	FinalLevel             int
	FinalXP                int
	SkillPoints            int
	EncouragementsSent     int
	EncouragementsReceived int
	HealingDone            int
	WelcomeBacks           int
	Actions                map[combat.Action]int
}

// Result is the output of one run.
type Result struct {
	Party            string
	Days             int
	Seed             int64
	MonstersDefeated int
	DefeatDays       []int // day each monster fell
	Snapshots        []DailySnapshot
	Players          []PlayerStats
}

// AverageDaysPerMonster is the mean length of each completed fight.
func (r *Result) AverageDaysPerMonster() float64 {
	if len(r.DefeatDays) == 0 {
		return 0
	}
	return float64(r.DefeatDays[len(r.DefeatDays)-1]) / float64(len(r.DefeatDays))
}

type simPlayer struct {
	archetype Archetype
	history   []bool
	received  []int // encouragements received per day, indexed by day
	stats     PlayerStats
}

// encouragements7d counts encouragements received in the 7 days ending on day.
func (p *simPlayer) encouragements7d(day int) int {
	n := 0
	for d := max(0, day-6); d <= day && d < len(p.received); d++ {
		n += p.received[d]
	}
	return n
}

// RunSimulation plays cfg.Days days through checkin.Resolve. Each player's
// damage is computed against the monster as it stood at the start of the
// day; the party's total is applied once at the end of the day.
func RunSimulation(ctx context.Context, cfg Config) (*Result, error) {
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid simulation config: %w", err)
	}
	seq := cfg.MonsterSequence
	if len(seq) == 0 {
		seq = DefaultMonsterSequence
	}
	catalog := cfg.Catalog
	if catalog == nil {
		catalog = monster.DefaultCatalog()
	}
	r := stats.NewRand(cfg.Seed)
	rules := cfg.Rules

	spawn := func(n int) (*monster.Monster, error) {
		t := seq[n%len(seq)]
		tmpl, ok := catalog.ByType(t)
		if !ok {
			return nil, fmt.Errorf("no monster template for type %s", t)
		}
		if cfg.ScaleMonsters {
			tmpl = tmpl.ScaleForParty(len(cfg.Roster))
		}
		return tmpl.Spawn(fmt.Sprintf("sim-monster-%d", n+1)), nil
	}

	players := make([]*simPlayer, len(cfg.Roster))
	members := make([]checkin.Member, len(cfg.Roster))
	for i, a := range cfg.Roster {
		name := fmt.Sprintf("%s %d", a.Name, i+1)
		members[i] = checkin.NewMember(rules, fmt.Sprintf("sim-%d", i+1), "sim-party", fmt.Sprintf("sim-user-%d", i+1), name)
		players[i] = &simPlayer{
			archetype: a,
			received:  make([]int, cfg.Days+1),
			stats:     PlayerStats{Name: name, Archetype: a.Name, Actions: make(map[combat.Action]int)},
		}
	}

	spawned := 0
	mon, err := spawn(spawned)
	if err != nil {
		return nil, err
	}
	spawned++

	res := &Result{
		Party:     cfg.Party,
		Days:      cfg.Days,
		Seed:      cfg.Seed,
		Snapshots: make([]DailySnapshot, 0, cfg.Days),
	}

	for day := 1; day <= cfg.Days; day++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		date := simStart.AddDate(0, 0, day)
		snapshot := *mon
		partyDamage := 0
		checkedIn := 0

		for i, p := range players {
			show := p.archetype.ShouldCheckIn(r, day, p.history)
			p.history = append(p.history, show)
			if !show {
				continue
			}

			dmg, err := playTurn(r, rules, date, day, i, players, members, snapshot, checkedIn)
			if err != nil {
				return nil, fmt.Errorf("day %d player %d: %w", day, i+1, err)
			}
			partyDamage += dmg
			checkedIn++
		}

		mon.Damage(partyDamage)
		snap := DailySnapshot{
			Day:          day,
			Monster:      mon.Name,
			MonsterHP:    mon.CurrentHP,
			MonsterMaxHP: mon.MaxHP,
			PartyDamage:  partyDamage,
			Defeated:     mon.IsDefeated,
			PlayerHP:     make([]int, len(members)),
			PlayerLevels: make([]int, len(members)),
		}

		if mon.IsDefeated {
			res.MonstersDefeated++
			res.DefeatDays = append(res.DefeatDays, day)
			victory.ApplyRewards(rules, members, mon.Type)
			if mon, err = spawn(spawned); err != nil {
				return nil, err
			}
			spawned++
		}

		for i, m := range members {
			snap.PlayerHP[i] = m.CurrentHP
			snap.PlayerLevels[i] = m.Level
		}
		res.Snapshots = append(res.Snapshots, snap)
	}

	res.Players = make([]PlayerStats, len(players))
	for i, p := range players {
		s := p.stats
		s.FinalLevel = members[i].Level
		s.FinalXP = members[i].XP
		s.SkillPoints = members[i].SkillPoints
		res.Players[i] = s
	}
	return res, nil
}

// playTurn resolves player i's check-in and applies everything except the
// monster damage, which it returns.
func playTurn(r stats.Roller, rules combat.Rules, date time.Time, day, i int,
	players []*simPlayer, members []checkin.Member, mon monster.Monster, checkedInBefore int) (int, error) {

	p := players[i]
	self := &members[i]

	if checkin.WelcomeBackEligibility(rules, *self, date).Eligible {
		checkin.ActivateWelcomeBack(rules, self)
		p.stats.WelcomeBacks++
	}

	met := p.archetype.GoalsMet(r)
	goals := make([]checkin.GoalOutcome, GoalsPerDay)
	for g := range goals {
		goals[g] = checkin.GoalOutcome{GoalID: fmt.Sprintf("goal-%d", g+1), Target: 1}
		if g < met {
			goals[g].Actual = 1
		}
	}

	yesterday := !self.LastCheckIn.IsZero() && checkin.DaysBetween(self.LastCheckIn, date) == 1
	streak := combat.UpdateStreak(yesterday, self.Streak)
	action := p.archetype.ChooseAction(r, *self, streak, members)

	out, err := checkin.Resolve(rules, r, checkin.TurnInput{
		Date:               date,
		Member:             *self,
		Monster:            mon,
		Goals:              goals,
		Action:             action,
		CheckedInYesterday: yesterday,
		CheckedInBefore:    checkedInBefore,
		Encouragements7d:   p.encouragements7d(day),
		Teammates:          members,
	})
	if err != nil {
		return 0, err
	}

	*self = out.Member
	if out.PartyDefense > 0 {
		for j := range members {
			if j != i {
				members[j].DefenseBuff = rules.ClampDefense(members[j].DefenseBuff + out.PartyDefense)
			}
		}
	}
	if out.Heal != nil {
		for j := range members {
			if members[j].ID == out.Heal.MemberID {
				members[j].CurrentHP = min(members[j].MaxHP, members[j].CurrentHP+out.Heal.Amount)
				p.stats.HealingDone += out.Heal.Amount
			}
		}
	}

	s := &p.stats
	s.CheckIns++
	s.GoalsMet += out.GoalsMet
	s.DamageDealt += out.DamageDealt
	s.DamageTaken += out.DamageTaken
	s.Actions[out.Action]++
	s.MaxStreak = max(s.MaxStreak, out.Member.Streak)
	if out.Died {
		s.Deaths++
	}

	if chance(r, p.archetype.EncouragementRate) {
		for j, mate := range players {
			if j == i {
				continue
			}
			mate.received[day]++
			mate.stats.EncouragementsReceived++
			s.EncouragementsSent++
		}
	}
	return out.DamageDealt, nil
}

// DeriveSeed gives run an independent seed from base.
func DeriveSeed(base int64, run int) int64 {
	var buf [16]byte
	binary.LittleEndian.PutUint64(buf[:8], uint64(base))
	binary.LittleEndian.PutUint64(buf[8:], uint64(run))
	sum := blake2b.Sum256(buf[:])
	return int64(binary.LittleEndian.Uint64(sum[:8]) & (1<<63 - 1))
}

// RunMany runs independent simulations concurrently, each with a seed
// derived from cfg.Seed. Results are in run order.
func RunMany(ctx context.Context, cfg Config, runs, workers int) ([]*Result, error) {
	if runs < 1 {
		return nil, fmt.Errorf("runs must be positive, got %d", runs)
	}
	if workers < 1 {
		workers = 1
	}

	results := make([]*Result, runs)
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i := 0; i < runs; i++ {
		i := i
		run := cfg
		run.Seed = DeriveSeed(cfg.Seed, i)
		g.Go(func() error {
			res, err := RunSimulation(ctx, run)
			if err != nil {
				return fmt.Errorf("run %d: %w", i, err)
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
