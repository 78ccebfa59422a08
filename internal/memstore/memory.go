// Package memstore keeps party state in memory. It backs the check-in,
// victory and badge stores for tests and for running questd without a
// database.
package memstore

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/fitnessquest/server/internal/badges"
	"github.com/fitnessquest/server/internal/checkin"
	"github.com/fitnessquest/server/internal/combat"
	"github.com/fitnessquest/server/internal/monster"
	"github.com/fitnessquest/server/internal/victory"
)

// ErrNotFound is returned for unknown monsters.
var ErrNotFound = errors.New("not found")

type partyMonster struct {
	PartyID   string
	MonsterID string
	Active    bool
	CreatedAt time.Time
}

type state struct {
	members        map[string]checkin.Member
	order          []string
	goals          map[string][]checkin.Goal
	monsters       map[string]monster.Monster
	links          []partyMonster
	checkIns       []checkin.Record
	encouragements []checkin.Encouragement
	rewards        []victory.Reward
	badges         map[string]map[badges.Type]time.Time
}

func (s *state) clone() *state {
	c := &state{
		members:        maps.Clone(s.members),
		order:          slices.Clone(s.order),
		goals:          maps.Clone(s.goals),
		monsters:       maps.Clone(s.monsters),
		links:          slices.Clone(s.links),
		checkIns:       slices.Clone(s.checkIns),
		encouragements: slices.Clone(s.encouragements),
		rewards:        slices.Clone(s.rewards),
		badges:         make(map[string]map[badges.Type]time.Time, len(s.badges)),
	}
	for user, held := range s.badges {
		c.badges[user] = maps.Clone(held)
	}
	return c
}

// Memory is an in-memory store. Transactions run one at a time on a copy of
// the state that replaces it only when fn succeeds.
type Memory struct {
	mu sync.Mutex
	st *state
}

// New creates an empty store.
func New() *Memory {
	return &Memory{st: &state{
		members:  make(map[string]checkin.Member),
		goals:    make(map[string][]checkin.Goal),
		monsters: make(map[string]monster.Monster),
		badges:   make(map[string]map[badges.Type]time.Time),
	}}
}

func (m *Memory) inTx(ctx context.Context, fn func(t *tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	t := &tx{st: m.st.clone()}
	if err := fn(t); err != nil {
		return err
	}
	m.st = t.st
	return nil
}

// AddMember stores a member, replacing any with the same id.
func (m *Memory) AddMember(member checkin.Member) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.st.members[member.ID]; !ok {
		m.st.order = append(m.st.order, member.ID)
	}
	m.st.members[member.ID] = member
}

// AddGoal stores a goal for its member.
func (m *Memory) AddGoal(g checkin.Goal) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.st.goals[g.MemberID] = append(slices.Clone(m.st.goals[g.MemberID]), g)
}

// SpawnMonster makes mon the party's active monster, retiring the previous one.
func (m *Memory) SpawnMonster(partyID string, mon *monster.Monster, at time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.st.links {
		if m.st.links[i].PartyID == partyID {
			m.st.links[i].Active = false
		}
	}
	m.st.monsters[mon.ID] = *mon
	m.st.links = append(m.st.links, partyMonster{PartyID: partyID, MonsterID: mon.ID, Active: true, CreatedAt: at})
}

// Member returns a copy of a stored member.
func (m *Memory) Member(id string) (checkin.Member, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	member, ok := m.st.members[id]
	return member, ok
}

// Monster returns a copy of a stored monster.
func (m *Memory) Monster(id string) (monster.Monster, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	mon, ok := m.st.monsters[id]
	return mon, ok
}

// Records returns every stored check-in in insertion order.
func (m *Memory) Records() []checkin.Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.st.checkIns)
}

// Rewards returns every stored victory.
func (m *Memory) Rewards() []victory.Reward {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.st.rewards)
}

// CheckIns returns the check-in store view.
func (m *Memory) CheckIns() checkin.Store { return checkInStore{m} }

// Victories returns the victory store view.
func (m *Memory) Victories() victory.Store { return victoryStore{m} }

type checkInStore struct{ m *Memory }

func (s checkInStore) InTx(ctx context.Context, fn func(checkin.Tx) error) error {
	return s.m.inTx(ctx, func(t *tx) error { return fn(t) })
}

func (s checkInStore) CheckIn(ctx context.Context, memberID string, date time.Time) (*checkin.Record, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	return (&tx{st: s.m.st}).CheckIn(ctx, memberID, date)
}

type victoryStore struct{ m *Memory }

func (s victoryStore) InTx(ctx context.Context, fn func(victory.Tx) error) error {
	return s.m.inTx(ctx, func(t *tx) error { return fn(t) })
}

// BadgeStats totals a user's history across every membership.
func (m *Memory) BadgeStats(_ context.Context, userID string) (badges.Stats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var stats badges.Stats
	memberIDs := make(map[string]bool)
	parties := make(map[string]bool)
	for _, member := range m.st.members {
		if member.UserID != userID {
			continue
		}
		memberIDs[member.ID] = true
		parties[member.PartyID] = true
		stats.LongestStreak = max(stats.LongestStreak, member.Streak)
	}
	for _, r := range m.st.rewards {
		if parties[r.PartyID] {
			stats.MonstersDefeated++
		}
	}
	for _, rec := range m.st.checkIns {
		if !memberIDs[rec.MemberID] {
			continue
		}
		stats.GoalsMet += rec.GoalsMet
		if rec.HealAmount > 0 {
			stats.Heals++
		}
		switch rec.Action {
		case combat.Defend:
			stats.Defends++
		case combat.HeroicStrike:
			stats.HeroicStrikes++
		}
		if rec.AttackRoll == 20 {
			stats.NaturalTwenties++
		}
	}
	for _, e := range m.st.encouragements {
		if memberIDs[e.FromMemberID] {
			stats.EncouragementsSent++
		}
	}
	return stats, nil
}

// AwardBadge records a badge once per user.
func (m *Memory) AwardBadge(_ context.Context, userID string, badge badges.Type, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	held := m.st.badges[userID]
	if held == nil {
		held = make(map[badges.Type]time.Time)
		m.st.badges[userID] = held
	}
	if _, ok := held[badge]; ok {
		return false, nil
	}
	held[badge] = at
	return true, nil
}

type tx struct {
	st *state
}

func (t *tx) Member(_ context.Context, memberID string) (*checkin.Member, error) {
	m, ok := t.st.members[memberID]
	if !ok {
		return nil, checkin.ErrMemberNotFound
	}
	return &m, nil
}

func (t *tx) PartyMembers(_ context.Context, partyID string) ([]checkin.Member, error) {
	var out []checkin.Member
	for _, id := range t.st.order {
		if m := t.st.members[id]; m.PartyID == partyID {
			out = append(out, m)
		}
	}
	return out, nil
}

func (t *tx) UpdateMember(_ context.Context, m *checkin.Member) error {
	if _, ok := t.st.members[m.ID]; !ok {
		return checkin.ErrMemberNotFound
	}
	m.Version++
	t.st.members[m.ID] = *m
	return nil
}

func (t *tx) HealMember(_ context.Context, memberID string, amount int) error {
	m, ok := t.st.members[memberID]
	if !ok {
		return checkin.ErrMemberNotFound
	}
	m.CurrentHP = min(m.MaxHP, m.CurrentHP+max(0, amount))
	m.Version++
	t.st.members[memberID] = m
	return nil
}

func (t *tx) AddPartyDefense(_ context.Context, partyID, exceptMemberID string, amount, maxDefense int) error {
	for id, m := range t.st.members {
		if m.PartyID != partyID || id == exceptMemberID {
			continue
		}
		m.DefenseBuff = min(maxDefense, m.DefenseBuff+amount)
		m.Version++
		t.st.members[id] = m
	}
	return nil
}

func (t *tx) Goals(_ context.Context, memberID string) ([]checkin.Goal, error) {
	return slices.Clone(t.st.goals[memberID]), nil
}

func (t *tx) ActiveMonster(_ context.Context, partyID string) (*monster.Monster, error) {
	for _, l := range t.st.links {
		if l.PartyID == partyID && l.Active {
			mon := t.st.monsters[l.MonsterID]
			return &mon, nil
		}
	}
	return nil, checkin.ErrNoActiveMonster
}

func (t *tx) DamageMonster(_ context.Context, monsterID string, amount int) (int, int, error) {
	mon, ok := t.st.monsters[monsterID]
	if !ok {
		return 0, 0, fmt.Errorf("monster %s: %w", monsterID, ErrNotFound)
	}
	before := mon.CurrentHP
	mon.Damage(amount)
	mon.Version++
	t.st.monsters[monsterID] = mon
	return before, mon.CurrentHP, nil
}

func (t *tx) DeactivateMonster(_ context.Context, partyID, monsterID string) error {
	for i, l := range t.st.links {
		if l.PartyID == partyID && l.MonsterID == monsterID {
			t.st.links[i].Active = false
		}
	}
	if mon, ok := t.st.monsters[monsterID]; ok && mon.CurrentHP == 0 {
		mon.IsDefeated = true
		t.st.monsters[monsterID] = mon
	}
	return nil
}

func (t *tx) CheckIn(_ context.Context, memberID string, date time.Time) (*checkin.Record, error) {
	day := checkin.Day(date)
	for _, rec := range t.st.checkIns {
		if rec.MemberID == memberID && rec.Date.Equal(day) {
			return &rec, nil
		}
	}
	return nil, nil
}

func (t *tx) InsertCheckIn(ctx context.Context, rec *checkin.Record) error {
	if existing, _ := t.CheckIn(ctx, rec.MemberID, rec.Date); existing != nil {
		return checkin.ErrDuplicate
	}
	stored := *rec
	stored.Goals = slices.Clone(rec.Goals)
	stored.Rolls = nil
	t.st.checkIns = append(t.st.checkIns, stored)
	return nil
}

func (t *tx) PartyCheckInCount(_ context.Context, partyID string, date time.Time) (int, error) {
	day := checkin.Day(date)
	n := 0
	for _, rec := range t.st.checkIns {
		if rec.PartyID == partyID && rec.Date.Equal(day) {
			n++
		}
	}
	return n, nil
}

func (t *tx) EncouragementsReceived(_ context.Context, memberID string, from, to time.Time) (int, error) {
	from, to = checkin.Day(from), checkin.Day(to)
	n := 0
	for _, e := range t.st.encouragements {
		if e.ToMemberID == memberID && !e.Date.Before(from) && !e.Date.After(to) {
			n++
		}
	}
	return n, nil
}

func (t *tx) InsertEncouragement(_ context.Context, e checkin.Encouragement) error {
	e.Date = checkin.Day(e.Date)
	for _, x := range t.st.encouragements {
		if x.FromMemberID == e.FromMemberID && x.ToMemberID == e.ToMemberID && x.Date.Equal(e.Date) {
			return checkin.ErrAlreadyEncouraged
		}
	}
	t.st.encouragements = append(t.st.encouragements, e)
	return nil
}

func (t *tx) PartyMonster(_ context.Context, partyID, monsterID string) (*monster.Monster, time.Time, error) {
	for _, l := range t.st.links {
		if l.PartyID == partyID && l.MonsterID == monsterID {
			mon := t.st.monsters[monsterID]
			return &mon, l.CreatedAt, nil
		}
	}
	return nil, time.Time{}, fmt.Errorf("monster %s for party %s: %w", monsterID, partyID, ErrNotFound)
}

func (t *tx) PartyCheckIns(_ context.Context, partyID string, since time.Time) ([]checkin.Record, error) {
	since = checkin.Day(since)
	var out []checkin.Record
	for _, rec := range t.st.checkIns {
		if rec.PartyID == partyID && !rec.Date.Before(since) {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (t *tx) VictoryReward(_ context.Context, partyID, monsterID string) (*victory.Reward, error) {
	for _, r := range t.st.rewards {
		if r.PartyID == partyID && r.MonsterID == monsterID {
			return &r, nil
		}
	}
	return nil, nil
}

func (t *tx) InsertVictoryReward(ctx context.Context, r *victory.Reward) error {
	if existing, _ := t.VictoryReward(ctx, r.PartyID, r.MonsterID); existing != nil {
		return victory.ErrAlreadyRewarded
	}
	stored := *r
	stored.Grants = nil
	stored.Badges = nil
	t.st.rewards = append(t.st.rewards, stored)
	return nil
}
