package victory_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/fitnessquest/server/internal/checkin"
	"github.com/fitnessquest/server/internal/combat"
	"github.com/fitnessquest/server/internal/memstore"
	"github.com/fitnessquest/server/internal/monster"
	"github.com/fitnessquest/server/internal/victory"
)

var start = time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)

func rec(member string, day int, action combat.Action, damage, heal int) checkin.Record {
	return checkin.Record{
		MemberID:    member,
		PartyID:     "p1",
		Date:        start.AddDate(0, 0, day),
		Action:      action,
		DamageDealt: damage,
		HealAmount:  heal,
	}
}

func members(ids ...string) []checkin.Member {
	var out []checkin.Member
	for _, id := range ids {
		out = append(out, checkin.NewMember(combat.DefaultRules(), id, "p1", "u-"+id, id))
	}
	return out
}

func TestCompute(t *testing.T) {
	history := []checkin.Record{
		rec("a", 0, combat.Attack, 10, 0),
		rec("b", 0, combat.Support, 4, 10),
		rec("a", 1, combat.Attack, 12, 0),
		rec("b", 1, combat.Support, 5, 10),
		rec("c", 1, combat.Attack, 30, 0),
		rec("a", 3, combat.Attack, 8, 0),
		rec("b", 2, combat.Attack, 6, 0),
	}
	s := victory.Compute(history, members("a", "b", "c"), start, start.AddDate(0, 0, 3))

	if s.DaysToDefeat != 4 {
		t.Errorf("DaysToDefeat = %d, want 4", s.DaysToDefeat)
	}
	if s.TotalDamage != 75 || s.TotalHeals != 2 {
		t.Errorf("totals = %d damage %d heals", s.TotalDamage, s.TotalHeals)
	}
	if s.MVPs.Consistent != (victory.MVP{MemberID: "b", Stat: 3}) {
		t.Errorf("Consistent = %+v, want b with 3", s.MVPs.Consistent)
	}
	if s.MVPs.Supportive != (victory.MVP{MemberID: "b", Stat: 2}) {
		t.Errorf("Supportive = %+v", s.MVPs.Supportive)
	}
	if s.MVPs.Damage != (victory.MVP{MemberID: "a", Stat: 30}) {
		t.Errorf("Damage = %+v, want a on the tie with c", s.MVPs.Damage)
	}
}

func TestComputeTiesGoToMemberOrder(t *testing.T) {
	history := []checkin.Record{
		rec("b", 0, combat.Attack, 5, 0),
		rec("a", 0, combat.Attack, 5, 0),
	}
	s := victory.Compute(history, members("a", "b"), start, start)
	if s.MVPs.Damage.MemberID != "a" || s.MVPs.Consistent.MemberID != "a" {
		t.Errorf("MVPs = %+v, want a for both ties", s.MVPs)
	}
	if s.MVPs.Supportive.MemberID != "" {
		t.Errorf("Supportive = %+v, want nobody", s.MVPs.Supportive)
	}
	if s.DaysToDefeat != 1 {
		t.Errorf("DaysToDefeat = %d, want 1", s.DaysToDefeat)
	}
}

func TestComputeEmptyHistory(t *testing.T) {
	s := victory.Compute(nil, members("a"), start, start.AddDate(0, 0, 2))
	if s.TotalDamage != 0 || s.MVPs != (victory.MVPs{}) {
		t.Errorf("summary = %+v", s)
	}
}

func TestApplyRewards(t *testing.T) {
	ms := members("a", "b")
	ms[0].XP = 50
	ms[0].Focus = 1
	ms[1].XP = 380
	ms[1].Level = 2

	grants := victory.ApplyRewards(combat.DefaultRules(), ms, monster.Tank)
	if len(grants) != 2 {
		t.Fatalf("grants = %d", len(grants))
	}
	if ms[0].XP != 150 || ms[0].Level != 2 || ms[0].SkillPoints != 1 || ms[0].Focus != 10 {
		t.Errorf("a = %+v", ms[0])
	}
	if ms[1].XP != 480 || ms[1].Level != 3 || ms[1].SkillPoints != 1 {
		t.Errorf("b = %+v", ms[1])
	}
	if grants[0].XP != 100 || !grants[0].LevelUp.LeveledUp() {
		t.Errorf("grant = %+v", grants[0])
	}
}

func setupDefeated(t *testing.T) *memstore.Memory {
	t.Helper()
	store := memstore.New()
	for _, m := range members("a", "b") {
		store.AddMember(m)
	}
	mon := monster.DefaultTemplates[monster.GlassCannon].Spawn("imp")
	store.SpawnMonster("p1", mon, start)

	ctx := context.Background()
	err := store.CheckIns().InTx(ctx, func(tx checkin.Tx) error {
		if _, _, err := tx.DamageMonster(ctx, "imp", 1000); err != nil {
			return err
		}
		r := rec("a", 0, combat.Attack, 150, 0)
		r.ID = "r1"
		if err := tx.InsertCheckIn(ctx, &r); err != nil {
			return err
		}
		return tx.DeactivateMonster(ctx, "p1", "imp")
	})
	if err != nil {
		t.Fatalf("setup: %v", err)
	}
	return store
}

type failingBadges struct{ calls int }

func (f *failingBadges) Evaluate(context.Context, string) ([]string, error) {
	f.calls++
	return nil, errors.New("badge service down")
}

func TestProcessorRewardsOnce(t *testing.T) {
	store := setupDefeated(t)
	awarder := &failingBadges{}
	p := victory.NewProcessor(store.Victories(), combat.DefaultRules(), awarder)
	ctx := context.Background()

	reward, err := p.Reward(ctx, "p1", "imp")
	if err != nil {
		t.Fatalf("Reward: %v", err)
	}
	if reward.XPAwarded != 50 || reward.TotalDamage != 150 || reward.MVPs.Damage.MemberID != "a" {
		t.Errorf("reward = %+v", reward)
	}
	if awarder.calls != 2 {
		t.Errorf("badge calls = %d, want one per member", awarder.calls)
	}
	if b, _ := store.Member("b"); b.XP != 50 || b.Focus != 10 {
		t.Errorf("b = %+v, failing badges must not undo grants", b)
	}

	if err := p.Process(ctx, "p1", "imp"); !errors.Is(err, victory.ErrAlreadyRewarded) {
		t.Errorf("second Process err = %v, want ErrAlreadyRewarded", err)
	}
	if b, _ := store.Member("b"); b.XP != 50 {
		t.Errorf("b XP = %d after repeat, want 50", b.XP)
	}
	if n := len(store.Rewards()); n != 1 {
		t.Errorf("rewards = %d", n)
	}
}

func TestProcessorRejectsLivingMonster(t *testing.T) {
	store := memstore.New()
	store.AddMember(members("a")[0])
	store.SpawnMonster("p1", monster.DefaultTemplates[monster.Tank].Spawn("golem"), start)

	p := victory.NewProcessor(store.Victories(), combat.DefaultRules(), nil)
	if _, err := p.Reward(context.Background(), "p1", "golem"); !errors.Is(err, victory.ErrMonsterAlive) {
		t.Errorf("err = %v, want ErrMonsterAlive", err)
	}
}

// conflictingStore makes the first UpdateMember calls lose their version check.
type conflictingStore struct {
	victory.Store
	conflicts int
	tries     int
}

func (s *conflictingStore) InTx(ctx context.Context, fn func(victory.Tx) error) error {
	return s.Store.InTx(ctx, func(tx victory.Tx) error {
		s.tries++
		return fn(&conflictingTx{Tx: tx, store: s})
	})
}

type conflictingTx struct {
	victory.Tx
	store *conflictingStore
}

func (t *conflictingTx) UpdateMember(ctx context.Context, m *checkin.Member) error {
	if t.store.conflicts > 0 {
		t.store.conflicts--
		return fmt.Errorf("member %s: %w", m.ID, checkin.ErrConcurrentUpdate)
	}
	return t.Tx.UpdateMember(ctx, m)
}

func TestProcessorRetriesConflicts(t *testing.T) {
	tests := []struct {
		name      string
		conflicts int
		wantErr   bool
	}{
		{"one conflict", 1, false},
		{"two conflicts", 2, false},
		{"never settles", 10, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := setupDefeated(t)
			conflicting := &conflictingStore{Store: store.Victories(), conflicts: tt.conflicts}
			p := victory.NewProcessor(conflicting, combat.DefaultRules(), nil)

			reward, err := p.Reward(context.Background(), "p1", "imp")
			if tt.wantErr {
				if !errors.Is(err, checkin.ErrConcurrentUpdate) {
					t.Fatalf("err = %v, want ErrConcurrentUpdate", err)
				}
				if len(store.Rewards()) != 0 {
					t.Error("reward stored despite the failure")
				}
				return
			}
			if err != nil {
				t.Fatalf("Reward: %v", err)
			}
			if conflicting.tries != tt.conflicts+1 {
				t.Errorf("tries = %d, want %d", conflicting.tries, tt.conflicts+1)
			}
			if reward.XPAwarded != 50 || len(store.Rewards()) != 1 {
				t.Errorf("xp %d rewards %d", reward.XPAwarded, len(store.Rewards()))
			}
			for _, id := range []string{"a", "b"} {
				if m, _ := store.Member(id); m.XP != 50 {
					t.Errorf("%s XP = %d, want 50", id, m.XP)
				}
			}
		})
	}
}

func TestProcessorDaysFromKillingCheckIn(t *testing.T) {
	store := memstore.New()
	for _, m := range members("a", "b") {
		store.AddMember(m)
	}
	store.SpawnMonster("p1", monster.DefaultTemplates[monster.GlassCannon].Spawn("imp"), start)

	ctx := context.Background()
	err := store.CheckIns().InTx(ctx, func(tx checkin.Tx) error {
		for i, r := range []checkin.Record{
			rec("b", 1, combat.Attack, 60, 0),
			rec("a", 4, combat.Attack, 90, 0),
		} {
			r.ID = fmt.Sprintf("r%d", i)
			if err := tx.InsertCheckIn(ctx, &r); err != nil {
				return err
			}
		}
		if _, _, err := tx.DamageMonster(ctx, "imp", 1000); err != nil {
			return err
		}
		return tx.DeactivateMonster(ctx, "p1", "imp")
	})
	if err != nil {
		t.Fatalf("setup: %v", err)
	}

	// Rewarded long after the fight; the count still ends on the kill day.
	reward, err := victory.NewProcessor(store.Victories(), combat.DefaultRules(), nil).Reward(ctx, "p1", "imp")
	if err != nil {
		t.Fatalf("Reward: %v", err)
	}
	if reward.DaysToDefeat != 5 {
		t.Errorf("DaysToDefeat = %d, want 5", reward.DaysToDefeat)
	}
}
