package database

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fitnessquest/server/internal/badges"
	"github.com/fitnessquest/server/internal/checkin"
	"github.com/fitnessquest/server/internal/combat"
	"github.com/fitnessquest/server/internal/monster"
	"github.com/fitnessquest/server/internal/victory"
)

var testDay = time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)

// Tables in reverse dependency order.
var testTables = []string{
	"badges", "victory_rewards", "encouragements", "goal_check_ins", "check_ins",
	"goals", "party_monsters", "monsters", "party_members",
}

// getPostgresTestConfig returns PostgreSQL config if available, nil otherwise.
// Set these environment variables to run PostgreSQL tests:
//
//	QUEST_TEST_POSTGRES=1
//	QUEST_TEST_POSTGRES_HOST (default: localhost)
//	QUEST_TEST_POSTGRES_PORT (default: 5432)
//	QUEST_TEST_POSTGRES_USER (default: quest)
//	QUEST_TEST_POSTGRES_PASSWORD (default: quest)
//	QUEST_TEST_POSTGRES_DATABASE (default: quest_test)
func getPostgresTestConfig() *Config {
	if os.Getenv("QUEST_TEST_POSTGRES") == "" {
		return nil
	}
	get := func(key, def string) string {
		if v := os.Getenv(key); v != "" {
			return v
		}
		return def
	}

	port := 5432
	if portStr := os.Getenv("QUEST_TEST_POSTGRES_PORT"); portStr != "" {
		fmt.Sscanf(portStr, "%d", &port)
	}

	return &Config{
		Driver: "postgres",
		Postgres: PostgresConfig{
			Host:            get("QUEST_TEST_POSTGRES_HOST", "localhost"),
			Port:            port,
			User:            get("QUEST_TEST_POSTGRES_USER", "quest"),
			Password:        get("QUEST_TEST_POSTGRES_PASSWORD", "quest"),
			Database:        get("QUEST_TEST_POSTGRES_DATABASE", "quest_test"),
			SSLMode:         "disable",
			MaxOpenConns:    10,
			MaxIdleConns:    5,
			ConnMaxLifetime: time.Minute,
		},
	}
}

func clearTables(db *Database) {
	for _, table := range testTables {
		db.db.Exec(fmt.Sprintf("DELETE FROM %s", table))
	}
}

// getDualTestDatabases returns both SQLite and PostgreSQL databases for testing.
// If PostgreSQL is not available, it returns only SQLite.
func getDualTestDatabases(t *testing.T) map[string]*Database {
	dbs := make(map[string]*Database)

	sqliteDB, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Failed to open SQLite database: %v", err)
	}
	dbs["sqlite"] = sqliteDB

	if pgConfig := getPostgresTestConfig(); pgConfig != nil {
		pgDB, err := OpenWithConfig(*pgConfig)
		if err != nil {
			t.Logf("PostgreSQL not available: %v", err)
		} else {
			clearTables(pgDB)
			dbs["postgres"] = pgDB
		}
	}

	t.Cleanup(func() {
		for name, db := range dbs {
			if name == "postgres" {
				clearTables(db)
			}
			db.Close()
		}
	})
	return dbs
}

// seedParty creates party p1 with the given members, one steps goal each,
// and a Shadow Wolf assigned three days before testDay.
func seedParty(t *testing.T, db *Database, ids ...string) {
	t.Helper()
	ctx := context.Background()
	rules := combat.DefaultRules()
	for _, id := range ids {
		m := checkin.NewMember(rules, id, "p1", "u-"+id, "Member "+id)
		if err := db.CreateMember(ctx, &m); err != nil {
			t.Fatalf("CreateMember(%s): %v", id, err)
		}
		g := checkin.Goal{ID: "g-" + id, MemberID: id, Name: "steps", Target: 10000, FlexPercentage: 10}
		if err := db.CreateGoal(ctx, g); err != nil {
			t.Fatalf("CreateGoal(%s): %v", id, err)
		}
	}
	wolf := monster.DefaultTemplates[monster.Balanced].Spawn("wolf")
	if err := db.SpawnMonster(ctx, "p1", wolf, testDay.AddDate(0, 0, -3)); err != nil {
		t.Fatalf("SpawnMonster: %v", err)
	}
}

func TestOpen(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "nested", "test.db")

	db, err := Open(dbPath)
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Error("Database file was not created")
	}
	for _, table := range testTables {
		var count int
		if err := db.db.QueryRow("SELECT COUNT(*) FROM " + table).Scan(&count); err != nil {
			t.Errorf("Failed to query %s table: %v", table, err)
		}
	}
}

func TestOpenIsIdempotent(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")
	for i := 0; i < 2; i++ {
		db, err := Open(dbPath)
		if err != nil {
			t.Fatalf("Open #%d: %v", i+1, err)
		}
		db.Close()
	}
}

func TestDual_Members(t *testing.T) {
	for name, db := range getDualTestDatabases(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			seedParty(t, db, "m1", "m2", "m3")

			m, err := db.Member(ctx, "m1")
			if err != nil {
				t.Fatalf("Member: %v", err)
			}
			if m.CurrentHP != 100 || m.Focus != 5 || m.Level != 1 || !m.LastCheckIn.IsZero() {
				t.Errorf("new member = %+v", m)
			}

			err = db.WithTx(ctx, func(tx *Tx) error {
				m.Streak = 4
				m.LastCheckIn = testDay
				m.WelcomeBack = checkin.WelcomeBack{Active: true, Remaining: 2}
				return tx.UpdateMember(ctx, m)
			})
			if err != nil {
				t.Fatalf("UpdateMember: %v", err)
			}

			got, _ := db.Member(ctx, "m1")
			if got.Streak != 4 || !got.LastCheckIn.Equal(testDay) || !got.WelcomeBack.Active || got.Version != 1 {
				t.Errorf("updated member = %+v", got)
			}

			// A stale version must not overwrite.
			stale := *got
			stale.Version = 0
			err = db.WithTx(ctx, func(tx *Tx) error { return tx.UpdateMember(ctx, &stale) })
			if !errors.Is(err, checkin.ErrConcurrentUpdate) {
				t.Errorf("stale update err = %v, want ErrConcurrentUpdate", err)
			}

			if _, err := db.Member(ctx, "nobody"); !errors.Is(err, checkin.ErrMemberNotFound) {
				t.Errorf("missing member err = %v", err)
			}

			dup := checkin.NewMember(combat.DefaultRules(), "m1", "p1", "u-m1", "again")
			if err := db.CreateMember(ctx, &dup); !errors.Is(err, ErrExists) {
				t.Errorf("duplicate member err = %v, want ErrExists", err)
			}
		})
	}
}

func TestDual_PartyMembersAndBuffs(t *testing.T) {
	for name, db := range getDualTestDatabases(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			seedParty(t, db, "m1", "m2", "m3")

			err := db.WithTx(ctx, func(tx *Tx) error {
				m2, err := tx.Member(ctx, "m2")
				if err != nil {
					return err
				}
				m2.CurrentHP = 95
				m2.DefenseBuff = 48
				if err := tx.UpdateMember(ctx, m2); err != nil {
					return err
				}
				if err := tx.HealMember(ctx, "m2", 10); err != nil {
					return err
				}
				return tx.AddPartyDefense(ctx, "p1", "m1", 5, 50)
			})
			if err != nil {
				t.Fatalf("tx: %v", err)
			}

			err = db.WithTx(ctx, func(tx *Tx) error {
				members, err := tx.PartyMembers(ctx, "p1")
				if err != nil {
					return err
				}
				if len(members) != 3 {
					t.Fatalf("party size = %d, want 3", len(members))
				}
				byID := make(map[string]checkin.Member)
				for _, m := range members {
					byID[m.ID] = m
				}
				if byID["m2"].CurrentHP != 100 {
					t.Errorf("m2 hp = %d, want capped 100", byID["m2"].CurrentHP)
				}
				if byID["m2"].DefenseBuff != 50 {
					t.Errorf("m2 defense buff = %d, want capped 50", byID["m2"].DefenseBuff)
				}
				if byID["m3"].DefenseBuff != 5 {
					t.Errorf("m3 defense buff = %d, want 5", byID["m3"].DefenseBuff)
				}
				if byID["m1"].DefenseBuff != 0 {
					t.Errorf("m1 defense buff = %d, want 0", byID["m1"].DefenseBuff)
				}

				goals, err := tx.Goals(ctx, "m1")
				if err != nil {
					return err
				}
				if len(goals) != 1 || goals[0].Target != 10000 || goals[0].FlexPercentage != 10 {
					t.Errorf("goals = %+v", goals)
				}
				return nil
			})
			if err != nil {
				t.Fatalf("read tx: %v", err)
			}
		})
	}
}

func TestDual_MonsterDamage(t *testing.T) {
	for name, db := range getDualTestDatabases(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			seedParty(t, db, "m1")

			mon, err := db.ActiveMonster(ctx, "p1")
			if err != nil {
				t.Fatalf("ActiveMonster: %v", err)
			}
			if mon.ID != "wolf" || mon.CurrentHP != 200 || mon.Type != monster.Balanced {
				t.Errorf("monster = %+v", mon)
			}
			if d := mon.Dice(); d.Count != 1 || d.Sides != 2 || d.Bonus != 3 {
				t.Errorf("counter dice = %v, want 1d2+3", d)
			}

			err = db.WithTx(ctx, func(tx *Tx) error {
				before, after, err := tx.DamageMonster(ctx, "wolf", 150)
				if err != nil {
					return err
				}
				if before != 200 || after != 50 {
					t.Errorf("first hit %d -> %d", before, after)
				}
				before, after, err = tx.DamageMonster(ctx, "wolf", 80)
				if err != nil {
					return err
				}
				if before != 50 || after != 0 {
					t.Errorf("killing hit %d -> %d", before, after)
				}
				return tx.DeactivateMonster(ctx, "p1", "wolf")
			})
			if err != nil {
				t.Fatalf("damage tx: %v", err)
			}

			if _, err := db.ActiveMonster(ctx, "p1"); !errors.Is(err, checkin.ErrNoActiveMonster) {
				t.Errorf("ActiveMonster after defeat err = %v", err)
			}

			err = db.WithTx(ctx, func(tx *Tx) error {
				mon, since, err := tx.PartyMonster(ctx, "p1", "wolf")
				if err != nil {
					return err
				}
				if !mon.IsDefeated || mon.CurrentHP != 0 {
					t.Errorf("party monster = %+v", mon)
				}
				if !since.Equal(testDay.AddDate(0, 0, -3)) {
					t.Errorf("assigned at %v", since)
				}
				_, _, err = tx.PartyMonster(ctx, "p2", "wolf")
				if !errors.Is(err, ErrNotFound) {
					t.Errorf("foreign party err = %v, want ErrNotFound", err)
				}
				return nil
			})
			if err != nil {
				t.Fatalf("read tx: %v", err)
			}
		})
	}
}

func TestDual_SpawnRetiresPrevious(t *testing.T) {
	for name, db := range getDualTestDatabases(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			seedParty(t, db, "m1")

			golem := monster.DefaultTemplates[monster.Tank].Spawn("golem")
			golem.CounterDice.Count, golem.CounterDice.Sides = 2, 4
			if err := db.SpawnMonster(ctx, "p1", golem, testDay); err != nil {
				t.Fatalf("SpawnMonster: %v", err)
			}
			mon, err := db.ActiveMonster(ctx, "p1")
			if err != nil {
				t.Fatalf("ActiveMonster: %v", err)
			}
			if mon.ID != "golem" || mon.CounterDice.String() != "2d4" {
				t.Errorf("active = %s dice %v, want golem 2d4", mon.ID, mon.CounterDice)
			}
		})
	}
}

func TestDual_CheckIns(t *testing.T) {
	for name, db := range getDualTestDatabases(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			seedParty(t, db, "m1", "m2")

			rec := &checkin.Record{
				ID: "c1", MemberID: "m1", PartyID: "p1", Date: testDay.Add(9 * time.Hour),
				GoalsMet: 1, Action: combat.Attack, AttackRoll: 15, TotalBonus: 5, Hit: true,
				DamageDealt: 9, FocusDelta: 1, XPGained: 12, CreatedAt: testDay.Add(9 * time.Hour),
				Goals: []checkin.GoalOutcome{
					{GoalID: "g-m1", Target: 10000, Actual: 9500, FlexPercentage: 10, Met: true},
				},
			}
			err := db.WithTx(ctx, func(tx *Tx) error { return tx.InsertCheckIn(ctx, rec) })
			if err != nil {
				t.Fatalf("InsertCheckIn: %v", err)
			}

			again := *rec
			again.ID = "c2"
			err = db.WithTx(ctx, func(tx *Tx) error { return tx.InsertCheckIn(ctx, &again) })
			if !errors.Is(err, checkin.ErrDuplicate) {
				t.Errorf("duplicate err = %v, want ErrDuplicate", err)
			}

			got, err := db.CheckIns().CheckIn(ctx, "m1", testDay.Add(20*time.Hour))
			if err != nil {
				t.Fatalf("CheckIn: %v", err)
			}
			if got == nil || got.ID != "c1" || !got.Hit || got.DamageDealt != 9 || got.Action != combat.Attack {
				t.Fatalf("stored = %+v", got)
			}
			if len(got.Goals) != 1 || !got.Goals[0].Met || got.Goals[0].Actual != 9500 {
				t.Errorf("goal outcomes = %+v", got.Goals)
			}
			if !got.Date.Equal(testDay) {
				t.Errorf("date = %v, want %v", got.Date, testDay)
			}

			none, err := db.CheckIns().CheckIn(ctx, "m2", testDay)
			if err != nil || none != nil {
				t.Errorf("absent check-in = %+v, %v", none, err)
			}

			err = db.WithTx(ctx, func(tx *Tx) error {
				n, err := tx.PartyCheckInCount(ctx, "p1", testDay)
				if err != nil {
					return err
				}
				if n != 1 {
					t.Errorf("party count = %d, want 1", n)
				}
				history, err := tx.PartyCheckIns(ctx, "p1", testDay.AddDate(0, 0, -3))
				if err != nil {
					return err
				}
				if len(history) != 1 {
					t.Errorf("history = %d, want 1", len(history))
				}
				later, err := tx.PartyCheckIns(ctx, "p1", testDay.AddDate(0, 0, 1))
				if err != nil {
					return err
				}
				if len(later) != 0 {
					t.Errorf("history after testDay = %d, want 0", len(later))
				}
				return nil
			})
			if err != nil {
				t.Fatalf("read tx: %v", err)
			}
		})
	}
}

func TestDual_Encouragements(t *testing.T) {
	for name, db := range getDualTestDatabases(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			seedParty(t, db, "m1", "m2", "m3")

			insert := func(from string, day time.Time) error {
				return db.WithTx(ctx, func(tx *Tx) error {
					return tx.InsertEncouragement(ctx, checkin.Encouragement{FromMemberID: from, ToMemberID: "m1", Date: day})
				})
			}
			for _, e := range []struct {
				from string
				day  time.Time
			}{
				{"m2", testDay},
				{"m3", testDay},
				{"m2", testDay.AddDate(0, 0, -1)},
				{"m2", testDay.AddDate(0, 0, -5)},
			} {
				if err := insert(e.from, e.day); err != nil {
					t.Fatalf("InsertEncouragement: %v", err)
				}
			}
			if err := insert("m2", testDay.Add(3*time.Hour)); !errors.Is(err, checkin.ErrAlreadyEncouraged) {
				t.Errorf("repeat err = %v, want ErrAlreadyEncouraged", err)
			}

			err := db.WithTx(ctx, func(tx *Tx) error {
				n, err := tx.EncouragementsReceived(ctx, "m1", testDay.AddDate(0, 0, -1), testDay)
				if err != nil {
					return err
				}
				if n != 3 {
					t.Errorf("received = %d, want 3", n)
				}
				return nil
			})
			if err != nil {
				t.Fatalf("read tx: %v", err)
			}
		})
	}
}

func TestDual_VictoryRewardOnce(t *testing.T) {
	for name, db := range getDualTestDatabases(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			seedParty(t, db, "m1")

			r := &victory.Reward{
				ID: "r1", PartyID: "p1", MonsterID: "wolf", MonsterName: "Shadow Wolf", MonsterType: monster.Balanced,
				Summary: victory.Summary{
					DaysToDefeat: 4, TotalDamage: 200, TotalHeals: 1,
					MVPs: victory.MVPs{Damage: victory.MVP{MemberID: "m1", Stat: 200}},
				},
				XPAwarded: 75, CreatedAt: testDay,
			}
			err := db.Victories().InTx(ctx, func(tx victory.Tx) error { return tx.InsertVictoryReward(ctx, r) })
			if err != nil {
				t.Fatalf("InsertVictoryReward: %v", err)
			}

			dup := *r
			dup.ID = "r2"
			err = db.Victories().InTx(ctx, func(tx victory.Tx) error { return tx.InsertVictoryReward(ctx, &dup) })
			if !errors.Is(err, victory.ErrAlreadyRewarded) {
				t.Errorf("duplicate err = %v, want ErrAlreadyRewarded", err)
			}

			err = db.Victories().InTx(ctx, func(tx victory.Tx) error {
				got, err := tx.VictoryReward(ctx, "p1", "wolf")
				if err != nil {
					return err
				}
				if got == nil || got.ID != "r1" || got.MVPs.Damage.MemberID != "m1" || got.XPAwarded != 75 {
					t.Errorf("stored reward = %+v", got)
				}
				missing, err := tx.VictoryReward(ctx, "p1", "golem")
				if err != nil || missing != nil {
					t.Errorf("missing reward = %+v, %v", missing, err)
				}
				return nil
			})
			if err != nil {
				t.Fatalf("read tx: %v", err)
			}
		})
	}
}

func TestDual_Badges(t *testing.T) {
	for name, db := range getDualTestDatabases(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			seedParty(t, db, "m1", "m2")

			err := db.WithTx(ctx, func(tx *Tx) error {
				recs := []*checkin.Record{
					{ID: "c1", MemberID: "m1", PartyID: "p1", Date: testDay, GoalsMet: 2, Action: combat.Defend, AttackRoll: 20, CreatedAt: testDay},
					{ID: "c2", MemberID: "m1", PartyID: "p1", Date: testDay.AddDate(0, 0, 1), GoalsMet: 1, Action: combat.Support,
						AttackRoll: 7, HealTarget: "m2", HealAmount: 10, CreatedAt: testDay.AddDate(0, 0, 1)},
					{ID: "c3", MemberID: "m2", PartyID: "p1", Date: testDay, GoalsMet: 1, Action: combat.Attack, AttackRoll: 20, CreatedAt: testDay},
				}
				for _, rec := range recs {
					if err := tx.InsertCheckIn(ctx, rec); err != nil {
						return err
					}
				}
				return tx.InsertEncouragement(ctx, checkin.Encouragement{FromMemberID: "m1", ToMemberID: "m2", Date: testDay})
			})
			if err != nil {
				t.Fatalf("seed history: %v", err)
			}

			s, err := db.BadgeStats(ctx, "u-m1")
			if err != nil {
				t.Fatalf("BadgeStats: %v", err)
			}
			want := badges.Stats{GoalsMet: 3, Heals: 1, Defends: 1, NaturalTwenties: 1, EncouragementsSent: 1}
			if s != want {
				t.Errorf("stats = %+v, want %+v", s, want)
			}

			isNew, err := db.AwardBadge(ctx, "u-m1", badges.Defender, testDay)
			if err != nil || !isNew {
				t.Fatalf("first award = %v, %v", isNew, err)
			}
			isNew, err = db.AwardBadge(ctx, "u-m1", badges.Defender, testDay.Add(time.Hour))
			if err != nil || isNew {
				t.Errorf("second award = %v, %v, want false", isNew, err)
			}
			held, err := db.Badges(ctx, "u-m1")
			if err != nil || len(held) != 1 || held[0] != badges.Defender {
				t.Errorf("held = %v, %v", held, err)
			}
		})
	}
}

func TestDual_ServiceCheckIn(t *testing.T) {
	for name, db := range getDualTestDatabases(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			seedParty(t, db, "m1", "m2")
			rules := combat.DefaultRules()

			evaluator := badges.NewEvaluator(db)
			svc := checkin.NewService(db.CheckIns(), rules,
				checkin.WithVictory(victory.NewProcessor(db.Victories(), rules, evaluator)),
				checkin.WithBadges(evaluator),
				checkin.WithClock(func() time.Time { return testDay.Add(9 * time.Hour) }),
			)
			t.Cleanup(svc.Wait)

			res, err := svc.ResolveCheckIn(ctx, "m1", testDay, []checkin.GoalInput{{GoalID: "g-m1", Actual: 10000}}, combat.Attack)
			if err != nil {
				t.Fatalf("ResolveCheckIn: %v", err)
			}
			if res.Record.GoalsMet != 1 {
				t.Errorf("goals met = %d, want 1", res.Record.GoalsMet)
			}

			_, err = svc.ResolveCheckIn(ctx, "m1", testDay, nil, combat.Attack)
			if !errors.Is(err, checkin.ErrDuplicate) {
				t.Errorf("second check-in err = %v, want ErrDuplicate", err)
			}

			m, _ := db.Member(ctx, "m1")
			if m.Streak != 1 || !m.LastCheckIn.Equal(testDay) || m.XP != res.Record.XPGained {
				t.Errorf("member after check-in = %+v", m)
			}
			mon, _ := db.ActiveMonster(ctx, "p1")
			if mon.CurrentHP != res.Outcome.MonsterHPAfter {
				t.Errorf("monster hp = %d, want %d", mon.CurrentHP, res.Outcome.MonsterHPAfter)
			}
		})
	}
}
