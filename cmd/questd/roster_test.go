package main

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/fitnessquest/server/internal/checkin"
	"github.com/fitnessquest/server/internal/combat"
	"github.com/fitnessquest/server/internal/memstore"
	"github.com/fitnessquest/server/internal/monster"
	"github.com/fitnessquest/server/internal/namefilter"
)

const testRoster = `parties:
  - id: p1
    monsters: [wolf, golem]
    members:
      - id: m1
        user_id: u1
        name: Ada
        goals:
          - {id: g1, name: Steps, target: 10000, flex_percentage: 10}
          - {id: g2, name: Water, target: 8}
      - id: m2
        user_id: u2
        name: Bo
`

func testNames() *namefilter.Filter {
	return namefilter.New(namefilter.DefaultConfig())
}

func testCatalog() *monster.Catalog {
	return &monster.Catalog{Monsters: map[string]monster.Template{
		"wolf":  monster.DefaultTemplates[monster.Balanced],
		"golem": monster.DefaultTemplates[monster.Tank],
	}}
}

func writeRoster(t *testing.T, data string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "parties.yaml")
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

// fakeVictory records Process calls.
type fakeVictory struct {
	calls int
	err   error
}

func (f *fakeVictory) Process(context.Context, string, string) error {
	f.calls++
	return f.err
}

func activeMonster(t *testing.T, store partyStore, partyID string) *monster.Monster {
	t.Helper()
	var mon *monster.Monster
	err := store.checkIns.InTx(context.Background(), func(tx checkin.Tx) error {
		var err error
		mon, err = tx.ActiveMonster(context.Background(), partyID)
		return err
	})
	if err != nil {
		t.Fatalf("ActiveMonster: %v", err)
	}
	return mon
}

func TestSeedRoster(t *testing.T) {
	roster, err := loadRoster(writeRoster(t, testRoster))
	if err != nil {
		t.Fatalf("loadRoster: %v", err)
	}

	mem := memstore.New()
	store := memoryParties(mem)
	rot := newRotation(&fakeVictory{}, store, testCatalog())
	ctx := context.Background()

	if err := seedRoster(ctx, roster, store, rot, combat.DefaultRules(), testNames()); err != nil {
		t.Fatalf("seedRoster: %v", err)
	}

	m, ok := mem.Member("m1")
	if !ok {
		t.Fatal("member m1 not created")
	}
	if m.PartyID != "p1" || m.CurrentHP != combat.DefaultRules().MaxHP || m.Level != 1 {
		t.Errorf("m1 not at join defaults: %+v", m)
	}
	if _, ok := mem.Member("m2"); !ok {
		t.Error("member m2 not created")
	}
	if mon := activeMonster(t, store, "p1"); mon.Type != monster.Balanced {
		t.Errorf("first monster type = %s, want BALANCED", mon.Type)
	}

	// Seeding again keeps progress and the current monster.
	m.XP = 250
	mem.AddMember(m)
	first := activeMonster(t, store, "p1").ID
	if err := seedRoster(ctx, roster, store, rot, combat.DefaultRules(), testNames()); err != nil {
		t.Fatalf("second seedRoster: %v", err)
	}
	if again, _ := mem.Member("m1"); again.XP != 250 {
		t.Errorf("reseeding reset XP to %d", again.XP)
	}
	if got := activeMonster(t, store, "p1").ID; got != first {
		t.Errorf("reseeding replaced the active monster")
	}
}

func TestRotationSpawnsNextMonster(t *testing.T) {
	roster, err := loadRoster(writeRoster(t, testRoster))
	if err != nil {
		t.Fatalf("loadRoster: %v", err)
	}
	mem := memstore.New()
	store := memoryParties(mem)
	fake := &fakeVictory{}
	rot := newRotation(fake, store, testCatalog())
	ctx := context.Background()
	if err := seedRoster(ctx, roster, store, rot, combat.DefaultRules(), testNames()); err != nil {
		t.Fatalf("seedRoster: %v", err)
	}

	wolf := activeMonster(t, store, "p1")
	if err := rot.Process(ctx, "p1", wolf.ID); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if fake.calls != 1 {
		t.Errorf("reward step ran %d times, want 1", fake.calls)
	}
	if golem := activeMonster(t, store, "p1"); golem.Type != monster.Tank {
		t.Errorf("second monster type = %s, want TANK", golem.Type)
	}

	// Wraps back to the first entry.
	if err := rot.Process(ctx, "p1", "any"); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if mon := activeMonster(t, store, "p1"); mon.Type != monster.Balanced {
		t.Errorf("third monster type = %s, want BALANCED", mon.Type)
	}
}

func TestRotationSkipsSpawnWhenRewardFails(t *testing.T) {
	mem := memstore.New()
	store := memoryParties(mem)
	fake := &fakeVictory{err: errors.New("boom")}
	rot := newRotation(fake, store, testCatalog())

	if err := rot.Process(context.Background(), "p1", "m"); err == nil {
		t.Fatal("expected the reward error")
	}
	err := store.checkIns.InTx(context.Background(), func(tx checkin.Tx) error {
		_, err := tx.ActiveMonster(context.Background(), "p1")
		return err
	})
	if !errors.Is(err, checkin.ErrNoActiveMonster) {
		t.Errorf("a monster was spawned after a failed reward: %v", err)
	}
}

func TestLoadRosterErrors(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"party without id", "parties:\n  - members: []\n"},
		{"member without user", "parties:\n  - id: p1\n    members:\n      - id: m1\n"},
		{"duplicate member", "parties:\n  - id: p1\n    members:\n      - {id: m1, user_id: u1}\n  - id: p2\n    members:\n      - {id: m1, user_id: u2}\n"},
		{"goal without target", "parties:\n  - id: p1\n    members:\n      - id: m1\n        user_id: u1\n        goals:\n          - {id: g1}\n"},
		{"not yaml", "parties: [\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := loadRoster(writeRoster(t, tt.data)); err == nil {
				t.Error("expected an error")
			}
		})
	}
}

func TestSeedRosterRejectsNames(t *testing.T) {
	roster, err := loadRoster(writeRoster(t, testRoster))
	if err != nil {
		t.Fatalf("loadRoster: %v", err)
	}
	mem := memstore.New()
	store := memoryParties(mem)
	rot := newRotation(&fakeVictory{}, store, testCatalog())
	names := namefilter.New(namefilter.Config{Enabled: true, MinLength: 1, BannedNames: []string{"bo"}})

	err = seedRoster(context.Background(), roster, store, rot, combat.DefaultRules(), names)
	var rejected *namefilter.RejectedError
	if !errors.As(err, &rejected) {
		t.Fatalf("err = %v, want *RejectedError", err)
	}
	if _, ok := mem.Member("m1"); ok {
		t.Error("members were created before names were checked")
	}
}
