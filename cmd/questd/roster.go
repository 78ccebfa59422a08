package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/fitnessquest/server/internal/checkin"
	"github.com/fitnessquest/server/internal/combat"
	"github.com/fitnessquest/server/internal/database"
	"github.com/fitnessquest/server/internal/logger"
	"github.com/fitnessquest/server/internal/memstore"
	"github.com/fitnessquest/server/internal/monster"
	"github.com/fitnessquest/server/internal/namefilter"
)

// rosterFile is the layout of parties.yaml.
type rosterFile struct {
	Parties []partySeed `yaml:"parties"`
}

type partySeed struct {
	ID string `yaml:"id"`
	// Monsters are catalog ids fought in order, wrapping around. Empty
	// rotates through the whole catalog.
	Monsters []string     `yaml:"monsters"`
	Scale    bool         `yaml:"scale"`
	Members  []memberSeed `yaml:"members"`
}

type memberSeed struct {
	ID     string     `yaml:"id"`
	UserID string     `yaml:"user_id"`
	Name   string     `yaml:"name"`
	Goals  []goalSeed `yaml:"goals"`
}

type goalSeed struct {
	ID             string  `yaml:"id"`
	Name           string  `yaml:"name"`
	Target         float64 `yaml:"target"`
	FlexPercentage float64 `yaml:"flex_percentage"`
}

func loadRoster(path string) (*rosterFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read parties file: %w", err)
	}
	var r rosterFile
	if err := yaml.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("failed to parse parties YAML: %w", err)
	}

	seen := make(map[string]bool)
	for _, p := range r.Parties {
		if p.ID == "" {
			return nil, errors.New("party without id")
		}
		for _, m := range p.Members {
			if m.ID == "" || m.UserID == "" {
				return nil, fmt.Errorf("party %s: member needs id and user_id", p.ID)
			}
			if seen[m.ID] {
				return nil, fmt.Errorf("member %s listed twice", m.ID)
			}
			seen[m.ID] = true
			for _, g := range m.Goals {
				if g.ID == "" || g.Target <= 0 {
					return nil, fmt.Errorf("member %s: goal needs id and a positive target", m.ID)
				}
			}
		}
	}
	return &r, nil
}

// partyStore is the setup surface both backends offer.
type partyStore struct {
	checkIns     checkin.Store
	createMember func(ctx context.Context, m *checkin.Member) error
	createGoal   func(ctx context.Context, g checkin.Goal) error
	spawn        func(ctx context.Context, partyID string, mon *monster.Monster, at time.Time) error
}

func memoryParties(mem *memstore.Memory) partyStore {
	return partyStore{
		checkIns: mem.CheckIns(),
		createMember: func(_ context.Context, m *checkin.Member) error {
			mem.AddMember(*m)
			return nil
		},
		createGoal: func(_ context.Context, g checkin.Goal) error {
			mem.AddGoal(g)
			return nil
		},
		spawn: func(_ context.Context, partyID string, mon *monster.Monster, at time.Time) error {
			mem.SpawnMonster(partyID, mon, at)
			return nil
		},
	}
}

func databaseParties(db *database.Database) partyStore {
	return partyStore{
		checkIns:     db.CheckIns(),
		createMember: db.CreateMember,
		createGoal:   db.CreateGoal,
		spawn:        db.SpawnMonster,
	}
}

func (s partyStore) memberExists(ctx context.Context, id string) (bool, error) {
	err := s.checkIns.InTx(ctx, func(tx checkin.Tx) error {
		_, err := tx.Member(ctx, id)
		return err
	})
	switch {
	case errors.Is(err, checkin.ErrMemberNotFound):
		return false, nil
	case err != nil:
		return false, err
	}
	return true, nil
}

func (s partyStore) hasActiveMonster(ctx context.Context, partyID string) (bool, error) {
	err := s.checkIns.InTx(ctx, func(tx checkin.Tx) error {
		_, err := tx.ActiveMonster(ctx, partyID)
		return err
	})
	switch {
	case errors.Is(err, checkin.ErrNoActiveMonster):
		return false, nil
	case err != nil:
		return false, err
	}
	return true, nil
}

// rotation hands each party its next monster once the current one is
// rewarded.
type rotation struct {
	next    checkin.VictoryProcessor
	store   partyStore
	catalog *monster.Catalog
	now     func() time.Time

	mu      sync.Mutex
	parties map[string]*partyRotation
}

type partyRotation struct {
	order []string
	scale bool
	size  int
	fight int
}

func newRotation(next checkin.VictoryProcessor, store partyStore, catalog *monster.Catalog) *rotation {
	return &rotation{
		next:    next,
		store:   store,
		catalog: catalog,
		now:     time.Now,
		parties: make(map[string]*partyRotation),
	}
}

func (r *rotation) add(p partySeed) {
	order := p.Monsters
	if len(order) == 0 {
		order = r.catalog.IDs()
	}
	r.mu.Lock()
	r.parties[p.ID] = &partyRotation{order: order, scale: p.Scale, size: len(p.Members)}
	r.mu.Unlock()
}

// spawnNext spawns the party's next monster in its rotation.
func (r *rotation) spawnNext(ctx context.Context, partyID string) (*monster.Monster, error) {
	r.mu.Lock()
	pr, ok := r.parties[partyID]
	if !ok {
		pr = &partyRotation{order: r.catalog.IDs()}
		r.parties[partyID] = pr
	}
	if len(pr.order) == 0 {
		r.mu.Unlock()
		return nil, fmt.Errorf("party %s: no monsters to spawn", partyID)
	}
	id := pr.order[pr.fight%len(pr.order)]
	pr.fight++
	scale, size := pr.scale, pr.size
	r.mu.Unlock()

	tmpl, ok := r.catalog.Get(id)
	if !ok {
		return nil, fmt.Errorf("party %s: unknown monster %q", partyID, id)
	}
	if scale {
		tmpl = tmpl.ScaleForParty(size)
	}
	mon := tmpl.Spawn(uuid.NewString())
	if err := r.store.spawn(ctx, partyID, mon, r.now()); err != nil {
		return nil, err
	}
	return mon, nil
}

// Process rewards the fallen monster, then sends in the next one.
func (r *rotation) Process(ctx context.Context, partyID, monsterID string) error {
	if err := r.next.Process(ctx, partyID, monsterID); err != nil {
		return err
	}
	mon, err := r.spawnNext(ctx, partyID)
	if err != nil {
		return fmt.Errorf("spawn next monster: %w", err)
	}
	logger.Info("Monster spawned", "party_id", partyID, "monster", mon.Name, "max_hp", mon.MaxHP)
	return nil
}

// seedRoster creates missing members and goals and gives every party
// without a monster its first one. Existing members are left alone.
func seedRoster(ctx context.Context, roster *rosterFile, store partyStore, rot *rotation, rules combat.Rules, names *namefilter.Filter) error {
	for _, p := range roster.Parties {
		for _, ms := range p.Members {
			if err := names.Check(ms.Name); err != nil {
				return fmt.Errorf("member %s: %w", ms.ID, err)
			}
			for _, g := range ms.Goals {
				if err := names.Check(g.Name); err != nil {
					return fmt.Errorf("goal %s: %w", g.ID, err)
				}
			}
		}
	}

	for _, p := range roster.Parties {
		rot.add(p)
		for _, ms := range p.Members {
			exists, err := store.memberExists(ctx, ms.ID)
			if err != nil {
				return err
			}
			if exists {
				continue
			}
			m := checkin.NewMember(rules, ms.ID, p.ID, ms.UserID, ms.Name)
			if err := store.createMember(ctx, &m); err != nil {
				return fmt.Errorf("create member %s: %w", ms.ID, err)
			}
			for _, g := range ms.Goals {
				goal := checkin.Goal{ID: g.ID, MemberID: ms.ID, Name: g.Name, Target: g.Target, FlexPercentage: g.FlexPercentage}
				if err := store.createGoal(ctx, goal); err != nil {
					return fmt.Errorf("create goal %s: %w", g.ID, err)
				}
			}
			logger.Info("Member created", "party_id", p.ID, "member_id", ms.ID, "goals", len(ms.Goals))
		}

		active, err := store.hasActiveMonster(ctx, p.ID)
		if err != nil {
			return err
		}
		if !active {
			mon, err := rot.spawnNext(ctx, p.ID)
			if err != nil {
				return err
			}
			logger.Info("Monster spawned", "party_id", p.ID, "monster", mon.Name, "max_hp", mon.MaxHP)
		}
	}
	return nil
}
