package victory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/fitnessquest/server/internal/checkin"
	"github.com/fitnessquest/server/internal/combat"
	"github.com/fitnessquest/server/internal/leveling"
	"github.com/fitnessquest/server/internal/logger"
	"github.com/fitnessquest/server/internal/monster"
)

var (
	ErrAlreadyRewarded = errors.New("victory already rewarded")
	ErrMonsterAlive    = errors.New("monster is not defeated")
)

// Reward is the stored result of a victory. One per monster.
type Reward struct {
	ID          string
	PartyID     string
	MonsterID   string
	MonsterName string
	MonsterType monster.Type
	Summary
	XPAwarded int
	CreatedAt time.Time

	Grants []Grant              // not persisted
	Badges map[string][]string // user id to badges earned, not persisted
}

// Store runs victory work in its own transaction.
type Store interface {
	InTx(ctx context.Context, fn func(tx Tx) error) error
}

// Tx is what victory processing reads and writes.
type Tx interface {
	PartyMembers(ctx context.Context, partyID string) ([]checkin.Member, error)
	UpdateMember(ctx context.Context, m *checkin.Member) error
	// PartyMonster returns the monster and when the party started fighting it.
	PartyMonster(ctx context.Context, partyID, monsterID string) (*monster.Monster, time.Time, error)
	// PartyCheckIns returns the party's check-ins on or after since, oldest first.
	PartyCheckIns(ctx context.Context, partyID string, since time.Time) ([]checkin.Record, error)
	VictoryReward(ctx context.Context, partyID, monsterID string) (*Reward, error)
	InsertVictoryReward(ctx context.Context, r *Reward) error
}

// BadgeAwarder evaluates badge eligibility for a user.
type BadgeAwarder interface {
	Evaluate(ctx context.Context, userID string) ([]string, error)
}

// maxAttempts bounds retries of a reward that lost an optimistic update.
const maxAttempts = 3

// Processor rewards a party once its monster falls.
type Processor struct {
	store  Store
	rules  combat.Rules
	badges BadgeAwarder
	now    func() time.Time
}

// NewProcessor creates a victory processor. badges may be nil.
func NewProcessor(store Store, rules combat.Rules, badges BadgeAwarder) *Processor {
	return &Processor{store: store, rules: rules, badges: badges, now: time.Now}
}

// Process runs Reward and discards the result.
func (p *Processor) Process(ctx context.Context, partyID, monsterID string) error {
	_, err := p.Reward(ctx, partyID, monsterID)
	return err
}

// Reward computes and stores the victory for a defeated monster, then
// evaluates badges for every member. A second call returns ErrAlreadyRewarded.
// Badge failures are logged and never undo the XP grants.
func (p *Processor) Reward(ctx context.Context, partyID, monsterID string) (*Reward, error) {
	var (
		reward  *Reward
		members []checkin.Member
	)

	attempt := func(tx Tx) error {
		reward, members = nil, nil

		existing, err := tx.VictoryReward(ctx, partyID, monsterID)
		if err != nil {
			return err
		}
		if existing != nil {
			return ErrAlreadyRewarded
		}

		mon, since, err := tx.PartyMonster(ctx, partyID, monsterID)
		if err != nil {
			return err
		}
		if !mon.IsDefeated && mon.CurrentHP > 0 {
			return ErrMonsterAlive
		}

		history, err := tx.PartyCheckIns(ctx, partyID, checkin.Day(since))
		if err != nil {
			return err
		}
		members, err = tx.PartyMembers(ctx, partyID)
		if err != nil {
			return err
		}

		now := p.now().UTC()
		reward = &Reward{
			ID:          uuid.NewString(),
			PartyID:     partyID,
			MonsterID:   monsterID,
			MonsterName: mon.Name,
			MonsterType: mon.Type,
			Summary:     Compute(history, members, since, defeatDay(history, now)),
			CreatedAt:   now,
		}
		reward.Grants = ApplyRewards(p.rules, members, mon.Type)
		reward.XPAwarded = leveling.MonsterDefeatXP(mon.Type)

		for i := range members {
			if err := tx.UpdateMember(ctx, &members[i]); err != nil {
				return err
			}
		}
		return tx.InsertVictoryReward(ctx, reward)
	}

	var err error
	for try := 0; try < maxAttempts; try++ {
		if err = p.store.InTx(ctx, attempt); !errors.Is(err, checkin.ErrConcurrentUpdate) {
			break
		}
		logger.Debug("Victory lost a concurrent update, retrying", "party", partyID, "monster", monsterID, "attempt", try+1)
	}
	if err != nil {
		return nil, fmt.Errorf("victory %s/%s: %w", partyID, monsterID, err)
	}

	logger.Info("Victory rewarded",
		"party", partyID,
		"monster", reward.MonsterName,
		"days", reward.DaysToDefeat,
		"damage", reward.TotalDamage,
		"xp", reward.XPAwarded,
		"mvp_damage", reward.MVPs.Damage.MemberID)

	reward.Badges = p.awardBadges(ctx, members)
	return reward, nil
}

// defeatDay is the date of the latest check-in in history, the one that
// landed the killing blow. The next monster only spawns after the reward is
// stored, so nothing later can be in history. Falls back to now.
func defeatDay(history []checkin.Record, now time.Time) time.Time {
	var last time.Time
	for _, rec := range history {
		if rec.Date.After(last) {
			last = rec.Date
		}
	}
	if last.IsZero() {
		return now
	}
	return last
}

func (p *Processor) awardBadges(ctx context.Context, members []checkin.Member) map[string][]string {
	out := make(map[string][]string)
	if p.badges == nil {
		return out
	}
	for _, m := range members {
		if m.UserID == "" {
			continue
		}
		earned, err := p.badges.Evaluate(ctx, m.UserID)
		if err != nil {
			logger.Warning("Badge evaluation failed", "user", m.UserID, "error", err)
			continue
		}
		if len(earned) > 0 {
			out[m.UserID] = earned
		}
	}
	return out
}
