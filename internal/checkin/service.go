package checkin

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/fitnessquest/server/internal/combat"
	"github.com/fitnessquest/server/internal/logger"
	"github.com/fitnessquest/server/internal/stats"
)

// Result is what a successful check-in returns to the caller.
type Result struct {
	Record  *Record
	Outcome *TurnOutcome
}

// Service resolves live check-ins against a Store.
type Service struct {
	store    Store
	rules    combat.Rules
	notifier Notifier
	victory  VictoryProcessor
	badges   BadgeAwarder
	now      func() time.Time

	rngMu sync.Mutex
	rng   stats.Roller

	wg sync.WaitGroup
}

// Option configures a Service.
type Option func(*Service)

// WithNotifier sets the party event sink.
func WithNotifier(n Notifier) Option {
	return func(s *Service) { s.notifier = n }
}

// WithVictory sets the processor run after a monster falls.
func WithVictory(v VictoryProcessor) Option {
	return func(s *Service) { s.victory = v }
}

// WithBadges sets the badge awarder run after each check-in.
func WithBadges(b BadgeAwarder) Option {
	return func(s *Service) { s.badges = b }
}

// WithRoller replaces the dice source.
func WithRoller(r stats.Roller) Option {
	return func(s *Service) { s.rng = r }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates a check-in service.
func NewService(store Store, rules combat.Rules, opts ...Option) *Service {
	s := &Service{
		store: store,
		rules: rules,
		now:   time.Now,
		rng:   stats.NewRand(stats.RandomSeed()),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Rules returns the rule set the service resolves with.
func (s *Service) Rules() combat.Rules {
	return s.rules
}

// maxAttempts bounds retries of a check-in that lost an optimistic update.
const maxAttempts = 3

// ResolveCheckIn resolves one member's turn for a calendar day.
//
// A second call for the same member and date returns *DuplicateCheckInError
// carrying the stored record. A locked action returns *ActionNotUnlockedError.
// Neither changes any state.
func (s *Service) ResolveCheckIn(ctx context.Context, memberID string, date time.Time, goals []GoalInput, action combat.Action) (*Result, error) {
	date = Day(date)
	var (
		rec     *Record
		outcome *TurnOutcome
		dup     *Record
	)

	attempt := func(tx Tx) error {
		rec, outcome, dup = nil, nil, nil

		existing, err := tx.CheckIn(ctx, memberID, date)
		if err != nil {
			return err
		}
		if existing != nil {
			dup = existing
			return ErrDuplicate
		}

		member, err := tx.Member(ctx, memberID)
		if err != nil {
			return err
		}
		mon, err := tx.ActiveMonster(ctx, member.PartyID)
		if err != nil {
			return err
		}
		outcomes, err := s.goalOutcomes(ctx, tx, memberID, goals)
		if err != nil {
			return err
		}
		party, err := tx.PartyMembers(ctx, member.PartyID)
		if err != nil {
			return err
		}
		before, err := tx.PartyCheckInCount(ctx, member.PartyID, date)
		if err != nil {
			return err
		}
		enc, err := tx.EncouragementsReceived(ctx, memberID, date.AddDate(0, 0, -6), date)
		if err != nil {
			return err
		}

		in := TurnInput{
			Date:               date,
			Member:             *member,
			Monster:            *mon,
			Goals:              outcomes,
			Action:             action,
			CheckedInYesterday: !member.LastCheckIn.IsZero() && DaysBetween(member.LastCheckIn, date) == 1,
			CheckedInBefore:    before,
			Encouragements7d:   enc,
			Teammates:          party,
		}

		s.rngMu.Lock()
		outcome, err = Resolve(s.rules, s.rng, in)
		s.rngMu.Unlock()
		if err != nil {
			return err
		}

		// The decrement is applied atomically; other members may have hit the
		// monster since the snapshot, so milestone and defeat use real values.
		hpBefore, hpAfter, err := tx.DamageMonster(ctx, mon.ID, outcome.DamageDealt)
		if err != nil {
			return err
		}
		outcome.MonsterHPBefore = hpBefore
		outcome.MonsterHPAfter = hpAfter
		outcome.Milestone = combat.MilestoneCrossed(hpBefore, hpAfter, mon.MaxHP)
		outcome.MonsterDefeated = hpBefore > 0 && hpAfter == 0
		if outcome.MonsterDefeated {
			if err := tx.DeactivateMonster(ctx, member.PartyID, mon.ID); err != nil {
				return err
			}
		}

		rec = outcome.Record(uuid.NewString(), date)
		rec.CreatedAt = s.now().UTC()
		if err := tx.InsertCheckIn(ctx, rec); err != nil {
			return err
		}

		updated := outcome.Member
		if err := tx.UpdateMember(ctx, &updated); err != nil {
			return err
		}
		if outcome.PartyDefense > 0 {
			if err := tx.AddPartyDefense(ctx, member.PartyID, member.ID, outcome.PartyDefense, s.rules.MaxDefense); err != nil {
				return err
			}
		}
		if outcome.Heal != nil {
			if err := tx.HealMember(ctx, outcome.Heal.MemberID, outcome.Heal.Amount); err != nil {
				return err
			}
		}
		outcome.Member = updated
		return nil
	}

	var err error
	for try := 0; try < maxAttempts; try++ {
		if err = s.store.InTx(ctx, attempt); !errors.Is(err, ErrConcurrentUpdate) {
			break
		}
		logger.Debug("Check-in lost a concurrent update, retrying", "member", memberID, "attempt", try+1)
	}

	if errors.Is(err, ErrDuplicate) {
		if dup == nil {
			// Lost an insert race; the winner's record is committed now.
			existing, rerr := s.store.CheckIn(ctx, memberID, date)
			if rerr != nil {
				return nil, fmt.Errorf("load existing check-in: %w", rerr)
			}
			dup = existing
		}
		return nil, &DuplicateCheckInError{Existing: dup}
	}
	if err != nil {
		return nil, err
	}

	logger.Audit("check-in resolved",
		"member", memberID,
		"party", rec.PartyID,
		"date", date.Format(DateLayout),
		"action", rec.Action,
		"goals_met", rec.GoalsMet,
		"damage", rec.DamageDealt,
		"hit", rec.Hit,
		"countered", rec.Countered,
		"monster_hp", outcome.MonsterHPAfter)

	s.publish(ctx, Event{
		Kind:      EventCheckIn,
		PartyID:   rec.PartyID,
		MemberID:  memberID,
		MonsterHP: outcome.MonsterHPAfter,
		Milestone: outcome.Milestone,
		Defeated:  outcome.MonsterDefeated,
	})
	s.afterCommit(rec.PartyID, outcome)

	return &Result{Record: rec, Outcome: outcome}, nil
}

func (s *Service) goalOutcomes(ctx context.Context, tx Tx, memberID string, inputs []GoalInput) ([]GoalOutcome, error) {
	if len(inputs) == 0 {
		return nil, nil
	}
	goals, err := tx.Goals(ctx, memberID)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]Goal, len(goals))
	for _, g := range goals {
		byID[g.ID] = g
	}

	out := make([]GoalOutcome, 0, len(inputs))
	for _, in := range inputs {
		g, ok := byID[in.GoalID]
		if !ok {
			return nil, &GoalNotFoundError{GoalID: in.GoalID}
		}
		out = append(out, GoalOutcome{
			GoalID:         g.ID,
			Target:         g.Target,
			Actual:         in.Actual,
			FlexPercentage: g.FlexPercentage,
			IsRestDay:      in.IsRestDay,
		})
	}
	return out, nil
}

// afterCommit runs best-effort follow-ups in the background.
func (s *Service) afterCommit(partyID string, outcome *TurnOutcome) {
	if !outcome.MonsterDefeated && s.badges == nil {
		return
	}
	monsterID := ""
	if outcome.MonsterDefeated {
		monsterID = outcome.MonsterID
	}
	userID := outcome.Member.UserID

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ctx := context.Background()

		if monsterID != "" && s.victory != nil {
			if err := s.victory.Process(ctx, partyID, monsterID); err != nil {
				logger.Error("Victory processing failed",
					"party", partyID,
					"monster", monsterID,
					"error", err)
			} else {
				s.publish(ctx, Event{Kind: EventVictory, PartyID: partyID, Defeated: true})
			}
		}
		if s.badges != nil && userID != "" {
			if _, err := s.badges.Evaluate(ctx, userID); err != nil {
				logger.Warning("Badge evaluation failed", "user", userID, "error", err)
			}
		}
	}()
}

// Wait blocks until background victory and badge work has finished.
func (s *Service) Wait() {
	s.wg.Wait()
}

func (s *Service) publish(ctx context.Context, ev Event) {
	if s.notifier == nil {
		return
	}
	s.notifier.PartyChanged(ctx, ev)
}
