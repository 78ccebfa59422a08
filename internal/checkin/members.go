package checkin

import (
	"context"
	"time"

	"github.com/fitnessquest/server/internal/logger"
)

// Encourage records one member cheering a teammate on date. Each pair may
// encourage once per day. Encouragements feed the receiver's defense.
func (s *Service) Encourage(ctx context.Context, fromID, toID string, date time.Time) error {
	if fromID == toID {
		return ErrSelfEncouragement
	}
	date = Day(date)
	var partyID string

	err := s.store.InTx(ctx, func(tx Tx) error {
		from, err := tx.Member(ctx, fromID)
		if err != nil {
			return err
		}
		to, err := tx.Member(ctx, toID)
		if err != nil {
			return err
		}
		if from.PartyID != to.PartyID {
			return ErrNotTeammates
		}
		partyID = from.PartyID
		return tx.InsertEncouragement(ctx, Encouragement{FromMemberID: fromID, ToMemberID: toID, Date: date})
	})
	if err != nil {
		return err
	}

	logger.Debug("Encouragement sent", "from", fromID, "to", toID, "party", partyID)
	s.publish(ctx, Event{Kind: EventEncouragement, PartyID: partyID, MemberID: toID})
	return nil
}

// WelcomeBackStatus reports whether a member can claim the welcome back bonus today.
func (s *Service) WelcomeBackStatus(ctx context.Context, memberID string, today time.Time) (Eligibility, WelcomeBack, error) {
	var (
		elig Eligibility
		wb   WelcomeBack
	)
	err := s.store.InTx(ctx, func(tx Tx) error {
		m, err := tx.Member(ctx, memberID)
		if err != nil {
			return err
		}
		elig = WelcomeBackEligibility(s.rules, *m, today)
		wb = m.WelcomeBack
		return nil
	})
	return elig, wb, err
}

// ActivateWelcomeBack grants the bonus to an eligible member and returns the
// HP restored. Ineligible members get ErrNotEligible.
func (s *Service) ActivateWelcomeBack(ctx context.Context, memberID string, today time.Time) (int, error) {
	var (
		healed  int
		partyID string
	)
	err := s.store.InTx(ctx, func(tx Tx) error {
		m, err := tx.Member(ctx, memberID)
		if err != nil {
			return err
		}
		if !WelcomeBackEligibility(s.rules, *m, today).Eligible {
			return ErrNotEligible
		}
		healed = ActivateWelcomeBack(s.rules, m)
		partyID = m.PartyID
		return tx.UpdateMember(ctx, m)
	})
	if err != nil {
		return 0, err
	}

	logger.Info("Welcome back bonus activated", "member", memberID, "healed", healed)
	s.publish(ctx, Event{Kind: EventWelcomeBack, PartyID: partyID, MemberID: memberID})
	return healed, nil
}

// SwitchParty moves a member to another party, resetting their combat state.
func (s *Service) SwitchParty(ctx context.Context, memberID, partyID string) (*Member, error) {
	var out *Member
	err := s.store.InTx(ctx, func(tx Tx) error {
		m, err := tx.Member(ctx, memberID)
		if err != nil {
			return err
		}
		m.Reset(s.rules, partyID)
		out = m
		return tx.UpdateMember(ctx, m)
	})
	return out, err
}

// Member loads a member's current state.
func (s *Service) Member(ctx context.Context, memberID string) (*Member, error) {
	var out *Member
	err := s.store.InTx(ctx, func(tx Tx) error {
		m, err := tx.Member(ctx, memberID)
		out = m
		return err
	})
	return out, err
}
