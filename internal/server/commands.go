package server

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fitnessquest/server/internal/checkin"
	"github.com/fitnessquest/server/internal/combat"
)

// Command types
const (
	CmdCheckIn           = "check_in"
	CmdEncourage         = "encourage"
	CmdWelcomeBackStatus = "welcome_back_status"
	CmdWelcomeBack       = "welcome_back"
	CmdMember            = "member"
	CmdSubscribe         = "subscribe"
)

// Command is one JSON request read from a client.
type Command struct {
	Type       string      `json:"type"`
	ID         string      `json:"id,omitempty"`
	MemberID   string      `json:"member_id,omitempty"`
	ToMemberID string      `json:"to_member_id,omitempty"`
	PartyID    string      `json:"party_id,omitempty"`
	Date       string      `json:"date,omitempty"` // YYYY-MM-DD, defaults to today
	Action     string      `json:"action,omitempty"`
	Goals      []GoalInput `json:"goals,omitempty"`
}

// GoalInput is a reported goal value.
type GoalInput struct {
	GoalID    string  `json:"goal_id"`
	Actual    float64 `json:"actual"`
	IsRestDay bool    `json:"rest_day,omitempty"`
}

// Reply answers one command.
type Reply struct {
	Type  string `json:"type"` // "result" or "error"
	ID    string `json:"id,omitempty"`
	Code  string `json:"code,omitempty"`
	Error string `json:"error,omitempty"`
	Data  any    `json:"data,omitempty"`
}

// Error codes
const (
	CodeMalformed        = "malformed"
	CodeUnknownCommand   = "unknown_command"
	CodeInvalid          = "invalid"
	CodeDuplicate        = "duplicate_check_in"
	CodeLocked           = "action_locked"
	CodeGoalNotFound     = "goal_not_found"
	CodeMemberNotFound   = "member_not_found"
	CodeNoMonster        = "no_active_monster"
	CodeAlreadyEncourage = "already_encouraged"
	CodeSelfEncourage    = "self_encouragement"
	CodeNotTeammates     = "not_teammates"
	CodeNotEligible      = "not_eligible"
	CodeRetry            = "retry"
	CodeInternal         = "internal"
)

type malformedError struct{ err error }

func (e *malformedError) Error() string { return "malformed command: " + e.err.Error() }
func (e *malformedError) Unwrap() error { return e.err }

// invalidError is a well-formed command with bad arguments.
type invalidError struct{ msg string }

func (e *invalidError) Error() string { return e.msg }

func invalidf(format string, args ...any) error {
	return &invalidError{msg: fmt.Sprintf(format, args...)}
}

// errorCode maps engine errors onto stable client codes.
func errorCode(err error) string {
	var (
		malformed *malformedError
		unknown   *unknownCommandError
		invalid   *invalidError
		locked    *combat.LockedError
	)
	switch {
	case errors.As(err, &malformed):
		return CodeMalformed
	case errors.As(err, &unknown):
		return CodeUnknownCommand
	case errors.As(err, &invalid):
		return CodeInvalid
	case errors.Is(err, checkin.ErrDuplicate):
		return CodeDuplicate
	case errors.As(err, &locked):
		return CodeLocked
	case errors.Is(err, checkin.ErrGoalNotFound):
		return CodeGoalNotFound
	case errors.Is(err, checkin.ErrMemberNotFound):
		return CodeMemberNotFound
	case errors.Is(err, checkin.ErrNoActiveMonster):
		return CodeNoMonster
	case errors.Is(err, checkin.ErrAlreadyEncouraged):
		return CodeAlreadyEncourage
	case errors.Is(err, checkin.ErrSelfEncouragement):
		return CodeSelfEncourage
	case errors.Is(err, checkin.ErrNotTeammates):
		return CodeNotTeammates
	case errors.Is(err, checkin.ErrNotEligible):
		return CodeNotEligible
	case errors.Is(err, checkin.ErrUnknownAction):
		return CodeInvalid
	case errors.Is(err, checkin.ErrConcurrentUpdate):
		return CodeRetry
	}
	return CodeInternal
}

// CheckInResult is the reply payload for check_in.
type CheckInResult struct {
	CheckInID    string          `json:"check_in_id"`
	Date         string          `json:"date"`
	GoalsMet     int             `json:"goals_met"`
	Action       combat.Action   `json:"action"`
	AttackRoll   int             `json:"attack_roll"`
	TotalBonus   int             `json:"total_bonus"`
	Hit          bool            `json:"hit"`
	DamageDealt  int             `json:"damage_dealt"`
	Countered    bool            `json:"countered"`
	DamageTaken  int             `json:"damage_taken"`
	FocusDelta   int             `json:"focus_delta"`
	XPGained     int             `json:"xp_gained"`
	LeveledUp    bool            `json:"leveled_up,omitempty"`
	NewLevel     int             `json:"new_level"`
	SkillPoints  int             `json:"skill_points_gained,omitempty"`
	MonsterHP    int             `json:"monster_hp"`
	Milestone    int             `json:"milestone,omitempty"`
	Defeated     bool            `json:"monster_defeated,omitempty"`
	HealTarget   string          `json:"heal_target,omitempty"`
	HealAmount   int             `json:"heal_amount,omitempty"`
	Member       MemberView      `json:"member"`
	UnlockedNext []combat.Action `json:"available_actions"`
}

// MemberView is a member's public state.
type MemberView struct {
	ID           string `json:"id"`
	PartyID      string `json:"party_id"`
	DisplayName  string `json:"display_name"`
	CurrentHP    int    `json:"current_hp"`
	MaxHP        int    `json:"max_hp"`
	Defense      int    `json:"defense"`
	DefenseBuff  int    `json:"defense_buff"`
	Streak       int    `json:"streak"`
	Focus        int    `json:"focus"`
	XP           int    `json:"xp"`
	Level        int    `json:"level"`
	LevelPercent int    `json:"level_percent"`
	SkillPoints  int    `json:"skill_points"`
	LastCheckIn  string `json:"last_check_in,omitempty"`
	WelcomeBack  int    `json:"welcome_back_remaining,omitempty"`
}

func memberView(m checkin.Member) MemberView {
	v := MemberView{
		ID:           m.ID,
		PartyID:      m.PartyID,
		DisplayName:  m.DisplayName,
		CurrentHP:    m.CurrentHP,
		MaxHP:        m.MaxHP,
		Defense:      m.Defense,
		DefenseBuff:  m.DefenseBuff,
		Streak:       m.Streak,
		Focus:        m.Focus,
		XP:           m.XP,
		Level:        m.Level,
		LevelPercent: m.Progress().Percent,
		SkillPoints:  m.SkillPoints,
	}
	if !m.LastCheckIn.IsZero() {
		v.LastCheckIn = m.LastCheckIn.Format(checkin.DateLayout)
	}
	if m.WelcomeBack.Active {
		v.WelcomeBack = m.WelcomeBack.Remaining
	}
	return v
}

// WelcomeBackView is the reply payload for the welcome back commands.
type WelcomeBackView struct {
	Eligible   bool   `json:"eligible"`
	DaysMissed int    `json:"days_missed"`
	Reason     string `json:"reason,omitempty"`
	Active     bool   `json:"active"`
	Remaining  int    `json:"remaining"`
	Healed     int    `json:"healed,omitempty"`
}

func (s *Server) commandDate(raw string) (time.Time, error) {
	if raw == "" {
		return checkin.Day(s.now()), nil
	}
	d, err := time.Parse(checkin.DateLayout, raw)
	if err != nil {
		return time.Time{}, invalidf("date must be YYYY-MM-DD, got %q", raw)
	}
	return d, nil
}

// dispatch runs one command and returns its reply payload.
func (s *Server) dispatch(ctx context.Context, sess *session, cmd *Command) (any, error) {
	switch cmd.Type {
	case CmdCheckIn:
		return s.handleCheckIn(ctx, cmd)
	case CmdEncourage:
		return s.handleEncourage(ctx, cmd)
	case CmdWelcomeBackStatus:
		return s.handleWelcomeBackStatus(ctx, cmd)
	case CmdWelcomeBack:
		return s.handleWelcomeBack(ctx, cmd)
	case CmdMember:
		if cmd.MemberID == "" {
			return nil, invalidf("member_id is required")
		}
		m, err := s.service.Member(ctx, cmd.MemberID)
		if err != nil {
			return nil, err
		}
		return memberView(*m), nil
	case CmdSubscribe:
		if cmd.PartyID == "" {
			return nil, invalidf("party_id is required")
		}
		sess.subscribe(s.hub, cmd.PartyID)
		return map[string]string{"party_id": cmd.PartyID}, nil
	}
	return nil, &unknownCommandError{typ: cmd.Type}
}

type unknownCommandError struct{ typ string }

func (e *unknownCommandError) Error() string { return fmt.Sprintf("unknown command %q", e.typ) }

func (s *Server) handleCheckIn(ctx context.Context, cmd *Command) (any, error) {
	if cmd.MemberID == "" {
		return nil, invalidf("member_id is required")
	}
	action := combat.Attack
	if cmd.Action != "" {
		a, err := combat.ParseAction(cmd.Action)
		if err != nil {
			return nil, invalidf("%v", err)
		}
		action = a
	}
	date, err := s.commandDate(cmd.Date)
	if err != nil {
		return nil, err
	}
	goals := make([]checkin.GoalInput, len(cmd.Goals))
	for i, g := range cmd.Goals {
		if g.Actual < 0 {
			return nil, invalidf("goal %s: actual cannot be negative", g.GoalID)
		}
		goals[i] = checkin.GoalInput{GoalID: g.GoalID, Actual: g.Actual, IsRestDay: g.IsRestDay}
	}

	res, err := s.service.ResolveCheckIn(ctx, cmd.MemberID, date, goals, action)
	if err != nil {
		return nil, err
	}
	rec, out := res.Record, res.Outcome
	view := CheckInResult{
		CheckInID:    rec.ID,
		Date:         rec.Date.Format(checkin.DateLayout),
		GoalsMet:     rec.GoalsMet,
		Action:       rec.Action,
		AttackRoll:   rec.AttackRoll,
		TotalBonus:   rec.TotalBonus,
		Hit:          rec.Hit,
		DamageDealt:  rec.DamageDealt,
		Countered:    rec.Countered,
		DamageTaken:  rec.DamageTaken,
		FocusDelta:   rec.FocusDelta,
		XPGained:     rec.XPGained,
		LeveledUp:    out.LevelUp.LeveledUp(),
		NewLevel:     out.Member.Level,
		SkillPoints:  out.LevelUp.SkillPoints,
		MonsterHP:    out.MonsterHPAfter,
		Milestone:    out.Milestone,
		Defeated:     out.MonsterDefeated,
		HealTarget:   rec.HealTarget,
		HealAmount:   rec.HealAmount,
		Member:       memberView(out.Member),
		UnlockedNext: combat.Available(out.Member.Streak, out.Member.Focus),
	}
	return view, nil
}

func (s *Server) handleEncourage(ctx context.Context, cmd *Command) (any, error) {
	if cmd.MemberID == "" || cmd.ToMemberID == "" {
		return nil, invalidf("member_id and to_member_id are required")
	}
	date, err := s.commandDate(cmd.Date)
	if err != nil {
		return nil, err
	}
	if err := s.service.Encourage(ctx, cmd.MemberID, cmd.ToMemberID, date); err != nil {
		return nil, err
	}
	return map[string]string{"to_member_id": cmd.ToMemberID}, nil
}

func (s *Server) handleWelcomeBackStatus(ctx context.Context, cmd *Command) (any, error) {
	if cmd.MemberID == "" {
		return nil, invalidf("member_id is required")
	}
	date, err := s.commandDate(cmd.Date)
	if err != nil {
		return nil, err
	}
	el, wb, err := s.service.WelcomeBackStatus(ctx, cmd.MemberID, date)
	if err != nil {
		return nil, err
	}
	return WelcomeBackView{
		Eligible: el.Eligible, DaysMissed: el.DaysMissed, Reason: el.Reason,
		Active: wb.Active, Remaining: wb.Remaining,
	}, nil
}

func (s *Server) handleWelcomeBack(ctx context.Context, cmd *Command) (any, error) {
	if cmd.MemberID == "" {
		return nil, invalidf("member_id is required")
	}
	date, err := s.commandDate(cmd.Date)
	if err != nil {
		return nil, err
	}
	healed, err := s.service.ActivateWelcomeBack(ctx, cmd.MemberID, date)
	if err != nil {
		return nil, err
	}
	m, err := s.service.Member(ctx, cmd.MemberID)
	if err != nil {
		return nil, err
	}
	return WelcomeBackView{
		Eligible: true, Healed: healed,
		Active: m.WelcomeBack.Active, Remaining: m.WelcomeBack.Remaining,
	}, nil
}
