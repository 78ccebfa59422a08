package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/fitnessquest/server/internal/checkin"
)

const memberColumns = `id, party_id, user_id, display_name, current_hp, max_hp, defense, defense_buff,
	streak, focus, xp, level, skill_points, last_check_in,
	welcome_back_active, welcome_back_remaining, version`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMember(row rowScanner) (*checkin.Member, error) {
	var (
		m          checkin.Member
		lastDate   string
		wbActive   int
		wbRemained int
	)
	err := row.Scan(&m.ID, &m.PartyID, &m.UserID, &m.DisplayName, &m.CurrentHP, &m.MaxHP, &m.Defense, &m.DefenseBuff,
		&m.Streak, &m.Focus, &m.XP, &m.Level, &m.SkillPoints, &lastDate,
		&wbActive, &wbRemained, &m.Version)
	if err != nil {
		return nil, err
	}
	if m.LastCheckIn, err = parseDate(lastDate); err != nil {
		return nil, fmt.Errorf("member %s last check-in: %w", m.ID, err)
	}
	m.WelcomeBack = checkin.WelcomeBack{Active: wbActive != 0, Remaining: wbRemained}
	return &m, nil
}

// CreateMember inserts a new party member.
func (t *Tx) CreateMember(ctx context.Context, m *checkin.Member) error {
	_, err := t.exec(ctx, `INSERT INTO party_members (`+memberColumns+`, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.PartyID, m.UserID, m.DisplayName, m.CurrentHP, m.MaxHP, m.Defense, m.DefenseBuff,
		m.Streak, m.Focus, m.XP, m.Level, m.SkillPoints, formatDate(m.LastCheckIn),
		boolInt(m.WelcomeBack.Active), m.WelcomeBack.Remaining, m.Version,
		formatTime(time.Now()))
	if err != nil {
		if t.db.dialect.IsDuplicateKeyError(err) {
			return fmt.Errorf("member %s: %w", m.ID, ErrExists)
		}
		return fmt.Errorf("failed to create member: %w", err)
	}
	return nil
}

// Member loads a member and, on PostgreSQL, locks the row for the transaction.
func (t *Tx) Member(ctx context.Context, memberID string) (*checkin.Member, error) {
	row := t.queryRow(ctx, `SELECT `+memberColumns+` FROM party_members WHERE id = ?`+t.db.dialect.ForUpdate(), memberID)
	m, err := scanMember(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, checkin.ErrMemberNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load member: %w", err)
	}
	return m, nil
}

// PartyMembers lists a party's members in join order.
func (t *Tx) PartyMembers(ctx context.Context, partyID string) ([]checkin.Member, error) {
	rows, err := t.query(ctx, `SELECT `+memberColumns+` FROM party_members
		WHERE party_id = ? ORDER BY created_at, id`, partyID)
	if err != nil {
		return nil, fmt.Errorf("failed to list party members: %w", err)
	}
	defer rows.Close()

	var out []checkin.Member
	for rows.Next() {
		m, err := scanMember(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan member: %w", err)
		}
		out = append(out, *m)
	}
	return out, rows.Err()
}

// MembersByUser lists every membership a user holds.
func (t *Tx) MembersByUser(ctx context.Context, userID string) ([]checkin.Member, error) {
	rows, err := t.query(ctx, `SELECT `+memberColumns+` FROM party_members
		WHERE user_id = ? ORDER BY created_at, id`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list user members: %w", err)
	}
	defer rows.Close()

	var out []checkin.Member
	for rows.Next() {
		m, err := scanMember(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan member: %w", err)
		}
		out = append(out, *m)
	}
	return out, rows.Err()
}

// UpdateMember writes the member's state if nobody changed it since it was
// read, and bumps its version.
func (t *Tx) UpdateMember(ctx context.Context, m *checkin.Member) error {
	res, err := t.exec(ctx, `UPDATE party_members SET
			party_id = ?, display_name = ?, current_hp = ?, max_hp = ?, defense = ?, defense_buff = ?,
			streak = ?, focus = ?, xp = ?, level = ?, skill_points = ?, last_check_in = ?,
			welcome_back_active = ?, welcome_back_remaining = ?, version = version + 1
		WHERE id = ? AND version = ?`,
		m.PartyID, m.DisplayName, m.CurrentHP, m.MaxHP, m.Defense, m.DefenseBuff,
		m.Streak, m.Focus, m.XP, m.Level, m.SkillPoints, formatDate(m.LastCheckIn),
		boolInt(m.WelcomeBack.Active), m.WelcomeBack.Remaining,
		m.ID, m.Version)
	if err != nil {
		return fmt.Errorf("failed to update member: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update member: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("member %s: %w", m.ID, checkin.ErrConcurrentUpdate)
	}
	m.Version++
	return nil
}

// HealMember restores HP up to the member's maximum.
func (t *Tx) HealMember(ctx context.Context, memberID string, amount int) error {
	_, err := t.exec(ctx, `UPDATE party_members
		SET current_hp = `+t.db.qb.Min("current_hp + ?", "max_hp")+`, version = version + 1
		WHERE id = ?`, max(0, amount), memberID)
	if err != nil {
		return fmt.Errorf("failed to heal member: %w", err)
	}
	return nil
}

// AddPartyDefense raises every other member's defense buff, capped at maxDefense.
func (t *Tx) AddPartyDefense(ctx context.Context, partyID, exceptMemberID string, amount, maxDefense int) error {
	_, err := t.exec(ctx, `UPDATE party_members
		SET defense_buff = `+t.db.qb.Min("defense_buff + ?", "?")+`, version = version + 1
		WHERE party_id = ? AND id <> ?`, amount, maxDefense, partyID, exceptMemberID)
	if err != nil {
		return fmt.Errorf("failed to add party defense: %w", err)
	}
	return nil
}

// CreateGoal inserts a goal for a member.
func (t *Tx) CreateGoal(ctx context.Context, g checkin.Goal) error {
	_, err := t.exec(ctx, `INSERT INTO goals (id, member_id, name, target, flex_percentage, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		g.ID, g.MemberID, g.Name, g.Target, g.FlexPercentage, formatTime(time.Now()))
	if err != nil {
		return fmt.Errorf("failed to create goal: %w", err)
	}
	return nil
}

// Goals lists a member's goals in creation order.
func (t *Tx) Goals(ctx context.Context, memberID string) ([]checkin.Goal, error) {
	rows, err := t.query(ctx, `SELECT id, member_id, name, target, flex_percentage
		FROM goals WHERE member_id = ? ORDER BY created_at, id`, memberID)
	if err != nil {
		return nil, fmt.Errorf("failed to list goals: %w", err)
	}
	defer rows.Close()

	var out []checkin.Goal
	for rows.Next() {
		var g checkin.Goal
		if err := rows.Scan(&g.ID, &g.MemberID, &g.Name, &g.Target, &g.FlexPercentage); err != nil {
			return nil, fmt.Errorf("failed to scan goal: %w", err)
		}
		out = append(out, g)
	}
	return out, rows.Err()
}
