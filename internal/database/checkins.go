package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/fitnessquest/server/internal/checkin"
	"github.com/fitnessquest/server/internal/combat"
)

const checkInColumns = `id, member_id, party_id, check_in_date, goals_met, action, attack_roll,
	total_bonus, hit, damage_dealt, countered, damage_taken, focus_delta,
	heal_target, heal_amount, xp_gained, created_at`

func scanCheckIn(row rowScanner) (*checkin.Record, error) {
	var (
		rec       checkin.Record
		date      string
		action    string
		hit       int
		countered int
		created   string
	)
	err := row.Scan(&rec.ID, &rec.MemberID, &rec.PartyID, &date, &rec.GoalsMet, &action, &rec.AttackRoll,
		&rec.TotalBonus, &hit, &rec.DamageDealt, &countered, &rec.DamageTaken, &rec.FocusDelta,
		&rec.HealTarget, &rec.HealAmount, &rec.XPGained, &created)
	if err != nil {
		return nil, err
	}
	rec.Action = combat.Action(action)
	rec.Hit = hit != 0
	rec.Countered = countered != 0
	if rec.Date, err = parseDate(date); err != nil {
		return nil, fmt.Errorf("check-in %s date: %w", rec.ID, err)
	}
	if rec.CreatedAt, err = parseTime(created); err != nil {
		return nil, fmt.Errorf("check-in %s created_at: %w", rec.ID, err)
	}
	return &rec, nil
}

// CheckIn returns a member's check-in for a day, or nil if there is none.
func (t *Tx) CheckIn(ctx context.Context, memberID string, date time.Time) (*checkin.Record, error) {
	row := t.queryRow(ctx, `SELECT `+checkInColumns+` FROM check_ins
		WHERE member_id = ? AND check_in_date = ?`, memberID, formatDate(checkin.Day(date)))
	rec, err := scanCheckIn(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load check-in: %w", err)
	}
	if rec.Goals, err = t.goalOutcomes(ctx, rec.ID); err != nil {
		return nil, err
	}
	return rec, nil
}

func (t *Tx) goalOutcomes(ctx context.Context, checkInID string) ([]checkin.GoalOutcome, error) {
	rows, err := t.query(ctx, `SELECT goal_id, target, actual, flex_percentage, is_rest_day, met
		FROM goal_check_ins WHERE check_in_id = ? ORDER BY position`, checkInID)
	if err != nil {
		return nil, fmt.Errorf("failed to load goal outcomes: %w", err)
	}
	defer rows.Close()

	var out []checkin.GoalOutcome
	for rows.Next() {
		var (
			g         checkin.GoalOutcome
			rest, met int
		)
		if err := rows.Scan(&g.GoalID, &g.Target, &g.Actual, &g.FlexPercentage, &rest, &met); err != nil {
			return nil, fmt.Errorf("failed to scan goal outcome: %w", err)
		}
		g.IsRestDay = rest != 0
		g.Met = met != 0
		out = append(out, g)
	}
	return out, rows.Err()
}

// InsertCheckIn stores a check-in with its goal outcomes.
func (t *Tx) InsertCheckIn(ctx context.Context, rec *checkin.Record) error {
	_, err := t.exec(ctx, `INSERT INTO check_ins (`+checkInColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.MemberID, rec.PartyID, formatDate(checkin.Day(rec.Date)), rec.GoalsMet, string(rec.Action), rec.AttackRoll,
		rec.TotalBonus, boolInt(rec.Hit), rec.DamageDealt, boolInt(rec.Countered), rec.DamageTaken, rec.FocusDelta,
		rec.HealTarget, rec.HealAmount, rec.XPGained, formatTime(rec.CreatedAt))
	if err != nil {
		if t.db.dialect.IsDuplicateKeyError(err) {
			return checkin.ErrDuplicate
		}
		return fmt.Errorf("failed to insert check-in: %w", err)
	}

	for i, g := range rec.Goals {
		_, err := t.exec(ctx, `INSERT INTO goal_check_ins
				(check_in_id, position, goal_id, target, actual, flex_percentage, is_rest_day, met)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			rec.ID, i, g.GoalID, g.Target, g.Actual, g.FlexPercentage, boolInt(g.IsRestDay), boolInt(g.Met))
		if err != nil {
			return fmt.Errorf("failed to insert goal outcome: %w", err)
		}
	}
	return nil
}

// PartyCheckInCount counts the party's check-ins on a day.
func (t *Tx) PartyCheckInCount(ctx context.Context, partyID string, date time.Time) (int, error) {
	var n int
	err := t.queryRow(ctx, `SELECT COUNT(*) FROM check_ins WHERE party_id = ? AND check_in_date = ?`,
		partyID, formatDate(checkin.Day(date))).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count check-ins: %w", err)
	}
	return n, nil
}

// PartyCheckIns lists the party's check-ins from since onward, oldest first.
// Goal outcomes are not loaded.
func (t *Tx) PartyCheckIns(ctx context.Context, partyID string, since time.Time) ([]checkin.Record, error) {
	rows, err := t.query(ctx, `SELECT `+checkInColumns+` FROM check_ins
		WHERE party_id = ? AND check_in_date >= ?
		ORDER BY created_at, id`, partyID, formatDate(checkin.Day(since)))
	if err != nil {
		return nil, fmt.Errorf("failed to list party check-ins: %w", err)
	}
	defer rows.Close()

	var out []checkin.Record
	for rows.Next() {
		rec, err := scanCheckIn(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan check-in: %w", err)
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

// EncouragementsReceived counts encouragements sent to a member between two
// days, inclusive.
func (t *Tx) EncouragementsReceived(ctx context.Context, memberID string, from, to time.Time) (int, error) {
	var n int
	err := t.queryRow(ctx, `SELECT COUNT(*) FROM encouragements
		WHERE to_member_id = ? AND encouragement_date >= ? AND encouragement_date <= ?`,
		memberID, formatDate(checkin.Day(from)), formatDate(checkin.Day(to))).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count encouragements: %w", err)
	}
	return n, nil
}

// InsertEncouragement stores one encouragement per sender, receiver and day.
func (t *Tx) InsertEncouragement(ctx context.Context, e checkin.Encouragement) error {
	_, err := t.exec(ctx, `INSERT INTO encouragements (from_member_id, to_member_id, encouragement_date)
		VALUES (?, ?, ?)`, e.FromMemberID, e.ToMemberID, formatDate(checkin.Day(e.Date)))
	if err != nil {
		if t.db.dialect.IsDuplicateKeyError(err) {
			return checkin.ErrAlreadyEncouraged
		}
		return fmt.Errorf("failed to insert encouragement: %w", err)
	}
	return nil
}
