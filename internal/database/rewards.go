package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/fitnessquest/server/internal/badges"
	"github.com/fitnessquest/server/internal/combat"
	"github.com/fitnessquest/server/internal/monster"
	"github.com/fitnessquest/server/internal/victory"
)

// VictoryReward returns the stored reward for a monster, or nil.
func (t *Tx) VictoryReward(ctx context.Context, partyID, monsterID string) (*victory.Reward, error) {
	var (
		r       victory.Reward
		typ     string
		created string
	)
	err := t.queryRow(ctx, `SELECT id, party_id, monster_id, monster_name, monster_type,
			days_to_defeat, total_damage, total_heals,
			mvp_consistent, mvp_consistent_stat, mvp_supportive, mvp_supportive_stat,
			mvp_damage, mvp_damage_stat, xp_awarded, created_at
		FROM victory_rewards WHERE party_id = ? AND monster_id = ?`, partyID, monsterID).Scan(
		&r.ID, &r.PartyID, &r.MonsterID, &r.MonsterName, &typ,
		&r.DaysToDefeat, &r.TotalDamage, &r.TotalHeals,
		&r.MVPs.Consistent.MemberID, &r.MVPs.Consistent.Stat,
		&r.MVPs.Supportive.MemberID, &r.MVPs.Supportive.Stat,
		&r.MVPs.Damage.MemberID, &r.MVPs.Damage.Stat, &r.XPAwarded, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load victory reward: %w", err)
	}
	r.MonsterType = monster.Type(typ)
	if r.CreatedAt, err = parseTime(created); err != nil {
		return nil, fmt.Errorf("victory reward created_at: %w", err)
	}
	return &r, nil
}

// InsertVictoryReward stores a reward. The second reward for the same party
// and monster fails with victory.ErrAlreadyRewarded.
func (t *Tx) InsertVictoryReward(ctx context.Context, r *victory.Reward) error {
	_, err := t.exec(ctx, `INSERT INTO victory_rewards (id, party_id, monster_id, monster_name, monster_type,
			days_to_defeat, total_damage, total_heals,
			mvp_consistent, mvp_consistent_stat, mvp_supportive, mvp_supportive_stat,
			mvp_damage, mvp_damage_stat, xp_awarded, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.PartyID, r.MonsterID, r.MonsterName, string(r.MonsterType),
		r.DaysToDefeat, r.TotalDamage, r.TotalHeals,
		r.MVPs.Consistent.MemberID, r.MVPs.Consistent.Stat,
		r.MVPs.Supportive.MemberID, r.MVPs.Supportive.Stat,
		r.MVPs.Damage.MemberID, r.MVPs.Damage.Stat, r.XPAwarded, formatTime(r.CreatedAt))
	if err != nil {
		if t.db.dialect.IsDuplicateKeyError(err) {
			return victory.ErrAlreadyRewarded
		}
		return fmt.Errorf("failed to insert victory reward: %w", err)
	}
	return nil
}

// BadgeStats totals a user's history across every party they belong to.
func (d *Database) BadgeStats(ctx context.Context, userID string) (badges.Stats, error) {
	var s badges.Stats
	q := func(query string, dest ...any) error {
		return d.db.QueryRowContext(ctx, d.qb.Build(query), userID).Scan(dest...)
	}

	if err := q(`SELECT COALESCE(MAX(streak), 0) FROM party_members WHERE user_id = ?`,
		&s.LongestStreak); err != nil {
		return s, fmt.Errorf("failed to load streak: %w", err)
	}
	if err := q(`SELECT COUNT(*) FROM victory_rewards WHERE party_id IN
			(SELECT party_id FROM party_members WHERE user_id = ?)`,
		&s.MonstersDefeated); err != nil {
		return s, fmt.Errorf("failed to count victories: %w", err)
	}
	if err := q(`SELECT COALESCE(SUM(c.goals_met), 0),
			COALESCE(SUM(CASE WHEN c.heal_amount > 0 THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN c.action = '`+string(combat.Defend)+`' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN c.action = '`+string(combat.HeroicStrike)+`' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN c.attack_roll = 20 THEN 1 ELSE 0 END), 0)
		FROM check_ins c JOIN party_members pm ON pm.id = c.member_id
		WHERE pm.user_id = ?`,
		&s.GoalsMet, &s.Heals, &s.Defends, &s.HeroicStrikes, &s.NaturalTwenties); err != nil {
		return s, fmt.Errorf("failed to total check-ins: %w", err)
	}
	if err := q(`SELECT COUNT(*) FROM encouragements e JOIN party_members pm ON pm.id = e.from_member_id
		WHERE pm.user_id = ?`, &s.EncouragementsSent); err != nil {
		return s, fmt.Errorf("failed to count encouragements: %w", err)
	}
	return s, nil
}

// AwardBadge records a badge, reporting false when the user already had it.
func (d *Database) AwardBadge(ctx context.Context, userID string, badge badges.Type, at time.Time) (bool, error) {
	res, err := d.db.ExecContext(ctx, d.qb.Build(`INSERT INTO badges (user_id, badge_type, awarded_at)
		VALUES (?, ?, ?) ON CONFLICT (user_id, badge_type) DO NOTHING`), userID, string(badge), formatTime(at))
	if err != nil {
		return false, fmt.Errorf("failed to award badge: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to award badge: %w", err)
	}
	return n == 1, nil
}

// Badges lists the badges a user holds in award order.
func (d *Database) Badges(ctx context.Context, userID string) ([]badges.Type, error) {
	rows, err := d.db.QueryContext(ctx, d.qb.Build(`SELECT badge_type FROM badges
		WHERE user_id = ? ORDER BY awarded_at, badge_type`), userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list badges: %w", err)
	}
	defer rows.Close()

	var out []badges.Type
	for rows.Next() {
		var b string
		if err := rows.Scan(&b); err != nil {
			return nil, fmt.Errorf("failed to scan badge: %w", err)
		}
		out = append(out, badges.Type(b))
	}
	return out, rows.Err()
}
