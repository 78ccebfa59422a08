package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/fitnessquest/server/internal/checkin"
	"github.com/fitnessquest/server/internal/monster"
	"github.com/fitnessquest/server/internal/stats"
)

var (
	ErrNotFound = errors.New("not found")
	ErrExists   = errors.New("already exists")
)

const monsterColumns = `m.id, m.name, m.monster_type, m.max_hp, m.current_hp, m.armor_class,
	m.damage_min, m.damage_max, m.counter_chance, m.counter_dice, m.is_defeated, m.version`

func scanMonster(row rowScanner, extra ...any) (*monster.Monster, error) {
	var (
		mon      monster.Monster
		typ      string
		dice     string
		defeated int
	)
	dest := []any{&mon.ID, &mon.Name, &typ, &mon.MaxHP, &mon.CurrentHP, &mon.ArmorClass,
		&mon.BaseDamage[0], &mon.BaseDamage[1], &mon.CounterattackChance, &dice, &defeated, &mon.Version}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}
	mon.Type = monster.Type(typ)
	mon.IsDefeated = defeated != 0
	if dice != "" {
		d, err := stats.ParseDice(dice)
		if err != nil {
			return nil, fmt.Errorf("monster %s: %w", mon.ID, err)
		}
		mon.CounterDice = d
	}
	return &mon, nil
}

func diceColumn(d stats.Dice) string {
	if d.Count == 0 {
		return ""
	}
	return d.String()
}

// SpawnMonster stores mon and makes it the party's only active monster.
func (t *Tx) SpawnMonster(ctx context.Context, partyID string, mon *monster.Monster, at time.Time) error {
	if _, err := t.exec(ctx, `UPDATE party_monsters SET is_active = 0 WHERE party_id = ?`, partyID); err != nil {
		return fmt.Errorf("failed to retire monsters: %w", err)
	}

	_, err := t.exec(ctx, `INSERT INTO monsters (id, name, monster_type, max_hp, current_hp, armor_class,
			damage_min, damage_max, counter_chance, counter_dice, is_defeated, version)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		mon.ID, mon.Name, string(mon.Type), mon.MaxHP, mon.CurrentHP, mon.ArmorClass,
		mon.BaseDamage[0], mon.BaseDamage[1], mon.CounterattackChance, diceColumn(mon.CounterDice),
		boolInt(mon.IsDefeated), mon.Version)
	if err != nil {
		if t.db.dialect.IsDuplicateKeyError(err) {
			return fmt.Errorf("monster %s: %w", mon.ID, ErrExists)
		}
		return fmt.Errorf("failed to create monster: %w", err)
	}

	_, err = t.exec(ctx, `INSERT INTO party_monsters (party_id, monster_id, is_active, created_at)
		VALUES (?, ?, 1, ?)`, partyID, mon.ID, formatTime(at))
	if err != nil {
		return fmt.Errorf("failed to assign monster: %w", err)
	}
	return nil
}

// ActiveMonster returns the monster the party is currently fighting.
func (t *Tx) ActiveMonster(ctx context.Context, partyID string) (*monster.Monster, error) {
	row := t.queryRow(ctx, `SELECT `+monsterColumns+`
		FROM monsters m JOIN party_monsters pm ON pm.monster_id = m.id
		WHERE pm.party_id = ? AND pm.is_active = 1
		ORDER BY pm.created_at DESC LIMIT 1`, partyID)
	mon, err := scanMonster(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, checkin.ErrNoActiveMonster
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load active monster: %w", err)
	}
	return mon, nil
}

// PartyMonster returns a monster the party fought and when it was assigned.
func (t *Tx) PartyMonster(ctx context.Context, partyID, monsterID string) (*monster.Monster, time.Time, error) {
	var created string
	row := t.queryRow(ctx, `SELECT `+monsterColumns+`, pm.created_at
		FROM monsters m JOIN party_monsters pm ON pm.monster_id = m.id
		WHERE pm.party_id = ? AND pm.monster_id = ?`, partyID, monsterID)
	mon, err := scanMonster(row, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, time.Time{}, fmt.Errorf("monster %s for party %s: %w", monsterID, partyID, ErrNotFound)
	}
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("failed to load party monster: %w", err)
	}
	at, err := parseTime(created)
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("party monster created_at: %w", err)
	}
	return mon, at, nil
}

// DamageMonster lowers the monster's HP. The row is read under lock and
// written back only if its version is unchanged.
func (t *Tx) DamageMonster(ctx context.Context, monsterID string, amount int) (int, int, error) {
	var before, version, defeated int
	err := t.queryRow(ctx, `SELECT current_hp, version, is_defeated FROM monsters WHERE id = ?`+t.db.dialect.ForUpdate(),
		monsterID).Scan(&before, &version, &defeated)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, 0, fmt.Errorf("monster %s: %w", monsterID, ErrNotFound)
	}
	if err != nil {
		return 0, 0, fmt.Errorf("failed to load monster hp: %w", err)
	}
	if defeated != 0 || amount <= 0 {
		return before, before, nil
	}

	after := max(0, before-amount)
	res, err := t.exec(ctx, `UPDATE monsters SET current_hp = ?, is_defeated = ?, version = version + 1
		WHERE id = ? AND version = ?`, after, boolInt(after == 0), monsterID, version)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to damage monster: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, 0, fmt.Errorf("failed to damage monster: %w", err)
	}
	if n == 0 {
		return 0, 0, fmt.Errorf("monster %s: %w", monsterID, checkin.ErrConcurrentUpdate)
	}
	return before, after, nil
}

// DeactivateMonster retires the monster from the party's active slot.
func (t *Tx) DeactivateMonster(ctx context.Context, partyID, monsterID string) error {
	_, err := t.exec(ctx, `UPDATE party_monsters SET is_active = 0 WHERE party_id = ? AND monster_id = ?`,
		partyID, monsterID)
	if err != nil {
		return fmt.Errorf("failed to deactivate monster: %w", err)
	}
	_, err = t.exec(ctx, `UPDATE monsters SET is_defeated = 1 WHERE id = ? AND current_hp = 0`, monsterID)
	if err != nil {
		return fmt.Errorf("failed to mark monster defeated: %w", err)
	}
	return nil
}
