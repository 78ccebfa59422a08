package database

import (
	"context"
	"time"

	"github.com/fitnessquest/server/internal/checkin"
	"github.com/fitnessquest/server/internal/monster"
)

// CreateMember inserts a party member in its own transaction.
func (d *Database) CreateMember(ctx context.Context, m *checkin.Member) error {
	return d.WithTx(ctx, func(tx *Tx) error { return tx.CreateMember(ctx, m) })
}

// CreateGoal inserts a goal in its own transaction.
func (d *Database) CreateGoal(ctx context.Context, g checkin.Goal) error {
	return d.WithTx(ctx, func(tx *Tx) error { return tx.CreateGoal(ctx, g) })
}

// SpawnMonster assigns a fresh monster to a party in its own transaction.
func (d *Database) SpawnMonster(ctx context.Context, partyID string, mon *monster.Monster, at time.Time) error {
	return d.WithTx(ctx, func(tx *Tx) error { return tx.SpawnMonster(ctx, partyID, mon, at) })
}

// Member loads a member outside any transaction.
func (d *Database) Member(ctx context.Context, id string) (*checkin.Member, error) {
	var m *checkin.Member
	err := d.WithTx(ctx, func(tx *Tx) error {
		var err error
		m, err = tx.Member(ctx, id)
		return err
	})
	return m, err
}

// ActiveMonster loads the party's current monster outside any transaction.
func (d *Database) ActiveMonster(ctx context.Context, partyID string) (*monster.Monster, error) {
	var mon *monster.Monster
	err := d.WithTx(ctx, func(tx *Tx) error {
		var err error
		mon, err = tx.ActiveMonster(ctx, partyID)
		return err
	})
	return mon, err
}
