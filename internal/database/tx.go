package database

import (
	"context"
	"database/sql"
	"time"

	"github.com/fitnessquest/server/internal/checkin"
	"github.com/fitnessquest/server/internal/victory"
)

// Tx is one SQL transaction. It implements checkin.Tx and victory.Tx.
type Tx struct {
	tx *sql.Tx
	db *Database
}

func (t *Tx) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return t.tx.ExecContext(ctx, t.db.qb.Build(query), args...)
}

func (t *Tx) query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return t.tx.QueryContext(ctx, t.db.qb.Build(query), args...)
}

func (t *Tx) queryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return t.tx.QueryRowContext(ctx, t.db.qb.Build(query), args...)
}

// CheckIns adapts the database to checkin.Store.
func (d *Database) CheckIns() checkin.Store { return checkInStore{d} }

// Victories adapts the database to victory.Store.
func (d *Database) Victories() victory.Store { return victoryStore{d} }

type checkInStore struct{ d *Database }

func (s checkInStore) InTx(ctx context.Context, fn func(checkin.Tx) error) error {
	return s.d.WithTx(ctx, func(tx *Tx) error { return fn(tx) })
}

func (s checkInStore) CheckIn(ctx context.Context, memberID string, date time.Time) (*checkin.Record, error) {
	var rec *checkin.Record
	err := s.d.WithTx(ctx, func(tx *Tx) error {
		var err error
		rec, err = tx.CheckIn(ctx, memberID, date)
		return err
	})
	return rec, err
}

type victoryStore struct{ d *Database }

func (s victoryStore) InTx(ctx context.Context, fn func(victory.Tx) error) error {
	return s.d.WithTx(ctx, func(tx *Tx) error { return fn(tx) })
}
