package checkin

import (
	"context"
	"time"

	"github.com/fitnessquest/server/internal/monster"
)

// Store runs check-in work atomically against persistent state.
type Store interface {
	InTx(ctx context.Context, fn func(tx Tx) error) error
	// CheckIn reads a stored check-in outside any transaction, nil if absent.
	CheckIn(ctx context.Context, memberID string, date time.Time) (*Record, error)
}

// Tx is the set of reads and writes one check-in needs. Implementations must
// apply all of them or none.
type Tx interface {
	Member(ctx context.Context, memberID string) (*Member, error)
	PartyMembers(ctx context.Context, partyID string) ([]Member, error)
	UpdateMember(ctx context.Context, m *Member) error
	HealMember(ctx context.Context, memberID string, amount int) error
	AddPartyDefense(ctx context.Context, partyID, exceptMemberID string, amount, maxDefense int) error

	Goals(ctx context.Context, memberID string) ([]Goal, error)

	ActiveMonster(ctx context.Context, partyID string) (*monster.Monster, error)
	// DamageMonster removes up to amount HP and returns HP before and after.
	// Concurrent callers must never lose each other's damage.
	DamageMonster(ctx context.Context, monsterID string, amount int) (before, after int, err error)
	DeactivateMonster(ctx context.Context, partyID, monsterID string) error

	CheckIn(ctx context.Context, memberID string, date time.Time) (*Record, error)
	// InsertCheckIn stores the record and its goal outcomes. A second record
	// for the same member and date fails with ErrDuplicate.
	InsertCheckIn(ctx context.Context, rec *Record) error
	PartyCheckInCount(ctx context.Context, partyID string, date time.Time) (int, error)

	EncouragementsReceived(ctx context.Context, memberID string, from, to time.Time) (int, error)
	InsertEncouragement(ctx context.Context, e Encouragement) error
}

// Event is published after party state changes.
type Event struct {
	Kind      string `json:"kind"`
	PartyID   string `json:"party_id"`
	MemberID  string `json:"member_id,omitempty"`
	MonsterHP int    `json:"monster_hp,omitempty"`
	Milestone int    `json:"milestone,omitempty"`
	Defeated  bool   `json:"defeated,omitempty"`
}

// Event kinds
const (
	EventCheckIn       = "check_in"
	EventEncouragement = "encouragement"
	EventWelcomeBack   = "welcome_back"
	EventVictory       = "victory"
)

// Notifier receives party change events. Implementations must not block.
type Notifier interface {
	PartyChanged(ctx context.Context, ev Event)
}

// VictoryProcessor runs the post-defeat reward step.
type VictoryProcessor interface {
	Process(ctx context.Context, partyID, monsterID string) error
}

// BadgeAwarder evaluates badge eligibility for a user.
type BadgeAwarder interface {
	Evaluate(ctx context.Context, userID string) ([]string, error)
}
