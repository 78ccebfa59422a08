package checkin

import (
	"time"

	"github.com/fitnessquest/server/internal/combat"
	"github.com/fitnessquest/server/internal/leveling"
)

// DateLayout is the calendar-day format used for check-in dates.
const DateLayout = "2006-01-02"

// Day truncates t to its calendar day in UTC.
func Day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DaysBetween returns whole calendar days from a to b.
func DaysBetween(a, b time.Time) int {
	return int(Day(b).Sub(Day(a)).Hours() / 24)
}

// WelcomeBack is the buff granted to members returning after an absence.
type WelcomeBack struct {
	Active    bool
	Remaining int
}

// Member is one user's combat state within a party.
type Member struct {
	ID          string
	PartyID     string
	UserID      string
	DisplayName string
	CurrentHP   int
	MaxHP       int
	Defense     int // defense used on the last check-in
	DefenseBuff int // shield from teammates' DEFEND, spent on the next check-in
	Streak      int
	Focus       int
	XP          int
	Level       int
	SkillPoints int
	LastCheckIn time.Time // zero when the member never checked in
	WelcomeBack WelcomeBack
	Version     int
}

// NewMember returns a member at full health with starting focus.
func NewMember(rules combat.Rules, id, partyID, userID, name string) Member {
	m := Member{ID: id, UserID: userID, DisplayName: name}
	m.Reset(rules, partyID)
	return m
}

// Reset puts the member back to party-join defaults under a new party.
func (m *Member) Reset(rules combat.Rules, partyID string) {
	m.PartyID = partyID
	m.CurrentHP = rules.MaxHP
	m.MaxHP = rules.MaxHP
	m.Defense = 0
	m.DefenseBuff = 0
	m.Streak = 0
	m.Focus = rules.StartingFocus
	m.XP = 0
	m.Level = 1
	m.SkillPoints = 0
	m.LastCheckIn = time.Time{}
	m.WelcomeBack = WelcomeBack{}
}

// Progress returns the member's progress through their current level.
func (m Member) Progress() leveling.Progress {
	return leveling.LevelProgress(m.XP)
}

// Goal is a member's daily target.
type Goal struct {
	ID             string
	MemberID       string
	Name           string
	Target         float64
	FlexPercentage float64
}

// GoalInput is what a caller reports for one goal.
type GoalInput struct {
	GoalID    string
	Actual    float64
	IsRestDay bool
}

// GoalOutcome is the evaluated result of one goal within a check-in.
type GoalOutcome struct {
	GoalID         string
	Target         float64
	Actual         float64
	FlexPercentage float64
	IsRestDay      bool
	Met            bool
}

// AttackRoll is one of the rolls a check-in makes.
type AttackRoll struct {
	Roll       int
	BaseDamage int
	Hit        bool
	Damage     int
}

// Record is the immutable stored form of one check-in.
type Record struct {
	ID          string
	MemberID    string
	PartyID     string
	Date        time.Time
	GoalsMet    int
	Action      combat.Action
	AttackRoll  int
	TotalBonus  int
	Hit         bool
	DamageDealt int
	Countered   bool
	DamageTaken int
	FocusDelta  int
	HealTarget  string
	HealAmount  int
	XPGained    int
	CreatedAt   time.Time
	Goals       []GoalOutcome
	Rolls       []AttackRoll // not persisted
}

// Encouragement is one teammate cheering another on a given day.
type Encouragement struct {
	FromMemberID string
	ToMemberID   string
	Date         time.Time
}
