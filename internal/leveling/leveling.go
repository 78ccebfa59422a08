// Package leveling holds the XP curve and reward amounts shared by live
// check-ins and the balance simulator.
package leveling

import (
	"math"

	"github.com/fitnessquest/server/internal/monster"
)

// Leveling constants
const (
	XPPerLevelUnit  = 100 // level = floor(sqrt(xp / XPPerLevelUnit)) + 1
	BaseCheckInXP   = 10
	XPPerGoalMet    = 2
	SkillPointsStep = 1 // skill points granted per level gained
)

// LevelFromXP returns the level for a total XP amount.
// Negative XP is treated as zero.
func LevelFromXP(xp int) int {
	if xp <= 0 {
		return 1
	}
	level := int(math.Floor(math.Sqrt(float64(xp)/XPPerLevelUnit))) + 1
	// Guard float rounding at exact boundaries (e.g. 400 -> sqrt(4) = 1.9999...).
	for XPForLevel(level+1) <= xp {
		level++
	}
	for level > 1 && XPForLevel(level) > xp {
		level--
	}
	return level
}

// XPForLevel returns the total XP required to reach a given level.
func XPForLevel(level int) int {
	if level <= 1 {
		return 0
	}
	return (level - 1) * (level - 1) * XPPerLevelUnit
}

// XPToNextLevel returns XP still needed from a total to the next level.
func XPToNextLevel(xp int) int {
	return XPForLevel(LevelFromXP(xp)+1) - max(0, xp)
}

// CheckInXP is the XP for one check-in.
func CheckInXP(goalsMet int) int {
	return BaseCheckInXP + XPPerGoalMet*max(0, goalsMet)
}

// MonsterDefeatXP is granted to every party member when a monster falls.
func MonsterDefeatXP(t monster.Type) int {
	switch t {
	case monster.Tank:
		return 100
	case monster.Balanced:
		return 75
	case monster.GlassCannon:
		return 50
	default:
		return 0
	}
}

// SkillPointsEarned returns points for moving from oldLevel to newLevel.
func SkillPointsEarned(oldLevel, newLevel int) int {
	return max(0, newLevel-oldLevel) * SkillPointsStep
}

// Progress describes how far a member is through their current level.
type Progress struct {
	Level          int
	CurrentLevelXP int // total XP at which Level started
	NextLevelXP    int // total XP at which Level+1 starts
	Percent        int // 0-100
}

// LevelProgress reports progress toward the next level.
func LevelProgress(xp int) Progress {
	xp = max(0, xp)
	level := LevelFromXP(xp)
	p := Progress{
		Level:          level,
		CurrentLevelXP: XPForLevel(level),
		NextLevelXP:    XPForLevel(level + 1),
	}
	span := p.NextLevelXP - p.CurrentLevelXP
	if span > 0 {
		p.Percent = (xp - p.CurrentLevelXP) * 100 / span
	}
	return p
}

// LevelUpInfo contains information about an XP grant.
type LevelUpInfo struct {
	XP          int
	OldLevel    int
	NewLevel    int
	SkillPoints int
}

// LeveledUp reports whether the grant crossed at least one level.
func (l LevelUpInfo) LeveledUp() bool {
	return l.NewLevel > l.OldLevel
}

// Apply adds gained XP to a total and reports the resulting level change.
func Apply(xp, gained int) LevelUpInfo {
	xp = max(0, xp)
	total := max(0, xp+gained)
	oldLevel := LevelFromXP(xp)
	newLevel := LevelFromXP(total)
	return LevelUpInfo{
		XP:          total,
		OldLevel:    oldLevel,
		NewLevel:    newLevel,
		SkillPoints: SkillPointsEarned(oldLevel, newLevel),
	}
}
