package balance

import (
	"fmt"
	"math"
	"strings"

	"github.com/fitnessquest/server/internal/combat"
)

// Severity ranks a red flag.
type Severity string

const (
	SeverityLow    Severity = "LOW"
	SeverityMedium Severity = "MEDIUM"
	SeverityHigh   Severity = "HIGH"
)

// Tier is the overall verdict of an analysis.
type Tier string

const (
	TierCritical Tier = "CRITICAL"
	TierModerate Tier = "MODERATE"
	TierMinor    Tier = "MINOR"
	TierHealthy  Tier = "HEALTHY"
)

// Target bands for a healthy economy.
const (
	minDaysPerMonster     = 7
	softMaxDaysPerMonster = 15
	maxDaysPerMonster     = 20
	maxAvgLevel           = 12
	softMinAvgLevel       = 6
	minAvgLevel           = 4
	softMaxDeaths         = 1
	maxDeaths             = 3
	maxActionSharePct     = 90
	minEncouragements     = 10
	minMaxStreak          = 7
	minDamagePerCheckIn   = 8
	maxDamagePerCheckIn   = 20
)

// RedFlag is one quantified balance problem.
type RedFlag struct {
	Severity       Severity
	Issue          string
	Metric         string
	Recommendation string
}

// Analysis is the verdict on a run.
type Analysis struct {
	Tier            Tier
	Summary         string
	RedFlags        []RedFlag
	Recommendations []string
}

// Metrics are the per-party figures the analyzer judges. Averages are
// per player unless noted.
type Metrics struct {
	Party                 string
	Players               int
	Days                  int
	MonstersDefeated      float64
	AvgDaysPerMonster     float64 // over runs that defeated something
	AvgLevel              float64
	AvgDeaths             float64
	AvgEncouragementsSent float64
	AvgMaxStreak          float64
	DamagePerCheckIn      float64
	ActionShare           map[combat.Action]float64 // percent of all actions
}

// Solo reports whether the party is a single player.
func (m Metrics) Solo() bool {
	return m.Players == 1 || strings.Contains(strings.ToUpper(m.Party), "SOLO")
}

// MetricsOf extracts analyzer metrics from one run.
func MetricsOf(r *Result) Metrics {
	m := Metrics{
		Party:             r.Party,
		Players:           len(r.Players),
		Days:              r.Days,
		MonstersDefeated:  float64(r.MonstersDefeated),
		AvgDaysPerMonster: r.AverageDaysPerMonster(),
		ActionShare:       make(map[combat.Action]float64),
	}
	if len(r.Players) == 0 {
		return m
	}

	var level, deaths, sent, streak, damage, checkIns, actions int
	counts := make(map[combat.Action]int)
	for _, p := range r.Players {
		level += p.FinalLevel
		deaths += p.Deaths
		sent += p.EncouragementsSent
		streak += p.MaxStreak
		damage += p.DamageDealt
		checkIns += p.CheckIns
		for a, n := range p.Actions {
			counts[a] += n
			actions += n
		}
	}
	n := float64(len(r.Players))
	m.AvgLevel = float64(level) / n
	m.AvgDeaths = float64(deaths) / n
	m.AvgEncouragementsSent = float64(sent) / n
	m.AvgMaxStreak = float64(streak) / n
	if checkIns > 0 {
		m.DamagePerCheckIn = float64(damage) / float64(checkIns)
	}
	if actions > 0 {
		for a, c := range counts {
			m.ActionShare[a] = float64(c) * 100 / float64(actions)
		}
	}
	return m
}

// Analyze judges a single run.
func Analyze(r *Result) Analysis {
	return AnalyzeMetrics(MetricsOf(r))
}

// AnalyzeMetrics applies the balance thresholds.
func AnalyzeMetrics(m Metrics) Analysis {
	var a Analysis
	flag := func(sev Severity, issue, metric, rec string) {
		a.RedFlags = append(a.RedFlags, RedFlag{Severity: sev, Issue: issue, Metric: metric, Recommendation: rec})
	}

	days := m.AvgDaysPerMonster
	daysMetric := fmt.Sprintf("average %.1f days per monster (target: 8-15)", days)
	switch {
	case m.MonstersDefeated == 0:
		flag(SeverityHigh, "No monsters defeated",
			fmt.Sprintf("0 monsters in %d days", m.Days),
			"Reduce monster HP by 30-40% or increase player damage significantly")
	case days < minDaysPerMonster:
		flag(SeverityMedium, "Monsters too easy", daysMetric, "Increase monster HP by 20-30%")
	case days > maxDaysPerMonster:
		flag(SeverityHigh, "Monsters too difficult", daysMetric, "Decrease monster HP by 20-30% or increase base damage")
	case days > softMaxDaysPerMonster:
		flag(SeverityLow, "Monsters slightly too difficult", daysMetric, "Consider decreasing monster HP by 10-15%")
	}

	levelMetric := fmt.Sprintf("average level %.1f after %d days (target: 6-9)", m.AvgLevel, m.Days)
	switch {
	case m.AvgLevel > maxAvgLevel:
		flag(SeverityMedium, "Leveling too fast", levelMetric, "Reduce XP per check-in or steepen the level curve")
	case m.AvgLevel < minAvgLevel:
		flag(SeverityHigh, "Leveling too slow", levelMetric, "Increase XP per check-in or per goal")
	case m.AvgLevel < softMinAvgLevel:
		flag(SeverityLow, "Leveling slightly slow", levelMetric, "Consider increasing XP per check-in by 1-2 points")
	}

	deathMetric := fmt.Sprintf("average %.1f deaths per player", m.AvgDeaths)
	switch {
	case m.AvgDeaths > maxDeaths:
		flag(SeverityHigh, "Too many player deaths", deathMetric, "Reduce counterattack chance or damage by 20-30%")
	case m.AvgDeaths > softMaxDeaths:
		flag(SeverityLow, "Occasional deaths occurring", deathMetric, "Monitor closely, deaths should be rare with consistent play")
	}

	if m.Solo() && m.MonstersDefeated == 0 {
		flag(SeverityHigh, "Solo play impossible",
			fmt.Sprintf("no monsters defeated in %d days solo", m.Days),
			"Reduce monster HP or add a solo damage bonus")
	}

	for _, act := range combat.Actions {
		if share := m.ActionShare[act]; share > maxActionSharePct {
			flag(SeverityMedium, "No strategic diversity",
				fmt.Sprintf("%.0f%% of actions are %s", share, act),
				"Make the other actions more valuable or cheaper in focus")
		}
	}

	if m.Players > 1 && m.AvgEncouragementsSent < minEncouragements {
		a.Recommendations = append(a.Recommendations,
			"Low encouragement usage: consider adding incentives or making encouragements more visible")
	}
	if m.AvgMaxStreak < minMaxStreak {
		a.Recommendations = append(a.Recommendations,
			fmt.Sprintf("Low average max streak (%.1f days): consider streak maintenance rewards", m.AvgMaxStreak))
	}
	switch {
	case m.DamagePerCheckIn < minDamagePerCheckIn:
		a.Recommendations = append(a.Recommendations,
			fmt.Sprintf("Low damage per check-in (%.1f): raise the attack bonus adjustment or base damage", m.DamagePerCheckIn))
	case m.DamagePerCheckIn > maxDamagePerCheckIn:
		a.Recommendations = append(a.Recommendations,
			fmt.Sprintf("High damage per check-in (%.1f): players may be too powerful", m.DamagePerCheckIn))
	}

	a.Tier, a.Summary = summarize(a.RedFlags)
	return a
}

func summarize(flags []RedFlag) (Tier, string) {
	var high, medium, low int
	for _, f := range flags {
		switch f.Severity {
		case SeverityHigh:
			high++
		case SeverityMedium:
			medium++
		case SeverityLow:
			low++
		}
	}
	switch {
	case high > 0:
		return TierCritical, fmt.Sprintf("%d high-severity issues detected; the economy needs significant tuning", high)
	case medium > 2:
		return TierModerate, fmt.Sprintf("%d medium-severity issues detected; the economy needs rebalancing", medium)
	case medium > 0 || low > 0:
		return TierMinor, fmt.Sprintf("%d medium and %d low-severity issues detected; playable but could use tuning", medium, low)
	}
	return TierHealthy, "No issues detected"
}

// Comparison lists how a rules change moved the metrics.
type Comparison struct {
	Before, After Metrics
	Improvements  []string
	Regressions   []string
}

// Compare judges the move from one run to another.
func Compare(before, after *Result) Comparison {
	return CompareMetrics(MetricsOf(before), MetricsOf(after))
}

// CompareMetrics classifies metric changes against the analyzer's bands.
func CompareMetrics(before, after Metrics) Comparison {
	c := Comparison{Before: before, After: after}

	// A zero average means nothing was defeated, not an instant kill.
	b, a := before.AvgDaysPerMonster, after.AvgDaysPerMonster
	switch {
	case before.MonstersDefeated == 0 && after.MonstersDefeated > 0:
		c.Improvements = append(c.Improvements, fmt.Sprintf("Monsters now defeated (%.1f days each)", a))
	case before.MonstersDefeated > 0 && after.MonstersDefeated == 0:
		c.Regressions = append(c.Regressions, fmt.Sprintf("No monsters defeated anymore (was %.1f days each)", b))
	case a < b && a < minDaysPerMonster:
		c.Regressions = append(c.Regressions, fmt.Sprintf("Monsters now too easy (%.1f -> %.1f days)", b, a))
	case a < b:
		c.Improvements = append(c.Improvements, fmt.Sprintf("Monsters fall faster (%.1f -> %.1f days)", b, a))
	case a > b && a > maxDaysPerMonster:
		c.Regressions = append(c.Regressions, fmt.Sprintf("Monsters now too difficult (%.1f -> %.1f days)", b, a))
	case a > b:
		c.Improvements = append(c.Improvements, fmt.Sprintf("Monsters more challenging (%.1f -> %.1f days)", b, a))
	}

	switch {
	case after.AvgDeaths < before.AvgDeaths:
		c.Improvements = append(c.Improvements, fmt.Sprintf("Fewer deaths (%.1f -> %.1f)", before.AvgDeaths, after.AvgDeaths))
	case after.AvgDeaths > before.AvgDeaths:
		c.Regressions = append(c.Regressions, fmt.Sprintf("More deaths (%.1f -> %.1f)", before.AvgDeaths, after.AvgDeaths))
	}

	bl, al := before.AvgLevel, after.AvgLevel
	if math.Abs(al-bl) > 1 {
		switch {
		case al > bl && al > maxAvgLevel:
			c.Regressions = append(c.Regressions, fmt.Sprintf("Leveling too fast now (avg level %.1f)", al))
		case al > bl:
			c.Improvements = append(c.Improvements, fmt.Sprintf("Faster progression (level %.1f -> %.1f)", bl, al))
		case al < minAvgLevel:
			c.Regressions = append(c.Regressions, fmt.Sprintf("Leveling too slow now (avg level %.1f)", al))
		default:
			c.Improvements = append(c.Improvements, fmt.Sprintf("Slower progression (level %.1f -> %.1f)", bl, al))
		}
	}
	return c
}
