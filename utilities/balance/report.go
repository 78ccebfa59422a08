package balance

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/fitnessquest/server/internal/combat"
)

var (
	cPrimary = lipgloss.Color("63")
	cAccent  = lipgloss.Color("205")
	cGood    = lipgloss.Color("42")
	cWarn    = lipgloss.Color("214")
	cBad     = lipgloss.Color("196")
	cMuted   = lipgloss.Color("244")

	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(cAccent)
	h2Style    = lipgloss.NewStyle().Bold(true).Foreground(cPrimary)
	keyStyle   = lipgloss.NewStyle().Bold(true).Foreground(cPrimary)
	mutedStyle = lipgloss.NewStyle().Foreground(cMuted)
	goodStyle  = lipgloss.NewStyle().Bold(true).Foreground(cGood)
	warnStyle  = lipgloss.NewStyle().Bold(true).Foreground(cWarn)
	badStyle   = lipgloss.NewStyle().Bold(true).Foreground(cBad)
	panelStyle = lipgloss.NewStyle().BorderStyle(lipgloss.RoundedBorder()).BorderForeground(cMuted).Padding(0, 1)
)

func labelValue(label string, value any) string {
	return fmt.Sprintf("%s %v", keyStyle.Render(label+":"), value)
}

func severityText(s Severity) string {
	switch s {
	case SeverityHigh:
		return badStyle.Render(string(s))
	case SeverityMedium:
		return warnStyle.Render(string(s))
	}
	return mutedStyle.Render(string(s))
}

func tierText(t Tier) string {
	switch t {
	case TierCritical:
		return badStyle.Render(string(t))
	case TierModerate, TierMinor:
		return warnStyle.Render(string(t))
	}
	return goodStyle.Render(string(t))
}

// hpBar draws a fixed-width bar for hp out of maxHP.
func hpBar(hp, maxHP, width int) string {
	if maxHP <= 0 {
		return strings.Repeat(" ", width)
	}
	filled := hp * width / maxHP
	if hp > 0 && filled == 0 {
		filled = 1
	}
	bar := strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
	if hp*4 <= maxHP {
		return badStyle.Render(bar)
	}
	return goodStyle.Render(bar)
}

// RenderResult prints one run's headline numbers and per-player table.
// With snapshots set, it also prints the daily monster HP track.
func RenderResult(w io.Writer, r *Result, snapshots bool) {
	fmt.Fprintln(w, titleStyle.Render(fmt.Sprintf("Simulation: %s", r.Party)))
	fmt.Fprintln(w, labelValue("Days", r.Days))
	fmt.Fprintln(w, labelValue("Seed", r.Seed))
	fmt.Fprintln(w, labelValue("Monsters defeated", r.MonstersDefeated))
	if r.MonstersDefeated > 0 {
		fmt.Fprintln(w, labelValue("Avg days per monster", fmt.Sprintf("%.1f", r.AverageDaysPerMonster())))
		fmt.Fprintln(w, labelValue("Defeated on days", mutedStyle.Render(joinInts(r.DefeatDays))))
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, h2Style.Render("Players"))
	fmt.Fprintf(w, "%-22s %8s %6s %7s %6s %6s %6s %5s  %s\n",
		"Player", "CheckIns", "Level", "Damage", "Taken", "Deaths", "Streak", "Enc", "Actions A/D/S/H")
	for _, p := range r.Players {
		fmt.Fprintf(w, "%-22s %8d %6d %7d %6d %6d %6d %5d  %d/%d/%d/%d\n",
			truncate(p.Name, 22), p.CheckIns, p.FinalLevel, p.DamageDealt, p.DamageTaken,
			p.Deaths, p.MaxStreak, p.EncouragementsSent,
			p.Actions[combat.Attack], p.Actions[combat.Defend], p.Actions[combat.Support], p.Actions[combat.HeroicStrike])
	}
	fmt.Fprintln(w)

	if snapshots {
		fmt.Fprintln(w, h2Style.Render("Daily monster HP"))
		for _, s := range r.Snapshots {
			marker := ""
			if s.Defeated {
				marker = goodStyle.Render(" defeated")
			}
			fmt.Fprintf(w, "%4d %-14s %s %4d/%-4d %s%s\n",
				s.Day, truncate(s.Monster, 14), hpBar(s.MonsterHP, s.MonsterMaxHP, 20),
				s.MonsterHP, s.MonsterMaxHP, mutedStyle.Render(fmt.Sprintf("-%d", s.PartyDamage)), marker)
		}
		fmt.Fprintln(w)
	}
}

// RenderAnalysis prints the verdict, red flags and recommendations.
func RenderAnalysis(w io.Writer, a Analysis) {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s\n", tierText(a.Tier), a.Summary)
	if len(a.RedFlags) > 0 {
		b.WriteString("\n")
		for _, f := range a.RedFlags {
			fmt.Fprintf(&b, "%s %s\n  %s\n  %s\n", severityText(f.Severity), f.Issue,
				mutedStyle.Render(f.Metric), f.Recommendation)
		}
	}
	if len(a.Recommendations) > 0 {
		b.WriteString("\n" + h2Style.Render("Recommendations") + "\n")
		for _, r := range a.Recommendations {
			fmt.Fprintf(&b, "- %s\n", r)
		}
	}
	fmt.Fprintln(w, panelStyle.Render(strings.TrimRight(b.String(), "\n")))
}

// RenderAggregate prints the spread of figures across many runs.
func RenderAggregate(w io.Writer, agg Aggregate) {
	fmt.Fprintln(w, titleStyle.Render(fmt.Sprintf("%d runs: %s", agg.Runs, agg.Metrics.Party)))
	fmt.Fprintln(w, labelValue("Runs with a defeat", fmt.Sprintf("%.0f%%", agg.DefeatRate*100)))
	fmt.Fprintf(w, "%-22s %8s %8s %8s %8s\n", "", "mean", "stddev", "min", "max")
	rows := []struct {
		name string
		s    Spread
	}{
		{"Monsters defeated", agg.MonstersDefeated},
		{"Days per monster", agg.AvgDaysPerMonster},
		{"Average level", agg.AvgLevel},
		{"Deaths per player", agg.AvgDeaths},
		{"Damage per check-in", agg.DamagePerCheckIn},
	}
	for _, row := range rows {
		fmt.Fprintf(w, "%-22s %8.2f %8.2f %8.2f %8.2f\n", row.name, row.s.Mean, row.s.StdDev, row.s.Min, row.s.Max)
	}
	fmt.Fprintln(w)
}

// RenderComparison prints what improved and what regressed.
func RenderComparison(w io.Writer, c Comparison) {
	fmt.Fprintln(w, titleStyle.Render("Comparison"))
	fmt.Fprintf(w, "%-22s %10s %10s\n", "", "before", "after")
	fmt.Fprintf(w, "%-22s %10.1f %10.1f\n", "Monsters defeated", c.Before.MonstersDefeated, c.After.MonstersDefeated)
	fmt.Fprintf(w, "%-22s %10.1f %10.1f\n", "Days per monster", c.Before.AvgDaysPerMonster, c.After.AvgDaysPerMonster)
	fmt.Fprintf(w, "%-22s %10.1f %10.1f\n", "Average level", c.Before.AvgLevel, c.After.AvgLevel)
	fmt.Fprintf(w, "%-22s %10.2f %10.2f\n", "Deaths per player", c.Before.AvgDeaths, c.After.AvgDeaths)
	fmt.Fprintln(w)
	for _, s := range c.Improvements {
		fmt.Fprintln(w, goodStyle.Render("+ ")+s)
	}
	for _, s := range c.Regressions {
		fmt.Fprintln(w, badStyle.Render("- ")+s)
	}
	if len(c.Improvements) == 0 && len(c.Regressions) == 0 {
		fmt.Fprintln(w, mutedStyle.Render("no significant change"))
	}
}

// RenderLibrary lists archetypes and party presets.
func RenderLibrary(w io.Writer, lib *Library) {
	fmt.Fprintln(w, titleStyle.Render("Archetypes"))
	fmt.Fprintf(w, "%-12s %-20s %6s %6s %5s %6s  %-14s %s\n",
		"Key", "Name", "Rate", "Goals", "Avg", "Enc", "Policy", "Pattern")
	for _, key := range lib.ArchetypeKeys() {
		a := lib.Archetypes[key]
		fmt.Fprintf(w, "%-12s %-20s %6.2f %6.2f %5.1f %6.2f  %-14s %s\n",
			key, truncate(a.Name, 20), a.CheckInRate, a.GoalSuccessRate, a.AverageGoals,
			a.EncouragementRate, a.Policy, a.Pattern)
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, titleStyle.Render("Parties"))
	for _, name := range lib.PartyNames() {
		fmt.Fprintf(w, "%-14s %s\n", name, mutedStyle.Render(strings.Join(lib.Parties[name], ", ")))
	}
}

func truncate(s string, n int) string {
	if len([]rune(s)) <= n {
		return s
	}
	return string([]rune(s)[:n-1]) + "…"
}

func joinInts(v []int) string {
	parts := make([]string, len(v))
	for i, n := range v {
		parts[i] = fmt.Sprint(n)
	}
	return strings.Join(parts, ", ")
}
