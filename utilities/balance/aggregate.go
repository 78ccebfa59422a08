package balance

import (
	"math"

	"github.com/fitnessquest/server/internal/combat"
)

// Spread summarizes one figure across runs.
type Spread struct {
	Mean   float64
	StdDev float64
	Min    float64
	Max    float64
}

func spreadOf(values []float64) Spread {
	if len(values) == 0 {
		return Spread{}
	}
	s := Spread{Min: values[0], Max: values[0]}
	sum := 0.0
	for _, v := range values {
		sum += v
		s.Min = math.Min(s.Min, v)
		s.Max = math.Max(s.Max, v)
	}
	s.Mean = sum / float64(len(values))
	variance := 0.0
	for _, v := range values {
		variance += (v - s.Mean) * (v - s.Mean)
	}
	s.StdDev = math.Sqrt(variance / float64(len(values)))
	return s
}

// Aggregate combines many runs of the same configuration.
type Aggregate struct {
	Runs int
	// DefeatRate is the fraction of runs that defeated at least one monster.
	DefeatRate        float64
	MonstersDefeated  Spread
	AvgDaysPerMonster Spread // only runs with a defeat
	AvgLevel          Spread
	AvgDeaths         Spread
	DamagePerCheckIn  Spread
	// Metrics are the mean per-run metrics, ready for AnalyzeMetrics.
	Metrics Metrics
}

// AggregateResults summarizes runs. It returns the zero Aggregate for none.
func AggregateResults(results []*Result) Aggregate {
	if len(results) == 0 {
		return Aggregate{}
	}

	var (
		defeated, days, level, deaths, dmg []float64
		encouragements, streak             float64
		withDefeat                         int
	)
	share := make(map[combat.Action]float64)
	for _, r := range results {
		m := MetricsOf(r)
		defeated = append(defeated, m.MonstersDefeated)
		if r.MonstersDefeated > 0 {
			withDefeat++
			days = append(days, m.AvgDaysPerMonster)
		}
		level = append(level, m.AvgLevel)
		deaths = append(deaths, m.AvgDeaths)
		dmg = append(dmg, m.DamagePerCheckIn)
		encouragements += m.AvgEncouragementsSent
		streak += m.AvgMaxStreak
		for a, s := range m.ActionShare {
			share[a] += s
		}
	}

	n := float64(len(results))
	agg := Aggregate{
		Runs:              len(results),
		DefeatRate:        float64(withDefeat) / n,
		MonstersDefeated:  spreadOf(defeated),
		AvgDaysPerMonster: spreadOf(days),
		AvgLevel:          spreadOf(level),
		AvgDeaths:         spreadOf(deaths),
		DamagePerCheckIn:  spreadOf(dmg),
	}
	for a := range share {
		share[a] /= n
	}
	first := results[0]
	agg.Metrics = Metrics{
		Party:                 first.Party,
		Players:               len(first.Players),
		Days:                  first.Days,
		MonstersDefeated:      agg.MonstersDefeated.Mean,
		AvgDaysPerMonster:     agg.AvgDaysPerMonster.Mean,
		AvgLevel:              agg.AvgLevel.Mean,
		AvgDeaths:             agg.AvgDeaths.Mean,
		AvgEncouragementsSent: encouragements / n,
		AvgMaxStreak:          streak / n,
		DamagePerCheckIn:      agg.DamagePerCheckIn.Mean,
		ActionShare:           share,
	}
	return agg
}
