// balance is a Monte Carlo simulator for tuning the check-in economy.
//
// Usage:
//
//	balance [command] [flags]
//
// Commands:
//
//	simulate    - Run one party preset or custom roster for N days
//	compare     - Run the same party under two rule configs
//	sweep       - Run every party preset and summarize
//	archetypes  - List player archetypes and party presets
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/fitnessquest/server/internal/config"
	"github.com/fitnessquest/server/internal/monster"
	"github.com/fitnessquest/server/internal/stats"
	"github.com/fitnessquest/server/utilities/balance"
)

var errStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("196"))

// globals shared by every subcommand
var (
	configPath     string
	archetypesPath string
	monstersPath   string
)

func main() {
	root := &cobra.Command{
		Use:           "balance",
		Short:         "Monte Carlo balance simulator for the check-in economy",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "data/game.yaml", "game config supplying rules and simulation defaults")
	root.PersistentFlags().StringVar(&archetypesPath, "archetypes", "", "archetypes YAML (defaults to the config's catalog entry)")
	root.PersistentFlags().StringVar(&monstersPath, "monsters", "", "monsters YAML (defaults to the config's catalog entry)")

	root.AddCommand(
		newSimulateCmd(),
		newCompareCmd(),
		newSweepCmd(),
		newArchetypesCmd(),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, errStyle.Render("error: "+err.Error()))
		stop()
		os.Exit(1)
	}
}

// env is everything loaded from disk before a run.
type env struct {
	cfg     *config.Config
	library *balance.Library
	catalog *monster.Catalog
}

func loadEnv(path string) (*env, error) {
	cfg, err := config.LoadConfig(path)
	if err != nil {
		return nil, err
	}

	e := &env{cfg: cfg, library: balance.DefaultLibrary(), catalog: monster.DefaultCatalog()}

	archetypes := firstNonEmpty(archetypesPath, cfg.Catalog.Archetypes)
	if archetypes != "" {
		if e.library, err = balance.LoadLibrary(archetypes); err != nil {
			return nil, err
		}
	}
	monsters := firstNonEmpty(monstersPath, cfg.Catalog.Monsters)
	if monsters != "" {
		if e.catalog, err = monster.LoadCatalog(monsters); err != nil {
			return nil, err
		}
	}
	return e, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// runFlags are the knobs shared by simulate, compare and sweep.
type runFlags struct {
	party      string
	roster     string
	days       int
	runs       int
	workers    int
	seed       int64
	randomSeed bool
	monsters   string
	scale      bool
}

func (f *runFlags) register(cmd *cobra.Command, withParty bool) {
	if withParty {
		cmd.Flags().StringVar(&f.party, "party", "STANDARD_4", "party preset name")
		cmd.Flags().StringVar(&f.roster, "roster", "", "comma-separated archetype keys, overrides --party")
	}
	cmd.Flags().IntVar(&f.days, "days", 0, "days to simulate (0 uses the config default)")
	cmd.Flags().IntVar(&f.runs, "runs", 0, "independent runs (0 uses the config default)")
	cmd.Flags().IntVar(&f.workers, "workers", 0, "concurrent runs (0 uses the config default)")
	cmd.Flags().Int64Var(&f.seed, "seed", 0, "base seed (0 uses the config default)")
	cmd.Flags().BoolVar(&f.randomSeed, "random-seed", false, "draw a fresh base seed")
	cmd.Flags().StringVar(&f.monsters, "monsters-seq", "", "comma-separated monster types fought in order")
	cmd.Flags().BoolVar(&f.scale, "scale", false, "scale monster HP to party size")
}

// simConfig builds the harness config for one party.
func (f *runFlags) simConfig(e *env, party string) (balance.Config, error) {
	sim := e.cfg.Simulation
	cfg := balance.Config{
		Party:         strings.ToUpper(party),
		Days:          pick(f.days, sim.Days),
		Seed:          pick(f.seed, sim.Seed),
		Rules:         e.cfg.Rules,
		Catalog:       e.catalog,
		ScaleMonsters: f.scale,
	}
	if f.randomSeed {
		cfg.Seed = stats.RandomSeed()
	}

	var err error
	if f.roster != "" {
		cfg.Party = "CUSTOM"
		for _, key := range strings.Split(f.roster, ",") {
			a, err := e.library.Archetype(key)
			if err != nil {
				return cfg, err
			}
			cfg.Roster = append(cfg.Roster, a)
		}
		if len(cfg.Roster) == 1 {
			cfg.Party = "SOLO_CUSTOM"
		}
	} else if cfg.Roster, err = e.library.Party(party); err != nil {
		return cfg, err
	}

	if f.monsters != "" {
		for _, s := range strings.Split(f.monsters, ",") {
			t, err := monster.ParseType(s)
			if err != nil {
				return cfg, err
			}
			cfg.MonsterSequence = append(cfg.MonsterSequence, t)
		}
	}
	return cfg, nil
}

func pick[T comparable](flag, fallback T) T {
	var zero T
	if flag == zero {
		return fallback
	}
	return flag
}

func (f *runFlags) runAll(ctx context.Context, e *env, cfg balance.Config) ([]*balance.Result, error) {
	runs := pick(f.runs, e.cfg.Simulation.Runs)
	workers := pick(f.workers, e.cfg.Simulation.Workers)
	return balance.RunMany(ctx, cfg, runs, workers)
}

func newSimulateCmd() *cobra.Command {
	var (
		f         runFlags
		snapshots bool
	)
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Simulate a party and analyze the economy",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := loadEnv(configPath)
			if err != nil {
				return err
			}
			cfg, err := f.simConfig(e, f.party)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			if pick(f.runs, e.cfg.Simulation.Runs) == 1 {
				res, err := balance.RunSimulation(cmd.Context(), cfg)
				if err != nil {
					return err
				}
				balance.RenderResult(out, res, snapshots)
				balance.RenderAnalysis(out, balance.Analyze(res))
				return nil
			}

			results, err := f.runAll(cmd.Context(), e, cfg)
			if err != nil {
				return err
			}
			agg := balance.AggregateResults(results)
			balance.RenderAggregate(out, agg)
			if snapshots {
				balance.RenderResult(out, results[0], true)
			}
			balance.RenderAnalysis(out, balance.AnalyzeMetrics(agg.Metrics))
			return nil
		},
	}
	f.register(cmd, true)
	cmd.Flags().BoolVar(&snapshots, "snapshots", false, "print the daily monster HP track")
	return cmd
}

func newCompareCmd() *cobra.Command {
	var (
		f             runFlags
		before, after string
	)
	cmd := &cobra.Command{
		Use:   "compare",
		Short: "Compare the same party under two rule configs",
		RunE: func(cmd *cobra.Command, args []string) error {
			var aggs [2]balance.Aggregate
			for i, path := range []string{before, after} {
				e, err := loadEnv(path)
				if err != nil {
					return fmt.Errorf("%s: %w", path, err)
				}
				cfg, err := f.simConfig(e, f.party)
				if err != nil {
					return err
				}
				results, err := f.runAll(cmd.Context(), e, cfg)
				if err != nil {
					return fmt.Errorf("%s: %w", path, err)
				}
				aggs[i] = balance.AggregateResults(results)
			}
			balance.RenderComparison(cmd.OutOrStdout(), balance.CompareMetrics(aggs[0].Metrics, aggs[1].Metrics))
			return nil
		},
	}
	f.register(cmd, true)
	cmd.Flags().StringVar(&before, "before", "", "config for the baseline rules")
	cmd.Flags().StringVar(&after, "after", "", "config for the candidate rules")
	_ = cmd.MarkFlagRequired("before")
	_ = cmd.MarkFlagRequired("after")
	return cmd
}

func newSweepCmd() *cobra.Command {
	var f runFlags
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Run every party preset and summarize",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := loadEnv(configPath)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%-16s %8s %10s %7s %7s  %s\n", "Party", "Defeats", "Days/mon", "Level", "Deaths", "Verdict")
			for _, party := range e.library.PartyNames() {
				cfg, err := f.simConfig(e, party)
				if err != nil {
					return err
				}
				results, err := f.runAll(cmd.Context(), e, cfg)
				if err != nil {
					return fmt.Errorf("party %s: %w", party, err)
				}
				agg := balance.AggregateResults(results)
				verdict := balance.AnalyzeMetrics(agg.Metrics)
				fmt.Fprintf(out, "%-16s %8.1f %10.1f %7.1f %7.2f  %s (%d flags)\n", party,
					agg.MonstersDefeated.Mean, agg.AvgDaysPerMonster.Mean, agg.AvgLevel.Mean, agg.AvgDeaths.Mean,
					verdict.Tier, len(verdict.RedFlags))
			}
			return nil
		},
	}
	f.register(cmd, false)
	return cmd
}

func newArchetypesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "archetypes",
		Short: "List player archetypes and party presets",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := loadEnv(configPath)
			if err != nil {
				return err
			}
			balance.RenderLibrary(cmd.OutOrStdout(), e.library)
			return nil
		},
	}
}
