package schedule

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/kickoff-planner/kickoff/internal/availability"
	"github.com/kickoff-planner/kickoff/internal/config"
	"github.com/kickoff-planner/kickoff/internal/fixtures"
	"github.com/kickoff-planner/kickoff/internal/logging"
	"github.com/kickoff-planner/kickoff/internal/prayer"
)

// KickoffSource supplies kickoff candidates for a city and date.
type KickoffSource interface {
	KickoffCandidates(ctx context.Context, city string, date time.Time) (prayer.Candidates, error)
}

// GenerateReport summarizes a Generate run.
type GenerateReport struct {
	Weeks     int
	Matches   int
	Scenarios int
	Available int
	Warnings  []string
	Failures  []Failure
	Skipped   []int
}

// Generator expands fixtures into scenarios.
type Generator struct {
	cfg    *config.Config
	avail  *availability.Oracle
	calc   KickoffSource
	rng    *rand.Rand
	logger *zap.Logger
}

// NewGenerator creates a Generator. Attendance and profit placeholders are
// drawn from a source seeded with the season seed.
func NewGenerator(cfg *config.Config, avail *availability.Oracle, calc KickoffSource, logger *zap.Logger) *Generator {
	seed := cfg.Season.Seed
	if seed == 0 {
		seed = 42
	}
	return &Generator{
		cfg:    cfg,
		avail:  avail,
		calc:   calc,
		rng:    rand.New(rand.NewSource(seed)),
		logger: logging.OrNop(logger),
	}
}

// Generate registers every fixture of the configured week range on s and
// stores its scenarios. Configuration gaps become warnings; only context
// cancellation is an error.
func (g *Generator) Generate(ctx context.Context, s *Session, list fixtures.List) (GenerateReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	season := g.cfg.Season
	inRange := make(fixtures.List)
	for _, w := range list.Weeks() {
		if w >= season.FirstWeek && w <= season.LastWeek {
			inRange[w] = list[w]
		}
	}

	red := Redistribute(inRange, g.cfg.Anchors(), season.WindowDays, season.DayQuota)

	var report GenerateReport
	report.Failures = red.Failures
	report.Skipped = red.Skipped
	warned := make(map[string]bool)
	warn := func(format string, args ...any) {
		msg := fmt.Sprintf(format, args...)
		if warned[msg] {
			return
		}
		warned[msg] = true
		report.Warnings = append(report.Warnings, msg)
		g.logger.Warn("schedule.Generate warning", zap.String("detail", msg))
	}

	for _, w := range red.Skipped {
		warn("week %d has no anchor date; skipped", w)
	}
	for _, f := range red.Failures {
		warn("%s", f.String())
	}

	weeks := make([]int, 0, len(red.Weeks))
	for w := range red.Weeks {
		weeks = append(weeks, w)
	}
	sort.Ints(weeks)

	for _, week := range weeks {
		window := Window(g.cfg.Anchors()[week], season.WindowDays)
		s.windows[week] = window

		// Day availability is fixed at the start of the week.
		var open []time.Time
		for _, d := range window {
			if s.advisory[d] < s.quota && s.dayCounts[d] < s.quota {
				open = append(open, d)
			}
		}
		if len(open) == 0 {
			warn("week %d: every day from %s is at capacity; its fixtures have no scenarios", week, window[0].Format(dateLayout))
		}

		report.Weeks++
		for _, p := range red.Weeks[week] {
			if err := ctx.Err(); err != nil {
				return report, fmt.Errorf("generating week %d: %w", week, err)
			}

			m := s.registerMatchLocked(week, p.Fixture.Home, p.Fixture.Away, p.Day)
			report.Matches++
			if len(open) == 0 {
				continue
			}

			scenarios := g.expand(ctx, s, m, open, warn)
			sort.SliceStable(scenarios, func(i, j int) bool {
				if !scenarios[i].Date.Equal(scenarios[j].Date) {
					return scenarios[i].Date.Before(scenarios[j].Date)
				}
				return scenarios[i].Time < scenarios[j].Time
			})
			for _, sc := range scenarios {
				sc.ID = s.nextScenarioID
				s.nextScenarioID++
				if sc.Available {
					report.Available++
				}
			}
			s.scenarios[m.ID] = scenarios
			report.Scenarios += len(scenarios)
		}

		g.logger.Info("schedule.Generate week done",
			zap.String("session", s.id.String()),
			zap.Int("week", week),
			zap.Int("matches", len(red.Weeks[week])),
			zap.Int("open_days", len(open)),
		)
	}

	return report, nil
}

func (g *Generator) expand(ctx context.Context, s *Session, m *Match, open []time.Time, warn func(string, ...any)) []*Scenario {
	team, ok := g.avail.Team(m.Home)
	if !ok || team.City == "" || team.Stadium == "" {
		warn("week %d: home team %q has no known city or stadium; %s vs %s skipped", m.Week, m.Home, m.Home, m.Away)
		return nil
	}
	stadium := g.avail.ResolveStadium(team.Stadium, m.PreferredDay)

	var days, rest []time.Time
	for _, d := range open {
		if d.Equal(m.PreferredDay) {
			days = append(days, d)
		} else {
			rest = append(rest, d)
		}
	}
	days = append(days, rest...)

	limit := g.cfg.Season.ScenarioCap
	var out []*Scenario
	for _, d := range days {
		if len(out) >= limit {
			break
		}
		cands, err := g.calc.KickoffCandidates(ctx, team.City, d)
		if cands.Warning != "" {
			warn("%s", cands.Warning)
		}
		if err != nil {
			warn("no kickoff times for %s on %s: %v", team.City, d.Format(dateLayout), err)
			continue
		}

		used := make(map[string]bool)
		res := g.avail.FixtureAvailable(m.Home, m.Away, d)
		for _, k := range cands.Kickoffs {
			if len(out) >= limit {
				break
			}
			if used[k.Time] {
				continue
			}
			used[k.Time] = true

			sc := &Scenario{
				MatchID:   m.ID,
				Week:      m.Week,
				Home:      m.Home,
				Away:      m.Away,
				Date:      d,
				Time:      k.Time,
				City:      team.City,
				Stadium:   stadium,
				Available: res.Available,
				Reason:    res.Reason,
			}
			if res.Available {
				sc.SuitabilityScore = 100
				sc.AttendancePercent = g.between(g.cfg.Attendance)
				sc.Profit = g.between(g.cfg.Profit)
				s.advisory[d]++
			}
			out = append(out, sc)
		}
	}
	return out
}

func (g *Generator) between(r config.Range) int {
	return r.Min + g.rng.Intn(r.Max-r.Min+1)
}
