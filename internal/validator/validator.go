package validator

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/kickoff-planner/kickoff/internal/availability"
	"github.com/kickoff-planner/kickoff/internal/config"
	"github.com/kickoff-planner/kickoff/internal/excel"
	"github.com/kickoff-planner/kickoff/internal/prayer"
)

const dateLayout = "2006-01-02"

// Violation represents a constraint violation found during validation.
type Violation struct {
	Row     int
	Type    string // "error" or "warning"
	Message string
}

// Validate reads a schedule Excel file and checks it against the config rules.
func Validate(cfg *config.Config, path string) ([]Violation, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("opening file: %w", err)
	}
	defer f.Close()

	rows, err := excel.ReadSchedule(f)
	if err != nil {
		return nil, fmt.Errorf("reading schedule: %w", err)
	}
	return check(cfg, rows), nil
}

func check(cfg *config.Config, rows []excel.Row) []Violation {
	oracle := availability.New(cfg)

	var violations []Violation

	// Hard constraints
	violations = append(violations, checkUnknownTeams(oracle, rows)...)
	violations = append(violations, checkDayQuota(cfg, rows)...)
	violations = append(violations, checkTeamPerDay(rows)...)
	violations = append(violations, checkBlackouts(oracle, rows)...)
	violations = append(violations, checkClosedStadiums(oracle, rows)...)

	// Soft constraints
	violations = append(violations, checkStadiumDoubleUse(rows)...)
	violations = append(violations, checkPrayerClashes(cfg, rows)...)

	sort.SliceStable(violations, func(i, j int) bool {
		if violations[i].Type != violations[j].Type {
			return violations[i].Type == "error"
		}
		return violations[i].Row < violations[j].Row
	})
	return violations
}

func checkUnknownTeams(oracle *availability.Oracle, rows []excel.Row) []Violation {
	var violations []Violation
	for _, r := range rows {
		for _, team := range []string{r.Home, r.Away} {
			if _, ok := oracle.Team(team); !ok {
				violations = append(violations, Violation{
					Row:     r.Line,
					Type:    "error",
					Message: fmt.Sprintf("unknown team %q", team),
				})
			}
		}
	}
	return violations
}

func checkDayQuota(cfg *config.Config, rows []excel.Row) []Violation {
	byDay := make(map[time.Time][]int)
	for _, r := range rows {
		byDay[r.Date] = append(byDay[r.Date], r.Line)
	}

	var violations []Violation
	for day, lines := range byDay {
		if len(lines) > cfg.Season.DayQuota {
			violations = append(violations, Violation{
				Row:     lines[cfg.Season.DayQuota],
				Type:    "error",
				Message: fmt.Sprintf("%d matches on %s (max %d)", len(lines), day.Format(dateLayout), cfg.Season.DayQuota),
			})
		}
	}
	return violations
}

func checkTeamPerDay(rows []excel.Row) []Violation {
	type teamDay struct {
		team string
		date time.Time
	}
	lines := make(map[teamDay][]int)
	for _, r := range rows {
		for _, team := range []string{r.Home, r.Away} {
			k := teamDay{strings.ToLower(team), r.Date}
			lines[k] = append(lines[k], r.Line)
		}
	}

	var violations []Violation
	for _, r := range rows {
		for _, team := range []string{r.Home, r.Away} {
			l := lines[teamDay{strings.ToLower(team), r.Date}]
			// Report once, on the second appearance.
			if len(l) > 1 && l[1] == r.Line {
				violations = append(violations, Violation{
					Row:     r.Line,
					Type:    "error",
					Message: fmt.Sprintf("%s plays %d matches on %s", team, len(l), r.Date.Format(dateLayout)),
				})
			}
		}
	}
	return violations
}

func checkBlackouts(oracle *availability.Oracle, rows []excel.Row) []Violation {
	var violations []Violation
	for _, r := range rows {
		if res := oracle.FixtureAvailable(r.Home, r.Away, r.Date); !res.Available {
			violations = append(violations, Violation{
				Row:     r.Line,
				Type:    "error",
				Message: fmt.Sprintf("%s vs %s: %s", r.Home, r.Away, res.Reason),
			})
		}
	}
	return violations
}

func checkClosedStadiums(oracle *availability.Oracle, rows []excel.Row) []Violation {
	var violations []Violation
	for _, r := range rows {
		c, closed := oracle.StadiumClosure(r.Stadium, r.Date)
		if !closed {
			continue
		}
		msg := fmt.Sprintf("%s is closed on %s", r.Stadium, r.Date.Format(dateLayout))
		if c.Reason != "" {
			msg += " (" + c.Reason + ")"
		}
		if c.Alternative != "" {
			msg += "; use " + c.Alternative
		}
		violations = append(violations, Violation{Row: r.Line, Type: "error", Message: msg})
	}
	return violations
}

func checkStadiumDoubleUse(rows []excel.Row) []Violation {
	var bookings []availability.Booking
	var violations []Violation
	for _, r := range rows {
		if r.Stadium == "" {
			continue
		}
		if b, booked := availability.StadiumBookedOnDate(bookings, r.Stadium, r.Date, r.Line); booked {
			violations = append(violations, Violation{
				Row:  r.Line,
				Type: "warning",
				Message: fmt.Sprintf("%s hosts %s vs %s and %s vs %s on %s",
					r.Stadium, b.Home, b.Away, r.Home, r.Away, r.Date.Format(dateLayout)),
			})
		}
		bookings = append(bookings, availability.Booking{
			MatchID: r.Line, Home: r.Home, Away: r.Away, Stadium: r.Stadium, Date: r.Date, Time: r.Time,
		})
	}
	return violations
}

// checkPrayerClashes uses the Maghrib and Isha columns written at export.
func checkPrayerClashes(cfg *config.Config, rows []excel.Row) []Violation {
	var violations []Violation
	for _, r := range rows {
		if r.Time == "" || (r.Maghrib == "" && r.Isha == "") {
			continue
		}
		clash, err := prayer.CheckKickoff(cfg.Prayer, r.Time, prayer.Times{Maghrib: r.Maghrib, Isha: r.Isha})
		if err != nil {
			violations = append(violations, Violation{Row: r.Line, Type: "warning", Message: fmt.Sprintf("%s vs %s: %v", r.Home, r.Away, err)})
			continue
		}
		if clash != "" {
			violations = append(violations, Violation{
				Row:     r.Line,
				Type:    "warning",
				Message: fmt.Sprintf("%s vs %s at %s: %s", r.Home, r.Away, r.Time, clash),
			})
		}
	}
	return violations
}
