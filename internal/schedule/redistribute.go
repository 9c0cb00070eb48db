package schedule

import (
	"fmt"
	"sort"
	"time"

	"github.com/kickoff-planner/kickoff/internal/fixtures"
)

const dateLayout = "2006-01-02"

// Placement assigns a fixture its preferred day.
type Placement struct {
	Fixture fixtures.Fixture
	Day     time.Time
}

// Failure is a fixture that could not be placed in its week's window.
type Failure struct {
	Week    int
	Fixture fixtures.Fixture
	Reason  string
}

func (f Failure) String() string {
	return fmt.Sprintf("week %d: %s vs %s: %s", f.Week, f.Fixture.Home, f.Fixture.Away, f.Reason)
}

// Redistribution is the result of Redistribute.
type Redistribution struct {
	Weeks    map[int][]Placement
	Failures []Failure
	// Skipped lists weeks with fixtures but no anchor date.
	Skipped []int
}

// Window returns the days consecutive days starting at anchor.
func Window(anchor time.Time, days int) []time.Time {
	out := make([]time.Time, days)
	for i := range out {
		out[i] = anchor.AddDate(0, 0, i)
	}
	return out
}

// Redistribute gives every fixture a preferred day so that no day in a
// week's window holds more than quota fixtures. Fixtures are placed first-fit
// in input order; a fixture that finds every day full is reported as a
// Failure and left out.
func Redistribute(list fixtures.List, anchors map[int]time.Time, windowDays, quota int) Redistribution {
	out := Redistribution{Weeks: make(map[int][]Placement)}

	for _, week := range list.Weeks() {
		anchor, ok := anchors[week]
		if !ok {
			out.Skipped = append(out.Skipped, week)
			continue
		}

		days := Window(anchor, windowDays)
		counts := make([]int, len(days))
		for _, f := range list[week] {
			placed := false
			for i, d := range days {
				if counts[i] < quota {
					counts[i]++
					out.Weeks[week] = append(out.Weeks[week], Placement{Fixture: f, Day: d})
					placed = true
					break
				}
			}
			if !placed {
				out.Failures = append(out.Failures, Failure{
					Week:    week,
					Fixture: f,
					Reason: fmt.Sprintf("every day from %s to %s already has %d fixtures",
						days[0].Format(dateLayout), days[len(days)-1].Format(dateLayout), quota),
				})
			}
		}
	}

	sort.Ints(out.Skipped)
	return out
}
