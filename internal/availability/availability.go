// Package availability answers whether teams and stadiums can be used on a
// given date. All queries are read-only over configuration loaded once.
package availability

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/kickoff-planner/kickoff/internal/config"
)

const dateLayout = "2006-01-02"

// Result is the outcome of an availability check. Reason is empty when
// Available is true.
type Result struct {
	Available bool   `json:"available"`
	Reason    string `json:"reason,omitempty"`
}

// And combines two results; reasons are joined with "; ".
func (r Result) And(other Result) Result {
	out := Result{Available: r.Available && other.Available}
	var reasons []string
	for _, s := range []string{r.Reason, other.Reason} {
		if s != "" {
			reasons = append(reasons, s)
		}
	}
	out.Reason = strings.Join(reasons, "; ")
	return out
}

// Booking is a committed use of a stadium on a date.
type Booking struct {
	MatchID int       `json:"match_id"`
	Home    string    `json:"home"`
	Away    string    `json:"away"`
	Stadium string    `json:"stadium"`
	Date    time.Time `json:"date"`
	Time    string    `json:"time"`
}

// StadiumOption is one entry in the venue override list.
type StadiumOption struct {
	Stadium string `json:"stadium"`
	City    string `json:"city"`
	Kind    string `json:"kind"` // "primary", "alternate" or "same-city"
	Note    string `json:"note,omitempty"`
	Current bool   `json:"current"`
}

type blackoutHit struct {
	blackout time.Time
	reason   string
	distance int
}

// Oracle holds the team and stadium calendars.
type Oracle struct {
	teams     []config.Team
	byName    map[string]int
	effective map[string]map[time.Time]blackoutHit
	closures  map[string][]config.StadiumClosure
	stadiums  map[string]string
}

// New builds an Oracle and precomputes every team's effective unavailable
// dates: each blackout date plus its buffer.
func New(cfg *config.Config) *Oracle {
	o := &Oracle{
		teams:     cfg.Teams,
		byName:    make(map[string]int),
		effective: make(map[string]map[time.Time]blackoutHit),
		closures:  make(map[string][]config.StadiumClosure),
		stadiums:  make(map[string]string),
	}

	for i, t := range cfg.Teams {
		o.byName[strings.ToLower(t.Name)] = i
		for _, a := range t.Aliases {
			o.byName[strings.ToLower(a)] = i
		}
		if t.Stadium != "" {
			o.stadiums[t.Stadium] = t.City
		}
	}

	for _, tb := range cfg.TeamBlackouts {
		team, ok := o.Team(tb.Team)
		if !ok {
			continue
		}
		radius := cfg.BufferDays(tb)
		set := o.effective[team.Name]
		if set == nil {
			set = make(map[time.Time]blackoutHit)
			o.effective[team.Name] = set
		}
		for _, b := range tb.Dates {
			d := Day(b.Date.Time)
			add := func(day time.Time) {
				day = Day(day)
				dist := daysBetween(d, day)
				// The closest blackout explains the date.
				if prev, ok := set[day]; ok && prev.distance <= dist {
					return
				}
				set[day] = blackoutHit{blackout: d, reason: b.Reason, distance: dist}
			}
			add(d)
			if len(b.BufferDates) > 0 {
				for _, bd := range b.BufferDates {
					add(bd.Time)
				}
				continue
			}
			for i := 1; i <= radius; i++ {
				add(d.AddDate(0, 0, -i))
				add(d.AddDate(0, 0, i))
			}
		}
	}

	for _, c := range cfg.StadiumClosures {
		key := strings.ToLower(c.Stadium)
		o.closures[key] = append(o.closures[key], c)
		if c.Alternative != "" {
			if _, ok := o.stadiums[c.Alternative]; !ok {
				o.stadiums[c.Alternative] = o.cityOfStadium(c.Stadium)
			}
		}
	}

	return o
}

// Team looks up a team by name or alias, ignoring case.
func (o *Oracle) Team(name string) (config.Team, bool) {
	i, ok := o.byName[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return config.Team{}, false
	}
	return o.teams[i], true
}

// TeamAvailable reports whether team can play on date.
func (o *Oracle) TeamAvailable(team string, date time.Time) Result {
	name := team
	if t, ok := o.Team(team); ok {
		name = t.Name
	}
	hit, ok := o.effective[name][Day(date)]
	if !ok {
		return Result{Available: true}
	}
	if hit.distance == 0 {
		return Result{Reason: fmt.Sprintf("%s unavailable on %s: %s", name, hit.blackout.Format(dateLayout), reasonOr(hit.reason))}
	}
	return Result{Reason: fmt.Sprintf("%s blackout on %s (%s) is within %d day(s) of %s",
		name, hit.blackout.Format(dateLayout), reasonOr(hit.reason), hit.distance, date.Format(dateLayout))}
}

// FixtureAvailable reports whether both teams can play on date.
func (o *Oracle) FixtureAvailable(home, away string, date time.Time) Result {
	return o.TeamAvailable(home, date).And(o.TeamAvailable(away, date))
}

// StadiumClosure returns the closure covering stadium on date, if any.
func (o *Oracle) StadiumClosure(stadium string, date time.Time) (config.StadiumClosure, bool) {
	for _, c := range o.closures[strings.ToLower(stadium)] {
		if c.Covers(date) {
			return c, true
		}
	}
	return config.StadiumClosure{}, false
}

// StadiumAvailable reports whether stadium is open on date.
func (o *Oracle) StadiumAvailable(stadium string, date time.Time) bool {
	_, closed := o.StadiumClosure(stadium, date)
	return !closed
}

// ResolveStadium returns the configured alternative when stadium is closed
// on date, otherwise stadium itself.
func (o *Oracle) ResolveStadium(stadium string, date time.Time) string {
	if c, closed := o.StadiumClosure(stadium, date); closed && c.Alternative != "" {
		return c.Alternative
	}
	return stadium
}

// StadiumBookedOnDate scans bookings for another match using stadium on
// date. A stadium hosts at most one match per day.
func StadiumBookedOnDate(bookings []Booking, stadium string, date time.Time, excludingMatchID int) (Booking, bool) {
	for _, b := range bookings {
		if b.MatchID == excludingMatchID {
			continue
		}
		if strings.EqualFold(b.Stadium, stadium) && b.Date.Equal(date) {
			return b, true
		}
	}
	return Booking{}, false
}

// StadiumOptions lists venues for a home team on date: its primary stadium,
// then its declared alternates, then other stadiums in the same city.
// Closed stadiums are replaced by their alternative. The option matching
// current is flagged.
func (o *Oracle) StadiumOptions(team string, date time.Time, current string) []StadiumOption {
	t, ok := o.Team(team)
	if !ok {
		return nil
	}

	var opts []StadiumOption
	seen := make(map[string]bool)
	add := func(stadium, kind string) {
		if stadium == "" {
			return
		}
		resolved := o.ResolveStadium(stadium, date)
		if seen[strings.ToLower(resolved)] {
			return
		}
		seen[strings.ToLower(resolved)] = true
		opt := StadiumOption{
			Stadium: resolved,
			City:    o.cityOfStadium(resolved),
			Kind:    kind,
			Current: strings.EqualFold(resolved, current),
		}
		if resolved != stadium {
			if c, _ := o.StadiumClosure(stadium, date); c.Reason != "" {
				opt.Note = fmt.Sprintf("replaces %s (%s)", stadium, c.Reason)
			} else {
				opt.Note = fmt.Sprintf("replaces %s", stadium)
			}
		}
		if opt.City == "" {
			opt.City = t.City
		}
		opts = append(opts, opt)
	}

	add(t.Stadium, "primary")
	for _, alt := range t.AlternateStadiums {
		add(alt, "alternate")
	}

	var sameCity []string
	for stadium, city := range o.stadiums {
		if strings.EqualFold(city, t.City) {
			sameCity = append(sameCity, stadium)
		}
	}
	sort.Strings(sameCity)
	for _, s := range sameCity {
		add(s, "same-city")
	}
	return opts
}

func (o *Oracle) cityOfStadium(stadium string) string {
	for s, city := range o.stadiums {
		if strings.EqualFold(s, stadium) {
			return city
		}
	}
	return ""
}

// Day truncates t to midnight UTC on its calendar date.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func daysBetween(a, b time.Time) int {
	d := int(b.Sub(a).Hours() / 24)
	if d < 0 {
		d = -d
	}
	return d
}

func reasonOr(reason string) string {
	if reason == "" {
		return "blackout"
	}
	return reason
}
