package api

import (
	"time"

	"github.com/kickoff-planner/kickoff/internal/availability"
	"github.com/kickoff-planner/kickoff/internal/prayer"
	"github.com/kickoff-planner/kickoff/internal/schedule"
)

const dateLayout = "2006-01-02"

type scenarioView struct {
	ID                int    `json:"id"`
	MatchID           int    `json:"match_id"`
	Week              int    `json:"week"`
	Home              string `json:"home"`
	Away              string `json:"away"`
	Date              string `json:"date"`
	Day               string `json:"day"`
	Time              string `json:"time"`
	City              string `json:"city"`
	Stadium           string `json:"stadium"`
	SuitabilityScore  int    `json:"suitability_score"`
	AttendancePercent int    `json:"attendance_percent"`
	Profit            int    `json:"profit"`
	Available         bool   `json:"available"`
	Reason            string `json:"reason,omitempty"`
	Selected          bool   `json:"selected"`
}

func viewScenario(sc schedule.Scenario) scenarioView {
	return scenarioView{
		ID:                sc.ID,
		MatchID:           sc.MatchID,
		Week:              sc.Week,
		Home:              sc.Home,
		Away:              sc.Away,
		Date:              sc.Date.Format(dateLayout),
		Day:               sc.Date.Weekday().String(),
		Time:              sc.Time,
		City:              sc.City,
		Stadium:           sc.Stadium,
		SuitabilityScore:  sc.SuitabilityScore,
		AttendancePercent: sc.AttendancePercent,
		Profit:            sc.Profit,
		Available:         sc.Available,
		Reason:            sc.Reason,
		Selected:          sc.Selected,
	}
}

func viewScenarios(in []schedule.Scenario) []scenarioView {
	out := make([]scenarioView, len(in))
	for i, sc := range in {
		out[i] = viewScenario(sc)
	}
	return out
}

type matchView struct {
	ID           int            `json:"id"`
	Week         int            `json:"week"`
	Home         string         `json:"home"`
	Away         string         `json:"away"`
	PreferredDay string         `json:"preferred_day"`
	Committed    *scenarioView  `json:"committed,omitempty"`
	Scenarios    []scenarioView `json:"scenarios"`
}

func viewMatch(s *schedule.Session, m schedule.Match) matchView {
	v := matchView{
		ID:           m.ID,
		Week:         m.Week,
		Home:         m.Home,
		Away:         m.Away,
		PreferredDay: m.PreferredDay.Format(dateLayout),
		Scenarios:    viewScenarios(s.ScenariosFor(m.ID)),
	}
	if sc, ok := s.SelectedFor(m.ID); ok {
		sv := viewScenario(sc)
		v.Committed = &sv
	}
	return v
}

type dayView struct {
	Date      string `json:"date"`
	Committed int    `json:"committed"`
	Quota     int    `json:"quota"`
	Full      bool   `json:"full"`
}

type weekSummaryView struct {
	Week      int       `json:"week"`
	Matches   int       `json:"matches"`
	Committed int       `json:"committed"`
	Scenarios int       `json:"scenarios"`
	Available int       `json:"available"`
	Days      []dayView `json:"days"`
}

func viewWeekSummary(sum schedule.WeekSummary) weekSummaryView {
	v := weekSummaryView{
		Week:      sum.Week,
		Matches:   sum.Matches,
		Committed: sum.Committed,
		Scenarios: sum.Scenarios,
		Available: sum.Available,
		Days:      []dayView{},
	}
	for _, d := range sum.Days {
		v.Days = append(v.Days, dayView{
			Date:      d.Date.Format(dateLayout),
			Committed: d.Committed,
			Quota:     d.Quota,
			Full:      d.Committed >= d.Quota,
		})
	}
	return v
}

type sessionView struct {
	ID        string            `json:"id"`
	CreatedAt time.Time         `json:"created_at"`
	Quota     int               `json:"quota"`
	Weeks     []weekSummaryView `json:"weeks"`
}

func viewSession(s *schedule.Session) sessionView {
	v := sessionView{
		ID:        s.ID().String(),
		CreatedAt: s.CreatedAt(),
		Quota:     s.Quota(),
		Weeks:     []weekSummaryView{},
	}
	for _, w := range s.Weeks() {
		v.Weeks = append(v.Weeks, viewWeekSummary(s.WeekSummary(w)))
	}
	return v
}

type reportView struct {
	Weeks      int              `json:"weeks"`
	Matches    int              `json:"matches"`
	Scenarios  int              `json:"scenarios"`
	Available  int              `json:"available"`
	Warnings   []string         `json:"warnings"`
	Skipped    []int            `json:"skipped_weeks,omitempty"`
	AutoCommit []autoCommitView `json:"auto_commit,omitempty"`
}

func viewReport(r schedule.GenerateReport) reportView {
	v := reportView{
		Weeks:     r.Weeks,
		Matches:   r.Matches,
		Scenarios: r.Scenarios,
		Available: r.Available,
		Warnings:  r.Warnings,
		Skipped:   r.Skipped,
	}
	if v.Warnings == nil {
		v.Warnings = []string{}
	}
	return v
}

type autoCommitView struct {
	MatchID   int           `json:"match_id"`
	Home      string        `json:"home"`
	Away      string        `json:"away"`
	Committed bool          `json:"committed"`
	Scenario  *scenarioView `json:"scenario,omitempty"`
	Reason    string        `json:"reason,omitempty"`
	Warnings  []string      `json:"warnings,omitempty"`
}

func viewAutoCommit(outcomes []schedule.AutoCommitOutcome) []autoCommitView {
	out := make([]autoCommitView, 0, len(outcomes))
	for _, o := range outcomes {
		v := autoCommitView{
			MatchID:   o.MatchID,
			Home:      o.Home,
			Away:      o.Away,
			Committed: o.Committed,
			Reason:    o.Reason,
			Warnings:  o.Warnings,
		}
		if o.Committed {
			sv := viewScenario(o.Scenario)
			v.Scenario = &sv
		}
		out = append(out, v)
	}
	return out
}

type commitView struct {
	Scenario scenarioView `json:"scenario"`
	Pruned   int          `json:"pruned"`
	Warnings []string     `json:"warnings"`
	DayCount int          `json:"day_count"`
}

type stadiumOptionView struct {
	availability.StadiumOption
	BookedBy string `json:"booked_by,omitempty"`
}

type exportRowView struct {
	Week    int    `json:"week"`
	Home    string `json:"home"`
	Away    string `json:"away"`
	Date    string `json:"date"`
	Day     string `json:"day"`
	Time    string `json:"time"`
	Stadium string `json:"stadium"`
	City    string `json:"city"`
	Maghrib string `json:"maghrib,omitempty"`
	Isha    string `json:"isha,omitempty"`
}

func viewExport(rows []schedule.ExportRow) []exportRowView {
	out := make([]exportRowView, len(rows))
	for i, r := range rows {
		out[i] = exportRowView{
			Week:    r.Week,
			Home:    r.Home,
			Away:    r.Away,
			Date:    r.Date.Format(dateLayout),
			Day:     r.DayOfWeek,
			Time:    r.Time,
			Stadium: r.Stadium,
			City:    r.City,
			Maghrib: r.Maghrib,
			Isha:    r.Isha,
		}
	}
	return out
}

type candidatesView struct {
	City     string           `json:"city"`
	Date     string           `json:"date"`
	Source   string           `json:"source"`
	Times    prayer.Times     `json:"times"`
	Kickoffs []prayer.Kickoff `json:"kickoffs"`
	Warning  string           `json:"warning,omitempty"`
}
