package schedule

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kickoff-planner/kickoff/internal/availability"
	"github.com/kickoff-planner/kickoff/internal/config"
	"github.com/kickoff-planner/kickoff/internal/logging"
)

// Commit rejections. Errors returned by Session wrap one of these in a
// *RejectionError carrying the operator-facing reason.
var (
	ErrUnknownMatch        = errors.New("unknown match")
	ErrStaleScenario       = errors.New("scenario no longer exists")
	ErrScenarioUnavailable = errors.New("scenario unavailable")
	ErrDayFull             = errors.New("day is full")
	ErrTeamConflict        = errors.New("team already plays that day")
	ErrNotCommitted        = errors.New("match not committed")
	ErrScenarioCommitted   = errors.New("scenario is committed")
)

// RejectionError is a refused session operation. Error returns the reason.
type RejectionError struct {
	Kind   error
	Reason string
}

func (e *RejectionError) Error() string { return e.Reason }

func (e *RejectionError) Unwrap() error { return e.Kind }

func reject(kind error, format string, args ...any) error {
	return &RejectionError{Kind: kind, Reason: fmt.Sprintf(format, args...)}
}

// Match is a fixture registered in a session.
type Match struct {
	ID           int
	Week         int
	Home         string
	Away         string
	PreferredDay time.Time
}

// Scenario is one dated, timed and venued candidate for a match.
type Scenario struct {
	ID                int
	MatchID           int
	Week              int
	Home              string
	Away              string
	Date              time.Time
	Time              string
	City              string
	Stadium           string
	SuitabilityScore  int
	AttendancePercent int
	Profit            int
	Available         bool
	Reason            string
	Selected          bool
}

func (sc *Scenario) sharesTeam(other *Scenario) bool {
	return sc.Home == other.Home || sc.Home == other.Away || sc.Away == other.Home || sc.Away == other.Away
}

// CommitResult describes the effect of a successful commit.
type CommitResult struct {
	Scenario Scenario
	Pruned   int
	Warnings []string
	DayCount int
}

// Session holds one season's scenarios and commitments. All methods are
// safe for concurrent use; mutations are serialized.
type Session struct {
	mu sync.Mutex

	id            uuid.UUID
	createdAt     time.Time
	quota         int
	pruneFullDays bool

	matches   map[int]*Match
	scenarios map[int][]*Scenario
	selected  map[int]int
	dayCounts map[time.Time]int
	advisory  map[time.Time]int
	windows   map[int][]time.Time

	nextMatchID    int
	nextScenarioID int

	logger *zap.Logger
}

// NewSession creates an empty session using the season's quota rules.
func NewSession(season config.Season, logger *zap.Logger) *Session {
	s := &Session{
		id:            uuid.New(),
		createdAt:     time.Now(),
		quota:         season.DayQuota,
		pruneFullDays: season.PruneFullDays,
		logger:        logging.OrNop(logger),
	}
	s.resetLocked()
	return s
}

func (s *Session) resetLocked() {
	s.matches = make(map[int]*Match)
	s.scenarios = make(map[int][]*Scenario)
	s.selected = make(map[int]int)
	s.dayCounts = make(map[time.Time]int)
	s.advisory = make(map[time.Time]int)
	s.windows = make(map[int][]time.Time)
	s.nextMatchID = 1
	s.nextScenarioID = 1
}

// ID returns the session's unique id.
func (s *Session) ID() uuid.UUID { return s.id }

// CreatedAt returns when the session was created.
func (s *Session) CreatedAt() time.Time { return s.createdAt }

// Quota returns the maximum committed matches per day.
func (s *Session) Quota() int { return s.quota }

// Reset discards every match, scenario and commitment.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resetLocked()
	s.logger.Info("session.Reset called", zap.String("session", s.id.String()))
}

// Commit selects scenarioID as matchID's schedule. Other matches lose their
// scenarios on the same date that share a team. On rejection the session is
// unchanged.
func (s *Session) Commit(matchID, scenarioID int) (CommitResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.commitLocked(matchID, scenarioID)
}

func (s *Session) commitLocked(matchID, scenarioID int) (CommitResult, error) {
	m, ok := s.matches[matchID]
	if !ok {
		return CommitResult{}, reject(ErrUnknownMatch, "match %d does not exist", matchID)
	}
	target := s.findLocked(matchID, scenarioID)
	if target == nil {
		return CommitResult{}, reject(ErrStaleScenario, "scenario %d is no longer available for %s vs %s", scenarioID, m.Home, m.Away)
	}
	if !target.Available {
		return CommitResult{}, reject(ErrScenarioUnavailable, "scenario %d for %s vs %s is unavailable: %s", scenarioID, m.Home, m.Away, target.Reason)
	}

	var prev *Scenario
	if prevID, ok := s.selected[matchID]; ok {
		prev = s.findLocked(matchID, prevID)
	}
	if prev == target {
		return CommitResult{Scenario: *target, DayCount: s.dayCounts[target.Date]}, nil
	}

	count := s.dayCounts[target.Date]
	if prev != nil && prev.Date.Equal(target.Date) {
		count--
	}
	if count >= s.quota {
		return CommitResult{}, reject(ErrDayFull, "%s is full (%d/%d matches)", target.Date.Format(dateLayout), s.dayCounts[target.Date], s.quota)
	}

	for otherID, sid := range s.selected {
		if otherID == matchID {
			continue
		}
		other := s.findLocked(otherID, sid)
		if other != nil && other.Date.Equal(target.Date) && other.sharesTeam(target) {
			return CommitResult{}, reject(ErrTeamConflict, "%s vs %s is already committed on %s",
				other.Home, other.Away, target.Date.Format(dateLayout))
		}
	}

	if prev != nil {
		s.decrementLocked(prev.Date)
	}
	s.dayCounts[target.Date]++
	for _, sc := range s.scenarios[matchID] {
		sc.Selected = sc.ID == scenarioID
	}
	s.selected[matchID] = scenarioID

	pruned := s.pruneLocked(matchID, func(sc *Scenario) bool {
		return sc.Date.Equal(target.Date) && sc.sharesTeam(target)
	})
	if s.pruneFullDays && s.dayCounts[target.Date] >= s.quota {
		pruned += s.pruneLocked(matchID, func(sc *Scenario) bool {
			return sc.Date.Equal(target.Date)
		})
	}

	var warnings []string
	if b, booked := availability.StadiumBookedOnDate(s.bookingsLocked(), target.Stadium, target.Date, matchID); booked {
		warnings = append(warnings, fmt.Sprintf("%s is already booked on %s for %s vs %s at %s",
			target.Stadium, target.Date.Format(dateLayout), b.Home, b.Away, b.Time))
	}

	s.logger.Info("session.Commit called",
		zap.String("session", s.id.String()),
		zap.Int("match_id", matchID),
		zap.Int("scenario_id", scenarioID),
		zap.String("date", target.Date.Format(dateLayout)),
		zap.Int("pruned", pruned),
	)
	return CommitResult{
		Scenario: *target,
		Pruned:   pruned,
		Warnings: warnings,
		DayCount: s.dayCounts[target.Date],
	}, nil
}

// pruneLocked removes scenarios of uncommitted matches other than except
// that satisfy drop.
func (s *Session) pruneLocked(except int, drop func(*Scenario) bool) int {
	pruned := 0
	for mid, list := range s.scenarios {
		if mid == except {
			continue
		}
		if _, committed := s.selected[mid]; committed {
			// Keep the committed scenario; its team conflicts were rejected.
			kept := list[:0]
			for _, sc := range list {
				if sc.Selected || !drop(sc) {
					kept = append(kept, sc)
				} else {
					pruned++
				}
			}
			s.scenarios[mid] = kept
			continue
		}
		kept := list[:0]
		for _, sc := range list {
			if drop(sc) {
				pruned++
				continue
			}
			kept = append(kept, sc)
		}
		s.scenarios[mid] = kept
	}
	return pruned
}

// Decommit clears matchID's commitment. Scenarios pruned by the commit are
// not restored.
func (s *Session) Decommit(matchID int) (Scenario, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.matches[matchID]
	if !ok {
		return Scenario{}, reject(ErrUnknownMatch, "match %d does not exist", matchID)
	}
	sid, ok := s.selected[matchID]
	if !ok {
		return Scenario{}, reject(ErrNotCommitted, "%s vs %s has no committed scenario", m.Home, m.Away)
	}
	sc := s.findLocked(matchID, sid)
	delete(s.selected, matchID)
	if sc == nil {
		return Scenario{}, nil
	}
	sc.Selected = false
	s.decrementLocked(sc.Date)

	s.logger.Info("session.Decommit called",
		zap.String("session", s.id.String()),
		zap.Int("match_id", matchID),
		zap.Int("scenario_id", sid),
	)
	return *sc, nil
}

// UpdateStadium moves an uncommitted scenario to another venue. Score,
// attendance and profit are left as generated.
func (s *Session) UpdateStadium(matchID, scenarioID int, stadium, city string) (Scenario, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.matches[matchID]
	if !ok {
		return Scenario{}, reject(ErrUnknownMatch, "match %d does not exist", matchID)
	}
	sc := s.findLocked(matchID, scenarioID)
	if sc == nil {
		return Scenario{}, reject(ErrStaleScenario, "scenario %d is no longer available for %s vs %s", scenarioID, m.Home, m.Away)
	}
	if sc.Selected {
		return Scenario{}, reject(ErrScenarioCommitted, "scenario %d is committed; decommit it before changing the stadium", scenarioID)
	}
	sc.Stadium = stadium
	if city != "" {
		sc.City = city
	}
	return *sc, nil
}

// AutoCommitOutcome reports what AutoCommit did for one match.
type AutoCommitOutcome struct {
	MatchID   int
	Home      string
	Away      string
	Committed bool
	Scenario  Scenario
	Reason    string
	Warnings  []string
}

// AutoCommit greedily commits, for every uncommitted match of week in id
// order, the earliest scenario the session accepts.
func (s *Session) AutoCommit(week int) []AutoCommitOutcome {
	s.mu.Lock()
	defer s.mu.Unlock()

	var outcomes []AutoCommitOutcome
	for _, m := range s.matchesLocked(week) {
		out := AutoCommitOutcome{MatchID: m.ID, Home: m.Home, Away: m.Away}
		if sid, ok := s.selected[m.ID]; ok {
			out.Committed = true
			out.Scenario = *s.findLocked(m.ID, sid)
			outcomes = append(outcomes, out)
			continue
		}

		candidates := append([]*Scenario(nil), s.scenarios[m.ID]...)
		if len(candidates) == 0 {
			out.Reason = "no scenarios"
		}
		for _, sc := range candidates {
			res, err := s.commitLocked(m.ID, sc.ID)
			if err == nil {
				out.Committed = true
				out.Scenario = res.Scenario
				out.Warnings = res.Warnings
				out.Reason = ""
				break
			}
			out.Reason = err.Error()
		}
		outcomes = append(outcomes, out)
	}
	return outcomes
}

// ScenariosFor returns the match's current scenarios sorted by date and time.
func (s *Session) ScenariosFor(matchID int) []Scenario {
	s.mu.Lock()
	defer s.mu.Unlock()
	return copyScenarios(s.scenarios[matchID])
}

// SelectedFor returns the match's committed scenario.
func (s *Session) SelectedFor(matchID int) (Scenario, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sid, ok := s.selected[matchID]
	if !ok {
		return Scenario{}, false
	}
	sc := s.findLocked(matchID, sid)
	if sc == nil {
		return Scenario{}, false
	}
	return *sc, true
}

// DayCount returns the number of committed matches on date.
func (s *Session) DayCount(date time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dayCounts[availability.Day(date)]
}

// Matches returns every registered match in id order.
func (s *Session) Matches() []Match {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.matchesLocked(0)
}

// MatchesForWeek returns the week's matches in id order.
func (s *Session) MatchesForWeek(week int) []Match {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.matchesLocked(week)
}

// Match returns a registered match.
func (s *Session) Match(matchID int) (Match, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.matches[matchID]
	if !ok {
		return Match{}, false
	}
	return *m, true
}

// CommittedBookings returns a stadium booking for every committed match.
func (s *Session) CommittedBookings() []availability.Booking {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bookingsLocked()
}

// StadiumBookedOnDate reports another committed match using stadium on date.
func (s *Session) StadiumBookedOnDate(stadium string, date time.Time, excludingMatchID int) (availability.Booking, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return availability.StadiumBookedOnDate(s.bookingsLocked(), stadium, availability.Day(date), excludingMatchID)
}

// ScenariosOnDay returns the scenarios of uncommitted matches on date.
func (s *Session) ScenariosOnDay(date time.Time) []Scenario {
	s.mu.Lock()
	defer s.mu.Unlock()
	date = availability.Day(date)
	var out []Scenario
	for _, m := range s.matchesLocked(0) {
		if _, committed := s.selected[m.ID]; committed {
			continue
		}
		for _, sc := range s.scenarios[m.ID] {
			if sc.Date.Equal(date) {
				out = append(out, *sc)
			}
		}
	}
	return out
}

// DaySummary is the committed load of one window day.
type DaySummary struct {
	Date      time.Time
	Committed int
	Quota     int
}

// WeekSummary describes a week's progress.
type WeekSummary struct {
	Week      int
	Matches   int
	Committed int
	Scenarios int
	Available int
	Days      []DaySummary
}

// WeekSummary reports the state of week.
func (s *Session) WeekSummary(week int) WeekSummary {
	s.mu.Lock()
	defer s.mu.Unlock()

	sum := WeekSummary{Week: week}
	for _, m := range s.matchesLocked(week) {
		sum.Matches++
		if _, ok := s.selected[m.ID]; ok {
			sum.Committed++
		}
		for _, sc := range s.scenarios[m.ID] {
			sum.Scenarios++
			if sc.Available {
				sum.Available++
			}
		}
	}
	for _, d := range s.windows[week] {
		sum.Days = append(sum.Days, DaySummary{Date: d, Committed: s.dayCounts[d], Quota: s.quota})
	}
	return sum
}

// Weeks returns the weeks with registered matches in ascending order.
func (s *Session) Weeks() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	seen := make(map[int]bool)
	var weeks []int
	for _, m := range s.matches {
		if !seen[m.Week] {
			seen[m.Week] = true
			weeks = append(weeks, m.Week)
		}
	}
	sort.Ints(weeks)
	return weeks
}

// Committed returns every committed scenario.
func (s *Session) Committed() []Scenario {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Scenario
	for _, m := range s.matchesLocked(0) {
		if sid, ok := s.selected[m.ID]; ok {
			if sc := s.findLocked(m.ID, sid); sc != nil {
				out = append(out, *sc)
			}
		}
	}
	return out
}

// Open returns every scenario of every uncommitted match.
func (s *Session) Open() []Scenario {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Scenario
	for _, m := range s.matchesLocked(0) {
		if _, ok := s.selected[m.ID]; ok {
			continue
		}
		out = append(out, copyScenarios(s.scenarios[m.ID])...)
	}
	return out
}

func (s *Session) registerMatchLocked(week int, home, away string, preferred time.Time) *Match {
	m := &Match{ID: s.nextMatchID, Week: week, Home: home, Away: away, PreferredDay: preferred}
	s.nextMatchID++
	s.matches[m.ID] = m
	return m
}

func (s *Session) findLocked(matchID, scenarioID int) *Scenario {
	for _, sc := range s.scenarios[matchID] {
		if sc.ID == scenarioID {
			return sc
		}
	}
	return nil
}

func (s *Session) decrementLocked(d time.Time) {
	s.dayCounts[d]--
	if s.dayCounts[d] <= 0 {
		delete(s.dayCounts, d)
	}
}

// matchesLocked returns matches of week in id order; week 0 means all.
func (s *Session) matchesLocked(week int) []Match {
	var out []Match
	for _, m := range s.matches {
		if week == 0 || m.Week == week {
			out = append(out, *m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *Session) bookingsLocked() []availability.Booking {
	var out []availability.Booking
	for mid, sid := range s.selected {
		sc := s.findLocked(mid, sid)
		if sc == nil {
			continue
		}
		out = append(out, availability.Booking{
			MatchID: mid,
			Home:    sc.Home,
			Away:    sc.Away,
			Stadium: sc.Stadium,
			Date:    sc.Date,
			Time:    sc.Time,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].MatchID < out[j].MatchID })
	return out
}

func copyScenarios(in []*Scenario) []Scenario {
	out := make([]Scenario, len(in))
	for i, sc := range in {
		out[i] = *sc
	}
	return out
}
