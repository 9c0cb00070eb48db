package api

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kickoff-planner/kickoff/internal/api/respond"
	"github.com/kickoff-planner/kickoff/internal/availability"
	"github.com/kickoff-planner/kickoff/internal/config"
	"github.com/kickoff-planner/kickoff/internal/excel"
	"github.com/kickoff-planner/kickoff/internal/fixtures"
	"github.com/kickoff-planner/kickoff/internal/prayer"
	"github.com/kickoff-planner/kickoff/internal/schedule"
)

const maxBodyBytes = 1 << 20

// Handler serves the planning operations over HTTP.
type Handler struct {
	cfg      *config.Config
	avail    *availability.Oracle
	prayer   *prayer.Calculator
	fixtures *fixtures.Loader
	sessions *Registry
	validate *validator.Validate
	logger   *zap.Logger
}

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Health returns service status.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	respond.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"status":   "ok",
		"sessions": len(h.sessions.List()),
	})
}

type createSessionRequest struct {
	FirstWeek  int  `json:"first_week" validate:"omitempty,min=1"`
	LastWeek   int  `json:"last_week" validate:"omitempty,min=1,gtefield=FirstWeek"`
	AutoCommit bool `json:"auto_commit"`
}

type createSessionResponse struct {
	Session sessionView `json:"session"`
	Report  reportView  `json:"report"`
}

// CreateSession loads the fixture list, generates scenarios for the
// configured week range and registers a new session.
func (h *Handler) CreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if !h.decode(w, r, &req, true) {
		return
	}

	list, err := h.fixtures.Load(h.cfg.FixturesFile)
	if err != nil {
		h.logger.Error("api.CreateSession fixtures failed", zap.Error(err))
		respond.WriteErrorDetail(w, http.StatusInternalServerError, "FIXTURES_UNAVAILABLE", "Fixture list could not be loaded", err.Error())
		return
	}

	cfg := *h.cfg
	if req.FirstWeek > 0 {
		cfg.Season.FirstWeek = req.FirstWeek
	}
	if req.LastWeek > 0 {
		cfg.Season.LastWeek = req.LastWeek
	}
	if cfg.Season.LastWeek < cfg.Season.FirstWeek {
		respond.WriteError(w, http.StatusBadRequest, "INVALID_RANGE",
			fmt.Sprintf("last_week %d is before first_week %d", cfg.Season.LastWeek, cfg.Season.FirstWeek))
		return
	}

	s := schedule.NewSession(cfg.Season, h.logger)
	g := schedule.NewGenerator(&cfg, h.avail, h.prayer, h.logger)
	report, err := g.Generate(r.Context(), s, list)
	if err != nil {
		respond.WriteErrorDetail(w, http.StatusServiceUnavailable, "GENERATION_ABORTED", "Scenario generation did not finish", err.Error())
		return
	}

	resp := createSessionResponse{Report: viewReport(report)}
	if req.AutoCommit {
		for _, week := range s.Weeks() {
			resp.Report.AutoCommit = append(resp.Report.AutoCommit, viewAutoCommit(s.AutoCommit(week))...)
		}
	}
	h.sessions.Add(s)
	resp.Session = viewSession(s)

	h.logger.Info("api.CreateSession called",
		zap.String("session", s.ID().String()),
		zap.Int("matches", report.Matches),
		zap.Int("scenarios", report.Scenarios),
		zap.Int("warnings", len(report.Warnings)),
	)
	respond.WriteJSON(w, http.StatusCreated, resp)
}

// ListSessions returns a summary of every live session.
func (h *Handler) ListSessions(w http.ResponseWriter, r *http.Request) {
	out := []sessionView{}
	for _, s := range h.sessions.List() {
		out = append(out, viewSession(s))
	}
	respond.WriteJSON(w, http.StatusOK, out)
}

func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	respond.WriteJSON(w, http.StatusOK, viewSession(s))
}

func (h *Handler) DeleteSession(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "sessionID"))
	if err != nil {
		respond.WriteError(w, http.StatusBadRequest, "INVALID_ID", "Session ID must be a UUID")
		return
	}
	if !h.sessions.Delete(id) {
		respond.WriteError(w, http.StatusNotFound, "NOT_FOUND", "Session not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type weekResponse struct {
	Summary weekSummaryView `json:"summary"`
	Matches []matchView     `json:"matches"`
}

// GetWeek returns the week's fixtures with their scenarios and commitments.
func (h *Handler) GetWeek(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	week, ok := intParam(w, r, "week")
	if !ok {
		return
	}
	matches := s.MatchesForWeek(week)
	if len(matches) == 0 {
		respond.WriteError(w, http.StatusNotFound, "NOT_FOUND", fmt.Sprintf("Week %d has no fixtures in this session", week))
		return
	}
	resp := weekResponse{Summary: viewWeekSummary(s.WeekSummary(week)), Matches: []matchView{}}
	for _, m := range matches {
		resp.Matches = append(resp.Matches, viewMatch(s, m))
	}
	respond.WriteJSON(w, http.StatusOK, resp)
}

// AutoCommitWeek commits the earliest acceptable scenario of every open
// fixture in the week.
func (h *Handler) AutoCommitWeek(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	week, ok := intParam(w, r, "week")
	if !ok {
		return
	}
	respond.WriteJSON(w, http.StatusOK, viewAutoCommit(s.AutoCommit(week)))
}

func (h *Handler) GetMatch(w http.ResponseWriter, r *http.Request) {
	s, m, ok := h.match(w, r)
	if !ok {
		return
	}
	respond.WriteJSON(w, http.StatusOK, viewMatch(s, m))
}

// GetScenarios lists the surviving scenarios of a match in id order.
func (h *Handler) GetScenarios(w http.ResponseWriter, r *http.Request) {
	s, m, ok := h.match(w, r)
	if !ok {
		return
	}
	respond.WriteJSON(w, http.StatusOK, viewScenarios(s.ScenariosFor(m.ID)))
}

type commitRequest struct {
	ScenarioID int `json:"scenario_id" validate:"required,min=1"`
}

// Commit selects a scenario for the match.
func (h *Handler) Commit(w http.ResponseWriter, r *http.Request) {
	s, m, ok := h.match(w, r)
	if !ok {
		return
	}
	var req commitRequest
	if !h.decode(w, r, &req, false) {
		return
	}
	res, err := s.Commit(m.ID, req.ScenarioID)
	if err != nil {
		writeSessionError(w, err)
		return
	}
	warnings := res.Warnings
	if warnings == nil {
		warnings = []string{}
	}
	respond.WriteJSON(w, http.StatusOK, commitView{
		Scenario: viewScenario(res.Scenario),
		Pruned:   res.Pruned,
		Warnings: warnings,
		DayCount: res.DayCount,
	})
}

// Decommit clears the match's commitment.
func (h *Handler) Decommit(w http.ResponseWriter, r *http.Request) {
	s, m, ok := h.match(w, r)
	if !ok {
		return
	}
	sc, err := s.Decommit(m.ID)
	if err != nil {
		writeSessionError(w, err)
		return
	}
	respond.WriteJSON(w, http.StatusOK, viewScenario(sc))
}

// StadiumOptions lists venues for a scenario of the match, flagging those
// already booked by a committed match that day.
func (h *Handler) StadiumOptions(w http.ResponseWriter, r *http.Request) {
	s, m, ok := h.match(w, r)
	if !ok {
		return
	}
	raw := r.URL.Query().Get("scenario_id")
	if raw == "" {
		respond.WriteError(w, http.StatusBadRequest, "MISSING_SCENARIO", "scenario_id query parameter is required")
		return
	}
	sid, err := strconv.Atoi(raw)
	if err != nil {
		respond.WriteError(w, http.StatusBadRequest, "INVALID_ID", "scenario_id must be an integer")
		return
	}
	sc, ok := findScenario(s, m.ID, sid)
	if !ok {
		respond.WriteError(w, http.StatusNotFound, "NOT_FOUND", fmt.Sprintf("Scenario %d not found for match %d", sid, m.ID))
		return
	}
	respond.WriteJSON(w, http.StatusOK, h.stadiumOptions(s, m, sc))
}

func (h *Handler) stadiumOptions(s *schedule.Session, m schedule.Match, sc schedule.Scenario) []stadiumOptionView {
	out := []stadiumOptionView{}
	for _, opt := range h.avail.StadiumOptions(m.Home, sc.Date, sc.Stadium) {
		v := stadiumOptionView{StadiumOption: opt}
		if b, booked := s.StadiumBookedOnDate(opt.Stadium, sc.Date, m.ID); booked {
			v.BookedBy = fmt.Sprintf("%s vs %s at %s", b.Home, b.Away, b.Time)
		}
		out = append(out, v)
	}
	return out
}

type updateStadiumRequest struct {
	Stadium string `json:"stadium" validate:"required"`
	City    string `json:"city"`
}

// UpdateStadium moves an uncommitted scenario to one of its stadium options.
func (h *Handler) UpdateStadium(w http.ResponseWriter, r *http.Request) {
	s, m, ok := h.match(w, r)
	if !ok {
		return
	}
	sid, ok := intParam(w, r, "scenarioID")
	if !ok {
		return
	}
	var req updateStadiumRequest
	if !h.decode(w, r, &req, false) {
		return
	}

	sc, found := findScenario(s, m.ID, sid)
	if !found {
		writeSessionError(w, fmt.Errorf("scenario %d: %w", sid, schedule.ErrStaleScenario))
		return
	}
	var chosen *availability.StadiumOption
	for _, opt := range h.avail.StadiumOptions(m.Home, sc.Date, sc.Stadium) {
		if strings.EqualFold(opt.Stadium, req.Stadium) {
			o := opt
			chosen = &o
			break
		}
	}
	if chosen == nil {
		respond.WriteError(w, http.StatusBadRequest, "INVALID_STADIUM",
			fmt.Sprintf("%s is not a stadium option for %s on %s", req.Stadium, m.Home, sc.Date.Format(dateLayout)))
		return
	}
	city := req.City
	if city == "" {
		city = chosen.City
	}

	updated, err := s.UpdateStadium(m.ID, sid, chosen.Stadium, city)
	if err != nil {
		writeSessionError(w, err)
		return
	}
	respond.WriteJSON(w, http.StatusOK, viewScenario(updated))
}

type dayResponse struct {
	dayView
	Scenarios []scenarioView `json:"open_scenarios"`
}

// GetDay reports the committed load of a date and the open scenarios on it.
func (h *Handler) GetDay(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	d, err := time.Parse(dateLayout, chi.URLParam(r, "date"))
	if err != nil {
		respond.WriteError(w, http.StatusBadRequest, "INVALID_DATE", "Date must be YYYY-MM-DD")
		return
	}
	count := s.DayCount(d)
	respond.WriteJSON(w, http.StatusOK, dayResponse{
		dayView: dayView{
			Date:      d.Format(dateLayout),
			Committed: count,
			Quota:     s.Quota(),
			Full:      count >= s.Quota(),
		},
		Scenarios: viewScenarios(s.ScenariosOnDay(d)),
	})
}

// Export returns the committed schedule as JSON, or as a workbook with
// ?format=xlsx.
func (h *Handler) Export(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	rows := s.Export(r.Context(), h.prayer)

	switch r.URL.Query().Get("format") {
	case "", "json":
		respond.WriteJSON(w, http.StatusOK, viewExport(rows))
	case "xlsx":
		f, err := excel.Generate(h.cfg.AllTeams(), rows, s.Open())
		if err != nil {
			h.logger.Error("api.Export workbook failed", zap.Error(err))
			respond.WriteError(w, http.StatusInternalServerError, "EXPORT_FAILED", "Workbook could not be generated")
			return
		}
		defer f.Close()
		w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="schedule-%s.xlsx"`, s.ID()))
		w.WriteHeader(http.StatusOK)
		if err := f.Write(w); err != nil {
			h.logger.Warn("api.Export write failed", zap.Error(err))
		}
	default:
		respond.WriteError(w, http.StatusBadRequest, "INVALID_FORMAT", "format must be json or xlsx")
	}
}

// Kickoffs returns the prayer times and kickoff candidates for a city and
// date.
func (h *Handler) Kickoffs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	city := q.Get("city")
	if city == "" {
		city = h.cfg.Prayer.DefaultCity
	}
	d, err := time.Parse(dateLayout, q.Get("date"))
	if err != nil {
		respond.WriteError(w, http.StatusBadRequest, "INVALID_DATE", "date query parameter must be YYYY-MM-DD")
		return
	}

	c, err := h.prayer.KickoffCandidates(r.Context(), city, d)
	if err != nil {
		if errors.Is(err, prayer.ErrNoPrayerData) {
			respond.WriteErrorDetail(w, http.StatusNotFound, "NO_PRAYER_DATA", "No prayer times available", err.Error())
			return
		}
		respond.WriteErrorDetail(w, http.StatusBadGateway, "PRAYER_LOOKUP_FAILED", "Prayer time lookup failed", err.Error())
		return
	}
	respond.WriteJSON(w, http.StatusOK, candidatesView{
		City:     c.City,
		Date:     c.Date.Format(dateLayout),
		Source:   c.Source,
		Times:    c.Times,
		Kickoffs: c.Kickoffs,
		Warning:  c.Warning,
	})
}

func (h *Handler) session(w http.ResponseWriter, r *http.Request) (*schedule.Session, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "sessionID"))
	if err != nil {
		respond.WriteError(w, http.StatusBadRequest, "INVALID_ID", "Session ID must be a UUID")
		return nil, false
	}
	s, ok := h.sessions.Get(id)
	if !ok {
		respond.WriteError(w, http.StatusNotFound, "NOT_FOUND", "Session not found")
		return nil, false
	}
	return s, true
}

func (h *Handler) match(w http.ResponseWriter, r *http.Request) (*schedule.Session, schedule.Match, bool) {
	s, ok := h.session(w, r)
	if !ok {
		return nil, schedule.Match{}, false
	}
	id, ok := intParam(w, r, "matchID")
	if !ok {
		return nil, schedule.Match{}, false
	}
	m, ok := s.Match(id)
	if !ok {
		respond.WriteError(w, http.StatusNotFound, "NOT_FOUND", fmt.Sprintf("Match %d not found", id))
		return nil, schedule.Match{}, false
	}
	return s, m, true
}

// decode reads a JSON body into v and validates it. An empty body is
// accepted when optional is set.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v interface{}, optional bool) bool {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		respond.WriteError(w, http.StatusBadRequest, "INVALID_BODY", "Request body could not be read")
		return false
	}
	if len(bytes.TrimSpace(body)) > 0 {
		dec := json.NewDecoder(bytes.NewReader(body))
		dec.DisallowUnknownFields()
		if err := dec.Decode(v); err != nil {
			respond.WriteErrorDetail(w, http.StatusBadRequest, "INVALID_BODY", "Request body is not valid JSON", err.Error())
			return false
		}
	} else if !optional {
		respond.WriteError(w, http.StatusBadRequest, "INVALID_BODY", "Request body is required")
		return false
	}

	if err := h.validate.Struct(v); err != nil {
		respond.WriteErrorDetail(w, http.StatusBadRequest, "VALIDATION_FAILED", "Request body failed validation", validationMessage(err))
		return false
	}
	return true
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		if fe.Param() != "" {
			msgs = append(msgs, fmt.Sprintf("%s must satisfy %s=%s", fe.Field(), fe.Tag(), fe.Param()))
		} else {
			msgs = append(msgs, fmt.Sprintf("%s is %s", fe.Field(), fe.Tag()))
		}
	}
	return strings.Join(msgs, "; ")
}

var rejectionStatus = map[error]struct {
	status int
	code   string
}{
	schedule.ErrUnknownMatch:        {http.StatusNotFound, "NOT_FOUND"},
	schedule.ErrStaleScenario:       {http.StatusConflict, "STALE_SCENARIO"},
	schedule.ErrScenarioUnavailable: {http.StatusConflict, "SCENARIO_UNAVAILABLE"},
	schedule.ErrDayFull:             {http.StatusConflict, "DAY_FULL"},
	schedule.ErrTeamConflict:        {http.StatusConflict, "TEAM_CONFLICT"},
	schedule.ErrNotCommitted:        {http.StatusConflict, "NOT_COMMITTED"},
	schedule.ErrScenarioCommitted:   {http.StatusConflict, "SCENARIO_COMMITTED"},
}

func writeSessionError(w http.ResponseWriter, err error) {
	for kind, m := range rejectionStatus {
		if errors.Is(err, kind) {
			respond.WriteError(w, m.status, m.code, err.Error())
			return
		}
	}
	respond.WriteError(w, http.StatusInternalServerError, "INTERNAL", err.Error())
}

func intParam(w http.ResponseWriter, r *http.Request, name string) (int, bool) {
	v, err := strconv.Atoi(chi.URLParam(r, name))
	if err != nil {
		respond.WriteError(w, http.StatusBadRequest, "INVALID_ID", fmt.Sprintf("%s must be an integer", name))
		return 0, false
	}
	return v, true
}

func findScenario(s *schedule.Session, matchID, scenarioID int) (schedule.Scenario, bool) {
	for _, sc := range s.ScenariosFor(matchID) {
		if sc.ID == scenarioID {
			return sc, true
		}
	}
	return schedule.Scenario{}, false
}
