package api

import (
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"go.uber.org/zap/zaptest"

	"github.com/kickoff-planner/kickoff/internal/availability"
	"github.com/kickoff-planner/kickoff/internal/config"
	"github.com/kickoff-planner/kickoff/internal/fixtures"
	"github.com/kickoff-planner/kickoff/internal/prayer"
)

const testConfigYAML = `
season:
  first_week: 7
  last_week: 7
  week_anchors:
    7: "2025-10-30"
  seed: 7

teams:
  - name: Al-Hilal
    city: Riyadh
    stadium: Kingdom Arena
  - name: Al-Nassr
    city: Riyadh
    stadium: Al-Awwal Park
  - name: Al-Ittihad
    city: Jeddah
    stadium: King Abdullah Sports City Stadium (The Jewel)
  - name: Al-Ahli
    city: Jeddah
    stadium: Prince Abdullah Al-Faisal Stadium

team_blackouts:
  - team: Al-Hilal
    dates:
      - date: "2025-10-28"
        reason: "AFC Champions League"

prayer:
  fallback:
    Riyadh:
      fajr: "04:40"
      dhuhr: "11:40"
      asr: "15:00"
      maghrib: "17:30"
      isha: "19:00"
    Jeddah:
      fajr: "04:45"
      dhuhr: "12:00"
      asr: "15:30"
      maghrib: "17:45"
      isha: "19:15"
`

const testFixturesYAML = `
weeks:
  7:
    - [Al-Hilal, Al-Nassr]
    - [Al-Ittihad, Al-Ahli]
`

func testServer(t *testing.T, mutate func(*config.Config)) *httptest.Server {
	t.Helper()
	cfg, err := config.LoadFromBytes([]byte(testConfigYAML))
	if err != nil {
		t.Fatalf("loading config: %v", err)
	}
	cfg.FixturesFile = filepath.Join(t.TempDir(), "fixtures.yaml")
	if err := os.WriteFile(cfg.FixturesFile, []byte(testFixturesYAML), 0644); err != nil {
		t.Fatal(err)
	}
	if mutate != nil {
		mutate(cfg)
	}

	logger := zaptest.NewLogger(t)
	calc, err := prayer.NewCalculator(cfg, nil, logger)
	if err != nil {
		t.Fatalf("NewCalculator: %v", err)
	}
	loader, err := fixtures.NewLoader(cfg.Teams, 4, logger)
	if err != nil {
		t.Fatalf("NewLoader: %v", err)
	}

	srv := httptest.NewServer(NewRouter(Deps{
		Config:       cfg,
		Availability: availability.New(cfg),
		Prayer:       calc,
		Fixtures:     loader,
		Logger:       logger,
	}))
	t.Cleanup(srv.Close)
	return srv
}

func do(t *testing.T, method, url, body string, out interface{}) (int, http.Header) {
	t.Helper()
	var rdr io.Reader
	if body != "" {
		rdr = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, url, rdr)
	if err != nil {
		t.Fatal(err)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("%s %s: decoding response: %v", method, url, err)
		}
	}
	return resp.StatusCode, resp.Header
}

type errorBody struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func createSession(t *testing.T, srv *httptest.Server, body string) (string, createSessionResponse) {
	t.Helper()
	var resp createSessionResponse
	status, _ := do(t, http.MethodPost, srv.URL+"/api/v1/sessions", body, &resp)
	if status != http.StatusCreated {
		t.Fatalf("create session status = %d, want 201", status)
	}
	return srv.URL + "/api/v1/sessions/" + resp.Session.ID, resp
}

func firstAvailable(t *testing.T, m matchView) scenarioView {
	t.Helper()
	for _, sc := range m.Scenarios {
		if sc.Available {
			return sc
		}
	}
	t.Fatalf("%s vs %s has no available scenario", m.Home, m.Away)
	return scenarioView{}
}

func TestHealth(t *testing.T) {
	srv := testServer(t, nil)
	var body map[string]interface{}
	status, header := do(t, http.MethodGet, srv.URL+"/health", "", &body)
	if status != http.StatusOK || body["status"] != "ok" {
		t.Errorf("health = %d %v", status, body)
	}
	if header.Get("X-Process-Time") == "" {
		t.Error("missing X-Process-Time header")
	}
}

func TestSessionLifecycle(t *testing.T) {
	srv := testServer(t, nil)
	base, created := createSession(t, srv, "")

	if created.Report.Matches != 2 || created.Report.Scenarios == 0 {
		t.Fatalf("report = %+v", created.Report)
	}
	if len(created.Session.Weeks) != 1 || created.Session.Weeks[0].Week != 7 {
		t.Fatalf("session weeks = %+v", created.Session.Weeks)
	}

	var week weekResponse
	if status, _ := do(t, http.MethodGet, base+"/weeks/7", "", &week); status != http.StatusOK {
		t.Fatalf("get week status = %d", status)
	}
	if len(week.Matches) != 2 {
		t.Fatalf("week matches = %d, want 2", len(week.Matches))
	}
	hilal := week.Matches[0]
	if hilal.Home != "Al-Hilal" {
		t.Fatalf("first match = %s vs %s", hilal.Home, hilal.Away)
	}
	for _, sc := range hilal.Scenarios {
		if sc.Date == "2025-10-27" || sc.Date == "2025-10-28" || sc.Date == "2025-10-29" {
			if sc.Available {
				t.Errorf("scenario on %s should be unavailable for Al-Hilal", sc.Date)
			}
		}
	}

	matchURL := fmt.Sprintf("%s/matches/%d", base, hilal.ID)
	pick := firstAvailable(t, hilal)

	t.Run("commit", func(t *testing.T) {
		var res commitView
		status, _ := do(t, http.MethodPost, matchURL+"/commit", fmt.Sprintf(`{"scenario_id": %d}`, pick.ID), &res)
		if status != http.StatusOK {
			t.Fatalf("commit status = %d", status)
		}
		if !res.Scenario.Selected || res.DayCount != 1 {
			t.Errorf("commit = %+v", res)
		}

		var day dayResponse
		do(t, http.MethodGet, base+"/days/"+pick.Date, "", &day)
		if day.Committed != 1 || day.Quota != 3 || day.Full {
			t.Errorf("day = %+v", day.dayView)
		}

		var m matchView
		do(t, http.MethodGet, matchURL, "", &m)
		if m.Committed == nil || m.Committed.ID != pick.ID {
			t.Errorf("match committed = %+v", m.Committed)
		}
	})

	t.Run("commit rejections", func(t *testing.T) {
		tests := []struct {
			name   string
			body   string
			status int
			code   string
		}{
			{"stale scenario", `{"scenario_id": 99999}`, http.StatusConflict, "STALE_SCENARIO"},
			{"missing scenario_id", `{}`, http.StatusBadRequest, "VALIDATION_FAILED"},
			{"unknown field", `{"scenario_id": 1, "force": true}`, http.StatusBadRequest, "INVALID_BODY"},
			{"empty body", ``, http.StatusBadRequest, "INVALID_BODY"},
			{"malformed json", `{"scenario_id":`, http.StatusBadRequest, "INVALID_BODY"},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				var e errorBody
				status, _ := do(t, http.MethodPost, matchURL+"/commit", tt.body, &e)
				if status != tt.status || e.Error.Code != tt.code {
					t.Errorf("got %d %s (%s), want %d %s", status, e.Error.Code, e.Error.Message, tt.status, tt.code)
				}
			})
		}
	})

	t.Run("unavailable scenario", func(t *testing.T) {
		var blocked *scenarioView
		for _, sc := range hilal.Scenarios {
			if !sc.Available {
				sc := sc
				blocked = &sc
				break
			}
		}
		if blocked == nil {
			t.Skip("no unavailable scenario generated")
		}
		var e errorBody
		status, _ := do(t, http.MethodPost, matchURL+"/commit", fmt.Sprintf(`{"scenario_id": %d}`, blocked.ID), &e)
		if status != http.StatusConflict || e.Error.Code != "SCENARIO_UNAVAILABLE" {
			t.Errorf("got %d %s", status, e.Error.Code)
		}
	})

	t.Run("decommit", func(t *testing.T) {
		var sc scenarioView
		if status, _ := do(t, http.MethodDelete, matchURL+"/commit", "", &sc); status != http.StatusOK {
			t.Fatalf("decommit status = %d", status)
		}
		if sc.Selected {
			t.Error("decommitted scenario still selected")
		}
		var e errorBody
		status, _ := do(t, http.MethodDelete, matchURL+"/commit", "", &e)
		if status != http.StatusConflict || e.Error.Code != "NOT_COMMITTED" {
			t.Errorf("second decommit = %d %s", status, e.Error.Code)
		}
	})

	t.Run("auto commit and export", func(t *testing.T) {
		var outcomes []autoCommitView
		if status, _ := do(t, http.MethodPost, base+"/weeks/7/auto-commit", "", &outcomes); status != http.StatusOK {
			t.Fatalf("auto-commit status = %d", status)
		}
		for _, o := range outcomes {
			if !o.Committed {
				t.Errorf("%s vs %s not committed: %s", o.Home, o.Away, o.Reason)
			}
		}

		var rows []exportRowView
		if status, _ := do(t, http.MethodGet, base+"/export", "", &rows); status != http.StatusOK {
			t.Fatalf("export status = %d", status)
		}
		if len(rows) != 2 {
			t.Fatalf("export rows = %d, want 2", len(rows))
		}
		for _, r := range rows {
			if r.Maghrib == "" || r.Isha == "" {
				t.Errorf("row %s vs %s missing prayer columns", r.Home, r.Away)
			}
		}

		resp, err := http.Get(base + "/export?format=xlsx")
		if err != nil {
			t.Fatal(err)
		}
		defer resp.Body.Close()
		data, _ := io.ReadAll(resp.Body)
		if resp.StatusCode != http.StatusOK || !strings.Contains(resp.Header.Get("Content-Type"), "spreadsheetml") {
			t.Errorf("xlsx export = %d %s", resp.StatusCode, resp.Header.Get("Content-Type"))
		}
		if len(data) < 4 || string(data[:2]) != "PK" {
			t.Error("xlsx export is not a zip archive")
		}

		var e errorBody
		if status, _ := do(t, http.MethodGet, base+"/export?format=csv", "", &e); status != http.StatusBadRequest {
			t.Errorf("csv export status = %d, want 400", status)
		}
	})

	t.Run("delete", func(t *testing.T) {
		if status, _ := do(t, http.MethodDelete, base, "", nil); status != http.StatusNoContent {
			t.Fatalf("delete status = %d", status)
		}
		var e errorBody
		if status, _ := do(t, http.MethodGet, base, "", &e); status != http.StatusNotFound {
			t.Errorf("get after delete = %d, want 404", status)
		}
	})
}

func TestCreateSessionOptions(t *testing.T) {
	srv := testServer(t, nil)

	t.Run("auto commit on create", func(t *testing.T) {
		_, created := createSession(t, srv, `{"auto_commit": true}`)
		if len(created.Report.AutoCommit) != 2 {
			t.Fatalf("auto commit outcomes = %+v", created.Report.AutoCommit)
		}
		if created.Session.Weeks[0].Committed != 2 {
			t.Errorf("committed = %d, want 2", created.Session.Weeks[0].Committed)
		}
	})

	t.Run("inverted range rejected", func(t *testing.T) {
		var e errorBody
		status, _ := do(t, http.MethodPost, srv.URL+"/api/v1/sessions", `{"first_week": 9, "last_week": 7}`, &e)
		if status != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", status)
		}
	})

	t.Run("listed oldest first", func(t *testing.T) {
		var list []sessionView
		do(t, http.MethodGet, srv.URL+"/api/v1/sessions", "", &list)
		if len(list) != 1 {
			t.Errorf("sessions = %d, want 1", len(list))
		}
	})
}

func TestCreateSessionMissingFixtures(t *testing.T) {
	srv := testServer(t, func(cfg *config.Config) {
		cfg.FixturesFile = filepath.Join(t.TempDir(), "missing.yaml")
	})
	var e errorBody
	status, _ := do(t, http.MethodPost, srv.URL+"/api/v1/sessions", "", &e)
	if status != http.StatusInternalServerError || e.Error.Code != "FIXTURES_UNAVAILABLE" {
		t.Errorf("got %d %s", status, e.Error.Code)
	}
}

func TestStadiumOverride(t *testing.T) {
	srv := testServer(t, nil)
	base, _ := createSession(t, srv, "")

	var week weekResponse
	do(t, http.MethodGet, base+"/weeks/7", "", &week)
	ittihad := week.Matches[1]
	sc := firstAvailable(t, ittihad)
	matchURL := fmt.Sprintf("%s/matches/%d", base, ittihad.ID)

	var opts []stadiumOptionView
	status, _ := do(t, http.MethodGet, fmt.Sprintf("%s/stadiums?scenario_id=%d", matchURL, sc.ID), "", &opts)
	if status != http.StatusOK {
		t.Fatalf("stadium options status = %d", status)
	}
	if len(opts) != 2 || !opts[0].Current || opts[1].Stadium != "Prince Abdullah Al-Faisal Stadium" {
		t.Fatalf("options = %+v", opts)
	}

	t.Run("missing scenario_id", func(t *testing.T) {
		var e errorBody
		if status, _ := do(t, http.MethodGet, matchURL+"/stadiums", "", &e); status != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", status)
		}
	})

	t.Run("not an option", func(t *testing.T) {
		var e errorBody
		url := fmt.Sprintf("%s/scenarios/%d/stadium", matchURL, sc.ID)
		status, _ := do(t, http.MethodPut, url, `{"stadium": "Kingdom Arena"}`, &e)
		if status != http.StatusBadRequest || e.Error.Code != "INVALID_STADIUM" {
			t.Errorf("got %d %s", status, e.Error.Code)
		}
	})

	t.Run("moved to same-city stadium", func(t *testing.T) {
		var updated scenarioView
		url := fmt.Sprintf("%s/scenarios/%d/stadium", matchURL, sc.ID)
		status, _ := do(t, http.MethodPut, url, `{"stadium": "prince abdullah al-faisal stadium"}`, &updated)
		if status != http.StatusOK {
			t.Fatalf("status = %d", status)
		}
		if updated.Stadium != "Prince Abdullah Al-Faisal Stadium" || updated.City != "Jeddah" {
			t.Errorf("updated = %+v", updated)
		}
	})

	t.Run("committed scenario locked", func(t *testing.T) {
		do(t, http.MethodPost, matchURL+"/commit", fmt.Sprintf(`{"scenario_id": %d}`, sc.ID), nil)
		var e errorBody
		url := fmt.Sprintf("%s/scenarios/%d/stadium", matchURL, sc.ID)
		status, _ := do(t, http.MethodPut, url, `{"stadium": "King Abdullah Sports City Stadium (The Jewel)"}`, &e)
		if status != http.StatusConflict || e.Error.Code != "SCENARIO_COMMITTED" {
			t.Errorf("got %d %s", status, e.Error.Code)
		}
	})
}

func TestLookupErrors(t *testing.T) {
	srv := testServer(t, nil)
	base, _ := createSession(t, srv, "")

	tests := []struct {
		name   string
		url    string
		status int
	}{
		{"bad session id", srv.URL + "/api/v1/sessions/not-a-uuid", http.StatusBadRequest},
		{"unknown session", srv.URL + "/api/v1/sessions/00000000-0000-0000-0000-000000000000", http.StatusNotFound},
		{"unknown week", base + "/weeks/30", http.StatusNotFound},
		{"non-numeric week", base + "/weeks/seven", http.StatusBadRequest},
		{"unknown match", base + "/matches/999", http.StatusNotFound},
		{"bad day", base + "/days/30-10-2025", http.StatusBadRequest},
		{"bad kickoff date", srv.URL + "/api/v1/kickoffs?city=Riyadh&date=tomorrow", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var e errorBody
			if status, _ := do(t, http.MethodGet, tt.url, "", &e); status != tt.status {
				t.Errorf("status = %d, want %d", status, tt.status)
			}
			if e.Error.Code == "" {
				t.Error("missing error code")
			}
		})
	}
}

func TestKickoffs(t *testing.T) {
	srv := testServer(t, nil)

	var c candidatesView
	status, _ := do(t, http.MethodGet, srv.URL+"/api/v1/kickoffs?city=Jeddah&date=2025-10-30", "", &c)
	if status != http.StatusOK {
		t.Fatalf("status = %d", status)
	}
	if c.City != "Jeddah" || c.Source != prayer.SourceFallback || c.Times.Maghrib != "17:45" {
		t.Errorf("candidates = %+v", c)
	}
	if len(c.Kickoffs) == 0 {
		t.Error("no kickoff candidates")
	}

	do(t, http.MethodGet, srv.URL+"/api/v1/kickoffs?city=Atlantis&date=2025-10-30", "", &c)
	if c.City != "Riyadh" || c.Warning == "" {
		t.Errorf("unknown city = %s warning %q", c.City, c.Warning)
	}
}

func TestRateLimit(t *testing.T) {
	srv := testServer(t, func(cfg *config.Config) {
		cfg.Server.RateLimitRequests = 2
		cfg.Server.RateLimitWindow = time.Minute
	})

	if status, _ := do(t, http.MethodGet, srv.URL+"/health", "", nil); status != http.StatusOK {
		t.Fatalf("first request = %d", status)
	}
	var e errorBody
	status, header := do(t, http.MethodGet, srv.URL+"/health", "", &e)
	if status != http.StatusTooManyRequests || e.Error.Code != "RATE_LIMITED" {
		t.Errorf("second request = %d %s", status, e.Error.Code)
	}
	if header.Get("Retry-After") != "60" {
		t.Errorf("Retry-After = %q", header.Get("Retry-After"))
	}
}
