package validator

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/kickoff-planner/kickoff/internal/availability"
	"github.com/kickoff-planner/kickoff/internal/config"
	"github.com/kickoff-planner/kickoff/internal/excel"
	"github.com/kickoff-planner/kickoff/internal/fixtures"
	"github.com/kickoff-planner/kickoff/internal/prayer"
	"github.com/kickoff-planner/kickoff/internal/schedule"
)

const testConfigYAML = `
season:
  first_week: 7
  last_week: 7
  week_anchors:
    7: "2025-10-30"

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

stadium_closures:
  - stadium: King Abdullah Sports City Stadium (The Jewel)
    start_date: "2025-12-01"
    end_date: "2025-12-31"
    alternative: Prince Abdullah Al-Faisal Stadium
    reason: Renovation

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

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.LoadFromBytes([]byte(testConfigYAML))
	if err != nil {
		t.Fatalf("loading config: %v", err)
	}
	return cfg
}

func d(month, day int) time.Time {
	return time.Date(2025, time.Month(month), day, 0, 0, 0, 0, time.UTC)
}

func row(line int, home, away string, date time.Time, kickoff, stadium string) excel.Row {
	return excel.Row{Line: line, ExportRow: schedule.ExportRow{
		Week: 7, Home: home, Away: away, Date: date, Time: kickoff, Stadium: stadium,
	}}
}

func TestValidateGeneratedSchedule(t *testing.T) {
	cfg := testConfig(t)
	calc, err := prayer.NewCalculator(cfg, nil, nil)
	if err != nil {
		t.Fatalf("NewCalculator: %v", err)
	}
	s := schedule.NewSession(cfg.Season, nil)
	g := schedule.NewGenerator(cfg, availability.New(cfg), calc, nil)
	list := fixtures.List{7: {
		{Week: 7, Home: "Al-Hilal", Away: "Al-Nassr"},
		{Week: 7, Home: "Al-Ittihad", Away: "Al-Ahli"},
	}}
	if _, err := g.Generate(context.Background(), s, list); err != nil {
		t.Fatalf("Generate() error: %v", err)
	}
	for _, o := range s.AutoCommit(7) {
		if !o.Committed {
			t.Fatalf("%s vs %s not committed: %s", o.Home, o.Away, o.Reason)
		}
	}

	f, err := excel.Generate(cfg.AllTeams(), s.Export(context.Background(), calc), s.Open())
	if err != nil {
		t.Fatalf("excel.Generate() error: %v", err)
	}
	path := t.TempDir() + "/schedule.xlsx"
	if err := f.SaveAs(path); err != nil {
		t.Fatalf("SaveAs error: %v", err)
	}

	violations, err := Validate(cfg, path)
	if err != nil {
		t.Fatalf("Validate() error: %v", err)
	}

	t.Run("no hard constraint violations", func(t *testing.T) {
		for _, v := range violations {
			if v.Type == "error" {
				t.Errorf("hard violation on row %d: %s", v.Row, v.Message)
			}
		}
	})

	t.Run("detects a manual edit onto a blackout", func(t *testing.T) {
		f.SetCellValue(excel.ScheduleSheet, "D3", "2025-10-29")
		if err := f.SaveAs(path); err != nil {
			t.Fatalf("SaveAs error: %v", err)
		}
		violations, err := Validate(cfg, path)
		if err != nil {
			t.Fatalf("Validate() error: %v", err)
		}
		if len(violations) == 0 || violations[0].Type != "error" || !strings.Contains(violations[0].Message, "2025-10-28") {
			t.Errorf("violations = %+v", violations)
		}
	})

	t.Run("missing file", func(t *testing.T) {
		if _, err := Validate(cfg, t.TempDir()+"/missing.xlsx"); err == nil {
			t.Error("expected error")
		}
	})
}

func TestCheckDayQuota(t *testing.T) {
	cfg := testConfig(t)

	t.Run("no violation at the quota", func(t *testing.T) {
		rows := []excel.Row{
			row(2, "A", "B", d(10, 31), "20:30", ""),
			row(3, "C", "D", d(10, 31), "20:30", ""),
			row(4, "E", "F", d(10, 31), "20:30", ""),
		}
		if v := checkDayQuota(cfg, rows); len(v) != 0 {
			t.Errorf("expected 0 violations, got %v", v)
		}
	})

	t.Run("violation above the quota", func(t *testing.T) {
		rows := []excel.Row{
			row(2, "A", "B", d(10, 31), "20:30", ""),
			row(3, "C", "D", d(10, 31), "20:30", ""),
			row(4, "E", "F", d(10, 31), "20:30", ""),
			row(5, "G", "H", d(10, 31), "21:00", ""),
		}
		v := checkDayQuota(cfg, rows)
		if len(v) != 1 {
			t.Fatalf("expected 1 violation, got %v", v)
		}
		if v[0].Row != 5 || v[0].Type != "error" || v[0].Message != "4 matches on 2025-10-31 (max 3)" {
			t.Errorf("violation = %+v", v[0])
		}
	})
}

func TestCheckTeamPerDay(t *testing.T) {
	t.Run("no violation when teams play once per day", func(t *testing.T) {
		rows := []excel.Row{
			row(2, "Al-Hilal", "Al-Nassr", d(10, 31), "20:30", ""),
			row(3, "Al-Ittihad", "Al-Ahli", d(10, 31), "21:00", ""),
			row(4, "Al-Hilal", "Al-Ahli", d(11, 1), "21:00", ""),
		}
		if v := checkTeamPerDay(rows); len(v) != 0 {
			t.Errorf("expected 0 violations, got %v", v)
		}
	})

	t.Run("violation when team plays twice in one day", func(t *testing.T) {
		rows := []excel.Row{
			row(2, "Al-Hilal", "Al-Nassr", d(10, 31), "18:10", ""),
			row(3, "Al-Ittihad", "Al-Hilal", d(10, 31), "21:00", ""),
		}
		v := checkTeamPerDay(rows)
		if len(v) != 1 {
			t.Fatalf("expected 1 violation, got %v", v)
		}
		if v[0].Row != 3 || !strings.Contains(v[0].Message, "Al-Hilal plays 2 matches on 2025-10-31") {
			t.Errorf("violation = %+v", v[0])
		}
	})
}

func TestCheckBlackouts(t *testing.T) {
	oracle := availability.New(testConfig(t))
	rows := []excel.Row{
		row(2, "Al-Nassr", "Al-Hilal", d(10, 30), "20:30", ""),
		row(3, "Al-Ittihad", "Al-Ahli", d(10, 30), "20:30", ""),
		row(4, "Al-Hilal", "Al-Ahli", d(10, 31), "20:30", ""),
	}
	v := checkBlackouts(oracle, rows)
	if len(v) != 1 {
		t.Fatalf("expected 1 violation, got %v", v)
	}
	want := "Al-Nassr vs Al-Hilal: Al-Hilal blackout on 2025-10-28 (AFC Champions League) is within 2 day(s) of 2025-10-30"
	if v[0].Row != 2 || v[0].Message != want {
		t.Errorf("violation = %+v", v[0])
	}
}

func TestCheckClosedStadiums(t *testing.T) {
	oracle := availability.New(testConfig(t))
	jewel := "King Abdullah Sports City Stadium (The Jewel)"
	rows := []excel.Row{
		row(2, "Al-Ittihad", "Al-Ahli", d(11, 30), "20:30", jewel),
		row(3, "Al-Ittihad", "Al-Hilal", d(12, 1), "20:30", jewel),
		row(4, "Al-Ittihad", "Al-Nassr", d(12, 31), "20:30", jewel),
	}
	v := checkClosedStadiums(oracle, rows)
	if len(v) != 2 {
		t.Fatalf("expected 2 violations, got %v", v)
	}
	if v[0].Row != 3 || !strings.Contains(v[0].Message, "(Renovation); use Prince Abdullah Al-Faisal Stadium") {
		t.Errorf("violation = %+v", v[0])
	}
}

func TestCheckStadiumDoubleUse(t *testing.T) {
	rows := []excel.Row{
		row(2, "Al-Hilal", "Al-Nassr", d(10, 31), "18:10", "Kingdom Arena"),
		row(3, "Al-Shabab", "Al-Fateh", d(10, 31), "21:00", "kingdom arena"),
		row(4, "Al-Riyadh", "Damac", d(11, 1), "21:00", "Kingdom Arena"),
		row(5, "Al-Ittihad", "Al-Ahli", d(10, 31), "21:00", ""),
		row(6, "Al-Taawoun", "NEOM", d(10, 31), "21:00", ""),
	}
	v := checkStadiumDoubleUse(rows)
	if len(v) != 1 {
		t.Fatalf("expected 1 warning, got %v", v)
	}
	if v[0].Row != 3 || v[0].Type != "warning" {
		t.Errorf("violation = %+v", v[0])
	}
}

func TestCheckPrayerClashes(t *testing.T) {
	cfg := testConfig(t)
	clash := row(2, "Al-Hilal", "Al-Nassr", d(10, 31), "17:00", "")
	clash.Maghrib, clash.Isha = "17:30", "19:00"
	fine := row(3, "Al-Ittihad", "Al-Ahli", d(10, 31), "20:30", "")
	fine.Maghrib, fine.Isha = "17:45", "19:15"
	noTimes := row(4, "Al-Taawoun", "NEOM", d(10, 31), "17:00", "")

	v := checkPrayerClashes(cfg, []excel.Row{clash, fine, noTimes})
	if len(v) != 1 {
		t.Fatalf("expected 1 warning, got %v", v)
	}
	if v[0].Row != 2 || v[0].Message != "Al-Hilal vs Al-Nassr at 17:00: Maghrib at 17:30 falls during play" {
		t.Errorf("violation = %+v", v[0])
	}
}

func TestCheckOrdering(t *testing.T) {
	cfg := testConfig(t)
	rows := []excel.Row{
		row(2, "Al-Hilal", "Al-Nassr", d(11, 10), "18:10", "Kingdom Arena"),
		row(3, "Al-Ittihad", "Al-Ahli", d(11, 10), "21:00", "Kingdom Arena"),
		row(4, "Ghost FC", "Al-Ahli", d(11, 12), "21:00", ""),
	}
	v := check(cfg, rows)
	if len(v) != 2 {
		t.Fatalf("expected 2 violations, got %v", v)
	}
	if v[0].Type != "error" || v[0].Row != 4 || v[0].Message != `unknown team "Ghost FC"` {
		t.Errorf("first = %+v", v[0])
	}
	if v[1].Type != "warning" || v[1].Row != 3 {
		t.Errorf("second = %+v", v[1])
	}
}
