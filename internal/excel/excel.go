package excel

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/kickoff-planner/kickoff/internal/schedule"
)

const (
	ScheduleSheet = "Schedule"
	OpenSheet     = "Open Scenarios"

	dateLayout = "2006-01-02"
)

var scheduleHeaders = []string{"Week", "Home", "Away", "Date", "Day", "Time", "Stadium", "City", "Maghrib", "Isha"}

// Generate creates a workbook with the committed schedule, one sheet per
// team and the scenarios still open.
func Generate(teams []string, rows []schedule.ExportRow, open []schedule.Scenario) (*excelize.File, error) {
	f := excelize.NewFile()
	f.SetDefaultFont("Arial")

	st, err := newStyles(f)
	if err != nil {
		return nil, fmt.Errorf("creating styles: %w", err)
	}

	if err := writeScheduleSheet(f, st, rows); err != nil {
		return nil, fmt.Errorf("writing schedule sheet: %w", err)
	}
	if err := writeTeamSheets(f, st, teams, rows); err != nil {
		return nil, fmt.Errorf("writing team sheets: %w", err)
	}
	if err := writeOpenSheet(f, st, open); err != nil {
		return nil, fmt.Errorf("writing open scenarios sheet: %w", err)
	}

	f.DeleteSheet("Sheet1")
	return f, nil
}

// UpdateTeamSheets rebuilds the per-team sheets of the workbook at path from
// its Schedule sheet, so manual edits to the schedule carry through.
func UpdateTeamSheets(path string, teams []string) error {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return fmt.Errorf("opening file: %w", err)
	}
	defer f.Close()

	rows, err := ReadSchedule(f)
	if err != nil {
		return err
	}

	for _, team := range teams {
		name := sheetName(team)
		if idx, _ := f.GetSheetIndex(name); idx >= 0 {
			if err := f.DeleteSheet(name); err != nil {
				return fmt.Errorf("removing sheet %s: %w", name, err)
			}
		}
	}

	st, err := newStyles(f)
	if err != nil {
		return fmt.Errorf("creating styles: %w", err)
	}
	exported := make([]schedule.ExportRow, len(rows))
	for i, r := range rows {
		exported[i] = r.ExportRow
	}
	if err := writeTeamSheets(f, st, teams, exported); err != nil {
		return fmt.Errorf("writing team sheets: %w", err)
	}
	return f.Save()
}

// Row is a parsed Schedule sheet row with its 1-based spreadsheet line.
type Row struct {
	Line int
	schedule.ExportRow
}

// ReadSchedule parses the Schedule sheet. Rows without a parsable date or
// both teams are skipped.
func ReadSchedule(f *excelize.File) ([]Row, error) {
	rows, err := f.GetRows(ScheduleSheet)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", ScheduleSheet, err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%s is empty", ScheduleSheet)
	}

	col := make(map[string]int)
	for i, h := range rows[0] {
		col[strings.TrimSpace(h)] = i
	}
	for _, h := range []string{"Home", "Away", "Date"} {
		if _, ok := col[h]; !ok {
			return nil, fmt.Errorf("%s is missing the %s column", ScheduleSheet, h)
		}
	}
	cell := func(row []string, name string) string {
		i, ok := col[name]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	var out []Row
	for i, row := range rows[1:] {
		home, away := cell(row, "Home"), cell(row, "Away")
		if home == "" || away == "" {
			continue
		}
		d, err := time.Parse(dateLayout, cell(row, "Date"))
		if err != nil {
			continue
		}
		week, _ := strconv.Atoi(cell(row, "Week"))
		out = append(out, Row{
			Line: i + 2,
			ExportRow: schedule.ExportRow{
				Week:      week,
				Home:      home,
				Away:      away,
				Date:      d,
				DayOfWeek: d.Weekday().String(),
				Time:      cell(row, "Time"),
				Stadium:   cell(row, "Stadium"),
				City:      cell(row, "City"),
				Maghrib:   cell(row, "Maghrib"),
				Isha:      cell(row, "Isha"),
			},
		})
	}
	return out, nil
}

type styles struct {
	header int
	cell   int
	center int
	red    int
}

func newStyles(f *excelize.File) (styles, error) {
	var st styles
	var err error
	st.header, err = f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Color: "#FFFFFF", Size: 16, Family: "Arial"},
		Fill:      excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"#4472C4"}},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	if err != nil {
		return st, err
	}
	st.cell, err = f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Size: 16, Family: "Arial"},
	})
	if err != nil {
		return st, err
	}
	st.center, err = f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Size: 16, Family: "Arial"},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	if err != nil {
		return st, err
	}
	st.red, err = f.NewConditionalStyle(&excelize.Style{
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"#FFC7CE"}},
		Font: &excelize.Font{Size: 16, Family: "Arial"},
	})
	return st, err
}

func writeHeaders(f *excelize.File, st styles, sheet string, headers []string) {
	for i, h := range headers {
		f.SetCellValue(sheet, cellRef(i+1, 1), h)
	}
	f.SetCellStyle(sheet, cellRef(1, 1), cellRef(len(headers), 1), st.header)
	f.SetPanes(sheet, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"})
}

func writeScheduleSheet(f *excelize.File, st styles, rows []schedule.ExportRow) error {
	sheet := ScheduleSheet
	if _, err := f.NewSheet(sheet); err != nil {
		return err
	}
	writeHeaders(f, st, sheet, scheduleHeaders)

	for i, r := range rows {
		row := i + 2
		values := []any{r.Week, r.Home, r.Away, r.Date.Format(dateLayout), r.Date.Format("Mon"), r.Time, r.Stadium, r.City, r.Maghrib, r.Isha}
		for c, v := range values {
			f.SetCellValue(sheet, cellRef(c+1, row), v)
		}
		f.SetCellStyle(sheet, cellRef(1, row), cellRef(len(values), row), st.cell)
		f.SetCellStyle(sheet, cellRef(4, row), cellRef(6, row), st.center)
	}

	// Column widths sized for Arial 16
	widths := []float64{10, 22, 22, 18, 8, 10, 44, 18, 12, 12}
	for i, w := range widths {
		col := colLetter(i + 1)
		f.SetColWidth(sheet, col, col, w)
	}
	return nil
}

func writeTeamSheets(f *excelize.File, st styles, teams []string, rows []schedule.ExportRow) error {
	headers := []string{"Week", "Date", "Day", "Time", "Opponent", "Home/Away", "Stadium"}

	for _, team := range teams {
		sheet := sheetName(team)
		if _, err := f.NewSheet(sheet); err != nil {
			return fmt.Errorf("sheet for %s: %w", team, err)
		}
		writeHeaders(f, st, sheet, headers)

		type teamMatch struct {
			week     int
			date     time.Time
			time     string
			opponent string
			homeAway string
			stadium  string
		}
		var matches []teamMatch
		for _, r := range rows {
			switch team {
			case r.Home:
				matches = append(matches, teamMatch{r.Week, r.Date, r.Time, r.Away, "Home", r.Stadium})
			case r.Away:
				matches = append(matches, teamMatch{r.Week, r.Date, r.Time, r.Home, "Away", r.Stadium})
			}
		}
		sort.Slice(matches, func(i, j int) bool {
			if !matches[i].date.Equal(matches[j].date) {
				return matches[i].date.Before(matches[j].date)
			}
			return matches[i].time < matches[j].time
		})

		for i, m := range matches {
			row := i + 2
			values := []any{m.week, m.date.Format(dateLayout), m.date.Format("Mon"), m.time, m.opponent, m.homeAway, m.stadium}
			for c, v := range values {
				f.SetCellValue(sheet, cellRef(c+1, row), v)
			}
			f.SetCellStyle(sheet, cellRef(1, row), cellRef(len(values), row), st.cell)
		}

		widths := map[string]float64{"A": 10, "B": 18, "C": 8, "D": 10, "E": 22, "F": 14, "G": 44}
		for col, w := range widths {
			f.SetColWidth(sheet, col, col, w)
		}
	}
	return nil
}

func writeOpenSheet(f *excelize.File, st styles, open []schedule.Scenario) error {
	sheet := OpenSheet
	if _, err := f.NewSheet(sheet); err != nil {
		return err
	}
	headers := []string{"Scenario", "Week", "Home", "Away", "Date", "Day", "Time", "Stadium", "City", "Available", "Attendance %", "Profit", "Reason"}
	writeHeaders(f, st, sheet, headers)

	for i, sc := range open {
		row := i + 2
		available := "Yes"
		if !sc.Available {
			available = "No"
		}
		values := []any{sc.ID, sc.Week, sc.Home, sc.Away, sc.Date.Format(dateLayout), sc.Date.Format("Mon"), sc.Time,
			sc.Stadium, sc.City, available, sc.AttendancePercent, sc.Profit, sc.Reason}
		for c, v := range values {
			f.SetCellValue(sheet, cellRef(c+1, row), v)
		}
		f.SetCellStyle(sheet, cellRef(1, row), cellRef(len(values), row), st.cell)
	}

	widths := []float64{12, 8, 22, 22, 18, 8, 10, 44, 18, 12, 16, 12, 70}
	for i, w := range widths {
		col := colLetter(i + 1)
		f.SetColWidth(sheet, col, col, w)
	}

	// Unavailable scenarios get light red
	if len(open) > 0 {
		lastRow := len(open) + 1
		f.SetConditionalFormat(sheet, fmt.Sprintf("A2:%s%d", colLetter(len(headers)), lastRow), []excelize.ConditionalFormatOptions{
			{
				Type:     "formula",
				Criteria: `$J2="No"`,
				Format:   &st.red,
			},
		})
	}
	return nil
}

// sheetName fits a team name to Excel's sheet name rules.
func sheetName(team string) string {
	name := strings.Map(func(r rune) rune {
		if strings.ContainsRune(`[]:*?/\`, r) {
			return '-'
		}
		return r
	}, team)
	if r := []rune(name); len(r) > 31 {
		name = string(r[:31])
	}
	return name
}

func cellRef(col, row int) string {
	return fmt.Sprintf("%s%d", colLetter(col), row)
}

func colLetter(col int) string {
	result := ""
	for col > 0 {
		col--
		result = string(rune('A'+col%26)) + result
		col /= 26
	}
	return result
}
