package fixtures

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"
)

const preferredSheet = "Table 1"

// ExcelReader reads a fixture workbook laid out as one row per fixture with
// a week column and "X" cells separating home and away team names. The
// week column may be sparse; blank cells inherit the week above.
type ExcelReader struct{}

func (r *ExcelReader) Read(path string) ([]Fixture, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("opening file: %w", err)
	}
	defer f.Close()

	sheet := preferredSheet
	if idx, _ := f.GetSheetIndex(sheet); idx < 0 {
		sheet = f.GetSheetName(0)
	}

	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", sheet, err)
	}
	return parseRows(rows)
}

func parseRows(rows [][]string) ([]Fixture, error) {
	headerRow := -1
	for i, row := range rows {
		if !blankRow(row) {
			headerRow = i
			break
		}
	}
	if headerRow < 0 {
		return nil, fmt.Errorf("fixture sheet is empty")
	}
	header := rows[headerRow]

	weekCol := detectWeekColumn(header)
	if weekCol < 0 {
		return nil, fmt.Errorf("could not detect a week column; headers found: %v", header)
	}

	var out []Fixture
	week := 0
	for _, row := range rows[headerRow+1:] {
		if blankRow(row) {
			continue
		}
		if weekCol < len(row) && strings.TrimSpace(row[weekCol]) != "" {
			// Unparsable week labels void the rows beneath them too.
			week, _ = parseWeek(row[weekCol])
		}
		if week == 0 {
			continue
		}

		home, away, ok := pickPair(row, header)
		if ok {
			out = append(out, Fixture{Week: week, Home: home, Away: away})
		}
	}

	if len(out) == 0 {
		return nil, fmt.Errorf("no fixtures parsed; expected \"X\" separators between team columns")
	}
	return out, nil
}

// detectWeekColumn prefers an English "WEEK" header, then any header
// containing the Arabic for week.
func detectWeekColumn(header []string) int {
	for i, h := range header {
		if strings.EqualFold(strings.TrimSpace(h), "week") {
			return i
		}
	}
	for i, h := range header {
		if strings.Contains(h, "أسبوع") {
			return i
		}
	}
	return -1
}

// pickPair finds cells equal to "X" and takes their neighbours as home and
// away. A pair under an English team header wins, then an Arabic one, then
// the first found.
func pickPair(row, header []string) (string, string, bool) {
	type pair struct {
		home, away, header string
	}
	var pairs []pair
	for j, cell := range row {
		if !strings.EqualFold(strings.TrimSpace(cell), "x") || j == 0 || j+1 >= len(row) {
			continue
		}
		home, away := strings.TrimSpace(row[j-1]), strings.TrimSpace(row[j+1])
		if home == "" || away == "" || strings.EqualFold(home, "x") || strings.EqualFold(away, "x") {
			continue
		}
		h := ""
		if j-1 < len(header) {
			h = header[j-1]
		}
		pairs = append(pairs, pair{home, away, h})
	}
	if len(pairs) == 0 {
		return "", "", false
	}

	for _, p := range pairs {
		if strings.Contains(strings.ToUpper(p.header), "TEAM") {
			return p.home, p.away, true
		}
	}
	for _, p := range pairs {
		if strings.Contains(p.header, "فريق") {
			return p.home, p.away, true
		}
	}
	return pairs[0].home, pairs[0].away, true
}

func parseWeek(s string) (int, bool) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || v < 1 {
		return 0, false
	}
	return int(v), true
}

func blankRow(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
