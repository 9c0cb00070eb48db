package schedule

import (
	"context"
	"sort"
	"time"

	"github.com/kickoff-planner/kickoff/internal/prayer"
)

// PrayerLookup supplies prayer times for the export's prayer columns.
type PrayerLookup interface {
	PrayerTimes(ctx context.Context, city string, date time.Time) (prayer.Times, error)
}

// ExportRow is one committed match in the flattened schedule.
type ExportRow struct {
	Week      int
	Home      string
	Away      string
	Date      time.Time
	DayOfWeek string
	Time      string
	Stadium   string
	City      string
	Maghrib   string
	Isha      string
}

// Export flattens the committed scenarios sorted by week, date and time.
// Prayer columns are left empty when lookup is nil or has no data.
func (s *Session) Export(ctx context.Context, lookup PrayerLookup) []ExportRow {
	committed := s.Committed()

	rows := make([]ExportRow, 0, len(committed))
	for _, sc := range committed {
		row := ExportRow{
			Week:      sc.Week,
			Home:      sc.Home,
			Away:      sc.Away,
			Date:      sc.Date,
			DayOfWeek: sc.Date.Weekday().String(),
			Time:      sc.Time,
			Stadium:   sc.Stadium,
			City:      sc.City,
		}
		if lookup != nil {
			if t, err := lookup.PrayerTimes(ctx, sc.City, sc.Date); err == nil {
				row.Maghrib = t.Maghrib
				row.Isha = t.Isha
			}
		}
		rows = append(rows, row)
	}

	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].Week != rows[j].Week {
			return rows[i].Week < rows[j].Week
		}
		if !rows[i].Date.Equal(rows[j].Date) {
			return rows[i].Date.Before(rows[j].Date)
		}
		return rows[i].Time < rows[j].Time
	})
	return rows
}
