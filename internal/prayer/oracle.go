// Package prayer derives match kickoff times from daily prayer times.
//
// Prayer times come from an Oracle (normally the Aladhan API) keyed by city
// and date, with static per-city tables used when the oracle cannot answer.
package prayer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kickoff-planner/kickoff/internal/config"
)

const dateLayout = "2006-01-02"

var (
	// ErrNoPrayerData means neither the oracle nor a fallback table had times
	// for the requested city and date. Callers treat it as zero candidates.
	ErrNoPrayerData = errors.New("no prayer data")

	// ErrUnsupportedDate is returned by oracles for dates they cannot serve.
	ErrUnsupportedDate = errors.New("date outside oracle range")
)

// Times holds the five daily prayers as "HH:MM" strings.
type Times struct {
	Fajr    string `json:"fajr"`
	Dhuhr   string `json:"dhuhr"`
	Asr     string `json:"asr"`
	Maghrib string `json:"maghrib"`
	Isha    string `json:"isha"`
}

func (t Times) validate() error {
	for name, v := range map[string]string{
		"fajr": t.Fajr, "dhuhr": t.Dhuhr, "asr": t.Asr, "maghrib": t.Maghrib, "isha": t.Isha,
	} {
		if _, err := parseClock(v); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	return nil
}

// Oracle looks up prayer times for a city on a date.
type Oracle interface {
	Times(ctx context.Context, city string, date time.Time) (Times, error)
}

// LookupError reports a failed prayer time lookup for a city and date.
type LookupError struct {
	City string
	Date time.Time
	Err  error
}

func (e *LookupError) Error() string {
	return fmt.Sprintf("prayer times for %s on %s: %v", e.City, e.Date.Format(dateLayout), e.Err)
}

func (e *LookupError) Unwrap() error { return e.Err }

// FallbackTable converts configured fallback tables into Times keyed by
// lowercase city name.
func FallbackTable(tables map[string]config.PrayerTable) map[string]Times {
	out := make(map[string]Times, len(tables))
	for city, t := range tables {
		out[strings.ToLower(city)] = Times{
			Fajr:    t.Fajr,
			Dhuhr:   t.Dhuhr,
			Asr:     t.Asr,
			Maghrib: t.Maghrib,
			Isha:    t.Isha,
		}
	}
	return out
}

// parseClock converts "HH:MM" to minutes after midnight.
func parseClock(s string) (int, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("invalid time %q", s)
	}
	return t.Hour()*60 + t.Minute(), nil
}

func formatClock(minutes int) string {
	minutes = ((minutes % (24 * 60)) + 24*60) % (24 * 60)
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
}
