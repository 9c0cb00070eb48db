package prayer

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"github.com/kickoff-planner/kickoff/internal/config"
	"github.com/kickoff-planner/kickoff/internal/logging"
)

const (
	SourceOracle   = "oracle"
	SourceFallback = "fallback"
)

// Kickoff is one candidate kickoff time.
type Kickoff struct {
	Time      string `json:"time"`
	Mandatory bool   `json:"mandatory"`
	// Prayer names the prayer the time was derived from, empty for
	// mandatory slots.
	Prayer string `json:"prayer,omitempty"`
	// Note describes a prayer falling during play on a mandatory slot.
	Note string `json:"note,omitempty"`
}

// Candidates is the result of KickoffCandidates.
type Candidates struct {
	City     string
	Date     time.Time
	Times    Times
	Source   string
	Kickoffs []Kickoff
	Warning  string
}

// Clocks returns the kickoff times in order.
func (c Candidates) Clocks() []string {
	out := make([]string, len(c.Kickoffs))
	for i, k := range c.Kickoffs {
		out[i] = k.Time
	}
	return out
}

type cacheKey struct {
	city string
	date string
}

type cacheEntry struct {
	times  Times
	source string
	err    error
}

// Calculator turns prayer times into kickoff candidates. Lookups are
// memoized per (city, date) in a bounded LRU.
type Calculator struct {
	oracle      Oracle
	fallback    map[string]Times
	known       map[string]string
	aliases     map[string]string
	defaultCity string

	gap           int
	matchMinutes  int
	halftimeStart int
	halftimeEnd   int
	mandatory     []int
	maxCandidates int

	cache  *lru.Cache[cacheKey, cacheEntry]
	logger *zap.Logger
}

// NewCalculator builds a Calculator from the prayer settings in cfg. Team
// cities, configured cities and fallback tables make up the set of known
// cities. oracle may be nil, in which case only fallback tables are used.
func NewCalculator(cfg *config.Config, oracle Oracle, logger *zap.Logger) (*Calculator, error) {
	p := cfg.Prayer
	cache, err := lru.New[cacheKey, cacheEntry](p.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("creating prayer cache: %w", err)
	}

	c := &Calculator{
		oracle:        oracle,
		fallback:      FallbackTable(p.Fallback),
		known:         make(map[string]string),
		aliases:       make(map[string]string),
		defaultCity:   p.DefaultCity,
		gap:           p.PrePrayerGapMinutes,
		matchMinutes:  p.MatchMinutes,
		halftimeStart: p.HalftimeStart,
		halftimeEnd:   p.HalftimeEnd,
		maxCandidates: p.MaxCandidates,
		cache:         cache,
		logger:        logging.OrNop(logger),
	}

	addKnown := func(city string) {
		if city != "" && !strings.EqualFold(city, "unknown") {
			c.known[strings.ToLower(city)] = city
		}
	}
	addKnown(p.DefaultCity)
	for _, city := range p.Cities {
		addKnown(city)
	}
	for city := range p.Fallback {
		addKnown(city)
	}
	for from, to := range p.CityAliases {
		c.aliases[strings.ToLower(from)] = to
		addKnown(to)
	}
	for _, t := range cfg.Teams {
		if _, aliased := c.aliases[strings.ToLower(t.City)]; !aliased {
			addKnown(t.City)
		}
	}

	for _, slot := range p.MandatorySlots {
		m, err := parseClock(slot)
		if err != nil {
			return nil, fmt.Errorf("mandatory slot: %w", err)
		}
		c.mandatory = append(c.mandatory, m)
	}

	return c, nil
}

// ResolveCity maps a city name to the key used for prayer lookups. Unknown
// or empty cities resolve to the default city with a warning.
func (c *Calculator) ResolveCity(city string) (string, string) {
	city = strings.TrimSpace(city)
	if to, ok := c.aliases[strings.ToLower(city)]; ok {
		return to, ""
	}
	if canonical, ok := c.known[strings.ToLower(city)]; ok {
		return canonical, ""
	}
	if city == "" {
		city = "Unknown"
	}
	return c.defaultCity, fmt.Sprintf("unknown city %q, using %s prayer times", city, c.defaultCity)
}

// PrayerTimes returns the memoized prayer times for city on date.
func (c *Calculator) PrayerTimes(ctx context.Context, city string, date time.Time) (Times, error) {
	oracleCity, _ := c.ResolveCity(city)
	e := c.lookup(ctx, oracleCity, date)
	return e.times, e.err
}

// KickoffCandidates derives the kickoff times for a match in city on date.
// An error wrapping ErrNoPrayerData means no times could be derived.
func (c *Calculator) KickoffCandidates(ctx context.Context, city string, date time.Time) (Candidates, error) {
	oracleCity, warning := c.ResolveCity(city)
	if warning != "" {
		c.logger.Warn("prayer.KickoffCandidates city fallback",
			zap.String("city", city),
			zap.String("using", oracleCity),
		)
	}

	e := c.lookup(ctx, oracleCity, date)
	out := Candidates{City: oracleCity, Date: date, Warning: warning}
	if e.err != nil {
		return out, e.err
	}
	out.Times = e.times
	out.Source = e.source

	kickoffs, err := c.derive(e.times)
	if err != nil {
		return out, &LookupError{City: oracleCity, Date: date, Err: err}
	}
	out.Kickoffs = kickoffs
	return out, nil
}

// Invalidate drops the memoized times for city on date.
func (c *Calculator) Invalidate(city string, date time.Time) {
	oracleCity, _ := c.ResolveCity(city)
	c.cache.Remove(cacheKey{oracleCity, date.Format(dateLayout)})
}

// Purge drops every memoized lookup.
func (c *Calculator) Purge() {
	c.cache.Purge()
}

func (c *Calculator) lookup(ctx context.Context, city string, date time.Time) cacheEntry {
	key := cacheKey{city, date.Format(dateLayout)}
	if e, ok := c.cache.Get(key); ok {
		return e
	}

	var e cacheEntry
	var oracleErr error
	if c.oracle != nil {
		times, err := c.oracle.Times(ctx, city, date)
		if err == nil {
			e = cacheEntry{times: times, source: SourceOracle}
		}
		oracleErr = err
	} else {
		oracleErr = errors.New("no oracle configured")
	}

	if e.source == "" {
		if fb, ok := c.fallback[strings.ToLower(city)]; ok {
			c.logger.Warn("prayer.lookup using fallback table",
				zap.String("city", city),
				zap.String("date", key.date),
				zap.Error(oracleErr),
			)
			e = cacheEntry{times: fb, source: SourceFallback}
		} else {
			c.logger.Error("prayer.lookup no prayer data",
				zap.String("city", city),
				zap.String("date", key.date),
				zap.Error(oracleErr),
			)
			e = cacheEntry{err: &LookupError{
				City: city,
				Date: date,
				Err:  fmt.Errorf("%w: %w", ErrNoPrayerData, oracleErr),
			}}
		}
	}

	// A cancelled caller says nothing about the date, so neither the error
	// nor the fallback it forced is memoized.
	if ctx.Err() != nil || errors.Is(oracleErr, context.Canceled) {
		return e
	}
	if !errors.Is(e.err, context.DeadlineExceeded) {
		c.cache.Add(key, e)
	}
	return e
}

func (c *Calculator) derive(t Times) ([]Kickoff, error) {
	asr, err := parseClock(t.Asr)
	if err != nil {
		return nil, err
	}
	maghrib, err := parseClock(t.Maghrib)
	if err != nil {
		return nil, err
	}
	isha, err := parseClock(t.Isha)
	if err != nil {
		return nil, err
	}
	evening := []namedPrayer{{"Asr", asr}, {"Maghrib", maghrib}, {"Isha", isha}}
	clash := func(kickoff int) string {
		return clashing(kickoff, c.matchMinutes, c.halftimeStart, c.halftimeEnd, evening)
	}

	byTime := make(map[int]Kickoff)
	for _, p := range []struct {
		name string
		at   int
	}{{"maghrib", maghrib}, {"isha", isha}} {
		base := p.at - c.gap
		for _, up := range []bool{false, true} {
			k := RoundToFive(base, up)
			if clash(k) == "" {
				byTime[k] = Kickoff{Time: formatClock(k), Prayer: p.name}
				break
			}
		}
	}
	for _, m := range c.mandatory {
		byTime[m] = Kickoff{Time: formatClock(m), Mandatory: true, Note: clash(m)}
	}

	minutes := make([]int, 0, len(byTime))
	for m := range byTime {
		minutes = append(minutes, m)
	}
	sort.Ints(minutes)

	kickoffs := make([]Kickoff, 0, len(minutes))
	for _, m := range minutes {
		kickoffs = append(kickoffs, byTime[m])
	}

	// Trim from the latest end, never dropping a mandatory slot.
	for i := len(kickoffs) - 1; len(kickoffs) > c.maxCandidates && i >= 0; i-- {
		if !kickoffs[i].Mandatory {
			kickoffs = append(kickoffs[:i], kickoffs[i+1:]...)
		}
	}
	return kickoffs, nil
}

type namedPrayer struct {
	name string
	at   int
}

// clashing describes the first prayer falling during play outside the
// halftime window, or returns "".
func clashing(kickoff, matchMinutes, htStart, htEnd int, prayers []namedPrayer) string {
	for _, p := range prayers {
		inPlay := p.at >= kickoff && p.at < kickoff+matchMinutes
		atHalftime := p.at >= kickoff+htStart && p.at <= kickoff+htEnd
		if inPlay && !atHalftime {
			return fmt.Sprintf("%s at %s falls during play", p.name, formatClock(p.at))
		}
	}
	return ""
}

// CheckKickoff reports a prayer in t that a match kicking off at kickoff
// would play through. Empty prayer times are ignored.
func CheckKickoff(p config.Prayer, kickoff string, t Times) (string, error) {
	k, err := parseClock(kickoff)
	if err != nil {
		return "", err
	}
	var prayers []namedPrayer
	for _, np := range []struct{ name, at string }{{"Asr", t.Asr}, {"Maghrib", t.Maghrib}, {"Isha", t.Isha}} {
		if np.at == "" {
			continue
		}
		at, err := parseClock(np.at)
		if err != nil {
			return "", fmt.Errorf("%s: %w", np.name, err)
		}
		prayers = append(prayers, namedPrayer{np.name, at})
	}
	return clashing(k, p.MatchMinutes, p.HalftimeStart, p.HalftimeEnd, prayers), nil
}

// RoundToFive rounds minutes to a 5-minute boundary, down or up. Aligned
// values are returned unchanged.
func RoundToFive(minutes int, up bool) int {
	rem := ((minutes % 5) + 5) % 5
	if rem == 0 {
		return minutes
	}
	if up {
		return minutes + 5 - rem
	}
	return minutes - rem
}
