package config

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const dateLayout = "2006-01-02"

// Date is a wrapper around time.Time for YAML date parsing.
type Date struct {
	Time time.Time
}

func (d *Date) UnmarshalYAML(value *yaml.Node) error {
	t, err := time.Parse(dateLayout, value.Value)
	if err != nil {
		return fmt.Errorf("invalid date %q: %w", value.Value, err)
	}
	d.Time = t
	return nil
}

func (d Date) MarshalYAML() (interface{}, error) {
	return d.Time.Format(dateLayout), nil
}

func (d Date) String() string {
	return d.Time.Format(dateLayout)
}

type Season struct {
	FirstWeek     int          `yaml:"first_week"`
	LastWeek      int          `yaml:"last_week"`
	WeekAnchors   map[int]Date `yaml:"week_anchors"`
	WindowDays    int          `yaml:"window_days"`
	DayQuota      int          `yaml:"day_quota"`
	ScenarioCap   int          `yaml:"scenario_cap"`
	PruneFullDays bool         `yaml:"prune_full_days"`
	Seed          int64        `yaml:"seed"`
}

type Team struct {
	Name              string   `yaml:"name"`
	City              string   `yaml:"city"`
	Stadium           string   `yaml:"stadium"`
	Capacity          int      `yaml:"capacity"`
	AlternateStadiums []string `yaml:"alternate_stadiums"`
	Aliases           []string `yaml:"aliases"`
}

// Blackout is a single date a team is committed elsewhere. BufferDates, when
// present, replaces the radius-based buffer for this date.
type Blackout struct {
	Date        Date   `yaml:"date"`
	Reason      string `yaml:"reason"`
	BufferDates []Date `yaml:"buffer_dates"`
}

type TeamBlackouts struct {
	Team       string     `yaml:"team"`
	BufferDays *int       `yaml:"buffer_days"`
	Dates      []Blackout `yaml:"dates"`
}

// StadiumClosure blocks a stadium for the closed interval [StartDate, EndDate].
type StadiumClosure struct {
	Stadium     string `yaml:"stadium"`
	StartDate   Date   `yaml:"start_date"`
	EndDate     Date   `yaml:"end_date"`
	Alternative string `yaml:"alternative"`
	Reason      string `yaml:"reason"`
}

// Covers reports whether d falls inside the closure, inclusive on both ends.
func (c StadiumClosure) Covers(d time.Time) bool {
	return !d.Before(c.StartDate.Time) && !d.After(c.EndDate.Time)
}

type PrayerTable struct {
	Fajr    string `yaml:"fajr"`
	Dhuhr   string `yaml:"dhuhr"`
	Asr     string `yaml:"asr"`
	Maghrib string `yaml:"maghrib"`
	Isha    string `yaml:"isha"`
}

func (p PrayerTable) clocks() []string {
	return []string{p.Fajr, p.Dhuhr, p.Asr, p.Maghrib, p.Isha}
}

type Prayer struct {
	APIURL              string                 `yaml:"api_url"`
	Method              int                    `yaml:"method"`
	Country             string                 `yaml:"country"`
	Timeout             time.Duration          `yaml:"timeout"`
	RequestsPerMinute   int                    `yaml:"requests_per_minute"`
	DefaultCity         string                 `yaml:"default_city"`
	Cities              []string               `yaml:"cities"`
	CityAliases         map[string]string      `yaml:"city_aliases"`
	PrePrayerGapMinutes int                    `yaml:"pre_prayer_gap_minutes"`
	MatchMinutes        int                    `yaml:"match_minutes"`
	HalftimeStart       int                    `yaml:"halftime_start"`
	HalftimeEnd         int                    `yaml:"halftime_end"`
	MandatorySlots      []string               `yaml:"mandatory_slots"`
	MaxCandidates       int                    `yaml:"max_candidates"`
	CacheSize           int                    `yaml:"cache_size"`
	LookaheadDays       int                    `yaml:"lookahead_days"`
	Fallback            map[string]PrayerTable `yaml:"fallback"`
}

type Range struct {
	Min int `yaml:"min"`
	Max int `yaml:"max"`
}

type Server struct {
	Addr              string        `yaml:"addr"`
	CORSAllowOrigins  []string      `yaml:"cors_allow_origins"`
	RateLimitRequests int           `yaml:"rate_limit_requests"`
	RateLimitWindow   time.Duration `yaml:"rate_limit_window"`
}

type Config struct {
	Season             Season           `yaml:"season"`
	FixturesFile       string           `yaml:"fixtures_file"`
	Teams              []Team           `yaml:"teams"`
	BlackoutBufferDays *int             `yaml:"blackout_buffer_days"`
	TeamBlackouts      []TeamBlackouts  `yaml:"team_blackouts"`
	StadiumClosures    []StadiumClosure `yaml:"stadium_closures"`
	Prayer             Prayer           `yaml:"prayer"`
	Attendance         Range            `yaml:"attendance"`
	Profit             Range            `yaml:"profit"`
	Server             Server           `yaml:"server"`
	LogLevel           string           `yaml:"log_level"`

	// DatabaseURL is only read from the environment.
	DatabaseURL string `yaml:"-"`
}

const defaultBufferDays = 2

// BufferDays returns the buffer radius for a team's blackouts: its own
// buffer_days, else the season-wide radius.
func (c *Config) BufferDays(tb TeamBlackouts) int {
	if tb.BufferDays != nil {
		return *tb.BufferDays
	}
	if c.BlackoutBufferDays != nil {
		return *c.BlackoutBufferDays
	}
	return defaultBufferDays
}

// AllTeams returns all team names in declaration order.
func (c *Config) AllTeams() []string {
	teams := make([]string, 0, len(c.Teams))
	for _, t := range c.Teams {
		teams = append(teams, t.Name)
	}
	return teams
}

// Weeks returns the generation range as an ascending list.
func (c *Config) Weeks() []int {
	var weeks []int
	for w := c.Season.FirstWeek; w <= c.Season.LastWeek; w++ {
		weeks = append(weeks, w)
	}
	return weeks
}

// Anchors returns week → anchor date.
func (c *Config) Anchors() map[int]time.Time {
	anchors := make(map[int]time.Time, len(c.Season.WeekAnchors))
	for w, d := range c.Season.WeekAnchors {
		anchors[w] = d.Time
	}
	return anchors
}

// LoadFromBytes parses YAML bytes into a Config, applies defaults and validates it.
func LoadFromBytes(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadFromFile reads and parses a YAML config file.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	return LoadFromBytes(data)
}

// ApplyEnv overlays environment variables on top of the file configuration
// and validates the result. Values that fail to parse are ignored.
func (c *Config) ApplyEnv() error {
	c.Prayer.APIURL = envOr("KICKOFF_PRAYER_API_URL", c.Prayer.APIURL)
	if v := os.Getenv("KICKOFF_PRAYER_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.Prayer.Timeout = d
		}
	}
	c.Season.DayQuota = envInt("KICKOFF_DAY_QUOTA", c.Season.DayQuota)
	c.LogLevel = envOr("KICKOFF_LOG_LEVEL", c.LogLevel)
	c.Server.Addr = envOr("KICKOFF_ADDR", c.Server.Addr)
	c.DatabaseURL = envOr("DATABASE_URL", c.DatabaseURL)
	if err := c.validate(); err != nil {
		return fmt.Errorf("environment overrides: %w", err)
	}
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func (c *Config) applyDefaults() {
	s := &c.Season
	if s.FirstWeek == 0 && s.LastWeek == 0 && len(s.WeekAnchors) > 0 {
		weeks := make([]int, 0, len(s.WeekAnchors))
		for w := range s.WeekAnchors {
			weeks = append(weeks, w)
		}
		sort.Ints(weeks)
		s.FirstWeek, s.LastWeek = weeks[0], weeks[len(weeks)-1]
	}
	if s.WindowDays == 0 {
		s.WindowDays = 3
	}
	if s.DayQuota == 0 {
		s.DayQuota = 3
	}
	if s.ScenarioCap == 0 {
		s.ScenarioCap = 9
	}
	if c.BlackoutBufferDays == nil {
		radius := defaultBufferDays
		c.BlackoutBufferDays = &radius
	}

	p := &c.Prayer
	if p.APIURL == "" {
		p.APIURL = "http://api.aladhan.com/v1"
	}
	if p.Method == 0 {
		p.Method = 4 // Umm Al-Qura
	}
	if p.Country == "" {
		p.Country = "Saudi Arabia"
	}
	if p.Timeout == 0 {
		p.Timeout = 10 * time.Second
	}
	if p.RequestsPerMinute == 0 {
		p.RequestsPerMinute = 60
	}
	if p.DefaultCity == "" {
		p.DefaultCity = "Riyadh"
	}
	if p.PrePrayerGapMinutes == 0 {
		p.PrePrayerGapMinutes = 48
	}
	if p.MatchMinutes == 0 {
		p.MatchMinutes = 120
	}
	if p.HalftimeStart == 0 && p.HalftimeEnd == 0 {
		p.HalftimeStart, p.HalftimeEnd = 45, 75
	}
	if p.MandatorySlots == nil {
		p.MandatorySlots = []string{"20:30", "21:00"}
	}
	if p.MaxCandidates == 0 {
		p.MaxCandidates = 4
	}
	if p.CacheSize == 0 {
		p.CacheSize = 1024
	}
	if p.LookaheadDays == 0 {
		p.LookaheadDays = 365
	}

	if c.Attendance == (Range{}) {
		c.Attendance = Range{Min: 40, Max: 95}
	}
	if c.Profit == (Range{}) {
		c.Profit = Range{Min: 3000, Max: 10000}
	}

	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Server.RateLimitRequests == 0 {
		c.Server.RateLimitRequests = 100
	}
	if c.Server.RateLimitWindow == 0 {
		c.Server.RateLimitWindow = time.Minute
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}

func (c *Config) validate() error {
	s := c.Season
	if s.LastWeek < s.FirstWeek {
		return fmt.Errorf("last_week %d must not be before first_week %d", s.LastWeek, s.FirstWeek)
	}
	if s.WindowDays < 1 || s.DayQuota < 1 || s.ScenarioCap < 1 {
		return fmt.Errorf("window_days, day_quota and scenario_cap must all be at least 1")
	}

	if c.BlackoutBufferDays != nil && *c.BlackoutBufferDays < 0 {
		return fmt.Errorf("blackout_buffer_days must not be negative")
	}

	if len(c.Teams) == 0 {
		return fmt.Errorf("at least one team is required")
	}

	// Team names and aliases share one namespace
	seen := make(map[string]string)
	for _, t := range c.Teams {
		if t.Name == "" {
			return fmt.Errorf("team with empty name")
		}
		for _, n := range append([]string{t.Name}, t.Aliases...) {
			key := strings.ToLower(n)
			if prev, ok := seen[key]; ok {
				return fmt.Errorf("team name %q is used by both %q and %q", n, prev, t.Name)
			}
			seen[key] = t.Name
		}
	}

	for _, tb := range c.TeamBlackouts {
		if _, ok := seen[strings.ToLower(tb.Team)]; !ok {
			return fmt.Errorf("team_blackouts: unknown team %q", tb.Team)
		}
		if tb.BufferDays != nil && *tb.BufferDays < 0 {
			return fmt.Errorf("team_blackouts: %s buffer_days must not be negative", tb.Team)
		}
	}

	for _, sc := range c.StadiumClosures {
		if sc.Stadium == "" {
			return fmt.Errorf("stadium_closures: closure with empty stadium")
		}
		if sc.EndDate.Time.Before(sc.StartDate.Time) {
			return fmt.Errorf("stadium_closures: %q end_date must be on or after start_date", sc.Stadium)
		}
	}

	p := c.Prayer
	if p.HalftimeStart < 0 || p.HalftimeEnd < p.HalftimeStart || p.HalftimeEnd > p.MatchMinutes {
		return fmt.Errorf("prayer: halftime window %d-%d does not fit a %d minute match",
			p.HalftimeStart, p.HalftimeEnd, p.MatchMinutes)
	}
	for _, slot := range p.MandatorySlots {
		if !validClock(slot) {
			return fmt.Errorf("prayer: invalid mandatory slot %q", slot)
		}
	}
	for city, table := range p.Fallback {
		for _, v := range table.clocks() {
			if !validClock(v) {
				return fmt.Errorf("prayer: fallback for %s has invalid time %q", city, v)
			}
		}
	}

	if c.Attendance.Max < c.Attendance.Min || c.Profit.Max < c.Profit.Min {
		return fmt.Errorf("attendance and profit ranges must have max >= min")
	}

	return nil
}

func validClock(s string) bool {
	t, err := time.Parse("15:04", s)
	return err == nil && t.Format("15:04") == s
}
