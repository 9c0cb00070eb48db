package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kickoff-planner/kickoff/internal/api"
	"github.com/kickoff-planner/kickoff/internal/availability"
	"github.com/kickoff-planner/kickoff/internal/config"
	"github.com/kickoff-planner/kickoff/internal/excel"
	"github.com/kickoff-planner/kickoff/internal/fixtures"
	"github.com/kickoff-planner/kickoff/internal/logging"
	"github.com/kickoff-planner/kickoff/internal/prayer"
	"github.com/kickoff-planner/kickoff/internal/schedule"
	"github.com/kickoff-planner/kickoff/internal/store"
	"github.com/kickoff-planner/kickoff/internal/validator"
)

const defaultConfigFile = "config.yaml"

func resolveConfigPath(configFlag string) (string, error) {
	if configFlag != "" {
		return configFlag, nil
	}
	if _, err := os.Stat(defaultConfigFile); err == nil {
		return defaultConfigFile, nil
	}
	return "", fmt.Errorf("no config file found. Either create %s in the current directory or pass --config", defaultConfigFile)
}

type generateOptions struct {
	output      string
	fixtures    string
	autoCommit  bool
	offline     bool
	databaseURL string
}

func main() {
	_ = godotenv.Load(".env")

	rootCmd := &cobra.Command{
		Use:   "kickoff",
		Short: "Saudi league fixture scenario planner",
	}

	var configFile string
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Path to config file (default: config.yaml in current directory)")

	var initOutputPath string
	initCmd := &cobra.Command{
		Use:          "init",
		Short:        "Create a starter config.yaml in the current directory",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInit(initOutputPath)
		},
	}
	initCmd.Flags().StringVarP(&initOutputPath, "output", "o", defaultConfigFile, "Output path for the config file")

	scheduleCmd := &cobra.Command{
		Use:   "schedule",
		Short: "Generate and validate schedules",
	}

	var gen generateOptions
	generateCmd := &cobra.Command{
		Use:          "generate",
		Short:        "Generate kickoff scenarios for the configured weeks",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configFile)
			if err != nil {
				return err
			}
			return runGenerate(cmd.Context(), cfg, gen)
		},
	}
	generateCmd.Flags().StringVarP(&gen.output, "output", "o", "schedule.xlsx", "Output Excel file path")
	generateCmd.Flags().StringVar(&gen.fixtures, "fixtures", "", "Fixture list (.yaml or .xlsx), overrides fixtures_file")
	generateCmd.Flags().BoolVar(&gen.autoCommit, "auto-commit", false, "Commit the earliest acceptable scenario of every fixture")
	generateCmd.Flags().BoolVar(&gen.offline, "offline", false, "Use the fallback prayer tables only")
	generateCmd.Flags().StringVar(&gen.databaseURL, "database-url", "", "Postgres URL to save the committed schedule to (default: DATABASE_URL)")

	validateCmd := &cobra.Command{
		Use:          "validate <schedule.xlsx>",
		Short:        "Validate an edited schedule against the config rules",
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configFile)
			if err != nil {
				return err
			}
			return runValidate(cfg, args[0])
		},
	}
	scheduleCmd.AddCommand(generateCmd, validateCmd)

	var kickoffCity, kickoffDate string
	var kickoffOffline bool
	kickoffsCmd := &cobra.Command{
		Use:          "kickoffs",
		Short:        "Show prayer times and kickoff candidates for a city and date",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configFile)
			if err != nil {
				return err
			}
			return runKickoffs(cmd.Context(), cfg, kickoffCity, kickoffDate, kickoffOffline)
		},
	}
	kickoffsCmd.Flags().StringVar(&kickoffCity, "city", "", "City (default: prayer.default_city)")
	kickoffsCmd.Flags().StringVar(&kickoffDate, "date", "", "Date as YYYY-MM-DD")
	kickoffsCmd.Flags().BoolVar(&kickoffOffline, "offline", false, "Use the fallback prayer tables only")
	kickoffsCmd.MarkFlagRequired("date")

	var addr string
	serveCmd := &cobra.Command{
		Use:          "serve",
		Short:        "Run the planning API",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configFile)
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Server.Addr = addr
			}
			return runServe(cmd.Context(), cfg)
		},
	}
	serveCmd.Flags().StringVar(&addr, "addr", "", "Listen address (default: server.addr)")

	rootCmd.AddCommand(initCmd, scheduleCmd, kickoffsCmd, serveCmd)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func loadConfig(configFlag string) (*config.Config, error) {
	path, err := resolveConfigPath(configFlag)
	if err != nil {
		return nil, err
	}
	cfg, err := config.LoadFromFile(path)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func runInit(outputPath string) error {
	if _, err := os.Stat(outputPath); err == nil {
		return fmt.Errorf("%s already exists; remove it first or use -o to write elsewhere", outputPath)
	}

	if err := os.WriteFile(outputPath, []byte(configTemplate), 0644); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}

	fmt.Printf("✓ Created %s\n", outputPath)
	return nil
}

const configTemplate = `# Kickoff Planner Season Configuration
# ===================================
# This file defines the league, its constraints and how kickoff scenarios
# are generated.

# Season defines which fixture weeks are planned and how.
season:
  first_week: 7
  last_week: 8

  # Anchor dates place each week on the calendar. Scenarios are generated
  # on window_days consecutive days starting at the anchor.
  week_anchors:
    7: "2025-10-30"
    8: "2025-11-06"
  window_days: 3

  # No more than day_quota matches may be committed on one date.
  day_quota: 3

  # Each fixture keeps at most scenario_cap scenarios.
  scenario_cap: 9

  # When a commit fills a day, drop the other open scenarios on that date.
  # Off by default: full days stay visible and further commits on them are
  # rejected instead. Turn it on to match the planning sheet, which always
  # pruned full days.
  prune_full_days: false

  # Seed for attendance and profit placeholders. Same seed, same numbers.
  seed: 42

# Fixture list: YAML ("weeks: {7: [[Home, Away], ...]}") or an Excel sheet
# with WEEK, HOME TEAM and AWAY TEAM columns.
fixtures_file: fixtures.yaml

# Teams. Names and aliases are matched case-insensitively when reading the
# fixture list.
teams:
  - name: Al-Hilal
    city: Riyadh
    stadium: Kingdom Arena
    capacity: 26000
    aliases: [Hilal]
  - name: Al-Nassr
    city: Riyadh
    stadium: Al-Awwal Park
    capacity: 25000
    aliases: [Nassr]
  - name: Al-Ittihad
    city: Jeddah
    stadium: King Abdullah Sports City Stadium (The Jewel)
    capacity: 62000
    alternate_stadiums: [Prince Abdullah Al-Faisal Stadium]
    aliases: [Ittihad]
  - name: Al-Ahli
    city: Jeddah
    stadium: Prince Abdullah Al-Faisal Stadium
    capacity: 27000
    aliases: [Ahli]

# Days either side of a blackout on which the team cannot play.
blackout_buffer_days: 2

# Team blackouts: dates a team is committed elsewhere (continental fixtures,
# cup ties). buffer_days overrides blackout_buffer_days for the team;
# buffer_dates lists the blocked days explicitly for one blackout.
team_blackouts:
  - team: Al-Hilal
    dates:
      - date: "2025-10-28"
        reason: "AFC Champions League"
  - team: Al-Ittihad
    buffer_days: 1
    dates:
      - date: "2025-11-04"
        reason: "King's Cup"

# Stadium closures block a venue for an inclusive date range. Matches in the
# window move to the alternative.
stadium_closures:
  - stadium: King Abdullah Sports City Stadium (The Jewel)
    start_date: "2025-12-01"
    end_date: "2025-12-31"
    alternative: Prince Abdullah Al-Faisal Stadium
    reason: Renovation

# Prayer-aware kickoff times. Times come from the Aladhan API and fall back
# to the tables below when it cannot answer.
prayer:
  api_url: http://api.aladhan.com/v1
  method: 4              # Umm Al-Qura
  timeout: 10s
  requests_per_minute: 60
  default_city: Riyadh
  city_aliases:
    Dammam: Khobar
  pre_prayer_gap_minutes: 48
  match_minutes: 120
  halftime_start: 45
  halftime_end: 75
  mandatory_slots: ["20:30", "21:00"]
  max_candidates: 4
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

# Placeholder ranges for scenario attendance (percent) and profit.
attendance: {min: 40, max: 95}
profit: {min: 3000, max: 10000}

# HTTP API settings for "kickoff serve".
server:
  addr: ":8080"
  cors_allow_origins: ["*"]
  rate_limit_requests: 100
  rate_limit_window: 1m

log_level: info
`

func newCalculator(cfg *config.Config, offline bool, logger *zap.Logger) (*prayer.Calculator, error) {
	var oracle prayer.Oracle
	if !offline {
		oracle = prayer.NewAladhanClient(cfg.Prayer, logger)
	}
	return prayer.NewCalculator(cfg, oracle, logger)
}

func runGenerate(ctx context.Context, cfg *config.Config, opts generateOptions) error {
	logger, err := logging.New(cfg.LogLevel, "console")
	if err != nil {
		return err
	}
	defer logger.Sync()

	if opts.fixtures != "" {
		cfg.FixturesFile = opts.fixtures
	}
	loader, err := fixtures.NewLoader(cfg.Teams, 1, logger)
	if err != nil {
		return err
	}
	list, err := loader.Load(cfg.FixturesFile)
	if err != nil {
		return fmt.Errorf("loading fixtures: %w", err)
	}

	calc, err := newCalculator(cfg, opts.offline, logger)
	if err != nil {
		return err
	}

	s := schedule.NewSession(cfg.Season, logger)
	g := schedule.NewGenerator(cfg, availability.New(cfg), calc, logger)

	fmt.Printf("Generating scenarios for weeks %d-%d...\n", cfg.Season.FirstWeek, cfg.Season.LastWeek)
	report, err := g.Generate(ctx, s, list)
	if err != nil {
		return fmt.Errorf("generating scenarios: %w", err)
	}
	fmt.Printf("✓ %d fixtures in %d weeks, %d scenarios (%d available)\n",
		report.Matches, report.Weeks, report.Scenarios, report.Available)

	if len(report.Warnings) > 0 {
		fmt.Printf("\nWarnings (%d):\n", len(report.Warnings))
		for _, w := range report.Warnings {
			fmt.Printf("  ⚠ %s\n", w)
		}
	}

	uncommitted := 0
	if opts.autoCommit {
		fmt.Println("\nAuto-commit:")
		for _, week := range s.Weeks() {
			for _, o := range s.AutoCommit(week) {
				if !o.Committed {
					uncommitted++
					fmt.Printf("  ✗ Week %d %s vs %s: %s\n", week, o.Home, o.Away, o.Reason)
					continue
				}
				fmt.Printf("  ✓ Week %d %s vs %s: %s %s at %s\n", week, o.Home, o.Away,
					o.Scenario.Date.Format("Mon 2006-01-02"), o.Scenario.Time, o.Scenario.Stadium)
				for _, w := range o.Warnings {
					fmt.Printf("    ⚠ %s\n", w)
				}
			}
		}
	}

	fmt.Println("\nDays:")
	fmt.Printf("  %-6s %-12s %9s\n", "Week", "Date", "Committed")
	for _, week := range s.Weeks() {
		for _, d := range s.WeekSummary(week).Days {
			fmt.Printf("  %-6d %-12s %5d/%d\n", week, d.Date.Format("2006-01-02"), d.Committed, d.Quota)
		}
	}

	rows := s.Export(ctx, calc)
	f, err := excel.Generate(cfg.AllTeams(), rows, s.Open())
	if err != nil {
		return fmt.Errorf("generating Excel: %w", err)
	}
	if err := f.SaveAs(opts.output); err != nil {
		return fmt.Errorf("saving file: %w", err)
	}
	fmt.Printf("\n✓ Schedule saved to %s\n", opts.output)

	dbURL := opts.databaseURL
	if dbURL == "" {
		dbURL = cfg.DatabaseURL
	}
	if dbURL != "" {
		st, err := store.Open(ctx, dbURL)
		if err != nil {
			return err
		}
		defer st.Close()
		if err := st.EnsureSchema(ctx); err != nil {
			return err
		}
		if err := st.SaveSchedule(ctx, s.ID(), rows); err != nil {
			return fmt.Errorf("saving schedule: %w", err)
		}
		saved, err := st.SavedRows(ctx, s.ID())
		if err != nil {
			return fmt.Errorf("checking saved schedule: %w", err)
		}
		if saved != len(rows) {
			return fmt.Errorf("saved %d of %d matches for session %s", saved, len(rows), s.ID())
		}
		fmt.Printf("✓ %d matches saved to the database as session %s\n", saved, s.ID())
	}

	if uncommitted > 0 {
		return fmt.Errorf("schedule is incomplete: %d fixtures could not be committed", uncommitted)
	}
	return nil
}

func runValidate(cfg *config.Config, schedulePath string) error {
	violations, err := validator.Validate(cfg, schedulePath)
	if err != nil {
		return fmt.Errorf("validating: %w", err)
	}

	errors := 0
	warnings := 0
	for _, v := range violations {
		switch v.Type {
		case "error":
			errors++
			fmt.Printf("✗ Row %d: %s\n", v.Row, v.Message)
		case "warning":
			warnings++
			fmt.Printf("⚠ Row %d: %s\n", v.Row, v.Message)
		}
	}

	fmt.Printf("\nValidation complete: %d rule violations, %d warnings\n", errors, warnings)

	// Regenerate team sheets from master schedule
	if err := excel.UpdateTeamSheets(schedulePath, cfg.AllTeams()); err != nil {
		return fmt.Errorf("updating team sheets: %w", err)
	}
	fmt.Printf("✓ Team sheets updated in %s\n", schedulePath)

	if errors > 0 {
		return fmt.Errorf("%d constraint violations found", errors)
	}
	return nil
}

func runKickoffs(ctx context.Context, cfg *config.Config, city, date string, offline bool) error {
	d, err := time.Parse("2006-01-02", date)
	if err != nil {
		return fmt.Errorf("invalid date %q: want YYYY-MM-DD", date)
	}
	if city == "" {
		city = cfg.Prayer.DefaultCity
	}
	calc, err := newCalculator(cfg, offline, nil)
	if err != nil {
		return err
	}

	c, err := calc.KickoffCandidates(ctx, city, d)
	if c.Warning != "" {
		fmt.Printf("⚠ %s\n", c.Warning)
	}
	if err != nil {
		return err
	}

	fmt.Printf("%s, %s (%s)\n", c.City, d.Format("Mon 2006-01-02"), c.Source)
	fmt.Printf("  Fajr %s  Dhuhr %s  Asr %s  Maghrib %s  Isha %s\n",
		c.Times.Fajr, c.Times.Dhuhr, c.Times.Asr, c.Times.Maghrib, c.Times.Isha)
	fmt.Println("\nKickoffs:")
	for _, k := range c.Kickoffs {
		var notes []string
		if k.Mandatory {
			notes = append(notes, "mandatory")
		}
		if k.Prayer != "" {
			notes = append(notes, "after "+k.Prayer)
		}
		if k.Note != "" {
			notes = append(notes, k.Note)
		}
		fmt.Printf("  %s  %s\n", k.Time, strings.Join(notes, ", "))
	}
	return nil
}

func runServe(ctx context.Context, cfg *config.Config) error {
	logger, err := logging.New(cfg.LogLevel, "json")
	if err != nil {
		return err
	}
	defer logger.Sync()

	calc, err := newCalculator(cfg, false, logger)
	if err != nil {
		return err
	}
	loader, err := fixtures.NewLoader(cfg.Teams, 8, logger)
	if err != nil {
		return err
	}

	srv := api.NewServer(api.Deps{
		Config:       cfg,
		Availability: availability.New(cfg),
		Prayer:       calc,
		Fixtures:     loader,
		Sessions:     api.NewRegistry(),
		Logger:       logger,
	})

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Starting kickoff API", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
	case <-ctx.Done():
	}
	logger.Info("Shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	logger.Info("Server stopped")
	return nil
}
