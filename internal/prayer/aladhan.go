package prayer

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kickoff-planner/kickoff/internal/config"
	"github.com/kickoff-planner/kickoff/internal/logging"
)

// AladhanClient is an Oracle backed by the Aladhan timingsByCity endpoint.
type AladhanClient struct {
	httpClient *http.Client
	baseURL    string
	country    string
	method     int
	lookahead  int
	limiter    *rate.Limiter
	logger     *zap.Logger

	now func() time.Time
}

// NewAladhanClient creates a rate limited client with the configured timeout.
func NewAladhanClient(cfg config.Prayer, logger *zap.Logger) *AladhanClient {
	rps := float64(cfg.RequestsPerMinute) / 60.0
	return &AladhanClient{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		baseURL:    strings.TrimRight(cfg.APIURL, "/"),
		country:    cfg.Country,
		method:     cfg.Method,
		lookahead:  cfg.LookaheadDays,
		limiter:    rate.NewLimiter(rate.Limit(rps), 1),
		logger:     logging.OrNop(logger),
		now:        time.Now,
	}
}

type timingsResponse struct {
	Code int `json:"code"`
	Data struct {
		Timings map[string]string `json:"timings"`
	} `json:"data"`
}

// Times fetches the prayer times for city on date. Dates further ahead than
// the configured lookahead return ErrUnsupportedDate without a request.
func (c *AladhanClient) Times(ctx context.Context, city string, date time.Time) (Times, error) {
	if c.lookahead > 0 && date.After(c.now().AddDate(0, 0, c.lookahead)) {
		return Times{}, fmt.Errorf("%w: %s is more than %d days ahead", ErrUnsupportedDate, date.Format(dateLayout), c.lookahead)
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return Times{}, fmt.Errorf("rate limit wait: %w", err)
	}

	params := url.Values{}
	params.Set("city", city)
	params.Set("country", c.country)
	params.Set("method", strconv.Itoa(c.method))
	u := fmt.Sprintf("%s/timingsByCity/%s?%s", c.baseURL, date.Format("02-01-2006"), params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return Times{}, fmt.Errorf("create request: %w", err)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Times{}, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Times{}, fmt.Errorf("read response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return Times{}, fmt.Errorf("aladhan returned %d: %s", resp.StatusCode, truncate(body, 200))
	}

	var result timingsResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return Times{}, fmt.Errorf("decode response: %w", err)
	}

	timings := result.Data.Timings
	t := Times{
		Fajr:    normalizeTiming(timings["Fajr"]),
		Dhuhr:   normalizeTiming(timings["Dhuhr"]),
		Asr:     normalizeTiming(timings["Asr"]),
		Maghrib: normalizeTiming(timings["Maghrib"]),
		Isha:    normalizeTiming(timings["Isha"]),
	}
	if err := t.validate(); err != nil {
		return Times{}, fmt.Errorf("malformed timings: %w", err)
	}

	c.logger.Debug("aladhan.Times fetched",
		zap.String("city", city),
		zap.String("date", date.Format(dateLayout)),
		zap.Duration("elapsed", time.Since(start)),
	)
	return t, nil
}

// normalizeTiming strips timezone suffixes such as "17:23 (+03)".
func normalizeTiming(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, ' '); i >= 0 {
		s = s[:i]
	}
	return s
}

func truncate(b []byte, maxLen int) string {
	if len(b) <= maxLen {
		return string(b)
	}
	return string(b[:maxLen]) + "..."
}
