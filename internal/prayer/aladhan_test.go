package prayer

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/kickoff-planner/kickoff/internal/config"
)

const aladhanBody = `{
  "code": 200,
  "status": "OK",
  "data": {
    "timings": {
      "Fajr": "04:38 (+03)",
      "Sunrise": "05:55 (+03)",
      "Dhuhr": "11:40 (+03)",
      "Asr": "14:58 (+03)",
      "Sunset": "17:23 (+03)",
      "Maghrib": "17:23 (+03)",
      "Isha": "18:53 (+03)"
    }
  }
}`

func newTestClient(t *testing.T, url string) *AladhanClient {
	t.Helper()
	c := NewAladhanClient(config.Prayer{
		APIURL:            url,
		Method:            4,
		Country:           "Saudi Arabia",
		Timeout:           2 * time.Second,
		RequestsPerMinute: 6000,
		LookaheadDays:     365,
	}, zaptest.NewLogger(t))
	c.now = func() time.Time { return date(2025, 9, 1) }
	return c
}

func TestAladhanClient(t *testing.T) {
	t.Run("fetches and normalizes timings", func(t *testing.T) {
		var gotPath, gotCity, gotCountry, gotMethod string
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotPath = r.URL.Path
			gotCity = r.URL.Query().Get("city")
			gotCountry = r.URL.Query().Get("country")
			gotMethod = r.URL.Query().Get("method")
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(aladhanBody))
		}))
		defer srv.Close()

		c := newTestClient(t, srv.URL+"/v1/")
		got, err := c.Times(context.Background(), "Riyadh", date(2025, 10, 30))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		want := Times{Fajr: "04:38", Dhuhr: "11:40", Asr: "14:58", Maghrib: "17:23", Isha: "18:53"}
		if got != want {
			t.Errorf("times = %+v, want %+v", got, want)
		}
		if gotPath != "/v1/timingsByCity/30-10-2025" {
			t.Errorf("path = %q", gotPath)
		}
		if gotCity != "Riyadh" || gotCountry != "Saudi Arabia" || gotMethod != "4" {
			t.Errorf("query = city %q country %q method %q", gotCity, gotCountry, gotMethod)
		}
	})

	t.Run("non-200 is an error", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "upstream down", http.StatusBadGateway)
		}))
		defer srv.Close()

		_, err := newTestClient(t, srv.URL).Times(context.Background(), "Riyadh", date(2025, 10, 30))
		if err == nil || !strings.Contains(err.Error(), "502") {
			t.Errorf("error = %v, want 502", err)
		}
	})

	t.Run("malformed timings are an error", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"code":200,"data":{"timings":{"Fajr":"04:38","Dhuhr":"11:40","Asr":"late","Maghrib":"17:23","Isha":"18:53"}}}`))
		}))
		defer srv.Close()

		_, err := newTestClient(t, srv.URL).Times(context.Background(), "Riyadh", date(2025, 10, 30))
		if err == nil || !strings.Contains(err.Error(), "malformed") {
			t.Errorf("error = %v, want malformed timings", err)
		}
	})

	t.Run("dates beyond lookahead skip the request", func(t *testing.T) {
		requests := 0
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requests++
			w.Write([]byte(aladhanBody))
		}))
		defer srv.Close()

		_, err := newTestClient(t, srv.URL).Times(context.Background(), "Riyadh", date(2026, 10, 1))
		if !errors.Is(err, ErrUnsupportedDate) {
			t.Errorf("error = %v, want ErrUnsupportedDate", err)
		}
		if requests != 0 {
			t.Errorf("requests = %d, want 0", requests)
		}
	})

	t.Run("timeout is an error", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-r.Context().Done():
			case <-time.After(time.Second):
			}
		}))
		defer srv.Close()

		c := newTestClient(t, srv.URL)
		c.httpClient.Timeout = 50 * time.Millisecond
		if _, err := c.Times(context.Background(), "Riyadh", date(2025, 10, 30)); err == nil {
			t.Error("expected timeout error")
		}
	})
}
