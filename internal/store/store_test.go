package store

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/kickoff-planner/kickoff/internal/schedule"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	url := os.Getenv("KICKOFF_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("KICKOFF_TEST_DATABASE_URL not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	s, err := Open(ctx, url)
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	t.Cleanup(s.Close)
	if err := s.EnsureSchema(ctx); err != nil {
		t.Fatalf("EnsureSchema() error: %v", err)
	}
	return s
}

func TestOpenInvalidURL(t *testing.T) {
	if _, err := Open(context.Background(), "postgres://%zz"); err == nil {
		t.Error("expected parse error")
	}
}

func TestSaveSchedule(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	id := uuid.New()

	rows := []schedule.ExportRow{
		{Week: 7, Home: "Al-Hilal", Away: "Al-Nassr", Date: time.Date(2025, 10, 30, 0, 0, 0, 0, time.UTC),
			Time: "20:30", Stadium: "Kingdom Arena", City: "Riyadh", Maghrib: "17:30", Isha: "19:00"},
		{Week: 7, Home: "Al-Ittihad", Away: "Al-Ahli", Date: time.Date(2025, 10, 31, 0, 0, 0, 0, time.UTC),
			Time: "21:00", Stadium: "King Abdullah Sports City Stadium (The Jewel)", City: "Jeddah"},
	}
	if err := s.SaveSchedule(ctx, id, rows); err != nil {
		t.Fatalf("SaveSchedule() error: %v", err)
	}
	if n, err := s.SavedRows(ctx, id); err != nil || n != 2 {
		t.Fatalf("SavedRows() = %d, %v", n, err)
	}

	t.Run("replaces previous rows", func(t *testing.T) {
		if err := s.SaveSchedule(ctx, id, rows[:1]); err != nil {
			t.Fatalf("SaveSchedule() error: %v", err)
		}
		if n, _ := s.SavedRows(ctx, id); n != 1 {
			t.Errorf("SavedRows() = %d, want 1", n)
		}
	})
}
