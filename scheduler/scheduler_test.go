package scheduler

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func newScheduler(t *testing.T, tz string) *Scheduler {
	t.Helper()
	s, err := NewScheduler(tz, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewScheduler failed: %v", err)
	}
	t.Cleanup(func() { s.Stop() })
	return s
}

func TestNewScheduler(t *testing.T) {
	s := newScheduler(t, "Asia/Tokyo")
	if s.location.String() != "Asia/Tokyo" {
		t.Errorf("location = %q, want 'Asia/Tokyo'", s.location.String())
	}
}

func TestNewSchedulerInvalidTimezone(t *testing.T) {
	_, err := NewScheduler("Invalid/Zone", zerolog.Nop())
	if err == nil {
		t.Fatal("expected error for invalid timezone")
	}
}

func TestScheduleNamedJobs(t *testing.T) {
	s := newScheduler(t, "UTC")

	if err := s.Schedule("curation", "08:00", func() {}); err != nil {
		t.Fatalf("Schedule curation failed: %v", err)
	}
	if err := s.Schedule("learning", "30 7 * * *", func() {}); err != nil {
		t.Fatalf("Schedule learning failed: %v", err)
	}
	s.Start()

	if n := len(s.cron.Entries()); n != 2 {
		t.Errorf("expected 2 cron entries, got %d", n)
	}

	next, ok := s.Next("curation")
	if !ok {
		t.Fatal("no next run for curation")
	}
	if next.Hour() != 8 || next.Minute() != 0 {
		t.Errorf("next curation = %v, want 08:00", next)
	}
	if _, ok := s.Next("unknown"); ok {
		t.Error("unknown job reported a next run")
	}
}

func TestScheduleUsesLocation(t *testing.T) {
	s := newScheduler(t, "Asia/Tokyo")
	if err := s.Schedule("curation", "08:00", func() {}); err != nil {
		t.Fatal(err)
	}

	next, ok := s.Next("curation")
	if !ok {
		t.Fatal("no next run")
	}
	if got := next.UTC().Hour(); got != 23 {
		t.Errorf("08:00 JST = %02d:00 UTC, want 23:00", got)
	}
}

func TestScheduleInvalid(t *testing.T) {
	s := newScheduler(t, "UTC")

	tests := []string{
		"invalid",
		"25:00",
		"12:60",
		"9:00",
		"* * *",
	}

	for _, tt := range tests {
		if err := s.Schedule("job", tt, func() {}); err == nil {
			t.Errorf("expected error for invalid schedule %q", tt)
		}
	}
}

func TestParseTime(t *testing.T) {
	tests := []struct {
		input   string
		hour    int
		minute  int
		wantErr bool
	}{
		{"09:00", 9, 0, false},
		{"00:00", 0, 0, false},
		{"23:59", 23, 59, false},
		{"25:00", 0, 0, true},
		{"12:60", 0, 0, true},
		{"invalid", 0, 0, true},
	}

	for _, tt := range tests {
		hour, minute, err := parseTime(tt.input)
		if tt.wantErr {
			if err == nil {
				t.Errorf("parseTime(%q) should return error", tt.input)
			}
			continue
		}
		if err != nil {
			t.Errorf("parseTime(%q) unexpected error: %v", tt.input, err)
		}
		if hour != tt.hour || minute != tt.minute {
			t.Errorf("parseTime(%q) = (%d, %d), want (%d, %d)", tt.input, hour, minute, tt.hour, tt.minute)
		}
	}
}

func TestRescheduleReplacesJob(t *testing.T) {
	s := newScheduler(t, "UTC")
	fn := func() {}

	if err := s.Schedule("curation", "12:00", fn); err != nil {
		t.Fatalf("initial Schedule failed: %v", err)
	}
	if err := s.Schedule("curation", "14:00", fn); err != nil {
		t.Fatalf("reschedule failed: %v", err)
	}

	if len(s.cron.Entries()) != 1 {
		t.Error("expected 1 entry after reschedule")
	}
	next, _ := s.Next("curation")
	if next.Hour() != 14 {
		t.Errorf("next run hour = %d, want 14", next.Hour())
	}
}

func TestStopWaitsForJobs(t *testing.T) {
	s := newScheduler(t, "UTC")
	s.Start()
	s.Start()

	select {
	case <-s.Stop().Done():
	case <-time.After(time.Second):
		t.Fatal("Stop did not finish")
	}
	// Stopping twice returns an already-done context.
	select {
	case <-s.Stop().Done():
	default:
		t.Fatal("second Stop not done")
	}
}
