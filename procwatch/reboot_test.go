package procwatch

import (
	"testing"
	"time"
)

func TestParseRebootPolicyDailyTime(t *testing.T) {
	p, err := ParseRebootPolicy("03:30")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Mode != RebootDailyTime || p.DailyHour != 3 || p.DailyMinute != 30 {
		t.Fatalf("unexpected policy: %+v", p)
	}
}

func TestParseRebootPolicyIntervalUnits(t *testing.T) {
	tests := []struct {
		value   string
		minutes int64
	}{
		{"6h", 6 * 60},
		{"2d", 2 * 24 * 60},
		{"1w", 7 * 24 * 60},
		{"1m", 30 * 24 * 60},
		{"5", 5 * 24 * 60},
	}

	for _, tt := range tests {
		p, err := ParseRebootPolicy(tt.value)
		if err != nil {
			t.Fatalf("%q: unexpected error: %v", tt.value, err)
		}
		if p.Mode != RebootInterval || p.IntervalMinutes != tt.minutes {
			t.Fatalf("%q: expected interval %d minutes, got %+v", tt.value, tt.minutes, p)
		}
	}
}

func TestParseRebootPolicyEmptyDisabled(t *testing.T) {
	p, err := ParseRebootPolicy("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Mode != RebootDisabled {
		t.Fatalf("expected disabled, got %+v", p)
	}
}

func TestParseRebootPolicyOverflowRejected(t *testing.T) {
	if _, err := ParseRebootPolicy("999999999999999m"); err == nil {
		t.Fatal("expected overflow error")
	}
}

func TestParseRebootPolicyExceedsMaxRejected(t *testing.T) {
	// 366 days worth of minutes, comfortably past the one-year cap.
	if _, err := ParseRebootPolicy("366d"); err == nil {
		t.Fatal("expected max-exceeded error")
	}
}

func TestParseRebootPolicyBadUnitRejected(t *testing.T) {
	if _, err := ParseRebootPolicy("5x"); err == nil {
		t.Fatal("expected unrecognized unit error")
	}
}

func TestShouldRebootInterval(t *testing.T) {
	p := RebootPolicy{Mode: RebootInterval, IntervalMinutes: 60}
	started := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	if p.ShouldReboot(started, started.Add(59*time.Minute), time.Time{}) {
		t.Fatal("expected no reboot before interval elapses")
	}
	if !p.ShouldReboot(started, started.Add(60*time.Minute), time.Time{}) {
		t.Fatal("expected reboot once interval elapses")
	}
}

func TestShouldRebootDailyTimeFiresOncePerDay(t *testing.T) {
	p := RebootPolicy{Mode: RebootDailyTime, DailyHour: 4, DailyMinute: 0}
	started := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	fireTime := time.Date(2026, 1, 1, 4, 0, 0, 0, time.UTC)

	if !p.ShouldReboot(started, fireTime, time.Time{}) {
		t.Fatal("expected reboot to fire at the configured time")
	}
	if p.ShouldReboot(started, fireTime, fireTime) {
		t.Fatal("expected reboot not to fire twice within the same minute window")
	}
}

func TestShouldRebootDisabledNeverFires(t *testing.T) {
	var p RebootPolicy
	now := time.Now()
	if p.ShouldReboot(now, now.Add(365*24*time.Hour), time.Time{}) {
		t.Fatal("disabled policy must never fire")
	}
}
