package window

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"token-screener/internal/domain"
)

func mustLoad(t *testing.T, name string) *time.Location {
	t.Helper()
	loc, err := LoadLocation(name)
	if err != nil {
		t.Fatalf("LoadLocation(%q): %v", name, err)
	}
	return loc
}

func TestPreviousDay_Amsterdam(t *testing.T) {
	loc := mustLoad(t, "Europe/Amsterdam")
	ref := time.Date(2024, 5, 2, 0, 5, 0, 0, loc)

	got := PreviousDay(ref, loc)
	want := domain.Window{
		Start:    time.Date(2024, 4, 30, 22, 0, 0, 0, time.UTC),
		End:      time.Date(2024, 5, 1, 22, 0, 0, 0, time.UTC),
		Location: "Europe/Amsterdam",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("PreviousDay mismatch (-want +got):\n%s", diff)
	}
}

func TestPreviousDay_DSTTransitions(t *testing.T) {
	loc := mustLoad(t, "Europe/Amsterdam")

	tests := []struct {
		name string
		ref  time.Time
		want time.Duration
	}{
		{"spring forward", time.Date(2024, 4, 1, 9, 0, 0, 0, loc), 23 * time.Hour},
		{"fall back", time.Date(2024, 10, 28, 9, 0, 0, 0, loc), 25 * time.Hour},
		{"ordinary", time.Date(2024, 7, 15, 9, 0, 0, 0, loc), 24 * time.Hour},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := PreviousDay(tt.ref, loc).Duration(); got != tt.want {
				t.Errorf("duration = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestPreviousDay_FullYear(t *testing.T) {
	for _, name := range []string{"Europe/Amsterdam", "America/New_York", "UTC"} {
		loc := mustLoad(t, name)
		t.Run(name, func(t *testing.T) {
			day := time.Date(2024, 1, 1, 0, 0, 0, 0, loc)
			for i := 0; i < 366; i++ {
				for _, hour := range []int{0, 3, 12, 23} {
					ref := time.Date(day.Year(), day.Month(), day.Day(), hour, 30, 0, 0, loc)
					w := PreviousDay(ref, loc)

					start, end := w.Start.In(loc), w.End.In(loc)
					if start.Hour() != 0 || start.Minute() != 0 || end.Hour() != 0 || end.Minute() != 0 {
						t.Fatalf("%s: bounds not at local midnight: %v - %v", ref, start, end)
					}
					y, m, d := ref.Date()
					if ey, em, ed := end.Date(); ey != y || em != m || ed != d {
						t.Fatalf("%s: end %v is not the reference's local date", ref, end)
					}
					if next := start.AddDate(0, 0, 1); !next.Equal(end) {
						t.Fatalf("%s: window is not one calendar day: %v - %v", ref, start, end)
					}
					if h := w.Duration().Hours(); h < 23 || h > 25 {
						t.Fatalf("%s: duration %v out of range", ref, w.Duration())
					}
					if again := PreviousDay(ref, loc); again != w {
						t.Fatalf("%s: window not stable", ref)
					}
				}
				day = day.AddDate(0, 0, 1)
			}
		})
	}
}

func TestSelect(t *testing.T) {
	loc := time.UTC
	ref := time.Date(2024, 5, 2, 0, 5, 0, 0, loc)
	at := func(s string) *domain.CandidateRecord {
		ts, err := time.Parse(time.RFC3339, s)
		if err != nil {
			t.Fatal(err)
		}
		return &domain.CandidateRecord{Symbol: s, ObservedAt: ts}
	}

	records := []*domain.CandidateRecord{
		at("2024-05-01T12:00:00Z"),
		at("2024-04-30T23:59:59Z"), // before
		at("2024-05-01T00:00:00Z"), // start, inclusive
		at("2024-05-02T00:00:00Z"), // end, exclusive
		at("2024-05-01T23:59:59Z"),
	}

	got, w := Select(records, loc, ref)
	var gotSymbols []string
	for _, r := range got {
		gotSymbols = append(gotSymbols, r.Symbol)
	}
	want := []string{"2024-05-01T12:00:00Z", "2024-05-01T00:00:00Z", "2024-05-01T23:59:59Z"}
	if diff := cmp.Diff(want, gotSymbols); diff != "" {
		t.Errorf("Select mismatch (-want +got):\n%s", diff)
	}
	if len(records) != 5 {
		t.Error("input must not be modified")
	}

	again, w2 := Select(got, loc, ref)
	if len(again) != len(got) || w2 != w {
		t.Error("Select should be idempotent")
	}
}

func TestParseMode(t *testing.T) {
	if m, ok := ParseMode("previous_day"); m != ModePreviousDay || !ok {
		t.Errorf("previous_day: %v %v", m, ok)
	}
	if m, ok := ParseMode(""); m != ModePreviousDay || !ok {
		t.Errorf("empty: %v %v", m, ok)
	}
	if m, ok := ParseMode("last_24h"); m != ModePreviousDay || ok {
		t.Errorf("unknown should fall back: %v %v", m, ok)
	}
}

func TestLoadLocation(t *testing.T) {
	if loc, err := LoadLocation(""); err != nil || loc != time.UTC {
		t.Errorf("empty should be UTC: %v %v", loc, err)
	}
	if _, err := LoadLocation("Mars/Olympus"); err == nil {
		t.Error("expected error for unknown zone")
	}
}
