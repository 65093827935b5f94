package ledger

import (
	"testing"
	"time"
)

func TestAddMonthsClampsDay(t *testing.T) {
	cases := []struct {
		in   time.Time
		n    int
		want time.Time
	}{
		{time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC), 1, time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC)},
		{time.Date(2023, 1, 31, 0, 0, 0, 0, time.UTC), 1, time.Date(2023, 2, 28, 0, 0, 0, 0, time.UTC)},
		{time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC), 1, time.Date(2024, 2, 15, 0, 0, 0, 0, time.UTC)},
		{time.Date(2024, 11, 30, 0, 0, 0, 0, time.UTC), 3, time.Date(2025, 2, 28, 0, 0, 0, 0, time.UTC)},
		{time.Date(2024, 8, 31, 0, 0, 0, 0, time.UTC), 6, time.Date(2025, 2, 28, 0, 0, 0, 0, time.UTC)},
	}
	for _, tc := range cases {
		if got := AddMonths(tc.in, tc.n); !got.Equal(tc.want) {
			t.Fatalf("AddMonths(%s, %d) = %s, want %s", tc.in.Format(time.DateOnly), tc.n, got.Format(time.DateOnly), tc.want.Format(time.DateOnly))
		}
	}
}

func TestNextOccurrence(t *testing.T) {
	start := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
	want := map[Frequency]time.Time{
		FrequencyMonthly:      time.Date(2024, 2, 15, 0, 0, 0, 0, time.UTC),
		FrequencyQuarterly:    time.Date(2024, 4, 15, 0, 0, 0, 0, time.UTC),
		FrequencySemiAnnually: time.Date(2024, 7, 15, 0, 0, 0, 0, time.UTC),
		FrequencyAnnually:     time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC),
	}
	for freq, expected := range want {
		if got := NextOccurrence(start, freq); !got.Equal(expected) {
			t.Fatalf("%s: got %s want %s", freq, got, expected)
		}
	}
	if Frequency("WEEKLY").Months() != 0 {
		t.Fatalf("unknown frequency must have zero months")
	}
}
