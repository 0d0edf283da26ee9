package coordinator

import (
	"testing"
	"time"
)

func TestParsePeriod(t *testing.T) {
	tests := []struct {
		in     string
		wantOK bool
		want   string // RFC3339 of the expected cutoff, in UTC
	}{
		{"2023", true, "2023-01-01T00:00:00Z"},
		{"202311", true, "2023-11-01T00:00:00Z"},
		{"20231105", true, "2023-11-05T00:00:00Z"},
		{"", false, ""},
		{"not-a-period", false, ""},
		{"23", false, ""},
	}
	for _, tc := range tests {
		got, ok := parsePeriod(tc.in)
		if ok != tc.wantOK {
			t.Errorf("parsePeriod(%q) ok = %v, want %v", tc.in, ok, tc.wantOK)
			continue
		}
		if !ok {
			continue
		}
		want, err := time.Parse(time.RFC3339, tc.want)
		if err != nil {
			t.Fatalf("bad test fixture: %v", err)
		}
		if got != want.Unix() {
			t.Errorf("parsePeriod(%q) = %d, want %d", tc.in, got, want.Unix())
		}
	}
}
