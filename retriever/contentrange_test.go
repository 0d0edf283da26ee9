package retriever

import "testing"

func TestParseContentRange(t *testing.T) {
	tests := []struct {
		in         string
		wantFirst  int64
		wantLast   int64
		wantLength int64
		wantErr    bool
	}{
		{"bytes 0-99/200", 0, 99, 200, false},
		{"bytes: 0-99/200", 0, 99, 200, false},
		{"bytes 0-99/*", 0, 99, -1, false},
		{"bytes 100-199/150", 0, 0, 0, true},  // length <= last
		{"bytes 99-50/200", 0, 0, 0, true},    // last < first
		{"not a content range", 0, 0, 0, true},
		{"bytes 0-x/200", 0, 0, 0, true},
	}

	for _, tc := range tests {
		got, err := parseContentRange(tc.in)
		if (err != nil) != tc.wantErr {
			t.Errorf("parseContentRange(%q) error = %v, wantErr %v", tc.in, err, tc.wantErr)
			continue
		}
		if tc.wantErr {
			continue
		}
		if got.first != tc.wantFirst || got.last != tc.wantLast || got.length != tc.wantLength {
			t.Errorf("parseContentRange(%q) = {%d,%d,%d}, want {%d,%d,%d}",
				tc.in, got.first, got.last, got.length, tc.wantFirst, tc.wantLast, tc.wantLength)
		}
	}
}

func TestContentRangeContlen(t *testing.T) {
	c := &contentRange{first: 10, last: 19}
	if got := c.contlen(); got != 10 {
		t.Errorf("contlen() = %d, want 10", got)
	}
}
