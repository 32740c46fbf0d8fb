package tle

import (
	"strings"
	"testing"
	"time"
)

func TestParse(t *testing.T) {
	input := issBlock + starlinkBlock
	entries, err := Parse(strings.NewReader(input), testLogger)
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}

	// Input order is preserved.
	if entries[0].Name != "ISS (ZARYA)" || entries[0].NORADID != 25544 {
		t.Errorf("entry 0 = %+v", entries[0])
	}
	if entries[1].Name != "STARLINK-1007" || entries[1].NORADID != 44713 {
		t.Errorf("entry 1 = %+v", entries[1])
	}

	wantEpoch := time.Date(2024, 4, 9, 12, 0, 0, 0, time.UTC)
	if !entries[0].Epoch.Equal(wantEpoch) {
		t.Errorf("epoch = %v, want %v", entries[0].Epoch, wantEpoch)
	}
}

func TestParseSkipsMalformed(t *testing.T) {
	input := "GARBAGE\nnot a tle line\n" + issBlock + "BROKEN\n1 ABCDEU 98067A   24100.50000000\n2 x\n" + starlinkBlock
	entries, err := Parse(strings.NewReader(input), testLogger)
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 valid entries, got %d: %+v", len(entries), entries)
	}
}

func TestParseThreeLineElementPrefix(t *testing.T) {
	input := "0 " + issBlock
	entries, err := Parse(strings.NewReader(input), testLogger)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Name != "ISS (ZARYA)" {
		t.Fatalf("entries = %+v", entries)
	}
}

func TestParseTwoLineSets(t *testing.T) {
	// Unnamed sets follow a named one; each is named by catalog number.
	iss := strings.SplitN(issBlock, "\n", 2)[1]
	starlink := strings.SplitN(starlinkBlock, "\n", 2)[1]
	entries, err := Parse(strings.NewReader(iss+starlinkBlock+starlink), testLogger)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d: %+v", len(entries), entries)
	}
	if entries[0].Name != "25544" || entries[1].Name != "STARLINK-1007" || entries[2].Name != "44713" {
		t.Errorf("names = %q, %q, %q", entries[0].Name, entries[1].Name, entries[2].Name)
	}
}

func TestParseOrphanLines(t *testing.T) {
	line1 := strings.Split(issBlock, "\n")[1]
	line2 := strings.Split(issBlock, "\n")[2]
	tests := []struct {
		name  string
		input string
		want  int
	}{
		{"line 2 first", line2 + "\n" + starlinkBlock, 1},
		{"line 1 twice", "X\n" + line1 + "\n" + issBlock, 1},
		{"truncated", starlinkBlock + "ISS (ZARYA)\n" + line1 + "\n", 1},
		{"crlf", strings.ReplaceAll(issBlock, "\n", "\r\n"), 1},
		{"blank lines", "\n\n" + strings.ReplaceAll(issBlock, "\n", "\n\n"), 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entries, err := Parse(strings.NewReader(tt.input), testLogger)
			if err != nil {
				t.Fatal(err)
			}
			if len(entries) != tt.want {
				t.Errorf("got %d entries, want %d: %+v", len(entries), tt.want, entries)
			}
		})
	}
}

func TestParseEpochCentury(t *testing.T) {
	tests := []struct {
		in   string
		want time.Time
	}{
		{"24001.00000000", time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)},
		{"98001.50000000", time.Date(1998, 1, 1, 12, 0, 0, 0, time.UTC)},
		{"57032.00000000", time.Date(1957, 2, 1, 0, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		got, err := parseEpoch(tt.in)
		if err != nil {
			t.Fatalf("parseEpoch(%q): %v", tt.in, err)
		}
		if !got.Equal(tt.want) {
			t.Errorf("parseEpoch(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}

	for _, bad := range []string{"24", "2x001.0", "24000.5", "24400.0"} {
		if _, err := parseEpoch(bad); err == nil {
			t.Errorf("parseEpoch(%q): expected error", bad)
		}
	}
}

func TestEpochSpan(t *testing.T) {
	a := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	b := a.Add(48 * time.Hour)
	r := EpochSpan([]TLEEntry{{Epoch: b}, {Epoch: a}, {Epoch: a.Add(time.Hour)}})
	if !r.Oldest.Equal(a) || !r.Newest.Equal(b) {
		t.Errorf("EpochSpan = %+v", r)
	}
	if got := EpochSpan(nil); !got.Oldest.IsZero() || !got.Newest.IsZero() {
		t.Errorf("EpochSpan(nil) = %+v", got)
	}
}
