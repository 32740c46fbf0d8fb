package tle

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"time"
)

// maxLineBytes bounds a single input line; real element-set lines are 69 columns.
const maxLineBytes = 64 * 1024

// Parse reads element sets from r in input order. Each set is an optional
// name line (with or without the "0 " 3LE prefix) followed by data lines 1
// and 2. Sets without a name line are named by their catalog number.
// Malformed sets are skipped with a warning; only read errors are returned.
func Parse(r io.Reader, logger *slog.Logger) ([]TLEEntry, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 4096), maxLineBytes)

	var (
		entries []TLEEntry
		name    string
		line1   string
		lineNo  int
	)
	skip := func(reason string, args ...any) {
		logger.Warn("skipping TLE entry", append([]any{"component", "tle", "line", lineNo, "name", name, "reason", reason}, args...)...)
	}

	for sc.Scan() {
		lineNo++
		line := strings.TrimRight(sc.Text(), "\r ")
		if strings.TrimSpace(line) == "" {
			continue
		}

		switch {
		case isDataLine(line, '1'):
			if line1 != "" {
				skip("line 1 without line 2")
				name = ""
			}
			line1 = line
		case isDataLine(line, '2'):
			if line1 == "" {
				skip("line 2 without line 1")
				name = ""
				continue
			}
			e, err := newEntry(name, line1, line)
			if err != nil {
				skip(err.Error())
			} else {
				entries = append(entries, e)
			}
			name, line1 = "", ""
		default:
			if line1 != "" {
				skip("line 1 without line 2")
				line1 = ""
			}
			name = cleanName(line)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("reading TLE data: %w", err)
	}
	if line1 != "" {
		skip("truncated at end of input")
	}
	return entries, nil
}

func isDataLine(line string, n byte) bool {
	return len(line) >= 2 && line[0] == n && line[1] == ' '
}

// newEntry extracts the catalog number and epoch from line 1.
func newEntry(name, line1, line2 string) (TLEEntry, error) {
	// The epoch ends at column 32.
	if len(line1) < 32 {
		return TLEEntry{}, fmt.Errorf("line 1 has %d columns", len(line1))
	}
	id, err := strconv.Atoi(strings.TrimSpace(line1[2:7]))
	if err != nil {
		return TLEEntry{}, fmt.Errorf("invalid catalog number %q", line1[2:7])
	}
	epoch, err := parseEpoch(strings.TrimSpace(line1[18:32]))
	if err != nil {
		return TLEEntry{}, err
	}
	if name == "" {
		name = strconv.Itoa(id)
	}
	return TLEEntry{NORADID: id, Name: name, Epoch: epoch, Line1: line1, Line2: line2}, nil
}

func cleanName(s string) string {
	s = strings.TrimSpace(s)
	if rest, ok := strings.CutPrefix(s, "0 "); ok {
		return strings.TrimSpace(rest)
	}
	return s
}

// parseEpoch converts a YYDDD.DDDDDDDD epoch to UTC. Two-digit years 57-99
// are 1957-1999, 00-56 are 2000-2056. Day 1.0 is January 1 at 00:00.
func parseEpoch(s string) (time.Time, error) {
	if len(s) < 5 {
		return time.Time{}, fmt.Errorf("epoch %q too short", s)
	}
	yy, err := strconv.Atoi(s[:2])
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid epoch year %q", s[:2])
	}
	day, err := strconv.ParseFloat(s[2:], 64)
	if err != nil || day < 1 || day >= 367 {
		return time.Time{}, fmt.Errorf("invalid epoch day %q", s[2:])
	}

	year := 2000 + yy
	if yy >= 57 {
		year = 1900 + yy
	}
	start := time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
	return start.Add(time.Duration((day - 1) * float64(24*time.Hour))), nil
}
