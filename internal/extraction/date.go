package extraction

import (
	"fmt"
	"regexp"
	"strconv"
	"time"
)

const (
	reiwaOffset  = 2018
	heiseiOffset = 1988
	minYear      = 2000
	maxYear      = 2030
)

// dateGrammar turns a regexp match into year, month and day.
type dateGrammar struct {
	name    string
	re      *regexp.Regexp
	resolve func(m []string, now time.Time) (year, month, day int)
}

func eraYear(s string, offset int) int {
	if s == "元" {
		return offset + 1
	}
	return atoi(s) + offset
}

func atoi(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return -1
	}
	return n
}

func ymd(m []string, _ time.Time) (int, int, int) { return atoi(m[1]), atoi(m[2]), atoi(m[3]) }

// Tried in order for every line.
var dateGrammars = []dateGrammar{
	{"iso", regexp.MustCompile(`(\d{4})[-/.](\d{1,2})[-/.](\d{1,2})`), ymd},
	{"kanji", regexp.MustCompile(`(\d{4})\s*年\s*(\d{1,2})\s*月\s*(\d{1,2})\s*日`), ymd},
	{"us", regexp.MustCompile(`(\d{1,2})/(\d{1,2})/(\d{4})`), func(m []string, _ time.Time) (int, int, int) {
		return atoi(m[3]), atoi(m[1]), atoi(m[2])
	}},
	{"reiwa", regexp.MustCompile(`(?:令和|R)\s*(\d{1,2}|元)\s*[年./-]\s*(\d{1,2})\s*[月./-]\s*(\d{1,2})`), func(m []string, _ time.Time) (int, int, int) {
		return eraYear(m[1], reiwaOffset), atoi(m[2]), atoi(m[3])
	}},
	{"heisei", regexp.MustCompile(`(?:平成|H)\s*(\d{1,2}|元)\s*[年./-]\s*(\d{1,2})\s*[月./-]\s*(\d{1,2})`), func(m []string, _ time.Time) (int, int, int) {
		return eraYear(m[1], heiseiOffset), atoi(m[2]), atoi(m[3])
	}},
	{"dotted", regexp.MustCompile(`(?:^|[^\d])(\d{2})\.(\d{1,2})\.(\d{1,2})(?:[^\d]|$)`), func(m []string, _ time.Time) (int, int, int) {
		return 2000 + atoi(m[1]), atoi(m[2]), atoi(m[3])
	}},
	{"yearless", regexp.MustCompile(`(\d{1,2})\s*月\s*(\d{1,2})\s*日`), func(m []string, now time.Time) (int, int, int) {
		return now.Year(), atoi(m[1]), atoi(m[2])
	}},
}

// ExtractDate returns the first valid date found in the lines as YYYY-MM-DD.
func ExtractDate(lines []string, now time.Time) *string {
	for _, line := range lines {
		if d, ok := parseDateLine(line, now); ok {
			return ptr(d)
		}
	}
	return nil
}

// NormalizeDate converts a single date value in any supported grammar to YYYY-MM-DD.
func NormalizeDate(s string, now time.Time) (string, bool) {
	return parseDateLine(NormalizeText(s), now)
}

func parseDateLine(line string, now time.Time) (string, bool) {
	for _, g := range dateGrammars {
		m := g.re.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		if y, mo, d := g.resolve(m, now); validDate(y, mo, d) {
			return fmt.Sprintf("%04d-%02d-%02d", y, mo, d), true
		}
	}
	return "", false
}

func validDate(year, month, day int) bool {
	return year >= minYear && year <= maxYear &&
		month >= 1 && month <= 12 &&
		day >= 1 && day <= 31
}
