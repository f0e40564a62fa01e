package extraction

import (
	"regexp"
	"strings"

	"golang.org/x/text/width"
)

var (
	whitespaceRe = regexp.MustCompile(`\s+`)
	// OCR engines often render the yen sign as a backslash.
	backslashYenRe = regexp.MustCompile(`\\(\s*\d)`)
	dashReplacer   = strings.NewReplacer(
		"‐", "-", "‑", "-", "‒", "-", "–", "-", "—", "-", "―", "-", "−", "-",
	)
)

// NormalizeText cleans one line of recognized text.
// Full-width characters fold to their narrow forms, dash variants become
// '-', and whitespace runs collapse to a single space.
func NormalizeText(s string) string {
	s = width.Fold.String(s)
	s = dashReplacer.Replace(s)
	s = backslashYenRe.ReplaceAllString(s, "¥$1")
	s = whitespaceRe.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// NormalizeLines splits text into normalized, non-empty lines.
func NormalizeLines(text string) []string {
	raw := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
	lines := make([]string, 0, len(raw))
	for _, line := range raw {
		if line = NormalizeText(line); line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}
