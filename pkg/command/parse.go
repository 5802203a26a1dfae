package command

import (
	"regexp"
	"strconv"
	"strings"
)

// parse.go extracts percentages from command output.

var (
	percentRe  = regexp.MustCompile(`(\d+(?:\.\d+)?)\s*%`)
	progressRe = regexp.MustCompile(`(?i)\bprogress\s*[=:]\s*(\d+(?:\.\d+)?)`)
)

// parseProgress finds a percentage in line. Accepted forms: "42%", "x 42.5 %",
// "progress=42" and a bare number.
func parseProgress(line string) (float64, bool) {
	line = strings.TrimSpace(line)
	if line == "" {
		return 0, false
	}

	if m := percentRe.FindAllStringSubmatch(line, -1); len(m) > 0 {
		return parseFloat(m[len(m)-1][1])
	}
	if m := progressRe.FindStringSubmatch(line); m != nil {
		return parseFloat(m[1])
	}
	return parseFloat(line)
}

func parseFloat(s string) (float64, bool) {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || v < 0 || v > 100 {
		return 0, false
	}
	return v, true
}
