package generate

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"
)

// UnknownName is returned when every generation attempt failed. Callers
// treat it as "no usable result" rather than an error.
const UnknownName = "Unknown Name"

var (
	startPattern = regexp.MustCompile(`(?m)START\s+([A-Za-z][A-Za-z' -]*?)(?:\s+END|\s*$)`)
	promptEval   = regexp.MustCompile(`Prompt evaluation:\s+(\d+(?:\.\d+)?)%`)
)

// ExtractName scans model output for START/END delimited values and returns
// the last non-empty one. Models often emit the delimiter several times;
// the final occurrence is the one that followed the actual instruction.
func ExtractName(output string) string {
	matches := startPattern.FindAllStringSubmatch(output, -1)
	for i := len(matches) - 1; i >= 0; i-- {
		if candidate := strings.TrimSpace(matches[i][1]); candidate != "" {
			return candidate
		}
	}
	return ""
}

// Validator decides whether extracted text plausibly is a generated name.
// The rule is a heuristic, kept configurable rather than hardened: exact
// word count, restricted character set, at least one letter per word.
type Validator struct {
	// Parts is the exact number of whitespace-separated words required.
	Parts int
}

func (v Validator) Valid(candidate string) bool {
	parts := strings.Fields(candidate)
	if len(parts) != v.Parts {
		return false
	}
	for _, part := range parts {
		hasLetter := false
		for _, r := range part {
			switch {
			case unicode.IsLetter(r) && r < 128:
				hasLetter = true
			case r == '-' || r == '\'':
			default:
				return false
			}
		}
		if !hasLetter {
			return false
		}
	}
	return true
}

// parseProgressPercent pulls a percentage out of the CLI's prompt-evaluation
// progress lines, or nil when the line carries none.
func parseProgressPercent(line string) *float64 {
	m := promptEval.FindStringSubmatch(line)
	if m == nil {
		return nil
	}
	pct, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return nil
	}
	return &pct
}
