package domain

import (
	"regexp"
	"strings"
)

// MatchFlag reports whether candidate satisfies the stored flag.
//
// Regex flags are anchored at the start of the candidate and honour the
// case-sensitivity toggle. A pattern that fails to compile is compared
// literally instead, so an author's broken regex degrades to an exact match
// rather than an error.
func MatchFlag(stored string, format FlagFormat, caseSensitive bool, candidate string) bool {
	if format == FlagFormatRegex {
		expr := `^(?:` + stored + `)`
		if !caseSensitive {
			expr = `(?i)` + expr
		}
		if re, err := regexp.Compile(expr); err == nil {
			return re.MatchString(candidate)
		}
	}
	return literalMatch(stored, caseSensitive, candidate)
}

func literalMatch(stored string, caseSensitive bool, candidate string) bool {
	if caseSensitive {
		return candidate == stored
	}
	return strings.ToLower(candidate) == strings.ToLower(stored)
}
