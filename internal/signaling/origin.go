package signaling

import (
	"regexp"
	"strings"
)

// CompileOrigins turns wildcard origin patterns such as "https://*.example.com"
// or "*" into anchored regexps. Invalid patterns are skipped.
func CompileOrigins(allowed []string) []*regexp.Regexp {
	var patterns []*regexp.Regexp
	for _, host := range allowed {
		pattern := "^" + regexp.QuoteMeta(host) + "$"
		pattern = strings.ReplaceAll(pattern, `\*`, `.*`)

		regex, err := regexp.Compile(pattern)
		if err == nil {
			patterns = append(patterns, regex)
		}
	}
	return patterns
}

// originAllowed reports whether origin matches any pattern. An empty origin
// (non-browser client) is always allowed.
func originAllowed(origin string, patterns []*regexp.Regexp) bool {
	if origin == "" {
		return true
	}
	for _, pattern := range patterns {
		if pattern.MatchString(origin) {
			return true
		}
	}
	return false
}
