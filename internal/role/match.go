package role

import "strings"

// MatchPattern reports whether name matches the glob pattern.
// `*` matches any run of characters (including separators), `?` matches a
// single character. Matching is case-insensitive.
func MatchPattern(name, pattern string) bool {
	return matchFold(strings.ToLower(name), strings.ToLower(pattern))
}

func matchFold(name, pattern string) bool {
	// Iterative glob match with single-star backtracking.
	var ni, pi int
	starPi, starNi := -1, 0

	for ni < len(name) {
		switch {
		case pi < len(pattern) && (pattern[pi] == '?' || pattern[pi] == name[ni]):
			ni++
			pi++
		case pi < len(pattern) && pattern[pi] == '*':
			starPi, starNi = pi, ni
			pi++
		case starPi >= 0:
			starNi++
			ni = starNi
			pi = starPi + 1
		default:
			return false
		}
	}
	for pi < len(pattern) && pattern[pi] == '*' {
		pi++
	}
	return pi == len(pattern)
}

// Specificity scores a pattern: longer literal text wins, each wildcard
// costs double. Purpose-built role patterns beat broad catch-alls on ties.
func Specificity(pattern string) int {
	wildcards := strings.Count(pattern, "*") + strings.Count(pattern, "?")
	return len(pattern) - 2*wildcards
}

// bestScore returns the maximum specificity over every pattern the name
// matches, and whether it matched at all.
func bestScore(name string, patterns []string) (int, bool) {
	best := 0
	matched := false
	for _, p := range patterns {
		if !MatchPattern(name, p) {
			continue
		}
		score := Specificity(p)
		if !matched || score > best {
			best = score
		}
		matched = true
	}
	return best, matched
}
