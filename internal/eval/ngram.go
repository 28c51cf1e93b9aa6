package eval

import "strings"

// tokenize lowercases and splits on whitespace. All n-gram scorers share
// this so their token boundaries agree.
func tokenize(s string) []string {
	return strings.Fields(strings.ToLower(s))
}

// ngramCounts maps each n-gram (tokens joined by a space) to its count.
func ngramCounts(tokens []string, n int) map[string]int {
	counts := make(map[string]int)
	for i := 0; i+n <= len(tokens); i++ {
		counts[strings.Join(tokens[i:i+n], " ")]++
	}
	return counts
}
