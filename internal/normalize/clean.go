package normalize

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// tripleSpace separates unrelated trailing blocks (promotional footers and
// the like) from the body text in upstream payloads.
const tripleSpace = "   "

var (
	newlineRun = regexp.MustCompile(`\n+`)
	spaceRun   = regexp.MustCompile(` {2,}`)
)

// Clean tidies free text from the API. The steps must run in this order:
// collapsing spaces first would destroy the triple-space delimiter.
func Clean(s string) string {
	block := longestBlock(s)
	block = strings.TrimSpace(block)
	block = newlineRun.ReplaceAllString(block, " ")
	return spaceRun.ReplaceAllString(block, " ")
}

// longestBlock splits on triple spaces and keeps the longest segment.
// On a tie the first one wins.
func longestBlock(s string) string {
	var best string
	bestLen := -1
	for _, block := range strings.Split(s, tripleSpace) {
		if n := utf8.RuneCountInString(block); n > bestLen {
			best, bestLen = block, n
		}
	}
	return best
}
