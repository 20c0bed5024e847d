package util

import (
	"regexp"
	"strings"
)

var (
	whitespace = regexp.MustCompile(`\s+`)
	hashtagRe  = regexp.MustCompile(`#([\p{L}\p{N}_]+)`)
	mentionRe  = regexp.MustCompile(`@([\p{L}\p{N}_.\-]+)`)
	urlRe      = regexp.MustCompile(`https?://\S+`)
)

// NormalizeWhitespace trims and collapses whitespace to single spaces.
func NormalizeWhitespace(s string) string {
	return strings.TrimSpace(whitespace.ReplaceAllString(s, " "))
}

// Tokenize lowercases s, drops URLs, hashtags and mentions, and splits on
// spaces and punctuation.
func Tokenize(s string) []string {
	s = urlRe.ReplaceAllString(s, " ")
	s = hashtagRe.ReplaceAllString(s, " ")
	s = mentionRe.ReplaceAllString(s, " ")
	s = strings.ToLower(s)
	repl := strings.NewReplacer(
		",", " ", ".", " ", "!", " ", "?", " ", ":", " ", ";", " ",
		"\n", " ", "\t", " ", "\r", " ", "(", " ", ")", " ", "[", " ", "]", " ",
		"\"", " ", "¡", " ", "¿", " ", "…", " ",
	)
	return strings.Fields(repl.Replace(s))
}

// Hashtags returns the lowercased hashtags in s, without the leading '#'.
func Hashtags(s string) []string { return extract(hashtagRe, s) }

// Mentions returns the lowercased mentions in s, without the leading '@'.
func Mentions(s string) []string { return extract(mentionRe, s) }

func extract(re *regexp.Regexp, s string) []string {
	var out []string
	for _, m := range re.FindAllStringSubmatch(s, -1) {
		out = append(out, strings.ToLower(strings.TrimRight(m[1], ".-")))
	}
	return out
}

// Truncate shortens s to at most n runes, appending an ellipsis when cut.
func Truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "…"
}
