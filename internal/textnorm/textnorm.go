// Package textnorm rewrites text before it reaches a synthesis
// provider: markup stripping, whitespace cleanup, pronunciation
// overrides, and optional SSML generation. It is a pure text transform
// with no synthesis knowledge.
package textnorm

import (
	"regexp"
	"strings"
)

var (
	tagPattern        = regexp.MustCompile(`<[^<>]*>`)
	whitespacePattern = regexp.MustCompile(`\s+`)
)

// Normalizer applies the configured rewrites in a fixed order: tag
// stripping, pronunciation overrides, whitespace collapsing.
type Normalizer struct {
	replacer *strings.Replacer
}

// New builds a normalizer. pronunciations maps written forms to the
// spelling a voice should hear, e.g. "SQL" -> "sequel".
func New(pronunciations map[string]string) *Normalizer {
	pairs := make([]string, 0, len(pronunciations)*2)
	for from, to := range pronunciations {
		pairs = append(pairs, from, to)
	}
	return &Normalizer{replacer: strings.NewReplacer(pairs...)}
}

// Normalize rewrites text for synthesis.
func (n *Normalizer) Normalize(text string) string {
	text = tagPattern.ReplaceAllString(text, " ")
	text = n.replacer.Replace(text)
	text = whitespacePattern.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}

// ssmlEscaper handles the characters that are significant in SSML.
var ssmlEscaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
	"'", "&apos;",
)

// SSML normalizes text and wraps it in a minimal speak document for
// backends that accept markup.
func (n *Normalizer) SSML(text string) string {
	return "<speak>" + ssmlEscaper.Replace(n.Normalize(text)) + "</speak>"
}
