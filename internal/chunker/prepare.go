package chunker

import (
	"regexp"
	"strings"

	"github.com/claritydesk/ragcore/internal/core/domain"
)

// boilerplatePatterns match site furniture that adds noise to embeddings
// of website-sourced text: consent banners, legal footers, navigation
// labels and call-to-action link text.
var boilerplatePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b(?:we use|this (?:site|website) uses) cookies[^.!?\n]*[.!?]?`),
	regexp.MustCompile(`(?i)\baccept (?:all )?cookies\b`),
	regexp.MustCompile(`(?i)\bcookie (?:policy|settings|preferences)\b`),
	regexp.MustCompile(`(?i)\bprivacy policy\b`),
	regexp.MustCompile(`(?i)\bterms (?:of (?:service|use)|and conditions)\b`),
	regexp.MustCompile(`(?i)(?:©|\(c\)|copyright)\s*\d{4}[^\n]*`),
	regexp.MustCompile(`(?i)\ball rights reserved\.?`),
	regexp.MustCompile(`(?i)\b(?:click here|read more|learn more|sign up|log in|subscribe(?: now)?)\b`),
	regexp.MustCompile(`(?im)^\s*(?:home|about(?: us)?|contact(?: us)?|menu|navigation|search|faq|blog|careers)\s*$`),
}

// blankLineRun matches one or more blank lines, including lines that
// contain only whitespace.
var blankLineRun = regexp.MustCompile(`\n[ \t\r]*\n[\s]*`)

// innerSpaceRun matches runs of whitespace that do not span a paragraph
// boundary.
var innerSpaceRun = regexp.MustCompile(`[ \t\r\f\v]+`)

// Prepare performs source-type-specific cleanup followed by the whitespace
// normalization shared by all source types. Website text additionally has
// common boilerplate stripped before normalization.
func Prepare(text string, sourceType domain.SourceType) string {
	if sourceType == domain.SourceWebsite {
		for _, p := range boilerplatePatterns {
			text = p.ReplaceAllString(text, " ")
		}
	}
	return normalizeWhitespace(text)
}

// normalizeWhitespace collapses runs of blank lines to a single blank
// line, collapses all other whitespace runs to single spaces, and trims.
// After normalization a paragraph boundary is exactly "\n\n".
func normalizeWhitespace(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")

	paragraphs := blankLineRun.Split(text, -1)
	cleaned := make([]string, 0, len(paragraphs))
	for _, p := range paragraphs {
		p = strings.TrimSpace(innerSpaceRun.ReplaceAllString(strings.ReplaceAll(p, "\n", " "), " "))
		if p != "" {
			cleaned = append(cleaned, p)
		}
	}

	return strings.Join(cleaned, "\n\n")
}
