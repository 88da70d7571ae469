package services

import "strings"

// greetingPhrases are small-talk openers and closers that never warrant a
// knowledge search on their own.
var greetingPhrases = []string{
	"hello",
	"hi",
	"hey",
	"good morning",
	"good afternoon",
	"good evening",
	"thanks",
	"thank you",
	"bye",
	"goodbye",
	"see you",
	"ok",
	"okay",
}

// infoKeywords signal an information-seeking message.
var infoKeywords = []string{
	"how",
	"what",
	"when",
	"where",
	"why",
	"which",
	"who",
	"can",
	"could",
	"would",
	"should",
	"explain",
	"help",
	"price",
	"pricing",
	"cost",
	"plan",
	"policy",
	"refund",
	"cancel",
	"shipping",
	"delivery",
	"account",
	"order",
	"payment",
	"error",
	"problem",
	"issue",
	"support",
}

// minQuestionLength is the message length past which a search is assumed
// worthwhile even without an explicit question signal.
const minQuestionLength = 20

// ShouldUseRAG decides whether a user message warrants a knowledge-base
// search at all. It is a cheap heuristic, not a classifier: greetings and
// closings skip the search, question marks, information-seeking keywords
// and longer messages trigger it.
func ShouldUseRAG(message string) bool {
	message = strings.TrimSpace(strings.ToLower(message))
	if message == "" {
		return false
	}

	words := tokenizeWords(message)

	if isGreeting(message, words) {
		return false
	}

	if strings.Contains(message, "?") {
		return true
	}
	for _, keyword := range infoKeywords {
		if containsWord(words, keyword) {
			return true
		}
	}
	return len(message) > minQuestionLength
}

// isGreeting reports whether the message is pure small talk. Phrases are
// matched on word boundaries so "hi there" matches "hi" but "this" does
// not. A message longer than minQuestionLength or containing a question
// mark is never a greeting, even when it opens with one: "hello, my
// order never arrived" is a support request, not small talk.
func isGreeting(message string, words []string) bool {
	if len(message) > minQuestionLength || strings.Contains(message, "?") {
		return false
	}
	for _, phrase := range greetingPhrases {
		if strings.Contains(phrase, " ") {
			if strings.Contains(message, phrase) {
				return true
			}
			continue
		}
		if containsWord(words, phrase) {
			return true
		}
	}
	return false
}

// tokenizeWords splits a lowercased message into alphanumeric words.
func tokenizeWords(message string) []string {
	return strings.FieldsFunc(message, func(r rune) bool {
		isLower := r >= 'a' && r <= 'z'
		isDigit := r >= '0' && r <= '9'
		return !isLower && !isDigit && r != '\''
	})
}

func containsWord(words []string, target string) bool {
	for _, w := range words {
		if w == target {
			return true
		}
	}
	return false
}
