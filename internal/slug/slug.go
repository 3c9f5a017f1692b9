// Package slug derives filesystem/title-safe short identifiers from free
// text, used to auto-name sessions and to build stable slugs for other
// display purposes.
package slug

import (
	"regexp"
	"strings"
)

// Stopwords filtered out before a text is reduced to a slug or session name.
var stopwords = map[string]struct{}{
	"a": {}, "an": {}, "the": {}, "is": {}, "are": {}, "was": {}, "were": {},
	"be": {}, "been": {}, "being": {}, "have": {}, "has": {}, "had": {},
	"do": {}, "does": {}, "did": {}, "will": {}, "would": {}, "could": {},
	"should": {}, "may": {}, "might": {}, "must": {}, "shall": {}, "can": {},
	"need": {}, "dare": {}, "ought": {}, "used": {}, "to": {}, "of": {},
	"in": {}, "for": {}, "on": {}, "with": {}, "at": {}, "by": {}, "from": {},
	"as": {}, "into": {}, "through": {}, "during": {}, "before": {},
	"after": {}, "above": {}, "below": {}, "between": {}, "under": {},
	"again": {}, "further": {}, "then": {}, "once": {}, "here": {},
	"there": {}, "when": {}, "where": {}, "why": {}, "how": {}, "all": {},
	"each": {}, "few": {}, "more": {}, "most": {}, "other": {}, "some": {},
	"such": {}, "no": {}, "nor": {}, "not": {}, "only": {}, "own": {},
	"same": {}, "so": {}, "than": {}, "too": {}, "very": {}, "just": {},
	"also": {}, "now": {}, "what": {}, "which": {}, "who": {}, "whom": {},
	"this": {}, "that": {}, "these": {}, "those": {}, "am": {}, "and": {},
	"but": {}, "if": {}, "or": {}, "because": {}, "while": {}, "although": {},
	"i": {}, "me": {}, "my": {}, "myself": {}, "we": {}, "our": {},
	"ours": {}, "ourselves": {}, "you": {}, "your": {}, "yours": {},
	"yourself": {}, "yourselves": {}, "he": {}, "him": {}, "his": {},
	"himself": {}, "she": {}, "her": {}, "hers": {}, "herself": {},
	"it": {}, "its": {}, "itself": {}, "they": {}, "them": {}, "their": {},
	"theirs": {}, "themselves": {}, "about": {}, "tell": {},
}

var wordPattern = regexp.MustCompile(`[a-zA-Z]+`)

func keyWords(text string) []string {
	words := wordPattern.FindAllString(strings.ToLower(text), -1)
	out := make([]string, 0, len(words))
	for _, w := range words {
		if _, stop := stopwords[w]; stop {
			continue
		}
		if len(w) <= 2 {
			continue
		}
		out = append(out, w)
	}
	return out
}

// Generate derives a slug from text, keeping up to maxWords key words.
//
// Empty input falls back to "untitled". Input made entirely of stopwords
// or short words falls back to "session".
func Generate(text string, maxWords int) string {
	if text == "" {
		return "untitled"
	}
	selected := keyWords(text)
	if len(selected) > maxWords {
		selected = selected[:maxWords]
	}
	if len(selected) == 0 {
		return "session"
	}
	return strings.Join(selected, "_")
}

// GenerateSessionName derives an auto-assigned session name from a query.
//
// It differs from Generate in its fallback: an empty query also falls back
// to "session" rather than "untitled".
func GenerateSessionName(query string, maxWords int) string {
	selected := keyWords(query)
	if len(selected) > maxWords {
		selected = selected[:maxWords]
	}
	if len(selected) == 0 {
		return "session"
	}
	return strings.Join(selected, "_")
}
