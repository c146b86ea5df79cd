// Package text provides the lexical layer behind tagging and scoring:
// tokenization with a lightweight stemmer, stopword filtering, and
// frequency-based tag extraction.
package text

import (
	"regexp"
	"sort"
	"strings"
)

var stopwords = map[string]bool{
	"a": true, "an": true, "and": true, "are": true, "as": true, "at": true,
	"be": true, "but": true, "by": true, "for": true, "if": true, "in": true,
	"into": true, "is": true, "it": true, "no": true, "not": true, "of": true,
	"on": true, "or": true, "such": true, "that": true, "the": true,
	"their": true, "then": true, "there": true, "these": true, "they": true,
	"this": true, "to": true, "was": true, "will": true, "with": true,
	"we": true, "you": true, "i": true,
	"can": true, "could": true, "should": true, "would": true, "may": true,
	"might": true, "must": true, "also": true, "very": true, "much": true,
	"more": true, "most": true, "many": true, "few": true, "several": true,
	"often": true, "usually": true, "sometimes": true, "generally": true,
	"from": true, "after": true, "before": true, "between": true,
	"across": true, "along": true, "within": true, "without": true,
	"via": true, "per": true, "because": true, "however": true,
	"therefore": true, "thus": true,
	"ensure": true, "include": true, "including": true, "includes": true,
	"using": true, "use": true, "used": true, "based": true, "make": true,
	"made": true, "makes": true, "provide": true, "provides": true,
	"provided": true, "create": true, "creates": true, "created": true,
	"system": true, "systems": true, "process": true, "processes": true,
	"structure": true, "pattern": true, "patterns": true, "interface": true,
	"method": true, "methods": true, "approach": true, "approaches": true,
	"way": true, "ways": true,
}

// tagBlacklist holds generic terms excluded from auto-tag extraction.
var tagBlacklist = map[string]bool{
	"idea": true, "plan": true, "project": true, "projects": true,
	"system": true, "systems": true,
}

// genericTech terms are down-weighted in scoring and tag ranking because
// they appear across unrelated technical notes.
var genericTech = map[string]bool{
	"flow": true, "flows": true, "stream": true, "streams": true,
	"pipe": true, "pipes": true, "branch": true, "branches": true,
	"terminal": true, "terminals": true,
}

var hashtagRe = regexp.MustCompile(`#[a-zA-Z0-9_-]+`)

// NormalizeToken applies a lightweight stemmer covering plurals, verb
// endings and gerunds. Tokens of length <= 3 pass through unchanged.
func NormalizeToken(token string) string {
	n := len(token)
	if n <= 3 {
		return token
	}
	switch {
	case strings.HasSuffix(token, "ies") && n > 4:
		return token[:n-3] + "y"
	case strings.HasSuffix(token, "sses"):
		return token[:n-2]
	case strings.HasSuffix(token, "ches"), strings.HasSuffix(token, "shes"),
		strings.HasSuffix(token, "xes"), strings.HasSuffix(token, "zes"):
		return token[:n-2]
	case strings.HasSuffix(token, "ing") && n > 5:
		return token[:n-3]
	case strings.HasSuffix(token, "ed") && n > 4:
		return token[:n-2]
	case strings.HasSuffix(token, "s") && n > 4:
		suffix := token[n-2:]
		if suffix != "ss" && suffix != "us" && suffix != "is" {
			return token[:n-1]
		}
	}
	return token
}

// TokenWeight down-weights generic technical terms.
func TokenWeight(token string) float64 {
	if genericTech[token] {
		return 0.4
	}
	return 1.0
}

func normalizeText(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range strings.ToLower(s) {
		if r == '#' || r == ' ' || r == '\t' || r == '\n' || r == '\r' ||
			('a' <= r && r <= 'z') || ('0' <= r && r <= '9') {
			b.WriteRune(r)
		} else {
			b.WriteRune(' ')
		}
	}
	return b.String()
}

// TokenizeToList returns normalized tokens in document order, with short
// tokens and stopwords removed.
func TokenizeToList(s string) []string {
	fields := strings.Fields(normalizeText(s))
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if len(f) < 2 || stopwords[f] {
			continue
		}
		out = append(out, NormalizeToken(f))
	}
	return out
}

// Tokenize returns token frequency counts for s.
func Tokenize(s string) map[string]int {
	counts := make(map[string]int)
	for _, t := range TokenizeToList(s) {
		counts[t]++
	}
	return counts
}

// ExtractTags derives tags for a note. Explicit #hashtags win outright;
// otherwise tags come from frequency-ranked unigrams and bigrams.
func ExtractTags(text string, tokenCounts map[string]int, limit int) []string {
	if limit <= 0 {
		limit = 5
	}

	seen := make(map[string]bool)
	var hashtags []string
	for _, m := range hashtagRe.FindAllString(text, -1) {
		tag := strings.ToLower(m[1:])
		if !seen[tag] {
			seen[tag] = true
			hashtags = append(hashtags, tag)
		}
	}
	if len(hashtags) > 0 {
		sort.Strings(hashtags)
		return hashtags
	}

	return extractTagsLexical(text, tokenCounts, limit)
}

type tagEntry struct {
	tag   string
	score float64
}

func extractTagsLexical(text string, tokenCounts map[string]int, limit int) []string {
	counts := tokenCounts
	if counts == nil {
		counts = Tokenize(text)
	}

	var entries []tagEntry
	for token, count := range counts {
		if len(token) < 3 || tagBlacklist[token] {
			continue
		}
		entries = append(entries, tagEntry{token, float64(count) * TokenWeight(token)})
	}

	// Bigrams come from the body only, so a trailing title word never
	// bridges into the first body word.
	body := text
	if idx := strings.IndexByte(text, '\n'); idx >= 0 {
		body = text[idx+1:]
	}
	seq := TokenizeToList(body)
	bigramCounts := make(map[string]int)
	for i := 0; i+1 < len(seq); i++ {
		a, b := seq[i], seq[i+1]
		if len(a) < 3 || len(b) < 3 {
			continue
		}
		bigramCounts[a+" "+b]++
	}
	for bigram, count := range bigramCounts {
		parts := strings.SplitN(bigram, " ", 2)
		w := 1.75 * max(TokenWeight(parts[0]), TokenWeight(parts[1]))
		entries = append(entries, tagEntry{bigram, float64(count) * w})
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].score != entries[j].score {
			return entries[i].score > entries[j].score
		}
		return entries[i].tag < entries[j].tag
	})

	// Cap bigrams so multi-word tags do not crowd out unigrams.
	maxBigrams := limit / 2
	if maxBigrams < 1 {
		maxBigrams = 1
	}
	picked := make([]string, 0, limit)
	seen := make(map[string]bool)
	bigramsUsed := 0
	for _, e := range entries {
		isBigram := strings.Contains(e.tag, " ")
		if isBigram && bigramsUsed >= maxBigrams {
			continue
		}
		if seen[e.tag] {
			continue
		}
		seen[e.tag] = true
		picked = append(picked, e.tag)
		if isBigram {
			bigramsUsed++
		}
		if len(picked) >= limit {
			break
		}
	}
	return picked
}
