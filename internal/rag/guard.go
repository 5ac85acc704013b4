package rag

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// NoAnswer is the exact reply given when the sources do not support an answer.
const NoAnswer = "I cannot find the answer in the provided documents."

var (
	nonAlnum   = regexp.MustCompile(`[^a-z0-9\s]+`)
	spaceRun   = regexp.MustCompile(`\s+`)
	sentenceRe = regexp.MustCompile(`[.!?\n]+`)

	refusalPatterns = []*regexp.Regexp{
		regexp.MustCompile(`\bi (cannot|can t|could not|couldn t) find\b`),
		regexp.MustCompile(`\bnot (in|found in) the (provided )?(documents|sources)\b`),
		regexp.MustCompile(`\bthe (documents|sources) do not (contain|mention)\b`),
	}
)

// fold lowercases, strips accents and punctuation, and collapses whitespace
// so text can be compared loosely.
func fold(s string) string {
	if s == "" {
		return ""
	}
	t := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)))
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	out = nonAlnum.ReplaceAllString(strings.ToLower(out), " ")
	return strings.TrimSpace(spaceRun.ReplaceAllString(out, " "))
}

var foldedNoAnswer = regexp.MustCompile(regexp.QuoteMeta(fold(NoAnswer)))

// looksLikeRefusal catches answers that refuse but then add more text. A
// refusal phrase only counts when the rest of its sentence is not quoted
// from the sources, so "the auditor wrote: I could not find any errors" is
// left alone.
func looksLikeRefusal(answer string, hits []Hit) bool {
	var src string
	if len(hits) > 0 {
		texts := make([]string, len(hits))
		for i, h := range hits {
			texts[i] = h.Text
		}
		src = fold(strings.Join(texts, "\n"))
	}
	for _, sentence := range sentenceRe.Split(answer, -1) {
		fs := fold(sentence)
		if fs == "" {
			continue
		}
		for _, re := range append([]*regexp.Regexp{foldedNoAnswer}, refusalPatterns...) {
			loc := re.FindStringIndex(fs)
			if loc == nil {
				continue
			}
			if src == "" || !strings.Contains(src, fs[loc[0]:]) {
				return true
			}
		}
	}
	return false
}

// verbatimOK reports whether every sentence of at least minChars characters
// appears, after folding, in the source texts.
func verbatimOK(answer string, hits []Hit, minChars int) bool {
	texts := make([]string, len(hits))
	for i, h := range hits {
		texts[i] = h.Text
	}
	src := fold(strings.Join(texts, "\n"))
	if src == "" {
		return false
	}
	for _, s := range sentenceRe.Split(answer, -1) {
		s = strings.TrimSpace(s)
		if len(s) < minChars {
			continue
		}
		if fs := fold(s); fs != "" && !strings.Contains(src, fs) {
			return false
		}
	}
	return true
}

// extractiveAnswer answers with the excerpts of the best hits verbatim.
func extractiveAnswer(hits []Hit, limit int) string {
	limit = max(1, limit)
	var out []string
	for _, h := range hits {
		if len(out) == limit {
			break
		}
		if ex := strings.TrimSpace(h.Excerpt); ex != "" {
			out = append(out, ex)
		}
	}
	if len(out) == 0 {
		return NoAnswer
	}
	return strings.Join(out, "\n\n")
}
