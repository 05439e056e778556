package tui

import (
	"strings"

	"semsearch/internal/textutil"
)

// highlightBestSentence renders the sentence sharing the most words with
// query in the highlight style. Ties go to the earliest sentence.
func highlightBestSentence(text, query string) string {
	sentences := textutil.Sentences(text)
	if len(sentences) == 0 {
		return text
	}
	q := make(map[string]struct{})
	for _, w := range textutil.ContentWords(query) {
		q[w] = struct{}{}
	}
	if len(q) == 0 {
		return strings.Join(sentences, " ")
	}
	best, bestScore := 0, -1
	for i, s := range sentences {
		if score := overlap(q, s); score > bestScore {
			best, bestScore = i, score
		}
	}
	sentences[best] = highlightStyle.Render(sentences[best])
	return strings.Join(sentences, " ")
}

func overlap(query map[string]struct{}, sentence string) int {
	seen := make(map[string]struct{})
	score := 0
	for _, t := range textutil.ContentWords(sentence) {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		if _, ok := query[t]; ok {
			score++
		}
	}
	return score
}
