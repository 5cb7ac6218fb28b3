package segments

import (
	"regexp"
	"strings"
)

var sentenceTerminators = regexp.MustCompile(`[.!?]+`)

// ParseWords splits comma separated reference words, trimming each and
// dropping empties.
func ParseWords(input string) []string {
	if strings.TrimSpace(input) == "" {
		return nil
	}
	var words []string
	for _, part := range strings.Split(input, ",") {
		if word := strings.TrimSpace(part); word != "" {
			words = append(words, word)
		}
	}
	return words
}

// ParseSentences splits reference text into sentences. Lines are split first;
// a line containing sentence punctuation is split on runs of '.', '!' and '?',
// otherwise the trimmed line is kept whole.
func ParseSentences(input string) []string {
	if strings.TrimSpace(input) == "" {
		return nil
	}
	var sentences []string
	for _, raw := range strings.Split(input, "\n") {
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}
		if !sentenceTerminators.MatchString(line) {
			sentences = append(sentences, line)
			continue
		}
		for _, piece := range sentenceTerminators.Split(line, -1) {
			if sentence := strings.TrimSpace(piece); sentence != "" {
				sentences = append(sentences, sentence)
			}
		}
	}
	return sentences
}

// ReferenceFromText parses text according to kind. It returns nil when the
// kind is unknown or the text yields no items.
func ReferenceFromText(kind ReferenceKind, text string) *ReferenceData {
	switch kind {
	case ReferenceWords:
		if words := ParseWords(text); len(words) > 0 {
			return &ReferenceData{Words: words}
		}
	case ReferenceSentences:
		if sentences := ParseSentences(text); len(sentences) > 0 {
			return &ReferenceData{Sentences: sentences}
		}
	}
	return nil
}
