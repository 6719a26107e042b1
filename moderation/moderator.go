// Package moderation censors banned words in news titles and contents
// before they are persisted or broadcast. Matching runs on a normalized
// view of the text (lowercased, separators stripped, common character
// substitutions undone) so spaced or leet-speak variants are still caught,
// while the replacement is applied to the original runes to preserve
// spacing and length.
package moderation

import (
	"unicode"

	goahocorasick "github.com/anknown/ahocorasick"
)

type Moderator struct {
	matcher      *goahocorasick.Machine
	censoredChar rune
}

// textMapping links each rune of the normalized text back to its index in
// the original string, so a match span can be censored in place.
type textMapping struct {
	normalized []rune
	origIdx    []int
}

// NewModerator builds the Aho-Corasick automaton over the normalized
// forms of the banned words. Building is the expensive part; Censor calls
// are cheap and safe for concurrent use.
func NewModerator(censoredWords []string, censoredChar rune) (*Moderator, error) {
	patterns := make([][]rune, len(censoredWords))
	for i, word := range censoredWords {
		patterns[i] = normalizeRunes([]rune(word))
	}

	m := new(goahocorasick.Machine)
	if err := m.Build(patterns); err != nil {
		return nil, err
	}
	return &Moderator{matcher: m, censoredChar: censoredChar}, nil
}

// Censor replaces every banned span with the replacement character and
// returns the matched words for logging and statistics.
func (m *Moderator) Censor(original string) (string, []string) {
	mapping := m.normalize(original)
	if len(mapping.normalized) == 0 {
		return original, nil
	}

	spans := m.matcher.MultiPatternSearch(mapping.normalized, false)
	if len(spans) == 0 {
		return original, nil
	}

	origRunes := []rune(original)
	var found []string
	for _, span := range spans {
		normStart := span.Pos
		normEnd := normStart + len(span.Word)
		if normStart < 0 || normEnd > len(mapping.origIdx) {
			continue
		}
		found = append(found, string(span.Word))

		origStart := mapping.origIdx[normStart]
		origEnd := mapping.origIdx[normEnd-1] + 1
		for i := origStart; i < origEnd; i++ {
			origRunes[i] = m.censoredChar
		}
	}
	return string(origRunes), found
}

func (m *Moderator) normalize(input string) textMapping {
	origRunes := []rune(input)
	norm := make([]rune, 0, len(origRunes))
	origIdx := make([]int, 0, len(origRunes))

	for i, r := range origRunes {
		clean := simplifyRune(r)
		if isNoise(clean) {
			continue
		}
		norm = append(norm, unicode.ToLower(clean))
		origIdx = append(origIdx, i)
	}
	return textMapping{normalized: norm, origIdx: origIdx}
}

func normalizeRunes(runes []rune) []rune {
	norm := make([]rune, 0, len(runes))
	for _, r := range runes {
		clean := simplifyRune(r)
		if isNoise(clean) {
			continue
		}
		norm = append(norm, unicode.ToLower(clean))
	}
	return norm
}

// simplifyRune undoes the usual character substitutions.
func simplifyRune(r rune) rune {
	switch r {
	case '4', '@', 'à', 'á', 'â':
		return 'a'
	case '3', '€', 'è', 'é', 'ê':
		return 'e'
	case '1', '!', 'ì', 'í':
		return 'i'
	case '0', 'ò', 'ó', 'ô':
		return 'o'
	case '$', '5':
		return 's'
	case '7':
		return 't'
	default:
		return r
	}
}

// isNoise reports separators and punctuation, which are invisible to the
// matcher but kept in the original text.
func isNoise(r rune) bool {
	return !unicode.IsLetter(r) && !unicode.IsDigit(r)
}
