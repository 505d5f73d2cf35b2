package chunker

import "unicode"

// SplitByParagraphs cuts text after every blank-line run. Separators stay
// attached to the preceding piece, so the pieces concatenate back to text.
func SplitByParagraphs(text string) []string {
	var parts []string
	start := 0
	for i := 0; i < len(text); i++ {
		if text[i] != '\n' || i+1 >= len(text) || text[i+1] != '\n' {
			continue
		}
		end := i + 2
		for end < len(text) && text[end] == '\n' {
			end++
		}
		if end < len(text) {
			parts = append(parts, text[start:end])
			start = end
		}
		i = end - 1
	}
	if start < len(text) {
		parts = append(parts, text[start:])
	}
	return parts
}

// SplitBySentences cuts text after sentence terminators and line breaks.
// Trailing whitespace stays with the sentence it follows. A terminator followed
// by a lowercase word ("e.g. this") does not end a sentence.
func SplitBySentences(text string) []string {
	runes := []rune(text)
	var parts []string
	start := 0

	for i := 0; i < len(runes); i++ {
		end := -1
		switch r := runes[i]; {
		case r == '\n':
			end = i + 1
		case r == '.' || r == '!' || r == '?':
			j := i + 1
			for j < len(runes) && isClosing(runes[j]) {
				j++
			}
			if j < len(runes) && unicode.IsSpace(runes[j]) && !lowerFollows(runes, j) {
				end = j
			}
		}
		if end < 0 {
			continue
		}
		for end < len(runes) && unicode.IsSpace(runes[end]) {
			end++
		}
		if end < len(runes) {
			parts = append(parts, string(runes[start:end]))
			start = end
		}
		i = end - 1
	}
	if start < len(runes) {
		parts = append(parts, string(runes[start:]))
	}
	return parts
}

func isClosing(r rune) bool {
	switch r {
	case '.', '!', '?', '"', '\'', ')', ']', '”', '’', '»':
		return true
	}
	return false
}

// lowerFollows reports whether the next non-space rune after i is lowercase.
func lowerFollows(runes []rune, i int) bool {
	for ; i < len(runes); i++ {
		if runes[i] == '\n' {
			return false
		}
		if !unicode.IsSpace(runes[i]) {
			return unicode.IsLower(runes[i])
		}
	}
	return false
}
