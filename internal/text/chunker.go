package text

import (
	"crypto/sha256"
	"fmt"
	"strings"
)

// Draft is one chunk cut from a document's raw text, before hashing and
// enrichment. Overlap is the byte length of the prefix duplicated from the
// previous chunk; stripping it from every chunk and concatenating the rest in
// Index order reproduces the original text exactly.
type Draft struct {
	Text                string
	Index               int
	CharCount           int
	Overlap             int
	OverlapWithPrevious bool
	Oversize            bool
}

// Chunk splits text into an ordered, bounded, overlapping sequence of drafts.
//
// The text is first cut into units on sentence-ending punctuation (a run of
// '.', '!' or '?' followed by whitespace) and on blank lines; a run with no
// such boundary is one unsplittable unit. Units are accumulated until the
// next one would exceed maxChars, then the chunk is emitted and the next one
// starts with the smallest whole-unit suffix of the emitted chunk covering at
// least overlapChars. A single unit longer than maxChars is emitted alone
// with Oversize set; it is never split mid-unit.
//
// Identical (text, maxChars, overlapChars) always produces a byte-identical
// draft sequence.
func Chunk(text string, maxChars, overlapChars int) []Draft {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	units := splitUnits(text)

	var drafts []Draft
	var carry []string
	i := 0

	for i < len(units) {
		// Make room for the first fresh unit by dropping leading carry units.
		for len(carry) > 0 && sumLen(carry)+len(units[i]) > maxChars {
			carry = carry[1:]
		}

		if len(units[i]) > maxChars {
			// Unsplittable run longer than the budget: flag it, keep it whole.
			drafts = append(drafts, Draft{
				Text:      units[i],
				Index:     len(drafts),
				CharCount: len(units[i]),
				Oversize:  true,
			})
			i++
			carry = nil
			continue
		}

		var b strings.Builder
		overlap := 0
		for _, u := range carry {
			b.WriteString(u)
			overlap += len(u)
		}

		var fresh []string
		for i < len(units) {
			u := units[i]
			if b.Len()+len(u) > maxChars {
				break
			}
			b.WriteString(u)
			fresh = append(fresh, u)
			i++
		}

		drafts = append(drafts, Draft{
			Text:                b.String(),
			Index:               len(drafts),
			CharCount:           b.Len(),
			Overlap:             overlap,
			OverlapWithPrevious: overlap > 0,
		})

		carry = overlapSuffix(fresh, overlapChars)
	}

	return drafts
}

// splitUnits cuts text into sentence/paragraph units without losing a byte:
// concatenating the units reproduces the input exactly. Trailing whitespace
// stays with the unit that precedes it.
func splitUnits(text string) []string {
	var units []string
	start := 0
	i := 0
	n := len(text)

	for i < n {
		c := text[i]

		if c == '.' || c == '!' || c == '?' {
			j := i + 1
			for j < n && (text[j] == '.' || text[j] == '!' || text[j] == '?') {
				j++
			}
			if j < n && isSpace(text[j]) {
				k := j
				for k < n && isSpace(text[k]) {
					k++
				}
				units = append(units, text[start:k])
				start = k
				i = k
				continue
			}
			i = j
			continue
		}

		if c == '\n' {
			k := i
			for k < n && isSpace(text[k]) {
				k++
			}
			// A blank line is a paragraph break even without punctuation.
			if strings.Count(text[i:k], "\n") >= 2 {
				units = append(units, text[start:k])
				start = k
			}
			i = k
			continue
		}

		i++
	}

	if start < n {
		units = append(units, text[start:])
	}
	return units
}

// overlapSuffix returns the smallest suffix of units whose combined length is
// at least overlapChars, or all of them when they fall short.
func overlapSuffix(units []string, overlapChars int) []string {
	if overlapChars <= 0 {
		return nil
	}
	total := 0
	j := len(units)
	for j > 0 && total < overlapChars {
		j--
		total += len(units[j])
	}
	return units[j:]
}

func sumLen(units []string) int {
	total := 0
	for _, u := range units {
		total += len(u)
	}
	return total
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}

// NormalizeForHash trims the text and collapses internal whitespace so that
// identical content hashes identically regardless of surrounding whitespace.
func NormalizeForHash(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// ContentHash returns the hex SHA-256 digest of the normalized chunk text.
func ContentHash(s string) string {
	sum := sha256.Sum256([]byte(NormalizeForHash(s)))
	return fmt.Sprintf("%x", sum)
}
