package enrich

import (
	"sort"
	"strings"
	"time"

	"quarry/ingest/internal/record"
)

const (
	CategoryCommunity  = "community"
	CategoryRepository = "repository"

	topKeywords   = 5
	minKeywordLen = 4
)

// Payload is the metadata attached to a chunk before it leaves the pipeline.
// Category and SourceURL are always populated.
type Payload struct {
	Category    string    `json:"category"`
	Tags        []string  `json:"tags"`
	SourceURL   string    `json:"source_url"`
	SourceID    string    `json:"source_id"`
	Author      string    `json:"author,omitempty"`
	Score       int       `json:"score,omitempty"`
	ChunkIndex  int       `json:"chunk_index"`
	TotalChunks int       `json:"total_chunks"`
	ContentHash string    `json:"content_hash"`
	CreatedAt   time.Time `json:"created_at,omitempty"`
}

// Enrich derives the payload for one surviving chunk from its parent
// document. chunkText is the chunk's own text; the keyword tags come from it
// rather than the whole document so each chunk is tagged by what it actually
// says.
func Enrich(doc *record.Document, chunkText, contentHash string, chunkIndex, totalChunks int) Payload {
	return Payload{
		Category:    Category(doc.SourceType),
		Tags:        mergeTags(doc.ExplicitTags, Keywords(chunkText, topKeywords)),
		SourceURL:   sourceURL(doc),
		SourceID:    doc.SourceID,
		Author:      doc.Author,
		Score:       doc.Score,
		ChunkIndex:  chunkIndex,
		TotalChunks: totalChunks,
		ContentHash: contentHash,
		CreatedAt:   doc.CreatedAt,
	}
}

// Category maps every forum type to one coarse bucket and every repo type to
// another.
func Category(st record.SourceType) string {
	switch st {
	case record.SourceForumPost, record.SourceForumComment:
		return CategoryCommunity
	default:
		return CategoryRepository
	}
}

func sourceURL(doc *record.Document) string {
	if doc.SourceURL != "" {
		return doc.SourceURL
	}
	// Records scraped without a URL still need non-empty provenance.
	return "quarry://" + doc.SourceID
}

// Keywords extracts the top-k distinct tokens of the text: lowercased,
// punctuation stripped, stopwords removed, tokens shorter than four runes
// dropped, ranked by frequency with lexicographic order breaking ties so the
// result is deterministic.
func Keywords(text string, k int) []string {
	counts := make(map[string]int)
	for _, tok := range strings.Fields(strings.ToLower(text)) {
		tok = strings.TrimFunc(tok, func(r rune) bool {
			return !isWordRune(r)
		})
		tok = strings.Map(func(r rune) rune {
			if isWordRune(r) {
				return r
			}
			return -1
		}, tok)
		if len([]rune(tok)) < minKeywordLen || stopwords[tok] {
			continue
		}
		counts[tok]++
	}

	tokens := make([]string, 0, len(counts))
	for tok := range counts {
		tokens = append(tokens, tok)
	}
	sort.Slice(tokens, func(i, j int) bool {
		if counts[tokens[i]] != counts[tokens[j]] {
			return counts[tokens[i]] > counts[tokens[j]]
		}
		return tokens[i] < tokens[j]
	})

	if len(tokens) > k {
		tokens = tokens[:k]
	}
	return tokens
}

func isWordRune(r rune) bool {
	return r >= 'a' && r <= 'z' || r >= '0' && r <= '9'
}

// mergeTags unions the document's explicit tags with the extracted keywords,
// explicit tags first, preserving order and dropping duplicates.
func mergeTags(explicit, keywords []string) []string {
	seen := make(map[string]bool, len(explicit)+len(keywords))
	merged := make([]string, 0, len(explicit)+len(keywords))
	for _, t := range explicit {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		merged = append(merged, t)
	}
	for _, t := range keywords {
		if seen[t] {
			continue
		}
		seen[t] = true
		merged = append(merged, t)
	}
	return merged
}

var stopwords = map[string]bool{
	"about": true, "after": true, "again": true, "against": true,
	"because": true, "been": true, "before": true, "being": true,
	"between": true, "both": true, "cannot": true, "could": true,
	"does": true, "doing": true, "down": true, "during": true,
	"each": true, "from": true, "further": true, "have": true,
	"having": true, "here": true, "inside": true, "into": true,
	"itself": true, "just": true, "more": true, "most": true,
	"only": true, "other": true, "over": true, "same": true,
	"should": true, "some": true, "such": true, "than": true,
	"that": true, "their": true, "them": true, "then": true,
	"there": true, "these": true, "they": true, "this": true,
	"those": true, "through": true, "under": true, "until": true,
	"very": true, "were": true, "what": true, "when": true,
	"where": true, "which": true, "while": true, "will": true,
	"with": true, "would": true, "your": true, "yours": true,
}
