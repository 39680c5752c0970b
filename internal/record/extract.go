package record

import (
	"fmt"
	"strings"
	"time"

	"quarry/ingest/internal/text"
)

// Extractor builds the raw text of a Document from one scraped record.
// Each source type gets its own strategy so adding a type stays a local
// change.
type Extractor interface {
	Extract(raw RawRecord) (string, error)
}

var extractors = map[SourceType]Extractor{
	SourceForumPost:    forumPostExtractor{},
	SourceForumComment: forumCommentExtractor{},
	SourceRepoReadme:   repoExtractor{},
	SourceRepoFile:     repoExtractor{},
}

type forumPostExtractor struct{}

func (forumPostExtractor) Extract(raw RawRecord) (string, error) {
	if raw.Title == "" && raw.Body == "" {
		return "", fmt.Errorf("%w: forum post needs a title or body", ErrMalformed)
	}
	if raw.Title == "" {
		return raw.Body, nil
	}
	if raw.Body == "" {
		return raw.Title, nil
	}
	return raw.Title + "\n\n" + raw.Body, nil
}

type forumCommentExtractor struct{}

func (forumCommentExtractor) Extract(raw RawRecord) (string, error) {
	if raw.Body == "" {
		return "", fmt.Errorf("%w: forum comment needs a body", ErrMalformed)
	}
	return raw.Body, nil
}

type repoExtractor struct{}

func (repoExtractor) Extract(raw RawRecord) (string, error) {
	if raw.Path == "" || raw.Content == "" {
		return "", fmt.Errorf("%w: repo record needs a path and content", ErrMalformed)
	}
	parts := append([]string{raw.Content}, raw.Prompts...)
	return strings.Join(parts, "\n\n"), nil
}

// Normalize converts one raw record of the given source type into a Document.
// It has no side effects and never panics on bad input; malformed records
// come back as ErrMalformed so the orchestrator can count and skip them.
func Normalize(raw RawRecord, sourceType SourceType) (*Document, error) {
	ex, ok := extractors[sourceType]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownSourceType, sourceType)
	}

	rawText, err := ex.Extract(raw)
	if err != nil {
		return nil, err
	}

	doc := &Document{
		SourceID:     sourceID(raw, rawText),
		SourceType:   sourceType,
		RawText:      rawText,
		SourceURL:    raw.URL,
		Author:       raw.Author,
		Score:        raw.Score,
		ExplicitTags: raw.Tags,
	}

	if raw.CreatedAt != "" {
		if ts, err := time.Parse(time.RFC3339, raw.CreatedAt); err == nil {
			doc.CreatedAt = ts
		}
	}

	return doc, nil
}

// sourceID falls back to stable record properties when the scraper did not
// assign an ID, so re-ingesting the same file yields the same identifiers.
func sourceID(raw RawRecord, rawText string) string {
	switch {
	case raw.ID != "":
		return raw.ID
	case raw.URL != "":
		return raw.URL
	case raw.Path != "":
		return raw.Path
	}
	return "rec-" + text.ContentHash(rawText)[:12]
}
