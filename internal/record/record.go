package record

import (
	"errors"
	"time"
)

var (
	ErrMalformed         = errors.New("malformed record")
	ErrUnknownSourceType = errors.New("unknown source type")
)

type SourceType string

const (
	SourceForumPost    SourceType = "forum_post"
	SourceForumComment SourceType = "forum_comment"
	SourceRepoReadme   SourceType = "repo_readme"
	SourceRepoFile     SourceType = "repo_file"
)

// Valid reports whether the source type is one this pipeline knows how to
// normalize.
func (s SourceType) Valid() bool {
	switch s {
	case SourceForumPost, SourceForumComment, SourceRepoReadme, SourceRepoFile:
		return true
	}
	return false
}

// RawRecord is one scraped record as it arrives from a source file. Which
// fields are required depends on the source type.
type RawRecord struct {
	ID        string   `json:"id,omitempty"`
	Title     string   `json:"title,omitempty"`
	Body      string   `json:"body,omitempty"`
	Path      string   `json:"path,omitempty"`
	Content   string   `json:"content,omitempty"`
	URL       string   `json:"url,omitempty"`
	Author    string   `json:"author,omitempty"`
	Score     int      `json:"score,omitempty"`
	CreatedAt string   `json:"created_at,omitempty"`
	Tags      []string `json:"tags,omitempty"`

	// Prompts holds prompt-like sections extracted separately from repo
	// documents by the scraper.
	Prompts []string `json:"prompts,omitempty"`
}

// Document is the normalized, source-type-tagged unit of raw text handed to
// the chunker. It is owned by the run that created it and never persisted.
type Document struct {
	SourceID     string
	SourceType   SourceType
	RawText      string
	SourceURL    string
	Author       string
	Score        int
	CreatedAt    time.Time
	ExplicitTags []string
}
