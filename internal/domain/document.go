package domain

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// ContentType classifies a crawled page
type ContentType string

const (
	ContentTypeGuide     ContentType = "guide"
	ContentTypeReference ContentType = "reference"
	ContentTypeFAQ       ContentType = "faq"
	ContentTypeTutorial  ContentType = "tutorial"
	ContentTypeArticle   ContentType = "article"
)

// ChunkURLSeparator joins a parent document URL and a chunk identifier.
const ChunkURLSeparator = "#chunk-"

// DocumentMetadata carries the descriptive attributes of a crawled page.
type DocumentMetadata struct {
	ContentType ContentType
	Section     string
	Subsection  string
	ChunkIndex  int
	TotalChunks int
	Collection  string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Document represents a crawled documentation page, or one chunk of it
type Document struct {
	ID       string
	URL      string
	Title    string
	Content  string
	RawHTML  string // Optional; archived outside the vector index
	Metadata DocumentMetadata
}

// NewDocument creates a new Document instance
func NewDocument(id, pageURL, title, content string, metadata DocumentMetadata) *Document {
	return &Document{
		ID:       id,
		URL:      pageURL,
		Title:    title,
		Content:  content,
		Metadata: metadata,
	}
}

// IsChunk reports whether the document is one piece of a split page.
func (d *Document) IsChunk() bool {
	return d.Metadata.TotalChunks > 1
}

// ParentURL returns the URL of the page the document was split from.
func (d *Document) ParentURL() string {
	return ParentURL(d.URL)
}

// ChunkURL builds the URL of the chunk at index for a parent page URL.
func ChunkURL(parentURL string, index int) string {
	return fmt.Sprintf("%s%s%d", parentURL, ChunkURLSeparator, index)
}

// ParentURL strips a chunk identifier from a URL, if present.
func ParentURL(u string) string {
	if i := strings.LastIndex(u, ChunkURLSeparator); i >= 0 {
		return u[:i]
	}
	return u
}

// ValidateDocument validates a Document instance
func ValidateDocument(d *Document) error {
	if d == nil {
		return fmt.Errorf("document cannot be nil")
	}

	if strings.TrimSpace(d.URL) == "" {
		return fmt.Errorf("document URL is required")
	}

	parsed, err := url.Parse(d.URL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return fmt.Errorf("document URL is invalid: %s", d.URL)
	}

	if strings.TrimSpace(d.Title) == "" {
		return fmt.Errorf("document Title is required")
	}

	if strings.TrimSpace(d.Content) == "" {
		return fmt.Errorf("document Content is required")
	}

	if d.Metadata.ContentType != "" && !d.Metadata.ContentType.IsValid() {
		return fmt.Errorf("document ContentType is invalid: %s", d.Metadata.ContentType)
	}

	if d.Metadata.TotalChunks > 0 && d.Metadata.ChunkIndex >= d.Metadata.TotalChunks {
		return fmt.Errorf("document ChunkIndex %d must be less than TotalChunks %d", d.Metadata.ChunkIndex, d.Metadata.TotalChunks)
	}

	if d.Metadata.ChunkIndex < 0 {
		return fmt.Errorf("document ChunkIndex cannot be negative")
	}

	return nil
}

// IsValid reports whether t is one of the known content types.
func (t ContentType) IsValid() bool {
	switch t {
	case ContentTypeGuide, ContentTypeReference, ContentTypeFAQ,
		ContentTypeTutorial, ContentTypeArticle:
		return true
	}
	return false
}
