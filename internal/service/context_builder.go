package service

import (
	"strings"

	"github.com/cloo-solutions/docsage/internal/domain"
)

// DefaultContextTokens is the context budget used when none is given.
const DefaultContextTokens = 4000

const contextSeparator = "\n\n---\n\n"

// ContextResult is the assembled context for a prompt.
type ContextResult struct {
	Context    string
	Included   []*domain.SearchResult
	TokenCount int
}

// ContextBuilder packs ranked results into a token budget.
type ContextBuilder struct {
	counter TokenCounter
}

// NewContextBuilder creates a builder. A nil counter uses the 4-chars-per-token heuristic.
func NewContextBuilder(counter TokenCounter) *ContextBuilder {
	if counter == nil {
		counter = HeuristicCounter{}
	}
	return &ContextBuilder{counter: counter}
}

// Build includes results in rank order until the next block would exceed
// maxTokens. Included is always a prefix of results.
func (b *ContextBuilder) Build(results []*domain.SearchResult, maxTokens int) ContextResult {
	if maxTokens <= 0 {
		maxTokens = DefaultContextTokens
	}

	var sb strings.Builder
	included := make([]*domain.SearchResult, 0, len(results))
	tokens := 0

	for _, res := range results {
		if res == nil {
			break
		}
		block := formatContextBlock(res)

		candidate := block
		if sb.Len() > 0 {
			candidate = sb.String() + contextSeparator + block
		}
		count := b.counter.Count(candidate)
		if count > maxTokens {
			break
		}

		if sb.Len() > 0 {
			sb.WriteString(contextSeparator)
		}
		sb.WriteString(block)
		included = append(included, res)
		tokens = count
	}

	return ContextResult{
		Context:    sb.String(),
		Included:   included,
		TokenCount: tokens,
	}
}

func formatContextBlock(res *domain.SearchResult) string {
	var sb strings.Builder

	sb.WriteString("## ")
	sb.WriteString(resultTitle(res))
	sb.WriteString("\n")

	if section := sectionPath(res.Metadata); section != "" {
		sb.WriteString("Section: ")
		sb.WriteString(section)
		sb.WriteString("\n")
	}

	sb.WriteString("\n")
	sb.WriteString(strings.TrimSpace(res.Content))
	sb.WriteString("\n\nSource: ")
	sb.WriteString(res.URL)

	return sb.String()
}

func sectionPath(meta domain.DocumentMetadata) string {
	section := strings.TrimSpace(meta.Section)
	subsection := strings.TrimSpace(meta.Subsection)
	switch {
	case section != "" && subsection != "":
		return section + " > " + subsection
	case section != "":
		return section
	default:
		return subsection
	}
}

func resultTitle(res *domain.SearchResult) string {
	if t := strings.TrimSpace(res.Title); t != "" {
		return t
	}
	if res.URL != "" {
		return res.URL
	}
	return "Untitled"
}
