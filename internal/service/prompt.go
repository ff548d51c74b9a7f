package service

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/cloo-solutions/docsage/internal/domain"
)

// FallbackSentence is the exact answer the model must give when the context
// does not cover the question.
const FallbackSentence = "I don't have enough information in the documentation to answer this question."

const (
	defaultMaxSteps     = 8
	noDocumentationText = "No relevant documentation found."
)

// Answer schema headings. Chat surfaces split answers on these.
const (
	HeadingSummary    = "## Summary"
	HeadingOverview   = "## Overview"
	HeadingSteps      = "## Step-by-Step Instructions"
	HeadingDetails    = "## Detailed Information"
	HeadingReferences = "## References"
)

// PromptOptions shapes the requested answer schema.
type PromptOptions struct {
	IncludeSteps      bool
	IncludeReferences bool
	MaxSteps          int
}

// DefaultPromptOptions asks for steps and references with at most 8 steps.
func DefaultPromptOptions() PromptOptions {
	return PromptOptions{
		IncludeSteps:      true,
		IncludeReferences: true,
		MaxSteps:          defaultMaxSteps,
	}
}

// PromptResult is a ready-to-send generation request.
type PromptResult struct {
	SystemPrompt string
	UserPrompt   string
	Citations    []domain.Citation
}

// ValidationReport lists structural problems in an answer. It never blocks
// the answer from being returned.
type ValidationReport struct {
	Valid  bool     `json:"valid"`
	Issues []string `json:"issues"`
}

func newValidationReport(issues []string) ValidationReport {
	if issues == nil {
		issues = []string{}
	}
	return ValidationReport{Valid: len(issues) == 0, Issues: issues}
}

// PromptBuilderConfig holds links used in the no-data answer.
type PromptBuilderConfig struct {
	SupportURL   string
	CommunityURL string
}

// PromptBuilder renders prompts for the fixed answer schema.
type PromptBuilder struct {
	cfg PromptBuilderConfig
}

// NewPromptBuilder creates a PromptBuilder.
func NewPromptBuilder(cfg PromptBuilderConfig) *PromptBuilder {
	return &PromptBuilder{cfg: cfg}
}

// BuildPrompt renders the system and user prompts for query over the
// assembled context and returns the citations for docs.
func (b *PromptBuilder) BuildPrompt(query, context string, docs []*domain.SearchResult, opts PromptOptions) PromptResult {
	opts = normalizePromptOptions(opts)
	return PromptResult{
		SystemPrompt: buildSystemPrompt(opts),
		UserPrompt:   buildUserPrompt(query, context, docs),
		Citations:    ExtractCitations(docs),
	}
}

// ExtractCitations keeps the first result per URL in encounter order.
func ExtractCitations(docs []*domain.SearchResult) []domain.Citation {
	seen := make(map[string]struct{}, len(docs))
	citations := make([]domain.Citation, 0, len(docs))
	for _, d := range docs {
		if d == nil || d.URL == "" {
			continue
		}
		if _, ok := seen[d.URL]; ok {
			continue
		}
		seen[d.URL] = struct{}{}
		citations = append(citations, domain.Citation{Title: resultTitle(d), URL: d.URL})
	}
	return citations
}

// BuildFallbackAnswer returns a schema-valid answer for queries with no
// retrieved documentation.
func (b *PromptBuilder) BuildFallbackAnswer(query string, opts PromptOptions) string {
	opts = normalizePromptOptions(opts)
	var sb strings.Builder

	sb.WriteString(HeadingSummary + "\n")
	sb.WriteString(FallbackSentence + "\n\n")

	sb.WriteString(HeadingOverview + "\n")
	fmt.Fprintf(&sb, "I searched the documentation for %q but could not find content that answers it. ", strings.TrimSpace(query))
	sb.WriteString("The topic may not be documented yet, or the documentation may describe it with different terms. ")
	sb.WriteString("Rephrasing the question or asking the support team are the best next options.\n\n")

	if opts.IncludeSteps {
		sb.WriteString(HeadingSteps + "\n")
		sb.WriteString("1. Rephrase your question using the names shown in the product interface.\n")
		sb.WriteString("2. Search the documentation for a related feature or setting.\n")
		sb.WriteString("3. Contact the support team if you still need help.\n\n")
	} else {
		sb.WriteString(HeadingDetails + "\n")
		sb.WriteString("No documentation page matched this question closely enough to answer it reliably.\n\n")
	}

	if opts.IncludeReferences {
		sb.WriteString(HeadingReferences + "\n")
		if b.cfg.SupportURL != "" {
			fmt.Fprintf(&sb, "- [Support](%s)\n", b.cfg.SupportURL)
		}
		if b.cfg.CommunityURL != "" {
			fmt.Fprintf(&sb, "- [Community](%s)\n", b.cfg.CommunityURL)
		}
		if b.cfg.SupportURL == "" && b.cfg.CommunityURL == "" {
			sb.WriteString("- Contact your administrator for support.\n")
		}
	}

	return strings.TrimRight(sb.String(), "\n")
}

var (
	summaryMarker    = regexp.MustCompile(`(?im)^\s*(#{1,6}\s*summary\b|\*\*summary\*\*)`)
	overviewMarker   = regexp.MustCompile(`(?im)^\s*(#{1,6}\s*overview\b|\*\*overview\*\*)`)
	stepsMarker      = regexp.MustCompile(`(?im)(^\s*\d+[.)]\s+\S|^\s*#{1,6}\s*step)`)
	referencesMarker = regexp.MustCompile(`(?im)^\s*(#{1,6}\s*references\b|\*\*references\*\*)`)
	markdownLink     = regexp.MustCompile(`\[[^\]]+\]\([^)\s]+\)`)
	markdownHeading  = regexp.MustCompile(`(?m)^\s*#{1,6}\s+\S`)
)

// ValidatePromptResponse checks an answer against the requested schema.
func (b *PromptBuilder) ValidatePromptResponse(answer string, opts PromptOptions) ValidationReport {
	opts = normalizePromptOptions(opts)
	var issues []string

	if !summaryMarker.MatchString(answer) {
		issues = append(issues, "missing Summary section")
	}
	if !overviewMarker.MatchString(answer) {
		issues = append(issues, "missing Overview section")
	}
	if opts.IncludeSteps && !stepsMarker.MatchString(answer) {
		issues = append(issues, "missing numbered steps")
	}
	if opts.IncludeReferences && !referencesMarker.MatchString(answer) && !markdownLink.MatchString(answer) {
		issues = append(issues, "missing References section or links")
	}
	if !markdownHeading.MatchString(answer) {
		issues = append(issues, "missing markdown heading")
	}

	return newValidationReport(issues)
}

func normalizePromptOptions(opts PromptOptions) PromptOptions {
	if opts.MaxSteps <= 0 {
		opts.MaxSteps = defaultMaxSteps
	}
	return opts
}

func buildSystemPrompt(opts PromptOptions) string {
	var sb strings.Builder

	sb.WriteString("You are a documentation assistant. Answer the user's question using ONLY the documentation context provided in the user message.\n\n")

	sb.WriteString("Rules:\n")
	sb.WriteString("- Do not use knowledge from outside the provided context.\n")
	sb.WriteString("- Do not invent features, menu names, settings or URLs.\n")
	sb.WriteString("- If the context does not contain the answer, reply with exactly this sentence as the Summary and say so in the Overview:\n")
	sb.WriteString("  \"" + FallbackSentence + "\"\n")
	sb.WriteString("- Use the exact headings below, in this order, and no other top-level headings.\n\n")

	sb.WriteString("Answer format:\n\n")
	sb.WriteString(HeadingSummary + "\n")
	sb.WriteString("One sentence that directly answers the question.\n\n")
	sb.WriteString(HeadingOverview + "\n")
	sb.WriteString("Two to four sentences of background from the documentation.\n\n")

	if opts.IncludeSteps {
		sb.WriteString(HeadingSteps + "\n")
		fmt.Fprintf(&sb, "A numbered list (1., 2., 3.) of at most %d concrete steps. Start each step with an action verb.\n\n", opts.MaxSteps)
	} else {
		sb.WriteString(HeadingDetails + "\n")
		sb.WriteString("The relevant details from the documentation, as short paragraphs or bullet points.\n\n")
	}

	if opts.IncludeReferences {
		sb.WriteString(HeadingReferences + "\n")
		sb.WriteString("A bullet list of markdown links [Title](URL) to the sources you used. Only list URLs that appear in the documentation context.\n")
	}

	return strings.TrimRight(sb.String(), "\n")
}

func buildUserPrompt(query, context string, docs []*domain.SearchResult) string {
	var sb strings.Builder

	sb.WriteString("# Documentation Context\n\n")
	if strings.TrimSpace(context) == "" {
		sb.WriteString(noDocumentationText)
	} else {
		sb.WriteString(context)
	}
	sb.WriteString("\n\n")

	if len(docs) > 0 {
		sb.WriteString("# Retrieved Documents\n\n")
		sb.WriteString("| # | Title | Score | URL | Section | Content Type |\n")
		sb.WriteString("|---|---|---|---|---|---|\n")
		for i, d := range docs {
			if d == nil {
				continue
			}
			fmt.Fprintf(&sb, "| %d | %s | %.2f | %s | %s | %s |\n",
				i+1,
				tableCell(resultTitle(d)),
				d.Score,
				tableCell(d.URL),
				tableCell(sectionPath(d.Metadata)),
				tableCell(string(d.Metadata.ContentType)),
			)
		}
		sb.WriteString("\n")
	}

	sb.WriteString("# Question\n\n")
	sb.WriteString(query)

	return sb.String()
}

func tableCell(s string) string {
	s = strings.ReplaceAll(s, "|", `\|`)
	s = strings.ReplaceAll(s, "\n", " ")
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}
