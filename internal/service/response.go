package service

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

const (
	minResponseLength = 50
	maxSummaryRunes   = 200
)

var refusalPhrases = []string{
	"i cannot help",
	"i can't help",
	"i am unable to",
	"i'm unable to",
	"i cannot provide",
	"i can't provide",
	"as an ai",
	"as a language model",
	"i'm sorry, but i",
	"i apologize, but i",
}

var placeholderTokens = []string{"TODO", "TBD", "..."}

var imperativeVerbs = []string{
	"navigate to", "click on", "click", "select", "open", "go to", "enter",
	"choose", "type", "press", "enable", "disable", "add", "save", "tap",
	"fill in", "upload", "download", "set", "toggle", "confirm", "submit",
}

var (
	numberedItem   = regexp.MustCompile(`(?m)^[ \t]*\d+[.)][ \t]+(.+)$`)
	bulletItem     = regexp.MustCompile(`(?m)^[ \t]*[-*•][ \t]+(.+)$`)
	stepsHeading   = regexp.MustCompile(`(?i)^\s*#{1,6}\s*.*\bsteps?\b`)
	summaryHeading = regexp.MustCompile(`(?i)^\s*(#{1,6}\s*summary\s*:?|\*\*summary:?\*\*:?)\s*$`)
	summaryInline  = regexp.MustCompile(`(?im)^\s*\*\*summary:?\*\*:?[ \t]*(\S.*)$`)
	anyHeading     = regexp.MustCompile(`^\s*(#{1,6}\s+\S|\*\*[^*]+\*\*\s*:?\s*$)`)
	firstSentence  = regexp.MustCompile(`^(.+?[.!?])(\s|$)`)
	placeholderTok = regexp.MustCompile(`\b(TODO|TBD)\b`)
	imperativeRe   = buildImperativeRegexp(imperativeVerbs)

	blankRuns     = regexp.MustCompile(`\n[ \t]*\n(?:[ \t]*\n)+`)
	deepHeading   = regexp.MustCompile(`(?m)^#{4,}[ \t]*`)
	numberMarker  = regexp.MustCompile(`(?m)^([ \t]*)(\d+)\.[ \t]*([^\s\d])`)
	trailingSpace = regexp.MustCompile(`(?m)[ \t]+$`)
)

func buildImperativeRegexp(verbs []string) *regexp.Regexp {
	quoted := make([]string, len(verbs))
	for i, v := range verbs {
		quoted[i] = regexp.QuoteMeta(v)
	}
	return regexp.MustCompile(`(?i)\b(` + strings.Join(quoted, "|") + `)\b`)
}

// ParseSteps returns numbered list items, preferring the steps section when
// one exists. Without numbered items it falls back to bullets that read as
// instructions.
func ParseSteps(text string) []string {
	scope := text
	if body, ok := sectionBody(text, stepsHeading); ok {
		scope = body
	}

	steps := matchItems(numberedItem, scope)
	if len(steps) > 0 {
		return steps
	}

	var out []string
	for _, item := range matchItems(bulletItem, scope) {
		if imperativeRe.MatchString(item) {
			out = append(out, item)
		}
	}
	return out
}

// ParseSummary returns the labelled Summary section, else the first
// sentence, else the first 200 characters.
func ParseSummary(text string) string {
	if m := summaryInline.FindStringSubmatch(text); m != nil {
		return strings.TrimSpace(m[1])
	}
	if body, ok := sectionBody(text, summaryHeading); ok && body != "" {
		return collapseWhitespace(body)
	}

	plain := collapseWhitespace(stripHeadings(text))
	if plain == "" {
		return ""
	}
	if m := firstSentence.FindStringSubmatch(plain); m != nil {
		return strings.TrimSpace(m[1])
	}
	if utf8.RuneCountInString(plain) > maxSummaryRunes {
		return string([]rune(plain)[:maxSummaryRunes])
	}
	return plain
}

// ValidateResponse reports quality problems in a generated answer.
func ValidateResponse(text string) ValidationReport {
	var issues []string
	trimmed := strings.TrimSpace(text)

	if n := utf8.RuneCountInString(trimmed); n < minResponseLength {
		issues = append(issues, fmt.Sprintf("response too short: %d characters, minimum %d", n, minResponseLength))
	}
	if !markdownHeading.MatchString(trimmed) {
		issues = append(issues, "missing markdown heading")
	}
	for _, tok := range placeholderTokens {
		if containsPlaceholder(trimmed, tok) {
			issues = append(issues, fmt.Sprintf("contains placeholder %q", tok))
		}
	}
	if phrase, ok := findRefusal(trimmed); ok {
		issues = append(issues, fmt.Sprintf("contains refusal phrasing %q", phrase))
	}

	return newValidationReport(issues)
}

// CleanResponse collapses blank-line runs, caps heading depth at ### and
// normalises numbered-list markers to "N. ".
func CleanResponse(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = trailingSpace.ReplaceAllString(text, "")
	text = blankRuns.ReplaceAllString(text, "\n\n")
	text = deepHeading.ReplaceAllString(text, "### ")
	text = numberMarker.ReplaceAllString(text, "${1}${2}. ${3}")
	return strings.TrimSpace(text)
}

func containsPlaceholder(text, tok string) bool {
	if tok == "..." {
		return strings.Contains(text, "...") || strings.Contains(text, "…")
	}
	for _, m := range placeholderTok.FindAllString(text, -1) {
		if m == tok {
			return true
		}
	}
	return false
}

func findRefusal(text string) (string, bool) {
	lower := strings.ToLower(strings.ReplaceAll(text, "’", "'"))
	for _, phrase := range refusalPhrases {
		if strings.Contains(lower, phrase) {
			return phrase, true
		}
	}
	return "", false
}

// sectionBody returns the lines after the first line matching heading, up
// to the next heading.
func sectionBody(text string, heading *regexp.Regexp) (string, bool) {
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		if !heading.MatchString(line) {
			continue
		}
		var body []string
		for _, next := range lines[i+1:] {
			if anyHeading.MatchString(next) {
				break
			}
			body = append(body, next)
		}
		return strings.TrimSpace(strings.Join(body, "\n")), true
	}
	return "", false
}

func matchItems(re *regexp.Regexp, text string) []string {
	var out []string
	for _, m := range re.FindAllStringSubmatch(text, -1) {
		if item := strings.TrimSpace(m[1]); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func stripHeadings(text string) string {
	lines := strings.Split(text, "\n")
	kept := lines[:0]
	for _, line := range lines {
		if anyHeading.MatchString(line) {
			continue
		}
		kept = append(kept, line)
	}
	return strings.Join(kept, "\n")
}

func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
