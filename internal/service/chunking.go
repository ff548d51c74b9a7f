package service

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// DefaultMaxChunkChars is the ingestion chunk size when none is configured.
const DefaultMaxChunkChars = 45000

var (
	paragraphBreak = regexp.MustCompile(`\n\s*\n`)
	sentenceEnd    = regexp.MustCompile(`[.!?]\s+`)
)

// ChunkContent splits text into pieces of at most maxLength characters.
// Boundaries prefer paragraphs, then sentences, then words; a single word longer
// than maxLength is kept whole.
func ChunkContent(text string, maxLength int) []string {
	if maxLength <= 0 {
		maxLength = DefaultMaxChunkChars
	}
	if charLen(text) <= maxLength {
		return []string{text}
	}

	acc := newChunkAccumulator(maxLength)
	for _, paragraph := range paragraphBreak.Split(text, -1) {
		paragraph = strings.TrimSpace(paragraph)
		if paragraph == "" {
			continue
		}
		if charLen(paragraph) <= maxLength {
			acc.add(paragraph, "\n\n")
			continue
		}

		acc.flush()
		for _, sentence := range splitSentences(paragraph) {
			if charLen(sentence) <= maxLength {
				acc.add(sentence, " ")
				continue
			}

			acc.flush()
			for _, word := range strings.Fields(sentence) {
				acc.add(word, " ")
			}
			acc.flush()
		}
		acc.flush()
	}
	acc.flush()

	return acc.chunks
}

// splitSentences splits after '.', '!' or '?' followed by whitespace.
func splitSentences(paragraph string) []string {
	var sentences []string
	start := 0
	for _, loc := range sentenceEnd.FindAllStringIndex(paragraph, -1) {
		// keep the punctuation with its sentence
		end := loc[0] + 1
		if s := strings.TrimSpace(paragraph[start:end]); s != "" {
			sentences = append(sentences, s)
		}
		start = loc[1]
	}
	if s := strings.TrimSpace(paragraph[start:]); s != "" {
		sentences = append(sentences, s)
	}
	return sentences
}

type chunkAccumulator struct {
	max    int
	buf    strings.Builder
	bufLen int
	chunks []string
}

func newChunkAccumulator(max int) *chunkAccumulator {
	return &chunkAccumulator{max: max}
}

// add appends piece to the buffer, flushing first when it would not fit.
func (a *chunkAccumulator) add(piece, sep string) {
	pieceLen := charLen(piece)
	if a.bufLen > 0 && a.bufLen+charLen(sep)+pieceLen > a.max {
		a.flush()
	}
	if a.bufLen > 0 {
		a.buf.WriteString(sep)
		a.bufLen += charLen(sep)
	}
	a.buf.WriteString(piece)
	a.bufLen += pieceLen
}

func (a *chunkAccumulator) flush() {
	if a.bufLen == 0 {
		return
	}
	if chunk := strings.TrimSpace(a.buf.String()); chunk != "" {
		a.chunks = append(a.chunks, chunk)
	}
	a.buf.Reset()
	a.bufLen = 0
}

func charLen(s string) int {
	return utf8.RuneCountInString(s)
}
