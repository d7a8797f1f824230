package chunking

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/aestimo/internal/models"
)

// sectionPatterns mark structural boundaries in Chinese financial documents:
// note headings ("附注三、"), parenthesized ordinals ("（一）"), bare numbered
// headings ("3、"), section-sign references ("§ 3.1") and blank lines. Every
// match start becomes a split point.
var sectionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\n\s*(附注\s*[零一二三四五六七八九十百千万亿\d０-９]+[、．.])`),
	regexp.MustCompile(`\n\s*([（(][零一二三四五六七八九十百千万亿\d０-９]+[）).])`),
	regexp.MustCompile(`\n\s*([零一二三四五六七八九十百千万亿\d０-９]+[、．.])`),
	regexp.MustCompile(`\n\s*(§\s*\d+(\.\d+)*)`),
	regexp.MustCompile(`\n\n+`),
}

// Splitter cuts document text into chunks of at most maxChars characters.
// Limits are rune counts so CJK text budgets match the prompt sizing.
type Splitter struct {
	maxChars int
	logger   arbor.ILogger
}

// NewSplitter creates a splitter with the given chunk size limit.
// Non-positive limits fall back to 4000 characters.
func NewSplitter(maxChars int, logger arbor.ILogger) *Splitter {
	if maxChars <= 0 {
		maxChars = 4000
	}
	if logger == nil {
		logger = arbor.NewLogger()
	}
	return &Splitter{
		maxChars: maxChars,
		logger:   logger,
	}
}

// MaxChars returns the configured chunk size limit.
func (s *Splitter) MaxChars() int {
	return s.maxChars
}

// Split cuts text into ordered chunk texts. Sections found by the boundary
// patterns are packed greedily; a chunk never spans a section boundary and
// never exceeds maxChars characters. Empty or whitespace-only input returns
// an empty slice.
func (s *Splitter) Split(text string) []string {
	if strings.TrimSpace(text) == "" {
		return []string{}
	}
	return s.pack(s.sections(text))
}

// ChunkDocument splits text and assigns sequential chunk IDs in the form
// "{docType}_{periodLabel with spaces replaced}_{index}".
func (s *Splitter) ChunkDocument(docType, periodLabel, text string) []models.DocumentChunk {
	texts := s.Split(text)
	labelPart := strings.ReplaceAll(periodLabel, " ", "_")

	chunks := make([]models.DocumentChunk, 0, len(texts))
	for i, chunkText := range texts {
		chunks = append(chunks, models.DocumentChunk{
			ChunkID: fmt.Sprintf("%s_%s_%d", docType, labelPart, i),
			Text:    chunkText,
		})
	}

	s.logger.Debug().
		Str("doc_type", docType).
		Str("period", periodLabel).
		Int("chunks", len(chunks)).
		Msg("Split document into chunks")

	return chunks
}

// sections splits text at every pattern match. When the result is a single
// oversized section the document has no usable structure, so it degrades to
// paragraph and then line splitting.
func (s *Splitter) sections(text string) []string {
	points := map[int]struct{}{0: {}, len(text): {}}
	for _, pattern := range sectionPatterns {
		for _, loc := range pattern.FindAllStringIndex(text, -1) {
			points[loc[0]] = struct{}{}
		}
	}

	offsets := make([]int, 0, len(points))
	for p := range points {
		offsets = append(offsets, p)
	}
	sort.Ints(offsets)

	sections := make([]string, 0, len(offsets)-1)
	for i := 0; i+1 < len(offsets); i++ {
		section := strings.TrimSpace(text[offsets[i]:offsets[i+1]])
		if section != "" {
			sections = append(sections, section)
		}
	}

	if len(sections) == 0 {
		sections = splitNonEmpty(text, "\n\n")
	}
	if len(sections) == 0 || (len(sections) == 1 && utf8.RuneCountInString(sections[0]) > s.maxChars*2) {
		sections = splitNonEmpty(text, "\n")
	}

	return sections
}

// pack joins section words greedily into chunks of at most maxChars
// characters, counting one separator per word. Single words longer than
// maxChars are hard-split into full-size chunks.
func (s *Splitter) pack(sections []string) []string {
	chunks := make([]string, 0)
	var current []string
	currentLen := 0

	flush := func() {
		if len(current) > 0 {
			chunks = append(chunks, strings.Join(current, " "))
			current = nil
			currentLen = 0
		}
	}

	for _, section := range sections {
		for _, word := range strings.Fields(section) {
			wordLen := utf8.RuneCountInString(word)
			if currentLen+wordLen+1 > s.maxChars {
				flush()
				if wordLen > s.maxChars {
					runes := []rune(word)
					for len(runes) > s.maxChars {
						chunks = append(chunks, string(runes[:s.maxChars]))
						runes = runes[s.maxChars:]
					}
					word = string(runes)
					wordLen = len(runes)
				}
			}
			current = append(current, word)
			currentLen += wordLen + 1
		}
		// Chunks never span a section boundary
		flush()
	}

	return chunks
}

// splitNonEmpty splits on sep, trims each part and drops empties
func splitNonEmpty(text, sep string) []string {
	parts := strings.Split(text, sep)
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
