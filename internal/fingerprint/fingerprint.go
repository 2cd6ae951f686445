// Package fingerprint derives a compact text summary from a document's
// extracted text. Fingerprints feed the clustering engine's similarity
// comparison and the reference-document scoring; they have no identity of
// their own and are recomputed whenever a document is rescanned.
package fingerprint

import (
	"regexp"
	"sort"
	"strings"
)

const (
	// edgeLines is how many lines from the top and bottom of the page go
	// into the positional text signals.
	edgeLines = 10

	// tableMinColumns and tableMinRows drive the table heuristic: a document
	// "has a table" when at least tableMinRows lines split into at least
	// tableMinColumns multi-space- or tab-separated parts.
	tableMinColumns = 3
	tableMinRows    = 3
)

// columnSeparator splits a line into column-like parts on runs of two or
// more spaces, or tabs. Shared with the extraction engine's text fallback.
var columnSeparator = regexp.MustCompile(`\s{2,}|\t`)

// keywordPatterns match Swedish and English invoice vocabulary. Word-prefix
// matching (faktura, fakturanummer, fakturadatum, ...) keeps inflected forms.
var keywordPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bfaktura\w*`),
	regexp.MustCompile(`(?i)\binvoice\w*`),
	regexp.MustCompile(`(?i)\btotal\w*`),
	regexp.MustCompile(`(?i)\bmoms\w*`),
	regexp.MustCompile(`(?i)\bvat\w*`),
	regexp.MustCompile(`(?i)\bdatum\w*`),
	regexp.MustCompile(`(?i)\bdate\w*`),
	regexp.MustCompile(`(?i)\bnummer\w*`),
	regexp.MustCompile(`(?i)\bnumber\w*`),
	regexp.MustCompile(`(?i)\bordernr\w*`),
	regexp.MustCompile(`(?i)\border\s*no\w*`),
	regexp.MustCompile(`(?i)\bartikel\w*`),
	regexp.MustCompile(`(?i)\bitem\w*`),
	regexp.MustCompile(`(?i)\bpris\w*`),
	regexp.MustCompile(`(?i)\bprice\w*`),
	regexp.MustCompile(`(?i)\bantal\w*`),
	regexp.MustCompile(`(?i)\bquantity\w*`),
	regexp.MustCompile(`(?i)\bsumma\w*`),
	regexp.MustCompile(`(?i)\bsum\w*`),
}

// Fingerprint summarizes a document's text signal for similarity comparison.
type Fingerprint struct {
	TopText    string   `json:"top_text"`
	BottomText string   `json:"bottom_text"`
	Keywords   []string `json:"keywords"`
	TotalWords int      `json:"total_words"`
	TotalLines int      `json:"total_lines"`
	HasTable   bool     `json:"has_table"`
	FullText   string   `json:"full_text"`
}

// Compute builds a fingerprint from raw document text. It is a pure function:
// identical text always yields an identical fingerprint, and empty text
// yields a degenerate zero-value one.
func Compute(text string) Fingerprint {
	lines := strings.Split(text, "\n")

	top := lines
	if len(top) > edgeLines {
		top = top[:edgeLines]
	}
	bottom := lines
	if len(bottom) > edgeLines {
		bottom = bottom[len(bottom)-edgeLines:]
	}

	return Fingerprint{
		TopText:    strings.Join(top, " "),
		BottomText: strings.Join(bottom, " "),
		Keywords:   extractKeywords(text),
		TotalWords: len(strings.Fields(text)),
		TotalLines: len(lines),
		HasTable:   detectTable(lines),
		FullText:   text,
	}
}

// CorpusText flattens the fingerprint into the single string that the TF-IDF
// vectorizer consumes: positional signals, keywords, then full text.
func (f Fingerprint) CorpusText() string {
	parts := []string{f.TopText, f.BottomText, strings.Join(f.Keywords, " "), f.FullText}
	return strings.Join(parts, " ")
}

// extractKeywords returns the deduplicated set of domain keyword matches,
// sorted so the result is deterministic.
func extractKeywords(text string) []string {
	lower := strings.ToLower(text)
	seen := make(map[string]struct{})
	for _, pattern := range keywordPatterns {
		for _, match := range pattern.FindAllString(lower, -1) {
			seen[match] = struct{}{}
		}
	}

	keywords := make([]string, 0, len(seen))
	for kw := range seen {
		keywords = append(keywords, kw)
	}
	sort.Strings(keywords)
	return keywords
}

// detectTable applies the column heuristic over every line.
func detectTable(lines []string) bool {
	indicators := 0
	for _, line := range lines {
		parts := columnSeparator.Split(strings.TrimSpace(line), -1)
		if len(parts) >= tableMinColumns {
			indicators++
			if indicators >= tableMinRows {
				return true
			}
		}
	}
	return false
}

// SplitColumns exposes the shared column separator for table-like lines.
func SplitColumns(line string) []string {
	return columnSeparator.Split(strings.TrimSpace(line), -1)
}
