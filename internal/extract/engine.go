// Package extract applies a cluster's template to one document, producing
// named field values and table rows. The engine is a pure function of
// (document path, template) over a read-only text source; it never mutates
// shared state, so callers may run it across a cluster sequentially and
// store results as they arrive.
package extract

import (
	"context"
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/dokmap/dokmap/internal/fingerprint"
	"github.com/dokmap/dokmap/internal/geometry"
	"github.com/dokmap/dokmap/internal/logger"
	"github.com/dokmap/dokmap/internal/template"
)

// TextSource supplies recognized text for whole documents and for cropped
// page regions. Implementations layer a text-layer read over image
// recognition; the engine does not care which path produced the text.
type TextSource interface {
	// DocumentText returns the full text of a document. When recognition
	// partially failed, implementations may return the text obtained so far
	// together with a non-nil error; the engine degrades that to a warning.
	DocumentText(ctx context.Context, path, language string) (string, error)

	// RegionText recognizes the text inside one normalized page region.
	RegionText(ctx context.Context, path string, pageIndex int, region geometry.NormalizedRect, language string) (string, error)
}

// Result is the outcome of applying a template to one document. Fields and
// tables that could not be resolved are simply absent; Warnings records why.
type Result struct {
	Fields   map[string]string              `json:"fields"`
	Tables   map[string][]map[string]string `json:"tables"`
	RawText  string                         `json:"raw_text"`
	Warnings []string                       `json:"warnings,omitempty"`
}

// proximityWindow is how many lines below a matched header the fallback
// scan inspects for a value.
const proximityWindow = 3

// Engine applies templates to documents.
type Engine struct {
	source TextSource
	log    logger.Logger
}

// NewEngine creates an extraction engine over a text source.
func NewEngine(source TextSource, log logger.Logger) *Engine {
	return &Engine{source: source, log: log}
}

// Extract applies a template to the document at path. Field- and
// table-level failures degrade to warnings; only document-level problems
// (missing file, nil template, unreadable source with no fallback text,
// or a completely empty outcome on an unreadable page) return an error.
func (e *Engine) Extract(ctx context.Context, path string, tpl *template.Template) (*Result, error) {
	if tpl == nil {
		return nil, InvalidTemplateError()
	}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil, NotFoundError(path)
		}
		return nil, UnreadableError(path, err)
	}

	result := &Result{
		Fields: make(map[string]string),
		Tables: make(map[string][]map[string]string),
	}

	language := tpl.Language()
	text, err := e.source.DocumentText(ctx, path, language)
	if err != nil {
		if text == "" {
			return nil, err
		}
		// Partial text is still usable; keep going with what we have.
		result.Warnings = append(result.Warnings, fmt.Sprintf("recognition incomplete: %v", err))
		e.log.Warn("extracting %s with partial text: %v", path, err)
	}
	result.RawText = text

	if tpl.IsEmpty() {
		return result, nil
	}

	lines := strings.Split(text, "\n")

	for _, fm := range tpl.FieldMappings {
		value, ok, err := e.extractField(ctx, path, text, lines, fm, language)
		if err != nil {
			result.Warnings = append(result.Warnings, fmt.Sprintf("field %q: %v", fm.FieldName, err))
			e.log.Warn("field %q on %s: %v", fm.FieldName, path, err)
			continue
		}
		if ok {
			result.Fields[fm.FieldName] = value
		}
	}

	for _, tm := range tpl.TableMappings {
		rows, err := e.extractTable(ctx, path, lines, tm, language)
		if err != nil {
			result.Warnings = append(result.Warnings, fmt.Sprintf("table %q: %v", tm.TableName, err))
			e.log.Warn("table %q on %s: %v", tm.TableName, path, err)
			continue
		}
		if len(rows) > 0 {
			result.Tables[tm.TableName] = rows
		}
	}

	// Only a document with no usable text at all counts as a total failure;
	// a readable document where no mapping matched returns empty results.
	if len(result.Fields) == 0 && len(result.Tables) == 0 && strings.TrimSpace(text) == "" {
		return nil, TotalFailureError(path)
	}
	return result, nil
}

// extractField resolves one value_header field. Strategies are attempted in
// order and the first success wins: header regex, coordinate region,
// proximity scan. A mapping with no strategy is skipped with a warning via
// the error return; a missing value is (_, false, nil), not an error.
func (e *Engine) extractField(ctx context.Context, path, text string, lines []string, fm template.FieldMapping, language string) (string, bool, error) {
	if !fm.HasStrategy() {
		return "", false, fmt.Errorf("mapping has neither header_text nor value_coords, skipped")
	}

	if fm.HeaderText != "" {
		if value, ok := matchHeaderValue(text, fm.HeaderText); ok {
			return value, true, nil
		}
	}

	if fm.ValueCoords != nil {
		if err := fm.ValueCoords.Validate(); err != nil {
			return "", false, InvalidCoordinatesError("field "+fm.FieldName, err)
		}
		value, err := e.source.RegionText(ctx, path, 0, *fm.ValueCoords, language)
		if err != nil {
			e.log.Debug("region recognition for field %q failed, trying proximity: %v", fm.FieldName, err)
		} else if value = strings.TrimSpace(value); value != "" {
			return value, true, nil
		}
	}

	if fm.HeaderText != "" {
		if value, ok := proximityValue(lines, fm.HeaderText); ok {
			return value, true, nil
		}
	}
	return "", false, nil
}

// matchHeaderValue finds "Header: value" on a single line, case-insensitive,
// with the colon optional.
func matchHeaderValue(text, headerText string) (string, bool) {
	pattern, err := regexp.Compile(`(?im)` + regexp.QuoteMeta(headerText) + `\s*:?\s*(.+)$`)
	if err != nil {
		return "", false
	}
	m := pattern.FindStringSubmatch(text)
	if m == nil {
		return "", false
	}
	value := strings.TrimSpace(m[1])
	return value, value != ""
}

// proximityValue scans for a line containing the header and returns the
// first non-empty remainder on that line or the next two, with the header
// and surrounding punctuation stripped.
func proximityValue(lines []string, headerText string) (string, bool) {
	headerLower := strings.ToLower(headerText)
	for i, line := range lines {
		if !strings.Contains(strings.ToLower(line), headerLower) {
			continue
		}
		for j := i; j < i+proximityWindow && j < len(lines); j++ {
			value := strings.TrimSpace(strings.Trim(stripHeader(lines[j], headerText), ": "))
			if value != "" && value != strings.TrimSpace(line) {
				return value, true
			}
		}
		return "", false
	}
	return "", false
}

// stripHeader removes the first case-insensitive occurrence of the header
// from a line.
func stripHeader(line, headerText string) string {
	idx := strings.Index(strings.ToLower(line), strings.ToLower(headerText))
	if idx < 0 {
		return line
	}
	return line[:idx] + line[idx+len(headerText):]
}

// extractTable resolves one table mapping. Cell-by-cell coordinate
// extraction runs only when every column carries coordinates and a row grid
// exists; anything less falls back to text splitting, with the downgrade
// logged so a partially coordinate-mapped template is visible.
func (e *Engine) extractTable(ctx context.Context, path string, lines []string, tm template.TableMapping, language string) ([]map[string]string, error) {
	if err := tm.TableCoords.Validate(); err != nil {
		return nil, InvalidCoordinatesError("table "+tm.TableName, err)
	}
	if err := tm.Validate(); err != nil {
		return nil, err
	}
	if len(tm.Columns) == 0 {
		return nil, fmt.Errorf("table mapping has no columns")
	}

	if tm.HasFullColumnCoords() && tm.HasRowGrid() {
		return e.extractTableByCoordinates(ctx, path, tm, language)
	}

	if tm.HasFullColumnCoords() || tm.HasRowGrid() || anyColumnCoords(tm) {
		e.log.Warn("table %q has partial coordinates; falling back to text splitting", tm.TableName)
	}
	return e.extractTableFromText(lines, tm), nil
}

func anyColumnCoords(tm template.TableMapping) bool {
	for _, col := range tm.Columns {
		if col.Coords != nil {
			return true
		}
	}
	return false
}

// extractTableByCoordinates recognizes each cell crop independently. Rows
// come from the explicit row grid, or are synthesized below the header row
// band until the table's bottom edge. Rows empty across all columns are
// dropped.
func (e *Engine) extractTableByCoordinates(ctx context.Context, path string, tm template.TableMapping, language string) ([]map[string]string, error) {
	bands := tm.SortedRowBands()
	if len(bands) == 0 {
		var err error
		bands, err = synthesizeRowBands(tm)
		if err != nil {
			return nil, err
		}
	} else if tm.HasHeaderRow && tm.HeaderRowCoords != nil {
		bands = dropHeaderBand(bands, *tm.HeaderRowCoords)
	}

	columns := tm.SortedColumns()
	var rows []map[string]string
	for _, band := range bands {
		row := make(map[string]string, len(columns))
		empty := true
		for _, col := range columns {
			rowRect := geometry.NewNormalizedRect(tm.TableCoords.X, band.Y, tm.TableCoords.Width, band.Height)
			cell := geometry.CellRect(*col.Coords, rowRect)

			value, err := e.source.RegionText(ctx, path, 0, cell, language)
			if err != nil {
				e.log.Debug("cell recognition failed for table %q column %q: %v", tm.TableName, col.Name, err)
				value = ""
			}
			value = strings.TrimSpace(value)
			row[col.Name] = value
			if value != "" {
				empty = false
			}
		}
		if !empty {
			rows = append(rows, row)
		}
	}
	return rows, nil
}

// synthesizeRowBands repeats the header band's height downward from the
// header's bottom edge until the table's bottom bound.
func synthesizeRowBands(tm template.TableMapping) ([]template.RowBand, error) {
	header := tm.HeaderRowCoords
	if header == nil {
		return nil, fmt.Errorf("no row grid and no header row band to derive one from")
	}
	if header.Height <= 0 {
		return nil, InvalidCoordinatesError("table "+tm.TableName+" header row", fmt.Errorf("non-positive height %v", header.Height))
	}

	bottom := tm.TableCoords.Y + tm.TableCoords.Height
	var bands []template.RowBand
	for y, index := header.Y+header.Height, 0; y+header.Height <= bottom+1e-9; y, index = y+header.Height, index+1 {
		bands = append(bands, template.RowBand{Y: y, Height: header.Height, Index: index})
	}
	return bands, nil
}

// dropHeaderBand removes bands overlapping the header row band so a grid
// captured with its header is not emitted as a data row.
func dropHeaderBand(bands []template.RowBand, header geometry.NormalizedRect) []template.RowBand {
	kept := bands[:0]
	for _, band := range bands {
		if band.Y < header.Y+header.Height && band.Y+band.Height > header.Y {
			continue
		}
		kept = append(kept, band)
	}
	return kept
}

// extractTableFromText splits page lines into columns on runs of two or
// more spaces or tabs, treats lines with at least as many parts as declared
// columns as table rows, and maps declared column indices into the parts.
func (e *Engine) extractTableFromText(lines []string, tm template.TableMapping) []map[string]string {
	var candidates [][]string
	widest := 0
	for _, line := range lines {
		parts := fingerprint.SplitColumns(strings.TrimSpace(line))
		if len(parts) >= len(tm.Columns) {
			candidates = append(candidates, parts)
			if len(parts) > widest {
				widest = len(parts)
			}
		}
	}

	e.logTableShapeWarnings(tm, candidates, widest)

	if tm.HasHeaderRow && len(candidates) > 0 {
		candidates = candidates[1:]
	}

	var rows []map[string]string
	for _, parts := range candidates {
		row := make(map[string]string, len(tm.Columns))
		empty := true
		for _, col := range tm.Columns {
			value := ""
			if col.Index >= 0 && col.Index < len(parts) {
				value = strings.TrimSpace(parts[col.Index])
			}
			row[col.Name] = value
			if value != "" {
				empty = false
			}
		}
		if !empty {
			rows = append(rows, row)
		}
	}
	return rows
}

// logTableShapeWarnings reports non-fatal structural oddities in detected
// text rows. Logged only; extraction proceeds regardless.
func (e *Engine) logTableShapeWarnings(tm template.TableMapping, candidates [][]string, widest int) {
	if tm.HasHeaderRow && len(candidates) == 0 {
		e.log.Warn("table %q declares a header row but no table-like lines were found", tm.TableName)
		return
	}

	counts := make(map[int]bool)
	for _, parts := range candidates {
		counts[len(parts)] = true
	}
	if len(counts) > 1 {
		e.log.Warn("table %q: detected rows have inconsistent column counts", tm.TableName)
	}

	columns := tm.SortedColumns()
	for i, col := range columns {
		if col.Index >= widest && widest > 0 {
			e.log.Warn("table %q column %q: index %d is beyond the widest detected row (%d parts)", tm.TableName, col.Name, col.Index, widest)
		}
		if i > 0 && col.Index == columns[i-1].Index+1 && col.Coords == nil {
			e.log.Debug("table %q: columns %q and %q are adjacent; OCR may bleed values between them", tm.TableName, columns[i-1].Name, col.Name)
		}
	}
}
