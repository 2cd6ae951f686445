// Package template defines the reusable extraction recipe shared by all
// documents in a cluster, and its JSON persistence. Mappings are typed
// records with explicit optional fields, validated on construction and on
// decode, so a malformed template is rejected before extraction ever runs.
package template

import (
	"fmt"
	"sort"

	"github.com/dokmap/dokmap/internal/geometry"
)

// DefaultOCRLanguage is the recognition language used when a stored template
// predates the ocr_language field: Swedish plus English.
const DefaultOCRLanguage = "swe+eng"

// FieldTypeValueHeader is the only field mapping type in use: a value
// located by relating a textual label to a nearby or co-located value.
const FieldTypeValueHeader = "value_header"

// FieldMapping describes how to extract one named field. At least one of
// ValueCoords/HeaderText must be set for extraction to succeed; a mapping
// with neither is skipped with a warning rather than failing the document.
type FieldMapping struct {
	FieldName    string                   `json:"field_name"`
	FieldType    string                   `json:"field_type"`
	ValueCoords  *geometry.NormalizedRect `json:"value_coords,omitempty"`
	HeaderCoords *geometry.NormalizedRect `json:"header_coords,omitempty"`
	HeaderText   string                   `json:"header_text,omitempty"`
	IsRecurring  bool                     `json:"is_recurring"`
}

// HasStrategy reports whether the mapping carries enough information for at
// least one extraction strategy.
func (fm FieldMapping) HasStrategy() bool {
	return fm.HeaderText != "" || fm.ValueCoords != nil
}

// ColumnMapping ties a named table column to a split index and, optionally,
// a coordinate band on the page.
type ColumnMapping struct {
	Name   string                   `json:"name"`
	Index  int                      `json:"index"`
	Coords *geometry.NormalizedRect `json:"coords,omitempty"`
}

// RowBand is one horizontal slice of a coordinate-mapped table.
type RowBand struct {
	Y      float64 `json:"y"`
	Height float64 `json:"height"`
	Index  int     `json:"index"`
}

// TableMapping describes how to extract one named table: a bounding area,
// ordered columns, and optionally an explicit row grid or a header row band
// from which subsequent rows are synthesized.
type TableMapping struct {
	TableName       string                   `json:"table_name"`
	TableCoords     geometry.NormalizedRect  `json:"table_coords"`
	Columns         []ColumnMapping          `json:"columns"`
	HasHeaderRow    bool                     `json:"has_header_row"`
	RowBands        []RowBand                `json:"row_coords,omitempty"`
	HeaderRowCoords *geometry.NormalizedRect `json:"header_row_coords,omitempty"`
}

// HasFullColumnCoords reports whether every column carries coordinates.
// Coordinate-based cell extraction requires this together with a row grid.
func (tm TableMapping) HasFullColumnCoords() bool {
	if len(tm.Columns) == 0 {
		return false
	}
	for _, col := range tm.Columns {
		if col.Coords == nil {
			return false
		}
	}
	return true
}

// HasRowGrid reports whether rows can be located: either explicit bands or a
// header row band to repeat downward.
func (tm TableMapping) HasRowGrid() bool {
	return len(tm.RowBands) > 0 || tm.HeaderRowCoords != nil
}

// SortedColumns returns the columns ordered by index.
func (tm TableMapping) SortedColumns() []ColumnMapping {
	cols := make([]ColumnMapping, len(tm.Columns))
	copy(cols, tm.Columns)
	sort.SliceStable(cols, func(i, j int) bool { return cols[i].Index < cols[j].Index })
	return cols
}

// SortedRowBands returns the row bands ordered top to bottom.
func (tm TableMapping) SortedRowBands() []RowBand {
	rows := make([]RowBand, len(tm.RowBands))
	copy(rows, tm.RowBands)
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].Y < rows[j].Y })
	return rows
}

// Validate checks the structural invariants of a table mapping. Column
// indices must be unique; duplicate names are tolerated (last write wins
// during extraction).
func (tm TableMapping) Validate() error {
	if tm.TableName == "" {
		return fmt.Errorf("table mapping has no name")
	}
	if err := tm.TableCoords.Validate(); err != nil {
		return fmt.Errorf("table %q: invalid table_coords: %w", tm.TableName, err)
	}
	seen := make(map[int]string, len(tm.Columns))
	for _, col := range tm.Columns {
		if prev, dup := seen[col.Index]; dup {
			return fmt.Errorf("table %q: columns %q and %q share index %d", tm.TableName, prev, col.Name, col.Index)
		}
		seen[col.Index] = col.Name
		if col.Coords != nil {
			if err := col.Coords.Validate(); err != nil {
				return fmt.Errorf("table %q column %q: %w", tm.TableName, col.Name, err)
			}
		}
	}
	return nil
}

// Template is a cluster's extraction recipe: its identity, the reference
// document it was authored against, and the ordered field and table
// mappings.
type Template struct {
	ClusterID     string         `json:"cluster_id"`
	ReferenceFile string         `json:"reference_file"`
	OCRLanguage   string         `json:"ocr_language"`
	FieldMappings []FieldMapping `json:"field_mappings"`
	TableMappings []TableMapping `json:"table_mappings"`
}

// New creates an empty template for a cluster with the default recognition
// language.
func New(clusterID, referenceFile string) *Template {
	return &Template{
		ClusterID:     clusterID,
		ReferenceFile: referenceFile,
		OCRLanguage:   DefaultOCRLanguage,
		FieldMappings: []FieldMapping{},
		TableMappings: []TableMapping{},
	}
}

// IsEmpty reports whether the template has no mappings at all. Applying an
// empty template is not an error; it yields empty results.
func (t *Template) IsEmpty() bool {
	return len(t.FieldMappings) == 0 && len(t.TableMappings) == 0
}

// Language returns the recognition language, falling back to the default
// for templates stored before the field existed.
func (t *Template) Language() string {
	if t.OCRLanguage == "" {
		return DefaultOCRLanguage
	}
	return t.OCRLanguage
}

// SetFieldMapping adds a field mapping or replaces the one with the same
// field name, keeping declaration order for existing names.
func (t *Template) SetFieldMapping(fm FieldMapping) {
	for i, existing := range t.FieldMappings {
		if existing.FieldName == fm.FieldName {
			t.FieldMappings[i] = fm
			return
		}
	}
	t.FieldMappings = append(t.FieldMappings, fm)
}

// SetTableMapping adds a table mapping or replaces the one with the same
// table name.
func (t *Template) SetTableMapping(tm TableMapping) {
	for i, existing := range t.TableMappings {
		if existing.TableName == tm.TableName {
			t.TableMappings[i] = tm
			return
		}
	}
	t.TableMappings = append(t.TableMappings, tm)
}

// Validate checks that the template identifies its cluster and that every
// table mapping is structurally sound. Field mappings without a usable
// strategy are legal here; the extraction engine skips them with a warning.
func (t *Template) Validate() error {
	if t.ClusterID == "" {
		return fmt.Errorf("template has no cluster id")
	}
	for _, fm := range t.FieldMappings {
		if fm.FieldName == "" {
			return fmt.Errorf("field mapping with empty field_name")
		}
		if fm.ValueCoords != nil {
			if err := fm.ValueCoords.Validate(); err != nil {
				return fmt.Errorf("field %q: %w", fm.FieldName, err)
			}
		}
	}
	for _, tm := range t.TableMappings {
		if err := tm.Validate(); err != nil {
			return err
		}
	}
	return nil
}
