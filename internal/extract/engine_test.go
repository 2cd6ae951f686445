package extract

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dokmap/dokmap/internal/geometry"
	"github.com/dokmap/dokmap/internal/logger"
	"github.com/dokmap/dokmap/internal/template"
)

// fakeSource serves canned text and per-region values without touching any
// real recognizer.
type fakeSource struct {
	text     string
	textErr  error
	regionFn func(region geometry.NormalizedRect) (string, error)
}

func (f *fakeSource) DocumentText(_ context.Context, _, _ string) (string, error) {
	return f.text, f.textErr
}

func (f *fakeSource) RegionText(_ context.Context, _ string, _ int, region geometry.NormalizedRect, _ string) (string, error) {
	if f.regionFn == nil {
		return "", fmt.Errorf("no region recognizer configured")
	}
	return f.regionFn(region)
}

func writeTestFile(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "doc.pdf")
	require.NoError(t, os.WriteFile(path, []byte("%PDF-1.4"), 0o640))
	return path
}

func newTestEngine(src *fakeSource) *Engine {
	return NewEngine(src, logger.NewNoOpLogger())
}

func headerField(name, header string) template.FieldMapping {
	return template.FieldMapping{FieldName: name, FieldType: template.FieldTypeValueHeader, HeaderText: header}
}

func TestExtractNilTemplate(t *testing.T) {
	e := newTestEngine(&fakeSource{})
	_, err := e.Extract(context.Background(), writeTestFile(t), nil)
	require.Error(t, err)
	assert.Equal(t, KindInvalidTemplate, KindOf(err))
}

func TestExtractMissingFile(t *testing.T) {
	e := newTestEngine(&fakeSource{})
	tpl := template.New("cluster_0", "ref.pdf")
	_, err := e.Extract(context.Background(), "/no/such/file.pdf", tpl)
	require.Error(t, err)
	assert.Equal(t, KindNotFound, KindOf(err))
}

func TestExtractEmptyTemplate(t *testing.T) {
	e := newTestEngine(&fakeSource{text: "some text"})
	tpl := template.New("cluster_0", "ref.pdf")

	result, err := e.Extract(context.Background(), writeTestFile(t), tpl)
	require.NoError(t, err)
	assert.Empty(t, result.Fields)
	assert.Empty(t, result.Tables)
	assert.Equal(t, "some text", result.RawText)
}

func TestExtractHeaderRegexField(t *testing.T) {
	src := &fakeSource{text: "Fakturanummer: INV-2024-001\nDatum: 2024-01-15"}
	e := newTestEngine(src)

	tpl := template.New("cluster_0", "ref.pdf")
	tpl.SetFieldMapping(headerField("Fakturanummer", "Fakturanummer"))
	tpl.SetFieldMapping(headerField("Datum", "Datum"))

	result, err := e.Extract(context.Background(), writeTestFile(t), tpl)
	require.NoError(t, err)
	assert.Equal(t, "INV-2024-001", result.Fields["Fakturanummer"])
	assert.Equal(t, "2024-01-15", result.Fields["Datum"])
}

func TestExtractMissingHeaderOmitsField(t *testing.T) {
	src := &fakeSource{text: "Fakturanummer: INV-1"}
	e := newTestEngine(src)

	tpl := template.New("cluster_0", "ref.pdf")
	tpl.SetFieldMapping(headerField("Fakturanummer", "Fakturanummer"))
	tpl.SetFieldMapping(headerField("Ordernummer", "Ordernummer"))

	result, err := e.Extract(context.Background(), writeTestFile(t), tpl)
	require.NoError(t, err)
	assert.Equal(t, "INV-1", result.Fields["Fakturanummer"])
	_, present := result.Fields["Ordernummer"]
	assert.False(t, present)
}

func TestExtractHeaderValueOnNextLine(t *testing.T) {
	// The whitespace class in the header pattern spans the line break, so a
	// value directly below its header still resolves in the first strategy.
	src := &fakeSource{text: "Fakturanummer\nINV-2024-002\nNågot annat"}
	e := newTestEngine(src)

	tpl := template.New("cluster_0", "ref.pdf")
	tpl.SetFieldMapping(headerField("Fakturanummer", "Fakturanummer"))

	result, err := e.Extract(context.Background(), writeTestFile(t), tpl)
	require.NoError(t, err)
	assert.Equal(t, "INV-2024-002", result.Fields["Fakturanummer"])
}

func TestExtractProximityFallback(t *testing.T) {
	// Nothing follows the header on its line or below, so the regex misses;
	// the proximity scan strips the header and finds the value before it.
	src := &fakeSource{text: "Summa: 100 kr\nINV-2024-002   Fakturanummer"}
	e := newTestEngine(src)

	tpl := template.New("cluster_0", "ref.pdf")
	tpl.SetFieldMapping(headerField("Fakturanummer", "Fakturanummer"))

	result, err := e.Extract(context.Background(), writeTestFile(t), tpl)
	require.NoError(t, err)
	assert.Equal(t, "INV-2024-002", result.Fields["Fakturanummer"])
}

func TestExtractCoordinateField(t *testing.T) {
	want := geometry.NewNormalizedRect(0.6, 0.1, 0.3, 0.05)
	src := &fakeSource{
		text: "ingen rubrik här",
		regionFn: func(region geometry.NormalizedRect) (string, error) {
			if region == want {
				return " INV-2024-003 ", nil
			}
			return "", nil
		},
	}
	e := newTestEngine(src)

	tpl := template.New("cluster_0", "ref.pdf")
	coords := want
	tpl.SetFieldMapping(template.FieldMapping{
		FieldName:   "Fakturanummer",
		FieldType:   template.FieldTypeValueHeader,
		ValueCoords: &coords,
	})

	result, err := e.Extract(context.Background(), writeTestFile(t), tpl)
	require.NoError(t, err)
	assert.Equal(t, "INV-2024-003", result.Fields["Fakturanummer"])
}

func TestExtractMalformedCoordsIsolated(t *testing.T) {
	src := &fakeSource{text: "Fakturanummer: INV-1\nDatum: 2024-01-15"}
	e := newTestEngine(src)

	bad := geometry.NormalizedRect{X: 0.9, Y: 0.9, Width: 0.8, Height: 0.8}
	tpl := template.New("cluster_0", "ref.pdf")
	tpl.SetFieldMapping(headerField("Fakturanummer", "Fakturanummer"))
	tpl.SetFieldMapping(template.FieldMapping{FieldName: "Belopp", FieldType: template.FieldTypeValueHeader, ValueCoords: &bad})
	tpl.SetFieldMapping(headerField("Datum", "Datum"))

	result, err := e.Extract(context.Background(), writeTestFile(t), tpl)
	require.NoError(t, err)
	assert.Len(t, result.Fields, 2)
	assert.NotEmpty(t, result.Warnings)
}

func TestExtractNoStrategyMappingSkipped(t *testing.T) {
	src := &fakeSource{text: "Fakturanummer: INV-1"}
	e := newTestEngine(src)

	tpl := template.New("cluster_0", "ref.pdf")
	tpl.SetFieldMapping(template.FieldMapping{FieldName: "Tomt", FieldType: template.FieldTypeValueHeader})
	tpl.SetFieldMapping(headerField("Fakturanummer", "Fakturanummer"))

	result, err := e.Extract(context.Background(), writeTestFile(t), tpl)
	require.NoError(t, err)
	assert.Len(t, result.Fields, 1)
	require.Len(t, result.Warnings, 1)
	assert.Contains(t, result.Warnings[0], "Tomt")
}

func TestExtractTableFromText(t *testing.T) {
	src := &fakeSource{text: "Art.nr  Benämning  Antal\nA100  Widget  5\nA200  Gadget  3"}
	e := newTestEngine(src)

	tpl := template.New("cluster_0", "ref.pdf")
	tpl.SetTableMapping(template.TableMapping{
		TableName:   "Artiklar",
		TableCoords: geometry.NewNormalizedRect(0, 0, 1, 1),
		Columns: []template.ColumnMapping{
			{Name: "Art.nr", Index: 0},
			{Name: "Benämning", Index: 1},
			{Name: "Antal", Index: 2},
		},
		HasHeaderRow: true,
	})

	result, err := e.Extract(context.Background(), writeTestFile(t), tpl)
	require.NoError(t, err)
	rows := result.Tables["Artiklar"]
	require.Len(t, rows, 2)
	assert.Equal(t, map[string]string{"Art.nr": "A100", "Benämning": "Widget", "Antal": "5"}, rows[0])
	assert.Equal(t, "A200", rows[1]["Art.nr"])
}

func TestExtractTableColumnIndexBeyondParts(t *testing.T) {
	src := &fakeSource{text: "A100  Widget"}
	e := newTestEngine(src)

	tpl := template.New("cluster_0", "ref.pdf")
	tpl.SetTableMapping(template.TableMapping{
		TableName:   "Artiklar",
		TableCoords: geometry.NewNormalizedRect(0, 0, 1, 1),
		Columns: []template.ColumnMapping{
			{Name: "Art.nr", Index: 0},
			{Name: "Antal", Index: 5},
		},
	})

	result, err := e.Extract(context.Background(), writeTestFile(t), tpl)
	require.NoError(t, err)
	rows := result.Tables["Artiklar"]
	require.Len(t, rows, 1)
	assert.Equal(t, "A100", rows[0]["Art.nr"])
	assert.Equal(t, "", rows[0]["Antal"])
}

func TestExtractTableByCoordinates(t *testing.T) {
	cells := map[string]string{
		"0.10,0.40": "A100", "0.50,0.40": "5",
		"0.10,0.50": "A200", "0.50,0.50": "3",
	}
	src := &fakeSource{
		text: "irrelevant",
		regionFn: func(region geometry.NormalizedRect) (string, error) {
			return cells[fmt.Sprintf("%.2f,%.2f", region.X, region.Y)], nil
		},
	}
	e := newTestEngine(src)

	artCol := geometry.NewNormalizedRect(0.1, 0.3, 0.3, 0.4)
	antalCol := geometry.NewNormalizedRect(0.5, 0.3, 0.2, 0.4)
	tpl := template.New("cluster_0", "ref.pdf")
	tpl.SetTableMapping(template.TableMapping{
		TableName:   "Artiklar",
		TableCoords: geometry.NewNormalizedRect(0.1, 0.3, 0.6, 0.4),
		Columns: []template.ColumnMapping{
			{Name: "Art.nr", Index: 0, Coords: &artCol},
			{Name: "Antal", Index: 1, Coords: &antalCol},
		},
		RowBands: []template.RowBand{
			{Y: 0.4, Height: 0.1, Index: 0},
			{Y: 0.5, Height: 0.1, Index: 1},
			{Y: 0.6, Height: 0.1, Index: 2}, // empty row, dropped
		},
	})

	result, err := e.Extract(context.Background(), writeTestFile(t), tpl)
	require.NoError(t, err)
	rows := result.Tables["Artiklar"]
	require.Len(t, rows, 2)
	assert.Equal(t, map[string]string{"Art.nr": "A100", "Antal": "5"}, rows[0])
	assert.Equal(t, map[string]string{"Art.nr": "A200", "Antal": "3"}, rows[1])
}

func TestExtractTableSynthesizedRows(t *testing.T) {
	var seen []string
	src := &fakeSource{
		text: "irrelevant",
		regionFn: func(region geometry.NormalizedRect) (string, error) {
			key := fmt.Sprintf("%.2f", region.Y)
			seen = append(seen, key)
			if key == "0.40" {
				return "A100", nil
			}
			return "", nil
		},
	}
	e := newTestEngine(src)

	col := geometry.NewNormalizedRect(0.1, 0.3, 0.6, 0.4)
	header := geometry.NewNormalizedRect(0.1, 0.3, 0.6, 0.1)
	tpl := template.New("cluster_0", "ref.pdf")
	tpl.SetTableMapping(template.TableMapping{
		TableName:       "Artiklar",
		TableCoords:     geometry.NewNormalizedRect(0.1, 0.3, 0.6, 0.4),
		Columns:         []template.ColumnMapping{{Name: "Art.nr", Index: 0, Coords: &col}},
		HasHeaderRow:    true,
		HeaderRowCoords: &header,
	})

	result, err := e.Extract(context.Background(), writeTestFile(t), tpl)
	require.NoError(t, err)

	// Header at y=0.3 height 0.1, table bottom 0.7: synthesized data rows at
	// 0.4, 0.5 and 0.6. Only the first has text.
	assert.ElementsMatch(t, []string{"0.40", "0.50", "0.60"}, seen)
	rows := result.Tables["Artiklar"]
	require.Len(t, rows, 1)
	assert.Equal(t, "A100", rows[0]["Art.nr"])
}

func TestExtractPartialTextDegradesToWarning(t *testing.T) {
	src := &fakeSource{
		text:    "Fakturanummer: INV-1",
		textErr: RecognitionFailedError("doc.pdf", fmt.Errorf("page 2 unreadable")),
	}
	e := newTestEngine(src)

	tpl := template.New("cluster_0", "ref.pdf")
	tpl.SetFieldMapping(headerField("Fakturanummer", "Fakturanummer"))

	result, err := e.Extract(context.Background(), writeTestFile(t), tpl)
	require.NoError(t, err)
	assert.Equal(t, "INV-1", result.Fields["Fakturanummer"])
	assert.NotEmpty(t, result.Warnings)
}

func TestExtractNoTextPropagates(t *testing.T) {
	src := &fakeSource{textErr: RecognitionUnavailableError("tesseract", nil)}
	e := newTestEngine(src)

	tpl := template.New("cluster_0", "ref.pdf")
	tpl.SetFieldMapping(headerField("Fakturanummer", "Fakturanummer"))

	_, err := e.Extract(context.Background(), writeTestFile(t), tpl)
	require.Error(t, err)
	assert.Equal(t, KindRecognitionUnavailable, KindOf(err))
}

func TestExtractTotalFailureOnEmptyText(t *testing.T) {
	src := &fakeSource{text: "   \n  "}
	e := newTestEngine(src)

	tpl := template.New("cluster_0", "ref.pdf")
	tpl.SetFieldMapping(headerField("Fakturanummer", "Fakturanummer"))

	_, err := e.Extract(context.Background(), writeTestFile(t), tpl)
	require.Error(t, err)
	assert.Equal(t, KindTotalFailure, KindOf(err))
	assert.True(t, IsDocumentFatal(err))
}

func TestErrorUserMessages(t *testing.T) {
	err := RecognitionUnavailableError("tesseract", nil)
	assert.Contains(t, err.UserMessage(), "tesseract")
	assert.Contains(t, err.UserMessage(), "Install")

	nf := NotFoundError("a.pdf")
	assert.Contains(t, nf.UserMessage(), "a.pdf")
	assert.Contains(t, nf.Error(), "NOT_FOUND")
}
