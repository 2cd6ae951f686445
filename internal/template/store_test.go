package template

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dokmap/dokmap/internal/geometry"
	"github.com/dokmap/dokmap/internal/logger"
)

func newTestStore(t *testing.T) (*Store, string) {
	t.Helper()
	dir := t.TempDir()
	s, err := NewStore(dir, logger.NewNoOpLogger())
	require.NoError(t, err)
	return s, dir
}

func TestStoreCreateSaveGet(t *testing.T) {
	s, dir := newTestStore(t)

	tpl := s.Create("cluster_0", "ref.pdf")
	tpl.SetFieldMapping(FieldMapping{FieldName: "Fakturanummer", FieldType: FieldTypeValueHeader, HeaderText: "Fakturanummer"})
	require.NoError(t, s.Save(tpl))

	assert.FileExists(t, filepath.Join(dir, "cluster_0.json"))

	got := s.Get("cluster_0")
	require.NotNil(t, got)
	assert.Equal(t, "ref.pdf", got.ReferenceFile)
}

func TestStoreGetMissing(t *testing.T) {
	s, _ := newTestStore(t)
	assert.Nil(t, s.Get("nope"))
}

func TestStoreSaveRejectsInvalid(t *testing.T) {
	s, _ := newTestStore(t)

	tpl := &Template{} // no cluster id
	assert.Error(t, s.Save(tpl))
}

func TestStoreReloadRoundTrip(t *testing.T) {
	s, dir := newTestStore(t)

	tpl := s.Create("cluster_1", "ref.pdf")
	tpl.OCRLanguage = "eng"
	tpl.SetTableMapping(TableMapping{
		TableName:   "Artiklar",
		TableCoords: geometry.NewNormalizedRect(0.1, 0.3, 0.8, 0.5),
		Columns: []ColumnMapping{
			{Name: "Art.nr", Index: 0},
			{Name: "Benämning", Index: 1},
		},
		HasHeaderRow: true,
	})
	require.NoError(t, s.Save(tpl))

	reloaded, err := NewStore(dir, logger.NewNoOpLogger())
	require.NoError(t, err)

	got := reloaded.Get("cluster_1")
	require.NotNil(t, got)
	assert.Equal(t, "eng", got.OCRLanguage)
	require.Len(t, got.TableMappings, 1)
	assert.True(t, got.TableMappings[0].HasHeaderRow)
}

func TestStoreLoadBackfillsLanguage(t *testing.T) {
	dir := t.TempDir()
	legacy := `{"cluster_id":"cluster_2","reference_file":"old.pdf","field_mappings":[],"table_mappings":[]}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "cluster_2.json"), []byte(legacy), 0o640))

	s, err := NewStore(dir, logger.NewNoOpLogger())
	require.NoError(t, err)

	got := s.Get("cluster_2")
	require.NotNil(t, got)
	assert.Equal(t, DefaultOCRLanguage, got.OCRLanguage)
}

func TestStoreLoadSkipsCorruptFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.json"), []byte("{not json"), 0o640))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0o640))

	s, err := NewStore(dir, logger.NewNoOpLogger())
	require.NoError(t, err)
	assert.Empty(t, s.ClusterIDs())
}

func TestStoreDelete(t *testing.T) {
	s, dir := newTestStore(t)

	tpl := s.Create("cluster_3", "ref.pdf")
	require.NoError(t, s.Save(tpl))
	require.FileExists(t, filepath.Join(dir, "cluster_3.json"))

	require.NoError(t, s.Delete("cluster_3"))
	assert.Nil(t, s.Get("cluster_3"))
	assert.NoFileExists(t, filepath.Join(dir, "cluster_3.json"))

	// Deleting again is a no-op.
	assert.NoError(t, s.Delete("cluster_3"))
}
