package docstore

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dokmap/dokmap/internal/fingerprint"
	"github.com/dokmap/dokmap/internal/logger"
)

func newTestStore(t *testing.T) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "documents.json")
	s, err := NewStore(path, logger.NewNoOpLogger())
	require.NoError(t, err)
	return s, path
}

func TestAddDocumentsSkipsExisting(t *testing.T) {
	s, _ := newTestStore(t)

	added := s.AddDocuments([]string{"a.pdf", "b.pdf"})
	assert.Len(t, added, 2)
	assert.Equal(t, StatusPending, added[0].Status)

	added = s.AddDocuments([]string{"b.pdf", "c.pdf"})
	require.Len(t, added, 1)
	assert.Equal(t, "c.pdf", added[0].FilePath)
	assert.Len(t, s.Documents(), 3)
}

func TestDocumentsSortedByPath(t *testing.T) {
	s, _ := newTestStore(t)
	s.AddDocuments([]string{"c.pdf", "a.pdf", "b.pdf"})

	docs := s.Documents()
	require.Len(t, docs, 3)
	assert.Equal(t, "a.pdf", docs[0].FilePath)
	assert.Equal(t, "c.pdf", docs[2].FilePath)
}

func TestSetFingerprintAdvancesStatus(t *testing.T) {
	s, _ := newTestStore(t)
	s.AddDocuments([]string{"a.pdf"})

	fp := fingerprint.Compute("Fakturanummer: INV-1\nTotalt: 100 kr")
	require.NoError(t, s.SetFingerprint("a.pdf", &fp))

	doc := s.Get("a.pdf")
	assert.Equal(t, StatusProcessed, doc.Status)
	assert.Equal(t, fp.FullText, doc.ExtractedText)

	assert.Error(t, s.SetFingerprint("missing.pdf", &fp))
}

func TestSetExtractedDataAdvancesStatus(t *testing.T) {
	s, _ := newTestStore(t)
	s.AddDocuments([]string{"a.pdf"})

	data := NewExtractedData()
	data.Fields["Fakturanummer"] = "INV-2024-001"
	require.NoError(t, s.SetExtractedData("a.pdf", data))

	doc := s.Get("a.pdf")
	assert.Equal(t, StatusMapped, doc.Status)
	assert.Equal(t, "INV-2024-001", doc.ExtractedData.Fields["Fakturanummer"])
}

func TestSetStatusRejectsUnknown(t *testing.T) {
	s, _ := newTestStore(t)
	s.AddDocuments([]string{"a.pdf"})

	require.NoError(t, s.SetStatus("a.pdf", StatusReviewed))
	assert.Equal(t, StatusReviewed, s.Get("a.pdf").Status)

	assert.Error(t, s.SetStatus("a.pdf", Status("bogus")))
	assert.Error(t, s.SetStatus("missing.pdf", StatusError))
}

func TestSetClusterAssignsMembershipAndReference(t *testing.T) {
	s, _ := newTestStore(t)
	s.AddDocuments([]string{"a.pdf", "b.pdf", "c.pdf"})

	require.NoError(t, s.SetCluster("cluster_0", []string{"a.pdf", "b.pdf"}, "a.pdf"))

	assert.Equal(t, "a.pdf", s.ReferenceFor("cluster_0"))
	assert.True(t, s.Get("a.pdf").IsReference)
	assert.False(t, s.Get("b.pdf").IsReference)
	assert.Equal(t, "cluster_0", s.Get("b.pdf").ClusterID)
	assert.Len(t, s.ClusterDocuments("cluster_0"), 2)
}

func TestSetClusterReassignmentRemovesOldMembership(t *testing.T) {
	s, _ := newTestStore(t)
	s.AddDocuments([]string{"a.pdf", "b.pdf"})

	require.NoError(t, s.SetCluster("cluster_0", []string{"a.pdf", "b.pdf"}, "a.pdf"))
	require.NoError(t, s.SetCluster("cluster_1", []string{"a.pdf"}, "a.pdf"))

	assert.Equal(t, "cluster_1", s.Get("a.pdf").ClusterID)
	members := s.ClusterDocuments("cluster_0")
	require.Len(t, members, 1)
	assert.Equal(t, "b.pdf", members[0].FilePath)
	// The old cluster lost its reference along with the document.
	assert.Empty(t, s.ReferenceFor("cluster_0"))
}

func TestSetClusterRejectsUnregisteredPaths(t *testing.T) {
	s, _ := newTestStore(t)
	s.AddDocuments([]string{"a.pdf"})

	assert.Error(t, s.SetCluster("cluster_0", []string{"a.pdf", "ghost.pdf"}, "a.pdf"))
	assert.Error(t, s.SetCluster("cluster_0", []string{"a.pdf"}, "ghost.pdf"))
	assert.Error(t, s.SetCluster("", []string{"a.pdf"}, "a.pdf"))
}

func TestSaveAndReload(t *testing.T) {
	s, path := newTestStore(t)
	s.AddDocuments([]string{"a.pdf", "b.pdf"})
	fp := fingerprint.Compute("Faktura 123\nTotalt: 50 kr")
	require.NoError(t, s.SetFingerprint("a.pdf", &fp))
	require.NoError(t, s.SetCluster("cluster_0", []string{"a.pdf", "b.pdf"}, "a.pdf"))
	require.NoError(t, s.Save())

	reloaded, err := NewStore(path, logger.NewNoOpLogger())
	require.NoError(t, err)

	doc := reloaded.Get("a.pdf")
	require.NotNil(t, doc)
	assert.Equal(t, StatusProcessed, doc.Status)
	require.NotNil(t, doc.Fingerprint)
	assert.True(t, doc.IsReference)
	assert.Equal(t, []string{"cluster_0"}, reloaded.ClusterIDs())
	assert.Equal(t, "a.pdf", reloaded.ReferenceFor("cluster_0"))
}

func TestLoadSkipsInvalidRecords(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "documents.json")
	raw := `{
		"documents": {
			"good.pdf": {"file_path": "good.pdf", "is_reference": false, "status": "pending"},
			"bad.pdf": {"file_path": "bad.pdf", "is_reference": false, "status": "weird"}
		},
		"clusters": {},
		"reference_docs": {}
	}`
	require.NoError(t, os.WriteFile(path, []byte(raw), 0o640))

	s, err := NewStore(path, logger.NewNoOpLogger())
	require.NoError(t, err)
	assert.NotNil(t, s.Get("good.pdf"))
	assert.Nil(t, s.Get("bad.pdf"))
}

func TestLoadBackfillsFilePathFromKey(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "documents.json")
	raw := `{"documents": {"a.pdf": {"is_reference": false, "status": "pending"}}}`
	require.NoError(t, os.WriteFile(path, []byte(raw), 0o640))

	s, err := NewStore(path, logger.NewNoOpLogger())
	require.NoError(t, err)
	doc := s.Get("a.pdf")
	require.NotNil(t, doc)
	assert.Equal(t, "a.pdf", doc.FilePath)
}
