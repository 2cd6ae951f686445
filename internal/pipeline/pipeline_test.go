package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dokmap/dokmap/internal/cluster"
	"github.com/dokmap/dokmap/internal/docstore"
	"github.com/dokmap/dokmap/internal/extract"
	"github.com/dokmap/dokmap/internal/geometry"
	"github.com/dokmap/dokmap/internal/logger"
	"github.com/dokmap/dokmap/internal/template"
)

// mapSource serves canned document text keyed by path.
type mapSource struct {
	texts map[string]string
	fails map[string]error
}

func (m *mapSource) DocumentText(_ context.Context, path, _ string) (string, error) {
	if err, ok := m.fails[path]; ok {
		return "", err
	}
	return m.texts[path], nil
}

func (m *mapSource) RegionText(_ context.Context, _ string, _ int, _ geometry.NormalizedRect, _ string) (string, error) {
	return "", fmt.Errorf("no region recognition in tests")
}

type fixture struct {
	pipeline *Pipeline
	docs     *docstore.Store
	tpls     *template.Store
	source   *mapSource
	dir      string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()
	log := logger.NewNoOpLogger()

	docs, err := docstore.NewStore(filepath.Join(dir, "documents.json"), log)
	require.NoError(t, err)
	tpls, err := template.NewStore(filepath.Join(dir, "templates"), log)
	require.NoError(t, err)

	source := &mapSource{texts: map[string]string{}, fails: map[string]error{}}
	p := New(docs, tpls, cluster.NewEngine(log), extract.NewEngine(source, log), source, log)
	return &fixture{pipeline: p, docs: docs, tpls: tpls, source: source, dir: dir}
}

// addDoc creates a real file so the extraction engine's existence check
// passes, and registers its text with the fake source.
func (f *fixture) addDoc(t *testing.T, name, text string) string {
	t.Helper()
	path := filepath.Join(f.dir, name)
	require.NoError(t, os.WriteFile(path, []byte("%PDF-1.4"), 0o640))
	f.source.texts[path] = text
	return path
}

func TestScanFingerprintsDocuments(t *testing.T) {
	f := newFixture(t)
	a := f.addDoc(t, "a.pdf", "Fakturanummer: INV-1\nTotalt: 100 kr")
	b := f.addDoc(t, "b.pdf", "Fakturanummer: INV-2\nTotalt: 200 kr")

	var seen []string
	report, err := f.pipeline.Scan(context.Background(), []string{a, b}, func(_, _ int, path string) {
		seen = append(seen, path)
	})
	require.NoError(t, err)

	assert.NotEmpty(t, report.RunID)
	assert.Equal(t, 2, report.Scanned)
	assert.Empty(t, report.Failures)
	assert.Equal(t, docstore.StatusProcessed, f.docs.Get(a).Status)
	require.NotNil(t, f.docs.Get(a).Fingerprint)
	assert.Contains(t, seen, a)
}

func TestScanIsolatesFailures(t *testing.T) {
	f := newFixture(t)
	good := f.addDoc(t, "good.pdf", "Faktura 1")
	bad := f.addDoc(t, "bad.pdf", "")
	f.source.fails[bad] = extract.UnreadableError(bad, fmt.Errorf("corrupt xref"))

	report, err := f.pipeline.Scan(context.Background(), []string{good, bad}, nil)
	require.NoError(t, err)

	assert.Equal(t, 1, report.Scanned)
	require.Len(t, report.Failures, 1)
	assert.Equal(t, bad, report.Failures[0].Path)
	assert.NotEmpty(t, report.Failures[0].UserMessage)
	assert.Equal(t, docstore.StatusProcessed, f.docs.Get(good).Status)
	assert.Equal(t, docstore.StatusError, f.docs.Get(bad).Status)
}

func TestScanHonorsCancellation(t *testing.T) {
	f := newFixture(t)
	a := f.addDoc(t, "a.pdf", "text")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.pipeline.Scan(ctx, []string{a}, nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestClusterDocumentsAssignsAndElectsReferences(t *testing.T) {
	f := newFixture(t)

	invoice := "Fakturanummer: INV-%d\nTotalt: 100 kr\nMoms: 25 kr\nDatum: 2024-01-15"
	letter := "Hej kära kund\nVi bekräftar härmed mottagandet av er beställning\nMed vänlig hälsning"

	paths := []string{
		f.addDoc(t, "inv1.pdf", fmt.Sprintf(invoice, 1)),
		f.addDoc(t, "inv2.pdf", fmt.Sprintf(invoice, 2)),
		f.addDoc(t, "brev1.pdf", letter),
		f.addDoc(t, "brev2.pdf", letter),
	}

	_, err := f.pipeline.Scan(context.Background(), paths, nil)
	require.NoError(t, err)

	assignment, err := f.pipeline.ClusterDocuments(context.Background(), 2)
	require.NoError(t, err)
	assert.Len(t, assignment, 2)

	for clusterID, members := range assignment {
		ref := f.docs.ReferenceFor(clusterID)
		assert.Contains(t, members, ref, "reference must be a member of its cluster")
		assert.NotNil(t, f.tpls.Get(clusterID), "each cluster gets a template stub")
	}
}

func TestExtractClusterPartialFailure(t *testing.T) {
	f := newFixture(t)
	a := f.addDoc(t, "a.pdf", "Fakturanummer: INV-1")
	b := f.addDoc(t, "b.pdf", "Fakturanummer: INV-2")

	_, err := f.pipeline.Scan(context.Background(), []string{a, b}, nil)
	require.NoError(t, err)
	require.NoError(t, f.docs.SetCluster("cluster_0", []string{a, b}, a))

	tpl := template.New("cluster_0", a)
	tpl.SetFieldMapping(template.FieldMapping{
		FieldName: "Fakturanummer", FieldType: template.FieldTypeValueHeader, HeaderText: "Fakturanummer",
	})
	require.NoError(t, f.tpls.Save(tpl))

	// Remove one file so its extraction fails with NotFound.
	require.NoError(t, os.Remove(b))

	report, err := f.pipeline.ExtractCluster(context.Background(), "cluster_0", nil)
	require.NoError(t, err)

	assert.Equal(t, 1, report.Extracted)
	require.Len(t, report.Failures, 1)
	assert.Equal(t, b, report.Failures[0].Path)

	assert.Equal(t, docstore.StatusMapped, f.docs.Get(a).Status)
	assert.Equal(t, "INV-1", f.docs.Get(a).ExtractedData.Fields["Fakturanummer"])
	assert.Equal(t, docstore.StatusError, f.docs.Get(b).Status)
}

func TestExtractClusterWithoutTemplate(t *testing.T) {
	f := newFixture(t)
	_, err := f.pipeline.ExtractCluster(context.Background(), "cluster_9", nil)
	require.Error(t, err)
	assert.Equal(t, extract.KindInvalidTemplate, extract.KindOf(err))
}

func TestExtractDocumentUsesClusterTemplate(t *testing.T) {
	f := newFixture(t)
	a := f.addDoc(t, "a.pdf", "Fakturanummer: INV-1")

	_, err := f.pipeline.Scan(context.Background(), []string{a}, nil)
	require.NoError(t, err)
	require.NoError(t, f.docs.SetCluster("cluster_0", []string{a}, a))

	tpl := template.New("cluster_0", a)
	tpl.SetFieldMapping(template.FieldMapping{
		FieldName: "Fakturanummer", FieldType: template.FieldTypeValueHeader, HeaderText: "Fakturanummer",
	})
	require.NoError(t, f.tpls.Save(tpl))

	result, err := f.pipeline.ExtractDocument(context.Background(), a)
	require.NoError(t, err)
	assert.Equal(t, "INV-1", result.Fields["Fakturanummer"])
	assert.Equal(t, docstore.StatusMapped, f.docs.Get(a).Status)
}

func TestExtractDocumentUnknownPath(t *testing.T) {
	f := newFixture(t)
	_, err := f.pipeline.ExtractDocument(context.Background(), "ghost.pdf")
	require.Error(t, err)
	assert.Equal(t, extract.KindNotFound, extract.KindOf(err))
}
