// Package pipeline orchestrates the batch workflow: scan documents into
// fingerprints, group them into clusters, elect references, and apply each
// cluster's template to its members. All mutation of the document store
// happens here, sequentially per document; the underlying engines stay pure.
package pipeline

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/dokmap/dokmap/internal/cluster"
	"github.com/dokmap/dokmap/internal/docstore"
	"github.com/dokmap/dokmap/internal/extract"
	"github.com/dokmap/dokmap/internal/fingerprint"
	"github.com/dokmap/dokmap/internal/logger"
	"github.com/dokmap/dokmap/internal/template"
)

// Progress is called between documents with the work done so far. Callers
// pass nil when they do not care.
type Progress func(current, total int, path string)

// DocumentFailure records one document that could not be processed, with
// both the technical error and a display-facing explanation.
type DocumentFailure struct {
	Path        string `json:"path"`
	Error       string `json:"error"`
	UserMessage string `json:"user_message"`
}

// ScanReport summarizes one scan run.
type ScanReport struct {
	RunID    string            `json:"run_id"`
	Scanned  int               `json:"scanned"`
	Failures []DocumentFailure `json:"failures,omitempty"`
}

// ExtractReport summarizes one cluster extraction run.
type ExtractReport struct {
	RunID     string            `json:"run_id"`
	ClusterID string            `json:"cluster_id"`
	Extracted int               `json:"extracted"`
	Failures  []DocumentFailure `json:"failures,omitempty"`
}

// Pipeline wires the stores and engines together.
type Pipeline struct {
	docs      *docstore.Store
	templates *template.Store
	clusterer *cluster.Engine
	extractor *extract.Engine
	source    extract.TextSource
	log       logger.Logger
}

// New creates a pipeline over the given stores and collaborators.
func New(docs *docstore.Store, templates *template.Store, clusterer *cluster.Engine, extractor *extract.Engine, source extract.TextSource, log logger.Logger) *Pipeline {
	return &Pipeline{
		docs:      docs,
		templates: templates,
		clusterer: clusterer,
		extractor: extractor,
		source:    source,
		log:       log,
	}
}

// Scan registers the given paths and fingerprints each document. A document
// whose text cannot be acquired is marked errored and reported; the rest of
// the batch continues. Cancellation is honored between documents and
// returns the report built so far along with the context error.
func (p *Pipeline) Scan(ctx context.Context, paths []string, progress Progress) (*ScanReport, error) {
	report := &ScanReport{RunID: uuid.NewString()}
	p.docs.AddDocuments(paths)

	p.log.Info("scan %s: %d documents", report.RunID, len(paths))
	for i, path := range paths {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		if progress != nil {
			progress(i, len(paths), path)
		}

		text, err := p.source.DocumentText(ctx, path, template.DefaultOCRLanguage)
		if err != nil && text == "" {
			p.recordFailure(&report.Failures, path, err)
			if setErr := p.docs.SetStatus(path, docstore.StatusError); setErr != nil {
				p.log.Error("cannot mark %s errored: %v", path, setErr)
			}
			continue
		}
		if err != nil {
			p.log.Warn("scanned %s with partial text: %v", path, err)
		}

		fp := fingerprint.Compute(text)
		if err := p.docs.SetFingerprint(path, &fp); err != nil {
			p.recordFailure(&report.Failures, path, err)
			continue
		}
		report.Scanned++
	}
	if progress != nil {
		progress(len(paths), len(paths), "")
	}
	return report, p.docs.Save()
}

// ClusterDocuments groups every fingerprinted document, elects a reference
// per cluster, and records both on the document store. numClusters <= 0
// derives the count adaptively. Returns the cluster assignment.
func (p *Pipeline) ClusterDocuments(ctx context.Context, numClusters int) (map[string][]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var docs []cluster.Document
	byPath := make(map[string]cluster.Document)
	for _, doc := range p.docs.Documents() {
		if doc.Fingerprint == nil {
			continue
		}
		cd := cluster.Document{Path: doc.FilePath, Fingerprint: *doc.Fingerprint}
		docs = append(docs, cd)
		byPath[doc.FilePath] = cd
	}

	assignment := p.clusterer.Cluster(docs, numClusters)
	for clusterID, paths := range assignment {
		members := make([]cluster.Document, 0, len(paths))
		for _, path := range paths {
			members = append(members, byPath[path])
		}

		reference, err := p.clusterer.FindMostComplete(members)
		if err != nil {
			p.log.Warn("cluster %s has no reference candidate: %v", clusterID, err)
			continue
		}
		if err := p.docs.SetCluster(clusterID, paths, reference.Path); err != nil {
			return nil, err
		}
		if p.templates.Get(clusterID) == nil {
			p.templates.Create(clusterID, reference.Path)
		}
	}

	p.log.Info("clustered %d documents into %d clusters", len(docs), len(assignment))
	return assignment, p.docs.Save()
}

// ExtractDocument applies the document's cluster template to it and stores
// the result. Fatal extraction errors mark the document errored.
func (p *Pipeline) ExtractDocument(ctx context.Context, path string) (*extract.Result, error) {
	doc := p.docs.Get(path)
	if doc == nil {
		return nil, extract.NotFoundError(path)
	}

	tpl := p.templates.Get(doc.ClusterID)
	result, err := p.extractor.Extract(ctx, path, tpl)
	if err != nil {
		if extract.IsDocumentFatal(err) {
			if markErr := p.docs.SetStatus(path, docstore.StatusError); markErr != nil {
				p.log.Error("cannot mark %s errored: %v", path, markErr)
			}
			if saveErr := p.docs.Save(); saveErr != nil {
				p.log.Error("cannot save document store: %v", saveErr)
			}
		}
		return nil, err
	}

	if err := p.docs.SetExtractedData(path, resultData(result)); err != nil {
		return nil, err
	}
	return result, p.docs.Save()
}

// ExtractCluster applies the cluster's template to every member document.
// One document's failure marks it errored and the run continues; the report
// lists every failure with its user-facing explanation.
func (p *Pipeline) ExtractCluster(ctx context.Context, clusterID string, progress Progress) (*ExtractReport, error) {
	report := &ExtractReport{RunID: uuid.NewString(), ClusterID: clusterID}

	tpl := p.templates.Get(clusterID)
	if tpl == nil {
		return nil, extract.InvalidTemplateError()
	}

	members := p.docs.ClusterDocuments(clusterID)
	p.log.Info("extract %s: cluster %s, %d documents", report.RunID, clusterID, len(members))

	for i, doc := range members {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		if progress != nil {
			progress(i, len(members), doc.FilePath)
		}

		result, err := p.extractor.Extract(ctx, doc.FilePath, tpl)
		if err != nil {
			p.recordFailure(&report.Failures, doc.FilePath, err)
			if setErr := p.docs.SetStatus(doc.FilePath, docstore.StatusError); setErr != nil {
				p.log.Error("cannot mark %s errored: %v", doc.FilePath, setErr)
			}
			continue
		}

		if err := p.docs.SetExtractedData(doc.FilePath, resultData(result)); err != nil {
			p.recordFailure(&report.Failures, doc.FilePath, err)
			continue
		}
		report.Extracted++
	}
	if progress != nil {
		progress(len(members), len(members), "")
	}
	return report, p.docs.Save()
}

func (p *Pipeline) recordFailure(failures *[]DocumentFailure, path string, err error) {
	p.log.Error("document %s failed: %v", path, err)

	failure := DocumentFailure{Path: path, Error: err.Error(), UserMessage: err.Error()}
	var ee *extract.Error
	if errors.As(err, &ee) {
		failure.UserMessage = ee.UserMessage()
	}
	*failures = append(*failures, failure)
}

func resultData(result *extract.Result) *docstore.ExtractedData {
	data := docstore.NewExtractedData()
	for name, value := range result.Fields {
		data.Fields[name] = value
	}
	for name, rows := range result.Tables {
		data.Tables[name] = rows
	}
	data.RawText = result.RawText
	return data
}
