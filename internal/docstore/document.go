// Package docstore is the aggregate root for documents and their cluster
// membership. It owns the document records, the cluster-to-paths index and
// the per-cluster reference selection, persisted together in one JSON file.
package docstore

import (
	"fmt"

	"github.com/dokmap/dokmap/internal/fingerprint"
)

// Status is a document's position in the processing lifecycle.
type Status string

const (
	// StatusPending means the document is registered but not yet scanned.
	StatusPending Status = "pending"
	// StatusProcessed means the fingerprint has been computed.
	StatusProcessed Status = "processed"
	// StatusMapped means a template has been applied and extracted data is set.
	StatusMapped Status = "mapped"
	// StatusReviewed means a person has confirmed the extracted data.
	StatusReviewed Status = "reviewed"
	// StatusError marks a failed document. Recoverable by re-extraction.
	StatusError Status = "error"
)

// ValidStatus reports whether s is one of the known lifecycle states.
func ValidStatus(s Status) bool {
	switch s {
	case StatusPending, StatusProcessed, StatusMapped, StatusReviewed, StatusError:
		return true
	}
	return false
}

// ExtractedData is the structured output of applying a template to a
// document: named scalar fields, named tables of rows keyed by column name,
// and the raw page text the values came from.
type ExtractedData struct {
	Fields  map[string]string              `json:"fields"`
	Tables  map[string][]map[string]string `json:"tables"`
	RawText string                         `json:"raw_text"`
}

// NewExtractedData returns an empty result with both maps allocated.
func NewExtractedData() *ExtractedData {
	return &ExtractedData{
		Fields: make(map[string]string),
		Tables: make(map[string][]map[string]string),
	}
}

// IsEmpty reports whether extraction produced nothing at all.
func (d *ExtractedData) IsEmpty() bool {
	return d == nil || (len(d.Fields) == 0 && len(d.Tables) == 0)
}

// Document is one registered file. The file path is its identity; everything
// else is derived or assigned state.
type Document struct {
	FilePath      string                   `json:"file_path"`
	ClusterID     string                   `json:"cluster_id,omitempty"`
	Fingerprint   *fingerprint.Fingerprint `json:"fingerprint,omitempty"`
	ExtractedText string                   `json:"extracted_text,omitempty"`
	ExtractedData *ExtractedData           `json:"extracted_data,omitempty"`
	IsReference   bool                     `json:"is_reference"`
	Status        Status                   `json:"status"`
}

// NewDocument registers a file path as a pending document.
func NewDocument(path string) *Document {
	return &Document{FilePath: path, Status: StatusPending}
}

// SetFingerprint records a scan result and advances the lifecycle.
func (d *Document) SetFingerprint(fp *fingerprint.Fingerprint) {
	d.Fingerprint = fp
	if fp != nil {
		d.ExtractedText = fp.FullText
	}
	d.Status = StatusProcessed
}

// SetExtractedData records a template application and advances the lifecycle.
func (d *Document) SetExtractedData(data *ExtractedData) {
	d.ExtractedData = data
	d.Status = StatusMapped
}

// MarkError moves the document to the error state. The state is terminal
// only until the next successful re-extraction.
func (d *Document) MarkError() {
	d.Status = StatusError
}

// Validate checks the invariants a decoded document must hold.
func (d *Document) Validate() error {
	if d.FilePath == "" {
		return fmt.Errorf("document with empty file_path")
	}
	if !ValidStatus(d.Status) {
		return fmt.Errorf("document %s: unknown status %q", d.FilePath, d.Status)
	}
	return nil
}
