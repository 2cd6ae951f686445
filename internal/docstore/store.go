package docstore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/dokmap/dokmap/internal/fingerprint"
	"github.com/dokmap/dokmap/internal/logger"
)

const (
	storeDirPerm  = 0o750
	storeFilePerm = 0o640
)

// storeFile is the on-disk shape: every document record plus the two
// cluster indexes, kept in one human-diffable JSON file.
type storeFile struct {
	Documents     map[string]*Document `json:"documents"`
	Clusters      map[string][]string  `json:"clusters"`
	ReferenceDocs map[string]string    `json:"reference_docs"`
}

// Store owns all document and cluster records. Safe for concurrent reads;
// mutations are serialized and written through to disk on Save.
type Store struct {
	mu   sync.RWMutex
	path string
	data storeFile
	log  logger.Logger
}

// NewStore opens (creating if needed) the document store file at path.
func NewStore(path string, log logger.Logger) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), storeDirPerm); err != nil {
		return nil, fmt.Errorf("cannot create data directory for %s: %w", path, err)
	}

	s := &Store{
		path: path,
		data: storeFile{
			Documents:     make(map[string]*Document),
			Clusters:      make(map[string][]string),
			ReferenceDocs: make(map[string]string),
		},
		log: log,
	}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

// AddDocuments registers file paths as pending documents. Paths already
// registered keep their existing record. Returns the newly added documents.
func (s *Store) AddDocuments(paths []string) []*Document {
	s.mu.Lock()
	defer s.mu.Unlock()

	var added []*Document
	for _, path := range paths {
		if _, exists := s.data.Documents[path]; exists {
			continue
		}
		doc := NewDocument(path)
		s.data.Documents[path] = doc
		added = append(added, doc)
	}
	return added
}

// Get returns the document for a path, or nil if it is not registered.
func (s *Store) Get(path string) *Document {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data.Documents[path]
}

// Documents returns all registered documents sorted by file path.
func (s *Store) Documents() []*Document {
	s.mu.RLock()
	defer s.mu.RUnlock()

	docs := make([]*Document, 0, len(s.data.Documents))
	for _, doc := range s.data.Documents {
		docs = append(docs, doc)
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].FilePath < docs[j].FilePath })
	return docs
}

// SetFingerprint records a scan result on a registered document.
func (s *Store) SetFingerprint(path string, fp *fingerprint.Fingerprint) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.data.Documents[path]
	if !ok {
		return fmt.Errorf("document not registered: %s", path)
	}
	doc.SetFingerprint(fp)
	return nil
}

// SetExtractedData records a template application result on a document.
func (s *Store) SetExtractedData(path string, data *ExtractedData) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.data.Documents[path]
	if !ok {
		return fmt.Errorf("document not registered: %s", path)
	}
	doc.SetExtractedData(data)
	return nil
}

// SetStatus moves a document to a lifecycle state.
func (s *Store) SetStatus(path string, status Status) error {
	if !ValidStatus(status) {
		return fmt.Errorf("unknown status %q", status)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.data.Documents[path]
	if !ok {
		return fmt.Errorf("document not registered: %s", path)
	}
	doc.Status = status
	return nil
}

// SetCluster assigns a set of documents to a cluster and elects its
// reference document. A document belongs to at most one cluster, so any
// previous assignment of these paths is overwritten, and clusters left
// empty by the reassignment are removed.
func (s *Store) SetCluster(clusterID string, paths []string, referencePath string) error {
	if clusterID == "" {
		return fmt.Errorf("empty cluster id")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, path := range paths {
		if _, ok := s.data.Documents[path]; !ok {
			return fmt.Errorf("document not registered: %s", path)
		}
	}
	if referencePath != "" {
		if _, ok := s.data.Documents[referencePath]; !ok {
			return fmt.Errorf("reference document not registered: %s", referencePath)
		}
	}

	for _, path := range paths {
		doc := s.data.Documents[path]
		if doc.ClusterID != "" && doc.ClusterID != clusterID {
			s.removeFromClusterLocked(doc.ClusterID, path)
		}
		doc.ClusterID = clusterID
		doc.IsReference = path == referencePath
	}

	members := make([]string, len(paths))
	copy(members, paths)
	sort.Strings(members)
	s.data.Clusters[clusterID] = members

	if referencePath != "" {
		s.data.ReferenceDocs[clusterID] = referencePath
	} else {
		delete(s.data.ReferenceDocs, clusterID)
	}
	return nil
}

// ClusterDocuments returns the documents assigned to a cluster, in the
// stored member order.
func (s *Store) ClusterDocuments(clusterID string) []*Document {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var docs []*Document
	for _, path := range s.data.Clusters[clusterID] {
		if doc, ok := s.data.Documents[path]; ok {
			docs = append(docs, doc)
		}
	}
	return docs
}

// ClusterIDs returns all cluster ids in sorted order.
func (s *Store) ClusterIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.data.Clusters))
	for id := range s.data.Clusters {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// ReferenceFor returns the reference document path for a cluster, or the
// empty string when none has been elected.
func (s *Store) ReferenceFor(clusterID string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data.ReferenceDocs[clusterID]
}

// Save writes the store to disk.
func (s *Store) Save() error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, err := json.MarshalIndent(&s.data, "", "  ")
	if err != nil {
		return fmt.Errorf("cannot encode document store: %w", err)
	}
	if err := os.WriteFile(s.path, data, storeFilePerm); err != nil {
		return fmt.Errorf("cannot write document store %s: %w", s.path, err)
	}
	return nil
}

func (s *Store) removeFromClusterLocked(clusterID, path string) {
	members := s.data.Clusters[clusterID]
	kept := members[:0]
	for _, member := range members {
		if member != path {
			kept = append(kept, member)
		}
	}
	if len(kept) == 0 {
		delete(s.data.Clusters, clusterID)
		delete(s.data.ReferenceDocs, clusterID)
		return
	}
	s.data.Clusters[clusterID] = kept
	if s.data.ReferenceDocs[clusterID] == path {
		delete(s.data.ReferenceDocs, clusterID)
	}
}

func (s *Store) load() error {
	raw, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("cannot read document store %s: %w", s.path, err)
	}

	var decoded storeFile
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return fmt.Errorf("cannot decode document store %s: %w", s.path, err)
	}

	for path, doc := range decoded.Documents {
		if doc == nil {
			continue
		}
		if doc.FilePath == "" {
			doc.FilePath = path
		}
		if err := doc.Validate(); err != nil {
			s.log.Error("skipping invalid document record: %v", err)
			continue
		}
		s.data.Documents[path] = doc
	}
	if decoded.Clusters != nil {
		s.data.Clusters = decoded.Clusters
	}
	if decoded.ReferenceDocs != nil {
		s.data.ReferenceDocs = decoded.ReferenceDocs
	}
	return nil
}
