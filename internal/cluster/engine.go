// Package cluster groups documents by text similarity so each group can
// share a single extraction template. Grouping is TF-IDF cosine similarity
// over fingerprint text, clustered agglomeratively with average linkage.
package cluster

import (
	"fmt"

	"github.com/dokmap/dokmap/internal/fingerprint"
	"github.com/dokmap/dokmap/internal/logger"
)

// Reference-document scoring weights. The "most complete" document in a
// group is the best canvas for defining a template: most words, most domain
// keywords, most lines, bonus for a detected table.
const (
	wordWeight    = 0.4
	keywordWeight = 0.3
	lineWeight    = 0.2
	tableWeight   = 0.1

	keywordScale = 10
	lineScale    = 10
	tableBonus   = 100
)

// SimilarityThreshold is the default cutoff for FindSimilar.
const SimilarityThreshold = 0.7

// Document is the clustering engine's view of a scanned document: its path
// (identity) and fingerprint (signal).
type Document struct {
	Path        string
	Fingerprint fingerprint.Fingerprint
}

// Engine clusters documents and selects reference documents.
type Engine struct {
	vectorizer Vectorizer
	log        logger.Logger
}

// NewEngine creates a clustering engine. The logger must not be nil; use
// logger.NewNoOpLogger in tests.
func NewEngine(log logger.Logger) *Engine {
	return &Engine{log: log}
}

// Cluster groups documents by fingerprint similarity and returns a map of
// cluster id to member paths. Cluster ids are positional ("cluster_0",
// "cluster_1", ...) and are not stable across runs on different inputs.
//
// Zero documents yield an empty map and a single document a singleton
// cluster. A degenerate corpus (vectorization failure) falls back to one
// flat cluster containing every document rather than propagating the error.
func (e *Engine) Cluster(docs []Document, numClusters int) map[string][]string {
	if len(docs) == 0 {
		return map[string][]string{}
	}
	if len(docs) == 1 {
		return map[string][]string{"cluster_0": {docs[0].Path}}
	}

	texts := make([]string, len(docs))
	for i, doc := range docs {
		texts[i] = doc.Fingerprint.CorpusText()
	}

	matrix, err := e.vectorizer.Fit(texts)
	if err != nil {
		// Identical or too-sparse corpus: one flat cluster.
		e.log.Warn("vectorization failed (%v), falling back to a single cluster of %d documents", err, len(docs))
		all := make([]string, len(docs))
		for i, doc := range docs {
			all[i] = doc.Path
		}
		return map[string][]string{"cluster_0": all}
	}

	sim := similarityMatrix(matrix)

	if numClusters <= 0 {
		numClusters = adaptiveClusterCount(sim, len(docs))
	}
	if numClusters > len(docs) {
		numClusters = len(docs)
	}

	// Distance = 1 - similarity, diagonal forced to zero.
	distance := make([][]float64, len(sim))
	for i := range sim {
		distance[i] = make([]float64, len(sim))
		for j := range sim[i] {
			distance[i][j] = 1 - sim[i][j]
		}
		distance[i][i] = 0
	}

	labels := agglomerate(distance, numClusters)

	clusters := make(map[string][]string)
	for i, doc := range docs {
		id := fmt.Sprintf("cluster_%d", labels[i])
		clusters[id] = append(clusters[id], doc.Path)
	}
	e.log.Info("clustered %d documents into %d groups", len(docs), len(clusters))
	return clusters
}

// adaptiveClusterCount derives a cluster count from the mean off-diagonal
// similarity: a corpus of near-duplicates needs fewer, larger groups.
func adaptiveClusterCount(sim [][]float64, n int) int {
	var total float64
	var pairs int
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			total += sim[i][j]
			pairs++
		}
	}
	mean := 0.0
	if pairs > 0 {
		mean = total / float64(pairs)
	}

	var k int
	if mean > 0.7 {
		k = n / 3
	} else {
		k = n / 2
	}
	if k < 1 {
		k = 1
	}
	return k
}

// FindMostComplete returns the highest-scoring document by the reference
// scoring rule. Ties keep the earliest candidate. An empty slice is a
// precondition violation and returns an error.
func (e *Engine) FindMostComplete(docs []Document) (Document, error) {
	if len(docs) == 0 {
		return Document{}, fmt.Errorf("no documents to choose a reference from")
	}

	best := docs[0]
	bestScore := referenceScore(docs[0].Fingerprint)
	for _, doc := range docs[1:] {
		if score := referenceScore(doc.Fingerprint); score > bestScore {
			best = doc
			bestScore = score
		}
	}
	return best, nil
}

func referenceScore(fp fingerprint.Fingerprint) float64 {
	score := float64(fp.TotalWords) * wordWeight
	score += float64(len(fp.Keywords)*keywordScale) * keywordWeight
	score += float64(fp.TotalLines) / lineScale * lineWeight
	if fp.HasTable {
		score += tableBonus * tableWeight
	}
	return score
}

// FindSimilar returns the candidates whose cosine similarity to the
// reference meets the threshold. Each pair is vectorized against the fitted
// vocabulary independently; a pair that fails to vectorize is skipped, not
// fatal. The reference itself is excluded from the result.
func (e *Engine) FindSimilar(reference Document, candidates []Document, threshold float64) []Document {
	if threshold <= 0 {
		threshold = SimilarityThreshold
	}
	refText := reference.Fingerprint.CorpusText()

	var similar []Document
	for _, candidate := range candidates {
		if candidate.Path == reference.Path {
			continue
		}
		vectors, err := e.vectorizer.Transform([]string{refText, candidate.Fingerprint.CorpusText()})
		if err != nil {
			e.log.Debug("skipping %s: %v", candidate.Path, err)
			continue
		}
		if CosineSimilarity(vectors[0], vectors[1]) >= threshold {
			similar = append(similar, candidate)
		}
	}
	return similar
}
