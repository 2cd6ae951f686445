package cluster

import (
	"fmt"
	"math"
	"regexp"
	"sort"
	"strings"
)

const (
	// maxFeatures caps the vocabulary at the terms with the highest corpus
	// frequency, keeping the vectors small and the dominant layout
	// vocabulary intact.
	maxFeatures = 500

	// minDocFrequency drops terms that appear in fewer documents than this.
	// Terms unique to a single document carry no grouping signal.
	minDocFrequency = 2
)

// tokenPattern matches word tokens of two or more letters/digits, unicode
// aware so Swedish text tokenizes correctly.
var tokenPattern = regexp.MustCompile(`[\p{L}\p{N}_]{2,}`)

// Vectorizer converts document texts into L2-normalized TF-IDF vectors over
// unigrams and bigrams. No stop-word removal is applied: invoice vocabulary
// like "no" and "nr" must survive.
type Vectorizer struct {
	vocabulary map[string]int
	idf        []float64
}

// tokenize lowercases the text and emits unigrams followed by bigrams.
func tokenize(text string) []string {
	words := tokenPattern.FindAllString(strings.ToLower(text), -1)

	terms := make([]string, 0, 2*len(words))
	terms = append(terms, words...)
	for i := 0; i+1 < len(words); i++ {
		terms = append(terms, words[i]+" "+words[i+1])
	}
	return terms
}

// Fit learns the vocabulary and inverse document frequencies from the corpus
// and returns the TF-IDF matrix, one row per input text. It fails when the
// pruned vocabulary is empty, which happens for degenerate corpora (all
// texts identical single-token noise, or too few documents sharing terms).
func (v *Vectorizer) Fit(texts []string) ([][]float64, error) {
	if len(texts) == 0 {
		return nil, fmt.Errorf("empty corpus")
	}

	termCounts := make([]map[string]int, len(texts))
	docFreq := make(map[string]int)
	corpusFreq := make(map[string]int)
	for i, text := range texts {
		counts := make(map[string]int)
		for _, term := range tokenize(text) {
			counts[term]++
			corpusFreq[term]++
		}
		termCounts[i] = counts
		for term := range counts {
			docFreq[term]++
		}
	}

	// Prune by document frequency, then keep the most frequent terms.
	kept := make([]string, 0, len(docFreq))
	for term, df := range docFreq {
		if df >= minDocFrequency {
			kept = append(kept, term)
		}
	}
	if len(kept) == 0 {
		return nil, fmt.Errorf("no terms survive min document frequency %d", minDocFrequency)
	}
	sort.Slice(kept, func(i, j int) bool {
		if corpusFreq[kept[i]] != corpusFreq[kept[j]] {
			return corpusFreq[kept[i]] > corpusFreq[kept[j]]
		}
		return kept[i] < kept[j]
	})
	if len(kept) > maxFeatures {
		kept = kept[:maxFeatures]
	}

	v.vocabulary = make(map[string]int, len(kept))
	for i, term := range kept {
		v.vocabulary[term] = i
	}

	// Smoothed IDF: ln((1+n)/(1+df)) + 1.
	n := float64(len(texts))
	v.idf = make([]float64, len(kept))
	for term, col := range v.vocabulary {
		v.idf[col] = math.Log((1+n)/(1+float64(docFreq[term]))) + 1
	}

	matrix := make([][]float64, len(texts))
	for i, counts := range termCounts {
		matrix[i] = v.vectorize(counts)
	}
	return matrix, nil
}

// Transform vectorizes texts against the already fitted vocabulary.
func (v *Vectorizer) Transform(texts []string) ([][]float64, error) {
	if v.vocabulary == nil {
		return nil, fmt.Errorf("vectorizer not fitted")
	}

	matrix := make([][]float64, len(texts))
	for i, text := range texts {
		counts := make(map[string]int)
		for _, term := range tokenize(text) {
			if _, known := v.vocabulary[term]; known {
				counts[term]++
			}
		}
		matrix[i] = v.vectorize(counts)
	}
	return matrix, nil
}

// vectorize builds one L2-normalized TF-IDF row from term counts.
func (v *Vectorizer) vectorize(counts map[string]int) []float64 {
	row := make([]float64, len(v.vocabulary))
	for term, count := range counts {
		if col, ok := v.vocabulary[term]; ok {
			row[col] = float64(count) * v.idf[col]
		}
	}

	var norm float64
	for _, val := range row {
		norm += val * val
	}
	if norm > 0 {
		norm = math.Sqrt(norm)
		for i := range row {
			row[i] /= norm
		}
	}
	return row
}

// CosineSimilarity computes the similarity of two equally sized vectors.
// Rows produced by the vectorizer are already L2-normalized, so this reduces
// to a dot product for them, but the general form is kept for raw vectors.
func CosineSimilarity(a, b []float64) float64 {
	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// similarityMatrix computes the pairwise cosine similarity of all rows.
func similarityMatrix(rows [][]float64) [][]float64 {
	n := len(rows)
	sim := make([][]float64, n)
	for i := range sim {
		sim[i] = make([]float64, n)
		sim[i][i] = 1
	}
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			s := CosineSimilarity(rows[i], rows[j])
			sim[i][j] = s
			sim[j][i] = s
		}
	}
	return sim
}
