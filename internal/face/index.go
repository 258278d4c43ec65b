package face

import (
	"sync"

	"github.com/coder/hnsw"
)

const indexMaxNeighbors = 16

// Index is a school-wide approximate nearest-neighbor index over student
// embeddings. It backs the duplicate-enrollment guard and cross-class
// identification; per-class matching stays on the exact linear scan in
// BestMatch.
type Index struct {
	graph *hnsw.Graph[string]
	// current holds the authoritative embedding per student. HNSW has no
	// true deletion, so search results are filtered through this map and
	// distances are recomputed from it.
	current map[string]Embedding
	mu      sync.RWMutex
}

// NewIndex creates an empty index.
func NewIndex() *Index {
	return &Index{
		graph:   newGraph(),
		current: make(map[string]Embedding),
	}
}

func newGraph() *hnsw.Graph[string] {
	g := hnsw.NewGraph[string]()
	g.M = indexMaxNeighbors
	g.Ml = 1.0 / float64(indexMaxNeighbors)
	g.Distance = hnsw.EuclideanDistance
	return g
}

// Build replaces the index contents with the given enrolled set.
// Entries without a well-formed embedding are skipped.
func (ix *Index) Build(enrolled []Enrolled) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	g := newGraph()
	current := make(map[string]Embedding, len(enrolled))
	for _, e := range enrolled {
		if len(e.Embedding) != Dim {
			continue
		}
		g.Add(hnsw.MakeNode(e.StudentID, e.Embedding))
		current[e.StudentID] = e.Embedding
	}

	ix.graph = g
	ix.current = current
}

// Upsert adds or replaces a single student's embedding.
func (ix *Index) Upsert(studentID string, emb Embedding) {
	if len(emb) != Dim {
		return
	}
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.graph.Add(hnsw.MakeNode(studentID, emb))
	ix.current[studentID] = emb
}

// Remove deletes a student's embedding from the index.
func (ix *Index) Remove(studentID string) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	delete(ix.current, studentID)
}

// Nearest returns up to k student IDs nearest to the query embedding,
// with exact Euclidean distances recomputed against the current
// embeddings, sorted nearest first.
func (ix *Index) Nearest(query Embedding, k int) ([]string, []float64) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	if len(ix.current) == 0 || len(query) != Dim {
		return nil, nil
	}

	// Over-fetch to compensate for removed or superseded graph nodes.
	neighbors := ix.graph.Search(query, k*2)

	seen := make(map[string]bool, len(neighbors))
	var ids []string
	var distances []float64
	for _, n := range neighbors {
		emb, ok := ix.current[n.Key]
		if !ok || seen[n.Key] {
			continue
		}
		seen[n.Key] = true
		ids = append(ids, n.Key)
		distances = append(distances, EuclideanDistance(query, emb))
		if len(ids) == k {
			break
		}
	}
	return ids, distances
}

// Count returns the number of indexed students.
func (ix *Index) Count() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.current)
}
