package face

import (
	"fmt"
	"math"
)

// Dim is the number of components in a face embedding. Every embedding
// stored or matched by this package has exactly this length.
const Dim = 128

// Embedding is a fixed-length face identity vector.
type Embedding []float32

// ErrMalformedEmbedding is returned when an embedding does not have
// exactly Dim components.
type ErrMalformedEmbedding struct {
	Len int
}

func (e *ErrMalformedEmbedding) Error() string {
	return fmt.Sprintf("malformed embedding: got %d components, want %d", e.Len, Dim)
}

// Validate checks that the embedding has exactly Dim components.
func (e Embedding) Validate() error {
	if len(e) != Dim {
		return &ErrMalformedEmbedding{Len: len(e)}
	}
	return nil
}

// EuclideanDistance computes the Euclidean distance between two vectors.
// Returns +Inf for mismatched or empty inputs so that broken data can
// never win a nearest-neighbor comparison.
func EuclideanDistance(a, b Embedding) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return math.Inf(1)
	}

	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return math.Sqrt(sum)
}

// Norm returns the Euclidean norm of the embedding.
func (e Embedding) Norm() float64 {
	var sum float64
	for _, v := range e {
		sum += float64(v) * float64(v)
	}
	return math.Sqrt(sum)
}

// Normalized returns a unit-length copy of the embedding. A zero vector
// is returned unchanged since it cannot be normalized.
func (e Embedding) Normalized() Embedding {
	norm := e.Norm()
	out := make(Embedding, len(e))
	if norm == 0 {
		copy(out, e)
		return out
	}
	for i, v := range e {
		out[i] = float32(float64(v) / norm)
	}
	return out
}
