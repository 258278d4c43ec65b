package face

// Enrolled is a student's stored embedding as loaded for matching.
type Enrolled struct {
	StudentID string
	Embedding Embedding
}

// Match is the result of a successful identification.
type Match struct {
	StudentID  string
	Distance   float64
	Confidence float64
}

// BestMatch finds the enrolled identity nearest to the probe embedding.
// Returns false when the enrolled set is empty, the probe is malformed,
// or the nearest distance exceeds the threshold.
//
// Ties at the minimum distance are broken by the lowest student ID so
// the result never depends on the iteration order of the enrolled set.
func BestMatch(probe Embedding, enrolled []Enrolled, threshold float64) (Match, bool) {
	if probe.Validate() != nil || len(enrolled) == 0 {
		return Match{}, false
	}

	best := Match{Distance: -1}
	for _, e := range enrolled {
		if len(e.Embedding) != Dim {
			continue
		}
		d := EuclideanDistance(probe, e.Embedding)
		switch {
		case best.Distance < 0 || d < best.Distance:
			best = Match{StudentID: e.StudentID, Distance: d}
		case d == best.Distance && e.StudentID < best.StudentID:
			best.StudentID = e.StudentID
		}
	}

	if best.Distance < 0 || best.Distance > threshold {
		return Match{}, false
	}

	best.Confidence = Confidence(best.Distance, threshold)
	return best, true
}

// Confidence maps a match distance to a score in [0, 1]. Distance 0 maps
// to 1 and the threshold maps to 0, decreasing linearly in between.
func Confidence(distance, threshold float64) float64 {
	if threshold <= 0 {
		return 0
	}
	c := 1 - distance/threshold
	if c < 0 {
		c = 0
	}
	if c > 1 {
		c = 1
	}
	return c
}
