package face

const (
	// AdaptAlpha is the EMA smoothing factor. A small value keeps the
	// stored embedding stable against single noisy frames.
	AdaptAlpha = 0.15

	// AdaptMinConfidence is the minimum match confidence required before
	// an observation may update the stored embedding.
	AdaptMinConfidence = 0.6
)

// Adapt blends a freshly observed embedding into a student's stored
// embedding and renormalizes the result to unit length:
//
//	E'[i] = E[i]*(1-alpha) + N[i]*alpha
//
// Returns the updated embedding and true when the update applies.
// The update is skipped (false) when the observation's confidence is
// below AdaptMinConfidence or either vector is not exactly Dim long —
// adaptation refines an existing enrollment, it never creates one.
func Adapt(existing, observed Embedding, confidence float64) (Embedding, bool) {
	if confidence < AdaptMinConfidence {
		return nil, false
	}
	if existing.Validate() != nil || observed.Validate() != nil {
		return nil, false
	}

	blended := make(Embedding, Dim)
	for i := range blended {
		blended[i] = existing[i]*(1-AdaptAlpha) + observed[i]*AdaptAlpha
	}

	return blended.Normalized(), true
}
