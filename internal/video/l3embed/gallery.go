package l3embed

// Gallery is one track's bounded appearance memory: the most recent
// embeddings, newest first. When the budget is exceeded the oldest entries
// fall off. The zero budget means "unbounded", which only the tests use.
type Gallery struct {
	budget   int
	features [][]float32
}

// NewGallery returns an empty gallery holding at most budget embeddings.
func NewGallery(budget int) *Gallery {
	return &Gallery{budget: budget}
}

// Push records a new embedding as the most recent entry. Nil embeddings are
// ignored so motion-only detections never pollute the memory.
func (g *Gallery) Push(feature []float32) {
	if len(feature) == 0 {
		return
	}
	g.features = append([][]float32{feature}, g.features...)
	if g.budget > 0 && len(g.features) > g.budget {
		g.features = g.features[:g.budget]
	}
}

// Len returns the number of stored embeddings.
func (g *Gallery) Len() int { return len(g.features) }

// Distance returns the minimum cosine distance between feature and any
// stored embedding. ok is false when either side carries no appearance
// evidence; callers then fall back to motion cost alone.
func (g *Gallery) Distance(feature []float32) (float64, bool) {
	if len(g.features) == 0 || len(feature) == 0 {
		return 0, false
	}
	best := CosineDistance(g.features[0], feature)
	for _, f := range g.features[1:] {
		if d := CosineDistance(f, feature); d < best {
			best = d
		}
	}
	return best, true
}

// Features returns the stored embeddings, newest first. The slice is shared;
// callers must not mutate it.
func (g *Gallery) Features() [][]float32 { return g.features }
